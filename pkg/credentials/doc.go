// Package credentials decides which upstream API key and language apply to a
// protocol request.
//
// A Resolver walks an ordered list of Source values and keeps the first
// non-empty answer. The default key chain is authInfo claims, the global
// startup parameter, the request's _meta auth block, the per-session Store,
// and finally the 302AI_API_KEY environment variable. Language uses the same
// chain without the session step and never fails.
package credentials
