// Package upstream is the HTTP client for the 302.AI tool API.
//
// Every request carries the client's key twice, as "Authorization: Bearer"
// and as "x-api-key". Non-2xx answers become a *StatusError wrapped in an
// internal rpcerror.Error, so the protocol layer can report status, reason,
// and body text.
package upstream
