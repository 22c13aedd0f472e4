// Package bridge serves the 302.AI tool API as a Model Context Protocol
// server. A single Bridge speaks one of four transports (stdio, SSE,
// Streamable HTTP, or stateless REST) and answers tools/list and tools/call
// by resolving the caller's API key and language, then forwarding the request
// to the upstream HTTP API through a cached client.
//
// Session-aware transports keep their own handle maps. Streamable HTTP also
// records the API key each session initialized with, so later requests on
// that session need not repeat it. SSE instead stamps every POSTed tool
// request with the credentials found in its headers.
package bridge
