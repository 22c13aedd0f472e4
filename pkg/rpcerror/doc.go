// Package rpcerror defines the bridge's error taxonomy as typed errors that
// carry JSON-RPC error codes.
//
// Resolution failures are invalid-params errors, upstream HTTP failures are
// internal errors, and HTTP requests that do not map to a live session are
// malformed-session errors:
//
//	if rpcerror.Is(err, rpcerror.CodeInvalidParams) {
//		// no API key could be resolved
//	}
//
// WriteHTTP renders any of them as a JSON-RPC error envelope for transports
// that must reject a request before it reaches the protocol layer.
package rpcerror
