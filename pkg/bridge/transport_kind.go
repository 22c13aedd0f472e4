package bridge

import (
	"fmt"
	"strings"
)

// TransportKind identifies how the bridge talks to MCP clients. A process
// serves exactly one kind.
type TransportKind string

const (
	TransportStdio          TransportKind = "stdio"
	TransportSSE            TransportKind = "sse"
	TransportStreamableHTTP TransportKind = "http"
	TransportREST           TransportKind = "rest"
)

// ParseTransportKind maps a mode name to its TransportKind. "streamable" and
// "streamable-http" are accepted as aliases of "http".
func ParseTransportKind(mode string) (TransportKind, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "stdio":
		return TransportStdio, nil
	case "sse":
		return TransportSSE, nil
	case "http", "streamable", "streamable-http":
		return TransportStreamableHTTP, nil
	case "rest":
		return TransportREST, nil
	default:
		return "", fmt.Errorf("bridge: unknown transport mode %q", mode)
	}
}

// Valid reports whether k is one of the four known kinds.
func (k TransportKind) Valid() bool {
	switch k {
	case TransportStdio, TransportSSE, TransportStreamableHTTP, TransportREST:
		return true
	default:
		return false
	}
}

// IsHTTP reports whether k listens on a network port.
func (k TransportKind) IsHTTP() bool {
	return k.Valid() && k != TransportStdio
}

// UsesSessionStore reports whether sessions of this kind persist an API key
// in the credential store.
func (k TransportKind) UsesSessionStore() bool {
	return k == TransportStreamableHTTP
}

// StampsAuthInfo reports whether the transport rewrites inbound messages to
// carry per-message header credentials.
func (k TransportKind) StampsAuthInfo() bool {
	return k == TransportSSE
}

func (k TransportKind) String() string { return string(k) }
