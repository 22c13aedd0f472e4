package bridge

import (
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/auth"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server identity reported to MCP clients.
const (
	ServerName    = "302ai-custom-mcp"
	ServerVersion = "0.1.3"
)

// Options configure a Bridge instance.
type Options struct {
	// Implementation identifies the bridge's MCP server implementation metadata.
	Implementation *mcp.Implementation
	// Kind selects the transport. Defaults to TransportStdio.
	Kind TransportKind
	// Addr controls the listen address used by ListenAndServe. Defaults to ":9593".
	Addr string
	// RESTPath mounts the REST transport. Defaults to "/rest".
	RESTPath string
	// StreamablePath mounts the Streamable HTTP transport. Defaults to "/mcp".
	StreamablePath string
	// SSEPath opens SSE streams. Defaults to "/sse".
	SSEPath string
	// MessagesPath receives SSE client messages. Defaults to "/messages".
	MessagesPath string
	// AllowedOrigins feeds the CORS policy of every HTTP transport. Defaults to
	// allowing any origin.
	AllowedOrigins []string
	// TokenVerifier checks "Authorization: Bearer" headers on Streamable and
	// REST requests. The default accepts any token and treats it as the
	// upstream API key.
	TokenVerifier auth.TokenVerifier
	// TokenOptions are passed to auth.RequireBearerToken.
	TokenOptions *auth.RequireBearerTokenOptions
	// LogJSONRPC logs every JSON-RPC message at debug level.
	LogJSONRPC bool
	// MaxMessageBytes caps inbound HTTP message bodies. Defaults to 4 MiB.
	MaxMessageBytes int64
	// Logger receives structured diagnostics.
	Logger *slog.Logger
	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout time.Duration
}

func (o *Options) withDefaults() Options {
	if o == nil {
		o = &Options{}
	}
	opts := *o
	if opts.Implementation == nil {
		opts.Implementation = &mcp.Implementation{
			Name:    ServerName,
			Title:   "302AI Custom MCP",
			Version: ServerVersion,
		}
	} else {
		impl := *opts.Implementation
		opts.Implementation = &impl
	}
	if opts.Kind == "" {
		opts.Kind = TransportStdio
	}
	if opts.Addr == "" {
		opts.Addr = ":9593"
	}
	if opts.RESTPath == "" {
		opts.RESTPath = "/rest"
	}
	if opts.StreamablePath == "" {
		opts.StreamablePath = "/mcp"
	}
	if opts.SSEPath == "" {
		opts.SSEPath = "/sse"
	}
	if opts.MessagesPath == "" {
		opts.MessagesPath = "/messages"
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	} else {
		opts.AllowedOrigins = append([]string(nil), opts.AllowedOrigins...)
	}
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = 4 << 20
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	return opts
}
