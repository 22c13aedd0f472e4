package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/auth"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/cors"

	"github.com/302ai/302-custom-mcp/pkg/credentials"
	"github.com/302ai/302-custom-mcp/pkg/upstream"
)

// Bridge exposes the upstream tool API as an MCP server over one transport.
type Bridge struct {
	opts       Options
	dispatcher *Dispatcher
	store      *credentials.Store

	server      *mcp.Server
	transport   transport
	mux         *http.ServeMux
	httpHandler http.Handler

	httpServerMu sync.Mutex
	httpServer   *http.Server
}

// New builds a Bridge for opts.Kind. Resolver and clients are shared by every
// session the bridge serves.
func New(resolver *credentials.Resolver, clients *upstream.Cache, opts *Options) (*Bridge, error) {
	options := opts.withDefaults()
	if !options.Kind.Valid() {
		return nil, fmt.Errorf("bridge: unknown transport kind %q", options.Kind)
	}
	if options.TokenOptions != nil && options.TokenVerifier == nil {
		return nil, fmt.Errorf("bridge: TokenOptions require a TokenVerifier")
	}
	dispatcher, err := NewDispatcher(resolver, clients, options.Kind, options.Logger)
	if err != nil {
		return nil, err
	}
	// Only session-keyed transports write to the store; the resolver reads
	// the same one.
	var store *credentials.Store
	if options.Kind.UsesSessionStore() {
		if store = resolver.Store(); store == nil {
			return nil, fmt.Errorf("bridge: %s needs a resolver with a session store", options.Kind)
		}
	}

	b := &Bridge{
		opts:       options,
		dispatcher: dispatcher,
		store:      store,
		mux:        http.NewServeMux(),
	}
	b.server = mcp.NewServer(options.Implementation, &mcp.ServerOptions{HasTools: true})
	b.server.AddReceivingMiddleware(dispatcher.Middleware())

	switch options.Kind {
	case TransportSSE:
		b.transport = newSSETransport(b)
	case TransportStreamableHTTP:
		b.transport = newStreamableTransport(b, store)
	case TransportREST:
		b.transport = newRESTTransport(b)
	default:
		b.transport = stdioTransport{}
	}
	b.httpHandler = b.mountHandler()
	return b, nil
}

// Options returns a copy of the effective options.
func (b *Bridge) Options() Options {
	return b.opts
}

// Server exposes the underlying MCP server.
func (b *Bridge) Server() *mcp.Server {
	return b.server
}

// Handler exposes the HTTP handler serving the configured transport.
func (b *Bridge) Handler() http.Handler {
	return b.httpHandler
}

// ServeMux returns the mux behind Handler so callers can add routes.
func (b *Bridge) ServeMux() *http.ServeMux {
	return b.mux
}

// Run serves until ctx is cancelled: over stdin/stdout for stdio, otherwise
// over HTTP.
func (b *Bridge) Run(ctx context.Context) error {
	if !b.opts.Kind.IsHTTP() {
		b.opts.Logger.Info("serving MCP over stdio")
		return b.server.Run(ctx, b.wrapTransport(&mcp.StdioTransport{}))
	}
	b.opts.Logger.Info("serving MCP over HTTP", "transport", b.opts.Kind, "addr", b.opts.Addr, "path", b.primaryPath())
	return b.ListenAndServe(ctx)
}

// ListenAndServe runs an HTTP server until the provided context is cancelled or
// the server stops.
func (b *Bridge) ListenAndServe(ctx context.Context) error {
	if !b.opts.Kind.IsHTTP() {
		return fmt.Errorf("bridge: %s transport does not listen on a port", b.opts.Kind)
	}
	b.httpServerMu.Lock()
	if b.httpServer != nil {
		serv := b.httpServer
		b.httpServerMu.Unlock()
		return fmt.Errorf("bridge: server already running on %s", serv.Addr)
	}
	srv := &http.Server{Addr: b.opts.Addr, Handler: b.Handler(), ReadHeaderTimeout: 10 * time.Second}
	b.httpServer = srv
	b.httpServerMu.Unlock()
	defer func() {
		b.httpServerMu.Lock()
		if b.httpServer == srv {
			b.httpServer = nil
		}
		b.httpServerMu.Unlock()
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), b.opts.ShutdownTimeout)
		defer cancel()
		// Open SSE streams hold their handlers; end them before Shutdown waits.
		b.transport.closeAll()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Shutdown stops the embedded HTTP server if it is running and closes every
// live session.
func (b *Bridge) Shutdown(ctx context.Context) error {
	b.transport.closeAll()
	b.httpServerMu.Lock()
	srv := b.httpServer
	b.httpServer = nil
	b.httpServerMu.Unlock()
	if srv == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return srv.Shutdown(ctx)
}

func (b *Bridge) connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return b.server.Connect(ctx, b.wrapTransport(t), nil)
}

func (b *Bridge) wrapTransport(t mcp.Transport) mcp.Transport {
	if !b.opts.LogJSONRPC {
		return t
	}
	return &rpcLogTransport{kind: b.opts.Kind, delegate: t, logger: b.opts.Logger}
}

func (b *Bridge) mountHandler() http.Handler {
	b.mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	b.transport.mount(b.mux)
	return cors.New(cors.Options{
		AllowedOrigins: b.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{sessionIDHeader},
	}).Handler(b.mux)
}

// withBearer verifies an "Authorization: Bearer" header when one is present
// and passes other requests through untouched.
func (b *Bridge) withBearer(next http.Handler) http.Handler {
	verifier := b.opts.TokenVerifier
	if verifier == nil {
		verifier = apiKeyVerifier
	}
	tokenOpts := b.opts.TokenOptions
	if tokenOpts == nil {
		tokenOpts = &auth.RequireBearerTokenOptions{}
	}
	protected := auth.RequireBearerToken(verifier, tokenOpts)(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hasBearer(r) {
			protected.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Bridge) primaryPath() string {
	switch b.opts.Kind {
	case TransportSSE:
		return b.opts.SSEPath
	case TransportStreamableHTTP:
		return b.opts.StreamablePath
	case TransportREST:
		return b.opts.RESTPath
	}
	return ""
}

func (b *Bridge) logError(msg string, err error, args ...any) {
	if err == nil {
		return
	}
	attrs := append([]any{"error", err}, args...)
	b.opts.Logger.Error(msg, attrs...)
}

// apiKeyVerifier accepts any bearer token as the upstream API key; the
// upstream decides whether it is valid.
func apiKeyVerifier(_ context.Context, token string, _ *http.Request) (*auth.TokenInfo, error) {
	if strings.TrimSpace(token) == "" {
		return nil, auth.ErrInvalidToken
	}
	return &auth.TokenInfo{
		Expiration: time.Now().Add(24 * time.Hour),
		Extra:      map[string]any{credentials.APIKeyField: token},
	}, nil
}

func hasBearer(r *http.Request) bool {
	scheme, _, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	return ok && strings.EqualFold(scheme, "bearer")
}

// stdioTransport has a single implicit session owned by Server.Run.
type stdioTransport struct{}

func (stdioTransport) Kind() TransportKind { return TransportStdio }
func (stdioTransport) mount(*http.ServeMux) {}
func (stdioTransport) closeAll() {}
