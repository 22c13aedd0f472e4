package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/302ai/302-custom-mcp/pkg/credentials"
	"github.com/302ai/302-custom-mcp/pkg/logging"
	"github.com/302ai/302-custom-mcp/pkg/rpcerror"
	"github.com/302ai/302-custom-mcp/pkg/upstream"
)

// stampedAuthKey is the _meta entry the SSE transport fills with the
// credentials read from each POST's headers.
const stampedAuthKey = "authInfo"

// Dispatcher answers tools/list and tools/call by forwarding them upstream.
type Dispatcher struct {
	resolver *credentials.Resolver
	clients  *upstream.Cache
	// trustStamped enables the _meta authInfo channel; only transports that
	// overwrite it on every message may set this.
	trustStamped bool
	logger       *slog.Logger
}

// NewDispatcher builds a Dispatcher. kind decides whether stamped _meta
// credentials are honored.
func NewDispatcher(resolver *credentials.Resolver, clients *upstream.Cache, kind TransportKind, logger *slog.Logger) (*Dispatcher, error) {
	if resolver == nil {
		return nil, fmt.Errorf("bridge: credential resolver is required")
	}
	if clients == nil {
		return nil, fmt.Errorf("bridge: upstream client cache is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		resolver:     resolver,
		clients:      clients,
		trustStamped: kind.StampsAuthInfo(),
		logger:       logger,
	}, nil
}

// Middleware intercepts tool methods before the server's own handlers.
func (d *Dispatcher) Middleware() mcp.Middleware {
	return func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
			switch r := req.(type) {
			case *mcp.ListToolsRequest:
				res, err := d.ListTools(ctx, r)
				if err != nil {
					return nil, err
				}
				return res, nil
			case *mcp.CallToolRequest:
				res, err := d.CallTool(ctx, r)
				if err != nil {
					return nil, err
				}
				return res, nil
			}
			return next(ctx, method, req)
		}
	}
}

// ListTools resolves the key and language, then returns the upstream catalogue.
func (d *Dispatcher) ListTools(ctx context.Context, req *mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	var meta mcp.Meta
	if req.Params != nil {
		meta = req.Params.Meta
	}
	creds := d.credentialRequest(req.Session, meta, req.Extra)

	client, err := d.client(ctx, creds)
	if err != nil {
		return nil, err
	}
	language := d.resolver.ResolveLanguage(ctx, creds)

	tools, err := client.ListTools(context.WithoutCancel(ctx), language)
	if err != nil {
		return nil, err
	}
	d.logger.Debug("listed tools", "count", len(tools), "language", language)
	return &mcp.ListToolsResult{Tools: tools}, nil
}

// CallTool forwards the call and returns the upstream body as indented JSON
// in a single text block.
func (d *Dispatcher) CallTool(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if req.Params == nil {
		return nil, rpcerror.New(rpcerror.CodeInvalidParams, "missing tools/call params")
	}
	creds := d.credentialRequest(req.Session, req.Params.Meta, req.Extra)

	client, err := d.client(ctx, creds)
	if err != nil {
		return nil, err
	}
	raw, err := client.CallTool(context.WithoutCancel(ctx), req.Params.Name, req.Params.Arguments)
	if err != nil {
		return nil, err
	}

	var text bytes.Buffer
	if err := json.Indent(&text, raw, "", "  "); err != nil {
		return nil, rpcerror.Wrap(rpcerror.CodeInternalError, "format tool result", err)
	}
	d.logger.Debug("called tool", "tool", req.Params.Name)
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text.String()}},
	}, nil
}

// client resolves the API key and returns the client bound to it. The
// returned client is the one the caller must use; the cache may be swapped
// by a concurrent request at any time afterwards.
func (d *Dispatcher) client(ctx context.Context, creds *credentials.Request) (*upstream.Client, error) {
	key, err := d.resolver.ResolveAPIKey(ctx, creds)
	if err != nil {
		return nil, err
	}
	d.logger.Debug("using upstream client", logging.SecretAttrKey, key)
	return d.clients.Get(key), nil
}

func (d *Dispatcher) credentialRequest(session *mcp.ServerSession, meta mcp.Meta, extra *mcp.RequestExtra) *credentials.Request {
	creds := &credentials.Request{Meta: meta}
	if session != nil {
		creds.SessionID = session.ID()
	}

	authInfo := map[string]any{}
	if d.trustStamped && meta != nil {
		if stamped, ok := meta[stampedAuthKey].(map[string]any); ok {
			for k, v := range stamped {
				authInfo[k] = v
			}
		}
	}
	if extra != nil && extra.TokenInfo != nil {
		for k, v := range extra.TokenInfo.Extra {
			authInfo[k] = v
		}
	}
	if len(authInfo) > 0 {
		creds.AuthInfo = authInfo
	}
	return creds
}
