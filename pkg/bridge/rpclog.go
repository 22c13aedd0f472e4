package bridge

import (
	"context"
	"log/slog"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/302ai/302-custom-mcp/pkg/credentials"
	"github.com/302ai/302-custom-mcp/pkg/logging"
)

// RPCDirection represents the direction of an observed JSON-RPC message.
type RPCDirection string

const (
	RPCDirectionSend    RPCDirection = "send"
	RPCDirectionReceive RPCDirection = "receive"
)

var rpcRedactor = logging.NewRedactor(credentials.APIKeyField)

// rpcLogTransport logs every JSON-RPC message crossing the wrapped transport.
type rpcLogTransport struct {
	kind     TransportKind
	delegate mcp.Transport
	logger   *slog.Logger
}

func (t *rpcLogTransport) Connect(ctx context.Context) (mcp.Connection, error) {
	conn, err := t.delegate.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return &rpcLogConnection{kind: t.kind, delegate: conn, logger: t.logger}, nil
}

type rpcLogConnection struct {
	kind     TransportKind
	delegate mcp.Connection
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
}

func (c *rpcLogConnection) SessionID() string { return c.delegate.SessionID() }

func (c *rpcLogConnection) Read(ctx context.Context) (jsonrpc.Message, error) {
	msg, err := c.delegate.Read(ctx)
	if err == nil {
		c.emit(RPCDirectionReceive, msg)
	}
	return msg, err
}

// Write drops messages once the connection is closed, as the SDK does for
// its own connections, so a late response never surfaces as an error.
func (c *rpcLogConnection) Write(ctx context.Context, msg jsonrpc.Message) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		c.logger.Debug("dropping message for closed connection", "transport", c.kind, "session", c.delegate.SessionID())
		return nil
	}
	if err := c.delegate.Write(ctx, msg); err != nil {
		return err
	}
	c.emit(RPCDirectionSend, msg)
	return nil
}

func (c *rpcLogConnection) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.delegate.Close()
}

func (c *rpcLogConnection) emit(direction RPCDirection, msg jsonrpc.Message) {
	encoded, err := jsonrpc.EncodeMessage(msg)
	if err != nil {
		encoded = []byte(err.Error())
	}
	c.logger.Debug("jsonrpc",
		"direction", direction,
		"transport", c.kind,
		"session", c.delegate.SessionID(),
		"message", string(rpcRedactor.Redact(encoded)),
	)
}
