package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/302ai/302-custom-mcp/pkg/credentials"
	"github.com/302ai/302-custom-mcp/pkg/logging"
	"github.com/302ai/302-custom-mcp/pkg/rpcerror"
)

const (
	sessionIDHeader = "Mcp-Session-Id"
	apiKeyHeader    = "x-api-key"
	apiKeyQuery     = "apiKey"
)

// streamableTransport serves Streamable HTTP with one server transport per
// session. Sessions start with an initialize POST and keep the API key it
// carried in the credential store until they close.
type streamableTransport struct {
	bridge   *Bridge
	path     string
	store    *credentials.Store
	sessions *handleMap[*streamableSession]
}

type streamableSession struct {
	transport *mcp.StreamableServerTransport
	session   *mcp.ServerSession
}

func newStreamableTransport(b *Bridge, store *credentials.Store) *streamableTransport {
	return &streamableTransport{
		bridge:   b,
		path:     b.opts.StreamablePath,
		store:    store,
		sessions: newHandleMap[*streamableSession](),
	}
}

func (s *streamableTransport) Kind() TransportKind { return TransportStreamableHTTP }

func (s *streamableTransport) mount(mux *http.ServeMux) {
	mountPath(mux, s.path, s.bridge.withBearer(s))
}

func (s *streamableTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if id := r.Header.Get(sessionIDHeader); id != "" {
		if _, ok := s.sessions.get(id); !ok {
			rpcerror.WriteHTTP(w, http.StatusBadRequest, rpcerror.MalformedSession(""))
			return
		}
		if r.Method == http.MethodDelete {
			s.onClose(id)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		s.onMessage(w, r)
		return
	}

	if r.Method != http.MethodPost {
		rpcerror.WriteHTTP(w, http.StatusBadRequest, rpcerror.MalformedSession(""))
		return
	}
	body, err := readBody(w, r, s.bridge.opts.MaxMessageBytes)
	if err != nil {
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	if !isInitializeRequest(body) {
		rpcerror.WriteHTTP(w, http.StatusBadRequest, rpcerror.MalformedSession(""))
		return
	}
	s.onConnect(w, r)
}

func (s *streamableTransport) onConnect(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	key := r.Header.Get(apiKeyHeader)
	if key == "" {
		key = r.URL.Query().Get(apiKeyQuery)
	}
	s.store.Put(id, key)

	t := &mcp.StreamableServerTransport{SessionID: id}
	// The session outlives this request; it ends on DELETE, on client
	// disconnect, or on shutdown.
	ss, err := s.bridge.connect(context.WithoutCancel(r.Context()), t)
	if err != nil {
		s.store.Remove(id)
		s.bridge.logError("streamable connect", err, "session", id)
		rpcerror.WriteHTTP(w, http.StatusInternalServerError, err)
		return
	}
	s.sessions.put(id, &streamableSession{transport: t, session: ss})
	go func() {
		_ = ss.Wait()
		s.onClose(id)
	}()
	s.bridge.opts.Logger.Info("session opened", "transport", TransportStreamableHTTP, "session", id, logging.SecretAttrKey, key)

	t.ServeHTTP(w, r)
}

func (s *streamableTransport) onMessage(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get(sessionIDHeader)
	entry, ok := s.sessions.get(id)
	if !ok {
		rpcerror.WriteHTTP(w, http.StatusBadRequest, rpcerror.MalformedSession(""))
		return
	}
	if key := r.URL.Query().Get(apiKeyQuery); key != "" {
		s.store.Put(id, key)
	}
	entry.transport.ServeHTTP(w, r)
}

// onClose is safe to call repeatedly; DELETE and the session's own shutdown
// both end up here.
func (s *streamableTransport) onClose(sessionID string) {
	entry, ok := s.sessions.remove(sessionID)
	s.store.Remove(sessionID)
	if !ok {
		return
	}
	_ = entry.session.Close()
	s.bridge.opts.Logger.Info("session closed", "transport", TransportStreamableHTTP, "session", sessionID)
}

func (s *streamableTransport) closeAll() {
	for _, entry := range s.sessions.snapshot() {
		_ = entry.session.Close()
	}
}

// isInitializeRequest reports whether body is an initialize request, alone or
// inside a batch.
func isInitializeRequest(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return false
	}
	if trimmed[0] != '[' {
		return isInitializeMessage(trimmed)
	}
	var batch []json.RawMessage
	if err := json.Unmarshal(trimmed, &batch); err != nil {
		return false
	}
	for _, raw := range batch {
		if isInitializeMessage(raw) {
			return true
		}
	}
	return false
}

func isInitializeMessage(raw []byte) bool {
	msg, err := jsonrpc.DecodeMessage(raw)
	if err != nil {
		return false
	}
	req, ok := msg.(*jsonrpc.Request)
	return ok && req.IsCall() && req.Method == "initialize"
}

func mountPath(mux *http.ServeMux, path string, h http.Handler) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	mux.Handle(path, h)
	if !strings.HasSuffix(path, "/") {
		mux.Handle(path+"/", h)
	}
}
