package bridge

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/302ai/302-custom-mcp/pkg/credentials"
	"github.com/302ai/302-custom-mcp/pkg/rpcerror"
)

// sseTransport serves the legacy HTTP+SSE transport: GET opens a stream and
// mints a session id, POSTs carry client messages for that id.
type sseTransport struct {
	bridge       *Bridge
	ssePath      string
	messagesPath string
	sessions     *handleMap[*sseSession]
}

type sseSession struct {
	transport *mcp.SSEServerTransport
	session   atomic.Pointer[mcp.ServerSession]
}

func newSSETransport(b *Bridge) *sseTransport {
	return &sseTransport{
		bridge:       b,
		ssePath:      b.opts.SSEPath,
		messagesPath: b.opts.MessagesPath,
		sessions:     newHandleMap[*sseSession](),
	}
}

func (s *sseTransport) Kind() TransportKind { return TransportSSE }

func (s *sseTransport) mount(mux *http.ServeMux) {
	mux.HandleFunc(s.ssePath, s.onConnect)
	mux.HandleFunc(s.messagesPath, s.onMessage)
}

func (s *sseTransport) onConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := uuid.NewString()
	tw := &trackingWriter{ResponseWriter: w}
	entry := &sseSession{transport: &mcp.SSEServerTransport{
		Endpoint: s.messagesPath + "?sessionId=" + id,
		Response: tw,
	}}
	// Registered before Connect: the client may POST as soon as it sees the
	// endpoint event.
	s.sessions.put(id, entry)
	defer s.onClose(id)

	ss, err := s.bridge.connect(r.Context(), entry.transport)
	if err != nil {
		s.bridge.logError("sse connect", err, "session", id)
		if !tw.written() {
			rpcerror.WriteHTTP(tw, http.StatusInternalServerError, err)
		}
		return
	}
	entry.session.Store(ss)
	s.bridge.opts.Logger.Info("session opened", "transport", TransportSSE, "session", id)

	done := make(chan struct{})
	go func() {
		_ = ss.Wait()
		close(done)
	}()
	select {
	case <-r.Context().Done():
		_ = ss.Close()
		<-done
	case <-done:
	}
}

func (s *sseTransport) onMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := r.URL.Query().Get("sessionId")
	entry, ok := s.sessions.get(id)
	if !ok {
		rpcerror.WriteHTTP(w, http.StatusBadRequest, rpcerror.MalformedSession("No transport found for sessionId"))
		return
	}

	body, err := readBody(w, r, s.bridge.opts.MaxMessageBytes)
	if err != nil {
		return
	}
	if stamped, err := stampAuthInfo(body, headerAuthInfo(r.Header)); err == nil {
		body = stamped
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	r.ContentLength = int64(len(body))

	tw := &trackingWriter{ResponseWriter: w}
	entry.transport.ServeHTTP(tw, r)
	if !tw.written() {
		w.WriteHeader(http.StatusAccepted)
	}
}

func (s *sseTransport) onClose(sessionID string) {
	entry, ok := s.sessions.remove(sessionID)
	if !ok {
		return
	}
	if ss := entry.session.Load(); ss != nil {
		_ = ss.Close()
	}
	s.bridge.opts.Logger.Info("session closed", "transport", TransportSSE, "session", sessionID)
}

func (s *sseTransport) closeAll() {
	for _, entry := range s.sessions.snapshot() {
		if ss := entry.session.Load(); ss != nil {
			_ = ss.Close()
		}
	}
}

// headerAuthInfo reads the per-message credentials an SSE POST carries.
func headerAuthInfo(h http.Header) map[string]any {
	claims := map[string]any{}
	if key := h.Get(apiKeyHeader); key != "" {
		claims[credentials.APIKeyField] = key
	}
	if lang := credentials.PrimaryLanguage(h.Get("Accept-Language")); lang != "" {
		claims[credentials.LanguageField] = lang
	}
	return claims
}

// stampAuthInfo rewrites tool requests so params._meta.authInfo holds exactly
// claims. Anything the client put there is discarded. Other messages are
// returned unchanged.
func stampAuthInfo(body []byte, claims map[string]any) ([]byte, error) {
	msg, err := jsonrpc.DecodeMessage(body)
	if err != nil {
		return nil, err
	}
	req, ok := msg.(*jsonrpc.Request)
	if !ok || !isToolMethod(req.Method) {
		return body, nil
	}

	params := map[string]json.RawMessage{}
	if len(req.Params) > 0 && !bytes.Equal(bytes.TrimSpace(req.Params), []byte("null")) {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return body, nil
		}
	}
	meta := map[string]any{}
	if raw, ok := params["_meta"]; ok {
		if err := json.Unmarshal(raw, &meta); err != nil || meta == nil {
			meta = map[string]any{}
		}
	}
	delete(meta, stampedAuthKey)
	if len(claims) > 0 {
		meta[stampedAuthKey] = claims
	}
	if len(meta) == 0 {
		delete(params, "_meta")
	} else {
		raw, err := json.Marshal(meta)
		if err != nil {
			return nil, err
		}
		params["_meta"] = raw
	}

	encodedParams, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	req.Params = encodedParams
	return jsonrpc.EncodeMessage(req)
}

func isToolMethod(method string) bool {
	return method == "tools/list" || method == "tools/call"
}
