package bridge

import (
	"errors"
	"io"
	"net/http"
	"sync"
)

// transport is one serving variant. HTTP variants mount routes; stdio mounts
// none.
type transport interface {
	Kind() TransportKind
	mount(mux *http.ServeMux)
	// closeAll ends every live session.
	closeAll()
}

// sessionLifecycle is implemented by the HTTP variants that track sessions.
// Each callback fires at most once per lifecycle event, with no ordering
// guarantee relative to in-flight messages of the same session.
type sessionLifecycle interface {
	onConnect(w http.ResponseWriter, r *http.Request)
	onMessage(w http.ResponseWriter, r *http.Request)
	onClose(sessionID string)
}

var (
	_ sessionLifecycle = (*sseTransport)(nil)
	_ sessionLifecycle = (*streamableTransport)(nil)
)

// handleMap maps session ids to live transport handles.
type handleMap[T any] struct {
	mu sync.Mutex
	m  map[string]T
}

func newHandleMap[T any]() *handleMap[T] {
	return &handleMap[T]{m: make(map[string]T)}
}

func (h *handleMap[T]) put(id string, v T) {
	h.mu.Lock()
	h.m[id] = v
	h.mu.Unlock()
}

func (h *handleMap[T]) get(id string) (T, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.m[id]
	return v, ok
}

// remove deletes id and returns what was stored. Unknown ids are a no-op.
func (h *handleMap[T]) remove(id string) (T, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.m[id]
	delete(h.m, id)
	return v, ok
}

func (h *handleMap[T]) snapshot() []T {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]T, 0, len(h.m))
	for _, v := range h.m {
		out = append(out, v)
	}
	return out
}

func (h *handleMap[T]) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.m)
}

// trackingWriter records whether anything reached the client so error paths
// never write a second response.
type trackingWriter struct {
	http.ResponseWriter
	mu    sync.Mutex
	wrote bool
}

func (w *trackingWriter) WriteHeader(status int) {
	w.markWritten()
	w.ResponseWriter.WriteHeader(status)
}

func (w *trackingWriter) Write(p []byte) (int, error) {
	w.markWritten()
	return w.ResponseWriter.Write(p)
}

func (w *trackingWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *trackingWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func (w *trackingWriter) markWritten() {
	w.mu.Lock()
	w.wrote = true
	w.mu.Unlock()
}

func (w *trackingWriter) written() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.wrote
}

// readBody reads at most limit bytes of r's body. On failure it has already
// answered: 413 when the body is too large, 400 otherwise.
func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		http.Error(w, "failed to read body", status)
		return nil, err
	}
	return body, nil
}
