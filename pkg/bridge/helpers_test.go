package bridge

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/302ai/302-custom-mcp/pkg/credentials"
	"github.com/302ai/302-custom-mcp/pkg/logging"
	"github.com/302ai/302-custom-mcp/pkg/upstream"
)

// stubUpstream imitates the 302.AI tool API and records which key each
// request carried.
type stubUpstream struct {
	*httptest.Server

	mu     sync.Mutex
	keys   []string
	langs  []string
	status int
	// catalogue, when set, replaces the default tools/list body.
	catalogue string
	// hold, when set, is called with the request's key before answering.
	hold func(key string)
}

func newStubUpstream(t *testing.T) *stubUpstream {
	t.Helper()
	stub := &stubUpstream{}
	stub.Server = httptest.NewServer(http.HandlerFunc(stub.serve))
	t.Cleanup(stub.Close)
	return stub
}

func (s *stubUpstream) serve(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("x-api-key")
	s.mu.Lock()
	s.keys = append(s.keys, key)
	s.langs = append(s.langs, r.URL.Query().Get("lang"))
	status, hold, catalogue := s.status, s.hold, s.catalogue
	s.mu.Unlock()

	if hold != nil {
		hold(key)
	}
	if status != 0 {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, "stub refused")
		return
	}
	switch {
	case r.URL.Path == "/list-tools/custom":
		if catalogue == "" {
			catalogue = `{"tools":[{"name":"t1"}]}`
		}
		_, _ = io.WriteString(w, catalogue)
	case strings.HasPrefix(r.URL.Path, "/call-tool/"):
		var payload struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]any{"tool": payload.Name, "key": key, "arguments": payload.Arguments},
			"logs":   []string{"ok"},
		})
	default:
		http.NotFound(w, r)
	}
}

func (s *stubUpstream) setStatus(status int) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

func (s *stubUpstream) setCatalogue(body string) {
	s.mu.Lock()
	s.catalogue = body
	s.mu.Unlock()
}

func (s *stubUpstream) setHold(hold func(key string)) {
	s.mu.Lock()
	s.hold = hold
	s.mu.Unlock()
}

func (s *stubUpstream) seenKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.keys...)
}

func (s *stubUpstream) seenLanguages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.langs...)
}

func noEnv(string) (string, bool) { return "", false }

func newTestBridge(t *testing.T, kind TransportKind, stub *stubUpstream, settings credentials.Settings) *Bridge {
	t.Helper()
	if settings.LookupEnv == nil {
		settings.LookupEnv = noEnv
	}
	settings.Logger = logging.Discard()
	resolver := credentials.NewResolver(credentials.NewStore(), settings)
	clients := upstream.NewCache(&upstream.Options{BaseURL: stub.URL, HTTPClient: stub.Client(), Logger: logging.Discard()})
	b, err := New(resolver, clients, &Options{Kind: kind, Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("New(%s): %v", kind, err)
	}
	return b
}

func connectInMemory(t *testing.T, b *Bridge) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ss, err := b.Server().Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	client := mcp.NewClient(&mcp.Implementation{Name: "bridge-test-client", Version: "1.0.0"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() {
		_ = cs.Close()
		_ = ss.Wait()
	})
	return cs
}

// headerTransport adds fixed headers to every outgoing request.
type headerTransport struct {
	headers http.Header
	once    bool

	mu   sync.Mutex
	sent bool
}

func (h *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	h.mu.Lock()
	apply := !h.once || !h.sent
	h.sent = true
	h.mu.Unlock()
	if apply {
		req = req.Clone(req.Context())
		for k, values := range h.headers {
			for _, v := range values {
				req.Header.Add(k, v)
			}
		}
	}
	return http.DefaultTransport.RoundTrip(req)
}

func toolText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) != 1 {
		t.Fatalf("expected exactly one content block, got %+v", res)
	}
	text, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	return text.Text
}
