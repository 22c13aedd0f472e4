package bridge

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/302ai/302-custom-mcp/pkg/credentials"
)

// Verifies that consumers can add custom routes via ServeMux before serving.
func TestBridgeServeMux_AllowsCustomRoutes_BeforeServe(t *testing.T) {
	b := newTestBridge(t, TransportStreamableHTTP, newStubUpstream(t), credentials.Settings{})

	mux := b.ServeMux()
	mux.HandleFunc("/custom", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	srv := httptest.NewServer(b.Handler())
	defer srv.Close()

	res, err := http.Get(srv.URL + "/custom")
	if err != nil {
		t.Fatalf("GET /custom: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != 200 {
		t.Fatalf("GET /custom status = %d, want 200", res.StatusCode)
	}
	body, _ := io.ReadAll(res.Body)
	if string(body) != "ok" {
		t.Fatalf("GET /custom body = %q, want \"ok\"", string(body))
	}
}

// Verifies that routes registered after the handler is already mounted are
// reachable. The standard net/http ServeMux permits concurrent registration.
func TestBridgeServeMux_AllowsCustomRoutes_AfterServe(t *testing.T) {
	b := newTestBridge(t, TransportREST, newStubUpstream(t), credentials.Settings{})

	srv := httptest.NewServer(b.Handler())
	defer srv.Close()

	// Register a route after the server has started.
	mux := b.ServeMux()
	mux.HandleFunc("/late", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ready"))
	})

	res, err := http.Get(srv.URL + "/late")
	if err != nil {
		t.Fatalf("GET /late: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != 200 {
		t.Fatalf("GET /late status = %d, want 200", res.StatusCode)
	}
	body, _ := io.ReadAll(res.Body)
	if string(body) != "ready" {
		t.Fatalf("GET /late body = %q, want \"ready\"", string(body))
	}
}

func TestBridgeHealthzOnEveryKind(t *testing.T) {
	t.Parallel()

	for _, kind := range []TransportKind{TransportStdio, TransportSSE, TransportStreamableHTTP, TransportREST} {
		b := newTestBridge(t, kind, newStubUpstream(t), credentials.Settings{})
		srv := httptest.NewServer(b.Handler())
		res, err := http.Get(srv.URL + "/healthz")
		if err != nil {
			srv.Close()
			t.Fatalf("%s GET /healthz: %v", kind, err)
		}
		res.Body.Close()
		srv.Close()
		if res.StatusCode != http.StatusOK {
			t.Fatalf("%s GET /healthz status = %d", kind, res.StatusCode)
		}
	}
}

func TestBridgeCORSExposesSessionHeader(t *testing.T) {
	t.Parallel()

	b := newTestBridge(t, TransportStreamableHTTP, newStubUpstream(t), credentials.Settings{})
	srv := httptest.NewServer(b.Handler())
	t.Cleanup(srv.Close)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	req.Header.Set("Origin", "https://app.example")
	res, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("GET with origin: %v", err)
	}
	res.Body.Close()
	if got := res.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("Access-Control-Allow-Origin = %q, want *", got)
	}
	if got := res.Header.Get("Access-Control-Expose-Headers"); got != sessionIDHeader {
		t.Fatalf("Access-Control-Expose-Headers = %q, want %s", got, sessionIDHeader)
	}
}

func TestBridgeOptionsDefaults(t *testing.T) {
	t.Parallel()

	opts := (*Options)(nil).withDefaults()
	if opts.Addr != ":9593" || opts.RESTPath != "/rest" || opts.StreamablePath != "/mcp" ||
		opts.SSEPath != "/sse" || opts.MessagesPath != "/messages" || opts.Kind != TransportStdio {
		t.Fatalf("unexpected defaults: %+v", opts)
	}
	if opts.Implementation.Name != ServerName || opts.Implementation.Version != ServerVersion {
		t.Fatalf("unexpected implementation: %+v", opts.Implementation)
	}
}
