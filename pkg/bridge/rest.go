package bridge

import (
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// restTransport answers each POST independently: no sessions, JSON replies.
type restTransport struct {
	bridge  *Bridge
	path    string
	handler http.Handler
}

func newRESTTransport(b *Bridge) *restTransport {
	return &restTransport{
		bridge: b,
		path:   b.opts.RESTPath,
		handler: mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
			return b.server
		}, &mcp.StreamableHTTPOptions{Stateless: true, JSONResponse: true}),
	}
}

func (t *restTransport) Kind() TransportKind { return TransportREST }

func (t *restTransport) mount(mux *http.ServeMux) {
	mountPath(mux, t.path, t.bridge.withBearer(t))
}

func (t *restTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		// Plain REST clients only ask for JSON; the streamable handler wants
		// both media types listed.
		accept := r.Header.Get("Accept")
		if !strings.Contains(accept, "application/json") || !strings.Contains(accept, "text/event-stream") {
			r.Header.Set("Accept", "application/json, text/event-stream")
		}
		if r.Header.Get("Content-Type") == "" {
			r.Header.Set("Content-Type", "application/json")
		}
	}
	t.handler.ServeHTTP(w, r)
}

func (t *restTransport) closeAll() {}
