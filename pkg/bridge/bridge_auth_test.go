package bridge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/auth"

	"github.com/302ai/302-custom-mcp/pkg/credentials"
	"github.com/302ai/302-custom-mcp/pkg/logging"
	"github.com/302ai/302-custom-mcp/pkg/upstream"
)

func newAuthBridge(t *testing.T, kind TransportKind, opts *Options) (*Bridge, error) {
	t.Helper()
	stub := newStubUpstream(t)
	resolver := credentials.NewResolver(credentials.NewStore(), credentials.Settings{LookupEnv: noEnv, Logger: logging.Discard()})
	clients := upstream.NewCache(&upstream.Options{BaseURL: stub.URL, HTTPClient: stub.Client()})
	opts.Kind = kind
	opts.Logger = logging.Discard()
	return New(resolver, clients, opts)
}

func TestBridgeHandlerConditionalBearerToken(t *testing.T) {
	t.Parallel()

	const resourceMetadataURL = "https://example-server.modelcontextprotocol.io/.well-known/oauth-protected-resource"

	var verifierCalls atomic.Int32
	b, err := newAuthBridge(t, TransportStreamableHTTP, &Options{
		TokenVerifier: func(ctx context.Context, token string, req *http.Request) (*auth.TokenInfo, error) {
			if token != "valid" {
				return nil, auth.ErrInvalidToken
			}
			verifierCalls.Add(1)
			return &auth.TokenInfo{
				Expiration: time.Now().Add(time.Minute),
			}, nil
		},
		TokenOptions: &auth.RequireBearerTokenOptions{
			ResourceMetadataURL: resourceMetadataURL,
		},
	})
	if err != nil {
		t.Fatalf("New with auth: %v", err)
	}

	server := httptest.NewServer(b.Handler())
	t.Cleanup(server.Close)

	endpoint := server.URL + "/mcp"
	client := server.Client()

	post := func(token string) *http.Response {
		t.Helper()
		req, err := http.NewRequest(http.MethodPost, endpoint, strings.NewReader("{}"))
		if err != nil {
			t.Fatalf("new request: %v", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		resp.Body.Close()
		return resp
	}

	resp := post("invalid")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	wantHeader := "Bearer resource_metadata=" + resourceMetadataURL
	if got := resp.Header.Get("WWW-Authenticate"); got != wantHeader {
		t.Fatalf("unexpected WWW-Authenticate header: got %q want %q", got, wantHeader)
	}

	resp = post("valid")
	if resp.StatusCode == http.StatusUnauthorized {
		t.Fatalf("expected request with token to reach handler, got 401")
	}
	if n := verifierCalls.Load(); n != 1 {
		t.Fatalf("expected verifier to be called once, got %d", n)
	}

	// No Authorization header at all: the request skips verification and
	// reaches the session handler, which rejects the non-initialize body.
	resp = post("")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 from the session handler, got %d", resp.StatusCode)
	}
	if n := verifierCalls.Load(); n != 1 {
		t.Fatalf("verifier ran for a request without a token")
	}
}

func TestBridgeDefaultVerifierAcceptsAnyToken(t *testing.T) {
	t.Parallel()

	b, err := newAuthBridge(t, TransportREST, &Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	server := httptest.NewServer(b.Handler())
	t.Cleanup(server.Close)

	req, _ := http.NewRequest(http.MethodPost, server.URL+"/rest", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	req.Header.Set("Authorization", "Bearer anything")
	resp, err := server.Client().Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		t.Fatalf("default verifier rejected a token")
	}
}

func TestBridgeAuthOptionsRequireVerifier(t *testing.T) {
	t.Parallel()

	_, err := newAuthBridge(t, TransportREST, &Options{
		TokenOptions: &auth.RequireBearerTokenOptions{Scopes: []string{"required"}},
	})
	if err == nil {
		t.Fatalf("expected error when TokenOptions provided without TokenVerifier")
	}
}

func TestBridgeRejectsUnknownKind(t *testing.T) {
	t.Parallel()

	if _, err := newAuthBridge(t, TransportKind("carrier-pigeon"), &Options{}); err == nil {
		t.Fatalf("expected error for unknown transport kind")
	}
}

func TestAPIKeyVerifier(t *testing.T) {
	t.Parallel()

	info, err := apiKeyVerifier(context.Background(), "K", nil)
	if err != nil {
		t.Fatalf("apiKeyVerifier: %v", err)
	}
	if info.Extra[credentials.APIKeyField] != "K" || !info.Expiration.After(time.Now()) {
		t.Fatalf("unexpected token info: %+v", info)
	}
	if _, err := apiKeyVerifier(context.Background(), " ", nil); err != auth.ErrInvalidToken {
		t.Fatalf("blank token error = %v, want ErrInvalidToken", err)
	}
}
