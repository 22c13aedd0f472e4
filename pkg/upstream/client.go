package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/302ai/302-custom-mcp/pkg/rpcerror"
)

// DefaultBaseURL is the production endpoint of the 302.AI tool API.
const DefaultBaseURL = "https://api.302.ai/mcp"

const (
	listToolsPath   = "/list-tools/custom"
	callToolPath    = "/call-tool/"
	maxErrorBodyLen = 4 << 10
)

// Options configure how Clients reach the upstream API.
type Options struct {
	// BaseURL overrides DefaultBaseURL.
	BaseURL string
	// HTTPClient is the base client; its Transport is wrapped with the
	// credential headers. Defaults to http.DefaultClient.
	HTTPClient *http.Client
	// Timeout bounds each round trip when HTTPClient has no timeout of its own.
	Timeout time.Duration
	// UserAgent is sent on every request when non-empty.
	UserAgent string
	// Logger receives debug records for each round trip.
	Logger *slog.Logger
}

func (o *Options) withDefaults() Options {
	if o == nil {
		o = &Options{}
	}
	opts := *o
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return opts
}

// Client talks to the upstream API on behalf of one API key.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient builds a Client bound to apiKey.
func NewClient(apiKey string, opts *Options) *Client {
	options := opts.withDefaults()
	var headers http.Header
	if options.UserAgent != "" {
		headers = http.Header{"User-Agent": []string{options.UserAgent}}
	}
	httpClient := decorateHTTPClient(options.HTTPClient, apiKey, headers)
	if httpClient.Timeout == 0 && options.Timeout > 0 {
		httpClient.Timeout = options.Timeout
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: options.BaseURL,
		http:    httpClient,
		logger:  options.Logger,
	}
}

// APIKey returns the key this client authenticates with.
func (c *Client) APIKey() string { return c.apiKey }

// BaseURL returns the upstream base URL.
func (c *Client) BaseURL() string { return c.baseURL }

type listToolsResponse struct {
	Tools []json.RawMessage `json:"tools"`
}

// toolFields are the tool keys mcp.Tool decodes itself.
var toolFields = map[string]bool{
	"_meta":        true,
	"annotations":  true,
	"description":  true,
	"icons":        true,
	"inputSchema":  true,
	"name":         true,
	"outputSchema": true,
	"title":        true,
}

// decodeTool decodes one upstream tool. Keys mcp.Tool has no field for are
// kept under _meta (existing _meta entries win), and a missing input schema
// becomes the empty object schema clients require.
func decodeTool(raw json.RawMessage) (*mcp.Tool, error) {
	var tool mcp.Tool
	if err := json.Unmarshal(raw, &tool); err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	for key, value := range fields {
		if toolFields[key] {
			continue
		}
		if _, taken := tool.Meta[key]; taken {
			continue
		}
		var v any
		if err := json.Unmarshal(value, &v); err != nil {
			return nil, err
		}
		if tool.Meta == nil {
			tool.Meta = mcp.Meta{}
		}
		tool.Meta[key] = v
	}
	if tool.InputSchema == nil {
		tool.InputSchema = map[string]any{"type": "object"}
	}
	return &tool, nil
}

// ListTools fetches the tool catalogue. An empty language omits the lang
// query parameter.
func (c *Client) ListTools(ctx context.Context, language string) ([]*mcp.Tool, error) {
	u, err := url.Parse(c.baseURL + listToolsPath)
	if err != nil {
		return nil, rpcerror.Upstream(fmt.Errorf("parse base url: %w", err))
	}
	if language != "" {
		q := u.Query()
		q.Set("lang", language)
		u.RawQuery = q.Encode()
	}
	body, err := c.do(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	var decoded listToolsResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, rpcerror.Upstream(fmt.Errorf("decode tool list: %w", err))
	}
	tools := make([]*mcp.Tool, 0, len(decoded.Tools))
	for i, raw := range decoded.Tools {
		tool, err := decodeTool(raw)
		if err != nil {
			return nil, rpcerror.Upstream(fmt.Errorf("decode tool %d: %w", i, err))
		}
		tools = append(tools, tool)
	}
	return tools, nil
}

type callToolRequest struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// CallTool invokes name with the raw JSON arguments and returns the decoded
// upstream body unchanged.
func (c *Client) CallTool(ctx context.Context, name string, arguments json.RawMessage) (json.RawMessage, error) {
	if len(bytes.TrimSpace(arguments)) == 0 {
		arguments = json.RawMessage("{}")
	}
	payload, err := json.Marshal(callToolRequest{Name: name, Arguments: arguments})
	if err != nil {
		return nil, rpcerror.Upstream(fmt.Errorf("encode arguments: %w", err))
	}
	body, err := c.do(ctx, http.MethodPost, c.baseURL+callToolPath+url.PathEscape(name), payload)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, rpcerror.Upstream(fmt.Errorf("call tool %q: response is not JSON", name))
	}
	return json.RawMessage(body), nil
}

func (c *Client) do(ctx context.Context, method, target string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, rpcerror.Upstream(err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, rpcerror.Upstream(err)
	}
	defer resp.Body.Close()
	c.logger.Debug("upstream round trip", "method", method, "url", target, "status", resp.StatusCode, "duration", time.Since(started))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{
			Method:     method,
			URL:        target,
			StatusCode: resp.StatusCode,
			Status:     http.StatusText(resp.StatusCode),
		}
		// A body read failure leaves Body empty; the status still surfaces.
		if text, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen)); readErr == nil {
			statusErr.Body = strings.TrimSpace(string(text))
		}
		return nil, rpcerror.Upstream(statusErr)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, rpcerror.Upstream(fmt.Errorf("read response: %w", err))
	}
	return body, nil
}
