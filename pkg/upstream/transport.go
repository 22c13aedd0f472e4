package upstream

import "net/http"

const apiKeyHeaderName = "x-api-key"

// authDecorator stamps every outbound request with the client's credentials
// and any static headers before handing it to next.
type authDecorator struct {
	next    http.RoundTripper
	apiKey  string
	headers http.Header
}

func (d *authDecorator) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not mutate the caller's request.
	req = req.Clone(req.Context())
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	for k, values := range d.headers {
		req.Header.Del(k)
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	if d.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.apiKey)
		req.Header.Set(apiKeyHeaderName, d.apiKey)
	}
	return d.next.RoundTrip(req)
}

func decorateHTTPClient(base *http.Client, apiKey string, headers http.Header) *http.Client {
	if base == nil {
		base = http.DefaultClient
	}
	clone := *base
	clone.Transport = &authDecorator{
		next:    defaultRoundTripper(base.Transport),
		apiKey:  apiKey,
		headers: cloneHeader(headers),
	}
	return &clone
}

func cloneHeader(h http.Header) http.Header {
	if len(h) == 0 {
		return nil
	}
	clone := make(http.Header, len(h))
	for k, values := range h {
		clone[k] = append([]string(nil), values...)
	}
	return clone
}

func defaultRoundTripper(next http.RoundTripper) http.RoundTripper {
	if next != nil {
		return next
	}
	return http.DefaultTransport
}
