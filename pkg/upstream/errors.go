package upstream

import (
	"fmt"
	"strings"
)

// StatusError reports a non-2xx answer from the upstream API.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	// Status is the reason phrase, e.g. "Unauthorized".
	Status string
	// Body is the response text, best effort; empty if it could not be read.
	Body string
}

func (e *StatusError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %d", e.Method, e.URL, e.StatusCode)
	if e.Status != "" {
		b.WriteString(" " + e.Status)
	}
	if e.Body != "" {
		b.WriteString(": " + e.Body)
	}
	return b.String()
}
