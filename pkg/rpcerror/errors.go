package rpcerror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// JSON-RPC error codes surfaced by the bridge.
const (
	CodeMalformedSession int64 = -32000
	CodeInvalidParams    int64 = jsonrpc.CodeInvalidParams
	CodeInternalError    int64 = jsonrpc.CodeInternalError
)

// Error is a protocol-shaped failure carrying a JSON-RPC error code.
// It supports wrapping so callers can still reach the underlying cause.
type Error struct {
	wrapped error
	Code    int64
	Message string
}

// Error returns the message prefixed by the code's category.
func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", category(e.Code), e.Message, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", category(e.Code), e.Message)
}

// Unwrap returns the wrapped error, supporting errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.wrapped
}

// As lets errors.As convert e into the SDK's wire error, which is how the
// code reaches JSON-RPC responses.
func (e *Error) As(target any) bool {
	wire, ok := target.(**jsonrpc.Error)
	if !ok {
		return false
	}
	*wire = e.Wire()
	return true
}

// Wire returns e as a JSON-RPC error object.
func (e *Error) Wire() *jsonrpc.Error {
	return &jsonrpc.Error{Code: e.Code, Message: e.Error()}
}

// New creates an Error with the given code and message.
func New(code int64, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an Error that wraps an underlying cause.
func Wrap(code int64, message string, err error) *Error {
	return &Error{Code: code, Message: message, wrapped: err}
}

// CodeOf extracts the JSON-RPC code from err. It returns 0 when err does not
// carry an *Error.
func CodeOf(err error) int64 {
	if err == nil {
		return 0
	}
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr.Code
	}
	return 0
}

// Is reports whether err carries the given code.
func Is(err error, code int64) bool {
	return err != nil && CodeOf(err) == code
}

// APIKeyRequired is returned when no credential source yields an API key.
func APIKeyRequired() *Error {
	return New(CodeInvalidParams, "API key is required to call the tool")
}

// Upstream wraps a failed round trip to the upstream API.
func Upstream(err error) *Error {
	return Wrap(CodeInternalError, "upstream request failed", err)
}

// MalformedSession is returned for HTTP requests that reference no usable
// session.
func MalformedSession(message string) *Error {
	if message == "" {
		message = "Bad Request: No valid session ID provided"
	}
	return New(CodeMalformedSession, message)
}

func category(code int64) string {
	switch code {
	case CodeInvalidParams:
		return "invalid params"
	case CodeInternalError:
		return "internal error"
	case CodeMalformedSession:
		return "bad request"
	default:
		return fmt.Sprintf("error %d", code)
	}
}

type envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	Error   envelopeError   `json:"error"`
	ID      json.RawMessage `json:"id"`
}

type envelopeError struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
}

// WriteHTTP writes err as a JSON-RPC error response with the given HTTP status.
// Errors that are not *Error are reported as internal errors.
func WriteHTTP(w http.ResponseWriter, status int, err error) {
	body := envelope{JSONRPC: "2.0", ID: json.RawMessage("null")}
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		body.Error = envelopeError{Code: rpcErr.Code, Message: rpcErr.Message}
	} else {
		msg := "Internal server error"
		if err != nil {
			msg = err.Error()
		}
		body.Error = envelopeError{Code: CodeInternalError, Message: msg}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
