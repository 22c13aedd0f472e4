package credentials

import (
	"context"
	"os"
	"strings"
)

// Field names shared by every credential channel.
const (
	APIKeyField   = "302AI_API_KEY"
	LanguageField = "LANGUAGE"

	// MetaAuthKey is the request _meta entry holding protocol-native auth claims.
	MetaAuthKey = "auth"
)

// Placeholder values that mean a global parameter was left unset.
const (
	PlaceholderAPIKey   = "YOUR_API_KEY_HERE"
	PlaceholderLanguage = "YOUR_LANGUAGE_HERE"
)

// Request carries the per-call inputs a Source may inspect.
type Request struct {
	// AuthInfo holds claims attached out of band by the transport, such as a
	// verified bearer token or headers stamped onto an SSE message.
	AuthInfo map[string]any
	// Meta is the protocol request's _meta block.
	Meta map[string]any
	// SessionID identifies the transport session, if the transport has one.
	SessionID string
}

// Source is one step of a precedence chain.
type Source interface {
	// Name identifies the source in logs.
	Name() string
	// TryResolve returns a non-empty value and true when the source applies.
	TryResolve(ctx context.Context, req *Request) (string, bool)
}

// AuthInfo reads field from the request's out-of-band auth claims.
func AuthInfo(field string) Source { return authInfoSource{field: field} }

type authInfoSource struct{ field string }

func (s authInfoSource) Name() string { return "authInfo." + s.field }

func (s authInfoSource) TryResolve(_ context.Context, req *Request) (string, bool) {
	if req == nil {
		return "", false
	}
	return stringValue(req.AuthInfo[s.field])
}

// GlobalParam yields value unless it is empty or still equal to placeholder.
func GlobalParam(name, value, placeholder string) Source {
	return globalParamSource{name: name, value: value, placeholder: placeholder}
}

type globalParamSource struct {
	name        string
	value       string
	placeholder string
}

func (s globalParamSource) Name() string { return "param." + s.name }

func (s globalParamSource) TryResolve(context.Context, *Request) (string, bool) {
	v := strings.TrimSpace(s.value)
	if v == "" || v == s.placeholder {
		return "", false
	}
	return v, true
}

// RequestMeta reads field from the auth block of the request's _meta.
func RequestMeta(field string) Source { return metaSource{field: field} }

type metaSource struct{ field string }

func (s metaSource) Name() string { return "_meta.auth." + s.field }

func (s metaSource) TryResolve(_ context.Context, req *Request) (string, bool) {
	if req == nil || req.Meta == nil {
		return "", false
	}
	claims, ok := req.Meta[MetaAuthKey].(map[string]any)
	if !ok {
		return "", false
	}
	return stringValue(claims[s.field])
}

// SessionKey looks the request's session up in store.
func SessionKey(store *Store) Source { return sessionSource{store: store} }

type sessionSource struct{ store *Store }

func (sessionSource) Name() string { return "session" }

func (s sessionSource) TryResolve(_ context.Context, req *Request) (string, bool) {
	if s.store == nil || req == nil {
		return "", false
	}
	key, ok := s.store.Get(req.SessionID)
	return key, ok && key != ""
}

// Env reads the named environment variable through lookup. A nil lookup uses
// os.LookupEnv.
func Env(name string, lookup func(string) (string, bool)) Source {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return envSource{name: name, lookup: lookup}
}

type envSource struct {
	name   string
	lookup func(string) (string, bool)
}

func (s envSource) Name() string { return "env." + s.name }

func (s envSource) TryResolve(context.Context, *Request) (string, bool) {
	v, ok := s.lookup(s.name)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func stringValue(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}
