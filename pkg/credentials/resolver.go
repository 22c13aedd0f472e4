package credentials

import (
	"context"
	"log/slog"
	"strings"

	"github.com/302ai/302-custom-mcp/pkg/rpcerror"
)

// Settings configure the default precedence chains built by NewResolver.
type Settings struct {
	// APIKey is the global startup parameter. Ignored while it equals
	// PlaceholderAPIKey.
	APIKey string
	// Language is the global startup parameter. Ignored while it equals
	// PlaceholderLanguage.
	Language string
	// LookupEnv reads environment variables. Defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
	// Logger receives debug records naming the winning source.
	Logger *slog.Logger
}

// Resolver picks the effective API key and language for a request by walking
// ordered Source lists; the first source yielding a value wins.
type Resolver struct {
	keySources      []Source
	languageSources []Source
	store           *Store
	logger          *slog.Logger
}

// NewResolver builds the standard chains:
//
//	key:      authInfo, global param, request _meta, session store, environment
//	language: authInfo, global param, request _meta, environment
func NewResolver(store *Store, settings Settings) *Resolver {
	if store == nil {
		store = NewStore()
	}
	keys := []Source{
		AuthInfo(APIKeyField),
		GlobalParam("302ai_api_key", settings.APIKey, PlaceholderAPIKey),
		RequestMeta(APIKeyField),
		SessionKey(store),
		Env(APIKeyField, settings.LookupEnv),
	}
	languages := []Source{
		AuthInfo(LanguageField),
		GlobalParam("language", settings.Language, PlaceholderLanguage),
		RequestMeta(LanguageField),
		Env(LanguageField, settings.LookupEnv),
	}
	r := NewResolverWithSources(keys, languages, settings.Logger)
	r.store = store
	return r
}

// NewResolverWithSources builds a Resolver over caller-supplied chains.
func NewResolverWithSources(keySources, languageSources []Source, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		keySources:      append([]Source(nil), keySources...),
		languageSources: append([]Source(nil), languageSources...),
		logger:          logger,
	}
}

// Store returns the session store consulted by the key chain, or nil when the
// Resolver was built from explicit sources.
func (r *Resolver) Store() *Store {
	return r.store
}

// ResolveAPIKey returns the highest-precedence API key. It fails with an
// invalid-params error when no source yields one.
func (r *Resolver) ResolveAPIKey(ctx context.Context, req *Request) (string, error) {
	if key, src, ok := first(ctx, r.keySources, req); ok {
		r.logger.Debug("api key resolved", "source", src)
		return key, nil
	}
	return "", rpcerror.APIKeyRequired()
}

// ResolveLanguage returns the highest-precedence language tag, or "" when no
// source has one.
func (r *Resolver) ResolveLanguage(ctx context.Context, req *Request) string {
	lang, _, _ := first(ctx, r.languageSources, req)
	return lang
}

func first(ctx context.Context, sources []Source, req *Request) (string, string, bool) {
	for _, src := range sources {
		if v, ok := src.TryResolve(ctx, req); ok && v != "" {
			return v, src.Name(), true
		}
	}
	return "", "", false
}

// PrimaryLanguage extracts the first language tag from an Accept-Language
// style header: "zh-CN,zh;q=0.9" yields "zh-CN".
func PrimaryLanguage(header string) string {
	tag, _, _ := strings.Cut(header, ",")
	tag, _, _ = strings.Cut(tag, ";")
	return strings.TrimSpace(tag)
}
