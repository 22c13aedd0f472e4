// Package logging configures the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// SecretAttrKey is the attribute key whose values are always masked.
const SecretAttrKey = "api_key"

// Setup configures slog.Default() with the given format and level and returns
// the logger. format is "json", "text" or "auto"; auto picks text when stderr
// is a terminal. A nil w writes to stderr.
func Setup(format, level string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level:       ParseLevel(level),
		ReplaceAttr: maskSecrets,
	}

	var handler slog.Handler
	switch resolveFormat(format, w) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// ParseLevel converts a level string to slog.Level.
// Defaults to slog.LevelInfo for unrecognized values.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func resolveFormat(format string, w io.Writer) string {
	switch f := strings.ToLower(strings.TrimSpace(format)); f {
	case "json", "text":
		return f
	}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return "text"
	}
	return "json"
}

func maskSecrets(_ []string, a slog.Attr) slog.Attr {
	if a.Key == SecretAttrKey && a.Value.Kind() == slog.KindString {
		return slog.String(a.Key, MaskKey(a.Value.String()))
	}
	return a
}
