// Package logging builds the application's slog.Logger.
//
// Every record goes to stdout (text or JSON). Records at Error and above are
// also reported to Sentry when a Sentry client is configured. The fan-out is
// a MultiHandler, so callers only ever see a single *slog.Logger.
package logging

import (
	"io"
	"log/slog"
	"strings"

	"github.com/sakif/media-backend/internal/config"
)

// New returns a logger writing to w at the configured level and format.
func New(cfg config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	var base slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		base = slog.NewJSONHandler(w, opts)
	} else {
		base = slog.NewTextHandler(w, opts)
	}

	return slog.New(NewMultiHandler(base, NewSentryHandler(slog.LevelError)))
}

// ParseLevel maps "debug", "info", "warn" and "error" to slog levels.
// Anything else is Info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
