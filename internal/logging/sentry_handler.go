package logging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/getsentry/sentry-go"
)

// SentryHandler reports log records at or above a level to Sentry.
//
// The hub is taken from the record's context first: sentryhttp stores a
// per-request hub there, so events carry the request's URL, headers and
// scope. Without one, the global hub is used. When no Sentry client is
// configured (SENTRY_DSN unset) Handle is a no-op.
//
// An attribute holding an error value becomes the event's exception; all
// other attributes go into Extra.
type SentryHandler struct {
	level  slog.Level
	attrs  []slog.Attr
	prefix string // dotted group path for attribute keys
}

func NewSentryHandler(level slog.Level) *SentryHandler {
	return &SentryHandler{level: level}
}

func (h *SentryHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *SentryHandler) Handle(ctx context.Context, r slog.Record) error {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	if hub.Client() == nil {
		return nil
	}

	event := sentry.NewEvent()
	event.Level = sentry.LevelError
	if r.Level > slog.LevelError {
		event.Level = sentry.LevelFatal
	}
	event.Message = r.Message
	event.Logger = "slog"
	if !r.Time.IsZero() {
		event.Timestamp = r.Time
	}

	add := func(key string, a slog.Attr) {
		v := a.Value.Resolve()
		if err, ok := v.Any().(error); ok && len(event.Exception) == 0 {
			event.Exception = []sentry.Exception{{
				Type:  fmt.Sprintf("%T", err),
				Value: err.Error(),
			}}
		}
		event.Extra[key] = v.String()
	}

	for _, a := range h.attrs {
		add(a.Key, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		add(h.prefix+a.Key, a)
		return true
	})

	hub.CaptureEvent(event)
	return nil
}

func (h *SentryHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	for _, a := range attrs {
		a.Key = h.prefix + a.Key
		next.attrs = append(next.attrs, a)
	}
	return &next
}

func (h *SentryHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}
