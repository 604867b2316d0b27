package logger

import (
	"context"
	"log/slog"
)

// SyslogWriter is the subset of *syslog.Writer the handler needs.
type SyslogWriter interface {
	Debug(m string) error
	Info(m string) error
	Notice(m string) error
	Warning(m string) error
	Err(m string) error
	Close() error
}

// SyslogHandler implements slog.Handler on top of a syslog connection.
// Timestamps and levels are left to syslog; the record level selects the
// syslog priority.
type SyslogHandler struct {
	text *ColorTextHandler
	w    SyslogWriter
}

// NewSyslogHandler creates a new SyslogHandler
func NewSyslogHandler(w SyslogWriter, opts *slog.HandlerOptions) *SyslogHandler {
	return &SyslogHandler{
		text: NewColorTextHandler(nil, opts, false),
		w:    w,
	}
}

// Enabled reports whether the handler handles records at the given level
func (h *SyslogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.text.Enabled(ctx, level)
}

// Handle formats the record as "message key=value ..." and sends it
func (h *SyslogHandler) Handle(_ context.Context, r slog.Record) error {
	buf := []byte(r.Message)
	for _, attr := range h.text.attrs {
		buf = h.text.appendQualified(buf, "", attr)
	}
	r.Attrs(func(a slog.Attr) bool {
		buf = h.text.appendAttr(buf, a)
		return true
	})

	msg := string(buf)
	switch {
	case r.Level < slog.LevelInfo:
		return h.w.Debug(msg)
	case r.Level < LevelNotice:
		return h.w.Info(msg)
	case r.Level < slog.LevelWarn:
		return h.w.Notice(msg)
	case r.Level < slog.LevelError:
		return h.w.Warning(msg)
	default:
		return h.w.Err(msg)
	}
}

// WithAttrs returns a new handler with additional attrs
func (h *SyslogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &SyslogHandler{text: h.text.withAttrs(attrs), w: h.w}
}

// WithGroup returns a new handler with a group name
func (h *SyslogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &SyslogHandler{text: h.text.withGroup(name), w: h.w}
}
