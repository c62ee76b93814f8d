package logging

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
)

// SinkFunc receives one fully formatted log line at the given level.
type SinkFunc func(level slog.Level, line string)

// SinkHandler is a slog.Handler that renders each record as a single text
// line and hands it to a SinkFunc. It is used to relay log output into a
// host application's own logging facility.
type SinkHandler struct {
	mu    *sync.Mutex
	buf   *bytes.Buffer
	inner slog.Handler
	sink  SinkFunc
	level slog.Leveler
}

// NewSinkHandler creates a handler that forwards records at or above level to sink.
func NewSinkHandler(sink SinkFunc, level slog.Leveler) *SinkHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	buf := &bytes.Buffer{}
	return &SinkHandler{
		mu:    &sync.Mutex{},
		buf:   buf,
		inner: slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug, ReplaceAttr: dropTime}),
		sink:  sink,
		level: level,
	}
}

// Enabled reports whether the handler forwards records at level.
func (h *SinkHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.sink != nil && level >= h.level.Level()
}

// Handle formats the record and passes it to the sink.
func (h *SinkHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	h.buf.Reset()
	if err := h.inner.Handle(ctx, r); err != nil {
		h.mu.Unlock()
		return err
	}
	line := string(bytes.TrimRight(h.buf.Bytes(), "\n"))
	h.mu.Unlock()

	h.sink(r.Level, line)
	return nil
}

// WithAttrs returns a handler that includes attrs on every record.
func (h *SinkHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.inner = h.inner.WithAttrs(attrs)
	return &clone
}

// WithGroup returns a handler that nests subsequent attributes under name.
func (h *SinkHandler) WithGroup(name string) slog.Handler {
	clone := *h
	clone.inner = h.inner.WithGroup(name)
	return &clone
}

// The host logger stamps its own time.
func dropTime(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.TimeKey {
		return slog.Attr{}
	}
	return a
}
