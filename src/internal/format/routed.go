// FILE: loglayer/src/internal/format/routed.go
package format

import (
	"context"
	"io"
	"log/slog"
)

// RoutedHandler sends records at or above a threshold to one handler
// and the rest to another
type RoutedHandler struct {
	low       slog.Handler
	high      slog.Handler
	threshold slog.Level
}

// NewRoutedHandler renders records in the named format to low or high by level.
// When low and high are the same writer a single handler is returned.
func NewRoutedHandler(name string, low, high io.Writer, threshold slog.Level, opts Options) (slog.Handler, error) {
	lowHandler, err := NewHandler(name, low, opts)
	if err != nil {
		return nil, err
	}
	if low == high {
		return lowHandler, nil
	}

	highHandler, err := NewHandler(name, high, opts)
	if err != nil {
		return nil, err
	}

	return &RoutedHandler{
		low:       lowHandler,
		high:      highHandler,
		threshold: threshold,
	}, nil
}

func (h *RoutedHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if level >= h.threshold {
		return h.high.Enabled(ctx, level)
	}
	return h.low.Enabled(ctx, level)
}

func (h *RoutedHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= h.threshold {
		return h.high.Handle(ctx, r)
	}
	return h.low.Handle(ctx, r)
}

func (h *RoutedHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &RoutedHandler{
		low:       h.low.WithAttrs(attrs),
		high:      h.high.WithAttrs(attrs),
		threshold: h.threshold,
	}
}

func (h *RoutedHandler) WithGroup(name string) slog.Handler {
	return &RoutedHandler{
		low:       h.low.WithGroup(name),
		high:      h.high.WithGroup(name),
		threshold: h.threshold,
	}
}
