// FILE: loglayer/src/internal/format/raw.go
package format

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

// RawHandler writes only the record message with a newline.
// Attributes and groups are discarded.
type RawHandler struct {
	mu *sync.Mutex
	w  io.Writer
}

// NewRawHandler creates a raw handler over w
func NewRawHandler(w io.Writer) *RawHandler {
	return &RawHandler{
		mu: &sync.Mutex{},
		w:  w,
	}
}

func (h *RawHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

// Handle writes the message as-is
func (h *RawHandler) Handle(_ context.Context, r slog.Record) error {
	buf := make([]byte, 0, len(r.Message)+1)
	buf = append(buf, r.Message...)
	buf = append(buf, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf)
	return err
}

func (h *RawHandler) WithAttrs([]slog.Attr) slog.Handler {
	return h
}

func (h *RawHandler) WithGroup(string) slog.Handler {
	return h
}
