// FILE: loglayer/src/internal/extra/recent.go
package extra

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"loglayer/src/internal/core"
	"loglayer/src/internal/filter"
	"loglayer/src/internal/layer"
)

// Entry is one record kept by the recent-records ring
type Entry struct {
	Timestamp  time.Time      `json:"timestamp"`
	Level      string         `json:"level"`
	Module     string         `json:"module,omitempty"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// RingBuffer is a thread-safe circular buffer of entries
type RingBuffer struct {
	mu      sync.RWMutex
	entries []Entry
	head    int
	count   int
}

// NewRingBuffer creates a ring holding at most size entries
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = core.DefaultRecentCapacity
	}
	return &RingBuffer{entries: make([]Entry, size)}
}

// Write adds entry, overwriting the oldest when full
func (rb *RingBuffer) Write(entry Entry) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.entries[rb.head] = entry
	rb.head = (rb.head + 1) % len(rb.entries)
	if rb.count < len(rb.entries) {
		rb.count++
	}
}

// ReadAll returns entries oldest first
func (rb *RingBuffer) ReadAll() []Entry {
	return rb.Tail(0)
}

// Tail returns the newest n entries oldest first; n <= 0 means all
func (rb *RingBuffer) Tail(n int) []Entry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if n <= 0 || n > rb.count {
		n = rb.count
	}
	result := make([]Entry, n)

	start := (rb.head - n + len(rb.entries)) % len(rb.entries)
	for i := 0; i < n; i++ {
		result[i] = rb.entries[(start+i)%len(rb.entries)]
	}
	return result
}

// Count returns the number of stored entries
func (rb *RingBuffer) Count() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}

// RecentHandler is a slog.Handler storing records in a ring buffer
type RecentHandler struct {
	buffer *RingBuffer
	preset map[string]any // attributes flattened by WithAttrs
	module string
	groups []string
}

// NewRecentHandler creates a handler over buffer
func NewRecentHandler(buffer *RingBuffer) *RecentHandler {
	return &RecentHandler{buffer: buffer}
}

func (h *RecentHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

func (h *RecentHandler) Handle(_ context.Context, r slog.Record) error {
	attrs := make(map[string]any, len(h.preset))
	for k, v := range h.preset {
		attrs[k] = v
	}

	module := h.module
	r.Attrs(func(a slog.Attr) bool {
		if len(h.groups) == 0 && a.Key == core.ModuleKey {
			module = a.Value.String()
		} else {
			flattenAttr(attrs, h.groups, a)
		}
		return true
	})

	entry := Entry{
		Timestamp: r.Time,
		Level:     filter.LevelName(r.Level),
		Module:    module,
		Message:   r.Message,
	}
	if len(attrs) > 0 {
		entry.Attributes = attrs
	}
	h.buffer.Write(entry)
	return nil
}

func (h *RecentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	preset := make(map[string]any, len(h.preset)+len(attrs))
	for k, v := range h.preset {
		preset[k] = v
	}

	module := h.module
	for _, a := range attrs {
		if len(h.groups) == 0 && a.Key == core.ModuleKey {
			module = a.Value.String()
		} else {
			flattenAttr(preset, h.groups, a)
		}
	}

	return &RecentHandler{
		buffer: h.buffer,
		preset: preset,
		module: module,
		groups: h.groups,
	}
}

func (h *RecentHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &RecentHandler{
		buffer: h.buffer,
		preset: h.preset,
		module: h.module,
		groups: append(slices.Clip(h.groups), name),
	}
}

// Recent returns a builder for the recent-records layer over buffer
func Recent(buffer *RingBuffer, spec filter.Spec) layer.Builder {
	return func() (layer.Layer, error) {
		return layer.New(core.LayerRecent, NewRecentHandler(buffer), spec, layer.WithSpanEvents(layer.SpanFull)), nil
	}
}

// flattenAttr stores a into attrs with dot-joined group keys
func flattenAttr(attrs map[string]any, groups []string, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}

	key := a.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + key
	}

	value := a.Value.Resolve()
	switch value.Kind() {
	case slog.KindGroup:
		nested := append(slices.Clone(groups), a.Key)
		for _, ga := range value.Group() {
			flattenAttr(attrs, nested, ga)
		}
	case slog.KindTime:
		attrs[key] = value.Time().Format(time.RFC3339Nano)
	case slog.KindDuration:
		attrs[key] = value.Duration().String()
	case slog.KindAny:
		if err, ok := value.Any().(error); ok {
			attrs[key] = err.Error()
		} else {
			attrs[key] = value.Any()
		}
	default:
		attrs[key] = value.Any()
	}
}
