// FILE: loglayer/src/internal/layer/layer.go
package layer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"loglayer/src/internal/filter"
)

// Meta carries what the pipeline extracted from a record for filtering
type Meta struct {
	Module string
	Span   SpanEvents // zero for ordinary records
}

// Layer is one independently filtered output of the pipeline
type Layer interface {
	// Name identifies the layer within its pipeline
	Name() string
	// Enabled is a cheap pre-check that may accept records Handle later rejects
	Enabled(ctx context.Context, level slog.Level) bool
	// Handle applies the layer filter and writes the record when it passes
	Handle(ctx context.Context, m Meta, r slog.Record) error
	WithAttrs(attrs []slog.Attr) Layer
	WithGroup(name string) Layer
	Stats() Stats
	// Close tears the layer down. Records are discarded afterwards.
	Close()
}

// Stats reports per-layer filter outcomes
type Stats struct {
	Name       string   `json:"name"`
	Filter     string   `json:"filter"`
	Ignored    []string `json:"ignored,omitempty"`
	SpanEvents string   `json:"span_events"`
	Accepted   uint64   `json:"accepted"`
	Rejected   uint64   `json:"rejected"`
	Gone       bool     `json:"gone"`
}

// slot is the filter state shared by a layer and everything derived from it.
// mu orders reloads against teardown; the record path reads atomics only.
type slot struct {
	name     string
	mu       sync.Mutex
	spec     atomic.Pointer[filter.Spec]
	gone     atomic.Bool
	spans    SpanEvents
	accepted atomic.Uint64
	rejected atomic.Uint64
}

// Filtered wraps a handler of concrete type H behind a swappable filter.
// Values derived with WithAttrs or WithGroup share the filter of their origin.
type Filtered[H slog.Handler] struct {
	inner   H
	handler slog.Handler
	slot    *slot
}

// FilteredOption configures a Filtered layer
type FilteredOption func(*slot)

// WithSpanEvents selects which span lifecycle records reach the layer
func WithSpanEvents(events SpanEvents) FilteredOption {
	return func(s *slot) {
		s.spans = events
	}
}

// New creates a filtered layer named name over h
func New[H slog.Handler](name string, h H, spec filter.Spec, opts ...FilteredOption) *Filtered[H] {
	s := &slot{name: name}
	for _, opt := range opts {
		opt(s)
	}
	s.spec.Store(&spec)

	return &Filtered[H]{
		inner:   h,
		handler: h,
		slot:    s,
	}
}

func (l *Filtered[H]) Name() string {
	return l.slot.name
}

// Inner returns the handler the layer was built over
func (l *Filtered[H]) Inner() H {
	return l.inner
}

func (l *Filtered[H]) Enabled(_ context.Context, level slog.Level) bool {
	if l.slot.gone.Load() {
		return false
	}
	return level >= l.slot.spec.Load().MaxLevel()
}

func (l *Filtered[H]) Handle(ctx context.Context, m Meta, r slog.Record) error {
	if l.slot.gone.Load() {
		return nil
	}

	if m.Span != 0 && l.slot.spans&m.Span == 0 {
		l.slot.rejected.Add(1)
		return nil
	}

	spec := l.slot.spec.Load()
	if !spec.Enabled(m.Module, r.Level) || !spec.Matches(r.Message) {
		l.slot.rejected.Add(1)
		return nil
	}

	l.slot.accepted.Add(1)
	return l.handler.Handle(ctx, r)
}

func (l *Filtered[H]) WithAttrs(attrs []slog.Attr) Layer {
	return &Filtered[H]{
		inner:   l.inner,
		handler: l.handler.WithAttrs(attrs),
		slot:    l.slot,
	}
}

func (l *Filtered[H]) WithGroup(name string) Layer {
	return &Filtered[H]{
		inner:   l.inner,
		handler: l.handler.WithGroup(name),
		slot:    l.slot,
	}
}

func (l *Filtered[H]) Stats() Stats {
	spec := l.slot.spec.Load()
	return Stats{
		Name:       l.slot.name,
		Filter:     spec.String(),
		Ignored:    spec.Ignored(),
		SpanEvents: l.slot.spans.String(),
		Accepted:   l.slot.accepted.Load(),
		Rejected:   l.slot.rejected.Load(),
		Gone:       l.slot.gone.Load(),
	}
}

func (l *Filtered[H]) Close() {
	l.slot.mu.Lock()
	defer l.slot.mu.Unlock()
	l.slot.gone.Store(true)
}

// Reloader exposes the layer filter without its handler type
func (l *Filtered[H]) Reloader() Reloader {
	return slotReloader{slot: l.slot}
}

// slotReloader adapts a filter slot to the Reloader interface
type slotReloader struct {
	slot *slot
}

func (r slotReloader) Layer() string {
	return r.slot.name
}

func (r slotReloader) Current() filter.Spec {
	return *r.slot.spec.Load()
}

func (r slotReloader) Reload(spec filter.Spec) error {
	r.slot.mu.Lock()
	defer r.slot.mu.Unlock()
	if r.slot.gone.Load() {
		return ErrLayerGone
	}
	r.slot.spec.Store(&spec)
	return nil
}
