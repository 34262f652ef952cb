// FILE: loglayer/src/internal/layer/pipeline.go
package layer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"loglayer/src/internal/core"

	"github.com/lixenwraith/log"
)

// Pipeline fans every record out to all of its layers
type Pipeline struct {
	layers    []Layer
	byName    map[string]Layer
	observers []ReloadObserver
	handler   *pipelineHandler
	logger    *log.Logger

	closed    atomic.Bool
	closeOnce sync.Once
}

// Handler returns the pipeline as a slog handler
func (p *Pipeline) Handler() slog.Handler {
	return p.handler
}

// Logger returns a slog logger over the pipeline
func (p *Pipeline) Logger() *slog.Logger {
	return slog.New(p.handler)
}

// Layers returns layer names in registration order
func (p *Pipeline) Layers() []string {
	names := make([]string, len(p.layers))
	for i, l := range p.layers {
		names[i] = l.Name()
	}
	return names
}

// Layer looks up a layer by name
func (p *Pipeline) Layer(name string) (Layer, bool) {
	l, ok := p.byName[name]
	return l, ok
}

// Handle returns a reload handle for the named layer
func (p *Pipeline) Handle(name string) (*ReloadHandle, error) {
	l, ok := p.byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown layer: %s", name)
	}

	reloadable, ok := l.(interface{ Reloader() Reloader })
	if !ok {
		return nil, fmt.Errorf("layer %s is not reloadable", name)
	}
	return NewReloadHandle(reloadable.Reloader(), p.observers...), nil
}

// Stats returns per-layer statistics in registration order
func (p *Pipeline) Stats() []Stats {
	stats := make([]Stats, len(p.layers))
	for i, l := range p.layers {
		stats[i] = l.Stats()
	}
	return stats
}

// Close tears down every layer. Handles report ErrLayerGone afterwards.
func (p *Pipeline) Close() {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		for _, l := range p.layers {
			l.Close()
		}
		p.logger.Info("msg", "Logging pipeline closed",
			"component", "pipeline",
			"layers", p.Layers())
	})
}

// pipelineHandler is the slog face of a pipeline.
// The module of a record is taken from the "module" attribute, with
// record attributes overriding those added through WithAttrs.
type pipelineHandler struct {
	pipeline *Pipeline
	layers   []Layer
	module   string
	depth    int // open groups
}

func (h *pipelineHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.pipeline.closed.Load() {
		return false
	}
	for _, l := range h.layers {
		if l.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *pipelineHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.pipeline.closed.Load() {
		return nil
	}

	m := Meta{Module: h.module}
	r.Attrs(func(a slog.Attr) bool {
		switch a.Key {
		case core.ModuleKey:
			if h.depth == 0 {
				m.Module = a.Value.Resolve().String()
			}
		case SpanEventKey:
			m.Span = spanEventFromValue(a.Value)
		}
		return true
	})

	var errs []error
	for _, l := range h.layers {
		if !l.Enabled(ctx, r.Level) {
			continue
		}
		if err := l.Handle(ctx, m, r.Clone()); err != nil {
			errs = append(errs, fmt.Errorf("layer %s: %w", l.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (h *pipelineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}

	module := h.module
	if h.depth == 0 {
		for _, a := range attrs {
			if a.Key == core.ModuleKey {
				module = a.Value.Resolve().String()
			}
		}
	}

	layers := make([]Layer, len(h.layers))
	for i, l := range h.layers {
		layers[i] = l.WithAttrs(attrs)
	}
	return &pipelineHandler{pipeline: h.pipeline, layers: layers, module: module, depth: h.depth}
}

func (h *pipelineHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}

	layers := make([]Layer, len(h.layers))
	for i, l := range h.layers {
		layers[i] = l.WithGroup(name)
	}
	return &pipelineHandler{pipeline: h.pipeline, layers: layers, module: h.module, depth: h.depth + 1}
}
