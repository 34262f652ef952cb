// FILE: loglayer/src/internal/layer/registry.go
package layer

import (
	"fmt"

	"github.com/lixenwraith/log"
)

// Builder creates an optional layer. A nil layer with a nil error
// contributes nothing to the pipeline.
type Builder func() (Layer, error)

// Registry collects layers and builds them into a Pipeline
type Registry struct {
	layers    []Layer
	builders  []Builder
	observers []ReloadObserver
	logger    *log.Logger
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithDiagnostics sets the logger the registry and its pipeline report to
func WithDiagnostics(logger *log.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithObservers attaches observers to every handle the pipeline hands out
func WithObservers(observers ...ReloadObserver) RegistryOption {
	return func(r *Registry) {
		r.observers = append(r.observers, observers...)
	}
}

// NewRegistry creates an empty registry
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = log.NewLogger()
	}
	return r
}

// With adds l. A nil layer contributes nothing.
func (r *Registry) With(l Layer) *Registry {
	if l != nil {
		r.layers = append(r.layers, l)
	}
	return r
}

// WithBuilders adds optional layers evaluated in order at Build
func (r *Registry) WithBuilders(builders ...Builder) *Registry {
	for _, b := range builders {
		if b != nil {
			r.builders = append(r.builders, b)
		}
	}
	return r
}

// Build evaluates builders and combines every layer into a pipeline.
// Layer names must be unique.
func (r *Registry) Build() (*Pipeline, error) {
	layers := make([]Layer, 0, len(r.layers)+len(r.builders))
	layers = append(layers, r.layers...)

	for i, build := range r.builders {
		l, err := build()
		if err != nil {
			return nil, fmt.Errorf("layer builder %d failed: %w", i, err)
		}
		if l == nil {
			r.logger.Debug("msg", "Optional layer contributed nothing",
				"component", "layer_registry",
				"builder", i)
			continue
		}
		layers = append(layers, l)
	}

	byName := make(map[string]Layer, len(layers))
	for _, l := range layers {
		if _, exists := byName[l.Name()]; exists {
			return nil, fmt.Errorf("duplicate layer name: %s", l.Name())
		}
		byName[l.Name()] = l

		r.logger.Debug("msg", "Layer registered",
			"component", "layer_registry",
			"layer", l.Name(),
			"filter", l.Stats().Filter)
	}

	p := &Pipeline{
		layers:    layers,
		byName:    byName,
		observers: append([]ReloadObserver(nil), r.observers...),
		logger:    r.logger,
	}
	p.handler = &pipelineHandler{pipeline: p, layers: layers}

	r.logger.Info("msg", "Logging pipeline built",
		"component", "layer_registry",
		"layers", p.Layers())

	return p, nil
}
