// FILE: loglayer/src/internal/layer/reload.go
package layer

import (
	"loglayer/src/internal/filter"

	"github.com/lixenwraith/log"
)

// Reloader swaps the filter of one layer
type Reloader interface {
	Layer() string
	Current() filter.Spec
	Reload(spec filter.Spec) error
}

// ReloadObserver is notified after every Set, successful or not
type ReloadObserver func(layer string, spec filter.Spec, err error)

// ReloadHandle changes the filter of one layer at runtime.
// It is safe to share between goroutines.
type ReloadHandle struct {
	reloader  Reloader
	observers []ReloadObserver
}

// NewReloadHandle wraps r
func NewReloadHandle(r Reloader, observers ...ReloadObserver) *ReloadHandle {
	return &ReloadHandle{
		reloader:  r,
		observers: observers,
	}
}

// Layer returns the name of the controlled layer
func (h *ReloadHandle) Layer() string {
	return h.reloader.Layer()
}

// Get returns the active filter, or the last good one once the layer is gone
func (h *ReloadHandle) Get() filter.Spec {
	return h.reloader.Current()
}

// Set parses directive and installs it. Parsing never fails; the only
// error is a *ReloadError when the layer no longer exists.
func (h *ReloadHandle) Set(directive string) error {
	return h.SetSpec(filter.Parse(directive))
}

// SetSpec installs an already compiled filter
func (h *ReloadHandle) SetSpec(spec filter.Spec) error {
	err := h.reloader.Reload(spec)
	for _, observe := range h.observers {
		observe(h.reloader.Layer(), spec, err)
	}
	if err != nil {
		return &ReloadError{Layer: h.reloader.Layer(), Err: err}
	}
	return nil
}

// LogObserver reports reloads through the diagnostics logger
func LogObserver(logger *log.Logger) ReloadObserver {
	return func(layer string, spec filter.Spec, err error) {
		if err != nil {
			logger.Error("msg", "Filter reload failed",
				"component", "reload_handle",
				"layer", layer,
				"directive", spec.Source(),
				"error", err)
			return
		}

		if ignored := spec.Ignored(); len(ignored) > 0 {
			logger.Warn("msg", "Filter directive fragments ignored",
				"component", "reload_handle",
				"layer", layer,
				"directive", spec.Source(),
				"ignored", ignored)
		}

		logger.Info("msg", "Filter reloaded",
			"component", "reload_handle",
			"layer", layer,
			"filter", spec.String())
	}
}
