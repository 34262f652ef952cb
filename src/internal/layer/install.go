// FILE: loglayer/src/internal/layer/install.go
package layer

import (
	"log/slog"
	"sync"
)

var (
	installMu sync.Mutex
	installed *Pipeline
)

// Install makes p the process-wide log consumer. It succeeds once per
// process; later calls return ErrAlreadyInstalled and leave the first
// pipeline in place. The standard library log package is redirected too.
func Install(p *Pipeline) error {
	installMu.Lock()
	defer installMu.Unlock()

	if installed != nil {
		p.logger.Warn("msg", "Logging pipeline already installed",
			"component", "pipeline",
			"layers", installed.Layers())
		return ErrAlreadyInstalled
	}

	installed = p
	slog.SetDefault(slog.New(p.Handler()))

	p.logger.Info("msg", "Logging pipeline installed",
		"component", "pipeline",
		"layers", p.Layers())
	return nil
}

// Installed returns the installed pipeline, or nil
func Installed() *Pipeline {
	installMu.Lock()
	defer installMu.Unlock()
	return installed
}
