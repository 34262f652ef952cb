// FILE: loglayer/src/cmd/loglayer/reload.go
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"loglayer/src/internal/config"
	"loglayer/src/internal/core"
	"loglayer/src/internal/layer"

	lconfig "github.com/lixenwraith/config"
	"github.com/lixenwraith/log"
)

// HandleSource hands out reload handles by layer name, normally a *layer.Pipeline
type HandleSource interface {
	Handle(name string) (*layer.ReloadHandle, error)
}

// ReloadManager pushes filter changes from the config file into the
// installed pipeline. Structural settings need a restart.
type ReloadManager struct {
	configPath  string
	cliArgs     []string
	reloadable  string
	layers      HandleSource
	cfg         *config.Config
	lcfg        *lconfig.Config
	logger      *log.Logger
	mu          sync.RWMutex
	reloadingMu sync.Mutex
	isReloading bool
	shutdownCh  chan struct{}
	wg          sync.WaitGroup

	// load re-reads configuration on SIGHUP
	load func() (*config.Config, error)
}

// NewReloadManager creates a manager for the layers of an installed pipeline
func NewReloadManager(configPath string, cliArgs []string, initialCfg *config.Config, reloadable string, layers HandleSource, logger *log.Logger) *ReloadManager {
	rm := &ReloadManager{
		configPath: configPath,
		cliArgs:    cliArgs,
		reloadable: reloadable,
		layers:     layers,
		cfg:        initialCfg,
		logger:     logger,
		shutdownCh: make(chan struct{}),
	}
	rm.load = func() (*config.Config, error) {
		return config.Load(rm.configPath, rm.cliArgs)
	}
	return rm
}

// Start watches the config file when it exists; SIGHUP reloads work either way
func (rm *ReloadManager) Start(ctx context.Context) error {
	if _, err := os.Stat(rm.configPath); err != nil {
		rm.logger.Info("msg", "Config file not present, hot reload limited to signals",
			"component", "reload",
			"config_file", rm.configPath)
		return nil
	}

	// The watcher only detects edits. Its target is a private copy, and
	// every reload re-resolves all sources so --set and env keep precedence.
	snapshot := *rm.cfg
	lcfg, err := lconfig.NewBuilder().
		WithFile(rm.configPath).
		WithTarget(&snapshot).
		WithFileFormat("toml").
		WithSecurityOptions(lconfig.SecurityOptions{
			PreventPathTraversal: true,
			MaxFileSize:          1024 * 1024,
		}).
		Build()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}

	rm.lcfg = lcfg

	lcfg.AutoUpdateWithOptions(lconfig.WatchOptions{
		PollInterval:  time.Second,
		Debounce:      500 * time.Millisecond,
		ReloadTimeout: 10 * time.Second,
	})

	rm.wg.Add(1)
	go rm.watchLoop(ctx)

	rm.logger.Info("msg", "Configuration hot reload enabled",
		"component", "reload",
		"config_file", rm.configPath)

	return nil
}

func (rm *ReloadManager) watchLoop(ctx context.Context) {
	defer rm.wg.Done()

	changeCh := rm.lcfg.Watch()

	for {
		select {
		case <-ctx.Done():
			return
		case <-rm.shutdownCh:
			return
		case changedPath, ok := <-changeCh:
			if !ok {
				return
			}
			rm.handleChange(changedPath)
		}
	}
}

// handleChange reacts to one watcher notification
func (rm *ReloadManager) handleChange(changedPath string) {
	switch changedPath {
	case "file_deleted":
		rm.logger.Error("msg", "Configuration file deleted",
			"component", "reload",
			"action", "keeping current filters")
		return
	case "permissions_changed":
		rm.logger.Error("msg", "Configuration file permissions changed",
			"component", "reload",
			"action", "reload blocked")
		return
	case "reload_timeout":
		rm.logger.Error("msg", "Configuration reload timed out",
			"component", "reload",
			"action", "keeping current filters")
		return
	}
	if strings.HasPrefix(changedPath, "reload_error:") {
		rm.logger.Error("msg", "Configuration reload error",
			"component", "reload",
			"error", strings.TrimPrefix(changedPath, "reload_error:"),
			"action", "keeping current filters")
		return
	}

	if !shouldReload(changedPath) {
		rm.logger.Warn("msg", "Configuration change needs a restart to take effect",
			"component", "reload",
			"path", changedPath)
		return
	}

	rm.triggerReload()
}

// shouldReload reports whether a changed key can be applied live
func shouldReload(path string) bool {
	switch path {
	case "logging.filter", "logging.file.filter", "logging.journal.filter", "logging.recent.filter":
		return true
	}
	return false
}

// triggerReload re-reads every configuration source with CLI and env
// precedence intact. File edits and SIGHUP both land here.
func (rm *ReloadManager) triggerReload() {
	rm.reloadingMu.Lock()
	if rm.isReloading {
		rm.reloadingMu.Unlock()
		rm.logger.Debug("msg", "Reload already in progress, skipping",
			"component", "reload")
		return
	}
	rm.isReloading = true
	rm.reloadingMu.Unlock()

	defer func() {
		rm.reloadingMu.Lock()
		rm.isReloading = false
		rm.reloadingMu.Unlock()
	}()

	rm.logger.Info("msg", "Starting configuration reload",
		"component", "reload")

	newCfg, err := rm.load()
	if err != nil {
		rm.logger.Error("msg", "Configuration reload failed",
			"component", "reload",
			"error", err,
			"action", "keeping current filters")
		return
	}

	rm.applyConfig(newCfg)
}

// applyConfig installs every layer directive that differs from the active one
func (rm *ReloadManager) applyConfig(newCfg *config.Config) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	applied := 0
	for name, directive := range rm.directives(newCfg) {
		handle, err := rm.layers.Handle(name)
		if err != nil {
			// Layer not installed in this process
			continue
		}
		if handle.Get().Source() == directive {
			continue
		}
		if err := handle.Set(directive); err != nil {
			rm.logger.Error("msg", "Failed to apply filter",
				"component", "reload",
				"layer", name,
				"error", err)
			continue
		}
		applied++
	}

	rm.cfg = newCfg
	rm.logger.Info("msg", "Configuration reload completed",
		"component", "reload",
		"filters_changed", applied)
}

// directives maps layer names to the directive newCfg assigns them.
// Layers without their own directive keep the one they started with.
func (rm *ReloadManager) directives(newCfg *config.Config) map[string]string {
	lc := newCfg.Logging
	out := map[string]string{rm.reloadable: lc.Filter}

	own := map[string]string{
		core.LayerFile:    lc.File.Filter,
		core.LayerJournal: lc.Journal.Filter,
		core.LayerRecent:  lc.Recent.Filter,
	}
	for name, directive := range own {
		if name != rm.reloadable && directive != "" {
			out[name] = directive
		}
	}
	return out
}

// Config returns the configuration last applied
func (rm *ReloadManager) Config() *config.Config {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.cfg
}

// Shutdown stops the watcher
func (rm *ReloadManager) Shutdown() {
	rm.logger.Info("msg", "Shutting down reload manager",
		"component", "reload")

	close(rm.shutdownCh)
	rm.wg.Wait()

	if rm.lcfg != nil {
		rm.lcfg.StopAutoUpdate()
	}
}
