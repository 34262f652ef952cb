// FILE: loglayer/src/cmd/loglayer/run.go
package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"loglayer/src/internal/config"
	"loglayer/src/internal/version"
)

// runService installs the pipeline and blocks until SIGINT or SIGTERM
func runService(cfg *config.Config, flags *rootFlags) error {
	if err := initializeLogger(cfg, flags.quiet); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer shutdownLogger()

	configPath := config.GetConfigPath()
	logger.Info("msg", "loglayer starting",
		"component", "main",
		"version", version.String(),
		"config_file", configPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, err := bootstrapService(cfg)
	if err != nil {
		logger.Error("msg", "Failed to bootstrap service",
			"component", "main",
			"error", err)
		return err
	}

	rm := NewReloadManager(configPath, flags.cliArgs(), cfg, svc.result.Handle.Layer(), svc.result.Pipeline, logger)
	if err := rm.Start(ctx); err != nil {
		logger.Warn("msg", "Config hot reload unavailable",
			"component", "main",
			"error", err)
	}

	if cfg.Status.IntervalSeconds > 0 {
		interval := time.Duration(cfg.Status.IntervalSeconds) * time.Second
		go statusReporter(ctx, svc.result.Pipeline, svc.result.Sinks, slog.Default(), interval)
	}

	sh := NewSignalHandler(rm, logger)
	sig := sh.Handle(ctx)
	sh.Stop()

	logger.Info("msg", "Shutdown signal received, flushing logs",
		"component", "main",
		"signal", sig)
	slog.Info("shutting down", "module", "loglayer", "signal", fmt.Sprint(sig))

	cancel()
	rm.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := svc.shutdown(shutdownCtx); err != nil {
		logger.Error("msg", "Log flush incomplete",
			"component", "main",
			"error", err)
		return err
	}

	logger.Info("msg", "Shutdown complete", "component", "main")
	return nil
}
