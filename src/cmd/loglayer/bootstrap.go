// FILE: loglayer/src/cmd/loglayer/bootstrap.go
package main

import (
	"context"
	"fmt"

	"loglayer/src/internal/admin"
	"loglayer/src/internal/config"
	"loglayer/src/internal/core"
	"loglayer/src/internal/extra"
	"loglayer/src/internal/filter"
	"loglayer/src/internal/layer"
	"loglayer/src/internal/logsetup"
	"loglayer/src/internal/metrics"
	"loglayer/src/internal/sink"
	"loglayer/src/internal/version"

	"github.com/lixenwraith/log"
)

// service holds everything a running instance owns
type service struct {
	result    *logsetup.Result
	collector *metrics.Collector
	recent    *extra.RingBuffer
	admin     *admin.Server
}

// initializeLogger sets up the diagnostics logger from configuration
func initializeLogger(cfg *config.Config, quiet bool) error {
	logger = log.NewLogger()

	if quiet {
		// In quiet mode, disable ALL diagnostics output
		return logger.InitWithDefaults(
			"disable_file=true",
			"enable_stdout=false",
			"level=255")
	}

	args, err := cfg.Diagnostics.LoggerArgs()
	if err != nil {
		return err
	}
	return logger.InitWithDefaults(args...)
}

// buildOptions translates configuration into pipeline options
func buildOptions(cfg *config.Config, diag *log.Logger, collector *metrics.Collector) (logsetup.Options, *extra.RingBuffer, error) {
	lc := cfg.Logging
	opts := logsetup.Options{
		Filter:      lc.Filter,
		Diagnostics: diag,
		Metrics:     collector,
	}

	if lc.Console.Enabled {
		opts.Console = &logsetup.ConsoleOptions{
			Target:     lc.Console.Target,
			Format:     lc.Console.Format,
			ANSI:       lc.Console.ANSI,
			SpanEvents: layer.ParseSpanEvents(lc.Console.SpanEvents),
		}
	}

	if lc.File.Enabled {
		boundary, err := sink.ParseBoundary(lc.File.Rotation)
		if err != nil {
			return logsetup.Options{}, nil, fmt.Errorf("logging.file.rotation: %w", err)
		}
		opts.File = &logsetup.FileOptions{
			Path:   lc.File.Path,
			Format: lc.File.Format,
			Filter: lc.File.Filter,
			Policy: sink.RotationPolicy{
				Boundary:     boundary,
				MaxSizeBytes: uint64(lc.File.MaxSizeBytes),
				MaxFilesKept: uint32(lc.File.MaxFiles),
			},
			BufferLines:  int(lc.File.BufferLines),
			Backpressure: sink.ParseBackpressure(lc.File.Lossless),
			SpanEvents:   layer.ParseSpanEvents(lc.File.SpanEvents),
		}
	}

	if lc.Journal.Enabled {
		opts.Extra = append(opts.Extra,
			extra.Journal(lc.Journal.Identifier, layerSpec(lc.Journal.Filter, lc.Filter), diag))
	}

	var recent *extra.RingBuffer
	if lc.Recent.Enabled {
		recent = extra.NewRingBuffer(int(lc.Recent.Capacity))
		opts.Extra = append(opts.Extra, extra.Recent(recent, layerSpec(lc.Recent.Filter, lc.Filter)))
	}

	return opts, recent, nil
}

// layerSpec parses the layer's own directive, or the shared one when empty
func layerSpec(own, shared string) filter.Spec {
	if own != "" {
		return filter.Parse(own)
	}
	return filter.Parse(shared)
}

// bootstrapService installs the pipeline and starts the admin endpoint
func bootstrapService(cfg *config.Config) (*service, error) {
	collector := metrics.NewCollector()

	opts, recent, err := buildOptions(cfg, logger, collector)
	if err != nil {
		return nil, err
	}

	result, err := logsetup.SetupWithOptions(opts)
	if err != nil {
		return nil, err
	}

	svc := &service{
		result:    result,
		collector: collector,
		recent:    recent,
	}

	if cfg.Admin.Enabled {
		srv, err := admin.NewServer(admin.Options{
			Host:             cfg.Admin.Host,
			Port:             cfg.Admin.Port,
			JWTSecret:        cfg.Admin.JWTSecret,
			ReloadsPerMinute: cfg.Admin.ReloadsPerMinute,
			DefaultLayer:     result.Handle.Layer(),
		}, admin.Deps{
			Layers:  result.Pipeline,
			Sinks:   result.Sinks,
			Recent:  recent,
			Metrics: collector,
		}, logger)
		if err == nil {
			err = srv.Start()
		}
		if err != nil {
			// The pipeline stays installed; only the endpoint is missing
			logger.Error("msg", "Failed to start admin server",
				"component", "main",
				"error", err)
		} else {
			svc.admin = srv
		}
	}

	logger.Info("msg", "loglayer started",
		"component", "main",
		"version", version.Short(),
		"layers", result.Pipeline.Layers(),
		"filter", result.Handle.Get().String(),
		"admin", svc.admin != nil)

	return svc, nil
}

// shutdown stops the admin endpoint and flushes the file layer
func (s *service) shutdown(ctx context.Context) error {
	if s.admin != nil {
		if err := s.admin.Shutdown(ctx); err != nil {
			logger.Warn("msg", "Admin server shutdown error",
				"component", "main",
				"error", err)
		}
	}

	releaseCtx, cancel := context.WithTimeout(ctx, core.DefaultReleaseTimeout)
	defer cancel()
	err := s.result.Guard.ReleaseContext(releaseCtx)

	// Reload handles held elsewhere report ErrLayerGone from here on
	s.result.Pipeline.Close()
	return err
}
