// FILE: loglayer/src/internal/logsetup/setup.go
package logsetup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"loglayer/src/internal/core"
	"loglayer/src/internal/filter"
	"loglayer/src/internal/format"
	"loglayer/src/internal/layer"
	"loglayer/src/internal/metrics"
	"loglayer/src/internal/sink"

	"github.com/lixenwraith/log"
)

// sinkModule is the module of records the sinks emit themselves
const sinkModule = "loglayer::sink"

// install is replaced in tests that need more than one pipeline per process
var install = layer.Install

// InitError reports a failed setup. A second setup in the same process
// fails with an InitError wrapping layer.ErrAlreadyInstalled.
type InitError struct {
	Err error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("logging setup failed: %v", e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// ConsoleOptions configures the console layer
type ConsoleOptions struct {
	Target     string // stdout, stderr or split
	Format     string
	ANSI       string // auto, always or never
	SpanEvents layer.SpanEvents

	// Stdout and Stderr default to the process streams
	Stdout io.Writer
	Stderr io.Writer
}

// FileOptions configures the rolling file layer
type FileOptions struct {
	Path         string
	Format       string
	Filter       string // empty uses Options.Filter
	Policy       sink.RotationPolicy
	BufferLines  int
	Backpressure sink.Backpressure
	SpanEvents   layer.SpanEvents
}

// Options controls SetupWithOptions
type Options struct {
	// Filter is the initial directive of the reloadable layer
	Filter  string
	Console *ConsoleOptions // nil disables the console layer
	File    *FileOptions    // nil disables the file layer
	Extra   []layer.Builder

	Diagnostics *log.Logger
	Metrics     *metrics.Collector
	Observers   []layer.ReloadObserver
}

// Result holds everything a successful setup produced
type Result struct {
	// Handle controls the console layer, or the file layer without a console
	Handle *layer.ReloadHandle
	// Guard is nil when there is no file layer
	Guard    *sink.FlushGuard
	Pipeline *layer.Pipeline
	// Sinks report write statistics of the console and file layers
	Sinks []sink.StatsSource
}

// DefaultOptions returns a console layer filtered by directive plus a
// daily and size rotated file layer
func DefaultOptions(directive string) Options {
	return Options{
		Filter: directive,
		Console: &ConsoleOptions{
			Target:     sink.TargetStdout,
			Format:     format.FormatText,
			ANSI:       sink.ANSIAuto,
			SpanEvents: layer.SpanNew,
		},
		File: &FileOptions{
			Path:   core.DefaultFilePath,
			Format: format.FormatText,
			Policy: sink.RotationPolicy{
				Boundary:     sink.BoundaryDaily,
				MaxSizeBytes: core.DefaultMaxSizeBytes,
				MaxFilesKept: core.DefaultMaxFilesKept,
			},
			BufferLines:  core.DefaultBufferLines,
			Backpressure: sink.BackpressureDrop,
			SpanEvents:   layer.SpanFull,
		},
	}
}

// Setup installs the default pipeline filtered by directive and returns
// the console reload handle with the file flush guard. The caller must
// release the guard before exit to flush buffered records.
func Setup(directive string) (*layer.ReloadHandle, *sink.FlushGuard, error) {
	res, err := SetupWithOptions(DefaultOptions(directive))
	if err != nil {
		return nil, nil, err
	}
	return res.Handle, res.Guard, nil
}

// SetupWithOptions builds the layers described by opts and installs them
// as the process-wide pipeline
func SetupWithOptions(opts Options) (*Result, error) {
	if opts.Console == nil && opts.File == nil {
		return nil, &InitError{Err: errors.New("no console or file layer configured")}
	}

	logger := opts.Diagnostics
	if logger == nil {
		logger = log.NewLogger()
	}

	observers := append([]layer.ReloadObserver{layer.LogObserver(logger)}, opts.Observers...)
	if opts.Metrics != nil {
		observers = append(observers, opts.Metrics.ObserveReload)
	}

	registry := layer.NewRegistry(
		layer.WithDiagnostics(logger),
		layer.WithObservers(observers...),
	)

	spec := filter.Parse(opts.Filter)
	reloadable := core.LayerFile
	var sinks []sink.StatsSource

	if opts.Console != nil {
		consoleLayer, console, err := buildConsole(opts.Console, spec)
		if err != nil {
			return nil, &InitError{Err: err}
		}
		registry.With(consoleLayer)
		reloadable = core.LayerConsole
		sinks = append(sinks, console)
	}

	var guard *sink.FlushGuard
	if opts.File != nil {
		fileSpec := spec
		if opts.File.Filter != "" {
			fileSpec = filter.Parse(opts.File.Filter)
		}

		fileLayer, nb, g, err := buildFile(opts.File, fileSpec, logger)
		if err != nil {
			return nil, &InitError{Err: err}
		}
		guard = g
		registry.With(fileLayer)
		sinks = append(sinks, nb)
	}

	registry.WithBuilders(opts.Extra...)

	pipeline, err := registry.Build()
	if err != nil {
		releaseOnFailure(guard, logger)
		return nil, &InitError{Err: err}
	}

	handle, err := pipeline.Handle(reloadable)
	if err != nil {
		releaseOnFailure(guard, logger)
		return nil, &InitError{Err: err}
	}

	if err := install(pipeline); err != nil {
		pipeline.Close()
		releaseOnFailure(guard, logger)
		return nil, &InitError{Err: err}
	}

	for _, st := range pipeline.Stats() {
		if len(st.Ignored) == 0 {
			continue
		}
		logger.Warn("msg", "Filter directive fragments ignored",
			"component", "logsetup",
			"layer", st.Name,
			"ignored", st.Ignored)
	}
	if opts.Metrics != nil {
		for _, s := range sinks {
			opts.Metrics.AddSink(s)
		}
		opts.Metrics.SetLayers(pipeline)
		for _, name := range pipeline.Layers() {
			if h, err := pipeline.Handle(name); err == nil {
				opts.Metrics.ObserveInitial(name, h.Get())
			}
		}
	}

	logger.Info("msg", "Logging initialized",
		"component", "logsetup",
		"layers", pipeline.Layers(),
		"reloadable", reloadable,
		"filter", handle.Get().String())

	return &Result{
		Handle:   handle,
		Guard:    guard,
		Pipeline: pipeline,
		Sinks:    sinks,
	}, nil
}

func buildConsole(opts *ConsoleOptions, spec filter.Spec) (layer.Layer, *sink.Console, error) {
	var console *sink.Console
	var err error
	if opts.Stdout == nil && opts.Stderr == nil {
		console, err = sink.NewConsole(opts.Target)
	} else {
		stdout, stderr := opts.Stdout, opts.Stderr
		if stdout == nil {
			stdout = os.Stdout
		}
		if stderr == nil {
			stderr = os.Stderr
		}
		console, err = sink.NewConsoleWriters(opts.Target, stdout, stderr)
	}
	if err != nil {
		return nil, nil, err
	}

	handler, err := format.NewRoutedHandler(opts.Format, console.Low(), console.High(), slog.LevelWarn, format.Options{
		ANSI: console.ColorEnabled(opts.ANSI),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("console layer: %w", err)
	}

	return layer.New(core.LayerConsole, handler, spec, layer.WithSpanEvents(opts.SpanEvents)), console, nil
}

func buildFile(opts *FileOptions, spec filter.Spec, logger *log.Logger) (layer.Layer, *sink.NonBlocking, *sink.FlushGuard, error) {
	path := opts.Path
	if path == "" {
		path = core.DefaultFilePath
	}

	// Reject an unknown format before the file is created
	if _, err := format.NewHandler(opts.Format, io.Discard, format.Options{}); err != nil {
		return nil, nil, nil, fmt.Errorf("file layer: %w", err)
	}

	rf, err := sink.OpenRollingFile(path, opts.Policy)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("file layer: %w", err)
	}

	nb, guard := sink.NewNonBlocking(rf, sink.NonBlockingOptions{
		Name:         core.LayerFile,
		BufferLines:  opts.BufferLines,
		Backpressure: opts.Backpressure,
		Diagnostics:  logger,
		Notice:       dropNotice(opts.Format),
	})

	handler, err := format.NewHandler(opts.Format, nb, format.Options{})
	if err != nil {
		guard.Release()
		return nil, nil, nil, fmt.Errorf("file layer: %w", err)
	}

	logger.Debug("msg", "File layer opened",
		"component", "logsetup",
		"path", path,
		"rotation", opts.Policy.Boundary.String(),
		"max_size_bytes", opts.Policy.MaxSizeBytes,
		"max_files_kept", opts.Policy.MaxFilesKept)

	return layer.New(core.LayerFile, handler, spec, layer.WithSpanEvents(opts.SpanEvents)), nb, guard, nil
}

// dropNotice renders "records dropped" notices in the file layer format
// so the stream stays parseable
func dropNotice(formatName string) sink.DropNotice {
	return func(w io.Writer, sinkName string, dropped, total uint64) error {
		h, err := format.NewHandler(formatName, w, format.Options{})
		if err != nil {
			return err
		}
		r := slog.NewRecord(time.Now(), slog.LevelWarn, "records dropped", 0)
		r.AddAttrs(
			slog.String(core.ModuleKey, sinkModule),
			slog.String("sink", sinkName),
			slog.Uint64("dropped_count", dropped),
			slog.Uint64("total_dropped", total),
		)
		return h.Handle(context.Background(), r)
	}
}

func releaseOnFailure(guard *sink.FlushGuard, logger *log.Logger) {
	if err := guard.Release(); err != nil {
		logger.Error("msg", "Failed to release file sink after setup failure",
			"component", "logsetup",
			"error", err)
	}
}
