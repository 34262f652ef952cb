// FILE: loglayer/src/internal/config/logging.go
package config

import (
	"fmt"
	"strings"

	"loglayer/src/internal/core"
	"loglayer/src/internal/sink"

	lconfig "github.com/lixenwraith/config"
	"github.com/lixenwraith/log"
)

// LoggingConfig describes the installed record pipeline
type LoggingConfig struct {
	// Filter directive of the reloadable layer, e.g. "info,db=debug"
	Filter string `toml:"filter"`

	Console ConsoleConfig `toml:"console"`
	File    FileConfig    `toml:"file"`
	Journal JournalConfig `toml:"journal"`
	Recent  RecentConfig  `toml:"recent"`
}

type ConsoleConfig struct {
	Enabled bool `toml:"enabled"`

	// Target for console output: "stdout", "stderr", "split"
	// "split": info/debug to stdout, warn/error to stderr
	Target string `toml:"target"`

	// Format: "txt", "json" or "raw"
	Format string `toml:"format"`

	// ANSI colouring: "auto", "always", "never"
	ANSI string `toml:"ansi"`

	// Span events reaching the console: "new", "close", "new|close" or ""
	SpanEvents string `toml:"span_events"`
}

type FileConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
	Format  string `toml:"format"`

	// Separate directive for the file layer, empty follows logging.filter at startup
	Filter string `toml:"filter"`

	// Rotation boundary: "none", "minutely", "hourly", "daily"
	Rotation     string `toml:"rotation"`
	MaxSizeBytes int64  `toml:"max_size_bytes"`

	// Archives kept next to the active file
	MaxFiles int64 `toml:"max_files"`

	BufferLines int64 `toml:"buffer_lines"`

	// Block producers instead of dropping records when the buffer is full
	Lossless bool `toml:"lossless"`

	SpanEvents string `toml:"span_events"`
}

type JournalConfig struct {
	Enabled    bool   `toml:"enabled"`
	Identifier string `toml:"identifier"`
	Filter     string `toml:"filter"`
}

type RecentConfig struct {
	Enabled  bool   `toml:"enabled"`
	Capacity int64  `toml:"capacity"`
	Filter   string `toml:"filter"`
}

// DiagnosticsConfig configures the logger reporting on loglayer itself
type DiagnosticsConfig struct {
	// Output mode: "file", "stdout", "stderr", "both", "none"
	Output string `toml:"output"`

	// Log level: "debug", "info", "warn", "error"
	Level string `toml:"level"`

	// File output settings (when Output is "file" or "both")
	Directory string `toml:"directory"`
	Name      string `toml:"name"`
}

// LoggerArgs returns the key=value arguments for log.Logger.InitWithDefaults
func (c *DiagnosticsConfig) LoggerArgs() ([]string, error) {
	level, err := parseLogLevel(c.Level)
	if err != nil {
		return nil, err
	}
	args := []string{fmt.Sprintf("level=%d", level)}

	switch c.Output {
	case "none":
		args = append(args, "disable_file=true", "enable_stdout=false")
	case "stdout", "stderr":
		args = append(args,
			"disable_file=true",
			"enable_stdout=true",
			"stdout_target="+c.Output)
	case "file":
		args = append(args, "enable_stdout=false")
		args = append(args, c.fileArgs()...)
	case "both":
		args = append(args, "enable_stdout=true", "stdout_target=stderr")
		args = append(args, c.fileArgs()...)
	default:
		return nil, fmt.Errorf("invalid diagnostics output mode: %s", c.Output)
	}

	return args, nil
}

func (c *DiagnosticsConfig) fileArgs() []string {
	return []string{
		"directory=" + c.Directory,
		"name=" + c.Name,
	}
}

func parseLogLevel(level string) (int64, error) {
	switch strings.ToLower(level) {
	case "debug":
		return log.LevelDebug, nil
	case "info":
		return log.LevelInfo, nil
	case "warn", "warning":
		return log.LevelWarn, nil
	case "error":
		return log.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level: %s", level)
	}
}

func validateLogging(cfg *LoggingConfig) error {
	if !cfg.Console.Enabled && !cfg.File.Enabled {
		return fmt.Errorf("logging: console or file layer must be enabled")
	}

	validFormats := map[string]bool{
		"txt": true, "json": true, "raw": true, "": true,
	}

	if cfg.Console.Enabled {
		validTargets := map[string]bool{
			sink.TargetStdout: true, sink.TargetStderr: true, sink.TargetSplit: true,
		}
		if !validTargets[cfg.Console.Target] {
			return fmt.Errorf("invalid console target: %s", cfg.Console.Target)
		}
		if !validFormats[cfg.Console.Format] {
			return fmt.Errorf("invalid console format: %s", cfg.Console.Format)
		}
		validANSI := map[string]bool{
			sink.ANSIAuto: true, sink.ANSIAlways: true, sink.ANSINever: true, "": true,
		}
		if !validANSI[cfg.Console.ANSI] {
			return fmt.Errorf("invalid console ansi mode: %s", cfg.Console.ANSI)
		}
	}

	if cfg.File.Enabled {
		if err := lconfig.NonEmpty(cfg.File.Path); err != nil {
			return fmt.Errorf("logging.file: path is required")
		}
		if !validFormats[cfg.File.Format] {
			return fmt.Errorf("invalid file format: %s", cfg.File.Format)
		}
		if _, err := sink.ParseBoundary(cfg.File.Rotation); err != nil {
			return fmt.Errorf("logging.file: %w", err)
		}
		if cfg.File.MaxSizeBytes < 0 {
			return fmt.Errorf("logging.file: max_size_bytes cannot be negative")
		}
		if cfg.File.MaxFiles < 1 || cfg.File.MaxFiles > 1<<16 {
			return fmt.Errorf("logging.file: max_files must be between 1 and 65536: %d", cfg.File.MaxFiles)
		}
		if cfg.File.BufferLines < 1 {
			return fmt.Errorf("logging.file: buffer_lines must be positive: %d", cfg.File.BufferLines)
		}
	}

	if cfg.Journal.Enabled {
		if err := lconfig.NonEmpty(cfg.Journal.Identifier); err != nil {
			return fmt.Errorf("logging.journal: identifier is required")
		}
	}

	if cfg.Recent.Enabled && cfg.Recent.Capacity < 1 {
		cfg.Recent.Capacity = core.DefaultRecentCapacity
	}

	return nil
}

func validateDiagnostics(cfg *DiagnosticsConfig) error {
	validOutputs := map[string]bool{
		"file": true, "stdout": true, "stderr": true,
		"both": true, "none": true,
	}
	if !validOutputs[cfg.Output] {
		return fmt.Errorf("invalid diagnostics output mode: %s", cfg.Output)
	}

	if _, err := parseLogLevel(cfg.Level); err != nil {
		return fmt.Errorf("diagnostics: %w", err)
	}

	if cfg.Output == "file" || cfg.Output == "both" {
		if err := lconfig.NonEmpty(cfg.Directory); err != nil {
			return fmt.Errorf("diagnostics: file output requires 'directory'")
		}
		if err := lconfig.NonEmpty(cfg.Name); err != nil {
			return fmt.Errorf("diagnostics: file output requires 'name'")
		}
	}

	return nil
}
