// FILE: loglayer/src/internal/config/config.go
package config

import (
	"loglayer/src/internal/core"
)

// Config is the complete loglayer configuration
type Config struct {
	Logging     LoggingConfig     `toml:"logging"`
	Diagnostics DiagnosticsConfig `toml:"diagnostics"`
	Admin       AdminConfig       `toml:"admin"`
	Status      StatusConfig      `toml:"status"`
}

// AdminConfig controls the administrative HTTP endpoint
type AdminConfig struct {
	Enabled bool   `toml:"enabled"`
	Host    string `toml:"host"`
	Port    int64  `toml:"port"`

	// Bearer tokens are required when set
	JWTSecret string `toml:"jwt_secret"`

	// Accepted filter changes per minute, 0 disables the limit
	ReloadsPerMinute int64 `toml:"reloads_per_minute"`
}

// StatusConfig controls the periodic status record
type StatusConfig struct {
	// 0 disables status records
	IntervalSeconds int64 `toml:"interval_seconds"`
}

func defaults() *Config {
	return &Config{
		Logging: LoggingConfig{
			Filter: core.DefaultFilter,
			Console: ConsoleConfig{
				Enabled:    true,
				Target:     "stdout",
				Format:     "txt",
				ANSI:       "auto",
				SpanEvents: "new",
			},
			File: FileConfig{
				Enabled:      true,
				Path:         core.DefaultFilePath,
				Format:       "txt",
				Rotation:     core.DefaultRotation,
				MaxSizeBytes: core.DefaultMaxSizeBytes,
				MaxFiles:     core.DefaultMaxFilesKept,
				BufferLines:  core.DefaultBufferLines,
				Lossless:     false,
				SpanEvents:   "new|close",
			},
			Journal: JournalConfig{
				Enabled:    false,
				Identifier: "loglayer",
			},
			Recent: RecentConfig{
				Enabled:  false,
				Capacity: core.DefaultRecentCapacity,
			},
		},
		Diagnostics: DiagnosticsConfig{
			Output:    "stderr",
			Level:     "info",
			Directory: "./log",
			Name:      "loglayer-diag",
		},
		Admin: AdminConfig{
			Enabled:          false,
			Host:             core.DefaultAdminHost,
			Port:             core.DefaultAdminPort,
			ReloadsPerMinute: core.DefaultAdminReloadsPerMinute,
		},
		Status: StatusConfig{
			IntervalSeconds: core.DefaultStatusIntervalSeconds,
		},
	}
}

// Default returns a configuration holding only default values
func Default() *Config {
	return defaults()
}
