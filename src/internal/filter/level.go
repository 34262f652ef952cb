// FILE: loglayer/src/internal/filter/level.go
package filter

import (
	"log/slog"
	"math"
	"strings"
)

const (
	// LevelTrace is more verbose than slog.LevelDebug.
	LevelTrace = slog.Level(-8)

	// LevelOff is above every emitted level, so nothing is enabled at it.
	LevelOff = slog.Level(math.MaxInt32)
)

// ParseLevel maps a level name to its slog level.
func ParseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		return LevelTrace, true
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	case "off":
		return LevelOff, true
	default:
		return 0, false
	}
}

// LevelName renders a level using the directive vocabulary
func LevelName(level slog.Level) string {
	switch {
	case level >= LevelOff:
		return "OFF"
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	case level >= slog.LevelDebug:
		return "DEBUG"
	default:
		return "TRACE"
	}
}
