// FILE: loglayer/src/internal/format/format.go
package format

import (
	"fmt"
	"io"
	"log/slog"
	"math"

	"loglayer/src/internal/filter"
)

// Format names
const (
	FormatText = "txt"
	FormatJSON = "json"
	FormatRaw  = "raw"
)

// acceptAll lets inner handlers render every record; layers own filtering
const acceptAll = slog.Level(math.MinInt)

// Options controls record rendering
type Options struct {
	// ANSI colours the level token. Ignored by json and raw.
	ANSI bool
	// TimeFormat overrides the timestamp layout when non-empty
	TimeFormat string
	// AddSource includes the caller position
	AddSource bool
}

// NewHandler creates a slog handler writing records to w in the named format.
func NewHandler(name string, w io.Writer, opts Options) (slog.Handler, error) {
	handlerOpts := &slog.HandlerOptions{
		Level:       acceptAll,
		AddSource:   opts.AddSource,
		ReplaceAttr: replaceAttr(opts.TimeFormat),
	}

	switch name {
	case "", FormatText, "text":
		if opts.ANSI {
			w = &ansiWriter{w: w}
		}
		return slog.NewTextHandler(w, handlerOpts), nil
	case FormatJSON:
		return slog.NewJSONHandler(w, handlerOpts), nil
	case FormatRaw:
		return NewRawHandler(w), nil
	default:
		return nil, fmt.Errorf("unknown format: %s", name)
	}
}

// replaceAttr renders levels in directive vocabulary and applies the time layout
func replaceAttr(timeFormat string) func([]string, slog.Attr) slog.Attr {
	return func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) > 0 {
			return a
		}

		switch a.Key {
		case slog.LevelKey:
			if level, ok := a.Value.Any().(slog.Level); ok {
				a.Value = slog.StringValue(filter.LevelName(level))
			}
		case slog.TimeKey:
			if timeFormat != "" && a.Value.Kind() == slog.KindTime {
				a.Value = slog.StringValue(a.Value.Time().Format(timeFormat))
			}
		}
		return a
	}
}
