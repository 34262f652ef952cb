// FILE: loglayer/src/internal/layer/span.go
package layer

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// SpanEventKey marks span lifecycle records
const SpanEventKey = "span_event"

// SpanEvents is a set of span lifecycle events a layer records
type SpanEvents uint8

const (
	SpanNew SpanEvents = 1 << iota
	SpanClose

	SpanNone SpanEvents = 0
	SpanFull            = SpanNew | SpanClose
)

func (e SpanEvents) String() string {
	var parts []string
	if e&SpanNew != 0 {
		parts = append(parts, "new")
	}
	if e&SpanClose != 0 {
		parts = append(parts, "close")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// ParseSpanEvents reads a "|" or "," separated list such as "new|close"
func ParseSpanEvents(text string) SpanEvents {
	var events SpanEvents
	for _, part := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool { return r == '|' || r == ',' }) {
		switch strings.TrimSpace(part) {
		case "new":
			events |= SpanNew
		case "close":
			events |= SpanClose
		case "full":
			events |= SpanFull
		}
	}
	return events
}

func spanEventFromValue(v slog.Value) SpanEvents {
	switch v.String() {
	case "new":
		return SpanNew
	case "close":
		return SpanClose
	default:
		return SpanNone
	}
}

// Span is a timed unit of work bracketed by new and close records
type Span struct {
	ctx    context.Context
	logger *slog.Logger
	level  slog.Level
	start  time.Time
	once   sync.Once
}

// StartSpan records the opening of span name and returns it.
// args are attached to both lifecycle records.
func StartSpan(ctx context.Context, logger *slog.Logger, level slog.Level, name string, args ...any) *Span {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Span{
		ctx:    ctx,
		logger: logger.With(append([]any{"span", name}, args...)...),
		level:  level,
		start:  time.Now(),
	}
	s.logger.Log(ctx, level, "new", SpanEventKey, "new")
	return s
}

// End records the close of the span with its elapsed time. Later calls are no-ops.
func (s *Span) End() {
	s.once.Do(func() {
		s.logger.Log(s.ctx, s.level, "close",
			SpanEventKey, "close",
			"elapsed", time.Since(s.start))
	})
}

// Logger returns a logger carrying the span attributes
func (s *Span) Logger() *slog.Logger {
	return s.logger
}
