// FILE: loglayer/src/internal/sink/sink.go
package sink

import (
	"errors"
	"time"
)

// ErrSinkClosed is returned by writes that arrive after a sink was released
var ErrSinkClosed = errors.New("sink closed")

// Stats contains statistics about a sink
type Stats struct {
	Type          string
	Written       uint64
	Dropped       uint64
	WriteErrors   uint64
	Rotations     uint64
	QueueLength   int
	QueueCapacity int
	StartTime     time.Time
	LastWritten   time.Time
	Details       map[string]any
}

// StatsSource is implemented by sinks that report statistics
type StatsSource interface {
	GetStats() Stats
}
