// FILE: loglayer/src/internal/sink/nonblocking.go
package sink

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"loglayer/src/internal/core"

	"github.com/lixenwraith/log"
	"golang.org/x/time/rate"
)

// Backpressure selects what a full queue does to producers
type Backpressure int

const (
	// BackpressureDrop discards the newest record and counts it
	BackpressureDrop Backpressure = iota
	// BackpressureBlock makes producers wait for queue space
	BackpressureBlock
)

// ParseBackpressure maps the lossless toggle to a policy
func ParseBackpressure(lossless bool) Backpressure {
	if lossless {
		return BackpressureBlock
	}
	return BackpressureDrop
}

func (b Backpressure) String() string {
	if b == BackpressureBlock {
		return "block"
	}
	return "drop"
}

// DropNotice writes the "records dropped" line into the destination stream.
// It runs on the writer goroutine and must write to w directly.
type DropNotice func(w io.Writer, sink string, dropped, total uint64) error

// NonBlockingOptions configures a NonBlocking sink
type NonBlockingOptions struct {
	Name           string
	BufferLines    int
	Backpressure   Backpressure
	Diagnostics    *log.Logger
	NoticeInterval time.Duration // minimum spacing of dropped-record notices
	// Notice renders drop notices; nil writes a logfmt line
	Notice DropNotice
}

func logfmtDropNotice(w io.Writer, sink string, dropped, total uint64) error {
	_, err := fmt.Fprintf(w, "time=%s level=WARN msg=\"records dropped\" sink=%s dropped_count=%d total_dropped=%d\n",
		time.Now().Format(time.RFC3339Nano), sink, dropped, total)
	return err
}

// NonBlocking decouples producers from a slow destination.
// Writes are copied into a bounded queue drained by one background goroutine.
type NonBlocking struct {
	dst    io.Writer
	name   string
	policy Backpressure
	queue  chan []byte
	logger *log.Logger
	notice DropNotice

	// mu guards closed against sends on the closed queue
	mu     sync.RWMutex
	closed bool

	// abandon releases producers blocked on a full queue once a
	// bounded release has given up on the destination
	abandon     chan struct{}
	abandonOnce sync.Once

	done     chan struct{}
	closeErr error

	startTime time.Time

	// Statistics
	written       atomic.Uint64
	dropped       atomic.Uint64
	reportedDrops atomic.Uint64
	writeErrors   atomic.Uint64
	lastWritten   atomic.Value // time.Time

	noticeLimiter *rate.Limiter
	errorLimiter  *rate.Limiter
}

// FlushGuard drains and closes its sink when released
type FlushGuard struct {
	sink *NonBlocking
	once sync.Once
}

// NewNonBlocking starts the background writer over dst
func NewNonBlocking(dst io.Writer, opts NonBlockingOptions) (*NonBlocking, *FlushGuard) {
	if opts.BufferLines <= 0 {
		opts.BufferLines = core.DefaultBufferLines
	}
	if opts.Name == "" {
		opts.Name = "file"
	}
	if opts.NoticeInterval <= 0 {
		opts.NoticeInterval = core.DefaultDropNoticeInterval
	}
	logger := opts.Diagnostics
	if logger == nil {
		logger = log.NewLogger()
	}
	notice := opts.Notice
	if notice == nil {
		notice = logfmtDropNotice
	}

	s := &NonBlocking{
		dst:           dst,
		name:          opts.Name,
		policy:        opts.Backpressure,
		queue:         make(chan []byte, opts.BufferLines),
		logger:        logger,
		notice:        notice,
		abandon:       make(chan struct{}),
		done:          make(chan struct{}),
		startTime:     time.Now(),
		noticeLimiter: rate.NewLimiter(rate.Every(opts.NoticeInterval), 1),
		errorLimiter:  rate.NewLimiter(rate.Every(core.DefaultWriteErrorReportInterval), 3),
	}
	s.lastWritten.Store(time.Time{})

	go s.processLoop()

	s.logger.Debug("msg", "Non-blocking sink started",
		"component", "nonblocking_sink",
		"sink", s.name,
		"buffer_lines", opts.BufferLines,
		"backpressure", s.policy.String())

	return s, &FlushGuard{sink: s}
}

// Write enqueues a copy of p. Under the drop policy it never blocks.
func (s *NonBlocking) Write(p []byte) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.dropped.Add(1)
		return 0, ErrSinkClosed
	}

	buf := make([]byte, len(p))
	copy(buf, p)

	if s.policy == BackpressureBlock {
		select {
		case s.queue <- buf:
			return len(p), nil
		case <-s.abandon:
			s.dropped.Add(1)
			return 0, ErrSinkClosed
		}
	}

	select {
	case s.queue <- buf:
	default:
		s.dropped.Add(1)
	}
	return len(p), nil
}

// Name returns the sink name used in diagnostics and stats
func (s *NonBlocking) Name() string {
	return s.name
}

// Dropped returns the number of records discarded so far
func (s *NonBlocking) Dropped() uint64 {
	return s.dropped.Load()
}

// GetStats reports queue and delivery counters
func (s *NonBlocking) GetStats() Stats {
	lastWritten, _ := s.lastWritten.Load().(time.Time)

	stats := Stats{
		Type:          s.name,
		Written:       s.written.Load(),
		Dropped:       s.dropped.Load(),
		WriteErrors:   s.writeErrors.Load(),
		QueueLength:   len(s.queue),
		QueueCapacity: cap(s.queue),
		StartTime:     s.startTime,
		LastWritten:   lastWritten,
		Details: map[string]any{
			"backpressure": s.policy.String(),
		},
	}
	if rf, ok := s.dst.(*RollingFile); ok {
		stats.Rotations = rf.Rotations()
		stats.Details["path"] = rf.Path()
	}
	return stats
}

func (s *NonBlocking) processLoop() {
	defer close(s.done)

	for buf := range s.queue {
		if s.dropped.Load() > s.reportedDrops.Load() && s.noticeLimiter.Allow() {
			s.writeDropNotice()
		}
		s.write(buf)
	}

	// Report what the limiter held back before closing
	s.writeDropNotice()

	if closer, ok := s.dst.(io.Closer); ok {
		s.closeErr = closer.Close()
		if s.closeErr != nil {
			s.logger.Error("msg", "Failed to close sink destination",
				"component", "nonblocking_sink",
				"sink", s.name,
				"error", s.closeErr)
		}
	}

	s.logger.Debug("msg", "Non-blocking sink stopped",
		"component", "nonblocking_sink",
		"sink", s.name,
		"written", s.written.Load(),
		"dropped", s.dropped.Load())
}

func (s *NonBlocking) write(buf []byte) {
	if _, err := s.dst.Write(buf); err != nil {
		s.writeErrors.Add(1)
		if s.errorLimiter.Allow() {
			s.logger.Error("msg", "Failed to write log record",
				"component", "nonblocking_sink",
				"sink", s.name,
				"write_errors", s.writeErrors.Load(),
				"error", err)
		}
		return
	}
	s.written.Add(1)
	s.lastWritten.Store(time.Now())
}

// writeDropNotice writes one line into the stream summarizing unreported drops
func (s *NonBlocking) writeDropNotice() {
	total := s.dropped.Load()
	reported := s.reportedDrops.Load()
	if total <= reported {
		return
	}
	s.reportedDrops.Store(total)

	if err := s.notice(s.dst, s.name, total-reported, total); err != nil {
		s.writeErrors.Add(1)
	}

	s.logger.Warn("msg", "Records dropped by full queue",
		"component", "nonblocking_sink",
		"sink", s.name,
		"dropped_count", total-reported,
		"total_dropped", total)
}

// stopIntake closes the queue once no producer is mid-send
func (s *NonBlocking) stopIntake() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.queue)
}

// Release stops intake, waits until every queued record is written and
// closes the destination. It is safe to call more than once.
func (g *FlushGuard) Release() error {
	return g.ReleaseContext(context.Background())
}

// ReleaseContext is Release with a bound on the wait. When ctx ends first,
// producers still blocked on a full queue give up and count as dropped.
func (g *FlushGuard) ReleaseContext(ctx context.Context) error {
	if g == nil || g.sink == nil {
		return nil
	}

	// stopIntake waits for blocked producers, so it must not hold up the deadline
	g.once.Do(func() { go g.sink.stopIntake() })

	select {
	case <-g.sink.done:
		return g.sink.closeErr
	case <-ctx.Done():
		g.sink.abandonOnce.Do(func() { close(g.sink.abandon) })
		return fmt.Errorf("sink %s not drained: %w", g.sink.name, ctx.Err())
	}
}

// Sink returns the guarded sink
func (g *FlushGuard) Sink() *NonBlocking {
	if g == nil {
		return nil
	}
	return g.sink
}
