// FILE: loglayer/src/internal/sink/rolling.go
package sink

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Boundary is the wall-clock period after which the active file is rolled
type Boundary int

const (
	BoundaryNone Boundary = iota
	BoundaryMinutely
	BoundaryHourly
	BoundaryDaily
)

// ParseBoundary maps a configuration name to a Boundary
func ParseBoundary(name string) (Boundary, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none", "never":
		return BoundaryNone, nil
	case "minutely":
		return BoundaryMinutely, nil
	case "hourly":
		return BoundaryHourly, nil
	case "daily":
		return BoundaryDaily, nil
	default:
		return BoundaryNone, fmt.Errorf("unknown rotation boundary: %s", name)
	}
}

func (b Boundary) String() string {
	switch b {
	case BoundaryMinutely:
		return "minutely"
	case BoundaryHourly:
		return "hourly"
	case BoundaryDaily:
		return "daily"
	default:
		return "none"
	}
}

// periodStart truncates t to the start of its period in t's location
func (b Boundary) periodStart(t time.Time) time.Time {
	switch b {
	case BoundaryMinutely:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, t.Location())
	case BoundaryHourly:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
	case BoundaryDaily:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	default:
		return time.Time{}
	}
}

// RotationPolicy decides when the rolling file rolls over and how many
// archives it keeps. Rotation happens on whichever trigger fires first.
type RotationPolicy struct {
	Boundary     Boundary
	MaxSizeBytes uint64 // 0 disables the size trigger
	MaxFilesKept uint32 // archived files, excluding the active one
}

// Validate checks policy invariants
func (p RotationPolicy) Validate() error {
	if p.MaxFilesKept < 1 {
		return fmt.Errorf("max files kept must be at least 1, got %d", p.MaxFilesKept)
	}
	if p.Boundary < BoundaryNone || p.Boundary > BoundaryDaily {
		return fmt.Errorf("invalid rotation boundary: %d", p.Boundary)
	}
	return nil
}

// RollingOption configures a RollingFile
type RollingOption func(*RollingFile)

// WithClock replaces the wall clock used for boundary checks
func WithClock(now func() time.Time) RollingOption {
	return func(r *RollingFile) {
		r.now = now
	}
}

// RollingFile is an io.WriteCloser over path that archives to path.1 ... path.N.
// It is safe for concurrent use, though it is normally driven by a single writer.
type RollingFile struct {
	path   string
	policy RotationPolicy
	now    func() time.Time

	mu       sync.Mutex
	file     *os.File
	size     uint64
	openedAt time.Time
	closed   bool

	rotations atomic.Uint64
}

// OpenRollingFile opens or creates path for appending under policy
func OpenRollingFile(path string, policy RotationPolicy, opts ...RollingOption) (*RollingFile, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if path == "" {
		return nil, errors.New("rolling file path is empty")
	}

	r := &RollingFile{
		path:   path,
		policy: policy,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	if err := r.pruneArchives(); err != nil {
		return nil, err
	}
	if err := r.openActive(); err != nil {
		return nil, err
	}
	return r, nil
}

// Write appends p, rolling first when a trigger fires
func (r *RollingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, fs.ErrClosed
	}

	if r.shouldRotate(len(p)) {
		if err := r.rotate(); err != nil {
			return 0, err
		}
	}

	if r.file == nil {
		// A previous rotation failed after closing the active file
		if err := r.openActive(); err != nil {
			return 0, err
		}
	}

	n, err := r.file.Write(p)
	r.size += uint64(n)
	if err != nil {
		return n, fmt.Errorf("failed to write log file: %w", err)
	}
	return n, nil
}

// Rotate rolls the active file regardless of the policy triggers
func (r *RollingFile) Rotate() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fs.ErrClosed
	}
	return r.rotate()
}

// Close closes the active file. Further writes fail.
func (r *RollingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// Rotations returns how many times the file has rolled
func (r *RollingFile) Rotations() uint64 {
	return r.rotations.Load()
}

// Size returns the byte size of the active file
func (r *RollingFile) Size() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Path returns the active file path
func (r *RollingFile) Path() string {
	return r.path
}

func (r *RollingFile) shouldRotate(incoming int) bool {
	if r.policy.Boundary != BoundaryNone {
		now := r.now()
		if r.policy.Boundary.periodStart(now).After(r.policy.Boundary.periodStart(r.openedAt.In(now.Location()))) {
			return true
		}
	}

	if r.policy.MaxSizeBytes > 0 && r.size > 0 && r.size+uint64(incoming) > r.policy.MaxSizeBytes {
		return true
	}
	return false
}

func (r *RollingFile) openActive() error {
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}

	r.file = f
	r.size = uint64(info.Size())
	r.openedAt = r.now()
	if info.Size() > 0 {
		// Pre-existing content belongs to the period it was last written in
		r.openedAt = info.ModTime()
	}
	return nil
}

// rotate shifts archives up by one, dropping the oldest. Caller holds mu.
func (r *RollingFile) rotate() error {
	if r.file != nil {
		if err := r.file.Close(); err != nil {
			return fmt.Errorf("failed to close log file for rotation: %w", err)
		}
		r.file = nil
	}

	keep := int(r.policy.MaxFilesKept)
	if err := os.Remove(r.archiveName(keep)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove oldest archive: %w", err)
	}

	for i := keep - 1; i >= 1; i-- {
		err := os.Rename(r.archiveName(i), r.archiveName(i+1))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to shift archive %d: %w", i, err)
		}
	}

	if err := os.Rename(r.path, r.archiveName(1)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to archive log file: %w", err)
	}

	if err := r.openActive(); err != nil {
		return err
	}
	r.rotations.Add(1)
	return nil
}

// pruneArchives deletes archives numbered above the retention limit,
// left behind by an earlier run with a larger limit
func (r *RollingFile) pruneArchives() error {
	matches, err := filepath.Glob(r.path + ".*")
	if err != nil {
		return fmt.Errorf("failed to list archives: %w", err)
	}

	prefix := r.path + "."
	for _, name := range matches {
		n, err := strconv.Atoi(strings.TrimPrefix(name, prefix))
		if err != nil || n <= int(r.policy.MaxFilesKept) {
			continue
		}
		if err := os.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to prune archive %s: %w", name, err)
		}
	}
	return nil
}

func (r *RollingFile) archiveName(n int) string {
	return r.path + "." + strconv.Itoa(n)
}
