// FILE: loglayer/src/internal/sink/nonblocking_test.go
package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lixenwraith/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *log.Logger {
	return log.NewLogger()
}

// memWriter records writes and closes
type memWriter struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

func (w *memWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *memWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *memWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

// gatedWriter blocks every write until the gate opens
type gatedWriter struct {
	memWriter
	gate    chan struct{}
	entered chan struct{}
	once    sync.Once
}

func newGatedWriter() *gatedWriter {
	return &gatedWriter{gate: make(chan struct{}), entered: make(chan struct{})}
}

func (w *gatedWriter) Write(p []byte) (int, error) {
	w.once.Do(func() { close(w.entered) })
	<-w.gate
	return w.memWriter.Write(p)
}

type failingWriter struct {
	calls int
	mu    sync.Mutex
}

func (w *failingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	return 0, errors.New("disk full")
}

func TestNonBlocking_ReleaseDrainsEverything(t *testing.T) {
	dst := &memWriter{}
	s, guard := NewNonBlocking(dst, NonBlockingOptions{BufferLines: 256, Diagnostics: newTestLogger()})

	for i := 0; i < 100; i++ {
		_, err := fmt.Fprintf(s, "record %d\n", i)
		require.NoError(t, err)
	}

	require.NoError(t, guard.Release())

	lines := strings.Split(strings.TrimSuffix(dst.String(), "\n"), "\n")
	require.Len(t, lines, 100)
	for i, line := range lines {
		assert.Equal(t, fmt.Sprintf("record %d", i), line, "records keep producer order")
	}
	assert.True(t, dst.closed)

	stats := s.GetStats()
	assert.Equal(t, uint64(100), stats.Written)
	assert.Zero(t, stats.Dropped)
}

func TestNonBlocking_ReleaseIsIdempotent(t *testing.T) {
	s, guard := NewNonBlocking(&memWriter{}, NonBlockingOptions{Diagnostics: newTestLogger()})
	require.NoError(t, guard.Release())
	require.NoError(t, guard.Release())

	n, err := s.Write([]byte("late\n"))
	assert.Zero(t, n)
	assert.ErrorIs(t, err, ErrSinkClosed)
	assert.Equal(t, uint64(1), s.Dropped())

	var nilGuard *FlushGuard
	assert.NoError(t, nilGuard.Release())
}

func TestNonBlocking_DropsWhenFull(t *testing.T) {
	dst := newGatedWriter()
	s, guard := NewNonBlocking(dst, NonBlockingOptions{
		BufferLines: 2,
		Diagnostics: newTestLogger(),
	})

	// First record is taken by the worker, which then blocks in Write
	_, err := s.Write([]byte("r0\n"))
	require.NoError(t, err)
	<-dst.entered

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 1; i <= 10; i++ {
			fmt.Fprintf(s, "r%d\n", i)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("producer blocked under drop policy")
	}

	assert.Equal(t, uint64(8), s.Dropped(), "queue of two holds r1 and r2")

	close(dst.gate)
	require.NoError(t, guard.Release())

	out := dst.String()
	for _, kept := range []string{"r0\n", "r1\n", "r2\n"} {
		assert.Contains(t, out, kept)
	}
	assert.Less(t, strings.Index(out, "r1\n"), strings.Index(out, "r2\n"))
	assert.NotContains(t, out, "r3\n")
	assert.Contains(t, out, "records dropped")
	assert.Contains(t, out, "total_dropped=8")
}

func TestNonBlocking_BlockPolicyIsLossless(t *testing.T) {
	dst := newGatedWriter()
	s, guard := NewNonBlocking(dst, NonBlockingOptions{
		BufferLines:  1,
		Backpressure: BackpressureBlock,
		Diagnostics:  newTestLogger(),
	})

	_, err := s.Write([]byte("r0\n"))
	require.NoError(t, err)
	<-dst.entered

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 1; i <= 5; i++ {
			fmt.Fprintf(s, "r%d\n", i)
		}
	}()

	select {
	case <-done:
		t.Fatal("producer should wait for queue space")
	case <-time.After(50 * time.Millisecond):
	}

	close(dst.gate)
	<-done
	require.NoError(t, guard.Release())

	assert.Equal(t, "r0\nr1\nr2\nr3\nr4\nr5\n", dst.String())
	assert.Zero(t, s.Dropped())
}

func TestNonBlocking_WriteErrorsAreCounted(t *testing.T) {
	dst := &failingWriter{}
	s, guard := NewNonBlocking(dst, NonBlockingOptions{Diagnostics: newTestLogger()})

	for i := 0; i < 5; i++ {
		_, err := s.Write([]byte("lost\n"))
		assert.NoError(t, err, "producers never see destination errors")
	}
	require.NoError(t, guard.Release())

	stats := s.GetStats()
	assert.Equal(t, uint64(5), stats.WriteErrors)
	assert.Zero(t, stats.Written)
	assert.Equal(t, 5, dst.calls)
}

func TestNonBlocking_ReleaseContextTimesOut(t *testing.T) {
	dst := newGatedWriter()
	s, guard := NewNonBlocking(dst, NonBlockingOptions{Diagnostics: newTestLogger()})

	_, err := s.Write([]byte("stuck\n"))
	require.NoError(t, err)
	<-dst.entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = guard.ReleaseContext(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(dst.gate)
	require.NoError(t, guard.Release())
	assert.Equal(t, "stuck\n", dst.String())
}

func TestNonBlocking_ReleaseContextFreesBlockedProducers(t *testing.T) {
	dst := newGatedWriter()
	s, guard := NewNonBlocking(dst, NonBlockingOptions{
		BufferLines:  1,
		Backpressure: BackpressureBlock,
		Diagnostics:  newTestLogger(),
	})

	_, err := s.Write([]byte("r0\n"))
	require.NoError(t, err)
	<-dst.entered
	_, err = s.Write([]byte("r1\n")) // fills the queue
	require.NoError(t, err)

	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func(i int) {
			_, err := fmt.Fprintf(s, "blocked-%d\n", i)
			errs <- err
		}(i)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	released := make(chan error, 1)
	go func() { released <- guard.ReleaseContext(ctx) }()

	select {
	case err := <-released:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("release ignored its deadline while producers were blocked")
	}

	for i := 0; i < 3; i++ {
		select {
		case err := <-errs:
			assert.ErrorIs(t, err, ErrSinkClosed)
		case <-time.After(2 * time.Second):
			t.Fatal("producer still blocked after release gave up")
		}
	}
	assert.Equal(t, uint64(3), s.Dropped())

	close(dst.gate)
	require.NoError(t, guard.Release())
	out := dst.String()
	assert.Contains(t, out, "r0\n")
	assert.Contains(t, out, "r1\n")
	assert.NotContains(t, out, "blocked-")
}

func TestNonBlocking_CustomDropNotice(t *testing.T) {
	dst := newGatedWriter()
	var notices []string
	s, guard := NewNonBlocking(dst, NonBlockingOptions{
		BufferLines: 1,
		Diagnostics: newTestLogger(),
		Notice: func(w io.Writer, sink string, dropped, total uint64) error {
			line := fmt.Sprintf("{\"sink\":%q,\"dropped\":%d,\"total\":%d}\n", sink, dropped, total)
			notices = append(notices, line)
			_, err := io.WriteString(w, line)
			return err
		},
	})

	_, err := s.Write([]byte("r0\n"))
	require.NoError(t, err)
	<-dst.entered
	for i := 1; i <= 4; i++ {
		fmt.Fprintf(s, "r%d\n", i)
	}

	close(dst.gate)
	require.NoError(t, guard.Release())

	require.Len(t, notices, 1)
	assert.Equal(t, `{"sink":"file","dropped":3,"total":3}`+"\n", notices[0])
	assert.Contains(t, dst.String(), notices[0])
	assert.NotContains(t, dst.String(), "records dropped")
}

func TestNonBlocking_OverRollingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	rf, err := OpenRollingFile(path, RotationPolicy{MaxSizeBytes: 16, MaxFilesKept: 2})
	require.NoError(t, err)

	s, guard := NewNonBlocking(rf, NonBlockingOptions{Name: "file", Diagnostics: newTestLogger()})
	for i := 0; i < 4; i++ {
		fmt.Fprintf(s, "line-%02d-abcdef\n", i) // 15 bytes
	}
	require.NoError(t, guard.Release())

	stats := s.GetStats()
	assert.Equal(t, uint64(4), stats.Written)
	assert.Equal(t, uint64(3), stats.Rotations)
	assert.Equal(t, path, stats.Details["path"])

	assert.Equal(t, "line-03-abcdef\n", readFile(t, path))
	assert.Equal(t, "line-02-abcdef\n", readFile(t, path+".1"))
	assert.Equal(t, "line-01-abcdef\n", readFile(t, path+".2"))
}
