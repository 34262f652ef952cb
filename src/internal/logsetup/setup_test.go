// FILE: loglayer/src/internal/logsetup/setup_test.go
package logsetup

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"loglayer/src/internal/core"
	"loglayer/src/internal/filter"
	"loglayer/src/internal/layer"
	"loglayer/src/internal/metrics"
	"loglayer/src/internal/sink"

	"github.com/lixenwraith/log"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *log.Logger {
	return log.NewLogger()
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// fakeInstall replaces the global install for one test
func fakeInstall(t *testing.T, err error) *[]*layer.Pipeline {
	t.Helper()
	var installed []*layer.Pipeline
	orig := install
	t.Cleanup(func() { install = orig })

	install = func(p *layer.Pipeline) error {
		if err != nil {
			return err
		}
		installed = append(installed, p)
		return nil
	}
	return &installed
}

func testOptions(t *testing.T, directive string) (Options, *syncBuffer, string) {
	t.Helper()
	opts := DefaultOptions(directive)
	opts.Diagnostics = newTestLogger()

	out := &syncBuffer{}
	opts.Console.Stdout = out
	opts.Console.Stderr = out
	opts.Console.ANSI = sink.ANSINever

	path := filepath.Join(t.TempDir(), "app.log")
	opts.File.Path = path
	return opts, out, path
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions("warn")
	assert.Equal(t, "warn", opts.Filter)
	require.NotNil(t, opts.Console)
	require.NotNil(t, opts.File)

	assert.Equal(t, core.DefaultFilePath, opts.File.Path)
	assert.Equal(t, sink.BoundaryDaily, opts.File.Policy.Boundary)
	assert.Equal(t, uint64(32*1024*1024), opts.File.Policy.MaxSizeBytes)
	assert.Equal(t, uint32(3), opts.File.Policy.MaxFilesKept)
	assert.Equal(t, layer.SpanNew, opts.Console.SpanEvents)
	assert.Equal(t, layer.SpanFull, opts.File.SpanEvents)
}

func TestSetupWithOptions_ConsoleAndFile(t *testing.T) {
	installed := fakeInstall(t, nil)
	opts, console, path := testOptions(t, "info")
	opts.File.Filter = "debug"

	res, err := SetupWithOptions(opts)
	require.NoError(t, err)
	require.NotNil(t, res.Guard)
	require.Len(t, *installed, 1)
	assert.Same(t, res.Pipeline, (*installed)[0])
	assert.Equal(t, []string{core.LayerConsole, core.LayerFile}, res.Pipeline.Layers())
	assert.Equal(t, core.LayerConsole, res.Handle.Layer())
	assert.Len(t, res.Sinks, 2)

	logger := res.Pipeline.Logger()
	logger.Debug("file only")
	logger.Info("both")

	require.NoError(t, res.Handle.Set("debug"))
	logger.Debug("both after reload")

	require.NoError(t, res.Guard.Release())

	assert.NotContains(t, console.String(), "file only")
	assert.Contains(t, console.String(), "msg=both")
	assert.Contains(t, console.String(), `msg="both after reload"`)

	lines := readLines(t, path)
	require.Len(t, lines, 3, "every record accepted before release reaches the file")
	assert.Contains(t, lines[0], `msg="file only"`)
	assert.Contains(t, lines[1], "msg=both")
	assert.Contains(t, lines[2], `msg="both after reload"`)
}

func TestSetupWithOptions_FileOnly(t *testing.T) {
	fakeInstall(t, nil)
	opts, _, path := testOptions(t, "warn")
	opts.Console = nil

	res, err := SetupWithOptions(opts)
	require.NoError(t, err)
	assert.Equal(t, core.LayerFile, res.Handle.Layer())

	res.Pipeline.Logger().Warn("kept")
	res.Pipeline.Logger().Info("filtered")
	require.NoError(t, res.Guard.Release())

	lines := readLines(t, path)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "level=WARN msg=kept")
}

func TestSetupWithOptions_JSONFileStaysParseableUnderOverflow(t *testing.T) {
	fakeInstall(t, nil)
	opts, _, path := testOptions(t, "info")
	opts.Console = nil
	opts.File.Format = "json"
	opts.File.BufferLines = 1

	res, err := SetupWithOptions(opts)
	require.NoError(t, err)

	logger := res.Pipeline.Logger()
	for i := 0; i < 2000; i++ {
		logger.Info(fmt.Sprintf("record %d", i))
	}
	require.NoError(t, res.Guard.Release())

	var notices int
	for _, line := range readLines(t, path) {
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec), "line %q", line)
		if rec["msg"] == "records dropped" {
			notices++
			assert.Equal(t, "file", rec["sink"])
			assert.Equal(t, "loglayer::sink", rec["module"])
		}
	}

	require.Len(t, res.Sinks, 1)
	if res.Sinks[0].GetStats().Dropped > 0 {
		assert.Positive(t, notices)
	}
}

func TestSetupWithOptions_ConsoleOnly(t *testing.T) {
	fakeInstall(t, nil)
	opts, out, _ := testOptions(t, "info")
	opts.File = nil

	res, err := SetupWithOptions(opts)
	require.NoError(t, err)
	assert.Nil(t, res.Guard)
	assert.NoError(t, res.Guard.Release(), "a nil guard releases trivially")

	res.Pipeline.Logger().Info("hello")
	assert.Contains(t, out.String(), "msg=hello")
}

func TestSetupWithOptions_SplitConsole(t *testing.T) {
	fakeInstall(t, nil)
	opts, _, _ := testOptions(t, "info")
	opts.File = nil

	var stdout, stderr syncBuffer
	opts.Console.Target = sink.TargetSplit
	opts.Console.Stdout = &stdout
	opts.Console.Stderr = &stderr

	res, err := SetupWithOptions(opts)
	require.NoError(t, err)

	logger := res.Pipeline.Logger()
	logger.Info("routine")
	logger.Warn("attention")
	logger.Error("failure")

	assert.Contains(t, stdout.String(), "routine")
	assert.NotContains(t, stdout.String(), "attention")
	assert.Contains(t, stderr.String(), "attention")
	assert.Contains(t, stderr.String(), "failure")
}

func TestSetupWithOptions_Failures(t *testing.T) {
	t.Run("NoLayers", func(t *testing.T) {
		fakeInstall(t, nil)
		_, err := SetupWithOptions(Options{Filter: "info"})
		var initErr *InitError
		assert.ErrorAs(t, err, &initErr)
	})

	t.Run("AlreadyInstalled", func(t *testing.T) {
		fakeInstall(t, layer.ErrAlreadyInstalled)
		opts, _, _ := testOptions(t, "info")

		res, err := SetupWithOptions(opts)
		assert.Nil(t, res)

		var initErr *InitError
		require.ErrorAs(t, err, &initErr)
		assert.ErrorIs(t, err, layer.ErrAlreadyInstalled)
	})

	t.Run("BadFormat", func(t *testing.T) {
		fakeInstall(t, nil)
		opts, _, _ := testOptions(t, "info")
		opts.Console.Format = "xml"

		_, err := SetupWithOptions(opts)
		assert.ErrorContains(t, err, "unknown format")
	})

	t.Run("BadPolicy", func(t *testing.T) {
		fakeInstall(t, nil)
		opts, _, _ := testOptions(t, "info")
		opts.File.Policy.MaxFilesKept = 0

		_, err := SetupWithOptions(opts)
		assert.ErrorContains(t, err, "max files kept")
	})

	t.Run("ExtraBuilderFails", func(t *testing.T) {
		fakeInstall(t, nil)
		opts, _, _ := testOptions(t, "info")
		opts.Extra = []layer.Builder{func() (layer.Layer, error) { return nil, errors.New("boom") }}

		_, err := SetupWithOptions(opts)
		assert.ErrorContains(t, err, "boom")
	})
}

func TestSetupWithOptions_ObserversAndMetrics(t *testing.T) {
	fakeInstall(t, nil)
	opts, _, _ := testOptions(t, "info,bad=")
	collector := metrics.NewCollector()
	opts.Metrics = collector

	var seen []string
	opts.Observers = []layer.ReloadObserver{func(layerName string, spec filter.Spec, err error) {
		seen = append(seen, layerName+":"+spec.String())
	}}

	res, err := SetupWithOptions(opts)
	require.NoError(t, err)
	defer res.Guard.Release()

	require.NoError(t, res.Handle.Set("debug,???"))
	assert.Equal(t, []string{"console:debug"}, seen)

	count, err := testutil.GatherAndCount(collector.Registry(), "loglayer_filter_reloads_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// "bad=" on console and file at setup plus "???" on reload
	count, err = testutil.GatherAndCount(collector.Registry(), "loglayer_filter_ignored_fragments_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series per layer")
}

func TestSetup_InstallsOnce(t *testing.T) {
	t.Chdir(t.TempDir())

	handle, guard, err := Setup("warn")
	require.NoError(t, err)
	require.NotNil(t, handle)
	require.NotNil(t, guard)

	_, _, err = Setup("debug")
	var initErr *InitError
	require.ErrorAs(t, err, &initErr)
	assert.ErrorIs(t, err, layer.ErrAlreadyInstalled)

	slog.Info("below threshold")
	slog.Warn("through the default logger")
	require.NoError(t, guard.Release())

	lines := readLines(t, core.DefaultFilePath)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `msg="through the default logger"`)
}
