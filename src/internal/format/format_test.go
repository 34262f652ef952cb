// FILE: loglayer/src/internal/format/format_test.go
package format

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"loglayer/src/internal/filter"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecord(level slog.Level, msg string) slog.Record {
	return slog.NewRecord(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), level, msg, 0)
}

func TestNewHandler(t *testing.T) {
	testCases := []struct {
		name        string
		formatName  string
		expectError bool
	}{
		{name: "JSONHandler", formatName: "json"},
		{name: "TextHandler", formatName: "txt"},
		{name: "TextAlias", formatName: "text"},
		{name: "RawHandler", formatName: "raw"},
		{name: "DefaultToText", formatName: ""},
		{name: "UnknownFormat", formatName: "xml", expectError: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			handler, err := NewHandler(tc.formatName, &bytes.Buffer{}, Options{})
			if tc.expectError {
				assert.Error(t, err)
				assert.Nil(t, handler)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, handler)
			assert.True(t, handler.Enabled(context.Background(), filter.LevelTrace), "inner handlers accept every level")
		})
	}
}

func TestTextHandler_LevelNames(t *testing.T) {
	var buf bytes.Buffer
	handler, err := NewHandler(FormatText, &buf, Options{TimeFormat: time.RFC3339})
	require.NoError(t, err)

	require.NoError(t, handler.Handle(context.Background(), newRecord(filter.LevelTrace, "deep")))
	require.NoError(t, handler.Handle(context.Background(), newRecord(slog.LevelWarn, "careful")))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, `time=2024-05-01T12:00:00Z level=TRACE msg=deep`, lines[0])
	assert.Equal(t, `time=2024-05-01T12:00:00Z level=WARN msg=careful`, lines[1])
}

func TestJSONHandler_Fields(t *testing.T) {
	var buf bytes.Buffer
	handler, err := NewHandler(FormatJSON, &buf, Options{ANSI: true})
	require.NoError(t, err)

	r := newRecord(slog.LevelError, "query failed")
	r.AddAttrs(slog.String("module", "db"), slog.Int("attempt", 3))
	require.NoError(t, handler.WithGroup("req").Handle(context.Background(), r))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "ERROR", decoded["level"], "json output is never coloured")
	assert.Equal(t, "query failed", decoded["msg"])

	group, ok := decoded["req"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "db", group["module"])
	assert.Equal(t, float64(3), group["attempt"])
}

func TestTextHandler_ANSI(t *testing.T) {
	var buf bytes.Buffer
	handler, err := NewHandler(FormatText, &buf, Options{ANSI: true})
	require.NoError(t, err)

	require.NoError(t, handler.Handle(context.Background(), newRecord(slog.LevelError, "boom")))
	assert.Contains(t, buf.String(), "level="+colorRed+"ERROR"+colorReset+" msg=boom")
}

func TestColorize(t *testing.T) {
	assert.Equal(t, "no level here\n", string(colorize([]byte("no level here\n"))))
	assert.Equal(t, "level=CUSTOM\n", string(colorize([]byte("level=CUSTOM\n"))))
	assert.Equal(t, "level="+colorGray+"TRACE"+colorReset+"\n", string(colorize([]byte("level=TRACE\n"))))
}

func TestRoutedHandler(t *testing.T) {
	var low, high bytes.Buffer
	handler, err := NewRoutedHandler(FormatRaw, &low, &high, slog.LevelWarn, Options{})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, handler.Handle(ctx, newRecord(slog.LevelInfo, "fine")))
	require.NoError(t, handler.Handle(ctx, newRecord(slog.LevelWarn, "odd")))
	require.NoError(t, handler.WithAttrs([]slog.Attr{slog.String("k", "v")}).Handle(ctx, newRecord(slog.LevelError, "bad")))

	assert.Equal(t, "fine\n", low.String())
	assert.Equal(t, "odd\nbad\n", high.String())

	single, err := NewRoutedHandler(FormatRaw, &low, &low, slog.LevelWarn, Options{})
	require.NoError(t, err)
	assert.IsType(t, &RawHandler{}, single)
}
