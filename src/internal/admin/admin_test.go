// FILE: loglayer/src/internal/admin/admin_test.go
package admin

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"loglayer/src/internal/extra"
	"loglayer/src/internal/filter"
	"loglayer/src/internal/layer"
	"loglayer/src/internal/metrics"
	"loglayer/src/internal/sink"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lixenwraith/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

const testSecret = "0123456789abcdef0123456789abcdef"

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

type fixedSink struct {
	stats sink.Stats
}

func (f fixedSink) GetStats() sink.Stats {
	return f.stats
}

type fixture struct {
	server   *Server
	pipeline *layer.Pipeline
	console  *syncBuffer
	file     *syncBuffer
	recent   *extra.RingBuffer
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	logger := log.NewLogger()

	console, file := &syncBuffer{}, &syncBuffer{}
	recent := extra.NewRingBuffer(10)

	pipeline, err := layer.NewRegistry(layer.WithDiagnostics(logger)).
		With(layer.New("console", slog.NewTextHandler(console, nil), filter.Parse("info"))).
		With(layer.New("file", slog.NewTextHandler(file, nil), filter.Parse("warn"))).
		WithBuilders(extra.Recent(recent, filter.Parse("trace"))).
		Build()
	require.NoError(t, err)

	collector := metrics.NewCollector()
	collector.SetLayers(pipeline)

	if opts.DefaultLayer == "" {
		opts.DefaultLayer = "console"
	}
	s, err := NewServer(opts, Deps{
		Layers:  pipeline,
		Sinks:   []sink.StatsSource{fixedSink{stats: sink.Stats{Type: "file", Written: 4, Dropped: 1}}},
		Recent:  recent,
		Metrics: collector,
	}, logger)
	require.NoError(t, err)

	return &fixture{server: s, pipeline: pipeline, console: console, file: file, recent: recent}
}

func (f *fixture) do(method, uri, body, token string) *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(uri)
	if body != "" {
		ctx.Request.SetBodyString(body)
	}
	if token != "" {
		ctx.Request.Header.Set("Authorization", "Bearer "+token)
	}
	f.server.requestHandler(ctx)
	return ctx
}

func decode(t *testing.T, ctx *fasthttp.RequestCtx) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &body), string(ctx.Response.Body()))
	return body
}

func TestNewServer_RequiresLayers(t *testing.T) {
	_, err := NewServer(Options{}, Deps{}, log.NewLogger())
	assert.Error(t, err)
}

func TestFilter_GetDefaultLayer(t *testing.T) {
	f := newFixture(t, Options{})

	ctx := f.do(fasthttp.MethodGet, "/filter", "", "")
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	body := decode(t, ctx)
	assert.Equal(t, "console", body["layer"])
	assert.Equal(t, "info", body["filter"])
}

func TestFilter_SetNamedLayer(t *testing.T) {
	f := newFixture(t, Options{})
	logger := f.pipeline.Logger()

	logger.Info("before", "module", "db")
	assert.NotContains(t, f.file.String(), "before")

	ctx := f.do(fasthttp.MethodPut, "/filter?layer=file", "debug,db=trace,???", "")
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	body := decode(t, ctx)
	assert.Equal(t, "file", body["layer"])
	assert.Equal(t, "debug,db=trace", body["filter"])
	assert.Equal(t, []any{"???"}, body["ignored"])

	logger.Debug("after", "module", "db")
	assert.Contains(t, f.file.String(), "msg=after")
	assert.NotContains(t, f.console.String(), "msg=after", "other layers keep their filter")
}

func TestFilter_Errors(t *testing.T) {
	t.Run("UnknownLayer", func(t *testing.T) {
		f := newFixture(t, Options{})
		ctx := f.do(fasthttp.MethodGet, "/filter?layer=syslog", "", "")
		assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
	})

	t.Run("LayerGone", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.pipeline.Close()

		ctx := f.do(fasthttp.MethodPut, "/filter", "trace", "")
		assert.Equal(t, fasthttp.StatusGone, ctx.Response.StatusCode())

		// The last good filter is still readable
		ctx = f.do(fasthttp.MethodGet, "/filter", "", "")
		require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
		assert.Equal(t, "info", decode(t, ctx)["filter"])
	})

	t.Run("MethodNotAllowed", func(t *testing.T) {
		f := newFixture(t, Options{})
		ctx := f.do(fasthttp.MethodDelete, "/filter", "", "")
		assert.Equal(t, fasthttp.StatusMethodNotAllowed, ctx.Response.StatusCode())
	})

	t.Run("UnknownPath", func(t *testing.T) {
		f := newFixture(t, Options{})
		ctx := f.do(fasthttp.MethodGet, "/nowhere", "", "")
		assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
	})
}

func TestFilter_RateLimited(t *testing.T) {
	f := newFixture(t, Options{ReloadsPerMinute: 1})

	ctx := f.do(fasthttp.MethodPut, "/filter", "debug", "")
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	ctx = f.do(fasthttp.MethodPut, "/filter", "trace", "")
	assert.Equal(t, fasthttp.StatusTooManyRequests, ctx.Response.StatusCode())

	// Reads are not limited
	ctx = f.do(fasthttp.MethodGet, "/filter", "", "")
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "debug", decode(t, ctx)["filter"])
}

func TestAuth(t *testing.T) {
	f := newFixture(t, Options{JWTSecret: testSecret})

	valid, err := MintToken(testSecret, "operator", time.Minute)
	require.NoError(t, err)

	foreign, err := MintToken("ffffffffffffffffffffffffffffffff", "operator", time.Minute)
	require.NoError(t, err)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "operator",
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name   string
		token  string
		status int
	}{
		{"Missing", "", fasthttp.StatusUnauthorized},
		{"Valid", valid, fasthttp.StatusOK},
		{"WrongSecret", foreign, fasthttp.StatusUnauthorized},
		{"Expired", expired, fasthttp.StatusUnauthorized},
		{"NoExpiry", noExpiry, fasthttp.StatusUnauthorized},
		{"Garbage", "not-a-jwt", fasthttp.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := f.do(fasthttp.MethodGet, "/filter", "", tt.token)
			assert.Equal(t, tt.status, ctx.Response.StatusCode())
		})
	}

	t.Run("StatusIsOpen", func(t *testing.T) {
		ctx := f.do(fasthttp.MethodGet, "/status", "", "")
		assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	})
}

func TestMintToken_Errors(t *testing.T) {
	_, err := MintToken("", "x", time.Minute)
	assert.Error(t, err)
	_, err = MintToken(testSecret, "x", 0)
	assert.Error(t, err)
}

func TestStatus(t *testing.T) {
	f := newFixture(t, Options{})
	f.pipeline.Logger().Warn("counted")

	ctx := f.do(fasthttp.MethodGet, "/status", "", "")
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "application/json", string(ctx.Response.Header.ContentType()))

	body := decode(t, ctx)
	assert.Equal(t, "loglayer", body["service"])
	assert.Equal(t, "console", body["default_layer"])

	layers, ok := body["layers"].([]any)
	require.True(t, ok)
	require.Len(t, layers, 3)
	first := layers[0].(map[string]any)
	assert.Equal(t, "console", first["name"])
	assert.Equal(t, float64(1), first["accepted"])

	sinks, ok := body["sinks"].([]any)
	require.True(t, ok)
	require.Len(t, sinks, 1)
	assert.Equal(t, float64(1), sinks[0].(map[string]any)["dropped"])
}

func TestRecent(t *testing.T) {
	f := newFixture(t, Options{})
	logger := f.pipeline.Logger()
	for _, msg := range []string{"one", "two", "three"} {
		logger.Debug(msg)
	}

	ctx := f.do(fasthttp.MethodGet, "/recent?n=2", "", "")
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	body := decode(t, ctx)
	assert.Equal(t, float64(3), body["count"])
	entries := body["entries"].([]any)
	require.Len(t, entries, 2)
	assert.Equal(t, "two", entries[0].(map[string]any)["message"])
	assert.Equal(t, "three", entries[1].(map[string]any)["message"])

	ctx = f.do(fasthttp.MethodGet, "/recent?n=-1", "", "")
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
}

func TestMetrics(t *testing.T) {
	f := newFixture(t, Options{})
	f.pipeline.Logger().Info("hello")

	ctx := f.do(fasthttp.MethodGet, "/metrics", "", "")
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.True(t, strings.Contains(string(ctx.Response.Body()),
		`loglayer_layer_records_total{layer="console",result="accepted"} 1`))
}

func TestClient(t *testing.T) {
	f := newFixture(t, Options{JWTSecret: testSecret})

	ln := fasthttputil.NewInmemoryListener()
	defer ln.Close()
	go fasthttp.Serve(ln, f.server.requestHandler)

	token, err := MintToken(testSecret, "cli", time.Minute)
	require.NoError(t, err)

	client := NewClient("admin.local", token)
	client.client.Dial = func(addr string) (net.Conn, error) {
		return ln.Dial()
	}

	state, err := client.GetFilter("")
	require.NoError(t, err)
	assert.Equal(t, "console", state.Layer)
	assert.Equal(t, "info", state.Filter)

	state, err = client.SetFilter("file", "error,net=debug,bogus=loud")
	require.NoError(t, err)
	assert.Equal(t, "file", state.Layer)
	assert.Equal(t, "error,net=debug", state.Filter)
	assert.Equal(t, []string{"bogus=loud"}, state.Ignored)

	_, err = client.SetFilter("syslog", "info")
	assert.ErrorContains(t, err, "404")

	unauthorized := NewClient("admin.local", "")
	unauthorized.client.Dial = client.client.Dial
	_, err = unauthorized.GetFilter("")
	assert.ErrorContains(t, err, "401")
}
