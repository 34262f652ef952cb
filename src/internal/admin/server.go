// FILE: loglayer/src/internal/admin/server.go
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"loglayer/src/internal/extra"
	"loglayer/src/internal/layer"
	"loglayer/src/internal/metrics"
	"loglayer/src/internal/sink"
	"loglayer/src/internal/version"

	"github.com/lixenwraith/log"
	"github.com/lixenwraith/log/compat"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"golang.org/x/time/rate"
)

const (
	FilterPath  = "/filter"
	StatusPath  = "/status"
	RecentPath  = "/recent"
	MetricsPath = "/metrics"

	maxDirectiveBytes = 64 * 1024
)

// LayerSource exposes the layers of an installed pipeline, normally a *layer.Pipeline
type LayerSource interface {
	Layers() []string
	Handle(name string) (*layer.ReloadHandle, error)
	Stats() []layer.Stats
}

// Options configures the admin server
type Options struct {
	Host string
	Port int64

	// Bearer JWTs signed with this secret are required when non-empty
	JWTSecret string

	// Accepted filter changes per minute, 0 disables the limit
	ReloadsPerMinute int64

	// Layer addressed by /filter without ?layer=
	DefaultLayer string
}

// Deps are the components the server reports on. Only Layers is required.
type Deps struct {
	Layers  LayerSource
	Sinks   []sink.StatsSource
	Recent  *extra.RingBuffer
	Metrics *metrics.Collector
}

// Server is the administrative HTTP endpoint
type Server struct {
	opts    Options
	deps    Deps
	logger  *log.Logger
	auth    *authenticator
	limiter *rate.Limiter
	metrics fasthttp.RequestHandler

	handlesMu sync.Mutex
	handles   map[string]*layer.ReloadHandle

	server    *fasthttp.Server
	startTime time.Time

	requests     atomic.Uint64
	authFailures atomic.Uint64
	limited      atomic.Uint64
}

// NewServer validates opts and prepares the request handler
func NewServer(opts Options, deps Deps, logger *log.Logger) (*Server, error) {
	if deps.Layers == nil {
		return nil, errors.New("admin server requires a layer source")
	}
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}

	s := &Server{
		opts:      opts,
		deps:      deps,
		logger:    logger,
		handles:   make(map[string]*layer.ReloadHandle),
		startTime: time.Now(),
	}

	if opts.JWTSecret != "" {
		s.auth = newAuthenticator(opts.JWTSecret)
		logger.Info("msg", "Authentication enabled",
			"component", "admin",
			"type", "jwt")
	}

	if opts.ReloadsPerMinute > 0 {
		perSecond := rate.Limit(float64(opts.ReloadsPerMinute) / 60)
		s.limiter = rate.NewLimiter(perSecond, int(opts.ReloadsPerMinute))
	}

	if deps.Metrics != nil {
		s.metrics = fasthttpadaptor.NewFastHTTPHandler(deps.Metrics.Handler())
	}

	return s, nil
}

// Start listens in the background and returns once the listener is up or failed
func (s *Server) Start() error {
	s.server = &fasthttp.Server{
		Name:               version.UserAgent("admin"),
		Handler:            s.requestHandler,
		Logger:             compat.NewFastHTTPAdapter(s.logger),
		MaxRequestBodySize: maxDirectiveBytes,
		ReadTimeout:        5 * time.Second,
		WriteTimeout:       5 * time.Second,
	}

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("msg", "Admin server started",
			"component", "admin",
			"addr", addr,
			"auth", s.auth != nil)

		if err := s.server.ListenAndServe(addr); err != nil {
			errChan <- err
		}
	}()

	// Surface immediate bind failures
	select {
	case err := <-errChan:
		return fmt.Errorf("admin server failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Shutdown stops accepting connections and waits for open requests
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("msg", "Admin server stopping", "component", "admin")
	return s.server.ShutdownWithContext(ctx)
}

func (s *Server) requestHandler(ctx *fasthttp.RequestCtx) {
	s.requests.Add(1)
	path := string(ctx.Path())

	// Status and metrics are readable without authentication
	switch path {
	case StatusPath:
		s.handleStatus(ctx)
		return
	case MetricsPath:
		if s.metrics == nil {
			writeError(ctx, fasthttp.StatusNotFound, "metrics disabled")
			return
		}
		s.metrics(ctx)
		return
	}

	if s.auth != nil {
		authHeader := string(ctx.Request.Header.Peek("Authorization"))
		if err := s.auth.authenticate(authHeader); err != nil {
			s.authFailures.Add(1)
			s.logger.Warn("msg", "Authentication failed",
				"component", "admin",
				"remote_addr", ctx.RemoteAddr().String(),
				"error", err)
			ctx.Response.Header.Set("WWW-Authenticate", "Bearer")
			writeError(ctx, fasthttp.StatusUnauthorized, "Unauthorized")
			return
		}
	}

	switch path {
	case FilterPath:
		s.handleFilter(ctx)
	case RecentPath:
		s.handleRecent(ctx)
	default:
		writeError(ctx, fasthttp.StatusNotFound, "Not Found")
	}
}

func (s *Server) handleFilter(ctx *fasthttp.RequestCtx) {
	name := string(ctx.QueryArgs().Peek("layer"))
	if name == "" {
		name = s.opts.DefaultLayer
	}

	handle, err := s.handle(name)
	if err != nil {
		writeError(ctx, fasthttp.StatusNotFound, err.Error())
		return
	}

	switch {
	case ctx.IsGet():
		spec := handle.Get()
		writeJSON(ctx, fasthttp.StatusOK, map[string]any{
			"layer":     name,
			"filter":    spec.String(),
			"directive": spec.Source(),
			"ignored":   spec.Ignored(),
		})

	case ctx.IsPut() || ctx.IsPost():
		if s.limiter != nil && !s.limiter.Allow() {
			s.limited.Add(1)
			s.logger.Warn("msg", "Filter change rate limited",
				"component", "admin",
				"layer", name,
				"remote_addr", ctx.RemoteAddr().String())
			writeError(ctx, fasthttp.StatusTooManyRequests, "Too many requests")
			return
		}

		directive := strings.TrimSpace(string(ctx.PostBody()))
		if err := handle.Set(directive); err != nil {
			status := fasthttp.StatusInternalServerError
			if errors.Is(err, layer.ErrLayerGone) {
				status = fasthttp.StatusGone
			}
			writeError(ctx, status, err.Error())
			return
		}

		spec := handle.Get()
		writeJSON(ctx, fasthttp.StatusOK, map[string]any{
			"layer":   name,
			"filter":  spec.String(),
			"ignored": spec.Ignored(),
		})

	default:
		ctx.Response.Header.Set("Allow", "GET, PUT, POST")
		writeError(ctx, fasthttp.StatusMethodNotAllowed, "Method Not Allowed")
	}
}

func (s *Server) handleRecent(ctx *fasthttp.RequestCtx) {
	if s.deps.Recent == nil {
		writeError(ctx, fasthttp.StatusNotFound, "recent records disabled")
		return
	}

	n := 0
	if raw := ctx.QueryArgs().Peek("n"); len(raw) > 0 {
		parsed, err := strconv.Atoi(string(raw))
		if err != nil || parsed < 0 {
			writeError(ctx, fasthttp.StatusBadRequest, "n must be a non-negative integer")
			return
		}
		n = parsed
	}

	writeJSON(ctx, fasthttp.StatusOK, map[string]any{
		"count":   s.deps.Recent.Count(),
		"entries": s.deps.Recent.Tail(n),
	})
}

func (s *Server) handleStatus(ctx *fasthttp.RequestCtx) {
	sinks := make([]map[string]any, 0, len(s.deps.Sinks))
	for _, src := range s.deps.Sinks {
		st := src.GetStats()
		entry := map[string]any{
			"type":           st.Type,
			"written":        st.Written,
			"dropped":        st.Dropped,
			"write_errors":   st.WriteErrors,
			"rotations":      st.Rotations,
			"queue_length":   st.QueueLength,
			"queue_capacity": st.QueueCapacity,
		}
		if !st.LastWritten.IsZero() {
			entry["last_written"] = st.LastWritten.Format(time.RFC3339)
		}
		for k, v := range st.Details {
			entry[k] = v
		}
		sinks = append(sinks, entry)
	}

	status := map[string]any{
		"service":        "loglayer",
		"version":        version.Short(),
		"build":          version.Get(),
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
		"default_layer":  s.opts.DefaultLayer,
		"layers":         s.deps.Layers.Stats(),
		"sinks":          sinks,
		"admin": map[string]any{
			"requests":      s.requests.Load(),
			"auth_enabled":  s.auth != nil,
			"auth_failures": s.authFailures.Load(),
			"rate_limited":  s.limited.Load(),
		},
	}

	writeJSON(ctx, fasthttp.StatusOK, status)
}

// handle returns a cached reload handle for the named layer
func (s *Server) handle(name string) (*layer.ReloadHandle, error) {
	s.handlesMu.Lock()
	defer s.handlesMu.Unlock()

	if h, ok := s.handles[name]; ok {
		return h, nil
	}
	h, err := s.deps.Layers.Handle(name)
	if err != nil {
		return nil, err
	}
	s.handles[name] = h
	return h, nil
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, body any) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	data, err := json.Marshal(body)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		data = []byte(`{"error":"encoding failed"}`)
	}
	ctx.SetBody(data)
}

func writeError(ctx *fasthttp.RequestCtx, status int, message string) {
	writeJSON(ctx, status, map[string]string{"error": message})
}
