// server.go - HTTP ingest and report server.
// The browser snippet or extension pushes timing entries and readouts to
// /api; reports, Prometheus metrics and the dev live stream are served back.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/brennhill/gasoline-perfkit/internal/host"
	"github.com/brennhill/gasoline-perfkit/internal/monitor"
	"github.com/brennhill/gasoline-perfkit/internal/telemetry"
)

const (
	maxPostBodySize   = 10 * 1024 * 1024 // 10MB
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 5 * time.Second
)

// Options configures a Server.
type Options struct {
	Monitor  *monitor.Monitor
	Exporter *telemetry.Exporter
	Logger   *zap.Logger

	// AllowedOrigins extends the loopback/extension origin allowlist.
	AllowedOrigins []string
	// AllowAnyHost disables Host header validation for non-loopback binds.
	AllowAnyHost bool
	// LivePingInterval is the websocket keepalive cadence (default 30s).
	LivePingInterval time.Duration
}

// Server routes the perfkit HTTP API.
type Server struct {
	opts     Options
	mon      *monitor.Monitor
	push     *host.PushHost
	logger   *zap.Logger
	router   chi.Router
	upgrader websocket.Upgrader

	closeOnce sync.Once
	closing   chan struct{}
	liveWG    sync.WaitGroup
}

// New builds the router. Ingest endpoints answer 501 unless the monitor
// runs on a PushHost.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.LivePingInterval <= 0 {
		opts.LivePingInterval = 30 * time.Second
	}
	s := &Server{
		opts:    opts,
		mon:     opts.Monitor,
		logger:  opts.Logger.Named("server"),
		closing: make(chan struct{}),
	}
	s.push, _ = opts.Monitor.Host().(*host.PushHost)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return isAllowedOrigin(r.Header.Get("Origin"), opts.AllowedOrigins)
		},
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if s.opts.Exporter != nil {
		r.Use(s.opts.Exporter.Middleware)
	}
	r.Use(s.guard)

	r.Get("/health", s.handleHealth)
	if s.opts.Exporter != nil {
		r.Method(http.MethodGet, "/metrics", s.opts.Exporter.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/entries", s.handleEntries)
		r.Post("/memory", s.handleMemory)
		r.Post("/renders", s.handleRender)
		r.Post("/components", s.handleComponent)

		r.Route("/bundle", func(r chi.Router) {
			r.Post("/graph", s.handleBundleGraph)
			r.Post("/chunks", s.handleChunkLoad)
			r.Post("/parse-time", s.handleParseTime)
		})

		r.Route("/reports", func(r chi.Router) {
			r.Get("/performance", s.handlePerformanceReport)
			r.Get("/bundle", s.handleBundleReport)
			r.Get("/memory", s.handleMemoryReport)
			r.Get("/full", s.handleFullReport)
			r.Get("/last", s.handleLastReport)
		})
		r.Post("/diagnostics", s.handleDiagnostics)

		r.Get("/virtual/range", s.handleVirtualRange)
	})

	if s.mon.Development() {
		r.Get("/debug/live", s.handleLive)
	}
	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe binds addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts on ln until ctx is done, then shuts down gracefully and
// closes live streams.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          zap.NewStdLog(s.logger),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.Close()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})
	err := g.Wait()
	s.liveWG.Wait()
	s.logger.Info("server stopped")
	return err
}

// Close ends every live stream. Idempotent.
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.closing) })
}
