// Package server exposes the bot's health, supervisor status and Prometheus
// metrics over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"celebrator/internal/logging"
	"celebrator/internal/supervisor"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultReadHeaderTimeout = 5 * time.Second
	defaultShutdownTimeout   = 5 * time.Second
)

// StatusSource reports the supervisor state.
type StatusSource interface {
	Status() supervisor.Status
}

// Config configures the status server.
type Config struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// StatusServer serves /healthz, /status and /metrics.
type StatusServer struct {
	cfg     Config
	engine  *gin.Engine
	source  StatusSource
	logger  logging.Logger
	started time.Time
}

// NewStatusServer builds the router. gatherer may be nil to use the default
// Prometheus registry.
func NewStatusServer(cfg Config, source StatusSource, gatherer prometheus.Gatherer, logger logging.Logger) *StatusServer {
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = defaultReadHeaderTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &StatusServer{
		cfg:     cfg,
		engine:  engine,
		source:  source,
		logger:  logging.OrNop(logger),
		started: time.Now(),
	}
	engine.GET("/healthz", s.handleHealth)
	engine.GET("/status", s.handleStatus)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	return s
}

// Handler returns the HTTP handler, mainly for tests.
func (s *StatusServer) Handler() http.Handler {
	return s.engine
}

func (s *StatusServer) handleHealth(c *gin.Context) {
	if s.source != nil && s.source.Status().State == supervisor.StateTerminated.String() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "terminated"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *StatusServer) handleStatus(c *gin.Context) {
	body := gin.H{"uptime_seconds": int64(time.Since(s.started).Seconds())}
	if s.source != nil {
		body["supervisor"] = s.source.Status()
	}
	c.JSON(http.StatusOK, body)
}

// Run listens on cfg.Addr until ctx is cancelled, then shuts down gracefully.
func (s *StatusServer) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *StatusServer) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("status server listening on %s", ln.Addr())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("status server stopped")
	return nil
}
