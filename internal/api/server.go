// Package api exposes the cached data over HTTP. Handlers only ever read
// the cache or enqueue background refreshes; no request path waits on an
// upstream forum.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/SovereignSignal/discusswatch/internal/config"
	"github.com/SovereignSignal/discusswatch/internal/logger"
	"github.com/SovereignSignal/discusswatch/internal/metrics"
	"github.com/SovereignSignal/discusswatch/internal/ratelimit"
)

// Server wraps the gin engine and http.Server lifecycle.
type Server struct {
	router *gin.Engine
	server *http.Server
	log    logger.Logger
}

// NewServer builds the router with standard middleware and all routes
// registered. registry is exposed at /metrics; pass the same registry the
// Metrics collectors were registered on.
func NewServer(
	cfg config.ServerConfig,
	rlCfg config.RateLimitConfig,
	handler *Handler,
	limiter *ratelimit.Limiter,
	m *metrics.Metrics,
	registry *prometheus.Registry,
	log logger.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	// Recovery first to catch panics, then request logging, then the
	// inbound limiter so abusive clients are cut off before handlers run.
	router.Use(RecoveryMiddleware(log))
	router.Use(LoggerMiddleware(log))
	router.Use(CORSMiddleware())

	router.GET("/health", handler.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	v1 := router.Group("/api/v1")
	v1.Use(RateLimitMiddleware(limiter, rlCfg, m, log))
	SetupRoutes(v1, handler)

	httpServer := &http.Server{
		Addr:         cfg.Address,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &Server{
		router: router,
		server: httpServer,
		log:    log,
	}
}

// Router returns the underlying gin engine, used by handler tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("starting http server", logger.String("address", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// StartAsync serves in a goroutine; the returned channel yields a startup
// error or closes on clean shutdown.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down http server")
	return s.server.Shutdown(ctx)
}
