// Package server exposes the session state over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/evdnx/gorb/logger"
	"github.com/evdnx/gorb/metrics"
	"github.com/evdnx/gorb/strategy"
)

// StatusProvider is read concurrently with the trading loop.
type StatusProvider interface {
	Snapshot() strategy.Snapshot
}

type Config struct {
	Addr    string
	Version string
}

type Server struct {
	cfg        Config
	status     StatusProvider
	log        logger.Logger
	router     *gin.Engine
	httpServer *http.Server
	started    time.Time
}

func New(cfg Config, status StatusProvider, log logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(log))

	s := &Server{
		cfg:     cfg,
		status:  status,
		log:     log,
		router:  router,
		started: time.Now(),
	}
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))
	api := s.router.Group("/api")
	api.GET("/status", s.handleStatus)
	api.GET("/position", s.handlePosition)
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until Shutdown. Shutdown may be called first.
func (s *Server) Start() error {
	s.log.Info("http_server_started", logger.String("addr", s.cfg.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("http_server_stopping")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"version": s.cfg.Version,
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.status.Snapshot())
}

func (s *Server) handlePosition(c *gin.Context) {
	snap := s.status.Snapshot()
	if snap.Position == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no open position"})
		return
	}
	c.JSON(http.StatusOK, snap.Position)
}

func requestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http_request",
			logger.String("method", c.Request.Method),
			logger.String("path", c.FullPath()),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("latency", time.Since(start)),
		)
	}
}
