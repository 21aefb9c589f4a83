// Package wsapi serves editor sessions over HTTP: uploads open a session,
// a websocket drives playback and capture, and the gallery is exported as
// a ZIP bundle or an HTML contact sheet.
package wsapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ysrdora/nextframe/internal/domain/port"
)

type Config struct {
	Addr           string
	TempDir        string
	MaxUploadBytes int64
	LoadTimeout    time.Duration
	SessionMaxAge  time.Duration
}

type Server struct {
	cfg        Config
	factory    port.ElementFactory
	store      port.FrameStore
	logger     *zap.Logger
	router     *gin.Engine
	sessions   *registry
	httpServer *http.Server
}

// NewServer builds the router. store may be nil, in which case galleries
// live only as long as their session.
func NewServer(cfg Config, factory port.ElementFactory, store port.FrameStore, logger *zap.Logger) *Server {
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = 30 * time.Second
	}
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(ginLogger(logger))
	router.Use(gin.Recovery())

	s := &Server{
		cfg:      cfg,
		factory:  factory,
		store:    store,
		logger:   logger,
		router:   router,
		sessions: newRegistry(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	sessions := s.router.Group("/sessions")
	{
		sessions.POST("", s.handleCreateSession)
		sessions.GET("/:id", s.handleGetSession)
		sessions.DELETE("/:id", s.handleDeleteSession)
		sessions.GET("/:id/ws", s.handleWebSocket)
		sessions.GET("/:id/export.zip", s.handleExportBundle)
		sessions.GET("/:id/contact-sheet.html", s.handleContactSheet)
		sessions.DELETE("/:id/frames", s.handleClearFrames)
		sessions.DELETE("/:id/frames/:frameId", s.handleDeleteFrame)
	}
}

func (s *Server) Handler() http.Handler { return s.router }

// Start serves in the background until Shutdown.
func (s *Server) Start() {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
	}

	go func() {
		s.logger.Info("session server starting", zap.String("addr", s.cfg.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("session server error", zap.Error(err))
		}
	}()
}

// Shutdown stops accepting requests and releases every session.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.sessions.closeAll()
	return err
}

// RunCleanup drops sessions and stored frames older than the configured
// maximum age every interval, until ctx is done.
func (s *Server) RunCleanup(ctx context.Context, interval time.Duration) {
	if s.cfg.SessionMaxAge <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.cleanup(ctx, now)
		}
	}
}

func (s *Server) cleanup(ctx context.Context, now time.Time) {
	cutoff := now.Add(-s.cfg.SessionMaxAge)
	closed := s.sessions.expire(cutoff)

	var deleted int64
	if s.store != nil {
		var err error
		deleted, err = s.store.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			s.logger.Error("failed to delete stale frames", zap.Error(err))
		}
	}
	if closed > 0 || deleted > 0 {
		s.logger.Info("stale sessions cleaned up",
			zap.Int("sessions_closed", closed),
			zap.Int64("frames_deleted", deleted),
		)
	}
}

func ginLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
