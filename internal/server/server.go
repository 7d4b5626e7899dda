// Package server exposes the dataset, statistics and exports over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Sternrassler/rickmorty-client/internal/config"
	"github.com/Sternrassler/rickmorty-client/pkg/export"
	"github.com/Sternrassler/rickmorty-client/pkg/metrics"
	"github.com/Sternrassler/rickmorty-client/pkg/rickmorty"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"

	shutdownTimeout = 30 * time.Second
	readyTimeout    = 2 * time.Second
)

// Server is the dashboard API.
type Server struct {
	engine   *gin.Engine
	client   rickmorty.Client
	settings config.Settings
	exporter *export.Exporter
	redis    *redis.Client
	logger   zerolog.Logger
}

// Option configures New.
type Option func(*Server)

// WithRedis makes /ready depend on rdb answering a ping.
func WithRedis(rdb *redis.Client) Option {
	return func(s *Server) {
		s.redis = rdb
	}
}

// New creates a server answering from c. settings is reported by
// /api/config and decides the export directory.
func New(c rickmorty.Client, settings config.Settings, opts ...Option) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		engine:   gin.New(),
		client:   c,
		settings: settings,
		exporter: export.NewExporter(settings.Output.Dir),
		logger:   log.With().Str("component", "server").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine.Use(requestID(), s.accessLog(), gin.Recovery())
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.engine
	r.GET("/", s.index)
	r.GET("/health", s.health)
	r.GET("/ready", s.ready)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api")
	{
		api.GET("/characters", s.listCharacters)
		api.GET("/characters/:id", s.getCharacter)
		api.GET("/locations", s.listLocations)
		api.GET("/statistics", s.statistics)
		api.POST("/export", s.exportData)
		api.GET("/export/download/:type", s.download)
		api.GET("/config", s.showConfig)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = "req_" + uuid.New().String()[:8]
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		ev := s.logger.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = s.logger.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", c.GetString(requestIDKey)).
			Msg("request")
	}
}
