// Package http provides the ambient HTTP surface: a health server and a
// standalone Prometheus metrics server. The session and identity engines are
// consumed as libraries; no product API is exposed here.
package http

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Server represents the health HTTP server.
type Server struct {
	server *http.Server
	router *gin.Engine
	db     *sql.DB
	cache  redis.UniversalClient
	logger *slog.Logger
}

// NewServer creates a new health server. The database and cache handles are
// only pinged by the readiness endpoint; either may be nil, in which case the
// corresponding component reports an error.
func NewServer(
	db *sql.DB,
	cache redis.UniversalClient,
	host string,
	port int,
	logger *slog.Logger,
) *Server {
	return &Server{
		db:     db,
		cache:  cache,
		logger: logger,
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", host, port),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// SetupRouter configures the gin router with the middleware stack and the
// health endpoints. metricsMiddleware may be nil when metrics are disabled.
func (s *Server) SetupRouter(
	corsEnabled bool,
	corsAllowOrigins string,
	metricsMiddleware gin.HandlerFunc,
) {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestid.New(requestid.WithGenerator(func() string {
		return uuid.Must(uuid.NewV7()).String()
	})))
	router.Use(CustomLoggerMiddleware(s.logger))

	if corsMiddleware := createCORSMiddleware(corsEnabled, corsAllowOrigins, s.logger); corsMiddleware != nil {
		router.Use(corsMiddleware)
	}

	if metricsMiddleware != nil {
		router.Use(metricsMiddleware)
	}

	router.GET("/livez", s.livenessHandler)
	router.GET("/healthz", s.healthHandler)

	s.router = router
}

// livenessHandler reports that the process is up.
func (s *Server) livenessHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// healthHandler reports readiness: the database and the cache store must both
// answer a ping.
func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	components := gin.H{}
	healthy := true

	if s.db != nil {
		if err := s.db.PingContext(ctx); err != nil {
			components["database"] = "error"
			healthy = false
		} else {
			components["database"] = "ok"
		}
	} else {
		components["database"] = "error"
		healthy = false
	}

	if s.cache != nil {
		if err := s.cache.Ping(ctx).Err(); err != nil {
			components["cache"] = "error"
			healthy = false
		} else {
			components["cache"] = "ok"
		}
	} else {
		components["cache"] = "error"
		healthy = false
	}

	if !healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":     "not_ready",
			"components": components,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "ready",
		"components": components,
	})
}

// Start starts the health HTTP server.
func (s *Server) Start(ctx context.Context) error {
	s.server.Handler = s.router

	s.logger.Info("starting http server", slog.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the health HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.server.Shutdown(ctx)
}
