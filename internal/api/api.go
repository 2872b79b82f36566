// Package api serves read access to the latest harvest snapshot.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/glefebvre/vodharvest/internal/config"
	"github.com/glefebvre/vodharvest/internal/database"
	"github.com/glefebvre/vodharvest/internal/logger"
	"github.com/glefebvre/vodharvest/internal/metrics"
)

// Server represents the API server
type Server struct {
	router  *gin.Engine
	store   *database.Store
	metrics *metrics.Metrics
	logger  *logger.Logger

	mu   sync.Mutex
	http *http.Server
}

// NewServer creates a new API server instance. m may be nil, in which case
// /metrics is not mounted.
func NewServer(store *database.Store, m *metrics.Metrics, cfg config.APIConfig) *Server {
	router := gin.New()

	s := &Server{
		router:  router,
		store:   store,
		metrics: m,
		logger:  logger.AppLogger(),
	}

	router.Use(requestIDMiddleware())
	router.Use(requestLoggerMiddleware(s.logger))
	router.Use(errorHandlerMiddleware(s.logger))
	router.Use(cors.New(corsConfig(cfg.AllowedOrigins)))

	s.setupRoutes()

	return s
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "X-Request-ID"},
		ExposeHeaders: []string{"X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return c
}

// Handler exposes the router (used by tests)
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run starts the API server on the specified port and blocks until it stops
func (s *Server) Run(port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.http = srv
	s.mu.Unlock()

	s.logger.WithFields(map[string]interface{}{"port": port}).Info("API server listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.GET("/health", s.healthCheck)

	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	// API v1 routes
	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/runs/latest", s.latestRun)

		v1.GET("/shows", s.listShows)
		v1.GET("/shows/:id", s.getShow)

		v1.GET("/categories", s.listCategories)
	}
}
