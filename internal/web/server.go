// Package web serves the scan API over HTTP.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kozaktomas/photolink/internal/logging"
	"github.com/kozaktomas/photolink/internal/web/handlers"
	"github.com/kozaktomas/photolink/internal/web/middleware"
)

// Options configures the web server.
type Options struct {
	Host           string
	Port           int
	AllowedOrigins []string
	Health         handlers.HealthInfo
	Logger         *slog.Logger
}

// Server represents the web server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	scans      handlers.ScanService
	cache      handlers.FeatureCache
	health     handlers.HealthInfo
	logger     *slog.Logger
}

// NewServer creates a new web server
func NewServer(scans handlers.ScanService, cache handlers.FeatureCache, opts Options) *Server {
	r := chi.NewRouter()

	s := &Server{
		router: r,
		scans:  scans,
		cache:  cache,
		health: opts.Health,
		logger: logging.NewComponentLogger(opts.Logger, "web"),
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(opts.AllowedOrigins))
	r.Use(middleware.SecurityHeaders())

	s.setupRoutes(opts.Logger)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // event streams stay open for the whole scan
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting web server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down web server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
