package web

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kozaktomas/photolink/internal/web/handlers"
)

func (s *Server) setupRoutes(logger *slog.Logger) {
	scansHandler := handlers.NewScansHandler(s.scans, logger)
	cacheHandler := handlers.NewCacheHandler(s.cache, logger)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", handlers.HealthCheck(s.health, s.scans))

		// event streams are long-lived, everything else gets a timeout
		r.Get("/scans/{jobId}/events", scansHandler.Events)

		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.Timeout(time.Minute))

			r.Post("/scans", scansHandler.Submit)
			r.Post("/scans/batch", scansHandler.SubmitBatch)
			r.Get("/scans", scansHandler.List)
			r.Get("/scans/{jobId}", scansHandler.Get)
			r.Delete("/scans/{jobId}", scansHandler.Cancel)

			r.Get("/cache/stats", cacheHandler.Stats)
			r.Delete("/cache", cacheHandler.Clear)
		})
	})
}
