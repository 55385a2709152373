package handlers

import (
	"log/slog"
	"net/http"

	"github.com/kozaktomas/photolink/internal/logging"
)

// CacheHandler exposes feature cache statistics and maintenance.
type CacheHandler struct {
	cache  FeatureCache
	logger *slog.Logger
}

// NewCacheHandler creates a new cache handler.
func NewCacheHandler(cache FeatureCache, logger *slog.Logger) *CacheHandler {
	return &CacheHandler{cache: cache, logger: logging.NewComponentLogger(logger, "http")}
}

// Stats returns cache counters and entry counts.
func (h *CacheHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.cache.Stats(r.Context())
	if err != nil {
		h.logger.Error("cache stats failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to read cache statistics")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// Clear drops every cached feature record.
func (h *CacheHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.cache.Clear(r.Context()); err != nil {
		h.logger.Error("cache clear failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to clear cache")
		return
	}
	h.logger.Info("feature cache cleared")
	respondJSON(w, http.StatusOK, map[string]bool{"cleared": true})
}
