// Package handlers implements the HTTP API for submitting and monitoring scans.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/kozaktomas/photolink/internal/features"
	"github.com/kozaktomas/photolink/internal/jobs"
	"github.com/kozaktomas/photolink/internal/scan"
)

// ScanService is the part of scan.Service the handlers use.
type ScanService interface {
	Submit(ctx context.Context, req scan.SubmitRequest) (string, error)
	SubmitBatch(ctx context.Context, req scan.BatchRequest) ([]string, error)
	Status(jobID string) (jobs.Status, error)
	Job(jobID string) (*jobs.Job, error)
	List() []jobs.Status
	Cancel(jobID string) error
	Providers() []string
}

// FeatureCache is the part of features.Cache exposed over HTTP.
type FeatureCache interface {
	Stats(ctx context.Context) (features.Stats, error)
	Clear(ctx context.Context) error
}

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// bearerToken returns the token of an "Authorization: Bearer" header, or "".
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// HealthInfo is reported by the health endpoint.
type HealthInfo struct {
	CacheBackend  string `json:"cache_backend"`
	TextExtractor string `json:"text_extractor"`
	FaceMatching  bool   `json:"face_matching"`
}

// HealthCheck returns a handler for the health check endpoint.
func HealthCheck(info HealthInfo, svc ScanService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]any{
			"status":         "ok",
			"cache_backend":  info.CacheBackend,
			"text_extractor": info.TextExtractor,
			"face_matching":  info.FaceMatching,
			"providers":      svc.Providers(),
		})
	}
}
