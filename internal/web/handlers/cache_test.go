package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/photolink/internal/features"
)

func TestCacheHandler_Stats(t *testing.T) {
	cache := &fakeCache{stats: features.Stats{Backend: "memory", FaceEntries: 3, TextEntries: 5, Hits: 10, Misses: 8}}
	h := NewCacheHandler(cache, nil)
	recorder := httptest.NewRecorder()

	h.Stats(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/cache/stats", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	var stats features.Stats
	parseJSONResponse(t, recorder, &stats)
	if stats != cache.stats {
		t.Errorf("expected %+v, got %+v", cache.stats, stats)
	}
}

func TestCacheHandler_StatsError(t *testing.T) {
	h := NewCacheHandler(&fakeCache{err: errors.New("connection refused")}, nil)
	recorder := httptest.NewRecorder()

	h.Stats(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/cache/stats", nil))

	assertStatusCode(t, recorder, http.StatusInternalServerError)
	assertJSONError(t, recorder, "failed to read cache statistics")
}

func TestCacheHandler_Clear(t *testing.T) {
	cache := &fakeCache{}
	h := NewCacheHandler(cache, nil)
	recorder := httptest.NewRecorder()

	h.Clear(recorder, httptest.NewRequest(http.MethodDelete, "/api/v1/cache", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	if !cache.cleared {
		t.Error("expected cache to be cleared")
	}

	failing := NewCacheHandler(&fakeCache{clearErr: errors.New("locked")}, nil)
	recorder = httptest.NewRecorder()
	failing.Clear(recorder, httptest.NewRequest(http.MethodDelete, "/api/v1/cache", nil))
	assertStatusCode(t, recorder, http.StatusInternalServerError)
}
