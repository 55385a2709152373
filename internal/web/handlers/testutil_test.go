package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/photolink/internal/features"
	"github.com/kozaktomas/photolink/internal/jobs"
	"github.com/kozaktomas/photolink/internal/scan"
)

// fakeService keeps jobs in memory and never runs them.
type fakeService struct {
	mu        sync.Mutex
	jobs      map[string]*jobs.Job
	submitErr error
	lastReq   scan.SubmitRequest
	lastBatch scan.BatchRequest
}

func newFakeService() *fakeService {
	return &fakeService{jobs: map[string]*jobs.Job{}}
}

func (f *fakeService) add(job *jobs.Job) *jobs.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[job.ID()] = job
	return job
}

func (f *fakeService) Submit(_ context.Context, req scan.SubmitRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastReq = req
	if f.submitErr != nil {
		return "", f.submitErr
	}
	job := jobs.NewJob("job-1", req.Source, "google_drive", jobs.Criteria{SearchText: req.SearchText})
	f.jobs[job.ID()] = job
	return job.ID(), nil
}

func (f *fakeService) SubmitBatch(_ context.Context, req scan.BatchRequest) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastBatch = req
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	ids := make([]string, 0, len(req.Sources))
	for i, src := range req.Sources {
		job := jobs.NewJob(fmt.Sprintf("job-%d", i+1), src, "google_drive", jobs.Criteria{SearchText: req.SearchText})
		f.jobs[job.ID()] = job
		ids = append(ids, job.ID())
	}
	return ids, nil
}

func (f *fakeService) Job(id string) (*jobs.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, jobs.ErrJobNotFound
	}
	return job, nil
}

func (f *fakeService) Status(id string) (jobs.Status, error) {
	job, err := f.Job(id)
	if err != nil {
		return jobs.Status{}, err
	}
	return job.Status(50, 20), nil
}

func (f *fakeService) List() []jobs.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []jobs.Status{}
	for _, job := range f.jobs {
		out = append(out, job.Status(50, 20))
	}
	return out
}

func (f *fakeService) Cancel(id string) error {
	job, err := f.Job(id)
	if err != nil {
		return err
	}
	return job.Cancel()
}

func (f *fakeService) Providers() []string {
	return []string{"google_drive", "onedrive"}
}

type fakeCache struct {
	stats    features.Stats
	err      error
	clearErr error
	cleared  bool
}

func (c *fakeCache) Stats(context.Context) (features.Stats, error) {
	return c.stats, c.err
}

func (c *fakeCache) Clear(context.Context) error {
	if c.clearErr != nil {
		return c.clearErr
	}
	c.cleared = true
	return nil
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// multipartRequest builds a scan submission form. A nil image omits the file part.
func multipartRequest(t *testing.T, fields map[string]string, image []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if image != nil {
		part, err := mw.CreateFormFile("face_image", "ref.jpg")
		if err != nil {
			t.Fatal(err)
		}
		part.Write(image)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/scans", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
