package scan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/kozaktomas/photolink/internal/jobs"
	"github.com/kozaktomas/photolink/internal/source"
)

func TestScan_FailingDownloadsAreCounted(t *testing.T) {
	ids := make([]string, 10)
	for i := range ids {
		ids[i] = fmt.Sprintf("img%d", i)
	}
	adapter := newFakeAdapter(ids...)
	adapter.failIDs["img3"] = true
	adapter.failIDs["img7"] = true
	h := newHarness(t, adapter)
	h.text.byData["img1"] = []string{"#7 Home"}
	h.text.byData["img2"] = []string{"47 Away"}

	id, err := h.svc.Submit(context.Background(), SubmitRequest{Source: testSource, SearchText: "7"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	s := waitTerminal(t, h.svc, id)
	if s.Phase != jobs.PhaseDone {
		t.Fatalf("expected done, got %s (%s)", s.Phase, s.Error)
	}
	if s.Total != 10 || s.Processed != 10 {
		t.Errorf("expected 10/10, got %d/%d", s.Processed, s.Total)
	}
	if s.ErrorCount != 2 || s.MatchCount != 1 {
		t.Fatalf("expected 2 errors and 1 match, got %d/%d", s.ErrorCount, s.MatchCount)
	}
	if s.Matches[0].ImageID != "img1" || s.Matches[0].Reason != "text" || s.Matches[0].Link == "" {
		t.Errorf("unexpected match %+v", s.Matches[0])
	}
	if s.MatchCount+s.ErrorCount > s.Processed {
		t.Error("matches + errors must not exceed processed")
	}
	if got := h.text.calls.Load(); got != 8 {
		t.Errorf("expected 8 text extractions, got %d", got)
	}
}

func TestSubmit_Validation(t *testing.T) {
	tests := []struct {
		name  string
		req   SubmitRequest
		field string
	}{
		{"unsupported host", SubmitRequest{Source: "https://example.com/album", SearchText: "7"}, "source"},
		{"malformed", SubmitRequest{Source: "not a source", SearchText: "7"}, "source"},
		{"provider not enabled", SubmitRequest{Source: "https://1drv.ms/f/s!abc", SearchText: "7"}, "source"},
		{"empty criterion", SubmitRequest{Source: testSource}, "criterion"},
		{"blank search text", SubmitRequest{Source: testSource, SearchText: " #!? "}, "search_text"},
		{"reference without face", SubmitRequest{Source: testSource, ReferenceImage: []byte("landscape")}, "face_image"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, newFakeAdapter("a"))

			_, err := h.svc.Submit(context.Background(), tt.req)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, verr.Field)
			}
			if h.registry.Len() != 0 {
				t.Error("no job may be created for an invalid submission")
			}
			if h.adapter.lists.Load() != 0 {
				t.Error("adapter must not be called")
			}
		})
	}
}

func TestSubmit_ReferenceExtractionFailure(t *testing.T) {
	h := newHarness(t, newFakeAdapter("a"))
	h.faces.err = errBoom

	_, err := h.svc.Submit(context.Background(), SubmitRequest{Source: testSource, ReferenceImage: []byte("ref")})
	var verr *ValidationError
	if err == nil || errors.As(err, &verr) {
		t.Fatalf("expected a non-validation error, got %v", err)
	}
	if !errors.Is(err, errBoom) {
		t.Errorf("expected wrapped cause, got %v", err)
	}
}

func TestScan_ListingFailure(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.listErr = errors.New("Drive API error: File not found: album1. access_token=secret123")
	h := newHarness(t, adapter)

	id, err := h.svc.Submit(context.Background(), SubmitRequest{Source: testSource, SearchText: "7"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	s := waitTerminal(t, h.svc, id)
	if s.Phase != jobs.PhaseError {
		t.Fatalf("expected error phase, got %s", s.Phase)
	}
	if s.Processed != 0 || s.Total != 0 {
		t.Errorf("expected no progress, got %d/%d", s.Processed, s.Total)
	}
	if !strings.Contains(s.Error, "File not found") {
		t.Errorf("expected adapter message, got %q", s.Error)
	}
	if strings.Contains(s.Error, "secret123") {
		t.Errorf("status error leaks credentials: %q", s.Error)
	}
}

func TestScan_CredentialFailure(t *testing.T) {
	adapter := newFakeAdapter("a")
	h := newHarness(t, adapter)
	h.svc.credentials = staticCredentials{err: &source.AuthError{Provider: "google_drive"}}

	id, _ := h.svc.Submit(context.Background(), SubmitRequest{Source: testSource, SearchText: "7"})
	s := waitTerminal(t, h.svc, id)
	if s.Phase != jobs.PhaseError || !strings.Contains(s.Error, "no credentials") {
		t.Errorf("expected credential error, got %s %q", s.Phase, s.Error)
	}
	if adapter.lists.Load() != 0 {
		t.Error("listing must not start without credentials")
	}
}

func TestScan_FaceMatchSkipsText(t *testing.T) {
	adapter := newFakeAdapter("near", "far", "none")
	h := newHarness(t, adapter)
	h.faces.byData["ref"] = [][]float32{{0, 0}}
	h.faces.byData["near"] = [][]float32{{5, 5}, {0.7, 0}}
	h.faces.byData["far"] = [][]float32{{0.8, 0}}
	h.text.byData["far"] = []string{"NOVAK 10"}

	id, err := h.svc.Submit(context.Background(), SubmitRequest{
		Source:         testSource,
		ReferenceImage: []byte("ref"),
		SearchText:     "novák",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	s := waitTerminal(t, h.svc, id)
	if s.MatchCount != 2 {
		t.Fatalf("expected 2 matches, got %+v", s.Matches)
	}
	reasons := map[string]string{}
	for _, m := range s.Matches {
		reasons[m.ImageID] = m.Reason
	}
	if reasons["near"] != "face" || reasons["far"] != "text" {
		t.Errorf("unexpected reasons %v", reasons)
	}
	// "near" matched on faces so its text was never extracted
	if got := h.text.calls.Load(); got != 2 {
		t.Errorf("expected 2 text extractions, got %d", got)
	}
	// each image downloaded once even though two feature kinds were needed
	if got := adapter.downloads.Load(); got != 3 {
		t.Errorf("expected 3 downloads, got %d", got)
	}
}

func TestScan_FaceExtractionErrorFailsImage(t *testing.T) {
	adapter := newFakeAdapter("a")
	h := newHarness(t, adapter)
	h.faces.byData["ref"] = [][]float32{{0, 0}}
	h.faces.failOn["a"] = true

	id, err := h.svc.Submit(context.Background(), SubmitRequest{Source: testSource, ReferenceImage: []byte("ref"), SearchText: "7"})
	if err != nil {
		t.Fatal(err)
	}

	s := waitTerminal(t, h.svc, id)
	if s.ErrorCount != 1 || s.Processed != 1 {
		t.Errorf("expected the image to fail, got %+v", s)
	}
	if h.text.calls.Load() != 0 {
		t.Error("text must not be tried after a face extraction failure")
	}
}

func TestScan_ConcurrentJobsShareExtraction(t *testing.T) {
	adapter := newFakeAdapter("a", "b", "c", "d")
	h := newHarness(t, adapter)
	h.text.gate = make(chan struct{})
	h.text.byData["c"] = []string{"7"}

	var ids []string
	for range 2 {
		id, err := h.svc.Submit(context.Background(), SubmitRequest{Source: testSource, SearchText: "7"})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}

	waitFor(t, func() bool { return h.text.calls.Load() >= 1 })
	close(h.text.gate)

	for _, id := range ids {
		s := waitTerminal(t, h.svc, id)
		if s.Phase != jobs.PhaseDone || s.Processed != 4 || s.MatchCount != 1 {
			t.Errorf("job %s: unexpected status %+v", id, s)
		}
	}
	if got := h.text.calls.Load(); got != 4 {
		t.Errorf("expected one extraction per image across both jobs, got %d", got)
	}
	if got := adapter.downloads.Load(); got != 4 {
		t.Errorf("expected one download per image across both jobs, got %d", got)
	}
}

func TestScan_Cancel(t *testing.T) {
	adapter := newFakeAdapter("a", "b", "c")
	adapter.block = make(chan struct{})
	h := newHarness(t, adapter)
	defer close(adapter.block)

	id, err := h.svc.Submit(context.Background(), SubmitRequest{Source: testSource, SearchText: "7"})
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return adapter.downloads.Load() >= 1 })

	if err := h.svc.Cancel(id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	s := waitTerminal(t, h.svc, id)
	if s.Phase != jobs.PhaseCancelled {
		t.Fatalf("expected cancelled, got %s", s.Phase)
	}
	if s.Processed != 0 || s.ErrorCount != 0 {
		t.Errorf("cancellation must not record image errors: %+v", s)
	}
	if err := h.svc.Cancel(id); !errors.Is(err, jobs.ErrJobFinished) {
		t.Errorf("expected ErrJobFinished, got %v", err)
	}
	if err := h.svc.Cancel("missing"); !errors.Is(err, jobs.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestScan_PanicIsRecorded(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.panicList = true
	h := newHarness(t, adapter)

	id, _ := h.svc.Submit(context.Background(), SubmitRequest{Source: testSource, SearchText: "7"})
	s := waitTerminal(t, h.svc, id)
	if s.Phase != jobs.PhaseError || !strings.Contains(s.Error, "internal error") {
		t.Errorf("expected recovered panic, got %s %q", s.Phase, s.Error)
	}
}

func TestScan_PanicsWhileProcessingFailOnlyThatImage(t *testing.T) {
	adapter := newFakeAdapter("a", "b", "c", "d")
	adapter.panicIDs["b"] = true
	h := newHarness(t, adapter)
	h.text.panicOn["c"] = true
	h.text.byData["d"] = []string{"#7"}

	id, err := h.svc.Submit(context.Background(), SubmitRequest{Source: testSource, SearchText: "7"})
	if err != nil {
		t.Fatal(err)
	}

	s := waitTerminal(t, h.svc, id)
	if s.Phase != jobs.PhaseDone {
		t.Fatalf("expected done, got %s (%s)", s.Phase, s.Error)
	}
	if s.Processed != 4 || s.Total != 4 {
		t.Errorf("expected 4/4 processed, got %d/%d", s.Processed, s.Total)
	}
	if s.ErrorCount != 2 {
		t.Fatalf("expected 2 errors, got %d: %+v", s.ErrorCount, s.Errors)
	}
	failed := map[string]bool{}
	for _, e := range s.Errors {
		failed[e.ImageID] = true
	}
	if !failed["b"] || !failed["c"] {
		t.Errorf("expected b and c to fail, got %+v", s.Errors)
	}
	if s.MatchCount != 1 || s.Matches[0].ImageID != "d" {
		t.Errorf("expected d to match, got %+v", s.Matches)
	}
}

func TestSubmitBatch_OneJobPerSource(t *testing.T) {
	adapter := newFakeAdapter("a", "b")
	h := newHarness(t, adapter)
	h.faces.byData["ref"] = [][]float32{{0, 0}}
	h.faces.byData["b"] = [][]float32{{0.1, 0}}

	ids, err := h.svc.SubmitBatch(context.Background(), BatchRequest{
		Sources:        []string{testSource, " ", "https://drive.google.com/drive/folders/album2"},
		ReferenceImage: []byte("ref"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] == ids[1] {
		t.Fatalf("expected two distinct jobs, got %v", ids)
	}

	for _, id := range ids {
		s := waitTerminal(t, h.svc, id)
		if s.Phase != jobs.PhaseDone || s.MatchCount != 1 || s.Matches[0].ImageID != "b" {
			t.Errorf("job %s: unexpected status %+v", id, s)
		}
	}
	if s, _ := h.svc.Status(ids[1]); s.Source != "https://drive.google.com/drive/folders/album2" {
		t.Errorf("expected the second job to scan album2, got %q", s.Source)
	}
	// reference once, then each image once across both jobs
	if got := h.faces.calls.Load(); got != 3 {
		t.Errorf("expected 3 face extractions, got %d", got)
	}
}

func TestSubmitBatch_Validation(t *testing.T) {
	tests := []struct {
		name    string
		sources []string
		field   string
	}{
		{"no sources", nil, "sources"},
		{"only blanks", []string{"", "  "}, "sources"},
		{"too many", []string{testSource, testSource, testSource, testSource, testSource, testSource}, "sources"},
		{"bad second source", []string{testSource, "https://example.com/album"}, "sources[1]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := newFakeAdapter("a")
			h := newHarness(t, adapter)

			_, err := h.svc.SubmitBatch(context.Background(), BatchRequest{Sources: tt.sources, SearchText: "7"})
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, verr.Field)
			}
			if len(h.svc.List()) != 0 {
				t.Error("no job should be created")
			}
			if adapter.lists.Load() != 0 {
				t.Error("adapter must not be called")
			}
		})
	}
}

func TestScan_EmptyAlbum(t *testing.T) {
	h := newHarness(t, newFakeAdapter())

	id, _ := h.svc.Submit(context.Background(), SubmitRequest{Source: testSource, SearchText: "7"})
	s := waitTerminal(t, h.svc, id)
	if s.Phase != jobs.PhaseDone || s.Total != 0 || s.Progress != 100 {
		t.Errorf("unexpected status %+v", s)
	}
}

func TestService_StatusWindowsAndList(t *testing.T) {
	ids := []string{"a", "b", "c", "d"}
	adapter := newFakeAdapter(ids...)
	h := newHarness(t, adapter, WithStatusWindows(2, 1))
	for _, id := range ids {
		h.text.byData[id] = []string{"7"}
	}

	id, _ := h.svc.Submit(context.Background(), SubmitRequest{Source: testSource, SearchText: "7"})
	s := waitTerminal(t, h.svc, id)
	if s.MatchCount != 4 || len(s.Matches) != 2 || s.Matches[1].ImageID != "d" {
		t.Errorf("expected last 2 of 4 matches, got %+v", s.Matches)
	}

	list := h.svc.List()
	if len(list) != 1 || list[0].ID != id {
		t.Errorf("unexpected list %+v", list)
	}
	if _, err := h.svc.Status("missing"); !errors.Is(err, jobs.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestService_ShutdownCancelsRunningJobs(t *testing.T) {
	adapter := newFakeAdapter("a")
	adapter.block = make(chan struct{})
	defer close(adapter.block)
	h := newHarness(t, adapter)

	id, _ := h.svc.Submit(context.Background(), SubmitRequest{Source: testSource, SearchText: "7"})
	waitFor(t, func() bool { return adapter.downloads.Load() >= 1 })

	if err := h.svc.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	s, _ := h.svc.Status(id)
	if s.Phase != jobs.PhaseCancelled {
		t.Errorf("expected cancelled after shutdown, got %s", s.Phase)
	}
}

func TestService_ConcurrentSubmitAndStatus(t *testing.T) {
	adapter := newFakeAdapter("a", "b", "c")
	h := newHarness(t, adapter)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := h.svc.Submit(context.Background(), SubmitRequest{Source: testSource, SearchText: "7"})
			if err != nil {
				t.Errorf("Submit: %v", err)
				return
			}
			for range 20 {
				s, err := h.svc.Status(id)
				if err != nil || s.Processed > 3 {
					t.Errorf("bad status %+v %v", s, err)
					return
				}
			}
		}()
	}
	wg.Wait()
	h.svc.Wait()

	if h.registry.Len() != 10 {
		t.Errorf("expected 10 jobs, got %d", h.registry.Len())
	}
	if got := h.text.calls.Load(); got != 3 {
		t.Errorf("expected 3 extractions for 10 jobs over the same album, got %d", got)
	}
}
