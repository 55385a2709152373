package scan

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kozaktomas/photolink/internal/features"
	"github.com/kozaktomas/photolink/internal/jobs"
	"github.com/kozaktomas/photolink/internal/matching"
	"github.com/kozaktomas/photolink/internal/source"
)

const testSource = "https://drive.google.com/drive/folders/album1"

// fakeAdapter serves images whose bytes are the image ID.
type fakeAdapter struct {
	images    []source.Image
	listErr   error
	failIDs   map[string]bool
	panicIDs  map[string]bool
	block     chan struct{}
	panicList bool

	lists     atomic.Int32
	downloads atomic.Int32
}

func newFakeAdapter(ids ...string) *fakeAdapter {
	a := &fakeAdapter{failIDs: map[string]bool{}, panicIDs: map[string]bool{}}
	for _, id := range ids {
		a.images = append(a.images, source.Image{ID: id, Name: id + ".jpg", Link: "https://example.test/" + id})
	}
	return a
}

func (a *fakeAdapter) List(_ context.Context, _ source.Ref, _ source.Credential) ([]source.Image, error) {
	a.lists.Add(1)
	if a.panicList {
		panic("adapter exploded")
	}
	if a.listErr != nil {
		return nil, a.listErr
	}
	return a.images, nil
}

func (a *fakeAdapter) Download(ctx context.Context, img source.Image, _ source.Credential) ([]byte, error) {
	a.downloads.Add(1)
	if a.block != nil {
		select {
		case <-a.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if a.panicIDs[img.ID] {
		panic("download of " + img.ID + " exploded")
	}
	if a.failIDs[img.ID] {
		return nil, fmt.Errorf("download %s: status 500", img.ID)
	}
	return []byte(img.ID), nil
}

// fakeFaces maps image bytes to embeddings.
type fakeFaces struct {
	byData map[string][][]float32
	failOn map[string]bool
	err    error
	calls  atomic.Int32
}

func (f *fakeFaces) ExtractFaces(_ context.Context, data []byte) (features.FaceFeatures, error) {
	f.calls.Add(1)
	if f.err != nil {
		return features.FaceFeatures{}, f.err
	}
	if f.failOn[string(data)] {
		return features.FaceFeatures{}, errBoom
	}
	return features.FaceFeatures{Embeddings: f.byData[string(data)], Model: "fake"}, nil
}

// fakeText maps image bytes to detected text. A non-nil gate blocks every call until closed.
type fakeText struct {
	byData  map[string][]string
	panicOn map[string]bool
	gate    chan struct{}
	calls   atomic.Int32
}

func (f *fakeText) ExtractText(_ context.Context, data []byte) ([]features.DetectedText, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if f.panicOn[string(data)] {
		panic("ocr crashed on " + string(data))
	}
	var out []features.DetectedText
	for _, s := range f.byData[string(data)] {
		out = append(out, features.DetectedText{Text: s, Confidence: 0.9})
	}
	return out, nil
}

type staticCredentials struct {
	err error
}

func (c staticCredentials) Resolve(_ context.Context, _ string, req source.Credential) (source.Credential, error) {
	if c.err != nil {
		return source.Credential{}, c.err
	}
	return source.Credential{Token: "tok"}, nil
}

type harness struct {
	svc      *Service
	registry *jobs.Registry
	adapter  *fakeAdapter
	faces    *fakeFaces
	text     *fakeText
}

func newHarness(t *testing.T, adapter *fakeAdapter, opts ...Option) *harness {
	t.Helper()
	faces := &fakeFaces{byData: map[string][][]float32{}, failOn: map[string]bool{}}
	text := &fakeText{byData: map[string][]string{}, panicOn: map[string]bool{}}
	cache := features.NewCache(features.NewMemoryStore(), faces, text)
	policy, err := matching.NewPolicy("euclidean", 0.75)
	if err != nil {
		t.Fatal(err)
	}
	registry := jobs.NewRegistry(0, nil)
	svc := NewService(registry, cache, policy,
		source.Adapters{"google_drive": adapter},
		staticCredentials{},
		opts...,
	)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return &harness{svc: svc, registry: registry, adapter: adapter, faces: faces, text: text}
}

func waitTerminal(t *testing.T, svc *Service, id string) jobs.Status {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		s, err := svc.Status(id)
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if s.Phase.Terminal() {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish in time", id)
	return jobs.Status{}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

var errBoom = errors.New("boom")
