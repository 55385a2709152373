package features

import (
	"context"
	"errors"
	"slices"
	"sync"
)

// ErrCorruptEntry marks a stored record that exists but cannot be decoded.
var ErrCorruptEntry = errors.New("corrupt cache entry")

// Store persists feature records by fingerprint.
// Get methods return (nil, nil) on a miss.
type Store interface {
	GetFaces(ctx context.Context, key string) (*FaceFeatures, error)
	PutFaces(ctx context.Context, key string, f FaceFeatures) error
	GetText(ctx context.Context, key string) (*TextFeatures, error)
	PutText(ctx context.Context, key string, t TextFeatures) error
	Count(ctx context.Context) (faces, text int, err error)
	Clear(ctx context.Context) error
	Name() string
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu    sync.RWMutex
	faces map[string]FaceFeatures
	text  map[string]TextFeatures
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		faces: make(map[string]FaceFeatures),
		text:  make(map[string]TextFeatures),
	}
}

func (s *MemoryStore) GetFaces(_ context.Context, key string) (*FaceFeatures, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.faces[key]
	if !ok {
		return nil, nil
	}
	f = cloneFaces(f)
	return &f, nil
}

func (s *MemoryStore) PutFaces(_ context.Context, key string, f FaceFeatures) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faces[key] = cloneFaces(f)
	return nil
}

func (s *MemoryStore) GetText(_ context.Context, key string) (*TextFeatures, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.text[key]
	if !ok {
		return nil, nil
	}
	t.Detections = slices.Clone(t.Detections)
	return &t, nil
}

func (s *MemoryStore) PutText(_ context.Context, key string, t TextFeatures) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.Detections = slices.Clone(t.Detections)
	if t.Detections == nil {
		t.Detections = []DetectedText{}
	}
	s.text[key] = t
	return nil
}

func (s *MemoryStore) Count(_ context.Context) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.faces), len(s.text), nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.faces)
	clear(s.text)
	return nil
}

func (s *MemoryStore) Name() string {
	return "memory"
}

func cloneFaces(f FaceFeatures) FaceFeatures {
	out := FaceFeatures{Model: f.Model, Embeddings: make([][]float32, len(f.Embeddings))}
	for i, e := range f.Embeddings {
		out.Embeddings[i] = slices.Clone(e)
	}
	return out
}
