// Package features memoizes per-image face and text extraction.
//
// Entries are keyed by a fingerprint of the image identifier and are never
// invalidated. Concurrent requests for the same missing entry share a single
// extraction. Failed extractions are returned to every waiter and not stored,
// so the next request tries again.
package features

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/kozaktomas/photolink/internal/constants"
	"github.com/kozaktomas/photolink/internal/logging"
)

// FetchFunc returns the raw bytes of an image. It is only called on a cache miss.
type FetchFunc func(ctx context.Context) ([]byte, error)

// FaceExtractor finds faces in an image and returns one embedding per face.
type FaceExtractor interface {
	ExtractFaces(ctx context.Context, data []byte) (FaceFeatures, error)
}

// TextExtractor recognizes text fragments in an image.
type TextExtractor interface {
	ExtractText(ctx context.Context, data []byte) ([]DetectedText, error)
}

// ErrPanic wraps a panic recovered from a download or an extractor.
var ErrPanic = errors.New("panic during extraction")

var (
	errNoFaceExtractor = errors.New("face extraction is not configured")
	errNoTextExtractor = errors.New("text extraction is not configured")
)

// Stats are cumulative counters since the cache was created or reset.
type Stats struct {
	Backend     string `json:"backend"`
	FaceEntries int    `json:"face_entries"`
	TextEntries int    `json:"text_entries"`
	Hits        int64  `json:"hits"`
	Misses      int64  `json:"misses"`
	Extractions int64  `json:"extractions"`
	Failures    int64  `json:"failures"`
	StoreErrors int64  `json:"store_errors"`
	SharedWaits int64  `json:"shared_waits"`
}

// Cache is the feature cache shared by all scan jobs.
type Cache struct {
	store         Store
	faces         FaceExtractor
	text          TextExtractor
	minConfidence float64
	logger        *slog.Logger

	group singleflight.Group

	hits        atomic.Int64
	misses      atomic.Int64
	extractions atomic.Int64
	failures    atomic.Int64
	storeErrors atomic.Int64
	sharedWaits atomic.Int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger used for store warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logging.NewComponentLogger(logger, "features")
	}
}

// WithMinConfidence overrides the text confidence floor.
func WithMinConfidence(v float64) Option {
	return func(c *Cache) {
		c.minConfidence = v
	}
}

// NewCache creates a cache over store. Either extractor may be nil when the
// corresponding criterion is never used.
func NewCache(store Store, faces FaceExtractor, text TextExtractor, opts ...Option) *Cache {
	if store == nil {
		store = NewMemoryStore()
	}
	c := &Cache{
		store:         store,
		faces:         faces,
		text:          text,
		minConfidence: constants.MinTextConfidence,
		logger:        logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FaceExtractor returns the configured face extractor, used for reference images.
func (c *Cache) FaceExtractor() FaceExtractor {
	return c.faces
}

// Faces returns the face features of an image, extracting them on a miss.
func (c *Cache) Faces(ctx context.Context, imageID string, fetch FetchFunc) (FaceFeatures, error) {
	return getOrCompute(ctx, c, KindFaces, imageID, fetch,
		c.store.GetFaces,
		c.store.PutFaces,
		func(ctx context.Context, data []byte) (FaceFeatures, error) {
			if c.faces == nil {
				return FaceFeatures{}, errNoFaceExtractor
			}
			f, err := c.faces.ExtractFaces(ctx, data)
			if err != nil {
				return FaceFeatures{}, err
			}
			if f.Embeddings == nil {
				f.Embeddings = [][]float32{}
			}
			return f, nil
		},
	)
}

// Text returns the recognized text of an image, extracting it on a miss.
// Detections below the confidence floor are dropped before storing.
func (c *Cache) Text(ctx context.Context, imageID string, fetch FetchFunc) (TextFeatures, error) {
	return getOrCompute(ctx, c, KindText, imageID, fetch,
		c.store.GetText,
		c.store.PutText,
		func(ctx context.Context, data []byte) (TextFeatures, error) {
			if c.text == nil {
				return TextFeatures{}, errNoTextExtractor
			}
			detections, err := c.text.ExtractText(ctx, data)
			if err != nil {
				return TextFeatures{}, err
			}
			return TextFeatures{Detections: c.filterText(detections)}, nil
		},
	)
}

func (c *Cache) filterText(detections []DetectedText) []DetectedText {
	out := make([]DetectedText, 0, len(detections))
	for _, d := range detections {
		if d.Confidence < c.minConfidence || strings.TrimSpace(d.Text) == "" {
			continue
		}
		out = append(out, d)
	}
	return out
}

func getOrCompute[T any](
	ctx context.Context,
	c *Cache,
	kind Kind,
	imageID string,
	fetch FetchFunc,
	load func(context.Context, string) (*T, error),
	save func(context.Context, string, T) error,
	compute func(context.Context, []byte) (T, error),
) (T, error) {
	key := Fingerprint(imageID)

	if v, ok := lookupStored(ctx, c, kind, key, load); ok {
		c.hits.Add(1)
		return v, nil
	}

	// The flight runs detached from the first caller's cancellation so a
	// cancelled job cannot fail the extraction for other waiters.
	ch := c.group.DoChan(string(kind)+":"+key, func() (result any, err error) {
		stage := StageFetch
		// singleflight re-panics on its own goroutine, out of reach of any caller.
		defer func() {
			if rec := recover(); rec != nil {
				c.failures.Add(1)
				c.logger.Error("feature extraction panicked",
					"kind", kind, "stage", stage, "image_id", imageID, "panic", rec)
				result = nil
				err = &ExtractionError{ImageID: imageID, Kind: kind, Stage: stage, Err: fmt.Errorf("%w: %v", ErrPanic, rec)}
			}
		}()

		flightCtx := context.WithoutCancel(ctx)
		if v, ok := lookupStored(flightCtx, c, kind, key, load); ok {
			return v, nil
		}

		c.misses.Add(1)
		data, err := fetch(flightCtx)
		if err != nil {
			c.failures.Add(1)
			return nil, &ExtractionError{ImageID: imageID, Kind: kind, Stage: StageFetch, Err: err}
		}

		stage = StageExtract
		c.extractions.Add(1)
		v, err := compute(flightCtx, data)
		if err != nil {
			c.failures.Add(1)
			return nil, &ExtractionError{ImageID: imageID, Kind: kind, Stage: StageExtract, Err: err}
		}

		if err := save(flightCtx, key, v); err != nil {
			c.storeErrors.Add(1)
			c.logger.Warn("failed to store features",
				"kind", kind, "key", key, "image_id", imageID, "error", err)
		}
		return v, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, fmt.Errorf("waiting for %s of %s: %w", kind, imageID, ctx.Err())
	case res := <-ch:
		if res.Shared {
			c.sharedWaits.Add(1)
		}
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// lookupStored reads a stored record. Unreadable records count as a miss so they get recomputed.
func lookupStored[T any](ctx context.Context, c *Cache, kind Kind, key string, load func(context.Context, string) (*T, error)) (T, bool) {
	var zero T
	v, err := load(ctx, key)
	if err != nil {
		c.storeErrors.Add(1)
		c.logger.Warn("unreadable cache entry, recomputing", "kind", kind, "key", key, "error", err)
		return zero, false
	}
	if v == nil {
		return zero, false
	}
	return *v, true
}

// Reset zeroes the counters.
func (c *Cache) Reset() {
	c.hits.Store(0)
	c.misses.Store(0)
	c.extractions.Store(0)
	c.failures.Store(0)
	c.storeErrors.Store(0)
	c.sharedWaits.Store(0)
}

// Stats reports counters and stored entry counts.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	faces, text, err := c.store.Count(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("counting cache entries: %w", err)
	}
	return Stats{
		Backend:     c.store.Name(),
		FaceEntries: faces,
		TextEntries: text,
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Extractions: c.extractions.Load(),
		Failures:    c.failures.Load(),
		StoreErrors: c.storeErrors.Load(),
		SharedWaits: c.sharedWaits.Load(),
	}, nil
}

// Clear removes every stored entry and resets the counters.
func (c *Cache) Clear(ctx context.Context) error {
	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("clearing %s cache: %w", c.store.Name(), err)
	}
	c.Reset()
	return nil
}
