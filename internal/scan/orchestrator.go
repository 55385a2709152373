package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kozaktomas/photolink/internal/features"
	"github.com/kozaktomas/photolink/internal/jobs"
	"github.com/kozaktomas/photolink/internal/logging"
	"github.com/kozaktomas/photolink/internal/matching"
	"github.com/kozaktomas/photolink/internal/source"
)

// Run is everything the orchestrator needs to drive one job.
type Run struct {
	Job         *jobs.Job
	Ref         source.Ref
	Adapter     source.Adapter
	Credentials source.CredentialResolver
	RequestCred source.Credential
	Criterion   matching.Criterion
}

// Orchestrator drives a job from queued to a terminal phase.
type Orchestrator struct {
	cache  *features.Cache
	policy *matching.Policy
	logger *slog.Logger
}

func NewOrchestrator(cache *features.Cache, policy *matching.Policy, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cache:  cache,
		policy: policy,
		logger: logging.NewComponentLogger(logger, "scan"),
	}
}

// imageResult is the outcome of evaluating one image.
type imageResult struct {
	outcome matching.Outcome
	err     error
}

// lazyImage downloads the image bytes at most once, and only when a cache miss asks for them.
type lazyImage struct {
	once sync.Once
	data []byte
	err  error
	load func(ctx context.Context) ([]byte, error)
}

func (l *lazyImage) fetch(ctx context.Context) ([]byte, error) {
	l.once.Do(func() {
		// stays set if load panics, since once.Do will not run again
		l.err = errDownloadIncomplete
		l.data, l.err = l.load(ctx)
	})
	return l.data, l.err
}

// Run processes the job synchronously. It never panics: a panic while listing
// fails the job, and a panic while downloading or extracting one image is
// recorded as that image's error.
func (o *Orchestrator) Run(ctx context.Context, r Run) {
	job := r.Job
	logger := o.logger.With("job_id", job.ID(), "provider", r.Ref.Provider)
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("scan panicked", "panic", rec)
			_ = job.Fail(fmt.Errorf("internal error: %v", rec))
		}
	}()

	if ctx.Err() != nil {
		_ = job.MarkCancelled()
		return
	}
	if err := job.StartListing(); err != nil {
		logger.Error("could not start listing", "error", err)
		return
	}

	cred, err := r.Credentials.Resolve(ctx, r.Ref.Provider, r.RequestCred)
	if err != nil {
		o.abort(ctx, job, logger, fmt.Errorf("resolve credentials: %w", err))
		return
	}

	images, err := r.Adapter.List(ctx, r.Ref, cred)
	if err != nil {
		o.abort(ctx, job, logger, fmt.Errorf("list images: %w", err))
		return
	}

	if err := job.StartProcessing(len(images)); err != nil {
		logger.Error("could not start processing", "error", err)
		return
	}
	logger.Info("scan started", "images", len(images))

	for _, img := range images {
		if ctx.Err() != nil {
			o.cancelled(job, logger)
			return
		}

		res := o.evaluate(ctx, r, cred, img)
		if res.err != nil && ctx.Err() != nil && errors.Is(res.err, ctx.Err()) {
			// interrupted by the cancel, not an image failure
			o.cancelled(job, logger)
			return
		}

		var recErr error
		switch {
		case res.err != nil:
			logger.Warn("image failed", "image", img.Name, "error", res.err)
			recErr = job.RecordError(jobs.ErrorRecord{ImageID: img.ID, Name: img.Name, Message: res.err.Error()})
		case res.outcome.Matched:
			recErr = job.RecordMatch(jobs.MatchRecord{ImageID: img.ID, Name: img.Name, Link: img.Link, Reason: string(res.outcome.Reason)})
		default:
			recErr = job.RecordNoMatch()
		}
		if recErr != nil {
			logger.Error("could not record image result", "image", img.Name, "error", recErr)
		}
	}

	if err := job.Finish(); err != nil {
		logger.Error("could not finish job", "error", err)
		return
	}
	s := job.Snapshot()
	logger.Info("scan finished",
		"processed", s.Processed,
		"matches", s.MatchCount,
		"errors", s.ErrorCount,
		"duration", time.Since(start).Round(time.Millisecond),
	)
}

// evaluate fetches faces first and text only when the faces did not match.
func (o *Orchestrator) evaluate(ctx context.Context, r Run, cred source.Credential, img source.Image) imageResult {
	lazy := &lazyImage{load: func(ctx context.Context) ([]byte, error) {
		return r.Adapter.Download(ctx, img, cred)
	}}

	var faces *features.FaceFeatures
	if r.Criterion.HasFaces() {
		f, err := o.cache.Faces(ctx, img.ID, lazy.fetch)
		if err != nil {
			return imageResult{err: err}
		}
		faces = &f
		if out := o.policy.Evaluate(r.Criterion, faces, nil); out.Matched {
			return imageResult{outcome: out}
		}
	}

	if !r.Criterion.HasText() {
		return imageResult{}
	}
	text, err := o.cache.Text(ctx, img.ID, lazy.fetch)
	if err != nil {
		return imageResult{err: err}
	}
	return imageResult{outcome: o.policy.Evaluate(r.Criterion, faces, &text)}
}

func (o *Orchestrator) abort(ctx context.Context, job *jobs.Job, logger *slog.Logger, err error) {
	if ctx.Err() != nil {
		o.cancelled(job, logger)
		return
	}
	logger.Error("scan failed", "error", err)
	if ferr := job.Fail(err); ferr != nil {
		logger.Error("could not fail job", "error", ferr)
	}
}

func (o *Orchestrator) cancelled(job *jobs.Job, logger *slog.Logger) {
	if err := job.MarkCancelled(); err != nil {
		logger.Error("could not cancel job", "error", err)
		return
	}
	s := job.Snapshot()
	logger.Info("scan cancelled", "processed", s.Processed, "total", s.Total)
}
