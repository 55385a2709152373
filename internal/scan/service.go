// Package scan turns a source and a match criterion into a monitored
// background job and drives it to completion.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/kozaktomas/photolink/internal/constants"
	"github.com/kozaktomas/photolink/internal/features"
	"github.com/kozaktomas/photolink/internal/jobs"
	"github.com/kozaktomas/photolink/internal/logging"
	"github.com/kozaktomas/photolink/internal/matching"
	"github.com/kozaktomas/photolink/internal/source"
)

var (
	errNoFaceInReference  = errors.New("no face detected in reference image")
	errFaceNotConfigured  = errors.New("face matching is not configured")
	errProviderNotEnabled = errors.New("provider is not enabled on this server")
	errNoSources          = errors.New("at least one source is required")
	errTooManySources     = errors.New("too many sources")
)

// SubmitRequest describes a scan to start.
type SubmitRequest struct {
	Source         string
	ReferenceImage []byte
	SearchText     string
	Credential     source.Credential
}

// Service is the entry point used by the HTTP handlers and the CLI.
type Service struct {
	registry    *jobs.Registry
	cache       *features.Cache
	orch        *Orchestrator
	adapters    source.Adapters
	credentials source.CredentialResolver
	detector    source.Detector
	logger      *slog.Logger
	matchWindow int
	errorWindow int

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithDetector sets the provider detector, needed to recognize PhotoPrism links.
func WithDetector(d source.Detector) Option {
	return func(s *Service) {
		s.detector = d
	}
}

// WithStatusWindows sets how many recent matches and errors Status returns.
func WithStatusWindows(matches, errors int) Option {
	return func(s *Service) {
		if matches > 0 {
			s.matchWindow = matches
		}
		if errors > 0 {
			s.errorWindow = errors
		}
	}
}

func NewService(
	registry *jobs.Registry,
	cache *features.Cache,
	policy *matching.Policy,
	adapters source.Adapters,
	credentials source.CredentialResolver,
	opts ...Option,
) *Service {
	s := &Service{
		registry:    registry,
		cache:       cache,
		adapters:    adapters,
		credentials: credentials,
		logger:      logging.NewNop(),
		matchWindow: constants.StatusMatchWindow,
		errorWindow: constants.StatusErrorWindow,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.orch = NewOrchestrator(cache, policy, s.logger)
	s.logger = logging.NewComponentLogger(s.logger, "scan")
	s.baseCtx, s.stop = context.WithCancel(context.Background())
	return s
}

// Submit validates the request, creates a queued job and starts it in the
// background. Only the reference face is extracted on the request path.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	ref, adapter, err := s.resolveSource("source", req.Source)
	if err != nil {
		return "", err
	}
	criterion, err := s.buildCriterion(ctx, req.ReferenceImage, req.SearchText)
	if err != nil {
		return "", err
	}
	job := s.start(req.Source, ref, adapter, criterion, req.Credential)
	return job.ID(), nil
}

// BatchRequest describes scans of several albums with the same criterion.
type BatchRequest struct {
	Sources        []string
	ReferenceImage []byte
	SearchText     string
	Credential     source.Credential
}

// SubmitBatch starts one job per source. Every source is validated and the
// reference face extracted once before any job is created, so a bad link
// rejects the whole batch. Job IDs are returned in source order.
func (s *Service) SubmitBatch(ctx context.Context, req BatchRequest) ([]string, error) {
	sources := make([]string, 0, len(req.Sources))
	for _, raw := range req.Sources {
		if raw = strings.TrimSpace(raw); raw != "" {
			sources = append(sources, raw)
		}
	}
	switch {
	case len(sources) == 0:
		return nil, invalid("sources", errNoSources)
	case len(sources) > constants.MaxSourcesPerBatch:
		return nil, invalid("sources", fmt.Errorf("%w: got %d, limit is %d", errTooManySources, len(sources), constants.MaxSourcesPerBatch))
	}

	refs := make([]source.Ref, len(sources))
	adapters := make([]source.Adapter, len(sources))
	for i, raw := range sources {
		ref, adapter, err := s.resolveSource(fmt.Sprintf("sources[%d]", i), raw)
		if err != nil {
			return nil, err
		}
		refs[i], adapters[i] = ref, adapter
	}

	criterion, err := s.buildCriterion(ctx, req.ReferenceImage, req.SearchText)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(sources))
	for i, raw := range sources {
		job := s.start(raw, refs[i], adapters[i], criterion, req.Credential)
		ids = append(ids, job.ID())
	}
	return ids, nil
}

func (s *Service) resolveSource(field, raw string) (source.Ref, source.Adapter, error) {
	ref, err := s.detector.Parse(raw)
	if err != nil {
		return source.Ref{}, nil, invalid(field, err)
	}
	adapter, ok := s.adapters.Lookup(ref.Provider)
	if !ok {
		return source.Ref{}, nil, invalid(field, fmt.Errorf("%w: %s", errProviderNotEnabled, ref.Provider))
	}
	return ref, adapter, nil
}

func (s *Service) buildCriterion(ctx context.Context, referenceImage []byte, searchText string) (matching.Criterion, error) {
	criterion := matching.Criterion{SearchText: strings.TrimSpace(searchText)}
	if len(referenceImage) > 0 {
		targets, err := s.referenceFaces(ctx, referenceImage)
		if err != nil {
			return matching.Criterion{}, err
		}
		criterion.TargetFaces = targets
	}
	if err := criterion.Validate(); err != nil {
		field := "criterion"
		if errors.Is(err, matching.ErrBlankSearchText) {
			field = "search_text"
		}
		return matching.Criterion{}, invalid(field, err)
	}
	return criterion, nil
}

// start registers a queued job and runs it on its own goroutine.
func (s *Service) start(raw string, ref source.Ref, adapter source.Adapter, criterion matching.Criterion, cred source.Credential) *jobs.Job {
	job := s.registry.Create(raw, ref.Provider, jobs.Criteria{
		FaceReference: criterion.HasFaces(),
		SearchText:    criterion.SearchText,
	})
	jobCtx, cancel := context.WithCancel(s.baseCtx)
	job.SetCancel(cancel)

	run := Run{
		Job:         job,
		Ref:         ref,
		Adapter:     adapter,
		Credentials: s.credentials,
		RequestCred: cred,
		Criterion:   criterion,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.orch.Run(jobCtx, run)
	}()

	s.logger.Info("scan submitted",
		"job_id", job.ID(),
		"provider", ref.Provider,
		"face", criterion.HasFaces(),
		"text", criterion.HasText(),
	)
	return job
}

func (s *Service) referenceFaces(ctx context.Context, data []byte) ([][]float32, error) {
	extractor := s.cache.FaceExtractor()
	if extractor == nil {
		return nil, invalid("face_image", errFaceNotConfigured)
	}
	faces, err := extractor.ExtractFaces(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("extract reference face: %w", err)
	}
	if len(faces.Embeddings) == 0 {
		return nil, invalid("face_image", errNoFaceInReference)
	}
	return faces.Embeddings, nil
}

// Status returns the windowed, sanitized view of a job.
func (s *Service) Status(jobID string) (jobs.Status, error) {
	job, err := s.registry.Get(jobID)
	if err != nil {
		return jobs.Status{}, err
	}
	return job.Status(s.matchWindow, s.errorWindow), nil
}

// Job returns the live job, used for event streaming.
func (s *Service) Job(jobID string) (*jobs.Job, error) {
	return s.registry.Get(jobID)
}

// List returns the status of every known job, oldest first.
func (s *Service) List() []jobs.Status {
	all := s.registry.List()
	out := make([]jobs.Status, 0, len(all))
	for _, job := range all {
		out = append(out, job.Status(s.matchWindow, s.errorWindow))
	}
	return out
}

// Cancel stops a running job.
func (s *Service) Cancel(jobID string) error {
	job, err := s.registry.Get(jobID)
	if err != nil {
		return err
	}
	return job.Cancel()
}

// Cache returns the shared feature cache.
func (s *Service) Cache() *features.Cache {
	return s.cache
}

// Providers lists the enabled source providers.
func (s *Service) Providers() []string {
	return s.adapters.Providers()
}

// Wait blocks until every submitted job reached a terminal phase.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Shutdown cancels running jobs and waits for them to stop or for ctx to expire.
func (s *Service) Shutdown(ctx context.Context) error {
	s.stop()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
