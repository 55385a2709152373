package jobs

import (
	"cmp"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/photolink/internal/logging"
)

// Registry is the concurrency-safe set of known jobs.
type Registry struct {
	jobs      map[string]*Job
	mu        sync.RWMutex
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewRegistry creates a registry. Finished jobs older than retention are
// evicted; a zero retention keeps every job for the life of the process.
func NewRegistry(retention time.Duration, logger *slog.Logger) *Registry {
	return &Registry{
		jobs:      make(map[string]*Job),
		retention: retention,
		now:       time.Now,
		logger:    logging.NewComponentLogger(logger, "jobs"),
	}
}

// Create registers a new queued job with a fresh id.
func (r *Registry) Create(source, provider string, criteria Criteria) *Job {
	r.Evict()

	job := NewJob(uuid.New().String(), source, provider, criteria)

	r.mu.Lock()
	r.jobs[job.id] = job
	r.mu.Unlock()

	return job
}

// Get retrieves a job by ID.
func (r *Registry) Get(id string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// Delete removes a job.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, id)
}

// List returns all jobs, oldest first.
func (r *Registry) List() []*Job {
	r.Evict()

	r.mu.RLock()
	jobs := make([]*Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		jobs = append(jobs, job)
	}
	r.mu.RUnlock()

	slices.SortFunc(jobs, func(a, b *Job) int {
		if c := a.createdAt.Compare(b.createdAt); c != 0 {
			return c
		}
		return cmp.Compare(a.id, b.id)
	})
	return jobs
}

// Len returns the number of registered jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// Evict drops finished jobs that completed more than the retention ago.
func (r *Registry) Evict() int {
	if r.retention <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.retention)

	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, job := range r.jobs {
		job.mu.RLock()
		expired := job.phase.Terminal() && job.completedAt.Before(cutoff)
		job.mu.RUnlock()
		if expired {
			delete(r.jobs, id)
			evicted++
		}
	}
	if evicted > 0 {
		r.logger.Debug("evicted finished jobs", "count", evicted)
	}
	return evicted
}

// Reset removes every job.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = make(map[string]*Job)
}
