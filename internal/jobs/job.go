// Package jobs tracks the progress of scan jobs.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Phase is the lifecycle state of a job.
type Phase string

const (
	PhaseQueued     Phase = "queued"
	PhaseListing    Phase = "listing"
	PhaseProcessing Phase = "processing"
	PhaseDone       Phase = "done"
	PhaseError      Phase = "error"
	PhaseCancelled  Phase = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseError || p == PhaseCancelled
}

var transitions = map[Phase][]Phase{
	PhaseQueued:     {PhaseListing, PhaseError, PhaseCancelled},
	PhaseListing:    {PhaseProcessing, PhaseError, PhaseCancelled},
	PhaseProcessing: {PhaseDone, PhaseError, PhaseCancelled},
}

func canTransition(from, to Phase) bool {
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrJobFinished       = errors.New("job already finished")
	ErrInvalidTransition = errors.New("invalid phase transition")
	ErrNotProcessing     = errors.New("job is not processing")
	ErrAllProcessed      = errors.New("all images already processed")
)

// MatchRecord is one matched image.
type MatchRecord struct {
	ImageID string `json:"image_id"`
	Name    string `json:"name"`
	Link    string `json:"link,omitempty"`
	Reason  string `json:"reason"`
}

// ErrorRecord is one image that could not be evaluated.
type ErrorRecord struct {
	ImageID string `json:"image_id"`
	Name    string `json:"name,omitempty"`
	Message string `json:"message"`
}

// Criteria summarizes what a job searches for.
type Criteria struct {
	FaceReference bool   `json:"face_reference"`
	SearchText    string `json:"search_text,omitempty"`
}

// Job is the mutable progress record of one scan. All fields are guarded by mu
// and read through Snapshot or Status.
type Job struct {
	EventBroadcaster

	mu          sync.RWMutex
	id          string
	source      string
	provider    string
	criteria    Criteria
	phase       Phase
	processed   int
	total       int
	matches     []MatchRecord
	errors      []ErrorRecord
	terminalErr string
	createdAt   time.Time
	startedAt   time.Time
	completedAt time.Time
	cancel      context.CancelFunc
}

// NewJob creates a queued job.
func NewJob(id, source, provider string, criteria Criteria) *Job {
	return &Job{
		id:        id,
		source:    source,
		provider:  provider,
		criteria:  criteria,
		phase:     PhaseQueued,
		createdAt: time.Now(),
	}
}

func (j *Job) ID() string {
	return j.id
}

// Phase returns the current phase.
func (j *Job) Phase() Phase {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.phase
}

// SetCancel registers the function that stops the job's worker.
func (j *Job) SetCancel(cancel context.CancelFunc) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cancel = cancel
}

// Cancel asks the worker to stop. The worker moves the job to PhaseCancelled
// once it notices, so counts stay consistent.
func (j *Job) Cancel() error {
	j.mu.RLock()
	phase, cancel := j.phase, j.cancel
	j.mu.RUnlock()

	if phase.Terminal() {
		return ErrJobFinished
	}
	if cancel != nil {
		cancel()
	}
	return nil
}

func (j *Job) transitionLocked(to Phase) error {
	if !canTransition(j.phase, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.phase, to)
	}
	j.phase = to
	now := time.Now()
	if to == PhaseListing {
		j.startedAt = now
	}
	if to.Terminal() {
		j.completedAt = now
	}
	return nil
}

// StartListing moves a queued job to listing.
func (j *Job) StartListing() error {
	j.mu.Lock()
	err := j.transitionLocked(PhaseListing)
	j.mu.Unlock()
	if err != nil {
		return err
	}
	j.SendEvent(Event{Type: EventPhase, Data: PhaseListing})
	return nil
}

// StartProcessing records the listing size and moves the job to processing.
func (j *Job) StartProcessing(total int) error {
	if total < 0 {
		return fmt.Errorf("negative total %d", total)
	}
	j.mu.Lock()
	err := j.transitionLocked(PhaseProcessing)
	if err == nil {
		j.total = total
	}
	j.mu.Unlock()
	if err != nil {
		return err
	}
	j.SendEvent(Event{Type: EventPhase, Data: map[string]any{"phase": PhaseProcessing, "total": total}})
	return nil
}

// progressLocked counts one processed image.
func (j *Job) progressLocked() error {
	if j.phase != PhaseProcessing {
		return ErrNotProcessing
	}
	if j.processed >= j.total {
		return ErrAllProcessed
	}
	j.processed++
	return nil
}

func (j *Job) progressEvent() Event {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return Event{Type: EventProgress, Data: map[string]int{
		"processed": j.processed,
		"total":     j.total,
		"matches":   len(j.matches),
		"errors":    len(j.errors),
	}}
}

// RecordMatch counts an image as processed and appends the match.
func (j *Job) RecordMatch(m MatchRecord) error {
	j.mu.Lock()
	err := j.progressLocked()
	if err == nil {
		j.matches = append(j.matches, m)
	}
	j.mu.Unlock()
	if err != nil {
		return err
	}
	j.SendEvent(Event{Type: EventMatch, Data: m})
	j.SendEvent(j.progressEvent())
	return nil
}

// RecordError counts an image as processed and appends the error.
func (j *Job) RecordError(e ErrorRecord) error {
	j.mu.Lock()
	err := j.progressLocked()
	if err == nil {
		j.errors = append(j.errors, e)
	}
	j.mu.Unlock()
	if err != nil {
		return err
	}
	j.SendEvent(Event{Type: EventImageError, Message: SanitizeMessage(e.Message), Data: e.ImageID})
	j.SendEvent(j.progressEvent())
	return nil
}

// RecordNoMatch counts an image that was evaluated and did not match.
func (j *Job) RecordNoMatch() error {
	j.mu.Lock()
	err := j.progressLocked()
	j.mu.Unlock()
	if err != nil {
		return err
	}
	j.SendEvent(j.progressEvent())
	return nil
}

// Finish moves a processing job to done.
func (j *Job) Finish() error {
	return j.finish(PhaseDone, "", Event{Type: EventCompleted})
}

// Fail moves the job to the error phase. The full message is kept; Status returns it sanitized.
func (j *Job) Fail(cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return j.finish(PhaseError, msg, Event{Type: EventFailed, Message: SanitizeMessage(msg)})
}

// MarkCancelled moves the job to the cancelled phase with counts frozen.
func (j *Job) MarkCancelled() error {
	return j.finish(PhaseCancelled, "", Event{Type: EventCancelled, Message: "Job cancelled by user"})
}

func (j *Job) finish(to Phase, msg string, final Event) error {
	j.mu.Lock()
	err := j.transitionLocked(to)
	if err == nil {
		j.terminalErr = msg
		j.cancel = nil
	}
	j.mu.Unlock()
	if err != nil {
		return err
	}
	j.closeListeners(final)
	return nil
}

// Status is a consistent read-only view of a job.
type Status struct {
	ID          string        `json:"job_id"`
	Source      string        `json:"source"`
	Provider    string        `json:"provider"`
	Criteria    Criteria      `json:"criteria"`
	Phase       Phase         `json:"status"`
	Processed   int           `json:"processed"`
	Total       int           `json:"total"`
	Progress    int           `json:"progress"`
	MatchCount  int           `json:"match_count"`
	ErrorCount  int           `json:"error_count"`
	Matches     []MatchRecord `json:"matches"`
	Errors      []ErrorRecord `json:"errors"`
	Error       string        `json:"error,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// Snapshot copies the full job state under one read lock. The terminal error is not sanitized.
func (j *Job) Snapshot() Status {
	return j.view(0, 0, false)
}

// Status returns the last matchWindow matches and errorWindow errors with a
// sanitized terminal error. A window <= 0 returns everything.
func (j *Job) Status(matchWindow, errorWindow int) Status {
	return j.view(matchWindow, errorWindow, true)
}

func (j *Job) view(matchWindow, errorWindow int, sanitize bool) Status {
	j.mu.RLock()
	defer j.mu.RUnlock()

	s := Status{
		ID:         j.id,
		Source:     j.source,
		Provider:   j.provider,
		Criteria:   j.criteria,
		Phase:      j.phase,
		Processed:  j.processed,
		Total:      j.total,
		MatchCount: len(j.matches),
		ErrorCount: len(j.errors),
		Matches:    tail(j.matches, matchWindow),
		Errors:     tail(j.errors, errorWindow),
		Error:      j.terminalErr,
		CreatedAt:  j.createdAt,
	}
	if sanitize {
		s.Error = SanitizeMessage(j.terminalErr)
		for i := range s.Errors {
			s.Errors[i].Message = SanitizeMessage(s.Errors[i].Message)
		}
	}
	if j.total > 0 {
		s.Progress = j.processed * 100 / j.total
	} else if j.phase == PhaseDone {
		s.Progress = 100
	}
	if !j.startedAt.IsZero() {
		t := j.startedAt
		s.StartedAt = &t
	}
	if !j.completedAt.IsZero() {
		t := j.completedAt
		s.CompletedAt = &t
	}
	return s
}

// tail copies the last n elements, or all of them when n <= 0.
func tail[T any](items []T, n int) []T {
	start := 0
	if n > 0 && len(items) > n {
		start = len(items) - n
	}
	out := make([]T, len(items)-start)
	copy(out, items[start:])
	return out
}
