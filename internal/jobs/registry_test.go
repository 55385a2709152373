package jobs

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRegistry_CreateGetDelete(t *testing.T) {
	r := NewRegistry(0, nil)

	job := r.Create("/photos", "local", Criteria{SearchText: "7"})
	if job.ID() == "" {
		t.Fatal("expected an id")
	}
	if job.Phase() != PhaseQueued {
		t.Errorf("expected queued, got %s", job.Phase())
	}

	got, err := r.Get(job.ID())
	if err != nil || got != job {
		t.Fatalf("Get returned %v, %v", got, err)
	}

	r.Delete(job.ID())
	if _, err := r.Get(job.ID()); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestRegistry_UniqueIDsUnderConcurrency(t *testing.T) {
	r := NewRegistry(0, nil)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Create("/photos", "local", Criteria{})
		}()
	}
	wg.Wait()

	if r.Len() != 50 {
		t.Errorf("expected 50 jobs, got %d", r.Len())
	}
	if len(r.List()) != 50 {
		t.Error("List should return every job")
	}
}

func TestRegistry_ListOrder(t *testing.T) {
	r := NewRegistry(0, nil)
	first := r.Create("a", "local", Criteria{})
	time.Sleep(time.Millisecond)
	second := r.Create("b", "local", Criteria{})

	jobs := r.List()
	if jobs[0] != first || jobs[1] != second {
		t.Error("expected oldest first")
	}
}

func TestRegistry_Eviction(t *testing.T) {
	r := NewRegistry(time.Hour, nil)

	finished := r.Create("a", "local", Criteria{})
	_ = finished.StartListing()
	_ = finished.StartProcessing(0)
	_ = finished.Finish()

	running := r.Create("b", "local", Criteria{})
	_ = running.StartListing()

	if n := r.Evict(); n != 0 {
		t.Fatalf("nothing should be evicted yet, got %d", n)
	}

	r.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if n := r.Evict(); n != 1 {
		t.Fatalf("expected 1 eviction, got %d", n)
	}
	if _, err := r.Get(finished.ID()); !errors.Is(err, ErrJobNotFound) {
		t.Error("finished job should be evicted")
	}
	if _, err := r.Get(running.ID()); err != nil {
		t.Error("running job must never be evicted")
	}
}

func TestRegistry_NoRetentionKeepsEverything(t *testing.T) {
	r := NewRegistry(0, nil)
	job := r.Create("a", "local", Criteria{})
	_ = job.MarkCancelled()

	r.now = func() time.Time { return time.Now().Add(1000 * time.Hour) }
	if n := r.Evict(); n != 0 {
		t.Errorf("expected no eviction, got %d", n)
	}
}

func TestRegistry_Reset(t *testing.T) {
	r := NewRegistry(0, nil)
	r.Create("a", "local", Criteria{})
	r.Reset()
	if r.Len() != 0 {
		t.Errorf("expected empty registry, got %d", r.Len())
	}
}
