package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/org-import/modules/orgimport/services/progress"
)

// Run is an import executing in the background.
type Run struct {
	ID      uuid.UUID
	Tracker *progress.Tracker

	done   chan struct{}
	result *Result
	err    error
	cancel context.CancelFunc
}

func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the run finishes or ctx is done.
func (r *Run) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-r.done:
		return r.result, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Run) Cancel() { r.cancel() }

// RunRegistry keeps in-flight runs, and finished runs for the retention
// period, addressable by id.
type RunRegistry struct {
	mu        sync.RWMutex
	runs      map[uuid.UUID]*Run
	retention time.Duration
}

// NewRunRegistry keeps finished runs for retention; zero keeps them until Forget.
func NewRunRegistry(retention time.Duration) *RunRegistry {
	return &RunRegistry{runs: make(map[uuid.UUID]*Run), retention: retention}
}

// Start executes fn on its own goroutine. The run context is detached from ctx
// cancellation so a finished HTTP request does not abort the import.
func (r *RunRegistry) Start(ctx context.Context, id uuid.UUID, tracker *progress.Tracker, fn func(context.Context) (*Result, error)) *Run {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	run := &Run{ID: id, Tracker: tracker, done: make(chan struct{}), cancel: cancel}

	r.mu.Lock()
	r.runs[id] = run
	r.mu.Unlock()

	go func() {
		defer close(run.done)
		defer cancel()
		run.result, run.err = fn(runCtx)
		if r.retention > 0 {
			time.AfterFunc(r.retention, func() { r.forget(id, run) })
		}
	}()
	return run
}

func (r *RunRegistry) Get(id uuid.UUID) (*Run, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	return run, ok
}

// Forget drops a run and releases its tracker.
func (r *RunRegistry) Forget(id uuid.UUID) {
	r.mu.RLock()
	run, ok := r.runs[id]
	r.mu.RUnlock()
	if ok {
		r.forget(id, run)
	}
}

// forget removes run only if id still maps to it.
func (r *RunRegistry) forget(id uuid.UUID, run *Run) {
	r.mu.Lock()
	current, ok := r.runs[id]
	if ok && current == run {
		delete(r.runs, id)
	}
	r.mu.Unlock()
	if ok && current == run {
		run.cancel()
		run.Tracker.Close()
	}
}
