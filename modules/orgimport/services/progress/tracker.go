package progress

import (
	"sync"
	"time"
)

type Option func(*Tracker)

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithTickInterval sets how often speed and ETA are refreshed while a run is
// active. Zero disables the timer.
func WithTickInterval(d time.Duration) Option {
	return func(t *Tracker) { t.interval = d }
}

type Tracker struct {
	mu       sync.Mutex
	state    State
	now      func() time.Time
	interval time.Duration
	subs     map[int]func(State)
	nextSub  int
	stop     chan struct{}
}

func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		state:    State{Stage: Idle},
		now:      time.Now,
		interval: time.Second,
		subs:     make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Subscribe calls fn with the current state right away and again after every
// change. The returned function may be called any number of times.
func (t *Tracker) Subscribe(fn func(State)) func() {
	t.mu.Lock()
	id := t.nextSub
	t.nextSub++
	t.subs[id] = fn
	current := t.state
	t.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs, id)
			t.mu.Unlock()
		})
	}
}

// Dispatch reduces e into the tracked state and notifies subscribers when the
// state changed.
func (t *Tracker) Dispatch(e Event) State {
	t.mu.Lock()
	prev := t.state
	next := Reduce(prev, e)
	t.state = next
	switch {
	case next.Active():
		t.startTimerLocked()
	default:
		t.stopTimerLocked()
	}
	var subs []func(State)
	if next != prev {
		subs = make([]func(State), 0, len(t.subs))
		for _, fn := range t.subs {
			subs = append(subs, fn)
		}
	}
	t.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
	return next
}

// TimerActive reports whether the refresh timer is running.
func (t *Tracker) TimerActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stop != nil
}

// Close releases the timer without changing the state.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopTimerLocked()
}

func (t *Tracker) startTimerLocked() {
	if t.stop != nil || t.interval <= 0 {
		return
	}
	stop := make(chan struct{})
	t.stop = stop
	go func(interval time.Duration) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				t.Dispatch(Tick{At: t.now()})
			}
		}
	}(t.interval)
}

// stopTimerLocked does not wait for the goroutine: it may be blocked on t.mu.
func (t *Tracker) stopTimerLocked() {
	if t.stop == nil {
		return
	}
	close(t.stop)
	t.stop = nil
}

func (t *Tracker) Start() { t.Dispatch(Started{At: t.now()}) }

func (t *Tracker) StartUpload(total int) { t.startStage(Uploading, total) }
func (t *Tracker) UpdateUpload(current, total int) {
	t.Dispatch(StageUpdated{Stage: Uploading, Current: current, Total: total, At: t.now()})
}
func (t *Tracker) CompleteUpload() { t.completeStage(Uploading) }

func (t *Tracker) StartParsing(total int) { t.startStage(Parsing, total) }
func (t *Tracker) UpdateParsing(current, total int, message string) {
	t.Dispatch(StageUpdated{Stage: Parsing, Current: current, Total: total, Message: message, At: t.now()})
}
func (t *Tracker) CompleteParsing() { t.completeStage(Parsing) }

func (t *Tracker) StartValidation(total int) { t.startStage(Validating, total) }
func (t *Tracker) UpdateValidation(current, total, errors, warnings int) {
	t.Dispatch(StageUpdated{
		Stage:    Validating,
		Current:  current,
		Total:    total,
		Errors:   &errors,
		Warnings: &warnings,
		At:       t.now(),
	})
}
func (t *Tracker) CompleteValidation() { t.completeStage(Validating) }

func (t *Tracker) StartProcessing(total int) { t.startStage(Processing, total) }
func (t *Tracker) UpdateProcessing(current, total int, message string) {
	t.Dispatch(StageUpdated{Stage: Processing, Current: current, Total: total, Message: message, At: t.now()})
}
func (t *Tracker) CompleteProcessing() { t.completeStage(Processing) }

func (t *Tracker) StartImport(total int) { t.startStage(Importing, total) }
func (t *Tracker) UpdateImport(current, total int, message string) {
	t.Dispatch(StageUpdated{Stage: Importing, Current: current, Total: total, Message: message, At: t.now()})
}
func (t *Tracker) CompleteImport() { t.completeStage(Importing) }

func (t *Tracker) Complete(message string) { t.Dispatch(Completed{Message: message, At: t.now()}) }
func (t *Tracker) Error(message string)    { t.Dispatch(Failed{Message: message, At: t.now()}) }
func (t *Tracker) Reset()                  { t.Dispatch(Reset{}) }

func (t *Tracker) startStage(stage Stage, total int) {
	t.Dispatch(StageStarted{Stage: stage, Total: total, At: t.now()})
}

func (t *Tracker) completeStage(stage Stage) {
	t.Dispatch(StageCompleted{Stage: stage, At: t.now()})
}
