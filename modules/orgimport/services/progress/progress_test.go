package progress

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestTracker_UploadToComplete(t *testing.T) {
	clock := newFakeClock()
	tr := NewTracker(WithClock(clock.Now), WithTickInterval(time.Hour))

	tr.Start()
	require.True(t, tr.TimerActive())
	tr.StartUpload(1000)
	clock.Advance(5 * time.Second)
	tr.UpdateUpload(500, 1000)

	mid := tr.State()
	require.Equal(t, Uploading, mid.Stage)
	require.Equal(t, 50, mid.Progress)
	require.InDelta(t, 100.0, mid.Speed, 0.001)
	require.Equal(t, 5*time.Second, mid.EstimatedTimeRemaining)

	clock.Advance(5 * time.Second)
	tr.UpdateUpload(1000, 1000)
	tr.Complete("")

	final := tr.State()
	require.Equal(t, Complete, final.Stage)
	require.Equal(t, 100, final.Progress)
	require.Zero(t, final.EstimatedTimeRemaining)
	require.False(t, tr.TimerActive())
}

func TestReduce_SpeedIsStageLocalETAIsGlobal(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	s := Reduce(State{}, Started{At: t0})
	s = Reduce(s, StageStarted{Stage: Parsing, Total: 1, At: t0})
	s = Reduce(s, StageCompleted{Stage: Parsing, At: t0.Add(10 * time.Second)})
	s = Reduce(s, StageStarted{Stage: Validating, Total: 100, At: t0.Add(10 * time.Second)})
	s = Reduce(s, StageUpdated{Stage: Validating, Current: 20, Total: 100, At: t0.Add(12 * time.Second)})

	require.Equal(t, 20, s.Progress)
	require.InDelta(t, 10.0, s.Speed, 0.001, "20 items in the 2s since validation started")
	// 12s since the operation started / 20 items * 80 remaining
	require.Equal(t, 48*time.Second, s.EstimatedTimeRemaining)
}

func TestReduce_ProgressRoundsAndClamps(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	s := Reduce(State{}, StageStarted{Stage: Importing, Total: 3, At: t0})
	require.Equal(t, t0, s.StartedAt, "first stage starts the operation implicitly")

	s = Reduce(s, StageUpdated{Stage: Importing, Current: 2, At: t0.Add(time.Second)})
	require.Equal(t, 67, s.Progress)

	s = Reduce(s, StageUpdated{Stage: Importing, Current: 7, At: t0.Add(2 * time.Second)})
	require.Equal(t, 100, s.Progress)
	require.Zero(t, s.EstimatedTimeRemaining)

	zero := Reduce(State{}, StageStarted{Stage: Parsing, At: t0})
	zero = Reduce(zero, StageUpdated{Stage: Parsing, Current: 5, At: t0})
	require.Equal(t, 0, zero.Progress)
	require.Zero(t, zero.Speed)
}

func TestReduce_TransitionRules(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	s := Reduce(State{}, Started{At: t0})
	s = Reduce(s, StageStarted{Stage: Validating, Total: 10, At: t0})

	back := Reduce(s, StageStarted{Stage: Parsing, Total: 1, At: t0})
	require.Equal(t, s, back, "stages only move forward")

	wrong := Reduce(s, StageUpdated{Stage: Importing, Current: 3, At: t0})
	require.Equal(t, s, wrong, "updates for another stage are ignored")

	errs, warns := 2, 5
	s = Reduce(s, StageUpdated{Stage: Validating, Current: 4, Errors: &errs, Warnings: &warns, At: t0.Add(time.Second)})
	require.Equal(t, 2, s.Errors)
	require.Equal(t, 5, s.Warnings)

	failed := Reduce(s, Failed{Message: "boom", At: t0.Add(2 * time.Second)})
	require.Equal(t, Error, failed.Stage)
	require.Equal(t, "boom", failed.Message)
	require.Equal(t, failed, Reduce(failed, Completed{At: t0.Add(3 * time.Second)}))
	require.Equal(t, failed, Reduce(failed, StageStarted{Stage: Importing, At: t0}))

	require.Equal(t, State{Stage: Idle}, Reduce(failed, Reset{}))
}

func TestTracker_Subscribe(t *testing.T) {
	clock := newFakeClock()
	tr := NewTracker(WithClock(clock.Now), WithTickInterval(0))

	var seen []Stage
	unsubscribe := tr.Subscribe(func(s State) { seen = append(seen, s.Stage) })
	require.Equal(t, []Stage{Idle}, seen, "called immediately with the current state")

	tr.Start()
	tr.StartParsing(1)
	tr.Error("workbook rejected")
	require.Equal(t, []Stage{Idle, Idle, Parsing, Error}, seen)

	unsubscribe()
	unsubscribe()
	tr.Reset()
	require.Len(t, seen, 4)
	require.False(t, tr.TimerActive())
}

func TestTracker_TickRefreshesSpeed(t *testing.T) {
	clock := newFakeClock()
	tr := NewTracker(WithClock(clock.Now), WithTickInterval(5*time.Millisecond))
	defer tr.Close()

	tr.StartImport(10)
	tr.UpdateImport(5, 10, "")
	clock.Advance(10 * time.Second)

	require.Eventually(t, func() bool {
		return tr.State().Speed > 0 && tr.State().Speed < 1
	}, time.Second, 5*time.Millisecond)
}
