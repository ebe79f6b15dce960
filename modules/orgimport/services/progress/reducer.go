// Package progress models import progress as an explicit state value and a pure
// reducer. Tracker adds subscriptions and a refresh timer on top.
package progress

import (
	"math"
	"time"
)

type Stage string

const (
	Idle       Stage = "idle"
	Uploading  Stage = "uploading"
	Parsing    Stage = "parsing"
	Validating Stage = "validating"
	Processing Stage = "processing"
	Importing  Stage = "importing"
	Complete   Stage = "complete"
	Error      Stage = "error"
)

var stageRank = map[Stage]int{
	Idle:       0,
	Uploading:  1,
	Parsing:    2,
	Validating: 3,
	Processing: 4,
	Importing:  5,
	Complete:   6,
	Error:      6,
}

func (s Stage) Terminal() bool { return s == Complete || s == Error }

// Working reports the stages that accept start/update/complete events.
func (s Stage) Working() bool {
	r := stageRank[s]
	return r >= stageRank[Uploading] && r <= stageRank[Importing]
}

type State struct {
	Stage                  Stage         `json:"stage"`
	Progress               int           `json:"progress"`
	CurrentItem            int           `json:"current_item"`
	TotalItems             int           `json:"total_items"`
	Speed                  float64       `json:"speed"`
	EstimatedTimeRemaining time.Duration `json:"estimated_time_remaining"`
	Errors                 int           `json:"errors"`
	Warnings               int           `json:"warnings"`
	Message                string        `json:"message,omitempty"`
	StartedAt              time.Time     `json:"started_at"`
	StageStartedAt         time.Time     `json:"stage_started_at"`
	UpdatedAt              time.Time     `json:"updated_at"`
}

func (s State) Active() bool { return !s.StartedAt.IsZero() && !s.Stage.Terminal() }

type Event interface{ event() }

type Started struct{ At time.Time }

type StageStarted struct {
	Stage Stage
	Total int
	At    time.Time
}

// StageUpdated reports progress within the current stage. Nil counts leave the
// previous error/warning totals unchanged.
type StageUpdated struct {
	Stage    Stage
	Current  int
	Total    int
	Errors   *int
	Warnings *int
	Message  string
	At       time.Time
}

type StageCompleted struct {
	Stage Stage
	At    time.Time
}

type Completed struct {
	Message string
	At      time.Time
}

type Failed struct {
	Message string
	At      time.Time
}

// Tick re-evaluates speed and ETA against the clock.
type Tick struct{ At time.Time }

type Reset struct{}

func (Started) event()        {}
func (StageStarted) event()   {}
func (StageUpdated) event()   {}
func (StageCompleted) event() {}
func (Completed) event()      {}
func (Failed) event()         {}
func (Tick) event()           {}
func (Reset) event()          {}

// Reduce returns the state after e. Events that do not fit the current stage are
// ignored, stages only move forward, and terminal stages accept nothing but Reset.
func Reduce(s State, e Event) State {
	if _, ok := e.(Reset); ok {
		return State{Stage: Idle}
	}
	if s.Stage == "" {
		s.Stage = Idle
	}
	if s.Stage.Terminal() {
		return s
	}

	switch ev := e.(type) {
	case Started:
		if s.Stage != Idle {
			return s
		}
		return State{Stage: Idle, StartedAt: ev.At, StageStartedAt: ev.At, UpdatedAt: ev.At}

	case StageStarted:
		if !ev.Stage.Working() || stageRank[ev.Stage] <= stageRank[s.Stage] {
			return s
		}
		if s.StartedAt.IsZero() {
			s.StartedAt = ev.At
		}
		s.Stage = ev.Stage
		s.TotalItems = max(ev.Total, 0)
		s.CurrentItem = 0
		s.Progress = 0
		s.Speed = 0
		s.EstimatedTimeRemaining = 0
		s.StageStartedAt = ev.At
		s.UpdatedAt = ev.At
		s.Message = ""
		return s

	case StageUpdated:
		if ev.Stage != s.Stage || !s.Stage.Working() {
			return s
		}
		if ev.Total > 0 {
			s.TotalItems = ev.Total
		}
		s.CurrentItem = max(ev.Current, 0)
		if ev.Errors != nil {
			s.Errors = *ev.Errors
		}
		if ev.Warnings != nil {
			s.Warnings = *ev.Warnings
		}
		if ev.Message != "" {
			s.Message = ev.Message
		}
		s.Progress = percent(s.CurrentItem, s.TotalItems)
		return measure(s, ev.At)

	case StageCompleted:
		if ev.Stage != s.Stage || !s.Stage.Working() {
			return s
		}
		if s.TotalItems > 0 {
			s.CurrentItem = s.TotalItems
		}
		s.Progress = 100
		s = measure(s, ev.At)
		s.EstimatedTimeRemaining = 0
		return s

	case Completed:
		if s.TotalItems > 0 {
			s.CurrentItem = s.TotalItems
		}
		s.Stage = Complete
		s.Progress = 100
		s.EstimatedTimeRemaining = 0
		s.Message = ev.Message
		s.UpdatedAt = ev.At
		return s

	case Failed:
		s.Stage = Error
		s.EstimatedTimeRemaining = 0
		s.Message = ev.Message
		s.UpdatedAt = ev.At
		return s

	case Tick:
		if !s.Stage.Working() {
			return s
		}
		return measure(s, ev.At)
	}
	return s
}

func percent(current, total int) int {
	if total <= 0 {
		return 0
	}
	p := int(math.Round(float64(current) / float64(total) * 100))
	return min(max(p, 0), 100)
}

// measure sets speed from the current stage only and the ETA from the average
// time per item since the whole operation started.
func measure(s State, at time.Time) State {
	s.UpdatedAt = at
	if elapsed := at.Sub(s.StageStartedAt).Seconds(); elapsed > 0 {
		s.Speed = float64(s.CurrentItem) / elapsed
	} else {
		s.Speed = 0
	}
	s.EstimatedTimeRemaining = 0
	if s.CurrentItem > 0 && !s.StartedAt.IsZero() && s.TotalItems > s.CurrentItem {
		perItem := at.Sub(s.StartedAt) / time.Duration(s.CurrentItem)
		s.EstimatedTimeRemaining = perItem * time.Duration(s.TotalItems-s.CurrentItem)
	}
	return s
}
