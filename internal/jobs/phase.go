package jobs

import (
	"sync"
	"time"
)

// Phase is where a loop currently is within one iteration.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseDue
	PhaseActing
	PhaseRecording
)

func (p Phase) String() string {
	switch p {
	case PhaseDue:
		return "due"
	case PhaseActing:
		return "acting"
	case PhaseRecording:
		return "recording"
	default:
		return "idle"
	}
}

// Snapshot is what /status shows for a loop.
type Snapshot struct {
	Name    string
	Phase   Phase
	LastRun time.Time
	NextRun time.Time
	LastErr string
	// Done counts occurrences handled by the last run.
	Done int
}

type tracker struct {
	mu   sync.Mutex
	snap Snapshot
}

func (t *tracker) set(p Phase) {
	t.mu.Lock()
	t.snap.Phase = p
	t.mu.Unlock()
}

func (t *tracker) next(at time.Time) {
	t.mu.Lock()
	t.snap.NextRun = at
	t.mu.Unlock()
}

func (t *tracker) finish(at time.Time, done int, err error) {
	t.mu.Lock()
	t.snap.Phase = PhaseIdle
	t.snap.LastRun = at
	t.snap.Done = done
	t.snap.LastErr = ""
	if err != nil {
		t.snap.LastErr = err.Error()
	}
	t.mu.Unlock()
}

func (t *tracker) get() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap
}
