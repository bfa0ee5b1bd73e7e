package runner

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultMaxHistorySize = 20

// Tracker holds the single run record shared by every request path. It is
// the only place run state changes, and one mutex serializes every change.
type Tracker struct {
	now   func() time.Time
	newID func() string

	mu          sync.Mutex
	runID       string
	operation   Operation
	state       RunState
	startedAt   *time.Time
	finishedAt  *time.Time
	logs        []Record
	history     []RunStatus // most recent first
	historySize int

	// prev keeps the run replaced by the latest start, so a follower that
	// was between polls can still read the rest of its log.
	prev *finishedRun
}

type finishedRun struct {
	status RunStatus
	logs   []Record
}

// NewTracker returns an idle tracker.
func NewTracker() *Tracker {
	return &Tracker{
		now:         time.Now,
		newID:       uuid.NewString,
		state:       RunStateIdle,
		historySize: defaultMaxHistorySize,
	}
}

// Start begins a new run regardless of the current state and returns its id.
// The log is cleared.
func (t *Tracker) Start(op Operation) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.startLocked(op)
}

// TryStart begins a new run unless one is already running. It returns false
// when the caller must follow the existing run instead.
func (t *Tracker) TryStart(op Operation) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.state.CanTransition(RunStateRunning) {
		return "", false
	}
	return t.startLocked(op), true
}

func (t *Tracker) startLocked(op Operation) string {
	if t.runID != "" {
		t.prev = &finishedRun{status: t.statusLocked(), logs: t.logs}
	}
	now := t.now()
	t.runID = t.newID()
	t.operation = op
	t.state = RunStateRunning
	t.startedAt = &now
	t.finishedAt = nil
	t.logs = nil
	return t.runID
}

// Append adds a record to the log and returns its sequence number.
func (t *Tracker) Append(rec Record) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.logs = append(t.logs, rec)
	return len(t.logs) - 1
}

// Finish moves the running operation into a terminal state.
func (t *Tracker) Finish(state RunState) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !state.Terminal() || !t.state.CanTransition(state) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.state, state)
	}
	now := t.now()
	t.state = state
	t.finishedAt = &now

	t.history = append([]RunStatus{t.statusLocked()}, t.history...)
	if len(t.history) > t.historySize {
		t.history = t.history[:t.historySize]
	}
	return nil
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() RunStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.statusLocked()
}

// Since returns a copy of the records from index onwards together with the
// state observed at the same instant. An index past the end yields no records.
func (t *Tracker) Since(index int) ([]Record, RunStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return copyFrom(t.logs, index), t.statusLocked()
}

func copyFrom(logs []Record, index int) []Record {
	if index < 0 {
		index = 0
	}
	if index >= len(logs) {
		return nil
	}
	records := make([]Record, len(logs)-index)
	copy(records, logs[index:])
	return records
}

// SinceRun is Since for a specific run. When runID has been replaced by a
// newer run, the rest of its log is returned with its final status. A run
// that is no longer known yields no records and a finished status with state
// unknown.
func (t *Tracker) SinceRun(runID string, index int) ([]Record, RunStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if runID == t.runID {
		return copyFrom(t.logs, index), t.statusLocked()
	}
	if t.prev != nil && t.prev.status.RunID == runID {
		status := t.prev.status
		if status.IsRunning {
			// Replaced by Start before it finished.
			status.State = RunStateUnknown
			status.IsRunning = false
		}
		return copyFrom(t.prev.logs, index), status
	}
	return nil, RunStatus{RunID: runID, State: RunStateUnknown}
}

// History returns the finished runs, most recent first.
func (t *Tracker) History() []RunStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	result := make([]RunStatus, len(t.history))
	copy(result, t.history)
	return result
}

func (t *Tracker) statusLocked() RunStatus {
	return RunStatus{
		RunID:      t.runID,
		Operation:  t.operation,
		State:      t.state,
		IsRunning:  t.state == RunStateRunning,
		StartedAt:  copyTime(t.startedAt),
		FinishedAt: copyTime(t.finishedAt),
		LogCount:   len(t.logs),
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
