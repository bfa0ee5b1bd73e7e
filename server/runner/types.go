package runner

import (
	"fmt"
	"time"
)

// RunState represents the state of the current or last operation.
type RunState int

const (
	// RunStateIdle indicates nothing has run since the server started.
	RunStateIdle RunState = iota
	// RunStateRunning indicates an operation is in progress.
	RunStateRunning
	// RunStateSuccess indicates the last operation completed successfully.
	RunStateSuccess
	// RunStateFailed indicates the last operation failed.
	RunStateFailed
	// RunStateTimeout indicates monitoring stopped before the main command finished.
	RunStateTimeout
	// RunStateUnknown indicates the main command's exit status could not be determined.
	RunStateUnknown
)

var runStateNames = map[RunState]string{
	RunStateIdle:    "idle",
	RunStateRunning: "running",
	RunStateSuccess: "success",
	RunStateFailed:  "failed",
	RunStateTimeout: "timeout",
	RunStateUnknown: "unknown",
}

// transitions lists every state reachable from a given state. Entering
// running from any non-running state happens through a new start.
var transitions = map[RunState][]RunState{
	RunStateIdle:    {RunStateRunning},
	RunStateRunning: {RunStateSuccess, RunStateFailed, RunStateTimeout, RunStateUnknown},
	RunStateSuccess: {RunStateRunning},
	RunStateFailed:  {RunStateRunning},
	RunStateTimeout: {RunStateRunning},
	RunStateUnknown: {RunStateRunning},
}

// String returns the string representation of the run state.
func (s RunState) String() string {
	if name, ok := runStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("RunState(%d)", int(s))
}

// MarshalJSON implements json.Marshaler.
func (s RunState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Terminal reports whether s ends an operation.
func (s RunState) Terminal() bool {
	switch s {
	case RunStateSuccess, RunStateFailed, RunStateTimeout, RunStateUnknown:
		return true
	default:
		return false
	}
}

// CanTransition reports whether moving from s to next is allowed.
func (s RunState) CanTransition(next RunState) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Operation names the kind of work holding the run slot.
type Operation string

const (
	// OperationDeploy is a deployment run.
	OperationDeploy Operation = "deploy"
	// OperationUninstall is an uninstall run.
	OperationUninstall Operation = "uninstall"
)

// RunStatus is a point in time copy of the tracker state.
type RunStatus struct {
	RunID     string    `json:"run_id,omitempty"`
	Operation Operation `json:"operation,omitempty"`
	State     RunState  `json:"status"`
	IsRunning bool      `json:"is_running"`
	// StartedAt is when the operation started. Nil if nothing has run.
	StartedAt *time.Time `json:"started_at"`
	// FinishedAt is when the operation ended. Nil while running.
	FinishedAt *time.Time `json:"finished_at"`
	LogCount   int        `json:"log_count"`
}

// Duration returns how long the operation ran, or zero if it has not finished.
func (s RunStatus) Duration() time.Duration {
	if s.StartedAt == nil || s.FinishedAt == nil {
		return 0
	}
	return s.FinishedAt.Sub(*s.StartedAt)
}
