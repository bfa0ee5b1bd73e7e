package runner

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestTracker returns a tracker with a controllable clock and sequential ids.
func newTestTracker() (*Tracker, *time.Time) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	n := 0
	tr := NewTracker()
	tr.now = func() time.Time { return now }
	tr.newID = func() string {
		n++
		return fmt.Sprintf("run-%d", n)
	}
	return tr, &now
}

func TestRunState(t *testing.T) {
	tests := []struct {
		state    RunState
		name     string
		terminal bool
	}{
		{RunStateIdle, "idle", false},
		{RunStateRunning, "running", false},
		{RunStateSuccess, "success", true},
		{RunStateFailed, "failed", true},
		{RunStateTimeout, "timeout", true},
		{RunStateUnknown, "unknown", true},
		{RunState(42), "RunState(42)", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.state.String())
			assert.Equal(t, tt.terminal, tt.state.Terminal())

			data, err := json.Marshal(tt.state)
			require.NoError(t, err)
			assert.Equal(t, `"`+tt.name+`"`, string(data))
		})
	}
}

func TestRunState_CanTransition(t *testing.T) {
	assert.True(t, RunStateIdle.CanTransition(RunStateRunning))
	assert.False(t, RunStateIdle.CanTransition(RunStateSuccess))
	assert.False(t, RunStateRunning.CanTransition(RunStateRunning))
	assert.False(t, RunStateRunning.CanTransition(RunStateIdle))
	for _, terminal := range []RunState{RunStateSuccess, RunStateFailed, RunStateTimeout, RunStateUnknown} {
		assert.True(t, RunStateRunning.CanTransition(terminal), terminal.String())
		assert.True(t, terminal.CanTransition(RunStateRunning), terminal.String())
		assert.False(t, terminal.CanTransition(RunStateIdle), terminal.String())
		assert.False(t, terminal.CanTransition(RunStateSuccess), terminal.String())
	}
}

func TestTracker_Initial(t *testing.T) {
	tr, _ := newTestTracker()
	status := tr.Snapshot()
	assert.Equal(t, RunStateIdle, status.State)
	assert.False(t, status.IsRunning)
	assert.Nil(t, status.StartedAt)
	assert.Nil(t, status.FinishedAt)
	assert.Zero(t, status.LogCount)
	assert.Empty(t, tr.History())
}

func TestTracker_StartClearsLogs(t *testing.T) {
	for _, prior := range []RunState{RunStateSuccess, RunStateFailed, RunStateTimeout, RunStateUnknown} {
		t.Run(prior.String(), func(t *testing.T) {
			tr, _ := newTestTracker()
			tr.Start(OperationDeploy)
			tr.Append(NewRecord(KindInfo, "first"))
			require.NoError(t, tr.Finish(prior))

			id := tr.Start(OperationDeploy)
			status := tr.Snapshot()
			assert.Equal(t, "run-2", id)
			assert.Equal(t, RunStateRunning, status.State)
			assert.True(t, status.IsRunning)
			assert.Zero(t, status.LogCount)
			assert.Nil(t, status.FinishedAt)

			records, _ := tr.Since(0)
			assert.Empty(t, records)
		})
	}
}

func TestTracker_StartWhileRunning(t *testing.T) {
	tr, _ := newTestTracker()
	tr.Start(OperationDeploy)
	tr.Append(NewRecord(KindInfo, "x"))

	// Start has no precondition.
	tr.Start(OperationUninstall)
	status := tr.Snapshot()
	assert.Equal(t, RunStateRunning, status.State)
	assert.Equal(t, OperationUninstall, status.Operation)
	assert.Zero(t, status.LogCount)
}

func TestTracker_TryStart(t *testing.T) {
	tr, _ := newTestTracker()

	id, ok := tr.TryStart(OperationDeploy)
	require.True(t, ok)
	assert.Equal(t, "run-1", id)

	_, ok = tr.TryStart(OperationDeploy)
	assert.False(t, ok)
	_, ok = tr.TryStart(OperationUninstall)
	assert.False(t, ok)

	require.NoError(t, tr.Finish(RunStateFailed))
	id, ok = tr.TryStart(OperationUninstall)
	require.True(t, ok)
	assert.Equal(t, "run-2", id)
}

func TestTracker_TryStartConcurrent(t *testing.T) {
	tr := NewTracker()

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := tr.TryStart(OperationDeploy); ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}

func TestTracker_Finish(t *testing.T) {
	tr, now := newTestTracker()

	err := tr.Finish(RunStateSuccess)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	tr.Start(OperationDeploy)
	assert.ErrorIs(t, tr.Finish(RunStateRunning), ErrInvalidTransition)
	assert.ErrorIs(t, tr.Finish(RunStateIdle), ErrInvalidTransition)

	*now = now.Add(90 * time.Second)
	require.NoError(t, tr.Finish(RunStateTimeout))

	status := tr.Snapshot()
	assert.Equal(t, RunStateTimeout, status.State)
	assert.False(t, status.IsRunning)
	require.NotNil(t, status.FinishedAt)
	assert.Equal(t, 90*time.Second, status.Duration())

	// Finishing twice is rejected.
	assert.ErrorIs(t, tr.Finish(RunStateSuccess), ErrInvalidTransition)
}

func TestTracker_Since(t *testing.T) {
	tr, _ := newTestTracker()
	tr.Start(OperationDeploy)
	for i := 0; i < 5; i++ {
		assert.Equal(t, i, tr.Append(NewRecord(KindOutput, fmt.Sprintf("line %d", i))))
	}

	records, status := tr.Since(0)
	require.Len(t, records, 5)
	assert.Equal(t, 5, status.LogCount)

	records, _ = tr.Since(3)
	require.Len(t, records, 2)
	assert.Equal(t, "line 3", records[0].Message)

	records, _ = tr.Since(5)
	assert.Empty(t, records)
	records, _ = tr.Since(-1)
	assert.Len(t, records, 5)

	// Returned slices are copies.
	records[0].Message = "changed"
	again, _ := tr.Since(0)
	assert.Equal(t, "line 0", again[0].Message)
}

func TestTracker_SinceRun(t *testing.T) {
	tr, _ := newTestTracker()
	first := tr.Start(OperationDeploy)
	tr.Append(NewRecord(KindStart, "a"))
	tr.Append(NewRecord(KindOutput, "b"))

	records, status := tr.SinceRun(first, 1)
	require.Len(t, records, 1)
	assert.True(t, status.IsRunning)

	tr.Append(CompleteRecord())
	require.NoError(t, tr.Finish(RunStateFailed))
	second := tr.Start(OperationUninstall)
	tr.Append(NewRecord(KindStart, "c"))

	// The replaced run's log is still readable to its end.
	records, status = tr.SinceRun(first, 1)
	assert.Equal(t, []Record{NewRecord(KindOutput, "b"), CompleteRecord()}, records)
	assert.Equal(t, first, status.RunID)
	assert.Equal(t, RunStateFailed, status.State)
	assert.False(t, status.IsRunning)

	records, status = tr.SinceRun(second, 0)
	assert.Equal(t, []Record{NewRecord(KindStart, "c")}, records)
	assert.True(t, status.IsRunning)

	// Only the most recently replaced run is kept.
	tr.Start(OperationDeploy)
	records, status = tr.SinceRun(first, 0)
	assert.Empty(t, records)
	assert.Equal(t, RunStateUnknown, status.State)
	assert.False(t, status.IsRunning)

	// A run replaced while still running ends as unknown.
	records, status = tr.SinceRun(second, 0)
	assert.Len(t, records, 1)
	assert.Equal(t, RunStateUnknown, status.State)
	assert.False(t, status.IsRunning)
}

func TestTracker_History(t *testing.T) {
	tr, _ := newTestTracker()
	for i := 0; i < defaultMaxHistorySize+5; i++ {
		tr.Start(OperationDeploy)
		require.NoError(t, tr.Finish(RunStateSuccess))
	}

	history := tr.History()
	require.Len(t, history, defaultMaxHistorySize)
	assert.Equal(t, fmt.Sprintf("run-%d", defaultMaxHistorySize+5), history[0].RunID)
	assert.Equal(t, RunStateSuccess, history[0].State)
}
