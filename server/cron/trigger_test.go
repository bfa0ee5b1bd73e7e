package cron

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type countingJob struct {
	runs atomic.Int32
	err  error
}

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	return j.err
}

func TestNewCronTrigger(t *testing.T) {
	job := &countingJob{}

	tests := []struct {
		name    string
		spec    string
		wantErr bool
	}{
		{name: "every five minutes", spec: "*/5 * * * *"},
		{name: "daily at 2am", spec: "0 2 * * *"},
		{name: "every minute", spec: "* * * * *"},
		{name: "empty", spec: "", wantErr: true},
		{name: "wrong format", spec: "not a cron spec", wantErr: true},
		{name: "too few fields", spec: "0 2 *", wantErr: true},
		{name: "seconds field rejected", spec: "0 0 2 * * *", wantErr: true},
		{name: "invalid value", spec: "60 2 * * *", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trigger, err := NewCronTrigger(tt.spec, "probe", job.Run, testLogger())

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidCronSpec)
				assert.Nil(t, trigger)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.spec, trigger.Spec())
		})
	}
}

func TestCronTrigger_NextRun(t *testing.T) {
	job := &countingJob{}
	trigger, err := NewCronTrigger("0 2 * * *", "probe", job.Run, testLogger())
	require.NoError(t, err)

	nextRun := trigger.NextRun()
	assert.True(t, nextRun.After(time.Now()), "next run should be in the future")
	assert.Equal(t, 2, nextRun.Hour())
	assert.Equal(t, 0, nextRun.Minute())
}

func TestCronTrigger_Execute(t *testing.T) {
	job := &countingJob{err: errors.New("cluster unreachable")}
	trigger, err := NewCronTrigger("* * * * *", "probe", job.Run, testLogger())
	require.NoError(t, err)

	trigger.execute(context.Background())
	trigger.execute(context.Background())

	assert.Equal(t, int32(2), job.runs.Load())
}

func TestCronTrigger_Start_CancellationStopsLoop(t *testing.T) {
	job := &countingJob{}
	trigger, err := NewCronTrigger("0 2 * * *", "probe", job.Run, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	trigger.Start(ctx)

	time.Sleep(10 * time.Millisecond)
	cancel()
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, int32(0), job.runs.Load())
}
