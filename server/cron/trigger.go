// Package cron runs background jobs on a cron schedule.
//
// The server uses it to probe cluster status while no deployment is running.
//
//	trigger, err := cron.NewCronTrigger("*/5 * * * *", "cluster probe", r.ProbeCluster, logger)
//	if err != nil {
//	    return err
//	}
//	trigger.Start(ctx)
package cron

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidCronSpec is returned when the cron specification cannot be parsed.
var ErrInvalidCronSpec = errors.New("invalid cron spec")

// Job is the work a trigger runs. It receives the trigger's context.
type Job func(ctx context.Context) error

// CronTrigger executes a Job according to a cron schedule.
type CronTrigger struct {
	spec     string
	name     string
	schedule cron.Schedule
	job      Job
	logger   *slog.Logger
}

// NewCronTrigger creates a new CronTrigger with the given cron specification.
// The spec follows standard cron format (5 fields: minute, hour, day, month, weekday).
// Returns ErrInvalidCronSpec if the specification cannot be parsed.
func NewCronTrigger(spec, name string, job Job, logger *slog.Logger) (*CronTrigger, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, errors.Join(ErrInvalidCronSpec, err)
	}

	return &CronTrigger{
		spec:     spec,
		name:     name,
		schedule: schedule,
		job:      job,
		logger:   logger.With("job", name),
	}, nil
}

// Start launches a goroutine that runs the job according to the schedule.
// Returns immediately. The goroutine exits when ctx is cancelled.
func (ct *CronTrigger) Start(ctx context.Context) {
	go ct.loop(ctx)
}

// Spec returns the schedule the trigger was created with.
func (ct *CronTrigger) Spec() string {
	return ct.spec
}

// NextRun returns the next scheduled run time from now.
func (ct *CronTrigger) NextRun() time.Time {
	return ct.schedule.Next(time.Now())
}

func (ct *CronTrigger) loop(ctx context.Context) {
	for {
		nextRun := ct.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(nextRun))

		ct.logger.Debug("waiting for next scheduled run", "next_run", nextRun)

		select {
		case <-ctx.Done():
			timer.Stop()
			ct.logger.Info("cron trigger shutting down")
			return
		case <-timer.C:
			ct.execute(ctx)
		}
	}
}

// execute runs the job once and logs the result.
func (ct *CronTrigger) execute(ctx context.Context) {
	ct.logger.Debug("starting scheduled job")

	start := time.Now()
	if err := ct.job(ctx); err != nil {
		ct.logger.Warn("scheduled job completed with error", "error", err, "duration", time.Since(start))
		return
	}
	ct.logger.Debug("scheduled job completed", "duration", time.Since(start))
}
