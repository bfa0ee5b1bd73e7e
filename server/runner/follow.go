package runner

import (
	"context"
	"time"
)

// Follow replays the current or last operation's log to out and, while it is
// running, keeps writing new records until it ends. The stream is closed
// with a stream_end record carrying the final state. Follow returns
// ctx.Err() if ctx is cancelled first, or the first error from out.
func (r *Runner) Follow(ctx context.Context, out Emitter) error {
	return r.follow(ctx, out, false)
}

// follow observes the tracker without ever starting a run. When announce is
// set the caller is told it joined an existing run.
func (r *Runner) follow(ctx context.Context, out Emitter, announce bool) error {
	if announce {
		if err := out.Emit(NewRecord(KindInfo, "Deployment already in progress. Connecting to existing logs...")); err != nil {
			return err
		}
	}

	records, status := r.tracker.Since(0)
	if err := emitAll(out, records); err != nil {
		return err
	}
	if !status.IsRunning {
		return out.Emit(StreamEndRecord(status.State))
	}

	runID := status.RunID
	next := len(records)

	ticker := time.NewTicker(r.settings.FollowInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if err := out.Heartbeat(); err != nil {
			return err
		}

		// Keyed by run id so a run replaced between polls is still read to
		// its end.
		records, status := r.tracker.SinceRun(runID, next)
		if err := emitAll(out, records); err != nil {
			return err
		}
		next += len(records)

		if !status.IsRunning {
			return out.Emit(StreamEndRecord(status.State))
		}
	}
}

func emitAll(out Emitter, records []Record) error {
	for _, rec := range records {
		if err := out.Emit(rec); err != nil {
			return err
		}
	}
	return nil
}
