package runner

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/nomis52/golaunch/clients/shell"
	"github.com/nomis52/golaunch/config"
)

// Deploy runs a deployment and writes its records to out.
//
// When another operation already holds the run slot the caller becomes a
// follower: it is told so, receives the existing log and then follows the
// run to its end. Once a caller is the leader, cancelling ctx (for example a
// client disconnect) does not stop the run; records keep being appended to
// the tracker for followers.
//
// The returned error describes why the deployment did not succeed. It is nil
// for a successful run and for a follower whose run ended.
func (r *Runner) Deploy(ctx context.Context, req *Request, out Emitter) error {
	if err := req.Validate(); err != nil {
		_ = out.Emit(NewRecord(KindError, "API key or input data is required"))
		return err
	}

	runID, ok := r.tracker.TryStart(OperationDeploy)
	if !ok {
		r.logger.Info("deployment already in progress, following")
		return r.follow(ctx, out, true)
	}

	s := r.newSession(runID, OperationDeploy, out)
	s.logger.Info("starting deployment")
	return r.lead(context.WithoutCancel(ctx), s, req)
}

// lead executes the deployment as the holder of the run slot.
func (r *Runner) lead(ctx context.Context, s *session, req *Request) error {
	d, ok := r.activeDeployment()
	if !ok {
		s.emitf(KindError, "No deployment configured")
		s.emit(CompleteRecord())
		s.finish(RunStateFailed)
		return ErrConfig
	}
	s.logger = s.logger.With("deploy_type", d.Name)

	env := buildEnvironment(r.environ(), d, req)

	s.emitf(KindStart, fmt.Sprintf("Starting %s deployment...", d.Name))
	s.emitf(KindSection, "Environment Setup")
	s.emitf(KindInfo, "Writing .env file for persistent secrets...")
	if path, err := r.secrets.Write(d.WorkingDir, env.vars); err != nil {
		s.logger.Warn("failed to write secrets file", "error", err)
		s.emitf(KindWarning, "⚠ Failed to write .env file - secrets may not persist")
	} else {
		s.logger.Debug("wrote secrets file", "path", path)
		s.emitf(KindSuccess, "✓ Secrets persisted to .env (secure: 600)")
	}

	if err := r.runPreCommands(ctx, s, d, env); err != nil {
		s.emit(CompleteRecord())
		s.finish(RunStateFailed)
		return err
	}

	return r.monitor(ctx, s, d, env, req)
}

// runPreCommands runs each pre-command in order and stops at the first failure.
func (r *Runner) runPreCommands(ctx context.Context, s *session, d *config.Deployment, env *environment) error {
	n := len(d.PreCommands)
	for i, line := range d.PreCommands {
		s.emitf(KindSection, fmt.Sprintf("Pre-command %d/%d", i+1, n))
		line = r.compose.Normalize(ctx, line)
		s.emitf(KindCommand, line)

		res, err := r.shell.RunSync(ctx, shell.Command{
			Line: line,
			Dir:  d.WorkingDir,
			Env:  env.list(),
		}, r.settings.CommandTimeout, func(out string) {
			s.emit(NewRecord(KindOutput, out))
		})
		if err != nil {
			s.logger.Error("pre-command error", "command", line, "error", err)
			s.emitf(KindError, fmt.Sprintf("Pre-command error: %v", err))
			return fmt.Errorf("pre-command %d: %w", i+1, err)
		}
		if res.ExitCode != 0 {
			s.logger.Error("pre-command failed", "command", line, "exit_code", res.ExitCode)
			s.emitf(KindError, fmt.Sprintf("Pre-command failed with exit code %d", res.ExitCode))
			return &CommandError{Command: line, ExitCode: res.ExitCode}
		}
	}
	return nil
}

// SyncResult is the single JSON document returned by a non-streaming deploy.
type SyncResult struct {
	// Status is the HTTP status code the result maps to.
	Status  int    `json:"-"`
	State   string `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Output  string `json:"output"`
}

// recorder is an Emitter that buffers records in memory.
type recorder struct {
	records []Record
}

func (b *recorder) Emit(rec Record) error {
	b.records = append(b.records, rec)
	return nil
}

func (b *recorder) Heartbeat() error { return nil }

// DeploySync runs a deployment to completion and summarizes it. It fails
// fast with ErrRunInProgress rather than following another run.
func (r *Runner) DeploySync(ctx context.Context, req *Request) SyncResult {
	if err := req.Validate(); err != nil {
		return SyncResult{Status: http.StatusBadRequest, State: RunStateFailed.String(), Error: "API key or input data is required"}
	}
	if _, ok := r.activeDeployment(); !ok {
		return SyncResult{Status: http.StatusInternalServerError, State: RunStateFailed.String(), Error: "No deployment configured"}
	}

	runID, ok := r.tracker.TryStart(OperationDeploy)
	if !ok {
		return SyncResult{Status: http.StatusConflict, State: RunStateRunning.String(), Error: ErrRunInProgress.Error()}
	}

	rec := &recorder{}
	s := r.newSession(runID, OperationDeploy, rec)
	s.logger.Info("starting synchronous deployment")
	err := r.lead(context.WithoutCancel(ctx), s, req)

	var output []string
	for _, record := range rec.records {
		if record.Type == KindOutput || record.Type == KindError {
			output = append(output, record.Message)
		}
	}
	result := SyncResult{
		State:  s.state.String(),
		Output: strings.Join(output, "\n"),
	}

	var cmdErr *CommandError
	switch state := s.state; {
	case state == RunStateSuccess:
		result.Status = http.StatusOK
		result.Message = "Deployment completed successfully"
	case state == RunStateTimeout || state == RunStateUnknown:
		result.Status = http.StatusAccepted
		result.Message = "Deployment is still running in the background"
	case errors.As(err, &cmdErr):
		result.Status = http.StatusInternalServerError
		result.Error = fmt.Sprintf("Deployment failed: %v", cmdErr)
	case err != nil:
		result.Status = http.StatusInternalServerError
		result.Error = fmt.Sprintf("Deployment error: %v", err)
	default:
		result.Status = http.StatusInternalServerError
		result.Error = "Deployment failed"
	}
	return result
}
