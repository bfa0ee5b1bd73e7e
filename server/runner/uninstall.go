package runner

import (
	"context"
	"fmt"
	"strings"

	"github.com/nomis52/golaunch/clients/shell"
	"github.com/nomis52/golaunch/config"
)

// Uninstall removes the recorded deployment and writes its records to out.
//
// It refuses with a single error record when nothing is deployed, when no
// uninstall commands are configured, or when another operation holds the run
// slot. Otherwise it takes the slot, runs every uninstall command even if
// some fail, removes the secrets file and forgets the deployment record.
func (r *Runner) Uninstall(ctx context.Context, out Emitter) error {
	persisted := r.store.Load()
	if !persisted.Deployed {
		_ = out.Emit(NewRecord(KindError, "Nothing to uninstall"))
		return ErrNotDeployed
	}

	d, ok := r.uninstallTarget(persisted)
	if !ok {
		_ = out.Emit(NewRecord(KindError, "No deployment type configured"))
		return ErrConfig
	}
	if !d.HasUninstall() {
		_ = out.Emit(NewRecord(KindError, "No uninstall commands configured"))
		return fmt.Errorf("%w: %s has no uninstall commands", ErrConfig, d.Name)
	}

	runID, ok := r.tracker.TryStart(OperationUninstall)
	if !ok {
		_ = out.Emit(NewRecord(KindError, "A deployment operation is already in progress"))
		return ErrRunInProgress
	}

	s := r.newSession(runID, OperationUninstall, out)
	s.logger = s.logger.With("deploy_type", d.Name)
	s.logger.Info("starting uninstall")
	return r.runUninstall(context.WithoutCancel(ctx), s, d)
}

// uninstallTarget prefers the deployment type that was recorded, if it is
// still configured.
func (r *Runner) uninstallTarget(persisted DeploymentRecord) (*config.Deployment, bool) {
	if cfg := r.configProvider.DeployConfig(); cfg != nil && persisted.DeployType != "" {
		if d, ok := cfg.Get(persisted.DeployType); ok {
			return d, true
		}
	}
	return r.activeDeployment()
}

func (r *Runner) runUninstall(ctx context.Context, s *session, d *config.Deployment) error {
	env := r.environ()

	s.emitf(KindStart, "Starting uninstall...")

	allOK := true
	n := len(d.UninstallCommands)
	for i, line := range d.UninstallCommands {
		s.emitf(KindSection, fmt.Sprintf("Command %d/%d", i+1, n))
		line = r.compose.Normalize(ctx, line)
		s.emitf(KindCommand, line)

		res, err := r.shell.RunSync(ctx, shell.Command{
			Line: line,
			Dir:  d.WorkingDir,
			Env:  env,
		}, r.settings.CommandTimeout, func(out string) {
			if strings.TrimSpace(out) != "" {
				s.emit(NewRecord(KindOutput, out))
			}
		})
		switch {
		case err != nil:
			allOK = false
			s.logger.Warn("uninstall command error", "command", line, "error", err)
			s.emitf(KindError, fmt.Sprintf("Command error: %v", err))
		case res.ExitCode != 0:
			allOK = false
			s.logger.Warn("uninstall command failed", "command", line, "exit_code", res.ExitCode)
			s.emitf(KindError, fmt.Sprintf("Command exited with code %d", res.ExitCode))
		default:
			s.emitf(KindSuccess, "✓ Command completed")
		}
	}

	s.emitf(KindSection, "Cleanup")
	s.emitf(KindInfo, "Removing .env file...")
	if err := r.secrets.Remove(d.WorkingDir); err != nil {
		s.logger.Warn("failed to remove secrets file", "error", err)
		s.emitf(KindWarning, "⚠ Could not remove .env file")
	} else {
		s.emitf(KindSuccess, "✓ Secrets cleaned up")
	}

	if err := r.store.Clear(); err != nil {
		s.logger.Error("failed to clear deployment record", "error", err)
	}
	r.metrics.setDeployed(false)

	s.emitf(KindSection, "Uninstall Complete")
	if allOK {
		s.emitf(KindSuccess, "✓ All resources removed successfully")
	} else {
		s.emitf(KindInfo, "Some commands had warnings - resources may still be removed")
	}
	s.emit(UninstallCompleteRecord(allOK))

	if allOK {
		s.finish(RunStateSuccess)
		return nil
	}
	s.finish(RunStateFailed)
	return fmt.Errorf("uninstall of %s finished with errors", d.Name)
}
