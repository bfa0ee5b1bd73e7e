package runner

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/util/duration"

	"github.com/nomis52/golaunch/clients/cluster"
	"github.com/nomis52/golaunch/clients/compose"
	"github.com/nomis52/golaunch/clients/hostinfo"
	"github.com/nomis52/golaunch/clients/shell"
	"github.com/nomis52/golaunch/config"
)

// monitor starts the main command and observes it until it exits or the
// monitoring ceiling passes, then finalizes the run.
func (r *Runner) monitor(ctx context.Context, s *session, d *config.Deployment, env *environment, req *Request) error {
	s.emitf(KindSection, "Main Deployment")

	line := r.compose.Normalize(ctx, d.Command)
	if r.daemon != nil && compose.UsesCompose(line) {
		pctx, cancel := context.WithTimeout(ctx, r.settings.StatusTimeout)
		err := r.daemon.Ping(pctx)
		cancel()
		if err != nil {
			s.logger.Warn("docker daemon check failed", "error", err)
			s.emitf(KindWarning, fmt.Sprintf("⚠ Docker daemon is not reachable: %v", err))
		}
	}
	s.emitf(KindCommand, line)

	h, err := r.shell.RunAsync(shell.Command{
		Line: line,
		Dir:  d.WorkingDir,
		Env:  env.list(),
	})
	if err != nil {
		s.logger.Error("failed to start main command", "command", line, "error", err)
		s.emitf(KindError, fmt.Sprintf("Command error: %v", err))
		s.emit(CompleteRecord())
		s.finish(RunStateFailed)
		return err
	}

	if !r.watch(ctx, s, h, d.Namespace, env.list()) {
		// The ceiling passed. Give a command that is just finishing a last chance.
		select {
		case <-h.Done():
		case <-time.After(r.settings.GracePeriod):
		}
		s.emitOutput(h.Drain())
	}

	res, finished := h.Result()
	switch {
	case !finished:
		s.logger.Warn("monitoring timeout reached, main command still running", "timeout", r.settings.MonitorTimeout)
		s.emitf(KindInfo, fmt.Sprintf("Monitoring timeout reached (%s). The deployment may still be running in the background.",
			duration.HumanDuration(r.settings.MonitorTimeout)))
		s.emitf(KindInfo, "Check status with:")
		s.emitf(KindCommand, statusHint(d.Namespace))
		s.emit(CompleteRecord())
		s.finish(RunStateTimeout)
		return nil
	case h.Err() != nil:
		// Exited, but no exit status could be collected.
		s.logger.Warn("main command exit status unknown", "command", line, "error", h.Err())
		s.emitf(KindInfo, "Deployment status unknown. Check manually:")
		s.emitf(KindCommand, statusHint(d.Namespace))
		s.emit(CompleteRecord())
		s.finish(RunStateUnknown)
		return nil
	case res.ExitCode == 0:
		return r.succeed(ctx, s, d, env, req)
	default:
		s.logger.Error("main command failed", "command", line, "exit_code", res.ExitCode)
		s.emitf(KindError, fmt.Sprintf("Deployment failed with exit code %d", res.ExitCode))
		for _, l := range tail(res.Lines, r.settings.TailLines) {
			s.emit(NewRecord(KindError, l))
		}
		s.emit(CompleteRecord())
		s.finish(RunStateFailed)
		return &CommandError{Command: line, ExitCode: res.ExitCode}
	}
}

// watch streams the main command's output and polls cluster status until
// the command has exited and one more poll has passed, or until the
// monitoring ceiling. It returns false when the ceiling was reached first.
func (r *Runner) watch(ctx context.Context, s *session, h *shell.Handle, namespace string, env []string) bool {
	ticker := time.NewTicker(r.settings.PollInterval)
	defer ticker.Stop()
	ceiling := time.NewTimer(r.settings.MonitorTimeout)
	defer ceiling.Stop()

	var lastStatus string
	doneSeen := false

	// step reports true when monitoring is complete.
	step := func() bool {
		s.heartbeat()
		s.emitOutput(h.Drain())
		if doneSeen {
			return true
		}
		if h.Finished() {
			doneSeen = true
		}
		lastStatus = r.pollPods(ctx, s, namespace, env, lastStatus)
		return false
	}

	if step() {
		return true
	}
	for {
		select {
		case <-h.Ready():
			s.emitOutput(h.Drain())
		case <-ticker.C:
			if step() {
				return true
			}
		case <-ceiling.C:
			s.emitOutput(h.Drain())
			return false
		}
	}
}

// pollPods queries cluster status with the deployment environment and emits
// it when it changed since last. It returns the text to compare the next poll
// against.
func (r *Runner) pollPods(ctx context.Context, s *session, namespace string, env []string, last string) string {
	pctx, cancel := context.WithTimeout(ctx, r.settings.StatusTimeout)
	defer cancel()

	text, err := r.cluster.Status(pctx, namespace, env)
	if err != nil {
		s.logger.Debug("pod poll error", "namespace", namespace, "error", err)
	}
	text = strings.TrimSpace(text)
	if text == "" || text == last {
		return last
	}

	r.metrics.setClusterPods(namespace, len(cluster.Rows(text, 0)))
	s.emitf(KindPods, "Pod Status:")
	for _, row := range cluster.Rows(text, r.settings.MaxPods) {
		s.emit(NewRecord(KindPod, row))
	}
	return text
}

// succeed runs the post-commands and records the deployment.
func (r *Runner) succeed(ctx context.Context, s *session, d *config.Deployment, env *environment, req *Request) error {
	r.runPostCommands(ctx, s, d, env)

	s.emitf(KindSection, "Deployment Complete")
	services := r.resolveServices(ctx, d.Services, req.Host)
	if len(services) > 0 {
		s.emitf(KindSection, "Available Services")
		for _, svc := range services {
			s.emit(ServiceRecord(svc))
		}
	}

	now := time.Now()
	rec := DeploymentRecord{
		Deployed:   true,
		Status:     RunStateSuccess.String(),
		DeployType: d.Name,
		Version:    env.version(),
		DeployedAt: &now,
		Namespace:  d.Namespace,
		Services:   services,
	}
	if err := r.store.Save(rec); err != nil {
		s.logger.Error("failed to save deployment record", "error", err)
	}
	r.metrics.setDeployed(true)

	s.emit(CompleteRecord())
	s.finish(RunStateSuccess)
	return nil
}

// runPostCommands runs every post-command. Failures are warnings only.
func (r *Runner) runPostCommands(ctx context.Context, s *session, d *config.Deployment, env *environment) {
	if len(d.PostCommands) == 0 {
		return
	}
	s.emitf(KindSection, "Post-deployment setup")

	n := len(d.PostCommands)
	for i, line := range d.PostCommands {
		s.emitf(KindInfo, fmt.Sprintf("Post-command %d/%d", i+1, n))
		line = r.compose.Normalize(ctx, line)
		s.emitf(KindCommand, line)

		res, err := r.shell.RunSync(ctx, shell.Command{
			Line: line,
			Dir:  d.WorkingDir,
			Env:  env.list(),
		}, r.settings.CommandTimeout, func(out string) {
			if strings.TrimSpace(out) != "" {
				s.emit(NewRecord(KindOutput, out))
			}
		})
		switch {
		case err != nil:
			s.logger.Warn("post-command error", "command", line, "error", err)
			s.emitf(KindWarning, fmt.Sprintf("Post-command error: %v", err))
		case res.ExitCode != 0:
			s.logger.Warn("post-command failed", "command", line, "exit_code", res.ExitCode)
			s.emitf(KindWarning, fmt.Sprintf("Post-command exited with code %d (non-fatal)", res.ExitCode))
		}
	}
}

// resolveServices fills in service URL placeholders. The public IP is only
// looked up when some URL needs it.
func (r *Runner) resolveServices(ctx context.Context, services []config.Service, host string) []config.Service {
	if len(services) == 0 {
		return nil
	}
	var hostIP string
	for _, svc := range services {
		if strings.Contains(svc.URL, hostinfo.HostIPToken) {
			hostIP = r.hosts.ResolveHostIP(ctx)
			break
		}
	}
	return hostinfo.SubstituteServiceURLs(services, hostIP, hostinfo.ExtractBaseDomain(host))
}

func statusHint(namespace string) string {
	return "kubectl get pods -n " + namespace
}

// tail returns the last n non-blank lines.
func tail(lines []string, n int) []string {
	var out []string
	for i := len(lines) - 1; i >= 0 && len(out) < n; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			out = append(out, lines[i])
		}
	}
	slices.Reverse(out)
	return out
}
