package runner

import "fmt"

// DryRunPlan describes what a deployment would execute.
type DryRunPlan struct {
	DeploymentType   string            `json:"deployment_type"`
	Version          string            `json:"version"`
	WorkingDirectory string            `json:"working_directory"`
	Environment      map[string]string `json:"environment"`
	PreCommands      []string          `json:"pre_commands"`
	MainCommand      string            `json:"main_command"`
	PostCommands     []string          `json:"post_commands"`
}

// DryRunResult is the response to a dry-run deploy request.
type DryRunResult struct {
	DryRun       bool       `json:"dry_run"`
	WouldExecute DryRunPlan `json:"would_execute"`
	Message      string     `json:"message"`
}

// DryRun renders the deployment a request would start without running
// anything. Every value the caller supplied is masked wherever it appears.
func (r *Runner) DryRun(req *Request) (DryRunResult, error) {
	if err := req.Validate(); err != nil {
		return DryRunResult{}, err
	}
	d, ok := r.activeDeployment()
	if !ok {
		return DryRunResult{}, fmt.Errorf("%w: no deployment configured", ErrConfig)
	}

	env := buildEnvironment(nil, d, req)
	m := newMasker(req.secrets())

	display := make(map[string]string, len(env.secretKeys)+1)
	for _, k := range env.secretKeys {
		display[k] = MaskToken
	}
	display["VERSION"] = m.mask(env.version())

	r.logger.Info("dry run", "deploy_type", d.Name, "version", display["VERSION"])
	return DryRunResult{
		DryRun: true,
		WouldExecute: DryRunPlan{
			DeploymentType:   d.Name,
			Version:          display["VERSION"],
			WorkingDirectory: d.WorkingDir,
			Environment:      display,
			PreCommands:      m.maskAll(d.PreCommands),
			MainCommand:      m.mask(d.Command),
			PostCommands:     m.maskAll(d.PostCommands),
		},
		Message: "Dry run complete - no commands were executed",
	}, nil
}
