package cluster

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nomis52/golaunch/clients/shell"
)

const (
	// DefaultCommand lists pods without headers. {namespace} is substituted.
	DefaultCommand = "kubectl get pods -n {namespace} --no-headers 2>/dev/null | head -20"

	defaultCommandTimeout = 10 * time.Second
)

// CommandSource obtains pod status by running a shell command.
type CommandSource struct {
	runner   *shell.Runner
	template string
	timeout  time.Duration
}

// NewCommandSource creates a CommandSource. An empty template selects
// DefaultCommand; a zero timeout selects 10 seconds.
func NewCommandSource(runner *shell.Runner, template string, timeout time.Duration) *CommandSource {
	if template == "" {
		template = DefaultCommand
	}
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	return &CommandSource{
		runner:   runner,
		template: template,
		timeout:  timeout,
	}
}

// Command returns the command line that would be run for namespace.
func (s *CommandSource) Command(namespace string) string {
	return strings.ReplaceAll(s.template, "{namespace}", namespace)
}

// Status runs the command and returns its output. A nonzero exit is reported
// as an error; the output is still returned.
func (s *CommandSource) Status(ctx context.Context, namespace string, env []string) (string, error) {
	res, err := s.runner.RunSync(ctx, shell.Command{Line: s.Command(namespace), Env: env}, s.timeout, nil)
	text := strings.TrimSpace(strings.Join(res.Lines, "\n"))
	if err != nil {
		return "", fmt.Errorf("cluster status: %w", err)
	}
	if res.ExitCode != 0 {
		return text, fmt.Errorf("cluster status: exit code %d", res.ExitCode)
	}
	return text, nil
}
