// Package compose normalizes docker compose invocations to whichever form of
// the tool is installed on the host.
//
// Configured commands may be written for the standalone binary
// ("docker-compose up -d") or for the CLI plugin ("docker compose up -d").
// The Adapter probes which one works and rewrites only the leading
// invocation of a command to match.
package compose

import (
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const defaultProbeTimeout = 5 * time.Second

// Form identifies an installed flavour of the compose tool.
type Form int

const (
	// FormNone means neither form responded.
	FormNone Form = iota
	// FormPlugin is the docker CLI plugin, invoked as "docker compose".
	FormPlugin
	// FormStandalone is the standalone binary, invoked as "docker-compose".
	FormStandalone
)

// String returns the shell invocation for the form.
func (f Form) String() string {
	switch f {
	case FormPlugin:
		return "docker compose"
	case FormStandalone:
		return "docker-compose"
	default:
		return "none"
	}
}

// Prober runs a version probe and reports whether it succeeded.
type Prober interface {
	Probe(ctx context.Context, name string, args ...string) error
}

// execProber runs probes as real processes.
type execProber struct{}

func (execProber) Probe(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// Adapter detects the installed compose form and rewrites commands.
type Adapter struct {
	prober  Prober
	timeout time.Duration
	logger  *slog.Logger

	mu   sync.Mutex
	form Form // protected by mu; FormNone until a form is found
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithProber replaces the process-based prober.
func WithProber(p Prober) Option {
	return func(a *Adapter) {
		a.prober = p
	}
}

// WithProbeTimeout sets the timeout for each version probe.
func WithProbeTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		a.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// NewAdapter creates an Adapter.
func NewAdapter(opts ...Option) *Adapter {
	a := &Adapter{
		prober:  execProber{},
		timeout: defaultProbeTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Detect returns the installed form. The plugin form is tried first. A form
// once found is reused for the lifetime of the Adapter; FormNone is not
// cached, so a tool installed later is picked up by the next call.
func (a *Adapter) Detect(ctx context.Context) Form {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.form == FormNone {
		a.form = a.detect(ctx)
	}
	return a.form
}

func (a *Adapter) detect(ctx context.Context) Form {
	if a.probe(ctx, "docker", "compose", "version") {
		a.logger.Info("detected compose form", "form", FormPlugin.String())
		return FormPlugin
	}
	if a.probe(ctx, "docker-compose", "version") {
		a.logger.Info("detected compose form", "form", FormStandalone.String())
		return FormStandalone
	}
	a.logger.Warn("neither 'docker compose' nor 'docker-compose' found")
	return FormNone
}

func (a *Adapter) probe(ctx context.Context, name string, args ...string) bool {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return a.prober.Probe(ctx, name, args...) == nil
}

// Normalize rewrites a command that starts with either compose invocation so
// that it uses the detected form. Only the first occurrence is replaced.
// Commands that do not start with a compose invocation, and all commands when
// nothing was detected, are returned unchanged.
func (a *Adapter) Normalize(ctx context.Context, cmd string) string {
	trimmed := strings.TrimLeft(cmd, " \t")
	var current Form
	switch {
	case strings.HasPrefix(trimmed, FormStandalone.String()):
		current = FormStandalone
	case strings.HasPrefix(trimmed, FormPlugin.String()):
		current = FormPlugin
	default:
		return cmd
	}

	form := a.Detect(ctx)
	if form == FormNone || form == current {
		return cmd
	}
	return strings.Replace(cmd, current.String(), form.String(), 1)
}

// UsesCompose reports whether cmd starts with a compose invocation.
func UsesCompose(cmd string) bool {
	trimmed := strings.TrimLeft(cmd, " \t")
	return strings.HasPrefix(trimmed, FormStandalone.String()) || strings.HasPrefix(trimmed, FormPlugin.String())
}
