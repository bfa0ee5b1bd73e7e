// Package shell runs shell command lines as child processes and streams their
// merged stdout/stderr line by line.
//
// Two modes are provided:
//   - RunSync blocks until the command exits or its timeout elapses. On timeout
//     the whole process group is killed.
//   - RunAsync starts the command on its own goroutine and hands output lines
//     to the caller through an unbounded queue. The caller may stop observing
//     the command at any time; the process is never killed in this mode.
//
// Both modes read stdout and stderr through a single pipe with a single
// reader, so lines are observed in the order the child wrote them.
//
// # Example
//
//	r := shell.New(shell.WithLogger(logger))
//	res, err := r.RunSync(ctx, shell.Command{Line: "helm version"}, time.Minute, func(line string) {
//	    fmt.Println(line)
//	})
package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"
)

const defaultShell = "/bin/sh"

var (
	// ErrTimeout is returned by RunSync when the command outlives its timeout.
	ErrTimeout = errors.New("command timed out")
	// ErrSpawn is returned when the child process could not be started.
	ErrSpawn = errors.New("failed to start command")
)

// Command describes a shell command line and the context it runs in.
type Command struct {
	// Line is passed verbatim to the shell with -c.
	Line string
	// Dir is the working directory. Empty means the current directory.
	Dir string
	// Env is the complete child environment. Nil inherits the parent environment.
	Env []string
}

// Result holds the outcome of a finished command.
type Result struct {
	// ExitCode is the process exit status, or -1 if the process was killed
	// by a signal or its status could not be determined.
	ExitCode int
	// Lines is every output line in the order it was written.
	Lines []string
}

// Runner spawns commands through a shell.
type Runner struct {
	shell  string
	logger *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithShell sets the shell binary used to interpret command lines.
func WithShell(path string) Option {
	return func(r *Runner) {
		r.shell = path
	}
}

// WithLogger sets the logger for the runner.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// New creates a Runner.
func New(opts ...Option) *Runner {
	r := &Runner{
		shell:  defaultShell,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunSync runs the command and blocks until it exits. Each output line is
// passed to sink (if non-nil) as soon as it is read. A timeout of zero
// disables the timeout. When the timeout elapses or ctx is cancelled the
// process group is killed and ErrTimeout (or ctx.Err()) is returned together
// with the lines captured so far.
func (r *Runner) RunSync(ctx context.Context, c Command, timeout time.Duration, sink func(string)) (Result, error) {
	cmd, out, err := r.start(c)
	if err != nil {
		return Result{ExitCode: -1}, err
	}
	defer out.Close()

	var timedOut atomic.Bool
	if timeout > 0 {
		timer := time.AfterFunc(timeout, func() {
			timedOut.Store(true)
			terminateProcess(cmd)
		})
		defer timer.Stop()
	}
	stop := context.AfterFunc(ctx, func() {
		terminateProcess(cmd)
	})
	defer stop()

	res := Result{}
	readLines(out, func(line string) {
		res.Lines = append(res.Lines, line)
		if sink != nil {
			sink(line)
		}
	})
	waitErr := cmd.Wait()

	if timedOut.Load() {
		res.ExitCode = -1
		r.logger.Warn("command timed out", "command", c.Line, "timeout", timeout)
		return res, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
	if ctx.Err() != nil {
		res.ExitCode = -1
		return res, ctx.Err()
	}

	code, err := exitStatus(waitErr)
	res.ExitCode = code
	if err != nil {
		return res, err
	}
	r.logger.Debug("command finished", "command", c.Line, "exit_code", code, "lines", len(res.Lines))
	return res, nil
}

// RunAsync starts the command and returns immediately. Output is collected on
// a dedicated goroutine; see Handle.
func (r *Runner) RunAsync(c Command) (*Handle, error) {
	cmd, out, err := r.start(c)
	if err != nil {
		return nil, err
	}
	h := newHandle()
	go h.collect(cmd, out)
	return h, nil
}

// start spawns the command with stdout and stderr sharing one pipe. The
// returned file is the read end.
func (r *Runner) start(c Command) (*exec.Cmd, *os.File, error) {
	cmd := exec.Command(r.shell, "-c", c.Line)
	cmd.Dir = c.Dir
	cmd.Env = c.Env
	configureProcess(cmd)

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: creating output pipe: %w", ErrSpawn, err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	r.logger.Info("executing command", "command", c.Line, "dir", c.Dir)
	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, nil, fmt.Errorf("%w: %w", ErrSpawn, err)
	}
	// The child holds its own copy of the write end.
	pw.Close()
	return cmd, pr, nil
}

// readLines reads r until EOF and calls fn for each line with trailing
// whitespace removed.
func readLines(r io.Reader, fn func(string)) {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			fn(strings.TrimRight(line, " \t\r\n"))
		}
		if err != nil {
			return
		}
	}
}

// exitStatus converts the error from cmd.Wait into an exit code. A non-nil
// error is returned only when the process status is unavailable.
func exitStatus(waitErr error) (int, error) {
	if waitErr == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("waiting for command: %w", waitErr)
}
