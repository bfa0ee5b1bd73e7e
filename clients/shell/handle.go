package shell

import (
	"os"
	"os/exec"
	"sync"
)

// Handle observes a command started with RunAsync.
//
// Lines are queued without bound as they are read. Ready is signalled
// whenever new lines are queued; Drain takes everything queued so far. Done
// is closed after the last line has been queued and the process has exited.
type Handle struct {
	ready chan struct{}
	done  chan struct{}

	mu      sync.Mutex
	pending []string // protected by mu
	lines   []string // protected by mu
	result  Result   // protected by mu
	err     error    // protected by mu
}

func newHandle() *Handle {
	return &Handle{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Ready returns a channel that receives a value when lines are available to Drain.
func (h *Handle) Ready() <-chan struct{} {
	return h.ready
}

// Done returns a channel that is closed once the command has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Drain returns and removes all queued lines in output order.
func (h *Handle) Drain() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	lines := h.pending
	h.pending = nil
	return lines
}

// Finished reports whether the command has exited, without blocking.
func (h *Handle) Finished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Result returns the command result and true once the command has exited.
// Before that it returns false.
func (h *Handle) Result() (Result, bool) {
	if !h.Finished() {
		return Result{}, false
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	res := h.result
	res.Lines = make([]string, len(h.result.Lines))
	copy(res.Lines, h.result.Lines)
	return res, true
}

// Err returns the error that prevented an exit status from being collected.
// It is nil while the command is running and after a normal exit.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *Handle) push(line string) {
	h.mu.Lock()
	h.pending = append(h.pending, line)
	h.lines = append(h.lines, line)
	h.mu.Unlock()

	select {
	case h.ready <- struct{}{}:
	default:
	}
}

func (h *Handle) collect(cmd *exec.Cmd, out *os.File) {
	defer close(h.done)
	defer out.Close()

	readLines(out, h.push)
	code, err := exitStatus(cmd.Wait())

	h.mu.Lock()
	h.result = Result{ExitCode: code, Lines: h.lines}
	h.err = err
	h.mu.Unlock()
}
