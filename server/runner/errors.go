package runner

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig is returned when no usable deployment configuration exists.
	ErrConfig = errors.New("deployment configuration error")
	// ErrValidation is returned when a request carries no credentials or input.
	ErrValidation = errors.New("invalid deployment request")
	// ErrRunInProgress is returned when attempting to start a run while one is already running.
	ErrRunInProgress = errors.New("deployment already in progress")
	// ErrNotDeployed is returned by Uninstall when nothing is deployed.
	ErrNotDeployed = errors.New("nothing to uninstall")
	// ErrInvalidTransition is returned when a state change is not allowed.
	ErrInvalidTransition = errors.New("invalid run state transition")
)

// CommandError reports a command that exited with a nonzero status.
type CommandError struct {
	Command  string
	ExitCode int
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %q exited with code %d", e.Command, e.ExitCode)
}
