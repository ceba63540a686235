package cli

import (
	"errors"
	"fmt"
)

// Process exit codes.
const (
	ExitOK                  = 0
	ExitFailure             = 1
	ExitConfigError         = 2
	ExitNoProviderAvailable = 3
	ExitRedactionFailed     = 4
	ExitDisabled            = 5
	ExitCanceled            = 130
)

// StatusExitCode maps a route outcome status to an exit code.
func StatusExitCode(status string) int {
	switch status {
	case "success":
		return ExitOK
	case "config_error":
		return ExitConfigError
	case "no_provider_available":
		return ExitNoProviderAvailable
	case "redaction_failed":
		return ExitRedactionFailed
	case "disabled":
		return ExitDisabled
	case "canceled":
		return ExitCanceled
	default:
		return ExitFailure
	}
}

// ExitError makes the process exit with Code after printing Err.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates an ExitError.
func NewExitError(code int, err error) *ExitError {
	return &ExitError{Code: code, Err: err}
}

// ExitCode returns the exit code for err: ExitOK for nil, the carried code
// for an ExitError, ExitFailure otherwise.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// CommandError represents an error from a command execution.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewCommandError creates a new CommandError.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{
		Command: command,
		Err:     err,
	}
}
