package process

import (
	"fmt"
	"strings"
)

// Reason describes why a child process ended unsuccessfully.
type Reason string

const (
	ReasonExit            Reason = "exit"              // Child exited with a non-zero status
	ReasonSignal          Reason = "signal"            // Child was stopped after we received SIGINT/SIGTERM
	ReasonTimeout         Reason = "timeout"           // Wall-clock timeout expired
	ReasonNoOutputTimeout Reason = "no-output-timeout" // No output for the configured period
	ReasonCanceled        Reason = "canceled"          // The caller's context was cancelled
	ReasonStart           Reason = "start"             // The executable could not be started
)

const (
	// TimeoutExitCode is reported when a child is terminated because a timeout expired.
	TimeoutExitCode = 124
	// StartExitCode is reported when the executable could not be started.
	StartExitCode = 127
)

// ExitError reports a child process that did not exit cleanly. Code is the
// status the tools process should exit with when the error goes unhandled.
type ExitError struct {
	Args   []string
	Code   int
	Reason Reason
	Stdout []byte // Only populated when output was captured
	Stderr []byte // Only populated when output was captured
	Err    error  // Underlying error from os/exec, if any
}

// Error implements error.
func (e *ExitError) Error() string {
	cmdline := strings.Join(e.Args, " ")
	switch e.Reason {
	case ReasonTimeout:
		return fmt.Sprintf("command '%s' timed out (exit status %d)", cmdline, e.Code)
	case ReasonNoOutputTimeout:
		return fmt.Sprintf("command '%s' produced no output for too long (exit status %d)", cmdline, e.Code)
	case ReasonSignal:
		return fmt.Sprintf("command '%s' was interrupted (exit status %d)", cmdline, e.Code)
	case ReasonStart:
		return fmt.Sprintf("command '%s' could not be started: %v", cmdline, e.Err)
	case ReasonCanceled:
		return fmt.Sprintf("command '%s' was cancelled (exit status %d)", cmdline, e.Code)
	default:
		return fmt.Sprintf("command '%s' returned non-zero exit status %d", cmdline, e.Code)
	}
}

// Unwrap returns the underlying os/exec error.
func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode returns the status to propagate as the tools process exit code.
func (e *ExitError) ExitCode() int {
	return e.Code
}
