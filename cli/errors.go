package cli

import (
	"errors"
	"fmt"
)

var (
	// ErrRegistryFrozen is returned when registering after the parser was built.
	ErrRegistryFrozen = errors.New("registry is frozen: the parser has already been built")

	// ErrNoCommand is returned by Parse when the arguments select no command.
	ErrNoCommand = errors.New("no command was passed")

	// ErrHelp is returned by Parse when help or version text was printed
	// instead of selecting a command.
	ErrHelp = errors.New("help requested")
)

// SpecConflictError reports duplicate names or an inconsistent argument
// layout found while registering or building the command tree.
type SpecConflictError struct {
	Kind   string // "group", "command", "argument", "flag" or "positional"
	Name   string
	Scope  string // Where the conflict was found, e.g. "tools vm create"
	Reason string
}

func (e *SpecConflictError) Error() string {
	msg := fmt.Sprintf("%s '%s'", e.Kind, e.Name)
	if e.Scope != "" {
		msg += " in '" + e.Scope + "'"
	}
	return msg + ": " + e.Reason
}

// BindingError reports an argument override naming a parameter the command
// does not have.
type BindingError struct {
	Command string
	Param   string
}

func (e *BindingError) Error() string {
	if e.Command == "" {
		return fmt.Sprintf("argument override '%s' does not match any parameter", e.Param)
	}
	return fmt.Sprintf("argument override '%s' for command '%s' does not match any parameter", e.Param, e.Command)
}

// ImportFailure reports a tools module whose registration failed.
type ImportFailure struct {
	Module string
	Err    error
}

func (e *ImportFailure) Error() string {
	return fmt.Sprintf("could not load the registered tools module '%s': %v", e.Module, e.Err)
}

func (e *ImportFailure) Unwrap() error {
	return e.Err
}

// ExitError is returned by Context.Exit to end the command with a status.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// ExitCode returns the requested process exit status.
func (e *ExitError) ExitCode() int {
	return e.Code
}

// UsageError wraps a command-line parsing failure. The dispatcher exits with
// status 2 for these.
type UsageError struct {
	Err   error
	Usage string // Usage text of the command being parsed
}

func (e *UsageError) Error() string {
	return e.Err.Error()
}

func (e *UsageError) Unwrap() error {
	return e.Err
}
