// Package process runs child processes on behalf of tools commands.
//
// CHILD LIFECYCLE:
// A child is started with its own process group unless it is interactive,
// so a Ctrl-C typed in the terminal reaches only the tools process. While the
// child runs, SIGINT and SIGTERM are intercepted: the first one asks the
// child to terminate, a repeated one kills it outright.
//
// TIMEOUTS:
// Timeout bounds the wall-clock runtime. NoOutputTimeout bounds how long the
// child may stay silent on both stdout and stderr. Either one expiring
// terminates the child and reports TimeoutExitCode.
//
// OUTPUT:
// Output is captured into the Result when Capture is set, otherwise it is
// streamed. With timestamps enabled (or under CI) streamed lines go through
// the logger with STDOUT/STDERR labels so they interleave with tools' own
// records.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/concave-dev/toolscripts/internal/logging"
)

// waitDelay bounds how long Wait keeps copying output after the child exits
// while a grandchild still holds the pipes open.
const waitDelay = 5 * time.Second

// Options control a single child process run.
type Options struct {
	Dir             string        // Working directory; empty means the current one
	Env             []string      // Full environment; nil inherits os.Environ()
	Stdin           io.Reader     // Defaults to os.Stdin
	Capture         bool          // Collect stdout/stderr into the Result instead of streaming
	Interactive     bool          // Share the terminal's process group and descriptors
	AllowFailure    bool          // Non-zero exit is reported in the Result, not as an error
	Timeout         time.Duration // Zero means no limit
	NoOutputTimeout time.Duration // Zero means no limit
	Stdout          io.Writer     // Optional destination for streamed stdout
	Stderr          io.Writer     // Optional destination for streamed stderr
}

// Result describes a finished child process.
type Result struct {
	Args     []string
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration
}

// Runner runs child processes. Packages that spawn processes accept a Runner
// so tests can substitute a fake.
type Runner interface {
	Run(ctx context.Context, cmdline []string, opts Options) (*Result, error)
}

// DefaultRunner runs real child processes through Run.
type DefaultRunner struct{}

// Run implements Runner.
func (DefaultRunner) Run(ctx context.Context, cmdline []string, opts Options) (*Result, error) {
	return Run(ctx, cmdline, opts)
}

// Signal registration hooks, replaced in tests.
var (
	notifySignals = func(c chan<- os.Signal) { signal.Notify(c, os.Interrupt, syscall.SIGTERM) }
	stopSignals   = func(c chan<- os.Signal) { signal.Stop(c) }
)

// Run starts cmdline and waits for it to finish, forwarding termination
// signals and enforcing the configured timeouts. A child that does not exit
// cleanly yields an *ExitError unless opts.AllowFailure is set.
func Run(ctx context.Context, cmdline []string, opts Options) (*Result, error) {
	if len(cmdline) == 0 {
		return nil, errors.New("no command to run")
	}
	if opts.Timeout < 0 || opts.NoOutputTimeout < 0 {
		return nil, fmt.Errorf("timeouts cannot be negative")
	}

	cmd := exec.Command(cmdline[0], cmdline[1:]...)
	cmd.Dir = opts.Dir
	cmd.Env = opts.Env
	cmd.Stdin = opts.Stdin
	if cmd.Stdin == nil {
		cmd.Stdin = os.Stdin
	}
	cmd.WaitDelay = waitDelay
	ownGroup := !opts.Interactive
	setProcessGroup(cmd, ownGroup)

	out := newStreams(opts)
	cmd.Stdout = out.stdout
	cmd.Stderr = out.stderr

	logging.Debug("Running %s", strings.Join(cmdline, " "))
	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, &ExitError{Args: cmdline, Code: StartExitCode, Reason: ReasonStart, Err: err}
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	sigCh := make(chan os.Signal, 2)
	notifySignals(sigCh)
	defer stopSignals(sigCh)

	var timeoutC <-chan time.Time
	if opts.Timeout > 0 {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	var idleC <-chan time.Time
	if opts.NoOutputTimeout > 0 {
		if out.tracked {
			ticker := time.NewTicker(min(time.Second, opts.NoOutputTimeout))
			defer ticker.Stop()
			idleC = ticker.C
		} else {
			logging.Debug("No-output timeout ignored for interactive command")
		}
	}

	reason := ReasonExit
	signalsSeen := 0
	var caught os.Signal
	ctxDone := ctx.Done()

	var waitErr error
wait:
	for {
		select {
		case waitErr = <-done:
			break wait
		case sig := <-sigCh:
			signalsSeen++
			reason = ReasonSignal
			caught = sig
			if signalsSeen == 1 {
				logging.Info("Caught %s, terminating process ....\nSend %s again to kill the process.", signalName(sig), signalName(sig))
				terminate(cmd, ownGroup)
			} else {
				logging.Info("Caught %s again, killing the process ...", signalName(sig))
				kill(cmd, ownGroup)
			}
		case <-timeoutC:
			timeoutC = nil
			reason = ReasonTimeout
			logging.Warn("The command has been running for more than %s. Terminating process.", secondsLabel(opts.Timeout))
			terminate(cmd, ownGroup)
		case <-idleC:
			if out.idleFor() < opts.NoOutputTimeout {
				continue
			}
			idleC = nil
			reason = ReasonNoOutputTimeout
			logging.Warn("The command has not produced output for more than %s. Terminating process.", secondsLabel(opts.NoOutputTimeout))
			terminate(cmd, ownGroup)
		case <-ctxDone:
			ctxDone = nil
			reason = ReasonCanceled
			terminate(cmd, ownGroup)
		}
	}
	out.flush()

	stdout, stderr := out.captured()
	result := &Result{
		Args:     cmdline,
		ExitCode: exitCode(waitErr),
		Stdout:   stdout,
		Stderr:   stderr,
		Duration: time.Since(start),
	}
	switch {
	case reason == ReasonTimeout || reason == ReasonNoOutputTimeout:
		result.ExitCode = TimeoutExitCode
	case reason == ReasonSignal && result.ExitCode == 0:
		// A child that traps the signal and exits cleanly still ends as interrupted
		result.ExitCode = signalExitCode(caught)
	case reason == ReasonCanceled && result.ExitCode == 0:
		result.ExitCode = signalExitCode(syscall.SIGTERM)
	}
	logging.Debug("Command %s exited with %d after %s", cmdline[0], result.ExitCode, logging.Since(start))

	if result.ExitCode == 0 && waitErr == nil {
		return result, nil
	}
	if result.ExitCode == 0 {
		// Wait failed without a status, e.g. the output copy was cut short
		result.ExitCode = 1
	}
	if opts.AllowFailure {
		return result, nil
	}
	return result, &ExitError{
		Args:   cmdline,
		Code:   result.ExitCode,
		Reason: reason,
		Stdout: stdout,
		Stderr: stderr,
		Err:    waitErr,
	}
}

// exitCode maps a Wait error to a shell-style exit status.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code, ok := signaledCode(exitErr); ok {
			return code
		}
		return exitErr.ExitCode()
	}
	return 1
}

// signalExitCode returns the shell-style status for a process ended by sig.
func signalExitCode(sig os.Signal) int {
	if s, ok := sig.(syscall.Signal); ok {
		return 128 + int(s)
	}
	return 128 + int(syscall.SIGINT)
}

func signalName(sig os.Signal) string {
	switch sig {
	case os.Interrupt:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return sig.String()
	}
}

func secondsLabel(d time.Duration) string {
	if d < time.Second {
		return d.String()
	}
	secs := int(d.Round(time.Second) / time.Second)
	if secs == 1 {
		return "1 second"
	}
	return fmt.Sprintf("%d seconds", secs)
}
