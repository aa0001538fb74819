//go:build unix

package process

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/concave-dev/toolscripts/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withFakeSignals replaces signal registration so tests can deliver signals
// to Run without signalling the test binary.
func withFakeSignals(t *testing.T) <-chan chan<- os.Signal {
	t.Helper()
	registered := make(chan chan<- os.Signal, 1)
	origNotify, origStop := notifySignals, stopSignals
	notifySignals = func(c chan<- os.Signal) { registered <- c }
	stopSignals = func(chan<- os.Signal) {}
	t.Cleanup(func() {
		notifySignals, stopSignals = origNotify, origStop
	})
	return registered
}

func TestRunCapture(t *testing.T) {
	res, err := Run(context.Background(), []string{"sh", "-c", "echo out; echo err >&2"}, Options{Capture: true})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "out\n", string(res.Stdout))
	assert.Equal(t, "err\n", string(res.Stderr))
	assert.Equal(t, []string{"sh", "-c", "echo out; echo err >&2"}, res.Args)
}

func TestRunExitCodes(t *testing.T) {
	tests := []struct {
		name    string
		cmdline []string
		code    int
	}{
		{"false", []string{"false"}, 1},
		{"explicit status", []string{"sh", "-c", "exit 3"}, 3},
		{"high status", []string{"sh", "-c", "exit 42"}, 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Run(context.Background(), tt.cmdline, Options{Capture: true})
			require.Error(t, err)

			var exitErr *ExitError
			require.True(t, errors.As(err, &exitErr))
			assert.Equal(t, tt.code, exitErr.ExitCode())
			assert.Equal(t, ReasonExit, exitErr.Reason)
			assert.Equal(t, tt.code, res.ExitCode)
			assert.Contains(t, err.Error(), "returned non-zero exit status")
		})
	}
}

func TestRunAllowFailure(t *testing.T) {
	res, err := Run(context.Background(), []string{"sh", "-c", "echo nope >&2; exit 3"}, Options{Capture: true, AllowFailure: true})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "nope\n", string(res.Stderr))
}

func TestRunStartFailure(t *testing.T) {
	_, err := Run(context.Background(), []string{"definitely-not-a-real-binary-xyz"}, Options{})
	require.Error(t, err)

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, ReasonStart, exitErr.Reason)
	assert.Equal(t, StartExitCode, exitErr.Code)
}

func TestRunRejectsBadInput(t *testing.T) {
	_, err := Run(context.Background(), nil, Options{})
	assert.Error(t, err)

	_, err = Run(context.Background(), []string{"true"}, Options{Timeout: -time.Second})
	assert.Error(t, err)
}

func TestRunDirAndEnv(t *testing.T) {
	dir := t.TempDir()
	res, err := Run(context.Background(),
		[]string{"sh", "-c", "pwd; echo $TOOLS_TEST_VALUE"},
		Options{Capture: true, Dir: dir, Env: append(os.Environ(), "TOOLS_TEST_VALUE=bar")})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(res.Stdout)), "\n")
	require.Len(t, lines, 2)
	want, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(lines[0])
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, "bar", lines[1])
}

func TestRunStreamsToWriters(t *testing.T) {
	var stdout, stderr bytes.Buffer
	res, err := Run(context.Background(), []string{"sh", "-c", "echo a; echo b >&2"}, Options{Stdout: &stdout, Stderr: &stderr})
	require.NoError(t, err)
	assert.Equal(t, "a\n", stdout.String())
	assert.Equal(t, "b\n", stderr.String())
	assert.Nil(t, res.Stdout, "streamed output is not captured")
}

func TestRunStreamsThroughLogger(t *testing.T) {
	var buf bytes.Buffer
	logging.SetOutput(&buf)
	logging.SetTimestamps(true)
	t.Cleanup(logging.RestoreOutput)

	_, err := Run(context.Background(), []string{"sh", "-c", "echo hello; printf partial >&2"}, Options{})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "STDOUT")
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "STDERR")
	assert.Contains(t, out, "partial")
}

func TestRunTimeout(t *testing.T) {
	start := time.Now()
	res, err := Run(context.Background(), []string{"sleep", "10"}, Options{Timeout: 200 * time.Millisecond})
	require.Error(t, err)

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, ReasonTimeout, exitErr.Reason)
	assert.Equal(t, TimeoutExitCode, exitErr.Code)
	assert.Equal(t, TimeoutExitCode, res.ExitCode)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRunNoOutputTimeout(t *testing.T) {
	start := time.Now()
	_, err := Run(context.Background(), []string{"sh", "-c", "echo started; sleep 10"},
		Options{Capture: true, NoOutputTimeout: 300 * time.Millisecond})
	require.Error(t, err)

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, ReasonNoOutputTimeout, exitErr.Reason)
	assert.Equal(t, TimeoutExitCode, exitErr.Code)
	assert.Equal(t, "started\n", string(exitErr.Stdout))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRunChattyChildOutlivesNoOutputTimeout(t *testing.T) {
	res, err := Run(context.Background(),
		[]string{"sh", "-c", "for i in 1 2 3 4 5; do echo $i; sleep 0.1; done"},
		Options{Capture: true, NoOutputTimeout: 400 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, "1\n2\n3\n4\n5\n", string(res.Stdout))
}

func TestRunContextCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := Run(ctx, []string{"sleep", "10"}, Options{})
	require.Error(t, err)

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, ReasonCanceled, exitErr.Reason)
	assert.Equal(t, 128+15, exitErr.Code)
}

func TestRunSignalTerminates(t *testing.T) {
	registered := withFakeSignals(t)

	go func() {
		c := <-registered
		time.Sleep(100 * time.Millisecond)
		c <- os.Interrupt
	}()

	start := time.Now()
	_, err := Run(context.Background(), []string{"sleep", "30"}, Options{})
	require.Error(t, err)

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, ReasonSignal, exitErr.Reason)
	assert.Equal(t, 128+15, exitErr.Code)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestRunRepeatedSignalKills(t *testing.T) {
	registered := withFakeSignals(t)

	go func() {
		c := <-registered
		// Give the shell time to install its trap before the first signal
		time.Sleep(300 * time.Millisecond)
		c <- os.Interrupt
		time.Sleep(300 * time.Millisecond)
		c <- os.Interrupt
	}()

	start := time.Now()
	_, err := Run(context.Background(), []string{"sh", "-c", `trap "" TERM; exec sleep 30`}, Options{})
	require.Error(t, err)

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, ReasonSignal, exitErr.Reason)
	assert.NotZero(t, exitErr.Code)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestRunSignalTrappedCleanExitFails(t *testing.T) {
	tests := []struct {
		name     string
		sig      os.Signal
		wantCode int
	}{
		{"interrupt", os.Interrupt, 128 + 2},
		{"terminate", syscall.SIGTERM, 128 + 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registered := withFakeSignals(t)

			go func() {
				c := <-registered
				time.Sleep(300 * time.Millisecond)
				c <- tt.sig
			}()

			res, err := Run(context.Background(),
				[]string{"sh", "-c", `trap "exit 0" TERM; while :; do sleep 0.05; done`}, Options{})
			require.Error(t, err)

			var exitErr *ExitError
			require.True(t, errors.As(err, &exitErr))
			assert.Equal(t, ReasonSignal, exitErr.Reason)
			assert.Equal(t, tt.wantCode, exitErr.Code)
			assert.Equal(t, tt.wantCode, res.ExitCode)
		})
	}
}

func TestDefaultRunner(t *testing.T) {
	var r Runner = DefaultRunner{}
	res, err := r.Run(context.Background(), []string{"echo", "hi"}, Options{Capture: true})
	require.NoError(t, err)
	assert.Equal(t, "hi\n", string(res.Stdout))
}

func TestExitErrorMessages(t *testing.T) {
	tests := []struct {
		reason Reason
		want   string
	}{
		{ReasonExit, "returned non-zero exit status 2"},
		{ReasonTimeout, "timed out"},
		{ReasonNoOutputTimeout, "produced no output"},
		{ReasonSignal, "was interrupted"},
		{ReasonCanceled, "was cancelled"},
	}

	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			err := &ExitError{Args: []string{"tool", "arg"}, Code: 2, Reason: tt.reason}
			assert.Contains(t, err.Error(), "'tool arg'")
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
