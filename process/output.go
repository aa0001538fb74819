package process

import (
	"bytes"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/concave-dev/toolscripts/internal/logging"
)

// activityWriter records the time of the last write so the no-output
// timeout can tell a silent child from a chatty one.
type activityWriter struct {
	w    io.Writer
	last *atomic.Int64
}

func (a activityWriter) Write(p []byte) (int, error) {
	a.last.Store(time.Now().UnixNano())
	return a.w.Write(p)
}

// streams holds the writers wired to a child's stdout and stderr.
type streams struct {
	stdout    io.Writer
	stderr    io.Writer
	stdoutBuf *bytes.Buffer
	stderrBuf *bytes.Buffer
	flushers  []*logging.LevelWriter
	last      atomic.Int64
	tracked   bool
}

// newStreams decides where child output goes:
//   - Capture: into buffers returned in the Result
//   - explicit Stdout/Stderr writers: there
//   - timestamps enabled or CI: through the logger, one record per line
//   - interactive: straight to the terminal's file descriptors
//   - otherwise: copied verbatim to os.Stdout/os.Stderr
func newStreams(opts Options) *streams {
	s := &streams{}
	s.last.Store(time.Now().UnixNano())

	switch {
	case opts.Capture:
		s.stdoutBuf = &bytes.Buffer{}
		s.stderrBuf = &bytes.Buffer{}
		s.stdout, s.stderr = s.stdoutBuf, s.stderrBuf
	case opts.Stdout != nil || opts.Stderr != nil:
		s.stdout, s.stderr = opts.Stdout, opts.Stderr
		if s.stdout == nil {
			s.stdout = os.Stdout
		}
		if s.stderr == nil {
			s.stderr = os.Stderr
		}
	case logging.IncludeTimestamps() || os.Getenv("CI") != "":
		out := logging.NewLevelWriter("STDOUT", "")
		errw := logging.NewLevelWriter("STDERR", "")
		s.flushers = append(s.flushers, out, errw)
		s.stdout, s.stderr = out, errw
	case opts.Interactive:
		// Hand the real descriptors to the child so it sees a terminal
		s.stdout, s.stderr = os.Stdout, os.Stderr
		return s
	default:
		s.stdout, s.stderr = os.Stdout, os.Stderr
	}

	s.tracked = true
	s.stdout = activityWriter{w: s.stdout, last: &s.last}
	s.stderr = activityWriter{w: s.stderr, last: &s.last}
	return s
}

// idleFor returns how long the child has been silent.
func (s *streams) idleFor() time.Duration {
	return time.Since(time.Unix(0, s.last.Load()))
}

func (s *streams) flush() {
	for _, f := range s.flushers {
		f.Flush()
	}
}

func (s *streams) captured() (stdout, stderr []byte) {
	if s.stdoutBuf != nil {
		stdout = s.stdoutBuf.Bytes()
	}
	if s.stderrBuf != nil {
		stderr = s.stderrBuf.Bytes()
	}
	return stdout, stderr
}
