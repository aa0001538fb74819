package logging

import (
	"bytes"
	"strings"
	"sync"
)

// LevelWriter forwards complete lines to a specific log level with an
// optional prefix. Partial lines are buffered until a newline arrives or
// Flush is called, so a child that writes in small chunks still produces one
// log record per line.
type LevelWriter struct {
	mu     sync.Mutex
	level  string
	prefix string
	buf    bytes.Buffer
}

// NewLevelWriter creates a writer that logs each line at the specified level.
// Valid levels: DEBUG, INFO, WARN, ERROR, STDOUT, STDERR.
func NewLevelWriter(level, prefix string) *LevelWriter {
	return &LevelWriter{level: strings.ToUpper(level), prefix: prefix}
}

// Write implements io.Writer.
func (w *LevelWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// No newline yet, keep the partial line for the next write
			w.buf.Reset()
			w.buf.WriteString(line)
			break
		}
		w.emit(line)
	}
	return len(p), nil
}

// Flush logs any buffered partial line.
func (w *LevelWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.emit(w.buf.String())
		w.buf.Reset()
	}
}

func (w *LevelWriter) emit(line string) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return
	}
	msg := line
	if w.prefix != "" {
		msg = w.prefix + ": " + line
	}
	switch w.level {
	case "DEBUG":
		Debug("%s", msg)
	case "WARN":
		Warn("%s", msg)
	case "ERROR":
		Error("%s", msg)
	case "STDOUT":
		Stdout(msg)
	case "STDERR":
		Stderr(msg)
	default:
		Info("%s", msg)
	}
}
