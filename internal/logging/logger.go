// Package logging provides structured, colorful logging for toolscripts
// commands and the subprocesses they spawn.
//
// Two loggers follow Unix conventions: INFO/SUCCESS go to stdout, while
// DEBUG/WARN/ERROR go to stderr. Two extra pass-through channels, STDOUT and
// STDERR, render lines produced by child processes when their output is
// routed through the logger instead of being copied verbatim to the terminal.
// Pass-through lines ignore the level filter so that a quiet invocation still
// shows what the child printed.
//
// LOGGING FEATURES:
//   - Color-coded levels: DEBUG (purple), INFO (blue), WARN (yellow), ERROR (red), SUCCESS (green)
//   - Child output labels: STDOUT (dim blue), STDERR (dim red)
//   - Timestamps on demand (--timestamps, or always when CI is set)
//   - Quiet/debug switches used by the global --quiet and --debug flags
//
// Used by the dispatcher, the execution context, the subprocess runner and
// the virtualenv manager so every component shares one output format.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

// TimeFormat is the timestamp layout used when timestamps are enabled.
const TimeFormat = "[15:04:05]"

var (
	// Logger for INFO/SUCCESS messages
	stdoutLogger *log.Logger

	// Logger for WARN/ERROR/DEBUG messages
	stderrLogger *log.Logger

	// Loggers for child process output
	childStdoutLogger *log.Logger
	childStderrLogger *log.Logger

	currentStdoutOutput io.Writer = os.Stdout
	currentStderrOutput io.Writer = os.Stderr

	currentLevel = log.InfoLevel
	timestamps   = false
)

// setupCustomStyles creates custom color styling for log levels. Colors were
// picked to stay readable on both light and dark terminals.
func setupCustomStyles() *log.Styles {
	styles := log.DefaultStyles()

	// DEBUG: light purple
	styles.Levels[log.DebugLevel] = lipgloss.NewStyle().
		SetString("DEBUG").
		Foreground(lipgloss.Color("#7F6DFF"))

	// INFO: light blue
	styles.Levels[log.InfoLevel] = lipgloss.NewStyle().
		SetString("INFO").
		Foreground(lipgloss.Color("#42E7FF"))

	// WARN: light yellow
	styles.Levels[log.WarnLevel] = lipgloss.NewStyle().
		SetString("WARN").
		Foreground(lipgloss.Color("#FFE763"))

	// ERROR: light red/pink
	styles.Levels[log.ErrorLevel] = lipgloss.NewStyle().
		SetString("ERROR").
		Foreground(lipgloss.Color("#FF4473"))

	return styles
}

// labelStyles returns styles where INFO is relabelled, used for SUCCESS and
// the child output channels.
func labelStyles(label, color string, faint bool) *log.Styles {
	styles := setupCustomStyles()
	styles.Levels[log.InfoLevel] = lipgloss.NewStyle().
		SetString(label).
		Faint(faint).
		Foreground(lipgloss.Color(color))
	return styles
}

func newLogger(w io.Writer, styles *log.Styles, level log.Level) *log.Logger {
	l := log.NewWithOptions(w, log.Options{
		ReportTimestamp: timestamps,
		TimeFormat:      TimeFormat,
		Level:           level,
	})
	l.SetStyles(styles)
	return l
}

// rebuild recreates all loggers from the current package state.
func rebuild() {
	stdoutLogger = newLogger(currentStdoutOutput, setupCustomStyles(), currentLevel)
	stderrLogger = newLogger(currentStderrOutput, setupCustomStyles(), currentLevel)
	childStdoutLogger = newLogger(currentStdoutOutput, labelStyles("STDOUT", "#42A5FF", true), log.InfoLevel)
	childStderrLogger = newLogger(currentStderrOutput, labelStyles("STDERR", "#FF4473", true), log.InfoLevel)
}

func init() {
	if os.Getenv("CI") != "" {
		timestamps = true
	}
	rebuild()
}

// Info logs informational messages. Hidden in quiet mode.
func Info(format string, v ...any) {
	stdoutLogger.Info(fmt.Sprintf(format, v...))
}

// Warn logs warning messages for non-fatal problems the user should see.
func Warn(format string, v ...any) {
	stderrLogger.Warn(fmt.Sprintf(format, v...))
}

// Error logs error messages.
func Error(format string, v ...any) {
	stderrLogger.Error(fmt.Sprintf(format, v...))
}

// Debug logs detailed debugging information, shown only with --debug.
func Debug(format string, v ...any) {
	stderrLogger.Debug(fmt.Sprintf(format, v...))
}

// Success logs a successful outcome in green using the INFO level, so it is
// filtered exactly like Info.
func Success(format string, v ...any) {
	if currentLevel > log.InfoLevel {
		return
	}
	newLogger(currentStdoutOutput, labelStyles("SUCCESS", "#60F281", false), currentLevel).
		Info(fmt.Sprintf(format, v...))
}

// Stdout logs a line written by a child process to its standard output.
func Stdout(line string) {
	childStdoutLogger.Info(line)
}

// Stderr logs a line written by a child process to its standard error.
func Stderr(line string) {
	childStderrLogger.Info(line)
}

// SetLevel configures the minimum level for the regular loggers. Accepts
// DEBUG, INFO, WARN and ERROR; anything else falls back to INFO.
func SetLevel(level string) {
	lvl, err := ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	currentLevel = lvl
	stdoutLogger.SetLevel(lvl)
	stderrLogger.SetLevel(lvl)
}

// GetLevel returns the current level name.
func GetLevel() string {
	return LevelName(currentLevel)
}

// SetQuiet hides DEBUG and INFO output. Warnings, errors and child process
// output stay visible.
func SetQuiet() {
	SetLevel("WARN")
}

// SetDebug enables DEBUG output.
func SetDebug() {
	SetLevel("DEBUG")
}

// SetTimestamps toggles timestamps on every logger. When CI is set in the
// environment timestamps stay enabled.
func SetTimestamps(enabled bool) {
	if os.Getenv("CI") != "" {
		enabled = true
	}
	timestamps = enabled
	rebuild()
}

// IncludeTimestamps reports whether log lines currently carry timestamps.
func IncludeTimestamps() bool {
	return timestamps
}

// SetOutput sends every logger to w. Passing nil restores stdout/stderr.
func SetOutput(w io.Writer) {
	if w == nil {
		currentStdoutOutput = os.Stdout
		currentStderrOutput = os.Stderr
	} else {
		currentStdoutOutput = w
		currentStderrOutput = w
	}
	rebuild()
}

// RestoreOutput resets outputs, level and timestamps to their defaults.
func RestoreOutput() {
	currentStdoutOutput = os.Stdout
	currentStderrOutput = os.Stderr
	currentLevel = log.InfoLevel
	timestamps = os.Getenv("CI") != ""
	rebuild()
}

// Since returns a short human readable duration used in progress messages.
func Since(start time.Time) string {
	return time.Since(start).Round(time.Millisecond).String()
}
