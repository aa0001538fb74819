// Package logging provides centralized log level validation for toolscripts.
//
// SUPPORTED LOG LEVELS:
//   - DEBUG: Detailed debugging information (--debug)
//   - INFO:  General progress information (default)
//   - WARN:  Warnings only (--quiet)
//   - ERROR: Errors only
//
// Level strings are case-sensitive and must be uppercase.
package logging

import (
	"fmt"

	"github.com/charmbracelet/log"
)

// ValidLogLevels maps every supported level name to its logger level.
var ValidLogLevels = map[string]log.Level{
	"DEBUG": log.DebugLevel,
	"INFO":  log.InfoLevel,
	"WARN":  log.WarnLevel,
	"ERROR": log.ErrorLevel,
}

// IsValidLogLevel checks if the provided log level string is supported.
func IsValidLogLevel(level string) bool {
	_, ok := ValidLogLevels[level]
	return ok
}

// ValidateLogLevel validates a log level string and returns an error if invalid.
func ValidateLogLevel(level string) error {
	if !IsValidLogLevel(level) {
		return fmt.Errorf("invalid log level: %s", level)
	}
	return nil
}

// ParseLevel converts a level name into a logger level.
func ParseLevel(level string) (log.Level, error) {
	lvl, ok := ValidLogLevels[level]
	if !ok {
		return log.InfoLevel, fmt.Errorf("invalid log level: %s", level)
	}
	return lvl, nil
}

// LevelName converts a logger level back into its name.
func LevelName(level log.Level) string {
	for name, lvl := range ValidLogLevels {
		if lvl == level {
			return name
		}
	}
	return "INFO"
}
