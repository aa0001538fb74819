package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/concave-dev/toolscripts/internal/logging"
)

// Settings holds the process-wide configuration read from the environment.
type Settings struct {
	BasePath           string // Base path for the virtualenv cache (TOOLS_SCRIPTS_PATH or cwd)
	CacheSeed          string // Virtualenv cache key seed (TOOLS_VIRTUALENV_CACHE_SEED)
	IgnoreImportErrors bool   // Silence module registration warnings
	DebugImports       bool   // Module registration failures are fatal
	LogLevel           string // Initial log level
	CI                 bool   // Running under CI
}

// FromEnv reads Settings from the environment. getenv is usually os.Getenv;
// tests pass a map lookup instead.
func FromEnv(getenv func(string) string) (Settings, error) {
	s := Settings{
		CacheSeed:          getenv(EnvCacheSeed),
		IgnoreImportErrors: getenv(EnvIgnoreImportErrors) == "1",
		DebugImports:       getenv(EnvDebugImports) == "1",
		LogLevel:           DefaultLogLevel,
		CI:                 getenv(EnvCI) != "",
	}

	if level := getenv(EnvLogLevel); level != "" {
		if err := logging.ValidateLogLevel(level); err != nil {
			return s, fmt.Errorf("%s: %w", EnvLogLevel, err)
		}
		s.LogLevel = level
	}

	base, err := BasePath(getenv)
	if err != nil {
		return s, err
	}
	s.BasePath = base

	return s, nil
}

// BasePath returns TOOLS_SCRIPTS_PATH with "~" expanded, or the current
// working directory when it is unset.
func BasePath(getenv func(string) string) (string, error) {
	base := getenv(EnvScriptsPath)
	if base == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to determine working directory: %w", err)
		}
		return cwd, nil
	}
	return ExpandHome(base)
}

// DefaultVenvsPath returns the virtualenv cache directory for the environment
// described by getenv.
func DefaultVenvsPath(getenv func(string) string) (string, error) {
	base, err := BasePath(getenv)
	if err != nil {
		return "", err
	}
	return filepath.Join(base, DefaultVenvsDirName), nil
}

// VenvsPath returns the directory holding cached virtualenvs.
func (s Settings) VenvsPath() string {
	return filepath.Join(s.BasePath, DefaultVenvsDirName)
}

// ExpandHome expands a leading "~" in path.
func ExpandHome(path string) (string, error) {
	if path != "~" && !hasHomePrefix(path) {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to expand %q: %w", path, err)
	}
	return filepath.Join(home, path[1:]), nil
}

func hasHomePrefix(path string) bool {
	return len(path) > 1 && path[0] == '~' && (path[1] == '/' || path[1] == filepath.Separator)
}
