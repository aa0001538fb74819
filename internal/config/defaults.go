// Package config provides default configuration values and environment
// handling shared by the toolscripts packages. This centralizes every
// environment variable name and on-disk location so the CLI, the subprocess
// runner and the virtualenv cache agree on them.
package config

const (
	// DefaultProgramName is the program name shown in usage output
	DefaultProgramName = "tools"

	// DefaultVenvsDirName is the directory, relative to the base path, holding
	// cached virtual environments
	DefaultVenvsDirName = ".tools-venvs"

	// DefaultVenvName is the name of the default tools virtualenv
	DefaultVenvName = "default"

	// DefaultProjectFile is the optional project configuration file looked up
	// in the repository root
	DefaultProjectFile = ".tools.yaml"

	// DefaultPipRequirement pins pip inside freshly created virtualenvs
	DefaultPipRequirement = "pip>=22.3.1,<23.0"

	// DefaultSetuptoolsRequirement pins setuptools inside freshly created virtualenvs
	DefaultSetuptoolsRequirement = "setuptools>=65.6.3,<66"

	// DefaultLogLevel is the log level used when neither --debug nor --quiet is passed
	DefaultLogLevel = "INFO"
)

// Environment variables recognised by toolscripts.
const (
	// EnvScriptsPath overrides the base path under which virtualenvs are cached
	EnvScriptsPath = "TOOLS_SCRIPTS_PATH"

	// EnvCacheSeed seeds every virtualenv cache key; changing it invalidates
	// all cached environments without touching any file
	EnvCacheSeed = "TOOLS_VIRTUALENV_CACHE_SEED"

	// EnvIgnoreImportErrors silences tools module registration warnings when "1"
	EnvIgnoreImportErrors = "TOOLS_IGNORE_IMPORT_ERRORS"

	// EnvDebugImports turns tools module registration failures into fatal errors when "1"
	EnvDebugImports = "TOOLS_DEBUG_IMPORTS"

	// EnvLogLevel sets the initial log level (DEBUG, INFO, WARN, ERROR)
	EnvLogLevel = "TOOLS_LOG_LEVEL"

	// EnvCI marks a CI environment; enables log timestamps
	EnvCI = "CI"
)
