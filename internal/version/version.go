// Package version provides centralized version information for toolscripts.
// The same value is reported by `tools --version` and sent as the HTTP
// User-Agent of the execution context's web client.
// All versions follow semantic versioning (semver) conventions.

package version

// ToolsVersion holds the current toolscripts version.
// Format: major.minor.patch[-prerelease][+build]
const ToolsVersion = "0.4.0-dev"

// UserAgent returns the User-Agent header value used by outgoing HTTP requests.
func UserAgent() string {
	return "tools/" + ToolsVersion
}
