package validate

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	nameRegex      = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
	paramNameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	longFlagRegex  = regexp.MustCompile(`^--[A-Za-z0-9][A-Za-z0-9_-]*$`)
	shortFlagRegex = regexp.MustCompile(`^-[A-Za-z0-9]$`)
)

// CommandNameFormat validates group and command names against the CLI naming
// rules: lowercase letters, digits, hyphens and underscores, starting with a
// letter or digit.
//
// Names become sub-command tokens on the command line, so anything that would
// need shell quoting or could be confused with a flag is rejected.
func CommandNameFormat(kind, name string) error {
	if name == "" {
		return fmt.Errorf("%s name cannot be empty", kind)
	}
	if !nameRegex.MatchString(name) {
		return fmt.Errorf("%s name '%s' must contain only lowercase letters [a-z], numbers [0-9], hyphens (-), and underscores (_)", kind, name)
	}
	if strings.HasSuffix(name, "-") || strings.HasSuffix(name, "_") {
		return fmt.Errorf("%s name '%s' cannot end with hyphen (-) or underscore (_)", kind, name)
	}
	return nil
}

// ParamNameFormat validates a parameter name, the key used to bind parsed
// values for a command.
func ParamNameFormat(name string) error {
	if !paramNameRegex.MatchString(name) {
		return fmt.Errorf("parameter name '%s' must be an identifier ([A-Za-z_][A-Za-z0-9_]*)", name)
	}
	return nil
}

// FlagFormat validates a single flag spelling such as "--region" or "-r".
func FlagFormat(flag string) error {
	if longFlagRegex.MatchString(flag) || shortFlagRegex.MatchString(flag) {
		return nil
	}
	return fmt.Errorf("flag '%s' must look like --long-name or -x", flag)
}
