package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/concave-dev/toolscripts/internal/logging"
	"github.com/concave-dev/toolscripts/internal/validate"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Options holds the global flags of one invocation.
type Options struct {
	Debug           bool          // --debug, -d
	Quiet           bool          // --quiet, -q
	Timestamps      bool          // --timestamps, --ts (cleared by --no-timestamps, --nts)
	Timeout         time.Duration // --timeout, --timeout-secs
	NoOutputTimeout time.Duration // --no-output-timeout-secs, --nots
}

// globalFlags receives the raw flag values of one parse.
type globalFlags struct {
	debug           bool
	quiet           bool
	version         bool
	timestamps      bool
	noTimestamps    bool
	timeoutSecs     int
	noOutputTimeout int
}

// flagAliases maps alternate long spellings of the global flags.
var flagAliases = map[string]string{
	"ts":           "timestamps",
	"nts":          "no-timestamps",
	"timeout-secs": "timeout",
	"nots":         "no-output-timeout-secs",
}

// normalizeFlagName resolves aliases so "--ts" parses as "--timestamps".
func normalizeFlagName(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	if target, ok := flagAliases[name]; ok {
		return pflag.NormalizedName(target)
	}
	return pflag.NormalizedName(name)
}

// globalFlagNames lists the long and short names taken by global flags.
var globalFlagNames = []string{
	"debug", "d", "quiet", "q", "timestamps", "ts", "no-timestamps", "nts",
	"timeout", "timeout-secs", "no-output-timeout-secs", "nots", "help", "h",
}

// setupGlobalFlags declares the persistent global flags on root.
func setupGlobalFlags(root *cobra.Command, g *globalFlags) {
	pf := root.PersistentFlags()
	pf.BoolVarP(&g.debug, "debug", "d", false, "Show debug messages")
	pf.BoolVarP(&g.quiet, "quiet", "q", false, "Disable logging")
	pf.BoolVar(&g.timestamps, "timestamps", false, "Add time stamps to logs (alias --ts)")
	pf.BoolVar(&g.noTimestamps, "no-timestamps", false, "Remove time stamps from logs (alias --nts)")
	pf.IntVar(&g.timeoutSecs, "timeout", 0, "Timeout in `SECONDS` for ctx.Run calls to finish (alias --timeout-secs)")
	pf.IntVar(&g.noOutputTimeout, "no-output-timeout-secs", 0, "Timeout ctx.Run calls when no output has been seen for the provided `SECONDS` (alias --nots)")
	root.MarkFlagsMutuallyExclusive("debug", "quiet")
	root.MarkFlagsMutuallyExclusive("timestamps", "no-timestamps")

	root.Flags().BoolVar(&g.version, "version", false, "Show the version and exit")
	root.SetGlobalNormalizationFunc(normalizeFlagName)
}

// validateGlobalFlags checks the global flag values after parsing.
func validateGlobalFlags(g *globalFlags) error {
	if g.debug && g.quiet {
		return fmt.Errorf("--debug and --quiet cannot be used together")
	}
	if err := validate.ValidateField(g.timeoutSecs, "min=0"); err != nil {
		return fmt.Errorf("--timeout must be a positive number of seconds")
	}
	if err := validate.ValidateField(g.noOutputTimeout, "min=0"); err != nil {
		return fmt.Errorf("--no-output-timeout-secs must be a positive number of seconds")
	}
	return nil
}

func (g *globalFlags) options() Options {
	return Options{
		Debug:           g.debug,
		Quiet:           g.quiet,
		Timestamps:      g.timestamps && !g.noTimestamps,
		Timeout:         time.Duration(g.timeoutSecs) * time.Second,
		NoOutputTimeout: time.Duration(g.noOutputTimeout) * time.Second,
	}
}

// Apply configures logging for the options.
func (o Options) Apply() {
	switch {
	case o.Quiet:
		logging.SetQuiet()
	case o.Debug:
		logging.SetDebug()
	}
	logging.SetTimestamps(o.Timestamps)
}

// prescan looks at the leading flags before anything is parsed so that
// logging during module loading honours --quiet, --debug and --timestamps.
func prescan(argv []string) Options {
	var o Options
	for _, arg := range argv {
		if !strings.HasPrefix(arg, "-") {
			break
		}
		switch arg {
		case "-q", "--quiet":
			o.Quiet = true
		case "-d", "--debug":
			o.Debug = true
		case "--timestamps", "--ts":
			o.Timestamps = true
		}
	}
	if o.Quiet && o.Debug {
		o.Debug = false
	}
	return o
}
