package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/concave-dev/toolscripts/internal/config"
	"github.com/concave-dev/toolscripts/internal/logging"
	"github.com/concave-dev/toolscripts/process"
	"github.com/concave-dev/toolscripts/virtualenv"
	"github.com/pkg/errors"
)

// State is the dispatcher lifecycle state.
type State int

const (
	StateIdle State = iota
	StateResolved
	StateExecuting
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolved:
		return "resolved"
	case StateExecuting:
		return "executing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Dispatcher runs one invocation of a Registry: it loads tools modules,
// builds the parser, resolves argv to a command and runs its handler.
type Dispatcher struct {
	reg      *Registry
	state    State
	getenv   func(string) string
	stdout   io.Writer
	stderr   io.Writer
	runner   process.Runner
	repoRoot string
	venvOpts []virtualenv.Option
	failures []*ImportFailure
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithOutput redirects help, usage and Context.Print output.
func WithOutput(stdout, stderr io.Writer) DispatcherOption {
	return func(d *Dispatcher) { d.stdout, d.stderr = stdout, stderr }
}

// WithEnv sets the environment lookup used for settings. Defaults to os.Getenv.
func WithEnv(getenv func(string) string) DispatcherOption {
	return func(d *Dispatcher) { d.getenv = getenv }
}

// WithRunner sets the subprocess runner handed to contexts and virtualenvs.
func WithRunner(r process.Runner) DispatcherOption {
	return func(d *Dispatcher) { d.runner = r }
}

// WithRepoRoot sets the directory reported by Context.RepoRoot.
func WithRepoRoot(dir string) DispatcherOption {
	return func(d *Dispatcher) { d.repoRoot = dir }
}

// WithVirtualEnvOptions appends options applied to every virtualenv the
// dispatcher or a handler creates.
func WithVirtualEnvOptions(opts ...virtualenv.Option) DispatcherOption {
	return func(d *Dispatcher) { d.venvOpts = append(d.venvOpts, opts...) }
}

// NewDispatcher creates a dispatcher for reg.
func NewDispatcher(reg *Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		reg:    reg,
		getenv: os.Getenv,
		stdout: os.Stdout,
		stderr: os.Stderr,
		runner: process.DefaultRunner{},
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.repoRoot == "" {
		if cwd, err := os.Getwd(); err == nil {
			d.repoRoot = cwd
		}
	}
	return d
}

// State returns the lifecycle state reached by the last Run.
func (d *Dispatcher) State() State { return d.state }

// ImportFailures returns the tools modules that failed to load.
func (d *Dispatcher) ImportFailures() []*ImportFailure { return d.failures }

// Main runs the program with os.Args and exits with the resulting status.
func Main(reg *Registry, opts ...DispatcherOption) {
	os.Exit(NewDispatcher(reg, opts...).Run(os.Args[1:]))
}

// Run dispatches argv (without the program name) and returns the process
// exit status:
//   - 0 on success, help or version output
//   - the status given to Context.Exit
//   - the child's status for an unhandled *process.ExitError
//   - 1 for any other failure or when no command was given
//   - 2 for invalid command-line input
func (d *Dispatcher) Run(argv []string) int {
	d.state = StateIdle

	settings, err := config.FromEnv(d.getenv)
	if err != nil {
		return d.fail("%v", err)
	}
	logging.SetLevel(settings.LogLevel)
	prescan(argv).Apply()
	logging.Debug("Tools executing argv: %v", argv)

	ctx := context.Background()
	venvOpts := d.virtualEnvOptions(settings)

	if d.reg.defaultReqs != nil {
		if err := virtualenv.InstallDefaultRequirements(ctx, d.reg.defaultReqs, "", venvOpts...); err != nil {
			return d.fail("%v", err)
		}
	}

	var defaultVenv *virtualenv.VirtualEnv
	if cfg := d.reg.defaultVenv; cfg != nil {
		venv, err := newVirtualEnv(ctx, *cfg, venvOpts)
		if err != nil {
			return d.fail("Failed to prepare the default virtualenv: %v", err)
		}
		defer venv.Exit()
		defaultVenv = venv
	}

	if err := d.loadModules(ctx, settings, venvOpts); err != nil {
		return d.fail("%v", err)
	}

	parser, err := d.reg.Build()
	if err != nil {
		return d.fail("%v", err)
	}
	parser.SetOutput(d.stdout, d.stderr)

	inv, err := parser.Parse(argv)
	if err != nil {
		return d.parseFailure(err)
	}
	d.state = StateResolved

	inv.Options.Apply()
	logging.Debug("CLI parsed options %+v", inv.Options)
	return d.execute(ctx, inv, defaultVenv, settings)
}

func (d *Dispatcher) parseFailure(err error) int {
	var usageErr *UsageError
	switch {
	case errors.Is(err, ErrHelp):
		d.state = StateCompleted
		return 0
	case errors.Is(err, ErrNoCommand):
		return d.fail("No command was passed.")
	case errors.As(err, &usageErr):
		d.state = StateFailed
		fmt.Fprintf(d.stderr, "Error: %v\n", usageErr.Err)
		if usageErr.Usage != "" {
			fmt.Fprint(d.stderr, usageErr.Usage)
		}
		return 2
	}
	return d.fail("%v", err)
}

// loadModules runs every registered module not loaded yet, including
// modules registered by other modules while loading. A module that fails is
// rolled back; conflicts and unknown overrides are fatal.
func (d *Dispatcher) loadModules(ctx context.Context, settings config.Settings, venvOpts []virtualenv.Option) error {
	for i := 0; i < len(d.reg.modules); i++ {
		m := d.reg.modules[i]
		if m.loaded {
			continue
		}
		m.loaded = true

		snap := d.reg.snapshot()
		err := d.loadModule(ctx, m, venvOpts)
		if err == nil {
			logging.Debug("Loaded tools module '%s'", m.name)
			continue
		}
		d.reg.restore(snap)

		var conflict *SpecConflictError
		var binding *BindingError
		if errors.As(err, &conflict) || errors.As(err, &binding) {
			return errors.Wrapf(err, "tools module '%s'", m.name)
		}

		failure := &ImportFailure{Module: m.name, Err: err}
		d.failures = append(d.failures, failure)
		if settings.DebugImports {
			return failure
		}
		if !settings.IgnoreImportErrors {
			logging.Warn("%v", failure)
		}
	}
	return nil
}

func (d *Dispatcher) loadModule(ctx context.Context, m *module, venvOpts []virtualenv.Option) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recovered(r)
		}
	}()
	if m.venv != nil {
		venv, err := newVirtualEnv(ctx, *m.venv, venvOpts)
		if err != nil {
			return err
		}
		defer venv.Exit()
	}
	return m.fn(d.reg)
}

// recovered turns a recovered panic value into an error with a stack,
// keeping error values inspectable with errors.As.
func recovered(r any) error {
	if err, ok := r.(error); ok {
		return errors.WithStack(err)
	}
	return errors.Errorf("panic: %v", r)
}

func (d *Dispatcher) execute(ctx context.Context, inv *Invocation, defaultVenv *virtualenv.VirtualEnv, settings config.Settings) int {
	d.state = StateExecuting

	c := NewContext(ContextConfig{
		Context:           ctx,
		Options:           inv.Options,
		RepoRoot:          d.repoRoot,
		Runner:            d.runner,
		VenvsDir:          settings.VenvsPath(),
		VirtualEnvOptions: d.virtualEnvOptions(settings),
		Stdout:            d.stdout,
	})
	c.venv = defaultVenv

	cmd := inv.Command
	logging.Debug("Running command '%s %s'", cmd.group.Name(), cmd.Name())

	var err error
	if cfg := cmd.virtualEnvConfig(); cfg != nil {
		err = c.VirtualEnv(*cfg, func(*virtualenv.VirtualEnv) error {
			return callHandler(cmd.run, c, inv.Args)
		})
	} else {
		err = callHandler(cmd.run, c, inv.Args)
	}
	return d.finish(err, inv.Options.Debug)
}

// callHandler runs a handler. Returned errors and panics carry a stack for
// debug output.
func callHandler(fn HandlerFunc, c *Context, args *Args) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recovered(r)
		}
	}()
	if err := fn(c, args); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// finish maps the handler result to an exit status.
func (d *Dispatcher) finish(err error, debug bool) int {
	if err == nil {
		d.state = StateCompleted
		return 0
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Code == 0 {
			d.state = StateCompleted
			if exitErr.Message != "" {
				logging.Success("%s", exitErr.Message)
			}
			return 0
		}
		d.state = StateFailed
		if exitErr.Message != "" {
			logging.Error("%s", exitErr.Message)
		}
		return exitErr.Code
	}

	d.state = StateFailed
	var procErr *process.ExitError
	if errors.As(err, &procErr) {
		logging.Error("%v", err)
		return procErr.ExitCode()
	}
	if debug {
		logging.Error("%+v", err)
	} else {
		logging.Error("%v", err)
	}
	return 1
}

func (d *Dispatcher) fail(format string, v ...any) int {
	d.state = StateFailed
	logging.Error(format, v...)
	return 1
}

func (d *Dispatcher) virtualEnvOptions(settings config.Settings) []virtualenv.Option {
	opts := []virtualenv.Option{
		virtualenv.WithVenvsDir(settings.VenvsPath()),
		virtualenv.WithSeed(settings.CacheSeed),
		virtualenv.WithRunner(d.runner),
		virtualenv.WithWorkDir(d.repoRoot),
	}
	return append(opts, d.venvOpts...)
}

// virtualEnvConfig returns the command's virtualenv, else its group's.
func (c *Command) virtualEnvConfig() *virtualenv.Config {
	if c.venv != nil {
		return c.venv
	}
	return c.group.venv
}
