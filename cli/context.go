package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/concave-dev/toolscripts/internal/logging"
	"github.com/concave-dev/toolscripts/internal/version"
	"github.com/concave-dev/toolscripts/process"
	"github.com/concave-dev/toolscripts/virtualenv"
	"github.com/go-resty/resty/v2"
)

// ContextConfig configures a Context.
type ContextConfig struct {
	Context           context.Context // Defaults to context.Background()
	Options           Options
	RepoRoot          string         // Defaults to the working directory
	Runner            process.Runner // Defaults to process.DefaultRunner
	VenvsDir          string         // Virtualenv cache directory; empty keeps the virtualenv default
	VirtualEnvOptions []virtualenv.Option
	Stdout            io.Writer // Destination of Print; defaults to os.Stdout
}

// Context is handed to every command handler. It is created per invocation
// and is not safe for concurrent use, except Web which may be called from
// several goroutines.
type Context struct {
	ctx      context.Context
	options  Options
	repoRoot string
	runner   process.Runner
	venvsDir string
	venvOpts []virtualenv.Option
	stdout   io.Writer
	venv     *virtualenv.VirtualEnv

	webOnce sync.Once
	web     *resty.Client
}

// NewContext creates a Context. The dispatcher builds one per invocation;
// tests use it to call handlers directly.
func NewContext(cfg ContextConfig) *Context {
	c := &Context{
		ctx:      cfg.Context,
		options:  cfg.Options,
		repoRoot: cfg.RepoRoot,
		runner:   cfg.Runner,
		venvsDir: cfg.VenvsDir,
		venvOpts: cfg.VirtualEnvOptions,
		stdout:   cfg.Stdout,
	}
	if c.ctx == nil {
		c.ctx = context.Background()
	}
	if c.runner == nil {
		c.runner = process.DefaultRunner{}
	}
	if c.stdout == nil {
		c.stdout = os.Stdout
	}
	if c.repoRoot == "" {
		if cwd, err := os.Getwd(); err == nil {
			c.repoRoot = cwd
		}
	}
	return c
}

// Context returns the context.Context subprocesses run under.
func (c *Context) Context() context.Context { return c.ctx }

// Options returns the global flag values of the invocation.
func (c *Context) Options() Options { return c.options }

// RepoRoot returns the directory the program was started from.
func (c *Context) RepoRoot() string { return c.repoRoot }

// VenvsDir returns the virtualenv cache directory, if known.
func (c *Context) VenvsDir() string { return c.venvsDir }

// Stdout returns the writer Print writes to.
func (c *Context) Stdout() io.Writer { return c.stdout }

// Debug logs a debug message.
func (c *Context) Debug(format string, v ...any) { logging.Debug(format, v...) }

// Info logs an informational message.
func (c *Context) Info(format string, v ...any) { logging.Info(format, v...) }

// Warn logs a warning.
func (c *Context) Warn(format string, v ...any) { logging.Warn(format, v...) }

// Error logs an error.
func (c *Context) Error(format string, v ...any) { logging.Error(format, v...) }

// Print writes its operands to stdout without log formatting.
func (c *Context) Print(a ...any) {
	fmt.Fprintln(c.stdout, a...)
}

// Exit returns an error that makes the dispatcher end the process with
// status. A non-empty message is logged as success for status 0 and as an
// error otherwise.
//
//	if !ok {
//		return ctx.Exit(1, "Nothing to deploy")
//	}
func (c *Context) Exit(status int, message string) error {
	return &ExitError{Code: status, Message: message}
}

// Run runs cmdline, through the active virtualenv if there is one. A non-zero
// exit yields a *process.ExitError carrying the child's status.
func (c *Context) Run(cmdline ...string) (*process.Result, error) {
	return c.RunWith(process.Options{}, cmdline...)
}

// RunWith is Run with explicit options. Timeouts left at zero take the
// invocation's --timeout and --no-output-timeout-secs values.
func (c *Context) RunWith(opts process.Options, cmdline ...string) (*process.Result, error) {
	if opts.Timeout == 0 {
		opts.Timeout = c.options.Timeout
	}
	if opts.NoOutputTimeout == 0 {
		opts.NoOutputTimeout = c.options.NoOutputTimeout
	}
	logging.Debug("Running '%s'", strings.Join(cmdline, " "))
	if c.venv != nil {
		return c.venv.Run(c.ctx, cmdline, opts)
	}
	return c.runner.Run(c.ctx, cmdline, opts)
}

// Chdir runs fn with dir as the working directory. The previous directory is
// restored afterwards; if it no longer exists an error is logged.
func (c *Context) Chdir(dir string, fn func() error) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to determine working directory: %w", err)
	}
	if err := os.Chdir(dir); err != nil {
		return fmt.Errorf("failed to change directory: %w", err)
	}
	defer func() {
		if _, err := os.Stat(cwd); err != nil {
			logging.Error("Unable to change back to path %s", cwd)
			return
		}
		if err := os.Chdir(cwd); err != nil {
			logging.Error("Unable to change back to path %s: %v", cwd, err)
		}
	}()
	return fn()
}

// Web returns the HTTP client of the invocation, created on first use.
func (c *Context) Web() *resty.Client {
	c.webOnce.Do(func() {
		client := resty.New()
		client.SetLogger(logging.RestyLogger{})
		client.
			SetHeader("User-Agent", version.UserAgent()).
			SetTimeout(60 * time.Second)

		// Retry only on connection errors, not HTTP errors
		client.
			SetRetryCount(2).
			SetRetryWaitTime(500 * time.Millisecond).
			SetRetryMaxWaitTime(2 * time.Second).
			AddRetryCondition(func(r *resty.Response, err error) bool {
				return err != nil
			})

		client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			logging.Debug("HTTP request: %s %s", req.Method, req.URL)
			return nil
		})
		client.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
			logging.Debug("HTTP response: %d %s (took %v)", resp.StatusCode(), resp.Request.URL, resp.Time())
			return nil
		})
		client.OnError(func(req *resty.Request, err error) {
			logging.Debug("HTTP request failed: %s %s - %v", req.Method, req.URL, err)
		})
		c.web = client
	})
	return c.web
}

// VirtualEnv enters the virtualenv described by cfg, makes it the active one
// for Run while fn executes and restores the previous one afterwards.
func (c *Context) VirtualEnv(cfg virtualenv.Config, fn func(venv *virtualenv.VirtualEnv) error) error {
	venv, err := newVirtualEnv(c.ctx, cfg, c.virtualEnvOptions())
	if err != nil {
		return err
	}
	defer venv.Exit()

	previous := c.venv
	c.venv = venv
	defer func() { c.venv = previous }()

	return fn(venv)
}

// ActiveVirtualEnv returns the virtualenv Run goes through, or nil.
func (c *Context) ActiveVirtualEnv() *virtualenv.VirtualEnv { return c.venv }

func (c *Context) virtualEnvOptions() []virtualenv.Option {
	opts := []virtualenv.Option{virtualenv.WithRunner(c.runner), virtualenv.WithWorkDir(c.repoRoot)}
	if c.venvsDir != "" {
		opts = append(opts, virtualenv.WithVenvsDir(c.venvsDir))
	}
	return append(opts, c.venvOpts...)
}

// newVirtualEnv creates and enters a virtualenv.
func newVirtualEnv(ctx context.Context, cfg virtualenv.Config, opts []virtualenv.Option) (*virtualenv.VirtualEnv, error) {
	venv, err := virtualenv.New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := venv.Enter(ctx); err != nil {
		return nil, err
	}
	return venv, nil
}
