// Package virtualenv manages cached Python virtual environments used by tools
// commands that need isolated dependencies.
//
// CACHE LAYOUT:
// Each environment lives in <venvs dir>/<name>, where the venvs directory is
// $TOOLS_SCRIPTS_PATH/.tools-venvs (or .tools-venvs in the working directory).
// A .requirements.hash file inside the environment stores the cache key the
// environment was last built for. The key is a sha256 over the environment
// name, the TOOLS_VIRTUALENV_CACHE_SEED value and the requirements digest, so
// changing the seed invalidates every cached environment without touching any
// file.
//
// USAGE FROM COMMANDS:
// An entered environment is used by running its binaries as subprocesses:
// Run prefixes PATH with the environment's bin directory, and when
// AddAsExtraSitePackages is set it also exposes the environment's
// site-packages through PYTHONPATH.
package virtualenv

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/concave-dev/toolscripts/internal/config"
	"github.com/concave-dev/toolscripts/internal/logging"
	"github.com/concave-dev/toolscripts/internal/validate"
	"github.com/concave-dev/toolscripts/process"
	json "github.com/goccy/go-json"
)

// HashFileName is the file inside an environment that records its cache key.
const HashFileName = ".requirements.hash"

// DefaultPython is the interpreter used to create environments when Config
// does not name one.
const DefaultPython = "python3"

// Config describes an isolated dependency environment.
type Config struct {
	Name                   string       `validate:"required,excludesall=/\\"`
	Requirements           Requirements // Optional; nil means no extra packages
	Env                    map[string]string
	SystemSitePackages     bool
	PipRequirement         string
	SetuptoolsRequirement  string
	Python                 string
	AddAsExtraSitePackages bool
}

// withDefaults fills unset fields.
func (c Config) withDefaults() Config {
	if c.PipRequirement == "" {
		c.PipRequirement = config.DefaultPipRequirement
	}
	if c.SetuptoolsRequirement == "" {
		c.SetuptoolsRequirement = config.DefaultSetuptoolsRequirement
	}
	if c.Python == "" {
		c.Python = DefaultPython
	}
	return c
}

// Option customizes a VirtualEnv or a default requirements install.
type Option func(*options)

type options struct {
	venvsDir string
	runner   process.Runner
	seed     *string
	workDir  string
}

// WithVenvsDir overrides the directory holding cached environments.
func WithVenvsDir(dir string) Option {
	return func(o *options) { o.venvsDir = dir }
}

// WithRunner sets the Runner used for every subprocess.
func WithRunner(r process.Runner) Option {
	return func(o *options) { o.runner = r }
}

// WithSeed overrides the cache seed read from TOOLS_VIRTUALENV_CACHE_SEED.
func WithSeed(seed string) Option {
	return func(o *options) { o.seed = &seed }
}

// WithWorkDir sets the working directory for commands run through the
// environment. Defaults to the current directory.
func WithWorkDir(dir string) Option {
	return func(o *options) { o.workDir = dir }
}

func resolveOptions(opts []Option) (options, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.runner == nil {
		o.runner = process.DefaultRunner{}
	}
	if o.seed == nil {
		seed := os.Getenv(config.EnvCacheSeed)
		o.seed = &seed
	}
	if o.venvsDir == "" {
		dir, err := config.DefaultVenvsPath(os.Getenv)
		if err != nil {
			return o, err
		}
		o.venvsDir = dir
	}
	return o, nil
}

// CacheKey returns the hex sha256 of the environment name, the seed and the
// requirements digest.
func CacheKey(name, seed string, reqs Requirements) (string, error) {
	h := sha256.New()
	writeField(h, name)
	writeField(h, seed)
	if reqs != nil {
		digest, err := reqs.Hash()
		if err != nil {
			return "", err
		}
		h.Write(digest)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VirtualEnv is a cached environment on disk. It is not safe for concurrent
// use.
type VirtualEnv struct {
	cfg          Config
	opts         options
	dir          string
	python       string
	binDir       string
	cacheKey     string
	sitePackages []string
	active       bool
}

// New validates cfg and computes the environment's location and cache key.
// Nothing is created on disk until Enter.
func New(cfg Config, opts ...Option) (*VirtualEnv, error) {
	cfg = cfg.withDefaults()
	if err := validate.ValidateStruct(cfg); err != nil {
		return nil, fmt.Errorf("virtualenv: %w", err)
	}

	o, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	key, err := CacheKey(cfg.Name, *o.seed, cfg.Requirements)
	if err != nil {
		return nil, fmt.Errorf("virtualenv(%s): %w", cfg.Name, err)
	}

	v := &VirtualEnv{
		cfg:      cfg,
		opts:     o,
		dir:      filepath.Join(o.venvsDir, cfg.Name),
		cacheKey: key,
	}
	v.python = pythonPath(v.dir)
	v.binDir = filepath.Dir(v.python)
	return v, nil
}

func pythonPath(dir string) string {
	if runtime.GOOS == "windows" {
		return filepath.Join(dir, "Scripts", "python.exe")
	}
	return filepath.Join(dir, "bin", "python")
}

// Name returns the environment name.
func (v *VirtualEnv) Name() string { return v.cfg.Name }

// Dir returns the environment directory.
func (v *VirtualEnv) Dir() string { return v.dir }

// Python returns the environment's interpreter.
func (v *VirtualEnv) Python() string { return v.python }

// BinDir returns the environment's executables directory.
func (v *VirtualEnv) BinDir() string { return v.binDir }

// CacheKey returns the key the environment is built for.
func (v *VirtualEnv) CacheKey() string { return v.cacheKey }

// Active reports whether the environment has been entered and not exited.
func (v *VirtualEnv) Active() bool { return v.active }

// Enter creates the environment if needed, installs its requirements when
// the cache key changed and, with AddAsExtraSitePackages, records the
// site-packages directories exposed to subprocesses.
func (v *VirtualEnv) Enter(ctx context.Context) error {
	if err := v.create(ctx); err != nil {
		return err
	}
	if err := v.installRequirements(ctx); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		// Something inside the environment went missing; start over once
		logging.Warn("Virtualenv(%s) looks broken, recreating it", v.cfg.Name)
		if err := os.RemoveAll(v.dir); err != nil {
			return fmt.Errorf("failed to remove virtualenv(%s): %w", v.cfg.Name, err)
		}
		if err := v.create(ctx); err != nil {
			return err
		}
		if err := v.installRequirements(ctx); err != nil {
			return err
		}
	}

	if v.cfg.AddAsExtraSitePackages {
		paths, err := v.SitePackages(ctx)
		if err != nil {
			return err
		}
		v.sitePackages = paths
	}
	v.active = true
	return nil
}

// Exit deactivates the environment. The environment stays cached on disk.
func (v *VirtualEnv) Exit() {
	v.sitePackages = nil
	v.active = false
}

func (v *VirtualEnv) create(ctx context.Context) error {
	if _, err := os.Stat(v.dir); err == nil {
		if _, err := os.Stat(v.python); err == nil {
			logging.Debug("Virtual environment path already exists")
			return nil
		}
		logging.Warn("The virtual environment path '%s' exists but the python binary '%s' does not. Deleting the virtual environment.",
			relativePath(v.dir), relativePath(v.python))
		if err := os.RemoveAll(v.dir); err != nil {
			return fmt.Errorf("failed to remove virtualenv(%s): %w", v.cfg.Name, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(v.dir), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(v.dir), err)
	}

	var cmdline []string
	if bin, err := lookPath("virtualenv"); err == nil {
		cmdline = []string{bin, "--python=" + v.cfg.Python}
	} else {
		cmdline = []string{v.cfg.Python, "-m", "venv"}
	}
	if v.cfg.SystemSitePackages {
		cmdline = append(cmdline, "--system-site-packages")
	}
	cmdline = append(cmdline, v.dir)

	logging.Info("Creating virtualenv(%s) in %s", v.cfg.Name, relativePath(v.dir))
	if _, err := v.opts.runner.Run(ctx, cmdline, process.Options{Dir: filepath.Dir(v.dir), Env: v.environ(nil)}); err != nil {
		return fmt.Errorf("failed to create virtualenv(%s): %w", v.cfg.Name, err)
	}
	if _, err := v.Install(ctx, "-U", "wheel", v.cfg.PipRequirement, v.cfg.SetuptoolsRequirement); err != nil {
		return fmt.Errorf("failed to create virtualenv(%s): %w", v.cfg.Name, err)
	}
	return nil
}

func (v *VirtualEnv) installRequirements(ctx context.Context) error {
	hashFile := filepath.Join(v.dir, HashFileName)
	if data, err := os.ReadFile(hashFile); err == nil && string(data) == v.cacheKey {
		logging.Debug("Requirements for virtualenv(%s) haven't changed.", v.cfg.Name)
		return nil
	}

	if v.cfg.Requirements != nil {
		logging.Info("Install requirements for virtualenv(%s) ...", v.cfg.Name)
		if err := v.cfg.Requirements.Install(ctx, v.opts.runner, v.python, v.environ(nil)); err != nil {
			return fmt.Errorf("failed to install requirements for virtualenv(%s): %w", v.cfg.Name, err)
		}
	}
	if err := os.WriteFile(hashFile, []byte(v.cacheKey), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", hashFile, err)
	}
	return nil
}

// Run runs cmdline with the environment's bin directory first on PATH.
// opts.Env, when set, holds KEY=VALUE overrides applied on top of the
// environment's variables. opts.Dir defaults to the configured work dir.
func (v *VirtualEnv) Run(ctx context.Context, cmdline []string, opts process.Options) (*process.Result, error) {
	opts.Env = v.environ(opts.Env)
	if opts.Dir == "" {
		opts.Dir = v.opts.workDir
	}
	return v.opts.runner.Run(ctx, cmdline, opts)
}

// Install runs pip install with args inside the environment.
func (v *VirtualEnv) Install(ctx context.Context, args ...string) (*process.Result, error) {
	cmdline := append([]string{v.python, "-m", "pip", "install"}, args...)
	return v.Run(ctx, cmdline, process.Options{})
}

// Uninstall runs pip uninstall -y with args inside the environment.
func (v *VirtualEnv) Uninstall(ctx context.Context, args ...string) (*process.Result, error) {
	cmdline := append([]string{v.python, "-m", "pip", "uninstall", "-y"}, args...)
	return v.Run(ctx, cmdline, process.Options{})
}

// RunCode runs a Python snippet with the environment's interpreter. A leading
// newline and common indentation are stripped first.
func (v *VirtualEnv) RunCode(ctx context.Context, code string, opts process.Options) (*process.Result, error) {
	code = dedent(strings.TrimPrefix(code, "\n"))
	logging.Debug("Code to run passed to python:\n>>>>>>>>>>\n%s\n<<<<<<<<<<", code)
	return v.Run(ctx, []string{v.python, "-c", code}, opts)
}

// SitePackages returns the environment's site-packages directories.
func (v *VirtualEnv) SitePackages(ctx context.Context) ([]string, error) {
	res, err := v.RunCode(ctx, "import json,site; print(json.dumps(site.getsitepackages()))",
		process.Options{Capture: true, AllowFailure: true})
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("failed to get the virtualenv's site packages path: %s", strings.TrimSpace(string(res.Stderr)))
	}
	var paths []string
	if err := json.Unmarshal(res.Stdout, &paths); err != nil {
		return nil, fmt.Errorf("failed to decode site packages paths: %w", err)
	}
	return paths, nil
}

// InstalledPackages returns the installed distributions and their versions.
func (v *VirtualEnv) InstalledPackages(ctx context.Context) (map[string]string, error) {
	res, err := v.Run(ctx, []string{v.python, "-m", "pip", "list", "--format", "json"}, process.Options{Capture: true})
	if err != nil {
		return nil, err
	}
	var pkgs []struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	}
	if err := json.Unmarshal(res.Stdout, &pkgs); err != nil {
		return nil, fmt.Errorf("failed to decode pip list output: %w", err)
	}
	installed := make(map[string]string, len(pkgs))
	for _, p := range pkgs {
		installed[p.Name] = p.Version
	}
	return installed, nil
}

// environ builds the child environment: the process environment, the
// configured Env, then overrides, with PATH and PYTHONPATH adjusted.
func (v *VirtualEnv) environ(overrides []string) []string {
	env := envMap(os.Environ())
	for k, val := range v.cfg.Env {
		env[k] = val
	}
	for k, val := range envMap(overrides) {
		env[k] = val
	}

	env["PATH"] = prependPathList(v.binDir, env["PATH"])
	if len(v.sitePackages) > 0 {
		env["PYTHONPATH"] = prependPathList(strings.Join(v.sitePackages, string(os.PathListSeparator)), env["PYTHONPATH"])
	}

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

func envMap(environ []string) map[string]string {
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, val, ok := strings.Cut(kv, "="); ok {
			m[k] = val
		}
	}
	return m
}

func prependPathList(first, rest string) string {
	if rest == "" {
		return first
	}
	return first + string(os.PathListSeparator) + rest
}

// relativePath shortens path relative to the working directory for messages.
func relativePath(path string) string {
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	rel, err := filepath.Rel(cwd, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}

// dedent removes the common leading whitespace of all non-blank lines and
// trailing whitespace of the whole snippet.
func dedent(code string) string {
	lines := strings.Split(code, "\n")
	prefix := ""
	first := true
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		if first {
			prefix, first = indent, false
			continue
		}
		for !strings.HasPrefix(indent, prefix) {
			prefix = prefix[:len(prefix)-1]
		}
	}
	for i, line := range lines {
		lines[i] = strings.TrimPrefix(line, prefix)
	}
	return strings.TrimRight(strings.Join(lines, "\n"), " \t\n")
}
