package virtualenv

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/concave-dev/toolscripts/internal/logging"
	"github.com/concave-dev/toolscripts/internal/validate"
)

// DefaultHashFileName records the cache key of the default requirements
// installed into the host interpreter.
const DefaultHashFileName = ".default-requirements.hash"

// Entry describes a cached environment found on disk.
type Entry struct {
	Name     string
	Dir      string
	CacheKey string // Empty when requirements were never installed
	Healthy  bool   // The environment's python binary exists
}

// List returns the environments cached under venvsDir, sorted by name. A
// missing directory yields no entries.
func List(venvsDir string) ([]Entry, error) {
	dirents, err := os.ReadDir(venvsDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", venvsDir, err)
	}

	var entries []Entry
	for _, d := range dirents {
		if !d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			continue
		}
		dir := filepath.Join(venvsDir, d.Name())
		e := Entry{Name: d.Name(), Dir: dir}
		if data, err := os.ReadFile(filepath.Join(dir, HashFileName)); err == nil {
			e.CacheKey = strings.TrimSpace(string(data))
		}
		if _, err := os.Stat(pythonPath(dir)); err == nil {
			e.Healthy = true
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Remove deletes the cached environment name under venvsDir.
func Remove(venvsDir, name string) error {
	if err := validate.ValidateField(name, "required,excludesall=/\\"); err != nil {
		return fmt.Errorf("invalid virtualenv name %q", name)
	}
	if name == "." || name == ".." {
		return fmt.Errorf("invalid virtualenv name %q", name)
	}
	dir := filepath.Join(venvsDir, name)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("virtualenv(%s): %w", name, err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove virtualenv(%s): %w", name, err)
	}
	logging.Debug("Removed %s", dir)
	return nil
}

// InstallDefaultRequirements installs reqs into the host interpreter python
// unless the cache key stored in <venvs dir>/.default-requirements.hash
// already matches. The key covers the running executable, the seed and the
// requirements digest.
func InstallDefaultRequirements(ctx context.Context, reqs Requirements, python string, opts ...Option) error {
	if reqs == nil {
		return nil
	}
	if err := validate.ValidateStruct(struct {
		Requirements Requirements
	}{reqs}); err != nil {
		return fmt.Errorf("default requirements: %w", err)
	}
	o, err := resolveOptions(opts)
	if err != nil {
		return err
	}
	if python == "" {
		python = DefaultPython
	}

	key, err := CacheKey(executableName(), *o.seed, reqs)
	if err != nil {
		return fmt.Errorf("default requirements: %w", err)
	}

	hashFile := filepath.Join(o.venvsDir, DefaultHashFileName)
	if data, err := os.ReadFile(hashFile); err == nil && string(data) == key {
		logging.Debug("Base tools requirements haven't changed. Hash file: '%s'; Hash: '%s'", hashFile, key)
		return nil
	}

	logging.Info("Installing base tools requirements ...")
	if err := reqs.Install(ctx, o.runner, python, nil); err != nil {
		return fmt.Errorf("failed to install default requirements: %w", err)
	}

	if err := os.MkdirAll(o.venvsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", o.venvsDir, err)
	}
	if err := os.WriteFile(hashFile, []byte(key), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", hashFile, err)
	}
	logging.Debug("Wrote '%s' with contents: '%s'", hashFile, key)
	return nil
}

func executableName() string {
	if len(os.Args) > 0 {
		return os.Args[0]
	}
	return ""
}
