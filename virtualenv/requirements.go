package virtualenv

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/concave-dev/toolscripts/internal/logging"
	"github.com/concave-dev/toolscripts/process"
)

// Requirements describes a set of Python dependencies that can be hashed for
// the cache key and installed with a given interpreter.
type Requirements interface {
	// Hash returns a digest of everything that affects the installed result.
	Hash() ([]byte, error)
	// Install installs the dependencies using python.
	Install(ctx context.Context, r process.Runner, python string, env []string) error
}

// Pip installs requirement specifiers and requirements files with pip.
type Pip struct {
	Requirements      []string `validate:"dive,required"`
	RequirementsFiles []string `validate:"dive,required"`
	PipArgs           []string
}

// Hash implements Requirements. Requirement order does not matter; file
// contents, not file names, are hashed.
func (p Pip) Hash() ([]byte, error) {
	h := sha256.New()
	writeList(h, sorted(p.PipArgs))
	writeList(h, sorted(p.Requirements))
	files := sorted(p.RequirementsFiles)
	fmt.Fprintf(h, "%d;", len(files))
	for _, f := range files {
		digest, err := fileDigest(f)
		if err != nil {
			return nil, err
		}
		h.Write(digest)
	}
	return h.Sum(nil), nil
}

// writeField writes s length-prefixed so adjacent fields cannot run together.
func writeField(w io.Writer, s string) {
	fmt.Fprintf(w, "%d:%s", len(s), s)
}

// writeList writes the item count followed by each item as a field.
func writeList(w io.Writer, items []string) {
	fmt.Fprintf(w, "%d;", len(items))
	for _, item := range items {
		writeField(w, item)
	}
}

func sorted(items []string) []string {
	out := slices.Clone(items)
	slices.Sort(out)
	return out
}

// Install implements Requirements.
func (p Pip) Install(ctx context.Context, r process.Runner, python string, env []string) error {
	args := p.args()
	if len(args) == 0 {
		return nil
	}
	cmdline := append([]string{python, "-m", "pip", "install"}, p.PipArgs...)
	cmdline = append(cmdline, args...)
	_, err := r.Run(ctx, cmdline, process.Options{Env: env})
	return err
}

func (p Pip) args() []string {
	var args []string
	files := slices.Clone(p.RequirementsFiles)
	slices.Sort(files)
	for _, f := range files {
		args = append(args, "-r", f)
	}
	reqs := slices.Clone(p.Requirements)
	slices.Sort(reqs)
	return append(args, reqs...)
}

// Poetry exports requirements from a poetry project and installs them with
// pip.
type Poetry struct {
	NoRoot      bool     // Export only the listed groups (--only) instead of adding them (--with)
	Groups      []string `validate:"dive,required"`
	ExportArgs  []string
	InstallArgs []string
	LockFile    string // Defaults to poetry.lock in the working directory
}

// lookPath resolves binaries on PATH, replaced in tests.
var lookPath = exec.LookPath

// Hash implements Requirements.
func (p Poetry) Hash() ([]byte, error) {
	h := sha256.New()
	writeField(h, strconv.FormatBool(p.NoRoot))
	writeList(h, p.ExportArgs)
	writeList(h, p.InstallArgs)
	writeList(h, p.Groups)
	digest, err := fileDigest(p.lockFile())
	if err != nil {
		return nil, err
	}
	h.Write(digest)
	return h.Sum(nil), nil
}

// Install implements Requirements.
func (p Poetry) Install(ctx context.Context, r process.Runner, python string, env []string) error {
	poetry, err := lookPath("poetry")
	if err != nil {
		return errors.New("did not find the 'poetry' binary in path")
	}

	tmp, err := os.CreateTemp("", "reqs-*.txt")
	if err != nil {
		return fmt.Errorf("failed to create requirements file: %w", err)
	}
	tmp.Close()
	defer os.Remove(tmp.Name())

	param := "with"
	if p.NoRoot {
		param = "only"
	}
	cmdline := append([]string{poetry, "export"}, p.ExportArgs...)
	for _, group := range p.Groups {
		cmdline = append(cmdline, fmt.Sprintf("--%s=%s", param, group))
	}
	cmdline = append(cmdline, "--output="+tmp.Name())

	logging.Info("Exporting requirements from poetry ...")
	if _, err := r.Run(ctx, cmdline, process.Options{Env: env, Dir: filepath.Dir(p.lockFile())}); err != nil {
		return err
	}

	logging.Info("Installing requirements ...")
	cmdline = append([]string{python, "-m", "pip", "install"}, p.InstallArgs...)
	cmdline = append(cmdline, "-r", tmp.Name())
	_, err = r.Run(ctx, cmdline, process.Options{Env: env})
	return err
}

func (p Poetry) lockFile() string {
	if p.LockFile != "" {
		return p.LockFile
	}
	return "poetry.lock"
}

func fileDigest(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to hash requirements file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, fmt.Errorf("failed to hash requirements file %s: %w", path, err)
	}
	return h.Sum(nil), nil
}
