package commands

import (
	"io/fs"
	"path/filepath"
	"time"

	"github.com/concave-dev/toolscripts/cli"
	"github.com/concave-dev/toolscripts/cmd/tools/display"
	"github.com/concave-dev/toolscripts/internal/config"
	"github.com/concave-dev/toolscripts/internal/validate"
	"github.com/concave-dev/toolscripts/virtualenv"
)

type venvListParams struct {
	Output string `default:"table" short:"o" help:"Output format" choices:"table,json"`
}

type venvCreateParams struct {
	Name               string   `help:"Name of the virtualenv"`
	Requirements       []string `nargs:"*" metavar:"REQUIREMENT" help:"Requirements to install"`
	RequirementsFile   []string `default:"" metavar:"PATH" help:"Requirements file to install, may be repeated"`
	Python             string   `default:"python3" help:"Interpreter used to create the virtualenv"`
	SystemSitePackages bool     `help:"Give the virtualenv access to the system site-packages"`
}

type venvRemoveParams struct {
	Names []string `nargs:"*" metavar:"NAME" help:"Virtualenvs to remove"`
	All   bool     `help:"Remove every cached virtualenv"`
}

// RegisterVenv is the tools module managing the virtualenv cache.
func RegisterVenv(reg *cli.Registry) error {
	g, err := reg.Group(cli.GroupDef{
		Name: "venv",
		Help: "Manage cached virtualenvs",
		Description: `Manage the virtualenvs cached under TOOLS_SCRIPTS_PATH/.tools-venvs.

Commands and groups declaring a virtualenv create them on first use; these
commands inspect and prune the cache.`,
	})
	if err != nil {
		return err
	}

	if _, err := g.Command(cli.CommandDef{
		Name:   "ls",
		Help:   "List cached virtualenvs",
		Params: venvListParams{},
		Run:    listVenvs,
	}); err != nil {
		return err
	}

	if _, err := g.Command(cli.CommandDef{
		Name:   "create",
		Help:   "Create a virtualenv and install requirements into it",
		Params: venvCreateParams{},
		Arguments: map[string]cli.ArgumentOptions{
			"requirements_file": {Action: cli.Append, Flags: []string{"--requirements-file", "-r"}},
		},
		Run: createVenv,
	}); err != nil {
		return err
	}

	_, err = g.Command(cli.CommandDef{
		Name:   "rm",
		Help:   "Remove cached virtualenvs",
		Params: venvRemoveParams{},
		Run:    removeVenvs,
	})
	return err
}

func listVenvs(ctx *cli.Context, args *cli.Args) error {
	var p venvListParams
	if err := args.Bind(&p); err != nil {
		return err
	}

	entries, err := virtualenv.List(venvsDir(ctx))
	if err != nil {
		return err
	}
	rows := make([]display.VirtualEnv, 0, len(entries))
	for _, e := range entries {
		size, modified := dirUsage(e.Dir)
		rows = append(rows, display.VirtualEnv{
			Name:      e.Name,
			Path:      e.Dir,
			Healthy:   e.Healthy,
			CacheKey:  e.CacheKey,
			SizeBytes: size,
			Modified:  modified,
		})
	}
	return display.VirtualEnvs(ctx.Stdout(), rows, p.Output)
}

func createVenv(ctx *cli.Context, args *cli.Args) error {
	var p venvCreateParams
	if err := args.Bind(&p); err != nil {
		return err
	}
	if err := validate.ValidateField(p.Name, "required,excludesall=/\\"); err != nil {
		return ctx.Exit(1, "Invalid virtualenv name '"+p.Name+"'")
	}

	cfg := virtualenv.Config{
		Name:               p.Name,
		Python:             p.Python,
		SystemSitePackages: p.SystemSitePackages,
	}
	if len(p.Requirements) > 0 || len(p.RequirementsFile) > 0 {
		cfg.Requirements = virtualenv.Pip{Requirements: p.Requirements, RequirementsFiles: absPaths(ctx.RepoRoot(), p.RequirementsFile)}
	}

	return ctx.VirtualEnv(cfg, func(venv *virtualenv.VirtualEnv) error {
		ctx.Info("Virtualenv(%s) is ready in %s", venv.Name(), venv.Dir())
		return nil
	})
}

func removeVenvs(ctx *cli.Context, args *cli.Args) error {
	var p venvRemoveParams
	if err := args.Bind(&p); err != nil {
		return err
	}
	dir := venvsDir(ctx)

	names := p.Names
	if p.All {
		entries, err := virtualenv.List(dir)
		if err != nil {
			return err
		}
		names = names[:0]
		for _, e := range entries {
			names = append(names, e.Name)
		}
	} else if len(names) == 0 {
		return ctx.Exit(1, "Pass the virtualenv names to remove or --all")
	}

	failed := 0
	for _, name := range names {
		if err := virtualenv.Remove(dir, name); err != nil {
			ctx.Error("%v", err)
			failed++
			continue
		}
		ctx.Info("Removed virtualenv(%s)", name)
	}
	if failed > 0 {
		return ctx.Exit(1, "")
	}
	return nil
}

// venvsDir returns the cache directory of the invocation.
func venvsDir(ctx *cli.Context) string {
	if dir := ctx.VenvsDir(); dir != "" {
		return dir
	}
	return filepath.Join(ctx.RepoRoot(), config.DefaultVenvsDirName)
}

// dirUsage returns the total size of the files under dir and the latest
// modification time seen.
func dirUsage(dir string) (int64, time.Time) {
	var size int64
	var latest time.Time
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			size += info.Size()
		}
		if info.ModTime().After(latest) {
			latest = info.ModTime()
		}
		return nil
	})
	return size, latest
}

func absPaths(root string, paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if !filepath.IsAbs(p) {
			p = filepath.Join(root, p)
		}
		out = append(out, p)
	}
	return out
}
