// Package commands provides the built-in tools modules of the tools binary.
//
// MODULES:
//   - venv: list, create and remove cached virtualenvs
//   - pypi: query a package index
//
// Each module is a cli.ModuleFunc registered with RegisterModules; the
// dispatcher loads them before building the parser.
package commands

import (
	"github.com/concave-dev/toolscripts/cli"
	"github.com/concave-dev/toolscripts/internal/config"
	"github.com/concave-dev/toolscripts/virtualenv"
)

// RegisterModules adds the built-in modules to reg.
func RegisterModules(reg *cli.Registry) error {
	if err := reg.RegisterModule("venv", RegisterVenv, nil); err != nil {
		return err
	}
	return reg.RegisterModule("pypi", RegisterPyPI, nil)
}

// ApplyProject sets the default requirements and virtualenv declared in the
// project file. A nil project changes nothing.
func ApplyProject(reg *cli.Registry, project *config.Project) error {
	if project == nil {
		return nil
	}
	if s := project.DefaultRequirements; s != nil {
		if err := reg.SetDefaultRequirements(pipRequirements(*s)); err != nil {
			return err
		}
	}
	if s := project.DefaultVirtualenv; s != nil {
		cfg := virtualenv.Config{
			Name:                  s.Name,
			Env:                   s.Env,
			SystemSitePackages:    s.SystemSitePackages,
			PipRequirement:        s.PipRequirement,
			SetuptoolsRequirement: s.SetuptoolsRequirement,
			Python:                s.Python,
		}
		if reqs := s.Requirements; len(reqs.Requirements) > 0 || len(reqs.RequirementsFiles) > 0 {
			cfg.Requirements = pipRequirements(reqs)
		}
		if err := reg.SetDefaultVirtualEnv(cfg); err != nil {
			return err
		}
	}
	return nil
}

func pipRequirements(s config.RequirementsSection) virtualenv.Pip {
	return virtualenv.Pip{
		Requirements:      s.Requirements,
		RequirementsFiles: s.RequirementsFiles,
		PipArgs:           s.PipArgs,
	}
}
