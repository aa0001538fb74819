// Package main provides the entry point for the tools command runner.
//
// The binary hosts the built-in tools modules and reads the optional
// .tools.yaml project file from the working directory. Projects extend it by
// building their own binary around cli.Registry with extra modules.
//
// INITIALIZATION FLOW:
//  1. Registry creation with the program name and description
//  2. Project file loading (default requirements, default virtualenv)
//  3. Built-in module registration (venv, pypi)
//  4. Dispatch through cli.Main, which exits with the command's status
package main

import (
	"os"

	"github.com/concave-dev/toolscripts/cli"
	"github.com/concave-dev/toolscripts/cmd/tools/commands"
	"github.com/concave-dev/toolscripts/internal/config"
	"github.com/concave-dev/toolscripts/internal/logging"
)

func main() {
	reg := cli.NewRegistry(
		cli.WithProgramName(config.DefaultProgramName),
		cli.WithDescription("Python Tools Scripts"),
		cli.WithEpilog("Set TOOLS_SCRIPTS_PATH to move the virtualenv cache out of the working directory."),
	)

	root, err := os.Getwd()
	if err != nil {
		logging.Error("Failed to determine the working directory: %v", err)
		os.Exit(1)
	}
	project, err := config.LoadProject(root)
	if err != nil {
		logging.Error("%v", err)
		os.Exit(1)
	}
	if err := commands.ApplyProject(reg, project); err != nil {
		logging.Error("%v", err)
		os.Exit(1)
	}
	if err := commands.RegisterModules(reg); err != nil {
		logging.Error("%v", err)
		os.Exit(1)
	}

	cli.Main(reg, cli.WithRepoRoot(root))
}
