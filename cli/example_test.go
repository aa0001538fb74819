package cli_test

import (
	"fmt"
	"strings"

	"github.com/concave-dev/toolscripts/cli"
)

type createVM struct {
	Name   string   `help:"Name of the VM"`
	Tags   []string `nargs:"*" help:"Tags to apply"`
	Region string   `default:"us-east-1" short:"r"`
	DryRun bool     `help:"Only print what would happen"`
}

func Example() {
	reg := cli.NewRegistry(cli.WithProgramName("tools"))
	vm := reg.MustGroup(cli.GroupDef{Name: "vm", Help: "Virtual machine commands"})
	vm.MustCommand(cli.CommandDef{
		Name:   "create",
		Help:   "Create a VM",
		Params: createVM{},
		Arguments: map[string]cli.ArgumentOptions{
			"region": {Choices: []string{"us-east-1", "eu-west-1"}},
		},
		Run: func(ctx *cli.Context, args *cli.Args) error {
			var p createVM
			if err := args.Bind(&p); err != nil {
				return err
			}
			ctx.Print(fmt.Sprintf("create %s in %s tags=%s dry-run=%t", p.Name, p.Region, strings.Join(p.Tags, ","), p.DryRun))
			return nil
		},
	})

	d := cli.NewDispatcher(reg)
	code := d.Run([]string{"vm", "create", "web", "frontend", "prod", "-r", "eu-west-1", "--dry-run"})
	fmt.Println("exit", code, d.State())
	// Output:
	// create web in eu-west-1 tags=frontend,prod dry-run=true
	// exit 0 completed
}
