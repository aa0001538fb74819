package cli

import (
	"errors"
	"testing"

	"github.com/concave-dev/toolscripts/virtualenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(*Context, *Args) error { return nil }

func TestRegistryGroups(t *testing.T) {
	reg := NewRegistry()
	vm := reg.MustGroup(GroupDef{Name: "vm", Help: "Virtual machines"})
	reg.MustGroup(GroupDef{Name: "docs", Help: "Documentation"})
	reg.MustGroup(GroupDef{Name: "disk", Help: "Disks", Parent: []string{"vm"}})

	var names []string
	for _, g := range reg.Groups() {
		names = append(names, g.Name())
	}
	assert.Equal(t, []string{"vm", "docs", "disk"}, names)

	g, ok := reg.LookupGroup("disk")
	require.True(t, ok)
	assert.Equal(t, []string{"vm", "disk"}, g.Path())
	assert.Equal(t, "Virtual machines", vm.Help())
	assert.Equal(t, "tools", reg.Program())
}

func TestRegistryConflicts(t *testing.T) {
	reg := NewRegistry()
	vm := reg.MustGroup(GroupDef{Name: "vm"})
	vm.MustCommand(CommandDef{Name: "create", Run: noop})

	_, err := reg.Group(GroupDef{Name: "vm"})
	var conflict *SpecConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "group", conflict.Kind)

	_, err = vm.Command(CommandDef{Name: "create", Run: noop})
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "command", conflict.Kind)
	assert.Equal(t, "tools vm", conflict.Scope)

	// The same command name in another group is fine
	docs := reg.MustGroup(GroupDef{Name: "docs"})
	_, err = docs.Command(CommandDef{Name: "create", Run: noop})
	assert.NoError(t, err)

	err = reg.RegisterModule("mod", func(*Registry) error { return nil }, nil)
	require.NoError(t, err)
	err = reg.RegisterModule("mod", func(*Registry) error { return nil }, nil)
	assert.True(t, errors.As(err, &conflict))
}

func TestRegistryInvalidDefinitions(t *testing.T) {
	reg := NewRegistry()
	g := reg.MustGroup(GroupDef{Name: "vm"})

	tests := []struct {
		name string
		fn   func() error
	}{
		{"group name", func() error { _, err := reg.Group(GroupDef{Name: "Bad Name"}); return err }},
		{"parent name", func() error { _, err := reg.Group(GroupDef{Name: "ok", Parent: []string{"-x"}}); return err }},
		{"command name", func() error { _, err := g.Command(CommandDef{Name: "", Run: noop}); return err }},
		{"no handler", func() error { _, err := g.Command(CommandDef{Name: "run"}); return err }},
		{"params and specs", func() error {
			_, err := g.Command(CommandDef{Name: "both", Params: createParams{}, Specs: []ArgumentSpec{{Name: "x"}}, Run: noop})
			return err
		}},
		{"bad param name", func() error {
			_, err := g.Command(CommandDef{Name: "p", Specs: []ArgumentSpec{{Name: "bad-name"}}, Run: noop})
			return err
		}},
		{"bad flag", func() error {
			_, err := g.Command(CommandDef{Name: "f", Specs: []ArgumentSpec{{Name: "x", Flags: []string{"-long"}}}, Run: noop})
			return err
		}},
		{"positional action", func() error {
			_, err := g.Command(CommandDef{Name: "a", Specs: []ArgumentSpec{{Name: "x", Action: Count}}, Run: noop})
			return err
		}},
		{"slice positional without nargs", func() error {
			_, err := g.Command(CommandDef{Name: "s", Specs: []ArgumentSpec{{Name: "x", Kind: StringSlice}}, Run: noop})
			return err
		}},
		{"flag nargs", func() error {
			_, err := g.Command(CommandDef{Name: "n", Specs: []ArgumentSpec{{Name: "x", Flags: []string{"--x"}, Nargs: NargsOptional}}, Run: noop})
			return err
		}},
		{"default kind mismatch", func() error {
			_, err := g.Command(CommandDef{Name: "d", Specs: []ArgumentSpec{{Name: "x", Flags: []string{"--x"}, Kind: Int, Default: true}}, Run: noop})
			return err
		}},
		{"module without function", func() error { return reg.RegisterModule("m", nil, nil) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.fn())
		})
	}
}

func TestRegistryDuplicateArgument(t *testing.T) {
	g := NewRegistry().MustGroup(GroupDef{Name: "vm"})
	_, err := g.Command(CommandDef{
		Name:  "create",
		Specs: []ArgumentSpec{{Name: "name"}, {Name: "name", Flags: []string{"--name"}}},
		Run:   noop,
	})
	var conflict *SpecConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "argument", conflict.Kind)
	assert.Equal(t, "tools vm create", conflict.Scope)
}

func TestRegistryBindingError(t *testing.T) {
	g := NewRegistry().MustGroup(GroupDef{Name: "vm"})
	_, err := g.Command(CommandDef{
		Name:      "create",
		Params:    createParams{},
		Arguments: map[string]ArgumentOptions{"zone": {Help: "no such parameter"}},
		Run:       noop,
	})
	var be *BindingError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "zone", be.Param)
	assert.Equal(t, "tools vm create", be.Command)
}

func TestRegistryFrozen(t *testing.T) {
	reg := NewRegistry()
	g := reg.MustGroup(GroupDef{Name: "vm"})
	_, err := reg.Build()
	require.NoError(t, err)
	assert.True(t, reg.Frozen())

	_, err = reg.Group(GroupDef{Name: "other"})
	assert.ErrorIs(t, err, ErrRegistryFrozen)
	_, err = g.Command(CommandDef{Name: "late", Run: noop})
	assert.ErrorIs(t, err, ErrRegistryFrozen)
	assert.ErrorIs(t, reg.RegisterModule("m", func(*Registry) error { return nil }, nil), ErrRegistryFrozen)
	assert.ErrorIs(t, reg.SetDefaultRequirements(&virtualenv.Pip{}), ErrRegistryFrozen)
	assert.ErrorIs(t, reg.SetDefaultVirtualEnv(virtualenv.Config{}), ErrRegistryFrozen)
}

func TestRegistryVirtualEnvNames(t *testing.T) {
	reg := NewRegistry()
	g := reg.MustGroup(GroupDef{Name: "docs", VirtualEnv: &virtualenv.Config{}})
	c := g.MustCommand(CommandDef{Name: "build", Run: noop})
	own := g.MustCommand(CommandDef{Name: "lint", VirtualEnv: &virtualenv.Config{}, Run: noop})
	require.NoError(t, reg.SetDefaultVirtualEnv(virtualenv.Config{}))

	assert.Equal(t, "docs", c.virtualEnvConfig().Name)
	assert.Equal(t, "lint", own.virtualEnvConfig().Name)
	assert.Equal(t, "default", reg.defaultVenv.Name)
	assert.True(t, reg.defaultVenv.AddAsExtraSitePackages)
}

func TestCommandHelpFromDescription(t *testing.T) {
	g := NewRegistry().MustGroup(GroupDef{Name: "vm"})
	c := g.MustCommand(CommandDef{
		Name:        "create",
		Description: "Create a virtual machine.\n\nThe machine starts stopped.",
		Run:         noop,
	})
	assert.Equal(t, "Create a virtual machine.", c.Help())
}

func TestLookup(t *testing.T) {
	reg := NewRegistry()
	reg.MustGroup(GroupDef{Name: "vm"}).MustCommand(CommandDef{Name: "create", Run: noop})

	c, ok := reg.Lookup("vm", "create")
	require.True(t, ok)
	assert.Equal(t, "create", c.Name())
	assert.Equal(t, "vm", c.Group().Name())

	_, ok = reg.Lookup("vm", "delete")
	assert.False(t, ok)
	_, ok = reg.Lookup("nope", "create")
	assert.False(t, ok)
}
