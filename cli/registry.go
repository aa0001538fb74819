// Package cli turns declaratively registered command groups and commands into
// a cobra command tree and dispatches one invocation to its handler.
//
// REGISTRATION:
// A host creates a Registry, defines groups with Group and commands with
// Group.Command. A command's arguments come either from an explicit
// []ArgumentSpec table or from a parameter struct run through Inspect, with
// per-argument overrides merged on top. Tools modules registered with
// RegisterModule are loaded by the dispatcher before the parser is built; a
// failing module is reported and skipped.
//
// LIFECYCLE:
//   - Registration: groups, commands, modules, defaults (mutable)
//   - Build: the registry freezes and a cobra tree is generated
//   - Dispatch: Idle → Resolved → Executing → Completed | Failed
//
// Handlers receive a *Context for logging, subprocesses, directory changes,
// HTTP access and virtualenvs, and an *Args holding the bound values.
package cli

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/concave-dev/toolscripts/internal/config"
	"github.com/concave-dev/toolscripts/internal/validate"
	"github.com/concave-dev/toolscripts/virtualenv"
)

// HandlerFunc runs a command.
type HandlerFunc func(ctx *Context, args *Args) error

// ModuleFunc registers the groups and commands of a tools module.
type ModuleFunc func(reg *Registry) error

// GroupDef declares a command group.
type GroupDef struct {
	Name        string
	Help        string
	Description string             // Defaults to Help
	Parent      []string           // Path of parent group names; empty for top level
	VirtualEnv  *virtualenv.Config // Used by commands without their own; Name defaults to the group name
}

// CommandDef declares a command inside a group.
type CommandDef struct {
	Name        string
	Help        string // Defaults to the first line of Description
	Description string
	Params      any                        // Parameter struct passed to Inspect
	Arguments   map[string]ArgumentOptions // Overrides merged onto the derived specs
	Specs       []ArgumentSpec             // Explicit table; exclusive with Params
	VirtualEnv  *virtualenv.Config         // Name defaults to the command name
	Run         HandlerFunc
}

// Registry holds every group, command and tools module of a program.
type Registry struct {
	program     string
	description string
	epilog      string
	groups      map[string]*Group
	order       []*Group
	modules     []*module
	defaultReqs virtualenv.Requirements
	defaultVenv *virtualenv.Config
	frozen      bool
}

type module struct {
	name   string
	fn     ModuleFunc
	venv   *virtualenv.Config
	loaded bool
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithProgramName sets the program name shown in usage output.
func WithProgramName(name string) RegistryOption {
	return func(r *Registry) { r.program = name }
}

// WithDescription sets the root help text.
func WithDescription(text string) RegistryOption {
	return func(r *Registry) { r.description = text }
}

// WithEpilog sets text shown at the end of the root help.
func WithEpilog(text string) RegistryOption {
	return func(r *Registry) { r.epilog = text }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		program:     config.DefaultProgramName,
		description: "Python Tools Scripts",
		groups:      make(map[string]*Group),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Program returns the program name.
func (r *Registry) Program() string { return r.program }

// Frozen reports whether the parser was built.
func (r *Registry) Frozen() bool { return r.frozen }

// Group defines a command group. Group names are unique within the registry.
func (r *Registry) Group(def GroupDef) (*Group, error) {
	if r.frozen {
		return nil, ErrRegistryFrozen
	}
	if err := validate.CommandNameFormat("group", def.Name); err != nil {
		return nil, err
	}
	for _, p := range def.Parent {
		if err := validate.CommandNameFormat("parent group", p); err != nil {
			return nil, err
		}
	}
	if _, exists := r.groups[def.Name]; exists {
		return nil, &SpecConflictError{Kind: "group", Name: def.Name, Scope: r.program, Reason: "already registered"}
	}
	if def.Description == "" {
		def.Description = def.Help
	}

	g := &Group{
		reg:         r,
		name:        def.Name,
		help:        def.Help,
		description: def.Description,
		parent:      slices.Clone(def.Parent),
		commands:    make(map[string]*Command),
	}
	if def.VirtualEnv != nil {
		cfg := *def.VirtualEnv
		if cfg.Name == "" {
			cfg.Name = def.Name
		}
		g.venv = &cfg
	}
	r.groups[def.Name] = g
	r.order = append(r.order, g)
	return g, nil
}

// MustGroup is like Group but panics on error.
func (r *Registry) MustGroup(def GroupDef) *Group {
	g, err := r.Group(def)
	if err != nil {
		panic(err)
	}
	return g
}

// Groups returns the groups in registration order.
func (r *Registry) Groups() []*Group {
	return slices.Clone(r.order)
}

// LookupGroup returns the group with the given name.
func (r *Registry) LookupGroup(name string) (*Group, bool) {
	g, ok := r.groups[name]
	return g, ok
}

// Lookup returns a command by group name and command name.
func (r *Registry) Lookup(group, command string) (*Command, bool) {
	g, ok := r.groups[group]
	if !ok {
		return nil, false
	}
	c, ok := g.commands[command]
	return c, ok
}

// RegisterModule adds a tools module loaded by the dispatcher before the
// parser is built. With venv set, the module runs with that virtualenv
// entered; its Name defaults to the module name.
func (r *Registry) RegisterModule(name string, fn ModuleFunc, venv *virtualenv.Config) error {
	if r.frozen {
		return ErrRegistryFrozen
	}
	if err := validate.ValidateRequiredString(name, "module name"); err != nil {
		return err
	}
	if fn == nil {
		return fmt.Errorf("module '%s' has no registration function", name)
	}
	for _, m := range r.modules {
		if m.name == name {
			return &SpecConflictError{Kind: "module", Name: name, Scope: r.program, Reason: "already registered"}
		}
	}
	m := &module{name: name, fn: fn}
	if venv != nil {
		cfg := *venv
		if cfg.Name == "" {
			cfg.Name = name
		}
		m.venv = &cfg
	}
	r.modules = append(r.modules, m)
	return nil
}

// SetDefaultRequirements sets requirements installed into the host
// interpreter before any module loads.
func (r *Registry) SetDefaultRequirements(reqs virtualenv.Requirements) error {
	if r.frozen {
		return ErrRegistryFrozen
	}
	r.defaultReqs = reqs
	return nil
}

// SetDefaultVirtualEnv sets the virtualenv active while modules load and for
// commands that do not declare one. Its Name defaults to "default".
func (r *Registry) SetDefaultVirtualEnv(cfg virtualenv.Config) error {
	if r.frozen {
		return ErrRegistryFrozen
	}
	if cfg.Name == "" {
		cfg.Name = config.DefaultVenvName
	}
	cfg.AddAsExtraSitePackages = true
	r.defaultVenv = &cfg
	return nil
}

// registrySnapshot records how many groups and commands existed before a
// tools module ran.
type registrySnapshot struct {
	groups   int
	commands map[*Group]int
}

func (r *Registry) snapshot() registrySnapshot {
	snap := registrySnapshot{groups: len(r.order), commands: make(map[*Group]int, len(r.order))}
	for _, g := range r.order {
		snap.commands[g] = len(g.order)
	}
	return snap
}

// restore drops the groups and commands registered after snap was taken.
func (r *Registry) restore(snap registrySnapshot) {
	for _, g := range r.order[snap.groups:] {
		delete(r.groups, g.name)
	}
	r.order = r.order[:snap.groups]
	for g, n := range snap.commands {
		for _, c := range g.order[n:] {
			delete(g.commands, c.name)
		}
		g.order = g.order[:n]
	}
}

// Group is a named collection of commands, one level of the command tree.
type Group struct {
	reg         *Registry
	name        string
	help        string
	description string
	parent      []string
	venv        *virtualenv.Config
	commands    map[string]*Command
	order       []*Command
}

// Name returns the group name.
func (g *Group) Name() string { return g.name }

// Help returns the one-line help.
func (g *Group) Help() string { return g.help }

// Parent returns the parent group path.
func (g *Group) Parent() []string { return slices.Clone(g.parent) }

// Path returns the parent path followed by the group name.
func (g *Group) Path() []string { return append(slices.Clone(g.parent), g.name) }

// Commands returns the commands in registration order.
func (g *Group) Commands() []*Command { return slices.Clone(g.order) }

// Command registers a command in the group.
func (g *Group) Command(def CommandDef) (*Command, error) {
	if g.reg.frozen {
		return nil, ErrRegistryFrozen
	}
	if err := validate.CommandNameFormat("command", def.Name); err != nil {
		return nil, err
	}
	scope := g.scope()
	if _, exists := g.commands[def.Name]; exists {
		return nil, &SpecConflictError{Kind: "command", Name: def.Name, Scope: scope, Reason: "already registered"}
	}
	if def.Run == nil {
		return nil, fmt.Errorf("command '%s %s' has no handler", scope, def.Name)
	}
	if def.Params != nil && def.Specs != nil {
		return nil, fmt.Errorf("command '%s %s': Params and Specs cannot be used together", scope, def.Name)
	}

	derived := cloneSpecs(def.Specs)
	if def.Params != nil {
		var err error
		if derived, err = Inspect(def.Params); err != nil {
			return nil, fmt.Errorf("command '%s %s': %w", scope, def.Name, err)
		}
	}
	specs, err := Merge(derived, def.Arguments)
	if err != nil {
		var be *BindingError
		if errors.As(err, &be) {
			be.Command = scope + " " + def.Name
		}
		return nil, err
	}
	if specs, err = finalizeSpecs(specs, scope+" "+def.Name); err != nil {
		return nil, err
	}

	help := def.Help
	if help == "" && def.Description != "" {
		help = strings.SplitN(strings.TrimSpace(def.Description), "\n", 2)[0]
	}
	description := def.Description
	if description == "" {
		description = help
	}

	c := &Command{
		group:       g,
		name:        def.Name,
		help:        help,
		description: description,
		specs:       specs,
		params:      def.Params,
		run:         def.Run,
	}
	if def.VirtualEnv != nil {
		cfg := *def.VirtualEnv
		if cfg.Name == "" {
			cfg.Name = def.Name
		}
		c.venv = &cfg
	}
	g.commands[def.Name] = c
	g.order = append(g.order, c)
	return c, nil
}

// MustCommand is like Command but panics on error.
func (g *Group) MustCommand(def CommandDef) *Command {
	c, err := g.Command(def)
	if err != nil {
		panic(err)
	}
	return c
}

func (g *Group) scope() string {
	parts := append([]string{g.reg.program}, g.parent...)
	parts = append(parts, g.name)
	for i := range parts {
		parts[i] = FlagName(parts[i])
	}
	return strings.Join(parts, " ")
}

// Command is a registered, invokable command.
type Command struct {
	group       *Group
	name        string
	help        string
	description string
	specs       []ArgumentSpec
	params      any
	venv        *virtualenv.Config
	run         HandlerFunc
}

// Name returns the command name.
func (c *Command) Name() string { return c.name }

// Help returns the one-line help.
func (c *Command) Help() string { return c.help }

// Group returns the owning group.
func (c *Command) Group() *Group { return c.group }

// Specs returns a copy of the merged argument specs.
func (c *Command) Specs() []ArgumentSpec { return cloneSpecs(c.specs) }

func cloneSpecs(specs []ArgumentSpec) []ArgumentSpec {
	if specs == nil {
		return nil
	}
	out := make([]ArgumentSpec, len(specs))
	for i, s := range specs {
		s.Flags = slices.Clone(s.Flags)
		s.Choices = slices.Clone(s.Choices)
		out[i] = s
	}
	return out
}

// finalizeSpecs validates names and fills derived fields of specs written by
// hand or changed by overrides.
func finalizeSpecs(specs []ArgumentSpec, scope string) ([]ArgumentSpec, error) {
	seen := make(map[string]bool, len(specs))
	for i := range specs {
		s := &specs[i]
		if err := validate.ParamNameFormat(s.Name); err != nil {
			return nil, fmt.Errorf("command '%s': %w", scope, err)
		}
		if seen[s.Name] {
			return nil, &SpecConflictError{Kind: "argument", Name: s.Name, Scope: scope, Reason: "declared more than once"}
		}
		seen[s.Name] = true

		for _, f := range s.Flags {
			if err := validate.FlagFormat(f); err != nil {
				return nil, fmt.Errorf("command '%s': %w", scope, err)
			}
		}
		if s.Positional() {
			if s.Action != Store {
				return nil, fmt.Errorf("command '%s': positional '%s' cannot use action %s", scope, s.Name, s.Action)
			}
			if s.Nargs.Variadic() {
				switch s.Kind {
				case String:
					s.Kind = StringSlice
				case Int:
					s.Kind = IntSlice
				}
			}
			if s.Kind.IsSlice() && !s.Nargs.Variadic() {
				return nil, fmt.Errorf("command '%s': positional '%s' of kind %s needs nargs '*' or '+'", scope, s.Name, s.Kind)
			}
		} else {
			switch s.Action {
			case Count:
				s.Kind = Int
			case StoreTrue, StoreFalse:
				s.Kind = Bool
				if s.Default == nil {
					s.Default = s.Action == StoreFalse
				}
				s.Action = toggleAction(s.Action, s.Default)
			case Append:
				switch s.Kind {
				case String:
					s.Kind = StringSlice
				case Int:
					s.Kind = IntSlice
				}
			}
			if s.Nargs != NargsOne && !s.Kind.IsSlice() {
				return nil, fmt.Errorf("command '%s': flag '%s' cannot use nargs '%s'", scope, s.Name, s.Nargs)
			}
		}

		def, err := normalizeDefault(s.Kind, s.Default)
		if err != nil {
			return nil, fmt.Errorf("command '%s': argument '%s': %w", scope, s.Name, err)
		}
		s.Default = def
	}
	return specs, nil
}
