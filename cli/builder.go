package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/concave-dev/toolscripts/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const commandsGroupID = "commands"

var negativeNumber = regexp.MustCompile(`^-[0-9]+(\.[0-9]+)?$`)

// Parser turns argument vectors into invocations using the command tree
// generated from a frozen Registry.
type Parser struct {
	reg    *Registry
	out    io.Writer
	errOut io.Writer
}

// Invocation is a parsed command line that selected a command.
type Invocation struct {
	Command *Command
	Args    *Args
	Options Options
}

// parseState collects what the cobra RunE functions saw during one parse.
type parseState struct {
	globals   globalFlags
	inv       *Invocation
	noCommand *cobra.Command
}

// Build validates the registry, generates the command tree once to check it
// and freezes the registry. Builds after the first one produce the same
// tree.
func (r *Registry) Build() (*Parser, error) {
	p := &Parser{reg: r, out: os.Stdout, errOut: os.Stderr}
	if _, err := p.tree(&parseState{}); err != nil {
		return nil, err
	}
	r.frozen = true
	return p, nil
}

// SetOutput redirects help and usage output.
func (p *Parser) SetOutput(out, errOut io.Writer) {
	p.out, p.errOut = out, errOut
}

// Help returns the root help text.
func (p *Parser) Help() string {
	var buf bytes.Buffer
	root, err := p.tree(&parseState{})
	if err != nil {
		return err.Error()
	}
	root.SetOut(&buf)
	root.Help()
	return buf.String()
}

// CommandHelp returns the help text of the command at path, e.g.
// ["vm", "create"].
func (p *Parser) CommandHelp(path ...string) (string, error) {
	root, err := p.tree(&parseState{})
	if err != nil {
		return "", err
	}
	cmd, rest, err := root.Find(path)
	if err != nil || len(rest) > 0 {
		return "", fmt.Errorf("unknown command %q", strings.Join(path, " "))
	}
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.Help()
	return buf.String(), nil
}

// Parse parses argv (without the program name). It returns ErrHelp when help
// or version output was printed, ErrNoCommand (after printing help) when no
// command was selected, and a *UsageError for invalid input.
func (p *Parser) Parse(argv []string) (*Invocation, error) {
	state := &parseState{}
	root, err := p.tree(state)
	if err != nil {
		return nil, err
	}
	if argv == nil {
		argv = []string{}
	}
	root.SetArgs(passNegativeNumbers(root, argv))

	cmd, err := root.ExecuteC()
	if err != nil {
		usage := ""
		if cmd != nil {
			usage = cmd.UsageString()
		}
		return nil, &UsageError{Err: err, Usage: usage}
	}

	switch {
	case state.inv != nil:
		state.inv.Options = state.globals.options()
		return state.inv, nil
	case state.noCommand != nil:
		state.noCommand.Help()
		return nil, ErrNoCommand
	default:
		return nil, ErrHelp
	}
}

// passNegativeNumbers lets tokens such as "-5" reach a command as
// positionals when none of its flags has a digit shorthand. The command's
// positionals are moved behind "--" so pflag does not read them as
// shorthand flags; flags and their values keep their order.
func passNegativeNumbers(root *cobra.Command, argv []string) []string {
	if !slices.ContainsFunc(argv, negativeNumber.MatchString) {
		return argv
	}
	cmd, _, err := root.Find(argv)
	if err != nil || !cmd.HasParent() || cmd.HasSubCommands() {
		return argv
	}
	cmd.InheritedFlags()
	fs := cmd.Flags()
	digitShort := false
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Shorthand != "" && f.Shorthand[0] >= '0' && f.Shorthand[0] <= '9' {
			digitShort = true
		}
	})
	if digitShort {
		return argv
	}

	depth := 0
	for c := cmd; c.HasParent(); c = c.Parent() {
		depth++
	}

	var head, positionals []string
scan:
	for i := 0; i < len(argv); i++ {
		tok := argv[i]
		switch {
		case tok == "--":
			positionals = append(positionals, argv[i+1:]...)
			break scan
		case negativeNumber.MatchString(tok):
			positionals = append(positionals, tok)
		case tok == "-" || !strings.HasPrefix(tok, "-"):
			// Leading plain tokens are the command path
			if depth > 0 {
				head = append(head, tok)
				depth--
				continue
			}
			positionals = append(positionals, tok)
		default:
			head = append(head, tok)
			if takesValue(fs, tok) && i+1 < len(argv) {
				i++
				head = append(head, argv[i])
			}
		}
	}
	return append(append(head, "--"), positionals...)
}

// takesValue reports whether the flag token tok consumes the next token.
func takesValue(fs *pflag.FlagSet, tok string) bool {
	if name, ok := strings.CutPrefix(tok, "--"); ok {
		if strings.Contains(name, "=") {
			return false
		}
		f := fs.Lookup(string(normalizeFlagName(fs, name)))
		return f != nil && f.NoOptDefVal == ""
	}
	cluster := tok[1:]
	for j := 0; j < len(cluster); j++ {
		f := fs.ShorthandLookup(cluster[j : j+1])
		if f == nil {
			return false
		}
		if f.NoOptDefVal == "" {
			// The value is the rest of the cluster or, at its end, the next token
			return j == len(cluster)-1
		}
	}
	return false
}

// tree generates a fresh cobra command tree bound to state.
func (p *Parser) tree(state *parseState) (*cobra.Command, error) {
	r := p.reg
	cobra.EnableCommandSorting = false

	long := r.description
	if r.epilog != "" {
		long += "\n\n" + r.epilog
	}
	root := &cobra.Command{
		Use:               r.program,
		Short:             r.description,
		Long:              long,
		Version:           version.ToolsVersion,
		SilenceErrors:     true,
		SilenceUsage:      true,
		Args:              cobra.NoArgs,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return validateGlobalFlags(&state.globals)
		},
		RunE: func(c *cobra.Command, _ []string) error {
			state.noCommand = c
			return nil
		},
	}
	root.SetOut(p.out)
	root.SetErr(p.errOut)
	root.SetVersionTemplate("{{.Version}}\n")
	root.AddGroup(&cobra.Group{ID: commandsGroupID, Title: "Commands:"})
	root.PersistentFlags().SortFlags = false
	root.Flags().SortFlags = false
	setupGlobalFlags(root, &state.globals)

	groupCmds := make(map[string]*cobra.Command, len(r.order))
	for _, g := range r.order {
		gc := &cobra.Command{
			Use:     FlagName(g.name),
			Short:   g.help,
			Long:    g.description,
			GroupID: commandsGroupID,
			Args:    cobra.NoArgs,
			RunE: func(c *cobra.Command, _ []string) error {
				state.noCommand = c
				return nil
			},
		}
		gc.AddGroup(&cobra.Group{ID: commandsGroupID, Title: "Commands:"})
		gc.Flags().SortFlags = false

		for _, cmd := range g.order {
			cc, err := commandTree(cmd, state)
			if err != nil {
				return nil, err
			}
			gc.AddCommand(cc)
		}
		groupCmds[g.name] = gc
	}

	for _, g := range r.order {
		parent := root
		if len(g.parent) > 0 {
			pg, ok := r.groups[g.parent[len(g.parent)-1]]
			if !ok || !slices.Equal(pg.Path(), g.parent) {
				return nil, &SpecConflictError{
					Kind:   "group",
					Name:   g.name,
					Scope:  r.program,
					Reason: fmt.Sprintf("parent '%s' does not resolve to a registered group path", strings.Join(g.parent, " ")),
				}
			}
			parent = groupCmds[pg.name]
		}
		parent.AddCommand(groupCmds[g.name])
	}
	return root, nil
}

// commandTree generates the cobra command for cmd.
func commandTree(cmd *Command, state *parseState) (*cobra.Command, error) {
	scope := cmd.group.scope() + " " + cmd.name
	if err := checkLayout(cmd.specs, scope); err != nil {
		return nil, err
	}

	cc := &cobra.Command{
		Use:     useLine(cmd),
		Short:   cmd.help,
		Long:    longHelp(cmd),
		GroupID: commandsGroupID,
		Args:    positionalArgs(cmd.specs),
	}
	fs := cc.Flags()
	fs.SortFlags = false

	getters := make(map[string]func() any, len(cmd.specs))
	for _, s := range cmd.specs {
		if s.Positional() {
			continue
		}
		get, err := declareFlag(cc, s)
		if err != nil {
			return nil, fmt.Errorf("command '%s': %w", scope, err)
		}
		getters[s.Name] = get
	}

	cc.RunE = func(c *cobra.Command, args []string) error {
		values := make(map[string]any, len(cmd.specs))
		for name, get := range getters {
			values[name] = get()
		}
		if err := bindPositionals(cmd.specs, args, values); err != nil {
			return err
		}
		if err := checkChoices(cmd.specs, values, c.Flags()); err != nil {
			return err
		}
		state.inv = &Invocation{Command: cmd, Args: newArgs(cmd.specs, values)}
		return nil
	}
	return cc, nil
}

// checkLayout rejects flag collisions and positional layouts that cannot be
// parsed unambiguously.
func checkLayout(specs []ArgumentSpec, scope string) error {
	taken := make(map[string]string)
	for _, name := range globalFlagNames {
		taken[name] = "global flag"
	}

	sawOptional := false
	sawVariadic := false
	for _, s := range specs {
		if s.Positional() {
			if sawVariadic {
				return &SpecConflictError{Kind: "positional", Name: s.Name, Scope: scope, Reason: "cannot follow a variadic positional"}
			}
			required := s.Nargs == NargsOne || s.Nargs == NargsOneOrMore
			if required && sawOptional {
				return &SpecConflictError{Kind: "positional", Name: s.Name, Scope: scope, Reason: "required positional cannot follow an optional one"}
			}
			if !required {
				sawOptional = true
			}
			if s.Nargs.Variadic() {
				sawVariadic = true
			}
			continue
		}

		names := []string{s.LongFlag()}
		if short := s.ShortFlag(); short != "" {
			names = append(names, short)
		}
		longs := 0
		for _, f := range s.Flags {
			if strings.HasPrefix(f, "--") {
				longs++
			}
		}
		if longs > 1 {
			return &SpecConflictError{Kind: "flag", Name: s.Name, Scope: scope, Reason: "only one long flag spelling is supported"}
		}
		for _, name := range names {
			if owner, ok := taken[name]; ok {
				return &SpecConflictError{Kind: "flag", Name: flagSpelling(name), Scope: scope, Reason: "already used by " + owner}
			}
			taken[name] = "argument '" + s.Name + "'"
		}
	}
	return nil
}

func flagSpelling(name string) string {
	if len(name) == 1 {
		return "-" + name
	}
	return "--" + name
}

// declareFlag adds the pflag declaration for s to cc and returns a getter for
// the parsed value.
func declareFlag(cc *cobra.Command, s ArgumentSpec) (func() any, error) {
	fs := cc.Flags()
	long, short := s.LongFlag(), s.ShortFlag()
	usage := s.Help
	if s.Metavar != "" {
		usage = strings.TrimSpace(usage + " (`" + s.Metavar + "`)")
	}
	if len(s.Choices) > 0 {
		usage = strings.TrimSpace(usage + " {" + strings.Join(s.Choices, ",") + "}")
	}

	var get func() any
	switch {
	case s.Action == Count:
		p := fs.CountP(long, short, usage)
		get = func() any { return *p }
	case s.Action == StoreTrue:
		p := fs.BoolP(long, short, false, usage)
		get = func() any { return *p }
	case s.Action == StoreFalse:
		v := &storeFalseValue{val: true}
		f := fs.VarPF(v, long, short, usage)
		f.NoOptDefVal = "true"
		get = func() any { return v.val }
	default:
		switch s.Kind {
		case String:
			p := fs.StringP(long, short, s.Default.(string), usage)
			get = func() any { return *p }
		case Int:
			p := fs.IntP(long, short, s.Default.(int), usage)
			get = func() any { return *p }
		case Int64:
			p := fs.Int64P(long, short, s.Default.(int64), usage)
			get = func() any { return *p }
		case Float:
			p := fs.Float64P(long, short, s.Default.(float64), usage)
			get = func() any { return *p }
		case Bool:
			p := fs.BoolP(long, short, s.Default.(bool), usage)
			get = func() any { return *p }
		case Duration:
			p := fs.DurationP(long, short, s.Default.(time.Duration), usage)
			get = func() any { return *p }
		case StringSlice:
			var p *[]string
			if s.Action == Append {
				p = fs.StringArrayP(long, short, s.Default.([]string), usage)
			} else {
				p = fs.StringSliceP(long, short, s.Default.([]string), usage)
			}
			get = func() any { return slices.Clone(*p) }
		case IntSlice:
			p := fs.IntSliceP(long, short, s.Default.([]int), usage)
			get = func() any { return slices.Clone(*p) }
		default:
			return nil, fmt.Errorf("argument '%s': unsupported kind %s", s.Name, s.Kind)
		}
	}

	if s.Hidden {
		if err := fs.MarkHidden(long); err != nil {
			return nil, err
		}
	}
	if s.Required {
		if err := cc.MarkFlagRequired(long); err != nil {
			return nil, err
		}
	}
	return get, nil
}

// storeFalseValue is a bool flag whose presence sets false.
type storeFalseValue struct {
	val bool
}

func (v *storeFalseValue) String() string { return strconv.FormatBool(v.val) }

func (v *storeFalseValue) Set(s string) error {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	v.val = !b
	return nil
}

func (v *storeFalseValue) Type() string { return "bool" }

// positionalArgs validates the positional argument count.
func positionalArgs(specs []ArgumentSpec) cobra.PositionalArgs {
	var required []string
	maxArgs, unlimited := 0, false
	for _, s := range specs {
		if !s.Positional() {
			continue
		}
		switch s.Nargs {
		case NargsOne:
			required = append(required, s.DisplayName())
			maxArgs++
		case NargsOptional:
			maxArgs++
		case NargsZeroOrMore:
			unlimited = true
		case NargsOneOrMore:
			required = append(required, s.DisplayName())
			unlimited = true
		}
	}
	return func(_ *cobra.Command, args []string) error {
		if len(args) < len(required) {
			return fmt.Errorf("the following arguments are required: %s", strings.Join(required[len(args):], ", "))
		}
		if !unlimited && len(args) > maxArgs {
			return fmt.Errorf("unrecognized arguments: %s", strings.Join(args[maxArgs:], " "))
		}
		return nil
	}
}

// bindPositionals converts positional values in declaration order.
// positionalArgs already checked the count.
func bindPositionals(specs []ArgumentSpec, args []string, values map[string]any) error {
	var positionals []ArgumentSpec
	for _, s := range specs {
		if s.Positional() {
			positionals = append(positionals, s)
		}
	}

	remaining := args
	for i, s := range positionals {
		needed := 0
		for _, later := range positionals[i+1:] {
			if later.Nargs == NargsOne || later.Nargs == NargsOneOrMore {
				needed++
			}
		}

		switch s.Nargs {
		case NargsOne:
			v, err := convertArg(s, remaining[0])
			if err != nil {
				return err
			}
			values[s.Name] = v
			remaining = remaining[1:]
		case NargsOptional:
			if len(remaining) > needed {
				v, err := convertArg(s, remaining[0])
				if err != nil {
					return err
				}
				values[s.Name] = v
				remaining = remaining[1:]
			} else {
				values[s.Name] = s.Default
			}
		default:
			take := len(remaining) - needed
			v, err := convertMany(s, remaining[:take])
			if err != nil {
				return err
			}
			if take == 0 {
				v = s.Default
			}
			values[s.Name] = v
			remaining = remaining[take:]
		}
	}
	return nil
}

func convertArg(s ArgumentSpec, raw string) (any, error) {
	v, err := convert(s.Kind, raw)
	if err != nil {
		return nil, fmt.Errorf("argument %s: invalid %s value: %q", s.DisplayName(), s.Kind, raw)
	}
	return v, nil
}

func convertMany(s ArgumentSpec, raws []string) (any, error) {
	switch s.Kind {
	case IntSlice:
		out := make([]int, 0, len(raws))
		for _, raw := range raws {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("argument %s: invalid int value: %q", s.DisplayName(), raw)
			}
			out = append(out, n)
		}
		return out, nil
	default:
		return slices.Clone(raws), nil
	}
}

// checkChoices rejects values outside an argument's choices. Flags are only
// checked when given on the command line.
func checkChoices(specs []ArgumentSpec, values map[string]any, fs *pflag.FlagSet) error {
	for _, s := range specs {
		if len(s.Choices) == 0 {
			continue
		}
		if !s.Positional() {
			if f := fs.Lookup(s.LongFlag()); f == nil || !f.Changed {
				continue
			}
		}
		var items []string
		switch v := values[s.Name].(type) {
		case []string:
			items = v
		case []int:
			for _, n := range v {
				items = append(items, strconv.Itoa(n))
			}
		default:
			items = []string{formatValue(v)}
		}
		for _, item := range items {
			if !slices.Contains(s.Choices, item) {
				return fmt.Errorf("argument %s: invalid choice: %q (choose from %s)",
					displayArg(s), item, strings.Join(s.Choices, ", "))
			}
		}
	}
	return nil
}

func displayArg(s ArgumentSpec) string {
	if s.Positional() {
		return s.DisplayName()
	}
	return "--" + s.LongFlag()
}

// useLine renders "create NAME [TAGS...]".
func useLine(cmd *Command) string {
	parts := []string{FlagName(cmd.name)}
	for _, s := range cmd.specs {
		if !s.Positional() {
			continue
		}
		switch s.Nargs {
		case NargsOne:
			parts = append(parts, s.DisplayName())
		case NargsOptional:
			parts = append(parts, "["+s.DisplayName()+"]")
		case NargsZeroOrMore:
			parts = append(parts, "["+s.DisplayName()+"...]")
		case NargsOneOrMore:
			parts = append(parts, s.DisplayName()+"...")
		}
	}
	return strings.Join(parts, " ")
}

// longHelp appends an Arguments section describing positionals.
func longHelp(cmd *Command) string {
	var rows [][2]string
	width := 0
	for _, s := range cmd.specs {
		if s.Positional() {
			rows = append(rows, [2]string{s.DisplayName(), s.Help})
			width = max(width, len(s.DisplayName()))
		}
	}
	if len(rows) == 0 {
		return cmd.description
	}
	var b strings.Builder
	b.WriteString(cmd.description)
	b.WriteString("\n\nArguments:\n")
	for _, row := range rows {
		fmt.Fprintf(&b, "  %-*s   %s\n", width, row[0], row[1])
	}
	return strings.TrimRight(b.String(), "\n")
}
