package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind is the value type an argument converts its input to.
type Kind int

const (
	String Kind = iota
	Int
	Int64
	Float
	Bool
	Duration
	StringSlice
	IntSlice
)

var kindNames = map[Kind]string{
	String:      "string",
	Int:         "int",
	Int64:       "int64",
	Float:       "float",
	Bool:        "bool",
	Duration:    "duration",
	StringSlice: "strings",
	IntSlice:    "ints",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// IsSlice reports whether values of this kind hold several items.
func (k Kind) IsSlice() bool {
	return k == StringSlice || k == IntSlice
}

// Action controls how a flag stores what it parses.
type Action int

const (
	Store      Action = iota // Store the converted value
	StoreTrue                // Presence sets true
	StoreFalse               // Presence sets false
	Append                   // Each occurrence appends one value
	Count                    // Each occurrence increments an int
)

var actionNames = map[Action]string{
	Store:      "store",
	StoreTrue:  "store_true",
	StoreFalse: "store_false",
	Append:     "append",
	Count:      "count",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// Nargs is the number of values a positional argument consumes.
type Nargs string

const (
	NargsOne        Nargs = ""  // Exactly one
	NargsOptional   Nargs = "?" // Zero or one
	NargsZeroOrMore Nargs = "*" // Any number
	NargsOneOrMore  Nargs = "+" // At least one
)

// Variadic reports whether the argument consumes a variable number of values.
func (n Nargs) Variadic() bool {
	return n == NargsZeroOrMore || n == NargsOneOrMore
}

// ArgumentSpec describes one command-line argument bound to a parameter name.
// An argument without flags is positional.
type ArgumentSpec struct {
	Name     string   // Parameter name, the key the value is bound under
	Flags    []string // e.g. "--region", "-r"; empty for positionals
	Metavar  string
	Help     string
	Kind     Kind
	Default  any
	Required bool
	Choices  []string
	Action   Action
	Nargs    Nargs
	Hidden   bool
}

// Positional reports whether the argument is given by position.
func (s ArgumentSpec) Positional() bool {
	return len(s.Flags) == 0
}

// LongFlag returns the first --long spelling, or the name-derived one.
func (s ArgumentSpec) LongFlag() string {
	for _, f := range s.Flags {
		if strings.HasPrefix(f, "--") {
			return strings.TrimPrefix(f, "--")
		}
	}
	return FlagName(s.Name)
}

// ShortFlag returns the -x spelling without the dash, if any.
func (s ArgumentSpec) ShortFlag() string {
	for _, f := range s.Flags {
		if len(f) == 2 && f[0] == '-' && f[1] != '-' {
			return f[1:]
		}
	}
	return ""
}

// DisplayName is the metavar shown in usage lines for positionals.
func (s ArgumentSpec) DisplayName() string {
	if s.Metavar != "" {
		return s.Metavar
	}
	return strings.ToUpper(s.Name)
}

// FlagName converts a parameter name to its flag spelling: underscores
// become hyphens.
func FlagName(name string) string {
	return strings.ReplaceAll(name, "_", "-")
}

// ArgumentOptions overrides parts of a derived ArgumentSpec. Zero values keep
// the derived setting.
type ArgumentOptions struct {
	Help     string
	Flags    []string
	Metavar  string
	Choices  []string
	Action   Action
	Nargs    Nargs
	Required *bool
	Default  any
	Hidden   bool
}

// Required returns a pointer for ArgumentOptions.Required.
func Required(v bool) *bool {
	return &v
}

// convert parses raw into a value of kind k. Slice kinds split on commas.
func convert(k Kind, raw string) (any, error) {
	switch k {
	case String:
		return raw, nil
	case Int:
		return strconv.Atoi(raw)
	case Int64:
		return strconv.ParseInt(raw, 10, 64)
	case Float:
		return strconv.ParseFloat(raw, 64)
	case Bool:
		return strconv.ParseBool(raw)
	case Duration:
		return time.ParseDuration(raw)
	case StringSlice:
		if raw == "" {
			return []string{}, nil
		}
		return strings.Split(raw, ","), nil
	case IntSlice:
		out := []int{}
		if raw == "" {
			return out, nil
		}
		for _, part := range strings.Split(raw, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported kind %s", k)
	}
}

// zeroValue returns the value bound when an argument is absent and has no
// default.
func zeroValue(k Kind) any {
	switch k {
	case Int:
		return 0
	case Int64:
		return int64(0)
	case Float:
		return float64(0)
	case Bool:
		return false
	case Duration:
		return time.Duration(0)
	case StringSlice:
		return []string{}
	case IntSlice:
		return []int{}
	default:
		return ""
	}
}

// normalizeDefault coerces a default value supplied by a command author into
// the Go type used for kind k. Strings are parsed; matching types pass
// through.
func normalizeDefault(k Kind, v any) (any, error) {
	if v == nil {
		return zeroValue(k), nil
	}
	if s, ok := v.(string); ok && k != String {
		return convert(k, s)
	}
	switch k {
	case String:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case Int:
		if n, ok := v.(int); ok {
			return n, nil
		}
	case Int64:
		switch n := v.(type) {
		case int64:
			return n, nil
		case int:
			return int64(n), nil
		}
	case Float:
		switch n := v.(type) {
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		}
	case Bool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case Duration:
		if d, ok := v.(time.Duration); ok {
			return d, nil
		}
	case StringSlice:
		if s, ok := v.([]string); ok {
			return s, nil
		}
	case IntSlice:
		if s, ok := v.([]int); ok {
			return s, nil
		}
	}
	return nil, fmt.Errorf("default %v (%T) does not match kind %s", v, v, k)
}

// formatValue renders a value for choice checks and messages.
func formatValue(v any) string {
	return fmt.Sprint(v)
}
