package cli

import (
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Inspect derives argument specs from a parameter struct, the Go stand-in
// for a function signature. params must be a struct or a pointer to one.
// Exported fields are read in declaration order:
//
//   - bool fields become toggle flags; `default:"true"` makes the flag store false
//   - fields with a `default` tag become optional flags with that default
//   - other fields become positionals: required, or optional with `nargs:"?"`;
//     slice fields are variadic (`nargs:"+"` unless tagged `nargs:"*"`)
//
// Other tags: `arg` (parameter name, "-" skips the field), `help`,
// `metavar`, `choices` (comma separated) and `short` (one-letter flag).
// Interface-typed fields are treated as strings.
func Inspect(params any) ([]ArgumentSpec, error) {
	t := reflect.TypeOf(params)
	if t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("params must be a struct or a pointer to a struct, got %T", params)
	}

	var specs []ArgumentSpec
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name, skip := paramName(field)
		if skip {
			continue
		}

		kind, err := kindOf(field.Type)
		if err != nil {
			return nil, fmt.Errorf("parameter '%s': %w", name, err)
		}

		spec := ArgumentSpec{
			Name:    name,
			Kind:    kind,
			Help:    field.Tag.Get("help"),
			Metavar: field.Tag.Get("metavar"),
			Nargs:   Nargs(field.Tag.Get("nargs")),
		}
		if choices := field.Tag.Get("choices"); choices != "" {
			spec.Choices = strings.Split(choices, ",")
		}

		rawDefault, hasDefault := field.Tag.Lookup("default")
		switch {
		case kind == Bool:
			spec.Flags = []string{"--" + FlagName(name)}
			spec.Action = StoreTrue
			spec.Default = false
			if rawDefault == "true" {
				spec.Action = StoreFalse
				spec.Default = true
			}
		case hasDefault:
			spec.Flags = []string{"--" + FlagName(name)}
			def, err := convert(kind, rawDefault)
			if err != nil {
				return nil, fmt.Errorf("parameter '%s': invalid default %q: %w", name, rawDefault, err)
			}
			spec.Default = def
		default:
			if kind.IsSlice() && spec.Nargs == NargsOne {
				spec.Nargs = NargsOneOrMore
			}
			spec.Required = spec.Nargs == NargsOne || spec.Nargs == NargsOneOrMore
			spec.Default = zeroValue(kind)
		}

		if short := field.Tag.Get("short"); short != "" {
			if spec.Positional() {
				return nil, fmt.Errorf("parameter '%s': positional arguments cannot have a short flag", name)
			}
			spec.Flags = append(spec.Flags, "-"+short)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// paramName returns the parameter name of a struct field.
func paramName(field reflect.StructField) (string, bool) {
	if tag := field.Tag.Get("arg"); tag != "" {
		if tag == "-" {
			return "", true
		}
		return tag, false
	}
	return snakeCase(field.Name), false
}

func kindOf(t reflect.Type) (Kind, error) {
	if t == durationType {
		return Duration, nil
	}
	switch t.Kind() {
	case reflect.String, reflect.Interface:
		return String, nil
	case reflect.Int:
		return Int, nil
	case reflect.Int64:
		return Int64, nil
	case reflect.Float64:
		return Float, nil
	case reflect.Bool:
		return Bool, nil
	case reflect.Slice:
		switch t.Elem().Kind() {
		case reflect.String:
			return StringSlice, nil
		case reflect.Int:
			return IntSlice, nil
		}
	}
	return 0, fmt.Errorf("unsupported type %s", t)
}

// snakeCase converts a Go field name to a parameter name: "NoCache" becomes
// "no_cache" and "VMName" becomes "vm_name".
func snakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) ||
				(i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
