package cli

import (
	"fmt"
	"slices"
)

// Merge applies author overrides to derived specs. Unset override fields keep
// the derived values; the result keeps the order of derived. An override for
// a name missing from derived fails with *BindingError.
func Merge(derived []ArgumentSpec, overrides map[string]ArgumentOptions) ([]ArgumentSpec, error) {
	index := make(map[string]int, len(derived))
	for i, spec := range derived {
		index[spec.Name] = i
	}

	// Report unknown keys in a stable order
	keys := make([]string, 0, len(overrides))
	for key := range overrides {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		if _, ok := index[key]; !ok {
			return nil, &BindingError{Param: key}
		}
	}

	merged := make([]ArgumentSpec, len(derived))
	for i, spec := range derived {
		spec.Flags = slices.Clone(spec.Flags)
		spec.Choices = slices.Clone(spec.Choices)
		opt, ok := overrides[spec.Name]
		if ok {
			var err error
			if spec, err = applyOptions(spec, opt); err != nil {
				return nil, err
			}
		}
		merged[i] = spec
	}
	return merged, nil
}

func applyOptions(spec ArgumentSpec, opt ArgumentOptions) (ArgumentSpec, error) {
	if opt.Help != "" {
		spec.Help = opt.Help
	}
	if len(opt.Flags) > 0 {
		spec.Flags = slices.Clone(opt.Flags)
	}
	if opt.Metavar != "" {
		spec.Metavar = opt.Metavar
	}
	if len(opt.Choices) > 0 {
		spec.Choices = slices.Clone(opt.Choices)
	}
	if opt.Nargs != NargsOne {
		spec.Nargs = opt.Nargs
	}
	if opt.Hidden {
		spec.Hidden = true
	}

	if opt.Action != Store {
		spec.Action = opt.Action
		switch opt.Action {
		case Count:
			spec.Kind = Int
			spec.Default = 0
		case StoreTrue:
			spec.Kind = Bool
			spec.Default = false
		case StoreFalse:
			spec.Kind = Bool
			spec.Default = true
		case Append:
			if spec.Kind == String {
				spec.Kind = StringSlice
			} else if spec.Kind == Int {
				spec.Kind = IntSlice
			}
			spec.Default = zeroValue(spec.Kind)
		}
	}

	if opt.Default != nil {
		def, err := normalizeDefault(spec.Kind, opt.Default)
		if err != nil {
			return spec, fmt.Errorf("argument '%s': %w", spec.Name, err)
		}
		spec.Default = def
	}
	spec.Action = toggleAction(spec.Action, spec.Default)

	if opt.Required != nil {
		spec.Required = *opt.Required
		if spec.Positional() {
			spec.Nargs = requiredNargs(spec.Nargs, spec.Required)
		}
	} else if spec.Nargs == NargsOptional || spec.Nargs == NargsZeroOrMore {
		spec.Required = false
	}
	return spec, nil
}

// requiredNargs adjusts a positional's nargs so its arity matches required.
func requiredNargs(nargs Nargs, required bool) Nargs {
	switch {
	case required && nargs == NargsOptional:
		return NargsOne
	case required && nargs == NargsZeroOrMore:
		return NargsOneOrMore
	case !required && nargs == NargsOne:
		return NargsOptional
	case !required && nargs == NargsOneOrMore:
		return NargsZeroOrMore
	}
	return nargs
}

// toggleAction keeps a toggle flag consistent with its default: a toggle
// defaulting to true stores false when given, and the reverse.
func toggleAction(action Action, def any) Action {
	b, ok := def.(bool)
	if !ok || (action != StoreTrue && action != StoreFalse) {
		return action
	}
	if b {
		return StoreFalse
	}
	return StoreTrue
}
