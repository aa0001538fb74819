package cli

import (
	"fmt"
	"reflect"
	"slices"
	"time"
)

// Args holds the parsed values of one invocation keyed by parameter name.
// Every argument of the command has exactly one entry.
type Args struct {
	values map[string]any
	names  []string
}

func newArgs(specs []ArgumentSpec, values map[string]any) *Args {
	a := &Args{values: make(map[string]any, len(specs)), names: make([]string, 0, len(specs))}
	for _, s := range specs {
		v, ok := values[s.Name]
		if !ok {
			v = s.Default
		}
		a.values[s.Name] = v
		a.names = append(a.names, s.Name)
	}
	return a
}

// NewArgs builds Args from plain values, for calling handlers directly in
// tests.
func NewArgs(values map[string]any) *Args {
	a := &Args{values: make(map[string]any, len(values))}
	for name, v := range values {
		a.values[name] = v
		a.names = append(a.names, name)
	}
	slices.Sort(a.names)
	return a
}

// Names returns the parameter names in declaration order.
func (a *Args) Names() []string { return slices.Clone(a.names) }

// Has reports whether name is a parameter of the command.
func (a *Args) Has(name string) bool {
	_, ok := a.values[name]
	return ok
}

// Value returns the raw value of name, or nil.
func (a *Args) Value(name string) any { return a.values[name] }

// String returns a string parameter.
func (a *Args) String(name string) string {
	v, _ := a.values[name].(string)
	return v
}

// Int returns an int parameter.
func (a *Args) Int(name string) int {
	v, _ := a.values[name].(int)
	return v
}

// Int64 returns an int64 parameter.
func (a *Args) Int64(name string) int64 {
	v, _ := a.values[name].(int64)
	return v
}

// Float returns a float parameter.
func (a *Args) Float(name string) float64 {
	v, _ := a.values[name].(float64)
	return v
}

// Bool returns a bool parameter.
func (a *Args) Bool(name string) bool {
	v, _ := a.values[name].(bool)
	return v
}

// Duration returns a duration parameter.
func (a *Args) Duration(name string) time.Duration {
	v, _ := a.values[name].(time.Duration)
	return v
}

// Strings returns a string list parameter.
func (a *Args) Strings(name string) []string {
	v, _ := a.values[name].([]string)
	return slices.Clone(v)
}

// Ints returns an int list parameter.
func (a *Args) Ints(name string) []int {
	v, _ := a.values[name].([]int)
	return slices.Clone(v)
}

// Bind copies the values into dst, a pointer to a struct shaped like the
// command's Params. Fields are matched by parameter name as Inspect derives
// it; fields without a value are left untouched.
func (a *Args) Bind(dst any) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("bind target must be a non-nil pointer to a struct, got %T", dst)
	}
	rv = rv.Elem()
	rt := rv.Type()

	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		name, skip := paramName(field)
		if skip {
			continue
		}
		v, ok := a.values[name]
		if !ok || v == nil {
			continue
		}
		val := reflect.ValueOf(v)
		fv := rv.Field(i)
		switch {
		case val.Type().AssignableTo(fv.Type()):
			fv.Set(val)
		case val.Type().ConvertibleTo(fv.Type()) && fv.Kind() != reflect.String:
			fv.Set(val.Convert(fv.Type()))
		default:
			return fmt.Errorf("cannot bind parameter '%s' of type %T to field %s (%s)", name, v, field.Name, fv.Type())
		}
	}
	return nil
}
