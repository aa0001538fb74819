// Package validate provides input validation utilities for toolscripts,
// ensuring command trees and environment configurations are well formed before
// any parser is built or any subprocess is spawned.
//
// All validation goes through a single go-playground/validator instance.
// Struct validation failures are flattened into one readable error that names
// each offending field and the rule it broke.
//
// VALIDATION COVERAGE:
//   - Names: group, command and parameter identifiers
//   - Flags: long and short flag spellings
//   - Configuration: virtualenv and project file structs via struct tags
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// Global validator instance shared by all callers
	validate *validator.Validate
)

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
}

// ValidateField validates a single value against validator tags.
//
// Example: ValidateField("eu-central-1", "required,printascii")
func ValidateField(value any, tag string) error {
	return validate.Var(value, tag)
}

// ValidateStruct validates a struct using its `validate` tags and returns a
// single error describing every failing field.
func ValidateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed '%s=%s'", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed '%s'", fe.Namespace(), fe.Tag()))
		}
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// ValidateRequiredString validates that a string field is not empty.
func ValidateRequiredString(value, fieldName string) error {
	if err := ValidateField(value, "required"); err != nil {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	return nil
}
