package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestCommandNameFormat tests CommandNameFormat function
func TestCommandNameFormat(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expectError bool
	}{
		{name: "simple lowercase", input: "vm", expectError: false},
		{name: "lowercase with numbers", input: "py311", expectError: false},
		{name: "lowercase with hyphens", input: "create-image", expectError: false},
		{name: "lowercase with underscores", input: "create_image", expectError: false},
		{name: "single number", input: "1", expectError: false},
		{name: "empty", input: "", expectError: true},
		{name: "uppercase", input: "Create", expectError: true},
		{name: "leading hyphen", input: "-create", expectError: true},
		{name: "trailing underscore", input: "create_", expectError: true},
		{name: "space", input: "vm create", expectError: true},
		{name: "dot", input: "vm.create", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CommandNameFormat("command", tt.input)
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParamNameFormat(t *testing.T) {
	assert.NoError(t, ParamNameFormat("region"))
	assert.NoError(t, ParamNameFormat("dry_run"))
	assert.NoError(t, ParamNameFormat("_private"))
	assert.Error(t, ParamNameFormat("dry-run"))
	assert.Error(t, ParamNameFormat("1st"))
	assert.Error(t, ParamNameFormat(""))
}

func TestFlagFormat(t *testing.T) {
	tests := []struct {
		flag  string
		valid bool
	}{
		{"--region", true},
		{"--dry-run", true},
		{"--no_cache", true},
		{"-r", true},
		{"-R", true},
		{"region", false},
		{"-rg", false},
		{"---region", false},
		{"--", false},
		{"--re gion", false},
	}

	for _, tt := range tests {
		t.Run(tt.flag, func(t *testing.T) {
			if tt.valid {
				assert.NoError(t, FlagFormat(tt.flag))
			} else {
				assert.Error(t, FlagFormat(tt.flag))
			}
		})
	}
}
