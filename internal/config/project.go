package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/concave-dev/toolscripts/internal/validate"
	"gopkg.in/yaml.v3"
)

// Project mirrors the optional .tools.yaml file in the repository root. It
// lets a project declare the default requirements and the default virtualenv
// without code.
type Project struct {
	DefaultRequirements *RequirementsSection `yaml:"default_requirements" validate:"omitempty"`
	DefaultVirtualenv   *VirtualenvSection   `yaml:"default_virtualenv" validate:"omitempty"`
}

// RequirementsSection describes pip requirements.
type RequirementsSection struct {
	Requirements      []string `yaml:"requirements" validate:"dive,required"`
	RequirementsFiles []string `yaml:"requirements_files" validate:"dive,required"`
	PipArgs           []string `yaml:"pip_args" validate:"dive,required"`
}

// VirtualenvSection describes the default virtualenv.
type VirtualenvSection struct {
	Name                  string              `yaml:"name" validate:"omitempty,excludesall=/\\"`
	Requirements          RequirementsSection `yaml:",inline"`
	Env                   map[string]string   `yaml:"env"`
	SystemSitePackages    bool                `yaml:"system_site_packages"`
	PipRequirement        string              `yaml:"pip_requirement"`
	SetuptoolsRequirement string              `yaml:"setuptools_requirement"`
	Python                string              `yaml:"python"`
}

// LoadProject reads <root>/.tools.yaml. A missing file is not an error and
// yields a nil Project. Relative requirements files are resolved against root.
func LoadProject(root string) (*Project, error) {
	path := filepath.Join(root, DefaultProjectFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var p Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := validate.ValidateStruct(p); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if p.DefaultRequirements != nil {
		resolveFiles(root, p.DefaultRequirements.RequirementsFiles)
	}
	if p.DefaultVirtualenv != nil {
		resolveFiles(root, p.DefaultVirtualenv.Requirements.RequirementsFiles)
	}
	return &p, nil
}

func resolveFiles(root string, files []string) {
	for i, f := range files {
		if !filepath.IsAbs(f) {
			files[i] = filepath.Join(root, f)
		}
	}
}
