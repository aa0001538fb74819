package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnvDefaults(t *testing.T) {
	s, err := FromEnv(envMap(nil))
	require.NoError(t, err)

	cwd, err := os.Getwd()
	require.NoError(t, err)

	assert.Equal(t, cwd, s.BasePath)
	assert.Equal(t, filepath.Join(cwd, ".tools-venvs"), s.VenvsPath())
	assert.Equal(t, "", s.CacheSeed)
	assert.Equal(t, "INFO", s.LogLevel)
	assert.False(t, s.IgnoreImportErrors)
	assert.False(t, s.DebugImports)
	assert.False(t, s.CI)
}

func TestFromEnvOverrides(t *testing.T) {
	s, err := FromEnv(envMap(map[string]string{
		EnvScriptsPath:        "/srv/repo",
		EnvCacheSeed:          "v2",
		EnvIgnoreImportErrors: "1",
		EnvDebugImports:       "1",
		EnvLogLevel:           "DEBUG",
		EnvCI:                 "true",
	}))
	require.NoError(t, err)

	assert.Equal(t, "/srv/repo", s.BasePath)
	assert.Equal(t, "v2", s.CacheSeed)
	assert.True(t, s.IgnoreImportErrors)
	assert.True(t, s.DebugImports)
	assert.Equal(t, "DEBUG", s.LogLevel)
	assert.True(t, s.CI)
}

func TestFromEnvRejectsBadLogLevel(t *testing.T) {
	_, err := FromEnv(envMap(map[string]string{EnvLogLevel: "loud"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvLogLevel)
}

func TestDefaultVenvsPath(t *testing.T) {
	got, err := DefaultVenvsPath(envMap(map[string]string{EnvScriptsPath: "/srv/repo"}))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/srv/repo", ".tools-venvs"), got)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandHome("~/scripts")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "scripts"), got)

	got, err = ExpandHome("/abs/path")
	require.NoError(t, err)
	assert.Equal(t, "/abs/path", got)

	got, err = ExpandHome("~user")
	require.NoError(t, err)
	assert.Equal(t, "~user", got)
}

func TestLoadProjectMissing(t *testing.T) {
	p, err := LoadProject(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestLoadProject(t *testing.T) {
	root := t.TempDir()
	content := `
default_requirements:
  requirements:
    - requests==2.31.0
  requirements_files:
    - requirements/tools.txt
  pip_args:
    - --no-cache-dir
default_virtualenv:
  name: default
  requirements:
    - boto3
  system_site_packages: true
  env:
    PIP_INDEX_URL: https://pypi.example.org/simple
`
	require.NoError(t, os.WriteFile(filepath.Join(root, DefaultProjectFile), []byte(content), 0o644))

	p, err := LoadProject(root)
	require.NoError(t, err)
	require.NotNil(t, p)

	require.NotNil(t, p.DefaultRequirements)
	assert.Equal(t, []string{"requests==2.31.0"}, p.DefaultRequirements.Requirements)
	assert.Equal(t, []string{filepath.Join(root, "requirements/tools.txt")}, p.DefaultRequirements.RequirementsFiles)
	assert.Equal(t, []string{"--no-cache-dir"}, p.DefaultRequirements.PipArgs)

	require.NotNil(t, p.DefaultVirtualenv)
	assert.Equal(t, "default", p.DefaultVirtualenv.Name)
	assert.Equal(t, []string{"boto3"}, p.DefaultVirtualenv.Requirements.Requirements)
	assert.True(t, p.DefaultVirtualenv.SystemSitePackages)
	assert.Equal(t, "https://pypi.example.org/simple", p.DefaultVirtualenv.Env["PIP_INDEX_URL"])
}

func TestLoadProjectInvalid(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, DefaultProjectFile),
		[]byte("default_requirements:\n  requirements:\n    - \"\"\n"), 0o644))

	_, err := LoadProject(root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")

	require.NoError(t, os.WriteFile(filepath.Join(root, DefaultProjectFile),
		[]byte("default_requirements: [not, a, map"), 0o644))
	_, err = LoadProject(root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse")
}
