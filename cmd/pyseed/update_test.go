package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pyseed/internal/project"
)

func TestModeValue(t *testing.T) {
	var m modeValue
	assert.Equal(t, "", m.String())
	assert.Equal(t, "mode", m.Type())

	require.NoError(t, m.Set("external"))
	assert.Equal(t, project.ModeExternal, m.mode)
	assert.Equal(t, "external", m.String())

	require.NoError(t, m.Set("TEMPLATE_MODE"))
	assert.Equal(t, project.ModeTemplate, m.mode)

	assert.Error(t, m.Set("sideways"))
	assert.Equal(t, project.ModeTemplate, m.mode, "failed Set keeps the previous value")
}

func TestValidateManifests(t *testing.T) {
	assert.NoError(t, validateManifests(nil))
	assert.NoError(t, validateManifests(map[string]string{
		project.ManifestVersion:   "VERSION",
		project.ManifestRequire:   "deps/requirements.txt",
		project.ManifestRequireIn: "deps/requirements.in",
	}))

	err := validateManifests(map[string]string{"setup_py": "setup.py"})
	require.Error(t, err)
	assert.Equal(t, exitUsage, exitCodeFor(err))
}
