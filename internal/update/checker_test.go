package update

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "pyseed/internal/errors"
	"pyseed/internal/project"
)

func TestCheckPySeedVersion(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"project/requirements/version.txt": "1.0.0\n"})
	src := &fakeSource{tree: treeOf(map[string]string{"project/requirements/version.txt": "1.2.0\n"})}

	info, err := Checker{Source: src}.Check(context.Background(), root, ref, "", project.ModePySeed, project.Override{})
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", info.Local.String())
	assert.Equal(t, "1.2.0", info.Remote.String())
	assert.True(t, info.UpdateAvailable)
	assert.Equal(t, project.VersionFile, info.Path)
}

func TestCheckExternalCustomVersionPath(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"project/VERSION": "2.0\n"})
	src := &fakeSource{tree: treeOf(map[string]string{"VERSION": "2.0.0\n"})}
	o := project.Override{Paths: map[string]string{project.ManifestVersion: "project/VERSION"}}

	info, err := Checker{Source: src}.Check(context.Background(), root, ref, "", project.ModeExternal, o)
	require.NoError(t, err)
	assert.False(t, info.UpdateAvailable)
	assert.Equal(t, "project/VERSION", info.Path)
}

func TestCheckMissingLocalVersionIsZero(t *testing.T) {
	root := t.TempDir()
	src := &fakeSource{tree: treeOf(map[string]string{"requirements/version.txt": "0.1.0\n"})}

	info, err := Checker{Source: src}.Check(context.Background(), root, ref, "", project.ModeTemplate, project.Override{})
	require.NoError(t, err)
	assert.Equal(t, ZeroVersion, info.Local)
	assert.True(t, info.UpdateAvailable)
}

func TestCheckRemoteMissing(t *testing.T) {
	src := &fakeSource{tree: treeOf(map[string]string{"main.py": "x"})}
	_, err := Checker{Source: src}.Check(context.Background(), t.TempDir(), ref, "", project.ModePySeed, project.Override{})
	assert.Equal(t, apperrors.CodeRepositoryNotFound, apperrors.CodeOf(err))
}

func TestCheckVersionOutsideProject(t *testing.T) {
	o := project.Override{Paths: map[string]string{project.ManifestVersion: "VERSION"}}
	_, err := Checker{Source: &fakeSource{}}.Check(context.Background(), t.TempDir(), ref, "", project.ModeExternal, o)
	assert.Error(t, err)
}
