package project

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func touch(t *testing.T, root, rel string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
}

func TestClassifyPySeedProject(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	touch(t, root, VersionFile)
	touch(t, root, RequirementsFile)

	c := Classify(root, Override{})
	assert.Equal(t, ModePySeed, c.Mode)
	assert.Equal(t, SourceHeuristic, c.Source)
	assert.False(t, c.Ambiguous)

	// Same tree with the manifests removed.
	require.NoError(t, os.RemoveAll(filepath.Join(root, "project", "requirements")))
	touch(t, root, "project/main.py")
	c = Classify(root, Override{})
	assert.Equal(t, ModeExternal, c.Mode)
	assert.False(t, c.Ambiguous)
}

func TestClassifyTemplateWithoutVersionControl(t *testing.T) {
	root := t.TempDir()
	touch(t, root, VersionFile)
	touch(t, root, RequirementsFile)

	c := Classify(root, Override{})
	assert.Equal(t, ModeTemplate, c.Mode)
}

func TestClassifySubtreeGitCounts(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "project", ".git"), 0o755))
	touch(t, root, "project/app.py")

	assert.Equal(t, ModeExternal, Classify(root, Override{}).Mode)
}

func TestClassifyRelocatedManifestIsAmbiguous(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "project", "requirements"), 0o755))
	touch(t, root, "project/version.txt")

	c := Classify(root, Override{})
	assert.Equal(t, ModeExternal, c.Mode)
	assert.True(t, c.Ambiguous)
}

func TestOverrideAlwaysWins(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	touch(t, root, VersionFile)
	touch(t, root, RequirementsFile)

	c := Classify(root, Override{Mode: ModeTemplate})
	assert.Equal(t, ModeTemplate, c.Mode)
	assert.Equal(t, SourceOverride, c.Source)
}

func TestConfiguredPathsSelectExternal(t *testing.T) {
	fsys := fstest.MapFS{
		".git/HEAD":                             {Data: []byte("ref: refs/heads/main")},
		"project/requirements/version.txt":      {Data: []byte("1.0.0")},
		"project/requirements/requirements.txt": {Data: []byte("")},
		"deps/requirements.txt":                 {Data: []byte("")},
	}
	o := Override{Paths: map[string]string{ManifestRequire: "deps/requirements.txt"}}
	c := ClassifyFacts(Gather(fsys, o.Paths), o)
	assert.Equal(t, ModeExternal, c.Mode)
	assert.Equal(t, SourcePaths, c.Source)

	// Paths that do not exist, or escape the root, are ignored.
	o = Override{Paths: map[string]string{ManifestRequire: "../elsewhere/requirements.txt", ManifestVersion: "nope.txt"}}
	c = ClassifyFacts(Gather(fsys, o.Paths), o)
	assert.Equal(t, ModePySeed, c.Mode)
}

func TestClassifyFactsIsTotalAndDeterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := Facts{
			GitMetadata:          rapid.Bool().Draw(t, "git"),
			VersionFile:          rapid.Bool().Draw(t, "version"),
			RequirementsFile:     rapid.Bool().Draw(t, "requirements"),
			RequirementsDir:      rapid.Bool().Draw(t, "reqdir"),
			RelocatedManifest:    rapid.Bool().Draw(t, "relocated"),
			ConfiguredPathsExist: rapid.Bool().Draw(t, "paths"),
		}
		o := Override{Mode: rapid.SampledFrom([]Mode{ModeUnset, ModePySeed, ModeExternal, ModeTemplate}).Draw(t, "override")}

		c := ClassifyFacts(f, o)
		if c != ClassifyFacts(f, o) {
			t.Fatalf("classification not deterministic for %+v", f)
		}
		switch c.Mode {
		case ModePySeed, ModeExternal, ModeTemplate:
		default:
			t.Fatalf("classification produced invalid mode %q", c.Mode)
		}
		if o.Mode != ModeUnset && c.Mode != o.Mode {
			t.Fatalf("override %s lost to %s", o.Mode, c.Mode)
		}
		if c.Ambiguous && c.Mode != ModeExternal {
			t.Fatalf("ambiguous classification must use full replace, got %s", c.Mode)
		}
	})
}

func TestParseMode(t *testing.T) {
	cases := map[string]Mode{
		"":               ModeUnset,
		"pyseed":         ModePySeed,
		"PYSEED_PROJECT": ModePySeed,
		"external-repo":  ModeExternal,
		"Template":       ModeTemplate,
	}
	for in, want := range cases {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseMode("needs_choice")
	assert.Error(t, err)
	assert.True(t, ModeExternal.WholeTree())
	assert.False(t, ModePySeed.WholeTree())
}
