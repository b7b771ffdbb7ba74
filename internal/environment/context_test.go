package environment

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestDetectRules(t *testing.T) {
	interp := filepath.Join(t.TempDir(), "venv", "bin", "python")

	cases := []struct {
		name  string
		probe Probe
		want  ExecutionContext
	}{
		{
			name:  "packaged wins",
			probe: Probe{Packaged: true, Active: func() string { return interp }, Interpreter: interp},
			want:  PackagedExecutable,
		},
		{
			name:  "inside environment",
			probe: Probe{Active: func() string { return interp }, Interpreter: interp},
			want:  InsideTargetEnvironment,
		},
		{
			name:  "other interpreter",
			probe: Probe{Active: func() string { return "/usr/bin/python3" }, Interpreter: interp},
			want:  BareInterpreter,
		},
		{
			name:  "no interpreter at all",
			probe: Probe{Active: func() string { return "" }, Interpreter: interp},
			want:  BareInterpreter,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.probe.Detect())
		})
	}
}

func TestDetectIsDeterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		packaged := rapid.Bool().Draw(t, "packaged")
		active := rapid.SampledFrom([]string{"", "/usr/bin/python3", "/data/demo/venv/bin/python"}).Draw(t, "active")
		interp := rapid.SampledFrom([]string{"", "/data/demo/venv/bin/python"}).Draw(t, "interp")
		p := Probe{Packaged: packaged, Active: func() string { return active }, Interpreter: interp}

		first := p.Detect()
		for i := 0; i < 3; i++ {
			if got := p.Detect(); got != first {
				t.Fatalf("Detect changed from %s to %s", first, got)
			}
		}
		if packaged && first != PackagedExecutable {
			t.Fatalf("packaged build detected as %s", first)
		}
		if !packaged && first == InsideTargetEnvironment && (active == "" || active != interp) {
			t.Fatalf("inside reported for active=%q interp=%q", active, interp)
		}
	})
}

func TestDetectDoesNotFollowInterpreterSymlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	tmp := t.TempDir()
	base := filepath.Join(tmp, "usr", "bin", "python3")
	require.NoError(t, os.MkdirAll(filepath.Dir(base), 0o755))
	require.NoError(t, os.WriteFile(base, nil, 0o755))

	venvBin := filepath.Join(tmp, "venv", "bin")
	require.NoError(t, os.MkdirAll(venvBin, 0o755))
	interp := filepath.Join(venvBin, "python")
	require.NoError(t, os.Symlink(base, interp))

	bare := Probe{Active: func() string { return base }, Interpreter: interp}
	assert.Equal(t, BareInterpreter, bare.Detect())

	// A symlinked data directory still matches.
	link := filepath.Join(tmp, "link")
	require.NoError(t, os.Symlink(filepath.Join(tmp, "venv"), link))
	inside := Probe{Active: func() string { return filepath.Join(link, "bin", "python") }, Interpreter: interp}
	assert.Equal(t, InsideTargetEnvironment, inside.Detect())
}

func TestActiveInterpreter(t *testing.T) {
	env := map[string]string{"VIRTUAL_ENV": "/data/demo/venv"}
	getenv := func(k string) string { return env[k] }
	noPath := func(string) (string, error) { return "", errors.New("not found") }

	assert.Equal(t, filepath.Join("/data/demo/venv", "bin", "python"), ActiveInterpreter(getenv, noPath, "linux"))
	assert.Equal(t, filepath.Join("/data/demo/venv", "Scripts", "python.exe"), ActiveInterpreter(getenv, noPath, "windows"))

	env = map[string]string{}
	onlyPython3 := func(name string) (string, error) {
		if name == "python3" {
			return "/usr/bin/python3", nil
		}
		return "", errors.New("not found")
	}
	assert.Equal(t, "/usr/bin/python3", ActiveInterpreter(getenv, onlyPython3, "linux"))
	assert.Equal(t, "", ActiveInterpreter(getenv, noPath, "linux"))
}

func TestParsePythonVersion(t *testing.T) {
	cases := map[string]PythonVersion{
		"Python 3.11.4":     {3, 11, 4},
		"Python 3.13.0rc1":  {3, 13, 0},
		"Python 3.9":        {3, 9, 0},
		"  Python 2.7.18\n": {2, 7, 18},
	}
	for in, want := range cases {
		got, err := ParsePythonVersion(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParsePythonVersion("command not found")
	assert.Error(t, err)
}

func TestPythonVersionAtLeast(t *testing.T) {
	assert.True(t, PythonVersion{3, 11, 0}.AtLeast(3, 9))
	assert.True(t, PythonVersion{3, 9, 0}.AtLeast(3, 9))
	assert.False(t, PythonVersion{3, 8, 10}.AtLeast(3, 9))
	assert.False(t, PythonVersion{2, 7, 18}.AtLeast(3, 0))
	assert.False(t, PythonVersion{4, 0, 0}.AtLeast(3, 9))
}

func TestCheckInterpreterKinds(t *testing.T) {
	stub := &fakePython{baseVersion: "3.8.10"}
	found := func(string) (string, error) { return basePython, nil }

	_, err := CheckInterpreter(context.Background(), InterpreterCheck{MinMajor: 3, MinMinor: 9, Runner: stub, LookPath: found})
	var ierr InterpreterError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, InterpreterTooOld, ierr.Kind)
	assert.Equal(t, "3.8.10", ierr.Info.Installed)

	_, err = CheckInterpreter(context.Background(), InterpreterCheck{
		MinMajor: 3, MinMinor: 9, Runner: stub,
		LookPath: func(string) (string, error) { return "", errors.New("missing") },
	})
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, InterpreterNotInstalled, ierr.Kind)
}
