package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pyseed/internal/app"
	"pyseed/internal/appdir"
	"pyseed/internal/config"
	"pyseed/internal/github/githubtest"
	"pyseed/internal/logging"
	"pyseed/internal/relaunch"
)

type cliHarness struct {
	root     string
	data     string
	server   *githubtest.Server
	strategy *noopStrategy
	stdout   *bytes.Buffer
	stderr   *bytes.Buffer
}

type noopStrategy struct{ launches []relaunch.Launch }

func (s *noopStrategy) Name() string { return "noop" }

func (s *noopStrategy) Start(_ context.Context, l relaunch.Launch) (int, error) {
	s.launches = append(s.launches, l)
	return 0, nil
}

func newCLIHarness(t *testing.T) *cliHarness {
	t.Helper()
	t.Cleanup(config.ResetForTesting(t))
	t.Cleanup(logging.Close)

	srv := githubtest.NewServer()
	t.Cleanup(srv.Close)

	root := filepath.Join(t.TempDir(), "Demo")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "appmanager"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "appmanager", "launcher.py"), []byte("toolkit\n"), 0o644))

	return &cliHarness{
		root:     root,
		data:     t.TempDir(),
		server:   srv,
		strategy: &noopStrategy{},
		stdout:   &bytes.Buffer{},
		stderr:   &bytes.Buffer{},
	}
}

// run executes one command line against a fresh cli. The App never leaves
// the test: bootstrap is skipped as for a packaged build and restarts go to
// a no-op strategy.
func (h *cliHarness) run(args ...string) int {
	h.stdout.Reset()
	h.stderr.Reset()
	c := newCLI(h.stdout, h.stderr)
	c.interactive = func() bool { return false }
	c.platform = appdir.Platform{
		GOOS: "linux",
		Getenv: func(key string) string {
			if key == "XDG_DATA_HOME" {
				return h.data
			}
			return ""
		},
	}
	c.newApp = func(opts app.Options) (*app.App, error) {
		opts.APIURL = h.server.URL
		opts.WebURL = h.server.URL
		a, err := app.New(opts)
		if err != nil {
			return nil, err
		}
		a.Probe.Packaged = true
		a.Supervisor.Strategy = h.strategy
		return a, nil
	}
	full := append([]string{"--project-root", h.root}, args...)
	return execute(context.Background(), full, c)
}

func TestVersionCommandSkipsSetup(t *testing.T) {
	h := newCLIHarness(t)
	code := h.run("version")
	require.Equal(t, exitOK, code)
	assert.Contains(t, h.stdout.String(), "pyseed version")
	assert.NoDirExists(t, filepath.Join(h.data, "demo"))
}

func TestUnknownFlagIsUsageError(t *testing.T) {
	h := newCLIHarness(t)
	code := h.run("update", "--bogus")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, h.stderr.String(), "Error: unknown flag: --bogus")
	assert.Contains(t, h.stderr.String(), "pyseed --help")
}

func TestInvalidModeFlagIsUsageError(t *testing.T) {
	h := newCLIHarness(t)
	code := h.run("update", "--mode", "sideways")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, h.stderr.String(), "sideways")
}

func TestUnknownManifestIsUsageError(t *testing.T) {
	h := newCLIHarness(t)
	code := h.run("update", "--repo", "acme/starter", "--manifest", "setup_py=setup.py")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, h.stderr.String(), `unknown manifest "setup_py"`)
}

func TestModeSetThenShow(t *testing.T) {
	h := newCLIHarness(t)

	code := h.run("mode", "set", "external", "--manifest", "version=VERSION")
	require.Equal(t, exitOK, code, h.stderr.String())
	assert.Contains(t, h.stdout.String(), "Project mode set to external")
	assert.FileExists(t, filepath.Join(h.data, "demo", appdir.ProjectConfigFileName))

	code = h.run("mode", "show")
	require.Equal(t, exitOK, code, h.stderr.String())
	out := h.stdout.String()
	assert.Contains(t, out, "external")
	assert.Contains(t, out, "override")
	assert.Contains(t, out, "VERSION")

	code = h.run("mode", "clear")
	require.Equal(t, exitOK, code, h.stderr.String())
	code = h.run("mode")
	require.Equal(t, exitOK, code, h.stderr.String())
	assert.NotContains(t, h.stdout.String(), "override")
}

func TestUpdateDryRunPrintsPlanWithoutWriting(t *testing.T) {
	h := newCLIHarness(t)
	h.server.AddRepo("acme/starter", &githubtest.Repo{
		Branches: map[string]map[string]string{"main": {
			"requirements/version.txt": "1.2.0\n",
			"main.py":                  "print('hello')\n",
		}},
	})

	code := h.run("update", "--repo", "acme/starter", "--dry-run")
	require.Equal(t, exitOK, code, h.stderr.String())
	out := h.stdout.String()
	assert.Contains(t, out, "# Update plan (dry run)")
	assert.Contains(t, out, "`main.py`")
	assert.NoFileExists(t, filepath.Join(h.root, "project", "main.py"))
	assert.Contains(t, h.stderr.String(), "pyseed: Fetching")

	code = h.run("history", "--kind", "update")
	require.Equal(t, exitOK, code, h.stderr.String())
	assert.Contains(t, h.stdout.String(), "acme/starter")
	assert.Contains(t, h.stdout.String(), "(dry run)")
}

func TestUpdateRestartsWithoutTheUpdateCommand(t *testing.T) {
	h := newCLIHarness(t)
	h.server.AddRepo("acme/starter", &githubtest.Repo{
		Branches: map[string]map[string]string{"main": {
			"requirements/version.txt": "1.2.0\n",
			"main.py":                  "print('hello')\n",
		}},
	})

	code := h.run("update", "--repo", "acme/starter", "--force", "--plain")
	require.Equal(t, exitOK, code, h.stderr.String())
	assert.FileExists(t, filepath.Join(h.root, "project", "main.py"))

	require.Len(t, h.strategy.launches, 1)
	args := h.strategy.launches[0].Args[1:]
	assert.Equal(t, []string{"--project-root", h.root, "--repo", "acme/starter", "--plain"}, args)
	assert.Contains(t, h.strategy.launches[0].Env, relaunch.RestartEnv+"=1")
}

func TestUpdatePrivateRepoWithoutClientIDExitsWithAuthCode(t *testing.T) {
	h := newCLIHarness(t)
	h.server.AddRepo("acme/secret", &githubtest.Repo{
		Private:  true,
		Branches: map[string]map[string]string{"main": {"main.py": "x\n"}},
	})

	code := h.run("update", "--repo", "acme/secret")
	assert.Equal(t, exitAuth, code)
	assert.Contains(t, h.stderr.String(), "Error: authentication required")
	assert.Contains(t, h.stderr.String(), config.KeyGitHubClientID)
	assert.NoDirExists(t, filepath.Join(h.root, "project"))
}

func TestHistoryRejectsUnknownKind(t *testing.T) {
	h := newCLIHarness(t)
	code := h.run("history", "--kind", "deploys")
	assert.Equal(t, exitUsage, code)
}

func TestHistoryEmpty(t *testing.T) {
	h := newCLIHarness(t)
	code := h.run("history")
	require.Equal(t, exitOK, code, h.stderr.String())
	assert.Contains(t, h.stdout.String(), "No history recorded.")
}

func TestEnvPathPrintsInterpreter(t *testing.T) {
	h := newCLIHarness(t)
	code := h.run("env", "path")
	require.Equal(t, exitOK, code, h.stderr.String())
	assert.Contains(t, h.stdout.String(), filepath.Join(h.data, "demo", appdir.EnvironmentDirName))
}
