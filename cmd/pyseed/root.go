package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"pyseed/internal/app"
	"pyseed/internal/appdir"
	"pyseed/internal/config"
	"pyseed/internal/environment"
	apperrors "pyseed/internal/errors"
	"pyseed/internal/journal"
	"pyseed/internal/logging"
)

// skipBootstrap marks commands that run without entering the environment.
const skipBootstrap = "pyseed.skip-bootstrap"

type cli struct {
	stdout io.Writer
	stderr io.Writer
	// args are the command-line arguments replayed on restart.
	args []string

	projectRoot string
	repo        string
	debug       bool
	plain       bool

	// newApp builds the App once configuration is loaded. Tests replace it.
	newApp   func(app.Options) (*app.App, error)
	platform appdir.Platform
	// interactive reports whether progress and prompts go to a terminal.
	interactive func() bool

	app      *app.App
	journal  *journal.Journal
	progress reporter
}

func newCLI(stdout, stderr io.Writer) *cli {
	return &cli{
		stdout:      stdout,
		stderr:      stderr,
		newApp:      app.New,
		platform:    appdir.CurrentPlatform(),
		interactive: func() bool { return isTerminal(stderr) },
	}
}

// exitCode ends the process with a code decided elsewhere, e.g. by a child
// process after handoff. It carries no message.
type exitCode int

func (e exitCode) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

func execute(ctx context.Context, args []string, c *cli) int {
	c.args = append([]string(nil), args...)
	root := newRootCommand(c)
	root.SetArgs(args)
	root.SetOut(c.stdout)
	root.SetErr(c.stderr)
	err := root.ExecuteContext(ctx)
	c.stopProgress()
	if c.journal != nil {
		_ = c.journal.Close()
	}
	if err == nil {
		return exitOK
	}
	var code exitCode
	if errors.As(err, &code) {
		return int(code)
	}
	logging.L().Error("command failed", "code", apperrors.CodeOf(err), "error", err)
	_, _ = fmt.Fprint(c.stderr, formatError(err))
	return exitCodeFor(err)
}

func newRootCommand(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "pyseed",
		Short: "Bootstrap, run and update a self-contained Python project",
		Long: `pyseed prepares an isolated Python environment for the project it ships
with, re-launches itself inside it and keeps the project's sources up to date
from a remote repository.

Run without a command to prepare the environment and show the project status.`,
		Version:           Version,
		Args:              usageArgs(cobra.NoArgs),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.printStatus(cmd.Context(), false)
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetVersionTemplate(versionString())
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	flags := root.PersistentFlags()
	flags.StringVar(&c.projectRoot, "project-root", "", "Project folder (default: the working directory)")
	flags.StringVar(&c.repo, "repo", "", "Remote repository, owner/name or a git URL (overrides github.repo)")
	flags.BoolVar(&c.debug, "debug", false, "Mirror the log to stderr at debug level")
	flags.BoolVar(&c.plain, "plain", false, "Disable animated progress output")

	root.AddCommand(
		newUpdateCommand(c),
		newStatusCommand(c),
		newRunCommand(c),
		newEnvCommand(c),
		newModeCommand(c),
		newAuthCommand(c),
		newHistoryCommand(c),
		newVersionCommand(c),
	)
	return root
}

// setup loads configuration, starts logging, builds the App and, unless the
// command opts out, makes sure the process runs inside the environment.
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	if cmd.Annotations[skipConfig] != "" || cmd.Name() == "help" {
		return nil
	}
	root, err := c.resolveProjectRoot()
	if err != nil {
		return err
	}
	exe, _ := os.Executable()
	name := appdir.ProjectName(root, environment.Packaged(), exe)
	layout, err := appdir.Resolve(name, c.platform)
	if err != nil {
		return apperrors.New(apperrors.CodeConfigurationError, "resolve application data directory", err)
	}
	if err := layout.Ensure(); err != nil {
		return apperrors.New(apperrors.CodeConfigurationError, "create application data directory", err)
	}

	if err := config.Initialize(
		config.WithWorkingDir(root),
		config.WithUserConfig(layout.UserConfigPath()),
	); err != nil {
		return apperrors.New(apperrors.CodeConfigurationError, "load configuration", err)
	}
	overrides := map[string]any{}
	if cmd.Flags().Changed("repo") {
		overrides[config.KeyGitHubRepo] = c.repo
	}
	if cmd.Flags().Changed("debug") {
		overrides[config.KeyDebug] = c.debug
	}
	if err := config.ApplyOverrides(overrides); err != nil {
		return apperrors.New(apperrors.CodeConfigurationError, "apply flags", err)
	}

	stderrFile, _ := c.stderr.(*os.File)
	if err := logging.Init(logging.Options{Dir: layout.LogsDir(), Debug: config.GetBool(config.KeyDebug), Stderr: stderrFile}); err != nil {
		_, _ = fmt.Fprintf(c.stderr, "Warning: file logging disabled: %v\n", err)
	}

	opts, err := appOptions(root, layout, c.args, c.restartArgs(cmd, root))
	if err != nil {
		return err
	}
	a, err := c.newApp(opts)
	if err != nil {
		return err
	}
	a.RememberRepo = func(repo string) error {
		return config.SaveUserValue(layout.UserConfigPath(), config.KeyGitHubRepo, repo)
	}
	a.Progress = c.stage
	a.Resolver.Prompt = c.showDeviceCode
	if j, err := journal.Open(cmd.Context(), layout.JournalPath()); err != nil {
		logging.L().Warn("history unavailable", "error", err)
	} else {
		c.journal = j
		a.Journal = j
	}
	c.app = a

	if cmd.Annotations[skipBootstrap] != "" {
		return nil
	}
	res, err := a.Bootstrap(cmd.Context())
	c.stopProgress()
	if err != nil {
		return err
	}
	if res.HandedOff {
		return exitCode(res.ExitCode)
	}
	return nil
}

// skipConfig marks commands that need neither configuration nor the App.
const skipConfig = "pyseed.skip-config"

func (c *cli) resolveProjectRoot() (string, error) {
	if strings.TrimSpace(c.projectRoot) != "" {
		return filepath.Abs(c.projectRoot)
	}
	if environment.Packaged() {
		exe, err := os.Executable()
		if err != nil {
			return "", fmt.Errorf("locate executable: %w", err)
		}
		return filepath.Dir(filepath.Dir(exe)), nil
	}
	return os.Getwd()
}

// restartArgs keeps the global flags of this invocation and drops the
// command, so a restart after an update lands on the status view.
func (c *cli) restartArgs(cmd *cobra.Command, root string) []string {
	args := []string{"--project-root", root}
	if cmd.Flags().Changed("repo") {
		args = append(args, "--repo", c.repo)
	}
	if c.debug {
		args = append(args, "--debug")
	}
	if c.plain {
		args = append(args, "--plain")
	}
	return args
}

// appOptions reads the App settings from configuration.
func appOptions(root string, layout appdir.Layout, args, restartArgs []string) (app.Options, error) {
	major, minor, err := config.MinPython()
	if err != nil {
		return app.Options{}, apperrors.New(apperrors.CodeConfigurationError, err.Error(), err)
	}
	return app.Options{
		ProjectRoot:   root,
		Layout:        layout,
		Args:          args,
		RestartArgs:   restartArgs,
		Repo:          config.GetString(config.KeyGitHubRepo),
		ClientID:      config.GetString(config.KeyGitHubClientID),
		APIURL:        config.GetString(config.KeyGitHubAPIURL),
		WebURL:        config.GetString(config.KeyGitHubWebURL),
		DeviceTimeout: config.GetDuration(config.KeyDeviceTimeout),
		Python:        config.GetString(config.KeyPython),
		MinMajor:      major,
		MinMinor:      minor,
		LockWait:      config.GetDuration(config.KeyLockWait),
		Requirements:  config.GetString(config.KeyRequirements),
		Relaunch:      config.GetString(config.KeyRelaunch),
		ConfigMode:    config.GetString(config.KeyProjectMode),
		ConfigPaths:   config.ManifestPaths(),
		Preserve:      config.GetStringSlice(config.KeyPreserve),
	}, nil
}

// usageError marks command-line mistakes.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}
