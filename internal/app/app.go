// Package app wires the bootstrap and update flows together. Commands in
// cmd/pyseed build an App from configuration and call one method per
// subcommand; every dependency is a field so tests can replace it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pyseed/internal/appdir"
	"pyseed/internal/auth"
	"pyseed/internal/environment"
	"pyseed/internal/github"
	"pyseed/internal/journal"
	"pyseed/internal/logging"
	"pyseed/internal/project"
	"pyseed/internal/relaunch"
	"pyseed/internal/remote"
	"pyseed/internal/update"
)

// Options are the resolved settings an App is built from.
type Options struct {
	ProjectRoot string
	Layout      appdir.Layout
	// Args are the command-line arguments without the program name.
	Args []string
	// RestartArgs are the arguments used to restart after an update.
	RestartArgs []string

	// Repo is "owner/name" or a git URL. Empty discovers the origin remote.
	Repo          string
	ClientID      string
	APIURL        string
	WebURL        string
	DeviceTimeout time.Duration

	Python       string
	MinMajor     int
	MinMinor     int
	LockWait     time.Duration
	Requirements string
	Relaunch     string

	// ConfigMode and ConfigPaths come from project.* configuration keys.
	ConfigMode  string
	ConfigPaths map[string]string
	// Preserve lists .gitignore patterns kept across a replace, in addition
	// to update.DefaultPreserve.
	Preserve []string
}

// App is one invocation of the manager.
type App struct {
	Root       string
	Layout     appdir.Layout
	Descriptor environment.Descriptor
	Probe      environment.Probe
	Manager    *environment.Manager
	Supervisor *relaunch.Supervisor
	GitHub     *github.Client
	Resolver   *auth.Resolver
	// Journal is optional; nil disables history.
	Journal *journal.Journal

	Repo        string
	ConfigMode  string
	ConfigPaths map[string]string
	Preserve    []string

	// RememberRepo persists a discovered repository so later runs skip
	// discovery. Nil disables it.
	RememberRepo func(repo string) error
	// Progress receives short stage names from long-running steps.
	Progress func(stage string)
	Getenv   func(string) string
	Logger   *slog.Logger

	// sourceFor overrides remote.SourceFor in tests.
	sourceFor func(remote.Ref) remote.Source
	now       func() time.Time
}

// New builds an App for the running process.
func New(opts Options) (*App, error) {
	root, err := filepath.Abs(opts.ProjectRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}
	desc, err := environment.NewDescriptor(opts.Layout, root, opts.Requirements)
	if err != nil {
		return nil, err
	}
	sup, err := relaunch.NewSupervisor(opts.Relaunch, root)
	if err != nil {
		return nil, err
	}
	sup.Args = append([]string(nil), opts.Args...)
	sup.RestartArgs = append([]string(nil), opts.RestartArgs...)

	var ghOpts []github.Option
	if opts.APIURL != "" {
		ghOpts = append(ghOpts, github.WithAPIURL(opts.APIURL))
	}
	if opts.WebURL != "" {
		ghOpts = append(ghOpts, github.WithWebURL(opts.WebURL))
	}
	gh := github.NewClient(ghOpts...)

	a := &App{
		Root:       root,
		Layout:     opts.Layout,
		Descriptor: desc,
		Probe:      environment.NewProbe(desc),
		Manager: &environment.Manager{
			BasePython: opts.Python,
			MinMajor:   opts.MinMajor,
			MinMinor:   opts.MinMinor,
			LockWait:   opts.LockWait,
		},
		Supervisor: sup,
		GitHub:     gh,
		Resolver: &auth.Resolver{
			ConfigPath: opts.Layout.AuthConfigPath(),
			CachePath:  opts.Layout.TokenCachePath(),
			ClientID:   opts.ClientID,
			Client:     gh,
			Validator:  auth.GitHubValidator{Client: gh},
			Timeout:    opts.DeviceTimeout,
		},
		Repo:        strings.TrimSpace(opts.Repo),
		ConfigMode:  opts.ConfigMode,
		ConfigPaths: opts.ConfigPaths,
		Preserve:    append(append([]string(nil), update.DefaultPreserve...), opts.Preserve...),
		Getenv:      os.Getenv,
	}
	return a, nil
}

func (a *App) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return logging.L()
}

func (a *App) getenv(key string) string {
	if a.Getenv == nil {
		return os.Getenv(key)
	}
	return a.Getenv(key)
}

func (a *App) clock() time.Time {
	if a.now != nil {
		return a.now()
	}
	return time.Now().UTC()
}

func (a *App) stage(name string) {
	if a.Progress != nil {
		a.Progress(name)
	}
}

func (a *App) record(ctx context.Context, e journal.Entry) {
	if a.Journal == nil {
		return
	}
	if _, err := a.Journal.Record(ctx, e); err != nil {
		a.logger().Warn("record history failed", "kind", e.Kind, "error", err)
	}
}

// Override merges command-line overrides with configuration and the
// recorded project settings.
func (a *App) Override(flagMode string, flagPaths map[string]string) (project.Override, error) {
	stored, err := project.LoadSettings(a.Layout.ProjectConfigPath())
	if err != nil {
		return project.Override{}, err
	}
	return project.ResolveOverride(project.OverrideSources{
		FlagMode:    flagMode,
		FlagPaths:   flagPaths,
		ConfigMode:  a.ConfigMode,
		ConfigPaths: a.ConfigPaths,
		Stored:      stored,
	})
}

// Classify determines the project mode. It never caches: the mode is
// derived from the filesystem on every call.
func (a *App) Classify(o project.Override) project.Classification {
	c := project.Classify(a.Root, o)
	log := a.logger().With("mode", c.Mode, "source", c.Source)
	if c.Ambiguous {
		log.Warn("project layout is ambiguous, treating as external repository", "reason", c.Reason)
	} else {
		log.Debug("project classified", "reason", c.Reason)
	}
	return c
}

// SetMode records m in the project settings. ModeUnset clears it.
func (a *App) SetMode(m project.Mode) error {
	path := a.Layout.ProjectConfigPath()
	s, err := project.LoadSettings(path)
	if err != nil {
		return err
	}
	s.Mode = m
	if err := a.Layout.Ensure(); err != nil {
		return err
	}
	return project.SaveSettings(path, s)
}

// SetManifestPaths records custom manifest locations for external repositories.
func (a *App) SetManifestPaths(paths map[string]string) error {
	path := a.Layout.ProjectConfigPath()
	s, err := project.LoadSettings(path)
	if err != nil {
		return err
	}
	for k, v := range paths {
		switch k {
		case project.ManifestVersion:
			s.Paths.Version = v
		case project.ManifestRequire:
			s.Paths.Requirements = v
		case project.ManifestRequireIn:
			s.Paths.RequirementsIn = v
		default:
			return fmt.Errorf("unknown manifest %q", k)
		}
	}
	if err := a.Layout.Ensure(); err != nil {
		return err
	}
	return project.SaveSettings(path, s)
}

// History returns recent journal entries, newest first.
func (a *App) History(ctx context.Context, kind string, limit int) ([]journal.Entry, error) {
	if a.Journal == nil {
		return nil, nil
	}
	return a.Journal.Recent(ctx, kind, limit)
}
