package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"pyseed/internal/app"
	"pyseed/internal/project"
)

// modeValue is a pflag.Value that accepts the project mode aliases.
type modeValue struct {
	mode project.Mode
}

var _ pflag.Value = (*modeValue)(nil)

func (m *modeValue) String() string {
	if m.mode == project.ModeUnset {
		return ""
	}
	return m.mode.Short()
}

func (m *modeValue) Set(s string) error {
	mode, err := project.ParseMode(s)
	if err != nil {
		return err
	}
	m.mode = mode
	return nil
}

func (m *modeValue) Type() string { return "mode" }

func addModeFlag(fs *pflag.FlagSet, m *modeValue) {
	fs.Var(m, "mode", "Project mode for this run: pyseed, external or template")
}

func addManifestFlag(fs *pflag.FlagSet, paths *map[string]string) {
	fs.StringToStringVar(paths, "manifest", nil, fmt.Sprintf(
		"Manifest location for external repositories, NAME=PATH with NAME one of %s",
		strings.Join([]string{project.ManifestVersion, project.ManifestRequire, project.ManifestRequireIn}, ", ")))
}

func validateManifests(paths map[string]string) error {
	for k := range paths {
		switch k {
		case project.ManifestVersion, project.ManifestRequire, project.ManifestRequireIn:
		default:
			return usageError{fmt.Errorf("unknown manifest %q", k)}
		}
	}
	return nil
}

func newUpdateCommand(c *cli) *cobra.Command {
	var (
		mode      modeValue
		manifests map[string]string
		branch    string
		force     bool
		dryRun    bool
		noRestart bool
	)
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update the project from its remote repository",
		Long: `Fetch the remote repository, validate it and replace the local copy.

The project mode decides what is replaced: pyseed projects overwrite the
remote's project/ files and keep local-only ones, external and template
projects mirror the whole remote into project/. After a successful update
pyseed restarts itself once and shows the project status.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateManifests(manifests); err != nil {
				return err
			}
			req := app.UpdateRequest{
				Mode:      string(mode.mode),
				Paths:     manifests,
				Branch:    branch,
				Force:     force,
				DryRun:    dryRun,
				NoRestart: noRestart,
				Applied: func(out app.UpdateOutcome) {
					c.stopProgress()
					c.printReport(out.Result)
				},
			}
			out, err := c.app.Update(cmd.Context(), req)
			c.stopProgress()
			if err != nil {
				return err
			}
			switch {
			case out.UpToDate:
				_, _ = fmt.Fprintf(c.stdout, "%s is up to date (%s).\n", out.Ref, out.Version.Local)
			case out.Result.DryRun:
				c.printReport(out.Result)
			case out.Restarted:
				return exitCode(out.ExitCode)
			}
			return nil
		},
	}
	fs := cmd.Flags()
	addModeFlag(fs, &mode)
	addManifestFlag(fs, &manifests)
	fs.StringVar(&branch, "ref", "", "Branch to update from (default: the repository's default branch)")
	fs.BoolVar(&force, "force", false, "Update even when the remote version is not newer")
	fs.BoolVar(&dryRun, "dry-run", false, "Show what would change without writing")
	fs.BoolVar(&noRestart, "no-restart", false, "Do not restart after updating")
	return cmd
}
