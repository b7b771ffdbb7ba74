package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	apperrors "pyseed/internal/errors"
	"pyseed/internal/project"
)

func newModeCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mode",
		Short: "Show or record the project mode",
		Long: `The project mode is derived from the folder layout on every run. A recorded
mode, or custom manifest paths for external repositories, takes precedence
over that heuristic.`,
		Args:        usageArgs(cobra.NoArgs),
		Annotations: map[string]string{skipBootstrap: "true"},
		RunE: func(_ *cobra.Command, _ []string) error {
			return c.showMode()
		},
	}

	var manifests map[string]string
	set := &cobra.Command{
		Use:         "set MODE",
		Short:       "Record the mode: pyseed, external or template",
		Args:        usageArgs(cobra.ExactArgs(1)),
		Annotations: map[string]string{skipBootstrap: "true"},
		RunE: func(_ *cobra.Command, args []string) error {
			mode, err := project.ParseMode(args[0])
			if err != nil {
				return usageError{err}
			}
			if mode == project.ModeUnset {
				return usageError{fmt.Errorf("mode must not be empty")}
			}
			if err := validateManifests(manifests); err != nil {
				return err
			}
			if err := c.app.SetMode(mode); err != nil {
				return apperrors.New(apperrors.CodeConfigurationError, "save project settings", err)
			}
			if len(manifests) > 0 {
				if err := c.app.SetManifestPaths(manifests); err != nil {
					return apperrors.New(apperrors.CodeConfigurationError, "save project settings", err)
				}
			}
			_, _ = fmt.Fprintf(c.stdout, "Project mode set to %s\n", mode.Short())
			return nil
		},
	}
	addManifestFlag(set.Flags(), &manifests)

	clearCmd := &cobra.Command{
		Use:         "clear",
		Short:       "Forget the recorded mode and use the layout heuristic",
		Args:        usageArgs(cobra.NoArgs),
		Annotations: map[string]string{skipBootstrap: "true"},
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := c.app.SetMode(project.ModeUnset); err != nil {
				return apperrors.New(apperrors.CodeConfigurationError, "save project settings", err)
			}
			_, _ = fmt.Fprintln(c.stdout, "Recorded project mode cleared")
			return nil
		},
	}

	show := &cobra.Command{
		Use:         "show",
		Short:       "Show the mode and what decided it",
		Args:        usageArgs(cobra.NoArgs),
		Annotations: map[string]string{skipBootstrap: "true"},
		RunE: func(_ *cobra.Command, _ []string) error {
			return c.showMode()
		},
	}

	cmd.AddCommand(show, set, clearCmd)
	return cmd
}

func (c *cli) showMode() error {
	o, err := c.app.Override("", nil)
	if err != nil {
		return apperrors.New(apperrors.CodeConfigurationError, err.Error(), err)
	}
	cl := c.app.Classify(o)
	rows := []row{
		{"Mode", cl.Mode.Short()},
		{"Decided by", string(cl.Source)},
		{"Reason", cl.Reason},
	}
	if cl.Ambiguous {
		rows = append(rows, row{"Warning", warnStyle.Render("layout is ambiguous")})
	}
	names := make([]string, 0, len(o.Paths))
	for name := range o.Paths {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		rows = append(rows, row{name, o.Paths[name]})
	}
	writeSection(c.stdout, "Project", rows)
	return nil
}
