package main

import (
	"fmt"

	"github.com/spf13/cobra"

	apperrors "pyseed/internal/errors"
)

func newStatusCommand(c *cli) *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:         "status",
		Short:       "Show the environment, project mode and remote",
		Args:        usageArgs(cobra.NoArgs),
		Annotations: map[string]string{skipBootstrap: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.printStatus(cmd.Context(), check)
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "Compare the local version with the remote")
	return cmd
}

func newRunCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "run [-- ARGS...]",
		Short: "Run the project inside the environment",
		Long: `Run project/__main__.py with the environment's interpreter. Arguments after
"--" are passed to the project unchanged.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := c.app.RunProject(cmd.Context(), args)
			if err != nil {
				return err
			}
			if code != 0 {
				return exitCode(code)
			}
			return nil
		},
	}
}

func newEnvCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "env",
		Short: "Inspect or remove the project's Python environment",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:         "path",
			Short:       "Print the environment interpreter path",
			Args:        usageArgs(cobra.NoArgs),
			Annotations: map[string]string{skipBootstrap: "true"},
			Run: func(_ *cobra.Command, _ []string) {
				_, _ = fmt.Fprintln(c.stdout, c.app.Descriptor.Interpreter)
			},
		},
		&cobra.Command{
			Use:         "delete",
			Short:       "Delete the environment; the next run rebuilds it",
			Args:        usageArgs(cobra.NoArgs),
			Annotations: map[string]string{skipBootstrap: "true"},
			RunE: func(cmd *cobra.Command, _ []string) error {
				if err := c.app.RemoveEnvironment(cmd.Context()); err != nil {
					return apperrors.New(apperrors.CodeEnvironmentCreation, "delete environment", err)
				}
				_, _ = fmt.Fprintf(c.stdout, "Deleted %s\n", c.app.Descriptor.Root)
				return nil
			},
		},
	)
	return cmd
}
