package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pyseed/internal/auth"
)

func newAuthCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage GitHub credentials for private repositories",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:         "login",
			Short:       "Authorize with the GitHub device flow and cache the token",
			Args:        usageArgs(cobra.NoArgs),
			Annotations: map[string]string{skipBootstrap: "true"},
			RunE: func(cmd *cobra.Command, _ []string) error {
				cred, err := c.app.Resolver.Login(cmd.Context())
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(c.stdout, "Logged in (%s)\n", cred.Source)
				return nil
			},
		},
		&cobra.Command{
			Use:         "logout",
			Short:       "Remove the cached device token",
			Args:        usageArgs(cobra.NoArgs),
			Annotations: map[string]string{skipBootstrap: "true"},
			RunE: func(_ *cobra.Command, _ []string) error {
				if err := c.app.Resolver.Logout(); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(c.stdout, "Cached token removed")
				return nil
			},
		},
		&cobra.Command{
			Use:         "status",
			Short:       "Show which stored credential would be used",
			Args:        usageArgs(cobra.NoArgs),
			Annotations: map[string]string{skipBootstrap: "true"},
			RunE: func(cmd *cobra.Command, _ []string) error {
				cred, err := c.app.Resolver.Stored(cmd.Context())
				if err != nil {
					return err
				}
				state := okStyle.Render("valid")
				if cred.Source == auth.SourceNone {
					state = warnStyle.Render("none")
				}
				writeSection(c.stdout, "Credentials", []row{
					{"Credential", state},
					{"Source", string(cred.Source)},
					{"Config", c.app.Resolver.ConfigPath},
					{"Cache", c.app.Resolver.CachePath},
				})
				return nil
			},
		},
	)
	return cmd
}
