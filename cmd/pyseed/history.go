package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"pyseed/internal/journal"
)

func newHistoryCommand(c *cli) *cobra.Command {
	var (
		limit int
		kind  string
	)
	cmd := &cobra.Command{
		Use:         "history",
		Short:       "List recent environment builds and updates",
		Args:        usageArgs(cobra.NoArgs),
		Annotations: map[string]string{skipBootstrap: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch kind {
			case "", journal.KindUpdate, journal.KindEnvironment:
			default:
				return usageError{fmt.Errorf("unknown kind %q (want %s or %s)", kind, journal.KindUpdate, journal.KindEnvironment)}
			}
			entries, err := c.app.History(cmd.Context(), kind, limit)
			if err != nil {
				return err
			}
			writeHistory(c.stdout, entries)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of entries")
	cmd.Flags().StringVar(&kind, "kind", "", "Only show update or environment entries")
	return cmd
}

func writeHistory(w io.Writer, entries []journal.Entry) {
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(w, "No history recorded.")
		return
	}
	for _, e := range entries {
		outcome := okStyle.Render(e.Outcome)
		if !e.Succeeded() {
			outcome = errStyle.Render(e.Outcome)
		}
		line := fmt.Sprintf("%s  %-11s  %s", e.StartedAt.Local().Format("2006-01-02 15:04:05"), e.Kind, outcome)
		if e.Kind == journal.KindUpdate {
			line += fmt.Sprintf("  %s  +%d ~%d -%d", e.Remote, e.Added, e.Modified, e.Removed)
			if e.DryRun {
				line += labelStyle.Render("  (dry run)")
			}
		}
		_, _ = fmt.Fprintln(w, line)
		if !e.Succeeded() && e.Message != "" {
			_, _ = fmt.Fprintf(w, "    %s\n", e.Message)
		}
	}
}
