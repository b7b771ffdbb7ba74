package update

import (
	"fmt"
	"strings"
)

// maxListed caps each file list in the report.
const maxListed = 25

// Markdown renders the result as a short Markdown report.
func (r Result) Markdown() string {
	var b strings.Builder
	title := "Update applied"
	if r.DryRun {
		title = "Update plan (dry run)"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| Remote | `%s` |\n", r.Plan.Ref)
	if r.Plan.Revision != "" {
		fmt.Fprintf(&b, "| Revision | `%s` |\n", r.Plan.Revision)
	}
	fmt.Fprintf(&b, "| Mode | %s |\n", r.Plan.Mode)
	fmt.Fprintf(&b, "| Scope | %s |\n", r.Plan.Scope)
	fmt.Fprintf(&b, "| Unchanged | %d |\n\n", r.Summary.Unchanged)

	if !r.Summary.Changed() {
		b.WriteString("Project is identical to the remote.\n")
		return b.String()
	}
	writeList(&b, "Added", r.Summary.Added)
	writeList(&b, "Modified", r.Summary.Modified)
	writeList(&b, "Removed", r.Summary.Removed)
	return b.String()
}

func writeList(b *strings.Builder, heading string, paths []string) {
	if len(paths) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s (%d)\n\n", heading, len(paths))
	for i, p := range paths {
		if i == maxListed {
			fmt.Fprintf(b, "- ... and %d more\n", len(paths)-maxListed)
			break
		}
		fmt.Fprintf(b, "- `%s`\n", p)
	}
	b.WriteString("\n")
}
