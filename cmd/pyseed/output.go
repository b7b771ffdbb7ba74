package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/reflow/wordwrap"
	"golang.org/x/term"

	"pyseed/internal/github"
	"pyseed/internal/update"
)

const defaultWidth = 80

// outputWidth returns the terminal width of w, or defaultWidth.
func outputWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return defaultWidth
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return defaultWidth
	}
	return width
}

func buildMarkdownRenderer(width int) func(string) string {
	fallback := func(input string) string {
		return wordwrap.String(input, width)
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return fallback
	}
	return func(input string) string {
		out, err := renderer.Render(input)
		if err != nil {
			return fallback(input)
		}
		return strings.TrimSpace(out)
	}
}

// printMarkdown renders md on a terminal and writes it raw otherwise, so
// piped reports stay valid Markdown.
func (c *cli) printMarkdown(md string) {
	if c.plain || !isTerminal(c.stdout) {
		_, _ = fmt.Fprint(c.stdout, md)
		return
	}
	render := buildMarkdownRenderer(outputWidth(c.stdout))
	_, _ = fmt.Fprintln(c.stdout, render(md))
}

func (c *cli) printReport(res update.Result) {
	c.printMarkdown(res.Markdown())
}

// showDeviceCode prints the device flow instructions. Progress output is
// stopped first so the code stays on screen.
func (c *cli) showDeviceCode(code github.DeviceCode, copied bool) {
	c.stopProgress()
	w := c.stderr
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, titleStyle.Render("GitHub authorization required"))
	_, _ = fmt.Fprintf(w, "Open %s and enter this code:\n\n", code.VerificationURI)
	_, _ = fmt.Fprintln(w, codeStyle.Render(code.UserCode))
	if copied {
		_, _ = fmt.Fprintln(w, labelStyle.Render("The code has been copied to your clipboard."))
	}
	_, _ = fmt.Fprintln(w, labelStyle.Render("Waiting for approval..."))
	_, _ = fmt.Fprintln(w)
}

// row is one aligned label/value line.
type row struct {
	label string
	value string
}

func writeRows(w io.Writer, rows []row) {
	width := 0
	for _, r := range rows {
		width = max(width, ansi.StringWidth(r.label))
	}
	for _, r := range rows {
		pad := strings.Repeat(" ", width-ansi.StringWidth(r.label))
		_, _ = fmt.Fprintf(w, "  %s%s  %s\n", labelStyle.Render(r.label), pad, r.value)
	}
}

func writeSection(w io.Writer, title string, rows []row) {
	_, _ = fmt.Fprintln(w, titleStyle.Render(title))
	writeRows(w, rows)
	_, _ = fmt.Fprintln(w)
}

func yesNo(b bool) string {
	if b {
		return okStyle.Render("yes")
	}
	return warnStyle.Render("no")
}

// printStatus reports the environment, project mode and remote. check adds
// a version comparison against the remote.
func (c *cli) printStatus(ctx context.Context, check bool) error {
	a := c.app
	st := a.EnvironmentStatus(ctx)

	env := []row{
		{"Context", st.Context.String()},
		{"Data", st.DataRoot},
		{"Environment", st.Descriptor.Root},
		{"Ready", yesNo(st.Environment.Present)},
	}
	if st.Environment.Python != "" {
		env = append(env, row{"Python", st.Environment.Python})
	}
	if st.Environment.Marker != nil {
		env = append(env,
			row{"Built", st.Environment.Marker.CompletedAt.Local().Format("2006-01-02 15:04")},
			row{"In sync", yesNo(st.Environment.ManifestSync)},
		)
	}
	if st.Environment.Reason != "" {
		env = append(env, row{"Note", st.Environment.Reason})
	}
	writeSection(c.stdout, "Environment", env)

	o, err := a.Override("", nil)
	if err != nil {
		return err
	}
	cl := a.Classify(o)
	proj := []row{
		{"Root", a.Root},
		{"Mode", fmt.Sprintf("%s (%s)", cl.Mode.Short(), cl.Source)},
	}
	if cl.Ambiguous {
		proj = append(proj, row{"Warning", warnStyle.Render(cl.Reason)})
	}
	repo := a.Repo
	if repo == "" {
		repo = "origin remote"
	}
	proj = append(proj, row{"Remote", repo})
	writeSection(c.stdout, "Project", proj)

	if !check {
		return nil
	}
	info, err := a.CheckVersion(ctx, "")
	c.stopProgress()
	if err != nil {
		return err
	}
	state := okStyle.Render("up to date")
	if info.UpdateAvailable {
		state = warnStyle.Render("update available")
	}
	writeSection(c.stdout, "Version", []row{
		{"File", info.Path},
		{"Local", info.Local.String()},
		{"Remote", info.Remote.String()},
		{"Status", state},
	})
	return nil
}
