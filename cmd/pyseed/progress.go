package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"pyseed/internal/app"
)

// reporter shows the current stage of a long-running step.
type reporter interface {
	Stage(stage string)
	Stop()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// newReporter picks the richest display the terminal supports: an animated
// bubbletea line, a plain spinner for colorless terminals, or one line per
// stage when output is not a terminal.
func (c *cli) newReporter() reporter {
	if c.plain || !c.interactive() {
		return &lineReporter{w: c.stderr}
	}
	if termenv.NewOutput(c.stderr).EnvColorProfile() == termenv.Ascii {
		return newStageSpinner(c.stderr, spinnerDelay)
	}
	return newProgressDisplay(c.stderr)
}

// stage forwards App progress. The display is torn down before the process
// is replaced.
func (c *cli) stage(name string) {
	if name == app.StageRelaunching || name == app.StageRestarting {
		c.stopProgress()
		return
	}
	if c.progress == nil {
		c.progress = c.newReporter()
	}
	c.progress.Stage(name)
}

func (c *cli) stopProgress() {
	if c.progress == nil {
		return
	}
	c.progress.Stop()
	c.progress = nil
}

// lineReporter prints each new stage once.
type lineReporter struct {
	mu   sync.Mutex
	w    io.Writer
	last string
}

func (l *lineReporter) Stage(stage string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if stage == l.last {
		return
	}
	l.last = stage
	_, _ = fmt.Fprintf(l.w, "pyseed: %s\n", stageMessage(stage))
}

func (l *lineReporter) Stop() {}

var stageMessages = map[string]string{
	"creating environment":       "Creating the Python environment...",
	"installing dependencies":    "Installing dependencies...",
	"checking repository access": "Checking repository access...",
	"authenticating":             "Waiting for authorization...",
	"checking version":           "Comparing versions...",
	"validating":                 "Validating the remote tree...",
	"installing":                 "Installing the update...",
}

func stageMessage(stage string) string {
	if msg, ok := stageMessages[stage]; ok {
		return msg
	}
	if rest, ok := strings.CutPrefix(stage, "fetching "); ok {
		return fmt.Sprintf("Fetching %s...", rest)
	}
	if stage == "" {
		return "Working..."
	}
	return strings.ToUpper(stage[:1]) + stage[1:] + "..."
}

// progressModel is a one-line bubbletea view: spinner plus stage text.
type progressModel struct {
	spinner spinner.Model
	stage   string
	done    bool
	updates chan progressUpdate
}

type progressUpdate struct {
	stage string
	done  bool
}

type progressMsg progressUpdate

func newProgressModel() *progressModel {
	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = spinnerStyle
	return &progressModel{
		spinner: s,
		updates: make(chan progressUpdate, 16),
	}
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForUpdate())
}

func (m *progressModel) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		return progressMsg(<-m.updates)
	}
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case progressMsg:
		if msg.done {
			m.done = true
			return m, tea.Quit
		}
		m.stage = msg.stage
		return m, m.waitForUpdate()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) View() string {
	if m.done || m.stage == "" {
		return ""
	}
	return m.spinner.View() + " " + statusStyle.Render(stageMessage(m.stage))
}

func (m *progressModel) send(u progressUpdate) {
	select {
	case m.updates <- u:
	default:
	}
}

// progressDisplay runs the bubbletea program inline on the writer without
// reading input, so the terminal stays in cooked mode for prompts and exec.
type progressDisplay struct {
	program *tea.Program
	model   *progressModel
	done    chan struct{}
	mu      sync.Mutex
	stopped bool
}

func newProgressDisplay(w io.Writer) *progressDisplay {
	model := newProgressModel()
	program := tea.NewProgram(
		model,
		tea.WithOutput(w),
		tea.WithInput(nil),
		tea.WithoutSignalHandler(),
	)
	d := &progressDisplay{
		program: program,
		model:   model,
		done:    make(chan struct{}),
	}
	go func() {
		_, _ = program.Run()
		close(d.done)
	}()
	return d
}

func (d *progressDisplay) Stage(stage string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.model.send(progressUpdate{stage: stage})
}

func (d *progressDisplay) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.mu.Unlock()

	d.model.send(progressUpdate{done: true})
	select {
	case <-d.done:
	case <-time.After(500 * time.Millisecond):
		d.program.Kill()
	}
}

var (
	accentColor = lipgloss.Color("#7D56F4")
	spinColor   = lipgloss.Color("#FF79C6")
	dimColor    = lipgloss.Color("#6272A4")
	textColor   = lipgloss.Color("#F8F8F2")
	okColor     = lipgloss.Color("#50FA7B")
	warnColor   = lipgloss.Color("#FFB86C")
	errColor    = lipgloss.Color("#FF5555")

	spinnerStyle = lipgloss.NewStyle().Foreground(spinColor)
	statusStyle  = lipgloss.NewStyle().Foreground(textColor)
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	labelStyle   = lipgloss.NewStyle().Foreground(dimColor)
	okStyle      = lipgloss.NewStyle().Foreground(okColor)
	warnStyle    = lipgloss.NewStyle().Foreground(warnColor)
	errStyle     = lipgloss.NewStyle().Bold(true).Foreground(errColor)
	codeStyle    = lipgloss.NewStyle().Bold(true).Foreground(spinColor).
			Border(lipgloss.RoundedBorder()).BorderForeground(accentColor).Padding(0, 2)
)
