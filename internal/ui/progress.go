package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/mcao2/readwise-ankify/internal/anki"
)

// ProgressMsg carries one upsert update into the model
type ProgressMsg struct {
	Update anki.Progress
}

// UpsertFinishedMsg is sent once the progress channel is closed
type UpsertFinishedMsg struct{}

// ProgressModel shows a progress bar while items are written to Anki
type ProgressModel struct {
	styles   Styles
	keys     KeyMap
	spinner  spinner.Model
	progress progress.Model
	updates  <-chan anki.Progress

	total   int
	current int
	created int
	updated int
	failed  int
	lastID  string
	done    bool
	hidden  bool
	width   int
}

// NewProgressModel creates a model reading updates until the channel closes
func NewProgressModel(total int, updates <-chan anki.Progress) *ProgressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))

	p := progress.New(
		progress.WithDefaultGradient(),
		progress.WithoutPercentage(),
	)

	return &ProgressModel{
		styles:   DefaultStyles(),
		keys:     DefaultKeyMap(),
		spinner:  s,
		progress: p,
		updates:  updates,
		total:    total,
	}
}

func (m *ProgressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForUpdate())
}

func (m *ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progress.Width = max(msg.Width-8, 10)

	case tea.KeyMsg:
		if keyMatches(msg, m.keys.Quit) {
			m.hidden = true
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		return m, cmd

	case ProgressMsg:
		m.apply(msg.Update)
		cmd := m.progress.SetPercent(m.Percent())
		return m, tea.Batch(cmd, m.waitForUpdate())

	case UpsertFinishedMsg:
		m.done = true
		return m, tea.Quit
	}

	return m, nil
}

func (m *ProgressModel) apply(p anki.Progress) {
	m.current = p.Current
	if p.Total > 0 {
		m.total = p.Total
	}
	m.lastID = p.SourceID
	switch {
	case p.Err != nil || p.Outcome == anki.OutcomeFailed:
		m.failed++
	case p.Outcome == anki.OutcomeCreated:
		m.created++
	case p.Outcome == anki.OutcomeUpdated:
		m.updated++
	}
}

// Percent returns the completed share of items
func (m *ProgressModel) Percent() float64 {
	if m.total == 0 {
		return 0
	}
	return float64(m.current) / float64(m.total)
}

// Counts returns how many items were created, updated and failed so far
func (m *ProgressModel) Counts() (created, updated, failed int) {
	return m.created, m.updated, m.failed
}

func (m *ProgressModel) waitForUpdate() tea.Cmd {
	ch := m.updates
	return func() tea.Msg {
		p, ok := <-ch
		if !ok {
			return UpsertFinishedMsg{}
		}
		return ProgressMsg{Update: p}
	}
}

func (m *ProgressModel) View() string {
	if m.hidden {
		return ""
	}

	status := fmt.Sprintf("Upserted %d/%d", m.current, m.total)
	if m.lastID != "" && !m.done {
		status += "  " + m.styles.Help.Render(Truncate(m.lastID, 40))
	}

	counts := fmt.Sprintf("%s  %s  %s",
		m.styles.Success.Render(fmt.Sprintf("%d created", m.created)),
		m.styles.Normal.Render(fmt.Sprintf("%d updated", m.updated)),
		m.styles.Error.Render(fmt.Sprintf("%d failed", m.failed)),
	)

	prefix := m.spinner.View()
	if m.done {
		prefix = m.styles.Success.Render("✓")
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		fmt.Sprintf("%s %s  %s", prefix, status, m.styles.Help.Render(fmt.Sprintf("%.0f%%", m.Percent()*100))),
		m.progress.View(),
		counts,
		"",
	)
}

// RunProgress renders the progress bar on stderr until updates is closed.
// If the view cannot start, or the user hides it, the remaining updates
// are still drained so the writer never blocks.
func RunProgress(total int, updates <-chan anki.Progress) {
	runProgress(total, updates, os.Stderr)
}

func runProgress(total int, updates <-chan anki.Progress, out io.Writer) {
	m := NewProgressModel(total, updates)
	p := tea.NewProgram(m, tea.WithOutput(out))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(out, "progress view failed: %v\n", err)
	}
	for range updates {
	}
}

// Truncate shortens s to maxLen display cells
func Truncate(s string, maxLen int) string {
	if runewidth.StringWidth(s) > maxLen {
		return runewidth.Truncate(s, maxLen, "…")
	}
	return s
}
