// Package dashboard renders a live terminal view of a run: progress bar,
// status counts and current worker assignments. The run itself executes in
// the background; quitting the view does not cancel it.
package dashboard

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/herdhq/herd/internal/orchestrator"
	"github.com/herdhq/herd/internal/work"
)

var (
	primaryColor   = lipgloss.Color("#7D56F4")
	secondaryColor = lipgloss.Color("#6C6C6C")
	successColor   = lipgloss.Color("#73F59F")
	errorColor     = lipgloss.Color("#FF6B6B")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	subtleStyle = lipgloss.NewStyle().
			Foreground(secondaryColor)

	successStyle = lipgloss.NewStyle().
			Foreground(successColor)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	spinnerStyle = lipgloss.NewStyle().
			Foreground(primaryColor)
)

const (
	filledChar = "■"
	emptyChar  = "□"
	barWidth   = 30
)

// renderBar renders a progress bar like: ■■■■□□□□ 50%
func renderBar(completed, total, width int) string {
	if total <= 0 || width <= 0 {
		return ""
	}
	if completed < 0 {
		completed = 0
	}
	if completed > total {
		completed = total
	}

	percent := (completed * 100) / total
	filled := (completed * width) / total
	bar := strings.Repeat(filledChar, filled) + strings.Repeat(emptyChar, width-filled)
	return fmt.Sprintf("%s %d%%", bar, percent)
}

// tickMsg drives the once-per-second status refresh.
type tickMsg time.Time

// DoneMsg is sent by the run goroutine when the orchestrator returns.
type DoneMsg struct {
	Result *orchestrator.Result
}

// Model is the bubbletea model for the run dashboard.
type Model struct {
	title  string
	orch   *orchestrator.Orchestrator
	cancel func()

	spinner     spinner.Model
	status      orchestrator.ProjectStatus
	assignments map[string]string
	result      *orchestrator.Result
	canceling   bool

	width int
}

// New creates a dashboard over a running orchestrator. cancel hard-stops the
// run when the user presses ctrl+c.
func New(title string, orch *orchestrator.Orchestrator, cancel func()) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	return Model{
		title:       title,
		orch:        orch,
		cancel:      cancel,
		spinner:     s,
		status:      orch.Status(),
		assignments: orch.Assignments(),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case spinner.TickMsg:
		if m.result != nil {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		if m.result != nil {
			return m, nil
		}
		m.status = m.orch.Status()
		m.assignments = m.orch.Assignments()
		return m, tickCmd()

	case DoneMsg:
		m.result = msg.Result
		return m, tea.Quit

	case tea.KeyMsg:
		switch msg.String() {
		case "q":
			// Leave the view; the run keeps going and the CLI prints the
			// plain-text summary when it finishes.
			return m, tea.Quit
		case "ctrl+c":
			if !m.canceling && m.cancel != nil {
				m.canceling = true
				m.cancel()
			}
			return m, nil
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n")

	if m.result != nil {
		return b.String() + m.finalView()
	}

	if m.canceling {
		b.WriteString(errorStyle.Render("Canceling run..."))
	} else {
		b.WriteString(fmt.Sprintf("%s %d in flight", m.spinner.View(), m.status.InFlight))
	}
	b.WriteString("\n\n")

	b.WriteString(renderBar(m.status.Completed, m.status.Total, barWidth))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("✓ %d completed   ✗ %d failed   ⧗ %d ready   ⊘ %d blocked\n",
		m.status.Completed, m.status.Failed, m.status.Ready, m.status.Blocked))

	b.WriteString(subtleStyle.Render(fmt.Sprintf("Elapsed %s", work.FormatDuration(m.status.Elapsed))))
	if m.status.ETA > 0 {
		b.WriteString(subtleStyle.Render(fmt.Sprintf("   ETA %s", work.FormatDuration(m.status.ETA))))
	}
	b.WriteString("\n")

	if len(m.assignments) > 0 {
		b.WriteString("\n")
		workers := make([]string, 0, len(m.assignments))
		for w := range m.assignments {
			workers = append(workers, w)
		}
		sort.Strings(workers)
		for _, w := range workers {
			b.WriteString(fmt.Sprintf("  %s → %s\n", w, m.assignments[w]))
		}
	}

	b.WriteString("\n")
	b.WriteString(subtleStyle.Render("q: close view • ctrl+c: cancel run"))
	b.WriteString("\n")
	return b.String()
}

func (m Model) finalView() string {
	var b strings.Builder

	if m.result.Success {
		b.WriteString(successStyle.Render("Run succeeded"))
	} else {
		b.WriteString(errorStyle.Render("Run finished with problems"))
	}
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("Completed: %d\nFailed:    %d\nDuration:  %s\n",
		m.result.TasksCompleted, m.result.TasksFailed, work.FormatDuration(m.result.Duration)))
	if len(m.result.Blockers) > 0 {
		b.WriteString(fmt.Sprintf("Blockers:  %s\n", strings.Join(m.result.Blockers, ", ")))
	}
	return b.String()
}
