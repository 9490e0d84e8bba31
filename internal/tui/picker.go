package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/swarm/internal/orchestrator"
	"github.com/ShayCichocki/swarm/pkg/models"
)

// ErrPickCancelled is returned when the user dismisses the agent picker.
var ErrPickCancelled = errors.New("agent selection cancelled")

// Picker is a bubbletea model listing the agents that match a task.
type Picker struct {
	task       *models.Task
	candidates []models.AgentProfile
	cursor     int
	chosen     string
	cancelled  bool

	titleStyle    lipgloss.Style
	selectedStyle lipgloss.Style
	normalStyle   lipgloss.Style
	hintStyle     lipgloss.Style
}

// NewPicker creates a picker for task over candidates.
func NewPicker(task *models.Task, candidates []models.AgentProfile) *Picker {
	return &Picker{
		task:       task,
		candidates: candidates,

		titleStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")),

		selectedStyle: lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("15")).
			Bold(true),

		normalStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")),

		hintStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),
	}
}

// Chosen returns the picked agent id, empty until the user confirms.
func (p *Picker) Chosen() string { return p.chosen }

// Cancelled reports whether the user dismissed the picker.
func (p *Picker) Cancelled() bool { return p.cancelled }

// Init implements tea.Model.
func (p *Picker) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (p *Picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return p, nil
	}

	switch key.String() {
	case "up", "k":
		if p.cursor > 0 {
			p.cursor--
		}
	case "down", "j":
		if p.cursor < len(p.candidates)-1 {
			p.cursor++
		}
	case "enter":
		if len(p.candidates) > 0 {
			p.chosen = p.candidates[p.cursor].ID
		}
		return p, tea.Quit
	case "q", "esc", "ctrl+c":
		p.cancelled = true
		return p, tea.Quit
	default:
		// Digits jump straight to a row.
		if n := key.String(); len(n) == 1 && n[0] >= '1' && n[0] <= '9' {
			if i := int(n[0] - '1'); i < len(p.candidates) {
				p.cursor = i
			}
		}
	}
	return p, nil
}

// View implements tea.Model.
func (p *Picker) View() string {
	if p.chosen != "" || p.cancelled {
		return ""
	}

	var b strings.Builder
	b.WriteString(p.titleStyle.Render(fmt.Sprintf("Choose an agent for %s task: %s", p.task.Phase, p.task.Title)))
	b.WriteString("\n\n")
	for i, c := range p.candidates {
		line := fmt.Sprintf(" %d. %-16s %s", i+1, c.ID, strings.Join(c.Capabilities, ", "))
		if i == p.cursor {
			b.WriteString(p.selectedStyle.Render(line))
		} else {
			b.WriteString(p.normalStyle.Render(line))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(p.hintStyle.Render("↑/↓ move │ enter choose │ q cancel"))
	b.WriteString("\n")
	return b.String()
}

// PickerChooser asks the user to pick among matching agents.
type PickerChooser struct {
	in  io.Reader
	out io.Writer
	// mu keeps one picker on the terminal at a time.
	mu sync.Mutex
}

var _ orchestrator.Chooser = (*PickerChooser)(nil)

// NewPickerChooser creates a chooser that draws on out and reads keys from in.
func NewPickerChooser(in io.Reader, out io.Writer) *PickerChooser {
	return &PickerChooser{in: in, out: out}
}

// Choose runs the picker until the user confirms or cancels.
func (c *PickerChooser) Choose(ctx context.Context, task *models.Task, candidates []models.AgentProfile) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	picker := NewPicker(task, candidates)
	program := tea.NewProgram(picker,
		tea.WithContext(ctx),
		tea.WithInput(c.in),
		tea.WithOutput(c.out),
	)
	final, err := program.Run()
	if err != nil {
		return "", fmt.Errorf("agent picker: %w", err)
	}

	result := final.(*Picker)
	if result.Cancelled() || result.Chosen() == "" {
		return "", ErrPickCancelled
	}
	return result.Chosen(), nil
}
