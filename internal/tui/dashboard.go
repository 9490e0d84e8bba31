package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/swarm/internal/engine"
	"github.com/ShayCichocki/swarm/internal/orchestrator"
	"github.com/ShayCichocki/swarm/pkg/models"
)

// maxLogLines bounds the event log kept by the dashboard.
const maxLogLines = 200

// refreshInterval is how often the queue snapshot is re-read.
const refreshInterval = time.Second

type (
	eventMsg        orchestrator.Event
	eventsClosedMsg struct{}
	snapshotMsg     Snapshot
	tickMsg         time.Time
	outcomeMsg      struct {
		out *orchestrator.Outcome
		err error
	}
	noteAddedMsg struct {
		note  *models.Note
		tasks []*models.Task
		err   error
	}
)

// Dashboard is the bubbletea model of the live queue view.
type Dashboard struct {
	ctx     context.Context
	backend Backend
	events  <-chan orchestrator.Event

	header *Header
	footer *Footer
	input  *InputField

	snapshot Snapshot
	logs     []string
	busy     bool
	width    int
	height   int
	quitting bool

	sectionStyle lipgloss.Style
	runningStyle lipgloss.Style
	blockedStyle lipgloss.Style
	errorStyle   lipgloss.Style
	dimStyle     lipgloss.Style
}

// NewDashboard creates a dashboard over backend. events may be nil.
func NewDashboard(ctx context.Context, backend Backend, events <-chan orchestrator.Event, version string) *Dashboard {
	return &Dashboard{
		ctx:     ctx,
		backend: backend,
		events:  events,
		header:  NewHeader(version),
		footer:  NewFooter(),
		input:   NewInputField(),
		width:   80,
		height:  24,

		sectionStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true),
		runningStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")),
		blockedStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")),
		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")),
		dimStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")),
	}
}

// Logs returns the event log lines, oldest first.
func (d *Dashboard) Logs() []string { return d.logs }

// Init implements tea.Model.
func (d *Dashboard) Init() tea.Cmd {
	return tea.Batch(d.refresh(), d.waitForEvent(), tick())
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (d *Dashboard) refresh() tea.Cmd {
	return func() tea.Msg { return snapshotMsg(d.backend.Snapshot()) }
}

func (d *Dashboard) waitForEvent() tea.Cmd {
	if d.events == nil {
		return nil
	}
	ch := d.events
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(ev)
	}
}

// Update implements tea.Model.
func (d *Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return d.handleKey(msg)

	case tea.WindowSizeMsg:
		d.width = msg.Width
		d.height = msg.Height
		d.header.SetWidth(msg.Width)
		d.footer.SetWidth(msg.Width)
		d.input.SetWidth(msg.Width)
		return d, nil

	case snapshotMsg:
		d.snapshot = Snapshot(msg)
		d.header.SetAutoMode(d.snapshot.AutoMode)
		d.footer.SetQueue(d.snapshot.Queue)
		return d, nil

	case tickMsg:
		return d, tea.Batch(d.refresh(), tick())

	case eventMsg:
		d.appendLog(formatEvent(orchestrator.Event(msg)))
		return d, tea.Batch(d.refresh(), d.waitForEvent())

	case eventsClosedMsg:
		d.events = nil
		return d, nil

	case outcomeMsg:
		d.busy = false
		d.handleOutcome(msg)
		return d, d.refresh()

	case NoteSubmittedMsg:
		text := msg.Text
		ctx := d.ctx
		return d, func() tea.Msg {
			note, tasks, err := d.backend.AddNote(ctx, text)
			return noteAddedMsg{note: note, tasks: tasks, err: err}
		}

	case noteAddedMsg:
		switch {
		case msg.err != nil:
			d.footer.SetMessage(msg.err.Error(), false)
		default:
			d.footer.SetMessage(fmt.Sprintf("added %s (%d tasks)", msg.note.ID, len(msg.tasks)), true)
		}
		return d, d.refresh()
	}

	if d.input.Focused() {
		var cmd tea.Cmd
		d.input, cmd = d.input.Update(msg)
		return d, cmd
	}
	return d, nil
}

func (d *Dashboard) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		d.quitting = true
		return d, tea.Quit
	}

	if d.input.Focused() {
		if msg.Type == tea.KeyEsc {
			d.input.Blur()
			d.footer.SetInputFocused(false)
			return d, nil
		}
		var cmd tea.Cmd
		d.input, cmd = d.input.Update(msg)
		if msg.Type == tea.KeyEnter {
			d.input.Blur()
			d.footer.SetInputFocused(false)
		}
		return d, cmd
	}

	switch msg.String() {
	case "q":
		d.quitting = true
		return d, tea.Quit
	case "a":
		on := d.backend.ToggleAutoMode()
		d.header.SetAutoMode(on)
		d.footer.SetMessage(fmt.Sprintf("auto mode %s", onOff(on)), true)
		return d, d.refresh()
	case "n":
		if d.busy {
			d.footer.SetMessage("a task is already being orchestrated", false)
			return d, nil
		}
		d.busy = true
		ctx := d.ctx
		return d, func() tea.Msg {
			out, err := d.backend.OrchestrateNext(ctx)
			return outcomeMsg{out: out, err: err}
		}
	case "i":
		d.footer.SetInputFocused(true)
		return d, d.input.Focus()
	}
	return d, nil
}

func (d *Dashboard) handleOutcome(msg outcomeMsg) {
	if msg.err != nil {
		d.footer.SetMessage(msg.err.Error(), false)
		return
	}
	switch msg.out.Kind {
	case orchestrator.OutcomeIdle:
		d.footer.SetMessage(fmt.Sprintf("nothing ready (%d blocked)", len(msg.out.Blocked)), true)
	case orchestrator.OutcomeCompleted:
		d.footer.SetMessage("completed "+msg.out.Task.Title, true)
	case orchestrator.OutcomeFailed:
		d.footer.SetMessage("failed "+msg.out.Task.Title, false)
	}
}

func (d *Dashboard) appendLog(line string) {
	d.logs = append(d.logs, line)
	if len(d.logs) > maxLogLines {
		d.logs = d.logs[len(d.logs)-maxLogLines:]
	}
}

// View implements tea.Model.
func (d *Dashboard) View() string {
	if d.quitting {
		return ""
	}

	var sections []string
	sections = append(sections, d.header.View(), "")

	sections = append(sections, d.sectionStyle.Render(fmt.Sprintf("Running (%d)", len(d.snapshot.Active))))
	if len(d.snapshot.Active) == 0 {
		sections = append(sections, d.dimStyle.Render("  none"))
	}
	for _, t := range d.snapshot.Active {
		elapsed := ""
		if t.StartedAt != nil {
			elapsed = time.Since(*t.StartedAt).Round(time.Second).String()
		}
		sections = append(sections, d.runningStyle.Render(
			fmt.Sprintf("  %s %-8s %-40s %s %s", engine.ShortID(t.ID), t.Phase, truncate(t.Title, 40), t.AssignedAgent, elapsed)))
	}

	if len(d.snapshot.Blocked) > 0 {
		sections = append(sections, "", d.sectionStyle.Render(fmt.Sprintf("Blocked (%d)", len(d.snapshot.Blocked))))
		for _, b := range d.snapshot.Blocked {
			sections = append(sections, d.blockedStyle.Render(
				fmt.Sprintf("  %s %s (after %s)", engine.ShortID(b.Task.ID), truncate(b.Task.Title, 40), engine.ShortID(b.FailedID))))
		}
	}

	sections = append(sections, "", d.sectionStyle.Render("Events"))
	used := len(sections) + 3
	if d.input.Focused() {
		used += 3
	}
	room := d.height - used
	if room < 3 {
		room = 3
	}
	logs := d.logs
	if len(logs) > room {
		logs = logs[len(logs)-room:]
	}
	for _, l := range logs {
		sections = append(sections, "  "+l)
	}

	sections = append(sections, "")
	if d.input.Focused() {
		sections = append(sections, d.input.View())
	}
	sections = append(sections, d.footer.View())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func formatEvent(ev orchestrator.Event) string {
	ts := ev.Timestamp.Format("15:04:05")
	subject := ev.NoteID
	if ev.TaskID != "" {
		subject = engine.ShortID(ev.TaskID) + " " + truncate(ev.TaskTitle, 40)
	}

	line := fmt.Sprintf("%s %-15s %s", ts, ev.Type, subject)
	if ev.AgentID != "" {
		line += " [" + ev.AgentID + "]"
	}
	if ev.Duration > 0 {
		line += " " + ev.Duration.Round(time.Second).String()
	}
	if ev.Message != "" {
		line += " " + ev.Message
	}
	if ev.Error != nil {
		line += ": " + ev.Error.Error()
	}
	return strings.TrimSpace(line)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

// RunDashboard runs the dashboard until the user quits or ctx ends.
func RunDashboard(ctx context.Context, backend Backend, events <-chan orchestrator.Event, version string) error {
	program := tea.NewProgram(NewDashboard(ctx, backend, events, version),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	_, err := program.Run()
	return err
}
