package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/swarm/internal/engine"
)

// Footer renders the queue counts, the status message and keyboard hints.
type Footer struct {
	message      string
	success      bool
	width        int
	queue        engine.QueueStatus
	inputFocused bool

	// Styles
	successStyle   lipgloss.Style
	errorStyle     lipgloss.Style
	hintStyle      lipgloss.Style
	separatorStyle lipgloss.Style
}

// NewFooter creates a new Footer instance.
func NewFooter() *Footer {
	return &Footer{
		successStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("28")).
			Bold(true),

		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true),

		hintStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),

		separatorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("236")),
	}
}

// SetMessage sets the status message.
func (f *Footer) SetMessage(message string, success bool) {
	f.message = message
	f.success = success
}

// SetWidth sets the footer width.
func (f *Footer) SetWidth(width int) {
	f.width = width
}

// SetQueue updates the queue counts for display.
func (f *Footer) SetQueue(q engine.QueueStatus) {
	f.queue = q
}

// SetInputFocused switches the hints between input and navigation keys.
func (f *Footer) SetInputFocused(focused bool) {
	f.inputFocused = focused
}

// View renders the footer.
func (f *Footer) View() string {
	counts := fmt.Sprintf("✓%d", f.queue.Completed)
	if f.queue.Failed > 0 {
		counts += f.errorStyle.Render(fmt.Sprintf(" ✗%d", f.queue.Failed))
	}
	if f.queue.InProgress > 0 {
		counts += fmt.Sprintf(" ⏳%d", f.queue.InProgress)
	}
	counts += fmt.Sprintf(" ready %d", f.queue.Ready)
	if f.queue.Blocked > 0 {
		counts += fmt.Sprintf(" blocked %d", f.queue.Blocked)
	}

	sep := f.separatorStyle.Render(" │ ")
	left := counts
	if f.message != "" {
		style := f.errorStyle
		if f.success {
			style = f.successStyle
		}
		left += sep + style.Render(f.message)
	}
	return left + sep + f.keyboardHints()
}

// keyboardHints returns context-sensitive keyboard hints.
func (f *Footer) keyboardHints() string {
	if f.inputFocused {
		return f.hintStyle.Render("enter add note │ esc cancel")
	}
	return f.hintStyle.Render("a auto │ n next │ i add note │ q quit")
}
