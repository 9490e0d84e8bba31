package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Header renders the title bar with the auto mode indicator.
type Header struct {
	width    int
	autoMode bool
	version  string

	titleStyle lipgloss.Style
	autoStyle  lipgloss.Style
	hintStyle  lipgloss.Style
}

// NewHeader creates a new Header.
func NewHeader(version string) *Header {
	return &Header{
		width:   80,
		version: version,

		titleStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4ECDC4")).
			Bold(true),

		autoStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("34")).
			Bold(true).
			Padding(0, 1),

		hintStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).
			Italic(true),
	}
}

// SetWidth sets the header width.
func (h *Header) SetWidth(width int) {
	h.width = width
}

// SetAutoMode sets the auto mode indicator.
func (h *Header) SetAutoMode(on bool) {
	h.autoMode = on
}

// View renders the header.
func (h *Header) View() string {
	title := h.titleStyle.Render("swarm")
	if h.version != "" {
		title += h.hintStyle.Render(" " + h.version)
	}

	mode := h.hintStyle.Render("manual")
	if h.autoMode {
		mode = h.autoStyle.Render("AUTO")
	}

	gap := h.width - lipgloss.Width(title) - lipgloss.Width(mode)
	if gap < 1 {
		gap = 1
	}
	return fmt.Sprintf("%s%*s%s", title, gap, "", mode)
}

// Height returns the header height in lines.
func (h *Header) Height() int {
	return 1
}
