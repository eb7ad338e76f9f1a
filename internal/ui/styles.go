package ui

import "github.com/charmbracelet/lipgloss"

// Color palette for the inspect TUI.
const (
	ColorAccent   = "154" // bright lime green, primary accent
	ColorGray     = "245"
	ColorDarkGray = "238"
	ColorRed      = "196"
)

// Styles holds the lipgloss styles used by the inspect TUI.
type Styles struct {
	Header lipgloss.Style
	Active lipgloss.Style
	Dim    lipgloss.Style
	Error  lipgloss.Style
	Panel  lipgloss.Style
	Label  lipgloss.Style
}

// DefaultStyles returns the inspect TUI's default styles.
func DefaultStyles() Styles {
	return Styles{
		Header: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAccent)),
		Active: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAccent)),
		Dim:    lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDarkGray)),
		Error:  lipgloss.NewStyle().Foreground(lipgloss.Color(ColorRed)),
		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(ColorDarkGray)).
			Padding(0, 1),
		Label: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
	}
}
