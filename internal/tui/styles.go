package tui

import "github.com/charmbracelet/lipgloss"

// Row states.
const (
	StatePending    = "pending"
	StateRunning    = "formatting"
	StateFormatted  = "formatted"
	StateUnchanged  = "unchanged"
	StateIgnored    = "ignored"
	StateDisabled   = "disabled"
	StateWarning    = "warning"
	StateError      = "error"
	StateCancelled  = "cancelled"
	StateWouldWrite = "would change"
	StateCached     = "cached"
)

var (
	// HeaderStyle styles the column header row.
	HeaderStyle = lipgloss.NewStyle().Bold(true)

	stateStyles = map[string]lipgloss.Style{
		StateFormatted: lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		StateUnchanged: lipgloss.NewStyle().Foreground(lipgloss.Color("2")),

		StateRunning: lipgloss.NewStyle().Foreground(lipgloss.Color("4")),

		StateIgnored:    lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		StateDisabled:   lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		StateWarning:    lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		StateWouldWrite: lipgloss.NewStyle().Foreground(lipgloss.Color("3")),

		StateError:     lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		StateCancelled: lipgloss.NewStyle().Foreground(lipgloss.Color("1")),

		StatePending: lipgloss.NewStyle().Faint(true),
		StateCached:  lipgloss.NewStyle().Faint(true),
	}
)

// StateStyle returns the style for a row state.
func StateStyle(state string) lipgloss.Style {
	if s, ok := stateStyles[state]; ok {
		return s
	}
	return lipgloss.NewStyle()
}

// Terminal reports whether state is final.
func Terminal(state string) bool {
	return state != "" && state != StatePending && state != StateRunning
}
