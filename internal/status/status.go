// Package status tracks the outcome shown by the status indicator.
package status

import (
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Status is the outcome of the last formatting request.
type Status string

const (
	Ready    Status = "ready"
	Success  Status = "success"
	Ignored  Status = "ignored"
	Warning  Status = "warning"
	Error    Status = "error"
	Disabled Status = "disabled"
)

var icons = map[Status]string{
	Ready:    "✓✓",
	Success:  "✓",
	Ignored:  "✗",
	Warning:  "⚠",
	Error:    "!",
	Disabled: "⊘",
}

var styles = map[Status]lipgloss.Style{
	Ready:    lipgloss.NewStyle().Faint(true),
	Success:  lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
	Ignored:  lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
	Warning:  lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
	Error:    lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
	Disabled: lipgloss.NewStyle().Faint(true),
}

// Icon returns the glyph shown for s.
func (s Status) Icon() string {
	if icon, ok := icons[s]; ok {
		return icon
	}
	return "?"
}

// Style returns the lipgloss style for s.
func (s Status) Style() lipgloss.Style {
	if st, ok := styles[s]; ok {
		return st
	}
	return lipgloss.NewStyle()
}

// Render returns the styled icon and label.
func (s Status) Render() string {
	return s.Style().Render(s.Icon() + " " + string(s))
}

// Severity orders statuses for aggregating batch results; higher is worse.
func (s Status) Severity() int {
	switch s {
	case Error:
		return 4
	case Warning:
		return 3
	case Ignored, Disabled:
		return 1
	default:
		return 0
	}
}

// Indicator holds the last reported status. Reset and Update notify the
// optional OnChange callback.
type Indicator struct {
	mu       sync.Mutex
	current  Status
	label    string
	onChange func(Status)
}

// NewIndicator returns an indicator in the ready state.
func NewIndicator(label string) *Indicator {
	return &Indicator{current: Ready, label: label}
}

// OnChange registers fn to observe updates.
func (i *Indicator) OnChange(fn func(Status)) {
	i.mu.Lock()
	i.onChange = fn
	i.mu.Unlock()
}

// Update records s.
func (i *Indicator) Update(s Status) {
	i.mu.Lock()
	i.current = s
	fn := i.onChange
	i.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

// Reset returns to the ready state.
func (i *Indicator) Reset() { i.Update(Ready) }

// Current returns the last reported status.
func (i *Indicator) Current() Status {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.current
}

// View renders the indicator text.
func (i *Indicator) View() string {
	i.mu.Lock()
	s, label := i.current, i.label
	i.mu.Unlock()
	if label == "" {
		return s.Render()
	}
	return s.Style().Render(s.Icon() + " " + label)
}
