package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

const (
	marqueeGap  = "   "
	pathWidth   = 48
	stateWidth  = 12
	elapsedWide = 8
)

// FileRow is one line of the batch table.
type FileRow struct {
	Path    string
	State   string
	Detail  string
	Elapsed time.Duration
}

// ProgressModel renders a live table of files being formatted.
type ProgressModel struct {
	title string
	rows  []FileRow
	index map[string]int
	spin  spinner.Model

	// tick advances the marquee of long paths.
	tick        int
	done        bool
	interrupted bool
	err         error
}

// NewProgressModel creates a model with one pending row per path.
func NewProgressModel(title string, paths []string) ProgressModel {
	m := ProgressModel{
		title: title,
		index: make(map[string]int, len(paths)),
		spin:  spinner.New(spinner.WithSpinner(spinner.MiniDot)),
	}
	for _, p := range paths {
		m.index[p] = len(m.rows)
		m.rows = append(m.rows, FileRow{Path: p, State: StatePending})
	}
	return m
}

// Init satisfies the tea.Model interface.
func (m ProgressModel) Init() tea.Cmd {
	return m.spin.Tick
}

// Update satisfies the tea.Model interface.
func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		m.tick++
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case FileStartedMsg:
		if row := m.row(msg.Path); row != nil {
			row.State = StateRunning
		}
		return m, nil

	case FileDoneMsg:
		if row := m.row(msg.Path); row != nil {
			row.State = msg.State
			row.Detail = msg.Detail
			row.Elapsed = msg.Elapsed
		}
		return m, nil

	case WorkDoneMsg:
		m.done = true
		return m, tea.Quit

	case ErrorMsg:
		m.err = msg.Err
		m.done = true
		return m, tea.Quit

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.done = true
			m.interrupted = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m *ProgressModel) row(path string) *FileRow {
	idx, ok := m.index[path]
	if !ok {
		return nil
	}
	return &m.rows[idx]
}

// View satisfies the tea.Model interface.
func (m ProgressModel) View() string {
	if m.done && m.err != nil {
		return fmt.Sprintf("Error: %v\n", m.err)
	}
	var b strings.Builder
	writeTable(&b, m.rows, func(path string) string {
		if !m.done && len(path) > pathWidth {
			return marqueeText(path, pathWidth, m.tick)
		}
		return TruncateLeft(path, pathWidth)
	})
	if !m.done {
		processed, total := m.progressCounts()
		fmt.Fprintf(&b, "\n%s Formatting %d/%d files...\n", m.spin.View(), processed, total)
	}
	return b.String()
}

// Rows returns a copy of the table.
func (m ProgressModel) Rows() []FileRow {
	return append([]FileRow(nil), m.rows...)
}

func (m ProgressModel) progressCounts() (int, int) {
	processed := 0
	for _, row := range m.rows {
		if Terminal(row.State) {
			processed++
		}
	}
	return processed, len(m.rows)
}

// Done returns whether the model has finished.
func (m ProgressModel) Done() bool { return m.done }

// Interrupted reports whether the user quit before the work finished.
func (m ProgressModel) Interrupted() bool { return m.interrupted }

// Err returns any fatal error that occurred.
func (m ProgressModel) Err() error { return m.err }

// Table renders rows as a static table followed by a summary line.
func Table(rows []FileRow) string {
	var b strings.Builder
	writeTable(&b, rows, func(path string) string { return TruncateLeft(path, pathWidth) })
	b.WriteString("\n" + Summary(rows) + "\n")
	return b.String()
}

func writeTable(b *strings.Builder, rows []FileRow, fitPath func(string) string) {
	width := len("FILE")
	for _, row := range rows {
		width = max(width, min(len(row.Path), pathWidth))
	}
	header := []string{pad("FILE", width), pad("STATE", stateWidth), pad("TIME", elapsedWide), "DETAIL"}
	for i := range header {
		header[i] = HeaderStyle.Render(header[i])
	}
	b.WriteString(strings.Join(header, "  "))
	b.WriteByte('\n')

	for _, row := range rows {
		elapsed := "-"
		if Terminal(row.State) && row.Elapsed > 0 {
			elapsed = formatElapsed(row.Elapsed)
		}
		parts := []string{
			pad(fitPath(row.Path), width),
			StateStyle(row.State).Render(pad(row.State, stateWidth)),
			pad(elapsed, elapsedWide),
			NonEmptyOrDash(firstLine(row.Detail)),
		}
		b.WriteString(strings.Join(parts, "  "))
		b.WriteByte('\n')
	}
}

// Summary counts rows per state, e.g. "3 formatted, 1 error".
func Summary(rows []FileRow) string {
	if len(rows) == 0 {
		return "No files."
	}
	counts := map[string]int{}
	for _, row := range rows {
		counts[row.State]++
	}
	states := make([]string, 0, len(counts))
	for s := range counts {
		states = append(states, s)
	}
	sort.Strings(states)
	parts := make([]string, 0, len(states))
	for _, s := range states {
		parts = append(parts, fmt.Sprintf("%d %s", counts[s], s))
	}
	return strings.Join(parts, ", ")
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// marqueeText renders a scrolling window over text wider than width.
func marqueeText(text string, width, tick int) string {
	text = strings.TrimSpace(text)
	if width <= 0 {
		return ""
	}
	if len(text) <= width {
		return text
	}
	cycle := text + marqueeGap
	offset := tick % len(cycle)
	var out strings.Builder
	out.Grow(width)
	for i := 0; i < width; i++ {
		out.WriteByte(cycle[(offset+i)%len(cycle)])
	}
	return out.String()
}

// NonEmptyOrDash returns "-" for empty or blank strings.
func NonEmptyOrDash(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	return value
}

// TruncateLeft keeps the end of value, which is the informative part of a
// path, prefixing "..." when it is cut.
func TruncateLeft(value string, max int) string {
	if max <= 0 {
		return ""
	}
	value = strings.TrimSpace(value)
	if len(value) <= max {
		return value
	}
	if max <= 3 {
		return value[len(value)-max:]
	}
	return "..." + value[len(value)-max+3:]
}
