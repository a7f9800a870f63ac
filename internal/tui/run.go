package tui

import (
	"context"
	"io"

	tea "github.com/charmbracelet/bubbletea"
)

// RunWithWork runs model on out while work executes in the background.
// Quitting the program cancels the context handed to work; RunWithWork
// returns once work has returned.
func RunWithWork(ctx context.Context, out io.Writer, model ProgressModel, work func(ctx context.Context, send func(tea.Msg))) (ProgressModel, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(model, tea.WithOutput(out), tea.WithContext(ctx))
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		work(ctx, p.Send)
		p.Send(WorkDoneMsg{})
	}()

	final, err := p.Run()
	cancel()
	<-finished
	m, ok := final.(ProgressModel)
	if !ok {
		m = model
	}
	if err != nil {
		return m, err
	}
	if m.Interrupted() {
		return m, context.Canceled
	}
	return m, m.Err()
}
