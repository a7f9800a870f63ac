package tui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
)

// StatusWriter shows a one-line phase message, such as a daemon install,
// while a command works outside the progress table. On a terminal the line
// spins in place; elsewhere each phase is printed once.
type StatusWriter struct {
	w           io.Writer
	interactive bool
	frames      []string

	mu         sync.Mutex
	message    string
	phaseStart time.Time
	done       chan struct{}
	stopped    bool
}

// NewStatusWriter starts the status line on w.
func NewStatusWriter(w io.Writer) *StatusWriter {
	sw := &StatusWriter{
		w:           w,
		interactive: Interactive(w),
		frames:      spinner.MiniDot.Frames,
		phaseStart:  time.Now(),
		done:        make(chan struct{}),
	}
	if sw.interactive {
		go sw.loop(spinner.MiniDot.FPS)
	}
	return sw
}

// Update replaces the message and restarts the phase timer.
func (sw *StatusWriter) Update(msg string) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.stopped {
		return
	}
	sw.message = msg
	sw.phaseStart = time.Now()
	if !sw.interactive {
		fmt.Fprintln(sw.w, msg)
	}
}

// Stop clears the line. It is safe to call more than once.
func (sw *StatusWriter) Stop() {
	sw.mu.Lock()
	if sw.stopped {
		sw.mu.Unlock()
		return
	}
	sw.stopped = true
	sw.mu.Unlock()
	close(sw.done)
	if sw.interactive {
		fmt.Fprint(sw.w, "\r\033[K")
	}
}

func (sw *StatusWriter) loop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for tick := 0; ; tick++ {
		select {
		case <-sw.done:
			return
		case <-ticker.C:
			sw.mu.Lock()
			if !sw.stopped {
				frame := sw.frames[tick%len(sw.frames)]
				fmt.Fprintf(sw.w, "\r\033[K%s %s (%s)", frame, sw.message, formatElapsed(time.Since(sw.phaseStart)))
			}
			sw.mu.Unlock()
		}
	}
}

func formatElapsed(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < 10*time.Second:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
}
