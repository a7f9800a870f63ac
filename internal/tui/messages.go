package tui

import "time"

// FileStartedMsg marks a file as being formatted.
type FileStartedMsg struct {
	Path string
}

// FileDoneMsg records the outcome for one file.
type FileDoneMsg struct {
	Path    string
	State   string
	Detail  string
	Elapsed time.Duration
}

// WorkDoneMsg signals that every file has been handled.
type WorkDoneMsg struct{}

// ErrorMsg signals a fatal error; the program quits.
type ErrorMsg struct {
	Err error
}
