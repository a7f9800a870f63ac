package executor

import (
	"errors"
	"fmt"
)

// ErrTimeout is returned when a command exceeds its timeout.
var ErrTimeout = errors.New("command timeout")

// CommandError describes a failure at a specific stage of running a command.
type CommandError struct {
	Cmd      string
	Stage    string // "start", "wait", "cancel", "timeout"
	ExitCode int
	Stderr   string
	Cause    error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s: %s failed", e.Cmd, e.Stage)
	if e.Stage == "wait" && e.ExitCode != 0 {
		msg = fmt.Sprintf("%s: exited with code %d", e.Cmd, e.ExitCode)
	}
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	} else if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Cause }
