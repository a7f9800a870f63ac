package executor

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Command describes one external process invocation.
type Command struct {
	Path    string
	Args    []string
	Dir     string
	Env     []string
	Stdin   string
	Timeout time.Duration
}

// String renders the command line for logs.
func (c Command) String() string {
	parts := append([]string{filepath.Base(c.Path)}, c.Args...)
	return strings.Join(parts, " ")
}

// Result represents the outcome of a command execution.
type Result struct {
	Stdout    string
	Stderr    string
	ExitCode  int
	Truncated bool
	Binary    bool
	Duration  time.Duration
}

// Runner executes commands. The pipeline and installer depend on this
// interface so tests can substitute scripted results.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// Options configures an OSRunner.
type Options struct {
	MaxOutputBytes int
	GracePeriod    time.Duration
}

// OSRunner implements Runner using os/exec.
type OSRunner struct {
	maxOutputBytes int
	gracePeriod    time.Duration
}

// NewOSRunner creates an OSRunner. Zero option values fall back to 8 MiB of
// captured output and a two second interrupt grace period.
func NewOSRunner(opts Options) *OSRunner {
	if opts.MaxOutputBytes <= 0 {
		opts.MaxOutputBytes = 8 << 20
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = 2 * time.Second
	}
	return &OSRunner{maxOutputBytes: opts.MaxOutputBytes, gracePeriod: opts.GracePeriod}
}

// Run starts the command, feeds Stdin and waits for it to finish.
//
// Cancelling ctx returns immediately with a "cancel" CommandError but leaves
// the process running to completion; its output is drained and discarded.
// A positive Timeout interrupts the process, then kills it after the grace
// period, and reports ErrTimeout.
func (r *OSRunner) Run(ctx context.Context, command Command) (*Result, error) {
	if command.Path == "" {
		return nil, os.ErrInvalid
	}

	cmd := exec.Command(command.Path, command.Args...)
	cmd.Dir = command.Dir
	if len(command.Env) > 0 {
		cmd.Env = append(os.Environ(), command.Env...)
	}
	cmd.Stdin = strings.NewReader(command.Stdin)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &CommandError{Cmd: command.Path, Cause: err, Stage: "start"}
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, &CommandError{Cmd: command.Path, Cause: err, Stage: "start"}
	}

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, &CommandError{Cmd: command.Path, Cause: err, Stage: "start"}
	}

	stdout := newCollector(r.maxOutputBytes, 8000)
	stderr := newCollector(r.maxOutputBytes, 8000)
	collectDone := make(chan struct{})
	go func() {
		collect(stdout, stderr, stdoutPipe, stderrPipe)
		close(collectDone)
	}()

	done := make(chan error, 1)
	go func() {
		<-collectDone
		done <- cmd.Wait()
	}()

	var timeout <-chan time.Time
	if command.Timeout > 0 {
		timer := time.NewTimer(command.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	var execErr error
	select {
	case execErr = <-done:
	case <-ctx.Done():
		return nil, &CommandError{Cmd: command.Path, Stage: "cancel", Cause: ctx.Err()}
	case <-timeout:
		_ = cmd.Process.Signal(os.Interrupt)
		select {
		case <-done:
		case <-time.After(r.gracePeriod):
			_ = cmd.Process.Kill()
			<-done
		}
		execErr = ErrTimeout
	}

	result := &Result{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Truncated: stdout.Truncated() || stderr.Truncated(),
		Binary:    stdout.Binary(),
		Duration:  time.Since(started),
	}

	if execErr == nil {
		return result, nil
	}
	if errors.Is(execErr, ErrTimeout) {
		result.ExitCode = -1
		return result, &CommandError{Cmd: command.Path, Stage: "timeout", ExitCode: -1, Cause: ErrTimeout}
	}
	result.ExitCode = exitCode(execErr)
	return result, &CommandError{
		Cmd:      command.Path,
		Stage:    "wait",
		ExitCode: result.ExitCode,
		Stderr:   firstLines(result.Stderr, 5),
		Cause:    execErr,
	}
}

func collect(stdout, stderr io.Writer, stdoutPipe, stderrPipe io.Reader) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = io.Copy(stdout, stdoutPipe)
	}()
	go func() {
		defer wg.Done()
		_, _ = io.Copy(stderr, stderrPipe)
	}()
	wg.Wait()
}

func exitCode(err error) int {
	type exitCoder interface {
		ExitCode() int
	}
	var ec exitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	return -1
}

func firstLines(text string, n int) string {
	text = strings.TrimSpace(text)
	lines := strings.SplitN(text, "\n", n+1)
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "\n")
}
