package executor

import (
	"context"
	"errors"
	"os/exec"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shell(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	path, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	return path
}

func TestRunFeedsStdin(t *testing.T) {
	sh := shell(t)
	r := NewOSRunner(Options{})

	res, err := r.Run(context.Background(), Command{Path: sh, Args: []string{"-c", "cat"}, Stdin: "const x = 1;\n"})
	require.NoError(t, err)
	assert.Equal(t, "const x = 1;\n", res.Stdout)
	assert.Equal(t, 0, res.ExitCode)
}

func TestRunNonZeroExit(t *testing.T) {
	sh := shell(t)
	r := NewOSRunner(Options{})

	res, err := r.Run(context.Background(), Command{Path: sh, Args: []string{"-c", "echo bad input >&2; exit 2"}})
	require.Error(t, err)

	var cmdErr *CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, "wait", cmdErr.Stage)
	assert.Equal(t, 2, cmdErr.ExitCode)
	assert.Contains(t, err.Error(), "bad input")
	require.NotNil(t, res)
	assert.Equal(t, 2, res.ExitCode)
}

func TestRunTimeout(t *testing.T) {
	sh := shell(t)
	r := NewOSRunner(Options{GracePeriod: 50 * time.Millisecond})

	_, err := r.Run(context.Background(), Command{Path: sh, Args: []string{"-c", "exec sleep 5"}, Timeout: 50 * time.Millisecond})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
}

func TestRunCancelReturnsWithoutWaiting(t *testing.T) {
	sh := shell(t)
	r := NewOSRunner(Options{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := r.Run(ctx, Command{Path: sh, Args: []string{"-c", "sleep 1"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Less(t, time.Since(start), 900*time.Millisecond)
}

func TestRunMissingBinary(t *testing.T) {
	r := NewOSRunner(Options{})
	_, err := r.Run(context.Background(), Command{Path: "/nonexistent/pefmt-tool"})

	var cmdErr *CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, "start", cmdErr.Stage)
}

func TestCollectorLimits(t *testing.T) {
	c := newCollector(4, 8)
	n, err := c.Write([]byte("abcdef"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, "abcd", c.String())
	assert.True(t, c.Truncated())

	bin := newCollector(64, 8)
	_, _ = bin.Write([]byte{'a', 0, 'b'})
	assert.True(t, bin.Binary())
	assert.Empty(t, bin.String())
}

func TestCommandString(t *testing.T) {
	cmd := Command{Path: "/usr/bin/prettier", Args: []string{"--stdin-filepath", "a.ts"}}
	assert.True(t, strings.HasPrefix(cmd.String(), "prettier --stdin-filepath"))
}
