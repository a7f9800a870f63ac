package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"pefmt/internal/executor"
)

// Installer installs daemon tools with the global package manager.
//
// Concurrent Install calls for the same tool are serialised by a lock file
// but not deduplicated: each caller runs its own install once it holds the
// lock.
type Installer struct {
	runner  executor.Runner
	lockDir string
	npm     string
	timeout time.Duration
}

// InstallerOptions configures an Installer.
type InstallerOptions struct {
	// LockDir holds per-tool lock files. Required.
	LockDir string
	// NPM overrides the npm executable. Defaults to npm from PATH.
	NPM string
	// Timeout bounds one install. Defaults to five minutes.
	Timeout time.Duration
}

// NewInstaller creates an Installer.
func NewInstaller(runner executor.Runner, opts InstallerOptions) *Installer {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}
	if opts.NPM == "" {
		opts.NPM = ExecutableName("npm")
	}
	return &Installer{runner: runner, lockDir: opts.LockDir, npm: opts.NPM, timeout: opts.Timeout}
}

// Install runs `npm install --global <package>@latest` for a daemon tool and
// reports where its executable landed.
func (i *Installer) Install(ctx context.Context, toolName string) (Status, error) {
	def, ok := Definition(toolName)
	if !ok {
		return Status{Tool: toolName}, fmt.Errorf("unknown tool: %s", toolName)
	}
	if !def.Daemon {
		return Status{Tool: toolName, Package: def.Package}, fmt.Errorf("%s is not a daemon tool", toolName)
	}

	unlock, err := i.acquireInstallLock(ctx, def.Name)
	if err != nil {
		return Status{Tool: toolName, Package: def.Package, Error: err.Error()}, err
	}
	defer unlock()

	npm, err := lookPath(i.npm)
	if err != nil {
		return Status{Tool: toolName, Package: def.Package, Error: err.Error()}, err
	}

	cmd := executor.Command{
		Path:    npm,
		Args:    []string{"install", "--global", def.Package + "@latest"},
		Timeout: i.timeout,
	}
	if _, err := i.runner.Run(ctx, cmd); err != nil {
		err = fmt.Errorf("install %s: %w", def.Package, err)
		return Status{Tool: toolName, Package: def.Package, Error: err.Error()}, err
	}

	prefix, err := i.globalBinDir(ctx, npm)
	if err != nil {
		return Status{Tool: toolName, Package: def.Package, Error: err.Error()}, err
	}
	binPath := filepath.Join(prefix, ExecutableName(def.Bin))
	if _, err := os.Stat(binPath); err != nil {
		err = fmt.Errorf("installed %s but %s is missing: %w", def.Package, binPath, err)
		return Status{Tool: toolName, Package: def.Package, Error: err.Error()}, err
	}

	return Status{
		Tool:      toolName,
		Package:   def.Package,
		Source:    SourceInstall,
		Path:      binPath,
		Satisfied: true,
		Notes:     []string{"installed " + def.Package + "@latest"},
	}, nil
}

// globalBinDir asks npm for its global prefix. Executables live directly in
// the prefix on Windows and in prefix/bin elsewhere.
func (i *Installer) globalBinDir(ctx context.Context, npm string) (string, error) {
	res, err := i.runner.Run(ctx, executor.Command{Path: npm, Args: []string{"prefix", "--global"}, Timeout: 30 * time.Second})
	if err != nil {
		return "", fmt.Errorf("npm prefix: %w", err)
	}
	prefix := strings.TrimSpace(res.Stdout)
	if prefix == "" {
		return "", errors.New("npm prefix: empty output")
	}
	if runtime.GOOS == "windows" {
		return prefix, nil
	}
	return filepath.Join(prefix, "bin"), nil
}

func (i *Installer) acquireInstallLock(ctx context.Context, tool string) (func(), error) {
	if i.lockDir == "" {
		return func() {}, nil
	}
	if err := os.MkdirAll(i.lockDir, 0o755); err != nil {
		return nil, fmt.Errorf("prepare lock dir: %w", err)
	}

	lockPath := filepath.Join(i.lockDir, fmt.Sprintf("%s.lock", tool))
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			_ = f.Close()
			return func() { _ = os.Remove(lockPath) }, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("acquire lock: %w", err)
		}
		if stale(lockPath, 10*time.Minute) {
			_ = os.Remove(lockPath)
			continue
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire lock: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func stale(path string, age time.Duration) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) > age
}

var lookPath = func(name string) (string, error) {
	if filepath.IsAbs(name) {
		return name, nil
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s not found in PATH", name)
	}
	return path, nil
}
