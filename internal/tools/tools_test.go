package tools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"pefmt/internal/executor"
)

type scriptedRunner struct {
	mu    sync.Mutex
	calls []executor.Command
	fn    func(executor.Command) (*executor.Result, error)
}

func (s *scriptedRunner) Run(_ context.Context, cmd executor.Command) (*executor.Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, cmd)
	s.mu.Unlock()
	return s.fn(cmd)
}

func TestMeetsMinimum(t *testing.T) {
	tests := []struct {
		version string
		minimum string
		want    bool
	}{
		{"1.13.0", "1.13.0", true},
		{"1.12.9", "1.13.0", false},
		{"3.3.3", "1.13.0", true},
		{"v8.57.0", "7.0.0", true},
		{"6.8", "7.0.0", false},
		{"garbage", "7.0.0", false},
		{"", "", true},
		{"9.0.0-rc.1", "9.0.0", false},
	}
	for _, tt := range tests {
		if got := MeetsMinimum(tt.version, tt.minimum); got != tt.want {
			t.Errorf("MeetsMinimum(%q, %q) = %v, want %v", tt.version, tt.minimum, got, tt.want)
		}
	}
}

func TestNormalizeVersion(t *testing.T) {
	tests := map[string]string{
		"v8.57.0":                 "8.57.0",
		"3.3.3":                   "3.3.3",
		"eslint_d v13.1.2":        "13.1.2",
		"7":                       "7.0.0",
		"no digits here":          "",
		"1.13.0-beta.2 (channel)": "1.13.0-beta.2",
	}
	for in, want := range tests {
		if got := NormalizeVersion(in); got != want {
			t.Errorf("NormalizeVersion(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMinimumVersionOverrides(t *testing.T) {
	def, _ := Definition(ESLint)

	min, notes := MinimumVersion(context.Background(), def)
	if min != "7.0.0" || len(notes) != 0 {
		t.Fatalf("unexpected default minimum %q %v", min, notes)
	}

	ctx := WithMinimums(context.Background(), map[string]string{"ESLint": "8.0.0"})
	if min, _ := MinimumVersion(ctx, def); min != "8.0.0" {
		t.Fatalf("expected raised minimum, got %q", min)
	}

	ctx = WithMinimums(context.Background(), map[string]string{"eslint": "6.0.0"})
	min, notes = MinimumVersion(ctx, def)
	if min != "7.0.0" || len(notes) != 1 {
		t.Fatalf("expected lower override ignored, got %q %v", min, notes)
	}
	ctx = WithMinimums(context.Background(), map[string]string{"eslint": "soon"})
	if min, notes = MinimumVersion(ctx, def); min != "7.0.0" || len(notes) != 1 {
		t.Fatalf("expected invalid override ignored, got %q %v", min, notes)
	}
}

func TestMinimumVersionByPackage(t *testing.T) {
	def, _ := Definition(Prettierd)
	ctx := WithMinimums(context.Background(), map[string]string{"@fsouza/prettierd": "0.25.0"})
	if min, _ := MinimumVersion(ctx, def); min != "0.25.0" {
		t.Fatalf("expected package-keyed override, got %q", min)
	}
}

func TestDaemonFor(t *testing.T) {
	d, ok := DaemonFor(Prettier)
	if !ok || d.Name != Prettierd || d.Package != "@fsouza/prettierd" {
		t.Fatalf("unexpected daemon %+v", d)
	}
	if _, ok := DaemonFor(Prettierd); ok {
		t.Fatal("daemons have no daemon variant")
	}
	if ForKind(KindLinter).Name != ESLint {
		t.Fatal("expected eslint for linter stage")
	}
}

func TestInstallRunsGlobalInstall(t *testing.T) {
	prefix := t.TempDir()
	binDir := filepath.Join(prefix, "bin")
	if runtime.GOOS == "windows" {
		binDir = prefix
	}

	runner := &scriptedRunner{fn: func(cmd executor.Command) (*executor.Result, error) {
		switch cmd.Args[0] {
		case "install":
			if err := os.MkdirAll(binDir, 0o755); err != nil {
				return nil, err
			}
			return &executor.Result{}, os.WriteFile(filepath.Join(binDir, ExecutableName("prettierd")), []byte("#!/bin/sh\n"), 0o755)
		case "prefix":
			return &executor.Result{Stdout: prefix + "\n"}, nil
		}
		return nil, errors.New("unexpected command")
	}}

	inst := NewInstaller(runner, InstallerOptions{LockDir: t.TempDir(), NPM: filepath.Join(prefix, "npm")})
	st, err := inst.Install(context.Background(), Prettierd)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if st.Source != SourceInstall || !st.Satisfied {
		t.Fatalf("unexpected status %+v", st)
	}
	if got := strings.Join(runner.calls[0].Args, " "); got != "install --global @fsouza/prettierd@latest" {
		t.Fatalf("unexpected install args %q", got)
	}
}

func TestInstallFailureReported(t *testing.T) {
	runner := &scriptedRunner{fn: func(cmd executor.Command) (*executor.Result, error) {
		return &executor.Result{ExitCode: 1}, &executor.CommandError{Cmd: cmd.Path, Stage: "wait", ExitCode: 1}
	}}
	inst := NewInstaller(runner, InstallerOptions{LockDir: t.TempDir(), NPM: "/usr/bin/npm"})

	st, err := inst.Install(context.Background(), ESLintD)
	if err == nil {
		t.Fatal("expected error")
	}
	if st.Error == "" || st.Satisfied {
		t.Fatalf("expected failed status, got %+v", st)
	}
}

func TestInstallRejectsNonDaemon(t *testing.T) {
	inst := NewInstaller(&scriptedRunner{}, InstallerOptions{})
	if _, err := inst.Install(context.Background(), Prettier); err == nil {
		t.Fatal("expected error for non-daemon tool")
	}
}

func TestInstallLockHonoursContext(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ESLintD+".lock"), nil, 0o600); err != nil {
		t.Fatal(err)
	}
	inst := NewInstaller(&scriptedRunner{}, InstallerOptions{LockDir: dir})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := inst.acquireInstallLock(ctx, ESLintD); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
}

func TestInstallHints(t *testing.T) {
	if hints := InstallHints(Prettierd); len(hints) == 0 || !strings.Contains(hints[0], "@fsouza/prettierd") {
		t.Fatalf("unexpected hints %v", hints)
	}
	if InstallHints("unknown") != nil {
		t.Fatal("expected no hints for unknown tool")
	}
}
