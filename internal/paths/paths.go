package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pefmt/internal/config"
)

// ConfigFileName is the settings file looked up at a workspace root.
const ConfigFileName = ".pefmt.yaml"

// MetaDirName holds state and logs inside a workspace.
const MetaDirName = ".pefmt"

// WorkspacePaths captures canonical locations for a pefmt workspace.
type WorkspacePaths struct {
	Root       string
	ConfigFile string
	MetaDir    string
	StateDir   string
	LogsDir    string
}

// Resolve determines the workspace root using the optional --workspace flag.
// Without a flag the nearest ancestor of the working directory holding a
// .pefmt.yaml, package.json or .git entry is used, falling back to the working
// directory itself.
func Resolve(workspaceFlag string) (WorkspacePaths, error) {
	if workspaceFlag != "" {
		root, err := filepath.Abs(workspaceFlag)
		if err != nil {
			return WorkspacePaths{}, fmt.Errorf("resolve workspace root: %w", err)
		}
		return newWorkspacePaths(root), nil
	}

	wd, err := os.Getwd()
	if err != nil {
		return WorkspacePaths{}, fmt.Errorf("resolve workspace root: %w", err)
	}
	return newWorkspacePaths(FindRoot(wd)), nil
}

// FindRoot walks upward from start looking for a workspace marker. It returns
// start when no marker is found.
func FindRoot(start string) string {
	markers := []string{ConfigFileName, "package.json", ".git"}
	dir := filepath.Clean(start)
	for {
		for _, marker := range markers {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return filepath.Clean(start)
		}
		dir = parent
	}
}

func newWorkspacePaths(root string) WorkspacePaths {
	metaDir := filepath.Join(root, MetaDirName)
	return WorkspacePaths{
		Root:       root,
		ConfigFile: filepath.Join(root, ConfigFileName),
		MetaDir:    metaDir,
		StateDir:   filepath.Join(metaDir, "state"),
		LogsDir:    filepath.Join(metaDir, "logs"),
	}
}

// ApplyConfig overrides derived locations with values from the settings file.
func ApplyConfig(wp WorkspacePaths, cfg config.Config) WorkspacePaths {
	if dir := strings.TrimSpace(cfg.State.Dir); dir != "" {
		wp.StateDir = resolveWorkspacePath(wp.Root, dir)
	}
	if dir := strings.TrimSpace(cfg.Logging.Dir); dir != "" {
		wp.LogsDir = resolveWorkspacePath(wp.Root, dir)
	}
	return wp
}

func resolveWorkspacePath(root, value string) string {
	if filepath.IsAbs(value) {
		return filepath.Clean(value)
	}
	return filepath.Join(root, value)
}

// Rel returns path relative to the workspace root, or the cleaned path itself
// when it lies outside the root.
func (p WorkspacePaths) Rel(path string) string {
	rel, err := filepath.Rel(p.Root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.Clean(path)
	}
	return rel
}

// EnsureMetaDirs creates the hidden .pefmt metadata hierarchy.
func (p WorkspacePaths) EnsureMetaDirs() error {
	dirs := []string{p.MetaDir, p.StateDir, p.LogsDir}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// GlobalDir returns the user-level pefmt directory (~/.pefmt), honouring the
// PEFMT_HOME override. It creates the directory if it does not exist.
func GlobalDir() (string, error) {
	if override, ok := os.LookupEnv("PEFMT_HOME"); ok && override != "" {
		abs, err := filepath.Abs(override)
		if err != nil {
			return "", fmt.Errorf("resolve PEFMT_HOME: %w", err)
		}
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return "", fmt.Errorf("create global dir: %w", err)
		}
		return abs, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("detect user home: %w", err)
	}
	dir := filepath.Join(home, ".pefmt")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create global dir: %w", err)
	}
	return dir, nil
}

// FileExists reports whether a path exists and is a regular file.
func FileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// DirExists reports whether a path exists and is a directory.
func DirExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}
