package resolve

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"pefmt/internal/config"
	"pefmt/internal/executor"
	"pefmt/internal/tools"
)

// globalRoots queries each package manager's global module directory at most
// once per process and remembers the answer, including failures.
type globalRoots struct {
	runner executor.Runner
	mu     sync.Mutex
	roots  map[string]globalRoot
}

type globalRoot struct {
	dir string
	err error
}

func newGlobalRoots(runner executor.Runner) *globalRoots {
	return &globalRoots{runner: runner, roots: map[string]globalRoot{}}
}

func (g *globalRoots) get(ctx context.Context, manager string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if root, ok := g.roots[manager]; ok {
		return root.dir, root.err
	}
	dir, err := g.query(ctx, manager)
	g.roots[manager] = globalRoot{dir: dir, err: err}
	return dir, err
}

func (g *globalRoots) query(ctx context.Context, manager string) (string, error) {
	if g.runner == nil {
		return "", fmt.Errorf("no command runner for %s", manager)
	}

	var (
		bin    string
		args   []string
		suffix string
	)
	switch manager {
	case config.PackageManagerNPM, "":
		bin, args = "npm", []string{"root", "--global"}
	case config.PackageManagerPNPM:
		bin, args = "pnpm", []string{"root", "-g"}
	case config.PackageManagerYarn:
		bin, args, suffix = "yarn", []string{"global", "dir"}, "node_modules"
	default:
		return "", fmt.Errorf("unsupported package manager %q", manager)
	}

	path, err := lookPath(tools.ExecutableName(bin))
	if err != nil {
		return "", err
	}
	res, err := g.runner.Run(ctx, executor.Command{Path: path, Args: args, Timeout: 30 * time.Second})
	if err != nil {
		return "", fmt.Errorf("%s global root: %w", manager, err)
	}
	dir := strings.TrimSpace(firstLine(res.Stdout))
	if dir == "" {
		return "", fmt.Errorf("%s global root: empty output", manager)
	}
	if suffix != "" {
		dir = filepath.Join(dir, suffix)
	}
	return dir, nil
}

func firstLine(text string) string {
	text = strings.TrimSpace(text)
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		return text[:idx]
	}
	return text
}
