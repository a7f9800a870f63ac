// Package resolve locates formatter and linter installations for a file.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"pefmt/internal/config"
	"pefmt/internal/executor"
	"pefmt/internal/logx"
	"pefmt/internal/state"
	"pefmt/internal/tools"
)

// Kind tells how a reference is meant to be invoked.
type Kind string

const (
	// KindModule is an installed package directory, runnable through its
	// command script or loadable by the module bridge.
	KindModule Kind = "module"
	// KindBinary is a standalone executable.
	KindBinary Kind = "binary"
)

// Reference is an immutable resolution result. Path is the executable for
// binaries and the package directory for modules; Exec is the command prefix
// that runs the tool's CLI.
type Reference struct {
	Tool    string       `json:"tool"`
	Package string       `json:"package"`
	Kind    Kind         `json:"kind"`
	Path    string       `json:"path"`
	Exec    []string     `json:"exec"`
	Version string       `json:"version,omitempty"`
	Main    string       `json:"main,omitempty"`
	Scope   string       `json:"scope,omitempty"`
	Source  tools.Source `json:"source"`
}

// Policy holds the settings that change resolution outcomes.
type Policy struct {
	ResolveGlobalModules bool
	PackageManager       string
	Minimums             map[string]string
}

// Observer receives resolution outcomes. Implemented by the metrics package.
type Observer interface {
	ObserveResolution(tool, outcome string, cached bool, d time.Duration)
}

// Memo persists module paths across runs. *state.Store implements it.
type Memo interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Options configures a Resolver.
type Options struct {
	// StopAt ends upward walks early. Nil walks to the filesystem root.
	StopAt StopFunc
	// Runner queries global package-manager roots.
	Runner executor.Runner
	// Store memoizes module paths per file across runs. Optional.
	Store    Memo
	Logger   *logx.Logger
	Observer Observer
	// Node is the node executable used when a package has no .bin shim.
	Node string
}

// Resolver finds tools and caches every outcome by (start directory, tool).
// It is safe for concurrent use; concurrent misses for the same key are not
// deduplicated and the last writer wins.
type Resolver struct {
	opts   Options
	log    *logx.Logger
	cache  *cache
	global *globalRoots

	mu     sync.RWMutex
	policy Policy
}

// New creates a Resolver.
func New(opts Options) *Resolver {
	log := opts.Logger
	if log == nil {
		log = logx.Discard()
	}
	if opts.Node == "" {
		opts.Node = "node"
	}
	return &Resolver{
		opts:   opts,
		log:    log,
		cache:  newCache(),
		global: newGlobalRoots(opts.Runner),
		policy: Policy{PackageManager: config.PackageManagerNPM},
	}
}

// Configure replaces the resolution policy and drops every cached outcome.
func (r *Resolver) Configure(p Policy) {
	if p.PackageManager == "" {
		p.PackageManager = config.PackageManagerNPM
	}
	r.mu.Lock()
	r.policy = p
	r.mu.Unlock()
	r.InvalidateAll()
}

func (r *Resolver) currentPolicy() Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.policy
}

// InvalidateAll drops every cached outcome and memoized module path.
func (r *Resolver) InvalidateAll() {
	n := r.cache.clear()
	if r.opts.Store != nil {
		if err := r.opts.Store.DeletePrefix(context.Background(), state.ModulePathPrefix); err != nil {
			r.log.Warn("clear module path memo", err)
		}
	}
	r.log.Debug(fmt.Sprintf("resolution cache cleared (%d entries)", n))
}

// InvalidatePath drops outcomes affected by a change to path, typically a
// package.json or config file: every entry that starts in or resolved into
// the file's directory.
func (r *Resolver) InvalidatePath(path string) {
	dir := filepath.Dir(filepath.Clean(path))
	n := r.cache.dropUnder(dir)
	if r.opts.Store != nil {
		ctx := context.Background()
		keys, err := r.opts.Store.Keys(ctx, state.ModulePathPrefix)
		if err != nil {
			r.log.Warn("list module path memo", err)
		}
		for _, key := range keys {
			file, _, ok := state.ParseModulePathKey(key)
			if ok && within(file, dir) {
				if err := r.opts.Store.Delete(ctx, key); err != nil {
					r.log.Debug("drop module path memo "+key, err)
				}
			}
		}
	}
	r.log.Debug(fmt.Sprintf("resolution cache dropped %d entries under %s", n, dir))
}

// Len reports the number of cached outcomes.
func (r *Resolver) Len() int { return r.cache.len() }

// Resolve locates tool starting at startDir.
//
// The walk first looks for the nearest package.json declaring the package,
// then for the nearest node_modules folder containing it, then for the
// package manager's global root when enabled. A located package that fails
// validation yields an *InvalidInstallError. Outcomes are cached.
func (r *Resolver) Resolve(ctx context.Context, tool, startDir string) (Reference, error) {
	key := cacheKey{dir: filepath.Clean(startDir), tool: tool}
	if e, ok := r.cache.get(key); ok {
		r.observe(tool, e.err, true, 0)
		return e.ref, e.err
	}

	started := time.Now()
	ref, err := r.resolveModule(ctx, tool, startDir, "")
	if ctx.Err() != nil {
		// A cancelled lookup says nothing about the environment.
		return ref, err
	}
	r.cache.put(key, cacheEntry{ref: ref, err: err})
	r.observe(tool, err, false, time.Since(started))
	r.logOutcome(tool, startDir, ref, err)
	return ref, err
}

// ResolveForFile resolves tool for filePath, consulting and updating the
// persisted module-path memo keyed by the file.
func (r *Resolver) ResolveForFile(ctx context.Context, tool, filePath string) (Reference, error) {
	dir := filepath.Dir(filePath)
	key := cacheKey{dir: filepath.Clean(dir), tool: tool}
	if e, ok := r.cache.get(key); ok {
		r.observe(tool, e.err, true, 0)
		return e.ref, e.err
	}

	started := time.Now()
	ref, err := r.resolveModule(ctx, tool, dir, filePath)
	if ctx.Err() != nil {
		return ref, err
	}
	r.cache.put(key, cacheEntry{ref: ref, err: err})
	r.observe(tool, err, false, time.Since(started))
	r.logOutcome(tool, filePath, ref, err)
	return ref, err
}

func (r *Resolver) resolveModule(ctx context.Context, tool, startDir, filePath string) (Reference, error) {
	def, ok := tools.Definition(tool)
	if !ok {
		return Reference{}, fmt.Errorf("unknown tool: %s", tool)
	}
	if err := ctx.Err(); err != nil {
		return Reference{}, err
	}

	policy := r.currentPolicy()
	minimum, _ := tools.MinimumVersion(tools.WithMinimums(ctx, policy.Minimums), def)

	if filePath != "" {
		if ref, ok := r.fromMemo(ctx, def, filePath, minimum); ok {
			return ref, nil
		}
	}

	start := outsideNodeModules(startDir)
	pkgDir, scope, source, err := r.locate(def, start)
	if err != nil {
		return Reference{}, err
	}

	if pkgDir == "" && policy.ResolveGlobalModules {
		root, gerr := r.global.get(ctx, policy.PackageManager)
		if gerr != nil {
			r.log.Debug(fmt.Sprintf("global %s root unavailable", policy.PackageManager), gerr)
		} else if candidate := filepath.Join(root, filepath.FromSlash(def.Package)); isDir(candidate) {
			pkgDir, scope, source = candidate, root, tools.SourceGlobal
		}
	}

	if pkgDir == "" {
		return Reference{}, &NotFoundError{Tool: tool, StartDir: startDir}
	}

	ref, err := r.reference(def, pkgDir, scope, source, minimum)
	if err != nil {
		return Reference{}, err
	}
	if filePath != "" && r.opts.Store != nil {
		if err := r.opts.Store.Put(ctx, state.ModulePathKey(filePath, def.Package), pkgDir); err != nil {
			r.log.Warn("persist module path", err)
		}
	}
	return ref, nil
}

// locate runs the two upward walks. A manifest that declares the package
// always wins over an undeclared node_modules install.
func (r *Resolver) locate(def tools.ToolDefinition, start string) (pkgDir, scope string, source tools.Source, err error) {
	var manifestDir string
	walkUp(start, r.opts.StopAt, func(dir string) bool {
		manifest := filepath.Join(dir, "package.json")
		if !isFile(manifest) {
			return false
		}
		pkg, perr := readPackageJSON(manifest)
		if perr != nil {
			r.log.Debug("skipping unreadable manifest", perr)
			return false
		}
		if pkg.declares(def.Package) {
			manifestDir = dir
			return true
		}
		return false
	})

	if manifestDir != "" {
		found, ok := nodeLookup(manifestDir, def.Package)
		if !ok {
			return "", "", "", &NotFoundError{
				Tool:     def.Name,
				StartDir: start,
				Reason:   fmt.Sprintf("declared in %s but not installed; run your package manager's install", filepath.Join(manifestDir, "package.json")),
			}
		}
		return found, manifestDir, tools.SourceManifest, nil
	}

	var nmDir string
	walkUp(start, r.opts.StopAt, func(dir string) bool {
		if isDir(filepath.Join(dir, "node_modules", filepath.FromSlash(def.Package))) {
			nmDir = dir
			return true
		}
		return false
	})
	if nmDir != "" {
		return filepath.Join(nmDir, "node_modules", filepath.FromSlash(def.Package)), nmDir, tools.SourceNodeModules, nil
	}
	return "", "", tools.SourceUnknown, nil
}

func (r *Resolver) fromMemo(ctx context.Context, def tools.ToolDefinition, filePath, minimum string) (Reference, bool) {
	if r.opts.Store == nil {
		return Reference{}, false
	}
	key := state.ModulePathKey(filePath, def.Package)
	pkgDir, err := r.opts.Store.Get(ctx, key)
	if err != nil {
		return Reference{}, false
	}
	ref, err := r.reference(def, pkgDir, filepath.Dir(pkgDir), tools.SourceState, minimum)
	if err != nil {
		r.log.Debug("discarding stale module path memo "+key, err)
		if derr := r.opts.Store.Delete(ctx, key); derr != nil {
			r.log.Debug("drop module path memo "+key, derr)
		}
		return Reference{}, false
	}
	return ref, true
}

func (r *Resolver) reference(def tools.ToolDefinition, pkgDir, scope string, source tools.Source, minimum string) (Reference, error) {
	info, err := Validate(pkgDir, def, minimum)
	if err != nil {
		return Reference{}, err
	}
	return Reference{
		Tool:    def.Name,
		Package: def.Package,
		Kind:    KindModule,
		Path:    pkgDir,
		Exec:    r.execFor(def, info),
		Version: info.Version,
		Main:    info.Main,
		Scope:   scope,
		Source:  source,
	}, nil
}

// execFor prefers the package manager's .bin shim next to the package and
// falls back to running the command script with node.
func (r *Resolver) execFor(def tools.ToolDefinition, info PackageInfo) []string {
	nodeModules := filepath.Dir(info.Dir)
	if filepath.Base(nodeModules) != "node_modules" {
		// Scoped packages live one level deeper.
		nodeModules = filepath.Dir(nodeModules)
	}
	shim := filepath.Join(nodeModules, ".bin", tools.ExecutableName(def.Bin))
	if isFile(shim) {
		return []string{shim}
	}
	return []string{r.opts.Node, info.BinScript}
}

// ResolveBin locates an executable for tool: the nearest
// node_modules/.bin/<bin> from startDir upward, then PATH. Outcomes are
// cached separately from module resolution.
func (r *Resolver) ResolveBin(ctx context.Context, tool, startDir string) (Reference, error) {
	def, ok := tools.Definition(tool)
	if !ok {
		return Reference{}, fmt.Errorf("unknown tool: %s", tool)
	}
	key := cacheKey{dir: filepath.Clean(startDir), tool: tool, bin: true}
	if e, ok := r.cache.get(key); ok {
		r.observe(tool, e.err, true, 0)
		return e.ref, e.err
	}
	if err := ctx.Err(); err != nil {
		return Reference{}, err
	}

	started := time.Now()
	name := tools.ExecutableName(def.Bin)
	var found, scope string
	walkUp(outsideNodeModules(startDir), r.opts.StopAt, func(dir string) bool {
		candidate := filepath.Join(dir, "node_modules", ".bin", name)
		if isFile(candidate) {
			found, scope = candidate, dir
			return true
		}
		return false
	})

	var (
		ref Reference
		err error
	)
	switch {
	case found != "":
		ref = Reference{Tool: tool, Package: def.Package, Kind: KindBinary, Path: found, Exec: []string{found}, Scope: scope, Source: tools.SourceNodeModules}
	default:
		if p, lerr := lookPath(name); lerr == nil {
			ref = Reference{Tool: tool, Package: def.Package, Kind: KindBinary, Path: p, Exec: []string{p}, Source: tools.SourcePath}
		} else {
			err = &NotFoundError{Tool: tool, StartDir: startDir, Reason: "no node_modules/.bin entry and not on PATH"}
		}
	}

	r.cache.put(key, cacheEntry{ref: ref, err: err})
	r.observe(tool, err, false, time.Since(started))
	r.logOutcome(tool, startDir, ref, err)
	return ref, err
}

// BinaryReference builds a reference for a configured executable path, as
// used for persisted daemon paths.
func BinaryReference(tool, path string, source tools.Source) (Reference, error) {
	def, ok := tools.Definition(tool)
	if !ok {
		return Reference{}, fmt.Errorf("unknown tool: %s", tool)
	}
	if !isFile(path) {
		return Reference{}, &NotFoundError{Tool: tool, StartDir: path, Reason: "configured path does not exist"}
	}
	return Reference{Tool: tool, Package: def.Package, Kind: KindBinary, Path: path, Exec: []string{path}, Source: source}, nil
}

// Outcome labels an error for logs and metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "found"
	case errors.Is(err, ErrInvalidInstall):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func (r *Resolver) observe(tool string, err error, cached bool, d time.Duration) {
	if r.opts.Observer != nil {
		r.opts.Observer.ObserveResolution(tool, Outcome(err), cached, d)
	}
}

func (r *Resolver) logOutcome(tool, from string, ref Reference, err error) {
	switch {
	case err == nil:
		r.log.Debug(fmt.Sprintf("resolved %s for %s", tool, from), ref)
	case errors.Is(err, ErrInvalidInstall):
		r.log.Error(fmt.Sprintf("%s is installed but unusable", tool), err)
	default:
		r.log.Info(fmt.Sprintf("attempted to resolve %s from %s", tool, from), err.Error())
	}
}

var lookPath = func(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s not found in PATH", name)
	}
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	return path, nil
}

// PolicyFor derives the resolution policy from the settings file.
func PolicyFor(cfg config.Config) Policy {
	return Policy{
		ResolveGlobalModules: cfg.ResolveGlobalModules,
		PackageManager:       cfg.PackageManager,
		Minimums:             cfg.MinimumVersions,
	}
}
