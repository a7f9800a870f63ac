// Package watch reports debounced file changes under a workspace, tagged
// by what they invalidate.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"pefmt/internal/fmtconfig"
	"pefmt/internal/logx"
	"pefmt/internal/paths"
)

// Op is the kind of change.
type Op string

const (
	OpCreate Op = "create"
	OpWrite  Op = "write"
	OpRemove Op = "remove"
	OpRename Op = "rename"
)

// Kind classifies a changed file.
type Kind string

const (
	// KindSettings is the workspace settings file.
	KindSettings Kind = "settings"
	// KindManifest is a package.json.
	KindManifest Kind = "manifest"
	// KindConfig is a formatter, linter, ignore or editorconfig file.
	KindConfig Kind = "config"
	// KindSource is any other file.
	KindSource Kind = "source"
)

// Event is one change after debouncing.
type Event struct {
	Path string
	Op   Op
	Kind Kind
	Time time.Time
}

// Classify tags path with the kind of state it affects.
func Classify(path string) Kind {
	switch {
	case filepath.Base(path) == paths.ConfigFileName:
		return KindSettings
	case fmtconfig.IsManifest(path):
		return KindManifest
	case fmtconfig.IsConfigFile(path):
		return KindConfig
	default:
		return KindSource
	}
}

// Handler receives a batch of events. Batches hold at most one event per
// path, the latest.
type Handler func([]Event)

// Options configures a Watcher.
type Options struct {
	// Debounce is how long the watcher waits for quiet before delivering.
	Debounce time.Duration
	// SkipDirs are directory names that are not descended into.
	SkipDirs []string
	Logger   *logx.Logger
}

// DefaultOptions returns the defaults used by the CLI.
func DefaultOptions() Options {
	return Options{
		Debounce: 150 * time.Millisecond,
		SkipDirs: []string{".git", "node_modules", paths.MetaDirName},
	}
}

// Watcher watches a directory tree.
type Watcher struct {
	root    string
	opts    Options
	log     *logx.Logger
	fs      *fsnotify.Watcher
	handler Handler
	skip    map[string]bool

	events   chan Event
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a Watcher for root. Call Start to begin delivery.
func New(root string, handler Handler, opts Options) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultOptions().Debounce
	}
	if opts.SkipDirs == nil {
		opts.SkipDirs = DefaultOptions().SkipDirs
	}
	log := opts.Logger
	if log == nil {
		log = logx.Discard()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	skip := map[string]bool{}
	for _, d := range opts.SkipDirs {
		skip[d] = true
	}
	return &Watcher{
		root:    root,
		opts:    opts,
		log:     log,
		fs:      fw,
		handler: handler,
		skip:    skip,
		events:  make(chan Event, 256),
		done:    make(chan struct{}),
	}, nil
}

// Start adds the tree and begins delivering events until ctx ends or Stop
// is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addTree(w.root); err != nil {
		return err
	}
	w.wg.Add(2)
	go w.process(ctx)
	go w.debounce(ctx)
	return nil
}

// Stop ends delivery and waits for the goroutines to exit. Pending events
// are flushed first.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.fs.Close()
	})
	w.wg.Wait()
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.skip[d.Name()] {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) skipped(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	dir := filepath.Dir(rel)
	for dir != "." && dir != string(filepath.Separator) && dir != "" {
		if w.skip[filepath.Base(dir)] {
			return true
		}
		dir = filepath.Dir(dir)
	}
	return false
}

func (w *Watcher) process(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if w.skipped(ev.Name) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() && !w.skip[info.Name()] {
					if err := w.addTree(ev.Name); err != nil {
						w.log.Warn("watch new directory", err)
					}
					continue
				}
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}
			change := Event{Path: ev.Name, Op: convert(ev.Op), Kind: Classify(ev.Name), Time: time.Now()}
			select {
			case w.events <- change:
			default:
				w.log.Warn("watch buffer full; dropping " + ev.Name)
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			if !errors.Is(err, fsnotify.ErrEventOverflow) {
				w.log.Warn("watch error", err)
			}
		}
	}
}

func convert(op fsnotify.Op) Op {
	switch {
	case op.Has(fsnotify.Create):
		return OpCreate
	case op.Has(fsnotify.Remove):
		return OpRemove
	case op.Has(fsnotify.Rename):
		return OpRename
	default:
		return OpWrite
	}
}

func (w *Watcher) debounce(ctx context.Context) {
	defer w.wg.Done()
	var (
		batch  []Event
		index  = map[string]int{}
		timer  *time.Timer
		timerC <-chan time.Time
	)
	flush := func() {
		if len(batch) > 0 && w.handler != nil {
			w.handler(batch)
		}
		batch, index = nil, map[string]int{}
		if timer != nil {
			timer.Stop()
			timer, timerC = nil, nil
		}
	}
	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-w.done:
			flush()
			return
		case ev := <-w.events:
			if i, ok := index[ev.Path]; ok {
				batch[i] = ev
			} else {
				index[ev.Path] = len(batch)
				batch = append(batch, ev)
			}
			if timer == nil {
				timer = time.NewTimer(w.opts.Debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.opts.Debounce)
			}
		case <-timerC:
			timer, timerC = nil, nil
			flush()
		}
	}
}
