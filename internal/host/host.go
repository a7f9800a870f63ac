// Package host runs the edit service against a workspace on the local
// filesystem: settings come from .pefmt.yaml overlaid with values the
// service persisted, and edits are written back to disk.
package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"pefmt/internal/config"
	"pefmt/internal/edit"
	"pefmt/internal/logx"
	"pefmt/internal/paths"
	"pefmt/internal/state"
	"pefmt/internal/watch"
)

// ErrStale is returned by ApplyEdits when the file no longer holds the
// text the edits were computed against.
var ErrStale = errors.New("document changed on disk")

// Options configures a Local host.
type Options struct {
	Paths paths.WorkspacePaths
	// Store keeps persisted settings. Optional.
	Store *state.Store
	// Trusted marks the workspace as trusted.
	Trusted bool
	// Watching enables file watchers. Without it Watch is a no-op.
	Watching bool
	Watch    watch.Options
	// OnEvents sees every watcher batch after the service handled it.
	OnEvents watch.Handler
	Logger   *logx.Logger
}

// Local is a single-folder host.
type Local struct {
	paths    paths.WorkspacePaths
	store    *state.Store
	trusted  bool
	watching bool
	watch    watch.Options
	onEvents watch.Handler
	log      *logx.Logger

	mu        sync.Mutex
	providers map[string]*edit.Provider
}

// New creates a Local host.
func New(o Options) *Local {
	if o.Logger == nil {
		o.Logger = logx.Discard()
	}
	if o.Watch.Logger == nil {
		o.Watch.Logger = o.Logger
	}
	return &Local{
		paths:     o.Paths,
		store:     o.Store,
		trusted:   o.Trusted,
		watching:  o.Watching,
		watch:     o.Watch,
		onEvents:  o.OnEvents,
		log:       o.Logger,
		providers: map[string]*edit.Provider{},
	}
}

// GetConfiguration reads the settings file and overlays persisted values.
// The scope is ignored; a local host has a single folder.
func (h *Local) GetConfiguration(ctx context.Context, section, _ string) (map[string]any, error) {
	values, err := config.LoadSection(h.paths.ConfigFile)
	if err != nil {
		return nil, err
	}
	if h.store == nil {
		return values, nil
	}
	prefix := state.SettingKey(section, "")
	keys, err := h.store.Keys(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list persisted settings: %w", err)
	}
	for _, k := range keys {
		raw, err := h.store.Get(ctx, k)
		if err != nil {
			continue
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			h.log.Warn("ignoring corrupt persisted setting "+k, err)
			continue
		}
		values[strings.TrimPrefix(k, prefix)] = v
	}
	return values, nil
}

// SetConfiguration persists value so later reads see it.
func (h *Local) SetConfiguration(ctx context.Context, section, key string, value any) error {
	if h.store == nil {
		return errors.New("no state store")
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode setting %s: %w", key, err)
	}
	return h.store.Put(ctx, state.SettingKey(section, key), string(raw))
}

// Trusted reports whether the workspace is trusted.
func (h *Local) Trusted() bool { return h.trusted }

// WorkspaceFolder returns the workspace root when path lies inside it.
func (h *Local) WorkspaceFolder(path string) (string, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(h.paths.Root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return h.paths.Root, true
}

// RegisterProvider records p for folder.
func (h *Local) RegisterProvider(folder string, p *edit.Provider) (edit.Registration, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.providers[folder] = p
	return release(func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.providers[folder] == p {
			delete(h.providers, folder)
		}
	}), nil
}

// Providers returns the registered folders in order.
func (h *Local) Providers() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.providers))
	for f := range h.providers {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Watch starts a file watcher on folder.
func (h *Local) Watch(ctx context.Context, folder string, handler watch.Handler) (edit.Registration, error) {
	if !h.watching {
		return nil, nil
	}
	if h.onEvents != nil {
		next := handler
		handler = func(events []watch.Event) {
			next(events)
			h.onEvents(events)
		}
	}
	w, err := watch.New(folder, handler, h.watch)
	if err != nil {
		return nil, err
	}
	if err := w.Start(ctx); err != nil {
		w.Stop()
		return nil, fmt.Errorf("watch %s: %w", folder, err)
	}
	return release(w.Stop), nil
}

// ApplyEdits rewrites the document's file. The file must still hold
// doc.Text.
func (h *Local) ApplyEdits(ctx context.Context, doc edit.Document, edits []edit.TextEdit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	current, err := os.ReadFile(doc.FileName)
	if err != nil {
		return fmt.Errorf("read %s: %w", doc.FileName, err)
	}
	if string(current) != doc.Text {
		return fmt.Errorf("%s: %w", doc.FileName, ErrStale)
	}
	text, err := Apply(doc.Text, edits)
	if err != nil {
		return err
	}
	if text == doc.Text {
		return nil
	}
	return WriteFile(doc.FileName, text)
}

// Apply returns text with edits applied. Edits must not overlap.
func Apply(text string, edits []edit.TextEdit) (string, error) {
	type span struct {
		start, end int
		text       string
	}
	spans := make([]span, 0, len(edits))
	for _, e := range edits {
		spans = append(spans, span{
			start: edit.OffsetAt(text, e.Range.Start),
			end:   edit.OffsetAt(text, e.Range.End),
			text:  e.NewText,
		})
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	var b strings.Builder
	last := 0
	for _, s := range spans {
		if s.start < last || s.end < s.start {
			return "", errors.New("overlapping edits")
		}
		b.WriteString(text[last:s.start])
		b.WriteString(s.text)
		last = s.end
	}
	b.WriteString(text[last:])
	return b.String(), nil
}

// WriteFile replaces path through a temporary file in the same directory,
// keeping the file mode.
func WriteFile(path, text string) error {
	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), mode); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

type release func()

func (r release) Close() error {
	r()
	return nil
}
