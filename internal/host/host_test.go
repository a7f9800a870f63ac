package host

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pefmt/internal/config"
	"pefmt/internal/edit"
	"pefmt/internal/paths"
	"pefmt/internal/settings"
	"pefmt/internal/state"
	"pefmt/internal/tools"
	"pefmt/internal/watch"
)

func newHost(t *testing.T) (*Local, paths.WorkspacePaths) {
	t.Helper()
	wp, err := paths.Resolve(t.TempDir())
	require.NoError(t, err)
	store, err := state.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return New(Options{Paths: wp, Store: store, Trusted: true, Watching: true}), wp
}

func TestConfigurationOverlaysPersistedValues(t *testing.T) {
	h, wp := newHost(t)
	require.NoError(t, os.WriteFile(wp.ConfigFile, []byte("requireConfig: true\ndaemonPathPrettier: /old\n"), 0o644))

	mgr := settings.NewManager(h, "", nil)
	require.NoError(t, mgr.Update(context.Background()))
	assert.True(t, mgr.Snapshot().Config.RequireConfig)
	assert.Equal(t, "/old", mgr.Snapshot().DaemonPath(tools.Prettierd))

	require.NoError(t, mgr.Set(context.Background(), settings.KeyDaemonPathPrettier, "/usr/bin/prettierd"))
	require.NoError(t, mgr.Update(context.Background()))
	assert.Equal(t, "/usr/bin/prettierd", mgr.Snapshot().DaemonPath(tools.Prettierd), "persisted value survives reload")
	assert.True(t, mgr.Snapshot().Config.RequireConfig)

	section, err := h.GetConfiguration(context.Background(), config.Section, "")
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/prettierd", section[settings.KeyDaemonPathPrettier])
}

func TestSetConfigurationWithoutStore(t *testing.T) {
	h := New(Options{Paths: paths.WorkspacePaths{Root: t.TempDir()}})
	assert.Error(t, h.SetConfiguration(context.Background(), config.Section, "enable", false))
}

func TestWorkspaceFolder(t *testing.T) {
	h, wp := newHost(t)
	root, ok := h.WorkspaceFolder(filepath.Join(wp.Root, "src", "a.js"))
	assert.True(t, ok)
	assert.Equal(t, wp.Root, root)

	_, ok = h.WorkspaceFolder(filepath.Join(filepath.Dir(wp.Root), "elsewhere.js"))
	assert.False(t, ok)
}

func TestRegisterProvider(t *testing.T) {
	h, wp := newHost(t)
	reg, err := h.RegisterProvider(wp.Root, edit.NewProvider(edit.ProviderOptions{Root: wp.Root}))
	require.NoError(t, err)
	assert.Equal(t, []string{wp.Root}, h.Providers())
	require.NoError(t, reg.Close())
	assert.Empty(t, h.Providers())
}

func TestApplyEdits(t *testing.T) {
	h, wp := newHost(t)
	file := filepath.Join(wp.Root, "a.js")
	require.NoError(t, os.WriteFile(file, []byte("const a = 1\n"), 0o600))
	doc := edit.Document{Scheme: edit.SchemeFile, FileName: file, Text: "const a = 1\n"}

	edits := []edit.TextEdit{{Range: edit.FullRange(doc.Text), NewText: "const a = 1;\n"}}
	require.NoError(t, h.ApplyEdits(context.Background(), doc, edits))
	got, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "const a = 1;\n", string(got))
	info, err := os.Stat(file)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	err = h.ApplyEdits(context.Background(), doc, edits)
	assert.ErrorIs(t, err, ErrStale)
}

func TestApplyEditsLeavesUnchangedFileAlone(t *testing.T) {
	h, wp := newHost(t)
	file := filepath.Join(wp.Root, "a.js")
	require.NoError(t, os.WriteFile(file, []byte("const a = 1;\n"), 0o644))
	past := time.Now().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(file, past, past))
	doc := edit.Document{Scheme: edit.SchemeFile, FileName: file, Text: "const a = 1;\n"}

	edits := []edit.TextEdit{{Range: edit.FullRange(doc.Text), NewText: doc.Text}}
	require.NoError(t, h.ApplyEdits(context.Background(), doc, edits))
	info, err := os.Stat(file)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(past), "no-op edit must not rewrite the file")
}

func TestApply(t *testing.T) {
	text := "one\ntwo\nthree"
	out, err := Apply(text, []edit.TextEdit{
		{Range: edit.Range{Start: edit.Position{Line: 2}, End: edit.Position{Line: 2, Character: 5}}, NewText: "3"},
		{Range: edit.Range{Start: edit.Position{Line: 0}, End: edit.Position{Line: 0, Character: 3}}, NewText: "1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "1\ntwo\n3", out)

	_, err = Apply(text, []edit.TextEdit{
		{Range: edit.Range{Start: edit.Position{Line: 0}, End: edit.Position{Line: 1}}, NewText: "x"},
		{Range: edit.Range{Start: edit.Position{Line: 0, Character: 2}, End: edit.Position{Line: 0, Character: 3}}, NewText: "y"},
	})
	assert.Error(t, err)
}

func TestWatchDeliversSettingsChanges(t *testing.T) {
	h, wp := newHost(t)
	var mu sync.Mutex
	var got []watch.Event
	reg, err := h.Watch(context.Background(), wp.Root, func(events []watch.Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, events...)
	})
	require.NoError(t, err)
	defer reg.Close()

	require.NoError(t, os.WriteFile(wp.ConfigFile, []byte("enable: false\n"), 0o644))
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, ev := range got {
			if ev.Kind == watch.KindSettings {
				return true
			}
		}
		return false
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWatchDisabled(t *testing.T) {
	h := New(Options{Paths: paths.WorkspacePaths{Root: t.TempDir()}})
	reg, err := h.Watch(context.Background(), h.paths.Root, func([]watch.Event) {})
	assert.NoError(t, err)
	assert.Nil(t, reg)
}

func TestOnEventsRunsAfterHandler(t *testing.T) {
	wp, err := paths.Resolve(t.TempDir())
	require.NoError(t, err)
	var mu sync.Mutex
	var order []string
	h := New(Options{Paths: wp, Watching: true, OnEvents: func([]watch.Event) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, "hook")
	}})
	reg, err := h.Watch(context.Background(), wp.Root, func([]watch.Event) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, "service")
	})
	require.NoError(t, err)
	defer reg.Close()

	require.NoError(t, os.WriteFile(filepath.Join(wp.Root, "a.js"), []byte("x"), 0o644))
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) >= 2
	}, 3*time.Second, 20*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"service", "hook"}, order[:2])
}
