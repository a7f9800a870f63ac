package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := map[string]Kind{
		"/w/.pefmt.yaml":       KindSettings,
		"/w/pkg/package.json":  KindManifest,
		"/w/.prettierrc.yaml":  KindConfig,
		"/w/.eslintrc.json":    KindConfig,
		"/w/.prettierignore":   KindConfig,
		"/w/.editorconfig":     KindConfig,
		"/w/src/index.ts":      KindSource,
		"/w/eslint.config.mjs": KindConfig,
	}
	for path, want := range cases {
		assert.Equal(t, want, Classify(path), path)
	}
}

type collector struct {
	mu     sync.Mutex
	events []Event
	got    chan struct{}
}

func newCollector() *collector {
	return &collector{got: make(chan struct{}, 16)}
}

func (c *collector) handle(batch []Event) {
	c.mu.Lock()
	c.events = append(c.events, batch...)
	c.mu.Unlock()
	select {
	case c.got <- struct{}{}:
	default:
	}
}

func (c *collector) wait(t *testing.T) {
	t.Helper()
	select {
	case <-c.got:
	case <-time.After(5 * time.Second):
		t.Fatal("no events delivered")
	}
}

func (c *collector) snapshot() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func TestWatcherDebouncesAndClassifies(t *testing.T) {
	root := t.TempDir()
	c := newCollector()
	w, err := New(root, c.handle, Options{Debounce: 200 * time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	manifest := filepath.Join(root, "package.json")
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(manifest, []byte(`{"name":"x"}`), 0o644))
	}
	c.wait(t)

	events := c.snapshot()
	require.NotEmpty(t, events)
	var seen int
	for _, ev := range events {
		if ev.Path == manifest {
			seen++
			assert.Equal(t, KindManifest, ev.Kind)
		}
	}
	assert.Equal(t, 1, seen, "repeated writes to one path collapse into one event")
}

func TestWatcherSkipsNodeModules(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules", "prettier"), 0o755))
	c := newCollector()
	w, err := New(root, c.handle, Options{Debounce: 30 * time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(root, "node_modules", "prettier", "package.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".prettierrc"), []byte("semi: true\n"), 0o644))
	c.wait(t)

	for _, ev := range c.snapshot() {
		assert.NotContains(t, ev.Path, "node_modules")
	}
}

func TestWatcherFollowsNewDirectories(t *testing.T) {
	root := t.TempDir()
	c := newCollector()
	w, err := New(root, c.handle, Options{Debounce: 30 * time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	sub := filepath.Join(root, "pkg")
	require.NoError(t, os.Mkdir(sub, 0o755))
	time.Sleep(100 * time.Millisecond)
	target := filepath.Join(sub, ".eslintrc.json")
	require.NoError(t, os.WriteFile(target, []byte("{}"), 0o644))

	deadline := time.After(5 * time.Second)
	for {
		for _, ev := range c.snapshot() {
			if ev.Path == target {
				assert.Equal(t, KindConfig, ev.Kind)
				return
			}
		}
		select {
		case <-c.got:
		case <-deadline:
			t.Fatal("event in new directory not delivered")
		}
	}
}

func TestStopIsIdempotent(t *testing.T) {
	w, err := New(t.TempDir(), nil, Options{})
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	w.Stop()
	w.Stop()
}
