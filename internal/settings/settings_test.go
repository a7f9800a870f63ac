package settings

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pefmt/internal/tools"
)

type fakeSource struct {
	mu        sync.Mutex
	section   map[string]any
	err       error
	untrusted bool
	persisted map[string]any
}

func (f *fakeSource) GetConfiguration(context.Context, string, string) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]any{}
	for k, v := range f.section {
		out[k] = v
	}
	return out, f.err
}

func (f *fakeSource) Trusted() bool { return !f.untrusted }

type persistingSource struct {
	fakeSource
}

func (p *persistingSource) SetConfiguration(_ context.Context, _ string, key string, value any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.persisted == nil {
		p.persisted = map[string]any{}
	}
	p.persisted[key] = value
	return nil
}

func TestDefaultsBeforeUpdate(t *testing.T) {
	m := NewManager(&fakeSource{}, "", nil)
	snap := m.Snapshot()
	assert.True(t, snap.Enabled)
	assert.True(t, snap.UseDaemons)
	assert.False(t, snap.DebugLogging)
	assert.Empty(t, snap.DaemonPaths)
}

func TestUpdateReplacesSnapshot(t *testing.T) {
	src := &fakeSource{section: map[string]any{
		"enable":             false,
		"enableDebugLogs":    true,
		"useDaemons":         "false",
		"daemonPathPrettier": "/opt/bin/prettierd",
	}}
	m := NewManager(src, "", nil)
	before := m.Snapshot()
	require.NoError(t, m.Update(context.Background()))

	snap := m.Snapshot()
	assert.NotSame(t, before, snap)
	assert.False(t, snap.Enabled)
	assert.True(t, snap.DebugLogging)
	assert.False(t, snap.UseDaemons)
	assert.Equal(t, "/opt/bin/prettierd", snap.DaemonPath(tools.Prettierd))
	assert.Empty(t, snap.DaemonPath(tools.ESLintD))
}

func TestUpdateErrorKeepsSnapshot(t *testing.T) {
	src := &fakeSource{err: errors.New("host gone")}
	m := NewManager(src, "", nil)
	before := m.Snapshot()
	require.Error(t, m.Update(context.Background()))
	assert.Same(t, before, m.Snapshot())
}

func TestSetOverridesUntilUpdate(t *testing.T) {
	m := NewManager(&fakeSource{}, "", nil)
	require.NoError(t, m.Update(context.Background()))
	before := m.Snapshot()

	require.NoError(t, m.Set(context.Background(), KeyDaemonPathEslint, "/usr/local/bin/eslint_d"))
	assert.Equal(t, "/usr/local/bin/eslint_d", m.Snapshot().DaemonPath(tools.ESLintD))
	assert.Empty(t, before.DaemonPath(tools.ESLintD), "earlier snapshots are immutable")

	require.NoError(t, m.Update(context.Background()))
	assert.Empty(t, m.Snapshot().DaemonPath(tools.ESLintD))
}

func TestSetPersistsWhenSupported(t *testing.T) {
	src := &persistingSource{}
	m := NewManager(src, "", nil)
	require.NoError(t, m.Set(context.Background(), KeyDaemonPathPrettier, "/bin/prettierd"))
	assert.Equal(t, "/bin/prettierd", src.persisted[KeyDaemonPathPrettier])
}

func TestSetRejectsBadValues(t *testing.T) {
	m := NewManager(nil, "", nil)
	assert.Error(t, m.Set(context.Background(), KeyUseDaemons, "yes"))
	assert.Error(t, m.Set(context.Background(), KeyDaemonPathPrettier, 3))
	assert.Error(t, m.Set(context.Background(), "bogus", true))
	assert.True(t, m.Snapshot().UseDaemons)
}

func TestUntrustedWorkspaceIsRestricted(t *testing.T) {
	src := &fakeSource{untrusted: true, section: map[string]any{
		"documentSelectors":    []any{"**/*.abc"},
		"withNodeModules":      true,
		"resolveGlobalModules": true,
	}}
	m := NewManager(src, "", nil)
	require.NoError(t, m.Update(context.Background()))
	snap := m.Snapshot()
	assert.True(t, snap.Untrusted)
	assert.Empty(t, snap.Config.DocumentSelectors)
	assert.False(t, snap.Config.WithNodeModules)
	assert.False(t, snap.Config.ResolveGlobalModules)
	assert.False(t, snap.Config.UseEditorConfigValue())
}

func TestSubscribeAndClose(t *testing.T) {
	m := NewManager(&fakeSource{}, "", nil)
	var calls int
	var last *Snapshot
	sub := m.Subscribe(func(_, next *Snapshot) {
		calls++
		last = next
	})
	require.NoError(t, m.Set(context.Background(), KeyEnabled, false))
	assert.Equal(t, 1, calls)
	assert.False(t, last.Enabled)

	sub.Close()
	sub.Close()
	require.NoError(t, m.Update(context.Background()))
	assert.Equal(t, 1, calls)
}

func TestConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	src := &fakeSource{section: map[string]any{"enable": true, "useDaemons": true}}
	m := NewManager(src, "", nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				snap := m.Snapshot()
				assert.Equal(t, snap.Enabled, snap.Config.EnableValue())
			}
		}()
	}
	for j := 0; j < 20; j++ {
		require.NoError(t, m.Set(context.Background(), KeyEnabled, j%2 == 0))
		require.NoError(t, m.Update(context.Background()))
	}
	wg.Wait()
}

func TestDaemonPathKey(t *testing.T) {
	key, ok := DaemonPathKey(tools.Prettierd)
	assert.True(t, ok)
	assert.Equal(t, KeyDaemonPathPrettier, key)
	_, ok = DaemonPathKey(tools.Prettier)
	assert.False(t, ok)
}
