package cli

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"pefmt/internal/edit"
	"pefmt/internal/fmtconfig"
	"pefmt/internal/formatcache"
	"pefmt/internal/tui"
)

// formatCache skips files whose text, formatter configuration, settings and
// tool versions are unchanged since they were last formatted.
type formatCache struct {
	mu       sync.Mutex
	path     string
	hash     string
	root     string
	settings fmtconfig.Settings
	resolver *fmtconfig.Resolver
	state    *formatcache.State
}

func (a *app) openFormatCache(ctx context.Context, location string) *formatCache {
	snap := a.settings.Snapshot()
	versions := map[string]string{}
	for _, st := range a.toolStatuses(ctx, a.paths.Root) {
		versions[st.Tool] = st.Version
	}
	path := location
	if path == "" {
		path = filepath.Join(a.paths.MetaDir, formatcache.FileName)
	}
	c := &formatCache{
		path:     path,
		hash:     formatcache.SettingsHash(snap.Config, versions),
		root:     a.paths.Root,
		settings: fmtconfig.SettingsFrom(snap.Config),
		resolver: fmtconfig.NewResolver(a.log),
		state:    formatcache.Load(path),
	}
	a.log.Debug("format cache loaded", map[string]any{"path": path, "entries": len(c.state.Files)})
	return c
}

func (c *formatCache) input(doc edit.Document, text string) formatcache.Input {
	in := formatcache.Input{Path: doc.FileName, Text: text}
	res, err := c.resolver.Resolve(fmtconfig.Request{
		FilePath:      doc.FileName,
		WorkspaceRoot: c.root,
		Settings:      c.settings,
	})
	if err == nil {
		in.ConfigFile = res.ConfigFile
	}
	return in
}

// upToDate reports whether doc can be skipped.
func (c *formatCache) upToDate(doc edit.Document) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	actions := formatcache.DetectChanges(c.state, []formatcache.Input{c.input(doc, doc.Text)}, c.hash, false)
	return actions[0].Action == formatcache.ActionSkip
}

// record remembers files that are formatted on disk and forgets the rest.
func (c *formatCache) record(doc edit.Document, r fileReport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case r.State == tui.StateUnchanged:
		c.state.Record(c.hash, c.input(doc, doc.Text), time.Now())
	case r.Written:
		c.state.Record(c.hash, c.input(doc, r.text), time.Now())
	default:
		c.state.Forget(doc.FileName)
	}
}

func (c *formatCache) save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Save(c.path)
}
