package resolve

import (
	"path/filepath"
	"strings"
	"sync"
)

type cacheKey struct {
	dir  string
	tool string
	bin  bool
}

// cacheEntry is a complete resolution outcome: either ref or err is set.
type cacheEntry struct {
	ref Reference
	err error
}

// cache maps (start directory, tool) to the last resolution outcome. Entries
// are replaced whole; there is no expiry.
type cache struct {
	mu      sync.RWMutex
	entries map[cacheKey]cacheEntry
}

func newCache() *cache {
	return &cache{entries: map[cacheKey]cacheEntry{}}
}

func (c *cache) get(key cacheKey) (cacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

func (c *cache) put(key cacheKey, e cacheEntry) {
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

func (c *cache) clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.entries)
	c.entries = map[cacheKey]cacheEntry{}
	return n
}

// dropUnder removes entries whose start directory or resolved scope lies
// within dir.
func (c *cache) dropUnder(dir string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for key, e := range c.entries {
		if within(key.dir, dir) || (e.ref.Scope != "" && within(e.ref.Scope, dir)) {
			delete(c.entries, key)
			n++
		}
	}
	return n
}

func (c *cache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func within(path, dir string) bool {
	path = filepath.Clean(path)
	dir = filepath.Clean(dir)
	if path == dir {
		return true
	}
	if !strings.HasSuffix(dir, string(filepath.Separator)) {
		dir += string(filepath.Separator)
	}
	return strings.HasPrefix(path, dir)
}
