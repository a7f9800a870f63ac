package fmtconfig

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// IgnoreMatcher applies gitignore-style patterns relative to a root.
type IgnoreMatcher struct {
	root    string
	matcher gitignore.Matcher
}

// LoadIgnore reads an ignore file. A missing file yields a matcher that
// never ignores.
func LoadIgnore(root, ignoreFile string) (*IgnoreMatcher, error) {
	path := ignoreFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &IgnoreMatcher{root: root}, nil
		}
		return nil, fmt.Errorf("read ignore file %s: %w", path, err)
	}
	return &IgnoreMatcher{root: root, matcher: gitignore.NewMatcher(parsePatterns(data))}, nil
}

func parsePatterns(data []byte) []gitignore.Pattern {
	var patterns []gitignore.Pattern
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, nil))
	}
	return patterns
}

// Ignored reports whether path matches a pattern. Paths outside the root
// are never ignored.
func (m *IgnoreMatcher) Ignored(path string) bool {
	if m == nil || m.matcher == nil {
		return false
	}
	rel, err := filepath.Rel(m.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	return m.matcher.Match(splitPath(rel), false)
}

// splitPath splits a path into segments for gitignore matching.
func splitPath(path string) []string {
	var segments []string
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part != "" && part != "." {
			segments = append(segments, part)
		}
	}
	return segments
}

func inNodeModules(path string) bool {
	for _, seg := range splitPath(path) {
		if seg == "node_modules" {
			return true
		}
	}
	return false
}

// ignoreCache keeps parsed ignore files per (root, file) until reset.
type ignoreCache struct {
	mu       sync.Mutex
	matchers map[string]*IgnoreMatcher
}

func (c *ignoreCache) get(root, file string) (*IgnoreMatcher, error) {
	key := root + "\x00" + file
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.matchers[key]; ok {
		return m, nil
	}
	m, err := LoadIgnore(root, file)
	if err != nil {
		return nil, err
	}
	if c.matchers == nil {
		c.matchers = map[string]*IgnoreMatcher{}
	}
	c.matchers[key] = m
	return m, nil
}

func (c *ignoreCache) reset() {
	c.mu.Lock()
	c.matchers = nil
	c.mu.Unlock()
}
