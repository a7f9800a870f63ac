package edit

import (
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// DocumentLanguages are formatted on whole-document requests.
var DocumentLanguages = []string{
	"javascript", "javascriptreact", "typescript", "typescriptreact",
	"json", "jsonc", "graphql", "handlebars",
	"css", "scss", "less", "markdown", "yaml", "vue", "html",
}

// RangeLanguages support range formatting.
var RangeLanguages = []string{
	"javascript", "javascriptreact", "typescript", "typescriptreact",
	"json", "jsonc", "graphql", "handlebars",
}

var extensionLanguages = map[string]string{
	".js":         "javascript",
	".cjs":        "javascript",
	".mjs":        "javascript",
	".jsx":        "javascriptreact",
	".ts":         "typescript",
	".cts":        "typescript",
	".mts":        "typescript",
	".tsx":        "typescriptreact",
	".json":       "json",
	".jsonc":      "jsonc",
	".graphql":    "graphql",
	".gql":        "graphql",
	".hbs":        "handlebars",
	".handlebars": "handlebars",
	".css":        "css",
	".scss":       "scss",
	".less":       "less",
	".md":         "markdown",
	".markdown":   "markdown",
	".yaml":       "yaml",
	".yml":        "yaml",
	".vue":        "vue",
	".html":       "html",
	".htm":        "html",
}

// LanguageFor infers a language ID from a file name.
func LanguageFor(path string) string {
	return extensionLanguages[strings.ToLower(filepath.Ext(path))]
}

// Selector decides which documents a registered provider handles.
type Selector struct {
	root      string
	languages map[string]bool
	ranges    map[string]bool
	patterns  []gitignore.Pattern
}

// NewSelector builds a selector for a workspace folder. Custom patterns are
// globs relative to root and select documents in addition to the built-in
// languages.
func NewSelector(root string, custom []string) Selector {
	s := Selector{root: root, languages: set(DocumentLanguages), ranges: set(RangeLanguages)}
	for _, p := range custom {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		s.patterns = append(s.patterns, gitignore.ParsePattern(p, nil))
	}
	return s
}

func set(values []string) map[string]bool {
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}

func (s Selector) language(doc Document) string {
	if doc.LanguageID != "" {
		return doc.LanguageID
	}
	return LanguageFor(doc.FileName)
}

// Matches reports whether whole-document formatting applies to doc.
func (s Selector) Matches(doc Document) bool {
	return s.languages[s.language(doc)] || s.matchesCustom(doc)
}

// MatchesRange reports whether range formatting applies to doc.
func (s Selector) MatchesRange(doc Document) bool {
	return s.ranges[s.language(doc)]
}

func (s Selector) matchesCustom(doc Document) bool {
	if len(s.patterns) == 0 || doc.Virtual() || s.root == "" {
		return false
	}
	rel, err := filepath.Rel(s.root, doc.FileName)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for _, p := range s.patterns {
		if p.Match(parts, false) == gitignore.Exclude {
			return true
		}
	}
	return false
}
