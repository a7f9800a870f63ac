package fmtconfig

import "path/filepath"

// FormatterConfigFiles are the formatter configuration file names, in the
// order they are searched within a directory.
var FormatterConfigFiles = []string{
	"package.json",
	".prettierrc",
	".prettierrc.json",
	".prettierrc.yaml",
	".prettierrc.yml",
	".prettierrc.json5",
	".prettierrc.js",
	".prettierrc.cjs",
	".prettierrc.mjs",
	"prettier.config.js",
	"prettier.config.cjs",
	"prettier.config.mjs",
	".prettierrc.toml",
}

// LinterConfigFiles are the linter configuration file names.
var LinterConfigFiles = []string{
	".eslintrc",
	".eslintrc.json",
	".eslintrc.json5",
	".eslintrc.yaml",
	".eslintrc.yml",
	".eslintrc.toml",
	".eslintrc.js",
	".eslintrc.cjs",
	".eslintrc.mjs",
	"package.json",
	"eslint.config.js",
	"eslint.config.cjs",
	"eslint.config.mjs",
}

// IgnoreFiles affect which documents are formatted or linted.
var IgnoreFiles = []string{".prettierignore", ".eslintignore"}

// IsConfigFile reports whether a change to path can alter formatter or
// linter configuration. .editorconfig counts because it feeds formatter
// options.
func IsConfigFile(path string) bool {
	base := filepath.Base(path)
	if base == ".editorconfig" {
		return true
	}
	for _, set := range [][]string{FormatterConfigFiles, LinterConfigFiles, IgnoreFiles} {
		for _, name := range set {
			if base == name {
				return true
			}
		}
	}
	return false
}

// IsManifest reports whether path is a package manifest.
func IsManifest(path string) bool {
	return filepath.Base(path) == "package.json"
}
