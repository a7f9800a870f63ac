package tools

import (
	"runtime"
	"sort"
)

// Tool names.
const (
	Prettier  = "prettier"
	Prettierd = "prettierd"
	ESLint    = "eslint"
	ESLintD   = "eslint_d"
)

var toolDefinitions = map[string]ToolDefinition{
	Prettier: {
		Name:           Prettier,
		Package:        "prettier",
		Bin:            "prettier",
		Kind:           KindFormatter,
		MinimumVersion: "1.13.0",
		EntryPoints:    []string{"package.json"},
	},
	Prettierd: {
		Name:    Prettierd,
		Package: "@fsouza/prettierd",
		Bin:     "prettierd",
		Kind:    KindFormatter,
		Daemon:  true,
	},
	ESLint: {
		Name:           ESLint,
		Package:        "eslint",
		Bin:            "eslint",
		Kind:           KindLinter,
		MinimumVersion: "7.0.0",
		EntryPoints:    []string{"package.json"},
	},
	ESLintD: {
		Name:    ESLintD,
		Package: "eslint_d",
		Bin:     "eslint_d",
		Kind:    KindLinter,
		Daemon:  true,
	},
}

var daemonOf = map[string]string{
	Prettier: Prettierd,
	ESLint:   ESLintD,
}

// ExecutableName returns the platform file name of an npm bin shim.
func ExecutableName(base string) string {
	if runtime.GOOS == "windows" {
		return base + ".cmd"
	}
	return base
}

// KnownTools returns the list of tool names.
func KnownTools() []string {
	names := make([]string, 0, len(toolDefinitions))
	for name := range toolDefinitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definition returns the tool definition for the provided name.
func Definition(name string) (ToolDefinition, bool) {
	def, ok := toolDefinitions[name]
	return def, ok
}

// DaemonFor returns the daemon variant of a one-shot tool.
func DaemonFor(name string) (ToolDefinition, bool) {
	daemon, ok := daemonOf[name]
	if !ok {
		return ToolDefinition{}, false
	}
	return Definition(daemon)
}

// ForKind returns the one-shot tool serving a pipeline stage.
func ForKind(kind Kind) ToolDefinition {
	if kind == KindLinter {
		return toolDefinitions[ESLint]
	}
	return toolDefinitions[Prettier]
}
