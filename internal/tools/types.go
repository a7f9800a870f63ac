package tools

// Source records where a tool reference was found.
type Source string

const (
	SourceUnknown     Source = ""
	SourceManifest    Source = "manifest"
	SourceNodeModules Source = "node_modules"
	SourceGlobal      Source = "global"
	SourcePath        Source = "path"
	SourceState       Source = "state"
	SourceSettings    Source = "settings"
	SourceInstall     Source = "install"
)

// Kind distinguishes the two pipeline stages.
type Kind string

const (
	KindFormatter Kind = "formatter"
	KindLinter    Kind = "linter"
)

// Status captures the resolved state for a tool, as reported by doctor and
// `tools list`.
type Status struct {
	Tool      string   `json:"tool"`
	Package   string   `json:"package"`
	Version   string   `json:"version,omitempty"`
	Minimum   string   `json:"minimum,omitempty"`
	Source    Source   `json:"source"`
	Path      string   `json:"path,omitempty"`
	Satisfied bool     `json:"satisfied"`
	Error     string   `json:"error,omitempty"`
	Notes     []string `json:"notes,omitempty"`
}

// ToolDefinition contains metadata required to locate and validate a tool.
type ToolDefinition struct {
	Name           string
	Package        string
	Bin            string
	Kind           Kind
	Daemon         bool
	MinimumVersion string
	// EntryPoints are package-relative files that must exist for the
	// installation to be usable in module mode.
	EntryPoints []string
}
