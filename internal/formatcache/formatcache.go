// Package formatcache remembers which files were already formatted so a
// batch run can skip them, as prettier's --cache does.
package formatcache

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"pefmt/internal/config"
)

// Actions and the reasons behind them.
const (
	ActionFormat = "format"
	ActionSkip   = "skip"

	ReasonForced          = "forced"
	ReasonNew             = "new file"
	ReasonSettingsChanged = "settings changed"
	ReasonInputChanged    = "input changed"
	ReasonUpToDate        = "up to date"
)

// FileName is the cache file inside the workspace metadata directory.
const FileName = "format-cache.json"

// Input is the formatting-relevant state of one file.
type Input struct {
	Path string
	Text string
	// ConfigFile is the formatter configuration that applies, if any.
	ConfigFile string
}

// Action says whether one file needs formatting.
type Action struct {
	Input  Input
	Action string
	Reason string
}

// FileState records the last formatted state of a file.
type FileState struct {
	InputHash   string    `json:"input_hash"`
	FormattedAt time.Time `json:"formatted_at"`
}

// State is the cache for one workspace.
type State struct {
	SettingsHash string               `json:"settings_hash"`
	Files        map[string]FileState `json:"files"`
}

// settingsInput is the canonical structure hashed for settings changes.
type settingsInput struct {
	Mode            string            `json:"mode"`
	UseDaemons      bool              `json:"use_daemons"`
	RequireConfig   bool              `json:"require_config"`
	ConfigPath      string            `json:"config_path"`
	IgnorePath      string            `json:"ignore_path"`
	WithNodeModules bool              `json:"with_node_modules"`
	UseEditorConfig bool              `json:"use_editorconfig"`
	ToolVersions    []versionEntry    `json:"tool_versions"`
	Minimums        map[string]string `json:"minimums"`
}

type versionEntry struct {
	Tool    string `json:"tool"`
	Version string `json:"version"`
}

// inputState is hashed per file.
type inputState struct {
	Text       string `json:"text"`
	ConfigFile string `json:"config_file"`
	ConfigHash string `json:"config_hash"`
}

// SettingsHash returns a deterministic hash of the settings and tool
// versions that change formatting output.
func SettingsHash(cfg config.Config, versions map[string]string) string {
	entries := make([]versionEntry, 0, len(versions))
	for tool, v := range versions {
		entries = append(entries, versionEntry{Tool: tool, Version: v})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Tool < entries[j].Tool })
	return hashJSON(settingsInput{
		Mode:            cfg.Mode,
		UseDaemons:      cfg.UseDaemonsValue(),
		RequireConfig:   cfg.RequireConfig,
		ConfigPath:      cfg.ConfigPath,
		IgnorePath:      cfg.IgnorePath,
		WithNodeModules: cfg.WithNodeModules,
		UseEditorConfig: cfg.UseEditorConfigValue(),
		ToolVersions:    entries,
		Minimums:        cfg.MinimumVersions,
	})
}

// InputHash hashes a file's text together with its formatter
// configuration.
func InputHash(in Input) string {
	st := inputState{Text: in.Text, ConfigFile: in.ConfigFile}
	if in.ConfigFile != "" {
		if data, err := os.ReadFile(in.ConfigFile); err == nil {
			st.ConfigHash = hashBytes(data)
		}
	}
	return hashJSON(st)
}

// DetectChanges decides which inputs need formatting against the stored
// state.
func DetectChanges(st *State, inputs []Input, settingsHash string, force bool) []Action {
	actions := make([]Action, len(inputs))
	for i, in := range inputs {
		switch {
		case force:
			actions[i] = Action{Input: in, Action: ActionFormat, Reason: ReasonForced}
		case settingsHash != st.SettingsHash:
			actions[i] = Action{Input: in, Action: ActionFormat, Reason: ReasonSettingsChanged}
		default:
			prior, ok := st.Files[in.Path]
			switch {
			case !ok:
				actions[i] = Action{Input: in, Action: ActionFormat, Reason: ReasonNew}
			case prior.InputHash != InputHash(in):
				actions[i] = Action{Input: in, Action: ActionFormat, Reason: ReasonInputChanged}
			default:
				actions[i] = Action{Input: in, Action: ActionSkip, Reason: ReasonUpToDate}
			}
		}
	}
	return actions
}

// Record stores in as formatted. A settings hash different from the stored
// one drops every other entry first.
func (st *State) Record(settingsHash string, in Input, at time.Time) {
	if st.SettingsHash != settingsHash {
		st.SettingsHash = settingsHash
		st.Files = map[string]FileState{}
	}
	st.Files[in.Path] = FileState{InputHash: InputHash(in), FormattedAt: at}
}

// Forget drops path, for files that failed or still differ.
func (st *State) Forget(path string) {
	delete(st.Files, path)
}

// Load reads the state from path. A missing or corrupt file yields an empty
// state.
func Load(path string) *State {
	data, err := os.ReadFile(path)
	if err != nil {
		return emptyState()
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return emptyState()
	}
	if st.Files == nil {
		st.Files = map[string]FileState{}
	}
	return &st
}

// Save writes the state atomically.
func (st *State) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func emptyState() *State {
	return &State{Files: map[string]FileState{}}
}

func hashJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("sha256:error-%v", err)
	}
	return hashBytes(data)
}

func hashBytes(data []byte) string {
	return fmt.Sprintf("sha256:%x", sha256.Sum256(data))
}
