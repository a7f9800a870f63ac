// Package fmtconfig decides how the formatter should treat a document:
// which configuration file applies, whether the document is ignored, and
// which extra command-line flags express the workspace settings.
package fmtconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"pefmt/internal/config"
	"pefmt/internal/logx"
)

// Settings are the workspace settings that influence config resolution.
type Settings struct {
	RequireConfig   bool
	ConfigPath      string
	IgnorePath      string
	WithNodeModules bool
	UseEditorConfig bool
}

// SettingsFrom extracts the resolution settings from the workspace config.
func SettingsFrom(cfg config.Config) Settings {
	return Settings{
		RequireConfig:   cfg.RequireConfig,
		ConfigPath:      cfg.ConfigPath,
		IgnorePath:      cfg.IgnorePath,
		WithNodeModules: cfg.WithNodeModules,
		UseEditorConfig: cfg.UseEditorConfigValue(),
	}
}

// Request describes one document.
type Request struct {
	FilePath      string
	WorkspaceRoot string
	// Virtual documents have no backing file; discovery and ignore checks
	// are skipped for them.
	Virtual  bool
	Force    bool
	Settings Settings
}

// Resolution is the outcome for one document.
type Resolution struct {
	ConfigFile string
	Options    map[string]any
	// Ignored documents must not be formatted at all.
	Ignored      bool
	IgnoreReason string
	// Disabled means requireConfig is set and no config file applies; the
	// formatter stage is skipped.
	Disabled bool
	// Args are extra formatter CLI flags.
	Args []string
}

// Resolver resolves formatter configuration. Parsed ignore files are cached
// until Reset.
type Resolver struct {
	log     *logx.Logger
	ignores ignoreCache
}

// NewResolver creates a Resolver.
func NewResolver(log *logx.Logger) *Resolver {
	if log == nil {
		log = logx.Discard()
	}
	return &Resolver{log: log}
}

// Reset forgets cached ignore files.
func (r *Resolver) Reset() {
	r.ignores.reset()
}

// Resolve inspects the document. A configuration file that exists but
// cannot be parsed yields a *ConfigError; callers must abort the request.
func (r *Resolver) Resolve(req Request) (Resolution, error) {
	var res Resolution
	s := req.Settings

	if !s.UseEditorConfig {
		res.Args = append(res.Args, "--no-editorconfig")
	}
	if s.WithNodeModules {
		res.Args = append(res.Args, "--with-node-modules")
	}
	if req.Force {
		res.Args = append(res.Args, "--no-require-pragma", "--ignore-path", os.DevNull)
	}

	if req.Virtual {
		return res, nil
	}

	if !req.Force {
		ignored, reason, err := r.ignored(req)
		if err != nil {
			r.log.Warn("ignore file unreadable", err)
		}
		if ignored {
			res.Ignored = true
			res.IgnoreReason = reason
			return res, nil
		}
		if ignorePath := strings.TrimSpace(s.IgnorePath); ignorePath != "" {
			if path := absolute(req.WorkspaceRoot, ignorePath); fileExists(path) {
				res.Args = append(res.Args, "--ignore-path", path)
			}
		}
	}

	configFile, err := r.locate(req)
	if err != nil {
		return res, err
	}
	if configFile != "" {
		opts, err := parseConfig(configFile)
		if err != nil {
			return res, err
		}
		res.ConfigFile = configFile
		res.Options = opts
		if strings.TrimSpace(s.ConfigPath) != "" {
			res.Args = append(res.Args, "--config", configFile)
			r.log.Info(fmt.Sprintf("Using config file at '%s'", configFile))
		}
		return res, nil
	}

	if s.RequireConfig && !req.Force {
		r.log.Info("Require config set to true and no config present. Skipping formatter for " + req.FilePath)
		res.Disabled = true
	}
	return res, nil
}

func (r *Resolver) ignored(req Request) (bool, string, error) {
	rel := req.FilePath
	if req.WorkspaceRoot != "" {
		if r, err := filepath.Rel(req.WorkspaceRoot, req.FilePath); err == nil && !strings.HasPrefix(r, "..") {
			rel = r
		}
	}
	if !req.Settings.WithNodeModules && inNodeModules(rel) {
		return true, "file is inside node_modules", nil
	}
	ignoreFile := strings.TrimSpace(req.Settings.IgnorePath)
	if ignoreFile == "" || req.WorkspaceRoot == "" {
		return false, "", nil
	}
	m, err := r.ignores.get(req.WorkspaceRoot, ignoreFile)
	if err != nil {
		return false, "", err
	}
	if m.Ignored(req.FilePath) {
		return true, "matched " + ignoreFile, nil
	}
	return false, "", nil
}

// locate returns the configured config file, or the nearest config file
// from the document's directory upward.
func (r *Resolver) locate(req Request) (string, error) {
	if p := strings.TrimSpace(req.Settings.ConfigPath); p != "" {
		path := absolute(req.WorkspaceRoot, p)
		if _, err := os.Stat(path); err != nil {
			return "", &ConfigError{Path: path, Cause: err}
		}
		return path, nil
	}

	dir := filepath.Dir(req.FilePath)
	for {
		for _, name := range FormatterConfigFiles {
			candidate := filepath.Join(dir, name)
			info, err := os.Stat(candidate)
			if err != nil || info.IsDir() {
				continue
			}
			if name == "package.json" {
				ok, err := packageJSONHasConfig(candidate)
				if err != nil {
					r.log.Debug("skipping unreadable package.json", err)
				}
				if !ok {
					continue
				}
			}
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

func packageJSONHasConfig(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	var pkg map[string]json.RawMessage
	if err := json.Unmarshal(data, &pkg); err != nil {
		return false, err
	}
	_, ok := pkg["prettier"]
	return ok, nil
}

// parseConfig loads declarative config files. Script and JSON5 configs are
// left to the formatter and return nil options.
func parseConfig(path string) (map[string]any, error) {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	if base == ".prettierrc" {
		ext = ".yaml"
	}
	switch ext {
	case ".json", ".yaml", ".yml", ".toml":
	default:
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Cause: err}
	}

	var out map[string]any
	switch {
	case base == "package.json":
		var pkg struct {
			Prettier any `json:"prettier"`
		}
		if err := json.Unmarshal(data, &pkg); err != nil {
			return nil, &ConfigError{Path: path, Cause: err}
		}
		switch v := pkg.Prettier.(type) {
		case map[string]any:
			out = v
		case string:
			// A shared config reference such as "@company/prettier-config".
			out = map[string]any{"extends": v}
		default:
			return nil, &ConfigError{Path: path, Cause: errors.New(`"prettier" must be an object or a string`)}
		}
	case ext == ".json":
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, &ConfigError{Path: path, Cause: err}
		}
	case ext == ".toml":
		if err := toml.Unmarshal(data, &out); err != nil {
			return nil, &ConfigError{Path: path, Cause: err}
		}
	default:
		if err := yaml.Unmarshal(data, &out); err != nil {
			return nil, &ConfigError{Path: path, Cause: err}
		}
		if out == nil && strings.TrimSpace(string(data)) != "" {
			return nil, &ConfigError{Path: path, Cause: errors.New("config is not a mapping")}
		}
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

func absolute(root, path string) string {
	if filepath.IsAbs(path) || root == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(root, path)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
