package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Section is the configuration section name read from the host.
const Section = "pefmt"

// Package manager kinds used for global module resolution.
const (
	PackageManagerNPM  = "npm"
	PackageManagerPNPM = "pnpm"
	PackageManagerYarn = "yarn"
)

// Invocation modes for the formatting pipeline.
const (
	ModeProcess = "process"
	ModeModule  = "module"
)

// Config captures the formatting settings for a workspace. Field names mirror
// the host configuration keys so the same struct decodes from YAML and from a
// host-provided key/value section.
type Config struct {
	Version              int               `yaml:"version" mapstructure:"version"`
	Enable               *bool             `yaml:"enable,omitempty" mapstructure:"enable"`
	EnableDebugLogs      bool              `yaml:"enableDebugLogs" mapstructure:"enableDebugLogs"`
	UseDaemons           *bool             `yaml:"useDaemons,omitempty" mapstructure:"useDaemons"`
	DaemonPathPrettier   string            `yaml:"daemonPathPrettier,omitempty" mapstructure:"daemonPathPrettier"`
	DaemonPathEslint     string            `yaml:"daemonPathEslint,omitempty" mapstructure:"daemonPathEslint"`
	UseEditorConfig      *bool             `yaml:"useEditorConfig,omitempty" mapstructure:"useEditorConfig"`
	ResolveGlobalModules bool              `yaml:"resolveGlobalModules" mapstructure:"resolveGlobalModules"`
	WithNodeModules      bool              `yaml:"withNodeModules" mapstructure:"withNodeModules"`
	RequireConfig        bool              `yaml:"requireConfig" mapstructure:"requireConfig"`
	ConfigPath           string            `yaml:"configPath,omitempty" mapstructure:"configPath"`
	IgnorePath           string            `yaml:"ignorePath" mapstructure:"ignorePath"`
	DocumentSelectors    []string          `yaml:"documentSelectors,omitempty" mapstructure:"documentSelectors"`
	PackageManager       string            `yaml:"packageManager" mapstructure:"packageManager" validate:"oneof=npm pnpm yarn"`
	Mode                 string            `yaml:"mode" mapstructure:"mode" validate:"oneof=process module"`
	TimeoutSeconds       int               `yaml:"timeoutSeconds" mapstructure:"timeoutSeconds" validate:"min=1,max=600"`
	MaxOutputBytes       int               `yaml:"maxOutputBytes" mapstructure:"maxOutputBytes" validate:"min=1024"`
	MinimumVersions      map[string]string `yaml:"minimumVersions,omitempty" mapstructure:"minimumVersions"`
	State                StateConfig       `yaml:"state,omitempty" mapstructure:"state"`
	Logging              LoggingConfig     `yaml:"logging,omitempty" mapstructure:"logging"`
}

// StateConfig locates the persisted workspace state.
type StateConfig struct {
	Dir string `yaml:"dir,omitempty" mapstructure:"dir"`
}

// LoggingConfig locates log files.
type LoggingConfig struct {
	Dir string `yaml:"dir,omitempty" mapstructure:"dir"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Version:         1,
		Enable:          boolPtr(true),
		UseDaemons:      boolPtr(true),
		UseEditorConfig: boolPtr(true),
		IgnorePath:      ".prettierignore",
		PackageManager:  PackageManagerNPM,
		Mode:            ModeProcess,
		TimeoutSeconds:  30,
		MaxOutputBytes:  8 << 20,
	}
}

// Load reads the YAML configuration from disk if it exists, otherwise returns
// the default configuration.
func Load(path string) (Config, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := Default()
			cfg.ApplyDefaults()
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// LoadSection reads the YAML file as a loose key/value section, the shape a
// host hands to Decode. A missing file yields an empty section.
func LoadSection(path string) (map[string]any, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	section := map[string]any{}
	if err := yaml.Unmarshal(contents, &section); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return section, nil
}

// Decode builds a Config from a host configuration section. Keys missing
// from the section keep their default values.
func Decode(section map[string]any) (Config, error) {
	cfg := Default()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Config{}, fmt.Errorf("build decoder: %w", err)
	}
	if err := decoder.Decode(section); err != nil {
		return Config{}, fmt.Errorf("decode %s settings: %w", Section, err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults ensures fields fall back to sensible defaults when the
// source omits them.
func (c *Config) ApplyDefaults() {
	defaults := Default()

	if c.Version == 0 {
		c.Version = defaults.Version
	}
	if c.Enable == nil {
		c.Enable = boolPtr(true)
	}
	if c.UseDaemons == nil {
		c.UseDaemons = boolPtr(true)
	}
	if c.UseEditorConfig == nil {
		c.UseEditorConfig = boolPtr(true)
	}
	if strings.TrimSpace(c.IgnorePath) == "" {
		c.IgnorePath = defaults.IgnorePath
	}
	c.PackageManager = strings.ToLower(strings.TrimSpace(c.PackageManager))
	if c.PackageManager == "" {
		c.PackageManager = defaults.PackageManager
	}
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	if c.Mode == "" {
		c.Mode = defaults.Mode
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = defaults.TimeoutSeconds
	}
	if c.MaxOutputBytes == 0 {
		c.MaxOutputBytes = defaults.MaxOutputBytes
	}
}

// EnableValue reports whether formatting is enabled.
func (c Config) EnableValue() bool {
	return c.Enable == nil || *c.Enable
}

// UseDaemonsValue reports whether the daemon variants should be used.
func (c Config) UseDaemonsValue() bool {
	return c.UseDaemons == nil || *c.UseDaemons
}

// UseEditorConfigValue reports whether .editorconfig participates in
// formatter configuration.
func (c Config) UseEditorConfigValue() bool {
	return c.UseEditorConfig == nil || *c.UseEditorConfig
}

// Restricted returns a copy with the settings that may execute or widen
// access to workspace code turned off, for use in untrusted workspaces.
func (c Config) Restricted() Config {
	c.DocumentSelectors = nil
	c.UseEditorConfig = boolPtr(false)
	c.WithNodeModules = false
	c.ResolveGlobalModules = false
	return c
}

// Marshal returns the YAML encoding of the configuration.
func (c Config) Marshal() ([]byte, error) {
	buf, err := yaml.Marshal(&c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return buf, nil
}

func boolPtr(v bool) *bool {
	return &v
}
