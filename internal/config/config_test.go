package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.EnableValue() || !cfg.UseDaemonsValue() || !cfg.UseEditorConfigValue() {
		t.Fatalf("expected boolean defaults to be on: %+v", cfg)
	}
	if cfg.Mode != ModeProcess || cfg.PackageManager != PackageManagerNPM {
		t.Fatalf("unexpected defaults mode=%q pm=%q", cfg.Mode, cfg.PackageManager)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".pefmt.yaml")
	body := "useDaemons: false\nrequireConfig: true\npackageManager: PNPM\ndocumentSelectors:\n  - \"**/*.abc\"\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.UseDaemonsValue() {
		t.Fatal("expected useDaemons=false")
	}
	if !cfg.RequireConfig {
		t.Fatal("expected requireConfig=true")
	}
	if cfg.PackageManager != PackageManagerPNPM {
		t.Fatalf("expected normalized package manager, got %q", cfg.PackageManager)
	}
	if len(cfg.DocumentSelectors) != 1 || cfg.DocumentSelectors[0] != "**/*.abc" {
		t.Fatalf("unexpected selectors %v", cfg.DocumentSelectors)
	}
	if cfg.TimeoutSeconds != 30 {
		t.Fatalf("expected default timeout, got %d", cfg.TimeoutSeconds)
	}
}

func TestDecodeSection(t *testing.T) {
	cfg, err := Decode(map[string]any{
		"enable":          false,
		"enableDebugLogs": "true",
		"timeoutSeconds":  "5",
		"minimumVersions": map[string]any{"prettier": "2.0.0"},
	})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.EnableValue() {
		t.Fatal("expected enable=false")
	}
	if !cfg.EnableDebugLogs {
		t.Fatal("expected weakly typed debug flag to decode")
	}
	if cfg.TimeoutSeconds != 5 {
		t.Fatalf("expected timeout 5, got %d", cfg.TimeoutSeconds)
	}
	if cfg.MinimumVersions["prettier"] != "2.0.0" {
		t.Fatalf("unexpected minimums %v", cfg.MinimumVersions)
	}
	if !cfg.UseDaemonsValue() {
		t.Fatal("expected untouched keys to keep defaults")
	}
}

func TestDecodeRejectsBadType(t *testing.T) {
	if _, err := Decode(map[string]any{"documentSelectors": map[string]any{"a": 1}}); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestRestricted(t *testing.T) {
	cfg := Default()
	cfg.DocumentSelectors = []string{"*.abc"}
	cfg.WithNodeModules = true
	cfg.ResolveGlobalModules = true

	r := cfg.Restricted()
	if r.DocumentSelectors != nil || r.WithNodeModules || r.ResolveGlobalModules || r.UseEditorConfigValue() {
		t.Fatalf("expected restricted settings, got %+v", r)
	}
	if !cfg.UseEditorConfigValue() {
		t.Fatal("Restricted must not mutate the receiver")
	}
}

func TestMarshalRoundTripKeepsKeys(t *testing.T) {
	data, err := Default().Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	section, err := LoadSection(path)
	if err != nil {
		t.Fatalf("LoadSection: %v", err)
	}
	for _, key := range []string{"enable", "useDaemons", "mode", "packageManager"} {
		if _, ok := section[key]; !ok {
			t.Errorf("expected key %q in marshalled config", key)
		}
	}
}
