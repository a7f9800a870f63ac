package formatcache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"pefmt/internal/config"
)

func testConfig() config.Config {
	return config.Default()
}

func testVersions() map[string]string {
	return map[string]string{"prettier": "3.3.3", "eslint": "9.9.0"}
}

func TestDetectChangesForceFormatsAll(t *testing.T) {
	st := emptyState()
	actions := DetectChanges(st, []Input{{Path: "/w/a.ts", Text: "a"}}, "h", true)

	if len(actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(actions))
	}
	if actions[0].Action != ActionFormat || actions[0].Reason != ReasonForced {
		t.Errorf("got %s/%s, want %s/%s", actions[0].Action, actions[0].Reason, ActionFormat, ReasonForced)
	}
}

func TestDetectChangesNewFile(t *testing.T) {
	st := &State{SettingsHash: "h", Files: map[string]FileState{}}
	actions := DetectChanges(st, []Input{{Path: "/w/a.ts", Text: "a"}}, "h", false)

	if actions[0].Reason != ReasonNew {
		t.Errorf("reason: got %q, want %q", actions[0].Reason, ReasonNew)
	}
}

func TestDetectChangesSettingsChanged(t *testing.T) {
	st := &State{SettingsHash: "sha256:old", Files: map[string]FileState{}}
	in := Input{Path: "/w/a.ts", Text: "a"}
	st.Files[in.Path] = FileState{InputHash: InputHash(in)}

	actions := DetectChanges(st, []Input{in}, "sha256:new", false)
	if actions[0].Reason != ReasonSettingsChanged {
		t.Errorf("reason: got %q, want %q", actions[0].Reason, ReasonSettingsChanged)
	}
}

func TestDetectChangesInputChanged(t *testing.T) {
	st := emptyState()
	in := Input{Path: "/w/a.ts", Text: "const a = 1;\n"}
	st.Record("h", in, time.Now())

	in.Text = "const a = 2;\n"
	actions := DetectChanges(st, []Input{in}, "h", false)
	if actions[0].Action != ActionFormat || actions[0].Reason != ReasonInputChanged {
		t.Errorf("got %s/%s", actions[0].Action, actions[0].Reason)
	}
}

func TestDetectChangesUpToDate(t *testing.T) {
	st := emptyState()
	in := Input{Path: "/w/a.ts", Text: "const a = 1;\n"}
	st.Record("h", in, time.Now())

	actions := DetectChanges(st, []Input{in}, "h", false)
	if actions[0].Action != ActionSkip || actions[0].Reason != ReasonUpToDate {
		t.Errorf("got %s/%s, want skip/up to date", actions[0].Action, actions[0].Reason)
	}
}

func TestInputHashFollowsConfigFileContent(t *testing.T) {
	dir := t.TempDir()
	rc := filepath.Join(dir, ".prettierrc")
	if err := os.WriteFile(rc, []byte(`{"semi": false}`), 0o644); err != nil {
		t.Fatal(err)
	}
	in := Input{Path: filepath.Join(dir, "a.ts"), Text: "a", ConfigFile: rc}
	before := InputHash(in)

	if err := os.WriteFile(rc, []byte(`{"semi": true}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if InputHash(in) == before {
		t.Error("hash should change when the config file changes")
	}
}

func TestSettingsHashDeterministic(t *testing.T) {
	cfg := testConfig()
	if SettingsHash(cfg, testVersions()) != SettingsHash(cfg, testVersions()) {
		t.Error("same settings should hash the same")
	}
}

func TestSettingsHashChanges(t *testing.T) {
	base := SettingsHash(testConfig(), testVersions())

	cfg := testConfig()
	cfg.Mode = "module"
	if SettingsHash(cfg, testVersions()) == base {
		t.Error("mode should change the hash")
	}

	versions := testVersions()
	versions["prettier"] = "3.4.0"
	if SettingsHash(testConfig(), versions) == base {
		t.Error("tool version should change the hash")
	}
}

func TestSettingsHashIgnoresUnrelatedFields(t *testing.T) {
	base := SettingsHash(testConfig(), testVersions())
	cfg := testConfig()
	cfg.EnableDebugLogs = true
	cfg.TimeoutSeconds = 90
	if SettingsHash(cfg, testVersions()) != base {
		t.Error("logging and timeouts should not change the hash")
	}
}

func TestRecordResetsOnSettingsChange(t *testing.T) {
	st := emptyState()
	st.Record("old", Input{Path: "/w/a.ts", Text: "a"}, time.Now())
	st.Record("new", Input{Path: "/w/b.ts", Text: "b"}, time.Now())

	if _, ok := st.Files["/w/a.ts"]; ok {
		t.Error("entries from old settings should be dropped")
	}
	if st.SettingsHash != "new" || len(st.Files) != 1 {
		t.Errorf("unexpected state: %+v", st)
	}
}

func TestForget(t *testing.T) {
	st := emptyState()
	st.Record("h", Input{Path: "/w/a.ts", Text: "a"}, time.Now())
	st.Forget("/w/a.ts")
	if len(st.Files) != 0 {
		t.Errorf("expected no entries, got %d", len(st.Files))
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", FileName)
	st := emptyState()
	in := Input{Path: "/w/a.ts", Text: "a"}
	st.Record("h", in, time.Now())
	if err := st.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded := Load(path)
	if loaded.SettingsHash != "h" {
		t.Errorf("settings hash: got %q", loaded.SettingsHash)
	}
	if loaded.Files[in.Path].InputHash != InputHash(in) {
		t.Error("input hash not preserved")
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should be renamed away")
	}
}

func TestLoadMissingOrCorrupt(t *testing.T) {
	dir := t.TempDir()
	if st := Load(filepath.Join(dir, "missing.json")); st.Files == nil || len(st.Files) != 0 {
		t.Error("missing file should give an empty state")
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if st := Load(bad); st.Files == nil || st.SettingsHash != "" {
		t.Error("corrupt file should give an empty state")
	}
}
