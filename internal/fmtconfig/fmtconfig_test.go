package fmtconfig

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func defaults() Settings {
	return Settings{IgnorePath: ".prettierignore", UseEditorConfig: true}
}

func TestResolveFindsNearestConfig(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".prettierrc"), "semi: false\n")
	writeFile(t, filepath.Join(root, "pkg", ".prettierrc.json"), `{"tabWidth": 4}`)
	file := filepath.Join(root, "pkg", "src", "a.js")

	res, err := NewResolver(nil).Resolve(Request{FilePath: file, WorkspaceRoot: root, Settings: defaults()})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "pkg", ".prettierrc.json"), res.ConfigFile)
	assert.EqualValues(t, 4, res.Options["tabWidth"])
	assert.False(t, res.Disabled)
	assert.Empty(t, res.Args)
}

func TestResolvePackageJSONWithoutPrettierKeyIsSkipped(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "app", "package.json"), `{"name": "app"}`)
	writeFile(t, filepath.Join(root, "package.json"), `{"prettier": {"singleQuote": true}}`)

	res, err := NewResolver(nil).Resolve(Request{
		FilePath:      filepath.Join(root, "app", "index.ts"),
		WorkspaceRoot: root,
		Settings:      defaults(),
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "package.json"), res.ConfigFile)
	assert.Equal(t, true, res.Options["singleQuote"])
}

func TestResolveParseErrorIsHardStop(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".prettierrc.json"), `{"semi": `)

	_, err := NewResolver(nil).Resolve(Request{FilePath: filepath.Join(root, "a.js"), WorkspaceRoot: root, Settings: defaults()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfigParse))
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, filepath.Join(root, ".prettierrc.json"), cfgErr.Path)
}

func TestResolveRequireConfig(t *testing.T) {
	root := t.TempDir()
	s := defaults()
	s.RequireConfig = true
	r := NewResolver(nil)

	res, err := r.Resolve(Request{FilePath: filepath.Join(root, "a.js"), WorkspaceRoot: root, Settings: s})
	require.NoError(t, err)
	assert.True(t, res.Disabled)

	res, err = r.Resolve(Request{FilePath: filepath.Join(root, "a.js"), WorkspaceRoot: root, Settings: s, Virtual: true})
	require.NoError(t, err)
	assert.False(t, res.Disabled, "virtual documents are never disabled")

	res, err = r.Resolve(Request{FilePath: filepath.Join(root, "a.js"), WorkspaceRoot: root, Settings: s, Force: true})
	require.NoError(t, err)
	assert.False(t, res.Disabled, "force bypasses requireConfig")
}

func TestResolveVirtualSkipsDiscovery(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".prettierrc.json"), `not json`)

	res, err := NewResolver(nil).Resolve(Request{FilePath: filepath.Join(root, "Untitled-1"), WorkspaceRoot: root, Virtual: true, Settings: defaults()})
	require.NoError(t, err)
	assert.Empty(t, res.ConfigFile)
	assert.Nil(t, res.Options)
}

func TestResolveIgnoreFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".prettierignore"), "# generated\ndist/\n*.min.js\n")
	r := NewResolver(nil)

	res, err := r.Resolve(Request{FilePath: filepath.Join(root, "dist", "bundle.js"), WorkspaceRoot: root, Settings: defaults()})
	require.NoError(t, err)
	assert.True(t, res.Ignored)

	res, err = r.Resolve(Request{FilePath: filepath.Join(root, "src", "vendor.min.js"), WorkspaceRoot: root, Settings: defaults()})
	require.NoError(t, err)
	assert.True(t, res.Ignored)

	res, err = r.Resolve(Request{FilePath: filepath.Join(root, "src", "app.js"), WorkspaceRoot: root, Settings: defaults()})
	require.NoError(t, err)
	assert.False(t, res.Ignored)
	assert.Equal(t, []string{"--ignore-path", filepath.Join(root, ".prettierignore")}, res.Args)

	res, err = r.Resolve(Request{FilePath: filepath.Join(root, "dist", "bundle.js"), WorkspaceRoot: root, Settings: defaults(), Force: true})
	require.NoError(t, err)
	assert.False(t, res.Ignored, "force bypasses ignore files")
}

func TestResolveIgnoreCacheReset(t *testing.T) {
	root := t.TempDir()
	r := NewResolver(nil)
	file := filepath.Join(root, "gen.js")

	res, err := r.Resolve(Request{FilePath: file, WorkspaceRoot: root, Settings: defaults()})
	require.NoError(t, err)
	assert.False(t, res.Ignored)

	writeFile(t, filepath.Join(root, ".prettierignore"), "gen.js\n")
	res, err = r.Resolve(Request{FilePath: file, WorkspaceRoot: root, Settings: defaults()})
	require.NoError(t, err)
	assert.False(t, res.Ignored, "cached matcher still in use")

	r.Reset()
	res, err = r.Resolve(Request{FilePath: file, WorkspaceRoot: root, Settings: defaults()})
	require.NoError(t, err)
	assert.True(t, res.Ignored)
}

func TestResolveNodeModules(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "node_modules", "lib", "index.js")
	s := defaults()

	res, err := NewResolver(nil).Resolve(Request{FilePath: file, WorkspaceRoot: root, Settings: s})
	require.NoError(t, err)
	assert.True(t, res.Ignored)

	s.WithNodeModules = true
	res, err = NewResolver(nil).Resolve(Request{FilePath: file, WorkspaceRoot: root, Settings: s})
	require.NoError(t, err)
	assert.False(t, res.Ignored)
	assert.Contains(t, res.Args, "--with-node-modules")
}

func TestResolveArgs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "config", "fmt.yaml"), "printWidth: 100\n")
	s := Settings{ConfigPath: "config/fmt.yaml"}

	res, err := NewResolver(nil).Resolve(Request{FilePath: filepath.Join(root, "a.js"), WorkspaceRoot: root, Settings: s, Force: true})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"--no-editorconfig",
		"--no-require-pragma", "--ignore-path", os.DevNull,
		"--config", filepath.Join(root, "config", "fmt.yaml"),
	}, res.Args)
	assert.EqualValues(t, 100, res.Options["printWidth"])
}

func TestResolveMissingConfigPath(t *testing.T) {
	root := t.TempDir()
	_, err := NewResolver(nil).Resolve(Request{FilePath: filepath.Join(root, "a.js"), WorkspaceRoot: root, Settings: Settings{ConfigPath: "nope.json"}})
	assert.ErrorIs(t, err, ErrConfigParse)
}

func TestIsConfigFile(t *testing.T) {
	for _, p := range []string{"/w/.prettierrc", "/w/.editorconfig", "/w/.eslintrc.cjs", "/w/package.json", "/w/.prettierignore"} {
		assert.True(t, IsConfigFile(p), p)
	}
	assert.False(t, IsConfigFile("/w/src/app.js"))
	assert.True(t, IsManifest("/w/a/package.json"))
}

func TestResolveTOMLConfig(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".prettierrc.toml"), "semi = false\ntabWidth = 2\n")
	res, err := NewResolver(nil).Resolve(Request{FilePath: filepath.Join(root, "a.ts"), WorkspaceRoot: root, Settings: defaults()})
	require.NoError(t, err)
	assert.Equal(t, false, res.Options["semi"])
	assert.EqualValues(t, 2, res.Options["tabWidth"])

	writeFile(t, filepath.Join(root, ".prettierrc.toml"), "semi = \n")
	_, err = NewResolver(nil).Resolve(Request{FilePath: filepath.Join(root, "a.ts"), WorkspaceRoot: root, Settings: defaults()})
	assert.ErrorIs(t, err, ErrConfigParse)
}
