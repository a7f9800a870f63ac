package resolve

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pefmt/internal/tools"
)

func TestBinsForms(t *testing.T) {
	single := packageJSON{Name: "@fsouza/prettierd", Bin: json.RawMessage(`"bin/prettierd"`)}
	assert.Equal(t, map[string]string{"prettierd": "bin/prettierd"}, single.bins())

	many := packageJSON{Bin: json.RawMessage(`{"eslint":"./bin/eslint.js"}`)}
	assert.Equal(t, map[string]string{"eslint": "./bin/eslint.js"}, many.bins())

	assert.Nil(t, packageJSON{}.bins())
}

func TestValidateRejections(t *testing.T) {
	root := t.TempDir()
	def, _ := tools.Definition(tools.Prettier)

	_, err := Validate(filepath.Join(root, "missing"), def, "1.13.0")
	assert.ErrorIs(t, err, ErrInvalidInstall)

	wrongName := filepath.Join(root, "node_modules", "prettier")
	writeFile(t, filepath.Join(wrongName, "package.json"), `{"name":"not-prettier","version":"3.0.0"}`)
	_, err = Validate(wrongName, def, "1.13.0")
	assert.ErrorContains(t, err, "not \"prettier\"")

	noBin := filepath.Join(root, "b", "node_modules", "prettier")
	writeFile(t, filepath.Join(noBin, "package.json"), `{"name":"prettier","version":"3.0.0"}`)
	_, err = Validate(noBin, def, "1.13.0")
	assert.ErrorContains(t, err, "no \"prettier\" command")

	missingScript := filepath.Join(root, "c", "node_modules", "prettier")
	writeFile(t, filepath.Join(missingScript, "package.json"), `{"name":"prettier","version":"3.0.0","bin":"./bin/prettier.cjs"}`)
	_, err = Validate(missingScript, def, "1.13.0")
	assert.ErrorContains(t, err, "command script missing")
}

func TestValidateAccepts(t *testing.T) {
	root := t.TempDir()
	pkgDir := install(t, root, tools.ESLint, "8.57.0")
	def, _ := tools.Definition(tools.ESLint)

	info, err := Validate(pkgDir, def, "7.0.0")
	require.NoError(t, err)
	assert.Equal(t, "8.57.0", info.Version)
	assert.Equal(t, filepath.Join(pkgDir, "index.js"), info.Main)
}

func TestOutsideNodeModules(t *testing.T) {
	base := filepath.FromSlash("/work/app")
	assert.Equal(t, base, outsideNodeModules(filepath.Join(base, "node_modules", "x", "lib")))
	assert.Equal(t, base, outsideNodeModules(base))
}

func TestWithin(t *testing.T) {
	assert.True(t, within(filepath.FromSlash("/a/b/c"), filepath.FromSlash("/a/b")))
	assert.True(t, within(filepath.FromSlash("/a/b"), filepath.FromSlash("/a/b")))
	assert.False(t, within(filepath.FromSlash("/a/bc"), filepath.FromSlash("/a/b")))
}
