package resolve

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"pefmt/internal/tools"
)

// packageJSON holds the package.json fields the resolver reads.
type packageJSON struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Main            string            `json:"main"`
	Bin             json.RawMessage   `json:"bin"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

func readPackageJSON(path string) (packageJSON, error) {
	var pkg packageJSON
	data, err := os.ReadFile(path)
	if err != nil {
		return pkg, err
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return pkg, fmt.Errorf("parse %s: %w", path, err)
	}
	return pkg, nil
}

// declares reports whether the manifest lists name as a direct or dev
// dependency.
func (p packageJSON) declares(name string) bool {
	if _, ok := p.Dependencies[name]; ok {
		return true
	}
	_, ok := p.DevDependencies[name]
	return ok
}

// bins decodes the "bin" field, which is either a string (named after the
// package) or a map of command name to script.
func (p packageJSON) bins() map[string]string {
	if len(p.Bin) == 0 {
		return nil
	}
	var single string
	if err := json.Unmarshal(p.Bin, &single); err == nil {
		name := p.Name
		if idx := strings.LastIndex(name, "/"); idx >= 0 {
			name = name[idx+1:]
		}
		return map[string]string{name: single}
	}
	var many map[string]string
	if err := json.Unmarshal(p.Bin, &many); err == nil {
		return many
	}
	return nil
}

// PackageInfo is the validated view of an installed package.
type PackageInfo struct {
	Dir     string
	Name    string
	Version string
	// BinScript is the package script behind the tool's command.
	BinScript string
	// Main is the module entry file.
	Main string
}

// Validate checks that pkgDir holds a usable installation of def: the
// manifest names the expected package, its version satisfies minimum and
// the command script and entry points exist.
func Validate(pkgDir string, def tools.ToolDefinition, minimum string) (PackageInfo, error) {
	reject := func(version, reason string) (PackageInfo, error) {
		return PackageInfo{}, &InvalidInstallError{Tool: def.Name, Path: pkgDir, Version: version, Reason: reason}
	}

	pkg, err := readPackageJSON(filepath.Join(pkgDir, "package.json"))
	if err != nil {
		return reject("", fmt.Sprintf("unreadable package.json: %v", err))
	}
	if pkg.Name != "" && pkg.Name != def.Package {
		return reject(pkg.Version, fmt.Sprintf("package name %q is not %q", pkg.Name, def.Package))
	}
	if pkg.Version == "" {
		return reject("", "package.json has no version")
	}
	if !tools.MeetsMinimum(pkg.Version, minimum) {
		return reject(pkg.Version, fmt.Sprintf("version %s below minimum %s", pkg.Version, minimum))
	}

	bins := pkg.bins()
	script, ok := bins[def.Bin]
	if !ok {
		names := make([]string, 0, len(bins))
		for name := range bins {
			names = append(names, name)
		}
		sort.Strings(names)
		return reject(pkg.Version, fmt.Sprintf("no %q command (has %v)", def.Bin, names))
	}
	binScript := filepath.Join(pkgDir, filepath.FromSlash(script))
	if _, err := os.Stat(binScript); err != nil {
		return reject(pkg.Version, fmt.Sprintf("command script missing: %s", binScript))
	}

	for _, entry := range def.EntryPoints {
		if _, err := os.Stat(filepath.Join(pkgDir, filepath.FromSlash(entry))); err != nil {
			return reject(pkg.Version, fmt.Sprintf("missing entry point %s", entry))
		}
	}

	main := ""
	if pkg.Main != "" {
		main = filepath.Join(pkgDir, filepath.FromSlash(pkg.Main))
	}

	return PackageInfo{
		Dir:       pkgDir,
		Name:      def.Package,
		Version:   tools.NormalizeVersion(pkg.Version),
		BinScript: binScript,
		Main:      main,
	}, nil
}
