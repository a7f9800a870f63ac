package resolve

import (
	"os"
	"path/filepath"
	"strings"
)

// StopFunc ends an upward walk after dir has been examined.
type StopFunc func(dir string) bool

// StopAtMarker stops the walk in any directory containing a file called name.
func StopAtMarker(name string) StopFunc {
	return func(dir string) bool {
		_, err := os.Stat(filepath.Join(dir, name))
		return err == nil
	}
}

// StopAtDir stops the walk once root has been examined.
func StopAtDir(root string) StopFunc {
	root = filepath.Clean(root)
	return func(dir string) bool { return filepath.Clean(dir) == root }
}

// walkUp calls visit for start and each ancestor until visit reports done,
// stop reports true or the filesystem root is passed.
func walkUp(start string, stop StopFunc, visit func(dir string) bool) {
	dir := filepath.Clean(start)
	for {
		if visit(dir) {
			return
		}
		if stop != nil && stop(dir) {
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

// outsideNodeModules trims path to the portion before its first node_modules
// segment so lookups never start inside an installed package.
func outsideNodeModules(path string) string {
	clean := filepath.Clean(path)
	parts := strings.Split(filepath.ToSlash(clean), "/")
	for i, part := range parts {
		if part == "node_modules" && i > 0 {
			trimmed := strings.Join(parts[:i], "/")
			if trimmed == "" {
				trimmed = "/"
			}
			return filepath.FromSlash(trimmed)
		}
	}
	return clean
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// nodeLookup mirrors Node's package lookup: the first node_modules/<pkg>
// directory found from base upward.
func nodeLookup(base, pkg string) (string, bool) {
	var found string
	walkUp(base, nil, func(dir string) bool {
		if filepath.Base(dir) == "node_modules" {
			return false
		}
		candidate := filepath.Join(dir, "node_modules", filepath.FromSlash(pkg))
		if isFile(filepath.Join(candidate, "package.json")) {
			found = candidate
			return true
		}
		return false
	})
	return found, found != ""
}

// RootMarker is the file that ends resolution walks in its directory.
const RootMarker = ".do-not-use-pefmt-root"
