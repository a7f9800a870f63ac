package tools

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"

	"pefmt/internal/executor"
)

var versionRegex = regexp.MustCompile(`v?([0-9]+)(?:\.([0-9]+))?(?:\.([0-9]+))?(-[0-9A-Za-z.-]+)?`)

// ReadVersion runs `<path> --version` and returns the normalized version.
func ReadVersion(ctx context.Context, runner executor.Runner, path string) (string, error) {
	res, err := runner.Run(ctx, executor.Command{Path: path, Args: []string{"--version"}})
	if err != nil {
		return "", fmt.Errorf("%s version: %w", path, err)
	}
	line := firstLine(strings.TrimSpace(res.Stdout))
	if v := NormalizeVersion(line); v != "" {
		return v, nil
	}
	return line, nil
}

func firstLine(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		return text[:idx]
	}
	return text
}

// NormalizeVersion extracts a dotted version from free-form text such as
// "v8.57.0" or "prettierd 0.25.3".
func NormalizeVersion(text string) string {
	m := versionRegex.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	parts := []string{m[1], "0", "0"}
	if m[2] != "" {
		parts[1] = m[2]
	}
	if m[3] != "" {
		parts[2] = m[3]
	}
	return strings.Join(parts, ".") + m[4]
}

// MeetsMinimum reports whether version is at least minimum. An empty
// minimum always passes; an unparseable version never does.
func MeetsMinimum(version, minimum string) bool {
	if strings.TrimSpace(minimum) == "" {
		return true
	}
	v := canonical(version)
	m := canonical(minimum)
	if v == "" || m == "" {
		return false
	}
	return semver.Compare(v, m) >= 0
}

func canonical(version string) string {
	n := NormalizeVersion(strings.TrimSpace(version))
	if n == "" {
		return ""
	}
	c := "v" + n
	if !semver.IsValid(c) {
		return ""
	}
	return c
}
