package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateDefaultsClean(t *testing.T) {
	results := Default().Validate(t.TempDir())
	assert.Empty(t, results)
	assert.False(t, HasErrors(results))
}

func TestValidateFindings(t *testing.T) {
	cfg := Default()
	cfg.Mode = "inline"
	cfg.PackageManager = "bun"
	cfg.TimeoutSeconds = -1
	cfg.MinimumVersions = map[string]string{"eslint": "seven"}
	cfg.ConfigPath = "missing/.prettierrc"
	cfg.DocumentSelectors = []string{"[", ""}

	results := cfg.Validate(t.TempDir())
	assert.True(t, HasErrors(results))

	var errs, warns int
	for _, r := range results {
		switch r.Level {
		case "error":
			errs++
		case "warning":
			warns++
		}
	}
	// mode, packageManager, timeout, minimum version, bad glob
	assert.Equal(t, 5, errs)
	// configPath, empty selector
	assert.Equal(t, 2, warns)
}
