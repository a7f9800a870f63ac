package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/mod/semver"
)

// ValidationResult captures a single validation finding.
type ValidationResult struct {
	Level   string `json:"level"` // "error" or "warning"
	Message string `json:"message"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate runs field and cross-field checks and returns structured results.
func (c Config) Validate(workspaceRoot string) []ValidationResult {
	var results []ValidationResult
	results = append(results, c.validateFields()...)
	results = append(results, c.validateMinimumVersions()...)
	results = append(results, c.validateConfigPath(workspaceRoot)...)
	results = append(results, c.validateSelectors()...)
	return results
}

// HasErrors reports whether any result is an error.
func HasErrors(results []ValidationResult) bool {
	for _, r := range results {
		if r.Level == "error" {
			return true
		}
	}
	return false
}

func (c Config) validateFields() []ValidationResult {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []ValidationResult{{Level: "error", Message: err.Error()}}
	}
	results := make([]ValidationResult, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		results = append(results, ValidationResult{
			Level:   "error",
			Message: fmt.Sprintf("%s: value %v fails %q (%s)", fe.Field(), fe.Value(), fe.Tag(), fe.Param()),
		})
	}
	return results
}

func (c Config) validateMinimumVersions() []ValidationResult {
	if len(c.MinimumVersions) == 0 {
		return nil
	}
	names := make([]string, 0, len(c.MinimumVersions))
	for name := range c.MinimumVersions {
		names = append(names, name)
	}
	sort.Strings(names)

	var results []ValidationResult
	for _, name := range names {
		value := strings.TrimSpace(c.MinimumVersions[name])
		if !semver.IsValid("v" + strings.TrimPrefix(value, "v")) {
			results = append(results, ValidationResult{
				Level:   "error",
				Message: fmt.Sprintf("minimumVersions.%s: %q is not a semantic version", name, value),
			})
		}
	}
	return results
}

func (c Config) validateConfigPath(workspaceRoot string) []ValidationResult {
	path := strings.TrimSpace(c.ConfigPath)
	if path == "" {
		return nil
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(workspaceRoot, path)
	}
	if _, err := os.Stat(path); err != nil {
		return []ValidationResult{{
			Level:   "warning",
			Message: fmt.Sprintf("configPath %q not found", c.ConfigPath),
		}}
	}
	return nil
}

func (c Config) validateSelectors() []ValidationResult {
	var results []ValidationResult
	for _, pattern := range c.DocumentSelectors {
		if strings.TrimSpace(pattern) == "" {
			results = append(results, ValidationResult{Level: "warning", Message: "documentSelectors contains an empty pattern"})
			continue
		}
		if _, err := filepath.Match(pattern, ""); err != nil {
			results = append(results, ValidationResult{
				Level:   "error",
				Message: fmt.Sprintf("documentSelectors pattern %q: %v", pattern, err),
			})
		}
	}
	return results
}
