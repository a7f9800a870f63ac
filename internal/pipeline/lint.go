package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
)

// lintResult is the linter's answer for one file. Output holds the
// autofixed text and Source the unmodified text the linter saw; either may
// be absent.
type lintResult struct {
	Output       *string `json:"output,omitempty"`
	Source       *string `json:"source,omitempty"`
	ErrorCount   int     `json:"errorCount"`
	WarningCount int     `json:"warningCount"`
	Messages     []struct {
		Message string `json:"message"`
		Fatal   bool   `json:"fatal"`
	} `json:"messages"`
}

// parseLintJSON reads the linter's JSON formatter output: an array with
// one entry per linted file.
func parseLintJSON(out string) (lintResult, error) {
	var results []lintResult
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &results); err != nil {
		return lintResult{}, fmt.Errorf("parse lint results: %w", err)
	}
	if len(results) == 0 {
		return lintResult{}, nil
	}
	return results[0], nil
}

// fatal returns the first fatal message, such as a parse error.
func (l lintResult) fatal() string {
	for _, m := range l.Messages {
		if m.Fatal {
			return m.Message
		}
	}
	return ""
}

// pick applies the fallback chain: autofix output, then the linter's
// source, then the formatter output, then the original text.
func pick(lint *lintResult, formatted *string, original string) string {
	if lint != nil {
		if lint.Output != nil {
			return *lint.Output
		}
		if lint.Source != nil {
			return *lint.Source
		}
	}
	if formatted != nil {
		return *formatted
	}
	return original
}
