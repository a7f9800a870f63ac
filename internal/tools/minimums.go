package tools

import (
	"context"
	"fmt"
	"strings"
)

type minimumsKey struct{}

// Minimums holds workspace overrides of the built-in minimum versions,
// keyed by lower-cased tool or npm package name.
type Minimums map[string]string

// WithMinimums attaches overrides to ctx. Blank values are dropped.
func WithMinimums(ctx context.Context, overrides map[string]string) context.Context {
	m := Minimums{}
	for key, v := range overrides {
		if v = strings.TrimSpace(v); v != "" {
			m[strings.ToLower(strings.TrimSpace(key))] = v
		}
	}
	if len(m) == 0 {
		return ctx
	}
	return context.WithValue(ctx, minimumsKey{}, m)
}

func minimumsFrom(ctx context.Context) Minimums {
	m, _ := ctx.Value(minimumsKey{}).(Minimums)
	return m
}

// lookup prefers an override for the tool name over one for its package.
func (m Minimums) lookup(def ToolDefinition) string {
	if v, ok := m[strings.ToLower(def.Name)]; ok {
		return v
	}
	return m[strings.ToLower(def.Package)]
}

// MinimumVersion returns the effective minimum for def. Overrides may only
// raise the built-in floor; lower or unparseable values are ignored with a
// note.
func MinimumVersion(ctx context.Context, def ToolDefinition) (string, []string) {
	floor := strings.TrimSpace(def.MinimumVersion)
	override := minimumsFrom(ctx).lookup(def)
	switch {
	case override == "" || override == floor:
		return floor, nil
	case canonical(override) == "":
		return floor, []string{fmt.Sprintf("minimum %q for %s is not a version", override, def.Name)}
	case !MeetsMinimum(override, floor):
		return floor, []string{fmt.Sprintf("config minimum %s ignored; built-in minimum %s is higher", override, floor)}
	}
	return override, []string{fmt.Sprintf("minimum raised by workspace config (%s)", override)}
}
