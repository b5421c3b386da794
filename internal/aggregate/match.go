package aggregate

import (
	"path"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/baaaaaaaka/agent_history/internal/pathcodec"
)

// MatchWorkspace reports whether any pattern selects the workspace. An empty
// pattern list, an empty pattern or "*" matches everything.
func MatchWorkspace(patterns []string, encoded, decoded string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if matchPattern(p, encoded, decoded) {
			return true
		}
	}
	return false
}

func matchPattern(pattern, encoded, decoded string) bool {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" || pattern == "*" {
		return true
	}
	if strings.ContainsAny(pattern, "*?[") {
		return matchGlob(pattern, encoded, decoded)
	}
	if strings.Contains(encoded, pattern) {
		return true
	}
	if decoded != "" && strings.Contains(decoded, pattern) {
		return true
	}
	norm := pathcodec.NormalizePattern(pattern)
	return norm != "" && strings.Contains(encoded, norm)
}

// matchGlob tries the pattern against the encoded name, the slash form of
// the decoded path, its last element and any trailing run of its elements.
func matchGlob(pattern, encoded, decoded string) bool {
	slashPattern := strings.ReplaceAll(pattern, `\`, "/")
	if ok, _ := doublestar.Match(pattern, encoded); ok {
		return true
	}
	if decoded == "" {
		return false
	}
	slashed := strings.ReplaceAll(decoded, `\`, "/")
	for _, candidate := range []string{slashed, path.Base(slashed)} {
		if ok, _ := doublestar.Match(slashPattern, candidate); ok {
			return true
		}
	}
	if !strings.HasPrefix(slashPattern, "/") && !strings.HasPrefix(slashPattern, "**") {
		if ok, _ := doublestar.Match("**/"+slashPattern, strings.TrimPrefix(slashed, "/")); ok {
			return true
		}
	}
	return false
}

// InDateRange compares calendar dates in the location of mod. Zero bounds
// are open and a zero mod is never filtered out.
func InDateRange(mod, since, until time.Time) bool {
	if mod.IsZero() {
		return true
	}
	day := dateOf(mod, mod.Location())
	if !since.IsZero() && day.Before(dateOf(since, mod.Location())) {
		return false
	}
	if !until.IsZero() && day.After(dateOf(until, mod.Location())) {
		return false
	}
	return true
}

func dateOf(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
