package pathcodec

import (
	"regexp"
	"strings"
)

// Prefixes of directories that mirror another source's sessions locally.
const (
	CachedKindRemote  = "remote"
	CachedKindWSL     = "wsl"
	CachedKindWindows = "windows"
)

var cachedDirRe = regexp.MustCompile(`^(remote|wsl|windows)_([A-Za-z0-9.\-]+)_(.*)$`)

// IsCachedSourceDirectory reports whether name is a local mirror of another
// source, e.g. remote_host1_-home-alice-proj or wsl_Ubuntu_-home-alice.
func IsCachedSourceDirectory(name string) bool {
	return cachedDirRe.MatchString(name)
}

// ParseCachedSourceDirectory splits a cached directory name into its kind,
// source identifier and the mirrored inner name.
func ParseCachedSourceDirectory(name string) (kind, id, inner string, ok bool) {
	m := cachedDirRe.FindStringSubmatch(name)
	if m == nil {
		return "", "", "", false
	}
	return m[1], m[2], m[3], true
}

// CachedSourceDirectory builds the mirror directory name for inner as
// fetched from the source kind:id.
func CachedSourceDirectory(kind, id, inner string) string {
	return CachedPrefix(kind, id) + inner
}

// CachedPrefix returns the prefix shared by all mirrors of one source.
func CachedPrefix(kind, id string) string {
	return kind + "_" + SanitizeSourceID(id) + "_"
}

// SanitizeSourceID maps an identifier onto the characters allowed between
// the prefix underscores.
func SanitizeSourceID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return "unknown"
	}
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}
