// Package pathcodec converts canonical workspace paths into the flat
// directory names backends store sessions under, and back.
package pathcodec

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/baaaaaaaka/agent_history/internal/resolver"
)

// Scheme selects an encoding family.
type Scheme int

const (
	// SchemeDash replaces every path separator with "-".
	SchemeDash Scheme = iota
	// SchemeDrive encodes drive-letter paths, C:\a\b -> C--a-b.
	SchemeDrive
	// SchemeHash is the lowercase hex sha256 of the path. It cannot be
	// reversed by computation; decoding needs a learned HashLookup.
	SchemeHash
)

func (s Scheme) String() string {
	switch s {
	case SchemeDash:
		return "dash"
	case SchemeDrive:
		return "drive"
	case SchemeHash:
		return "hash"
	}
	return "unknown"
}

// Confidence describes how a decoded path was obtained.
type Confidence int

const (
	// ConfidenceUnresolved means no path could be produced (hash miss).
	ConfidenceUnresolved Confidence = iota
	// ConfidenceComputed means the path was derived without filesystem proof.
	ConfidenceComputed
	// ConfidenceVerified means every segment was found on disk.
	ConfidenceVerified
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceComputed:
		return "computed"
	case ConfidenceVerified:
		return "verified"
	}
	return "unresolved"
}

// Decoded is the result of Decode.
type Decoded struct {
	Path       string
	Confidence Confidence
}

// HashLookup maps a path hash back to the path it was computed from.
type HashLookup interface {
	Lookup(hash string) (string, bool)
}

var driveEncodedRe = regexp.MustCompile(`^([A-Za-z])--`)

// Encode derives the encoded workspace name of path. It never touches the
// filesystem and never fails.
func Encode(path string, scheme Scheme) string {
	path = strings.TrimSpace(path)
	switch scheme {
	case SchemeHash:
		return HashPath(path)
	case SchemeDrive:
		if win, ok := WSLToWindows(path); ok {
			path = win
		}
		if IsWindowsPath(path) {
			return encodeDrive(path)
		}
		return encodeDash(path)
	default:
		if IsWindowsPath(path) {
			return encodeDrive(path)
		}
		return encodeDash(path)
	}
}

// HashPath returns the sha256 hex digest used by hash-organized backends.
func HashPath(path string) string {
	sum := sha256.Sum256([]byte(path))
	return hex.EncodeToString(sum[:])
}

func encodeDash(path string) string {
	path = strings.ReplaceAll(path, `\`, "/")
	path = cleanSlash(path)
	return strings.ReplaceAll(path, "/", "-")
}

func encodeDrive(path string) string {
	letter := strings.ToUpper(path[:1])
	rest := strings.ReplaceAll(path[2:], `\`, "/")
	rest = strings.TrimPrefix(cleanSlash("/"+rest), "/")
	if rest == "" {
		return letter + "--"
	}
	return letter + "--" + strings.ReplaceAll(rest, "/", "-")
}

func cleanSlash(p string) string {
	if p == "" {
		return ""
	}
	abs := strings.HasPrefix(p, "/")
	parts := strings.Split(p, "/")
	out := parts[:0]
	for _, part := range parts {
		if part == "" || part == "." {
			continue
		}
		out = append(out, part)
	}
	joined := strings.Join(out, "/")
	if abs {
		return "/" + joined
	}
	return joined
}

// Codec decodes encoded names, optionally consulting the filesystem and a
// learned hash index.
type Codec struct {
	Resolver resolver.Resolver
	Hashes   HashLookup
}

// New returns a Codec that resolves against the local filesystem.
func New(hashes HashLookup) Codec {
	return Codec{Resolver: resolver.New(), Hashes: hashes}
}

// Decode reverses Encode. baseDir is the directory that corresponds to the
// root of the encoded path on the probing filesystem; when it is empty or
// unreachable the naive reversal is returned with computed confidence.
func (c Codec) Decode(name string, scheme Scheme, baseDir string) Decoded {
	name = strings.TrimSpace(name)
	if scheme == SchemeHash {
		return c.decodeHash(name, baseDir)
	}
	if _, _, inner, ok := ParseCachedSourceDirectory(name); ok {
		name = inner
	}

	if name == "" {
		return Decoded{}
	}

	root, sep, tokens := splitEncoded(name)
	if baseDir == "" {
		return Decoded{Path: root + joinTokens(tokens, sep), Confidence: ConfidenceComputed}
	}
	res := c.Resolver.Resolve(baseDir, tokens)
	conf := ConfidenceComputed
	if res.Verified {
		conf = ConfidenceVerified
	}
	return Decoded{Path: root + strings.Join(res.Segments, sep), Confidence: conf}
}

func (c Codec) decodeHash(hash string, baseDir string) Decoded {
	if c.Hashes == nil {
		return Decoded{}
	}
	path, ok := c.Hashes.Lookup(strings.ToLower(hash))
	if !ok || path == "" {
		return Decoded{}
	}
	if baseDir != "" && !IsWindowsPath(path) {
		prober := c.Resolver.Prober
		if prober == nil {
			prober = resolver.OSProber{}
		}
		local := filepath.Join(baseDir, filepath.FromSlash(strings.TrimPrefix(path, "/")))
		if st, err := prober.Stat(local); err == nil && st.IsDir() {
			return Decoded{Path: path, Confidence: ConfidenceVerified}
		}
	}
	return Decoded{Path: path, Confidence: ConfidenceComputed}
}

// splitEncoded returns the canonical root, separator and dash tokens of an
// encoded name.
func splitEncoded(name string) (root, sep string, tokens []string) {
	if m := driveEncodedRe.FindStringSubmatch(name); m != nil {
		rest := name[len(m[0]):]
		var toks []string
		if rest != "" {
			toks = strings.Split(rest, "-")
		}
		return strings.ToUpper(m[1]) + `:\`, `\`, toks
	}
	return "/", "/", resolver.Tokens(name)
}

// DriveLetter returns the upper-case drive letter of a drive-encoded name.
func DriveLetter(name string) (string, bool) {
	m := driveEncodedRe.FindStringSubmatch(name)
	if m == nil {
		return "", false
	}
	return strings.ToUpper(m[1]), true
}

func joinTokens(tokens []string, sep string) string {
	return strings.Join(resolver.LiteralSegments(tokens), sep)
}

// NormalizePattern converts a path-like fragment to its dash-encoded form so
// "proj/sub" and "proj-sub" compare equal against encoded names.
func NormalizePattern(pattern string) string {
	pattern = strings.ReplaceAll(pattern, `\`, "/")
	pattern = strings.ReplaceAll(pattern, ":", "-")
	return strings.ReplaceAll(pattern, "/", "-")
}
