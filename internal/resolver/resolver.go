// Package resolver turns a dash-flattened workspace name back into the real
// nested directory segments it came from.
//
// Encoded names lose the distinction between a path separator and a literal
// dash inside a directory name. Resolve walks the real filesystem from a
// base directory and, at each level, picks the longest run of consecutive
// tokens that names an existing child directory.
package resolver

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Prober answers existence questions about paths. Errors of any kind are
// treated as "does not exist".
type Prober interface {
	Stat(name string) (fs.FileInfo, error)
}

// OSProber probes the local filesystem, following symlinks.
type OSProber struct{}

func (OSProber) Stat(name string) (fs.FileInfo, error) {
	return os.Stat(name)
}

// Cache memoizes probe results for the lifetime of one listing call. The zero
// value is not usable; create one with NewCache. A nil *Cache disables caching.
type Cache struct {
	mu      sync.Mutex
	entries map[string]probeResult
	probes  int
}

type probeResult struct {
	exists bool
	isDir  bool
}

func NewCache() *Cache {
	return &Cache{entries: map[string]probeResult{}}
}

// Probes reports how many uncached probes went through the cache.
func (c *Cache) Probes() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.probes
}

func (c *Cache) lookup(p Prober, name string) probeResult {
	if c != nil {
		c.mu.Lock()
		res, ok := c.entries[name]
		c.mu.Unlock()
		if ok {
			return res
		}
	}
	var res probeResult
	if st, err := p.Stat(name); err == nil {
		res.exists = true
		res.isDir = st.IsDir()
	}
	if c != nil {
		c.mu.Lock()
		c.entries[name] = res
		c.probes++
		c.mu.Unlock()
	}
	return res
}

// Resolver resolves token runs against a Prober.
type Resolver struct {
	Prober Prober
	Cache  *Cache
	// AnyExisting accepts any existing path as a directory. Use it for mounts
	// where type information is unreliable (drvfs, 9p, access-restricted).
	AnyExisting bool
}

// New returns a Resolver over the local filesystem.
func New() Resolver {
	return Resolver{Prober: OSProber{}}
}

// Result is the outcome of Resolve.
type Result struct {
	Segments []string
	// Verified is true when every segment matched an existing directory.
	Verified bool
}

// Resolve splits tokens into path segments below base. It always returns an
// answer: tokens that match nothing are consumed one at a time as literal
// segments.
func (r Resolver) Resolve(base string, tokens []string) Result {
	prober := r.Prober
	if prober == nil {
		prober = OSProber{}
	}

	res := Result{Verified: true}
	current := base
	reachable := base != "" && r.accept(prober, base)
	i := 0
	for i < len(tokens) {
		matched := false
		if reachable {
			for j := len(tokens); j > i; j-- {
				for _, name := range candidateNames(tokens[i:j]) {
					candidate := filepath.Join(current, name)
					if r.accept(prober, candidate) {
						res.Segments = append(res.Segments, name)
						current = candidate
						i = j
						matched = true
						break
					}
				}
				if matched {
					break
				}
			}
		}
		if matched {
			continue
		}
		// Nothing below a missing directory can exist, so later tokens are
		// consumed literally without probing.
		reachable = false
		res.Verified = false
		seg, n := literalSegment(tokens[i:])
		if seg != "" {
			res.Segments = append(res.Segments, seg)
		}
		i += n
	}
	return res
}

// literalSegment consumes the segment at the head of tokens without probing
// and reports how many tokens it used. An empty token followed by a name is a
// hidden directory whose dot was flattened to a dash.
func literalSegment(tokens []string) (string, int) {
	if tokens[0] == "" && len(tokens) > 1 && tokens[1] != "" {
		return "." + tokens[1], 2
	}
	return tokens[0], 1
}

// LiteralSegments splits tokens into path segments without touching the
// filesystem.
func LiteralSegments(tokens []string) []string {
	var out []string
	for i := 0; i < len(tokens); {
		seg, n := literalSegment(tokens[i:])
		if seg != "" {
			out = append(out, seg)
		}
		i += n
	}
	return out
}

// candidateNames returns the directory names a token run may stand for. An
// empty leading token comes from a doubled dash, which is either a literal
// leading dash or a hidden directory whose dot was flattened.
func candidateNames(run []string) []string {
	joined := strings.Join(run, "-")
	if joined == "" {
		return nil
	}
	if run[0] == "" && len(run) > 1 {
		return []string{joined, "." + strings.Join(run[1:], "-")}
	}
	return []string{joined}
}

func (r Resolver) accept(p Prober, name string) bool {
	res := r.Cache.lookup(p, name)
	if !res.exists {
		return false
	}
	return r.AnyExisting || res.isDir
}

// Tokens splits an encoded name on dashes. A single leading dash marks the
// root and is dropped.
func Tokens(encoded string) []string {
	encoded = strings.TrimPrefix(encoded, "-")
	if encoded == "" {
		return nil
	}
	return strings.Split(encoded, "-")
}
