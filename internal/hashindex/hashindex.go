// Package hashindex remembers which workspace path produced each hash-scheme
// directory name. Hashes cannot be reversed, so entries are learned when a
// path is seen and never dropped except by Forget.
package hashindex

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/baaaaaaaka/agent_history/internal/config"
	"github.com/baaaaaaaka/agent_history/internal/logger"
	"github.com/baaaaaaaka/agent_history/internal/pathcodec"
)

const SchemaVersion = 1

type document struct {
	SchemaVersion int               `json:"schema_version"`
	Entries       map[string]string `json:"entries"`
}

// Entry is one learned hash.
type Entry struct {
	Hash string
	Path string
}

// Index is the in-memory view of the hash index file.
type Index struct {
	file *config.StateFile

	mu      sync.RWMutex
	entries map[string]string
}

// Open loads the index at path. A missing, unreadable or foreign-version file
// yields an empty index; only failures to prepare the directory are errors.
func Open(path string) (*Index, error) {
	file, err := config.NewStateFile(path)
	if err != nil {
		return nil, err
	}
	idx := &Index{file: file, entries: map[string]string{}}
	var doc document
	found, err := file.Read(&doc)
	switch {
	case err != nil:
		logger.WithComponent("hashindex").Warn("ignoring unreadable hash index", "path", path, "err", err)
	case !found:
	case doc.SchemaVersion != SchemaVersion:
		logger.WithComponent("hashindex").Warn("ignoring hash index with unknown schema", "path", path, "schema_version", doc.SchemaVersion)
	default:
		for h, p := range doc.Entries {
			idx.entries[strings.ToLower(h)] = p
		}
	}
	return idx, nil
}

// Lookup implements pathcodec.HashLookup.
func (x *Index) Lookup(hash string) (string, bool) {
	if x == nil {
		return "", false
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	p, ok := x.entries[strings.ToLower(hash)]
	return p, ok
}

// Entries returns all learned hashes sorted by path.
func (x *Index) Entries() []Entry {
	x.mu.RLock()
	out := make([]Entry, 0, len(x.entries))
	for h, p := range x.entries {
		out = append(out, Entry{Hash: h, Path: p})
	}
	x.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Hash < out[j].Hash
	})
	return out
}

// Register records path under its hash and persists the index.
func (x *Index) Register(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("register: empty path")
	}
	hash := pathcodec.HashPath(path)
	if err := x.update(func(entries map[string]string) bool {
		if entries[hash] == path {
			return false
		}
		entries[hash] = path
		return true
	}); err != nil {
		return "", err
	}
	return hash, nil
}

// Learn registers cwd when its hash matches one of knownHashes, i.e. the
// backend already holds sessions for it. It reports whether a new entry was
// added.
func (x *Index) Learn(cwd string, knownHashes []string) (bool, error) {
	cwd = strings.TrimSpace(cwd)
	if cwd == "" {
		return false, nil
	}
	hash := pathcodec.HashPath(cwd)
	known := false
	for _, h := range knownHashes {
		if strings.EqualFold(h, hash) {
			known = true
			break
		}
	}
	if !known {
		return false, nil
	}
	if p, ok := x.Lookup(hash); ok && p == cwd {
		return false, nil
	}
	if _, err := x.Register(cwd); err != nil {
		return false, err
	}
	return true, nil
}

// Forget removes hash from the index. It reports whether it was present.
func (x *Index) Forget(hash string) (bool, error) {
	hash = strings.ToLower(strings.TrimSpace(hash))
	removed := false
	err := x.file.Locked(func(read func(any) (bool, error), write func(any) error) error {
		doc := readDoc(read)
		if _, ok := doc.Entries[hash]; ok {
			delete(doc.Entries, hash)
			removed = true
		}
		x.mu.Lock()
		if _, ok := x.entries[hash]; ok {
			removed = true
		}
		delete(x.entries, hash)
		for h, p := range x.entries {
			doc.Entries[h] = p
		}
		x.entries = copyEntries(doc.Entries)
		x.mu.Unlock()
		if !removed {
			return nil
		}
		return write(doc)
	})
	return removed, err
}

// update merges the on-disk entries with memory, applies fn and writes the
// result back when fn reports a change.
func (x *Index) update(fn func(map[string]string) bool) error {
	return x.file.Locked(func(read func(any) (bool, error), write func(any) error) error {
		doc := readDoc(read)
		x.mu.Lock()
		for h, p := range x.entries {
			if _, ok := doc.Entries[h]; !ok {
				doc.Entries[h] = p
			}
		}
		changed := fn(doc.Entries)
		x.entries = copyEntries(doc.Entries)
		x.mu.Unlock()
		if !changed {
			return nil
		}
		return write(doc)
	})
}

func readDoc(read func(any) (bool, error)) document {
	var doc document
	found, err := read(&doc)
	if err != nil {
		logger.WithComponent("hashindex").Warn("rewriting unreadable hash index", "err", err)
	}
	if err != nil || !found || doc.SchemaVersion != SchemaVersion {
		doc = document{}
	}
	doc.SchemaVersion = SchemaVersion
	if doc.Entries == nil {
		doc.Entries = map[string]string{}
	}
	return doc
}

func copyEntries(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
