// Package backend describes the on-disk layouts of the supported assistant
// backends. Callers look backends up in a Registry and never switch on IDs.
package backend

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/baaaaaaaka/agent_history/internal/checkpoint"
	"github.com/baaaaaaaka/agent_history/internal/pathcodec"
)

// Strategy is how a backend's sessions are enumerated.
type Strategy int

const (
	// StrategyDirect walks workspace directories named by the encoded path.
	StrategyDirect Strategy = iota
	// StrategyIndexed goes through a checkpointed index because the layout
	// does not reveal the workspace.
	StrategyIndexed
)

func (s Strategy) String() string {
	if s == StrategyIndexed {
		return "indexed"
	}
	return "direct"
}

var ErrNoIdentifier = errors.New("session file has no workspace identifier")

// Meta is what ExtractIdentifier learns from the lead records of a file.
type Meta struct {
	// Identifier is the value stored in checkpoints: an encoded workspace
	// name or, for backends that record it, the workspace path itself.
	Identifier string
	SessionID  string
}

// Identity is the workspace a session belongs to.
type Identity struct {
	Encoded string
	// Path is set when the backend records the canonical path.
	Path string
}

// Entry is one session file found by a direct walk.
type Entry struct {
	Identifier string
	File       string
}

type Backend interface {
	ID() string
	// Root returns the session tree below a home directory.
	Root(home string) string
	Scheme() pathcodec.Scheme
	Strategy() Strategy
	// IsSessionFile reports whether a base name is a primary session file.
	IsSessionFile(name string) bool
	// Enumerate walks a direct backend's root. Indexed backends return nil.
	Enumerate(ctx context.Context, root string, top checkpoint.TopFilter) ([]Entry, error)
	// Partitioner returns the partition layout of an indexed backend.
	Partitioner() checkpoint.Partitioner
	ExtractIdentifier(path string) (Meta, error)
	// Identify maps a checkpoint or walk identifier to a workspace.
	Identify(identifier string) Identity
	CountMessages(path string) (int, error)
}

// Registry holds the known backends in registration order.
type Registry struct {
	order []Backend
	byID  map[string]Backend
}

func NewRegistry(backends ...Backend) *Registry {
	r := &Registry{byID: map[string]Backend{}}
	for _, b := range backends {
		if _, dup := r.byID[b.ID()]; dup {
			continue
		}
		r.order = append(r.order, b)
		r.byID[b.ID()] = b
	}
	return r
}

// DefaultRegistry returns the claude, codex and gemini backends.
func DefaultRegistry() *Registry {
	return NewRegistry(Claude{}, Codex{}, Gemini{})
}

func (r *Registry) Get(id string) (Backend, bool) {
	b, ok := r.byID[id]
	return b, ok
}

func (r *Registry) All() []Backend {
	return append([]Backend(nil), r.order...)
}

func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.order))
	for _, b := range r.order {
		ids = append(ids, b.ID())
	}
	sort.Strings(ids)
	return ids
}

// eachLine calls fn with every trimmed non-empty line of path until fn
// returns false.
func eachLine(path string, fn func(line []byte) bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return err
		}
		line = bytes.TrimSpace(line)
		if len(line) > 0 && !fn(line) {
			return nil
		}
		if err == io.EOF {
			return nil
		}
	}
}

// walkTop lists the directories directly under root that top accepts.
func walkTop(root string, top checkpoint.TopFilter) ([]topDir, error) {
	if top == nil {
		top = checkpoint.AllEntries
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var out []topDir
	for _, e := range entries {
		if !isDirOrSymlink(root, e) {
			continue
		}
		inner, ok := top(e.Name())
		if !ok {
			continue
		}
		out = append(out, topDir{name: e.Name(), inner: inner})
	}
	return out, nil
}

func isDirOrSymlink(parent string, e os.DirEntry) bool {
	if e.IsDir() {
		return true
	}
	if e.Type()&os.ModeSymlink == 0 {
		return false
	}
	st, err := os.Stat(filepath.Join(parent, e.Name()))
	return err == nil && st.IsDir()
}

type topDir struct {
	name  string
	inner string
}
