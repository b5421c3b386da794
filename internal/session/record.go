// Package session defines the uniform record produced for every session
// file regardless of backend or source.
package session

import (
	"time"

	"github.com/baaaaaaaka/agent_history/internal/pathcodec"
)

// UnknownCount marks a message count that was not computed.
const UnknownCount = -1

type Record struct {
	Backend string
	// Workspace is the encoded workspace name with any mirror prefix removed.
	Workspace     string
	WorkspacePath string
	Confidence    pathcodec.Confidence
	File          string
	// RelPath is File relative to the backend root with any mirror prefix
	// removed, so copies of one session share it across sources.
	RelPath      string
	Size         int64
	Modified     time.Time
	MessageCount int
	Source       string
	// Cached is set for records read from another source's local mirror.
	Cached bool
}

// Key identifies the same session reached through different sources.
type Key struct {
	Backend   string
	Workspace string
	RelPath   string
}

func (r Record) Key() Key {
	return Key{Backend: r.Backend, Workspace: r.Workspace, RelPath: r.RelPath}
}

// CountKnown reports whether MessageCount was computed.
func (r Record) CountKnown() bool {
	return r.MessageCount != UnknownCount
}
