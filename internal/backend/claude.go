package backend

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/baaaaaaaka/agent_history/internal/checkpoint"
	"github.com/baaaaaaaka/agent_history/internal/pathcodec"
)

// Claude stores one directory per workspace under ~/.claude/projects, named
// by the dash-encoded workspace path.
type Claude struct{}

func (Claude) ID() string { return "claude" }

func (Claude) Root(home string) string {
	return filepath.Join(home, ".claude", "projects")
}

func (Claude) Scheme() pathcodec.Scheme { return pathcodec.SchemeDash }

func (Claude) Strategy() Strategy { return StrategyDirect }

func (Claude) IsSessionFile(name string) bool {
	return strings.HasSuffix(name, ".jsonl") && !isAgentSessionFileName(name)
}

// Subagent transcripts share the directory with their parent session.
func isAgentSessionFileName(name string) bool {
	return strings.HasPrefix(name, "agent-") && strings.HasSuffix(name, ".jsonl")
}

func (c Claude) Enumerate(ctx context.Context, root string, top checkpoint.TopFilter) ([]Entry, error) {
	dirs, err := walkTop(root, top)
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, d := range dirs {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		dir := filepath.Join(root, d.name)
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !c.IsSessionFile(e.Name()) {
				continue
			}
			out = append(out, Entry{Identifier: d.inner, File: filepath.Join(dir, e.Name())})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].File < out[j].File })
	return out, nil
}

func (Claude) Partitioner() checkpoint.Partitioner { return nil }

// ExtractIdentifier returns the encoded directory the file lives in, with any
// mirror prefix removed, and the first recorded session id.
func (Claude) ExtractIdentifier(path string) (Meta, error) {
	dir := filepath.Base(filepath.Dir(path))
	if _, _, inner, ok := pathcodec.ParseCachedSourceDirectory(dir); ok {
		dir = inner
	}
	meta := Meta{Identifier: dir}
	err := eachLine(path, func(line []byte) bool {
		if id := strings.TrimSpace(gjson.GetBytes(line, "sessionId").String()); id != "" {
			meta.SessionID = id
			return false
		}
		return true
	})
	if err != nil {
		return Meta{}, err
	}
	if meta.SessionID == "" {
		meta.SessionID = strings.TrimSuffix(filepath.Base(path), ".jsonl")
	}
	return meta, nil
}

func (Claude) Identify(identifier string) Identity {
	return Identity{Encoded: identifier}
}

// CountMessages counts user and assistant records that carry visible text.
func (Claude) CountMessages(path string) (int, error) {
	count := 0
	err := eachLine(path, func(line []byte) bool {
		if _, _, ok := claudeTurn(line); ok {
			count++
		}
		return true
	})
	return count, err
}
