package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/baaaaaaaka/agent_history/internal/checkpoint"
	"github.com/baaaaaaaka/agent_history/internal/pathcodec"
)

// Gemini keeps sessions under ~/.gemini/tmp/<sha256(path)>/chats. Directory
// names can only be read back through a learned hash index.
type Gemini struct{}

func (Gemini) ID() string { return "gemini" }

func (Gemini) Root(home string) string {
	return filepath.Join(home, ".gemini", "tmp")
}

func (Gemini) Scheme() pathcodec.Scheme { return pathcodec.SchemeHash }

func (Gemini) Strategy() Strategy { return StrategyIndexed }

func (Gemini) IsSessionFile(name string) bool {
	return strings.HasPrefix(name, "session-") && strings.HasSuffix(name, ".json")
}

func (Gemini) Enumerate(context.Context, string, checkpoint.TopFilter) ([]Entry, error) {
	return nil, nil
}

func (Gemini) Partitioner() checkpoint.Partitioner {
	return checkpoint.MtimePartitioner{Sub: "chats"}
}

// HashDirs lists the hash directory names under root, mirror prefixes
// stripped.
func (Gemini) HashDirs(root string) []string {
	dirs, err := walkTop(root, nil)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(dirs))
	for _, d := range dirs {
		out = append(out, d.inner)
	}
	return out
}

// ExtractIdentifier returns the project hash of a session file. The hash
// directory wins over the recorded projectHash since it is what listings
// group by.
func (Gemini) ExtractIdentifier(path string) (Meta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Meta{}, err
	}
	if !gjson.ValidBytes(data) {
		return Meta{}, fmt.Errorf("%s: invalid session json", filepath.Base(path))
	}
	meta := Meta{SessionID: gjson.GetBytes(data, "sessionId").String()}

	chats := filepath.Dir(path)
	if filepath.Base(chats) == "chats" {
		dir := filepath.Base(filepath.Dir(chats))
		if _, _, inner, ok := pathcodec.ParseCachedSourceDirectory(dir); ok {
			dir = inner
		}
		meta.Identifier = strings.ToLower(dir)
	}
	if meta.Identifier == "" {
		meta.Identifier = strings.ToLower(gjson.GetBytes(data, "projectHash").String())
	}
	if meta.Identifier == "" {
		return Meta{}, fmt.Errorf("%s: %w", filepath.Base(path), ErrNoIdentifier)
	}
	return meta, nil
}

func (Gemini) Identify(identifier string) Identity {
	return Identity{Encoded: identifier}
}

// CountMessages counts user and model turns.
func (Gemini) CountMessages(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	if !gjson.ValidBytes(data) {
		return 0, fmt.Errorf("%s: invalid session json", filepath.Base(path))
	}
	count := 0
	gjson.GetBytes(data, "messages").ForEach(func(_, msg gjson.Result) bool {
		switch msg.Get("type").String() {
		case "user", "gemini":
			count++
		}
		return true
	})
	return count, nil
}
