package backend

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/baaaaaaaka/agent_history/internal/checkpoint"
	"github.com/baaaaaaaka/agent_history/internal/pathcodec"
)

// leadRecordLimit bounds how many records are read looking for session_meta.
const leadRecordLimit = 8

// Codex files sessions by start date under ~/.codex/sessions/YYYY/MM/DD as
// rollout-<timestamp>-<uuid>.jsonl. The workspace is only known from the
// session_meta record.
type Codex struct{}

func (Codex) ID() string { return "codex" }

func (Codex) Root(home string) string {
	return filepath.Join(home, ".codex", "sessions")
}

func (Codex) Scheme() pathcodec.Scheme { return pathcodec.SchemeDash }

func (Codex) Strategy() Strategy { return StrategyIndexed }

func (Codex) IsSessionFile(name string) bool {
	return strings.HasPrefix(name, "rollout-") && strings.HasSuffix(name, ".jsonl")
}

func (Codex) Enumerate(context.Context, string, checkpoint.TopFilter) ([]Entry, error) {
	return nil, nil
}

func (Codex) Partitioner() checkpoint.Partitioner { return checkpoint.DatePartitioner{} }

// rolloutUUID returns the session UUID at the end of a rollout file name.
func rolloutUUID(name string) (string, bool) {
	stem := strings.TrimSuffix(name, ".jsonl")
	if len(stem) < 36 {
		return "", false
	}
	id, err := uuid.Parse(stem[len(stem)-36:])
	if err != nil {
		return "", false
	}
	return id.String(), true
}

// ExtractIdentifier returns payload.cwd of the session_meta lead record.
func (Codex) ExtractIdentifier(path string) (Meta, error) {
	var meta Meta
	seen := 0
	err := eachLine(path, func(line []byte) bool {
		seen++
		if !gjson.ValidBytes(line) {
			return seen < leadRecordLimit
		}
		rec := gjson.ParseBytes(line)
		if rec.Get("type").String() != "session_meta" {
			return seen < leadRecordLimit
		}
		meta.Identifier = strings.TrimSpace(rec.Get("payload.cwd").String())
		meta.SessionID = strings.TrimSpace(rec.Get("payload.id").String())
		return false
	})
	if err != nil {
		return Meta{}, err
	}
	if meta.Identifier == "" {
		return Meta{}, fmt.Errorf("%s: %w", filepath.Base(path), ErrNoIdentifier)
	}
	if meta.SessionID == "" {
		meta.SessionID, _ = rolloutUUID(filepath.Base(path))
	}
	return meta, nil
}

// Identify encodes the recorded cwd the way path-organized backends would.
func (c Codex) Identify(identifier string) Identity {
	return Identity{Encoded: pathcodec.Encode(identifier, c.Scheme()), Path: identifier}
}

// CountMessages counts user and assistant message items, leaving out the
// injected environment and instruction preambles.
func (Codex) CountMessages(path string) (int, error) {
	count := 0
	err := eachLine(path, func(line []byte) bool {
		rec := gjson.ParseBytes(line)
		if rec.Get("type").String() != "response_item" {
			return true
		}
		payload := rec.Get("payload")
		if payload.Get("type").String() != "message" {
			return true
		}
		role := payload.Get("role").String()
		if role != "user" && role != "assistant" {
			return true
		}
		text := strings.TrimSpace(payload.Get("content.0.text").String())
		if role == "user" && isCodexPreamble(text) {
			return true
		}
		count++
		return true
	})
	return count, err
}

func isCodexPreamble(text string) bool {
	return strings.HasPrefix(text, "<environment_context>") ||
		strings.HasPrefix(text, "<user_instructions>") ||
		strings.HasPrefix(text, "# AGENTS.md instructions")
}
