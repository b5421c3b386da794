package backend

import (
	"errors"
	"path/filepath"
	"testing"
)

const codexRollout = `{"timestamp":"2025-01-01T00:00:00Z","type":"session_meta","payload":{"id":"0195f6a2-7c1e-7d3b-9a7e-1f2e3d4c5b6a","cwd":"/home/alice/my-app","cli_version":"0.40.0"}}
{"type":"response_item","payload":{"type":"message","role":"user","content":[{"type":"input_text","text":"<environment_context>cwd</environment_context>"}]}}
{"type":"response_item","payload":{"type":"message","role":"user","content":[{"type":"input_text","text":"fix the build"}]}}
{"type":"response_item","payload":{"type":"reasoning","summary":[]}}
{"type":"response_item","payload":{"type":"message","role":"assistant","content":[{"type":"output_text","text":"done"}]}}
{"type":"event_msg","payload":{"type":"token_count"}}
`

func TestCodexExtractIdentifier(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rollout-2025-01-01T00-00-00-0195f6a2-7c1e-7d3b-9a7e-1f2e3d4c5b6a.jsonl")
	writeFile(t, path, codexRollout)

	meta, err := Codex{}.ExtractIdentifier(path)
	if err != nil {
		t.Fatalf("ExtractIdentifier error: %v", err)
	}
	if meta.Identifier != "/home/alice/my-app" {
		t.Fatalf("Identifier=%q", meta.Identifier)
	}
	if meta.SessionID != "0195f6a2-7c1e-7d3b-9a7e-1f2e3d4c5b6a" {
		t.Fatalf("SessionID=%q", meta.SessionID)
	}
}

func TestCodexExtractIdentifierFallsBackToFileUUID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rollout-2025-01-01T00-00-00-0195f6a2-7c1e-7d3b-9a7e-1f2e3d4c5b6a.jsonl")
	writeFile(t, path, `{"type":"session_meta","payload":{"cwd":"/w"}}`+"\n")

	meta, err := Codex{}.ExtractIdentifier(path)
	if err != nil {
		t.Fatalf("ExtractIdentifier error: %v", err)
	}
	if meta.SessionID != "0195f6a2-7c1e-7d3b-9a7e-1f2e3d4c5b6a" {
		t.Fatalf("SessionID=%q", meta.SessionID)
	}
}

func TestCodexExtractIdentifierRejectsFilesWithoutMeta(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rollout-x.jsonl")
	writeFile(t, path, "garbage\n{\"type\":\"response_item\"}\n")

	if _, err := (Codex{}).ExtractIdentifier(path); !errors.Is(err, ErrNoIdentifier) {
		t.Fatalf("expected ErrNoIdentifier, got %v", err)
	}
}

func TestCodexCountMessages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rollout-a.jsonl")
	writeFile(t, path, codexRollout)

	n, err := Codex{}.CountMessages(path)
	if err != nil {
		t.Fatalf("CountMessages error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 messages, got %d", n)
	}
}

func TestCodexIdentify(t *testing.T) {
	id := Codex{}.Identify("/home/alice/my-app")
	if id.Encoded != "-home-alice-my-app" || id.Path != "/home/alice/my-app" {
		t.Fatalf("Identify=%#v", id)
	}
	id = Codex{}.Identify(`C:\Users\bob\proj`)
	if id.Encoded != "C--Users-bob-proj" {
		t.Fatalf("Identify windows=%#v", id)
	}
}

func TestRolloutUUID(t *testing.T) {
	if got, ok := rolloutUUID("rollout-2025-01-01T00-00-00-0195F6A2-7C1E-7D3B-9A7E-1F2E3D4C5B6A.jsonl"); !ok || got != "0195f6a2-7c1e-7d3b-9a7e-1f2e3d4c5b6a" {
		t.Fatalf("rolloutUUID=%q,%v", got, ok)
	}
	if _, ok := rolloutUUID("rollout-short.jsonl"); ok {
		t.Fatalf("expected short name to fail")
	}
	if _, ok := rolloutUUID("rollout-2025-01-01T00-00-00-zzzzzzzz-7c1e-7d3b-9a7e-1f2e3d4c5b6a.jsonl"); ok {
		t.Fatalf("expected invalid uuid to fail")
	}
}
