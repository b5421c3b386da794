package backend

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
)

type Message struct {
	Role string
	Text string
}

// Transcript is implemented by backends that can read message text.
type Transcript interface {
	ReadMessages(path string, maxMessages int) ([]Message, error)
}

// ReadMessages returns the last maxMessages messages of a session file, or
// all of them when maxMessages is not positive.
func ReadMessages(b Backend, path string, maxMessages int) ([]Message, error) {
	t, ok := b.(Transcript)
	if !ok {
		return nil, fmt.Errorf("backend %s cannot read transcripts", b.ID())
	}
	return t.ReadMessages(path, maxMessages)
}

// FormatMessages renders messages as labeled blocks, cutting each to
// maxChars runes when maxChars is positive.
func FormatMessages(messages []Message, maxChars int) string {
	var b strings.Builder
	for i, msg := range messages {
		if i > 0 {
			b.WriteString("\n")
		}
		role := "Message"
		switch msg.Role {
		case "user":
			role = "User"
		case "assistant":
			role = "Assistant"
		}
		b.WriteString(role)
		b.WriteString(":\n")
		text := strings.TrimSpace(msg.Text)
		if maxChars > 0 {
			text = truncateRunes(text, maxChars)
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func truncateRunes(s string, maxRunes int) string {
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + "…"
}

func appendMessage(ring *[]Message, msg Message, maxMessages int) {
	if maxMessages > 0 && len(*ring) >= maxMessages {
		*ring = append((*ring)[1:], msg)
		return
	}
	*ring = append(*ring, msg)
}

func (Claude) ReadMessages(path string, maxMessages int) ([]Message, error) {
	var out []Message
	err := eachLine(path, func(line []byte) bool {
		if role, text, ok := claudeTurn(line); ok {
			appendMessage(&out, Message{Role: role, Text: text}, maxMessages)
		}
		return true
	})
	return out, err
}

func (Codex) ReadMessages(path string, maxMessages int) ([]Message, error) {
	var out []Message
	err := eachLine(path, func(line []byte) bool {
		rec := gjson.ParseBytes(line)
		if rec.Get("type").String() != "response_item" || rec.Get("payload.type").String() != "message" {
			return true
		}
		role := rec.Get("payload.role").String()
		if role != "user" && role != "assistant" {
			return true
		}
		var parts []string
		rec.Get("payload.content").ForEach(func(_, item gjson.Result) bool {
			if t := item.Get("text").String(); t != "" {
				parts = append(parts, t)
			}
			return true
		})
		text := strings.TrimSpace(strings.Join(parts, "\n"))
		if text == "" || (role == "user" && isCodexPreamble(text)) {
			return true
		}
		appendMessage(&out, Message{Role: role, Text: text}, maxMessages)
		return true
	})
	return out, err
}

func (Gemini) ReadMessages(path string, maxMessages int) ([]Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%s: invalid session json", filepath.Base(path))
	}
	var out []Message
	gjson.GetBytes(data, "messages").ForEach(func(_, msg gjson.Result) bool {
		role := ""
		switch msg.Get("type").String() {
		case "user":
			role = "user"
		case "gemini":
			role = "assistant"
		default:
			return true
		}
		content := msg.Get("content")
		text := content.String()
		if content.IsArray() {
			var parts []string
			content.ForEach(func(_, item gjson.Result) bool {
				if t := item.Get("text").String(); t != "" {
					parts = append(parts, t)
				}
				return true
			})
			text = strings.Join(parts, "\n")
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return true
		}
		appendMessage(&out, Message{Role: role, Text: text}, maxMessages)
		return true
	})
	return out, nil
}
