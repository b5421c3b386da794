package backend

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Content block types that never count as conversation text.
var hiddenBlocks = map[string]bool{
	"thinking":    true,
	"tool_use":    true,
	"tool_result": true,
}

// claudeTurn reads one claude record and reports the speaker and visible text
// of a conversational turn. Meta records, snapshots, tool-only turns and
// slash-command wrappers are not turns.
func claudeTurn(line []byte) (role, text string, ok bool) {
	if !gjson.ValidBytes(line) {
		return "", "", false
	}
	rec := gjson.ParseBytes(line)
	if rec.Get("isMeta").Bool() || rec.Get("type").String() == "file-history-snapshot" {
		return "", "", false
	}
	msg := rec.Get("message")
	if !msg.IsObject() {
		return "", "", false
	}
	role = strings.ToLower(strings.TrimSpace(msg.Get("role").String()))
	if role != "user" && role != "assistant" {
		return "", "", false
	}
	text = strings.TrimSpace(contentText(msg.Get("content")))
	if text == "" || isCommandWrapper(text) {
		return "", "", false
	}
	return role, text, true
}

// contentText flattens a message content value: a plain string, a list of
// blocks, or a single block object.
func contentText(content gjson.Result) string {
	switch {
	case content.Type == gjson.String:
		return content.String()
	case content.IsArray():
		var parts []string
		content.ForEach(func(_, block gjson.Result) bool {
			if hiddenBlocks[block.Get("type").String()] {
				return true
			}
			if t := block.Get("text"); t.Type == gjson.String {
				parts = append(parts, t.String())
			}
			return true
		})
		return strings.Join(parts, "\n")
	case content.IsObject():
		for _, key := range []string{"text", "content"} {
			if t := content.Get(key); t.Type == gjson.String {
				return t.String()
			}
		}
	}
	return ""
}

func isCommandWrapper(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range []string{"<local-command-", "<command-name>", "<command-message>"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
