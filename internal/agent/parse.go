package agent

import (
	"encoding/json"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// OutputParser turns a successful process's stdout into plain text.
// Parsers never fail; unusable input yields whatever text could be recovered.
type OutputParser interface {
	Parse(stdout []byte) string
}

// ParserFunc adapts a function to OutputParser.
type ParserFunc func(stdout []byte) string

// Parse calls f.
func (f ParserFunc) Parse(stdout []byte) string { return f(stdout) }

// TextParser treats stdout as the answer, minus terminal escape sequences
// and surrounding whitespace.
type TextParser struct{}

// Parse implements OutputParser.
func (TextParser) Parse(stdout []byte) string {
	return strings.TrimSpace(ansi.Strip(string(stdout)))
}

// CodexJSONLParser extracts agent messages from a codex JSONL event stream.
// Only "item.completed" events whose item is an "agent_message" contribute;
// their texts are joined in stream order. Malformed lines are skipped.
type CodexJSONLParser struct{}

type codexEvent struct {
	Type string `json:"type"`
	Item struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"item"`
}

// Parse implements OutputParser.
func (CodexJSONLParser) Parse(stdout []byte) string {
	var texts []string
	for _, line := range strings.Split(strings.TrimSpace(string(stdout)), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var ev codexEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue
		}
		if ev.Type == "item.completed" && ev.Item.Type == "agent_message" {
			texts = append(texts, ev.Item.Text)
		}
	}
	return strings.TrimSpace(strings.Join(texts, "\n"))
}

// Output formats accepted in agent definitions.
const (
	OutputText       = "text"
	OutputCodexJSONL = "codex-jsonl"
)

// ParserFor returns the parser for a named output format. Unknown formats
// fall back to TextParser.
func ParserFor(format string) OutputParser {
	switch strings.ToLower(format) {
	case OutputCodexJSONL, "jsonl":
		return CodexJSONLParser{}
	default:
		return TextParser{}
	}
}
