// Package llm defines the text-completion provider boundary. The engine uses
// it for one thing only: turning free text into structured playbook
// descriptions.
package llm

import (
	"context"
	"fmt"

	"github.com/playbookhq/playbook-mcp/pkg/types"
)

// Message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client is the text-completion boundary. Chat is non-streaming: it returns
// the full completion text or an error.
type Client interface {
	Chat(ctx context.Context, messages []Message) (string, error)
	Close() error
}

// ExtractJSONObject pulls the first balanced top-level JSON object out of a
// completion. Models wrap JSON in prose and code fences; this skips anything
// before the first brace and tracks nesting, honoring string literals and
// escapes. Returns a parse error when no complete object is present.
func ExtractJSONObject(text string) (string, error) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i, r := range text {
		if start >= 0 && inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}

		switch r {
		case '{':
			if start < 0 {
				start = i
			}
			depth++
		case '}':
			if start >= 0 {
				depth--
				if depth == 0 {
					return text[start : i+1], nil
				}
			}
		case '"':
			if start >= 0 {
				inString = true
			}
		}
	}

	return "", fmt.Errorf("%w: no complete JSON object in completion", types.ErrParse)
}
