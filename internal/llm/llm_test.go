package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/playbookhq/playbook-mcp/pkg/types"
)

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    string
		wantErr bool
	}{
		{
			name: "bare object",
			text: `{"name": "x"}`,
			want: `{"name": "x"}`,
		},
		{
			name: "prose around object",
			text: "Here is the playbook:\n{\"name\": \"x\"}\nHope that helps!",
			want: `{"name": "x"}`,
		},
		{
			name: "code fence",
			text: "```json\n{\"name\": \"x\"}\n```",
			want: `{"name": "x"}`,
		},
		{
			name: "nested objects",
			text: `{"a": {"b": {"c": 1}}, "d": 2}`,
			want: `{"a": {"b": {"c": 1}}, "d": 2}`,
		},
		{
			name: "braces inside strings",
			text: `{"desc": "use {placeholders} like }this{"}`,
			want: `{"desc": "use {placeholders} like }this{"}`,
		},
		{
			name: "escaped quote in string",
			text: `{"desc": "say \"hi\" {now}"}`,
			want: `{"desc": "say \"hi\" {now}"}`,
		},
		{
			name: "first of two objects",
			text: `{"a": 1} {"b": 2}`,
			want: `{"a": 1}`,
		},
		{
			name:    "no object",
			text:    "sorry, I cannot help with that",
			wantErr: true,
		},
		{
			name:    "unbalanced",
			text:    `{"a": {"b": 1}`,
			wantErr: true,
		},
		{
			name:    "empty",
			text:    "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSONObject(tt.text)
			if tt.wantErr {
				if !errors.Is(err, types.ErrParse) {
					t.Errorf("got err=%v, want ErrParse", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
			if !json.Valid([]byte(got)) {
				t.Errorf("extracted text is not valid JSON: %q", got)
			}
		})
	}
}

func TestOpenAIClientChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		var req struct {
			Model    string    `json:"model"`
			Messages []Message `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != RoleSystem {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": `{"ok": true}`}},
			},
		})
	}))
	defer server.Close()

	client, err := NewOpenAIClient("test-key", server.URL, "test-model")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = client.Close() }()

	content, err := client.Chat(context.Background(), []Message{
		{Role: RoleSystem, Content: "you extract playbooks"},
		{Role: RoleUser, Content: "traces..."},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if content != `{"ok": true}` {
		t.Errorf("content = %q", content)
	}
}

func TestOpenAIClientServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, err := NewOpenAIClient("test-key", server.URL, "")
	if err != nil {
		t.Fatal(err)
	}

	_, err = client.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	if !errors.Is(err, types.ErrProvider) {
		t.Errorf("got err=%v, want ErrProvider", err)
	}
}

func TestNewOpenAIClientRequiresKey(t *testing.T) {
	_, err := NewOpenAIClient("", "", "")
	if !errors.Is(err, types.ErrValidation) {
		t.Errorf("got err=%v, want ErrValidation", err)
	}
}

func TestChatRejectsEmptyMessages(t *testing.T) {
	client, err := NewOpenAIClient("key", "http://unused", "")
	if err != nil {
		t.Fatal(err)
	}
	_, err = client.Chat(context.Background(), nil)
	if !errors.Is(err, types.ErrValidation) {
		t.Errorf("got err=%v, want ErrValidation", err)
	}
}
