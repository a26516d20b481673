package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playbookhq/playbook-mcp/internal/llm"
	"github.com/playbookhq/playbook-mcp/internal/vector"
	"github.com/playbookhq/playbook-mcp/pkg/types"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	t.Setenv(vector.EnvProvider, vector.ProviderLocal)
	t.Setenv(vector.EnvURL, "")
	t.Setenv(llm.EnvProvider, "")
	t.Setenv(llm.EnvOpenAIKey, "")

	logger := log.New(io.Discard, "", 0)
	s, err := NewServer(t.TempDir(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.storage.Close() })
	return s
}

func callRequest(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// getResultText extracts the text content from a CallToolResult.
func getResultText(result *mcp.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func samplePlaybookArgs(id, name string) map[string]interface{} {
	return map[string]interface{}{
		"id":          id,
		"name":        name,
		"description": "Diagnose and relieve connection pool exhaustion",
		"version":     "1.0.0",
		"status":      "active",
		"type":        "problem-solving",
		"tags":        []interface{}{"database", "incident"},
		"context": map[string]interface{}{
			"domain":     "infrastructure",
			"scenario":   "incident response",
			"complexity": "medium",
		},
		"actions": []interface{}{
			map[string]interface{}{
				"step_number":      1,
				"description":      "Check pool saturation metrics",
				"expected_outcome": "Identify which service holds connections",
			},
			map[string]interface{}{
				"step_number":      2,
				"description":      "Recycle idle connections",
				"expected_outcome": "Pool pressure relieved",
			},
		},
		"metrics": map[string]interface{}{
			"usage_count":  10,
			"success_rate": 0.9,
		},
	}
}

func TestNewServerInitializesComponents(t *testing.T) {
	s := newTestServer(t)

	assert.NotNil(t, s.mcp)
	assert.NotNil(t, s.storage)
	assert.NotNil(t, s.matcher)
	assert.NotNil(t, s.indexer)
	assert.NotNil(t, s.index)
	assert.NotNil(t, s.vectors)
	assert.Equal(t, vector.ProviderLocal, s.vectors.Provider())
}

func TestHandleSavePlaybookThenMatch(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	result, err := s.handleSavePlaybook(ctx, callRequest(map[string]interface{}{
		"playbook": samplePlaybookArgs("pb-1", "Database connection triage"),
	}))
	require.NoError(t, err)

	var saved struct {
		Saved      bool   `json:"saved"`
		PlaybookID string `json:"playbook_id"`
	}
	require.NoError(t, json.Unmarshal([]byte(getResultText(result)), &saved))
	assert.True(t, saved.Saved)
	assert.Equal(t, "pb-1", saved.PlaybookID)

	result, err = s.handleMatchPlaybooks(ctx, callRequest(map[string]interface{}{
		"query": "database connection pool exhaustion",
	}))
	require.NoError(t, err)

	var matched struct {
		Count   int                    `json:"count"`
		Matches []*types.PlaybookMatch `json:"matches"`
	}
	require.NoError(t, json.Unmarshal([]byte(getResultText(result)), &matched))
	require.Equal(t, 1, matched.Count)
	assert.Equal(t, "pb-1", matched.Matches[0].Playbook.ID)
	assert.Greater(t, matched.Matches[0].Score, 0.0)
}

func TestHandleMatchPlaybooksValidation(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	t.Run("missing query", func(t *testing.T) {
		_, err := s.handleMatchPlaybooks(ctx, callRequest(map[string]interface{}{}))
		var mcpErr *MCPError
		require.ErrorAs(t, err, &mcpErr)
		assert.Equal(t, ErrorCodeInvalidParams, mcpErr.Code)
	})

	t.Run("min score out of range", func(t *testing.T) {
		_, err := s.handleMatchPlaybooks(ctx, callRequest(map[string]interface{}{
			"query":           "anything",
			"min_match_score": 1.5,
		}))
		var mcpErr *MCPError
		require.ErrorAs(t, err, &mcpErr)
		assert.Equal(t, ErrorCodeInvalidParams, mcpErr.Code)
	})

	t.Run("non-object arguments", func(t *testing.T) {
		req := mcp.CallToolRequest{}
		req.Params.Arguments = "not a map"
		_, err := s.handleMatchPlaybooks(ctx, req)
		var mcpErr *MCPError
		require.ErrorAs(t, err, &mcpErr)
		assert.Equal(t, ErrorCodeInvalidParams, mcpErr.Code)
	})
}

func TestHandleSavePlaybookRejectsInvalid(t *testing.T) {
	s := newTestServer(t)

	args := samplePlaybookArgs("pb-bad", "")
	_, err := s.handleSavePlaybook(context.Background(), callRequest(map[string]interface{}{
		"playbook": args,
	}))
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrorCodeInvalidParams, mcpErr.Code)
}

func TestHandleRecordExecution(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	t.Run("unknown playbook", func(t *testing.T) {
		_, err := s.handleRecordExecution(ctx, callRequest(map[string]interface{}{
			"playbook_id": "no-such-playbook",
			"success":     true,
		}))
		var mcpErr *MCPError
		require.ErrorAs(t, err, &mcpErr)
		assert.Equal(t, ErrorCodeNotFound, mcpErr.Code)
	})

	t.Run("updates metrics", func(t *testing.T) {
		_, err := s.handleSavePlaybook(ctx, callRequest(map[string]interface{}{
			"playbook": samplePlaybookArgs("pb-exec", "Cache warmup routine"),
		}))
		require.NoError(t, err)

		result, err := s.handleRecordExecution(ctx, callRequest(map[string]interface{}{
			"playbook_id":       "pb-exec",
			"success":           true,
			"execution_time_ms": 1500,
		}))
		require.NoError(t, err)

		var recorded struct {
			Recorded    bool    `json:"recorded"`
			UsageCount  int     `json:"usage_count"`
			SuccessRate float64 `json:"success_rate"`
		}
		require.NoError(t, json.Unmarshal([]byte(getResultText(result)), &recorded))
		assert.True(t, recorded.Recorded)
		assert.Equal(t, 11, recorded.UsageCount)
	})
}

func TestHandleBatchExtractValidation(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	t.Run("missing traces", func(t *testing.T) {
		_, err := s.handleBatchExtractPlaybooks(ctx, callRequest(map[string]interface{}{}))
		var mcpErr *MCPError
		require.ErrorAs(t, err, &mcpErr)
		assert.Equal(t, ErrorCodeInvalidParams, mcpErr.Code)
	})

	t.Run("trace without input", func(t *testing.T) {
		_, err := s.handleBatchExtractPlaybooks(ctx, callRequest(map[string]interface{}{
			"traces": []interface{}{
				map[string]interface{}{"id": "t1", "success": true},
			},
		}))
		var mcpErr *MCPError
		require.ErrorAs(t, err, &mcpErr)
		assert.Equal(t, ErrorCodeInvalidParams, mcpErr.Code)
	})

	t.Run("too few traces to cluster returns empty", func(t *testing.T) {
		result, err := s.handleBatchExtractPlaybooks(ctx, callRequest(map[string]interface{}{
			"traces": []interface{}{
				map[string]interface{}{"id": "t1", "input": "deploy the api service", "success": true},
			},
		}))
		require.NoError(t, err)

		var extracted struct {
			Count int `json:"count"`
		}
		require.NoError(t, json.Unmarshal([]byte(getResultText(result)), &extracted))
		assert.Zero(t, extracted.Count)
	})
}

func TestHandleMaintainKnowledgeBase(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleMaintainKnowledgeBase(context.Background(), callRequest(nil))
	require.NoError(t, err)

	var report struct {
		Merged   int `json:"merged"`
		Archived int `json:"archived"`
	}
	require.NoError(t, json.Unmarshal([]byte(getResultText(result)), &report))
	assert.Zero(t, report.Merged)
	assert.Zero(t, report.Archived)
}

func TestHandleGetStatus(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, err := s.handleSavePlaybook(ctx, callRequest(map[string]interface{}{
		"playbook": samplePlaybookArgs("pb-status", "Incident comms checklist"),
	}))
	require.NoError(t, err)

	result, err := s.handleGetStatus(ctx, callRequest(nil))
	require.NoError(t, err)

	var status struct {
		Playbooks      int    `json:"playbooks"`
		IndexedDocs    int    `json:"indexed_docs"`
		VectorProvider string `json:"vector_provider"`
		ServerVersion  string `json:"server_version"`
	}
	require.NoError(t, json.Unmarshal([]byte(getResultText(result)), &status))
	assert.Equal(t, 1, status.Playbooks)
	assert.Equal(t, 1, status.IndexedDocs)
	assert.Equal(t, vector.ProviderLocal, status.VectorProvider)
	assert.Equal(t, ServerVersion, status.ServerVersion)
}

func TestMapEngineError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"validation", fmt.Errorf("wrap: %w", types.ErrValidation), ErrorCodeInvalidParams},
		{"not found", fmt.Errorf("wrap: %w", types.ErrNotFound), ErrorCodeNotFound},
		{"provider", fmt.Errorf("wrap: %w", types.ErrProvider), ErrorCodeProviderFailure},
		{"parse", fmt.Errorf("wrap: %w", types.ErrParse), ErrorCodeUnparseableReply},
		{"plain", errors.New("disk full"), ErrorCodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapEngineError("failed", tt.err)
			var mcpErr *MCPError
			require.ErrorAs(t, err, &mcpErr)
			assert.Equal(t, tt.code, mcpErr.Code)
		})
	}
}
