package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/playbookhq/playbook-mcp/internal/extractor"
	"github.com/playbookhq/playbook-mcp/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams    = -32602 // Invalid method parameters
	ErrorCodeInternalError    = -32603 // Internal JSON-RPC error
	ErrorCodeNotFound         = -32001 // Referenced playbook or tag does not exist
	ErrorCodeProviderFailure  = -32002 // Vector or LLM provider call failed
	ErrorCodeUnparseableReply = -32003 // LLM reply could not be parsed
)

// handleMatchPlaybooks handles the match_playbooks tool invocation
func (s *Server) handleMatchPlaybooks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "query parameter is required", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	maxRecommendations := getIntDefault(args, "max_recommendations", 0)
	if maxRecommendations < 0 || maxRecommendations > 50 {
		return nil, newMCPError(ErrorCodeInvalidParams, "max_recommendations must be between 1 and 50", map[string]interface{}{
			"param": "max_recommendations",
			"value": maxRecommendations,
		})
	}

	minMatchScore := getFloatDefault(args, "min_match_score", 0)
	if minMatchScore < 0 || minMatchScore > 1 {
		return nil, newMCPError(ErrorCodeInvalidParams, "min_match_score must be between 0.0 and 1.0", map[string]interface{}{
			"param": "min_match_score",
			"value": minMatchScore,
		})
	}

	qctx := types.QueryContext{
		Query:              query,
		Domain:             getStringDefault(args, "domain", ""),
		Scenario:           getStringDefault(args, "scenario", ""),
		MaxSteps:           getIntDefault(args, "max_steps", 0),
		AvailableResources: getStringSlice(args, "available_resources"),
		SuccessTagPatterns: getStringSlice(args, "success_tag_patterns"),
	}
	config := types.MatchConfig{
		MaxRecommendations:    maxRecommendations,
		MinMatchScore:         minMatchScore,
		UseDynamicTypes:       getBoolDefault(args, "use_dynamic_types", false),
		UseSimilarityMatching: getBoolDefault(args, "use_similarity_matching", false),
		SimilarityThreshold:   getFloatDefault(args, "similarity_threshold", 0),
	}

	matches, err := s.matcher.MatchPlaybooks(ctx, qctx, config)
	if err != nil {
		return nil, mapEngineError("match failed", err)
	}

	response := map[string]interface{}{
		"matches": matches,
		"count":   len(matches),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleFindSimilarPlaybooks handles the find_similar_playbooks tool invocation
func (s *Server) handleFindSimilarPlaybooks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	id, ok := args["playbook_id"].(string)
	if !ok || id == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "playbook_id parameter is required", map[string]interface{}{
			"param":  "playbook_id",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", 5)
	if limit < 1 || limit > 50 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 50", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	similar, err := s.matcher.FindSimilarPlaybooks(ctx, id, limit)
	if err != nil {
		return nil, mapEngineError("similarity lookup failed", err)
	}

	response := map[string]interface{}{
		"playbook_id": id,
		"similar":     similar,
		"count":       len(similar),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleRecommendSequence handles the recommend_sequence tool invocation
func (s *Server) handleRecommendSequence(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "query parameter is required", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}
	targetOutcome, ok := args["target_outcome"].(string)
	if !ok || targetOutcome == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "target_outcome parameter is required", map[string]interface{}{
			"param":  "target_outcome",
			"reason": "missing or empty",
		})
	}

	qctx := types.QueryContext{
		Query:    query,
		Domain:   getStringDefault(args, "domain", ""),
		Scenario: getStringDefault(args, "scenario", ""),
	}

	rec, err := s.matcher.RecommendSequence(ctx, qctx, targetOutcome)
	if err != nil {
		return nil, mapEngineError("sequence recommendation failed", err)
	}

	response := map[string]interface{}{
		"sequence":               rec.Sequence,
		"rationale":              rec.Rationale,
		"estimated_success_rate": rec.EstimatedSuccessRate,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSavePlaybook handles the save_playbook tool invocation
func (s *Server) handleSavePlaybook(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	raw, ok := args["playbook"].(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "playbook parameter is required", map[string]interface{}{
			"param":  "playbook",
			"reason": "missing or not an object",
		})
	}

	var pb types.Playbook
	if err := decodeArg(raw, &pb); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "malformed playbook document", map[string]interface{}{
			"param":  "playbook",
			"reason": err.Error(),
		})
	}

	if err := s.matcher.SavePlaybook(ctx, &pb); err != nil {
		return nil, mapEngineError("save failed", err)
	}

	response := map[string]interface{}{
		"saved":       true,
		"playbook_id": pb.ID,
		"version":     pb.Version,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleRecordExecution handles the record_execution tool invocation
func (s *Server) handleRecordExecution(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	id, ok := args["playbook_id"].(string)
	if !ok || id == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "playbook_id parameter is required", map[string]interface{}{
			"param":  "playbook_id",
			"reason": "missing or empty",
		})
	}
	success, ok := args["success"].(bool)
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "success parameter is required", map[string]interface{}{
			"param":  "success",
			"reason": "missing or not a boolean",
		})
	}

	outcomeDefault := 0.0
	if success {
		outcomeDefault = 1.0
	}
	obs := types.ExecutionObservation{
		Success:       success,
		OutcomeScore:  getFloatDefault(args, "outcome_score", outcomeDefault),
		ExecutionTime: time.Duration(getIntDefault(args, "execution_time_ms", 0)) * time.Millisecond,
		Satisfaction:  getFloatDefault(args, "satisfaction", 0),
		ObservedAt:    time.Now().UTC(),
	}
	useEMA := getBoolDefault(args, "use_ema", false)

	pb, err := s.matcher.RecordExecution(ctx, id, obs, useEMA)
	if err != nil {
		return nil, mapEngineError("record failed", err)
	}

	response := map[string]interface{}{
		"recorded":     true,
		"playbook_id":  pb.ID,
		"usage_count":  pb.Metrics.UsageCount,
		"success_rate": pb.Metrics.SuccessRate,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleBatchExtractPlaybooks handles the batch_extract_playbooks tool invocation
func (s *Server) handleBatchExtractPlaybooks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	rawTraces, ok := args["traces"].([]interface{})
	if !ok || len(rawTraces) == 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "traces parameter is required", map[string]interface{}{
			"param":  "traces",
			"reason": "missing or empty",
		})
	}

	traces := make([]types.ExecutionTrace, 0, len(rawTraces))
	for i, raw := range rawTraces {
		obj, ok := raw.(map[string]interface{})
		if !ok {
			return nil, newMCPError(ErrorCodeInvalidParams, "malformed trace", map[string]interface{}{
				"param": "traces",
				"index": i,
			})
		}
		trace, err := decodeTrace(obj)
		if err != nil {
			return nil, newMCPError(ErrorCodeInvalidParams, "malformed trace", map[string]interface{}{
				"param":  "traces",
				"index":  i,
				"reason": err.Error(),
			})
		}
		traces = append(traces, trace)
	}

	opts := extractor.BatchOptions{
		MinSimilarity:  getFloatDefault(args, "min_similarity", 0),
		MinClusterSize: getIntDefault(args, "min_cluster_size", 0),
	}

	extracted, err := s.matcher.BatchExtractPlaybooks(ctx, traces, opts)
	if err != nil {
		return nil, mapEngineError("extraction failed", err)
	}

	response := map[string]interface{}{
		"extracted": extracted,
		"count":     len(extracted),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleMaintainKnowledgeBase handles the maintain_knowledge_base tool invocation
func (s *Server) handleMaintainKnowledgeBase(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := s.matcher.MaintainKnowledgeBase(ctx)
	if err != nil {
		return nil, mapEngineError("maintenance failed", err)
	}

	response := map[string]interface{}{
		"merged":   report.Merged,
		"archived": report.Archived,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.matcher.EngineStatus(ctx, s.index.Len(), s.vectors.Provider())
	if err != nil {
		return nil, mapEngineError("status failed", err)
	}

	response := map[string]interface{}{
		"playbooks":       status.Playbooks,
		"vocabulary_tags": status.VocabularyTags,
		"indexed_docs":    status.IndexedDocs,
		"vector_provider": status.VectorProvider,
		"storage_build":   status.StorageBuild,
		"server_version":  ServerVersion,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// mapEngineError translates engine error kinds into MCP error codes. This is
// the only place the mapping happens; engine packages return wrapped
// sentinels and never see protocol codes.
func mapEngineError(message string, err error) error {
	data := map[string]interface{}{"error": err.Error()}
	switch {
	case errors.Is(err, types.ErrValidation):
		return newMCPError(ErrorCodeInvalidParams, message, data)
	case errors.Is(err, types.ErrNotFound):
		return newMCPError(ErrorCodeNotFound, message, data)
	case errors.Is(err, types.ErrProvider):
		return newMCPError(ErrorCodeProviderFailure, message, data)
	case errors.Is(err, types.ErrParse):
		return newMCPError(ErrorCodeUnparseableReply, message, data)
	default:
		return newMCPError(ErrorCodeInternalError, message, data)
	}
}

// decodeArg remarshals a loosely-typed argument object into a typed value
func decodeArg(raw map[string]interface{}, out interface{}) error {
	bytes, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, out)
}

// decodeTrace builds an ExecutionTrace from a tool argument object
func decodeTrace(obj map[string]interface{}) (types.ExecutionTrace, error) {
	trace := types.ExecutionTrace{
		ID:        getStringDefault(obj, "id", ""),
		Input:     getStringDefault(obj, "input", ""),
		Steps:     getStringSlice(obj, "steps"),
		ToolsUsed: getStringSlice(obj, "tools_used"),
		Success:   getBoolDefault(obj, "success", false),
		Duration:  time.Duration(getIntDefault(obj, "duration_ms", 0)) * time.Millisecond,
	}
	if trace.ID == "" {
		return trace, fmt.Errorf("trace id is required")
	}
	if trace.Input == "" {
		return trace, fmt.Errorf("trace input is required")
	}
	if ts := getStringDefault(obj, "timestamp", ""); ts != "" {
		parsed, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return trace, fmt.Errorf("invalid timestamp: %w", err)
		}
		trace.Timestamp = parsed
	}
	return trace, nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getFloatDefault extracts a number parameter with a default value
func getFloatDefault(args map[string]interface{}, key string, defaultValue float64) float64 {
	if val, ok := args[key].(float64); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok && val != "" {
		return val
	}
	return defaultValue
}

// getStringSlice extracts a string array parameter
func getStringSlice(args map[string]interface{}, key string) []string {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
