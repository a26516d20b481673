package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// matchPlaybooksTool returns the tool definition for match_playbooks
func matchPlaybooksTool() mcp.Tool {
	return mcp.Tool{
		Name:        "match_playbooks",
		Description: "Find strategic playbooks matching a task description and execution context",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Task description to match playbooks against",
				},
				"domain": map[string]interface{}{
					"type":        "string",
					"description": "Domain the task belongs to (e.g. 'infrastructure', 'marketing')",
				},
				"scenario": map[string]interface{}{
					"type":        "string",
					"description": "Scenario within the domain (e.g. 'incident response')",
				},
				"max_steps": map[string]interface{}{
					"type":        "integer",
					"description": "Upper bound on acceptable playbook length in steps",
					"minimum":     1,
				},
				"available_resources": map[string]interface{}{
					"type":        "array",
					"description": "Resources the caller can actually use; steps requiring other resources are flagged",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
				"success_tag_patterns": map[string]interface{}{
					"type":        "array",
					"description": "Tags that historically predicted success for this caller",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
				"max_recommendations": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of matches to return (1-50)",
					"default":     5,
					"minimum":     1,
					"maximum":     50,
				},
				"min_match_score": map[string]interface{}{
					"type":        "number",
					"description": "Minimum composite score threshold (0.0-1.0)",
					"default":     0.0,
					"minimum":     0.0,
					"maximum":     1.0,
				},
				"use_dynamic_types": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, match via discovered type-tag signals when the query carries strong signals",
					"default":     false,
				},
				"use_similarity_matching": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, expand dynamic matching to tags similar to the signaled ones",
					"default":     false,
				},
				"similarity_threshold": map[string]interface{}{
					"type":        "number",
					"description": "Minimum tag similarity for the expansion (0.0-1.0)",
					"default":     0.5,
					"minimum":     0.0,
					"maximum":     1.0,
				},
			},
			Required: []string{"query"},
		},
	}
}

// findSimilarPlaybooksTool returns the tool definition for find_similar_playbooks
func findSimilarPlaybooksTool() mcp.Tool {
	return mcp.Tool{
		Name:        "find_similar_playbooks",
		Description: "Find playbooks similar to a given playbook",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"playbook_id": map[string]interface{}{
					"type":        "string",
					"description": "ID of the reference playbook",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of similar playbooks to return (1-50)",
					"default":     5,
					"minimum":     1,
					"maximum":     50,
				},
			},
			Required: []string{"playbook_id"},
		},
	}
}

// recommendSequenceTool returns the tool definition for recommend_sequence
func recommendSequenceTool() mcp.Tool {
	return mcp.Tool{
		Name:        "recommend_sequence",
		Description: "Recommend an ordered sequence of playbooks toward a target outcome",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Task description to build the sequence for",
				},
				"target_outcome": map[string]interface{}{
					"type":        "string",
					"description": "Outcome the sequence should drive toward",
				},
				"domain": map[string]interface{}{
					"type":        "string",
					"description": "Domain the task belongs to",
				},
				"scenario": map[string]interface{}{
					"type":        "string",
					"description": "Scenario within the domain",
				},
			},
			Required: []string{"query", "target_outcome"},
		},
	}
}

// savePlaybookTool returns the tool definition for save_playbook
func savePlaybookTool() mcp.Tool {
	return mcp.Tool{
		Name:        "save_playbook",
		Description: "Create or update a strategic playbook",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"playbook": map[string]interface{}{
					"type":        "object",
					"description": "Full playbook document (id, name, description, type, tags, context, actions)",
				},
			},
			Required: []string{"playbook"},
		},
	}
}

// recordExecutionTool returns the tool definition for record_execution
func recordExecutionTool() mcp.Tool {
	return mcp.Tool{
		Name:        "record_execution",
		Description: "Record the outcome of one playbook execution and update its metrics",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"playbook_id": map[string]interface{}{
					"type":        "string",
					"description": "ID of the executed playbook",
				},
				"success": map[string]interface{}{
					"type":        "boolean",
					"description": "Whether the execution succeeded",
				},
				"outcome_score": map[string]interface{}{
					"type":        "number",
					"description": "Graded outcome quality (0.0-1.0); defaults to 1.0 on success, 0.0 on failure",
					"minimum":     0.0,
					"maximum":     1.0,
				},
				"execution_time_ms": map[string]interface{}{
					"type":        "integer",
					"description": "Wall-clock execution time in milliseconds",
					"minimum":     0,
				},
				"satisfaction": map[string]interface{}{
					"type":        "number",
					"description": "Caller satisfaction with the outcome (0.0-1.0)",
					"minimum":     0.0,
					"maximum":     1.0,
				},
				"use_ema": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, update the success rate with an exponential moving average instead of the aggregate",
					"default":     false,
				},
			},
			Required: []string{"playbook_id", "success"},
		},
	}
}

// batchExtractPlaybooksTool returns the tool definition for batch_extract_playbooks
func batchExtractPlaybooksTool() mcp.Tool {
	return mcp.Tool{
		Name:        "batch_extract_playbooks",
		Description: "Cluster successful execution traces and extract new playbooks from each cluster",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"traces": map[string]interface{}{
					"type":        "array",
					"description": "Execution traces to cluster (id, input, steps, tools_used, success, duration_ms, timestamp)",
					"items": map[string]interface{}{
						"type": "object",
					},
				},
				"min_similarity": map[string]interface{}{
					"type":        "number",
					"description": "Keyword similarity threshold for cluster membership (0.0-1.0)",
					"default":     0.7,
					"minimum":     0.0,
					"maximum":     1.0,
				},
				"min_cluster_size": map[string]interface{}{
					"type":        "integer",
					"description": "Minimum traces per cluster before extraction runs",
					"default":     3,
					"minimum":     2,
				},
			},
			Required: []string{"traces"},
		},
	}
}

// maintainKnowledgeBaseTool returns the tool definition for maintain_knowledge_base
func maintainKnowledgeBaseTool() mcp.Tool {
	return mcp.Tool{
		Name:        "maintain_knowledge_base",
		Description: "Merge duplicate playbooks and archive stale underperformers",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report engine status: playbook counts, vocabulary size, index and provider health",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
