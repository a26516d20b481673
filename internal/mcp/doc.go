// Package mcp implements the Model Context Protocol (MCP) server for the
// playbook engine.
//
// The server exposes eight tools to LLM orchestration clients:
//   - match_playbooks: Rank playbooks against a task description and context
//   - find_similar_playbooks: Find playbooks similar to a reference playbook
//   - recommend_sequence: Order playbooks toward a target outcome
//   - save_playbook: Create or update a playbook
//   - record_execution: Fold one execution outcome into a playbook's metrics
//   - batch_extract_playbooks: Extract new playbooks from execution traces
//   - maintain_knowledge_base: Merge duplicates and archive stale playbooks
//   - get_status: Report engine counts and provider health
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server listens on stdin and writes responses to stdout, so all
// logging goes to stderr.
//
// # Tool: match_playbooks
//
// Rank playbooks against a query context:
//
//	Request:
//	{
//	  "name": "match_playbooks",
//	  "arguments": {
//	    "query": "production database is running out of connections",
//	    "domain": "infrastructure",
//	    "max_recommendations": 5,
//	    "use_dynamic_types": true
//	  }
//	}
//
//	Response:
//	{
//	  "count": 2,
//	  "matches": [
//	    {
//	      "playbook": {"id": "...", "name": "Connection pool triage", ...},
//	      "score": 0.81,
//	      "reasons": ["High historical success rate (92%)"]
//	    }
//	  ]
//	}
//
// # Error Handling
//
// Handlers return standard JSON-RPC error responses. Engine errors are
// translated once, at this boundary, from wrapped sentinel errors:
//
//   - -32602: Invalid params (missing/invalid arguments, validation failures)
//   - -32603: Internal error (storage, filesystem)
//   - -32001: Playbook or tag not found
//   - -32002: Vector or LLM provider failure
//   - -32003: LLM reply could not be parsed
//
// # MCP Client Configuration
//
// Configure in an MCP client's settings:
//
//	{
//	  "mcpServers": {
//	    "playbook": {
//	      "command": "/usr/local/bin/playbook-mcp",
//	      "env": {
//	        "PLAYBOOK_VECTOR_PROVIDER": "local",
//	        "OPENAI_API_KEY": "your-api-key"
//	      }
//	    }
//	  }
//	}
package mcp
