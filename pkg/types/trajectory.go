package types

import "time"

// ExecutionTrace is a recorded execution of a past task: what the user
// asked, what was done, with which tools, and how it ended.
type ExecutionTrace struct {
	ID        string        `json:"id"`
	Input     string        `json:"input"`
	Steps     []string      `json:"steps,omitempty"`
	ToolsUsed []string      `json:"tools_used,omitempty"`
	Success   bool          `json:"success"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// TrajectoryCluster is an ephemeral grouping of similar successful traces.
// Clusters live only for the duration of one batch-extraction run; the
// playbooks they produce are the persistent artifact.
type TrajectoryCluster struct {
	ID             string
	Members        []ExecutionTrace
	CommonKeywords []string
	CommonTools    []string
	Representative string
	Confidence     float64
}
