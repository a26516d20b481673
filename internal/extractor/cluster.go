package extractor

import (
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/playbookhq/playbook-mcp/internal/lexical"
	"github.com/playbookhq/playbook-mcp/internal/similarity"
	"github.com/playbookhq/playbook-mcp/pkg/types"
)

// Clustering defaults
const (
	DefaultMinSimilarity  = 0.7
	DefaultMinClusterSize = 3

	// commonToolShare is the member fraction a tool needs to count as common.
	commonToolShare = 0.5
	// maxCommonKeywords caps the keywords carried onto a cluster.
	maxCommonKeywords = 5
)

// ClusterTraces groups successful traces by keyword overlap. The pass is
// greedy and single-pass: each unprocessed trace seeds a cluster and absorbs
// every later trace whose keyword Jaccard similarity with the seed meets
// minSimilarity. Clusters smaller than minClusterSize are discarded.
func ClusterTraces(traces []types.ExecutionTrace, minSimilarity float64, minClusterSize int) []types.TrajectoryCluster {
	if minSimilarity <= 0 {
		minSimilarity = DefaultMinSimilarity
	}
	if minClusterSize <= 0 {
		minClusterSize = DefaultMinClusterSize
	}

	var successful []types.ExecutionTrace
	for _, trace := range traces {
		if trace.Success {
			successful = append(successful, trace)
		}
	}

	keywords := make([][]string, len(successful))
	for i, trace := range successful {
		keywords[i] = traceKeywords(trace)
	}

	processed := make([]bool, len(successful))
	var clusters []types.TrajectoryCluster

	for i := range successful {
		if processed[i] {
			continue
		}
		processed[i] = true
		members := []types.ExecutionTrace{successful[i]}

		for j := i + 1; j < len(successful); j++ {
			if processed[j] {
				continue
			}
			if similarity.Jaccard(keywords[i], keywords[j]) >= minSimilarity {
				processed[j] = true
				members = append(members, successful[j])
			}
		}

		if len(members) < minClusterSize {
			continue
		}
		clusters = append(clusters, buildCluster(members))
	}

	return clusters
}

func buildCluster(members []types.ExecutionTrace) types.TrajectoryCluster {
	return types.TrajectoryCluster{
		ID:             uuid.New().String(),
		Members:        members,
		CommonKeywords: topKeywords(members, maxCommonKeywords),
		CommonTools:    commonTools(members),
		Representative: members[0].Input,
		Confidence:     clusterConfidence(len(members)),
	}
}

// clusterConfidence grows from 0.6 at the minimum size toward 1.0 around
// ten members.
func clusterConfidence(size int) float64 {
	return math.Min(0.6+float64(size-3)*0.057, 1.0)
}

func traceKeywords(trace types.ExecutionTrace) []string {
	return lexical.Tokenize(trace.Input + " " + strings.Join(trace.Steps, " "))
}

// commonTools returns the tools used by at least half of the members.
func commonTools(members []types.ExecutionTrace) []string {
	counts := make(map[string]int)
	for _, member := range members {
		seen := make(map[string]struct{}, len(member.ToolsUsed))
		for _, tool := range member.ToolsUsed {
			if _, dup := seen[tool]; dup {
				continue
			}
			seen[tool] = struct{}{}
			counts[tool]++
		}
	}

	threshold := int(math.Ceil(float64(len(members)) * commonToolShare))
	var tools []string
	for tool, count := range counts {
		if count >= threshold {
			tools = append(tools, tool)
		}
	}
	sort.Strings(tools)
	return tools
}

// topKeywords returns the most frequent keywords across members, ties broken
// alphabetically.
func topKeywords(members []types.ExecutionTrace, limit int) []string {
	counts := make(map[string]int)
	for _, member := range members {
		for _, kw := range traceKeywords(member) {
			counts[kw]++
		}
	}

	keywords := make([]string, 0, len(counts))
	for kw := range counts {
		keywords = append(keywords, kw)
	}
	sort.Slice(keywords, func(i, j int) bool {
		if counts[keywords[i]] != counts[keywords[j]] {
			return counts[keywords[i]] > counts[keywords[j]]
		}
		return keywords[i] < keywords[j]
	})

	if len(keywords) > limit {
		keywords = keywords[:limit]
	}
	return keywords
}
