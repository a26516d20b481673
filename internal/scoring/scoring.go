// Package scoring turns one playbook plus one query context into a
// normalized match score with human-readable reasons.
package scoring

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"github.com/playbookhq/playbook-mcp/internal/lexical"
	"github.com/playbookhq/playbook-mcp/internal/similarity"
	"github.com/playbookhq/playbook-mcp/pkg/types"
)

// Standard mode component weights. They sum to 1 before the archive penalty.
// Risk-derived playbooks swap the success term for a raised context weight.
const (
	weightText        = 0.30
	weightSuccess     = 0.25
	weightUsage       = 0.15
	weightRecency     = 0.15
	weightContext     = 0.15
	weightContextRisk = 0.40

	// Dynamic mode weights
	weightDynamicCoOccur = 0.6
	weightDynamicUsage   = 0.1
	weightDynamicRecency = 0.1

	// ArchivePenalty deprioritizes archived playbooks without hiding them.
	ArchivePenalty = 0.7

	// exactSignalThreshold gates the exact-match term in dynamic mode.
	exactSignalThreshold = 0.7
)

// Engine scores playbooks. It is stateless apart from its collaborators and
// safe for concurrent use.
type Engine struct {
	registry *similarity.Registry
	logger   *log.Logger
	now      func() time.Time
}

// NewEngine creates a scoring engine. The registry backs the dynamic-mode
// co-occurrence term.
func NewEngine(registry *similarity.Registry, logger *log.Logger) *Engine {
	return &Engine{
		registry: registry,
		logger:   logger,
		now:      time.Now,
	}
}

// Score runs standard-mode scoring for one playbook against one query
// context. Deprecated playbooks must be filtered out before this runs.
func (e *Engine) Score(pb *types.Playbook, qctx types.QueryContext) *types.PlaybookMatch {
	match := &types.PlaybookMatch{Playbook: pb}

	textSim := TextSimilarity(qctx.Query, pb.Name+" "+pb.Description+" "+pb.Context.Scenario)
	contextScore := contextMatch(pb, qctx)

	score := weightText * textSim
	if textSim > 0.3 {
		match.Reasons = append(match.Reasons, fmt.Sprintf("query overlaps playbook text (%.0f%%)", textSim*100))
	}

	if pb.RiskDerived() {
		// Failure-derived playbooks are valuable because they failed; their
		// success rate is meaningless as a ranking signal.
		score += weightContextRisk * contextScore
		match.Reasons = append(match.Reasons, "risk regulation: matched on context, success rate not scored")
	} else {
		score += weightSuccess * pb.Metrics.SuccessRate
		score += weightContext * contextScore
		if pb.Metrics.SuccessRate >= 0.7 && pb.Metrics.UsageCount > 0 {
			match.Reasons = append(match.Reasons, fmt.Sprintf("%.0f%% success rate over %d uses", pb.Metrics.SuccessRate*100, pb.Metrics.UsageCount))
		}
	}

	score += weightUsage * usageScore(pb.Metrics.UsageCount)
	score += weightRecency * e.recencyScore(pb.Metrics.LastUsedAt)

	match.ApplicableSteps = applicableSteps(pb, qctx)

	if pb.Status == types.StatusArchived {
		score *= ArchivePenalty
		match.Reasons = append(match.Reasons, "archived: retained for reference, deprioritized")
	}

	match.Score = clamp01(score)
	return match
}

// ScoreDynamic runs multi-tag scoring against extracted type signals.
// similar carries derived strengths for vocabulary tags reached through the
// similarity registry rather than the query itself; it may be nil. Unknown
// tags in the similarity lookups degrade to zero contribution rather than
// failing the match.
func (e *Engine) ScoreDynamic(ctx context.Context, pb *types.Playbook, signals, similar map[string]float64) *types.PlaybookMatch {
	match := &types.PlaybookMatch{Playbook: pb}

	var score float64
	for tag, confidence := range pb.TypeTags {
		if strength, ok := signals[tag]; ok && strength > exactSignalThreshold {
			contribution := strength * confidence
			score += contribution
			match.TagScores = append(match.TagScores, types.TagScore{
				Tag:       tag,
				Score:     contribution,
				MatchType: types.TagMatchExact,
			})
			continue
		}
		if strength, ok := similar[tag]; ok && strength > 0 {
			// Derived strengths already carry the similarity discount, so no
			// exact-match gate applies.
			contribution := strength * confidence
			score += contribution
			match.TagScores = append(match.TagScores, types.TagScore{
				Tag:       tag,
				Score:     contribution,
				MatchType: types.TagMatchSimilar,
			})
		}
	}
	sort.Slice(match.TagScores, func(i, j int) bool {
		if match.TagScores[i].Score != match.TagScores[j].Score {
			return match.TagScores[i].Score > match.TagScores[j].Score
		}
		return match.TagScores[i].Tag < match.TagScores[j].Tag
	})
	if len(match.TagScores) > 0 {
		match.Reasons = append(match.Reasons, fmt.Sprintf("%d type tags matched query signals", len(match.TagScores)))
	}

	if coOccur := e.coOccurrenceTerm(ctx, pb, signals); coOccur > 0 {
		score += coOccur * weightDynamicCoOccur
		match.Reasons = append(match.Reasons, "related tags frequently used together")
	}

	score += weightDynamicUsage * usageScore(pb.Metrics.UsageCount)
	score += weightDynamicRecency * e.recencyScore(pb.Metrics.LastUsedAt)

	if pb.Status == types.StatusArchived {
		score *= ArchivePenalty
		match.Reasons = append(match.Reasons, "archived: retained for reference, deprioritized")
	}

	match.Score = clamp01(score)
	return match
}

// coOccurrenceTerm averages pairwise tag similarity over the playbook's type
// tags and scales it by the mean signal strength.
func (e *Engine) coOccurrenceTerm(ctx context.Context, pb *types.Playbook, signals map[string]float64) float64 {
	if len(pb.TypeTags) < 2 || len(signals) == 0 {
		return 0
	}

	tags := make([]string, 0, len(pb.TypeTags))
	for tag := range pb.TypeTags {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	var simSum float64
	var pairs int
	for i := 0; i < len(tags); i++ {
		for j := i + 1; j < len(tags); j++ {
			sim, err := e.registry.Similarity(ctx, tags[i], tags[j])
			if err != nil {
				// Tags outside the vocabulary contribute nothing.
				e.logger.Printf("similarity %s/%s unavailable: %v", tags[i], tags[j], err)
				continue
			}
			simSum += sim
			pairs++
		}
	}
	if pairs == 0 {
		return 0
	}

	var strengthSum float64
	for _, strength := range signals {
		strengthSum += strength
	}

	avgSim := simSum / float64(pairs)
	avgStrength := strengthSum / float64(len(signals))
	return avgSim * avgStrength
}

// TextSimilarity is the token-set Jaccard between two free-text strings.
func TextSimilarity(a, b string) float64 {
	return similarity.Jaccard(lexical.Tokenize(a), lexical.Tokenize(b))
}

func usageScore(usageCount int) float64 {
	return math.Min(float64(usageCount)/100, 1)
}

func (e *Engine) recencyScore(lastUsed time.Time) float64 {
	if lastUsed.IsZero() {
		return 0
	}
	days := e.now().Sub(lastUsed).Hours() / 24
	return math.Max(0, 1-days/365)
}

// contextMatch runs the weighted presence checks: step-count constraint 0.3,
// required resources 0.4, past-success tag patterns 0.3, capped at 1.
func contextMatch(pb *types.Playbook, qctx types.QueryContext) float64 {
	var score float64

	if qctx.MaxSteps > 0 && len(pb.Actions) <= qctx.MaxSteps {
		score += 0.3
	}

	if resourcesSatisfied(pb, qctx.AvailableResources) {
		score += 0.4
	}

	for _, pattern := range qctx.SuccessTagPatterns {
		if pb.HasTag(pattern) {
			score += 0.3
			break
		}
	}

	return math.Min(score, 1)
}

// resourcesSatisfied reports whether every resource any action requires is
// available to the caller. A playbook requiring nothing is satisfied.
func resourcesSatisfied(pb *types.Playbook, available []string) bool {
	availSet := make(map[string]struct{}, len(available))
	for _, res := range available {
		availSet[res] = struct{}{}
	}
	for _, action := range pb.Actions {
		for _, res := range action.Resources {
			if _, ok := availSet[res]; !ok {
				return false
			}
		}
	}
	return true
}

// applicableSteps lists the step numbers whose resource requirements the
// caller can satisfy right now.
func applicableSteps(pb *types.Playbook, qctx types.QueryContext) []int {
	if len(qctx.AvailableResources) == 0 {
		return nil
	}
	availSet := make(map[string]struct{}, len(qctx.AvailableResources))
	for _, res := range qctx.AvailableResources {
		availSet[res] = struct{}{}
	}

	var steps []int
	for _, action := range pb.Actions {
		ok := true
		for _, res := range action.Resources {
			if _, found := availSet[res]; !found {
				ok = false
				break
			}
		}
		if ok {
			steps = append(steps, action.StepNumber)
		}
	}
	return steps
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
