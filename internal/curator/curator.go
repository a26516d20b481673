// Package curator keeps the playbook corpus small and high-quality by
// merging near-duplicates and archiving stale, low-performing playbooks.
package curator

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/playbookhq/playbook-mcp/internal/lexical"
	"github.com/playbookhq/playbook-mcp/internal/storage"
	"github.com/playbookhq/playbook-mcp/internal/vector"
	"github.com/playbookhq/playbook-mcp/pkg/types"
)

const (
	// duplicateThreshold is the minimum neighbor similarity to treat a pair
	// as duplicate candidates.
	duplicateThreshold = 0.9
	// neighborLimit caps how many nearest neighbors are examined per playbook.
	neighborLimit = 5
	// mergeNameDistance is the exclusive Levenshtein bound for name-based merges.
	mergeNameDistance = 3

	// Archive policy thresholds
	archiveStaleDays        = 90
	archiveSuccessRateFloor = 0.5
)

// Engine runs corpus maintenance. Every per-item failure is logged and
// skipped; a Maintain run always produces a report.
type Engine struct {
	store   storage.Storage
	vectors vector.Provider
	index   *lexical.Index
	logger  *log.Logger
	now     func() time.Time
}

// NewEngine creates a curator over the given corpus.
func NewEngine(store storage.Storage, vectors vector.Provider, index *lexical.Index, logger *log.Logger) *Engine {
	return &Engine{
		store:   store,
		vectors: vectors,
		index:   index,
		logger:  logger,
		now:     time.Now,
	}
}

// Maintain finds and merges duplicate pairs, then archives stale
// low-performers, and reports the counts. A failure on one pair or playbook
// never blocks the rest of the run.
func (e *Engine) Maintain(ctx context.Context) (*types.MaintenanceReport, error) {
	report := &types.MaintenanceReport{}

	active, err := e.store.ListPlaybooks(ctx, types.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("list active playbooks: %w", err)
	}

	report.Merged = e.mergeDuplicates(ctx, active)

	// Re-list: merges deleted losers and touched keepers.
	active, err = e.store.ListPlaybooks(ctx, types.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("list playbooks after merge: %w", err)
	}
	report.Archived = e.archiveStale(ctx, active)

	return report, nil
}

func (e *Engine) mergeDuplicates(ctx context.Context, active []*types.Playbook) int {
	byID := make(map[string]*types.Playbook, len(active))
	for _, pb := range active {
		byID[pb.ID] = pb
	}

	processed := make(map[string]struct{})
	merged := 0

	for _, pb := range active {
		if _, done := processed[pb.ID]; done {
			continue
		}

		matches, err := e.vectors.FindRelevantSkills(ctx, pb.SearchText(), neighborLimit+1, duplicateThreshold)
		if err != nil {
			e.logger.Printf("neighbor search failed for %s: %v", pb.ID, err)
			continue
		}

		for _, match := range matches {
			desc, ok := vector.ParsePlaybook(match.Skill)
			if !ok || desc.ID == pb.ID {
				continue
			}
			other, known := byID[desc.ID]
			if !known {
				continue
			}
			if _, done := processed[other.ID]; done {
				continue
			}

			processed[pb.ID] = struct{}{}
			processed[other.ID] = struct{}{}

			if !shouldMerge(pb, other) {
				break
			}
			if err := e.merge(ctx, pb, other); err != nil {
				e.logger.Printf("merge %s/%s failed: %v", pb.ID, other.ID, err)
				break
			}
			merged++
			break
		}
	}
	return merged
}

// shouldMerge applies the duplicate-pair decision: near-identical names or
// identical stakeholder sets.
func shouldMerge(a, b *types.Playbook) bool {
	if Levenshtein(a.Name, b.Name) < mergeNameDistance {
		return true
	}
	return stakeholdersEqual(a.Context.Stakeholders, b.Context.Stakeholders)
}

func stakeholdersEqual(a, b []string) bool {
	if len(a) == 0 && len(b) == 0 {
		return false // two unscoped playbooks share nothing meaningful
	}
	setA := make(map[string]struct{}, len(a))
	for _, s := range a {
		setA[s] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, s := range b {
		setB[s] = struct{}{}
	}
	if len(setA) != len(setB) {
		return false
	}
	for s := range setA {
		if _, ok := setB[s]; !ok {
			return false
		}
	}
	return true
}

// merge folds the loser into the keeper and deletes the loser. The keeper is
// whichever playbook has the higher success rate.
func (e *Engine) merge(ctx context.Context, a, b *types.Playbook) error {
	keeper, loser := a, b
	if b.Metrics.SuccessRate > a.Metrics.SuccessRate {
		keeper, loser = b, a
	}

	keeper.Metrics = types.MergeMetrics(keeper.Metrics, loser.Metrics)
	keeper.SourceLearnings = unionStrings(keeper.SourceLearnings, loser.SourceLearnings)
	keeper.OptimizationCount++
	keeper.UpdatedAt = e.now().UTC()

	if err := e.store.UpsertPlaybook(ctx, keeper); err != nil {
		return fmt.Errorf("update keeper %s: %w", keeper.ID, err)
	}
	if err := e.store.DeletePlaybook(ctx, loser.ID); err != nil {
		return fmt.Errorf("delete loser %s: %w", loser.ID, err)
	}

	// Keep both search legs in line with the corpus.
	e.index.Remove(loser.ID)
	e.index.Index(keeper.ID, keeper.SearchText())
	if err := e.vectors.RemoveSkill(ctx, loser.ID); err != nil {
		e.logger.Printf("remove merged skill %s from vector index: %v", loser.ID, err)
	}
	if err := e.vectors.IndexSkill(ctx, keeper); err != nil {
		e.logger.Printf("reindex keeper %s in vector index: %v", keeper.ID, err)
	}

	return nil
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	var union []string
	for _, s := range a {
		if _, dup := seen[s]; !dup {
			seen[s] = struct{}{}
			union = append(union, s)
		}
	}
	for _, s := range b {
		if _, dup := seen[s]; !dup {
			seen[s] = struct{}{}
			union = append(union, s)
		}
	}
	sort.Strings(union)
	return union
}

func (e *Engine) archiveStale(ctx context.Context, active []*types.Playbook) int {
	archived := 0
	for _, pb := range active {
		if !e.archiveCandidate(pb) {
			continue
		}
		pb.Status = types.StatusArchived
		pb.UpdatedAt = e.now().UTC()
		if err := e.store.UpsertPlaybook(ctx, pb); err != nil {
			e.logger.Printf("archive %s failed: %v", pb.ID, err)
			continue
		}
		archived++
	}
	return archived
}

// archiveCandidate applies the staleness policy. A playbook that was never
// used ages from its creation time.
func (e *Engine) archiveCandidate(pb *types.Playbook) bool {
	lastUsed := pb.Metrics.LastUsedAt
	if lastUsed.IsZero() {
		lastUsed = pb.CreatedAt
	}
	if lastUsed.IsZero() {
		return false
	}
	days := e.now().Sub(lastUsed).Hours() / 24
	return days > archiveStaleDays && pb.Metrics.SuccessRate < archiveSuccessRateFloor
}
