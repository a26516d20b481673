package similarity

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/playbookhq/playbook-mcp/internal/cache"
	"github.com/playbookhq/playbook-mcp/internal/storage"
	"github.com/playbookhq/playbook-mcp/pkg/types"
)

const (
	// cacheTTL bounds how stale a served similarity score may be.
	cacheTTL = 5 * time.Minute

	pairCacheSize = 4096
	tagCacheSize  = 1024

	// coOccurrenceCap limits the boost contributed by usage evidence.
	coOccurrenceCap = 0.2
	// coOccurrenceScale weights the log-damped co-occurrence count.
	coOccurrenceScale = 0.05
)

// Registry answers tag-pair similarity queries backed by SQLite, with
// short-lived caches in front. Scores combine keyword Jaccard overlap with a
// log-damped co-occurrence boost, clamped to [0, 1]. Caches are updated only
// after the backing row is persisted, so a cache hit never precedes storage.
type Registry struct {
	store storage.Storage

	pairs *cache.Expiring[string, float64]
	tags  *cache.Expiring[string, []*types.SimilarityRecord]
}

// NewRegistry creates a Registry on top of the given storage.
func NewRegistry(store storage.Storage) *Registry {
	return &Registry{
		store: store,
		pairs: cache.New[string, float64](pairCacheSize, cacheTTL),
		tags:  cache.New[string, []*types.SimilarityRecord](tagCacheSize, cacheTTL),
	}
}

// Similarity returns the similarity score for a pair of vocabulary tags.
// Order does not matter. Identical tags are rejected with a validation error,
// unknown tags with types.ErrNotFound. A computed score is persisted before it
// is returned so subsequent calls serve the same value.
func (r *Registry) Similarity(ctx context.Context, tagA, tagB string) (float64, error) {
	if tagA == tagB {
		return 0, fmt.Errorf("%w: similarity of a tag with itself is undefined", types.ErrValidation)
	}
	tag1, tag2 := types.CanonicalPair(tagA, tagB)
	key := pairKey(tag1, tag2)

	if score, ok := r.pairs.Get(key); ok {
		return score, nil
	}

	rec, err := r.store.GetSimilarity(ctx, tag1, tag2)
	switch {
	case err == nil && rec.Score > 0:
		r.pairs.Set(key, rec.Score)
		return rec.Score, nil
	case err == nil:
		// Row exists from co-occurrence tracking but carries no score yet.
		return r.computeAndPersist(ctx, tag1, tag2, rec.CoOccurrence)
	case errors.Is(err, types.ErrNotFound):
		return r.computeAndPersist(ctx, tag1, tag2, 0)
	default:
		return 0, fmt.Errorf("get similarity %s/%s: %w", tag1, tag2, err)
	}
}

func (r *Registry) computeAndPersist(ctx context.Context, tag1, tag2 string, coOccurrence int) (float64, error) {
	entryA, err := r.store.GetTag(ctx, tag1)
	if err != nil {
		return 0, fmt.Errorf("get tag %s: %w", tag1, err)
	}
	entryB, err := r.store.GetTag(ctx, tag2)
	if err != nil {
		return 0, fmt.Errorf("get tag %s: %w", tag2, err)
	}

	score := Score(entryA.Keywords, entryB.Keywords, coOccurrence)

	if err := r.store.UpsertSimilarityScore(ctx, tag1, tag2, score); err != nil {
		return 0, fmt.Errorf("persist similarity %s/%s: %w", tag1, tag2, err)
	}
	r.pairs.Set(pairKey(tag1, tag2), score)
	return score, nil
}

// Score combines keyword Jaccard overlap with a co-occurrence boost of
// min(0.2, ln(n+1)*0.05), clamped to [0, 1].
func Score(keywordsA, keywordsB []string, coOccurrence int) float64 {
	score := Jaccard(keywordsA, keywordsB)
	if coOccurrence > 0 {
		boost := math.Log(float64(coOccurrence)+1) * coOccurrenceScale
		score += math.Min(coOccurrenceCap, boost)
	}
	return math.Min(1, math.Max(0, score))
}

// SimilarTags lists tags whose persisted similarity to tag meets the
// threshold, most similar first. Results are cached per (tag, threshold).
func (r *Registry) SimilarTags(ctx context.Context, tag string, threshold float64) ([]*types.SimilarityRecord, error) {
	key := tagKey(tag, threshold)
	if recs, ok := r.tags.Get(key); ok {
		return recs, nil
	}

	recs, err := r.store.ListSimilaritiesForTag(ctx, tag, threshold)
	if err != nil {
		return nil, fmt.Errorf("list similarities for %s: %w", tag, err)
	}
	r.tags.Set(key, recs)
	return recs, nil
}

// RecordCoOccurrence notes that two tags were applied to the same playbook.
// A self-pair is a no-op. On the pair's first appearance the similarity score
// is seeded immediately; later appearances leave the stored score alone (it
// refreshes on the next cold Similarity call) but drop cached values.
func (r *Registry) RecordCoOccurrence(ctx context.Context, tagA, tagB string) error {
	if tagA == tagB {
		return nil
	}
	tag1, tag2 := types.CanonicalPair(tagA, tagB)

	count, created, err := r.store.IncrementCoOccurrence(ctx, tag1, tag2)
	if err != nil {
		return fmt.Errorf("increment co-occurrence %s/%s: %w", tag1, tag2, err)
	}

	if created {
		if _, err := r.computeAndPersist(ctx, tag1, tag2, count); err != nil {
			return err
		}
	} else {
		r.pairs.Remove(pairKey(tag1, tag2))
	}
	r.invalidateTag(tag1)
	r.invalidateTag(tag2)
	return nil
}

// SetSimilarity overrides the stored score for a pair. The score must lie in
// [0, 1] and the tags must differ.
func (r *Registry) SetSimilarity(ctx context.Context, tagA, tagB string, score float64) error {
	if tagA == tagB {
		return fmt.Errorf("%w: cannot set similarity of a tag with itself", types.ErrValidation)
	}
	if score < 0 || score > 1 {
		return fmt.Errorf("%w: similarity score %f outside [0, 1]", types.ErrValidation, score)
	}
	tag1, tag2 := types.CanonicalPair(tagA, tagB)

	if err := r.store.UpsertSimilarityScore(ctx, tag1, tag2, score); err != nil {
		return fmt.Errorf("set similarity %s/%s: %w", tag1, tag2, err)
	}
	r.pairs.Set(pairKey(tag1, tag2), score)
	r.invalidateTag(tag1)
	r.invalidateTag(tag2)
	return nil
}

// RebuildMatrix recomputes keyword Jaccard similarity for every vocabulary
// pair and replaces the stored matrix in one transaction. Co-occurrence
// counters survive the rebuild. All caches are dropped afterwards.
func (r *Registry) RebuildMatrix(ctx context.Context) error {
	entries, err := r.store.ListTags(ctx)
	if err != nil {
		return fmt.Errorf("list tags: %w", err)
	}

	var records []*types.SimilarityRecord
	for i := 0; i < len(entries); i++ {
		for j := i + 1; j < len(entries); j++ {
			tag1, tag2 := types.CanonicalPair(entries[i].Name, entries[j].Name)
			a, b := entries[i], entries[j]
			if tag1 != a.Name {
				a, b = b, a
			}
			records = append(records, &types.SimilarityRecord{
				Tag1:  tag1,
				Tag2:  tag2,
				Score: Jaccard(a.Keywords, b.Keywords),
			})
		}
	}

	if err := r.store.ReplaceSimilarityScores(ctx, records); err != nil {
		return fmt.Errorf("replace similarity matrix: %w", err)
	}
	r.pairs.Purge()
	r.tags.Purge()
	return nil
}

func (r *Registry) invalidateTag(tag string) {
	prefix := tag + "|"
	r.tags.RemoveFunc(func(key string) bool {
		return strings.HasPrefix(key, prefix)
	})
}

func pairKey(tag1, tag2 string) string {
	return tag1 + "|" + tag2
}

func tagKey(tag string, threshold float64) string {
	return fmt.Sprintf("%s|%.4f", tag, threshold)
}
