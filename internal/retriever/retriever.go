// Package retriever fuses the lexical BM25 index with the external vector
// provider through Reciprocal Rank Fusion.
package retriever

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/playbookhq/playbook-mcp/internal/cache"
	"github.com/playbookhq/playbook-mcp/internal/lexical"
	"github.com/playbookhq/playbook-mcp/internal/storage"
	"github.com/playbookhq/playbook-mcp/internal/vector"
	"github.com/playbookhq/playbook-mcp/pkg/types"
)

const (
	// RRFConstant is the standard k value for Reciprocal Rank Fusion.
	RRFConstant = 60

	queryCacheSize = 512
	queryCacheTTL  = time.Minute
)

// Weights are the per-leg fusion weights.
type Weights struct {
	Lexical float64
	Vector  float64
}

// DefaultWeights favor the semantic leg slightly.
func DefaultWeights() Weights {
	return Weights{Lexical: 0.4, Vector: 0.6}
}

// Retriever runs both search legs concurrently and fuses their rankings.
// A failing vector leg degrades the search to lexical-only instead of
// failing it.
type Retriever struct {
	index   *lexical.Index
	vectors vector.Provider
	store   storage.Storage
	logger  *log.Logger

	queries *cache.Expiring[string, []*types.Playbook]
}

// New creates a Retriever over the given legs.
func New(index *lexical.Index, vectors vector.Provider, store storage.Storage, logger *log.Logger) *Retriever {
	return &Retriever{
		index:   index,
		vectors: vectors,
		store:   store,
		logger:  logger,
		queries: cache.New[string, []*types.Playbook](queryCacheSize, queryCacheTTL),
	}
}

// Search runs a hybrid search with the default leg weights.
func (r *Retriever) Search(ctx context.Context, query string, limit int) ([]*types.Playbook, error) {
	return r.SearchWeighted(ctx, query, limit, DefaultWeights())
}

type legResult struct {
	ids []string
	err error
}

// SearchWeighted runs both legs with limit*2 candidates each, fuses with
// weighted RRF, and materializes the top ids into playbooks. Deprecated
// playbooks never surface.
func (r *Retriever) SearchWeighted(ctx context.Context, query string, limit int, weights Weights) ([]*types.Playbook, error) {
	if limit <= 0 {
		return nil, nil
	}

	cacheKey := fmt.Sprintf("%s|%d|%.2f|%.2f", query, limit, weights.Lexical, weights.Vector)
	if cached, ok := r.queries.Get(cacheKey); ok {
		return cached, nil
	}

	lexicalChan := make(chan legResult, 1)
	vectorChan := make(chan legResult, 1)

	go r.runLexicalLeg(ctx, query, limit*2, lexicalChan)
	go r.runVectorLeg(ctx, query, limit*2, vectorChan)

	var lexicalRes, vectorRes legResult
	var lexicalDone, vectorDone bool
	for !lexicalDone || !vectorDone {
		select {
		case lexicalRes = <-lexicalChan:
			lexicalDone = true
		case vectorRes = <-vectorChan:
			vectorDone = true
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	// The vector leg is allowed to fail; callers get lexical-only results.
	if vectorRes.err != nil {
		r.logger.Printf("vector leg failed, degrading to lexical-only: %v", vectorRes.err)
		vectorRes.ids = nil
	}
	if lexicalRes.err != nil {
		return nil, lexicalRes.err
	}

	fused := fuseRRF(lexicalRes.ids, vectorRes.ids, weights, RRFConstant)
	results, err := r.materialize(ctx, fused, limit)
	if err != nil {
		return nil, err
	}

	r.queries.Set(cacheKey, results)
	return results, nil
}

// Invalidate drops cached query results. Call after any playbook mutation.
func (r *Retriever) Invalidate() {
	r.queries.Purge()
}

func (r *Retriever) runLexicalLeg(ctx context.Context, query string, limit int, out chan<- legResult) {
	var res legResult
	for _, hit := range r.index.Search(query, limit) {
		res.ids = append(res.ids, hit.ID)
	}
	select {
	case out <- res:
	case <-ctx.Done():
	}
}

func (r *Retriever) runVectorLeg(ctx context.Context, query string, limit int, out chan<- legResult) {
	var res legResult
	matches, err := r.vectors.FindRelevantSkills(ctx, query, limit, 0)
	if err != nil {
		res.err = fmt.Errorf("find relevant skills: %w", err)
	} else {
		for _, m := range matches {
			desc, ok := vector.ParsePlaybook(m.Skill)
			if !ok {
				continue // foreign record in a shared index
			}
			res.ids = append(res.ids, desc.ID)
		}
	}
	select {
	case out <- res:
	case <-ctx.Done():
	}
}

type fusedResult struct {
	id    string
	score float64
}

// fuseRRF combines two ranked id lists: a result at 0-based rank r in a leg
// with weight w contributes w/(k+r+1) to its fused score. An id missing from
// a leg contributes nothing from it.
func fuseRRF(lexicalIDs, vectorIDs []string, weights Weights, k float64) []fusedResult {
	scores := make(map[string]float64)
	for rank, id := range lexicalIDs {
		scores[id] += weights.Lexical / (k + float64(rank) + 1)
	}
	for rank, id := range vectorIDs {
		scores[id] += weights.Vector / (k + float64(rank) + 1)
	}

	fused := make([]fusedResult, 0, len(scores))
	for id, score := range scores {
		fused = append(fused, fusedResult{id: id, score: score})
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].score != fused[j].score {
			return fused[i].score > fused[j].score
		}
		return fused[i].id < fused[j].id
	})
	return fused
}

func (r *Retriever) materialize(ctx context.Context, fused []fusedResult, limit int) ([]*types.Playbook, error) {
	results := make([]*types.Playbook, 0, limit)
	for _, fr := range fused {
		if len(results) >= limit {
			break
		}
		pb, err := r.store.GetPlaybook(ctx, fr.id)
		if err != nil {
			// A stale index entry is not fatal to the search.
			r.logger.Printf("skipping unresolvable candidate %s: %v", fr.id, err)
			continue
		}
		if pb.Status == types.StatusDeprecated {
			continue
		}
		results = append(results, pb)
	}
	return results, nil
}
