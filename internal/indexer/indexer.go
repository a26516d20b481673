// Package indexer rebuilds and maintains the two search legs from the
// authoritative playbook store. The lexical index is in-process only, so
// every process rebuilds its own at startup.
package indexer

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/playbookhq/playbook-mcp/internal/lexical"
	"github.com/playbookhq/playbook-mcp/internal/storage"
	"github.com/playbookhq/playbook-mcp/internal/vector"
	"github.com/playbookhq/playbook-mcp/pkg/types"
)

// maxConcurrentIndexing bounds parallel vector-provider calls during rebuild.
const maxConcurrentIndexing = 8

// Indexer keeps the lexical and vector legs consistent with storage.
type Indexer struct {
	store   storage.Storage
	index   *lexical.Index
	vectors vector.Provider
	logger  *log.Logger
}

// New creates an Indexer over both legs.
func New(store storage.Storage, index *lexical.Index, vectors vector.Provider, logger *log.Logger) *Indexer {
	return &Indexer{
		store:   store,
		index:   index,
		vectors: vectors,
		logger:  logger,
	}
}

// Rebuild re-derives both indices from every active and archived playbook.
// Vector-leg failures degrade that playbook to lexical-only and are logged;
// the rebuild itself still succeeds. Returns the number of playbooks indexed.
func (ix *Indexer) Rebuild(ctx context.Context) (int, error) {
	playbooks, err := ix.store.ListPlaybooks(ctx, types.StatusActive, types.StatusArchived)
	if err != nil {
		return 0, fmt.Errorf("list playbooks: %w", err)
	}

	ix.index.Clear()
	for _, pb := range playbooks {
		ix.index.Index(pb.ID, pb.SearchText())
	}

	var vectorFailures atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentIndexing)
	for _, pb := range playbooks {
		g.Go(func() error {
			if err := ix.vectors.IndexSkill(gctx, pb); err != nil {
				vectorFailures.Add(1)
				ix.logger.Printf("vector index %s failed: %v", pb.ID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	if n := vectorFailures.Load(); n > 0 {
		ix.logger.Printf("rebuild complete with %d/%d vector-leg failures", n, len(playbooks))
	}
	return len(playbooks), nil
}

// IndexPlaybook (re)indexes one playbook in both legs.
func (ix *Indexer) IndexPlaybook(ctx context.Context, pb *types.Playbook) error {
	ix.index.Index(pb.ID, pb.SearchText())
	if err := ix.vectors.IndexSkill(ctx, pb); err != nil {
		return fmt.Errorf("vector index %s: %w", pb.ID, err)
	}
	return nil
}

// RemovePlaybook drops one playbook from both legs.
func (ix *Indexer) RemovePlaybook(ctx context.Context, id string) error {
	ix.index.Remove(id)
	if err := ix.vectors.RemoveSkill(ctx, id); err != nil {
		return fmt.Errorf("vector remove %s: %w", id, err)
	}
	return nil
}
