package storage

import (
	"context"

	"github.com/playbookhq/playbook-mcp/pkg/types"
)

// Storage defines the persistence interface for the playbook corpus, the
// tag vocabulary, and the pairwise similarity matrix.
type Storage interface {
	// Playbook operations
	UpsertPlaybook(ctx context.Context, pb *types.Playbook) error
	GetPlaybook(ctx context.Context, id string) (*types.Playbook, error)
	ListPlaybooks(ctx context.Context, statuses ...types.Status) ([]*types.Playbook, error)
	DeletePlaybook(ctx context.Context, id string) error
	CountPlaybooks(ctx context.Context) (int, error)

	// Vocabulary operations
	UpsertTag(ctx context.Context, tag *types.TagVocabularyEntry) error
	GetTag(ctx context.Context, name string) (*types.TagVocabularyEntry, error)
	ListTags(ctx context.Context) ([]*types.TagVocabularyEntry, error)
	AdjustTagPlaybookCount(ctx context.Context, name string, delta int) error

	// Similarity operations. Pair arguments are canonicalized (tag1 < tag2)
	// by the caller; one row exists per unordered pair.
	GetSimilarity(ctx context.Context, tag1, tag2 string) (*types.SimilarityRecord, error)
	UpsertSimilarityScore(ctx context.Context, tag1, tag2 string, score float64) error
	ListSimilaritiesForTag(ctx context.Context, tag string, minScore float64) ([]*types.SimilarityRecord, error)
	IncrementCoOccurrence(ctx context.Context, tag1, tag2 string) (count int, created bool, err error)
	ReplaceSimilarityScores(ctx context.Context, records []*types.SimilarityRecord) error

	// Database operations
	Close() error
}
