// Package matcher is the inbound orchestrator: it wires retrieval, scoring,
// extraction, and curation into the operations the MCP surface exposes.
package matcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/playbookhq/playbook-mcp/internal/curator"
	"github.com/playbookhq/playbook-mcp/internal/extractor"
	"github.com/playbookhq/playbook-mcp/internal/indexer"
	"github.com/playbookhq/playbook-mcp/internal/llm"
	"github.com/playbookhq/playbook-mcp/internal/retriever"
	"github.com/playbookhq/playbook-mcp/internal/scoring"
	"github.com/playbookhq/playbook-mcp/internal/similarity"
	"github.com/playbookhq/playbook-mcp/internal/storage"
	"github.com/playbookhq/playbook-mcp/pkg/types"
)

// DefaultMaxRecommendations caps a match run when the caller does not.
const DefaultMaxRecommendations = 5

// DefaultSimilarityThreshold gates similar-tag expansion when the caller
// enables similarity matching without picking a threshold.
const DefaultSimilarityThreshold = 0.5

// candidateMultiplier over-fetches candidates so post-score filtering still
// fills the cap.
const candidateMultiplier = 2

// Matcher orchestrates the engine. All fields are required.
type Matcher struct {
	store     storage.Storage
	retriever *retriever.Retriever
	scorer    *scoring.Engine
	registry  *similarity.Registry
	extractor *extractor.Engine
	curator   *curator.Engine
	indexer   *indexer.Indexer
	client    llm.Client
	logger    *log.Logger
}

// Config collects the Matcher's collaborators.
type Config struct {
	Store     storage.Storage
	Retriever *retriever.Retriever
	Scorer    *scoring.Engine
	Registry  *similarity.Registry
	Extractor *extractor.Engine
	Curator   *curator.Engine
	Indexer   *indexer.Indexer
	Client    llm.Client
	Logger    *log.Logger
}

// New creates a Matcher.
func New(cfg Config) *Matcher {
	return &Matcher{
		store:     cfg.Store,
		retriever: cfg.Retriever,
		scorer:    cfg.Scorer,
		registry:  cfg.Registry,
		extractor: cfg.Extractor,
		curator:   cfg.Curator,
		indexer:   cfg.Indexer,
		client:    cfg.Client,
		logger:    cfg.Logger,
	}
}

// MatchPlaybooks ranks playbooks against a query context. When dynamic types
// are requested and the query carries strong type signals, candidates come
// from the tag path; otherwise hybrid search runs. Deprecated playbooks never
// reach scoring.
func (m *Matcher) MatchPlaybooks(ctx context.Context, qctx types.QueryContext, config types.MatchConfig) ([]*types.PlaybookMatch, error) {
	if config.MaxRecommendations <= 0 {
		config.MaxRecommendations = DefaultMaxRecommendations
	}

	var matches []*types.PlaybookMatch
	var err error
	if config.UseDynamicTypes {
		matches, err = m.matchDynamic(ctx, qctx, config)
		if err != nil {
			return nil, err
		}
	}
	if matches == nil {
		matches, err = m.matchStandard(ctx, qctx, config)
		if err != nil {
			return nil, err
		}
	}

	filtered := matches[:0]
	for _, match := range matches {
		if match.Score >= config.MinMatchScore {
			filtered = append(filtered, match)
		}
	}
	sortMatches(filtered)
	if len(filtered) > config.MaxRecommendations {
		filtered = filtered[:config.MaxRecommendations]
	}
	return filtered, nil
}

func (m *Matcher) matchStandard(ctx context.Context, qctx types.QueryContext, config types.MatchConfig) ([]*types.PlaybookMatch, error) {
	candidates, err := m.retriever.Search(ctx, qctx.Query, config.MaxRecommendations*candidateMultiplier)
	if err != nil {
		return nil, fmt.Errorf("retrieve candidates: %w", err)
	}

	matches := make([]*types.PlaybookMatch, 0, len(candidates))
	for _, pb := range candidates {
		matches = append(matches, m.scorer.Score(pb, qctx))
	}
	return matches, nil
}

// matchDynamic returns nil (not an empty slice) when no strong signals
// exist, telling the caller to fall back to the standard path.
func (m *Matcher) matchDynamic(ctx context.Context, qctx types.QueryContext, config types.MatchConfig) ([]*types.PlaybookMatch, error) {
	vocabulary, err := m.store.ListTags(ctx)
	if err != nil {
		return nil, fmt.Errorf("list vocabulary: %w", err)
	}

	signals := scoring.ExtractTypeSignals(qctx.Query, vocabulary)
	strong := scoring.StrongSignals(signals)
	if len(strong) == 0 {
		return nil, nil
	}

	strongSet := make(map[string]struct{}, len(strong))
	for _, tag := range strong {
		strongSet[tag] = struct{}{}
	}

	var similar map[string]float64
	if config.UseSimilarityMatching {
		similar = m.expandSimilarTags(ctx, strong, strongSet, signals, config.SimilarityThreshold)
	}

	candidates, err := m.store.ListPlaybooks(ctx, types.StatusActive, types.StatusArchived)
	if err != nil {
		return nil, fmt.Errorf("list playbooks: %w", err)
	}

	matches := make([]*types.PlaybookMatch, 0, len(candidates))
	for _, pb := range candidates {
		carries := false
		for tag := range pb.TypeTags {
			if _, ok := strongSet[tag]; ok {
				carries = true
				break
			}
			if _, ok := similar[tag]; ok {
				carries = true
				break
			}
		}
		if !carries {
			continue
		}
		matches = append(matches, m.scorer.ScoreDynamic(ctx, pb, signals, similar))
	}
	return matches, nil
}

// expandSimilarTags widens the strong-signal set to vocabulary tags the
// registry considers similar, assigning each a derived strength of source
// signal times similarity score. A tag reachable from several strong tags
// keeps its highest derived strength.
func (m *Matcher) expandSimilarTags(ctx context.Context, strong []string, strongSet map[string]struct{}, signals map[string]float64, threshold float64) map[string]float64 {
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}

	similar := make(map[string]float64)
	for _, tag := range strong {
		records, err := m.registry.SimilarTags(ctx, tag, threshold)
		if err != nil {
			m.logger.Printf("similar tags for %s: %v", tag, err)
			continue
		}
		for _, rec := range records {
			other := rec.Tag1
			if other == tag {
				other = rec.Tag2
			}
			if _, isStrong := strongSet[other]; isStrong {
				continue
			}
			derived := signals[tag] * rec.Score
			if derived > similar[other] {
				similar[other] = derived
			}
		}
	}
	return similar
}

// FindSimilarPlaybooks returns playbooks resembling the given one, the most
// similar first, never including the playbook itself.
func (m *Matcher) FindSimilarPlaybooks(ctx context.Context, id string, limit int) ([]*types.Playbook, error) {
	if limit <= 0 {
		limit = DefaultMaxRecommendations
	}
	pb, err := m.store.GetPlaybook(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get playbook %s: %w", id, err)
	}

	candidates, err := m.retriever.Search(ctx, pb.SearchText(), limit+1)
	if err != nil {
		return nil, err
	}

	similar := make([]*types.Playbook, 0, limit)
	for _, candidate := range candidates {
		if candidate.ID == id {
			continue
		}
		similar = append(similar, candidate)
		if len(similar) >= limit {
			break
		}
	}
	return similar, nil
}

// sequenceDraft is the JSON shape requested from the LLM when ordering a
// playbook sequence.
type sequenceDraft struct {
	Order     []string `json:"order"`
	Rationale string   `json:"rationale"`
}

const sequenceSystemPrompt = `You order strategic playbooks into an execution sequence toward a target outcome.
Respond with a single JSON object: {"order": ["<playbook id>", ...], "rationale": "..."}.
Include every provided id exactly once.`

// RecommendSequence matches playbooks for the query and asks the LLM to
// order them toward the target outcome. If the completion yields no usable
// JSON, the match-score ordering is returned instead.
func (m *Matcher) RecommendSequence(ctx context.Context, qctx types.QueryContext, targetOutcome string) (*types.SequenceRecommendation, error) {
	matches, err := m.MatchPlaybooks(ctx, qctx, types.MatchConfig{})
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return &types.SequenceRecommendation{Rationale: "no matching playbooks"}, nil
	}

	byID := make(map[string]*types.Playbook, len(matches))
	scoreOrder := make([]*types.Playbook, len(matches))
	for i, match := range matches {
		byID[match.Playbook.ID] = match.Playbook
		scoreOrder[i] = match.Playbook
	}

	rec := &types.SequenceRecommendation{
		Sequence:             scoreOrder,
		Rationale:            "ordered by match score",
		EstimatedSuccessRate: meanSuccessRate(scoreOrder),
	}

	draft, err := m.rankSequence(ctx, matches, targetOutcome)
	if err != nil {
		// Fall back to score ordering; ranking is best-effort.
		m.logger.Printf("sequence ranking failed, using score order: %v", err)
		return rec, nil
	}

	var ordered []*types.Playbook
	used := make(map[string]struct{})
	for _, id := range draft.Order {
		pb, ok := byID[id]
		if !ok {
			continue
		}
		if _, dup := used[id]; dup {
			continue
		}
		used[id] = struct{}{}
		ordered = append(ordered, pb)
	}
	// Anything the model dropped keeps its score position at the tail.
	for _, pb := range scoreOrder {
		if _, ok := used[pb.ID]; !ok {
			ordered = append(ordered, pb)
		}
	}

	rec.Sequence = ordered
	if draft.Rationale != "" {
		rec.Rationale = draft.Rationale
	}
	rec.EstimatedSuccessRate = meanSuccessRate(ordered)
	return rec, nil
}

func (m *Matcher) rankSequence(ctx context.Context, matches []*types.PlaybookMatch, targetOutcome string) (*sequenceDraft, error) {
	prompt := fmt.Sprintf("Target outcome: %s\n\nPlaybooks:\n", targetOutcome)
	for _, match := range matches {
		prompt += fmt.Sprintf("- id=%s name=%q success_rate=%.2f: %s\n",
			match.Playbook.ID, match.Playbook.Name, match.Playbook.Metrics.SuccessRate, match.Playbook.Description)
	}

	response, err := m.client.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: sequenceSystemPrompt},
		{Role: llm.RoleUser, Content: prompt},
	})
	if err != nil {
		return nil, err
	}

	raw, err := llm.ExtractJSONObject(response)
	if err != nil {
		return nil, err
	}
	var draft sequenceDraft
	if err := json.Unmarshal([]byte(raw), &draft); err != nil {
		return nil, fmt.Errorf("%w: malformed sequence draft: %v", types.ErrParse, err)
	}
	return &draft, nil
}

func meanSuccessRate(pbs []*types.Playbook) float64 {
	if len(pbs) == 0 {
		return 0
	}
	var sum float64
	for _, pb := range pbs {
		sum += pb.Metrics.SuccessRate
	}
	return sum / float64(len(pbs))
}

// MaintainKnowledgeBase runs one curator pass and drops retrieval caches.
func (m *Matcher) MaintainKnowledgeBase(ctx context.Context) (*types.MaintenanceReport, error) {
	report, err := m.curator.Maintain(ctx)
	if err != nil {
		return nil, err
	}
	m.retriever.Invalidate()
	return report, nil
}

// BatchExtractPlaybooks mines traces into draft playbooks and indexes the
// results in both search legs.
func (m *Matcher) BatchExtractPlaybooks(ctx context.Context, traces []types.ExecutionTrace, opts extractor.BatchOptions) ([]*types.Playbook, error) {
	drafts, err := m.extractor.BatchExtract(ctx, traces, opts)
	if err != nil {
		return nil, err
	}
	for _, pb := range drafts {
		if err := m.indexer.IndexPlaybook(ctx, pb); err != nil {
			m.logger.Printf("index extracted playbook %s: %v", pb.ID, err)
		}
	}
	if len(drafts) > 0 {
		m.retriever.Invalidate()
	}
	return drafts, nil
}

// RecordExecution folds one observation into a playbook's metrics and
// reindexes it. With useEMA the success rate follows the exponential moving
// average; otherwise the full aggregate average.
func (m *Matcher) RecordExecution(ctx context.Context, id string, obs types.ExecutionObservation, useEMA bool) (*types.Playbook, error) {
	pb, err := m.store.GetPlaybook(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get playbook %s: %w", id, err)
	}

	if obs.ObservedAt.IsZero() {
		obs.ObservedAt = time.Now().UTC()
	}
	if useEMA {
		pb.Metrics = types.ApplyExecutionEMA(pb.Metrics, obs)
	} else {
		pb.Metrics = types.ApplyExecution(pb.Metrics, obs)
	}
	pb.UpdatedAt = obs.ObservedAt

	if err := m.store.UpsertPlaybook(ctx, pb); err != nil {
		return nil, fmt.Errorf("persist execution record: %w", err)
	}
	if err := m.indexer.IndexPlaybook(ctx, pb); err != nil {
		m.logger.Printf("reindex %s after execution: %v", id, err)
	}
	m.retriever.Invalidate()
	return pb, nil
}

// SavePlaybook validates and persists a playbook, indexes it, maintains tag
// adoption counts, and records co-occurrence for every pair of its tags that
// exists in the vocabulary.
func (m *Matcher) SavePlaybook(ctx context.Context, pb *types.Playbook) error {
	if err := pb.Validate(); err != nil {
		return fmt.Errorf("%w: %v", types.ErrValidation, err)
	}
	now := time.Now().UTC()
	if pb.CreatedAt.IsZero() {
		pb.CreatedAt = now
	}
	pb.UpdatedAt = now

	_, getErr := m.store.GetPlaybook(ctx, pb.ID)
	isNew := getErr != nil

	if err := m.store.UpsertPlaybook(ctx, pb); err != nil {
		return fmt.Errorf("persist playbook: %w", err)
	}
	if err := m.indexer.IndexPlaybook(ctx, pb); err != nil {
		m.logger.Printf("index playbook %s: %v", pb.ID, err)
	}
	m.retriever.Invalidate()

	vocabTags := m.vocabularyTags(ctx, pb)
	if isNew {
		for _, tag := range vocabTags {
			if err := m.store.AdjustTagPlaybookCount(ctx, tag, 1); err != nil {
				m.logger.Printf("adjust playbook count for tag %s: %v", tag, err)
			}
		}
	}
	for i := 0; i < len(vocabTags); i++ {
		for j := i + 1; j < len(vocabTags); j++ {
			if err := m.registry.RecordCoOccurrence(ctx, vocabTags[i], vocabTags[j]); err != nil {
				m.logger.Printf("record co-occurrence %s/%s: %v", vocabTags[i], vocabTags[j], err)
			}
		}
	}
	return nil
}

// vocabularyTags filters the playbook's type tags down to known vocabulary
// entries, sorted for deterministic pair ordering.
func (m *Matcher) vocabularyTags(ctx context.Context, pb *types.Playbook) []string {
	var tags []string
	for tag := range pb.TypeTags {
		if _, err := m.store.GetTag(ctx, tag); err != nil {
			continue
		}
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Status summarizes the engine state for the status tool.
type Status struct {
	Playbooks      int    `json:"playbooks"`
	VocabularyTags int    `json:"vocabulary_tags"`
	IndexedDocs    int    `json:"indexed_docs"`
	VectorProvider string `json:"vector_provider"`
	StorageBuild   string `json:"storage_build"`
}

// EngineStatus reports corpus and index counts.
func (m *Matcher) EngineStatus(ctx context.Context, indexedDocs int, vectorProvider string) (*Status, error) {
	playbooks, err := m.store.CountPlaybooks(ctx)
	if err != nil {
		return nil, fmt.Errorf("count playbooks: %w", err)
	}
	vocabulary, err := m.store.ListTags(ctx)
	if err != nil {
		return nil, fmt.Errorf("list vocabulary: %w", err)
	}
	return &Status{
		Playbooks:      playbooks,
		VocabularyTags: len(vocabulary),
		IndexedDocs:    indexedDocs,
		VectorProvider: vectorProvider,
		StorageBuild:   storage.BuildMode,
	}, nil
}

func sortMatches(matches []*types.PlaybookMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Playbook.ID < matches[j].Playbook.ID
	})
}
