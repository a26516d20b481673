// Package extractor mines repeated successful execution traces into draft
// playbooks via keyword clustering and LLM-assisted structuring.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/playbookhq/playbook-mcp/internal/llm"
	"github.com/playbookhq/playbook-mcp/internal/storage"
	"github.com/playbookhq/playbook-mcp/pkg/types"
)

const (
	// seedSuccessRate is the optimistic starting metric for a playbook
	// distilled from a cluster of successful traces.
	seedSuccessRate = 0.8

	// maxPromptTraces bounds how many example traces the prompt carries.
	maxPromptTraces = 5

	// maxConcurrentExtractions bounds parallel LLM calls per batch.
	maxConcurrentExtractions = 4

	// BatchExtractedTag marks playbooks produced by batch extraction.
	BatchExtractedTag = "batch-extracted"
)

// BatchOptions tune one batch-extraction run. Zero values fall back to the
// clustering defaults.
type BatchOptions struct {
	MinSimilarity  float64
	MinClusterSize int
}

// Engine extracts playbooks from traces. The in-flight set prevents two
// concurrent extractions of the same source learning.
type Engine struct {
	client llm.Client
	store  storage.Storage
	logger *log.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewEngine creates an extraction engine.
func NewEngine(client llm.Client, store storage.Storage, logger *log.Logger) *Engine {
	return &Engine{
		client:   client,
		store:    store,
		logger:   logger,
		inflight: make(map[string]struct{}),
	}
}

// BatchExtract clusters the traces and extracts one draft playbook per
// retained cluster. A cluster whose extraction fails, whether the reply was
// unparseable or the provider call itself errored, is skipped and logged; it
// never fails the batch. Returned playbooks are already persisted.
func (e *Engine) BatchExtract(ctx context.Context, traces []types.ExecutionTrace, opts BatchOptions) ([]*types.Playbook, error) {
	clusters := ClusterTraces(traces, opts.MinSimilarity, opts.MinClusterSize)
	if len(clusters) == 0 {
		return nil, nil
	}

	var mu sync.Mutex
	var drafts []*types.Playbook

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentExtractions)
	for _, cluster := range clusters {
		g.Go(func() error {
			draft, err := e.extractCluster(gctx, cluster)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				e.logger.Printf("skipping cluster %s: %v", cluster.ID, err)
				return nil
			}
			mu.Lock()
			drafts = append(drafts, draft)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("batch extract: %w", err)
	}
	return drafts, nil
}

// ExtractFromLearning distills a single recorded learning into a playbook.
// If the same learning is already being extracted, the call is a deduplicated
// no-op returning (nil, nil).
func (e *Engine) ExtractFromLearning(ctx context.Context, learningID, text string) (*types.Playbook, error) {
	if !e.acquire(learningID) {
		e.logger.Printf("extraction already in flight for learning %s", learningID)
		return nil, nil
	}
	defer e.release(learningID)

	prompt := fmt.Sprintf("Distill the following learning into a reusable playbook.\n\nLearning:\n%s", text)
	draft, err := e.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	pb := draft.toPlaybook()
	pb.SourceLearnings = []string{learningID}
	pb.Metrics.SuccessRate = seedSuccessRate

	if err := e.store.UpsertPlaybook(ctx, pb); err != nil {
		return nil, fmt.Errorf("persist extracted playbook: %w", err)
	}
	return pb, nil
}

func (e *Engine) acquire(learningID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inflight[learningID]; busy {
		return false
	}
	e.inflight[learningID] = struct{}{}
	return true
}

func (e *Engine) release(learningID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, learningID)
}

func (e *Engine) extractCluster(ctx context.Context, cluster types.TrajectoryCluster) (*types.Playbook, error) {
	draft, err := e.complete(ctx, clusterPrompt(cluster))
	if err != nil {
		return nil, err
	}

	pb := draft.toPlaybook()
	pb.Tags = append([]string{BatchExtractedTag}, cluster.CommonKeywords...)
	pb.Metrics.SuccessRate = seedSuccessRate
	pb.Metrics.AvgExecutionTime = meanDurationMillis(cluster.Members)
	for _, member := range cluster.Members {
		pb.SourceLearnings = append(pb.SourceLearnings, member.ID)
	}

	if err := e.store.UpsertPlaybook(ctx, pb); err != nil {
		return nil, fmt.Errorf("persist extracted playbook: %w", err)
	}
	return pb, nil
}

const extractionSystemPrompt = `You turn execution traces into reusable strategic playbooks.
Respond with a single JSON object shaped as:
{"name": "...", "description": "...", "type": "problem-solving|growth|crisis|optimization|general",
 "domain": "...", "scenario": "...",
 "actions": [{"description": "...", "expected_outcome": "..."}]}`

func clusterPrompt(cluster types.TrajectoryCluster) string {
	var b strings.Builder
	fmt.Fprintf(&b, "These %d task executions succeeded with the same approach.\n", len(cluster.Members))
	fmt.Fprintf(&b, "Common tools: %s\n", strings.Join(cluster.CommonTools, ", "))
	fmt.Fprintf(&b, "Common keywords: %s\n\n", strings.Join(cluster.CommonKeywords, ", "))

	for i, member := range cluster.Members {
		if i >= maxPromptTraces {
			break
		}
		fmt.Fprintf(&b, "Example %d: %s\n", i+1, member.Input)
		for _, step := range member.Steps {
			fmt.Fprintf(&b, "  - %s\n", step)
		}
	}

	b.WriteString("\nExtract one generalized playbook covering these executions.")
	return b.String()
}

// complete runs one chat completion and parses the draft from its response.
func (e *Engine) complete(ctx context.Context, prompt string) (*draftPlaybook, error) {
	response, err := e.client.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: extractionSystemPrompt},
		{Role: llm.RoleUser, Content: prompt},
	})
	if err != nil {
		return nil, fmt.Errorf("extraction completion: %w", err)
	}

	raw, err := llm.ExtractJSONObject(response)
	if err != nil {
		return nil, err
	}

	var draft draftPlaybook
	if err := json.Unmarshal([]byte(raw), &draft); err != nil {
		return nil, fmt.Errorf("%w: malformed playbook draft: %v", types.ErrParse, err)
	}
	if draft.Name == "" {
		return nil, fmt.Errorf("%w: playbook draft has no name", types.ErrParse)
	}
	return &draft, nil
}

// draftPlaybook is the JSON shape requested from the LLM.
type draftPlaybook struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Domain      string `json:"domain"`
	Scenario    string `json:"scenario"`
	Actions     []struct {
		Description     string `json:"description"`
		ExpectedOutcome string `json:"expected_outcome"`
	} `json:"actions"`
}

func (d *draftPlaybook) toPlaybook() *types.Playbook {
	now := time.Now().UTC()
	pb := &types.Playbook{
		ID:          uuid.New().String(),
		Name:        d.Name,
		Description: d.Description,
		Version:     "1.0.0",
		Status:      types.StatusActive,
		Type:        parsePlaybookType(d.Type),
		Context: types.PlaybookContext{
			Domain:   d.Domain,
			Scenario: d.Scenario,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	for i, action := range d.Actions {
		pb.Actions = append(pb.Actions, types.Action{
			StepNumber:      i + 1,
			Description:     action.Description,
			ExpectedOutcome: action.ExpectedOutcome,
		})
	}
	return pb
}

func parsePlaybookType(s string) types.PlaybookType {
	switch types.PlaybookType(s) {
	case types.TypeProblemSolving, types.TypeGrowth, types.TypeCrisis, types.TypeOptimization:
		return types.PlaybookType(s)
	default:
		return types.TypeGeneral
	}
}

func meanDurationMillis(members []types.ExecutionTrace) float64 {
	if len(members) == 0 {
		return 0
	}
	var total float64
	for _, member := range members {
		total += float64(member.Duration.Milliseconds())
	}
	return total / float64(len(members))
}
