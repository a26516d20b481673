package extractor

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/playbookhq/playbook-mcp/internal/llm"
	"github.com/playbookhq/playbook-mcp/internal/storage"
	"github.com/playbookhq/playbook-mcp/pkg/types"
)

// scriptedClient returns canned completions in order, then repeats the last.
type scriptedClient struct {
	responses []string
	calls     int
}

func (s *scriptedClient) Chat(_ context.Context, _ []llm.Message) (string, error) {
	idx := s.calls
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	s.calls++
	return s.responses[idx], nil
}

func (s *scriptedClient) Close() error { return nil }

func trace(id, input string, success bool, tools ...string) types.ExecutionTrace {
	return types.ExecutionTrace{
		ID:        id,
		Input:     input,
		ToolsUsed: tools,
		Success:   success,
		Duration:  2 * time.Second,
		Timestamp: time.Now(),
	}
}

func newTestEngine(t *testing.T, client llm.Client) (*Engine, storage.Storage) {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return NewEngine(client, store, log.New(io.Discard, "", 0)), store
}

func TestClusterTracesGreedy(t *testing.T) {
	traces := []types.ExecutionTrace{
		trace("t1", "deploy service rollback failure recovery", true, "kubectl"),
		trace("t2", "deploy service rollback failure recovery", true, "kubectl"),
		trace("t3", "deploy service rollback failure recovery", true, "helm"),
		trace("t4", "write quarterly marketing newsletter draft", true, "docs"),
	}

	clusters := ClusterTraces(traces, 0.7, 3)
	if len(clusters) != 1 {
		t.Fatalf("got %d clusters, want 1", len(clusters))
	}
	cluster := clusters[0]
	if len(cluster.Members) != 3 {
		t.Errorf("cluster size = %d, want 3", len(cluster.Members))
	}
	if diff := cluster.Confidence - 0.6; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("confidence = %f, want 0.6 for minimum size", cluster.Confidence)
	}
	if cluster.Representative != "deploy service rollback failure recovery" {
		t.Errorf("representative = %q", cluster.Representative)
	}
	// kubectl used by 2 of 3 members clears the 50% bar; helm does not.
	if len(cluster.CommonTools) != 1 || cluster.CommonTools[0] != "kubectl" {
		t.Errorf("common tools = %v, want [kubectl]", cluster.CommonTools)
	}
	if len(cluster.CommonKeywords) != 5 {
		t.Errorf("common keywords = %v, want top 5", cluster.CommonKeywords)
	}
}

func TestClusterTracesSimilarityThreshold(t *testing.T) {
	// Eight of ten shared tokens: Jaccard 8/12 ≈ 0.667, below 0.7.
	below := []types.ExecutionTrace{
		trace("t1", "alpha bravo charlie delta echo foxtrot golf hotel india juliet", true),
		trace("t2", "alpha bravo charlie delta echo foxtrot golf hotel kilo lima", true),
		trace("t3", "alpha bravo charlie delta echo foxtrot golf hotel mike november", true),
	}
	if clusters := ClusterTraces(below, 0.7, 3); len(clusters) != 0 {
		t.Errorf("sub-threshold traces should not cluster, got %d clusters", len(clusters))
	}

	// Nine of ten shared: Jaccard 9/11 ≈ 0.818, clears 0.7 against the seed.
	above := []types.ExecutionTrace{
		trace("t1", "alpha bravo charlie delta echo foxtrot golf hotel india juliet", true),
		trace("t2", "alpha bravo charlie delta echo foxtrot golf hotel india kilo", true),
		trace("t3", "alpha bravo charlie delta echo foxtrot golf hotel india lima", true),
	}
	if clusters := ClusterTraces(above, 0.7, 3); len(clusters) != 1 {
		t.Errorf("above-threshold traces should form one cluster, got %d", len(clusters))
	}
}

func TestClusterTracesSkipsFailures(t *testing.T) {
	traces := []types.ExecutionTrace{
		trace("t1", "deploy service rollback", true),
		trace("t2", "deploy service rollback", false),
		trace("t3", "deploy service rollback", true),
	}
	if clusters := ClusterTraces(traces, 0.7, 3); len(clusters) != 0 {
		t.Error("failed traces must not count toward cluster size")
	}
}

func TestClusterConfidence(t *testing.T) {
	tests := []struct {
		size int
		want float64
	}{
		{3, 0.6},
		{5, 0.714},
		{10, 0.999},
		{11, 1.0},
	}
	for _, tt := range tests {
		got := clusterConfidence(tt.size)
		if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("clusterConfidence(%d) = %f, want %f", tt.size, got, tt.want)
		}
	}
}

const validDraft = `{"name": "deploy rollback", "description": "recover from a bad deploy",
"type": "problem-solving", "domain": "engineering", "scenario": "failed deploy",
"actions": [{"description": "halt rollout", "expected_outcome": "no further damage"},
{"description": "roll back", "expected_outcome": "previous version serving"}]}`

func TestBatchExtract(t *testing.T) {
	client := &scriptedClient{responses: []string{"Here you go:\n" + validDraft}}
	engine, store := newTestEngine(t, client)
	ctx := context.Background()

	traces := []types.ExecutionTrace{
		trace("t1", "deploy service rollback failure recovery", true, "kubectl"),
		trace("t2", "deploy service rollback failure recovery", true, "kubectl"),
		trace("t3", "deploy service rollback failure recovery", true, "kubectl"),
	}

	drafts, err := engine.BatchExtract(ctx, traces, BatchOptions{})
	if err != nil {
		t.Fatalf("BatchExtract: %v", err)
	}
	if len(drafts) != 1 {
		t.Fatalf("got %d drafts, want 1", len(drafts))
	}

	pb := drafts[0]
	if pb.Name != "deploy rollback" {
		t.Errorf("name = %q", pb.Name)
	}
	if !pb.HasTag(BatchExtractedTag) {
		t.Errorf("tags = %v, missing %s", pb.Tags, BatchExtractedTag)
	}
	if pb.Metrics.SuccessRate != seedSuccessRate {
		t.Errorf("seeded success rate = %f, want %f", pb.Metrics.SuccessRate, seedSuccessRate)
	}
	if pb.Metrics.AvgExecutionTime != 2000 {
		t.Errorf("avg execution time = %f ms, want mean 2000", pb.Metrics.AvgExecutionTime)
	}
	if len(pb.SourceLearnings) != 3 {
		t.Errorf("source learnings = %v, want the three trace ids", pb.SourceLearnings)
	}
	if len(pb.Actions) != 2 || pb.Actions[0].StepNumber != 1 || pb.Actions[1].StepNumber != 2 {
		t.Errorf("actions not renumbered sequentially: %+v", pb.Actions)
	}

	// The draft must already be persisted.
	stored, err := store.GetPlaybook(ctx, pb.ID)
	if err != nil {
		t.Fatalf("extracted playbook not persisted: %v", err)
	}
	if stored.Name != pb.Name {
		t.Errorf("stored name = %q", stored.Name)
	}
}

func TestBatchExtractSkipsUnparseableCluster(t *testing.T) {
	client := &scriptedClient{responses: []string{"I am unable to produce JSON today."}}
	engine, _ := newTestEngine(t, client)

	traces := []types.ExecutionTrace{
		trace("t1", "deploy service rollback failure recovery", true),
		trace("t2", "deploy service rollback failure recovery", true),
		trace("t3", "deploy service rollback failure recovery", true),
	}

	drafts, err := engine.BatchExtract(context.Background(), traces, BatchOptions{})
	if err != nil {
		t.Fatalf("parse failure must not fail the batch: %v", err)
	}
	if len(drafts) != 0 {
		t.Errorf("got %d drafts from unparseable responses, want 0", len(drafts))
	}
}

// selectiveClient fails any completion whose prompt mentions the marker and
// answers the rest with the canned draft.
type selectiveClient struct {
	failOn   string
	response string

	mu    sync.Mutex
	calls int
}

func (s *selectiveClient) Chat(_ context.Context, messages []llm.Message) (string, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	for _, msg := range messages {
		if strings.Contains(msg.Content, s.failOn) {
			return "", fmt.Errorf("%w: upstream timeout", types.ErrProvider)
		}
	}
	return s.response, nil
}

func (s *selectiveClient) Close() error { return nil }

func TestBatchExtractSkipsFailedProviderCluster(t *testing.T) {
	client := &selectiveClient{failOn: "newsletter", response: validDraft}
	engine, store := newTestEngine(t, client)
	ctx := context.Background()

	traces := []types.ExecutionTrace{
		trace("t1", "deploy service rollback failure recovery", true, "kubectl"),
		trace("t2", "deploy service rollback failure recovery", true, "kubectl"),
		trace("t3", "deploy service rollback failure recovery", true, "kubectl"),
		trace("t4", "write quarterly marketing newsletter draft", true, "docs"),
		trace("t5", "write quarterly marketing newsletter draft", true, "docs"),
		trace("t6", "write quarterly marketing newsletter draft", true, "docs"),
	}

	drafts, err := engine.BatchExtract(ctx, traces, BatchOptions{})
	if err != nil {
		t.Fatalf("one cluster's provider failure must not fail the batch: %v", err)
	}
	if len(drafts) != 1 {
		t.Fatalf("got %d drafts, want the healthy cluster's 1", len(drafts))
	}
	for _, id := range drafts[0].SourceLearnings {
		if id == "t4" || id == "t5" || id == "t6" {
			t.Errorf("draft sourced from the failed cluster: %v", drafts[0].SourceLearnings)
		}
	}
	if client.calls != 2 {
		t.Errorf("LLM called %d times, want once per cluster", client.calls)
	}

	// The healthy cluster's draft is persisted.
	if _, err := store.GetPlaybook(ctx, drafts[0].ID); err != nil {
		t.Errorf("surviving draft not persisted: %v", err)
	}
}

func TestBatchExtractNoClusters(t *testing.T) {
	client := &scriptedClient{responses: []string{validDraft}}
	engine, _ := newTestEngine(t, client)

	drafts, err := engine.BatchExtract(context.Background(), []types.ExecutionTrace{
		trace("t1", "one lonely trace", true),
	}, BatchOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if drafts != nil {
		t.Errorf("expected no drafts, got %v", drafts)
	}
	if client.calls != 0 {
		t.Errorf("LLM called %d times with no clusters, want 0", client.calls)
	}
}

func TestExtractFromLearning(t *testing.T) {
	client := &scriptedClient{responses: []string{validDraft}}
	engine, store := newTestEngine(t, client)
	ctx := context.Background()

	pb, err := engine.ExtractFromLearning(ctx, "learning-1", "we recovered a bad deploy by halting and rolling back")
	if err != nil {
		t.Fatalf("ExtractFromLearning: %v", err)
	}
	if pb == nil {
		t.Fatal("expected a playbook")
	}
	if len(pb.SourceLearnings) != 1 || pb.SourceLearnings[0] != "learning-1" {
		t.Errorf("source learnings = %v", pb.SourceLearnings)
	}
	if _, err := store.GetPlaybook(ctx, pb.ID); err != nil {
		t.Errorf("playbook not persisted: %v", err)
	}
}

func TestExtractFromLearningDeduplicates(t *testing.T) {
	client := &scriptedClient{responses: []string{validDraft}}
	engine, _ := newTestEngine(t, client)

	if !engine.acquire("learning-1") {
		t.Fatal("first acquire should succeed")
	}
	pb, err := engine.ExtractFromLearning(context.Background(), "learning-1", "text")
	if err != nil {
		t.Fatalf("deduplicated call must not error: %v", err)
	}
	if pb != nil {
		t.Error("deduplicated call should return no playbook")
	}
	if client.calls != 0 {
		t.Errorf("LLM called %d times during in-flight dedup, want 0", client.calls)
	}

	engine.release("learning-1")
	pb, err = engine.ExtractFromLearning(context.Background(), "learning-1", "text")
	if err != nil || pb == nil {
		t.Errorf("post-release extraction failed: pb=%v err=%v", pb, err)
	}
}
