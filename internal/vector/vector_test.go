package vector

import (
	"context"
	"testing"

	"github.com/playbookhq/playbook-mcp/pkg/types"
)

func TestParsePlaybook(t *testing.T) {
	tests := []struct {
		name   string
		skill  Skill
		wantID string
		wantOK bool
	}{
		{
			name: "playbook record",
			skill: Skill{
				ID: "pb-1",
				Metadata: map[string]any{
					"type":          MetadataTypePlaybook,
					"playbook_id":   "pb-1",
					"name":          "incident response",
					"playbook_type": "problem_solving",
				},
			},
			wantID: "pb-1",
			wantOK: true,
		},
		{
			name: "foreign record type",
			skill: Skill{
				ID:       "tool-1",
				Metadata: map[string]any{"type": "code_snippet"},
			},
			wantOK: false,
		},
		{
			name:   "no metadata",
			skill:  Skill{ID: "bare"},
			wantOK: false,
		},
		{
			name: "id falls back to skill id",
			skill: Skill{
				ID:       "pb-2",
				Metadata: map[string]any{"type": MetadataTypePlaybook},
			},
			wantID: "pb-2",
			wantOK: true,
		},
		{
			name: "no id at all",
			skill: Skill{
				Metadata: map[string]any{"type": MetadataTypePlaybook},
			},
			wantOK: false,
		},
		{
			name: "type field wrong kind",
			skill: Skill{
				ID:       "x",
				Metadata: map[string]any{"type": 42},
			},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc, ok := ParsePlaybook(tt.skill)
			if ok != tt.wantOK {
				t.Fatalf("ParsePlaybook ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				if desc != nil {
					t.Errorf("expected nil descriptor on non-playbook record")
				}
				return
			}
			if desc.ID != tt.wantID {
				t.Errorf("descriptor ID = %q, want %q", desc.ID, tt.wantID)
			}
		})
	}
}

func localTestPlaybook(id, name, description string) *types.Playbook {
	return &types.Playbook{
		ID:          id,
		Name:        name,
		Description: description,
		Version:     "1.0.0",
		Status:      types.StatusActive,
		Type:        types.TypeProblemSolving,
	}
}

func TestLocalProviderSearch(t *testing.T) {
	ctx := context.Background()
	provider := NewLocalProvider()

	pbs := []*types.Playbook{
		localTestPlaybook("pb-1", "database migration", "migrate schema with zero downtime rollback"),
		localTestPlaybook("pb-2", "incident triage", "triage production incident severity escalation"),
		localTestPlaybook("pb-3", "schema rollback", "rollback database schema migration safely"),
	}
	for _, pb := range pbs {
		if err := provider.IndexSkill(ctx, pb); err != nil {
			t.Fatalf("IndexSkill(%s): %v", pb.ID, err)
		}
	}
	if provider.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", provider.Len())
	}

	matches, err := provider.FindRelevantSkills(ctx, "database schema migration rollback", 10, 0.01)
	if err != nil {
		t.Fatalf("FindRelevantSkills: %v", err)
	}
	if len(matches) == 0 {
		t.Fatal("expected at least one match")
	}

	// The migration playbooks share far more vocabulary with the query than
	// incident triage does.
	if matches[0].Skill.ID == "pb-2" {
		t.Errorf("top match = pb-2, want a migration playbook")
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Score > matches[i-1].Score {
			t.Errorf("matches not sorted by score descending at %d", i)
		}
	}

	desc, ok := ParsePlaybook(matches[0].Skill)
	if !ok {
		t.Fatal("indexed skill should parse back into a playbook descriptor")
	}
	if desc.Type != types.TypeProblemSolving {
		t.Errorf("descriptor type = %q, want %q", desc.Type, types.TypeProblemSolving)
	}
}

func TestLocalProviderThresholdAndLimit(t *testing.T) {
	ctx := context.Background()
	provider := NewLocalProvider()

	for _, pb := range []*types.Playbook{
		localTestPlaybook("pb-1", "alpha alpha", "alpha topic"),
		localTestPlaybook("pb-2", "beta", "unrelated subject entirely"),
	} {
		if err := provider.IndexSkill(ctx, pb); err != nil {
			t.Fatal(err)
		}
	}

	matches, err := provider.FindRelevantSkills(ctx, "alpha topic", 10, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range matches {
		if m.Score < 0.5 {
			t.Errorf("match %s below threshold: %f", m.Skill.ID, m.Score)
		}
	}

	matches, err = provider.FindRelevantSkills(ctx, "alpha topic", 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Errorf("limit 1 returned %d matches", len(matches))
	}
}

func TestLocalProviderRemove(t *testing.T) {
	ctx := context.Background()
	provider := NewLocalProvider()

	pb := localTestPlaybook("pb-1", "alpha", "alpha text")
	if err := provider.IndexSkill(ctx, pb); err != nil {
		t.Fatal(err)
	}
	if err := provider.RemoveSkill(ctx, "pb-1"); err != nil {
		t.Fatal(err)
	}
	if provider.Len() != 0 {
		t.Errorf("Len() = %d after remove, want 0", provider.Len())
	}
}

func TestEmbedDeterministic(t *testing.T) {
	a := embed("fast iteration with metrics")
	b := embed("fast iteration with metrics")
	if cosineSimilarity(a, b) < 0.999 {
		t.Error("identical texts should embed identically")
	}

	c := embed("completely different words here")
	if sim := cosineSimilarity(a, c); sim > 0.5 {
		t.Errorf("disjoint texts unexpectedly similar: %f", sim)
	}
}
