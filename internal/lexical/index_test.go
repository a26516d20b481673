package lexical

import (
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "LatinWords",
			text: "Rapid Iteration strategy",
			want: []string{"rapid", "iteration", "strategy"},
		},
		{
			name: "DropSingleCharLatin",
			text: "a b go run",
			want: []string{"go", "run"},
		},
		{
			name: "CJKSplitPerCharacter",
			text: "快速迭代",
			want: []string{"快", "速", "迭", "代"},
		},
		{
			name: "MixedCJKAndLatin",
			text: "快速 agile 迭代",
			want: []string{"快", "速", "agile", "迭", "代"},
		},
		{
			name: "PunctuationSeparates",
			text: "data-driven, analysis!",
			want: []string{"data", "driven", "analysis"},
		},
		{
			name: "Empty",
			text: "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Tokenize(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestIndexAndSearch(t *testing.T) {
	idx := NewIndex()
	idx.Index("pb1", "incident response escalation playbook")
	idx.Index("pb2", "growth experiment iteration playbook")
	idx.Index("pb3", "database migration runbook")

	results := idx.Search("incident escalation", 10)
	if len(results) == 0 {
		t.Fatal("expected results for matching query")
	}
	if results[0].ID != "pb1" {
		t.Errorf("expected pb1 first, got %s", results[0].ID)
	}

	// Scores are descending.
	for i := 1; i < len(results); i++ {
		if results[i-1].Score < results[i].Score {
			t.Error("results not sorted by descending score")
		}
	}
}

func TestSearchNoMatches(t *testing.T) {
	idx := NewIndex()
	idx.Index("pb1", "incident response")

	if results := idx.Search("quantum entanglement", 10); len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestSearchEmptyIndex(t *testing.T) {
	idx := NewIndex()
	if results := idx.Search("anything", 5); results != nil {
		t.Errorf("expected nil results on empty index, got %v", results)
	}
}

func TestSearchLimit(t *testing.T) {
	idx := NewIndex()
	for _, id := range []string{"a1", "a2", "a3", "a4"} {
		idx.Index(id, "shared keyword playbook")
	}

	results := idx.Search("keyword", 2)
	if len(results) != 2 {
		t.Errorf("expected 2 results with limit 2, got %d", len(results))
	}
}

func TestReindexReplaces(t *testing.T) {
	idx := NewIndex()
	idx.Index("pb1", "old terminology")
	idx.Index("pb1", "new vocabulary")

	if idx.Len() != 1 {
		t.Fatalf("expected 1 document after reindex, got %d", idx.Len())
	}
	if results := idx.Search("terminology", 5); len(results) != 0 {
		t.Error("expected old terms to be gone after reindex")
	}
	if results := idx.Search("vocabulary", 5); len(results) != 1 {
		t.Error("expected new terms to be searchable after reindex")
	}
}

func TestRemove(t *testing.T) {
	idx := NewIndex()
	idx.Index("pb1", "incident response")
	idx.Index("pb2", "incident postmortem")

	idx.Remove("pb1")

	if idx.Len() != 1 {
		t.Fatalf("expected 1 document after Remove, got %d", idx.Len())
	}
	results := idx.Search("incident", 5)
	if len(results) != 1 || results[0].ID != "pb2" {
		t.Errorf("expected only pb2 to remain, got %v", results)
	}

	// Removing an unknown id is a no-op.
	idx.Remove("missing")
	if idx.Len() != 1 {
		t.Error("removing unknown id changed the index")
	}
}

func TestClear(t *testing.T) {
	idx := NewIndex()
	idx.Index("pb1", "something")
	idx.Clear()

	if idx.Len() != 0 {
		t.Errorf("expected empty index after Clear, got %d", idx.Len())
	}
}

func TestBM25RepetitionSaturates(t *testing.T) {
	idx := NewIndex()
	idx.Index("spam", "retry retry retry retry retry retry retry retry")
	idx.Index("normal", "retry once then stop")
	idx.Index("other", "unrelated document text")

	results := idx.Search("retry", 10)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	// Higher tf scores higher, but saturation keeps it bounded:
	// tf*(k1+1)/(tf+k1) approaches k1+1 as tf grows.
	if results[0].ID != "spam" {
		t.Errorf("expected higher-tf document first, got %s", results[0].ID)
	}
	if results[0].Score > results[1].Score*(k1+1) {
		t.Error("term-frequency saturation bound violated")
	}
}
