package types

import (
	"errors"
	"time"
)

// TagVocabularyEntry is a named type tag discovered from past executions or
// seeded by configuration. Playbooks reference entries by name via TypeTags.
type TagVocabularyEntry struct {
	Name            string    `json:"name"`
	Keywords        []string  `json:"keywords"`
	Confidence      float64   `json:"confidence"`
	FirstIdentified time.Time `json:"first_identified"`
	PlaybookCount   int       `json:"playbook_count"`
	AutoDiscovered  bool      `json:"auto_discovered"`
}

// Validate checks vocabulary entry invariants.
func (e *TagVocabularyEntry) Validate() error {
	if e.Name == "" {
		return errors.New("tag name is required")
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		return errors.New("tag confidence must be between 0 and 1")
	}
	return nil
}

// SimilarityRecord is a symmetric pairwise relation between two tag names.
// Tag1 < Tag2 lexically, guaranteeing a single row per unordered pair.
type SimilarityRecord struct {
	Tag1         string    `json:"tag1"`
	Tag2         string    `json:"tag2"`
	Score        float64   `json:"score"`
	CoOccurrence int       `json:"co_occurrence"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CanonicalPair orders two tag names lexically so every unordered pair maps
// to exactly one key.
func CanonicalPair(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}
