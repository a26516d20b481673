package types

// TagMatchType labels how a dynamic type tag matched the query signals.
type TagMatchType string

const (
	TagMatchExact        TagMatchType = "exact"
	TagMatchSimilar      TagMatchType = "similar"
	TagMatchCoOccurrence TagMatchType = "cooccurrence"
)

// TagScore is the per-tag breakdown produced by dynamic-type matching.
type TagScore struct {
	Tag       string       `json:"tag"`
	Score     float64      `json:"score"`
	MatchType TagMatchType `json:"match_type"`
}

// PlaybookMatch pairs a playbook with its final match score and the
// human-readable justification. Never persisted.
type PlaybookMatch struct {
	Playbook        *Playbook  `json:"playbook"`
	Score           float64    `json:"score"`
	Reasons         []string   `json:"reasons,omitempty"`
	ApplicableSteps []int      `json:"applicable_steps,omitempty"`
	TagScores       []TagScore `json:"tag_scores,omitempty"`
}

// QueryContext is the caller-supplied context a match runs against.
type QueryContext struct {
	Query              string   `json:"query"`
	Domain             string   `json:"domain,omitempty"`
	Scenario           string   `json:"scenario,omitempty"`
	MaxSteps           int      `json:"max_steps,omitempty"`
	AvailableResources []string `json:"available_resources,omitempty"`
	SuccessTagPatterns []string `json:"success_tag_patterns,omitempty"`
}

// MatchConfig tunes one matchPlaybooks call.
type MatchConfig struct {
	MaxRecommendations    int     `json:"max_recommendations,omitempty"`
	MinMatchScore         float64 `json:"min_match_score,omitempty"`
	UseDynamicTypes       bool    `json:"use_dynamic_types,omitempty"`
	UseSimilarityMatching bool    `json:"use_similarity_matching,omitempty"`
	SimilarityThreshold   float64 `json:"similarity_threshold,omitempty"`
}

// SequenceRecommendation is the result of recommendSequence: an ordered
// playbook sequence plus the rationale behind the ordering.
type SequenceRecommendation struct {
	Sequence             []*Playbook `json:"sequence"`
	Rationale            string      `json:"rationale"`
	EstimatedSuccessRate float64     `json:"estimated_success_rate"`
}

// MaintenanceReport summarizes one curator run.
type MaintenanceReport struct {
	Merged   int `json:"merged"`
	Archived int `json:"archived"`
}
