// Package vector defines the boundary to an external vector-index provider
// and the parsing of its loosely typed skill records back into playbook
// descriptors.
package vector

import (
	"context"

	"github.com/playbookhq/playbook-mcp/pkg/types"
)

// Provider names
const (
	ProviderHTTP  = "http"
	ProviderLocal = "local"
)

// MetadataTypePlaybook tags a skill record as a strategic playbook. Records
// carrying any other metadata type are not ours and are skipped.
const MetadataTypePlaybook = "strategic_playbook"

// Skill is the loosely typed record a vector index stores and returns.
// Only the metadata discriminates what the record actually is.
type Skill struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Match is a skill returned from a relevance search with its score.
type Match struct {
	Skill Skill   `json:"skill"`
	Score float64 `json:"score"`
}

// Descriptor identifies a playbook parsed out of a skill record.
type Descriptor struct {
	ID   string
	Name string
	Type types.PlaybookType
}

// Provider is the vector-index boundary. Implementations may call remote
// services; callers must treat every method as a potential slow point and
// must not hold locks across calls.
type Provider interface {
	IndexSkill(ctx context.Context, pb *types.Playbook) error
	RemoveSkill(ctx context.Context, id string) error
	FindRelevantSkills(ctx context.Context, query string, limit int, threshold float64) ([]Match, error)
	Provider() string
	Close() error
}

// ParsePlaybook inspects a skill record's metadata and, when it is tagged as
// a strategic playbook, returns a well-typed descriptor. Any other shape
// returns (nil, false), never an error: foreign records in a shared index are
// expected, not exceptional.
func ParsePlaybook(s Skill) (*Descriptor, bool) {
	mtype, _ := s.Metadata["type"].(string)
	if mtype != MetadataTypePlaybook {
		return nil, false
	}

	id, _ := s.Metadata["playbook_id"].(string)
	if id == "" {
		id = s.ID
	}
	if id == "" {
		return nil, false
	}

	name, _ := s.Metadata["name"].(string)
	ptype, _ := s.Metadata["playbook_type"].(string)

	return &Descriptor{
		ID:   id,
		Name: name,
		Type: types.PlaybookType(ptype),
	}, true
}

// skillFromPlaybook builds the record shape shared by all providers.
func skillFromPlaybook(pb *types.Playbook) Skill {
	return Skill{
		ID:   pb.ID,
		Text: pb.SearchText(),
		Metadata: map[string]any{
			"type":          MetadataTypePlaybook,
			"playbook_id":   pb.ID,
			"name":          pb.Name,
			"playbook_type": string(pb.Type),
		},
	}
}
