package types

import (
	"errors"
	"time"
)

// Status represents the lifecycle state of a playbook.
type Status string

const (
	StatusActive     Status = "active"
	StatusArchived   Status = "archived"
	StatusDeprecated Status = "deprecated"
)

// PlaybookType classifies the scenario family a playbook addresses.
type PlaybookType string

const (
	TypeProblemSolving PlaybookType = "problem-solving"
	TypeGrowth         PlaybookType = "growth"
	TypeCrisis         PlaybookType = "crisis"
	TypeOptimization   PlaybookType = "optimization"
	TypeGeneral        PlaybookType = "general"
)

// Action is one ordered step of a playbook.
type Action struct {
	StepNumber      int      `json:"step_number"`
	Description     string   `json:"description"`
	ExpectedOutcome string   `json:"expected_outcome"`
	Resources       []string `json:"resources,omitempty"`
}

// PlaybookContext describes where a playbook applies.
type PlaybookContext struct {
	Domain       string   `json:"domain"`
	Scenario     string   `json:"scenario"`
	Complexity   string   `json:"complexity"`
	Stakeholders []string `json:"stakeholders,omitempty"`
}

// Playbook is a persisted, reusable action sequence distilled from past
// task executions.
type Playbook struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Version     string       `json:"version"`
	Status      Status       `json:"status"`
	Type        PlaybookType `json:"type"`

	// TypeTags maps dynamically discovered type tags to per-tag confidence.
	TypeTags map[string]float64 `json:"type_tags,omitempty"`
	Tags     []string           `json:"tags,omitempty"`

	Context PlaybookContext `json:"context"`
	Actions []Action        `json:"actions"`

	// Provenance
	SourceLearnings   []string `json:"source_learnings,omitempty"`
	ParentID          string   `json:"parent_id,omitempty"`
	OptimizationCount int      `json:"optimization_count"`

	Metrics PlaybookMetrics `json:"metrics"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SearchText returns the text the lexical index tokenizes for this playbook.
func (p *Playbook) SearchText() string {
	text := p.Name + " " + p.Description + " " + string(p.Type) + " " +
		p.Context.Domain + " " + p.Context.Scenario
	for _, tag := range p.Tags {
		text += " " + tag
	}
	return text
}

// HasTag reports whether the playbook carries the given classification tag.
func (p *Playbook) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// RiskDerived reports whether the playbook records a failure pattern rather
// than a success pattern. Such playbooks are scored without the success-rate
// term; they exist precisely because their executions failed.
func (p *Playbook) RiskDerived() bool {
	return p.HasTag("failure-derived") || p.HasTag("risk-avoidance")
}

// Validate checks structural invariants before persistence.
func (p *Playbook) Validate() error {
	if p.ID == "" {
		return errors.New("playbook id is required")
	}
	if p.Name == "" {
		return errors.New("playbook name is required")
	}
	switch p.Status {
	case StatusActive, StatusArchived, StatusDeprecated:
	default:
		return errors.New("invalid playbook status")
	}
	if p.Metrics.SuccessRate < 0 || p.Metrics.SuccessRate > 1 {
		return errors.New("success rate must be between 0 and 1")
	}
	for i, a := range p.Actions {
		if a.StepNumber != i+1 {
			return errors.New("action step numbers must be sequential from 1")
		}
	}
	return nil
}
