package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validPlaybook() *Playbook {
	return &Playbook{
		ID:     "pb-1",
		Name:   "Incident triage",
		Status: StatusActive,
		Type:   TypeProblemSolving,
		Actions: []Action{
			{StepNumber: 1, Description: "Assess blast radius"},
			{StepNumber: 2, Description: "Notify stakeholders"},
		},
	}
}

func TestPlaybookValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, validPlaybook().Validate())
	})

	t.Run("missing id", func(t *testing.T) {
		pb := validPlaybook()
		pb.ID = ""
		assert.Error(t, pb.Validate())
	})

	t.Run("missing name", func(t *testing.T) {
		pb := validPlaybook()
		pb.Name = ""
		assert.Error(t, pb.Validate())
	})

	t.Run("bad status", func(t *testing.T) {
		pb := validPlaybook()
		pb.Status = "retired"
		assert.Error(t, pb.Validate())
	})

	t.Run("success rate out of range", func(t *testing.T) {
		pb := validPlaybook()
		pb.Metrics.SuccessRate = 1.2
		assert.Error(t, pb.Validate())
	})

	t.Run("non-sequential steps", func(t *testing.T) {
		pb := validPlaybook()
		pb.Actions[1].StepNumber = 3
		assert.Error(t, pb.Validate())
	})
}

func TestPlaybookSearchText(t *testing.T) {
	pb := validPlaybook()
	pb.Description = "Coordinate the first response"
	pb.Context.Domain = "infrastructure"
	pb.Tags = []string{"incident"}

	text := pb.SearchText()
	assert.Contains(t, text, "Incident triage")
	assert.Contains(t, text, "Coordinate the first response")
	assert.Contains(t, text, "problem-solving")
	assert.Contains(t, text, "infrastructure")
	assert.Contains(t, text, "incident")
}

func TestPlaybookRiskDerived(t *testing.T) {
	pb := validPlaybook()
	assert.False(t, pb.RiskDerived())

	pb.Tags = []string{"failure-derived"}
	assert.True(t, pb.RiskDerived())

	pb.Tags = []string{"risk-avoidance"}
	assert.True(t, pb.RiskDerived())
}
