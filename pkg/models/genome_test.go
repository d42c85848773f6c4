package models_test

import (
	"testing"

	"github.com/eenlars/evoflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoNodeConfig() models.WorkflowConfig {
	return models.WorkflowConfig{
		EntryNodeID: "plan",
		Nodes: []models.WorkflowNodeConfig{
			{NodeID: "plan", SystemPrompt: "plan the task", ModelName: "gpt-4.1-mini", HandOffs: []string{"answer"}},
			{NodeID: "answer", SystemPrompt: "answer the task", ModelName: "gpt-4.1-mini", Memory: map[string]string{"notes": ""}},
		},
	}
}

func TestGenome_EvaluationSlot(t *testing.T) {
	evo := models.EvolutionContext{RunID: "run-1", GenerationID: "gen-1", GenerationNumber: 1}

	t.Run("fresh genome is unevaluated with zero score", func(t *testing.T) {
		g := models.NewGenome(twoNodeConfig(), nil, models.OperationInit, evo)
		assert.False(t, g.HasBeenEvaluated)
		assert.Equal(t, 0.0, g.Fitness.Score)
		assert.Nil(t, g.EvaluatedAt)
		assert.NotEmpty(t, g.WorkflowVersionID)
	})

	t.Run("score of exactly zero still marks the genome evaluated", func(t *testing.T) {
		g := models.NewGenome(twoNodeConfig(), nil, models.OperationInit, evo)
		g.SetFitnessAndFeedback(models.Fitness{Score: 0}, "nothing worked")
		assert.True(t, g.HasBeenEvaluated)
		assert.Equal(t, 0.0, g.Fitness.Score)
		assert.Equal(t, "nothing worked", g.Feedback)
		require.NotNil(t, g.EvaluatedAt)
	})

	t.Run("re-evaluation overwrites the previous record", func(t *testing.T) {
		g := models.NewGenome(twoNodeConfig(), nil, models.OperationInit, evo)
		g.SetFitnessAndFeedback(models.Fitness{Score: 0.2}, "first")
		g.SetFitnessAndFeedback(models.Fitness{Score: 0.9, Accuracy: 1}, "second")
		assert.Equal(t, 0.9, g.Fitness.Score)
		assert.Equal(t, "second", g.Feedback)
		assert.True(t, g.HasBeenEvaluated)
	})
}

func TestGenome_AddCost(t *testing.T) {
	evo := models.EvolutionContext{RunID: "run-1", GenerationID: "gen-1", GenerationNumber: 1}
	g := models.NewGenome(twoNodeConfig(), nil, models.OperationInit, evo)

	// Generation cost followed by evaluation cost, including a failed call's
	// partial spend.
	g.AddCost(0.013)
	g.AddCost(0.002)
	g.AddCost(0.0051)
	assert.InDelta(t, 0.0201, g.TotalCostUSD, 1e-9)
}

func TestGenome_ToWorkflowConfig(t *testing.T) {
	evo := models.EvolutionContext{RunID: "run-1", GenerationID: "gen-1", GenerationNumber: 3}
	g := models.NewGenome(twoNodeConfig(), []string{"parent-a", "parent-b"}, models.OperationCrossover, evo)
	g.SetFitnessAndFeedback(models.Fitness{Score: 0.5}, "ok")

	first := g.ToWorkflowConfig()
	second := g.ToWorkflowConfig()
	assert.Equal(t, first, second)

	// The export owns its memory; editing it must not leak into the genome.
	first.Nodes[0].HandOffs[0] = "elsewhere"
	first.Nodes[1].Memory["notes"] = "scribbled"
	assert.Equal(t, "answer", g.Config.Nodes[0].HandOffs[0])
	assert.Equal(t, "", g.Config.Nodes[1].Memory["notes"])
}

func TestGenome_Version(t *testing.T) {
	evo := models.EvolutionContext{RunID: "run-1", GenerationID: "gen-7", GenerationNumber: 7}
	g := models.NewGenome(twoNodeConfig(), []string{"parent-a"}, models.OperationMutation, evo)

	v := g.Version("wf-1")
	assert.Equal(t, g.WorkflowVersionID, v.ID)
	assert.Equal(t, "wf-1", v.WorkflowID)
	assert.Equal(t, "gen-7", v.GenerationID)
	assert.Equal(t, models.OperationMutation, v.Operation)
	assert.Equal(t, []string{"parent-a"}, v.ParentVersionIDs)
	assert.Equal(t, g.Config, v.Config)
}
