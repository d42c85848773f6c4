package evaluator_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/eenlars/evoflow/pkg/evaluator"
	"github.com/eenlars/evoflow/pkg/llm"
	"github.com/eenlars/evoflow/pkg/models"
	"github.com/eenlars/evoflow/pkg/observer"
	"github.com/eenlars/evoflow/pkg/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// answerClient serves workflow node calls and judge calls from one scripted
// source: judge prompts (recognized by the grading system prompt) get the
// verdict JSON, everything else gets the node answer.
type answerClient struct {
	mu         sync.Mutex
	nodeAnswer string
	verdict    string
	nodeCost   float64
	judgeCost  float64
	nodeErr    error
	calls      int
}

func (c *answerClient) SendAI(ctx context.Context, req llm.Request) (*llm.Response, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	for _, m := range req.Messages {
		if m.Role == "system" && strings.Contains(m.Content, "grade workflow answers") {
			return &llm.Response{Content: c.verdict, Model: req.Model, UsdCost: c.judgeCost}, nil
		}
	}
	if c.nodeErr != nil {
		return nil, c.nodeErr
	}
	return &llm.Response{Content: c.nodeAnswer, Model: req.Model, UsdCost: c.nodeCost}, nil
}

type recordedInvocations struct {
	mu        sync.Mutex
	started   []models.WorkflowInvocation
	finalized []models.WorkflowInvocation
}

func (r *recordedInvocations) StartInvocation(inv models.WorkflowInvocation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, inv)
	return nil
}

func (r *recordedInvocations) FinalizeInvocation(inv models.WorkflowInvocation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finalized = append(r.finalized, inv)
	return nil
}

func singleNodeGenome(evo models.EvolutionContext) *models.Genome {
	cfg := models.WorkflowConfig{
		EntryNodeID: "answer",
		Nodes: []models.WorkflowNodeConfig{
			{NodeID: "answer", SystemPrompt: "answer the tasks", ModelName: "gpt-4.1-mini"},
		},
	}
	return models.NewGenome(cfg, nil, models.OperationInit, evo)
}

func textInput() models.EvaluationInput {
	return models.EvaluationInput{
		Type: models.InputTypeText,
		Goal: "answer arithmetic questions",
		Cases: []models.EvaluationCase{
			{ID: "c1", Question: "2+2?", Expected: "4"},
			{ID: "c2", Question: "3*3?", Expected: "9"},
		},
	}
}

func newTestRunner(client llm.Client) *runner.Runner {
	return runner.NewRunner(client, nil, observer.NewObserverRegistry(16), nil, runner.Options{})
}

func TestAggregatedEvaluator_PromptOnlyShortCircuit(t *testing.T) {
	client := &answerClient{}
	input := models.EvaluationInput{Type: models.InputTypePromptOnly, Goal: "just a prompt"}
	ev := evaluator.NewAggregatedEvaluator(newTestRunner(client), client, "", input, nil, nil)
	evo := models.EvolutionContext{RunID: "run-1", GenerationID: "gen-1", GenerationNumber: 1}

	res, err := ev.Evaluate(context.Background(), singleNodeGenome(evo), evo)
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Fitness.Score)
	assert.Equal(t, 1.0, res.Fitness.Accuracy)
	assert.Equal(t, 0.0, res.CostUSD)
	assert.Equal(t, "Prompt-only workflow - evaluation skipped", res.Feedback)
	assert.True(t, res.Skipped)
	// The workflow runner is never invoked.
	assert.Equal(t, 0, client.calls)
}

func TestAggregatedEvaluator_AveragesJudgedCases(t *testing.T) {
	client := &answerClient{
		nodeAnswer: "1. 4\n2. 9",
		verdict: `{"cases": [
			{"caseId": "c1", "score": 1.0, "correct": true, "feedback": "exact"},
			{"caseId": "c2", "score": 0.5, "correct": false, "feedback": "close"}
		]}`,
		nodeCost:  0.010,
		judgeCost: 0.002,
	}
	rec := &recordedInvocations{}
	ev := evaluator.NewAggregatedEvaluator(newTestRunner(client), client, "gpt-4.1-mini", textInput(), rec, nil)
	evo := models.EvolutionContext{RunID: "run-1", GenerationID: "gen-1", GenerationNumber: 1}

	res, err := ev.Evaluate(context.Background(), singleNodeGenome(evo), evo)
	require.NoError(t, err)
	require.NoError(t, res.Err)
	assert.InDelta(t, 0.75, res.Fitness.Score, 1e-9)
	assert.InDelta(t, 0.5, res.Fitness.Accuracy, 1e-9)
	assert.InDelta(t, 0.012, res.CostUSD, 1e-9)
	assert.Greater(t, res.Fitness.TotalTimeSeconds, 0.0)
	require.Len(t, res.Summaries, 2)
	assert.Equal(t, "c1", res.Summaries[0].CaseID)

	// One execution covering all cases records exactly one invocation.
	require.Len(t, rec.finalized, 1)
	assert.Equal(t, models.InvocationStatusCompleted, rec.finalized[0].Status)
	assert.InDelta(t, 0.012, rec.finalized[0].UsdCost, 1e-9)
}

func TestAggregatedEvaluator_ExecutionFailureKeepsPartialCost(t *testing.T) {
	client := &answerClient{nodeErr: &llm.CallError{UsdCost: 0.003, Err: errors.New("provider exploded")}}
	rec := &recordedInvocations{}
	ev := evaluator.NewAggregatedEvaluator(newTestRunner(client), client, "", textInput(), rec, nil)
	evo := models.EvolutionContext{RunID: "run-1", GenerationID: "gen-1", GenerationNumber: 1}

	res, err := ev.Evaluate(context.Background(), singleNodeGenome(evo), evo)
	require.NoError(t, err)
	require.Error(t, res.Err)
	assert.Equal(t, 0.0, res.Fitness.Score)
	assert.InDelta(t, 0.003, res.CostUSD, 1e-9)
	assert.InDelta(t, 0.003, res.Fitness.TotalCostUSD, 1e-9)

	require.Len(t, rec.finalized, 1)
	assert.Equal(t, models.InvocationStatusFailed, rec.finalized[0].Status)
}

func TestPerCaseEvaluator_OneInvocationPerCase(t *testing.T) {
	client := &answerClient{
		nodeAnswer: "the answer",
		verdict:    `{"cases": [{"caseId": "c1", "score": 1.0, "correct": true, "feedback": "ok"}]}`,
	}
	// The scripted verdict always claims c1; only c1's verdict will match by id.
	client.verdict = `{"cases": [
		{"caseId": "c1", "score": 1.0, "correct": true, "feedback": "ok"},
		{"caseId": "c2", "score": 1.0, "correct": true, "feedback": "ok"}
	]}`
	rec := &recordedInvocations{}
	ev := evaluator.NewPerCaseEvaluator(newTestRunner(client), client, "", textInput(), rec, nil)
	evo := models.EvolutionContext{RunID: "run-1", GenerationID: "gen-1", GenerationNumber: 1}

	res, err := ev.Evaluate(context.Background(), singleNodeGenome(evo), evo)
	require.NoError(t, err)
	require.NoError(t, res.Err)
	assert.Len(t, rec.started, 2)
	assert.Len(t, rec.finalized, 2)
	assert.Equal(t, 1.0, res.Fitness.Score)
}

func TestGPAdapter(t *testing.T) {
	evo := models.EvolutionContext{RunID: "run-1", GenerationID: "gen-1", GenerationNumber: 1}

	t.Run("writes fitness and cost into the genome", func(t *testing.T) {
		client := &answerClient{
			nodeAnswer: "1. 4\n2. 9",
			verdict: `{"cases": [
				{"caseId": "c1", "score": 1.0, "correct": true, "feedback": ""},
				{"caseId": "c2", "score": 1.0, "correct": true, "feedback": ""}
			]}`,
			nodeCost: 0.004,
		}
		adapter := evaluator.NewGPAdapter(evaluator.NewAggregatedEvaluator(newTestRunner(client), client, "", textInput(), nil, nil))
		g := singleNodeGenome(evo)

		_, err := adapter.EvaluateGenome(context.Background(), g, evo)
		require.NoError(t, err)
		assert.True(t, g.HasBeenEvaluated)
		assert.Equal(t, 1.0, g.Fitness.Score)
		assert.InDelta(t, 0.004, g.TotalCostUSD, 1e-9)
	})

	t.Run("failed evaluation still charges and scores zero", func(t *testing.T) {
		client := &answerClient{nodeErr: &llm.CallError{UsdCost: 0.006, Err: errors.New("timeout")}}
		adapter := evaluator.NewGPAdapter(evaluator.NewAggregatedEvaluator(newTestRunner(client), client, "", textInput(), nil, nil))
		g := singleNodeGenome(evo)
		g.AddCost(0.001) // generation cost already on the genome

		res, err := adapter.EvaluateGenome(context.Background(), g, evo)
		require.NoError(t, err)
		require.Error(t, res.Err)
		assert.True(t, g.HasBeenEvaluated)
		assert.Equal(t, 0.0, g.Fitness.Score)
		assert.Contains(t, g.Feedback, "evaluation failed")
		// generation cost + partial evaluation cost, nothing dropped
		assert.InDelta(t, 0.007, g.TotalCostUSD, 1e-9)
	})
}
