package evaluator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/eenlars/evoflow/pkg/llm"
	"github.com/eenlars/evoflow/pkg/models"
	"github.com/google/uuid"
)

// AggregatedEvaluator runs the workflow exactly once against all test cases
// bundled into a single structured prompt, then averages the judged per-case
// results. One execution instead of N trades per-case precision for cost.
type AggregatedEvaluator struct {
	runner     WorkflowRunner
	llm        llm.Client
	judgeModel string
	input      models.EvaluationInput
	recorder   InvocationRecorder
	logger     Logger
}

// NewAggregatedEvaluator creates the aggregated strategy for one evaluation
// input. recorder and logger may be nil.
func NewAggregatedEvaluator(r WorkflowRunner, client llm.Client, judgeModel string, input models.EvaluationInput, recorder InvocationRecorder, logger Logger) *AggregatedEvaluator {
	if judgeModel == "" {
		judgeModel = "gpt-4.1-mini"
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &AggregatedEvaluator{
		runner:     r,
		llm:        client,
		judgeModel: judgeModel,
		input:      input,
		recorder:   recorder,
		logger:     logger,
	}
}

func (e *AggregatedEvaluator) Evaluate(ctx context.Context, genome *models.Genome, evo models.EvolutionContext) (*Result, error) {
	if e.input.Type == models.InputTypePromptOnly {
		return promptOnlyResult(), nil
	}

	start := time.Now()
	inv := models.WorkflowInvocation{
		ID:                uuid.NewString(),
		GenerationID:      evo.GenerationID,
		WorkflowVersionID: genome.WorkflowVersionID,
		Status:            models.InvocationStatusRunning,
		StartTime:         start,
	}
	if e.recorder != nil {
		if err := e.recorder.StartInvocation(inv); err != nil {
			return nil, fmt.Errorf("record invocation: %w", err)
		}
	}

	res := e.execute(ctx, genome, evo)
	res.Fitness.TotalTimeSeconds = time.Since(start).Seconds()
	res.Fitness.TotalCostUSD = res.CostUSD

	if e.recorder != nil {
		end := time.Now()
		inv.EndTime = &end
		inv.UsdCost = res.CostUSD
		inv.Accuracy = res.Fitness.Accuracy
		inv.Fitness = res.Fitness.Score
		inv.Feedback = res.Feedback
		inv.Status = models.InvocationStatusCompleted
		if res.Err != nil {
			inv.Status = models.InvocationStatusFailed
			inv.ErrorMsg = res.Err.Error()
		}
		if err := e.recorder.FinalizeInvocation(inv); err != nil {
			return nil, fmt.Errorf("finalize invocation: %w", err)
		}
	}
	return res, nil
}

func (e *AggregatedEvaluator) execute(ctx context.Context, genome *models.Genome, evo models.EvolutionContext) *Result {
	wf, err := e.runner.Create(genome.ToWorkflowConfig())
	if err != nil {
		return &Result{Err: fmt.Errorf("compile workflow: %w", err)}
	}

	task := combinedTask(e.input)
	run, err := e.runner.Run(ctx, wf, task, evo.RunID)
	cost := 0.0
	if run != nil {
		cost = run.UsdCost
	}
	if err != nil {
		return &Result{CostUSD: cost, Err: fmt.Errorf("execute workflow: %w", err)}
	}
	if !run.Success {
		var parts []string
		for id, nerr := range run.NodeErrors {
			parts = append(parts, fmt.Sprintf("%s: %v", id, nerr))
		}
		return &Result{
			CostUSD:    cost,
			Transcript: run.Output,
			Err:        fmt.Errorf("workflow execution failed: %s", strings.Join(parts, "; ")),
		}
	}

	summaries, judgeCost, err := judgeCases(ctx, e.llm, e.judgeModel, e.input.Cases, run.Output)
	cost += judgeCost
	if err != nil {
		return &Result{CostUSD: cost, Transcript: run.Output, Err: fmt.Errorf("judge answers: %w", err)}
	}

	fitness, feedback := averageSummaries(summaries)
	return &Result{
		Fitness:    fitness,
		Feedback:   feedback,
		CostUSD:    cost,
		Transcript: run.Output,
		Summaries:  summaries,
	}
}

// combinedTask bundles every case into one numbered prompt, in the stable
// order of the input.
func combinedTask(input models.EvaluationInput) string {
	var sb strings.Builder
	sb.WriteString(input.Goal)
	sb.WriteString("\n\nAnswer every task below. Number your answers to match.\n")
	for i, c := range input.Cases {
		fmt.Fprintf(&sb, "\n%d. %s", i+1, c.Question)
		if c.FileName != "" {
			fmt.Fprintf(&sb, " (attachment: %s)", c.FileName)
		}
	}
	return sb.String()
}

type caseVerdict struct {
	CaseID   string  `json:"caseId"`
	Score    float64 `json:"score"`
	Correct  bool    `json:"correct"`
	Feedback string  `json:"feedback"`
}

type judgeReply struct {
	Cases []caseVerdict `json:"cases"`
}

// judgeCases asks the judge model to score the transcript against every
// case's expected answer. Missing verdicts score zero rather than erroring,
// so a sloppy judge reply still produces a ranked result.
func judgeCases(ctx context.Context, client llm.Client, model string, cases []models.EvaluationCase, transcript string) ([]CaseSummary, float64, error) {
	var sb strings.Builder
	sb.WriteString("Tasks and expected answers:\n")
	for i, c := range cases {
		fmt.Fprintf(&sb, "%d. id=%s question=%q expected=%q\n", i+1, c.ID, c.Question, c.Expected)
	}
	sb.WriteString("\nWorkflow answers:\n")
	sb.WriteString(transcript)

	obj, err := llm.GenObject[judgeReply](ctx, client, llm.ObjectRequest{
		Model: model,
		System: `You grade workflow answers against expected answers. For every task return ` +
			`{"caseId": "...", "score": 0..1, "correct": bool, "feedback": "one short sentence"}. ` +
			`Reply as {"cases": [...]}.`,
		Prompt: sb.String(),
	})
	if err != nil {
		return nil, llm.CostFromError(err), err
	}

	byID := make(map[string]caseVerdict, len(obj.Data.Cases))
	for _, v := range obj.Data.Cases {
		byID[v.CaseID] = v
	}
	summaries := make([]CaseSummary, 0, len(cases))
	for _, c := range cases {
		v, ok := byID[c.ID]
		if !ok {
			summaries = append(summaries, CaseSummary{CaseID: c.ID, Feedback: "no verdict returned"})
			continue
		}
		if v.Score < 0 {
			v.Score = 0
		}
		if v.Score > 1 {
			v.Score = 1
		}
		summaries = append(summaries, CaseSummary{CaseID: c.ID, Score: v.Score, Correct: v.Correct, Feedback: v.Feedback})
	}
	return summaries, obj.UsdCost, nil
}

func averageSummaries(summaries []CaseSummary) (models.Fitness, string) {
	if len(summaries) == 0 {
		return models.Fitness{}, "no cases evaluated"
	}
	var scoreSum float64
	correct := 0
	parts := make([]string, 0, len(summaries))
	for _, s := range summaries {
		scoreSum += s.Score
		if s.Correct {
			correct++
		}
		if s.Feedback != "" {
			parts = append(parts, fmt.Sprintf("%s: %s", s.CaseID, s.Feedback))
		}
	}
	fitness := models.Fitness{
		Score:    scoreSum / float64(len(summaries)),
		Accuracy: float64(correct) / float64(len(summaries)),
	}
	return fitness, strings.Join(parts, " | ")
}
