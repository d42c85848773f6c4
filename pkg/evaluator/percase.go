package evaluator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/eenlars/evoflow/pkg/llm"
	"github.com/eenlars/evoflow/pkg/models"
	"github.com/eenlars/evoflow/pkg/runner"
	"github.com/google/uuid"
)

// PerCaseEvaluator runs the workflow once per test case and averages the
// results. N executions instead of one buys per-case precision; kept for
// configurations that prefer precision over cost. One invocation is recorded
// per case.
type PerCaseEvaluator struct {
	runner     WorkflowRunner
	llm        llm.Client
	judgeModel string
	input      models.EvaluationInput
	recorder   InvocationRecorder
	logger     Logger
}

// NewPerCaseEvaluator creates the per-case strategy for one evaluation
// input. recorder and logger may be nil.
func NewPerCaseEvaluator(r WorkflowRunner, client llm.Client, judgeModel string, input models.EvaluationInput, recorder InvocationRecorder, logger Logger) *PerCaseEvaluator {
	if judgeModel == "" {
		judgeModel = "gpt-4.1-mini"
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &PerCaseEvaluator{
		runner:     r,
		llm:        client,
		judgeModel: judgeModel,
		input:      input,
		recorder:   recorder,
		logger:     logger,
	}
}

func (e *PerCaseEvaluator) Evaluate(ctx context.Context, genome *models.Genome, evo models.EvolutionContext) (*Result, error) {
	if e.input.Type == models.InputTypePromptOnly {
		return promptOnlyResult(), nil
	}

	start := time.Now()
	wf, err := e.runner.Create(genome.ToWorkflowConfig())
	if err != nil {
		return &Result{
			Err:     fmt.Errorf("compile workflow: %w", err),
			Fitness: models.Fitness{TotalTimeSeconds: time.Since(start).Seconds()},
		}, nil
	}

	var (
		totalCost   float64
		summaries   []CaseSummary
		transcripts []string
		failures    []string
	)

	for _, c := range e.input.Cases {
		caseStart := time.Now()
		inv := models.WorkflowInvocation{
			ID:                uuid.NewString(),
			GenerationID:      evo.GenerationID,
			WorkflowVersionID: genome.WorkflowVersionID,
			Status:            models.InvocationStatusRunning,
			StartTime:         caseStart,
		}
		if e.recorder != nil {
			if err := e.recorder.StartInvocation(inv); err != nil {
				return nil, fmt.Errorf("record invocation: %w", err)
			}
		}

		summary, transcript, caseCost, caseErr := e.evaluateCase(ctx, wf, c, evo)
		totalCost += caseCost
		summaries = append(summaries, summary)
		if transcript != "" {
			transcripts = append(transcripts, fmt.Sprintf("[%s]\n%s", c.ID, transcript))
		}
		if caseErr != nil {
			// One bad case doesn't abort the genome; it scores zero.
			failures = append(failures, fmt.Sprintf("%s: %v", c.ID, caseErr))
			e.logger.Errorf("Case %s failed for version %s: %v", c.ID, genome.WorkflowVersionID, caseErr)
		}

		if e.recorder != nil {
			end := time.Now()
			inv.EndTime = &end
			inv.UsdCost = caseCost
			inv.Accuracy = summary.Score
			inv.Fitness = summary.Score
			inv.Feedback = summary.Feedback
			inv.Status = models.InvocationStatusCompleted
			if caseErr != nil {
				inv.Status = models.InvocationStatusFailed
				inv.ErrorMsg = caseErr.Error()
			}
			if err := e.recorder.FinalizeInvocation(inv); err != nil {
				return nil, fmt.Errorf("finalize invocation: %w", err)
			}
		}

		if ctx.Err() != nil {
			break
		}
	}

	fitness, feedback := averageSummaries(summaries)
	fitness.TotalCostUSD = totalCost
	fitness.TotalTimeSeconds = time.Since(start).Seconds()

	res := &Result{
		Fitness:    fitness,
		Feedback:   feedback,
		CostUSD:    totalCost,
		Transcript: strings.Join(transcripts, "\n\n"),
		Summaries:  summaries,
	}
	if len(failures) == len(e.input.Cases) && len(failures) > 0 {
		res.Fitness.Score = 0
		res.Fitness.Accuracy = 0
		res.Err = fmt.Errorf("all cases failed: %s", strings.Join(failures, "; "))
	}
	return res, nil
}

func (e *PerCaseEvaluator) evaluateCase(ctx context.Context, wf *runner.Workflow, c models.EvaluationCase, evo models.EvolutionContext) (CaseSummary, string, float64, error) {
	task := c.Question
	if c.FileName != "" {
		task += fmt.Sprintf("\n(attachment: %s)", c.FileName)
	}

	run, err := e.runner.Run(ctx, wf, task, evo.RunID)
	cost := 0.0
	transcript := ""
	if run != nil {
		cost = run.UsdCost
		transcript = run.Output
	}
	if err != nil {
		return CaseSummary{CaseID: c.ID, Feedback: "execution failed"}, transcript, cost, err
	}
	if !run.Success {
		return CaseSummary{CaseID: c.ID, Feedback: "execution failed"}, transcript, cost, fmt.Errorf("workflow execution failed")
	}

	summaries, judgeCost, err := judgeCases(ctx, e.llm, e.judgeModel, []models.EvaluationCase{c}, run.Output)
	cost += judgeCost
	if err != nil {
		return CaseSummary{CaseID: c.ID, Feedback: "judging failed"}, transcript, cost, err
	}
	return summaries[0], transcript, cost, nil
}
