package evaluator

import (
	"context"

	"github.com/eenlars/evoflow/pkg/models"
	"github.com/eenlars/evoflow/pkg/runner"
)

// PromptOnlySkippedFeedback marks a skipped prompt-only evaluation. The
// exact string is part of the contract: downstream consumers use it to tell
// a short-circuited genome apart from a genuinely high-performing one,
// together with Result.Skipped.
const PromptOnlySkippedFeedback = "Prompt-only workflow - evaluation skipped"

// CaseSummary is the judged outcome of one evaluation case.
type CaseSummary struct {
	CaseID   string  `json:"caseId"`
	Score    float64 `json:"score"`
	Correct  bool    `json:"correct"`
	Feedback string  `json:"feedback,omitempty"`
}

// Result is the outcome of evaluating one genome. Cost and wall time are
// always filled, success or not, because fitness weighting downstream
// combines score, cost and time.
type Result struct {
	Fitness    models.Fitness
	Feedback   string
	CostUSD    float64
	Transcript string
	Summaries  []CaseSummary
	// Skipped marks the prompt-only short-circuit, not a real evaluation.
	Skipped bool
	// Err is the execution failure, if any. The fitness is then zero but
	// CostUSD still holds the partial spend of the failed attempt.
	Err error
}

// Evaluator scores one genome against the evaluation input it was built
// with. The strategy is chosen at population-construction time; the
// orchestration loop never inspects which one it got.
//
// Evaluate returns a non-nil error only for faults outside the genome's
// control (context cancellation, persistence failures). A failing workflow
// execution is a valid outcome: it comes back as a Result with Err set and
// the partial cost attached, so the loop can still rank and charge it.
type Evaluator interface {
	Evaluate(ctx context.Context, genome *models.Genome, evo models.EvolutionContext) (*Result, error)
}

// WorkflowRunner is the slice of the execution engine evaluators use.
type WorkflowRunner interface {
	Create(cfg models.WorkflowConfig) (*runner.Workflow, error)
	Run(ctx context.Context, wf *runner.Workflow, task string, runID string) (*runner.RunResult, error)
}

// InvocationRecorder persists the invocation records evaluators produce.
// A nil recorder disables recording.
type InvocationRecorder interface {
	StartInvocation(inv models.WorkflowInvocation) error
	FinalizeInvocation(inv models.WorkflowInvocation) error
}

// Logger is the narrow logging interface evaluators depend on.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type noopLogger struct{}

func (noopLogger) Infof(format string, args ...interface{})  {}
func (noopLogger) Errorf(format string, args ...interface{}) {}

func promptOnlyResult() *Result {
	return &Result{
		Fitness:  models.Fitness{Score: 1.0, Accuracy: 1.0},
		Feedback: PromptOnlySkippedFeedback,
		Skipped:  true,
	}
}
