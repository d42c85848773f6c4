package operator

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"

	"github.com/eenlars/evoflow/pkg/llm"
	"github.com/eenlars/evoflow/pkg/models"
)

// Logger is the narrow logging interface the operators depend on.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type noopLogger struct{}

func (noopLogger) Infof(format string, args ...interface{})  {}
func (noopLogger) Errorf(format string, args ...interface{}) {}

// Options tunes the operator prompts.
type Options struct {
	// Model runs all operator prompts.
	Model string
	// AllowCycles is passed through to the repair step.
	AllowCycles bool
	// Temperature for generation prompts; judge prompts run at 0.
	Temperature float64
}

// Operators are the LLM-driven genetic operators. Every prompt goes through
// the shared llm.Client, never to a provider directly, so the client's
// request ceiling bounds operator fan-out too.
type Operators struct {
	llm    llm.Client
	logger Logger
	opts   Options
}

// NewOperators creates the operator set. logger may be nil.
func NewOperators(client llm.Client, logger Logger, opts Options) *Operators {
	if logger == nil {
		logger = noopLogger{}
	}
	if opts.Model == "" {
		opts.Model = "gpt-4.1-mini"
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.8
	}
	return &Operators{llm: client, logger: logger, opts: opts}
}

// RandomGenomeRequest describes one fresh-genome creation.
type RandomGenomeRequest struct {
	Input                    models.EvaluationInput
	ParentWorkflowVersionIDs []string
	EvolutionContext         models.EvolutionContext
	// ProblemAnalysis is optional prior analysis of the task domain,
	// injected into the idea-to-workflow prompt when present.
	ProblemAnalysis string
	// DeterministicTemplate skips the model call and builds the fixed
	// two-node template instead.
	DeterministicTemplate bool
}

// CreateRandom generates a fresh workflow and wraps it as a genome. The
// generation cost is added to the genome before it is returned. On failure
// the returned error is a *GenerationError carrying the partial spend.
func (o *Operators) CreateRandom(ctx context.Context, req RandomGenomeRequest) (*models.Genome, error) {
	if req.DeterministicTemplate {
		g := models.NewGenome(DefaultTemplate(req.Input.Goal), req.ParentWorkflowVersionIDs, models.OperationRandom, req.EvolutionContext)
		return g, nil
	}

	prompt := fmt.Sprintf("Goal:\n%s\n", req.Input.Goal)
	if req.ProblemAnalysis != "" {
		prompt += fmt.Sprintf("\nProblem analysis:\n%s\n", req.ProblemAnalysis)
	}
	if n := len(req.Input.Cases); n > 0 {
		prompt += fmt.Sprintf("\nExample task:\n%s\n", req.Input.Cases[0].Question)
	}
	prompt += "\nDesign an agent workflow for this goal."

	obj, err := llm.GenObject[models.WorkflowConfig](ctx, o.llm, llm.ObjectRequest{
		Model:       o.opts.Model,
		System:      workflowSchemaPrompt("Invent a small workflow of 1-4 agent nodes."),
		Prompt:      prompt,
		Temperature: o.opts.Temperature,
	})
	if err != nil {
		return nil, &GenerationError{UsdCost: llm.CostFromError(err), Err: err}
	}

	cfg, rerr := RepairWorkflow(obj.Data, o.opts.AllowCycles)
	if rerr != nil {
		return nil, &GenerationError{UsdCost: obj.UsdCost, Err: rerr}
	}

	g := models.NewGenome(cfg, req.ParentWorkflowVersionIDs, models.OperationRandom, req.EvolutionContext)
	g.AddCost(obj.UsdCost)
	return g, nil
}

// DefaultTemplate is the deterministic fallback workflow: a planner handing
// off to an answerer.
func DefaultTemplate(goal string) models.WorkflowConfig {
	return models.WorkflowConfig{
		EntryNodeID: "planner",
		Nodes: []models.WorkflowNodeConfig{
			{
				NodeID:       "planner",
				Description:  "Breaks the task into concrete steps",
				SystemPrompt: fmt.Sprintf("You are a planner. Goal: %s. List the steps needed to solve the task, briefly.", goal),
				ModelName:    "gpt-4.1-nano",
				HandOffs:     []string{"answerer"},
			},
			{
				NodeID:       "answerer",
				Description:  "Produces the final answer",
				SystemPrompt: "Follow the plan and answer the task directly and concisely.",
				ModelName:    "gpt-4.1-mini",
			},
		},
	}
}

// Jitter lightly perturbs a seed configuration so baseWorkflow seeding does
// not produce N identical genomes: one node's model moves along the model
// ladder and its prompt gets a varied emphasis suffix.
func Jitter(cfg models.WorkflowConfig, rng *rand.Rand) models.WorkflowConfig {
	out := cfg.Clone()
	if len(out.Nodes) == 0 {
		return out
	}
	ladder := []string{"gpt-4.1-nano", "gpt-4.1-mini", "gpt-4.1"}
	emphases := []string{
		"Be extremely concise.",
		"Double-check your reasoning before answering.",
		"Prefer cited facts over speculation.",
		"If unsure, state your best guess explicitly.",
	}
	i := rng.Intn(len(out.Nodes))
	out.Nodes[i].ModelName = ladder[rng.Intn(len(ladder))]
	out.Nodes[i].SystemPrompt += "\n" + emphases[rng.Intn(len(emphases))]
	return out
}

// Recommendation is the explorer's verdict on one structural pattern.
type Recommendation struct {
	Pattern         StructurePattern `json:"pattern"`
	ShouldImplement bool             `json:"shouldImplement"`
	Reason          string           `json:"reason"`
	UsdCost         float64          `json:"-"`
}

type exploreVerdict struct {
	ShouldImplement bool   `json:"shouldImplement"`
	Reason          string `json:"reason"`
}

// ExploreStructure weighs a randomly sampled structural pattern against the
// current workflow and its feedback. It recommends, it does not mutate; the
// judge consumes the recommendation.
func (o *Operators) ExploreStructure(ctx context.Context, cfg models.WorkflowConfig, feedback string, fitness models.Fitness, goal string, rng *rand.Rand) (*Recommendation, error) {
	pattern := SamplePattern(rng)

	obj, err := llm.GenObject[exploreVerdict](ctx, o.llm, llm.ObjectRequest{
		Model: o.opts.Model,
		System: `You review agent workflow structures. Given a workflow, its fitness and feedback, ` +
			`and one candidate structural change, decide whether applying the change is likely to improve fitness. ` +
			`Reply as {"shouldImplement": bool, "reason": "..."}.`,
		Prompt: fmt.Sprintf(
			"Goal: %s\n\nCurrent workflow:\n%s\n\nFitness: score=%.3f accuracy=%.3f cost=$%.4f time=%.1fs\nFeedback: %s\n\nCandidate change (%s): %s",
			goal, mustJSON(cfg), fitness.Score, fitness.Accuracy, fitness.TotalCostUSD, fitness.TotalTimeSeconds,
			feedback, pattern.Name, pattern.Description),
	})
	if err != nil {
		return nil, &GenerationError{UsdCost: llm.CostFromError(err), Err: err}
	}
	return &Recommendation{
		Pattern:         pattern,
		ShouldImplement: obj.Data.ShouldImplement,
		Reason:          obj.Data.Reason,
		UsdCost:         obj.UsdCost,
	}, nil
}

// StructureInfo is the explorer output the judge conditions on.
type StructureInfo struct {
	Pattern     StructurePattern
	Recommended bool
	Reason      string
}

// JudgeResult is a repaired, DAG-valid revised configuration plus the spend
// of producing it.
type JudgeResult struct {
	Config  models.WorkflowConfig
	UsdCost float64
}

// JudgeWithStructure asks the model for a complete revised workflow given
// the current one, its fitness breakdown, qualitative feedback and the
// explorer's structural recommendation. The reply is always repaired before
// acceptance; an invalid handoff graph never reaches the population.
func (o *Operators) JudgeWithStructure(ctx context.Context, cfg models.WorkflowConfig, feedback string, fitness models.Fitness, info StructureInfo) (*JudgeResult, error) {
	structureNote := fmt.Sprintf("Considered change (%s): %s — explorer advised against it (%s); apply it only if you disagree.",
		info.Pattern.Name, info.Pattern.Description, info.Reason)
	if info.Recommended {
		structureNote = fmt.Sprintf("Apply this structural change (%s): %s. Rationale: %s",
			info.Pattern.Name, info.Pattern.Description, info.Reason)
	}

	obj, err := llm.GenObject[models.WorkflowConfig](ctx, o.llm, llm.ObjectRequest{
		Model:  o.opts.Model,
		System: workflowSchemaPrompt("Revise the given workflow to improve its fitness. You may add, remove or edit nodes and change handoffs."),
		Prompt: fmt.Sprintf(
			"Current workflow:\n%s\n\nFitness: score=%.3f accuracy=%.3f cost=$%.4f time=%.1fs\nFeedback: %s\n\n%s\n\nReturn the complete revised workflow.",
			mustJSON(cfg), fitness.Score, fitness.Accuracy, fitness.TotalCostUSD, fitness.TotalTimeSeconds, feedback, structureNote),
		Temperature: o.opts.Temperature,
	})
	if err != nil {
		return nil, &GenerationError{UsdCost: llm.CostFromError(err), Err: err}
	}

	repaired, rerr := RepairWorkflow(obj.Data, o.opts.AllowCycles)
	if rerr != nil {
		return nil, &ValidationError{UsdCost: obj.UsdCost, Err: rerr}
	}
	return &JudgeResult{Config: repaired, UsdCost: obj.UsdCost}, nil
}

// Crossover blends two parent workflows into one child. The reply goes
// through the same repair gate as mutations.
func (o *Operators) Crossover(ctx context.Context, parentA, parentB models.WorkflowConfig, goal string) (*JudgeResult, error) {
	obj, err := llm.GenObject[models.WorkflowConfig](ctx, o.llm, llm.ObjectRequest{
		Model:  o.opts.Model,
		System: workflowSchemaPrompt("Combine the strongest parts of two parent workflows into one child workflow."),
		Prompt: fmt.Sprintf(
			"Goal: %s\n\nParent A:\n%s\n\nParent B:\n%s\n\nReturn one child workflow inheriting the best structure and prompts of both.",
			goal, mustJSON(parentA), mustJSON(parentB)),
		Temperature: o.opts.Temperature,
	})
	if err != nil {
		return nil, &GenerationError{UsdCost: llm.CostFromError(err), Err: err}
	}

	repaired, rerr := RepairWorkflow(obj.Data, o.opts.AllowCycles)
	if rerr != nil {
		return nil, &ValidationError{UsdCost: obj.UsdCost, Err: rerr}
	}
	return &JudgeResult{Config: repaired, UsdCost: obj.UsdCost}, nil
}

func workflowSchemaPrompt(task string) string {
	return task + ` Reply as a JSON workflow: {"entryNodeId": "...", "nodes": [{"nodeId": "...", ` +
		`"description": "...", "systemPrompt": "...", "modelName": "gpt-4.1-mini", "handOffs": ["..."]}]}. ` +
		`Every handOffs target must be an existing nodeId and the graph must stay acyclic.`
}

func mustJSON(v interface{}) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(b)
}
