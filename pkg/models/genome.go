package models

import (
	"time"

	"github.com/google/uuid"
)

// Fitness is the scored outcome of evaluating a genome's workflow.
type Fitness struct {
	Score            float64 `json:"score"`             // Primary quality score in [0,1]
	TotalCostUSD     float64 `json:"totalCostUsd"`      // Spend measured during the evaluation
	TotalTimeSeconds float64 `json:"totalTimeSeconds"`  // Wall time of the evaluation
	Accuracy         float64 `json:"accuracy"`          // Fraction of cases answered correctly
	Novelty          float64 `json:"novelty,omitempty"` // Optional structural-novelty component
}

// EvolutionContext pins a genome to the run and generation that created it.
// It is attached at creation and never changes for the genome's lifetime.
type EvolutionContext struct {
	RunID            string `json:"runId"`
	GenerationID     string `json:"generationId"`
	GenerationNumber int    `json:"generationNumber"`
}

// Genome wraps a workflow configuration with the metadata the evolutionary
// loop needs: lineage, creation context and a mutable evaluation slot.
//
// A genome exclusively owns its fitness record. ParentWorkflowVersionIDs are
// back-references into previously persisted versions, lookup only. Construction
// never validates the configuration; a genome may be partially built inside a
// mutation pipeline, so graph validation is deferred to execution time.
type Genome struct {
	Config                   WorkflowConfig   `json:"config"`
	WorkflowVersionID        string           `json:"workflowVersionId"`
	ParentWorkflowVersionIDs []string         `json:"parentWorkflowVersionIds,omitempty"`
	Operation                VersionOperation `json:"operation"`
	CreatedAt                time.Time        `json:"createdAt"`
	EvolutionContext         EvolutionContext `json:"evolutionContext"`

	Fitness          Fitness    `json:"fitness"`
	Feedback         string     `json:"feedback,omitempty"`
	HasBeenEvaluated bool       `json:"hasBeenEvaluated"`
	EvaluatedAt      *time.Time `json:"evaluatedAt,omitempty"`

	// TotalCostUSD accumulates all spend attributable to this genome,
	// generation plus evaluation, for run-level budget enforcement.
	TotalCostUSD float64 `json:"totalCostUsd"`
}

// NewGenome wraps a configuration as a genome with a fresh version id.
func NewGenome(cfg WorkflowConfig, parents []string, op VersionOperation, evo EvolutionContext) *Genome {
	return &Genome{
		Config:                   cfg,
		WorkflowVersionID:        uuid.NewString(),
		ParentWorkflowVersionIDs: append([]string(nil), parents...),
		Operation:                op,
		CreatedAt:                time.Now(),
		EvolutionContext:         evo,
	}
}

// SetFitnessAndFeedback fills the evaluation slot and marks the genome
// evaluated. A score of exactly 0 is a valid low fitness, not a sentinel;
// callers distinguish "unevaluated" via HasBeenEvaluated, never via the score.
// Re-evaluation overwrites the previous record.
func (g *Genome) SetFitnessAndFeedback(fitness Fitness, feedback string) {
	now := time.Now()
	g.Fitness = fitness
	g.Feedback = feedback
	g.HasBeenEvaluated = true
	g.EvaluatedAt = &now
}

// AddCost accumulates spend attributable to this genome. Partial cost from
// failed calls is added like any other, it is never dropped.
func (g *Genome) AddCost(usd float64) {
	g.TotalCostUSD += usd
}

// ToWorkflowConfig exports a clean configuration safe to execute or display,
// with no lineage or generation fields. Calling it twice yields identical
// output.
func (g *Genome) ToWorkflowConfig() WorkflowConfig {
	return g.Config.Clone()
}

// Version materializes the persistable record for this genome.
func (g *Genome) Version(workflowID string) WorkflowVersion {
	return WorkflowVersion{
		ID:               g.WorkflowVersionID,
		WorkflowID:       workflowID,
		GenerationID:     g.EvolutionContext.GenerationID,
		Operation:        g.Operation,
		ParentVersionIDs: append([]string(nil), g.ParentWorkflowVersionIDs...),
		Config:           g.Config.Clone(),
		CreatedAt:        g.CreatedAt,
	}
}
