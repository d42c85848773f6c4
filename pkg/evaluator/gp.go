package evaluator

import (
	"context"
	"fmt"

	"github.com/eenlars/evoflow/pkg/models"
)

// GPAdapter adapts an Evaluator to the genetic-programming loop's shape:
// genome in, scored genome out. It charges the genome for every attempt,
// failed ones included, and converts execution failures into a recorded
// zero fitness so the genome stays rankable inside its population.
type GPAdapter struct {
	inner Evaluator
}

// NewGPAdapter wraps an evaluation strategy for the evolution engine.
func NewGPAdapter(inner Evaluator) *GPAdapter {
	return &GPAdapter{inner: inner}
}

// EvaluateGenome evaluates the genome and writes the outcome into its
// evaluation slot. A non-nil error is a fault outside the genome's control;
// the genome is then left unscored for the caller to handle.
func (a *GPAdapter) EvaluateGenome(ctx context.Context, genome *models.Genome, evo models.EvolutionContext) (*Result, error) {
	res, err := a.inner.Evaluate(ctx, genome, evo)
	if err != nil {
		return nil, err
	}

	// Partial cost from failed attempts is charged like any other.
	genome.AddCost(res.CostUSD)

	if res.Err != nil {
		fitness := models.Fitness{
			TotalCostUSD:     res.CostUSD,
			TotalTimeSeconds: res.Fitness.TotalTimeSeconds,
		}
		genome.SetFitnessAndFeedback(fitness, fmt.Sprintf("evaluation failed: %v", res.Err))
		return res, nil
	}

	genome.SetFitnessAndFeedback(res.Fitness, res.Feedback)
	return res, nil
}
