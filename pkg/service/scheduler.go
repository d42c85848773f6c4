package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/eenlars/evoflow/pkg/evaluator"
	"github.com/eenlars/evoflow/pkg/models"
)

// GenomeEvaluator scores one genome and writes the result into its
// evaluation slot. The engine only knows this contract; the strategy behind
// it is fixed when the population's evaluator is constructed.
type GenomeEvaluator interface {
	EvaluateGenome(ctx context.Context, genome *models.Genome, evo models.EvolutionContext) (*evaluator.Result, error)
}

// evalOutcome is the isolated per-genome result slot. Workers never share
// these; the engine aggregates them only after all have settled.
type evalOutcome struct {
	genome  *models.Genome
	result  *evaluator.Result
	err     error
	skipped bool // already evaluated (carried elite), not re-run
}

// evalPool evaluates a population under the workflow-level concurrency
// ceiling. Model-call fan-out inside each evaluation is throttled separately
// by the llm client's own semaphore.
type evalPool struct {
	workers    int
	stallGuard bool
	timeout    time.Duration
	logger     Logger
}

// evaluateAll runs every unevaluated member and blocks until all outcomes
// (or their terminal failures) have settled; selection never proceeds on a
// partial result set. Outcomes come back in population order regardless of
// completion order.
func (p *evalPool) evaluateAll(ctx context.Context, ev GenomeEvaluator, pop *models.Population) []evalOutcome {
	genomes := pop.Genomes()
	outcomes := make([]evalOutcome, len(genomes))

	indexChan := make(chan int, len(genomes))
	for i := range genomes {
		indexChan <- i
	}
	close(indexChan)

	var wg sync.WaitGroup
	for w := 0; w < p.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexChan {
				outcomes[i] = p.evaluateOne(ctx, ev, genomes[i], pop.Context)
			}
		}()
	}
	wg.Wait()
	return outcomes
}

func (p *evalPool) evaluateOne(ctx context.Context, ev GenomeEvaluator, g *models.Genome, evo models.EvolutionContext) evalOutcome {
	if g.HasBeenEvaluated {
		// Elites carry their fitness across the generation boundary.
		return evalOutcome{genome: g, skipped: true}
	}

	evalCtx := ctx
	cancel := func() {}
	if p.stallGuard && p.timeout > 0 {
		evalCtx, cancel = context.WithTimeout(ctx, p.timeout)
	}
	defer cancel()

	res, err := ev.EvaluateGenome(evalCtx, g, evo)
	if err != nil {
		// A stalled evaluation is scored, not fatal: the genome stays in
		// the population with zero fitness and whatever it already cost.
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			p.logger.Errorf("Evaluation of version %s stalled, scoring zero", g.WorkflowVersionID)
			g.SetFitnessAndFeedback(models.Fitness{TotalCostUSD: g.TotalCostUSD}, "evaluation stalled and was cut off")
			return evalOutcome{genome: g, result: &evaluator.Result{Err: err}}
		}
		return evalOutcome{genome: g, err: err}
	}
	return evalOutcome{genome: g, result: res}
}
