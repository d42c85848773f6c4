package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/eenlars/evoflow/pkg/evaluator"
	"github.com/eenlars/evoflow/pkg/models"
	"github.com/eenlars/evoflow/pkg/operator"
	"github.com/eenlars/evoflow/pkg/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcEvaluator struct {
	mu    sync.Mutex
	calls []string
	fn    func(ctx context.Context, g *models.Genome) (*evaluator.Result, error)
}

func (f *funcEvaluator) EvaluateGenome(ctx context.Context, g *models.Genome, evo models.EvolutionContext) (*evaluator.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, g.WorkflowVersionID)
	f.mu.Unlock()
	return f.fn(ctx, g)
}

func testPopulation(t *testing.T, n int) *models.Population {
	t.Helper()
	evo := models.EvolutionContext{RunID: "r", GenerationID: "g", GenerationNumber: 1}
	pop := models.NewPopulation(evo)
	for i := 0; i < n; i++ {
		require.NoError(t, pop.Add(models.NewGenome(operator.DefaultTemplate("goal"), nil, models.OperationInit, evo)))
	}
	return pop
}

func TestEvalPool_EvaluateAll(t *testing.T) {
	t.Run("returns outcomes in population order", func(t *testing.T) {
		pop := testPopulation(t, 5)
		ev := &funcEvaluator{fn: func(ctx context.Context, g *models.Genome) (*evaluator.Result, error) {
			g.SetFitnessAndFeedback(models.Fitness{Score: 0.5}, "ok")
			return &evaluator.Result{Fitness: models.Fitness{Score: 0.5}}, nil
		}}
		pool := &evalPool{workers: 3, logger: noopLogger{}}

		outcomes := pool.evaluateAll(context.Background(), ev, pop)
		require.Len(t, outcomes, 5)
		for i, g := range pop.Genomes() {
			assert.Same(t, g, outcomes[i].genome)
			assert.NotNil(t, outcomes[i].result)
		}
		assert.Len(t, ev.calls, 5)
	})

	t.Run("skips genomes that carry an evaluation", func(t *testing.T) {
		pop := testPopulation(t, 3)
		elite := pop.Genomes()[0]
		elite.SetFitnessAndFeedback(models.Fitness{Score: 0.8}, "carried")

		ev := &funcEvaluator{fn: func(ctx context.Context, g *models.Genome) (*evaluator.Result, error) {
			g.SetFitnessAndFeedback(models.Fitness{Score: 0.1}, "fresh")
			return &evaluator.Result{}, nil
		}}
		pool := &evalPool{workers: 2, logger: noopLogger{}}

		outcomes := pool.evaluateAll(context.Background(), ev, pop)
		assert.True(t, outcomes[0].skipped)
		assert.Len(t, ev.calls, 2)
		// The carried fitness survives untouched.
		assert.InDelta(t, 0.8, elite.Fitness.Score, 1e-9)
	})

	t.Run("scores a stalled evaluation zero instead of failing the run", func(t *testing.T) {
		pop := testPopulation(t, 1)
		ev := &funcEvaluator{fn: func(ctx context.Context, g *models.Genome) (*evaluator.Result, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}}
		pool := &evalPool{workers: 1, stallGuard: true, timeout: 20 * time.Millisecond, logger: noopLogger{}}

		outcomes := pool.evaluateAll(context.Background(), ev, pop)
		require.Len(t, outcomes, 1)
		assert.NoError(t, outcomes[0].err)
		require.NotNil(t, outcomes[0].result)
		assert.Error(t, outcomes[0].result.Err)

		g := pop.Genomes()[0]
		assert.True(t, g.HasBeenEvaluated)
		assert.Zero(t, g.Fitness.Score)
		assert.Equal(t, "evaluation stalled and was cut off", g.Feedback)
	})

	t.Run("propagates non-timeout failures as fatal", func(t *testing.T) {
		pop := testPopulation(t, 1)
		boom := errors.New("store down")
		ev := &funcEvaluator{fn: func(ctx context.Context, g *models.Genome) (*evaluator.Result, error) {
			return nil, boom
		}}
		pool := &evalPool{workers: 1, logger: noopLogger{}}

		outcomes := pool.evaluateAll(context.Background(), ev, pop)
		require.Len(t, outcomes, 1)
		assert.ErrorIs(t, outcomes[0].err, boom)
	})
}

func TestApportion(t *testing.T) {
	t.Run("splits by largest remainder", func(t *testing.T) {
		c, m, r := apportion(5, 0.3, 0.5, 0.2)
		assert.Equal(t, 2, c)
		assert.Equal(t, 2, m)
		assert.Equal(t, 1, r)
	})

	t.Run("exact split needs no remainder pass", func(t *testing.T) {
		c, m, r := apportion(10, 0.3, 0.5, 0.2)
		assert.Equal(t, 3, c)
		assert.Equal(t, 5, m)
		assert.Equal(t, 2, r)
	})

	t.Run("zero ratios default to random injection", func(t *testing.T) {
		c, m, r := apportion(4, 0, 0, 0)
		assert.Equal(t, 0, c)
		assert.Equal(t, 0, m)
		assert.Equal(t, 4, r)
	})

	t.Run("no slots yields nothing", func(t *testing.T) {
		c, m, r := apportion(0, 0.3, 0.5, 0.2)
		assert.Zero(t, c+m+r)
	})
}

func TestEngineRank(t *testing.T) {
	evo := models.EvolutionContext{RunID: "r", GenerationID: "g"}
	eng := &EvolutionEngine{cfg: Config{Weights: operator.Weights{Score: 1}}.withDefaults()}

	mk := func(score, cost float64, at time.Time) *models.Genome {
		g := models.NewGenome(operator.DefaultTemplate("goal"), nil, models.OperationInit, evo)
		g.CreatedAt = at
		g.TotalCostUSD = cost
		g.SetFitnessAndFeedback(models.Fitness{Score: score}, "")
		return g
	}

	now := time.Now()
	low := mk(0.2, 0, now)
	highLateCheap := mk(0.8, 0.01, now.Add(time.Minute))
	highEarlyCheap := mk(0.8, 0.01, now)
	highExpensive := mk(0.8, 0.05, now)

	ranked := eng.rank([]*models.Genome{low, highLateCheap, highExpensive, highEarlyCheap})
	// Score first, then cheaper, then older.
	assert.Same(t, highEarlyCheap, ranked[0])
	assert.Same(t, highLateCheap, ranked[1])
	assert.Same(t, highExpensive, ranked[2])
	assert.Same(t, low, ranked[3])
}

// Elite selection runs on the combined score. Under cost pressure a cheaper
// genome outranks a higher raw score, so the retained elite is the
// combined-score best, not the raw-score best.
func TestEngineRank_CombinedScore(t *testing.T) {
	evo := models.EvolutionContext{RunID: "r", GenerationID: "g"}
	eng := &EvolutionEngine{cfg: Config{Weights: operator.Weights{Score: 0.5, Cost: 0.5}}.withDefaults()}

	mk := func(score, cost float64) *models.Genome {
		g := models.NewGenome(operator.DefaultTemplate("goal"), nil, models.OperationInit, evo)
		g.SetFitnessAndFeedback(models.Fitness{Score: score, TotalCostUSD: cost}, "")
		return g
	}

	cheap := mk(0.7, 0.01)  // within the cost baseline, full budget credit
	pricey := mk(0.9, 0.50) // at the cost threshold, zero budget credit

	ranked := eng.rank([]*models.Genome{pricey, cheap})
	assert.Same(t, cheap, ranked[0])
	assert.Same(t, pricey, ranked[1])
}

func TestEngineSnapshotOrder(t *testing.T) {
	gen := &models.Generation{ID: "gen-1"}
	versions := []models.WorkflowVersion{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	ids := func(vs []models.WorkflowVersion) []string {
		out := make([]string, len(vs))
		for i, v := range vs {
			out[i] = v.ID
		}
		return out
	}

	t.Run("keeps store order without a snapshot", func(t *testing.T) {
		eng := &EvolutionEngine{snapshots: snapshot.NewMemoryStore(), logger: noopLogger{}}
		got := eng.snapshotOrder(context.Background(), "run-1", gen, versions)
		assert.Equal(t, []string{"a", "b", "c"}, ids(got))
	})

	t.Run("restores the recorded selection order", func(t *testing.T) {
		snaps := snapshot.NewMemoryStore()
		require.NoError(t, snaps.Save(context.Background(), snapshot.Snapshot{
			RunID:        "run-1",
			GenerationID: "gen-1",
			VersionIDs:   []string{"c", "a"},
		}))
		eng := &EvolutionEngine{snapshots: snaps, logger: noopLogger{}}

		// Versions the snapshot does not name trail in store order.
		got := eng.snapshotOrder(context.Background(), "run-1", gen, versions)
		assert.Equal(t, []string{"c", "a", "b"}, ids(got))
	})

	t.Run("ignores a snapshot from another generation", func(t *testing.T) {
		snaps := snapshot.NewMemoryStore()
		require.NoError(t, snaps.Save(context.Background(), snapshot.Snapshot{
			RunID:        "run-1",
			GenerationID: "gen-0",
			VersionIDs:   []string{"c", "b", "a"},
		}))
		eng := &EvolutionEngine{snapshots: snaps, logger: noopLogger{}}

		got := eng.snapshotOrder(context.Background(), "run-1", gen, versions)
		assert.Equal(t, []string{"a", "b", "c"}, ids(got))
	})
}
