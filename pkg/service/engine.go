package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"time"

	"github.com/eenlars/evoflow/pkg/models"
	"github.com/eenlars/evoflow/pkg/observer"
	"github.com/eenlars/evoflow/pkg/operator"
	"github.com/eenlars/evoflow/pkg/rules"
	"github.com/eenlars/evoflow/pkg/snapshot"
	"github.com/eenlars/evoflow/pkg/storage"
)

// EngineDeps are the collaborators the engine is wired with at process
// start. Snapshots and Registry may be nil; the engine then runs without
// resume snapshots or observation events.
type EngineDeps struct {
	Store     storage.Store
	Runs      *RunService
	Evaluator GenomeEvaluator
	Operators *operator.Operators
	Snapshots snapshot.Store
	Registry  *observer.ObserverRegistry
	Logger    Logger
}

// EvolutionEngine orchestrates one run through the generation state machine:
// seeding, evaluating, selecting, reproducing, terminating. The population
// and the run's records are owned exclusively by the engine for the duration
// of a generation step.
type EvolutionEngine struct {
	store     storage.Store
	runs      *RunService
	evaluator GenomeEvaluator
	ops       *operator.Operators
	snapshots snapshot.Store
	registry  *observer.ObserverRegistry
	logger    Logger
	cfg       Config
	stopSet   *rules.StopSet
	pool      *evalPool
	metrics   engineMetrics
	rng       *rand.Rand
}

// NewEvolutionEngine validates the configuration and builds the engine.
// Invalid weights or stop-rule expressions fail here, at startup, never
// mid-run.
func NewEvolutionEngine(deps EngineDeps, cfg Config) (*EvolutionEngine, error) {
	cfg = cfg.withDefaults()
	if deps.Logger == nil {
		deps.Logger = noopLogger{}
	}

	if err := cfg.Weights.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fitness weights: %w", err)
	}
	// Weight sums are trusted as configured, only drift is reported.
	if sum := cfg.Weights.Sum(); math.Abs(sum-1) > 0.01 {
		deps.Logger.Infof("Fitness weights sum to %.3f, not 1; scoring proceeds un-normalized", sum)
	}

	var stopSet *rules.StopSet
	if len(cfg.StopRules) > 0 {
		stopSet = rules.NewStopSet(cfg.StopRules, rules.NewExprEvaluator())
		if err := stopSet.Validate(rules.Env(0, 0, 0, 0, 0, cfg.PopulationSize)); err != nil {
			return nil, fmt.Errorf("invalid stop rule: %w", err)
		}
	}

	seed := cfg.RandSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &EvolutionEngine{
		store:     deps.Store,
		runs:      deps.Runs,
		evaluator: deps.Evaluator,
		ops:       deps.Operators,
		snapshots: deps.Snapshots,
		registry:  deps.Registry,
		logger:    deps.Logger,
		cfg:       cfg,
		stopSet:   stopSet,
		pool: &evalPool{
			workers:    cfg.MaxConcurrentWorkflows,
			stallGuard: cfg.StallGuard,
			timeout:    cfg.EvaluationTimeout,
			logger:     deps.Logger,
		},
		metrics: newEngineMetrics(deps.Logger),
		rng:     rand.New(rand.NewSource(seed)),
	}, nil
}

// RunEvolution executes a full run against the evaluation input and returns
// the final run record. The run is always left in a terminal status.
func (e *EvolutionEngine) RunEvolution(ctx context.Context, workflowID string, input models.EvaluationInput) (*models.Run, error) {
	run, err := e.runs.CreateRun(workflowID, input.Goal)
	if err != nil {
		return nil, &PersistenceError{Op: "create run", Err: err}
	}
	if e.registry != nil {
		e.registry.Create(run.ID)
	}
	return e.evolve(ctx, run, input, 1, nil)
}

// ResumeEvolution continues an interrupted run from its last completed
// generation, rebuilding the population from the persisted versions and
// their invocation results.
func (e *EvolutionEngine) ResumeEvolution(ctx context.Context, runID string, input models.EvaluationInput) (*models.Run, error) {
	run, err := e.runs.GetRun(runID)
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	last, err := e.runs.GetLastCompletedGeneration(runID)
	if err != nil {
		return nil, &PersistenceError{Op: "last completed generation lookup", Err: err}
	}
	if last == nil {
		return nil, fmt.Errorf("run %s has no completed generation to resume from", runID)
	}
	if last.Number >= e.cfg.Generations {
		return nil, fmt.Errorf("run %s already reached its generation budget", runID)
	}

	pop, err := e.rebuildPopulation(ctx, run.ID, last)
	if err != nil {
		return nil, err
	}
	if err := e.runs.ReopenRun(run.ID); err != nil {
		return nil, &PersistenceError{Op: "reopen run", Err: err}
	}
	if e.registry != nil {
		e.registry.Create(run.ID)
	}
	e.logger.Infof("Resuming run %s from generation %d with %d genomes", run.ID, last.Number, pop.Size())
	return e.evolve(ctx, run, input, last.Number+1, pop)
}

func (e *EvolutionEngine) rebuildPopulation(ctx context.Context, runID string, gen *models.Generation) (*models.Population, error) {
	versions, err := e.store.ListGenerationVersions(gen.ID)
	if err != nil {
		return nil, &PersistenceError{Op: "list generation versions", Err: err}
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("generation %s has no persisted versions", gen.ID)
	}
	versions = e.snapshotOrder(ctx, runID, gen, versions)
	invocations, err := e.store.ListGenerationInvocations(gen.ID)
	if err != nil {
		return nil, &PersistenceError{Op: "list generation invocations", Err: err}
	}
	byVersion := make(map[string]models.WorkflowInvocation, len(invocations))
	for _, inv := range invocations {
		byVersion[inv.WorkflowVersionID] = inv
	}

	evo := models.EvolutionContext{RunID: runID, GenerationID: gen.ID, GenerationNumber: gen.Number}
	pop := models.NewPopulation(evo)
	for _, v := range versions {
		g := &models.Genome{
			Config:                   v.Config,
			WorkflowVersionID:        v.ID,
			ParentWorkflowVersionIDs: v.ParentVersionIDs,
			Operation:                v.Operation,
			CreatedAt:                v.CreatedAt,
			EvolutionContext:         evo,
		}
		if inv, ok := byVersion[v.ID]; ok && inv.Status == models.InvocationStatusCompleted {
			g.SetFitnessAndFeedback(models.Fitness{
				Score:        inv.Fitness,
				Accuracy:     inv.Accuracy,
				TotalCostUSD: inv.UsdCost,
			}, inv.Feedback)
			g.TotalCostUSD = inv.UsdCost
		}
		if err := pop.Add(g); err != nil {
			e.logger.Errorf("Skipping version %s during rebuild: %v", v.ID, err)
		}
	}
	if pop.Size() == 0 {
		return nil, fmt.Errorf("no usable genomes in generation %s", gen.ID)
	}
	return pop, nil
}

// snapshotOrder restores the selection order the snapshot recorded for the
// generation being resumed. Versions the snapshot does not name keep their
// store order behind the named ones; without a matching snapshot the store
// order stands.
func (e *EvolutionEngine) snapshotOrder(ctx context.Context, runID string, gen *models.Generation, versions []models.WorkflowVersion) []models.WorkflowVersion {
	if e.snapshots == nil {
		return versions
	}
	snap, err := e.snapshots.Load(ctx, runID)
	if err != nil {
		if !errors.Is(err, snapshot.ErrNotFound) {
			e.logger.Errorf("Failed to load snapshot for run %s: %v", runID, err)
		}
		return versions
	}
	if snap.GenerationID != gen.ID {
		return versions
	}
	pos := make(map[string]int, len(snap.VersionIDs))
	for i, id := range snap.VersionIDs {
		pos[id] = i
	}
	ordered := make([]models.WorkflowVersion, len(versions))
	copy(ordered, versions)
	sort.SliceStable(ordered, func(i, j int) bool {
		pi, iok := pos[ordered[i].ID]
		pj, jok := pos[ordered[j].ID]
		switch {
		case iok && jok:
			return pi < pj
		case iok:
			return true
		default:
			return false
		}
	})
	return ordered
}

// evolve is the generation loop shared by fresh and resumed runs. pop may
// carry evaluated members (elites, rebuilt populations); they are not
// re-evaluated.
func (e *EvolutionEngine) evolve(ctx context.Context, run models.Run, input models.EvaluationInput, startGen int, pop *models.Population) (*models.Run, error) {
	start := time.Now()
	var totalCost float64
	interrupted := false

	fail := func(op string, err error) (*models.Run, error) {
		e.logger.Errorf("Run %s failed: %v", run.ID, err)
		if ferr := e.runs.FailRun(run.ID, err.Error()); ferr != nil {
			e.logger.Errorf("Failed to persist failure of run %s: %v", run.ID, ferr)
		}
		run.Status = models.RunStatusFailed
		run.ErrorMsg = err.Error()
		return &run, fmt.Errorf("%s: %w", op, err)
	}

	for genNum := startGen; genNum <= e.cfg.Generations; genNum++ {
		gen, err := e.runs.StartGeneration(run.ID, genNum)
		if err != nil {
			return fail("start generation", &PersistenceError{Op: "start generation", Err: err})
		}
		evo := models.EvolutionContext{RunID: run.ID, GenerationID: gen.ID, GenerationNumber: genNum}

		var wasted float64
		if pop == nil {
			pop, wasted, err = e.seed(ctx, evo, input)
		} else {
			pop, wasted, err = e.reproduce(ctx, pop, evo, input.Goal)
		}
		if err != nil {
			return fail("build population", err)
		}

		// Persist every member created this generation before evaluation,
		// so each execution traces back to a durable version id.
		for _, g := range pop.Genomes() {
			if g.EvolutionContext.GenerationID != gen.ID {
				continue // carried elite, already persisted
			}
			if err := e.store.SaveWorkflowVersion(g.Version(run.WorkflowID)); err != nil {
				return fail("persist workflow version", &PersistenceError{Op: "save workflow version", Err: err})
			}
		}

		outcomes := e.pool.evaluateAll(ctx, e.evaluator, pop)
		// Cancellation surfaces as per-genome evaluation errors, so the
		// context is checked before any outcome is judged. An interrupted
		// run must not be recorded as a failed one.
		if ctx.Err() != nil {
			interrupted = true
			break
		}
		fresh, failures := 0, 0
		for _, o := range outcomes {
			if o.skipped {
				continue
			}
			fresh++
			if o.err != nil {
				return fail("evaluate population", o.err)
			}
			if o.result != nil && o.result.Err != nil {
				failures++
			}
		}
		// Partial failure is tolerated; a generation where every fresh
		// evaluation failed is fatal.
		if fresh > 0 && failures == fresh {
			return fail("evaluate population", fmt.Errorf("entire population failed evaluation"))
		}

		genCost := wasted
		bestScore := 0.0
		for _, g := range pop.Genomes() {
			if g.EvolutionContext.GenerationID == gen.ID {
				genCost += g.TotalCostUSD
			}
			if g.HasBeenEvaluated && g.Fitness.Score > bestScore {
				bestScore = g.Fitness.Score
			}
		}
		totalCost += genCost

		if err := e.runs.AddRunCost(run.ID, genCost); err != nil {
			return fail("accumulate run cost", &PersistenceError{Op: "add run cost", Err: err})
		}
		if err := e.runs.CompleteGeneration(gen.ID, bestScore, genCost); err != nil {
			return fail("complete generation", &PersistenceError{Op: "complete generation", Err: err})
		}
		e.saveSnapshot(ctx, run.ID, gen, pop, bestScore, totalCost)
		e.metrics.recordGeneration(ctx, run.ID, fresh, genCost)
		e.logger.Infof("Run %s generation %d done: best=%.3f cost=$%.4f (%d evaluated, %d failed)",
			run.ID, genNum, bestScore, genCost, fresh, failures)

		if ctx.Err() != nil {
			interrupted = true
			break
		}
		if stop, reason := e.shouldStop(genNum, bestScore, totalCost, start, pop); stop {
			e.logger.Infof("Run %s stopping: %s", run.ID, reason)
			break
		}
	}

	run.TotalCostUSD = totalCost
	if interrupted {
		if err := e.runs.InterruptRun(run.ID); err != nil {
			return fail("interrupt run", &PersistenceError{Op: "interrupt run", Err: err})
		}
		run.Status = models.RunStatusInterrupted
		return &run, ctx.Err()
	}
	if err := e.runs.CompleteRun(run.ID); err != nil {
		return fail("complete run", &PersistenceError{Op: "complete run", Err: err})
	}
	run.Status = models.RunStatusCompleted
	e.dropSnapshot(ctx, run.ID)
	return &run, nil
}

// dropSnapshot removes the resume snapshot of a run that reached a completed
// terminal state. Like saving, deletion is best effort.
func (e *EvolutionEngine) dropSnapshot(ctx context.Context, runID string) {
	if e.snapshots == nil {
		return
	}
	if err := e.snapshots.Delete(ctx, runID); err != nil && !errors.Is(err, snapshot.ErrNotFound) {
		e.logger.Errorf("Failed to delete snapshot for run %s: %v", runID, err)
	}
}

// shouldStop checks the cooperative termination conditions between
// generations. In-flight work is never preempted by these.
func (e *EvolutionEngine) shouldStop(genNum int, bestScore, totalCost float64, start time.Time, pop *models.Population) (bool, string) {
	if genNum >= e.cfg.Generations {
		return true, "generation budget reached"
	}
	elapsed := time.Since(start)
	if e.cfg.MaximumTimeMinutes > 0 && elapsed >= time.Duration(e.cfg.MaximumTimeMinutes)*time.Minute {
		return true, fmt.Sprintf("wall-clock budget reached after %s", elapsed.Round(time.Second))
	}
	if e.cfg.EnableSpendingLimits && e.cfg.MaxCostUSDPerRun > 0 && totalCost >= e.cfg.MaxCostUSDPerRun {
		return true, fmt.Sprintf("spending limit reached at $%.4f", totalCost)
	}
	if e.stopSet != nil {
		env := rules.Env(genNum, bestScore, totalCost, elapsed.Minutes(), pop.Evaluated(), pop.Size())
		if stop, expr, err := e.stopSet.ShouldStop(env); err != nil {
			e.logger.Errorf("Stop rule evaluation failed: %v", err)
		} else if stop {
			return true, fmt.Sprintf("stop rule fired: %s", expr)
		}
	}
	return false, ""
}

func (e *EvolutionEngine) saveSnapshot(ctx context.Context, runID string, gen models.Generation, pop *models.Population, bestScore, totalCost float64) {
	if e.snapshots == nil {
		return
	}
	ranked := e.rank(pop.Genomes())
	ids := make([]string, len(ranked))
	for i, g := range ranked {
		ids[i] = g.WorkflowVersionID
	}
	snap := snapshot.Snapshot{
		RunID:            runID,
		GenerationID:     gen.ID,
		GenerationNumber: gen.Number,
		BestScore:        bestScore,
		TotalCostUSD:     totalCost,
		VersionIDs:       ids,
		SavedAt:          time.Now(),
	}
	// Snapshots are an acceleration for resume, not a system of record;
	// a failed save is logged and the run continues.
	if err := e.snapshots.Save(ctx, snap); err != nil {
		e.logger.Errorf("Failed to save snapshot for run %s: %v", runID, err)
	}
}

// seed builds the initial population. The returned wasted figure is spend
// from failed creation attempts that ended up attached to no genome.
func (e *EvolutionEngine) seed(ctx context.Context, evo models.EvolutionContext, input models.EvaluationInput) (*models.Population, float64, error) {
	pop := models.NewPopulation(evo)
	var wasted float64

	switch e.cfg.Seeding {
	case SeedRandom:
		for i := 0; i < e.cfg.PopulationSize; i++ {
			g, w := e.randomGenome(ctx, evo, input)
			wasted += w
			if err := pop.Add(g); err != nil {
				return nil, wasted, err
			}
		}

	case SeedBaseWorkflow:
		if e.cfg.BaseWorkflow == nil {
			return nil, 0, fmt.Errorf("seeding method %q requires a base workflow", SeedBaseWorkflow)
		}
		for i := 0; i < e.cfg.PopulationSize; i++ {
			cfg := e.cfg.BaseWorkflow.Clone()
			if i > 0 {
				cfg = operator.Jitter(cfg, e.rng)
			}
			if err := pop.Add(models.NewGenome(cfg, nil, models.OperationInit, evo)); err != nil {
				return nil, wasted, err
			}
		}

	case SeedPrepared:
		configs, err := loadPreparedPopulation(e.cfg.PreparedPopulationFile)
		if err != nil {
			return nil, 0, err
		}
		for i, cfg := range configs {
			if i >= e.cfg.PopulationSize {
				break
			}
			if err := pop.Add(models.NewGenome(cfg, nil, models.OperationInit, evo)); err != nil {
				return nil, wasted, err
			}
		}
		if pop.Size() == 0 {
			return nil, 0, fmt.Errorf("prepared population file %q holds no workflows", e.cfg.PreparedPopulationFile)
		}

	default:
		return nil, 0, fmt.Errorf("unknown seeding method %q", e.cfg.Seeding)
	}
	return pop, wasted, nil
}

func loadPreparedPopulation(path string) ([]models.WorkflowConfig, error) {
	if path == "" {
		return nil, fmt.Errorf("seeding method %q requires a population file", SeedPrepared)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prepared population: %w", err)
	}
	var configs []models.WorkflowConfig
	if err := json.Unmarshal(data, &configs); err != nil {
		return nil, fmt.Errorf("parse prepared population: %w", err)
	}
	return configs, nil
}

// randomGenome creates one fresh genome, falling back to the deterministic
// template when the model call fails. It always returns a genome; the
// second value is the wasted spend of failed attempts.
func (e *EvolutionEngine) randomGenome(ctx context.Context, evo models.EvolutionContext, input models.EvaluationInput) (*models.Genome, float64) {
	g, err := e.ops.CreateRandom(ctx, operator.RandomGenomeRequest{Input: input, EvolutionContext: evo})
	if err == nil {
		return g, 0
	}
	wasted := operator.CostOf(err)
	e.logger.Errorf("Random genome generation failed ($%.4f wasted), using deterministic template: %v", wasted, err)
	g, _ = e.ops.CreateRandom(ctx, operator.RandomGenomeRequest{
		Input:                 input,
		EvolutionContext:      evo,
		DeterministicTemplate: true,
	})
	return g, wasted
}

// rank orders genomes best-first: combined score descending, ties broken by
// lower total cost, then earlier creation. Deterministic, so selection is
// reproducible.
func (e *EvolutionEngine) rank(genomes []*models.Genome) []*models.Genome {
	ranked := make([]*models.Genome, len(genomes))
	copy(ranked, genomes)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		sa := operator.CombinedScore(a.Fitness, e.cfg.Weights, e.cfg.Baselines)
		sb := operator.CombinedScore(b.Fitness, e.cfg.Weights, e.cfg.Baselines)
		if sa != sb {
			return sa > sb
		}
		if a.TotalCostUSD != b.TotalCostUSD {
			return a.TotalCostUSD < b.TotalCostUSD
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return ranked
}

// reproduce selects survivors from the evaluated population and fills the
// next generation: elites carried unchanged, then crossover, mutation and
// random-injection children per the configured quotas.
func (e *EvolutionEngine) reproduce(ctx context.Context, prev *models.Population, evo models.EvolutionContext, goal string) (*models.Population, float64, error) {
	ranked := e.rank(prev.Genomes())
	next := models.NewPopulation(evo)
	var wasted float64

	elites := e.cfg.ElitismCount
	if elites > len(ranked) {
		elites = len(ranked)
	}
	for _, g := range ranked[:elites] {
		if err := next.Add(g); err != nil {
			return nil, wasted, err
		}
	}

	slots := e.cfg.PopulationSize - next.Size()
	crossN, mutN, randN := apportion(slots, e.cfg.CrossoverRatio, e.cfg.MutationRatio, e.cfg.RandomRatio)
	if len(ranked) < 2 {
		// Crossover needs two distinct parents.
		mutN += crossN
		crossN = 0
	}

	input := models.EvaluationInput{Goal: goal}
	for i := 0; i < crossN; i++ {
		a := ranked[i%len(ranked)]
		b := ranked[(i+1)%len(ranked)]
		child, w := e.crossoverChild(ctx, a, b, goal, evo)
		wasted += w
		if err := next.Add(child); err != nil {
			return nil, wasted, err
		}
	}
	for i := 0; i < mutN; i++ {
		parent := ranked[i%len(ranked)]
		child, w := e.mutationChild(ctx, parent, goal, evo)
		wasted += w
		if err := next.Add(child); err != nil {
			return nil, wasted, err
		}
	}
	for i := 0; i < randN; i++ {
		g, w := e.randomGenome(ctx, evo, input)
		wasted += w
		if err := next.Add(g); err != nil {
			return nil, wasted, err
		}
	}
	return next, wasted, nil
}

// mutationChild runs the explore-then-judge mutation pipeline. Any failure
// discards the mutation and retains the parent unchanged for the slot.
func (e *EvolutionEngine) mutationChild(ctx context.Context, parent *models.Genome, goal string, evo models.EvolutionContext) (*models.Genome, float64) {
	var wasted float64
	var info operator.StructureInfo
	var recCost float64

	rec, err := e.ops.ExploreStructure(ctx, parent.Config, parent.Feedback, parent.Fitness, goal, e.rng)
	if err != nil {
		wasted += operator.CostOf(err)
		e.logger.Errorf("Structure exploration failed, judging without a recommendation: %v", err)
		info = operator.StructureInfo{Pattern: operator.SamplePattern(e.rng)}
	} else {
		info = operator.StructureInfo{Pattern: rec.Pattern, Recommended: rec.ShouldImplement, Reason: rec.Reason}
		recCost = rec.UsdCost
	}

	res, err := e.ops.JudgeWithStructure(ctx, parent.Config, parent.Feedback, parent.Fitness, info)
	if err != nil {
		wasted += recCost + operator.CostOf(err)
		e.logger.Errorf("Mutation discarded, retaining parent %s: %v", parent.WorkflowVersionID, err)
		return models.NewGenome(parent.Config.Clone(), []string{parent.WorkflowVersionID}, models.OperationMutation, evo), wasted
	}

	child := models.NewGenome(res.Config, []string{parent.WorkflowVersionID}, models.OperationMutation, evo)
	child.AddCost(recCost + res.UsdCost)
	return child, wasted
}

// crossoverChild blends two parents; on failure the better parent is cloned
// for the slot.
func (e *EvolutionEngine) crossoverChild(ctx context.Context, a, b *models.Genome, goal string, evo models.EvolutionContext) (*models.Genome, float64) {
	res, err := e.ops.Crossover(ctx, a.Config, b.Config, goal)
	if err != nil {
		wasted := operator.CostOf(err)
		e.logger.Errorf("Crossover discarded, cloning parent %s: %v", a.WorkflowVersionID, err)
		return models.NewGenome(a.Config.Clone(), []string{a.WorkflowVersionID}, models.OperationMutation, evo), wasted
	}
	child := models.NewGenome(res.Config, []string{a.WorkflowVersionID, b.WorkflowVersionID}, models.OperationCrossover, evo)
	child.AddCost(res.UsdCost)
	return child, 0
}

// apportion splits n slots across the three quotas by largest remainder.
// Remainder ties resolve in crossover, mutation, random order, so the split
// is deterministic for tests.
func apportion(n int, crossover, mutation, random float64) (int, int, int) {
	if n <= 0 {
		return 0, 0, 0
	}
	total := crossover + mutation + random
	if total <= 0 {
		return 0, 0, n
	}
	exact := [3]float64{
		float64(n) * crossover / total,
		float64(n) * mutation / total,
		float64(n) * random / total,
	}
	var counts [3]int
	var remainders [3]float64
	assigned := 0
	for i, v := range exact {
		counts[i] = int(math.Floor(v))
		remainders[i] = v - math.Floor(v)
		assigned += counts[i]
	}
	order := []int{0, 1, 2}
	sort.SliceStable(order, func(i, j int) bool {
		return remainders[order[i]] > remainders[order[j]]
	})
	for k := 0; assigned < n; k++ {
		counts[order[k%3]]++
		assigned++
	}
	return counts[0], counts[1], counts[2]
}
