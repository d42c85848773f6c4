package service

import (
	"fmt"
	"time"

	"github.com/eenlars/evoflow/pkg/models"
	"github.com/eenlars/evoflow/pkg/operator"
)

// Logger defines the logging interface for the evolution services.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type noopLogger struct{}

func (noopLogger) Infof(format string, args ...interface{})  {}
func (noopLogger) Errorf(format string, args ...interface{}) {}

// PersistenceError is a storage failure surfaced to the run level. It is
// never swallowed: losing a generation record breaks resumability, so the
// run transitions to failed instead.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// SeedingMethod selects how the initial population is built. The choice is
// configuration-driven, never inferred at runtime.
type SeedingMethod string

const (
	// SeedRandom generates N fresh genomes through the idea-to-workflow call.
	SeedRandom SeedingMethod = "random"
	// SeedBaseWorkflow clones a supplied seed workflow N times with light jitter.
	SeedBaseWorkflow SeedingMethod = "baseWorkflow"
	// SeedPrepared loads a fixed population file.
	SeedPrepared SeedingMethod = "prepared"
)

// Config tunes one evolution run.
type Config struct {
	PopulationSize int
	Generations    int
	ElitismCount   int

	// MaxConcurrentWorkflows bounds whole-genome evaluations running at
	// once. Model-call fan-out is bounded independently by the llm client.
	MaxConcurrentWorkflows int

	MaximumTimeMinutes   int
	MaxCostUSDPerRun     float64
	EnableSpendingLimits bool

	Seeding                SeedingMethod
	BaseWorkflow           *models.WorkflowConfig
	PreparedPopulationFile string

	// Reproduction quotas for the non-elite slots. Normalized against each
	// other; slots are apportioned by largest remainder.
	CrossoverRatio float64
	MutationRatio  float64
	RandomRatio    float64

	Weights   operator.Weights
	Baselines operator.Baselines

	// StopRules are optional expression conditions checked between
	// generations on top of the three budget limits.
	StopRules []string

	AllowCycles       bool
	StallGuard        bool
	EvaluationTimeout time.Duration

	// RandSeed makes pattern sampling and jitter reproducible. Zero seeds
	// from the clock.
	RandSeed int64
}

func (c Config) withDefaults() Config {
	if c.PopulationSize <= 0 {
		c.PopulationSize = 6
	}
	if c.Generations <= 0 {
		c.Generations = 5
	}
	if c.ElitismCount <= 0 {
		c.ElitismCount = 1
	}
	if c.ElitismCount > c.PopulationSize {
		c.ElitismCount = c.PopulationSize
	}
	if c.MaxConcurrentWorkflows <= 0 {
		c.MaxConcurrentWorkflows = 3
	}
	if c.Seeding == "" {
		c.Seeding = SeedRandom
	}
	if c.CrossoverRatio == 0 && c.MutationRatio == 0 && c.RandomRatio == 0 {
		c.CrossoverRatio, c.MutationRatio, c.RandomRatio = 0.3, 0.5, 0.2
	}
	if c.Weights == (operator.Weights{}) {
		c.Weights = operator.DefaultWeights
	}
	if c.Baselines == (operator.Baselines{}) {
		c.Baselines = operator.DefaultBaselines
	}
	if c.EvaluationTimeout <= 0 {
		c.EvaluationTimeout = 10 * time.Minute
	}
	return c
}
