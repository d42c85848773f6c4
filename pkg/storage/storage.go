package storage

import (
	"errors"

	"github.com/eenlars/evoflow/pkg/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the persistence operations for evoflow. Implementations
// support transactions through Begin, which returns a Store scoped to the
// transaction; Commit and Rollback only apply to such a scoped Store.
type Store interface {
	// Workflow registration
	SaveWorkflow(w models.Workflow) error
	GetWorkflow(id string) (models.Workflow, error)

	// Workflow versions
	SaveWorkflowVersion(v models.WorkflowVersion) error
	GetWorkflowVersion(id string) (models.WorkflowVersion, error)
	ListGenerationVersions(generationID string) ([]models.WorkflowVersion, error)

	// Run operations
	SaveRun(r models.Run) error
	GetRun(id string) (models.Run, error)
	ListRuns() ([]models.Run, error)
	UpdateRunStatus(id string, status models.RunStatus, errorMsg string) error
	AddRunCost(id string, usd float64) error

	// Generation operations
	SaveGeneration(g models.Generation) error
	CompleteGeneration(id string, bestScore, costUSD float64) error
	GetLastCompletedGeneration(runID string) (*models.Generation, error)
	ListGenerations(runID string) ([]models.Generation, error)

	// Invocation operations
	SaveInvocation(inv models.WorkflowInvocation) error
	FinalizeInvocation(inv models.WorkflowInvocation) error
	ListGenerationInvocations(generationID string) ([]models.WorkflowInvocation, error)

	// Named evaluation inputs (imported datasets)
	SaveEvaluationInput(name string, input models.EvaluationInput) error
	GetEvaluationInput(name string) (models.EvaluationInput, error)

	// Transactions
	Begin() (Store, error)
	Commit() error
	Rollback() error
	Close() error
}
