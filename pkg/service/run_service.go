package service

import (
	"time"

	"github.com/eenlars/evoflow/pkg/models"
	"github.com/eenlars/evoflow/pkg/storage"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// RunService manages run and generation records. It owns the status state
// machine; the engine drives it but never touches the store's run rows
// directly.
type RunService struct {
	store  storage.Store
	logger Logger
}

func NewRunService(store storage.Store, logger Logger) *RunService {
	return &RunService{store: store, logger: logger}
}

// RegisterWorkflow registers the logical workflow a run will evolve
// versions of.
func (s *RunService) RegisterWorkflow(description string) (wf models.Workflow, err error) {
	if description == "" {
		return models.Workflow{}, errors.New("workflow description cannot be empty")
	}
	txStore, err := s.store.Begin()
	if err != nil {
		return models.Workflow{}, err
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				s.logger.Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			s.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()

	wf = models.Workflow{
		ID:          uuid.NewString(),
		Description: description,
		CreatedAt:   time.Now(),
	}
	if err = txStore.SaveWorkflow(wf); err != nil {
		return models.Workflow{}, err
	}
	s.logger.Infof("Registered workflow '%s' (%s)", description, wf.ID)
	return wf, nil
}

// CreateRun opens a new run in status running.
func (s *RunService) CreateRun(workflowID, goal string) (run models.Run, err error) {
	if goal == "" {
		return models.Run{}, errors.New("run goal cannot be empty")
	}
	txStore, err := s.store.Begin()
	if err != nil {
		return models.Run{}, err
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				s.logger.Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			s.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()

	run = models.Run{
		ID:         uuid.NewString(),
		WorkflowID: workflowID,
		Goal:       goal,
		Status:     models.RunStatusRunning,
		StartTime:  time.Now(),
	}
	if err = txStore.SaveRun(run); err != nil {
		return models.Run{}, err
	}
	s.logger.Infof("Created run %s for goal '%s'", run.ID, goal)
	return run, nil
}

func (s *RunService) setStatus(id string, status models.RunStatus, errorMsg string) (err error) {
	txStore, err := s.store.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				s.logger.Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			s.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()

	if err = txStore.UpdateRunStatus(id, status, errorMsg); err != nil {
		return err
	}
	s.logger.Infof("Run %s moved to status '%s'", id, status)
	return nil
}

// CompleteRun marks a normal termination.
func (s *RunService) CompleteRun(id string) error {
	return s.setStatus(id, models.RunStatusCompleted, "")
}

// FailRun marks an unrecoverable error, with the message persisted for the
// operator.
func (s *RunService) FailRun(id string, errorMsg string) error {
	return s.setStatus(id, models.RunStatusFailed, errorMsg)
}

// InterruptRun marks a run cut short by cancellation.
func (s *RunService) InterruptRun(id string) error {
	return s.setStatus(id, models.RunStatusInterrupted, "")
}

// ReopenRun puts an interrupted or stale run back into running for a resume.
func (s *RunService) ReopenRun(id string) error {
	return s.setStatus(id, models.RunStatusRunning, "")
}

// AddRunCost accumulates spend onto the run record.
func (s *RunService) AddRunCost(id string, usd float64) error {
	return s.store.AddRunCost(id, usd)
}

// GetRun fetches one run.
func (s *RunService) GetRun(id string) (models.Run, error) {
	return s.store.GetRun(id)
}

// ListRuns returns all runs, newest first.
func (s *RunService) ListRuns() ([]models.Run, error) {
	return s.store.ListRuns()
}

// StartGeneration persists a fresh generation record with no end time.
func (s *RunService) StartGeneration(runID string, number int) (gen models.Generation, err error) {
	txStore, err := s.store.Begin()
	if err != nil {
		return models.Generation{}, err
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				s.logger.Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			s.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()

	gen = models.Generation{
		ID:        uuid.NewString(),
		RunID:     runID,
		Number:    number,
		StartTime: time.Now(),
	}
	if err = txStore.SaveGeneration(gen); err != nil {
		return models.Generation{}, err
	}
	return gen, nil
}

// CompleteGeneration closes a generation record.
func (s *RunService) CompleteGeneration(id string, bestScore, costUSD float64) error {
	return s.store.CompleteGeneration(id, bestScore, costUSD)
}

// GetLastCompletedGeneration returns the most recent generation of the run
// with an end time set, or (nil, nil) when none exists yet. A storage error
// propagates; callers must distinguish "no prior generation" from "lookup
// failed".
func (s *RunService) GetLastCompletedGeneration(runID string) (*models.Generation, error) {
	return s.store.GetLastCompletedGeneration(runID)
}

// ListGenerations returns the run's generations in order.
func (s *RunService) ListGenerations(runID string) ([]models.Generation, error) {
	return s.store.ListGenerations(runID)
}
