package service

import (
	"fmt"

	"github.com/eenlars/evoflow/pkg/models"
	"github.com/eenlars/evoflow/pkg/storage"
)

// InvocationService persists workflow invocation records for the
// evaluators. It satisfies evaluator.InvocationRecorder.
type InvocationService struct {
	store  storage.Store
	logger Logger
}

func NewInvocationService(store storage.Store, logger Logger) *InvocationService {
	return &InvocationService{store: store, logger: logger}
}

// StartInvocation records a running invocation.
func (s *InvocationService) StartInvocation(inv models.WorkflowInvocation) (err error) {
	txStore, err := s.store.Begin()
	if err != nil {
		s.logger.Errorf("Failed to begin transaction for StartInvocation: %v", err)
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				s.logger.Errorf("Failed to rollback: %v", rollbackErr)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			s.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()

	if err = txStore.SaveInvocation(inv); err != nil {
		s.logger.Errorf("Failed to save invocation %s: %v", inv.ID, err)
		return fmt.Errorf("save invocation %s: %w", inv.ID, err)
	}
	return nil
}

// FinalizeInvocation writes the terminal state of an invocation. The record
// is immutable afterwards.
func (s *InvocationService) FinalizeInvocation(inv models.WorkflowInvocation) (err error) {
	txStore, err := s.store.Begin()
	if err != nil {
		s.logger.Errorf("Failed to begin transaction for FinalizeInvocation: %v", err)
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				s.logger.Errorf("Failed to rollback: %v", rollbackErr)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			s.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()

	if err = txStore.FinalizeInvocation(inv); err != nil {
		s.logger.Errorf("Failed to finalize invocation %s: %v", inv.ID, err)
		return fmt.Errorf("finalize invocation %s: %w", inv.ID, err)
	}
	return nil
}
