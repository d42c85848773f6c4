package service_test

import (
	"testing"

	"github.com/eenlars/evoflow/pkg/models"
	"github.com/eenlars/evoflow/pkg/service"
	"github.com/eenlars/evoflow/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRunService() *service.RunService {
	return service.NewRunService(storage.NewMockStore(), logger{})
}

func TestRunService_Workflows(t *testing.T) {
	t.Run("registers a workflow", func(t *testing.T) {
		svc := newRunService()
		wf, err := svc.RegisterWorkflow("evolve trivia answering")
		require.NoError(t, err)
		assert.NotEmpty(t, wf.ID)
		assert.Equal(t, "evolve trivia answering", wf.Description)
	})

	t.Run("rejects an empty description", func(t *testing.T) {
		svc := newRunService()
		_, err := svc.RegisterWorkflow("")
		require.Error(t, err)
	})
}

func TestRunService_RunLifecycle(t *testing.T) {
	t.Run("creates a running run", func(t *testing.T) {
		svc := newRunService()
		wf, err := svc.RegisterWorkflow("wf")
		require.NoError(t, err)

		run, err := svc.CreateRun(wf.ID, "answer trivia")
		require.NoError(t, err)
		assert.Equal(t, models.RunStatusRunning, run.Status)
		assert.Equal(t, wf.ID, run.WorkflowID)

		stored, err := svc.GetRun(run.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RunStatusRunning, stored.Status)
		assert.Nil(t, stored.EndTime)
	})

	t.Run("rejects an empty goal", func(t *testing.T) {
		svc := newRunService()
		_, err := svc.CreateRun("wf-id", "")
		require.Error(t, err)
	})

	t.Run("walks the status transitions", func(t *testing.T) {
		svc := newRunService()
		wf, err := svc.RegisterWorkflow("wf")
		require.NoError(t, err)
		run, err := svc.CreateRun(wf.ID, "goal")
		require.NoError(t, err)

		require.NoError(t, svc.InterruptRun(run.ID))
		stored, err := svc.GetRun(run.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RunStatusInterrupted, stored.Status)
		assert.NotNil(t, stored.EndTime)

		require.NoError(t, svc.ReopenRun(run.ID))
		stored, err = svc.GetRun(run.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RunStatusRunning, stored.Status)

		require.NoError(t, svc.FailRun(run.ID, "out of budget"))
		stored, err = svc.GetRun(run.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RunStatusFailed, stored.Status)
		assert.Equal(t, "out of budget", stored.ErrorMsg)
	})

	t.Run("accumulates cost", func(t *testing.T) {
		svc := newRunService()
		wf, err := svc.RegisterWorkflow("wf")
		require.NoError(t, err)
		run, err := svc.CreateRun(wf.ID, "goal")
		require.NoError(t, err)

		require.NoError(t, svc.AddRunCost(run.ID, 0.01))
		require.NoError(t, svc.AddRunCost(run.ID, 0.025))
		stored, err := svc.GetRun(run.ID)
		require.NoError(t, err)
		assert.InDelta(t, 0.035, stored.TotalCostUSD, 1e-9)
	})

	t.Run("missing run is a not-found error", func(t *testing.T) {
		svc := newRunService()
		_, err := svc.GetRun("nope")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestRunService_Generations(t *testing.T) {
	svc := newRunService()
	wf, err := svc.RegisterWorkflow("wf")
	require.NoError(t, err)
	run, err := svc.CreateRun(wf.ID, "goal")
	require.NoError(t, err)

	t.Run("no completed generation yet yields nil without error", func(t *testing.T) {
		last, err := svc.GetLastCompletedGeneration(run.ID)
		require.NoError(t, err)
		assert.Nil(t, last)
	})

	t.Run("open generations do not count as completed", func(t *testing.T) {
		gen, err := svc.StartGeneration(run.ID, 1)
		require.NoError(t, err)
		assert.False(t, gen.Completed())

		last, err := svc.GetLastCompletedGeneration(run.ID)
		require.NoError(t, err)
		assert.Nil(t, last)

		require.NoError(t, svc.CompleteGeneration(gen.ID, 0.7, 0.02))
		last, err = svc.GetLastCompletedGeneration(run.ID)
		require.NoError(t, err)
		require.NotNil(t, last)
		assert.Equal(t, 1, last.Number)
		assert.InDelta(t, 0.7, last.BestScore, 1e-9)
	})

	t.Run("returns the highest completed number", func(t *testing.T) {
		gen2, err := svc.StartGeneration(run.ID, 2)
		require.NoError(t, err)
		require.NoError(t, svc.CompleteGeneration(gen2.ID, 0.8, 0.03))

		last, err := svc.GetLastCompletedGeneration(run.ID)
		require.NoError(t, err)
		require.NotNil(t, last)
		assert.Equal(t, 2, last.Number)

		gens, err := svc.ListGenerations(run.ID)
		require.NoError(t, err)
		require.Len(t, gens, 2)
		assert.Equal(t, 1, gens[0].Number)
	})
}
