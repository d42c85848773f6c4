package operator_test

import (
	"testing"

	"github.com/eenlars/evoflow/pkg/models"
	"github.com/eenlars/evoflow/pkg/operator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepairWorkflow(t *testing.T) {
	t.Run("drops dangling handoffs", func(t *testing.T) {
		cfg := models.WorkflowConfig{
			EntryNodeID: "a",
			Nodes: []models.WorkflowNodeConfig{
				{NodeID: "a", HandOffs: []string{"b", "ghost"}},
				{NodeID: "b"},
			},
		}
		repaired, err := operator.RepairWorkflow(cfg, false)
		require.NoError(t, err)
		assert.Equal(t, []string{"b"}, repaired.Nodes[0].HandOffs)
		require.NoError(t, repaired.ValidateGraph(false))
	})

	t.Run("missing entry falls back to first node", func(t *testing.T) {
		cfg := models.WorkflowConfig{
			EntryNodeID: "nowhere",
			Nodes: []models.WorkflowNodeConfig{
				{NodeID: "a", HandOffs: []string{"b"}},
				{NodeID: "b"},
			},
		}
		repaired, err := operator.RepairWorkflow(cfg, false)
		require.NoError(t, err)
		assert.Equal(t, "a", repaired.EntryNodeID)
	})

	t.Run("breaks handoff cycles deterministically", func(t *testing.T) {
		cfg := models.WorkflowConfig{
			EntryNodeID: "a",
			Nodes: []models.WorkflowNodeConfig{
				{NodeID: "a", HandOffs: []string{"b"}},
				{NodeID: "b", HandOffs: []string{"c"}},
				{NodeID: "c", HandOffs: []string{"a"}},
			},
		}
		repaired, err := operator.RepairWorkflow(cfg, false)
		require.NoError(t, err)
		require.NoError(t, repaired.ValidateGraph(false))

		// The back edge c->a is the one removed.
		c, ok := repaired.NodeByID("c")
		require.True(t, ok)
		assert.Empty(t, c.HandOffs)
	})

	t.Run("cycles survive when explicitly allowed", func(t *testing.T) {
		cfg := models.WorkflowConfig{
			EntryNodeID: "a",
			Nodes: []models.WorkflowNodeConfig{
				{NodeID: "a", HandOffs: []string{"b"}},
				{NodeID: "b", HandOffs: []string{"a"}},
			},
		}
		repaired, err := operator.RepairWorkflow(cfg, true)
		require.NoError(t, err)
		b, _ := repaired.NodeByID("b")
		assert.Equal(t, []string{"a"}, b.HandOffs)
	})

	t.Run("duplicate node ids keep the first occurrence", func(t *testing.T) {
		cfg := models.WorkflowConfig{
			EntryNodeID: "a",
			Nodes: []models.WorkflowNodeConfig{
				{NodeID: "a", Description: "first", HandOffs: []string{"a"}},
				{NodeID: "a", Description: "second"},
			},
		}
		repaired, err := operator.RepairWorkflow(cfg, false)
		require.NoError(t, err)
		require.Len(t, repaired.Nodes, 1)
		assert.Equal(t, "first", repaired.Nodes[0].Description)
		assert.Empty(t, repaired.Nodes[0].HandOffs) // self-handoff removed
	})

	t.Run("empty node list is irreparable", func(t *testing.T) {
		_, err := operator.RepairWorkflow(models.WorkflowConfig{EntryNodeID: "a"}, false)
		assert.Error(t, err)
	})

	t.Run("input is not modified", func(t *testing.T) {
		cfg := models.WorkflowConfig{
			EntryNodeID: "a",
			Nodes: []models.WorkflowNodeConfig{
				{NodeID: "a", HandOffs: []string{"ghost"}},
			},
		}
		_, err := operator.RepairWorkflow(cfg, false)
		require.NoError(t, err)
		assert.Equal(t, []string{"ghost"}, cfg.Nodes[0].HandOffs)
	})
}
