package operator

import (
	"fmt"

	"github.com/eenlars/evoflow/pkg/models"
)

// RepairWorkflow coerces an LLM-proposed configuration into valid form:
// duplicate nodes are dropped, dangling handoff and waiting-for references
// are removed, a missing entry node falls back to the first node and, unless
// allowCycles is set, handoff cycles are broken by dropping back edges. The
// input is not modified. An empty node list is irreparable.
func RepairWorkflow(cfg models.WorkflowConfig, allowCycles bool) (models.WorkflowConfig, error) {
	out := cfg.Clone()
	if len(out.Nodes) == 0 {
		return models.WorkflowConfig{}, fmt.Errorf("workflow has no nodes")
	}

	// Drop duplicate node ids, keeping the first occurrence.
	ids := make(map[string]bool, len(out.Nodes))
	nodes := out.Nodes[:0]
	for _, n := range out.Nodes {
		if n.NodeID == "" || ids[n.NodeID] {
			continue
		}
		ids[n.NodeID] = true
		nodes = append(nodes, n)
	}
	out.Nodes = nodes
	if len(out.Nodes) == 0 {
		return models.WorkflowConfig{}, fmt.Errorf("workflow has no usable nodes")
	}

	if !ids[out.EntryNodeID] {
		out.EntryNodeID = out.Nodes[0].NodeID
	}

	// Remove self-handoffs, dangling targets and duplicates.
	for i := range out.Nodes {
		n := &out.Nodes[i]
		seen := make(map[string]bool, len(n.HandOffs))
		handoffs := n.HandOffs[:0]
		for _, target := range n.HandOffs {
			if target == n.NodeID || !ids[target] || seen[target] {
				continue
			}
			seen[target] = true
			handoffs = append(handoffs, target)
		}
		n.HandOffs = handoffs

		deps := n.WaitingFor[:0]
		for _, dep := range n.WaitingFor {
			if ids[dep] && dep != n.NodeID {
				deps = append(deps, dep)
			}
		}
		n.WaitingFor = deps
	}

	if !allowCycles {
		breakCycles(&out)
	}

	if err := out.ValidateGraph(allowCycles); err != nil {
		return models.WorkflowConfig{}, fmt.Errorf("repair left workflow invalid: %w", err)
	}
	return out, nil
}

// breakCycles walks handoffs depth-first from the entry node and removes
// every edge that points back into the current path. Node order is the slice
// order, so the result is deterministic.
func breakCycles(cfg *models.WorkflowConfig) {
	index := make(map[string]int, len(cfg.Nodes))
	for i, n := range cfg.Nodes {
		index[n.NodeID] = i
	}

	const (
		unvisited = 0
		onPath    = 1
		done      = 2
	)
	state := make(map[string]int, len(cfg.Nodes))

	var visit func(id string)
	visit = func(id string) {
		state[id] = onPath
		n := &cfg.Nodes[index[id]]
		handoffs := n.HandOffs[:0]
		for _, target := range n.HandOffs {
			if state[target] == onPath {
				continue // back edge
			}
			handoffs = append(handoffs, target)
			if state[target] == unvisited {
				visit(target)
			}
		}
		n.HandOffs = handoffs
		state[id] = done
	}
	visit(cfg.EntryNodeID)
}
