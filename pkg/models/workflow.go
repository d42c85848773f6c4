package models

import (
	"fmt"
	"time"
)

// WorkflowNodeConfig describes one agent node in a workflow graph.
type WorkflowNodeConfig struct {
	NodeID       string            `json:"nodeId"`               // Unique within the workflow (e.g., "researcher")
	Description  string            `json:"description"`          // Human-readable purpose of the node
	SystemPrompt string            `json:"systemPrompt"`         // Instructions the node's model runs with
	ModelName    string            `json:"modelName"`            // Model identifier (e.g., "gpt-4.1-mini")
	MCPTools     []string          `json:"mcpTools,omitempty"`   // MCP tool names available to the node
	CodeTools    []string          `json:"codeTools,omitempty"`  // Built-in tool names available to the node
	HandOffs     []string          `json:"handOffs,omitempty"`   // Node IDs this node may hand control to
	Memory       map[string]string `json:"memory,omitempty"`     // Seed memory entries, keyed by slot name
	WaitingFor   []string          `json:"waitingFor,omitempty"` // Node IDs that must finish before this node runs
}

// WorkflowConfig is an executable agent pipeline: an entry node plus the node
// graph reachable from it through handoffs.
type WorkflowConfig struct {
	EntryNodeID string               `json:"entryNodeId"`
	Nodes       []WorkflowNodeConfig `json:"nodes"`
}

// NodeByID returns the node with the given id and whether it exists.
func (c WorkflowConfig) NodeByID(id string) (WorkflowNodeConfig, bool) {
	for _, n := range c.Nodes {
		if n.NodeID == id {
			return n, true
		}
	}
	return WorkflowNodeConfig{}, false
}

// Clone returns a deep copy. The copy shares no slices or maps with the
// original, so mutation pipelines can edit it freely.
func (c WorkflowConfig) Clone() WorkflowConfig {
	out := WorkflowConfig{EntryNodeID: c.EntryNodeID}
	if c.Nodes == nil {
		return out
	}
	out.Nodes = make([]WorkflowNodeConfig, len(c.Nodes))
	for i, n := range c.Nodes {
		cp := n
		cp.MCPTools = append([]string(nil), n.MCPTools...)
		cp.CodeTools = append([]string(nil), n.CodeTools...)
		cp.HandOffs = append([]string(nil), n.HandOffs...)
		cp.WaitingFor = append([]string(nil), n.WaitingFor...)
		if n.Memory != nil {
			cp.Memory = make(map[string]string, len(n.Memory))
			for k, v := range n.Memory {
				cp.Memory[k] = v
			}
		}
		out.Nodes[i] = cp
	}
	return out
}

// ValidateHandOffs checks that every handoff target references an existing
// node. It does not check reachability or cycles.
func (c WorkflowConfig) ValidateHandOffs() error {
	ids := make(map[string]bool, len(c.Nodes))
	for _, n := range c.Nodes {
		if ids[n.NodeID] {
			return fmt.Errorf("duplicate node id '%s'", n.NodeID)
		}
		ids[n.NodeID] = true
	}
	for _, n := range c.Nodes {
		for _, target := range n.HandOffs {
			if !ids[target] {
				return fmt.Errorf("handoff target '%s' of node '%s' does not exist", target, n.NodeID)
			}
		}
	}
	return nil
}

// ValidateGraph checks the full graph contract: the entry node exists, all
// handoffs resolve and, unless allowCycles is set, the graph reachable from
// the entry node is acyclic.
func (c WorkflowConfig) ValidateGraph(allowCycles bool) error {
	if len(c.Nodes) == 0 {
		return fmt.Errorf("workflow has no nodes")
	}
	if _, ok := c.NodeByID(c.EntryNodeID); !ok {
		return fmt.Errorf("entry node '%s' does not exist", c.EntryNodeID)
	}
	if err := c.ValidateHandOffs(); err != nil {
		return err
	}
	if allowCycles {
		return nil
	}

	// Kahn's algorithm over the subgraph reachable from the entry node;
	// nodes left with a nonzero in-degree sit on a cycle.
	reachable := map[string]bool{c.EntryNodeID: true}
	queue := []string{c.EntryNodeID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		node, _ := c.NodeByID(id)
		for _, target := range node.HandOffs {
			if !reachable[target] {
				reachable[target] = true
				queue = append(queue, target)
			}
		}
	}

	inDegree := make(map[string]int, len(reachable))
	for id := range reachable {
		inDegree[id] = 0
	}
	for id := range reachable {
		node, _ := c.NodeByID(id)
		for _, target := range node.HandOffs {
			if reachable[target] {
				inDegree[target]++
			}
		}
	}

	queue = queue[:0]
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		node, _ := c.NodeByID(id)
		for _, target := range node.HandOffs {
			if !reachable[target] {
				continue
			}
			inDegree[target]--
			if inDegree[target] == 0 {
				queue = append(queue, target)
			}
		}
	}
	if visited != len(reachable) {
		return fmt.Errorf("workflow graph contains a cycle reachable from '%s'", c.EntryNodeID)
	}
	return nil
}

// Workflow is the registered logical workflow a run evolves versions of.
type Workflow struct {
	ID          string    `json:"id" db:"id"`                   // UUID assigned at registration
	Description string    `json:"description" db:"description"` // What the workflow is being evolved toward
	CreatedAt   time.Time `json:"created_at" db:"created_at"`   // Registration timestamp
}

type VersionOperation string

const (
	OperationInit      VersionOperation = "init"
	OperationMutation  VersionOperation = "mutation"
	OperationCrossover VersionOperation = "crossover"
	OperationRandom    VersionOperation = "random"
)

// WorkflowVersion is a durable snapshot of one genome's configuration,
// written before evaluation so every execution traces back to a version id.
type WorkflowVersion struct {
	ID               string           `json:"id" db:"id"`                       // UUID assigned at genome creation
	WorkflowID       string           `json:"workflow_id" db:"workflow_id"`     // Foreign key to Workflow
	GenerationID     string           `json:"generation_id" db:"generation_id"` // Generation the version was created in
	Operation        VersionOperation `json:"operation" db:"operation"`         // How the version came to be
	ParentVersionIDs []string         `json:"parent_version_ids,omitempty"`     // 0, 1 or 2 parent version ids
	Config           WorkflowConfig   `json:"config"`                           // The configuration itself
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`       // Creation timestamp
}
