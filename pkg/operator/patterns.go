package operator

import "math/rand"

// StructurePattern is a candidate structural change the explorer weighs
// against the current workflow before the judge is asked to apply it.
type StructurePattern struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Patterns is the library the explorer samples from.
var Patterns = []StructurePattern{
	{
		Name:        "parallel-branch",
		Description: "Split the task into two independent branches that run in parallel and hand off to a merge node.",
	},
	{
		Name:        "validation-node",
		Description: "Add a node after the main answer node that checks the answer against the task and corrects obvious mistakes.",
	},
	{
		Name:        "planner-executor",
		Description: "Put a planning node in front that decomposes the task into steps before the executor node answers.",
	},
	{
		Name:        "specialist-split",
		Description: "Replace one generalist node with two specialists, each handling a distinct aspect of the task.",
	},
	{
		Name:        "summarizer-tail",
		Description: "Append a final node that condenses all upstream outputs into one direct answer.",
	},
	{
		Name:        "cheaper-model",
		Description: "Move mechanical nodes to a smaller, cheaper model and keep the strongest model only where reasoning is needed.",
	},
}

// SamplePattern picks one pattern. A seeded rng gives reproducible runs.
func SamplePattern(rng *rand.Rand) StructurePattern {
	return Patterns[rng.Intn(len(Patterns))]
}
