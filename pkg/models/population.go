package models

import "fmt"

// Population is the ordered sequence of genomes belonging to one generation.
// Members are unique by workflow version id and every member's handoffs must
// resolve within its own node list.
type Population struct {
	Context EvolutionContext

	genomes   []*Genome
	byVersion map[string]bool
}

// NewPopulation creates an empty population for the given context.
func NewPopulation(evo EvolutionContext) *Population {
	return &Population{
		Context:   evo,
		byVersion: make(map[string]bool),
	}
}

// Add appends a genome, rejecting duplicates and unresolvable handoffs.
func (p *Population) Add(g *Genome) error {
	if g == nil {
		return fmt.Errorf("cannot add nil genome")
	}
	if p.byVersion[g.WorkflowVersionID] {
		return fmt.Errorf("genome with version '%s' already in population", g.WorkflowVersionID)
	}
	if err := g.Config.ValidateHandOffs(); err != nil {
		return fmt.Errorf("invalid genome '%s': %w", g.WorkflowVersionID, err)
	}
	p.genomes = append(p.genomes, g)
	p.byVersion[g.WorkflowVersionID] = true
	return nil
}

// Genomes returns the members in insertion order. The slice is a copy; the
// genomes themselves are shared.
func (p *Population) Genomes() []*Genome {
	out := make([]*Genome, len(p.genomes))
	copy(out, p.genomes)
	return out
}

// Size returns the number of members.
func (p *Population) Size() int {
	return len(p.genomes)
}

// Evaluated reports how many members have an evaluation recorded.
func (p *Population) Evaluated() int {
	n := 0
	for _, g := range p.genomes {
		if g.HasBeenEvaluated {
			n++
		}
	}
	return n
}
