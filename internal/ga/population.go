package ga

import (
	"math/rand"
	"sort"

	"walkerevo/internal/genome"
)

// Population manages the collection of walkers
type Population struct {
	Walkers []*Walker
}

// NewPopulation creates a new random population
func NewPopulation(size int, rng *rand.Rand) *Population {
	p := &Population{Walkers: make([]*Walker, size)}
	for i := 0; i < size; i++ {
		p.Walkers[i] = NewWalker(genome.Random(rng), "", rng)
	}
	return p
}

// Size returns the population size
func (p *Population) Size() int {
	return len(p.Walkers)
}

// SortByFitness sorts walkers by fitness (descending). Equal fitness keeps
// insertion order.
func (p *Population) SortByFitness() {
	sort.SliceStable(p.Walkers, func(i, j int) bool {
		return p.Walkers[i].Fitness > p.Walkers[j].Fitness
	})
}

// Best returns the walker with highest fitness
func (p *Population) Best() *Walker {
	if len(p.Walkers) == 0 {
		return nil
	}
	best := p.Walkers[0]
	for _, w := range p.Walkers[1:] {
		if w.Fitness > best.Fitness {
			best = w
		}
	}
	return best
}

// Fitness returns the fitness values in population order
func (p *Population) Fitness() []float64 {
	out := make([]float64, len(p.Walkers))
	for i, w := range p.Walkers {
		out[i] = w.Fitness
	}
	return out
}

// Clone creates a deep copy of the population
func (p *Population) Clone() *Population {
	out := &Population{Walkers: make([]*Walker, len(p.Walkers))}
	for i, w := range p.Walkers {
		out.Walkers[i] = w.Clone()
	}
	return out
}
