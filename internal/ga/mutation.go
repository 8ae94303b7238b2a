package ga

import (
	"math/rand"

	"walkerevo/internal/genome"
)

// Mutate returns a mutated copy of g. Each gene is visited once: with
// probability rate it is moved by U(-1, 1) * magnitude * scale, then clamped
// to its bounds (phases wrap).
func Mutate(g genome.Genome, rate, magnitude float64, rng *rand.Rand) genome.Genome {
	genes := g.Genes()
	for i, s := range genome.Specs() {
		if rng.Float64() >= rate {
			continue
		}
		delta := (rng.Float64()*2 - 1) * magnitude * s.Scale
		if delta == 0 {
			continue
		}
		genes[i] = s.Fit(genes[i] + delta)
	}
	return genome.FromGenes(genes)
}
