package ga

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Selector picks one parent from a population. Implementations never
// modify the slice they are given and return nil only for an empty one.
type Selector interface {
	Name() string
	Select(rng *rand.Rand, walkers []*Walker) *Walker
}

// NewSelector builds the strategy named in cfg.Selection
func NewSelector(cfg Config) (Selector, error) {
	switch cfg.Selection {
	case SelectRoulette, "":
		eps := cfg.RouletteEpsilon
		if eps <= 0 {
			eps = 0.1
		}
		return Roulette{Epsilon: eps}, nil
	case SelectTournament:
		k := cfg.TournamentSize
		if k < 1 {
			k = 3
		}
		return Tournament{K: k}, nil
	case SelectRanking:
		return Ranking{}, nil
	}
	return nil, &ConfigError{"selection", fmt.Sprintf("unknown method %q", cfg.Selection)}
}

// Roulette is fitness-proportionate selection with weight max(0, f) + Epsilon.
type Roulette struct {
	Epsilon float64
}

func (Roulette) Name() string { return SelectRoulette }

func (r Roulette) Select(rng *rand.Rand, walkers []*Walker) *Walker {
	if len(walkers) == 0 {
		return nil
	}
	weights := make([]float64, len(walkers))
	for i, w := range walkers {
		weights[i] = math.Max(0, w.Fitness) + r.Epsilon
	}
	return walkers[spin(rng, weights)]
}

// spin draws an index proportionally to weights. A non-positive or
// non-finite total falls back to a uniform draw.
func spin(rng *rand.Rand, weights []float64) int {
	var total float64
	for _, w := range weights {
		total += w
	}
	if !(total > 0) || math.IsInf(total, 1) {
		return rng.Intn(len(weights))
	}
	pick := rng.Float64() * total
	var cum float64
	for i, w := range weights {
		cum += w
		if cum >= pick {
			return i
		}
	}
	// float rounding
	return len(weights) - 1
}

// Tournament draws K walkers with replacement and keeps the fittest. Ties go
// to the first drawn.
type Tournament struct {
	K int
}

func (Tournament) Name() string { return SelectTournament }

func (t Tournament) Select(rng *rand.Rand, walkers []*Walker) *Walker {
	if len(walkers) == 0 {
		return nil
	}
	best := walkers[rng.Intn(len(walkers))]
	for i := 1; i < t.K; i++ {
		candidate := walkers[rng.Intn(len(walkers))]
		if candidate.Fitness > best.Fitness {
			best = candidate
		}
	}
	return best
}

// Ranking sorts a copy by fitness descending and spins a roulette over ranks
// n - index, so the best walker weighs n and the worst weighs 1.
type Ranking struct{}

func (Ranking) Name() string { return SelectRanking }

func (Ranking) Select(rng *rand.Rand, walkers []*Walker) *Walker {
	n := len(walkers)
	if n == 0 {
		return nil
	}
	sorted := make([]*Walker, n)
	copy(sorted, walkers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Fitness > sorted[j].Fitness
	})
	ranks := make([]float64, n)
	for i := range ranks {
		ranks[i] = float64(n - i)
	}
	return sorted[spin(rng, ranks)]
}
