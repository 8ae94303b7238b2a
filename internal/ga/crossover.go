package ga

import (
	"math/rand"

	"walkerevo/internal/genome"
)

// Cross produces two complementary children from p1 and p2. With
// probability 1-rate no crossover happens and the children are exact clones
// of their parents. Otherwise each motor array is recombined with method and
// each body scalar comes from a per-field coin flip.
func Cross(p1, p2 genome.Genome, method string, rate float64, rng *rand.Rand) (genome.Genome, genome.Genome) {
	if rng.Float64() >= rate {
		return p1, p2
	}

	c1, c2 := p1, p2
	swapScalar(&c1.BodyWidth, &c2.BodyWidth, rng)
	swapScalar(&c1.BodyHeight, &c2.BodyHeight, rng)
	swapScalar(&c1.LegLength, &c2.LegLength, rng)
	swapScalar(&c1.LegThickness, &c2.LegThickness, rng)

	for _, pair := range [3][2]*[genome.NumMotors]float64{
		{&c1.Amplitudes, &c2.Amplitudes},
		{&c1.Frequencies, &c2.Frequencies},
		{&c1.Phases, &c2.Phases},
	} {
		a, b := pair[0][:], pair[1][:]
		switch method {
		case CrossSinglePoint:
			SinglePointCrossover(a, b, rng)
		case CrossTwoPoint:
			TwoPointCrossover(a, b, rng)
		default:
			UniformCrossover(a, b, 0.5, rng)
		}
	}
	return c1, c2
}

func swapScalar(a, b *float64, rng *rand.Rand) {
	if rng.Float64() < 0.5 {
		*a, *b = *b, *a
	}
}

// UniformCrossover swaps each index between a and b with probability rate
func UniformCrossover(a, b []float64, rate float64, rng *rand.Rand) {
	for i := range a {
		if rng.Float64() < rate {
			a[i], b[i] = b[i], a[i]
		}
	}
}

// SinglePointCrossover swaps the tails a[c:] and b[c:] for a cut c in [0, len)
func SinglePointCrossover(a, b []float64, rng *rand.Rand) {
	point := rng.Intn(len(a))
	for i := point; i < len(a); i++ {
		a[i], b[i] = b[i], a[i]
	}
}

// TwoPointCrossover swaps the segment between two cuts
func TwoPointCrossover(a, b []float64, rng *rand.Rand) {
	i, j := rng.Intn(len(a)), rng.Intn(len(a))
	if i > j {
		i, j = j, i
	}
	for k := i; k < j; k++ {
		a[k], b[k] = b[k], a[k]
	}
}
