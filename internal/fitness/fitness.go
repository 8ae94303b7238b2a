// Package fitness scores a walker from its torso's start and end state.
package fitness

import (
	"math"
	"math/rand"

	"walkerevo/internal/genome"
	"walkerevo/internal/physics"
)

// Params weights the three score components.
type Params struct {
	DistanceWeight  float64 `yaml:"distance_weight" json:"distanceWeight"`
	HeightRef       float64 `yaml:"height_ref" json:"heightRef"`
	HeightWeight    float64 `yaml:"height_weight" json:"heightWeight"`
	StabilityMax    float64 `yaml:"stability_max" json:"stabilityMax"`
	StabilityWeight float64 `yaml:"stability_weight" json:"stabilityWeight"`
}

// DefaultParams returns Kd=10, Href=5, Kh=10, Kmax=100, Ks=20.
func DefaultParams() Params {
	return Params{
		DistanceWeight:  10,
		HeightRef:       5,
		HeightWeight:    10,
		StabilityMax:    100,
		StabilityWeight: 20,
	}
}

// Breakdown is a score split into its components.
type Breakdown struct {
	Distance  float64 `json:"distance"`
	Height    float64 `json:"height"`
	Stability float64 `json:"stability"`
	Total     float64 `json:"total"`
}

// Evaluate splits the score for a torso that moved from initial to final.
// The total is never negative; non-finite positions score 0.
func (p Params) Evaluate(initial, final physics.Vec2) Breakdown {
	for _, v := range [4]float64{initial.X, initial.Y, final.X, final.Y} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Breakdown{}
		}
	}
	b := Breakdown{
		Distance:  math.Abs(final.X-initial.X) * p.DistanceWeight,
		Height:    math.Max(0, p.HeightRef-final.Y) * p.HeightWeight,
		Stability: math.Max(0, p.StabilityMax-math.Abs(final.Y-initial.Y)*p.StabilityWeight),
	}
	b.Total = math.Max(0, b.Distance+b.Height+b.Stability)
	return b
}

// Score returns the total of Evaluate.
func (p Params) Score(initial, final physics.Vec2) float64 {
	return p.Evaluate(initial, final).Total
}

// Surrogate estimates fitness from the genome alone, for runs without a
// physics world: 10*mean|A| + 5*mean(F) + 10*(w+h) + 15*L + U(-5, 5),
// floored at 0. A nil rng drops the noise term.
func Surrogate(g genome.Genome, rng *rand.Rand) float64 {
	var amp, freq float64
	for i := 0; i < genome.NumMotors; i++ {
		amp += math.Abs(g.Amplitudes[i])
		freq += g.Frequencies[i]
	}
	amp /= genome.NumMotors
	freq /= genome.NumMotors

	s := 10*amp + 5*freq + 10*(g.BodyWidth+g.BodyHeight) + 15*g.LegLength
	if rng != nil {
		s += rng.Float64()*10 - 5
	}
	return math.Max(0, s)
}
