package fitness

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"walkerevo/internal/genome"
	"walkerevo/internal/physics"
)

func TestScore(t *testing.T) {
	p := DefaultParams()
	tests := []struct {
		name           string
		initial, final physics.Vec2
		want           float64
	}{
		{"standing still at start height", physics.Vec2{X: 0, Y: 5}, physics.Vec2{X: 0, Y: 5}, 100},
		{"walked forward", physics.Vec2{X: 0, Y: 5}, physics.Vec2{X: 3, Y: 5}, 130},
		{"walked backward", physics.Vec2{X: 0, Y: 5}, physics.Vec2{X: -3, Y: 5}, 130},
		{"fell to the ground", physics.Vec2{X: 0, Y: 5}, physics.Vec2{X: 2, Y: 1}, 20 + 40 + 20},
		{"fell far", physics.Vec2{X: 0, Y: 5}, physics.Vec2{X: 0, Y: -1}, 60},
		{"nan", physics.Vec2{X: 0, Y: 5}, physics.Vec2{X: math.NaN(), Y: 5}, 0},
		{"inf", physics.Vec2{X: 0, Y: 5}, physics.Vec2{X: 0, Y: math.Inf(-1)}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, p.Score(tt.initial, tt.final), 1e-9)
		})
	}
}

func TestScoreNeverNegative(t *testing.T) {
	p := Params{DistanceWeight: -10, HeightRef: 5, HeightWeight: 10, StabilityMax: 100, StabilityWeight: 20}
	assert.Equal(t, 0.0, p.Score(physics.Vec2{X: 0, Y: 5}, physics.Vec2{X: 100, Y: 5}))
}

func TestEvaluateBreakdown(t *testing.T) {
	b := DefaultParams().Evaluate(physics.Vec2{X: 0, Y: 5}, physics.Vec2{X: 1, Y: 4})
	assert.InDelta(t, 10, b.Distance, 1e-9)
	assert.InDelta(t, 10, b.Height, 1e-9)
	assert.InDelta(t, 80, b.Stability, 1e-9)
	assert.InDelta(t, 100, b.Total, 1e-9)
}

func TestSurrogate(t *testing.T) {
	g := genome.Genome{
		BodyWidth:    0.5,
		BodyHeight:   0.3,
		LegLength:    0.4,
		LegThickness: 0.1,
		Amplitudes:   [4]float64{1, -1, 0.5, -0.5},
		Frequencies:  [4]float64{2, 2, 2, 2},
	}
	// 10*0.75 + 5*2 + 10*0.8 + 15*0.4
	assert.InDelta(t, 31.5, Surrogate(g, nil), 1e-9)

	rng := rand.New(rand.NewSource(4))
	for i := 0; i < 100; i++ {
		s := Surrogate(g, rng)
		assert.GreaterOrEqual(t, s, 26.5)
		assert.LessOrEqual(t, s, 36.5)
	}
	assert.GreaterOrEqual(t, Surrogate(genome.Genome{}, rng), 0.0)
}
