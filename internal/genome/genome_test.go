package genome

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomWithinInitRanges(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	specs := Specs()
	for n := 0; n < 500; n++ {
		g := Random(rng)
		require.NoError(t, g.Validate())
		for i, v := range g.Genes() {
			assert.GreaterOrEqual(t, v, specs[i].InitMin, specs[i].Name)
			assert.LessOrEqual(t, v, specs[i].InitMax, specs[i].Name)
		}
	}
}

func TestRandomMotorsIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	g := Random(rng)
	assert.NotEqual(t, g.Amplitudes[0], g.Amplitudes[1])
	assert.NotEqual(t, g.Frequencies[2], g.Frequencies[3])
}

func TestGenesRoundTrip(t *testing.T) {
	g := Random(rand.New(rand.NewSource(11)))
	assert.Equal(t, g, FromGenes(g.Genes()))
}

func TestGeneIndexLayout(t *testing.T) {
	specs := Specs()
	assert.Equal(t, "bodyWidth", specs[0].Name)
	assert.Equal(t, "legSegmentThickness", specs[3].Name)
	assert.Equal(t, "motorAmplitudes[0]", specs[AmplitudeIndex(0)].Name)
	assert.Equal(t, "motorFrequencies[3]", specs[FrequencyIndex(3)].Name)
	assert.Equal(t, "motorPhases[2]", specs[PhaseIndex(2)].Name)
	assert.Equal(t, NumGenes-1, PhaseIndex(NumMotors-1))
}

func TestClampBringsGenesIntoBounds(t *testing.T) {
	g := Genome{
		BodyWidth:    9,
		BodyHeight:   -1,
		LegLength:    0.5,
		LegThickness: math.NaN(),
		Amplitudes:   [4]float64{-3, 3, 0, 1},
		Frequencies:  [4]float64{0, 20, 1, 2},
		Phases:       [4]float64{-0.5, 7, TwoPi, 1},
	}
	c := g.Clamp()
	require.NoError(t, c.Validate())
	assert.Equal(t, 2.0, c.BodyWidth)
	assert.Equal(t, 0.1, c.BodyHeight)
	assert.Equal(t, 0.01, c.LegThickness)
	assert.Equal(t, [4]float64{-2, 2, 0, 1}, c.Amplitudes)
	assert.Equal(t, [4]float64{0.1, 10, 1, 2}, c.Frequencies)
	assert.InDelta(t, TwoPi-0.5, c.Phases[0], 1e-12)
	assert.InDelta(t, 7-TwoPi, c.Phases[1], 1e-12)
	assert.Equal(t, 0.0, c.Phases[2])
}

func TestValidateNamesGene(t *testing.T) {
	g := Random(rand.New(rand.NewSource(1)))
	g.Frequencies[2] = 11
	err := g.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "motorFrequencies[2]")
}

func TestWrap(t *testing.T) {
	tests := []struct {
		name string
		v    float64
		want float64
	}{
		{"in range", 1.25, 1.25},
		{"zero", 0, 0},
		{"upper bound", TwoPi, 0},
		{"above", TwoPi + 1, 1},
		{"negative", -1, TwoPi - 1},
		{"tiny negative", -1e-18, 0},
		{"nan", math.NaN(), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Wrap(tt.v, 0, TwoPi)
			assert.InDelta(t, tt.want, got, 1e-12)
			assert.True(t, got >= 0 && got < TwoPi)
		})
	}
}
