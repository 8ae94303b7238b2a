package ga

import (
	"math/rand"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPopulation(t *testing.T) {
	p := NewPopulation(20, rand.New(rand.NewSource(1)))
	require.Equal(t, 20, p.Size())
	ids := map[string]bool{}
	for _, w := range p.Walkers {
		assert.True(t, w.Alive)
		assert.Zero(t, w.Fitness)
		assert.NoError(t, w.Genome.Validate())
		ids[w.ID.String()] = true
	}
	assert.Len(t, ids, 20)
}

func TestRandomName(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	re := regexp.MustCompile(`^(Alpha|Beta|Gamma|Delta|Epsilon|Zeta|Eta|Theta) (Walker|Strider|Ambler|Stroller|Marcher|Glider|Pacer|Rover) \d{1,3}$`)
	for i := 0; i < 50; i++ {
		assert.Regexp(t, re, RandomName(rng))
	}
}

func TestSortByFitnessIsStable(t *testing.T) {
	p := &Population{Walkers: walkersWithFitness(1, 5, 1, 5)}
	a, b := p.Walkers[1], p.Walkers[3]
	p.SortByFitness()
	assert.Same(t, a, p.Walkers[0])
	assert.Same(t, b, p.Walkers[1])
	assert.Equal(t, []float64{5, 5, 1, 1}, p.Fitness())
	assert.Same(t, a, p.Best())
}

func TestCloneIsDeep(t *testing.T) {
	p := NewPopulation(3, rand.New(rand.NewSource(3)))
	c := p.Clone()
	c.Walkers[0].Genome.Amplitudes[0] = 42
	c.Walkers[0].Fitness = 7
	assert.NotEqual(t, 42.0, p.Walkers[0].Genome.Amplitudes[0])
	assert.Zero(t, p.Walkers[0].Fitness)
}
