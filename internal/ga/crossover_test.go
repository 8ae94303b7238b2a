package ga

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"walkerevo/internal/genome"
)

func TestCrossClosure(t *testing.T) {
	rng := rand.New(rand.NewSource(10))
	for _, method := range []string{CrossSinglePoint, CrossTwoPoint, CrossUniform} {
		t.Run(method, func(t *testing.T) {
			for n := 0; n < 200; n++ {
				p1, p2 := genome.Random(rng), genome.Random(rng)
				c1, c2 := Cross(p1, p2, method, 1, rng)
				g1, g2 := p1.Genes(), p2.Genes()
				k1, k2 := c1.Genes(), c2.Genes()
				for i := range k1 {
					assert.True(t, k1[i] == g1[i] || k1[i] == g2[i], "child1 gene %d", i)
					// children are complements
					if k1[i] == g1[i] {
						assert.Equal(t, g2[i], k2[i])
					} else {
						assert.Equal(t, g1[i], k2[i])
					}
				}
				assert.NoError(t, c1.Validate())
				assert.NoError(t, c2.Validate())
			}
		})
	}
}

func TestCrossRateZeroClones(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	p1, p2 := genome.Random(rng), genome.Random(rng)
	for _, method := range []string{CrossSinglePoint, CrossTwoPoint, CrossUniform} {
		c1, c2 := Cross(p1, p2, method, 0, rng)
		assert.Equal(t, p1, c1)
		assert.Equal(t, p2, c2)
	}
}

func TestCrossDoesNotTouchParents(t *testing.T) {
	rng := rand.New(rand.NewSource(12))
	p1, p2 := genome.Random(rng), genome.Random(rng)
	before1, before2 := p1, p2
	c1, _ := Cross(p1, p2, CrossUniform, 1, rng)
	c1.Amplitudes[0] = 99
	assert.Equal(t, before1, p1)
	assert.Equal(t, before2, p2)
}

func TestSinglePointCrossoverSwapsTail(t *testing.T) {
	a := []float64{1, 2, 3, 4}
	b := []float64{5, 6, 7, 8}
	SinglePointCrossover(a, b, rand.New(rand.NewSource(13)))
	cut := 0
	for cut < len(a) && a[cut] == float64(cut+1) {
		cut++
	}
	for i := cut; i < len(a); i++ {
		assert.Equal(t, float64(i+5), a[i])
		assert.Equal(t, float64(i+1), b[i])
	}
}

func TestTwoPointCrossoverSwapsMiddle(t *testing.T) {
	rng := rand.New(rand.NewSource(14))
	for n := 0; n < 50; n++ {
		a := []float64{1, 2, 3, 4}
		b := []float64{5, 6, 7, 8}
		TwoPointCrossover(a, b, rng)
		// swapped positions form one contiguous run
		var runs int
		prev := false
		for i := range a {
			swapped := a[i] == float64(i+5)
			if swapped && !prev {
				runs++
			}
			prev = swapped
		}
		assert.LessOrEqual(t, runs, 1)
	}
}
