package ga

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func walkersWithFitness(fs ...float64) []*Walker {
	out := make([]*Walker, len(fs))
	for i, f := range fs {
		out[i] = &Walker{Name: childName(0, i), Fitness: f}
	}
	return out
}

func selectors() []Selector {
	return []Selector{Roulette{Epsilon: 0.1}, Tournament{K: 3}, Ranking{}}
}

func TestSelectorsHandleDegeneratePopulations(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, s := range selectors() {
		t.Run(s.Name(), func(t *testing.T) {
			assert.Nil(t, s.Select(rng, nil))

			zero := walkersWithFitness(0, 0, 0, 0, 0)
			for i := 0; i < 100; i++ {
				assert.Contains(t, zero, s.Select(rng, zero))
			}
		})
	}
}

func TestRouletteZeroEpsilonFallsBackToUniform(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	ws := walkersWithFitness(0, 0, 0)
	seen := map[*Walker]bool{}
	for i := 0; i < 200; i++ {
		seen[Roulette{}.Select(rng, ws)] = true
	}
	assert.Len(t, seen, 3)
}

func TestRouletteFavoursFitness(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	ws := walkersWithFitness(1000, 0, 0, 0)
	hits := 0
	for i := 0; i < 1000; i++ {
		if (Roulette{Epsilon: 0.1}).Select(rng, ws) == ws[0] {
			hits++
		}
	}
	assert.Greater(t, hits, 990)
}

func TestRouletteIgnoresNegativeFitness(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	ws := walkersWithFitness(-1e9, 10)
	hits := 0
	for i := 0; i < 1000; i++ {
		if (Roulette{Epsilon: 0.1}).Select(rng, ws) == ws[1] {
			hits++
		}
	}
	assert.Greater(t, hits, 970)
}

func TestTournamentOfOneIsUniform(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	ws := walkersWithFitness(100, 1, 1)
	seen := map[*Walker]bool{}
	for i := 0; i < 200; i++ {
		seen[Tournament{K: 1}.Select(rng, ws)] = true
	}
	assert.Len(t, seen, 3)
}

func TestTournamentTiesGoToFirstDrawn(t *testing.T) {
	ws := walkersWithFitness(5, 5, 5)
	for seed := int64(0); seed < 20; seed++ {
		first := ws[rand.New(rand.NewSource(seed)).Intn(len(ws))]
		got := Tournament{K: 3}.Select(rand.New(rand.NewSource(seed)), ws)
		assert.Same(t, first, got)
	}
}

func TestRankingIgnoresMagnitude(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	ws := walkersWithFitness(1e12, 1, 0)
	counts := map[*Walker]int{}
	const n = 6000
	for i := 0; i < n; i++ {
		counts[Ranking{}.Select(rng, ws)]++
	}
	// ranks 3, 2, 1 out of 6
	assert.InDelta(t, 0.5, float64(counts[ws[0]])/n, 0.05)
	assert.InDelta(t, 1.0/3, float64(counts[ws[1]])/n, 0.05)
	assert.InDelta(t, 1.0/6, float64(counts[ws[2]])/n, 0.05)
}

func TestRankingDoesNotReorderInput(t *testing.T) {
	ws := walkersWithFitness(1, 3, 2)
	orig := append([]*Walker(nil), ws...)
	Ranking{}.Select(rand.New(rand.NewSource(7)), ws)
	assert.Equal(t, orig, ws)
}

func TestNewSelector(t *testing.T) {
	for _, name := range []string{SelectRoulette, SelectTournament, SelectRanking} {
		cfg := DefaultConfig()
		cfg.Selection = name
		s, err := NewSelector(cfg)
		require.NoError(t, err)
		assert.Equal(t, name, s.Name())
	}
	cfg := DefaultConfig()
	cfg.Selection = "lottery"
	_, err := NewSelector(cfg)
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "selection", cerr.Field)
}
