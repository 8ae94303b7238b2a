package snapshot

import (
	"math/rand"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walkerevo/internal/genome"
)

func sample() Snapshot {
	rng := rand.New(rand.NewSource(21))
	rate := 0.7
	s := Snapshot{
		Generation:        12,
		PopulationSize:    3,
		MutationRate:      0.25,
		MutationMagnitude: 0.5,
		NumChampions:      1,
		SelectionMethod:   "tournament",
		CrossoverMethod:   "two_point",
		CrossoverRate:     &rate,
		TournamentSize:    4,
		FitnessHistory:    []HistoryEntry{{Generation: 11, Best: 140, Average: 80, Worst: 3, StdDev: 20}},
	}
	for i, score := range []float64{140, 90.5, 0} {
		s.Population = append(s.Population, Entry{
			Name:   []string{"Alpha Walker 1", "Beta Rover 2", "Child_11_2"}[i],
			Score:  score,
			Genome: genome.Random(rng),
		})
	}
	return s
}

func TestRoundTrip(t *testing.T) {
	s := sample()
	data, err := Encode(s)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestEncodeUsesWireKeys(t *testing.T) {
	data, err := Encode(sample())
	require.NoError(t, err)
	for _, key := range []string{
		`"generation"`, `"populationSize"`, `"mutationRate"`, `"mutationMagnitude"`, `"numChampions"`,
		`"population"`, `"name"`, `"score"`, `"genome"`, `"bodyWidth"`, `"bodyHeight"`,
		`"legSegmentLength"`, `"legSegmentThickness"`, `"motorAmplitudes"`, `"motorFrequencies"`, `"motorPhases"`,
	} {
		assert.Contains(t, string(data), key)
	}
}

const minimalGenome = `{"bodyWidth":0.5,"bodyHeight":0.3,"legSegmentLength":0.4,"legSegmentThickness":0.1,
	"motorAmplitudes":[1,0,-1,0.5],"motorFrequencies":[1,2,3,4],"motorPhases":[0,1,2,3]}`

func TestDecodeDefaults(t *testing.T) {
	s, err := Decode([]byte(`{"population":[{"genome":` + minimalGenome + `}]}`))
	require.NoError(t, err)
	assert.Equal(t, 0, s.Generation)
	assert.Equal(t, 1, s.PopulationSize)
	assert.Equal(t, DefaultMutationRate, s.MutationRate)
	assert.Equal(t, DefaultMutationMagnitude, s.MutationMagnitude)
	assert.Equal(t, 1, s.NumChampions, "default champions capped by population size")
}

func TestDecodeEmptyPopulation(t *testing.T) {
	s, err := Decode([]byte(`{"population":[]}`))
	require.NoError(t, err)
	assert.Equal(t, DefaultPopulationSize, s.PopulationSize)
	assert.Equal(t, DefaultNumChampions, s.NumChampions)
	assert.Empty(t, s.Population)
}

func TestDecodeKeepsExplicitZero(t *testing.T) {
	s, err := Decode([]byte(`{"mutationRate":0,"numChampions":0,"population":[]}`))
	require.NoError(t, err)
	assert.Equal(t, 0.0, s.MutationRate)
	assert.Equal(t, 0, s.NumChampions)
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"missing population", `{"generation":3}`},
		{"population object", `{"population":{}}`},
		{"population null", `{"population":null}`},
		{"missing genome", `{"population":[{"name":"x"}]}`},
		{"short motor array", `{"population":[{"genome":{"bodyWidth":0.5,"bodyHeight":0.3,"legSegmentLength":0.4,"legSegmentThickness":0.1,"motorAmplitudes":[1],"motorFrequencies":[1,2,3,4],"motorPhases":[0,1,2,3]}}]}`},
		{"missing scalar", `{"population":[{"genome":{"bodyHeight":0.3,"legSegmentLength":0.4,"legSegmentThickness":0.1,"motorAmplitudes":[1,0,-1,0.5],"motorFrequencies":[1,2,3,4],"motorPhases":[0,1,2,3]}}]}`},
		{"gene out of range", `{"population":[{"genome":` + strings.Replace(minimalGenome, `"bodyWidth":0.5`, `"bodyWidth":5`, 1) + `}]}`},
		{"ill-typed gene", `{"population":[{"genome":` + strings.Replace(minimalGenome, `"bodyWidth":0.5`, `"bodyWidth":"wide"`, 1) + `}]}`},
		{"negative score", `{"population":[{"score":-1,"genome":` + minimalGenome + `}]}`},
		{"mutation rate", `{"mutationRate":2,"population":[]}`},
		{"population size", `{"populationSize":0,"population":[]}`},
		{"negative generation", `{"generation":-1,"population":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.body))
			assert.ErrorIs(t, err, ErrInvalidSnapshot)
		})
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs", "snap.json")
	s := sample()
	require.NoError(t, Save(path, s))
	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, s, got)
}
