// Package snapshot reads and writes the flat JSON population format.
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"walkerevo/internal/genome"
)

// ErrInvalidSnapshot is wrapped by every decoding failure.
var ErrInvalidSnapshot = errors.New("invalid snapshot")

// Defaults applied to missing fields.
const (
	DefaultPopulationSize    = 50
	DefaultMutationRate      = 0.1
	DefaultMutationMagnitude = 0.2
	DefaultNumChampions      = 2
)

// Snapshot is a population together with the parameters that produced it.
// Empty SelectionMethod and CrossoverMethod, zero TournamentSize and nil
// CrossoverRate mean the field was absent.
type Snapshot struct {
	Generation        int            `json:"generation"`
	PopulationSize    int            `json:"populationSize"`
	MutationRate      float64        `json:"mutationRate"`
	MutationMagnitude float64        `json:"mutationMagnitude"`
	NumChampions      int            `json:"numChampions"`
	SelectionMethod   string         `json:"selectionMethod,omitempty"`
	CrossoverMethod   string         `json:"crossoverMethod,omitempty"`
	CrossoverRate     *float64       `json:"crossoverRate,omitempty"`
	TournamentSize    int            `json:"tournamentSize,omitempty"`
	Population        []Entry        `json:"population"`
	FitnessHistory    []HistoryEntry `json:"fitnessHistory,omitempty"`
}

// Entry is one walker. An empty Name asks the importer to generate one.
type Entry struct {
	Name   string        `json:"name"`
	Score  float64       `json:"score"`
	Genome genome.Genome `json:"genome"`
}

// HistoryEntry is one generation of fitness history.
type HistoryEntry struct {
	Generation int     `json:"generation"`
	Best       float64 `json:"bestScore"`
	Average    float64 `json:"avgScore"`
	Worst      float64 `json:"worstScore,omitempty"`
	StdDev     float64 `json:"stdDev,omitempty"`
}

type wireSnapshot struct {
	Generation        *int            `json:"generation"`
	PopulationSize    *int            `json:"populationSize"`
	MutationRate      *float64        `json:"mutationRate"`
	MutationMagnitude *float64        `json:"mutationMagnitude"`
	NumChampions      *int            `json:"numChampions"`
	SelectionMethod   string          `json:"selectionMethod"`
	CrossoverMethod   string          `json:"crossoverMethod"`
	CrossoverRate     *float64        `json:"crossoverRate"`
	TournamentSize    int             `json:"tournamentSize"`
	Population        json.RawMessage `json:"population"`
	FitnessHistory    []HistoryEntry  `json:"fitnessHistory"`
}

type wireEntry struct {
	Name   *string     `json:"name"`
	Score  *float64    `json:"score"`
	Genome *wireGenome `json:"genome"`
}

type wireGenome struct {
	BodyWidth    *float64  `json:"bodyWidth"`
	BodyHeight   *float64  `json:"bodyHeight"`
	LegLength    *float64  `json:"legSegmentLength"`
	LegThickness *float64  `json:"legSegmentThickness"`
	Amplitudes   []float64 `json:"motorAmplitudes"`
	Frequencies  []float64 `json:"motorFrequencies"`
	Phases       []float64 `json:"motorPhases"`
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidSnapshot, fmt.Sprintf(format, args...))
}

// Decode parses and validates a snapshot. Missing optional fields take their
// defaults; a missing or non-array population, an incomplete genome or any
// out-of-range value fails with ErrInvalidSnapshot.
func Decode(data []byte) (Snapshot, error) {
	var w wireSnapshot
	if err := json.Unmarshal(data, &w); err != nil {
		return Snapshot{}, invalid("%v", err)
	}
	raw := bytes.TrimSpace(w.Population)
	if len(raw) == 0 || raw[0] != '[' {
		return Snapshot{}, invalid("population must be an array")
	}
	var entries []wireEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return Snapshot{}, invalid("population: %v", err)
	}

	s := Snapshot{
		PopulationSize:    DefaultPopulationSize,
		MutationRate:      DefaultMutationRate,
		MutationMagnitude: DefaultMutationMagnitude,
		NumChampions:      DefaultNumChampions,
		SelectionMethod:   w.SelectionMethod,
		CrossoverMethod:   w.CrossoverMethod,
		CrossoverRate:     w.CrossoverRate,
		TournamentSize:    w.TournamentSize,
		FitnessHistory:    w.FitnessHistory,
		Population:        make([]Entry, 0, len(entries)),
	}
	if len(entries) > 0 {
		s.PopulationSize = len(entries)
	}
	if w.Generation != nil {
		s.Generation = *w.Generation
	}
	if w.PopulationSize != nil {
		s.PopulationSize = *w.PopulationSize
	}
	if w.MutationRate != nil {
		s.MutationRate = *w.MutationRate
	}
	if w.MutationMagnitude != nil {
		s.MutationMagnitude = *w.MutationMagnitude
	}
	if w.NumChampions != nil {
		s.NumChampions = *w.NumChampions
	} else {
		s.NumChampions = min(s.NumChampions, s.PopulationSize)
	}

	for i, e := range entries {
		entry, err := e.entry()
		if err != nil {
			return Snapshot{}, invalid("population[%d]: %v", i, err)
		}
		s.Population = append(s.Population, entry)
	}
	if err := s.Validate(); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

func (e wireEntry) entry() (Entry, error) {
	if e.Genome == nil {
		return Entry{}, errors.New("missing genome")
	}
	g, err := e.Genome.genome()
	if err != nil {
		return Entry{}, err
	}
	out := Entry{Genome: g}
	if e.Name != nil {
		out.Name = *e.Name
	}
	if e.Score != nil {
		out.Score = *e.Score
	}
	return out, nil
}

func (w wireGenome) genome() (genome.Genome, error) {
	var g genome.Genome
	scalars := []struct {
		name string
		src  *float64
		dst  *float64
	}{
		{"bodyWidth", w.BodyWidth, &g.BodyWidth},
		{"bodyHeight", w.BodyHeight, &g.BodyHeight},
		{"legSegmentLength", w.LegLength, &g.LegLength},
		{"legSegmentThickness", w.LegThickness, &g.LegThickness},
	}
	for _, f := range scalars {
		if f.src == nil {
			return g, fmt.Errorf("genome missing %s", f.name)
		}
		*f.dst = *f.src
	}
	arrays := []struct {
		name string
		src  []float64
		dst  *[genome.NumMotors]float64
	}{
		{"motorAmplitudes", w.Amplitudes, &g.Amplitudes},
		{"motorFrequencies", w.Frequencies, &g.Frequencies},
		{"motorPhases", w.Phases, &g.Phases},
	}
	for _, f := range arrays {
		if len(f.src) != genome.NumMotors {
			return g, fmt.Errorf("genome %s has %d values, want %d", f.name, len(f.src), genome.NumMotors)
		}
		copy(f.dst[:], f.src)
	}
	if err := g.Validate(); err != nil {
		return g, err
	}
	return g, nil
}

// Validate checks the ranges of every field.
func (s Snapshot) Validate() error {
	switch {
	case s.Generation < 0:
		return invalid("generation %d is negative", s.Generation)
	case s.PopulationSize < 1:
		return invalid("populationSize %d must be at least 1", s.PopulationSize)
	case !(s.MutationRate >= 0 && s.MutationRate <= 1):
		return invalid("mutationRate %v outside [0, 1]", s.MutationRate)
	case !(s.MutationMagnitude >= 0) || math.IsInf(s.MutationMagnitude, 0):
		return invalid("mutationMagnitude %v is negative", s.MutationMagnitude)
	case s.NumChampions < 0 || s.NumChampions > s.PopulationSize:
		return invalid("numChampions %d outside [0, %d]", s.NumChampions, s.PopulationSize)
	case s.TournamentSize < 0:
		return invalid("tournamentSize %d is negative", s.TournamentSize)
	case s.CrossoverRate != nil && !(*s.CrossoverRate >= 0 && *s.CrossoverRate <= 1):
		return invalid("crossoverRate %v outside [0, 1]", *s.CrossoverRate)
	}
	for i, e := range s.Population {
		if !(e.Score >= 0) || math.IsInf(e.Score, 0) {
			return invalid("population[%d]: score %v must be a non-negative number", i, e.Score)
		}
		if err := e.Genome.Validate(); err != nil {
			return invalid("population[%d]: %v", i, err)
		}
	}
	return nil
}

// Encode writes the snapshot as indented JSON.
func Encode(s Snapshot) ([]byte, error) {
	if s.Population == nil {
		s.Population = []Entry{}
	}
	return json.MarshalIndent(s, "", "  ")
}

// Read decodes a snapshot from r.
func Read(r io.Reader) (Snapshot, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Snapshot{}, err
	}
	return Decode(data)
}

// Save writes the snapshot to path, creating parent directories.
func Save(path string, s Snapshot) error {
	data, err := Encode(s)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Load reads a snapshot file.
func Load(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	return Decode(data)
}
