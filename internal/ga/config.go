package ga

import (
	"fmt"
	"math"
)

// Selection strategy names.
const (
	SelectRoulette   = "roulette"
	SelectTournament = "tournament"
	SelectRanking    = "ranking"
)

// Crossover method names.
const (
	CrossSinglePoint = "single_point"
	CrossTwoPoint    = "two_point"
	CrossUniform     = "uniform"
)

// Config holds the evolution parameters
type Config struct {
	PopulationSize    int     `yaml:"population_size" json:"populationSize"`
	EliteCount        int     `yaml:"elite_count" json:"numChampions"`
	MutationRate      float64 `yaml:"mutation_rate" json:"mutationRate"`
	MutationMagnitude float64 `yaml:"mutation_magnitude" json:"mutationMagnitude"`
	Selection         string  `yaml:"selection" json:"selectionMethod"`
	TournamentSize    int     `yaml:"tournament_size" json:"tournamentSize"`
	RouletteEpsilon   float64 `yaml:"roulette_epsilon" json:"rouletteEpsilon"`
	Crossover         string  `yaml:"crossover" json:"crossoverMethod"`
	CrossoverRate     float64 `yaml:"crossover_rate" json:"crossoverRate"`

	// Generations stops the run once reached. Zero runs until stopped.
	Generations        int     `yaml:"generations" json:"generations"`
	ConvergenceWindow  int     `yaml:"convergence_window" json:"convergenceWindow"`
	ConvergenceEpsilon float64 `yaml:"convergence_epsilon" json:"convergenceEpsilon"`

	ChampionSuffix string `yaml:"champion_suffix" json:"championSuffix"`
}

// DefaultConfig returns the parameters of the classic walker run.
func DefaultConfig() Config {
	return Config{
		PopulationSize:    50,
		EliteCount:        2,
		MutationRate:      0.1,
		MutationMagnitude: 0.2,
		Selection:         SelectRoulette,
		TournamentSize:    3,
		RouletteEpsilon:   0.1,
		Crossover:         CrossUniform,
		CrossoverRate:     1,
		ChampionSuffix:    "_copy",
	}
}

// ConfigError names the configuration field that was rejected.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("ga config: %s %s", e.Field, e.Reason)
}

// Validate rejects out-of-range parameters. It never adjusts values.
func (c Config) Validate() error {
	switch {
	case c.PopulationSize < 1:
		return &ConfigError{"population_size", "must be at least 1"}
	case c.EliteCount < 0:
		return &ConfigError{"elite_count", "must not be negative"}
	case c.EliteCount > c.PopulationSize:
		return &ConfigError{"elite_count", fmt.Sprintf("must not exceed population_size (%d)", c.PopulationSize)}
	case !unit(c.MutationRate):
		return &ConfigError{"mutation_rate", "must be within [0, 1]"}
	case !(c.MutationMagnitude >= 0) || math.IsInf(c.MutationMagnitude, 0):
		return &ConfigError{"mutation_magnitude", "must be a non-negative number"}
	case !unit(c.CrossoverRate):
		return &ConfigError{"crossover_rate", "must be within [0, 1]"}
	case c.Generations < 0:
		return &ConfigError{"generations", "must not be negative"}
	case c.ConvergenceWindow < 0:
		return &ConfigError{"convergence_window", "must not be negative"}
	case !(c.ConvergenceEpsilon >= 0):
		return &ConfigError{"convergence_epsilon", "must not be negative"}
	}
	switch c.Selection {
	case SelectRoulette:
		if !(c.RouletteEpsilon > 0) {
			return &ConfigError{"roulette_epsilon", "must be positive"}
		}
	case SelectRanking:
	case SelectTournament:
		if c.TournamentSize < 1 {
			return &ConfigError{"tournament_size", "must be at least 1"}
		}
	default:
		return &ConfigError{"selection", fmt.Sprintf("unknown method %q", c.Selection)}
	}
	switch c.Crossover {
	case CrossSinglePoint, CrossTwoPoint, CrossUniform:
	default:
		return &ConfigError{"crossover", fmt.Sprintf("unknown method %q", c.Crossover)}
	}
	return nil
}

func unit(v float64) bool { return v >= 0 && v <= 1 }
