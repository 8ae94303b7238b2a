package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walkerevo/internal/fitness"
	"walkerevo/internal/ga"
	"walkerevo/internal/physics"
	"walkerevo/internal/sim"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaultsMatchPackageDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ga.DefaultConfig(), cfg.GA)
	assert.Equal(t, fitness.DefaultParams(), cfg.Fitness)
	assert.Equal(t, sim.DefaultConfig(), cfg.Round.Config)
	assert.InDelta(t, physics.DefaultSettings().TimeStep, cfg.Physics.TimeStep, 1e-15)
	assert.Equal(t, physics.DefaultSettings().VelocityIterations, cfg.Physics.VelocityIterations)
	assert.Equal(t, physics.EngineBox2D, cfg.Physics.Engine)
	assert.Equal(t, 1.0, cfg.Motor.Gain)
	assert.Equal(t, "memory", cfg.Store.Kind)
	assert.Equal(t, int64(1337), cfg.Seed)
}

func TestLoadOverlaysUserFile(t *testing.T) {
	path := writeFile(t, `
seed: 7
ga:
  population_size: 12
  selection: tournament
round:
  length: short
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, int64(7), cfg.Seed)
	assert.Equal(t, 12, cfg.GA.PopulationSize)
	assert.Equal(t, ga.SelectTournament, cfg.GA.Selection)
	// untouched keys keep their defaults
	assert.Equal(t, 2, cfg.GA.EliteCount)
	assert.Equal(t, 0.2, cfg.GA.MutationMagnitude)
	assert.Equal(t, 10.0, cfg.Round.Duration)
	assert.Equal(t, 5.0, cfg.Round.StartY)
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"elite count", "ga: {elite_count: 99}", "ga.elite_count"},
		{"selection", "ga: {selection: lottery}", "ga.selection"},
		{"mutation rate", "ga: {mutation_rate: 1.5}", "ga.mutation_rate"},
		{"time step", "physics: {time_step: 0}", "physics.time_step"},
		{"engine", "physics: {engine: bullet}", "physics.engine"},
		{"round length", "round: {length: forever}", "round.length"},
		{"duration", "round: {duration: -1}", "round.duration"},
		{"trials", "eval: {trials: 0}", "eval.trials"},
		{"eval mode", "eval: {mode: guess}", "eval.mode"},
		{"level", "logging: {level: loud}", "logging.level"},
		{"format", "logging: {format: xml}", "logging.format"},
		{"store kind", "store: {kind: redis}", "store.kind"},
		{"store dsn", "store: {kind: sqlite}", "store.dsn"},
		{"steps per tick", "server: {steps_per_tick: 0}", "server.steps_per_tick"},
		{"subject", "events: {nats_url: 'nats://x', subject: ''}", "events.subject"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.body))
			require.Error(t, err)
			var fe *FieldError
			require.True(t, errors.As(err, &fe), "got %v", err)
			assert.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestValidateNeverClamps(t *testing.T) {
	cfg := Default()
	cfg.GA.MutationRate = 2
	require.Error(t, cfg.Validate())
	assert.Equal(t, 2.0, cfg.GA.MutationRate)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadBadYAML(t *testing.T) {
	_, err := Load(writeFile(t, "ga: [1, 2"))
	assert.Error(t, err)
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Seed = 99
	cfg.GA.Crossover = ga.CrossTwoPoint
	cfg.Store.Kind = "sqlite"
	cfg.Store.DSN = "runs/walkers.db"

	path := filepath.Join(t.TempDir(), "out", "config.yaml")
	require.NoError(t, cfg.WriteYAML(path))

	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}

func TestSlogLevel(t *testing.T) {
	lv, err := LogConfig{Level: "debug"}.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lv)

	_, err = LogConfig{Level: "chatty"}.SlogLevel()
	assert.Error(t, err)
}

func TestControllerConfig(t *testing.T) {
	cfg := Default()
	cfg.Server.StepsPerTick = 4
	cc := cfg.Controller()
	assert.Equal(t, cfg.GA, cc.GA)
	assert.Equal(t, cfg.Round.Config, cc.Round)
	assert.Equal(t, 4, cc.StepsPerTick)
}
