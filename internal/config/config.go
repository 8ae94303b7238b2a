// Package config loads the run configuration: embedded defaults overlaid
// with an optional user YAML file.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"walkerevo/internal/eval"
	"walkerevo/internal/fitness"
	"walkerevo/internal/ga"
	"walkerevo/internal/motor"
	"walkerevo/internal/physics"
	"walkerevo/internal/sim"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config is the root configuration structure
type Config struct {
	Seed    int64            `yaml:"seed"`
	GA      ga.Config        `yaml:"ga"`
	Motor   motor.Controller `yaml:"motor"`
	Fitness fitness.Params   `yaml:"fitness"`
	Physics physics.Settings `yaml:"physics"`
	Round   RoundConfig      `yaml:"round"`
	Eval    eval.Config      `yaml:"eval"`
	Logging LogConfig        `yaml:"logging"`
	Store   StoreConfig      `yaml:"store"`
	Server  ServerConfig     `yaml:"server"`
	Events  EventsConfig     `yaml:"events"`
}

// RoundConfig is a sim.Config plus an optional named length.
type RoundConfig struct {
	sim.Config `yaml:",inline"`
	// Length names a preset from sim.RoundLengths and overrides Duration.
	Length string `yaml:"length"`
}

// LogConfig defines logging parameters
type LogConfig struct {
	Level             string `yaml:"level"`  // debug|info|warn|error
	Format            string `yaml:"format"` // text|json
	Dir               string `yaml:"dir"`
	EveryGenSummary   bool   `yaml:"every_gen_summary"`
	TopN              int    `yaml:"top_n"`
	SaveChampionEvery int    `yaml:"save_champion_every"`
	TraceEvery        int    `yaml:"trace_every"`
	TraceFrameEvery   int    `yaml:"trace_frame_every"`
}

// StoreConfig selects the snapshot store.
type StoreConfig struct {
	Kind            string `yaml:"kind"` // memory|sqlite|postgres
	DSN             string `yaml:"dsn"`
	CheckpointEvery int    `yaml:"checkpoint_every"`
}

// ServerConfig configures cmd/serve.
type ServerConfig struct {
	Addr           string `yaml:"addr"`
	TicksPerSecond int    `yaml:"ticks_per_second"`
	StepsPerTick   int    `yaml:"steps_per_tick"`
}

// EventsConfig configures generation event publishing. An empty NATSURL
// disables it.
type EventsConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

// FieldError names the configuration key that was rejected.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("config: %s %s", e.Field, e.Reason)
}

// Default returns the embedded defaults.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults: %v", err))
	}
	return cfg
}

// Load reads a YAML config file over the embedded defaults. If path is
// empty only the defaults are used. The result is validated.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// only overwrites fields present in the file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) resolve() error {
	if c.Round.Length == "" {
		return nil
	}
	d, ok := sim.RoundLengths[c.Round.Length]
	if !ok {
		return &FieldError{"round.length", fmt.Sprintf("unknown preset %q", c.Round.Length)}
	}
	c.Round.Duration = d
	return nil
}

// Validate reports the first invalid field. It never adjusts values.
func (c *Config) Validate() error {
	if err := c.GA.Validate(); err != nil {
		var ce *ga.ConfigError
		if errors.As(err, &ce) {
			return &FieldError{"ga." + ce.Field, ce.Reason}
		}
		return err
	}
	switch {
	case !(c.Motor.Noise >= 0) || math.IsInf(c.Motor.Noise, 0):
		return &FieldError{"motor.noise", "must be a non-negative number"}
	case !finite(c.Motor.Gain):
		return &FieldError{"motor.gain", "must be a number"}
	case !(c.Fitness.StabilityMax >= 0):
		return &FieldError{"fitness.stability_max", "must not be negative"}
	case !(c.Physics.TimeStep > 0) || math.IsInf(c.Physics.TimeStep, 0):
		return &FieldError{"physics.time_step", "must be positive"}
	case c.Physics.VelocityIterations < 1:
		return &FieldError{"physics.velocity_iterations", "must be at least 1"}
	case c.Physics.PositionIterations < 1:
		return &FieldError{"physics.position_iterations", "must be at least 1"}
	case !finite(c.Physics.Gravity):
		return &FieldError{"physics.gravity", "must be a number"}
	case c.Physics.Engine != physics.EngineBox2D && c.Physics.Engine != physics.EngineSandbox:
		return &FieldError{"physics.engine", fmt.Sprintf("unknown engine %q", c.Physics.Engine)}
	case !(c.Round.Duration > 0) || math.IsInf(c.Round.Duration, 0):
		return &FieldError{"round.duration", "must be positive"}
	case !finite(c.Round.StartX) || !finite(c.Round.StartY):
		return &FieldError{"round.start", "must be a finite position"}
	case c.Round.MaxTorque < 0:
		return &FieldError{"round.max_torque", "must not be negative"}
	case c.Eval.Trials < 1:
		return &FieldError{"eval.trials", "must be at least 1"}
	case !(c.Eval.RobustnessLambda >= 0):
		return &FieldError{"eval.robustness_lambda", "must not be negative"}
	case c.Eval.Workers < 0:
		return &FieldError{"eval.workers", "must not be negative"}
	case c.Eval.Mode != eval.ModePhysics && c.Eval.Mode != eval.ModeSurrogate:
		return &FieldError{"eval.mode", fmt.Sprintf("unknown mode %q", c.Eval.Mode)}
	case c.Logging.SaveChampionEvery < 0:
		return &FieldError{"logging.save_champion_every", "must not be negative"}
	case c.Logging.TraceEvery < 0 || c.Logging.TraceFrameEvery < 0:
		return &FieldError{"logging.trace_every", "must not be negative"}
	case c.Store.CheckpointEvery < 0:
		return &FieldError{"store.checkpoint_every", "must not be negative"}
	case c.Server.TicksPerSecond < 1:
		return &FieldError{"server.ticks_per_second", "must be at least 1"}
	case c.Server.StepsPerTick < 1:
		return &FieldError{"server.steps_per_tick", "must be at least 1"}
	}
	if _, err := c.Logging.SlogLevel(); err != nil {
		return &FieldError{"logging.level", err.Error()}
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return &FieldError{"logging.format", fmt.Sprintf("unknown format %q", c.Logging.Format)}
	}
	switch c.Store.Kind {
	case "memory":
	case "sqlite", "postgres":
		if c.Store.DSN == "" {
			return &FieldError{"store.dsn", "is required for " + c.Store.Kind}
		}
	default:
		return &FieldError{"store.kind", fmt.Sprintf("unknown store %q", c.Store.Kind)}
	}
	if c.Events.NATSURL != "" && c.Events.Subject == "" {
		return &FieldError{"events.subject", "is required when nats_url is set"}
	}
	return nil
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var lv slog.Level
	if err := lv.UnmarshalText([]byte(strings.ToUpper(l.Level))); err != nil {
		return 0, fmt.Errorf("unknown level %q", l.Level)
	}
	return lv, nil
}

// Controller returns the settings of a live run.
func (c *Config) Controller() sim.ControllerConfig {
	return sim.ControllerConfig{
		GA:           c.GA,
		Round:        c.Round.Config,
		Physics:      c.Physics,
		StepsPerTick: c.Server.StepsPerTick,
	}
}

// WriteYAML writes the effective configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
