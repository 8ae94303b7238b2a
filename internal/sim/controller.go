package sim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"

	"walkerevo/internal/ga"
	"walkerevo/internal/physics"
	"walkerevo/internal/snapshot"
)

// ControllerConfig configures a live evolution run.
type ControllerConfig struct {
	GA      ga.Config
	Round   Config
	Physics physics.Settings
	// StepsPerTick is how many physics steps one Tick advances.
	StepsPerTick int
}

// Status summarizes a live run.
type Status struct {
	Generation int      `json:"generation"`
	State      string   `json:"state"`
	Paused     bool     `json:"paused"`
	Elapsed    float64  `json:"elapsed"`
	Duration   float64  `json:"duration"`
	Population int      `json:"population"`
	BestEver   *float64 `json:"bestEver,omitempty"`
	BestName   string   `json:"bestName,omitempty"`
}

// Controller runs rounds back to back: it realizes the current generation,
// steps it a few physics steps per Tick, scores it when the round is over
// and evolves the next generation. It is not safe for concurrent use.
type Controller struct {
	cfg       ControllerConfig
	engine    *ga.Engine
	world     physics.World
	roundOpts []RoundOption
	log       *slog.Logger

	round  *Round
	paused bool
}

// ControllerOption configures a Controller.
type ControllerOption func(*controllerOptions)

type controllerOptions struct {
	round  []RoundOption
	engine []ga.Option
	log    *slog.Logger
}

// WithRoundOptions applies opts to every round.
func WithRoundOptions(opts ...RoundOption) ControllerOption {
	return func(o *controllerOptions) { o.round = append(o.round, opts...) }
}

// WithEngineOptions passes opts to the engine.
func WithEngineOptions(opts ...ga.Option) ControllerOption {
	return func(o *controllerOptions) { o.engine = append(o.engine, opts...) }
}

// WithControllerLogger sets the logger for the controller and its engine.
func WithControllerLogger(l *slog.Logger) ControllerOption {
	return func(o *controllerOptions) { o.log = l }
}

// NewController creates the engine for cfg.GA and an initial population.
// Every round is realized in world.
func NewController(cfg ControllerConfig, rng *rand.Rand, world physics.World, opts ...ControllerOption) (*Controller, error) {
	if cfg.StepsPerTick < 1 {
		cfg.StepsPerTick = 1
	}
	o := controllerOptions{log: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))}
	for _, opt := range opts {
		opt(&o)
	}
	c := &Controller{
		cfg:       cfg,
		world:     world,
		roundOpts: o.round,
		log:       o.log,
	}
	engineOpts := append([]ga.Option{ga.WithLogger(o.log)}, o.engine...)
	engineOpts = append(engineOpts, ga.WithDiscardHook(c.discard))
	engine, err := ga.NewEngine(cfg.GA, rng, engineOpts...)
	if err != nil {
		return nil, err
	}
	c.engine = engine
	engine.Initialize()
	return c, nil
}

func (c *Controller) discard(w *ga.Walker) {
	if c.round == nil {
		return
	}
	if err := c.round.ReleaseWalker(w.ID); err != nil {
		c.log.Warn("release walker", "walker", w.Name, "err", err)
	}
}

// Engine exposes the underlying engine for read access.
func (c *Controller) Engine() *ga.Engine { return c.engine }

// Paused reports whether stepping is suspended.
func (c *Controller) Paused() bool { return c.paused }

// Pause stops physics stepping and sets every motor of the current round to
// zero. Population, generation and the current round are kept.
func (c *Controller) Pause() {
	c.paused = true
	if c.round == nil {
		return
	}
	if err := c.round.Halt(); err != nil {
		c.log.Warn("halt motors", "err", err)
	}
}

// Resume continues a paused run.
func (c *Controller) Resume() { c.paused = false }

// Reset releases the current round and starts over with a random population.
func (c *Controller) Reset() error {
	err := c.endRound()
	c.engine.Reset()
	return err
}

func (c *Controller) endRound() error {
	if c.round == nil {
		return nil
	}
	err := c.round.Release()
	c.round = nil
	return err
}

// Tick advances the run by up to StepsPerTick physics steps. When the
// round completes it is scored and the next generation bred. A paused or
// finished run does nothing. Physics failures end the round and are
// returned; the population is left unevaluated.
func (c *Controller) Tick(ctx context.Context) error {
	if c.paused || c.engine.State() == ga.StateDone {
		return nil
	}
	if c.round == nil {
		r, err := NewRound(c.world, c.cfg.Physics, c.cfg.Round, c.engine.Population(), c.roundOpts...)
		if err != nil {
			return fmt.Errorf("start round: %w", err)
		}
		c.round = r
		c.log.Debug("round started", "generation", c.engine.Generation(), "walkers", len(r.walkers))
	}
	for i := 0; i < c.cfg.StepsPerTick && !c.round.Done(); i++ {
		if err := c.round.Step(ctx); err != nil {
			return errors.Join(err, c.endRound())
		}
	}
	if !c.round.Done() {
		return nil
	}

	scores, err := c.round.Finish()
	if err != nil {
		c.round = nil
		return err
	}
	if err := c.engine.MarkEvaluated(scores); err != nil {
		c.round = nil
		return err
	}
	_, err = c.engine.Evolve(ctx)
	c.round = nil
	return err
}

// Run ticks until the engine is done or ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	for c.engine.State() != ga.StateDone {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.paused {
			return nil
		}
		if err := c.Tick(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Status reports the run's progress.
func (c *Controller) Status() Status {
	s := Status{
		Generation: c.engine.Generation(),
		State:      c.engine.State().String(),
		Paused:     c.paused,
		Duration:   c.cfg.Round.Duration,
		Population: len(c.engine.View()),
	}
	if c.round != nil {
		s.Elapsed = c.round.Elapsed()
	}
	if best, ok := c.engine.BestEver(); ok {
		s.BestEver = &best.Fitness
		s.BestName = best.Name
	}
	return s
}

// Views returns the live round's bodies, or the population without bodies
// between rounds.
func (c *Controller) Views() ([]WalkerView, error) {
	if c.round != nil {
		return c.round.Views()
	}
	pop := c.engine.View()
	out := make([]WalkerView, len(pop))
	for i, v := range pop {
		out[i] = WalkerView{WalkerView: v}
	}
	return out, nil
}

// Export snapshots the current population.
func (c *Controller) Export() snapshot.Snapshot {
	return c.engine.Snapshot()
}

// Import replaces the population with s. On error nothing changes.
func (c *Controller) Import(s snapshot.Snapshot) error {
	if err := c.engine.ValidateSnapshot(s); err != nil {
		return err
	}
	if err := c.endRound(); err != nil {
		c.log.Warn("release round before import", "err", err)
	}
	return c.engine.Restore(s)
}
