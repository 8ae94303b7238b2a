// Package eval provides the fitness sources the GA engine can run on.
package eval

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sync"

	"github.com/google/uuid"

	"walkerevo/internal/fitness"
	"walkerevo/internal/ga"
	"walkerevo/internal/motor"
	"walkerevo/internal/physics"
	"walkerevo/internal/sim"
)

// Config tunes physical evaluation.
type Config struct {
	// Trials is the number of independent rounds per generation, each with
	// its own motor noise stream.
	Trials int `yaml:"trials"`
	// RobustnessLambda weighs the score deviation across trials.
	RobustnessLambda float64 `yaml:"robustness_lambda"`
	// Workers bounds the rounds run in parallel. Zero uses every CPU.
	Workers int `yaml:"workers"`
	// Mode selects "physics" or "surrogate" scoring.
	Mode string `yaml:"mode"`
}

// Evaluator modes.
const (
	ModePhysics   = "physics"
	ModeSurrogate = "surrogate"
)

// Evaluator scores a population by running it through physics rounds.
// Each trial realizes the whole population in its own world, so trials can
// run in parallel while every round stays single threaded.
type Evaluator struct {
	cfg      Config
	settings physics.Settings
	round    sim.Config
	motor    motor.Controller
	params   fitness.Params
	seed     int64
	newWorld func(physics.Settings) (physics.World, error)

	mu    sync.Mutex
	calls int64
	last  map[uuid.UUID]AggregatedStats
}

// NewEvaluator creates a physics evaluator. seed drives the motor noise of
// every trial.
func NewEvaluator(cfg Config, settings physics.Settings, round sim.Config, mc motor.Controller, params fitness.Params, seed int64) *Evaluator {
	if cfg.Trials < 1 {
		cfg.Trials = 1
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return &Evaluator{
		cfg:      cfg,
		settings: settings,
		round:    round,
		motor:    mc,
		params:   params,
		seed:     seed,
		newWorld: physics.New,
	}
}

// TrialSeed returns the noise seed of trial i in evaluation call n.
func (e *Evaluator) TrialSeed(n int64, trial int) int64 {
	return e.seed + n*int64(e.cfg.Trials) + int64(trial)
}

// Evaluate runs every trial and sets each walker's fitness to its
// robustness score. The first trial failure is returned and no fitness is
// changed.
func (e *Evaluator) Evaluate(ctx context.Context, walkers []*ga.Walker) error {
	e.mu.Lock()
	n := e.calls
	e.calls++
	e.mu.Unlock()

	scores := make([]map[uuid.UUID]float64, e.cfg.Trials)
	errs := make([]error, e.cfg.Trials)

	var wg sync.WaitGroup
	sem := make(chan struct{}, e.cfg.Workers)
	for trial := 0; trial < e.cfg.Trials; trial++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(trial int) {
			defer wg.Done()
			defer func() { <-sem }()
			scores[trial], errs[trial] = e.runTrial(ctx, walkers, e.TrialSeed(n, trial))
		}(trial)
	}
	wg.Wait()

	for trial, err := range errs {
		if err != nil {
			return fmt.Errorf("trial %d: %w", trial, err)
		}
	}

	last := make(map[uuid.UUID]AggregatedStats, len(walkers))
	per := make([]float64, e.cfg.Trials)
	for _, w := range walkers {
		for trial := range scores {
			per[trial] = scores[trial][w.ID]
		}
		agg := Aggregate(per)
		last[w.ID] = agg
		w.Fitness = agg.RobustnessScore(e.cfg.RobustnessLambda)
	}
	e.mu.Lock()
	e.last = last
	e.mu.Unlock()
	return nil
}

// runTrial realizes copies of the walkers so parallel trials never share
// a walker.
func (e *Evaluator) runTrial(ctx context.Context, walkers []*ga.Walker, seed int64) (map[uuid.UUID]float64, error) {
	copies := make([]*ga.Walker, len(walkers))
	for i, w := range walkers {
		copies[i] = w.Clone()
	}
	world, err := e.newWorld(e.settings)
	if err != nil {
		return nil, err
	}
	defer world.Close()
	r, err := sim.NewRound(world, e.settings, e.round, copies,
		sim.WithMotor(e.motor),
		sim.WithFitness(e.params),
		sim.WithNoiseSeed(seed),
	)
	if err != nil {
		return nil, err
	}
	if err := r.Run(ctx); err != nil {
		_ = r.Release()
		return nil, err
	}
	return r.Finish()
}

// Stats returns the per-trial statistics of the last evaluation.
func (e *Evaluator) Stats(id uuid.UUID) (AggregatedStats, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.last[id]
	return s, ok
}

// EvaluateWithTrace runs a single traced round for the given walkers with
// the noise stream of seed.
func (e *Evaluator) EvaluateWithTrace(ctx context.Context, walkers []*ga.Walker, seed int64, every int) (*sim.Trace, error) {
	copies := make([]*ga.Walker, len(walkers))
	for i, w := range walkers {
		copies[i] = w.Clone()
	}
	tr := sim.NewTrace(seed, every)
	world, err := e.newWorld(e.settings)
	if err != nil {
		return nil, err
	}
	defer world.Close()
	r, err := sim.NewRound(world, e.settings, e.round, copies,
		sim.WithMotor(e.motor),
		sim.WithFitness(e.params),
		sim.WithNoiseSeed(seed),
		sim.WithTrace(tr),
	)
	if err != nil {
		return nil, err
	}
	if err := r.Run(ctx); err != nil {
		_ = r.Release()
		return nil, err
	}
	if _, err := r.Finish(); err != nil {
		return nil, err
	}
	return tr, nil
}

// Surrogate scores walkers from their genomes alone, without physics.
type Surrogate struct {
	rng *rand.Rand
}

// NewSurrogate creates a surrogate evaluator. A nil rng makes it noise free.
func NewSurrogate(rng *rand.Rand) *Surrogate {
	return &Surrogate{rng: rng}
}

func (s *Surrogate) Evaluate(ctx context.Context, walkers []*ga.Walker) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, w := range walkers {
		w.Fitness = fitness.Surrogate(w.Genome, s.rng)
	}
	return nil
}
