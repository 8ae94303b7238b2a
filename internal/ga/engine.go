package ga

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"sort"

	"github.com/google/uuid"

	"walkerevo/internal/genome"
	"walkerevo/internal/snapshot"
)

var (
	// ErrNotEvaluated is returned by Evolve when the population has no
	// fitness yet and no evaluator is configured.
	ErrNotEvaluated = errors.New("ga: population not evaluated")
	// ErrNotInitialized is returned before Initialize or Restore.
	ErrNotInitialized = errors.New("ga: engine not initialized")
)

// State is a step of the generation lifecycle.
type State int

const (
	StateUninitialized State = iota
	StatePopulationReady
	// StateEvaluating covers both a running evaluation and an evaluated
	// population waiting to be ranked.
	StateEvaluating
	StateRanked
	StateNextGenerationBuilt
	StateDone
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StatePopulationReady:
		return "population_ready"
	case StateEvaluating:
		return "evaluating"
	case StateRanked:
		return "ranked"
	case StateNextGenerationBuilt:
		return "next_generation_built"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Evaluator assigns Fitness to every walker of a generation.
type Evaluator interface {
	Evaluate(ctx context.Context, walkers []*Walker) error
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx context.Context, walkers []*Walker) error

func (f EvaluatorFunc) Evaluate(ctx context.Context, walkers []*Walker) error {
	return f(ctx, walkers)
}

// Option configures an Engine.
type Option func(*Engine)

// WithEvaluator sets the fitness source used by Evaluate and Evolve.
func WithEvaluator(ev Evaluator) Option {
	return func(e *Engine) { e.eval = ev }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithStopCondition ends the run once stop returns true for the history.
func WithStopCondition(stop func([]Record) bool) Option {
	return func(e *Engine) { e.stop = stop }
}

// WithDiscardHook is called for every walker leaving the population, so that
// its physical realization can be released.
func WithDiscardHook(fn func(*Walker)) Option {
	return func(e *Engine) { e.discard = fn }
}

// WithObserver is called with each new history record and copies of the
// ranked walkers it summarizes, fittest first.
func WithObserver(fn func(Record, []*Walker)) Option {
	return func(e *Engine) { e.observers = append(e.observers, fn) }
}

// Engine owns a population and drives it through generations. It is not
// safe for concurrent use.
type Engine struct {
	cfg       Config
	rng       *rand.Rand
	selector  Selector
	eval      Evaluator
	log       *slog.Logger
	stop      func([]Record) bool
	discard   func(*Walker)
	observers []func(Record, []*Walker)

	state      State
	generation int
	pop        *Population
	history    []Record
	evaluated  bool
	best       *Walker
}

// NewEngine validates cfg and returns an uninitialized engine. All
// randomness is drawn from rng.
func NewEngine(cfg Config, rng *rand.Rand, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, errors.New("ga: nil random source")
	}
	sel, err := NewSelector(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.ChampionSuffix == "" {
		cfg.ChampionSuffix = DefaultConfig().ChampionSuffix
	}
	e := &Engine{
		cfg:      cfg,
		rng:      rng,
		selector: sel,
		log:      slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)})),
		pop:      &Population{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) Config() Config  { return e.cfg }
func (e *Engine) State() State    { return e.state }
func (e *Engine) Generation() int { return e.generation }

// History returns a copy of the fitness history.
func (e *Engine) History() []Record {
	out := make([]Record, len(e.history))
	copy(out, e.history)
	return out
}

// Initialize replaces any current population with a random one and starts
// over from generation 0.
func (e *Engine) Initialize() {
	e.discardAll()
	e.pop = NewPopulation(e.cfg.PopulationSize, e.rng)
	e.generation = 0
	e.history = nil
	e.best = nil
	e.evaluated = false
	e.state = StatePopulationReady
	e.log.Info("population initialized", "size", e.pop.Size())
}

// Reset releases the current population and reinitializes.
func (e *Engine) Reset() {
	e.Initialize()
}

// Evaluate runs the configured evaluator over the current population.
// Errors are returned as they are and leave the generation unevaluated.
func (e *Engine) Evaluate(ctx context.Context) error {
	switch e.state {
	case StateUninitialized:
		return ErrNotInitialized
	case StateDone:
		return nil
	}
	if e.eval == nil {
		return fmt.Errorf("%w: no evaluator configured", ErrNotEvaluated)
	}
	e.state = StateEvaluating
	if err := e.eval.Evaluate(ctx, e.pop.Walkers); err != nil {
		e.state = StatePopulationReady
		return fmt.Errorf("evaluate generation %d: %w", e.generation, err)
	}
	e.sanitize()
	e.evaluated = true
	return nil
}

// MarkEvaluated records fitness scored outside the engine. Scores are keyed
// by walker ID; walkers not in scores keep their current fitness.
func (e *Engine) MarkEvaluated(scores map[uuid.UUID]float64) error {
	switch e.state {
	case StateUninitialized:
		return ErrNotInitialized
	case StateDone:
		return nil
	}
	index := make(map[uuid.UUID]*Walker, len(e.pop.Walkers))
	for _, w := range e.pop.Walkers {
		index[w.ID] = w
	}
	for id := range scores {
		if _, ok := index[id]; !ok {
			return fmt.Errorf("ga: score for unknown walker %s", id)
		}
	}
	for id, f := range scores {
		index[id].Fitness = f
	}
	e.sanitize()
	e.evaluated = true
	e.state = StateEvaluating
	return nil
}

// sanitize keeps fitness non-negative and finite.
func (e *Engine) sanitize() {
	for _, w := range e.pop.Walkers {
		if !(w.Fitness > 0) || math.IsInf(w.Fitness, 0) {
			w.Fitness = 0
		}
	}
}

// Evolve ranks the evaluated population, records its statistics and replaces
// it with the next generation. On a finished engine it does nothing and
// reports StateDone.
func (e *Engine) Evolve(ctx context.Context) (State, error) {
	switch e.state {
	case StateDone:
		return StateDone, nil
	case StateUninitialized:
		return e.state, ErrNotInitialized
	}
	if err := ctx.Err(); err != nil {
		return e.state, err
	}
	if !e.evaluated {
		if e.eval == nil {
			return e.state, ErrNotEvaluated
		}
		if err := e.Evaluate(ctx); err != nil {
			return e.state, err
		}
	}

	e.pop.SortByFitness()
	e.state = StateRanked
	rec := Summarize(e.generation, e.pop.Fitness())
	e.history = append(e.history, rec)
	if top := e.pop.Best(); top != nil && (e.best == nil || top.Fitness > e.best.Fitness) {
		e.best = top.Clone()
	}
	e.log.Info("generation evaluated", "record", rec)
	if len(e.observers) > 0 {
		ranked := e.pop.Clone().Walkers
		for _, fn := range e.observers {
			fn(rec, ranked)
		}
	}

	next := e.breed()
	e.state = StateNextGenerationBuilt

	e.discardAll()
	e.pop = next
	e.generation++
	e.evaluated = false
	e.state = StatePopulationReady
	if e.finished() {
		e.state = StateDone
		e.log.Info("evolution finished", "generation", e.generation)
	}
	return e.state, nil
}

func (e *Engine) breed() *Population {
	size := e.cfg.PopulationSize
	old := e.pop.Walkers
	next := &Population{Walkers: make([]*Walker, 0, size+1)}

	for i := 0; i < e.cfg.EliteCount && i < len(old); i++ {
		src := old[i]
		champ := NewWalker(src.Genome, src.Name+e.cfg.ChampionSuffix, e.rng)
		champ.Parents = [2]uuid.UUID{src.ID}
		next.Walkers = append(next.Walkers, champ)
	}

	for len(next.Walkers) < size {
		p1 := e.selector.Select(e.rng, old)
		p2 := e.selector.Select(e.rng, old)
		if p1 == nil || p2 == nil {
			next.Walkers = append(next.Walkers, NewWalker(genome.Random(e.rng), "", e.rng))
			continue
		}
		c1, c2 := Cross(p1.Genome, p2.Genome, e.cfg.Crossover, e.cfg.CrossoverRate, e.rng)
		for _, g := range [2]genome.Genome{c1, c2} {
			g = Mutate(g, e.cfg.MutationRate, e.cfg.MutationMagnitude, e.rng)
			child := NewWalker(g, childName(e.generation, len(next.Walkers)), e.rng)
			child.Parents = [2]uuid.UUID{p1.ID, p2.ID}
			next.Walkers = append(next.Walkers, child)
		}
	}
	next.Walkers = next.Walkers[:size]
	return next
}

func (e *Engine) discardAll() {
	for _, w := range e.pop.Walkers {
		w.Alive = false
		if e.discard != nil {
			e.discard(w)
		}
	}
}

func (e *Engine) finished() bool {
	if e.cfg.Generations > 0 && e.generation >= e.cfg.Generations {
		return true
	}
	if e.cfg.ConvergenceWindow > 0 && Converged(e.cfg.ConvergenceWindow, e.cfg.ConvergenceEpsilon)(e.history) {
		return true
	}
	return e.stop != nil && e.stop(e.history)
}

// Population returns copies of the current walkers.
func (e *Engine) Population() []*Walker {
	return e.pop.Clone().Walkers
}

// BestEver returns a copy of the fittest walker ranked so far.
func (e *Engine) BestEver() (*Walker, bool) {
	if e.best == nil {
		return nil, false
	}
	return e.best.Clone(), true
}

// WalkerView is the read-only per-walker data exposed to renderers.
type WalkerView struct {
	ID     uuid.UUID     `json:"id"`
	Name   string        `json:"name"`
	Score  float64       `json:"score"`
	Alive  bool          `json:"alive"`
	Genome genome.Genome `json:"genome"`
}

// View returns a read-only view of the current population.
func (e *Engine) View() []WalkerView {
	out := make([]WalkerView, len(e.pop.Walkers))
	for i, w := range e.pop.Walkers {
		out[i] = WalkerView{ID: w.ID, Name: w.Name, Score: w.Fitness, Alive: w.Alive, Genome: w.Genome}
	}
	return out
}

// Snapshot exports the population and the parameters that shape it.
func (e *Engine) Snapshot() snapshot.Snapshot {
	rate := e.cfg.CrossoverRate
	s := snapshot.Snapshot{
		Generation:        e.generation,
		PopulationSize:    e.cfg.PopulationSize,
		MutationRate:      e.cfg.MutationRate,
		MutationMagnitude: e.cfg.MutationMagnitude,
		NumChampions:      e.cfg.EliteCount,
		SelectionMethod:   e.cfg.Selection,
		CrossoverMethod:   e.cfg.Crossover,
		CrossoverRate:     &rate,
		TournamentSize:    e.cfg.TournamentSize,
		Population:        make([]snapshot.Entry, len(e.pop.Walkers)),
	}
	for i, w := range e.pop.Walkers {
		s.Population[i] = snapshot.Entry{Name: w.Name, Score: w.Fitness, Genome: w.Genome}
	}
	for _, r := range e.history {
		s.FitnessHistory = append(s.FitnessHistory, snapshot.HistoryEntry{
			Generation: r.Generation,
			Best:       r.Best,
			Average:    r.Average,
			Worst:      r.Worst,
			StdDev:     r.StdDev,
		})
	}
	return s
}

// ValidateSnapshot reports whether Restore would accept s.
func (e *Engine) ValidateSnapshot(s snapshot.Snapshot) error {
	_, _, err := e.restoreConfig(s)
	return err
}

func (e *Engine) restoreConfig(s snapshot.Snapshot) (Config, Selector, error) {
	if err := s.Validate(); err != nil {
		return Config{}, nil, err
	}
	cfg := e.cfg
	cfg.PopulationSize = s.PopulationSize
	cfg.EliteCount = s.NumChampions
	cfg.MutationRate = s.MutationRate
	cfg.MutationMagnitude = s.MutationMagnitude
	if s.SelectionMethod != "" {
		cfg.Selection = s.SelectionMethod
	}
	if s.CrossoverMethod != "" {
		cfg.Crossover = s.CrossoverMethod
	}
	if s.CrossoverRate != nil {
		cfg.CrossoverRate = *s.CrossoverRate
	}
	if s.TournamentSize > 0 {
		cfg.TournamentSize = s.TournamentSize
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, nil, fmt.Errorf("%w: %v", snapshot.ErrInvalidSnapshot, err)
	}
	sel, err := NewSelector(cfg)
	if err != nil {
		return Config{}, nil, fmt.Errorf("%w: %v", snapshot.ErrInvalidSnapshot, err)
	}
	return cfg, sel, nil
}

// Restore replaces the engine state with s. Nothing changes unless s and the
// configuration it implies are valid. The restored population always has
// s.PopulationSize walkers: missing ones are drawn at random and surplus
// ones are dropped lowest score first.
func (e *Engine) Restore(s snapshot.Snapshot) error {
	cfg, sel, err := e.restoreConfig(s)
	if err != nil {
		return err
	}

	e.discardAll()
	e.cfg = cfg
	e.selector = sel
	entries := s.Population
	if len(entries) > cfg.PopulationSize {
		entries = append([]snapshot.Entry(nil), entries...)
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].Score > entries[j].Score })
		entries = entries[:cfg.PopulationSize]
	}
	e.pop = &Population{Walkers: make([]*Walker, 0, cfg.PopulationSize)}
	for _, entry := range entries {
		w := NewWalker(entry.Genome, entry.Name, e.rng)
		w.Fitness = entry.Score
		e.pop.Walkers = append(e.pop.Walkers, w)
	}
	for len(e.pop.Walkers) < cfg.PopulationSize {
		e.pop.Walkers = append(e.pop.Walkers, NewWalker(genome.Random(e.rng), "", e.rng))
	}
	e.generation = s.Generation
	e.history = e.history[:0:0]
	for _, h := range s.FitnessHistory {
		e.history = append(e.history, Record{
			Generation: h.Generation,
			Best:       h.Best,
			Average:    h.Average,
			Worst:      h.Worst,
			StdDev:     h.StdDev,
		})
	}
	e.best = nil
	e.evaluated = false
	e.state = StatePopulationReady
	if e.finished() {
		e.state = StateDone
	}
	e.log.Info("population restored", "generation", e.generation, "size", e.pop.Size(), "stored", len(s.Population))
	return nil
}
