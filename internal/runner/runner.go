// Package runner drives a headless evolution run and writes its artifacts:
// history files, champions, traces, checkpoints, the fitness chart and the
// final results.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"walkerevo/internal/config"
	"walkerevo/internal/eval"
	"walkerevo/internal/events"
	"walkerevo/internal/ga"
	"walkerevo/internal/logging"
	"walkerevo/internal/metrics"
	"walkerevo/internal/snapshot"
	"walkerevo/internal/store"
)

// ErrUnbounded is returned for a configuration that would never stop.
var ErrUnbounded = errors.New("runner: ga.generations or ga.convergence_window must be set")

// Options plugs the run into its collaborators. Nil fields fall back to an
// in-memory store, no events, fresh metrics and a discarding logger.
type Options struct {
	Store     store.Store
	Publisher events.Publisher
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	RunID     string
}

// Runner owns one headless run.
type Runner struct {
	cfg   *config.Config
	dir   string
	store store.Store
	pub   events.Publisher
	met   *metrics.Metrics
	log   *slog.Logger
	runID string

	engine   *ga.Engine
	physics  *eval.Evaluator
	history  *logging.Logger
	best     *ga.Walker
	ranked   *ga.Walker
	genStart time.Time
}

// Summary describes a finished run.
type Summary struct {
	RunID       string
	Generations int
	Best        *ga.Walker
	History     []ga.Record
	Elapsed     time.Duration
	ResultID    string
}

// FinalResults is the final_results.json document, also stored as the
// run's result payload.
type FinalResults struct {
	RunID            string          `json:"runId"`
	Fitness          float64         `json:"fitness"`
	FinalGeneration  int             `json:"final_generation"`
	TotalGenerations int             `json:"total_generations"`
	BestIndividual   *snapshot.Entry `json:"best_individual"`
	FitnessHistory   []ga.Record     `json:"fitness_history"`
	Parameters       ga.Config       `json:"parameters"`
	Timestamp        time.Time       `json:"timestamp"`
}

// New prepares a run of cfg writing into dir.
func New(cfg *config.Config, dir string, opts Options) *Runner {
	if opts.Store == nil {
		opts.Store = store.NewMemoryStore()
		_ = opts.Store.Init(context.Background())
	}
	if opts.Publisher == nil {
		opts.Publisher = events.Nop{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	return &Runner{
		cfg:   cfg,
		dir:   dir,
		store: opts.Store,
		pub:   opts.Publisher,
		met:   opts.Metrics,
		log:   opts.Logger.With("run", opts.RunID),
		runID: opts.RunID,
	}
}

// Run evolves until the engine is done or ctx is cancelled. Artifacts that
// fail to save are logged and skipped; evaluation failures end the run.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	if r.cfg.GA.Generations < 1 && r.cfg.GA.ConvergenceWindow < 1 {
		return Summary{}, ErrUnbounded
	}
	if err := r.cfg.WriteYAML(filepath.Join(r.dir, "config.yaml")); err != nil {
		return Summary{}, err
	}

	h, err := logging.NewLogger(filepath.Join(r.dir, "history.csv"), filepath.Join(r.dir, "history.jsonl"), r.log)
	if err != nil {
		return Summary{}, err
	}
	if err := h.Init(); err != nil {
		return Summary{}, err
	}
	defer h.Close()
	r.history = h

	rng := rand.New(rand.NewSource(r.cfg.Seed))
	var evaluator ga.Evaluator
	switch r.cfg.Eval.Mode {
	case eval.ModeSurrogate:
		evaluator = eval.NewSurrogate(rand.New(rand.NewSource(r.cfg.Seed + 1)))
	default:
		r.physics = eval.NewEvaluator(r.cfg.Eval, r.cfg.Physics, r.cfg.Round.Config, r.cfg.Motor, r.cfg.Fitness, r.cfg.Seed)
		evaluator = r.physics
	}
	r.engine, err = ga.NewEngine(r.cfg.GA, rng,
		ga.WithEvaluator(evaluator),
		ga.WithLogger(r.log),
		ga.WithObserver(r.observe),
	)
	if err != nil {
		return Summary{}, err
	}

	start := time.Now()
	r.genStart = start
	r.engine.Initialize()
	r.met.LiveWalkers.Set(float64(r.cfg.GA.PopulationSize))
	r.log.Info("run started",
		"mode", r.cfg.Eval.Mode,
		"population", r.cfg.GA.PopulationSize,
		"generations", r.cfg.GA.Generations,
		"dir", r.dir,
	)

	var runErr error
	for r.engine.State() != ga.StateDone {
		if _, err := r.engine.Evolve(ctx); err != nil {
			r.met.RoundDone(err)
			runErr = err
			break
		}
		r.met.RoundDone(nil)
		r.afterGeneration(ctx)
	}

	sum := Summary{
		RunID:       r.runID,
		Generations: r.engine.Generation(),
		Best:        r.best,
		History:     r.engine.History(),
		Elapsed:     time.Since(start),
	}
	if len(sum.History) > 0 {
		sum.ResultID = r.finish(ctx, sum)
	}
	if runErr != nil {
		return sum, runErr
	}
	r.log.Info("run complete", "generations", sum.Generations, "elapsed", sum.Elapsed.Round(time.Millisecond))
	return sum, nil
}

// observe runs inside Evolve with the freshly ranked generation.
func (r *Runner) observe(rec ga.Record, ranked []*ga.Walker) {
	gen := rec.Generation + 1
	r.met.ObserveRecord(rec, time.Since(r.genStart))
	r.genStart = time.Now()
	r.publish(context.Background(), events.Generation(r.runID, rec))

	if r.cfg.Logging.EveryGenSummary {
		if err := r.history.LogGeneration(rec, ranked); err != nil {
			r.log.Warn("write generation summary", "generation", rec.Generation, "err", err)
		}
	}
	if r.cfg.Logging.TopN > 0 && gen%10 == 0 {
		r.history.LogTopK(ranked, r.cfg.Logging.TopN)
	}
	if len(ranked) == 0 {
		return
	}
	top := ranked[0]
	r.ranked = top.Clone()
	if r.physics != nil {
		if st, ok := r.physics.Stats(top.ID); ok {
			r.log.Debug("best trial stats",
				"generation", rec.Generation,
				"mean", st.ScoreMean,
				"std", st.ScoreStd,
				"min", st.ScoreMin,
				"max", st.ScoreMax,
			)
		}
	}

	if r.best == nil || top.Fitness > r.best.Fitness {
		r.best = top.Clone()
		r.met.ObserveBest(top.Fitness)
		r.publish(context.Background(), events.NewBest(r.runID, top))
		r.log.Info("new best", "generation", rec.Generation, "name", top.Name, "fitness", top.Fitness)
	}

	if every := r.cfg.Logging.SaveChampionEvery; every > 0 && gen%every == 0 {
		path := filepath.Join(r.dir, "champions", fmt.Sprintf("champion_gen%d.json", gen))
		if err := logging.SaveChampion(path, top, gen); err != nil {
			r.log.Warn("save champion", "path", path, "err", err)
		}
	}
}

// afterGeneration saves what needs the bred population or a fresh round.
// gen is the number of generations completed so far.
func (r *Runner) afterGeneration(ctx context.Context) {
	gen := r.engine.Generation()

	if every := r.cfg.Store.CheckpointEvery; every > 0 && gen%every == 0 {
		snap := r.engine.Snapshot()
		path := filepath.Join(r.dir, "checkpoints", fmt.Sprintf("checkpoint_gen_%d.json", gen))
		if err := snapshot.Save(path, snap); err != nil {
			r.log.Warn("save checkpoint", "path", path, "err", err)
		}
		rec := &store.SnapshotRecord{RunID: r.runID, Snapshot: snap}
		if err := r.store.SaveSnapshot(ctx, rec); err != nil {
			r.met.StoreErrors.Inc()
			r.log.Warn("store checkpoint", "generation", gen, "err", err)
		} else {
			r.log.Info("checkpoint saved", "generation", gen, "id", rec.ID)
		}
	}

	if every := r.cfg.Logging.TraceEvery; every > 0 && gen%every == 0 && r.physics != nil && r.ranked != nil {
		// trial 0 of the evaluation that just ranked this walker
		seed := r.physics.TrialSeed(int64(gen-1), 0)
		tr, err := r.physics.EvaluateWithTrace(ctx, []*ga.Walker{r.ranked}, seed, r.cfg.Logging.TraceFrameEvery)
		if err != nil {
			r.log.Warn("trace best walker", "generation", gen, "err", err)
			return
		}
		path := filepath.Join(r.dir, "traces", fmt.Sprintf("trace_gen%d.json", gen))
		if err := tr.Save(path); err != nil {
			r.log.Warn("save trace", "path", path, "err", err)
		}
	}
}

// finish writes the end-of-run artifacts and stores the result. It returns
// the stored result ID, or "" when storing failed.
func (r *Runner) finish(ctx context.Context, sum Summary) string {
	if sum.Best != nil {
		path := filepath.Join(r.dir, "champion_final.json")
		if err := logging.SaveChampion(path, sum.Best, sum.Generations); err != nil {
			r.log.Warn("save final champion", "path", path, "err", err)
		}
	}
	if err := logging.PlotHistory(filepath.Join(r.dir, "fitness.png"), sum.History); err != nil {
		r.log.Warn("plot history", "err", err)
	}
	if err := r.store.AppendHistory(ctx, r.runID, sum.History...); err != nil {
		r.met.StoreErrors.Inc()
		r.log.Warn("store history", "err", err)
	}

	res := FinalResults{
		RunID:            r.runID,
		FinalGeneration:  sum.Generations,
		TotalGenerations: len(sum.History),
		FitnessHistory:   sum.History,
		Parameters:       r.engine.Config(),
		Timestamp:        time.Now().UTC(),
	}
	if sum.Best != nil {
		res.Fitness = sum.Best.Fitness
		res.BestIndividual = &snapshot.Entry{Name: sum.Best.Name, Score: sum.Best.Fitness, Genome: sum.Best.Genome}
	}
	payload, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		r.log.Warn("encode final results", "err", err)
		return ""
	}
	if err := os.WriteFile(filepath.Join(r.dir, "final_results.json"), payload, 0644); err != nil {
		r.log.Warn("write final results", "err", err)
	}
	stored := &store.Result{RunID: r.runID, Generation: sum.Generations, Fitness: res.Fitness, Payload: payload}
	if err := r.store.SaveResult(ctx, stored); err != nil {
		r.met.StoreErrors.Inc()
		r.log.Warn("store final results", "err", err)
		return ""
	}
	return stored.ID
}

func (r *Runner) publish(ctx context.Context, ev events.Event) {
	if err := r.pub.Publish(ctx, ev); err != nil {
		r.log.Warn("publish event", "type", ev.Type, "err", err)
	}
}
