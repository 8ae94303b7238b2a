// Package sim realizes a population in a physics world and runs it through
// a timed round.
package sim

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/google/uuid"

	"walkerevo/internal/fitness"
	"walkerevo/internal/ga"
	"walkerevo/internal/genome"
	"walkerevo/internal/morphology"
	"walkerevo/internal/motor"
	"walkerevo/internal/physics"
)

// RoundLengths are the named round durations, in simulated seconds.
var RoundLengths = map[string]float64{
	"very_short": 5,
	"short":      10,
	"regular":    20,
	"long":       40,
	"loooong":    60,
}

// Config shapes one round.
type Config struct {
	// Duration is the simulated time per round in seconds.
	Duration  float64 `yaml:"duration" json:"duration"`
	StartX    float64 `yaml:"start_x" json:"startX"`
	StartY    float64 `yaml:"start_y" json:"startY"`
	MaxTorque float64 `yaml:"max_torque" json:"maxTorque"`
}

// DefaultConfig is a regular-length round starting at (0, 5).
func DefaultConfig() Config {
	return Config{
		Duration:  RoundLengths["regular"],
		StartX:    0,
		StartY:    5,
		MaxTorque: morphology.DefaultMaxTorque,
	}
}

// Origin is the torso start position.
func (c Config) Origin() physics.Vec2 { return physics.Vec2{X: c.StartX, Y: c.StartY} }

type realized struct {
	walker   *ga.Walker
	names    []string
	shapes   []physics.Box
	parts    []physics.BodyHandle
	joints   [genome.NumMotors]physics.JointHandle
	start    physics.Vec2
	noise    *rand.Rand
	released bool
}

// Round owns the physical realization of one population for one bounded
// stretch of simulated time. Handles are acquired by NewRound and released
// by Release or Finish; a Round is not safe for concurrent use.
type Round struct {
	world    physics.World
	settings physics.Settings
	cfg      Config
	motor    motor.Controller
	params   fitness.Params
	noisy    bool
	seed     int64

	walkers []*realized
	byID    map[uuid.UUID]*realized
	steps   int
	total   int
	err     error
	trace   *Trace
}

// RoundOption configures a Round.
type RoundOption func(*Round)

// WithMotor sets the motor controller.
func WithMotor(c motor.Controller) RoundOption {
	return func(r *Round) { r.motor = c }
}

// WithFitness sets the scoring weights.
func WithFitness(p fitness.Params) RoundOption {
	return func(r *Round) { r.params = p }
}

// WithNoiseSeed enables motor noise. Every walker draws from its own
// stream, seeded by NoiseSeed(seed, walker ID), so a walker's noise does
// not depend on who else is in the round.
func WithNoiseSeed(seed int64) RoundOption {
	return func(r *Round) { r.noisy, r.seed = true, seed }
}

// NoiseSeed derives a walker's motor noise seed from a round seed.
func NoiseSeed(seed int64, id uuid.UUID) int64 {
	return seed ^ int64(binary.BigEndian.Uint64(id[:8])^binary.BigEndian.Uint64(id[8:]))
}

// WithTrace records every step's part poses into t.
func WithTrace(t *Trace) RoundOption {
	return func(r *Round) { r.trace = t }
}

// NewRound builds every walker into world. If any body or joint cannot be
// created, everything acquired so far is released and the error returned.
func NewRound(world physics.World, settings physics.Settings, cfg Config, walkers []*ga.Walker, opts ...RoundOption) (*Round, error) {
	if !(cfg.Duration > 0) || !(settings.TimeStep > 0) {
		return nil, fmt.Errorf("sim: round needs positive duration and time step, got %v and %v", cfg.Duration, settings.TimeStep)
	}
	r := &Round{
		world:    world,
		settings: settings,
		cfg:      cfg,
		params:   fitness.DefaultParams(),
		byID:     make(map[uuid.UUID]*realized, len(walkers)),
		total:    int(math.Ceil(cfg.Duration/settings.TimeStep - 1e-9)),
	}
	for _, opt := range opts {
		opt(r)
	}
	for _, w := range walkers {
		rw, err := r.realize(w)
		if rw != nil {
			r.walkers = append(r.walkers, rw)
			r.byID[w.ID] = rw
		}
		if err != nil {
			return nil, errors.Join(fmt.Errorf("realize %s: %w", w.Name, err), r.Release())
		}
	}
	if r.trace != nil {
		r.trace.begin(r)
	}
	return r, nil
}

func (r *Round) realize(w *ga.Walker) (*realized, error) {
	spec := morphology.Build(w.Genome, r.cfg.Origin(), r.cfg.MaxTorque)
	rw := &realized{walker: w, start: spec.Parts[0].Def.Position}
	if r.noisy {
		rw.noise = rand.New(rand.NewSource(NoiseSeed(r.seed, w.ID)))
	}
	for _, p := range spec.Parts {
		h, err := r.world.CreateBody(p.Def)
		if err != nil {
			return rw, err
		}
		rw.names = append(rw.names, p.Name)
		rw.shapes = append(rw.shapes, p.Def.Shape)
		rw.parts = append(rw.parts, h)
	}
	for i, j := range spec.Joints {
		def := j.Def
		def.BodyA, def.BodyB = rw.parts[j.A], rw.parts[j.B]
		h, err := r.world.CreateJoint(def)
		if err != nil {
			return rw, fmt.Errorf("joint %s: %w", j.Name, err)
		}
		rw.joints[i] = h
	}
	return rw, nil
}

// Elapsed is the simulated time since the round started.
func (r *Round) Elapsed() float64 { return float64(r.steps) * r.settings.TimeStep }

// Steps returns the number of completed physics steps.
func (r *Round) Steps() int { return r.steps }

// Done reports whether the round has run its full duration or failed.
func (r *Round) Done() bool { return r.err != nil || r.steps >= r.total }

// Err returns the failure that ended the round, if any.
func (r *Round) Err() error { return r.err }

// Step drives every live walker's motors for the current time and advances
// the world by one time step. The first failure ends the round; later calls
// return it again.
func (r *Round) Step(ctx context.Context) error {
	if r.err != nil {
		return r.err
	}
	if r.steps >= r.total {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	t := r.Elapsed()
	for _, rw := range r.walkers {
		if rw.released {
			continue
		}
		if err := r.motor.Drive(r.world, rw.joints, rw.walker.Genome, t, rw.noise); err != nil {
			r.err = fmt.Errorf("drive %s: %w", rw.walker.Name, err)
			return r.err
		}
	}
	if err := r.world.Step(r.settings.TimeStep, r.settings.VelocityIterations, r.settings.PositionIterations); err != nil {
		r.err = fmt.Errorf("step %d: %w", r.steps, err)
		return r.err
	}
	r.steps++
	if r.trace != nil {
		if err := r.trace.capture(r); err != nil {
			r.err = err
			return err
		}
	}
	return nil
}

// Halt zeroes the motor speeds of every live walker.
func (r *Round) Halt() error {
	var errs []error
	for _, rw := range r.walkers {
		if rw.released {
			continue
		}
		if err := motor.Halt(r.world, rw.joints); err != nil {
			errs = append(errs, fmt.Errorf("halt %s: %w", rw.walker.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Run steps the round until it is done.
func (r *Round) Run(ctx context.Context) error {
	for !r.Done() {
		if err := r.Step(ctx); err != nil {
			return err
		}
	}
	return r.err
}

// Scores reads each live walker's torso and scores it against its start.
func (r *Round) Scores() (map[uuid.UUID]float64, error) {
	out := make(map[uuid.UUID]float64, len(r.walkers))
	for _, rw := range r.walkers {
		if rw.released {
			continue
		}
		pos, err := r.world.Position(rw.parts[0])
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", rw.walker.Name, err)
		}
		out[rw.walker.ID] = r.params.Score(rw.start, pos)
	}
	return out, nil
}

// Finish scores every walker, stores the score in its Fitness and releases
// the round.
func (r *Round) Finish() (map[uuid.UUID]float64, error) {
	if r.err != nil {
		return nil, errors.Join(r.err, r.Release())
	}
	scores, err := r.Scores()
	if err != nil {
		return nil, errors.Join(err, r.Release())
	}
	for _, rw := range r.walkers {
		if s, ok := scores[rw.walker.ID]; ok {
			rw.walker.Fitness = s
		}
	}
	if r.trace != nil {
		r.trace.end(scores)
	}
	return scores, r.Release()
}

// ReleaseWalker destroys one walker's bodies. Releasing twice, or releasing
// a walker the round does not own, does nothing.
func (r *Round) ReleaseWalker(id uuid.UUID) error {
	rw, ok := r.byID[id]
	if !ok || rw.released {
		return nil
	}
	rw.released = true
	rw.walker.Alive = false
	var errs []error
	// children first so a failed parent destroy never strands them
	for i := len(rw.parts) - 1; i >= 0; i-- {
		if err := r.world.DestroyBody(rw.parts[i]); err != nil && !errors.Is(err, physics.ErrUnknownHandle) {
			errs = append(errs, fmt.Errorf("release %s/%s: %w", rw.walker.Name, rw.names[i], err))
		}
	}
	return errors.Join(errs...)
}

// Release destroys every walker's bodies. It is idempotent.
func (r *Round) Release() error {
	var errs []error
	for _, rw := range r.walkers {
		if err := r.ReleaseWalker(rw.walker.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PartView is one body part's pose.
type PartView struct {
	Name     string       `json:"name"`
	Position physics.Vec2 `json:"position"`
	Angle    float64      `json:"angle"`
	Width    float64      `json:"width"`
	Height   float64      `json:"height"`
}

// WalkerView extends the population view with the walker's live body.
type WalkerView struct {
	ga.WalkerView
	Parts []PartView `json:"parts,omitempty"`
}

// Views returns what a renderer needs to draw the round. Released walkers
// have no parts.
func (r *Round) Views() ([]WalkerView, error) {
	out := make([]WalkerView, 0, len(r.walkers))
	for _, rw := range r.walkers {
		w := rw.walker
		v := WalkerView{WalkerView: ga.WalkerView{ID: w.ID, Name: w.Name, Score: w.Fitness, Alive: !rw.released, Genome: w.Genome}}
		if !rw.released {
			parts, err := r.parts(rw)
			if err != nil {
				return nil, err
			}
			v.Parts = parts
		}
		out = append(out, v)
	}
	return out, nil
}

func (r *Round) parts(rw *realized) ([]PartView, error) {
	out := make([]PartView, len(rw.parts))
	for i, h := range rw.parts {
		pos, err := r.world.Position(h)
		if err != nil {
			return nil, fmt.Errorf("view %s/%s: %w", rw.walker.Name, rw.names[i], err)
		}
		angle, err := r.world.Angle(h)
		if err != nil {
			return nil, fmt.Errorf("view %s/%s: %w", rw.walker.Name, rw.names[i], err)
		}
		out[i] = PartView{Name: rw.names[i], Position: pos, Angle: angle, Width: rw.shapes[i].Width, Height: rw.shapes[i].Height}
	}
	return out, nil
}
