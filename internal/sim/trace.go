package sim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"walkerevo/internal/fitness"
	"walkerevo/internal/ga"
	"walkerevo/internal/genome"
	"walkerevo/internal/motor"
	"walkerevo/internal/physics"
)

// Trace stores everything needed to replay a round, plus the poses it
// produced for playback and comparison.
type Trace struct {
	Seed    int64            `json:"seed"`
	Every   int              `json:"every"`
	Round   Config           `json:"round"`
	Physics physics.Settings `json:"physics"`
	Motor   motor.Controller `json:"motor"`
	Fitness fitness.Params   `json:"fitness"`
	Walkers []TraceWalker    `json:"walkers"`
	Frames  []Frame          `json:"frames"`
}

// TraceWalker identifies one walker of a traced round.
type TraceWalker struct {
	ID     uuid.UUID     `json:"id"`
	Name   string        `json:"name"`
	Genome genome.Genome `json:"genome"`
	Score  float64       `json:"score"`

	// NoiseSeed seeds this walker's motor noise stream.
	NoiseSeed int64 `json:"noiseSeed"`
}

// Frame holds the pose of every part of every walker at one step.
// Poses[i][j] is part j of walker i.
type Frame struct {
	Step  int      `json:"step"`
	Time  float64  `json:"time"`
	Poses [][]Pose `json:"poses"`
}

// Pose is a body's position and angle.
type Pose struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Angle float64 `json:"angle"`
}

// NewTrace creates a trace recorder that keeps one frame every n steps. The
// seed must be the one given to the round's WithNoiseSeed.
func NewTrace(seed int64, every int) *Trace {
	if every < 1 {
		every = 1
	}
	return &Trace{Seed: seed, Every: every}
}

func (t *Trace) begin(r *Round) {
	t.Round = r.cfg
	t.Physics = r.settings
	t.Motor = r.motor
	t.Fitness = r.params
	t.Walkers = t.Walkers[:0]
	t.Frames = t.Frames[:0]
	for _, rw := range r.walkers {
		t.Walkers = append(t.Walkers, TraceWalker{
			ID:        rw.walker.ID,
			Name:      rw.walker.Name,
			Genome:    rw.walker.Genome,
			NoiseSeed: NoiseSeed(t.Seed, rw.walker.ID),
		})
	}
	// the initial pose cannot fail: every handle was just created
	_ = t.capture(r)
}

func (t *Trace) capture(r *Round) error {
	if r.steps%t.Every != 0 && r.steps != r.total {
		return nil
	}
	f := Frame{Step: r.steps, Time: r.Elapsed(), Poses: make([][]Pose, len(r.walkers))}
	for i, rw := range r.walkers {
		if rw.released {
			continue
		}
		parts, err := r.parts(rw)
		if err != nil {
			return err
		}
		f.Poses[i] = make([]Pose, len(parts))
		for j, p := range parts {
			f.Poses[i][j] = Pose{X: p.Position.X, Y: p.Position.Y, Angle: p.Angle}
		}
	}
	t.Frames = append(t.Frames, f)
	return nil
}

func (t *Trace) end(scores map[uuid.UUID]float64) {
	for i := range t.Walkers {
		t.Walkers[i].Score = scores[t.Walkers[i].ID]
	}
}

// Final returns the last recorded frame.
func (t *Trace) Final() (Frame, bool) {
	if len(t.Frames) == 0 {
		return Frame{}, false
	}
	return t.Frames[len(t.Frames)-1], true
}

// Playback re-runs the traced round in a fresh world of the traced engine
// and returns the new trace. For the same seed and settings it matches the recorded one.
func (t *Trace) Playback(ctx context.Context) (*Trace, error) {
	walkers := make([]*ga.Walker, len(t.Walkers))
	for i, tw := range t.Walkers {
		walkers[i] = &ga.Walker{ID: tw.ID, Name: tw.Name, Genome: tw.Genome, Alive: true}
	}
	world, err := physics.New(t.Physics)
	if err != nil {
		return nil, err
	}
	defer world.Close()

	out := NewTrace(t.Seed, t.Every)
	r, err := NewRound(world, t.Physics, t.Round, walkers,
		WithMotor(t.Motor),
		WithFitness(t.Fitness),
		WithNoiseSeed(t.Seed),
		WithTrace(out),
	)
	if err != nil {
		return nil, err
	}
	if err := r.Run(ctx); err != nil {
		return nil, errors.Join(err, r.Release())
	}
	if _, err := r.Finish(); err != nil {
		return nil, err
	}
	return out, nil
}

// Save writes the trace to a file
func (t *Trace) Save(path string) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadTrace loads a trace from a file
func LoadTrace(path string) (*Trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var t Trace
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("trace %s: %w", path, err)
	}
	return &t, nil
}
