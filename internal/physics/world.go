// Package physics defines the rigid-body collaborator the walkers are
// realized in. Box2D is the full solver; Sandbox is a small kinematic world
// used where exact, cheap repeatability matters more than realism.
package physics

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrUnknownHandle is returned for handles the world never issued or
	// has already destroyed.
	ErrUnknownHandle = errors.New("physics: unknown handle")
	// ErrClosed is returned by any call on a closed world.
	ErrClosed = errors.New("physics: world closed")
	// ErrStepFailed wraps failures inside Step.
	ErrStepFailed = errors.New("physics: step failed")
)

// Settings configures a world.
type Settings struct {
	// Engine selects the World implementation, see New.
	Engine             string  `yaml:"engine" json:"engine,omitempty"`
	Gravity            float64 `yaml:"gravity" json:"gravity"`
	GroundY            float64 `yaml:"ground_y" json:"groundY"`
	TimeStep           float64 `yaml:"time_step" json:"timeStep"`
	VelocityIterations int     `yaml:"velocity_iterations" json:"velocityIterations"`
	PositionIterations int     `yaml:"position_iterations" json:"positionIterations"`
	ContactTolerance   float64 `yaml:"contact_tolerance" json:"contactTolerance"`
}

// DefaultSettings mirrors a 60 Hz world with gravity -10 and the ground top
// at y=0.
func DefaultSettings() Settings {
	return Settings{
		Engine:             EngineSandbox,
		Gravity:            -10,
		GroundY:            0,
		TimeStep:           1.0 / 60.0,
		VelocityIterations: 8,
		PositionIterations: 3,
		ContactTolerance:   1e-3,
	}
}

// Vec2 is a 2D vector in world units, y pointing up.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (v Vec2) Add(o Vec2) Vec2      { return Vec2{v.X + o.X, v.Y + o.Y} }
func (v Vec2) Sub(o Vec2) Vec2      { return Vec2{v.X - o.X, v.Y - o.Y} }
func (v Vec2) Scale(f float64) Vec2 { return Vec2{v.X * f, v.Y * f} }

// Rotate turns v by a radians counterclockwise.
func (v Vec2) Rotate(a float64) Vec2 {
	s, c := math.Sincos(a)
	return Vec2{v.X*c - v.Y*s, v.X*s + v.Y*c}
}

// Box is an axis-aligned box shape given by its full width and height.
type Box struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Area returns the box's area.
func (b Box) Area() float64 { return b.Width * b.Height }

// BodyHandle identifies a body inside one World.
type BodyHandle uint64

// JointHandle identifies a joint inside one World.
type JointHandle uint64

// BodyDef describes a body to create.
type BodyDef struct {
	Shape    Box
	Position Vec2
	Dynamic  bool
	Density  float64
	Friction float64
}

// JointDef describes a revolute joint between two bodies. Anchors are in
// each body's local frame.
type JointDef struct {
	BodyA, BodyB     BodyHandle
	AnchorA, AnchorB Vec2
	LowerAngle       float64
	UpperAngle       float64
	MotorEnabled     bool
	MaxTorque        float64
}

// World is the physics collaborator contract. Implementations are not safe
// for concurrent use; a world belongs to exactly one round at a time.
type World interface {
	CreateBody(def BodyDef) (BodyHandle, error)
	CreateJoint(def JointDef) (JointHandle, error)
	SetMotorSpeed(j JointHandle, speed float64) error
	Step(dt float64, velocityIterations, positionIterations int) error
	Position(b BodyHandle) (Vec2, error)
	Angle(b BodyHandle) (float64, error)
	DestroyBody(b BodyHandle) error
	Close() error
}

// World engines.
const (
	EngineSandbox = "sandbox"
	EngineBox2D   = "box2d"
)

// New creates an empty world of the engine settings name. An empty name
// means the sandbox.
func New(settings Settings) (World, error) {
	switch settings.Engine {
	case "", EngineSandbox:
		return NewSandbox(settings), nil
	case EngineBox2D:
		return NewBox2D(settings), nil
	}
	return nil, fmt.Errorf("physics: unknown engine %q", settings.Engine)
}

func checkBody(def BodyDef) error {
	if !(def.Shape.Width > 0) || !(def.Shape.Height > 0) || math.IsInf(def.Shape.Area(), 0) {
		return fmt.Errorf("physics: invalid box %vx%v", def.Shape.Width, def.Shape.Height)
	}
	if !finite(def.Position.X) || !finite(def.Position.Y) {
		return fmt.Errorf("physics: invalid position %+v", def.Position)
	}
	return nil
}
