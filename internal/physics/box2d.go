package physics

import (
	"fmt"

	"github.com/ByteArena/box2d"
)

// Collision categories. Walker parts only touch the ground, so walkers in
// the same world never interact.
const (
	groundBits uint16 = 0x0001
	walkerBits uint16 = 0x0002
)

type b2Joint struct {
	joint *box2d.B2RevoluteJoint
	a, b  BodyHandle
}

// Box2D is a World backed by the Box2D rigid-body solver. The ground is a
// static 100x2 box whose top edge lies on Settings.GroundY.
type Box2D struct {
	settings Settings
	world    *box2d.B2World
	ground   *box2d.B2Body
	bodies   map[BodyHandle]*box2d.B2Body
	joints   map[JointHandle]*b2Joint
	next     uint64
	closed   bool
}

// NewBox2D returns a world holding only the ground.
func NewBox2D(settings Settings) *Box2D {
	world := box2d.MakeB2World(box2d.MakeB2Vec2(0, settings.Gravity))
	w := &Box2D{
		settings: settings,
		world:    &world,
		bodies:   make(map[BodyHandle]*box2d.B2Body),
		joints:   make(map[JointHandle]*b2Joint),
	}

	bd := box2d.MakeB2BodyDef()
	bd.Position = box2d.MakeB2Vec2(0, settings.GroundY-1)
	w.ground = w.world.CreateBody(&bd)
	shape := box2d.MakeB2PolygonShape()
	shape.SetAsBox(50, 1)
	fd := box2d.MakeB2FixtureDef()
	fd.Shape = &shape
	fd.Density = 0.5
	fd.Friction = 0.5
	fd.Filter.CategoryBits = groundBits
	fd.Filter.MaskBits = walkerBits
	w.ground.CreateFixtureFromDef(&fd)
	return w
}

// Settings returns the world's configuration.
func (w *Box2D) Settings() Settings { return w.settings }

// Bodies returns the number of live bodies, not counting the ground.
func (w *Box2D) Bodies() int { return len(w.bodies) }

// Joints returns the number of live joints.
func (w *Box2D) Joints() int { return len(w.joints) }

// Close destroys every body and rejects further calls.
func (w *Box2D) Close() error {
	if w.closed {
		return nil
	}
	for h, b := range w.bodies {
		w.world.DestroyBody(b)
		delete(w.bodies, h)
	}
	w.world.DestroyBody(w.ground)
	w.joints = map[JointHandle]*b2Joint{}
	w.closed = true
	return nil
}

func (w *Box2D) CreateBody(def BodyDef) (BodyHandle, error) {
	if w.closed {
		return 0, ErrClosed
	}
	if err := checkBody(def); err != nil {
		return 0, err
	}
	if def.Density <= 0 {
		def.Density = 1
	}

	bd := box2d.MakeB2BodyDef()
	if def.Dynamic {
		bd.Type = box2d.B2BodyType.B2_dynamicBody
	}
	bd.Position = box2d.MakeB2Vec2(def.Position.X, def.Position.Y)
	b := w.world.CreateBody(&bd)

	shape := box2d.MakeB2PolygonShape()
	shape.SetAsBox(def.Shape.Width/2, def.Shape.Height/2)
	fd := box2d.MakeB2FixtureDef()
	fd.Shape = &shape
	fd.Density = def.Density
	fd.Friction = def.Friction
	fd.Filter.CategoryBits = walkerBits
	fd.Filter.MaskBits = groundBits
	b.CreateFixtureFromDef(&fd)

	w.next++
	h := BodyHandle(w.next)
	w.bodies[h] = b
	return h, nil
}

func (w *Box2D) CreateJoint(def JointDef) (JointHandle, error) {
	if w.closed {
		return 0, ErrClosed
	}
	a, ok := w.bodies[def.BodyA]
	if !ok {
		return 0, fmt.Errorf("joint body A %d: %w", def.BodyA, ErrUnknownHandle)
	}
	b, ok := w.bodies[def.BodyB]
	if !ok {
		return 0, fmt.Errorf("joint body B %d: %w", def.BodyB, ErrUnknownHandle)
	}
	if a == b {
		return 0, fmt.Errorf("physics: joint connects body %d to itself", def.BodyA)
	}
	if def.LowerAngle > def.UpperAngle {
		return 0, fmt.Errorf("physics: joint limits [%v, %v] inverted", def.LowerAngle, def.UpperAngle)
	}

	jd := box2d.MakeB2RevoluteJointDef()
	jd.BodyA = a
	jd.BodyB = b
	jd.LocalAnchorA = box2d.MakeB2Vec2(def.AnchorA.X, def.AnchorA.Y)
	jd.LocalAnchorB = box2d.MakeB2Vec2(def.AnchorB.X, def.AnchorB.Y)
	jd.ReferenceAngle = b.GetAngle() - a.GetAngle()
	jd.EnableLimit = true
	jd.LowerAngle = def.LowerAngle
	jd.UpperAngle = def.UpperAngle
	jd.EnableMotor = def.MotorEnabled
	jd.MaxMotorTorque = def.MaxTorque
	j, ok := w.world.CreateJoint(&jd).(*box2d.B2RevoluteJoint)
	if !ok {
		return 0, fmt.Errorf("physics: box2d returned a non-revolute joint for %d-%d", def.BodyA, def.BodyB)
	}

	w.next++
	h := JointHandle(w.next)
	w.joints[h] = &b2Joint{joint: j, a: def.BodyA, b: def.BodyB}
	return h, nil
}

func (w *Box2D) SetMotorSpeed(h JointHandle, speed float64) error {
	if w.closed {
		return ErrClosed
	}
	j, ok := w.joints[h]
	if !ok {
		return fmt.Errorf("joint %d: %w", h, ErrUnknownHandle)
	}
	if !finite(speed) {
		return fmt.Errorf("physics: motor speed %v for joint %d", speed, h)
	}
	j.joint.SetMotorSpeed(speed)
	return nil
}

func (w *Box2D) Step(dt float64, velocityIterations, positionIterations int) error {
	if w.closed {
		return ErrClosed
	}
	if !(dt > 0) || !finite(dt) {
		return fmt.Errorf("%w: time step %v", ErrStepFailed, dt)
	}
	if velocityIterations < 1 || positionIterations < 1 {
		return fmt.Errorf("%w: iterations %d/%d", ErrStepFailed, velocityIterations, positionIterations)
	}
	w.world.Step(dt, velocityIterations, positionIterations)
	for h, b := range w.bodies {
		p := b.GetPosition()
		if !finite(p.X) || !finite(p.Y) || !finite(b.GetAngle()) {
			return fmt.Errorf("%w: body %d diverged", ErrStepFailed, h)
		}
	}
	return nil
}

func (w *Box2D) Position(h BodyHandle) (Vec2, error) {
	if w.closed {
		return Vec2{}, ErrClosed
	}
	b, ok := w.bodies[h]
	if !ok {
		return Vec2{}, fmt.Errorf("body %d: %w", h, ErrUnknownHandle)
	}
	p := b.GetPosition()
	return Vec2{X: p.X, Y: p.Y}, nil
}

func (w *Box2D) Angle(h BodyHandle) (float64, error) {
	if w.closed {
		return 0, ErrClosed
	}
	b, ok := w.bodies[h]
	if !ok {
		return 0, fmt.Errorf("body %d: %w", h, ErrUnknownHandle)
	}
	return b.GetAngle(), nil
}

// DestroyBody removes the body. Box2D destroys its joints with it.
func (w *Box2D) DestroyBody(h BodyHandle) error {
	if w.closed {
		return ErrClosed
	}
	b, ok := w.bodies[h]
	if !ok {
		return fmt.Errorf("body %d: %w", h, ErrUnknownHandle)
	}
	for jh, j := range w.joints {
		if j.a == h || j.b == h {
			delete(w.joints, jh)
		}
	}
	w.world.DestroyBody(b)
	delete(w.bodies, h)
	return nil
}
