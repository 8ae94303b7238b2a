package physics

import (
	"fmt"
	"math"
	"sort"
)

type body struct {
	id       BodyHandle
	def      BodyDef
	pos      Vec2
	angle    float64
	vy       float64
	parent   *joint
	children []*joint
}

func (b *body) inertia() float64 {
	w, h := b.def.Shape.Width, b.def.Shape.Height
	return b.def.Density * w * h * (w*w + h*h) / 12
}

// lowest returns the lowest corner of the body's box in world space.
func (b *body) lowest() Vec2 {
	hw, hh := b.def.Shape.Width/2, b.def.Shape.Height/2
	best := Vec2{Y: math.Inf(1)}
	for _, c := range [4]Vec2{{-hw, -hh}, {hw, -hh}, {hw, hh}, {-hw, hh}} {
		p := b.pos.Add(c.Rotate(b.angle))
		if p.Y < best.Y {
			best = p
		}
	}
	return best
}

type joint struct {
	id     JointHandle
	def    JointDef
	a, b   *body
	angle  float64
	speed  float64
	target float64
}

// Sandbox is a deterministic kinematic world. Joint chains are posed by
// forward kinematics from their root body, motors drive joint angles with
// torque-limited velocity control, a root falls under gravity until its
// lowest point rests on the ground line, and a body in ground contact drags
// its root opposite to its own horizontal sweep, scaled by friction. It is
// not a rigid-body solver and bodies of different chains never collide.
type Sandbox struct {
	settings Settings
	bodies   map[BodyHandle]*body
	joints   map[JointHandle]*joint
	next     uint64
	closed   bool
}

// NewSandbox returns an empty world.
func NewSandbox(settings Settings) *Sandbox {
	if settings.ContactTolerance <= 0 {
		settings.ContactTolerance = 1e-3
	}
	return &Sandbox{
		settings: settings,
		bodies:   make(map[BodyHandle]*body),
		joints:   make(map[JointHandle]*joint),
	}
}

// Settings returns the world's configuration.
func (w *Sandbox) Settings() Settings { return w.settings }

// Bodies returns the number of live bodies.
func (w *Sandbox) Bodies() int { return len(w.bodies) }

// Joints returns the number of live joints.
func (w *Sandbox) Joints() int { return len(w.joints) }

// Close releases every body and rejects further calls.
func (w *Sandbox) Close() error {
	w.closed = true
	w.bodies = map[BodyHandle]*body{}
	w.joints = map[JointHandle]*joint{}
	return nil
}

func (w *Sandbox) CreateBody(def BodyDef) (BodyHandle, error) {
	if w.closed {
		return 0, ErrClosed
	}
	if err := checkBody(def); err != nil {
		return 0, err
	}
	if def.Density <= 0 {
		def.Density = 1
	}
	w.next++
	b := &body{id: BodyHandle(w.next), def: def, pos: def.Position}
	w.bodies[b.id] = b
	return b.id, nil
}

func (w *Sandbox) CreateJoint(def JointDef) (JointHandle, error) {
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
		return 0, fmt.Errorf("physics: joint connects body %d to itself", a.id)
	}
	if b.parent != nil {
		return 0, fmt.Errorf("physics: body %d already has a parent joint", b.id)
	}
	for p := a; p != nil; {
		if p == b {
			return 0, fmt.Errorf("physics: joint %d-%d would form a loop", a.id, b.id)
		}
		if p.parent == nil {
			break
		}
		p = p.parent.a
	}
	if def.LowerAngle > def.UpperAngle {
		return 0, fmt.Errorf("physics: joint limits [%v, %v] inverted", def.LowerAngle, def.UpperAngle)
	}
	w.next++
	j := &joint{id: JointHandle(w.next), def: def, a: a, b: b, angle: b.angle - a.angle}
	b.parent = j
	a.children = append(a.children, j)
	w.joints[j.id] = j
	return j.id, nil
}

func (w *Sandbox) SetMotorSpeed(h JointHandle, speed float64) error {
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
	j.target = speed
	return nil
}

func (w *Sandbox) Step(dt float64, velocityIterations, positionIterations int) error {
	if w.closed {
		return ErrClosed
	}
	if !(dt > 0) || !finite(dt) {
		return fmt.Errorf("%w: time step %v", ErrStepFailed, dt)
	}
	if velocityIterations < 1 || positionIterations < 1 {
		return fmt.Errorf("%w: iterations %d/%d", ErrStepFailed, velocityIterations, positionIterations)
	}

	roots := w.roots()
	planted := make(map[*body]Vec2)
	for _, r := range roots {
		w.pose(r)
		for _, b := range w.chain(r) {
			if p := b.lowest(); p.Y <= w.settings.GroundY+w.settings.ContactTolerance {
				planted[b] = p
			}
		}
	}

	h := dt / float64(velocityIterations)
	for _, j := range w.sortedJoints() {
		for i := 0; i < velocityIterations; i++ {
			j.integrate(h)
		}
	}

	for _, r := range roots {
		w.pose(r)

		// Bodies that stayed on the ground push the chain the other way.
		var drag float64
		var n int
		for _, b := range w.chain(r) {
			before, ok := planted[b]
			if !ok {
				continue
			}
			after := b.lowest()
			if after.Y > w.settings.GroundY+w.settings.ContactTolerance {
				continue
			}
			drag += (after.X - before.X) * clamp01(b.def.Friction)
			n++
		}
		if n > 0 && r.def.Dynamic {
			r.pos.X -= drag / float64(n)
		}

		if r.def.Dynamic {
			r.vy += w.settings.Gravity * dt
			r.pos.Y += r.vy * dt
		}
		w.pose(r)
		// Projection onto the ground is exact, so position iterations
		// beyond the first never move anything.
		if low := w.lowestOf(r); r.def.Dynamic && low < w.settings.GroundY {
			r.pos.Y += w.settings.GroundY - low
			if r.vy < 0 {
				r.vy = 0
			}
			w.pose(r)
		}
		for _, b := range w.chain(r) {
			if !finite(b.pos.X) || !finite(b.pos.Y) || !finite(b.angle) {
				return fmt.Errorf("%w: body %d diverged", ErrStepFailed, b.id)
			}
		}
	}
	return nil
}

func (j *joint) integrate(h float64) {
	if j.def.MotorEnabled {
		maxDelta := math.Inf(1)
		if inertia := j.b.inertia(); inertia > 0 {
			maxDelta = j.def.MaxTorque / inertia * h
		}
		delta := j.target - j.speed
		if delta > maxDelta {
			delta = maxDelta
		} else if delta < -maxDelta {
			delta = -maxDelta
		}
		j.speed += delta
	}
	j.angle += j.speed * h
	if j.angle < j.def.LowerAngle {
		j.angle, j.speed = j.def.LowerAngle, 0
	} else if j.angle > j.def.UpperAngle {
		j.angle, j.speed = j.def.UpperAngle, 0
	}
}

func (w *Sandbox) Position(h BodyHandle) (Vec2, error) {
	if w.closed {
		return Vec2{}, ErrClosed
	}
	b, ok := w.bodies[h]
	if !ok {
		return Vec2{}, fmt.Errorf("body %d: %w", h, ErrUnknownHandle)
	}
	return b.pos, nil
}

func (w *Sandbox) Angle(h BodyHandle) (float64, error) {
	if w.closed {
		return 0, ErrClosed
	}
	b, ok := w.bodies[h]
	if !ok {
		return 0, fmt.Errorf("body %d: %w", h, ErrUnknownHandle)
	}
	return b.angle, nil
}

// DestroyBody removes the body and every joint attached to it. Former
// children become roots of their own chains.
func (w *Sandbox) DestroyBody(h BodyHandle) error {
	if w.closed {
		return ErrClosed
	}
	b, ok := w.bodies[h]
	if !ok {
		return fmt.Errorf("body %d: %w", h, ErrUnknownHandle)
	}
	if p := b.parent; p != nil {
		p.a.children = removeJoint(p.a.children, p)
		delete(w.joints, p.id)
	}
	for _, c := range b.children {
		c.b.parent = nil
		delete(w.joints, c.id)
	}
	delete(w.bodies, h)
	return nil
}

func removeJoint(js []*joint, j *joint) []*joint {
	out := js[:0]
	for _, x := range js {
		if x != j {
			out = append(out, x)
		}
	}
	return out
}

func (w *Sandbox) roots() []*body {
	var out []*body
	for _, b := range w.bodies {
		if b.parent == nil {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (w *Sandbox) sortedJoints() []*joint {
	out := make([]*joint, 0, len(w.joints))
	for _, j := range w.joints {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].id < out[k].id })
	return out
}

// chain lists the root and all its descendants, parents first.
func (w *Sandbox) chain(root *body) []*body {
	out := []*body{root}
	for i := 0; i < len(out); i++ {
		for _, c := range out[i].children {
			out = append(out, c.b)
		}
	}
	return out
}

// pose places every descendant of root from joint angles and anchors.
func (w *Sandbox) pose(root *body) {
	for _, b := range w.chain(root) {
		for _, j := range b.children {
			c := j.b
			c.angle = b.angle + j.angle
			anchor := b.pos.Add(j.def.AnchorA.Rotate(b.angle))
			c.pos = anchor.Sub(j.def.AnchorB.Rotate(c.angle))
		}
	}
}

func (w *Sandbox) lowestOf(root *body) float64 {
	low := math.Inf(1)
	for _, b := range w.chain(root) {
		if y := b.lowest().Y; y < low {
			low = y
		}
	}
	return low
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
