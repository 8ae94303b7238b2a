// Package morphology translates a genome into the boxes and revolute joints
// of a two-legged walker.
package morphology

import (
	"math"

	"walkerevo/internal/genome"
	"walkerevo/internal/physics"
)

// Joint limits, radians.
const (
	HipLower  = -math.Pi / 2
	HipUpper  = math.Pi / 2
	KneeLower = 0.0
	KneeUpper = 0.8 * math.Pi
)

const (
	// DefaultMaxTorque is the motor torque limit used when none is configured.
	DefaultMaxTorque = 10.0

	density  = 1.0
	friction = 0.3
)

// Part names. Torso is always index 0 of Spec.Parts.
const (
	Torso         = "torso"
	LeftUpperLeg  = "leftUpperLeg"
	LeftLowerLeg  = "leftLowerLeg"
	RightUpperLeg = "rightUpperLeg"
	RightLowerLeg = "rightLowerLeg"
)

// Part is one box-shaped body of the walker.
type Part struct {
	Name string
	Def  physics.BodyDef
}

// Joint connects Parts[A] to Parts[B].
type Joint struct {
	Name string
	A, B int
	Def  physics.JointDef
}

// Spec is the full physical layout of one walker. Joints are ordered left
// hip, left knee, right hip, right knee, matching the genome's motor index.
type Spec struct {
	Parts  []Part
	Joints [genome.NumMotors]Joint
}

// Build lays out the walker with its torso centred at origin. It is pure:
// the same genome, origin and torque always give the same Spec.
func Build(g genome.Genome, origin physics.Vec2, maxTorque float64) Spec {
	if maxTorque <= 0 {
		maxTorque = DefaultMaxTorque
	}
	s := Spec{
		Parts: []Part{{
			Name: Torso,
			Def:  box(g.BodyWidth, g.BodyHeight, origin),
		}},
	}
	s.addLeg(g, origin, -1, LeftUpperLeg, LeftLowerLeg, 0, maxTorque)
	s.addLeg(g, origin, 1, RightUpperLeg, RightLowerLeg, 2, maxTorque)
	return s
}

func (s *Spec) addLeg(g genome.Genome, origin physics.Vec2, side float64, upperName, lowerName string, motor int, maxTorque float64) {
	l := g.LegLength
	hipX := origin.X + side*g.BodyWidth/2

	upper := len(s.Parts)
	s.Parts = append(s.Parts, Part{
		Name: upperName,
		Def:  box(g.LegThickness, l, physics.Vec2{X: hipX, Y: origin.Y - l/2}),
	})
	lower := len(s.Parts)
	s.Parts = append(s.Parts, Part{
		Name: lowerName,
		Def:  box(g.LegThickness, l, physics.Vec2{X: hipX, Y: origin.Y - 1.5*l}),
	})

	s.Joints[motor] = Joint{
		Name: upperName + "Hip",
		A:    0,
		B:    upper,
		Def: physics.JointDef{
			AnchorA:      physics.Vec2{X: side * g.BodyWidth / 2},
			AnchorB:      physics.Vec2{Y: l / 2},
			LowerAngle:   HipLower,
			UpperAngle:   HipUpper,
			MotorEnabled: true,
			MaxTorque:    maxTorque,
		},
	}
	s.Joints[motor+1] = Joint{
		Name: lowerName + "Knee",
		A:    upper,
		B:    lower,
		Def: physics.JointDef{
			AnchorA:      physics.Vec2{Y: -l / 2},
			AnchorB:      physics.Vec2{Y: l / 2},
			LowerAngle:   KneeLower,
			UpperAngle:   KneeUpper,
			MotorEnabled: true,
			MaxTorque:    maxTorque,
		},
	}
}

func box(w, h float64, at physics.Vec2) physics.BodyDef {
	return physics.BodyDef{
		Shape:    physics.Box{Width: w, Height: h},
		Position: at,
		Dynamic:  true,
		Density:  density,
		Friction: friction,
	}
}
