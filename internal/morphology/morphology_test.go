package morphology

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walkerevo/internal/genome"
	"walkerevo/internal/physics"
)

func sampleGenome() genome.Genome {
	return genome.Genome{
		BodyWidth:    0.6,
		BodyHeight:   0.3,
		LegLength:    0.4,
		LegThickness: 0.1,
		Amplitudes:   [4]float64{1, 1, 1, 1},
		Frequencies:  [4]float64{1, 1, 1, 1},
	}
}

func TestBuildLayout(t *testing.T) {
	s := Build(sampleGenome(), physics.Vec2{X: 0, Y: 5}, 0)

	require.Len(t, s.Parts, 5)
	assert.Equal(t, Torso, s.Parts[0].Name)
	assert.Equal(t, physics.Box{Width: 0.6, Height: 0.3}, s.Parts[0].Def.Shape)
	assert.Equal(t, physics.Vec2{X: 0, Y: 5}, s.Parts[0].Def.Position)

	leftUpper := s.Parts[s.Joints[0].B]
	assert.Equal(t, LeftUpperLeg, leftUpper.Name)
	assert.InDelta(t, -0.3, leftUpper.Def.Position.X, 1e-12)
	assert.InDelta(t, 4.8, leftUpper.Def.Position.Y, 1e-12)
	assert.Equal(t, physics.Box{Width: 0.1, Height: 0.4}, leftUpper.Def.Shape)

	rightLower := s.Parts[s.Joints[3].B]
	assert.Equal(t, RightLowerLeg, rightLower.Name)
	assert.InDelta(t, 0.3, rightLower.Def.Position.X, 1e-12)
	assert.InDelta(t, 4.4, rightLower.Def.Position.Y, 1e-12)

	for _, p := range s.Parts {
		assert.True(t, p.Def.Dynamic)
		assert.Equal(t, 1.0, p.Def.Density)
		assert.Equal(t, 0.3, p.Def.Friction)
	}
}

func TestBuildJoints(t *testing.T) {
	s := Build(sampleGenome(), physics.Vec2{}, 25)

	hips := []Joint{s.Joints[0], s.Joints[2]}
	for _, j := range hips {
		assert.Equal(t, 0, j.A)
		assert.Equal(t, -math.Pi/2, j.Def.LowerAngle)
		assert.Equal(t, math.Pi/2, j.Def.UpperAngle)
		assert.Equal(t, physics.Vec2{Y: 0.2}, j.Def.AnchorB)
	}
	assert.Equal(t, physics.Vec2{X: -0.3}, s.Joints[0].Def.AnchorA)
	assert.Equal(t, physics.Vec2{X: 0.3}, s.Joints[2].Def.AnchorA)

	knees := []Joint{s.Joints[1], s.Joints[3]}
	for i, j := range knees {
		assert.Equal(t, hips[i].B, j.A, "knee hangs off its own upper leg")
		assert.Equal(t, 0.0, j.Def.LowerAngle)
		assert.InDelta(t, 0.8*math.Pi, j.Def.UpperAngle, 1e-12)
		assert.Equal(t, physics.Vec2{Y: -0.2}, j.Def.AnchorA)
	}
	for _, j := range s.Joints {
		assert.True(t, j.Def.MotorEnabled)
		assert.Equal(t, 25.0, j.Def.MaxTorque)
	}
}

func TestBuildIsPure(t *testing.T) {
	g := genome.Random(rand.New(rand.NewSource(5)))
	a := Build(g, physics.Vec2{X: 1, Y: 2}, 10)
	b := Build(g, physics.Vec2{X: 1, Y: 2}, 10)
	assert.Equal(t, a, b)
}

func TestBuildRealizesInSandbox(t *testing.T) {
	g := genome.Random(rand.New(rand.NewSource(9)))
	s := Build(g, physics.Vec2{Y: 5}, DefaultMaxTorque)

	w := physics.NewSandbox(physics.DefaultSettings())
	handles := make([]physics.BodyHandle, len(s.Parts))
	for i, p := range s.Parts {
		h, err := w.CreateBody(p.Def)
		require.NoError(t, err)
		handles[i] = h
	}
	for _, j := range s.Joints {
		def := j.Def
		def.BodyA, def.BodyB = handles[j.A], handles[j.B]
		_, err := w.CreateJoint(def)
		require.NoError(t, err)
	}
	// joint anchors coincide, so posing must not move anything
	require.NoError(t, w.Step(1e-6, 1, 1))
	for i, p := range s.Parts {
		pos, err := w.Position(handles[i])
		require.NoError(t, err)
		assert.InDelta(t, p.Def.Position.X, pos.X, 1e-6, p.Name)
	}
}
