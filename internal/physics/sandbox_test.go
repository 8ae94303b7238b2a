package physics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPendulum(t *testing.T, w *Sandbox) (BodyHandle, BodyHandle, JointHandle) {
	t.Helper()
	torso, err := w.CreateBody(BodyDef{Shape: Box{Width: 0.5, Height: 0.3}, Position: Vec2{0, 5}, Dynamic: true})
	require.NoError(t, err)
	leg, err := w.CreateBody(BodyDef{Shape: Box{Width: 0.1, Height: 0.4}, Position: Vec2{0.25, 4.8}, Dynamic: true, Friction: 0.3})
	require.NoError(t, err)
	j, err := w.CreateJoint(JointDef{
		BodyA: torso, BodyB: leg,
		AnchorA: Vec2{0.25, 0}, AnchorB: Vec2{0, 0.2},
		LowerAngle: -math.Pi / 2, UpperAngle: math.Pi / 2,
		MotorEnabled: true, MaxTorque: 10,
	})
	require.NoError(t, err)
	return torso, leg, j
}

func TestSandboxFallsToGround(t *testing.T) {
	s := DefaultSettings()
	w := NewSandbox(s)
	torso, leg, _ := newPendulum(t, w)

	for i := 0; i < 600; i++ {
		require.NoError(t, w.Step(s.TimeStep, s.VelocityIterations, s.PositionIterations))
	}

	tp, err := w.Position(torso)
	require.NoError(t, err)
	lp, err := w.Position(leg)
	require.NoError(t, err)
	// leg bottom rests on the ground line
	assert.InDelta(t, 0.0, lp.Y-0.2, 1e-9)
	assert.InDelta(t, 0.4, tp.Y, 1e-9)
	assert.InDelta(t, 0.0, tp.X, 1e-9)
}

func TestSandboxMotorRespectsLimits(t *testing.T) {
	s := DefaultSettings()
	w := NewSandbox(s)
	torso, leg, j := newPendulum(t, w)

	require.NoError(t, w.SetMotorSpeed(j, 50))
	for i := 0; i < 120; i++ {
		require.NoError(t, w.Step(s.TimeStep, s.VelocityIterations, s.PositionIterations))
	}
	ta, err := w.Angle(torso)
	require.NoError(t, err)
	la, err := w.Angle(leg)
	require.NoError(t, err)
	assert.InDelta(t, math.Pi/2, la-ta, 1e-9)
}

func TestSandboxPlantedFootMovesRoot(t *testing.T) {
	s := DefaultSettings()
	w := NewSandbox(s)
	torso, _, j := newPendulum(t, w)

	// settle on the ground first
	for i := 0; i < 300; i++ {
		require.NoError(t, w.Step(s.TimeStep, s.VelocityIterations, s.PositionIterations))
	}
	start, err := w.Position(torso)
	require.NoError(t, err)

	require.NoError(t, w.SetMotorSpeed(j, 1))
	for i := 0; i < 30; i++ {
		require.NoError(t, w.Step(s.TimeStep, s.VelocityIterations, s.PositionIterations))
	}
	end, err := w.Position(torso)
	require.NoError(t, err)
	assert.NotEqual(t, start.X, end.X)
}

func TestSandboxDestroyBodyDropsJoints(t *testing.T) {
	w := NewSandbox(DefaultSettings())
	torso, leg, j := newPendulum(t, w)
	require.Equal(t, 2, w.Bodies())
	require.Equal(t, 1, w.Joints())

	require.NoError(t, w.DestroyBody(torso))
	assert.Equal(t, 1, w.Bodies())
	assert.Equal(t, 0, w.Joints())
	assert.ErrorIs(t, w.SetMotorSpeed(j, 1), ErrUnknownHandle)
	_, err := w.Position(torso)
	assert.ErrorIs(t, err, ErrUnknownHandle)
	assert.ErrorIs(t, w.DestroyBody(torso), ErrUnknownHandle)

	require.NoError(t, w.DestroyBody(leg))
	assert.Equal(t, 0, w.Bodies())
}

func TestSandboxRejectsBadInput(t *testing.T) {
	w := NewSandbox(DefaultSettings())
	_, err := w.CreateBody(BodyDef{Shape: Box{Width: 0, Height: 1}})
	assert.Error(t, err)

	a, _, _ := newPendulum(t, w)
	_, err = w.CreateJoint(JointDef{BodyA: a, BodyB: a})
	assert.Error(t, err)
	_, err = w.CreateJoint(JointDef{BodyA: a, BodyB: 999})
	assert.ErrorIs(t, err, ErrUnknownHandle)

	assert.ErrorIs(t, w.Step(0, 8, 3), ErrStepFailed)
	assert.ErrorIs(t, w.Step(math.NaN(), 8, 3), ErrStepFailed)
	assert.ErrorIs(t, w.Step(0.01, 0, 3), ErrStepFailed)
}

func TestSandboxRejectsLoops(t *testing.T) {
	w := NewSandbox(DefaultSettings())
	a, b, _ := newPendulum(t, w)
	c, err := w.CreateBody(BodyDef{Shape: Box{Width: 1, Height: 1}, Dynamic: true})
	require.NoError(t, err)
	_, err = w.CreateJoint(JointDef{BodyA: b, BodyB: c})
	require.NoError(t, err)
	_, err = w.CreateJoint(JointDef{BodyA: c, BodyB: a})
	assert.Error(t, err)
}

func TestSandboxClosed(t *testing.T) {
	w := NewSandbox(DefaultSettings())
	require.NoError(t, w.Close())
	_, err := w.CreateBody(BodyDef{Shape: Box{Width: 1, Height: 1}})
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, w.Step(0.01, 1, 1), ErrClosed)
}
