package sim

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walkerevo/internal/ga"
	"walkerevo/internal/physics"
	"walkerevo/internal/snapshot"
)

func newTestController(t *testing.T, gens int) (*Controller, *physics.Sandbox) {
	t.Helper()
	gaCfg := ga.DefaultConfig()
	gaCfg.PopulationSize = 4
	gaCfg.EliteCount = 1
	gaCfg.Generations = gens
	round := DefaultConfig()
	round.Duration = 0.5
	world := physics.NewSandbox(physics.DefaultSettings())
	c, err := NewController(ControllerConfig{
		GA:           gaCfg,
		Round:        round,
		Physics:      physics.DefaultSettings(),
		StepsPerTick: 10,
	}, rand.New(rand.NewSource(8)), world)
	require.NoError(t, err)
	return c, world
}

func TestControllerTickCompletesGeneration(t *testing.T) {
	c, world := newTestController(t, 0)
	ctx := context.Background()

	require.NoError(t, c.Tick(ctx))
	assert.Equal(t, 20, world.Bodies())
	assert.InDelta(t, 10.0/60, c.Status().Elapsed, 1e-9)

	require.NoError(t, c.Tick(ctx))
	require.NoError(t, c.Tick(ctx))
	assert.Equal(t, 1, c.Status().Generation)
	assert.Equal(t, 0, world.Bodies(), "finished round released its bodies")
	require.Len(t, c.Engine().History(), 1)
	assert.NotNil(t, c.Status().BestEver)

	views, err := c.Views()
	require.NoError(t, err)
	assert.Len(t, views, 4)
}

func TestControllerPauseResume(t *testing.T) {
	c, _ := newTestController(t, 0)
	ctx := context.Background()
	require.NoError(t, c.Tick(ctx))
	c.Pause()
	before := c.Status()
	for i := 0; i < 5; i++ {
		require.NoError(t, c.Tick(ctx))
	}
	after := c.Status()
	assert.True(t, after.Paused)
	assert.Equal(t, before.Elapsed, after.Elapsed)
	assert.Equal(t, before.Generation, after.Generation)
	require.NoError(t, c.Run(ctx), "run returns while paused")

	c.Resume()
	require.NoError(t, c.Tick(ctx))
	assert.Greater(t, c.Status().Elapsed, before.Elapsed)
}

type motorWorld struct {
	*physics.Sandbox
	speeds map[physics.JointHandle]float64
}

func (w *motorWorld) SetMotorSpeed(j physics.JointHandle, speed float64) error {
	w.speeds[j] = speed
	return w.Sandbox.SetMotorSpeed(j, speed)
}

func TestControllerPauseHaltsMotors(t *testing.T) {
	gaCfg := ga.DefaultConfig()
	gaCfg.PopulationSize = 3
	gaCfg.EliteCount = 1
	round := DefaultConfig()
	round.Duration = 1
	world := &motorWorld{Sandbox: physics.NewSandbox(physics.DefaultSettings()), speeds: map[physics.JointHandle]float64{}}
	c, err := NewController(ControllerConfig{
		GA:           gaCfg,
		Round:        round,
		Physics:      physics.DefaultSettings(),
		StepsPerTick: 5,
	}, rand.New(rand.NewSource(2)), world)
	require.NoError(t, err)

	require.NoError(t, c.Tick(context.Background()))
	require.Len(t, world.speeds, 12)
	moving := 0
	for _, s := range world.speeds {
		if s != 0 {
			moving++
		}
	}
	require.Positive(t, moving)

	c.Pause()
	for j, s := range world.speeds {
		assert.Zero(t, s, "joint %d", j)
	}
}

func TestControllerReset(t *testing.T) {
	c, world := newTestController(t, 0)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		require.NoError(t, c.Tick(ctx))
	}
	require.Equal(t, 1, c.Status().Generation)
	require.Greater(t, world.Bodies(), 0)

	require.NoError(t, c.Reset())
	assert.Equal(t, 0, world.Bodies())
	assert.Equal(t, 0, c.Status().Generation)
	assert.Empty(t, c.Engine().History())
	assert.Zero(t, c.Status().Elapsed)
}

func TestControllerRunStopsWhenDone(t *testing.T) {
	c, world := newTestController(t, 2)
	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, ga.StateDone.String(), c.Status().State)
	assert.Equal(t, 2, c.Status().Generation)
	assert.Equal(t, 0, world.Bodies())

	require.NoError(t, c.Tick(context.Background()))
	assert.Equal(t, 0, world.Bodies(), "done run starts no round")
}

func TestControllerImportExport(t *testing.T) {
	c, world := newTestController(t, 0)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		require.NoError(t, c.Tick(ctx))
	}
	exported := c.Export()

	other, _ := newTestController(t, 0)
	require.NoError(t, other.Import(exported))
	assert.Equal(t, exported, other.Export())

	bad := exported
	bad.MutationRate = 3
	require.NoError(t, c.Tick(ctx))
	bodies := world.Bodies()
	assert.ErrorIs(t, c.Import(bad), snapshot.ErrInvalidSnapshot)
	assert.Equal(t, bodies, world.Bodies(), "rejected import keeps the running round")
	assert.Equal(t, exported.Population, c.Export().Population)
}
