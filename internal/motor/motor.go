// Package motor turns a genome's sinusoidal motor genes into joint speeds.
package motor

import (
	"fmt"
	"math"
	"math/rand"

	"walkerevo/internal/genome"
	"walkerevo/internal/physics"
)

// Controller computes target motor speeds. It holds no per-walker state, so
// one Controller can drive every walker in a round.
type Controller struct {
	// Noise is the half-width of the uniform noise added to each speed.
	Noise float64 `yaml:"noise" json:"noise"`
	// Gain scales the final speed. Zero is treated as 1.
	Gain float64 `yaml:"gain" json:"gain"`
}

// TargetSpeeds returns speed_i = Gain * (A_i*sin(F_i*t + P_i) + U(-Noise, Noise))
// for the four joints in gene order. A nil rng or zero Noise skips the draw.
func (c Controller) TargetSpeeds(g genome.Genome, t float64, rng *rand.Rand) [genome.NumMotors]float64 {
	gain := c.Gain
	if gain == 0 {
		gain = 1
	}
	var out [genome.NumMotors]float64
	for i := range out {
		v := g.Amplitudes[i] * math.Sin(g.Frequencies[i]*t+g.Phases[i])
		if c.Noise > 0 && rng != nil {
			v += (rng.Float64()*2 - 1) * c.Noise
		}
		out[i] = gain * v
	}
	return out
}

// Drive pushes the target speeds for time t into the world's joint motors.
func (c Controller) Drive(w physics.World, joints [genome.NumMotors]physics.JointHandle, g genome.Genome, t float64, rng *rand.Rand) error {
	speeds := c.TargetSpeeds(g, t, rng)
	for i, j := range joints {
		if err := w.SetMotorSpeed(j, speeds[i]); err != nil {
			return fmt.Errorf("motor %d: %w", i, err)
		}
	}
	return nil
}

// Halt sets every joint motor speed to zero.
func Halt(w physics.World, joints [genome.NumMotors]physics.JointHandle) error {
	for i, j := range joints {
		if err := w.SetMotorSpeed(j, 0); err != nil {
			return fmt.Errorf("motor %d: %w", i, err)
		}
	}
	return nil
}
