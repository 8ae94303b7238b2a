package ga

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"walkerevo/internal/genome"
)

// Walker is one individual of the population
type Walker struct {
	// ID is the walker's physical identity; elite copies get a new one.
	ID      uuid.UUID
	Name    string
	Genome  genome.Genome
	Fitness float64
	// Alive is cleared once the walker has been discarded.
	Alive   bool
	Parents [2]uuid.UUID
}

// NewWalker creates a live walker with zero fitness. An empty name is
// replaced by a generated one.
func NewWalker(g genome.Genome, name string, rng *rand.Rand) *Walker {
	if name == "" {
		name = RandomName(rng)
	}
	return &Walker{
		ID:     newID(rng),
		Name:   name,
		Genome: g,
		Alive:  true,
	}
}

// Clone returns a deep copy with the same identity
func (w *Walker) Clone() *Walker {
	c := *w
	return &c
}

var (
	namePrefixes = []string{"Alpha", "Beta", "Gamma", "Delta", "Epsilon", "Zeta", "Eta", "Theta"}
	nameSuffixes = []string{"Walker", "Strider", "Ambler", "Stroller", "Marcher", "Glider", "Pacer", "Rover"}
)

// RandomName returns a cosmetic name like "Gamma Strider 417".
func RandomName(rng *rand.Rand) string {
	return fmt.Sprintf("%s %s %d",
		namePrefixes[rng.Intn(len(namePrefixes))],
		nameSuffixes[rng.Intn(len(nameSuffixes))],
		rng.Intn(1000))
}

func childName(gen, idx int) string {
	return fmt.Sprintf("Child_%d_%d", gen, idx)
}

// newID draws a version 4 UUID from rng so that a seeded run reproduces
// the same identities.
func newID(rng *rand.Rand) uuid.UUID {
	id, err := uuid.NewRandomFromReader(rng)
	if err != nil {
		return uuid.New()
	}
	return id
}
