package genome

import (
	"fmt"
	"math"
	"math/rand"
)

// NumMotors is the number of motor-driven joints: left hip, left knee,
// right hip, right knee, in that order.
const NumMotors = 4

// NumGenes is the length of the flat gene vector.
const NumGenes = 4 + 3*NumMotors

// TwoPi is the period of phase genes.
const TwoPi = 2 * math.Pi

// Genome defines a walker's body proportions and its per-joint motor signal.
// It is a value type: the arrays are copied on assignment, so operators
// always produce new genomes and never alias a parent.
type Genome struct {
	BodyWidth    float64 `json:"bodyWidth"`
	BodyHeight   float64 `json:"bodyHeight"`
	LegLength    float64 `json:"legSegmentLength"`
	LegThickness float64 `json:"legSegmentThickness"`

	Amplitudes  [NumMotors]float64 `json:"motorAmplitudes"`
	Frequencies [NumMotors]float64 `json:"motorFrequencies"`
	Phases      [NumMotors]float64 `json:"motorPhases"`
}

// Kind classifies how a gene is kept in range.
type Kind int

const (
	Clamped Kind = iota
	Wrapped      // periodic, wraps modulo the bound width
)

// Spec declares a gene's name, bounds, initial draw range and mutation scale.
type Spec struct {
	Name    string
	Min     float64
	Max     float64
	InitMin float64
	InitMax float64
	Scale   float64
	Kind    Kind
}

var scalarSpecs = [4]Spec{
	{Name: "bodyWidth", Min: 0.1, Max: 2.0, InitMin: 0.3, InitMax: 0.7, Scale: 1},
	{Name: "bodyHeight", Min: 0.1, Max: 1.0, InitMin: 0.2, InitMax: 0.5, Scale: 1},
	{Name: "legSegmentLength", Min: 0.1, Max: 1.0, InitMin: 0.2, InitMax: 0.5, Scale: 1},
	{Name: "legSegmentThickness", Min: 0.01, Max: 0.3, InitMin: 0.05, InitMax: 0.15, Scale: 0.25},
}

var (
	amplitudeSpec = Spec{Name: "motorAmplitudes", Min: -2, Max: 2, InitMin: -1, InitMax: 1, Scale: 1}
	frequencySpec = Spec{Name: "motorFrequencies", Min: 0.1, Max: 10, InitMin: 0.5, InitMax: 5.5, Scale: 1}
	phaseSpec     = Spec{Name: "motorPhases", Min: 0, Max: TwoPi, InitMin: 0, InitMax: TwoPi, Scale: 1, Kind: Wrapped}
)

// Specs returns the gene table in flat gene order: the four body scalars,
// then amplitudes, frequencies and phases for each motor.
func Specs() [NumGenes]Spec {
	var out [NumGenes]Spec
	copy(out[:4], scalarSpecs[:])
	for i := 0; i < NumMotors; i++ {
		out[AmplitudeIndex(i)] = indexed(amplitudeSpec, i)
		out[FrequencyIndex(i)] = indexed(frequencySpec, i)
		out[PhaseIndex(i)] = indexed(phaseSpec, i)
	}
	return out
}

func indexed(s Spec, i int) Spec {
	s.Name = fmt.Sprintf("%s[%d]", s.Name, i)
	return s
}

// AmplitudeIndex returns the flat gene index of motor i's amplitude.
func AmplitudeIndex(i int) int { return 4 + i }

// FrequencyIndex returns the flat gene index of motor i's frequency.
func FrequencyIndex(i int) int { return 4 + NumMotors + i }

// PhaseIndex returns the flat gene index of motor i's phase.
func PhaseIndex(i int) int { return 4 + 2*NumMotors + i }

// Random draws every gene uniformly within its initial range. Motor triples
// are drawn independently per joint.
func Random(rng *rand.Rand) Genome {
	var genes [NumGenes]float64
	for i, s := range Specs() {
		genes[i] = s.InitMin + rng.Float64()*(s.InitMax-s.InitMin)
		if s.Kind == Wrapped {
			genes[i] = Wrap(genes[i], s.Min, s.Max)
		}
	}
	return FromGenes(genes)
}

// Genes flattens the genome into gene order.
func (g Genome) Genes() [NumGenes]float64 {
	var out [NumGenes]float64
	out[0] = g.BodyWidth
	out[1] = g.BodyHeight
	out[2] = g.LegLength
	out[3] = g.LegThickness
	for i := 0; i < NumMotors; i++ {
		out[AmplitudeIndex(i)] = g.Amplitudes[i]
		out[FrequencyIndex(i)] = g.Frequencies[i]
		out[PhaseIndex(i)] = g.Phases[i]
	}
	return out
}

// FromGenes rebuilds a genome from a flat gene vector. Values are taken as
// they are; use Clamp to bring them into range.
func FromGenes(genes [NumGenes]float64) Genome {
	g := Genome{
		BodyWidth:    genes[0],
		BodyHeight:   genes[1],
		LegLength:    genes[2],
		LegThickness: genes[3],
	}
	for i := 0; i < NumMotors; i++ {
		g.Amplitudes[i] = genes[AmplitudeIndex(i)]
		g.Frequencies[i] = genes[FrequencyIndex(i)]
		g.Phases[i] = genes[PhaseIndex(i)]
	}
	return g
}

// Clamp returns a copy with every gene brought into its bounds.
func (g Genome) Clamp() Genome {
	genes := g.Genes()
	specs := Specs()
	for i := range genes {
		genes[i] = specs[i].Fit(genes[i])
	}
	return FromGenes(genes)
}

// Fit brings v into the gene's bounds, clamping or wrapping by kind.
func (s Spec) Fit(v float64) float64 {
	if s.Kind == Wrapped {
		return Wrap(v, s.Min, s.Max)
	}
	return Clamp(v, s.Min, s.Max)
}

// Contains reports whether v is a legal value for the gene.
func (s Spec) Contains(v float64) bool {
	if math.IsNaN(v) {
		return false
	}
	if s.Kind == Wrapped {
		return v >= s.Min && v < s.Max
	}
	return v >= s.Min && v <= s.Max
}

// Validate returns an error naming the first gene outside its bounds.
func (g Genome) Validate() error {
	genes := g.Genes()
	for i, s := range Specs() {
		if !s.Contains(genes[i]) {
			return fmt.Errorf("gene %s = %v outside [%v, %v]", s.Name, genes[i], s.Min, s.Max)
		}
	}
	return nil
}

// Clamp limits v to [lo, hi]. NaN maps to lo.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Wrap maps v into [lo, hi) modulo the interval width. Values already in
// range are returned unchanged.
func Wrap(v, lo, hi float64) float64 {
	if v >= lo && v < hi {
		return v
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return lo
	}
	width := hi - lo
	r := math.Mod(v-lo, width)
	if r < 0 {
		r += width
	}
	out := lo + r
	// r+width can round up to exactly width for tiny negative r
	if out >= hi {
		return lo
	}
	return out
}
