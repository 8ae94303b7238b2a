package ga

import (
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Record is one generation's fitness summary. History is append-only.
type Record struct {
	Generation int     `csv:"generation" json:"generation"`
	Best       float64 `csv:"best" json:"bestScore"`
	Average    float64 `csv:"average" json:"avgScore"`
	Worst      float64 `csv:"worst" json:"worstScore"`
	StdDev     float64 `csv:"std_dev" json:"stdDev"`
}

// LogValue groups the record's fields for structured logs.
func (r Record) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("generation", r.Generation),
		slog.Float64("best", r.Best),
		slog.Float64("average", r.Average),
		slog.Float64("worst", r.Worst),
		slog.Float64("std_dev", r.StdDev),
	)
}

// Summarize computes a record from fitness values. Empty input and non-finite
// values give zeros rather than NaN.
func Summarize(gen int, fitness []float64) Record {
	r := Record{Generation: gen}
	if len(fitness) == 0 {
		return r
	}
	xs := make([]float64, 0, len(fitness))
	for _, f := range fitness {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			f = 0
		}
		xs = append(xs, f)
	}
	r.Best = floats.Max(xs)
	r.Worst = floats.Min(xs)
	r.Average, r.StdDev = stat.PopMeanStdDev(xs, nil)
	if math.IsNaN(r.StdDev) {
		r.StdDev = 0
	}
	return r
}

// Converged stops a run once the best fitness has moved by at most eps over
// the last window records.
func Converged(window int, eps float64) func([]Record) bool {
	return func(history []Record) bool {
		if window < 1 || len(history) < window+1 {
			return false
		}
		recent := history[len(history)-window-1:]
		lo, hi := recent[0].Best, recent[0].Best
		for _, r := range recent[1:] {
			lo = math.Min(lo, r.Best)
			hi = math.Max(hi, r.Best)
		}
		return hi-lo <= eps
	}
}
