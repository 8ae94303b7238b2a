package eval

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// AggregatedStats holds score statistics across repeated trials
type AggregatedStats struct {
	ScoreMean float64 `json:"score_mean"`
	ScoreStd  float64 `json:"score_std"`
	ScoreMin  float64 `json:"score_min"`
	ScoreMax  float64 `json:"score_max"`
	NumTrials int     `json:"num_trials"`
}

// Aggregate computes statistics from per-trial scores
func Aggregate(scores []float64) AggregatedStats {
	n := len(scores)
	if n == 0 {
		return AggregatedStats{}
	}
	agg := AggregatedStats{
		ScoreMin:  floats.Min(scores),
		ScoreMax:  floats.Max(scores),
		NumTrials: n,
	}
	agg.ScoreMean, agg.ScoreStd = stat.PopMeanStdDev(scores, nil)
	return agg
}

// RobustnessScore computes the ranking score: mean - lambda * std, floored
// at 0
func (a AggregatedStats) RobustnessScore(lambda float64) float64 {
	s := a.ScoreMean - lambda*a.ScoreStd
	if s < 0 {
		return 0
	}
	return s
}
