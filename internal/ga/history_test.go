package ga

import (
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarize(t *testing.T) {
	r := Summarize(4, []float64{100, 90, 0, 10})
	assert.Equal(t, 4, r.Generation)
	assert.Equal(t, 100.0, r.Best)
	assert.Equal(t, 0.0, r.Worst)
	assert.InDelta(t, 50, r.Average, 1e-12)
	// population standard deviation
	assert.InDelta(t, math.Sqrt((50*50+40*40+50*50+40*40)/4.0), r.StdDev, 1e-9)
}

func TestSummarizeDegenerate(t *testing.T) {
	assert.Equal(t, Record{Generation: 2}, Summarize(2, nil))

	r := Summarize(0, []float64{0, 0, 0})
	assert.Equal(t, Record{}, r)

	r = Summarize(0, []float64{math.NaN(), 4})
	assert.Equal(t, 4.0, r.Best)
	assert.False(t, math.IsNaN(r.Average))
	assert.False(t, math.IsNaN(r.StdDev))
}

func TestRecordLogValue(t *testing.T) {
	v := Record{Generation: 3, Best: 7}.LogValue()
	assert.Equal(t, slog.KindGroup, v.Kind())
	assert.Len(t, v.Group(), 5)
}

func TestConverged(t *testing.T) {
	stop := Converged(3, 0.5)
	h := []Record{{Best: 1}, {Best: 10}, {Best: 10.2}, {Best: 10.4}}
	assert.False(t, stop(h[:3]), "not enough history")
	assert.False(t, stop(h), "jump from 1 is inside the window")
	h = append(h, Record{Best: 10.3})
	assert.True(t, stop(h))
	assert.False(t, Converged(0, 1)(h))
}
