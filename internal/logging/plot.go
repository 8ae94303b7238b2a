package logging

import (
	"errors"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"walkerevo/internal/ga"
)

// PlotHistory charts best and average fitness per generation. The image
// format follows the path's extension (png, svg, pdf).
func PlotHistory(path string, history []ga.Record) error {
	if len(history) == 0 {
		return errors.New("logging: no history to plot")
	}
	best := make(plotter.XYs, len(history))
	avg := make(plotter.XYs, len(history))
	for i, r := range history {
		best[i].X, best[i].Y = float64(r.Generation), r.Best
		avg[i].X, avg[i].Y = float64(r.Generation), r.Average
	}

	p := plot.New()
	p.Title.Text = "Fitness"
	p.X.Label.Text = "generation"
	p.Y.Label.Text = "score"
	p.Add(plotter.NewGrid())

	bestLine, err := plotter.NewLine(best)
	if err != nil {
		return err
	}
	bestLine.Color = color.RGBA{0, 80, 255, 255}
	bestLine.Width = vg.Points(1.8)
	p.Add(bestLine)
	p.Legend.Add("best", bestLine)

	avgLine, err := plotter.NewLine(avg)
	if err != nil {
		return err
	}
	avgLine.Color = color.RGBA{220, 120, 0, 255}
	avgLine.Width = vg.Points(1.2)
	p.Add(avgLine)
	p.Legend.Add("average", avgLine)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}
