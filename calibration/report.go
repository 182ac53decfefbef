package calibration

import (
	"fmt"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// ErrorSummary describes how reprojection error spreads across views.
type ErrorSummary struct {
	Mean   float64
	Median float64
	StdDev float64
	Max    float64
	// Worst is the index of the view with the largest error.
	Worst int
}

// SummarizeViewErrors returns statistics of the per-view RMS errors of r.
func SummarizeViewErrors(r *Result) (ErrorSummary, error) {
	if r == nil || len(r.PerViewErrors) == 0 {
		return ErrorSummary{}, errors.New("calibration has no per-view errors")
	}
	data := stats.Float64Data(r.PerViewErrors)
	mean, err1 := data.Mean()
	median, err2 := data.Median()
	sd, err3 := data.StandardDeviation()
	maxErr, err4 := data.Max()
	if err := multierr.Combine(err1, err2, err3, err4); err != nil {
		return ErrorSummary{}, err
	}
	worst := 0
	for i, e := range r.PerViewErrors {
		if e > r.PerViewErrors[worst] {
			worst = i
		}
	}
	return ErrorSummary{Mean: mean, Median: median, StdDev: sd, Max: maxErr, Worst: worst}, nil
}

// PlotViewErrors saves a bar chart of the per-view RMS errors with the overall RMS as a line. The
// image format follows the extension of path (png, svg, pdf, ...).
func PlotViewErrors(r *Result, path string) error {
	if r == nil || len(r.PerViewErrors) == 0 {
		return errors.New("calibration has no per-view errors")
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Reprojection error per view (RMS %.4f px)", r.RMS)
	p.X.Label.Text = "view"
	p.Y.Label.Text = "RMS error (px)"

	bars, err := plotter.NewBarChart(plotter.Values(r.PerViewErrors), vg.Points(12))
	if err != nil {
		return err
	}
	p.Add(bars)

	rms := plotter.NewFunction(func(float64) float64 { return r.RMS })
	rms.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(rms)
	p.Legend.Add("overall", rms)

	names := make([]string, len(r.PerViewErrors))
	for i := range names {
		names[i] = fmt.Sprint(i)
	}
	p.NominalX(names...)
	p.Y.Min = 0

	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}
