package web

import (
	"fmt"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

const (
	histBins = 50
	svgDPI   = 96
)

func newPlot(title string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.Title.TextStyle.Font.Size = vg.Points(12)
	p.X.Tick.Label.Font.Size = vg.Points(10)
	p.Y.Tick.Label.Font.Size = vg.Points(10)
	p.Add(plotter.NewGrid())
	return p
}

// writePlot renders the plot as SVG with the given size in pixels.
func writePlot(w io.Writer, p *plot.Plot, width, height int) error {
	writer, err := p.WriterTo(vg.Inch*vg.Length(width)/svgDPI, vg.Inch*vg.Length(height)/svgDPI, "svg")
	if err != nil {
		return fmt.Errorf("error writing plot: %w", err)
	}
	_, err = writer.WriteTo(w)
	return err
}

// weightHist plots the distribution of the weights of one layer.
func weightHist(name string, weights []float32, ix int) (*plot.Plot, error) {
	vals := make(plotter.Values, len(weights))
	for i, v := range weights {
		vals[i] = float64(v)
	}
	h, err := plotter.NewHist(vals, histBins)
	if err != nil {
		return nil, err
	}
	h.FillColor = plotutil.Color(ix)
	p := newPlot(name + " weights")
	p.Add(h)
	return p, nil
}
