package maplot

import (
	"errors"
	"io"
	"os"

	"github.com/carbocation/pfx"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// Series is one labeled set of points on a plot.
type Series struct {
	Name  string
	Color drawing.Color
	X, Y  []float64

	// Line draws the points as a connected line instead of dots.
	Line bool
}

// Plot is a toolkit independent description of a scatter plot.
type Plot struct {
	Title  string
	XTitle string
	YTitle string
	Series []Series

	Baseline *Series
}

// Plotter is a surface that can display a plot.
type Plotter interface {
	Plot(Plot) error
}

// PlotterFunc adapts a function to the Plotter interface.
type PlotterFunc func(Plot) error

func (f PlotterFunc) Plot(p Plot) error {
	return f(p)
}

// PNGPlotter renders every plot it receives to a PNG file, replacing the
// previous rendering.
type PNGPlotter struct {
	Path   string
	Width  int
	Height int
}

func (p PNGPlotter) Plot(plot Plot) error {
	f, err := os.Create(p.Path)
	if err != nil {
		return pfx.Err(err)
	}

	if err := RenderPNG(f, plot, p.Width, p.Height); err != nil {
		f.Close()
		return err
	}

	if err := f.Close(); err != nil {
		return pfx.Err(err)
	}

	return nil
}

var errEmptyPlot = errors.New("plot has no points")

// RenderPNG draws the plot as a PNG. Zero width or height selects 800x600.
func RenderPNG(w io.Writer, plot Plot, width, height int) error {
	if width <= 0 {
		width = 800
	}
	if height <= 0 {
		height = 600
	}

	series := make([]chart.Series, 0, len(plot.Series)+1)
	for _, s := range plot.Series {
		if len(s.X) == 0 {
			continue
		}
		series = append(series, chartSeries(s))
	}
	if len(series) == 0 {
		return errEmptyPlot
	}
	if plot.Baseline != nil && len(plot.Baseline.X) > 1 && plot.Baseline.X[0] < plot.Baseline.X[1] {
		series = append(series, chartSeries(*plot.Baseline))
	}

	graph := chart.Chart{
		Title:  plot.Title,
		Width:  width,
		Height: height,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20},
		},
		XAxis: chart.XAxis{
			Name: plot.XTitle,
		},
		YAxis: chart.YAxis{
			Name: plot.YTitle,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{
		chart.Legend(&graph),
	}

	if err := graph.Render(chart.PNG, w); err != nil {
		return pfx.Err(err)
	}

	return nil
}

func chartSeries(s Series) chart.Series {
	style := chart.Style{
		StrokeWidth: chart.Disabled,
		DotWidth:    2,
		DotColor:    s.Color,
	}
	if s.Line {
		style = chart.Style{
			StrokeWidth: 1,
			StrokeColor: s.Color,
		}
	}

	return chart.ContinuousSeries{
		Name:    s.Name,
		Style:   style,
		XValues: s.X,
		YValues: s.Y,
	}
}
