package maplot

import (
	"fmt"
	"math"

	"github.com/wcharczuk/go-chart/v2/drawing"
)

const (
	// DefaultZCutoff is the two-sided 95% normal quantile.
	DefaultZCutoff = 1.96

	MinZCutoff = 0.0
	MaxZCutoff = 3.0

	IntensityAxisTitle = "Intensity: log10(R*G)"
	RatioAxisTitle     = "Log ratio: log2(R/G)"
)

// Projection is the MA-plot view of a normalization: the rows that survived
// the finite-value filter, their plot coordinates, and their partition by the
// z-score cutoff. All index slices refer to rows of the input table.
type Projection struct {
	Cutoff float64

	// Rows, Intensity, Ratio and Z are parallel.
	Rows      []int
	Intensity []float64
	Ratio     []float64
	Z         []float64

	Significant    []int
	NotSignificant []int
}

// Project computes the MA-plot coordinates of the centered channels and
// partitions the rows whose intensity, ratio and z-score are all finite into
// those with |z| >= cutoff and the rest.
func Project(Gc, Rc, z []float64, cutoff float64) Projection {
	ratio, intensity := RatioIntensity(Gc, Rc)

	p := Projection{Cutoff: cutoff}
	for i := range ratio {
		if !isFinite(ratio[i]) || !isFinite(intensity[i]) || !isFinite(z[i]) {
			continue
		}

		p.Rows = append(p.Rows, i)
		p.Intensity = append(p.Intensity, intensity[i])
		p.Ratio = append(p.Ratio, ratio[i])
		p.Z = append(p.Z, z[i])

		if math.Abs(z[i]) >= cutoff {
			p.Significant = append(p.Significant, i)
		} else {
			p.NotSignificant = append(p.NotSignificant, i)
		}
	}

	return p
}

// Plot describes the projection as a two-color scatter with a zero-ratio
// baseline.
func (p Projection) Plot() Plot {
	red := Series{Name: fmt.Sprintf("Z >= %.2f", p.Cutoff), Color: drawing.ColorRed}
	blue := Series{Name: fmt.Sprintf("Z < %.2f", p.Cutoff), Color: drawing.ColorBlue}

	minX, maxX := math.Inf(1), math.Inf(-1)
	for k, z := range p.Z {
		x, y := p.Intensity[k], p.Ratio[k]
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		if math.Abs(z) >= p.Cutoff {
			red.X, red.Y = append(red.X, x), append(red.Y, y)
		} else {
			blue.X, blue.Y = append(blue.X, x), append(blue.Y, y)
		}
	}

	plot := Plot{
		Title:  "MA plot",
		XTitle: IntensityAxisTitle,
		YTitle: RatioAxisTitle,
		Series: []Series{red, blue},
	}

	if len(p.Z) > 0 {
		plot.Baseline = &Series{
			Color: drawing.ColorBlack,
			X:     []float64{minX, maxX},
			Y:     []float64{0, 0},
			Line:  true,
		}
	}

	return plot
}
