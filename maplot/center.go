package maplot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/carbocation/runningvariance"
)

type CenterMethod int

const (
	CenterAverage CenterMethod = iota
	CenterLowessFast
	CenterLowess
)

var centerMethodNames = []string{"Average", "Lowess (fast - interpolated)", "Lowess"}
var centerMethodFlags = []string{"average", "lowess-fast", "lowess"}

func (c CenterMethod) String() string {
	if c < 0 || int(c) >= len(centerMethodNames) {
		return fmt.Sprintf("CenterMethod(%d)", int(c))
	}
	return centerMethodNames[c]
}

// CenterMethods lists the centering methods in display order.
func CenterMethods() []CenterMethod {
	return []CenterMethod{CenterAverage, CenterLowessFast, CenterLowess}
}

// ParseCenterMethod accepts either the display name or the short flag form
// (average, lowess-fast, lowess), case-insensitively.
func ParseCenterMethod(name string) (CenterMethod, error) {
	for i := range centerMethodNames {
		if strings.EqualFold(centerMethodNames[i], name) || strings.EqualFold(centerMethodFlags[i], name) {
			return CenterMethod(i), nil
		}
	}
	return 0, fmt.Errorf("unknown center method %q (want one of %s)", name, strings.Join(centerMethodFlags, ", "))
}

var errNoFiniteRatios = errors.New("no rows with a finite log ratio and intensity")

// Center removes the intensity dependent bias between the two channels. The
// correction is applied to G, the reference channel: on return
// log2(Rc/Gc) = log2(R/G) - trend(A) and Rc is R. Rows whose ratio or
// intensity is not finite are NaN in both outputs.
//
// Lowess methods use opts as given; a zero LowessOptions selects
// DefaultLowessOptions(len(G)).
func Center(ctx context.Context, G, R []float64, method CenterMethod, opts LowessOptions) (Gc, Rc []float64, err error) {
	if len(G) != len(R) {
		return nil, nil, fmt.Errorf("channel lengths differ: %d vs %d", len(G), len(R))
	}

	ratio, intensity := RatioIntensity(G, R)

	var trend []float64
	switch method {
	case CenterAverage:
		trend, err = averageTrend(ratio, intensity)
	case CenterLowessFast, CenterLowess:
		if opts == (LowessOptions{}) {
			opts = DefaultLowessOptions(len(G))
		}
		if method == CenterLowess {
			opts.Resolution = 0
		} else if opts.Resolution == 0 {
			opts.Resolution = DefaultLowessResolution
		}
		trend, err = lowessTrend(ctx, ratio, intensity, opts)
	default:
		return nil, nil, fmt.Errorf("unknown center method %d", int(method))
	}
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil, err
		}
		return nil, nil, &NumericalError{Method: method, Err: err}
	}

	Gc = make([]float64, len(G))
	Rc = make([]float64, len(R))
	for i := range G {
		if math.IsNaN(trend[i]) {
			Gc[i], Rc[i] = math.NaN(), math.NaN()
			continue
		}
		Gc[i] = G[i] * math.Exp2(trend[i])
		Rc[i] = R[i]
	}

	return Gc, Rc, nil
}

// averageTrend is the mean log ratio, the same for every finite row.
func averageTrend(ratio, intensity []float64) ([]float64, error) {
	rs := runningvariance.NewRunningStat()
	for i, m := range ratio {
		if isFinite(m) && isFinite(intensity[i]) {
			rs.Push(m)
		}
	}
	if rs.N == 0 {
		return nil, errNoFiniteRatios
	}

	mean := rs.Mean()
	trend := make([]float64, len(ratio))
	for i, m := range ratio {
		if isFinite(m) && isFinite(intensity[i]) {
			trend[i] = mean
		} else {
			trend[i] = math.NaN()
		}
	}

	return trend, nil
}
