package maplot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/mat"
)

const (
	// MaxLowessDivisor caps the number of windows the data is divided into:
	// the window fraction is never smaller than 1/MaxLowessDivisor.
	MaxLowessDivisor = 500

	// DefaultLowessIterations is one fitting pass with no robustness
	// reweighting.
	DefaultLowessIterations = 1

	// DefaultLowessResolution is the number of points the interpolated
	// variant fits before interpolating the trend for every row.
	DefaultLowessResolution = 100

	// degenerateFit is the relative determinant below which a local fit
	// falls back to the weighted mean.
	degenerateFit = 1e-10
)

// LowessOptions controls the local regression used for lowess centering.
type LowessOptions struct {
	// Window is the fraction of points used in each local fit.
	Window float64

	// Iterations is the number of fitting passes. Every pass after the first
	// downweights points with large residuals from the previous pass.
	Iterations int

	// Resolution, if non-zero, fits at most this many points spread evenly by
	// intensity rank and linearly interpolates between them.
	Resolution int
}

// LowessWindow is the window fraction used for n rows: 1/min(500, n/100),
// where the divisor is floored at 1 so that small inputs use every point.
func LowessWindow(n int) float64 {
	divisor := math.Min(MaxLowessDivisor, math.Floor(float64(n)/100))
	if divisor < 1 {
		divisor = 1
	}
	return 1 / divisor
}

// DefaultLowessOptions returns the window and iteration policy for n rows.
func DefaultLowessOptions(n int) LowessOptions {
	return LowessOptions{
		Window:     LowessWindow(n),
		Iterations: DefaultLowessIterations,
	}
}

// Lowess fits a locally weighted linear regression of y on x and returns the
// fitted value for every point. Points where x or y is not finite are NaN in
// the output and do not take part in any fit.
func Lowess(ctx context.Context, x, y []float64, opts LowessOptions) ([]float64, error) {
	if len(x) != len(y) {
		return nil, fmt.Errorf("lowess: x has %d values, y has %d", len(x), len(y))
	}
	return lowessTrend(ctx, y, x, opts)
}

// lowessPoint is one finite observation, kept in x order.
type lowessPoint struct {
	index int
	x, y  float64
}

func lowessTrend(ctx context.Context, ratio, intensity []float64, opts LowessOptions) ([]float64, error) {
	points := make([]lowessPoint, 0, len(ratio))
	for i := range ratio {
		if isFinite(ratio[i]) && isFinite(intensity[i]) {
			points = append(points, lowessPoint{index: i, x: intensity[i], y: ratio[i]})
		}
	}
	if len(points) == 0 {
		return nil, errNoFiniteRatios
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].x < points[j].x })

	if opts.Window <= 0 || opts.Window > 1 {
		return nil, fmt.Errorf("lowess window %v is outside (0, 1]", opts.Window)
	}
	if opts.Iterations < 1 {
		opts.Iterations = 1
	}

	n := len(points)
	xs := make([]float64, n)
	ys := make([]float64, n)
	for i, p := range points {
		xs[i], ys[i] = p.x, p.y
	}

	// Neighbourhood size, counting the point itself.
	r := int(math.Ceil(opts.Window*float64(n))) + 1
	if r > n {
		r = n
	}

	robustness := make([]float64, n)
	for i := range robustness {
		robustness[i] = 1
	}

	evalAt := xs
	if opts.Resolution > 0 && opts.Resolution < n {
		evalAt = gridByRank(xs, opts.Resolution)
	}

	var fitted []float64
	for iteration := 0; iteration < opts.Iterations; iteration++ {
		est := make([]float64, len(evalAt))
		for i, x0 := range evalAt {
			if i%1000 == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}

			v, err := localFit(xs, ys, robustness, x0, r)
			if err != nil {
				return nil, fmt.Errorf("local fit at intensity %g: %w", x0, err)
			}
			est[i] = v
		}

		var err error
		fitted, err = expand(evalAt, est, xs)
		if err != nil {
			return nil, err
		}

		if iteration+1 < opts.Iterations {
			if done := updateRobustness(ys, fitted, robustness); done {
				break
			}
		}
	}

	out := make([]float64, len(ratio))
	for i := range out {
		out[i] = math.NaN()
	}
	for i, p := range points {
		out[p.index] = fitted[i]
	}

	return out, nil
}

// gridByRank picks up to k distinct x values spread evenly by rank, always
// including both ends.
func gridByRank(xs []float64, k int) []float64 {
	n := len(xs)
	if k < 2 {
		k = 2
	}

	grid := make([]float64, 0, k)
	for i := 0; i < k; i++ {
		x := xs[int(math.Round(float64(i)*float64(n-1)/float64(k-1)))]
		if len(grid) == 0 || x > grid[len(grid)-1] {
			grid = append(grid, x)
		}
	}
	return grid
}

// expand maps the fitted values at evalAt onto every x. When evalAt is xs
// itself the values are returned as-is.
func expand(evalAt, est, xs []float64) ([]float64, error) {
	if len(evalAt) == len(xs) {
		return est, nil
	}

	out := make([]float64, len(xs))
	if len(evalAt) == 1 {
		for i := range out {
			out[i] = est[0]
		}
		return out, nil
	}

	var pl interp.PiecewiseLinear
	if err := pl.Fit(evalAt, est); err != nil {
		return nil, err
	}
	for i, x := range xs {
		out[i] = pl.Predict(x)
	}
	return out, nil
}

// localFit returns the weighted linear regression estimate at x0 using the r
// points nearest to x0 with tricube distance weights.
func localFit(xs, ys, robustness []float64, x0 float64, r int) (float64, error) {
	lo, hi := neighbourhood(xs, x0, r)

	h := math.Max(x0-xs[lo], xs[hi-1]-x0)

	var s0, s1, s2, t0, t1 float64
	for j := lo; j < hi; j++ {
		d := xs[j] - x0

		var w float64
		if h > 0 {
			w = tricube(math.Abs(d) / h)
		} else if d == 0 {
			w = 1
		}
		w *= robustness[j]

		s0 += w
		s1 += w * d
		s2 += w * d * d
		t0 += w * ys[j]
		t1 += w * d * ys[j]
	}

	if !(s0 > 0) {
		return 0, errors.New("no points with positive weight")
	}

	// Without spread in x the slope is undetermined and the local fit is the
	// weighted mean, as with tied intensities from saturated spots.
	if det := s0*s2 - s1*s1; h == 0 || det <= degenerateFit*s0*s2 {
		v := t0 / s0
		if !isFinite(v) {
			return 0, errors.New("non-finite local estimate")
		}
		return v, nil
	}

	// Regress on x - x0 so the intercept is the estimate at x0.
	a := mat.NewDense(2, 2, []float64{s0, s1, s1, s2})
	b := mat.NewVecDense(2, []float64{t0, t1})

	var beta mat.VecDense
	if err := beta.SolveVec(a, b); err != nil {
		// Ill-conditioned but non-singular systems still yield a solution.
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return 0, err
		}
	}

	v := beta.AtVec(0)
	if !isFinite(v) {
		return 0, errors.New("non-finite local estimate")
	}
	return v, nil
}

// neighbourhood returns the half-open index range of the r values of the
// sorted xs nearest to x0.
func neighbourhood(xs []float64, x0 float64, r int) (lo, hi int) {
	n := len(xs)
	j := sort.SearchFloat64s(xs, x0)
	lo, hi = j, j
	for hi-lo < r {
		switch {
		case lo == 0:
			hi++
		case hi == n:
			lo--
		case x0-xs[lo-1] <= xs[hi]-x0:
			lo--
		default:
			hi++
		}
	}
	return lo, hi
}

func tricube(u float64) float64 {
	if u >= 1 {
		return 0
	}
	c := 1 - u*u*u
	return c * c * c
}

// updateRobustness recomputes bisquare robustness weights from the residuals.
// It reports true when the residuals are all zero and no further pass can
// change the fit.
func updateRobustness(ys, fitted, robustness []float64) bool {
	residuals := make(stats.Float64Data, len(ys))
	for i := range ys {
		residuals[i] = math.Abs(ys[i] - fitted[i])
	}

	s, err := stats.Median(residuals)
	if err != nil || s == 0 {
		return true
	}

	for i, res := range residuals {
		u := res / (6 * s)
		if u >= 1 {
			robustness[i] = 0
			continue
		}
		c := 1 - u*u
		robustness[i] = c * c
	}
	return false
}
