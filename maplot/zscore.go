package maplot

import (
	"math"
	"sort"
)

const (
	// DefaultZScoreWindow is the fraction of rows, by intensity rank, used to
	// estimate the local standard deviation of the log ratio.
	DefaultZScoreWindow = 1.0 / 3.0

	// minZScoreWindow is the smallest neighbourhood, in rows.
	minZScoreWindow = 3

	zScoreRefresh = 1024
)

// ZScores standardizes the centered log ratio of each row by the population
// standard deviation of the log ratios of its intensity-rank neighbours. Rows
// whose ratio, intensity or z-score is not finite are NaN.
func ZScores(Gc, Rc []float64, window float64) []float64 {
	ratio, intensity := RatioIntensity(Gc, Rc)

	z := make([]float64, len(ratio))
	order := make([]int, 0, len(ratio))
	for i := range ratio {
		z[i] = math.NaN()
		if isFinite(ratio[i]) && isFinite(intensity[i]) {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool { return intensity[order[a]] < intensity[order[b]] })

	n := len(order)
	if n == 0 {
		return z
	}

	r := int(math.Ceil(float64(n) * window))
	if r < minZScoreWindow {
		r = minZScoreWindow
	}
	if r > n {
		r = n
	}

	// Window sums slide with k. Values are shifted by the overall mean and the
	// sums are rebuilt every zScoreRefresh rows.
	var shift float64
	for _, idx := range order {
		shift += ratio[idx]
	}
	shift /= float64(n)

	var sum, sumSq float64
	lo, hi := 0, 0
	for k, idx := range order {
		start, end := k-r/2, k+r/2+r%2
		if start < 0 {
			start = 0
		}
		if end > n {
			end = n
		}

		if k%zScoreRefresh == 0 {
			sum, sumSq = 0, 0
			lo, hi = start, start
		}

		for hi < end {
			m := ratio[order[hi]] - shift
			sum += m
			sumSq += m * m
			hi++
		}
		for lo < start {
			m := ratio[order[lo]] - shift
			sum -= m
			sumSq -= m * m
			lo++
		}

		count := float64(hi - lo)
		mean := sum / count
		variance := sumSq/count - mean*mean
		if variance <= 1e-12*sumSq/count {
			variance = 0
		}

		z[idx] = finiteOrNaN(ratio[idx] / math.Sqrt(variance))
	}

	return z
}
