package maplot

import "math"

// RatioIntensity returns the MA-plot coordinates of two channels: the log2
// ratio M = log2(R/G) and the intensity A = log10(R*G). Entries that are
// missing, non-positive or otherwise non-finite come back as NaN.
func RatioIntensity(G, R []float64) (ratio, intensity []float64) {
	ratio = make([]float64, len(G))
	intensity = make([]float64, len(G))
	for i := range G {
		ratio[i] = finiteOrNaN(math.Log2(R[i] / G[i]))
		intensity[i] = finiteOrNaN(math.Log10(R[i] * G[i]))
	}
	return ratio, intensity
}

func finiteOrNaN(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return math.NaN()
	}
	return v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
