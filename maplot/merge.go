package maplot

import (
	"fmt"
	"math"
	"strings"

	"github.com/montanaflynn/stats"
)

type MergeMethod int

const (
	MergeAverage MergeMethod = iota
	MergeMedian
)

var mergeMethodNames = []string{"Average", "Median"}

func (m MergeMethod) String() string {
	if m < 0 || int(m) >= len(mergeMethodNames) {
		return fmt.Sprintf("MergeMethod(%d)", int(m))
	}
	return mergeMethodNames[m]
}

// Func returns the row-wise reduction for the method.
func (m MergeMethod) Func() MergeFunc {
	switch m {
	case MergeMedian:
		return stats.Median
	}
	return stats.Mean
}

// MergeMethods lists the replicate merging methods in display order.
func MergeMethods() []MergeMethod {
	return []MergeMethod{MergeAverage, MergeMedian}
}

// ParseMergeMethod accepts a method name, case-insensitively.
func ParseMergeMethod(name string) (MergeMethod, error) {
	for i, n := range mergeMethodNames {
		if strings.EqualFold(n, name) || (i == 0 && strings.EqualFold(name, "mean")) {
			return MergeMethod(i), nil
		}
	}
	return 0, fmt.Errorf("unknown merge method %q (want one of %s)", name, strings.Join(mergeMethodNames, ", "))
}

// MergeFunc reduces the non-missing replicate values of one row to a single
// value. It is never called with an empty slice.
type MergeFunc func(stats.Float64Data) (float64, error)

// Merge collapses the replicate columns of m (rows x replicates) into one value
// per row, ignoring NaN. Rows with no finite replicate merge to NaN.
func Merge(m [][]float64, fn MergeFunc) []float64 {
	out := make([]float64, len(m))
	buf := make(stats.Float64Data, 0)
	for i, row := range m {
		buf = buf[:0]
		for _, v := range row {
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				buf = append(buf, v)
			}
		}

		if len(buf) == 0 {
			out[i] = math.NaN()
			continue
		}

		v, err := fn(buf)
		if err != nil {
			out[i] = math.NaN()
			continue
		}
		out[i] = v
	}
	return out
}
