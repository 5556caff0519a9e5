package maplot

import (
	"context"
	"fmt"

	"github.com/carbocation/exprnorm/table"
	"github.com/carbocation/runningvariance"
)

// Settings are the user-selectable parameters of a normalization.
type Settings struct {
	Merge  MergeMethod
	Center CenterMethod

	// ZWindow is the z-score neighbourhood fraction.
	ZWindow float64

	// ZCutoff separates significant from non-significant rows.
	ZCutoff float64

	AppendZScore bool
	AutoCommit   bool
}

func DefaultSettings() Settings {
	return Settings{
		Merge:   MergeAverage,
		Center:  CenterAverage,
		ZWindow: DefaultZScoreWindow,
		ZCutoff: DefaultZCutoff,
	}
}

// Grouping is the split stage: the labels of the selected group, the columns
// carrying each label, and each split's merged signal.
type Grouping struct {
	Labels [2]Label
	Split  Split

	// G is the merged first split, R the merged second split.
	G, R []float64
}

// Group resolves the labels of the group key, splits the table's columns by
// label and merges the replicates of each split.
func Group(t *table.Table, group string, merge MergeMethod) (Grouping, error) {
	labels, err := ResolveLabels(t, group)
	if err != nil {
		return Grouping{}, err
	}

	split := SplitColumns(t, labels)
	fn := merge.Func()

	return Grouping{
		Labels: labels,
		Split:  split,
		G:      Merge(t.ColumnVectors(split[0]), fn),
		R:      Merge(t.ColumnVectors(split[1]), fn),
	}, nil
}

// Normalization is the centering stage and everything derived from it.
type Normalization struct {
	Gc, Rc []float64
	Z      []float64
}

// Normalize centers the merged signals and estimates z-scores. This is the
// potentially slow stage that controllers run in the background.
func Normalize(ctx context.Context, g Grouping, s Settings) (Normalization, error) {
	window := s.ZWindow
	if window <= 0 {
		window = DefaultZScoreWindow
	}

	Gc, Rc, err := Center(ctx, g.G, g.R, s.Center, DefaultLowessOptions(len(g.G)))
	if err != nil {
		return Normalization{}, err
	}

	if err := ctx.Err(); err != nil {
		return Normalization{}, err
	}

	return Normalization{
		Gc: Gc,
		Rc: Rc,
		Z:  ZScores(Gc, Rc, window),
	}, nil
}

// Result is a complete, synchronous run of the pipeline.
type Result struct {
	Grouping
	Normalization
	Projection Projection

	Normalized *table.Table
	Filtered   *table.Table
}

// Run executes every stage of the pipeline on t.
func Run(ctx context.Context, t *table.Table, group string, s Settings) (*Result, error) {
	g, err := Group(t, group, s.Merge)
	if err != nil {
		return nil, err
	}

	norm, err := Normalize(ctx, g, s)
	if err != nil {
		return nil, err
	}

	normalized, filtered, err := Commit(t, g.Split, g.G, norm.Gc, norm.Z, CommitOptions{
		AppendZScore: s.AppendZScore,
		Cutoff:       s.ZCutoff,
	})
	if err != nil {
		return nil, err
	}

	return &Result{
		Grouping:      g,
		Normalization: norm,
		Projection:    Project(norm.Gc, norm.Rc, norm.Z, s.ZCutoff),
		Normalized:    normalized,
		Filtered:      filtered,
	}, nil
}

// Summary describes a projection in a few numbers.
type Summary struct {
	Rows           int
	FiniteRows     int
	Significant    int
	NotSignificant int
	ZMean          float64
	ZStd           float64
}

func Summarize(rows int, p Projection) Summary {
	rs := runningvariance.NewRunningStat()
	for _, z := range p.Z {
		rs.Push(z)
	}

	s := Summary{
		Rows:           rows,
		FiniteRows:     len(p.Rows),
		Significant:    len(p.Significant),
		NotSignificant: len(p.NotSignificant),
	}
	if len(p.Z) > 0 {
		s.ZMean = rs.Mean()
		s.ZStd = rs.StandardDeviation()
	}
	return s
}

func (s Summary) String() string {
	return fmt.Sprintf("%d rows, %d with finite values: %d with |Z| >= cutoff, %d below. Z mean %.3f, SD %.3f",
		s.Rows, s.FiniteRows, s.Significant, s.NotSignificant, s.ZMean, s.ZStd)
}
