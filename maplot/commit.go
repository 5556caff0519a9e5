package maplot

import (
	"fmt"
	"math"

	"github.com/carbocation/exprnorm/table"
	"gopkg.in/guregu/null.v3"
)

// ZScoreColumn is the name of the optional column appended on commit.
const ZScoreColumn = "Z-Score"

type CommitOptions struct {
	AppendZScore bool
	Cutoff       float64
}

// Commit applies the centering back onto the table. Every non-missing cell in
// the first split's columns is multiplied by that row's correction factor
// Gc/G; rows whose factor is not finite are left unchanged. The second split
// is never rescaled. The filtered table keeps the rows with |z| >= cutoff.
func Commit(t *table.Table, split Split, G, Gc, z []float64, opts CommitOptions) (normalized, filtered *table.Table, err error) {
	n := t.NumRows()
	if len(G) != n || len(Gc) != n || len(z) != n {
		return nil, nil, fmt.Errorf("vector lengths (%d, %d, %d) do not match the table's %d rows", len(G), len(Gc), len(z), n)
	}

	normalized = t.Copy()
	for i := range normalized.Rows {
		gfactor := Gc[i] / G[i]
		if !isFinite(gfactor) {
			continue
		}

		values := normalized.Rows[i].Values
		for _, col := range split[0] {
			if values[col].Valid {
				values[col] = null.FloatFrom(values[col].Float64 * gfactor)
			}
		}
	}

	if opts.AppendZScore {
		// A table that was committed before already carries the column.
		if col := normalized.ColumnIndex(ZScoreColumn); col >= 0 {
			for i := range normalized.Rows {
				normalized.Rows[i].Values[col] = table.Cell(z[i])
			}
		} else if normalized, err = normalized.AppendColumn(table.Column{Name: ZScoreColumn}, z); err != nil {
			return nil, nil, err
		}
	}

	keep := make([]bool, n)
	for i, v := range z {
		keep[i] = !math.IsNaN(v) && math.Abs(v) >= opts.Cutoff
	}

	filtered, err = normalized.SelectRows(keep)
	if err != nil {
		return nil, nil, err
	}

	return normalized, filtered, nil
}
