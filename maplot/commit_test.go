package maplot

import (
	"math"
	"testing"
)

func TestCommitScalesFirstSplitOnly(t *testing.T) {
	tab := makeTable(t, map[string][]string{
		"treatment": {"control", "drug", "control", "drug"},
	}, [][]float64{
		{10, 30, 20, 40},
		{math.NaN(), 5, 8, 6},
		{1, 2, 3, 4},
	})

	split := SplitColumns(tab, [2]Label{{"treatment", "control"}, {"treatment", "drug"}})
	G := []float64{15, 8, 2}
	Gc := []float64{30, 4, math.NaN()}
	z := []float64{2.5, -0.3, math.NaN()}

	normalized, filtered, err := Commit(tab, split, G, Gc, z, CommitOptions{Cutoff: 1.96})
	if err != nil {
		t.Fatal(err)
	}

	for _, v := range []struct {
		Row, Col int
		Expected float64
	}{
		{0, 0, 20}, {0, 1, 30}, {0, 2, 40}, {0, 3, 40},
		{1, 1, 5}, {1, 2, 4}, {1, 3, 6},
		// Non-finite factor leaves the row alone
		{2, 0, 1}, {2, 1, 2}, {2, 2, 3}, {2, 3, 4},
	} {
		if got := normalized.Float(v.Row, v.Col); got != v.Expected {
			t.Errorf("Cell (%d,%d) = %v, expected %v", v.Row, v.Col, got, v.Expected)
		}
	}
	if !math.IsNaN(normalized.Float(1, 0)) {
		t.Errorf("Missing cells must stay missing")
	}

	if tab.Float(0, 0) != 10 {
		t.Errorf("Commit modified its input table")
	}

	if filtered.NumRows() != 1 || filtered.Rows[0].Meta[0] != "a" {
		t.Errorf("Expected only row a to pass the cutoff, got %d rows", filtered.NumRows())
	}
	if normalized.NumColumns() != 4 {
		t.Errorf("No z-score column was requested")
	}
}

func TestCommitCutoffs(t *testing.T) {
	tab := makeTable(t, map[string][]string{
		"treatment": {"a", "b"},
	}, [][]float64{{1, 2}, {3, 4}, {5, 6}})

	split := Split{{0}, {1}}
	G := []float64{1, 3, 5}
	z := []float64{0, -1, 4}

	_, filtered, err := Commit(tab, split, G, G, z, CommitOptions{Cutoff: math.Inf(1)})
	if err != nil {
		t.Fatal(err)
	}
	if filtered.NumRows() != 0 {
		t.Errorf("Infinite cutoff kept %d rows", filtered.NumRows())
	}

	normalized, filtered, err := Commit(tab, split, G, G, z, CommitOptions{Cutoff: 0, AppendZScore: true})
	if err != nil {
		t.Fatal(err)
	}
	if filtered.NumRows() != 3 {
		t.Errorf("Cutoff 0 kept %d rows, expected 3", filtered.NumRows())
	}

	col := normalized.ColumnIndex(ZScoreColumn)
	if col != 2 {
		t.Fatalf("Expected the z-score column at index 2, got %d", col)
	}
	if normalized.Float(1, col) != -1 || filtered.Float(2, col) != 4 {
		t.Errorf("Unexpected z-score column values")
	}
}

func TestCommitLengthMismatch(t *testing.T) {
	tab := makeTable(t, nil, [][]float64{{1, 2}})
	if _, _, err := Commit(tab, Split{{0}, {1}}, []float64{1, 2}, []float64{1}, []float64{0}, CommitOptions{}); err == nil {
		t.Errorf("Expected an error for mismatched vectors")
	}
}

func TestCommitReplacesZScoreColumn(t *testing.T) {
	tab := makeTable(t, map[string][]string{
		"treatment": {"a", "b"},
	}, [][]float64{{1, 2}, {3, 4}, {5, 6}})

	split := Split{{0}, {1}}
	G := []float64{1, 3, 5}
	first, _, err := Commit(tab, split, G, G, []float64{0, -1, 4}, CommitOptions{AppendZScore: true})
	if err != nil {
		t.Fatal(err)
	}

	second, _, err := Commit(first, split, G, G, []float64{1, math.NaN(), 3}, CommitOptions{AppendZScore: true})
	if err != nil {
		t.Fatal(err)
	}

	count := 0
	for _, c := range second.Columns {
		if c.Name == ZScoreColumn {
			count++
		}
	}
	if count != 1 || second.NumColumns() != 3 {
		t.Fatalf("Expected a single %s column among 3, got %d among %d", ZScoreColumn, count, second.NumColumns())
	}

	col := second.ColumnIndex(ZScoreColumn)
	if second.Float(0, col) != 1 || !math.IsNaN(second.Float(1, col)) || second.Float(2, col) != 3 {
		t.Errorf("Z-scores were not replaced by the latest values")
	}
	if first.Float(0, col) != 0 {
		t.Errorf("Commit modified its input table")
	}
}
