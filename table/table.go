// Package table holds expression tables: an ordered set of rows (genes, spots
// or samples) by an ordered set of numeric columns, each column carrying a
// dictionary of string metadata such as experimental group labels. Rows may
// also carry string annotations ("meta" columns) like probe and gene
// identifiers.
//
// Tables are treated as immutable once loaded. Every transform returns a new
// table and leaves its receiver untouched.
package table

import (
	"fmt"
	"math"
	"sort"

	"gopkg.in/guregu/null.v3"
)

type Column struct {
	Name       string
	Attributes map[string]string
}

// Attribute returns the value of the metadata key and whether it was set.
func (c Column) Attribute(key string) (string, bool) {
	if c.Attributes == nil {
		return "", false
	}
	v, ok := c.Attributes[key]
	return v, ok
}

func (c Column) copy() Column {
	out := Column{Name: c.Name}
	if c.Attributes != nil {
		out.Attributes = make(map[string]string, len(c.Attributes))
		for k, v := range c.Attributes {
			out.Attributes[k] = v
		}
	}
	return out
}

type Row struct {
	Meta   []string
	Values []null.Float
}

func (r Row) copy() Row {
	return Row{
		Meta:   append([]string(nil), r.Meta...),
		Values: append([]null.Float(nil), r.Values...),
	}
}

type Table struct {
	Name      string
	MetaNames []string
	Columns   []Column
	Rows      []Row
}

// New creates an empty table with the given meta and numeric columns.
func New(name string, metaNames []string, columns []Column) *Table {
	t := &Table{
		Name:      name,
		MetaNames: append([]string(nil), metaNames...),
		Columns:   make([]Column, len(columns)),
	}
	for i, c := range columns {
		t.Columns[i] = c.copy()
	}
	return t
}

// AddRow appends a row. Values that are NaN or infinite are stored as missing.
func (t *Table) AddRow(meta []string, values []float64) error {
	if len(meta) != len(t.MetaNames) {
		return fmt.Errorf("row has %d meta values, table has %d meta columns", len(meta), len(t.MetaNames))
	}
	if len(values) != len(t.Columns) {
		return fmt.Errorf("row has %d values, table has %d columns", len(values), len(t.Columns))
	}

	row := Row{
		Meta:   append([]string(nil), meta...),
		Values: make([]null.Float, len(values)),
	}
	for i, v := range values {
		row.Values[i] = Cell(v)
	}
	t.Rows = append(t.Rows, row)

	return nil
}

// Cell converts a float to a table cell, mapping NaN and infinities to missing.
func Cell(v float64) null.Float {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return null.NewFloat(0, false)
	}
	return null.FloatFrom(v)
}

func (t *Table) NumRows() int {
	return len(t.Rows)
}

func (t *Table) NumColumns() int {
	return len(t.Columns)
}

// Float returns the value at (row, col), or NaN if the cell is missing.
func (t *Table) Float(row, col int) float64 {
	v := t.Rows[row].Values[col]
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

// ColumnIndex returns the index of the named numeric column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// MetaIndex returns the index of the named meta column, or -1.
func (t *Table) MetaIndex(name string) int {
	for i, n := range t.MetaNames {
		if n == name {
			return i
		}
	}
	return -1
}

// Copy returns a deep copy of the table.
func (t *Table) Copy() *Table {
	out := New(t.Name, t.MetaNames, t.Columns)
	out.Rows = make([]Row, len(t.Rows))
	for i, r := range t.Rows {
		out.Rows[i] = r.copy()
	}
	return out
}

// ColumnVectors returns a rows x len(indices) matrix of the selected numeric
// columns with NaN in place of missing cells.
func (t *Table) ColumnVectors(indices []int) [][]float64 {
	out := make([][]float64, len(t.Rows))
	for i := range t.Rows {
		out[i] = make([]float64, len(indices))
		for j, col := range indices {
			out[i][j] = t.Float(i, col)
		}
	}
	return out
}

// SelectRows returns a copy holding only the rows for which keep is true.
func (t *Table) SelectRows(keep []bool) (*Table, error) {
	if len(keep) != len(t.Rows) {
		return nil, fmt.Errorf("selection has %d entries, table has %d rows", len(keep), len(t.Rows))
	}

	out := New(t.Name, t.MetaNames, t.Columns)
	for i, r := range t.Rows {
		if keep[i] {
			out.Rows = append(out.Rows, r.copy())
		}
	}
	return out, nil
}

// SelectColumns returns a copy holding only the numeric columns at indices, in
// that order. Meta columns are always retained.
func (t *Table) SelectColumns(indices []int) (*Table, error) {
	cols := make([]Column, len(indices))
	for i, idx := range indices {
		if idx < 0 || idx >= len(t.Columns) {
			return nil, fmt.Errorf("column index %d out of range (%d columns)", idx, len(t.Columns))
		}
		cols[i] = t.Columns[idx]
	}

	out := New(t.Name, t.MetaNames, cols)
	out.Rows = make([]Row, len(t.Rows))
	for i, r := range t.Rows {
		row := Row{
			Meta:   append([]string(nil), r.Meta...),
			Values: make([]null.Float, len(indices)),
		}
		for j, idx := range indices {
			row.Values[j] = r.Values[idx]
		}
		out.Rows[i] = row
	}
	return out, nil
}

// AppendColumn returns a copy with one more numeric column whose values are
// taken from values, one per row.
func (t *Table) AppendColumn(col Column, values []float64) (*Table, error) {
	if len(values) != len(t.Rows) {
		return nil, fmt.Errorf("column %s has %d values, table has %d rows", col.Name, len(values), len(t.Rows))
	}

	out := t.Copy()
	out.Columns = append(out.Columns, col.copy())
	for i := range out.Rows {
		out.Rows[i].Values = append(out.Rows[i].Values, Cell(values[i]))
	}
	return out, nil
}

// Groups returns the sorted set of attribute keys found on any column.
func (t *Table) Groups() []string {
	seen := make(map[string]struct{})
	for _, c := range t.Columns {
		for k := range c.Attributes {
			seen[k] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// Labels returns the sorted set of distinct values of the attribute key across
// all columns.
func (t *Table) Labels(key string) []string {
	seen := make(map[string]struct{})
	for _, c := range t.Columns {
		if v, ok := c.Attribute(key); ok {
			seen[v] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
