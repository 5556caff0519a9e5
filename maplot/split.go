package maplot

import (
	"github.com/carbocation/exprnorm/table"
)

// Label is one (group key, value) pair, e.g. ("treatment", "control").
type Label struct {
	Key   string
	Value string
}

// Split holds the column indices belonging to each of the two labels.
type Split [2][]int

// ResolveLabels finds the two distinct values of the group key across the
// table's columns. Labels are returned in lexical order.
func ResolveLabels(t *table.Table, group string) ([2]Label, error) {
	labels := t.Labels(group)
	if len(labels) != 2 {
		return [2]Label{}, &ValidationError{Group: group, Labels: len(labels)}
	}

	return [2]Label{
		{Key: group, Value: labels[0]},
		{Key: group, Value: labels[1]},
	}, nil
}

// SplitColumns partitions the table's columns by label. Columns that carry
// neither label are left out of both subsets.
func SplitColumns(t *table.Table, labels [2]Label) Split {
	var split Split
	for i, c := range t.Columns {
		for k, label := range labels {
			if v, ok := c.Attribute(label.Key); ok && v == label.Value {
				split[k] = append(split[k], i)
				break
			}
		}
	}
	return split
}
