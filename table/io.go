package table

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/carbocation/exprnorm"
	"github.com/carbocation/pfx"
)

const (
	// MetaPrefix marks a header cell as a string annotation column.
	MetaPrefix = "#"

	// AttributePrefix marks a line as column metadata: the first cell names
	// the attribute key and every numeric column gets one value.
	AttributePrefix = "!"
)

var missingTokens = map[string]struct{}{
	"":     {},
	"?":    {},
	"NA":   {},
	"na":   {},
	"NaN":  {},
	"nan":  {},
	"null": {},
	"NULL": {},
}

// IsMissing reports whether a cell token denotes a missing value.
func IsMissing(token string) bool {
	_, ok := missingTokens[strings.TrimSpace(token)]
	return ok
}

// ReadFile reads a table from a local path. Compressed files are supported.
func ReadFile(path string) (*Table, error) {
	rc, err := exprnorm.OpenSource(context.Background(), path, nil)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	t, err := Read(rc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if t.Name == "" {
		t.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	return t, nil
}

// Read parses a delimited expression table. The delimiter is detected from
// the content.
func Read(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, pfx.Err(err)
	}

	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = exprnorm.DetermineDelimiterBytes(data)
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty table")
	} else if err != nil {
		return nil, pfx.Err(err)
	}

	// Positions of meta and numeric columns within each line
	var metaPos, colPos []int
	t := &Table{}
	for i, cell := range header {
		cell = strings.TrimSpace(cell)
		if strings.HasPrefix(cell, MetaPrefix) {
			metaPos = append(metaPos, i)
			t.MetaNames = append(t.MetaNames, strings.TrimPrefix(cell, MetaPrefix))
			continue
		}
		colPos = append(colPos, i)
		t.Columns = append(t.Columns, Column{Name: cell})
	}

	for line := 2; ; line++ {
		cols, err := cr.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, pfx.Err(err)
		}

		if len(cols) == 1 && strings.TrimSpace(cols[0]) == "" {
			continue
		}

		if len(cols) < len(header) {
			return nil, fmt.Errorf("line %d has %d fields, header has %d", line, len(cols), len(header))
		}

		if strings.HasPrefix(cols[0], AttributePrefix) {
			// The key lives in the leading meta column; without one the
			// first value would be read as the key.
			if len(metaPos) == 0 || metaPos[0] != 0 {
				return nil, fmt.Errorf("line %d: attribute line %q needs a leading %s column to hold its key", line, cols[0], MetaPrefix)
			}
			key := strings.TrimPrefix(cols[0], AttributePrefix)
			for j, pos := range colPos {
				value := strings.TrimSpace(cols[pos])
				if value == "" {
					continue
				}
				if t.Columns[j].Attributes == nil {
					t.Columns[j].Attributes = make(map[string]string)
				}
				t.Columns[j].Attributes[key] = value
			}
			continue
		}

		meta := make([]string, len(metaPos))
		for j, pos := range metaPos {
			meta[j] = cols[pos]
		}

		values := make([]float64, len(colPos))
		for j, pos := range colPos {
			values[j], err = parseCell(cols[pos])
			if err != nil {
				return nil, fmt.Errorf("line %d, column %s: %w", line, t.Columns[j].Name, err)
			}
		}

		if err := t.AddRow(meta, values); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
	}

	return t, nil
}

func parseCell(token string) (float64, error) {
	if IsMissing(token) {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(strings.TrimSpace(token), 64)
}

// Write serializes the table in the tab-delimited format understood by Read.
func Write(w io.Writer, t *Table) error {
	bw := bufio.NewWriter(w)
	cw := csv.NewWriter(bw)
	cw.Comma = '\t'

	header := make([]string, 0, len(t.MetaNames)+len(t.Columns))
	for _, n := range t.MetaNames {
		header = append(header, MetaPrefix+n)
	}
	for _, c := range t.Columns {
		header = append(header, c.Name)
	}
	if err := cw.Write(header); err != nil {
		return pfx.Err(err)
	}

	// The attribute marker occupies the first cell, so column metadata needs
	// at least one meta column to round-trip.
	groups := t.Groups()
	if len(groups) > 0 && len(t.MetaNames) == 0 {
		return fmt.Errorf("table %s has column attributes but no meta column to carry them", t.Name)
	}

	// One attribute line per key, written in sorted order
	for _, key := range groups {
		line := make([]string, len(header))
		line[0] = AttributePrefix + key
		for j, c := range t.Columns {
			if v, ok := c.Attribute(key); ok {
				line[len(t.MetaNames)+j] = v
			}
		}
		if err := cw.Write(line); err != nil {
			return pfx.Err(err)
		}
	}

	for _, r := range t.Rows {
		line := make([]string, 0, len(header))
		line = append(line, r.Meta...)
		for _, v := range r.Values {
			if !v.Valid {
				line = append(line, "")
				continue
			}
			line = append(line, strconv.FormatFloat(v.Float64, 'g', -1, 64))
		}
		if err := cw.Write(line); err != nil {
			return pfx.Err(err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return pfx.Err(err)
	}

	if err := bw.Flush(); err != nil {
		return pfx.Err(err)
	}

	return nil
}
