package geo

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/araddon/dateparse"
	"github.com/carbocation/exprnorm/table"
	"github.com/carbocation/pfx"
	"github.com/montanaflynn/stats"
)

// Column names of the GDS data table that are not samples.
const (
	SpotColumn = "ID_REF"
	GeneColumn = "IDENTIFIER"

	// Meta columns of sample-row tables.
	SampleColumn = "sample"
	ClassColumn  = "class"

	// ClassSeparator joins the subset descriptions of a sample in the class
	// column.
	ClassSeparator = "|"
)

// Spot is one row of a GDS data table.
type Spot struct {
	ID     string
	Gene   string
	Values []float64
}

// SOFT is a parsed GDS SOFT file: the dataset record and its value table.
type SOFT struct {
	Info    DatasetInfo
	Samples []string
	Spots   []Spot
}

// FetchOptions controls the shape of the table built from a dataset.
type FetchOptions struct {
	// ReportGenes averages the spots of each gene into one row (or column,
	// when transposed).
	ReportGenes bool

	// Transpose puts samples in rows, each with a class naming its subsets.
	Transpose bool

	// SampleType, if set, restricts annotations to subsets of that type.
	SampleType string
}

func DefaultFetchOptions() FetchOptions {
	return FetchOptions{ReportGenes: true}
}

// ParseSOFT reads a GDS SOFT file: the ^DATASET and ^SUBSET header blocks and
// the table between !dataset_table_begin and !dataset_table_end. Other blocks
// are skipped.
func ParseSOFT(r io.Reader) (*SOFT, error) {
	s := &SOFT{}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)

	var block string
	var subset *Subset
	var description []string
	inTable := false
	var header []string
	spotPos, genePos := -1, -1
	var samplePos []int
	genes := make(map[string]struct{})

	endSubset := func() {
		if subset != nil {
			s.Info.Subsets = append(s.Info.Subsets, *subset)
			subset = nil
		}
	}

	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimRight(scanner.Text(), "\r")

		if inTable {
			if strings.HasPrefix(text, "!dataset_table_end") {
				inTable = false
				continue
			}

			cols := strings.Split(text, "\t")
			if header == nil {
				header = cols
				for i, c := range cols {
					switch c {
					case SpotColumn:
						spotPos = i
					case GeneColumn:
						genePos = i
					default:
						samplePos = append(samplePos, i)
						s.Samples = append(s.Samples, c)
					}
				}
				if spotPos < 0 {
					return nil, fmt.Errorf("line %d: data table has no %s column", line, SpotColumn)
				}
				continue
			}

			if len(cols) != len(header) {
				return nil, fmt.Errorf("line %d: %d fields, table header has %d", line, len(cols), len(header))
			}

			spot := Spot{ID: cols[spotPos], Values: make([]float64, len(samplePos))}
			if genePos >= 0 {
				spot.Gene = cols[genePos]
				genes[spot.Gene] = struct{}{}
			}
			for j, pos := range samplePos {
				v, err := parseValue(cols[pos])
				if err != nil {
					return nil, fmt.Errorf("line %d, sample %s: %w", line, s.Samples[j], err)
				}
				spot.Values[j] = v
			}
			s.Spots = append(s.Spots, spot)
			continue
		}

		key, value := splitAttribute(text)
		switch {
		case key == "^DATASET":
			block = key
			s.Info.ID = value
		case key == "^SUBSET":
			endSubset()
			block = key
			subset = &Subset{}
		case strings.HasPrefix(key, "^"):
			endSubset()
			block = key
		case key == "!dataset_table_begin":
			endSubset()
			inTable = true
		case block == "^DATASET":
			switch key {
			case "!dataset_title":
				s.Info.Title = Clean(value)
			case "!dataset_description":
				description = append(description, Clean(value))
			case "!dataset_platform":
				s.Info.Platform = value
			case "!dataset_platform_organism":
				s.Info.Organism = Clean(value)
			case "!dataset_sample_organism":
				if s.Info.Organism == "" {
					s.Info.Organism = Clean(value)
				}
			case "!dataset_value_type":
				s.Info.ValueType = value
			case "!dataset_feature_count":
				n, err := strconv.Atoi(value)
				if err != nil {
					return nil, fmt.Errorf("line %d: feature count: %w", line, err)
				}
				s.Info.FeatureCount = n
			case "!dataset_pubmed_id":
				s.Info.PubMedID = value
			case "!dataset_update_date":
				s.Info.UpdateDate = parseDate(value)
			}
		case block == "^SUBSET" && subset != nil:
			switch key {
			case "!subset_description":
				subset.Description = Clean(value)
			case "!subset_type":
				subset.Type = value
			case "!subset_sample_id":
				subset.SampleIDs = append(subset.SampleIDs, splitList(value)...)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, pfx.Err(err)
	}
	endSubset()

	if s.Info.ID == "" {
		return nil, fmt.Errorf("no ^DATASET block found")
	}
	if inTable {
		return nil, fmt.Errorf("%s: data table is not terminated", s.Info.ID)
	}

	s.Info.Description = strings.Join(description, " ")
	s.Info.SampleIDs = append([]string(nil), s.Samples...)
	if s.Info.FeatureCount == 0 {
		s.Info.FeatureCount = len(s.Spots)
	}
	s.Info.GeneCount = len(genes)

	return s, nil
}

// splitAttribute splits "key = value" header lines.
func splitAttribute(line string) (key, value string) {
	parts := strings.SplitN(line, "=", 2)
	key = strings.TrimSpace(parts[0])
	if len(parts) == 2 {
		value = strings.TrimSpace(parts[1])
	}
	return key, value
}

func parseValue(token string) (float64, error) {
	if table.IsMissing(token) {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(strings.TrimSpace(token), 64)
}

// parseDate normalizes dates such as "Jun 21 2005" to 2005-06-21. Values
// that do not parse are kept as written.
func parseDate(value string) string {
	t, err := dateparse.ParseAny(value)
	if err != nil {
		return value
	}
	return t.Format("2006-01-02")
}

// sampleClasses maps each sample to the subsets it belongs to, keyed by
// subset type, keeping only sampleType if it is set.
func (s *SOFT) sampleClasses(sampleType string) map[string][]Subset {
	out := make(map[string][]Subset)
	for _, sub := range s.Info.Subsets {
		if sampleType != "" && sub.Type != sampleType {
			continue
		}
		for _, id := range sub.SampleIDs {
			out[id] = append(out[id], sub)
		}
	}
	return out
}

// features returns the row labels and values, one per spot or, with
// ReportGenes, one per gene in first-seen order with spots averaged.
func (s *SOFT) features(reportGenes bool) (ids, genes []string, values [][]float64) {
	if !reportGenes {
		for _, sp := range s.Spots {
			ids = append(ids, sp.ID)
			genes = append(genes, sp.Gene)
			values = append(values, sp.Values)
		}
		return ids, genes, values
	}

	index := make(map[string]int)
	var members [][]int
	for i, sp := range s.Spots {
		gene := sp.Gene
		if gene == "" {
			gene = sp.ID
		}
		k, ok := index[gene]
		if !ok {
			k = len(genes)
			index[gene] = k
			genes = append(genes, gene)
			members = append(members, nil)
		}
		members[k] = append(members[k], i)
	}

	values = make([][]float64, len(genes))
	for k, rows := range members {
		values[k] = make([]float64, len(s.Samples))
		for j := range s.Samples {
			var v stats.Float64Data
			for _, i := range rows {
				if x := s.Spots[i].Values[j]; !math.IsNaN(x) {
					v = append(v, x)
				}
			}
			mean, err := v.Mean()
			if err != nil {
				mean = math.NaN()
			}
			values[k][j] = mean
		}
	}

	return genes, genes, values
}

// Table builds the expression table of the dataset. With samples in columns,
// each column carries one attribute per subset type the sample belongs to.
// With samples in rows, the class meta column joins the sample's subset
// descriptions with ClassSeparator.
func (s *SOFT) Table(opts FetchOptions) (*table.Table, error) {
	classes := s.sampleClasses(opts.SampleType)
	ids, genes, values := s.features(opts.ReportGenes)

	if !opts.Transpose {
		cols := make([]table.Column, len(s.Samples))
		for j, sample := range s.Samples {
			cols[j].Name = sample
			for _, sub := range classes[sample] {
				if cols[j].Attributes == nil {
					cols[j].Attributes = make(map[string]string)
				}
				cols[j].Attributes[sub.Type] = sub.Description
			}
		}

		metaNames := []string{SpotColumn, GeneColumn}
		if opts.ReportGenes {
			metaNames = []string{GeneColumn}
		}

		t := table.New(s.Info.ID, metaNames, cols)
		for i := range ids {
			meta := []string{ids[i], genes[i]}
			if opts.ReportGenes {
				meta = meta[1:]
			}
			if err := t.AddRow(meta, values[i]); err != nil {
				return nil, err
			}
		}
		return t, nil
	}

	cols := make([]table.Column, len(ids))
	for i, id := range ids {
		cols[i].Name = id
	}

	t := table.New(s.Info.ID, []string{SampleColumn, ClassColumn}, cols)
	for j, sample := range s.Samples {
		var names []string
		for _, sub := range classes[sample] {
			names = append(names, sub.Description)
		}

		row := make([]float64, len(ids))
		for i := range ids {
			row[i] = values[i][j]
		}
		if err := t.AddRow([]string{sample, strings.Join(names, ClassSeparator)}, row); err != nil {
			return nil, err
		}
	}

	return t, nil
}

// SelectSamples keeps the samples annotated with at least one of the
// selected subset descriptions. With samples in columns, columns none of
// whose attribute values are selected are dropped. With samples in rows, rows
// are filtered on their class, and the class is reduced to its selected
// parts.
func SelectSamples(t *table.Table, selected []string, transposed bool) (*table.Table, error) {
	want := make(map[string]struct{}, len(selected))
	for _, s := range selected {
		want[s] = struct{}{}
	}

	if !transposed {
		var keep []int
		for j, c := range t.Columns {
			for _, v := range c.Attributes {
				if _, ok := want[v]; ok {
					keep = append(keep, j)
					break
				}
			}
		}
		return t.SelectColumns(keep)
	}

	classPos := t.MetaIndex(ClassColumn)
	if classPos < 0 {
		return nil, fmt.Errorf("table %s has no %s column", t.Name, ClassColumn)
	}

	keep := make([]bool, t.NumRows())
	for i, r := range t.Rows {
		for _, part := range strings.Split(r.Meta[classPos], ClassSeparator) {
			if _, ok := want[part]; ok {
				keep[i] = true
				break
			}
		}
	}

	out, err := t.SelectRows(keep)
	if err != nil {
		return nil, err
	}

	for i := range out.Rows {
		var parts []string
		for _, part := range strings.Split(out.Rows[i].Meta[classPos], ClassSeparator) {
			if _, ok := want[part]; ok {
				parts = append(parts, part)
			}
		}
		out.Rows[i].Meta[classPos] = strings.Join(parts, ClassSeparator)
	}

	return out, nil
}
