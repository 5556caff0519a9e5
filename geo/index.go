package geo

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/carbocation/pfx"
	"github.com/gocarina/gocsv"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Index lists the known datasets.
type Index interface {
	Datasets(ctx context.Context) ([]DatasetInfo, error)
}

const indexSchema = `
CREATE TABLE IF NOT EXISTS dataset (
	dataset_id TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	platform TEXT NOT NULL DEFAULT '',
	platform_organism TEXT NOT NULL DEFAULT '',
	value_type TEXT NOT NULL DEFAULT '',
	feature_count INTEGER NOT NULL DEFAULT 0,
	gene_count INTEGER NOT NULL DEFAULT 0,
	pubmed_id TEXT NOT NULL DEFAULT '',
	update_date TEXT NOT NULL DEFAULT '',
	samples TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS subset (
	dataset_id TEXT NOT NULL,
	position INTEGER NOT NULL,
	type TEXT NOT NULL,
	description TEXT NOT NULL,
	samples TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (dataset_id, position)
);
`

// datasetRow and subsetRow are the stored forms of the records. Sample lists
// are comma separated, as they are in SOFT headers.
type datasetRow struct {
	ID           string `db:"dataset_id" csv:"dataset_id"`
	Title        string `db:"title" csv:"title"`
	Description  string `db:"description" csv:"description"`
	Platform     string `db:"platform" csv:"platform"`
	Organism     string `db:"platform_organism" csv:"platform_organism"`
	ValueType    string `db:"value_type" csv:"value_type"`
	FeatureCount int    `db:"feature_count" csv:"feature_count"`
	GeneCount    int    `db:"gene_count" csv:"gene_count"`
	PubMedID     string `db:"pubmed_id" csv:"pubmed_id"`
	UpdateDate   string `db:"update_date" csv:"update_date"`
	Samples      string `db:"samples" csv:"samples"`
}

type subsetRow struct {
	DatasetID   string `db:"dataset_id" csv:"dataset_id"`
	Position    int    `db:"position" csv:"-"`
	Type        string `db:"type" csv:"type"`
	Description string `db:"description" csv:"description"`
	Samples     string `db:"samples" csv:"samples"`
}

func (r datasetRow) info() DatasetInfo {
	return DatasetInfo{
		ID:           r.ID,
		Title:        Clean(r.Title),
		Description:  Clean(r.Description),
		Platform:     r.Platform,
		Organism:     Clean(r.Organism),
		ValueType:    r.ValueType,
		FeatureCount: r.FeatureCount,
		GeneCount:    r.GeneCount,
		PubMedID:     r.PubMedID,
		UpdateDate:   r.UpdateDate,
		SampleIDs:    splitList(r.Samples),
	}
}

func newDatasetRow(d DatasetInfo) datasetRow {
	return datasetRow{
		ID:           d.ID,
		Title:        d.Title,
		Description:  d.Description,
		Platform:     d.Platform,
		Organism:     d.Organism,
		ValueType:    d.ValueType,
		FeatureCount: d.FeatureCount,
		GeneCount:    d.GeneCount,
		PubMedID:     d.PubMedID,
		UpdateDate:   d.UpdateDate,
		Samples:      strings.Join(d.SampleIDs, ","),
	}
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// SQLIndex stores dataset records in SQLite.
type SQLIndex struct {
	db *sqlx.DB
}

// OpenSQLIndex opens, creating if needed, the index database at path. Use
// ":memory:" for a throwaway index.
func OpenSQLIndex(path string) (*SQLIndex, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, pfx.Err(err)
	}

	// A single connection keeps ":memory:" databases alive and serializes
	// writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(indexSchema); err != nil {
		db.Close()
		return nil, pfx.Err(fmt.Errorf("%s: %w", path, err))
	}

	return &SQLIndex{db: db}, nil
}

func (x *SQLIndex) Close() error {
	return x.db.Close()
}

// Put inserts or replaces dataset records along with their subsets.
func (x *SQLIndex) Put(ctx context.Context, datasets ...DatasetInfo) error {
	tx, err := x.db.BeginTxx(ctx, nil)
	if err != nil {
		return pfx.Err(err)
	}
	defer tx.Rollback()

	for _, d := range datasets {
		if d.ID == "" {
			return fmt.Errorf("dataset record without an ID")
		}

		if _, err := tx.NamedExecContext(ctx, `INSERT OR REPLACE INTO dataset
			(dataset_id, title, description, platform, platform_organism, value_type, feature_count, gene_count, pubmed_id, update_date, samples)
			VALUES (:dataset_id, :title, :description, :platform, :platform_organism, :value_type, :feature_count, :gene_count, :pubmed_id, :update_date, :samples)`,
			newDatasetRow(d)); err != nil {
			return pfx.Err(fmt.Errorf("%s: %w", d.ID, err))
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM subset WHERE dataset_id = ?`, d.ID); err != nil {
			return pfx.Err(err)
		}

		for i, s := range d.Subsets {
			if _, err := tx.NamedExecContext(ctx, `INSERT INTO subset (dataset_id, position, type, description, samples)
				VALUES (:dataset_id, :position, :type, :description, :samples)`, subsetRow{
				DatasetID:   d.ID,
				Position:    i,
				Type:        s.Type,
				Description: s.Description,
				Samples:     strings.Join(s.SampleIDs, ","),
			}); err != nil {
				return pfx.Err(fmt.Errorf("%s subset %d: %w", d.ID, i, err))
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return pfx.Err(err)
	}

	return nil
}

// Get returns one dataset record. The boolean is false if it is not indexed.
func (x *SQLIndex) Get(ctx context.Context, id string) (DatasetInfo, bool, error) {
	var row datasetRow
	err := x.db.GetContext(ctx, &row, `SELECT * FROM dataset WHERE dataset_id = ?`, id)
	if err == sql.ErrNoRows {
		return DatasetInfo{}, false, nil
	} else if err != nil {
		return DatasetInfo{}, false, pfx.Err(err)
	}

	var subsets []subsetRow
	if err := x.db.SelectContext(ctx, &subsets, `SELECT * FROM subset WHERE dataset_id = ? ORDER BY position`, id); err != nil {
		return DatasetInfo{}, false, pfx.Err(err)
	}

	d := row.info()
	for _, s := range subsets {
		d.Subsets = append(d.Subsets, s.subset())
	}

	return d, true, nil
}

// Datasets returns every record ordered by dataset ID.
func (x *SQLIndex) Datasets(ctx context.Context) ([]DatasetInfo, error) {
	var rows []datasetRow
	if err := x.db.SelectContext(ctx, &rows, `SELECT * FROM dataset ORDER BY dataset_id`); err != nil {
		return nil, pfx.Err(err)
	}

	var subsets []subsetRow
	if err := x.db.SelectContext(ctx, &subsets, `SELECT * FROM subset ORDER BY dataset_id, position`); err != nil {
		return nil, pfx.Err(err)
	}

	bySet := make(map[string][]Subset)
	for _, s := range subsets {
		bySet[s.DatasetID] = append(bySet[s.DatasetID], s.subset())
	}

	out := make([]DatasetInfo, 0, len(rows))
	for _, r := range rows {
		d := r.info()
		d.Subsets = bySet[d.ID]
		out = append(out, d)
	}

	return out, nil
}

func (s subsetRow) subset() Subset {
	return Subset{
		Type:        s.Type,
		Description: Clean(s.Description),
		SampleIDs:   splitList(s.Samples),
	}
}

// ImportTSV reads tab-delimited dataset records (columns named like the
// dataset table) and, optionally, subset records (dataset_id, type,
// description, samples). Subsets are attached to their datasets in file
// order; subsets of unknown datasets are an error.
func ImportTSV(datasets io.Reader, subsets io.Reader) ([]DatasetInfo, error) {
	var drows []*datasetRow
	if err := gocsv.UnmarshalCSV(tsvReader(datasets), &drows); err != nil {
		return nil, pfx.Err(err)
	}

	out := make([]DatasetInfo, 0, len(drows))
	pos := make(map[string]int, len(drows))
	for _, r := range drows {
		if r.ID == "" {
			continue
		}
		pos[r.ID] = len(out)
		out = append(out, r.info())
	}

	if subsets == nil {
		return out, nil
	}

	var srows []*subsetRow
	if err := gocsv.UnmarshalCSV(tsvReader(subsets), &srows); err != nil {
		return nil, pfx.Err(err)
	}

	for _, s := range srows {
		i, ok := pos[s.DatasetID]
		if !ok {
			return nil, fmt.Errorf("subset %q refers to unknown dataset %q", s.Description, s.DatasetID)
		}
		out[i].Subsets = append(out[i].Subsets, s.subset())
	}

	return out, nil
}

func tsvReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.LazyQuotes = true
	return cr
}

// StaticIndex is an in-memory Index.
type StaticIndex []DatasetInfo

func (s StaticIndex) Datasets(ctx context.Context) ([]DatasetInfo, error) {
	out := append([]DatasetInfo(nil), s...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
