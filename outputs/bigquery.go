package outputs

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"cloud.google.com/go/bigquery"
	"github.com/carbocation/exprnorm/table"
	"github.com/carbocation/pfx"
	"google.golang.org/api/googleapi"
)

// BigQuerySink loads each channel into <Dataset>.<TablePrefix><channel
// identifier>, truncating whatever the table held before. Meta columns become
// STRING fields and numeric columns nullable FLOAT fields.
type BigQuerySink struct {
	Context     context.Context
	Client      *bigquery.Client
	Dataset     string
	TablePrefix string
}

// TableID is the BigQuery table a channel is loaded into.
func (s BigQuerySink) TableID(channel string) string {
	return s.TablePrefix + Identifier(channel)
}

func (s BigQuerySink) Receive(channel string, t *table.Table) error {
	ctx := s.Context
	if ctx == nil {
		ctx = context.Background()
	}

	tbl := s.Client.Dataset(s.Dataset).Table(s.TableID(channel))

	if t == nil {
		err := tbl.Delete(ctx)
		var gerr *googleapi.Error
		if err != nil && !(errors.As(err, &gerr) && gerr.Code == http.StatusNotFound) {
			return pfx.Err(err)
		}
		return nil
	}

	var buf bytes.Buffer
	if err := writeLoadCSV(&buf, t); err != nil {
		return err
	}

	src := bigquery.NewReaderSource(&buf)
	src.SourceFormat = bigquery.CSV
	src.SkipLeadingRows = 1
	src.Schema = loadSchema(t)

	loader := tbl.LoaderFrom(src)
	loader.CreateDisposition = bigquery.CreateIfNeeded
	loader.WriteDisposition = bigquery.WriteTruncate

	job, err := loader.Run(ctx)
	if err != nil {
		return pfx.Err(err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return pfx.Err(err)
	}
	if err := status.Err(); err != nil {
		return pfx.Err(fmt.Errorf("loading %s.%s: %w", s.Dataset, s.TableID(channel), err))
	}

	return nil
}

// fieldNames gives every meta and numeric column a unique identifier.
func fieldNames(t *table.Table) []string {
	names := make([]string, 0, len(t.MetaNames)+len(t.Columns))
	for _, n := range t.MetaNames {
		names = append(names, Identifier(n))
	}
	for _, c := range t.Columns {
		names = append(names, Identifier(c.Name))
	}

	seen := make(map[string]int, len(names))
	for i, n := range names {
		seen[n]++
		if seen[n] > 1 {
			names[i] = n + "_" + strconv.Itoa(seen[n])
		}
	}

	return names
}

func loadSchema(t *table.Table) bigquery.Schema {
	names := fieldNames(t)

	schema := make(bigquery.Schema, 0, len(names))
	for i, n := range names {
		typ := bigquery.FloatFieldType
		if i < len(t.MetaNames) {
			typ = bigquery.StringFieldType
		}
		schema = append(schema, &bigquery.FieldSchema{Name: n, Type: typ})
	}

	return schema
}

// writeLoadCSV writes a header line and the data rows. Column attributes are
// not part of the load; missing values are empty fields, which load as NULL.
func writeLoadCSV(buf *bytes.Buffer, t *table.Table) error {
	w := csv.NewWriter(buf)

	if err := w.Write(fieldNames(t)); err != nil {
		return pfx.Err(err)
	}

	for _, r := range t.Rows {
		line := make([]string, 0, len(r.Meta)+len(r.Values))
		line = append(line, r.Meta...)
		for _, v := range r.Values {
			if !v.Valid {
				line = append(line, "")
				continue
			}
			line = append(line, strconv.FormatFloat(v.Float64, 'g', -1, 64))
		}
		if err := w.Write(line); err != nil {
			return pfx.Err(err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return pfx.Err(err)
	}

	return nil
}
