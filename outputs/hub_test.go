package outputs

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cloud.google.com/go/bigquery"
	"github.com/carbocation/exprnorm/table"
)

func sample(t *testing.T) *table.Table {
	t.Helper()

	tab := table.New("sample", []string{"ID_REF", "IDENTIFIER"}, []table.Column{
		{Name: "GSM1", Attributes: map[string]string{"agent": "control"}},
		{Name: "GSM2", Attributes: map[string]string{"agent": "drug"}},
		{Name: "Z-Score"},
	})
	for _, r := range []struct {
		ID, Gene string
		Values   []float64
	}{
		{"1007_s_at", "DDR1", []float64{1.5, 2, -0.5}},
		{"1053_at", "RFC2", []float64{3, math.NaN(), 2.25}},
	} {
		if err := tab.AddRow([]string{r.ID, r.Gene}, r.Values); err != nil {
			t.Fatal(err)
		}
	}
	return tab
}

func TestHub(t *testing.T) {
	h := NewHub()

	var got []string
	rec := ReceiverFunc(func(channel string, tab *table.Table) error {
		if tab == nil {
			got = append(got, channel+":nil")
			return nil
		}
		got = append(got, channel+":"+tab.Name)
		return nil
	})

	if err := h.Subscribe("a", rec); err != nil {
		t.Fatal(err)
	}

	tab := sample(t)
	if err := h.Send("a", tab); err != nil {
		t.Fatal(err)
	}
	if err := h.Send("b", tab); err != nil {
		t.Fatal(err)
	}

	// Late subscribers get the last table straight away
	if err := h.Subscribe("b", rec); err != nil {
		t.Fatal(err)
	}

	if err := h.Send("a", nil); err != nil {
		t.Fatal(err)
	}

	if want := "a:sample,b:sample,a:nil"; strings.Join(got, ",") != want {
		t.Errorf("Received %v, expected %s", got, want)
	}

	if h.Last("a") != nil || h.Last("b") != tab {
		t.Errorf("Unexpected last tables")
	}
	if chans := h.Channels(); len(chans) != 2 || chans[0] != "a" || chans[1] != "b" {
		t.Errorf("Unexpected channels %v", chans)
	}
}

func TestHubReportsFailures(t *testing.T) {
	h := NewHub()

	delivered := 0
	h.Subscribe("x", ReceiverFunc(func(string, *table.Table) error { return errors.New("boom") }))
	h.Subscribe("x", ReceiverFunc(func(string, *table.Table) error { delivered++; return nil }))

	err := h.Send("x", sample(t))
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("Expected the receiver failure to be reported, got %v", err)
	}
	if delivered != 1 {
		t.Errorf("A failing receiver should not stop delivery to the others")
	}
}

func TestIdentifier(t *testing.T) {
	for _, v := range []struct {
		In, Expected string
	}{
		{"Normalized expression array", "normalized_expression_array"},
		{"Z-Score", "z_score"},
		{"  ID_REF ", "id_ref"},
		{"1007_s_at", "_1007_s_at"},
		{"(!)", "_"},
		{"Expression Data", "expression_data"},
	} {
		if got := Identifier(v.In); got != v.Expected {
			t.Errorf("Identifier(%q) = %q, expected %q", v.In, got, v.Expected)
		}
	}
}

func TestTSVSink(t *testing.T) {
	dir := t.TempDir()
	sink := TSVSink{Dir: dir}

	tab := sample(t)
	if err := sink.Receive("Filtered expression array", tab); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(dir, "filtered_expression_array.tsv")
	if sink.Path("Filtered expression array") != path {
		t.Fatalf("Unexpected path %s", sink.Path("Filtered expression array"))
	}

	back, err := table.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if back.NumRows() != 2 || back.NumColumns() != 3 {
		t.Fatalf("Unexpected shape %dx%d", back.NumRows(), back.NumColumns())
	}
	if v, _ := back.Columns[1].Attribute("agent"); v != "drug" {
		t.Errorf("Column attributes were lost")
	}

	if err := sink.Receive("Filtered expression array", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("A nil table should remove the file")
	}
	if err := sink.Receive("Filtered expression array", nil); err != nil {
		t.Errorf("Removing a missing file should not fail: %v", err)
	}
}

func TestLoadSchema(t *testing.T) {
	tab := sample(t)
	tab.Columns[1].Name = "gsm1"

	schema := loadSchema(tab)

	var names []string
	for _, f := range schema {
		names = append(names, f.Name)
	}
	if got, want := strings.Join(names, ","), "id_ref,identifier,gsm1,gsm1_2,z_score"; got != want {
		t.Errorf("Field names %s, expected %s", got, want)
	}

	if schema[1].Type != bigquery.StringFieldType || schema[4].Type != bigquery.FloatFieldType {
		t.Errorf("Unexpected field types")
	}

	var buf bytes.Buffer
	if err := writeLoadCSV(&buf, tab); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected header and two rows, got %d lines", len(lines))
	}
	if lines[2] != "1053_at,RFC2,3,,2.25" {
		t.Errorf("Unexpected row %q", lines[2])
	}
}
