package main

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/carbocation/exprnorm/geo"
	"github.com/carbocation/exprnorm/outputs"
	"github.com/carbocation/exprnorm/table"
)

const heartSOFT = `^DATASET = GDS42
!dataset_title = Heart failure model
!dataset_description = Hearts of mice with induced failure.
!dataset_platform_organism = Mus musculus
!dataset_feature_count = 2
^SUBSET = GDS42_1
!subset_description = sham
!subset_sample_id = GSM1,GSM2
!subset_type = protocol
^SUBSET = GDS42_2
!subset_description = banded
!subset_sample_id = GSM3
!subset_type = protocol
^SUBSET = GDS42_3
!subset_description = male
!subset_sample_id = GSM1,GSM3
!subset_type = gender
!dataset_table_begin
ID_REF	IDENTIFIER	GSM1	GSM2	GSM3
a_at	Nppa	1	2	30
b_at	Myh7	4	5	6
!dataset_table_end
`

func testServer(t *testing.T) (*httptest.Server, *Global) {
	t.Helper()

	cache := geo.LocalCache{Dir: t.TempDir()}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Write([]byte(heartSOFT))
	zw.Close()
	if err := os.WriteFile(cache.Path("GDS42"), buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := geo.ParseSOFT(strings.NewReader(heartSOFT))
	if err != nil {
		t.Fatal(err)
	}

	quiet := log.New(io.Discard, "", 0)
	global := &Global{Site: "test", log: quiet, hub: outputs.NewHub()}
	global.browser = geo.NewBrowser(geo.BrowserOptions{
		Index:     geo.StaticIndex{s.Info, {ID: "GDS7", Title: "Yeast"}},
		Cache:     cache,
		Fetcher:   &geo.SOFTFetcher{Cache: cache},
		Publisher: global.hub,
		Logger:    quiet,
	})
	if err := global.browser.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(router(global))
	t.Cleanup(srv.Close)

	return srv, global
}

func getJSON(t *testing.T, url string, v interface{}) int {
	t.Helper()

	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode
}

func TestDatasets(t *testing.T) {
	srv, _ := testServer(t)

	var list struct {
		Total int       `json:"total"`
		Rows  []geo.Row `json:"rows"`
	}
	getJSON(t, srv.URL+"/datasets?filter=induced+mus", &list)
	if list.Total != 2 || len(list.Rows) != 1 || list.Rows[0].ID != "GDS42" || !list.Rows[0].Cached {
		t.Errorf("Unexpected listing %+v", list)
	}

	var completions []string
	getJSON(t, srv.URL+"/complete?q=heart", &completions)
	if strings.Join(completions, ",") != "heart,hearts" {
		t.Errorf("Unexpected completions %v", completions)
	}
}

func TestDataset(t *testing.T) {
	srv, _ := testServer(t)

	var d struct {
		ID          string           `json:"dataset_id"`
		Link        string           `json:"link"`
		Annotations []geo.Annotation `json:"annotations"`
	}
	if code := getJSON(t, srv.URL+"/datasets/GDS42", &d); code != http.StatusOK {
		t.Fatalf("Unexpected status %d", code)
	}
	if d.ID != "GDS42" || len(d.Annotations) != 2 || d.Annotations[0].Type != "protocol" {
		t.Errorf("Unexpected dataset %+v", d)
	}

	if code := getJSON(t, srv.URL+"/datasets/GDS9", &d); code != http.StatusNotFound {
		t.Errorf("Expected 404 for an unknown dataset, got %d", code)
	}
}

func TestTable(t *testing.T) {
	srv, global := testServer(t)

	resp, err := http.Get(srv.URL + "/datasets/GDS42/table?uncheck=gender&uncheck=protocol:banded")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Unexpected status %s", resp.Status)
	}

	tab, err := table.Read(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if tab.NumColumns() != 2 || tab.Columns[0].Name != "GSM1" || tab.Columns[1].Name != "GSM2" || tab.NumRows() != 2 {
		t.Errorf("Expected the sham samples, got %dx%d", tab.NumRows(), tab.NumColumns())
	}

	if global.hub.Last(geo.ChannelExpression) == nil {
		t.Errorf("The served table was not published")
	}

	// Check states are restored after the request
	global.browser.Select("GDS42")
	if got := strings.Join(global.browser.SelectedSubsets(), ","); got != "sham,banded,male" {
		t.Errorf("Check states were not restored: %s", got)
	}

	bad, err := http.Get(srv.URL + "/datasets/GDS42/table?transpose=maybe")
	if err != nil {
		t.Fatal(err)
	}
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %s", bad.Status)
	}
}

func TestTableRejectsUnknownSubsets(t *testing.T) {
	srv, global := testServer(t)

	for _, v := range []struct {
		Path     string
		Expected int
	}{
		{"/datasets/GDS42/table?uncheck=nope", http.StatusBadRequest},
		{"/datasets/GDS42/table?uncheck=protocol:nope", http.StatusBadRequest},
		{"/datasets/GDS99/table", http.StatusNotFound},
	} {
		resp, err := http.Get(srv.URL + v.Path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != v.Expected {
			t.Errorf("%s: expected %d, got %s", v.Path, v.Expected, resp.Status)
		}
	}

	// A rejected request leaves the check states alone.
	global.browser.Select("GDS42")
	if got := strings.Join(global.browser.SelectedSubsets(), ","); got != "sham,banded,male" {
		t.Errorf("Check states were not restored: %s", got)
	}
}
