package geo

import (
	"context"
	"io"
	"log"
	"os"
	"strings"
	"testing"

	"github.com/carbocation/exprnorm/table"
)

type sent struct {
	channel string
	table   *table.Table
}

type capture []sent

func (c *capture) Send(channel string, t *table.Table) error {
	*c = append(*c, sent{channel, t})
	return nil
}

func newTestBrowser(t *testing.T) (*Browser, *capture, LocalCache) {
	t.Helper()

	cache := LocalCache{Dir: t.TempDir()}
	if err := os.WriteFile(cache.Path("GDS1210"), gzipped(t, exampleSOFT), 0644); err != nil {
		t.Fatal(err)
	}

	index := StaticIndex{
		exampleInfo(t),
		{ID: "GDS2", Title: "Yeast heat shock", Organism: "Saccharomyces cerevisiae", PubMedID: ""},
	}

	pub := &capture{}
	b := NewBrowser(BrowserOptions{
		Index:     index,
		Cache:     cache,
		Fetcher:   &SOFTFetcher{Cache: cache},
		Publisher: pub,
		Logger:    log.New(io.Discard, "", 0),
	})

	if err := b.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	return b, pub, cache
}

func TestBrowserListing(t *testing.T) {
	b, _, _ := newTestBrowser(t)

	rows := b.Rows()
	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(rows))
	}

	r := rows[0]
	if r.ID != "GDS1210" || r.Samples != 4 || r.Features != 4 || r.Genes != 3 || r.Subsets != 3 || !r.Cached {
		t.Errorf("Unexpected row %+v", r)
	}
	if r.Link != "http://www.ncbi.nlm.nih.gov/sites/GDSbrowser?acc=GDS1210" || r.PubMedLink != "http://www.ncbi.nlm.nih.gov/pubmed/16046532" {
		t.Errorf("Unexpected links %s %s", r.Link, r.PubMedLink)
	}
	if rows[1].PubMedLink != "" || rows[1].Cached {
		t.Errorf("Unexpected second row %+v", rows[1])
	}
	if len(r.Cells()) != len(RowHeader) {
		t.Errorf("Cells do not match the header")
	}

	if got := b.Info(); got != "2 datasets\n1 datasets cached\n" {
		t.Errorf("Unexpected info %q", got)
	}

	b.SetFilter("yeast")
	if v := b.Visible(); len(v) != 1 || v[0].ID != "GDS2" {
		t.Errorf("Unexpected visible rows %+v", v)
	}
	if got := b.Info(); !strings.HasSuffix(got, "1 after filtering") {
		t.Errorf("Info should report the filtered count, got %q", got)
	}

	if m := b.Match("mus musculus"); len(m) != 1 || m[0].ID != "GDS1210" || len(b.Visible()) != 1 || b.Visible()[0].ID != "GDS2" {
		t.Errorf("Match must not change the browser's filter")
	}

	if vocab := b.Vocabulary(); len(vocab) == 0 {
		t.Errorf("Expected a vocabulary")
	}
}

func TestBrowserAnnotations(t *testing.T) {
	b, _, _ := newTestBrowser(t)

	if b.Annotations() != nil {
		t.Errorf("No annotations without a selection")
	}
	if err := b.Select("GDS404"); err == nil {
		t.Errorf("Expected an error for an unknown dataset")
	}
	if err := b.Select("GDS1210"); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(b.Description(), "Analysis of livers") {
		t.Errorf("Unexpected description %q", b.Description())
	}

	ann := b.Annotations()
	if len(ann) != 2 || ann[0].Type != "stress" || ann[1].Type != "time" {
		t.Fatalf("Unexpected annotations %+v", ann)
	}
	if !ann[0].Checked || ann[0].Partial || len(ann[0].Subsets) != 2 || ann[0].Subsets[1].SampleCount != 2 {
		t.Errorf("Subsets should start checked: %+v", ann[0])
	}

	if err := b.SetChecked("stress", "control", false); err != nil {
		t.Fatal(err)
	}
	ann = b.Annotations()
	if ann[0].Checked || !ann[0].Partial || ann[0].Subsets[0].Checked {
		t.Errorf("Unexpected state after unchecking control: %+v", ann[0])
	}

	if err := b.SetChecked("time", "", false); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(b.SelectedSubsets(), ","); got != "cold" {
		t.Errorf("Unexpected selected subsets %s", got)
	}

	if err := b.SetChecked("stress", "nope", true); err == nil {
		t.Errorf("Expected an error for an unknown subset")
	}

	// States survive switching datasets
	b.Select("GDS2")
	b.Select("GDS1210")
	if got := strings.Join(b.SelectedSubsets(), ","); got != "cold" {
		t.Errorf("Check states were lost: %s", got)
	}
}

func TestBrowserCommit(t *testing.T) {
	b, pub, _ := newTestBrowser(t)

	if _, err := b.Commit(context.Background()); err == nil {
		t.Errorf("Commit without a selection should fail")
	}

	b.Select("GDS1210")
	b.SetChecked("stress", "control", false)
	b.SetChecked("time", "", false)

	tab, err := b.Commit(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if len(*pub) != 1 || (*pub)[0].channel != ChannelExpression || (*pub)[0].table != tab {
		t.Fatalf("Expected one table on %q", ChannelExpression)
	}
	if tab.NumColumns() != 2 || tab.Columns[0].Name != "GSM3" || tab.Columns[1].Name != "GSM4" {
		t.Errorf("Expected the cold samples, got %d columns", tab.NumColumns())
	}

	b.SetOptions(FetchOptions{Transpose: true})
	tab, err = b.Commit(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if tab.NumRows() != 2 || tab.NumColumns() != 4 {
		t.Errorf("Expected 2 samples by 4 spots, got %dx%d", tab.NumRows(), tab.NumColumns())
	}
	if class := tab.Rows[0].Meta[tab.MetaIndex(ClassColumn)]; class != "cold" {
		t.Errorf("Unexpected class %q", class)
	}
}
