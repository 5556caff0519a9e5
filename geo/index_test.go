package geo

import (
	"context"
	"strings"
	"testing"
)

func exampleInfo(t *testing.T) DatasetInfo {
	t.Helper()
	s, err := ParseSOFT(strings.NewReader(exampleSOFT))
	if err != nil {
		t.Fatal(err)
	}
	return s.Info
}

func TestSQLIndex(t *testing.T) {
	ctx := context.Background()

	idx, err := OpenSQLIndex(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()

	d := exampleInfo(t)
	other := DatasetInfo{ID: "GDS100", Title: "Another", SampleIDs: []string{"GSM9"}}

	if err := idx.Put(ctx, d, other); err != nil {
		t.Fatal(err)
	}

	got, ok, err := idx.Get(ctx, "GDS1210")
	if err != nil || !ok {
		t.Fatalf("Get failed: %v %v", ok, err)
	}
	if got.Title != d.Title || got.GeneCount != 3 || got.UpdateDate != d.UpdateDate {
		t.Errorf("Unexpected record %+v", got)
	}
	if len(got.Subsets) != 3 || got.Subsets[1].Description != "cold" || strings.Join(got.Subsets[1].SampleIDs, ",") != "GSM3,GSM4" {
		t.Errorf("Unexpected subsets %+v", got.Subsets)
	}
	if len(got.SampleIDs) != 4 {
		t.Errorf("Unexpected samples %v", got.SampleIDs)
	}

	if _, ok, err := idx.Get(ctx, "GDS0"); ok || err != nil {
		t.Errorf("Missing datasets should not be found: %v %v", ok, err)
	}

	// Replacing a record replaces its subsets
	d.Subsets = d.Subsets[:1]
	if err := idx.Put(ctx, d); err != nil {
		t.Fatal(err)
	}

	all, err := idx.Datasets(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].ID != "GDS100" || all[1].ID != "GDS1210" {
		t.Fatalf("Unexpected datasets %+v", all)
	}
	if len(all[1].Subsets) != 1 || len(all[0].Subsets) != 0 {
		t.Errorf("Unexpected subsets after replacement")
	}

	if err := idx.Put(ctx, DatasetInfo{}); err == nil {
		t.Errorf("Records without an ID should be rejected")
	}
}

func TestImportTSV(t *testing.T) {
	datasets := "dataset_id\ttitle\tplatform_organism\tfeature_count\tgene_count\tpubmed_id\tsamples\tdescription\n" +
		"GDS1\tHeart failure\tHomo sapiens\t22283\t\t123\tGSM1,GSM2\tFailing and non-failing hearts\n" +
		"GDS2\tYeast stress\tSaccharomyces cerevisiae\t6000\t5800\t\tGSM5\tHeat shock\n"
	subsets := "dataset_id\ttype\tdescription\tsamples\n" +
		"GDS1\tdisease state\tfailing\tGSM1\n" +
		"GDS1\tdisease state\tnon-failing\tGSM2\n"

	records, err := ImportTSV(strings.NewReader(datasets), strings.NewReader(subsets))
	if err != nil {
		t.Fatal(err)
	}

	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if r := records[0]; r.FeatureCount != 22283 || r.GeneCount != 0 || r.PubMedID != "123" || len(r.SampleIDs) != 2 {
		t.Errorf("Unexpected record %+v", r)
	}
	if len(records[0].Subsets) != 2 || records[0].Subsets[1].Description != "non-failing" {
		t.Errorf("Unexpected subsets %+v", records[0].Subsets)
	}
	if records[1].Organism != "Saccharomyces cerevisiae" || len(records[1].Subsets) != 0 {
		t.Errorf("Unexpected record %+v", records[1])
	}

	bad := "dataset_id\ttype\tdescription\tsamples\nGDS9\tagent\tx\tGSM1\n"
	if _, err := ImportTSV(strings.NewReader(datasets), strings.NewReader(bad)); err == nil {
		t.Errorf("Subsets of unknown datasets should be rejected")
	}
}
