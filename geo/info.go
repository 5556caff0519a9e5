// Package geo browses and fetches Gene Expression Omnibus datasets (GDS). An
// Index lists dataset records, a Cache reports which datasets are available
// locally, and a Fetcher turns a dataset into an expression table whose
// columns carry the sample subset annotations.
package geo

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

const (
	DatasetLinkFormat = "http://www.ncbi.nlm.nih.gov/sites/GDSbrowser?acc=%s"
	PubMedLinkFormat  = "http://www.ncbi.nlm.nih.gov/pubmed/%s"
)

// Subset is one sample annotation of a dataset: the samples that share a
// value (Description) of an annotation type such as "agent" or "time".
type Subset struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	SampleIDs   []string `json:"sample_id"`
}

// DatasetInfo is the index record of one dataset.
type DatasetInfo struct {
	ID           string   `json:"dataset_id"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Platform     string   `json:"platform"`
	Organism     string   `json:"platform_organism"`
	ValueType    string   `json:"value_type"`
	FeatureCount int      `json:"feature_count"`
	GeneCount    int      `json:"gene_count"`
	PubMedID     string   `json:"pubmed_id,omitempty"`
	UpdateDate   string   `json:"update_date,omitempty"`
	SampleIDs    []string `json:"samples"`
	Subsets      []Subset `json:"subsets"`
}

// Link is the dataset's page in the GEO browser.
func (d DatasetInfo) Link() string {
	return fmt.Sprintf(DatasetLinkFormat, d.ID)
}

// PubMedLink is the linked publication, or "" if there is none.
func (d DatasetInfo) PubMedLink() string {
	if d.PubMedID == "" {
		return ""
	}
	return fmt.Sprintf(PubMedLinkFormat, d.PubMedID)
}

// SearchFields are the record fields a free text filter matches against, in
// order: dataset_id, title, platform_organism, description.
func (d DatasetInfo) SearchFields() []string {
	return []string{d.ID, d.Title, d.Organism, d.Description}
}

// SearchText is the lower cased, space joined SearchFields with any invalid
// UTF-8 dropped.
func (d DatasetInfo) SearchText() string {
	return strings.ToLower(Clean(strings.Join(d.SearchFields(), " ")))
}

// SubsetTypes lists the annotation types in first-seen order.
func (d DatasetInfo) SubsetTypes() []string {
	var out []string
	seen := make(map[string]struct{})
	for _, s := range d.Subsets {
		if _, ok := seen[s.Type]; ok {
			continue
		}
		seen[s.Type] = struct{}{}
		out = append(out, s.Type)
	}
	return out
}

// Clean drops byte sequences that are not valid UTF-8. Dataset descriptions
// come from files of mixed encodings, and matching should degrade rather than
// fail on them.
func Clean(s string) string {
	if utf8.ValidString(s) {
		return s
	}

	t := transform.Chain(runes.ReplaceIllFormed(), runes.Remove(runes.Predicate(func(r rune) bool {
		return r == utf8.RuneError
	})))

	out, _, err := transform.String(t, s)
	if err != nil {
		return strings.ToValidUTF8(s, "")
	}
	return out
}
