package geo

import (
	"strings"
	"testing"
)

var filterDatasets = []DatasetInfo{
	{ID: "GDS1", Title: "Heart failure (human)", Organism: "Homo sapiens", Description: "Failing hearts. Left ventricle!"},
	{ID: "GDS2", Title: "Yeast heat shock", Organism: "Saccharomyces cerevisiae", Description: "Stress: heat, cold?"},
	{ID: "GDS3", Title: "Mouse liver", Organism: "Mus musculus", Description: "Cold exposure \xff\xfe of livers"},
}

func TestMatches(t *testing.T) {
	for _, v := range []struct {
		Filter   string
		Expected []int
	}{
		{"", []int{0, 1, 2}},
		{"   ", []int{0, 1, 2}},
		{"heart", []int{0}},
		{"HEAT", []int{1}},
		{"cold", []int{1, 2}},
		{"cold mus", []int{2}},
		{"gds2", []int{1}},
		{"exposure of", []int{2}},
		{"heart yeast", []int{}},
	} {
		got := Filter(filterDatasets, v.Filter)
		if len(got) != len(v.Expected) {
			t.Errorf("Filter %q matched %v, expected %v", v.Filter, got, v.Expected)
			continue
		}
		for i := range got {
			if got[i] != v.Expected[i] {
				t.Errorf("Filter %q matched %v, expected %v", v.Filter, got, v.Expected)
				break
			}
		}
	}
}

func TestClean(t *testing.T) {
	if got := Clean("Cold exposure \xff\xfe of livers"); got != "Cold exposure  of livers" {
		t.Errorf("Unexpected cleaned text %q", got)
	}
	if got := Clean("Größe"); got != "Größe" {
		t.Errorf("Valid text should be unchanged, got %q", got)
	}
}

func TestVocabulary(t *testing.T) {
	vocab := Vocabulary(filterDatasets[:2])

	joined := " " + strings.Join(vocab, " ") + " "
	for _, w := range []string{"heart", "failure", "human", "ventricle", "stress", "cold", "gds1", "sapiens"} {
		if !strings.Contains(joined, " "+w+" ") {
			t.Errorf("Vocabulary is missing %q: %v", w, vocab)
		}
	}
	for _, w := range []string{"(human)", "hearts.", "ventricle!", "stress:", "cold?"} {
		if strings.Contains(joined, " "+w+" ") {
			t.Errorf("Punctuation should be stripped, found %q", w)
		}
	}
	for i := 1; i < len(vocab); i++ {
		if vocab[i-1] >= vocab[i] {
			t.Fatalf("Vocabulary is not sorted and unique: %v", vocab)
		}
	}

	if got := Complete(vocab, "heart fail"); len(got) != 2 || got[0] != "failing" || got[1] != "failure" {
		t.Errorf("Unexpected completions %v", got)
	}
	if got := Complete(vocab, "heart "); got != nil {
		t.Errorf("No completion after a trailing space, got %v", got)
	}
}
