package geo

import (
	"sort"
	"strings"
)

// vocabularySeparators are replaced by spaces before splitting search text
// into filter suggestions.
var vocabularySeparators = strings.NewReplacer(
	",", " ",
	".", " ",
	":", " ",
	"!", " ",
	"?", " ",
	"(", " ",
	")", " ",
)

// Matches reports whether every whitespace separated term of the filter
// occurs, case-insensitively, in the dataset's search text. An empty filter
// matches everything.
func Matches(d DatasetInfo, filter string) bool {
	terms := strings.Fields(strings.ToLower(filter))
	if len(terms) == 0 {
		return true
	}

	text := d.SearchText()
	for _, term := range terms {
		if !strings.Contains(text, term) {
			return false
		}
	}
	return true
}

// Filter returns the indices of the datasets that match the filter.
func Filter(datasets []DatasetInfo, filter string) []int {
	out := make([]int, 0, len(datasets))
	for i, d := range datasets {
		if Matches(d, filter) {
			out = append(out, i)
		}
	}
	return out
}

// Vocabulary is the sorted set of words in the datasets' search text, offered
// as filter completions.
func Vocabulary(datasets []DatasetInfo) []string {
	seen := make(map[string]struct{})
	for _, d := range datasets {
		for _, w := range strings.Fields(vocabularySeparators.Replace(d.SearchText())) {
			seen[w] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for w := range seen {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

// Complete returns the vocabulary words containing the last term of the
// filter, for incremental suggestions while typing.
func Complete(vocabulary []string, filter string) []string {
	terms := strings.Fields(strings.ToLower(filter))
	if len(terms) == 0 || strings.HasSuffix(filter, " ") {
		return nil
	}

	last := terms[len(terms)-1]
	var out []string
	for _, w := range vocabulary {
		if strings.Contains(w, last) {
			out = append(out, w)
		}
	}
	return out
}
