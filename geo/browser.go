package geo

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"

	"github.com/carbocation/exprnorm/table"
)

// ChannelExpression is the output channel of committed datasets.
const ChannelExpression = "Expression Data"

// RowHeader names the fields of a Row, in display order.
var RowHeader = []string{"ID", "Title", "Organism", "Samples", "Features", "Genes", "Subsets", "PubMedID"}

// Row is one dataset as listed by the browser.
type Row struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Organism string `json:"organism"`
	Samples  int    `json:"samples"`
	Features int    `json:"features"`
	Genes    int    `json:"genes"`
	Subsets  int    `json:"subsets"`
	PubMedID string `json:"pubmed_id"`

	Link       string `json:"link"`
	PubMedLink string `json:"pubmed_link,omitempty"`
	Cached     bool   `json:"cached"`
}

// Cells formats the row in RowHeader order.
func (r Row) Cells() []string {
	return []string{r.ID, r.Title, r.Organism, strconv.Itoa(r.Samples), strconv.Itoa(r.Features),
		strconv.Itoa(r.Genes), strconv.Itoa(r.Subsets), r.PubMedID}
}

// AnnotationSubset is one checkable subset under an annotation type.
type AnnotationSubset struct {
	Description string `json:"description"`
	SampleCount int    `json:"sample_count"`
	Checked     bool   `json:"checked"`
}

// Annotation is one annotation type of the selected dataset with its subsets.
// Checked is true when every subset is checked, Partial when only some are.
type Annotation struct {
	Type    string             `json:"type"`
	Checked bool               `json:"checked"`
	Partial bool               `json:"partial"`
	Subsets []AnnotationSubset `json:"subsets"`
}

// Publisher receives committed tables.
type Publisher interface {
	Send(channel string, t *table.Table) error
}

type BrowserOptions struct {
	Index     Index
	Cache     Cache
	Fetcher   Fetcher
	Publisher Publisher
	Logger    *log.Logger
}

type checkKey struct {
	dataset, typ, subset string
}

// Browser lists the indexed datasets, filters them, tracks which sample
// subsets of each dataset are selected and commits the selected dataset as an
// expression table.
type Browser struct {
	mu sync.Mutex

	index     Index
	cache     Cache
	fetcher   Fetcher
	publisher Publisher
	log       *log.Logger

	datasets    []DatasetInfo
	cached      []bool
	cachedCount int
	vocabulary  []string

	filter  string
	visible []int

	selected int
	options  FetchOptions

	// Subsets are checked unless recorded otherwise. States persist across
	// selections and reloads.
	checks map[checkKey]bool
}

func NewBrowser(opts BrowserOptions) *Browser {
	b := &Browser{
		index:     opts.Index,
		cache:     opts.Cache,
		fetcher:   opts.Fetcher,
		publisher: opts.Publisher,
		log:       opts.Logger,
		selected:  -1,
		options:   DefaultFetchOptions(),
		checks:    make(map[checkKey]bool),
	}
	if b.log == nil {
		b.log = log.Default()
	}
	return b
}

// Load reads the index and the cache state of every dataset.
func (b *Browser) Load(ctx context.Context) error {
	datasets, err := b.index.Datasets(ctx)
	if err != nil {
		return err
	}

	cached := make([]bool, len(datasets))
	if b.cache != nil {
		for i, d := range datasets {
			if cached[i], err = b.cache.Exists(ctx, d.ID); err != nil {
				return err
			}
		}
	}

	count, err := b.countCached(ctx)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var selectedID string
	if b.selected >= 0 {
		selectedID = b.datasets[b.selected].ID
	}

	b.datasets = datasets
	b.cached = cached
	b.cachedCount = count
	b.vocabulary = Vocabulary(datasets)
	b.visible = Filter(datasets, b.filter)

	b.selected = -1
	for i, d := range datasets {
		if d.ID == selectedID {
			b.selected = i
		}
	}

	b.log.Printf("Loaded %d datasets, %d cached\n", len(datasets), count)

	return nil
}

func (b *Browser) countCached(ctx context.Context) (int, error) {
	if b.cache == nil {
		return 0, nil
	}
	return b.cache.Count(ctx)
}

// Info summarizes the index, the cache and the filter.
func (b *Browser) Info() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	text := fmt.Sprintf("%d datasets\n%d datasets cached\n", len(b.datasets), b.cachedCount)
	if len(b.visible) != len(b.datasets) {
		text += fmt.Sprintf("%d after filtering", len(b.visible))
	}
	return text
}

func (b *Browser) row(i int) Row {
	d := b.datasets[i]
	return Row{
		ID:         d.ID,
		Title:      d.Title,
		Organism:   d.Organism,
		Samples:    len(d.SampleIDs),
		Features:   d.FeatureCount,
		Genes:      d.GeneCount,
		Subsets:    len(d.Subsets),
		PubMedID:   d.PubMedID,
		Link:       d.Link(),
		PubMedLink: d.PubMedLink(),
		Cached:     b.cached[i],
	}
}

// Rows lists every dataset.
func (b *Browser) Rows() []Row {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Row, len(b.datasets))
	for i := range b.datasets {
		out[i] = b.row(i)
	}
	return out
}

// Visible lists the datasets that pass the filter.
func (b *Browser) Visible() []Row {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Row, len(b.visible))
	for k, i := range b.visible {
		out[k] = b.row(i)
	}
	return out
}

// Match lists the datasets that pass filter, leaving the browser's own
// filter untouched.
func (b *Browser) Match(filter string) []Row {
	b.mu.Lock()
	defer b.mu.Unlock()

	matched := Filter(b.datasets, filter)
	out := make([]Row, len(matched))
	for k, i := range matched {
		out[k] = b.row(i)
	}
	return out
}

// SetFilter sets the free text filter. Every whitespace separated term must
// occur in a dataset's ID, title, organism or description.
func (b *Browser) SetFilter(filter string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.filter = filter
	b.visible = Filter(b.datasets, filter)
}

func (b *Browser) Filter() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.filter
}

// Vocabulary is the list of filter suggestions.
func (b *Browser) Vocabulary() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.vocabulary...)
}

// Select makes the dataset with the given ID current. An empty ID clears the
// selection.
func (b *Browser) Select(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if id == "" {
		b.selected = -1
		return nil
	}

	for i, d := range b.datasets {
		if d.ID == id {
			b.selected = i
			return nil
		}
	}
	return fmt.Errorf("unknown dataset %s", id)
}

// Selected returns the current dataset, if any.
func (b *Browser) Selected() (DatasetInfo, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.selected < 0 {
		return DatasetInfo{}, false
	}
	return b.datasets[b.selected], true
}

// Description is the current dataset's description, or "".
func (b *Browser) Description() string {
	d, _ := b.Selected()
	return d.Description
}

func (b *Browser) SetOptions(opts FetchOptions) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.options = opts
}

func (b *Browser) Options() FetchOptions {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.options
}

func (b *Browser) checked(dataset, typ, subset string) bool {
	v, ok := b.checks[checkKey{dataset, typ, subset}]
	return !ok || v
}

// Annotations lists the annotation types of the current dataset, in the order
// they first appear, with the check state of each subset.
func (b *Browser) Annotations() []Annotation {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.selected < 0 {
		return nil
	}
	return b.annotations(b.datasets[b.selected])
}

func (b *Browser) annotations(d DatasetInfo) []Annotation {
	var out []Annotation
	pos := make(map[string]int)
	for _, s := range d.Subsets {
		k, ok := pos[s.Type]
		if !ok {
			k = len(out)
			pos[s.Type] = k
			out = append(out, Annotation{Type: s.Type})
		}
		out[k].Subsets = append(out[k].Subsets, AnnotationSubset{
			Description: s.Description,
			SampleCount: len(s.SampleIDs),
			Checked:     b.checked(d.ID, s.Type, s.Description),
		})
	}

	for k := range out {
		n := 0
		for _, s := range out[k].Subsets {
			if s.Checked {
				n++
			}
		}
		out[k].Checked = n == len(out[k].Subsets)
		out[k].Partial = n > 0 && !out[k].Checked
	}

	return out
}

// SetChecked changes the check state of a subset of the current dataset. An
// empty subset applies the state to every subset of the type.
func (b *Browser) SetChecked(typ, subset string, checked bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.selected < 0 {
		return fmt.Errorf("no dataset selected")
	}
	d := b.datasets[b.selected]

	found := false
	for _, s := range d.Subsets {
		if s.Type != typ || (subset != "" && s.Description != subset) {
			continue
		}
		b.checks[checkKey{d.ID, s.Type, s.Description}] = checked
		found = true
	}

	if !found {
		return fmt.Errorf("%s has no subset %q of type %q", d.ID, subset, typ)
	}
	return nil
}

// SelectedSubsets lists the descriptions of the checked subsets of the
// current dataset.
func (b *Browser) SelectedSubsets() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.selected < 0 {
		return nil
	}
	return b.selectedSubsets(b.datasets[b.selected])
}

func (b *Browser) selectedSubsets(d DatasetInfo) []string {
	var out []string
	for _, s := range d.Subsets {
		if b.checked(d.ID, s.Type, s.Description) {
			out = append(out, s.Description)
		}
	}
	return out
}

// Commit fetches the current dataset, keeps the samples of the checked
// subsets and publishes the table on ChannelExpression. The dataset is marked
// cached afterwards.
func (b *Browser) Commit(ctx context.Context) (*table.Table, error) {
	b.mu.Lock()
	if b.selected < 0 {
		b.mu.Unlock()
		return nil, fmt.Errorf("no dataset selected")
	}
	d := b.datasets[b.selected]
	opts := b.options
	selected := b.selectedSubsets(d)
	b.mu.Unlock()

	t, err := b.fetcher.Fetch(ctx, d.ID, opts)
	if err != nil {
		return nil, err
	}

	t, err = SelectSamples(t, selected, opts.Transpose)
	if err != nil {
		return nil, err
	}

	if b.publisher != nil {
		if err := b.publisher.Send(ChannelExpression, t); err != nil {
			return nil, err
		}
	}

	count, err := b.countCached(ctx)
	if err != nil {
		b.log.Println("Could not count cached datasets:", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.datasets {
		if b.datasets[i].ID == d.ID {
			b.cached[i] = true
		}
	}
	if err == nil {
		b.cachedCount = count
	}

	b.log.Printf("Committed %s: %d rows, %d columns\n", d.ID, t.NumRows(), t.NumColumns())

	return t, nil
}
