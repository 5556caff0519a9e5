package maplot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"

	"github.com/carbocation/exprnorm/table"
	"github.com/carbocation/exprnorm/task"
)

// Output channels published on commit.
const (
	ChannelNormalized = "Normalized expression array"
	ChannelFiltered   = "Filtered expression array"
)

type State int

const (
	StateNoData State = iota
	StateDataLoaded
	StateGroupSelected
	StateNormalized
)

func (s State) String() string {
	switch s {
	case StateNoData:
		return "NoData"
	case StateDataLoaded:
		return "DataLoaded"
	case StateGroupSelected:
		return "GroupSelected"
	case StateNormalized:
		return "Normalized"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Publisher receives the tables produced on commit.
type Publisher interface {
	Send(channel string, t *table.Table) error
}

type logger interface {
	Print(v ...interface{})
	Printf(format string, v ...interface{})
	Println(v ...interface{})
}

type Options struct {
	Publisher Publisher
	Plotter   Plotter

	// Async runs centering and z-score estimation on a worker goroutine.
	Async bool

	Logger   logger
	Settings *Settings
}

// Controller drives the normalization of one input table in response to
// setting changes. Its methods are safe to call from any goroutine, but are
// meant to be called from a single driving goroutine; background results are
// applied under the same lock and only if no newer request superseded them.
type Controller struct {
	mu sync.Mutex

	publisher Publisher
	plotter   Plotter
	async     bool
	log       logger

	settings Settings
	state    State

	data   *table.Table
	groups []string
	group  int

	grouping Grouping
	// version counts groupings; norm is valid for the grouping whose version
	// equals normVersion.
	version     uint64
	normVersion uint64
	norm        Normalization
	projection  Projection

	err     error
	changed bool

	slot task.Slot[Normalization]
	run  func(context.Context, Grouping, Settings) (Normalization, error)
}

func NewController(opts Options) *Controller {
	c := &Controller{
		publisher: opts.Publisher,
		plotter:   opts.Plotter,
		async:     opts.Async,
		log:       opts.Logger,
		settings:  DefaultSettings(),
		group:     -1,
		run:       Normalize,
	}
	if opts.Settings != nil {
		c.settings = *opts.Settings
	}
	if c.log == nil {
		c.log = log.Default()
	}
	return c
}

// SetData loads a new input table, or clears the controller if t is nil. The
// group and merge selections are reset; the first group is selected and
// normalization starts.
func (c *Controller) SetData(t *table.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.slot.Cancel()
	c.err = nil
	c.grouping = Grouping{}
	c.norm = Normalization{}
	c.projection = Projection{}
	c.version++
	c.groups = nil
	c.group = -1
	c.settings.Merge = MergeAverage

	c.data = t
	if t == nil {
		c.state = StateNoData
		return nil
	}

	c.state = StateDataLoaded
	c.groups = t.Groups()
	if len(c.groups) == 0 {
		return nil
	}
	c.group = 0

	return c.regroup()
}

// SelectGroup selects the group key used to split the columns and
// renormalizes.
func (c *Controller) SelectGroup(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateNoData {
		return fmt.Errorf("no data on input")
	}

	for i, g := range c.groups {
		if g == key {
			c.group = i
			return c.regroup()
		}
	}

	return fmt.Errorf("unknown group %q", key)
}

// SelectMerge changes the replicate merging method, which requires splitting
// and merging again.
func (c *Controller) SelectMerge(m MergeMethod) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.settings.Merge = m
	if c.state == StateNoData || c.group < 0 {
		return nil
	}

	return c.regroup()
}

// SelectCenter changes the centering method. The existing split is reused.
func (c *Controller) SelectCenter(m CenterMethod) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.settings.Center = m
	if c.state < StateGroupSelected {
		return nil
	}

	return c.normalize()
}

// SetCutoff changes the z-score cutoff, clamped to [MinZCutoff, MaxZCutoff].
// Only the projection is recomputed.
func (c *Controller) SetCutoff(z float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.settings.ZCutoff = math.Max(MinZCutoff, math.Min(MaxZCutoff, z))
	if c.state != StateNormalized {
		return nil
	}

	c.project()
	return c.commitIf()
}

// SetAppendZScore toggles the z-score column in committed output.
func (c *Controller) SetAppendZScore(b bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.settings.AppendZScore = b
	if c.state != StateNormalized {
		return nil
	}
	return c.commitIf()
}

// SetAutoCommit enables committing on every change. Enabling it with pending
// changes commits immediately.
func (c *Controller) SetAutoCommit(b bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.settings.AutoCommit = b
	if b && c.changed && c.state == StateNormalized {
		return c.commit()
	}
	return nil
}

// Commit publishes the normalized and filtered tables.
func (c *Controller) Commit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.commit()
}

// Wait blocks until no normalization is in flight.
func (c *Controller) Wait() {
	c.slot.Wait()
}

// Busy reports whether a background normalization is running. Callers
// typically disable their inputs while busy.
func (c *Controller) Busy() bool {
	return c.slot.Busy()
}

// Err returns the last reportable error, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// DismissError clears the reportable error.
func (c *Controller) DismissError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = nil
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Settings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// Groups lists the group keys found on the input columns.
func (c *Controller) Groups() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.groups...)
}

// Group returns the selected group key, or "" if none.
func (c *Controller) Group() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.group < 0 {
		return ""
	}
	return c.groups[c.group]
}

func (c *Controller) Grouping() Grouping {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.grouping
}

func (c *Controller) Normalization() Normalization {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.norm
}

func (c *Controller) Projection() Projection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projection
}

// Changed reports whether there are uncommitted changes.
func (c *Controller) Changed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.changed
}

// Info is a one-line description of the input.
func (c *Controller) Info() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		return "No data on input."
	}
	return fmt.Sprintf("%d genes on input", c.data.NumRows())
}

// regroup recomputes the split and merged signals, then normalizes. A
// validation failure leaves the controller in StateDataLoaded.
func (c *Controller) regroup() error {
	c.slot.Cancel()
	c.version++

	g, err := Group(c.data, c.groups[c.group], c.settings.Merge)
	if err != nil {
		c.err = err
		c.state = StateDataLoaded
		c.grouping = Grouping{}
		return err
	}

	c.err = nil
	c.grouping = g
	c.state = StateGroupSelected

	return c.normalize()
}

// normalize centers the current grouping and estimates z-scores, either
// inline or on the worker slot.
func (c *Controller) normalize() error {
	g, s, version, run := c.grouping, c.settings, c.version, c.run
	work := func(ctx context.Context) (Normalization, error) {
		return run(ctx, g, s)
	}

	if !c.async {
		norm, err := work(context.Background())
		return c.apply(version, norm, err)
	}

	// Nothing is committable until the new results arrive.
	c.err = nil
	c.state = StateGroupSelected
	c.slot.Submit(context.Background(), work, func(gen uint64, norm Normalization, err error) {
		c.mu.Lock()
		defer c.mu.Unlock()

		if !c.slot.Current(gen) {
			return
		}
		if err := c.apply(version, norm, err); err != nil {
			c.log.Println("Normalization failed:", err)
		}
	})

	return nil
}

// apply records a finished normalization. On failure the previous results
// are kept and remain committable only if they belong to the current
// grouping.
func (c *Controller) apply(version uint64, norm Normalization, err error) error {
	if version != c.version {
		return nil
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		c.err = err
		if c.normVersion == c.version && c.norm.Z != nil {
			c.state = StateNormalized
		} else {
			c.state = StateGroupSelected
		}
		return err
	}

	c.err = nil
	c.norm = norm
	c.normVersion = version
	c.state = StateNormalized
	c.project()

	return c.commitIf()
}

func (c *Controller) project() {
	c.projection = Project(c.norm.Gc, c.norm.Rc, c.norm.Z, c.settings.ZCutoff)
	if c.plotter == nil {
		return
	}
	if err := c.plotter.Plot(c.projection.Plot()); err != nil {
		c.log.Println("Could not plot:", err)
	}
}

func (c *Controller) commitIf() error {
	if c.settings.AutoCommit {
		return c.commit()
	}
	c.changed = true
	return nil
}

func (c *Controller) commit() error {
	if c.state != StateNormalized || c.normVersion != c.version {
		return ErrNotNormalized
	}

	normalized, filtered, err := Commit(c.data, c.grouping.Split, c.grouping.G, c.norm.Gc, c.norm.Z, CommitOptions{
		AppendZScore: c.settings.AppendZScore,
		Cutoff:       c.settings.ZCutoff,
	})
	if err != nil {
		c.err = err
		return err
	}

	if c.publisher != nil {
		if err := c.publisher.Send(ChannelNormalized, normalized); err != nil {
			c.err = err
			return err
		}
		if err := c.publisher.Send(ChannelFiltered, filtered); err != nil {
			c.err = err
			return err
		}
	}

	c.changed = false
	c.log.Printf("Committed %d normalized rows, %d with |Z| >= %.2f\n", normalized.NumRows(), filtered.NumRows(), c.settings.ZCutoff)

	return nil
}
