// Package metrics aggregates request outcomes, checks and custom metrics
// recorded concurrently by every virtual user of a run.
package metrics

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// TotalLabel is the label of the aggregate series covering every request.
const TotalLabel = "*"

// Built-in counter names.
const (
	MetricIterations      = "iterations"
	MetricIterationErrors = "iteration_errors"
)

// Config contains configuration for the collector.
type Config struct {
	// BucketInterval is the interval for time-series buckets and window
	// rotation (default: 1s). Zero or negative disables the background
	// emitter; callers then drive intervals with Tick.
	BucketInterval time.Duration

	// WindowSlots is how many bucket intervals the rolling window spans.
	// Zero keeps no window: WindowSnapshot and the Recent accessors then
	// return cumulative values.
	WindowSlots int

	// MaxBuckets is the maximum number of buckets to retain (default: 3600)
	MaxBuckets int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		BucketInterval: time.Second,
		MaxBuckets:     3600,
	}
}

// Observer receives every event the collector sees. It is called on the
// recording goroutine and must not block.
type Observer interface {
	ObserveRequest(o RequestOutcome)
	ObserveActiveVUs(n int)
	ObserveIteration(scenario string, err error)
}

// Option configures a Collector.
type Option func(*Collector)

// WithObserver attaches an Observer.
func WithObserver(o Observer) Option {
	return func(c *Collector) {
		c.observer = o
	}
}

// Collector is the thread-safe sink for request outcomes.
//
// Series are partitioned per label in a sync.Map, so recording under
// different labels never contends on a shared lock.
type Collector struct {
	config Config

	series sync.Map // label -> *series
	total  *series

	checks   sync.Map // name -> *Rate
	counters sync.Map // name -> *Counter
	rates    sync.Map // name -> *Rate
	trends   sync.Map // name -> *Trend

	iterations      Counter
	iterationErrors Counter

	activeVUs atomic.Int32
	buckets   *TimeBucketStore
	observer  Observer
	startTime time.Time

	parent *Collector
	scopes sync.Map // name -> *Collector

	emitterCancel context.CancelFunc
	emitterWg     sync.WaitGroup
	stopOnce      sync.Once
}

// NewCollector creates a collector and starts its background emitter.
func NewCollector(config Config, opts ...Option) *Collector {
	c := &Collector{
		config:    config,
		buckets:   NewTimeBucketStore(config.MaxBuckets),
		startTime: time.Now(),
	}
	c.initWindows()
	for _, opt := range opts {
		opt(c)
	}

	if config.BucketInterval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		c.emitterCancel = cancel
		c.emitterWg.Add(1)
		go c.runEmitter(ctx)
	}

	return c
}

func (c *Collector) initWindows() {
	c.total = newSeries(TotalLabel, c.config.WindowSlots)
	c.iterations.window = newWindowTally(c.config.WindowSlots)
	c.iterationErrors.window = newWindowTally(c.config.WindowSlots)
}

func (c *Collector) runEmitter(ctx context.Context) {
	defer c.emitterWg.Done()

	ticker := time.NewTicker(c.config.BucketInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Tick()
		}
	}
}

// Tick closes the current interval: it emits a time bucket and rotates
// every rolling window, including those of scoped collectors.
func (c *Collector) Tick() {
	c.buckets.CreateBucket(c.total.snapshot(), c.ActiveVUs())

	c.total.rotate()
	c.series.Range(func(_, v any) bool {
		v.(*series).rotate()
		return true
	})
	c.iterations.window.rotate()
	c.iterationErrors.window.rotate()
	for _, m := range []*sync.Map{&c.checks, &c.rates} {
		m.Range(func(_, v any) bool {
			v.(*Rate).window.rotate()
			return true
		})
	}
	c.counters.Range(func(_, v any) bool {
		v.(*Counter).window.rotate()
		return true
	})
	c.trends.Range(func(_, v any) bool {
		v.(*Trend).s.rotate()
		return true
	})
	c.scopes.Range(func(_, v any) bool {
		v.(*Collector).Tick()
		return true
	})
}

// Scope returns the child collector for name, creating it on first use.
// Everything recorded on a child is also recorded on c; custom metrics
// are shared with c. Children have no emitter of their own and are
// ticked together with c.
func (c *Collector) Scope(name string) *Collector {
	if v, ok := c.scopes.Load(name); ok {
		return v.(*Collector)
	}

	cfg := c.config
	cfg.BucketInterval = 0
	child := &Collector{
		config:    cfg,
		buckets:   NewTimeBucketStore(cfg.MaxBuckets),
		startTime: c.startTime,
		parent:    c,
	}
	child.initWindows()

	v, _ := c.scopes.LoadOrStore(name, child)
	return v.(*Collector)
}

// Scopes returns the names of every child collector, sorted.
func (c *Collector) Scopes() []string {
	var names []string
	c.scopes.Range(func(k, _ any) bool {
		names = append(names, k.(string))
		return true
	})
	sort.Strings(names)
	return names
}

func (c *Collector) root() *Collector {
	for c.parent != nil {
		c = c.parent
	}
	return c
}

// Stop stops the emitter and emits a final bucket. It is idempotent.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() {
		if c.emitterCancel != nil {
			c.emitterCancel()
			c.emitterWg.Wait()
		}
		c.buckets.CreateBucket(c.total.snapshot(), c.ActiveVUs())
	})
}

func (c *Collector) seriesFor(label string) *series {
	if s, ok := c.series.Load(label); ok {
		return s.(*series)
	}
	s, _ := c.series.LoadOrStore(label, newSeries(label, c.config.WindowSlots))
	return s.(*series)
}

// Record folds one outcome into the series for its label, the aggregate
// series, the check tallies and the time buckets.
func (c *Collector) Record(o RequestOutcome) {
	failed := o.Failed()

	c.seriesFor(o.Label).record(o.Duration, failed, o.Bytes)
	c.total.record(o.Duration, failed, o.Bytes)
	c.buckets.RecordRequest(failed)

	for name, ok := range o.Checks {
		c.tally(name, ok)
	}

	if c.observer != nil {
		c.observer.ObserveRequest(o)
	}
	if c.parent != nil {
		c.parent.Record(o)
	}
}

// RecordCheck tallies a check that is not attached to a request.
func (c *Collector) RecordCheck(name string, ok bool) {
	c.tally(name, ok)
	if c.parent != nil {
		c.parent.RecordCheck(name, ok)
	}
}

func (c *Collector) tally(name string, ok bool) {
	r, found := c.checks.Load(name)
	if !found {
		r, _ = c.checks.LoadOrStore(name, newRate(c.config.WindowSlots))
	}
	r.(*Rate).Add(ok)
}

// RecordIteration counts one finished scenario-body invocation.
func (c *Collector) RecordIteration(scenario string, err error) {
	c.iterations.Add(1)
	if err != nil {
		c.iterationErrors.Add(1)
	}
	if c.observer != nil {
		c.observer.ObserveIteration(scenario, err)
	}
	if c.parent != nil {
		c.parent.RecordIteration(scenario, err)
	}
}

// Iterations returns the number of finished iterations.
func (c *Collector) Iterations() int64 { return c.iterations.Value() }

// IterationErrors returns the number of iterations that ended in an error.
func (c *Collector) IterationErrors() int64 { return c.iterationErrors.Value() }

// RecentIterations returns iterations and iteration errors over the
// rolling window.
func (c *Collector) RecentIterations() (iterations, iterationErrors int64) {
	return c.iterations.Recent(), c.iterationErrors.Recent()
}

// WindowSpan returns how much time the rolling window covers, or zero when
// the collector keeps no window or its intervals are driven by Tick.
func (c *Collector) WindowSpan() time.Duration {
	return time.Duration(c.config.WindowSlots) * c.root().config.BucketInterval
}

// VUStarted and VUStopped track the number of live virtual users.
func (c *Collector) VUStarted() {
	c.setVUs(c.activeVUs.Add(1))
	if c.parent != nil {
		c.parent.VUStarted()
	}
}

func (c *Collector) VUStopped() {
	c.setVUs(c.activeVUs.Add(-1))
	if c.parent != nil {
		c.parent.VUStopped()
	}
}

func (c *Collector) setVUs(n int32) {
	if c.observer != nil {
		c.observer.ObserveActiveVUs(int(n))
	}
}

// ActiveVUs returns the current number of live virtual users.
func (c *Collector) ActiveVUs() int {
	return int(c.activeVUs.Load())
}

// Snapshot returns an immutable view of the series for label.
func (c *Collector) Snapshot(label string) (*View, bool) {
	if label == TotalLabel {
		return c.total.snapshot(), true
	}
	s, ok := c.series.Load(label)
	if !ok {
		return nil, false
	}
	return s.(*series).snapshot(), true
}

// Total returns the aggregate view over every label.
func (c *Collector) Total() *View {
	return c.total.snapshot()
}

// WindowSnapshot returns a view over the rolling window of label.
func (c *Collector) WindowSnapshot(label string) (*View, bool) {
	if label == TotalLabel {
		return c.total.windowSnapshot(), true
	}
	s, ok := c.series.Load(label)
	if !ok {
		return nil, false
	}
	return s.(*series).windowSnapshot(), true
}

// Labels returns every recorded label, sorted.
func (c *Collector) Labels() []string {
	var labels []string
	c.series.Range(func(k, _ any) bool {
		labels = append(labels, k.(string))
		return true
	})
	sort.Strings(labels)
	return labels
}

// Checks returns the tally of every check, sorted by name.
func (c *Collector) Checks() []CheckStats {
	return c.checkStats(false)
}

// RecentChecks returns the tally of every check over the rolling window,
// sorted by name.
func (c *Collector) RecentChecks() []CheckStats {
	return c.checkStats(true)
}

func (c *Collector) checkStats(recent bool) []CheckStats {
	var result []CheckStats
	c.checks.Range(func(k, v any) bool {
		result = append(result, rateStats(k.(string), v.(*Rate), recent))
		return true
	})
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

func rateStats(name string, r *Rate, recent bool) CheckStats {
	hits, total := r.Hits(), r.Total()
	if recent {
		hits, total = r.Recent()
	}
	return CheckStats{Name: name, Passes: hits, Fails: total - hits}
}

// CheckTotals sums every check tally.
func (c *Collector) CheckTotals() CheckStats {
	return SumChecks(c.Checks())
}

// SumChecks folds tallies into one named "checks".
func SumChecks(stats []CheckStats) CheckStats {
	total := CheckStats{Name: "checks"}
	for _, cs := range stats {
		total.Passes += cs.Passes
		total.Fails += cs.Fails
	}
	return total
}

// Check returns the tally for a single check name.
func (c *Collector) Check(name string) (CheckStats, bool) {
	return c.lookupCheck(name, false)
}

// RecentCheck returns the rolling-window tally for a single check name.
func (c *Collector) RecentCheck(name string) (CheckStats, bool) {
	return c.lookupCheck(name, true)
}

func (c *Collector) lookupCheck(name string, recent bool) (CheckStats, bool) {
	v, ok := c.checks.Load(name)
	if !ok {
		return CheckStats{}, false
	}
	return rateStats(name, v.(*Rate), recent), true
}

// Counter returns the named counter, creating it on first use.
func (c *Collector) Counter(name string) *Counter {
	c = c.root()
	if v, ok := c.counters.Load(name); ok {
		return v.(*Counter)
	}
	v, _ := c.counters.LoadOrStore(name, newCounter(c.config.WindowSlots))
	return v.(*Counter)
}

// Rate returns the named rate, creating it on first use.
func (c *Collector) Rate(name string) *Rate {
	c = c.root()
	if v, ok := c.rates.Load(name); ok {
		return v.(*Rate)
	}
	v, _ := c.rates.LoadOrStore(name, newRate(c.config.WindowSlots))
	return v.(*Rate)
}

// Trend returns the named trend, creating it on first use.
func (c *Collector) Trend(name string) *Trend {
	c = c.root()
	if v, ok := c.trends.Load(name); ok {
		return v.(*Trend)
	}
	v, _ := c.trends.LoadOrStore(name, newTrend(name, c.config.WindowSlots))
	return v.(*Trend)
}

// LookupCounter, LookupRate and LookupTrend return an existing custom
// metric without creating it.
func (c *Collector) LookupCounter(name string) (*Counter, bool) {
	v, ok := c.root().counters.Load(name)
	if !ok {
		return nil, false
	}
	return v.(*Counter), true
}

func (c *Collector) LookupRate(name string) (*Rate, bool) {
	v, ok := c.root().rates.Load(name)
	if !ok {
		return nil, false
	}
	return v.(*Rate), true
}

func (c *Collector) LookupTrend(name string) (*Trend, bool) {
	v, ok := c.root().trends.Load(name)
	if !ok {
		return nil, false
	}
	return v.(*Trend), true
}

// CustomMetricNames returns the names of every custom counter, rate and
// trend.
func (c *Collector) CustomMetricNames() (counters, rates, trends []string) {
	c = c.root()
	c.counters.Range(func(k, _ any) bool {
		counters = append(counters, k.(string))
		return true
	})
	c.rates.Range(func(k, _ any) bool {
		rates = append(rates, k.(string))
		return true
	})
	c.trends.Range(func(k, _ any) bool {
		trends = append(trends, k.(string))
		return true
	})
	sort.Strings(counters)
	sort.Strings(rates)
	sort.Strings(trends)
	return counters, rates, trends
}

// TimeSeries returns every emitted bucket in chronological order.
func (c *Collector) TimeSeries() []*TimeBucket {
	return c.buckets.GetBuckets()
}

// Elapsed returns the time since the collector was created.
func (c *Collector) Elapsed() time.Duration {
	return time.Since(c.startTime)
}
