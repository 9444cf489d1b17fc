package metrics

import (
	"sync/atomic"
	"time"
)

// Counter is a monotonically increasing custom metric.
type Counter struct {
	v      atomic.Int64
	window *windowTally
}

func newCounter(slots int) *Counter {
	return &Counter{window: newWindowTally(slots)}
}

func (c *Counter) Add(n int64) {
	c.v.Add(n)
	c.window.add(n, n)
}

func (c *Counter) Value() int64 { return c.v.Load() }

// Recent returns the count over the rolling window, or Value when the
// collector keeps no window.
func (c *Counter) Recent() int64 {
	if c.window == nil {
		return c.Value()
	}
	n, _ := c.window.sums()
	return n
}

// Rate tracks the fraction of true values, the same way the checks
// metric tracks passed checks.
type Rate struct {
	hits   atomic.Int64
	total  atomic.Int64
	window *windowTally
}

func newRate(slots int) *Rate {
	return &Rate{window: newWindowTally(slots)}
}

func (r *Rate) Add(ok bool) {
	r.total.Add(1)
	var hit int64
	if ok {
		hit = 1
		r.hits.Add(1)
	}
	r.window.add(hit, 1)
}

// Recent returns hits and total over the rolling window, or the
// cumulative tally when the collector keeps no window.
func (r *Rate) Recent() (hits, total int64) {
	if r.window == nil {
		return r.Hits(), r.Total()
	}
	return r.window.sums()
}

// Hits returns the number of true values.
func (r *Rate) Hits() int64 { return r.hits.Load() }

// Total returns the number of values.
func (r *Rate) Total() int64 { return r.total.Load() }

// Value returns hits/total, or 0 when nothing was recorded.
func (r *Rate) Value() float64 {
	total := r.total.Load()
	if total == 0 {
		return 0
	}
	return float64(r.hits.Load()) / float64(total)
}

// Trend is a custom latency-like distribution.
type Trend struct {
	s *series
}

func newTrend(name string, slots int) *Trend {
	return &Trend{s: newSeries(name, slots)}
}

func (t *Trend) Add(d time.Duration) { t.s.record(d, false, 0) }

// View returns an immutable snapshot of the trend.
func (t *Trend) View() *View { return t.s.snapshot() }

// RecentView returns a snapshot of the rolling window, or View when the
// collector keeps no window.
func (t *Trend) RecentView() *View { return t.s.windowSnapshot() }

// CheckStats is the pass/fail tally of one named check.
type CheckStats struct {
	Name   string `json:"name"`
	Passes int64  `json:"passes"`
	Fails  int64  `json:"fails"`
}

// PassRate returns passes / (passes+fails).
func (c CheckStats) PassRate() float64 {
	total := c.Passes + c.Fails
	if total == 0 {
		return 0
	}
	return float64(c.Passes) / float64(total)
}
