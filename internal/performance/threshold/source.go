package threshold

import (
	"time"

	"github.com/wesleyorama2/groomload/internal/performance/metrics"
)

// CollectorSource adapts a metrics.Collector to Source.
//
// With Window set, every metric is read from the collector's rolling window
// instead of its cumulative tallies.
type CollectorSource struct {
	Collector *metrics.Collector
	Window    bool
}

func (s CollectorSource) Sample(metric, label string) Sample {
	c := s.Collector

	switch metric {
	case MetricDuration, MetricFailed, MetricRequests:
		view := s.view(label)
		n := view.Count()
		switch metric {
		case MetricFailed:
			return sample{n: n, count: view.Failures(), rate: view.Rate()}
		case MetricRequests:
			return sample{n: n, count: n, rate: s.perSecond(n)}
		}
		return sample{n: n, count: n, rate: view.Rate(), dist: view}

	case MetricChecks:
		stats := s.checks(label)
		return sample{n: stats.Passes + stats.Fails, count: stats.Passes, rate: stats.PassRate()}

	case MetricIterations, MetricIterationErrors:
		iterations, failed := c.Iterations(), c.IterationErrors()
		if s.Window {
			iterations, failed = c.RecentIterations()
		}
		n := iterations
		if metric == MetricIterationErrors {
			n = failed
		}
		return sample{n: iterations, count: n, rate: s.perSecond(n)}
	}

	if counter, ok := c.LookupCounter(metric); ok {
		n := counter.Value()
		if s.Window {
			n = counter.Recent()
		}
		return sample{n: n, count: n, rate: s.perSecond(n)}
	}
	if rate, ok := c.LookupRate(metric); ok {
		hits, total := rate.Hits(), rate.Total()
		if s.Window {
			hits, total = rate.Recent()
		}
		var r float64
		if total > 0 {
			r = float64(hits) / float64(total)
		}
		return sample{n: total, count: hits, rate: r}
	}
	if trend, ok := c.LookupTrend(metric); ok {
		view := trend.View()
		if s.Window {
			view = trend.RecentView()
		}
		return sample{n: view.Count(), count: view.Count(), dist: view}
	}
	return sample{}
}

func (s CollectorSource) checks(label string) metrics.CheckStats {
	c := s.Collector
	if label == "" {
		if s.Window {
			return metrics.SumChecks(c.RecentChecks())
		}
		return c.CheckTotals()
	}
	lookup := c.Check
	if s.Window {
		lookup = c.RecentCheck
	}
	stats, _ := lookup(label)
	return stats
}

func (s CollectorSource) view(label string) *metrics.View {
	if label == "" {
		label = metrics.TotalLabel
	}

	var view *metrics.View
	var ok bool
	if s.Window {
		view, ok = s.Collector.WindowSnapshot(label)
	} else {
		view, ok = s.Collector.Snapshot(label)
	}
	if !ok {
		return &metrics.View{Label: label}
	}
	return view
}

// perSecond divides by the elapsed run time, capped at the window span in
// window mode.
func (s CollectorSource) perSecond(n int64) float64 {
	elapsed := s.Collector.Elapsed()
	if span := s.Collector.WindowSpan(); s.Window && span > 0 && span < elapsed {
		elapsed = span
	}
	if elapsed <= 0 {
		return 0
	}
	return float64(n) / elapsed.Seconds()
}

// sample is a Sample built from counters plus an optional distribution.
// n is the number of recorded values behind it.
type sample struct {
	n     int64
	count int64
	rate  float64
	dist  *metrics.View
}

func (s sample) Empty() bool   { return s.n == 0 }
func (s sample) Count() int64  { return s.count }
func (s sample) Rate() float64 { return s.rate }

func (s sample) Percentile(p float64) time.Duration {
	if s.dist == nil {
		return 0
	}
	return s.dist.Percentile(p)
}

func (s sample) Mean() time.Duration {
	if s.dist == nil {
		return 0
	}
	return s.dist.Mean()
}

func (s sample) Min() time.Duration {
	if s.dist == nil {
		return 0
	}
	return s.dist.Min()
}

func (s sample) Max() time.Duration {
	if s.dist == nil {
		return 0
	}
	return s.dist.Max()
}
