package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Histogram bounds in microseconds: 1µs to 1 hour, 3 significant figures.
const (
	histogramMin     int64 = 1
	histogramMax     int64 = 3600000000
	histogramSigFigs       = 3
)

func newHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(histogramMin, histogramMax, histogramSigFigs)
}

func clampMicros(d time.Duration) int64 {
	v := d.Microseconds()
	if v < histogramMin {
		return histogramMin
	}
	if v > histogramMax {
		return histogramMax
	}
	return v
}

// series is the append-only aggregate for one label.
//
// Counters are atomic. The mutex only guards histogram writes and copies,
// so a snapshot blocks a concurrent record for at most one histogram copy.
type series struct {
	label string

	count    atomic.Int64
	failures atomic.Int64
	bytes    atomic.Int64

	mu     sync.Mutex
	hist   *hdrhistogram.Histogram
	window *rollingWindow
}

func newSeries(label string, windowSlots int) *series {
	return &series{
		label:  label,
		hist:   newHistogram(),
		window: newRollingWindow(windowSlots),
	}
}

func (s *series) record(d time.Duration, failed bool, bytes int64) {
	v := clampMicros(d)

	s.mu.Lock()
	s.hist.RecordValue(v)
	if s.window != nil {
		s.window.record(v, failed)
	}
	s.mu.Unlock()

	s.count.Add(1)
	s.bytes.Add(bytes)
	if failed {
		s.failures.Add(1)
	}
}

func (s *series) snapshot() *View {
	s.mu.Lock()
	h := hdrhistogram.Import(s.hist.Export())
	s.mu.Unlock()

	return &View{
		Label:    s.label,
		count:    s.count.Load(),
		failures: s.failures.Load(),
		bytes:    s.bytes.Load(),
		hist:     h,
	}
}

// windowSnapshot falls back to the cumulative view when the series keeps
// no window.
func (s *series) windowSnapshot() *View {
	if s.window == nil {
		return s.snapshot()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	count, failures := s.window.totals()
	return &View{
		Label:    s.label,
		count:    count,
		failures: failures,
		hist:     s.window.merge(),
	}
}

func (s *series) rotate() {
	if s.window == nil {
		return
	}
	s.mu.Lock()
	s.window.rotate()
	s.mu.Unlock()
}

// View is an immutable point-in-time copy of a series.
type View struct {
	Label    string
	count    int64
	failures int64
	bytes    int64
	hist     *hdrhistogram.Histogram
}

// Count returns the number of recorded outcomes.
func (v *View) Count() int64 { return v.count }

// Failures returns the number of failed outcomes.
func (v *View) Failures() int64 { return v.failures }

// Bytes returns the number of response bytes received.
func (v *View) Bytes() int64 { return v.bytes }

// Rate returns the failure ratio in [0,1]. Empty views report 0.
func (v *View) Rate() float64 {
	if v.count == 0 {
		return 0
	}
	return float64(v.failures) / float64(v.count)
}

// Percentile returns the latency at quantile p (0-100).
func (v *View) Percentile(p float64) time.Duration {
	if v.hist == nil || v.hist.TotalCount() == 0 {
		return 0
	}
	return time.Duration(v.hist.ValueAtQuantile(p)) * time.Microsecond
}

func (v *View) Mean() time.Duration {
	if v.hist == nil || v.hist.TotalCount() == 0 {
		return 0
	}
	return time.Duration(v.hist.Mean()) * time.Microsecond
}

func (v *View) Min() time.Duration {
	if v.hist == nil || v.hist.TotalCount() == 0 {
		return 0
	}
	return time.Duration(v.hist.Min()) * time.Microsecond
}

func (v *View) Max() time.Duration {
	if v.hist == nil || v.hist.TotalCount() == 0 {
		return 0
	}
	return time.Duration(v.hist.Max()) * time.Microsecond
}

// Latency returns the summary statistics carried into reports.
func (v *View) Latency() LatencyStats {
	stats := LatencyStats{
		Min:   v.Min(),
		Max:   v.Max(),
		Mean:  v.Mean(),
		P50:   v.Percentile(50),
		P90:   v.Percentile(90),
		P95:   v.Percentile(95),
		P99:   v.Percentile(99),
		Count: v.count,
	}
	if v.hist != nil && v.hist.TotalCount() > 0 {
		stats.StdDev = time.Duration(v.hist.StdDev()) * time.Microsecond
	}
	return stats
}

// LatencyStats contains latency statistics.
type LatencyStats struct {
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Mean   time.Duration `json:"mean"`
	StdDev time.Duration `json:"stdDev"`
	P50    time.Duration `json:"p50"`
	P90    time.Duration `json:"p90"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`
	Count  int64         `json:"count"`
}
