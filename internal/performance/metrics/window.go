package metrics

import (
	"sync"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// rollingWindow keeps the last N bucket intervals of a series so live
// thresholds can be evaluated over recent traffic only. Callers hold the
// owning series' lock.
type rollingWindow struct {
	hist     *hdrhistogram.WindowedHistogram
	counts   []int64
	failures []int64
	idx      int
}

// newRollingWindow returns nil when slots is not positive; series then
// keep no window at all.
func newRollingWindow(slots int) *rollingWindow {
	if slots <= 0 {
		return nil
	}
	return &rollingWindow{
		hist:     hdrhistogram.NewWindowed(slots, histogramMin, histogramMax, histogramSigFigs),
		counts:   make([]int64, slots),
		failures: make([]int64, slots),
	}
}

func (w *rollingWindow) record(micros int64, failed bool) {
	w.hist.Current.RecordValue(micros)
	w.counts[w.idx]++
	if failed {
		w.failures[w.idx]++
	}
}

// rotate starts a new slot, discarding the oldest one.
func (w *rollingWindow) rotate() {
	w.hist.Rotate()
	w.idx = (w.idx + 1) % len(w.counts)
	w.counts[w.idx] = 0
	w.failures[w.idx] = 0
}

func (w *rollingWindow) totals() (count, failures int64) {
	for i := range w.counts {
		count += w.counts[i]
		failures += w.failures[i]
	}
	return count, failures
}

// merge returns a private copy; the windowed histogram reuses its merge target.
func (w *rollingWindow) merge() *hdrhistogram.Histogram {
	return hdrhistogram.Import(w.hist.Merge().Export())
}

// windowTally is the counter-only counterpart of rollingWindow, used by
// check tallies, iteration counters and custom counters and rates. A nil
// *windowTally ignores writes.
type windowTally struct {
	mu     sync.Mutex
	hits   []int64
	totals []int64
	idx    int
}

func newWindowTally(slots int) *windowTally {
	if slots <= 0 {
		return nil
	}
	return &windowTally{
		hits:   make([]int64, slots),
		totals: make([]int64, slots),
	}
}

func (w *windowTally) add(hits, total int64) {
	if w == nil {
		return
	}
	w.mu.Lock()
	w.hits[w.idx] += hits
	w.totals[w.idx] += total
	w.mu.Unlock()
}

func (w *windowTally) rotate() {
	if w == nil {
		return
	}
	w.mu.Lock()
	w.idx = (w.idx + 1) % len(w.totals)
	w.hits[w.idx] = 0
	w.totals[w.idx] = 0
	w.mu.Unlock()
}

func (w *windowTally) sums() (hits, total int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.totals {
		hits += w.hits[i]
		total += w.totals[i]
	}
	return hits, total
}
