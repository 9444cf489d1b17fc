package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// TimeBucket is one interval of the run's time series.
type TimeBucket struct {
	Timestamp time.Time `json:"timestamp"`

	// Cumulative totals at the end of the interval
	TotalRequests int64 `json:"totalRequests"`
	TotalFailures int64 `json:"totalFailures"`

	// Interval metrics
	IntervalRequests  int64   `json:"intervalRequests"`
	IntervalRPS       float64 `json:"intervalRps"`
	IntervalErrorRate float64 `json:"intervalErrorRate"`

	// Cumulative latency percentiles at the end of the interval
	LatencyP50 time.Duration `json:"latencyP50"`
	LatencyP95 time.Duration `json:"latencyP95"`
	LatencyP99 time.Duration `json:"latencyP99"`

	ActiveVUs int `json:"activeVUs"`
}

// TimeBucketStore stores time-bucketed metrics in a ring buffer.
//
// Buckets are emitted even when no requests complete, so the series has no
// gaps. Old buckets are discarded once the buffer is full.
type TimeBucketStore struct {
	buckets    []*TimeBucket
	head       int // Next write position
	count      int // Current number of buckets
	maxBuckets int
	mu         sync.RWMutex

	lastBucketTime time.Time

	// Current interval accumulator (lock-free updates)
	currentRequests atomic.Int64
	currentFailures atomic.Int64
}

// NewTimeBucketStore creates a new time bucket store.
//
// For a 1-hour test with 1-second buckets, use maxBuckets=3600.
func NewTimeBucketStore(maxBuckets int) *TimeBucketStore {
	if maxBuckets <= 0 {
		maxBuckets = 3600
	}

	return &TimeBucketStore{
		buckets:        make([]*TimeBucket, maxBuckets),
		maxBuckets:     maxBuckets,
		lastBucketTime: time.Now(),
	}
}

// RecordRequest records a request into the current interval accumulator.
func (tbs *TimeBucketStore) RecordRequest(failed bool) {
	tbs.currentRequests.Add(1)
	if failed {
		tbs.currentFailures.Add(1)
	}
}

// CreateBucket closes the current interval and appends it to the buffer.
func (tbs *TimeBucketStore) CreateBucket(total *View, activeVUs int) *TimeBucket {
	tbs.mu.Lock()
	defer tbs.mu.Unlock()

	now := time.Now()

	intervalRequests := tbs.currentRequests.Swap(0)
	intervalFailures := tbs.currentFailures.Swap(0)

	intervalDuration := now.Sub(tbs.lastBucketTime).Seconds()
	if intervalDuration <= 0 {
		intervalDuration = 1.0
	}

	intervalErrorRate := 0.0
	if intervalRequests > 0 {
		intervalErrorRate = float64(intervalFailures) / float64(intervalRequests)
	}

	bucket := &TimeBucket{
		Timestamp:         now,
		TotalRequests:     total.Count(),
		TotalFailures:     total.Failures(),
		IntervalRequests:  intervalRequests,
		IntervalRPS:       float64(intervalRequests) / intervalDuration,
		IntervalErrorRate: intervalErrorRate,
		LatencyP50:        total.Percentile(50),
		LatencyP95:        total.Percentile(95),
		LatencyP99:        total.Percentile(99),
		ActiveVUs:         activeVUs,
	}

	tbs.buckets[tbs.head] = bucket
	tbs.head = (tbs.head + 1) % tbs.maxBuckets
	if tbs.count < tbs.maxBuckets {
		tbs.count++
	}
	tbs.lastBucketTime = now

	return bucket
}

// GetBuckets returns a copy of all buckets in chronological order.
func (tbs *TimeBucketStore) GetBuckets() []*TimeBucket {
	tbs.mu.RLock()
	defer tbs.mu.RUnlock()

	if tbs.count == 0 {
		return nil
	}

	result := make([]*TimeBucket, tbs.count)
	start := 0
	if tbs.count == tbs.maxBuckets {
		start = tbs.head
	}
	for i := 0; i < tbs.count; i++ {
		result[i] = tbs.buckets[(start+i)%tbs.maxBuckets]
	}

	return result
}

// GetLatestBucket returns the most recent bucket, or nil if none.
func (tbs *TimeBucketStore) GetLatestBucket() *TimeBucket {
	tbs.mu.RLock()
	defer tbs.mu.RUnlock()

	if tbs.count == 0 {
		return nil
	}

	idx := (tbs.head - 1 + tbs.maxBuckets) % tbs.maxBuckets
	return tbs.buckets[idx]
}

// Count returns the current number of buckets stored.
func (tbs *TimeBucketStore) Count() int {
	tbs.mu.RLock()
	defer tbs.mu.RUnlock()
	return tbs.count
}
