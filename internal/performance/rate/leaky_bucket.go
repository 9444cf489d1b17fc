// Package rate caps the request rate of a run.
package rate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// LeakyBucket spaces events at a fixed rate. Each call to Next reserves
// the next slot; callers that are behind schedule get a slot immediately.
//
// Rate changes never release a burst: the accumulated allowance is
// dropped on SetRate.
type LeakyBucket struct {
	rate        float64 // events per second
	lastDrip    time.Time
	accumulated float64
	maxBurst    float64
	mu          sync.Mutex

	reserved atomic.Int64
	waited   atomic.Int64 // nanoseconds
}

// NewLeakyBucket creates a bucket allowing rate events per second with
// no bursting. The first event is allowed immediately.
func NewLeakyBucket(rate float64) *LeakyBucket {
	return NewLeakyBucketWithBurst(rate, 1)
}

// NewLeakyBucketWithBurst creates a bucket that lets up to maxBurst events
// through back to back after an idle period.
func NewLeakyBucketWithBurst(rate, maxBurst float64) *LeakyBucket {
	if rate <= 0 {
		rate = 1
	}
	if maxBurst < 1 {
		maxBurst = 1
	}
	return &LeakyBucket{
		rate:        rate,
		lastDrip:    time.Now(),
		accumulated: 1,
		maxBurst:    maxBurst,
	}
}

// Next reserves a slot and returns when it starts. The time is in the
// past or now when the caller may proceed at once.
func (lb *LeakyBucket) Next() time.Time {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	now := time.Now()
	if elapsed := now.Sub(lb.lastDrip).Seconds(); elapsed > 0 {
		lb.accumulated += elapsed * lb.rate
	}
	if lb.accumulated > lb.maxBurst {
		lb.accumulated = lb.maxBurst
	}
	lb.reserved.Add(1)

	if lb.accumulated >= 1 {
		lb.accumulated--
		if lb.lastDrip.Before(now) {
			lb.lastDrip = now
		}
		return now
	}

	wait := time.Duration((1 - lb.accumulated) / lb.rate * float64(time.Second))
	next := now.Add(wait)
	if lb.lastDrip.After(now) {
		// Slots are already reserved into the future; queue behind them.
		next = lb.lastDrip.Add(time.Duration(float64(time.Second) / lb.rate))
	}
	lb.accumulated = 0
	// lastDrip moves to the reserved slot so waking up there does not
	// count the same interval twice.
	lb.lastDrip = next
	lb.waited.Add(int64(next.Sub(now)))

	return next
}

// Wait blocks until the next slot. It returns ctx.Err() if ctx is done
// first.
func (lb *LeakyBucket) Wait(ctx context.Context) error {
	d := time.Until(lb.Next())
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SetRate changes the rate and drops any accumulated allowance.
func (lb *LeakyBucket) SetRate(rate float64) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	if rate <= 0 {
		rate = 1
	}
	lb.rate = rate
	lb.accumulated = 0
	lb.lastDrip = time.Now()
}

// GetRate returns the current rate in events per second.
func (lb *LeakyBucket) GetRate() float64 {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.rate
}

// Stats returns a point-in-time view of the bucket.
func (lb *LeakyBucket) Stats() LeakyBucketStats {
	lb.mu.Lock()
	rate, maxBurst := lb.rate, lb.maxBurst
	lb.mu.Unlock()

	return LeakyBucketStats{
		Rate:          rate,
		MaxBurst:      maxBurst,
		Reserved:      lb.reserved.Load(),
		TotalWaitTime: time.Duration(lb.waited.Load()),
	}
}

// LeakyBucketStats describes a bucket's activity.
type LeakyBucketStats struct {
	Rate          float64       `json:"rate"`
	MaxBurst      float64       `json:"maxBurst"`
	Reserved      int64         `json:"reserved"`
	TotalWaitTime time.Duration `json:"totalWaitTime"`
}
