package performance

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// VUScheduler owns the VU pool of one scenario. Executors drive it with
// ScaleVUs; it spawns VU goroutines and sends retire signals.
type VUScheduler struct {
	scenario *Scenario
	rt       *Runtime
	data     any

	vus   map[int]*VirtualUser
	vusMu sync.RWMutex

	nextVUID *atomic.Int64
	peak     atomic.Int32

	iterations      atomic.Int64
	iterationErrors atomic.Int64

	wg sync.WaitGroup
}

// NewVUScheduler creates a scheduler. data is the setup hook result passed
// to every VU.
func NewVUScheduler(scenario *Scenario, rt *Runtime, data any) *VUScheduler {
	return &VUScheduler{
		scenario: scenario,
		rt:       rt.withDefaults(),
		data:     data,
		vus:      make(map[int]*VirtualUser),
		nextVUID: &atomic.Int64{},
	}
}

// ShareVUIDs makes this scheduler draw VU IDs from ids, so IDs are unique
// across the scenarios of a run.
func (s *VUScheduler) ShareVUIDs(ids *atomic.Int64) {
	s.nextVUID = ids
}

// Scenario returns the scenario this scheduler runs.
func (s *VUScheduler) Scenario() *Scenario {
	return s.scenario
}

// SpawnVU creates, registers and starts a VU.
func (s *VUScheduler) SpawnVU(ctx context.Context) *VirtualUser {
	id := int(s.nextVUID.Add(1))
	vu := NewVirtualUser(id, s.scenario, s.rt, s.data)
	vu.onIteration = s.countIteration

	s.vusMu.Lock()
	s.vus[id] = vu
	if n := int32(len(s.vus)); n > s.peak.Load() {
		s.peak.Store(n)
	}
	s.vusMu.Unlock()

	s.rt.Metrics.VUStarted()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.remove(id)
		vu.Run(ctx)
	}()

	return vu
}

func (s *VUScheduler) countIteration(err error) {
	s.iterations.Add(1)
	if err != nil {
		s.iterationErrors.Add(1)
	}
}

func (s *VUScheduler) remove(id int) {
	s.vusMu.Lock()
	delete(s.vus, id)
	s.vusMu.Unlock()
	s.rt.Metrics.VUStopped()
}

// GetVU returns a VU by ID, or nil if not found.
func (s *VUScheduler) GetVU(id int) *VirtualUser {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()
	return s.vus[id]
}

// LiveCount returns the number of VUs that have not exited, including
// those finishing their last iteration.
func (s *VUScheduler) LiveCount() int {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()
	return len(s.vus)
}

// ActiveCount returns the number of VUs that have not been asked to stop.
func (s *VUScheduler) ActiveCount() int {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()

	count := 0
	for _, vu := range s.vus {
		if !vu.stopRequested() {
			count++
		}
	}
	return count
}

// PeakVUs returns the highest number of concurrently live VUs.
func (s *VUScheduler) PeakVUs() int {
	return int(s.peak.Load())
}

// Iterations returns the number of finished iterations of this scenario.
func (s *VUScheduler) Iterations() int64 {
	return s.iterations.Load()
}

// IterationErrors returns the number of failed iterations of this scenario.
func (s *VUScheduler) IterationErrors() int64 {
	return s.iterationErrors.Load()
}

// ScaleVUs spawns or retires VUs until the number of active VUs equals
// target. Retired VUs finish their current iteration first; the newest VUs
// are retired first.
func (s *VUScheduler) ScaleVUs(ctx context.Context, target int) int {
	if target < 0 {
		target = 0
	}
	current := s.ActiveCount()

	switch {
	case target > current:
		for i := current; i < target; i++ {
			s.SpawnVU(ctx)
		}
	case target < current:
		s.retire(current - target)
	}

	return s.ActiveCount()
}

func (s *VUScheduler) retire(n int) {
	s.vusMu.RLock()
	ids := make([]int, 0, len(s.vus))
	for id, vu := range s.vus {
		if !vu.stopRequested() {
			ids = append(ids, id)
		}
	}
	s.vusMu.RUnlock()

	sort.Sort(sort.Reverse(sort.IntSlice(ids)))
	for i := 0; i < n && i < len(ids); i++ {
		if vu := s.GetVU(ids[i]); vu != nil {
			vu.RequestStop()
		}
	}
}

// StopAllVUs requests all VUs to stop after their current iteration.
func (s *VUScheduler) StopAllVUs() {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()

	for _, vu := range s.vus {
		vu.RequestStop()
	}
}

// Wait blocks until every spawned VU has exited or ctx is done.
func (s *VUScheduler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops every VU and waits up to timeout for them to exit. It
// returns the number of VUs still live.
func (s *VUScheduler) Shutdown(timeout time.Duration) int {
	s.StopAllVUs()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	_ = s.Wait(ctx)

	return s.LiveCount()
}
