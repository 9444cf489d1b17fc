package executor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wesleyorama2/groomload/internal/performance"
)

// RampingVUs ramps VU count up and down according to stages.
//
// Every tick the executor asks the profile for the current target and
// reconciles the scheduler's pool toward it. Retired VUs finish their
// current iteration before exiting.
//
// Example stages:
//
//	stages:
//	  - duration: 30s
//	    target: 10     # Ramp from 0 to 10 VUs over 30s
//	  - duration: 2m
//	    target: 10     # Stay at 10 VUs for 2 minutes
//	  - duration: 30s
//	    target: 0      # Ramp down to 0 VUs over 30s
type RampingVUs struct {
	kind      Type
	config    *Config
	profile   Profile
	scheduler atomic.Pointer[performance.VUScheduler]

	// State
	startTime    time.Time
	targetVUs    atomic.Int32
	currentStage atomic.Int32
	running      atomic.Bool
	finished     atomic.Bool

	ramped     chan struct{}
	rampedOnce sync.Once
	stopCh     chan struct{}
	stopOnce   sync.Once

	mu sync.RWMutex
}

// NewRampingVUs creates a new ramping VUs executor.
func NewRampingVUs() *RampingVUs {
	return newProfileExecutor(TypeRampingVUs)
}

func newProfileExecutor(kind Type) *RampingVUs {
	return &RampingVUs{
		kind:   kind,
		ramped: make(chan struct{}),
		stopCh: make(chan struct{}),
	}
}

// Type returns the executor type.
func (e *RampingVUs) Type() Type {
	return e.kind
}

// Init initializes the executor with configuration.
func (e *RampingVUs) Init(ctx context.Context, config *Config) error {
	if config.Type != e.kind {
		return fmt.Errorf("invalid config type: expected %s, got %s", e.kind, config.Type)
	}

	if err := config.Validate(); err != nil {
		return err
	}

	e.config = config
	e.profile = config.Profile()
	return nil
}

// Run drives the scheduler through the profile, then drains. VUs are
// spawned with ctx, so cancelling ctx also cancels their in-flight
// requests; ending the profile normally does not.
func (e *RampingVUs) Run(ctx context.Context, scheduler *performance.VUScheduler) error {
	if e.config == nil {
		return fmt.Errorf("executor %s: Init must be called before Run", e.kind)
	}

	e.scheduler.Store(scheduler)
	e.mu.Lock()
	e.startTime = time.Now()
	e.mu.Unlock()
	e.running.Store(true)
	defer func() {
		e.running.Store(false)
		e.finished.Store(true)
	}()

	interval := e.config.tickInterval()
	total := e.profile.TotalDuration()
	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

loop:
	for {
		elapsed := e.elapsed()
		if done := e.reconcile(ctx, elapsed); done {
			break
		}

		// Wake up just past the end so the profile never overruns by a tick.
		next := interval
		if rem := total - elapsed; rem < next {
			next = rem + time.Millisecond
		}
		timer.Reset(next)

		select {
		case <-ctx.Done():
			break loop
		case <-e.stopCh:
			break loop
		case <-timer.C:
		}
	}

	e.targetVUs.Store(0)
	e.rampedOnce.Do(func() { close(e.ramped) })

	// Drain: every VU finishes its current iteration.
	scheduler.StopAllVUs()
	if err := scheduler.Wait(context.Background()); err != nil {
		return err
	}

	return ctx.Err()
}

// reconcile moves the pool toward the profile target at elapsed. It reports
// whether the profile has ended.
func (e *RampingVUs) reconcile(ctx context.Context, elapsed time.Duration) bool {
	target, done := e.profile.TargetAt(elapsed)
	if done {
		return true
	}

	e.targetVUs.Store(int32(target))
	e.currentStage.Store(int32(e.profile.StageAt(elapsed)))
	e.scheduler.Load().ScaleVUs(ctx, target)
	return false
}

func (e *RampingVUs) elapsed() time.Duration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.startTime.IsZero() {
		return 0
	}
	return time.Since(e.startTime)
}

// Ramped is closed once the profile has ended.
func (e *RampingVUs) Ramped() <-chan struct{} {
	return e.ramped
}

// GetProgress returns current progress (0.0 to 1.0).
func (e *RampingVUs) GetProgress() float64 {
	if e.finished.Load() {
		return 1.0
	}
	if !e.running.Load() {
		return 0.0
	}

	totalDuration := e.profile.TotalDuration()
	if totalDuration == 0 {
		return 1.0
	}

	progress := float64(e.elapsed()) / float64(totalDuration)
	if progress > 1.0 {
		progress = 1.0
	}
	return progress
}

// GetActiveVUs returns current active VU count.
func (e *RampingVUs) GetActiveVUs() int {
	if s := e.scheduler.Load(); s != nil {
		return s.ActiveCount()
	}
	return 0
}

// GetStats returns executor statistics.
func (e *RampingVUs) GetStats() *Stats {
	e.mu.RLock()
	startTime := e.startTime
	e.mu.RUnlock()

	stats := &Stats{
		StartTime:     startTime,
		CurrentTime:   time.Now(),
		Elapsed:       e.elapsed(),
		TotalDuration: e.profile.TotalDuration(),
		TargetVUs:     int(e.targetVUs.Load()),
		CurrentStage:  int(e.currentStage.Load()),
		TotalStages:   len(e.profile.Stages),
	}
	if stats.CurrentStage < len(e.profile.Stages) {
		stats.CurrentStageName = e.profile.Stages[stats.CurrentStage].Name
	}

	if s := e.scheduler.Load(); s != nil {
		stats.ActiveVUs = s.ActiveCount()
		stats.PeakVUs = s.PeakVUs()
		stats.Iterations = s.Iterations()
		stats.IterationErrors = s.IterationErrors()
	}
	return stats
}

// Stop ends the profile early. Run still drains before returning.
func (e *RampingVUs) Stop(ctx context.Context) error {
	e.stopOnce.Do(func() { close(e.stopCh) })

	select {
	case <-e.ramped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ensure RampingVUs implements Executor
var _ Executor = (*RampingVUs)(nil)
