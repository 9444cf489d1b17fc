// Package performance runs scenario bodies on a pool of virtual users.
package performance

import (
	"context"
	"fmt"
	"math/rand/v2"
	"runtime/debug"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/groomload/internal/http"
	"github.com/wesleyorama2/groomload/internal/performance/failure"
	"github.com/wesleyorama2/groomload/internal/performance/metrics"
	"github.com/wesleyorama2/groomload/internal/performance/session"
)

// Body is one iteration of a scenario. It is opaque to the runtime.
type Body func(ctx context.Context, vu *VUContext) error

// SetupFunc runs once before any VU starts. Its result is handed to every
// VU through VUContext.Data and to the teardown hook.
type SetupFunc func(ctx context.Context, rt *Runtime) (any, error)

// TeardownFunc runs once after every VU has stopped.
type TeardownFunc func(ctx context.Context, rt *Runtime, data any) error

// Scenario is the executable part of a scenario.
type Scenario struct {
	Name     string
	Body     Body
	Setup    SetupFunc
	Teardown TeardownFunc
	Pacing   Pacing

	// UsesLogout marks scenarios whose body logs out, so shared-account
	// runs can be rejected before any VU starts.
	UsesLogout bool
}

// Runtime holds the collaborators shared by every VU of a run.
type Runtime struct {
	Client   http.Requester
	Metrics  *metrics.Collector
	Sessions *session.Coordinator
	Clock    Clock
	Logger   *zap.Logger

	// Abort is called with every fatal error a body returns, such as a
	// logout attempted in shared-account mode. The run controller ends the
	// run with it.
	Abort func(err error)
}

func (rt *Runtime) withDefaults() *Runtime {
	out := *rt
	if out.Clock == nil {
		out.Clock = RealClock{}
	}
	if out.Logger == nil {
		out.Logger = zap.NewNop()
	}
	return &out
}

// VUState represents the lifecycle state of a Virtual User.
type VUState int32

const (
	// VUStateIdle indicates the VU is between iterations.
	VUStateIdle VUState = iota
	// VUStateRunning indicates the VU is inside an iteration.
	VUStateRunning
	// VUStateStopping indicates the VU will exit after its current iteration.
	VUStateStopping
	// VUStateStopped indicates the VU has fully stopped.
	VUStateStopped
)

func (s VUState) String() string {
	switch s {
	case VUStateIdle:
		return "idle"
	case VUStateRunning:
		return "running"
	case VUStateStopping:
		return "stopping"
	case VUStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// VirtualUser is one concurrent execution context. Its iterations run
// strictly one after another.
type VirtualUser struct {
	ID int

	scenario *Scenario
	rt       *Runtime
	session  *session.Session
	data     any
	vars     varScope
	rng      *rand.Rand

	// Lifecycle state (atomic for lock-free reads)
	state atomic.Int32

	stopCh chan struct{}
	doneCh chan struct{}

	iteration   atomic.Int64
	onIteration func(err error)
}

// NewVirtualUser creates a VU. data is the scenario's setup result.
func NewVirtualUser(id int, scenario *Scenario, rt *Runtime, data any) *VirtualUser {
	rt = rt.withDefaults()
	vu := &VirtualUser{
		ID:       id,
		scenario: scenario,
		rt:       rt,
		data:     data,
		rng:      rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(id))),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	if rt.Sessions != nil {
		vu.session = rt.Sessions.NewSession(id)
	}
	return vu
}

// GetState returns the current VU state.
func (vu *VirtualUser) GetState() VUState {
	return VUState(vu.state.Load())
}

// GetIteration returns the number of iterations started.
func (vu *VirtualUser) GetIteration() int64 {
	return vu.iteration.Load()
}

// RunIteration invokes the scenario body once. A failure or panic in the
// body is returned as an *failure.IterationError and counted; the VU stays
// usable.
func (vu *VirtualUser) RunIteration(ctx context.Context) (err error) {
	vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateRunning))
	n := vu.iteration.Add(1)
	vctx := &VUContext{vu: vu, iteration: n}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
		if err != nil {
			err = &failure.IterationError{Scenario: vu.scenario.Name, VU: vu.ID, Iteration: n, Err: err}
			vu.rt.Logger.Debug("iteration failed",
				zap.String("scenario", vu.scenario.Name),
				zap.Int("vu", vu.ID),
				zap.Int64("iteration", n),
				zap.Error(err),
			)
		}
		if failure.IsFatal(err) {
			vu.RequestStop()
			if vu.rt.Abort != nil {
				vu.rt.Abort(err)
			}
		}
		vu.rt.Metrics.RecordIteration(vu.scenario.Name, err)
		if vu.onIteration != nil {
			vu.onIteration(err)
		}

		// A stop requested mid-iteration keeps the Stopping state.
		vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateIdle))
	}()

	return vu.scenario.Body(ctx, vctx)
}

// Run loops over iterations until a stop is requested or ctx is done.
// The stop signal is only observed between iterations.
func (vu *VirtualUser) Run(ctx context.Context) {
	defer vu.MarkStopped()
	if vu.session != nil {
		defer vu.session.Close()
	}

	for {
		if ctx.Err() != nil || vu.stopRequested() {
			return
		}

		_ = vu.RunIteration(ctx)

		if ctx.Err() != nil || vu.stopRequested() {
			return
		}

		if d := vu.scenario.Pacing.Next(vu.rng); d > 0 {
			select {
			case <-ctx.Done():
				return
			case <-vu.stopCh:
				return
			case <-vu.rt.Clock.After(d):
			}
		}
	}
}

func (vu *VirtualUser) stopRequested() bool {
	s := vu.GetState()
	return s == VUStateStopping || s == VUStateStopped
}

// RequestStop signals the VU to stop after completing the current iteration.
func (vu *VirtualUser) RequestStop() {
	for {
		current := VUState(vu.state.Load())
		if current == VUStateStopping || current == VUStateStopped {
			return
		}
		if vu.state.CompareAndSwap(int32(current), int32(VUStateStopping)) {
			close(vu.stopCh)
			return
		}
	}
}

// Done is closed once the VU has fully stopped.
func (vu *VirtualUser) Done() <-chan struct{} {
	return vu.doneCh
}

// WaitForStop waits for the VU to stop with a timeout.
func (vu *VirtualUser) WaitForStop(timeout time.Duration) bool {
	select {
	case <-vu.doneCh:
		return true
	case <-time.After(timeout):
		return false
	}
}

// MarkStopped marks the VU as fully stopped.
func (vu *VirtualUser) MarkStopped() {
	vu.state.Store(int32(VUStateStopped))
	select {
	case <-vu.doneCh:
	default:
		close(vu.doneCh)
	}
}
