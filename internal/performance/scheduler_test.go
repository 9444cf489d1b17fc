package performance

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 2s")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func busyScenario() *Scenario {
	return &Scenario{
		Name: "busy",
		Body: func(ctx context.Context, vu *VUContext) error {
			return Sleep(ctx, RealClock{}, 5*time.Millisecond)
		},
	}
}

func TestVUScheduler_ScaleVUs(t *testing.T) {
	rt := newTestRuntime(t)
	rt.Clock = RealClock{}
	s := NewVUScheduler(busyScenario(), rt, nil)
	ctx := context.Background()

	if got := s.ScaleVUs(ctx, 5); got != 5 {
		t.Errorf("ScaleVUs(5) = %d, want 5", got)
	}
	if rt.Metrics.ActiveVUs() != 5 {
		t.Errorf("collector ActiveVUs = %d, want 5", rt.Metrics.ActiveVUs())
	}

	if got := s.ScaleVUs(ctx, 2); got != 2 {
		t.Errorf("ScaleVUs(2) = %d, want 2", got)
	}
	// Scaling to the same target while retired VUs drain must not retire more.
	if got := s.ScaleVUs(ctx, 2); got != 2 {
		t.Errorf("ScaleVUs(2) again = %d, want 2", got)
	}
	waitFor(t, func() bool { return s.LiveCount() == 2 })

	// Newest VUs are retired first.
	if s.GetVU(1) == nil || s.GetVU(2) == nil {
		t.Error("expected VUs 1 and 2 to survive")
	}

	s.ScaleVUs(ctx, 4)
	if s.PeakVUs() != 5 {
		t.Errorf("PeakVUs() = %d, want 5", s.PeakVUs())
	}

	if left := s.Shutdown(time.Second); left != 0 {
		t.Errorf("Shutdown left %d VUs", left)
	}
	if rt.Metrics.ActiveVUs() != 0 {
		t.Errorf("collector ActiveVUs = %d, want 0", rt.Metrics.ActiveVUs())
	}
	if s.Iterations() == 0 {
		t.Error("expected iterations to be counted")
	}
}

func TestVUScheduler_SharedVUIDs(t *testing.T) {
	var ids atomic.Int64
	rt := newTestRuntime(t)

	a := NewVUScheduler(busyScenario(), rt, nil)
	b := NewVUScheduler(busyScenario(), rt, nil)
	a.ShareVUIDs(&ids)
	b.ShareVUIDs(&ids)

	va := a.SpawnVU(context.Background())
	vb := b.SpawnVU(context.Background())
	if va.ID == vb.ID {
		t.Errorf("VU IDs collide: %d", va.ID)
	}

	a.Shutdown(time.Second)
	b.Shutdown(time.Second)
}

func TestVUScheduler_WaitHonoursContext(t *testing.T) {
	rt := newTestRuntime(t)
	block := make(chan struct{})
	s := NewVUScheduler(&Scenario{
		Name: "blocked",
		Body: func(ctx context.Context, vu *VUContext) error {
			<-block
			return nil
		},
	}, rt, nil)

	s.SpawnVU(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Wait(ctx); err == nil {
		t.Error("Wait() expected context error while a VU is mid-iteration")
	}

	s.StopAllVUs()
	close(block)
	if err := s.Wait(context.Background()); err != nil {
		t.Errorf("Wait() error = %v", err)
	}
}
