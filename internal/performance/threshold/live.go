package threshold

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// LiveMonitor evaluates specs periodically while load is running.
//
// A breach only flags the run as failing; load generation continues to
// the end of the profile.
type LiveMonitor struct {
	specs    []Spec
	source   Source
	interval time.Duration
	logger   *zap.Logger

	breached atomic.Bool
	mu       sync.Mutex
	breaches map[string]Result // first breach per selector+expression
	order    []string
}

// NewLiveMonitor creates a monitor. A nil logger is replaced by a no-op one.
func NewLiveMonitor(specs []Spec, source Source, interval time.Duration, logger *zap.Logger) *LiveMonitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &LiveMonitor{
		specs:    specs,
		source:   source,
		interval: interval,
		logger:   logger,
		breaches: make(map[string]Result),
	}
}

// Run evaluates on every interval until ctx is done.
func (m *LiveMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check()
		}
	}
}

// Check evaluates every spec that has recorded values and records new
// breaches. Specs whose sample is still empty are left out of the results.
func (m *LiveMonitor) Check() []Result {
	results := make([]Result, 0, len(m.specs))
	for _, spec := range m.specs {
		smp := m.source.Sample(spec.Metric, spec.Label)
		if smp.Empty() {
			continue
		}
		results = append(results, evaluateOne(spec, smp))
	}

	for _, r := range Violations(results) {
		key := r.Selector + " " + r.Expression

		m.mu.Lock()
		_, seen := m.breaches[key]
		if !seen {
			m.breaches[key] = r
			m.order = append(m.order, key)
		}
		m.mu.Unlock()

		if !seen {
			m.logger.Warn("live threshold breached",
				zap.String("selector", r.Selector),
				zap.String("expression", r.Expression),
				zap.Float64("observed", r.Observed),
				zap.Float64("bound", r.Bound),
			)
		}
		m.breached.Store(true)
	}

	return results
}

// Breached reports whether any spec has failed during the run.
func (m *LiveMonitor) Breached() bool {
	return m.breached.Load()
}

// Breaches returns the first breach of each spec, in the order they happened.
func (m *LiveMonitor) Breaches() []Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]Result, 0, len(m.order))
	for _, key := range m.order {
		result = append(result, m.breaches[key])
	}
	return result
}
