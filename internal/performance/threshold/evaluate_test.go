package threshold

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/groomload/internal/performance/metrics"
)

// fakeSample returns exact values so bounds can be asserted precisely.
type fakeSample struct {
	count int64
	rate  float64
	p     map[float64]time.Duration
	mean  time.Duration
}

func (f fakeSample) Empty() bool                        { return f.count == 0 }
func (f fakeSample) Count() int64                       { return f.count }
func (f fakeSample) Rate() float64                      { return f.rate }
func (f fakeSample) Percentile(p float64) time.Duration { return f.p[p] }
func (f fakeSample) Mean() time.Duration                { return f.mean }
func (f fakeSample) Min() time.Duration                 { return 0 }
func (f fakeSample) Max() time.Duration                 { return 0 }

type fakeSource map[string]fakeSample

func (f fakeSource) Sample(metric, label string) Sample {
	return f[metric+"{"+label+"}"]
}

func mustParse(t *testing.T, selector, expr string) Spec {
	t.Helper()
	spec, err := Parse(selector, expr)
	require.NoError(t, err)
	return spec
}

func TestEvaluate_P95(t *testing.T) {
	spec := mustParse(t, "http_req_duration", "p(95)<500ms")

	pass := Evaluate([]Spec{spec}, fakeSource{
		"http_req_duration{}": {count: 100, p: map[float64]time.Duration{95: 480 * time.Millisecond}},
	})
	require.Len(t, pass, 1)
	assert.True(t, pass[0].Passed)
	assert.Equal(t, 480.0, pass[0].Observed)

	fail := Evaluate([]Spec{spec}, fakeSource{
		"http_req_duration{}": {count: 100, p: map[float64]time.Duration{95: 520 * time.Millisecond}},
	})
	require.Len(t, fail, 1)
	assert.False(t, fail[0].Passed)
	assert.Equal(t, 520.0, fail[0].Observed)
	assert.Equal(t, 500.0, fail[0].Bound)
	assert.Equal(t, "ms", fail[0].Unit)
	assert.Equal(t, "p(95) is 520ms, threshold: < 500ms", fail[0].Message)
}

func TestEvaluate_P95RecordedLatencies(t *testing.T) {
	tests := []struct {
		name   string
		slow   time.Duration
		passed bool
	}{
		{name: "under bound", slow: 480 * time.Millisecond, passed: true},
		{name: "over bound", slow: 520 * time.Millisecond, passed: false},
	}

	spec := mustParse(t, "http_req_duration", "p(95)<500")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := metrics.DefaultConfig()
			cfg.BucketInterval = 0
			c := metrics.NewCollector(cfg)
			defer c.Stop()

			// 90 fast requests and 10 slow ones put p(95) on the slow value.
			for i := 0; i < 100; i++ {
				d := 40 * time.Millisecond
				if i%10 == 0 {
					d = tt.slow
				}
				c.Record(metrics.RequestOutcome{Label: "appointments", StatusCode: 200, Duration: d})
			}

			results := Evaluate([]Spec{spec}, CollectorSource{Collector: c})
			require.Len(t, results, 1)
			assert.Equal(t, tt.passed, results[0].Passed)
			assert.Equal(t, "ms", results[0].Unit)
			assert.InDelta(t, float64(tt.slow.Milliseconds()), results[0].Observed, 1.0)
		})
	}
}

func TestEvaluate_NoShortCircuit(t *testing.T) {
	specs := []Spec{
		mustParse(t, "http_req_duration", "p(95)<500"),   // fails
		mustParse(t, "http_req_duration", "p(99)<1000"),  // passes
		mustParse(t, "http_req_failed", "rate<0.01"),     // fails
		mustParse(t, "http_reqs", "count>10"),            // passes
		mustParse(t, "http_req_duration", "avg<100"),     // fails
		mustParse(t, "checks", "rate>0.9"),               // passes
	}
	src := fakeSource{
		"http_req_duration{}": {count: 50, mean: 300 * time.Millisecond, p: map[float64]time.Duration{
			95: 700 * time.Millisecond,
			99: 900 * time.Millisecond,
		}},
		"http_req_failed{}": {count: 5, rate: 0.1},
		"http_reqs{}":       {count: 50},
		"checks{}":          {count: 95, rate: 0.95},
	}

	results := Evaluate(specs, src)
	require.Len(t, results, len(specs))

	violations := Violations(results)
	require.Len(t, violations, 3)
	assert.Equal(t, "p(95)<500", violations[0].Expression)
	assert.Equal(t, "rate<0.01", violations[1].Expression)
	assert.Equal(t, "avg<100", violations[2].Expression)
	assert.False(t, AllPassed(results))
}

func TestCollectorSource(t *testing.T) {
	cfg := metrics.DefaultConfig()
	cfg.BucketInterval = 0
	c := metrics.NewCollector(cfg)
	defer c.Stop()

	for i := 0; i < 99; i++ {
		c.Record(metrics.RequestOutcome{Label: "groomers", StatusCode: 200, Duration: 20 * time.Millisecond,
			Checks: map[string]bool{"status is 200": true}})
	}
	c.Record(metrics.RequestOutcome{Label: "os", StatusCode: 500, Duration: 2 * time.Second,
		Checks: map[string]bool{"status is 200": false}})
	c.Rate("slot_found").Add(true)
	c.RecordIteration("os_workflow", nil)

	specs := []Spec{
		mustParse(t, "http_req_duration{groomers}", "p(99)<100"),
		mustParse(t, "http_req_duration", "max<1s"),
		mustParse(t, "http_req_failed", "rate<=0.01"),
		mustParse(t, "http_req_failed{os}", "rate<0.5"),
		mustParse(t, "http_reqs", "count==100"),
		mustParse(t, "checks{status is 200}", "rate>=0.99"),
		mustParse(t, "iterations", "count==1"),
		mustParse(t, "slot_found", "rate==1"),
		mustParse(t, "http_req_duration{never-seen}", "count==0"),
	}

	results := Evaluate(specs, CollectorSource{Collector: c})
	passed := []bool{true, false, true, false, true, true, true, true, true}
	for i, r := range results {
		if r.Passed != passed[i] {
			t.Errorf("%s %s: Passed = %v, want %v (observed %v)", r.Selector, r.Expression, r.Passed, passed[i], r.Observed)
		}
	}
}

func TestLiveMonitor(t *testing.T) {
	cfg := metrics.DefaultConfig()
	cfg.BucketInterval = 0
	cfg.WindowSlots = 1
	c := metrics.NewCollector(cfg)
	defer c.Stop()

	specs := []Spec{mustParse(t, "http_req_failed", "rate<0.5")}
	m := NewLiveMonitor(specs, CollectorSource{Collector: c, Window: true}, time.Millisecond, nil)

	c.Record(metrics.RequestOutcome{Label: "x", StatusCode: 200})
	m.Check()
	assert.False(t, m.Breached())

	c.Record(metrics.RequestOutcome{Label: "x", StatusCode: 500})
	c.Record(metrics.RequestOutcome{Label: "x", StatusCode: 500})
	m.Check()
	assert.True(t, m.Breached())

	// Recovery in the window does not clear the flag.
	c.Tick()
	c.Record(metrics.RequestOutcome{Label: "x", StatusCode: 200})
	results := m.Check()
	assert.True(t, results[0].Passed)
	assert.True(t, m.Breached())

	breaches := m.Breaches()
	require.Len(t, breaches, 1)
	assert.InDelta(t, 2.0/3.0, breaches[0].Observed, 1e-9)
}

func TestLiveMonitor_SkipsEmptySamples(t *testing.T) {
	cfg := metrics.DefaultConfig()
	cfg.BucketInterval = 0
	cfg.WindowSlots = 2
	c := metrics.NewCollector(cfg)
	defer c.Stop()

	specs := []Spec{
		mustParse(t, "checks", "rate>0.9"),
		mustParse(t, "checks{status is 200}", "rate>0.9"),
		mustParse(t, "slot_found", "rate>0.5"),
		mustParse(t, "http_req_duration", "p(95)<500"),
	}
	m := NewLiveMonitor(specs, CollectorSource{Collector: c, Window: true}, time.Millisecond, nil)

	assert.Empty(t, m.Check(), "nothing recorded yet")
	assert.False(t, m.Breached())

	c.Record(metrics.RequestOutcome{Label: "appointments", StatusCode: 200, Duration: 30 * time.Millisecond,
		Checks: map[string]bool{"status is 200": true}})
	results := m.Check()
	require.Len(t, results, 3, "the custom rate is still empty")
	assert.True(t, AllPassed(results))
	assert.False(t, m.Breached())
}

func TestLiveMonitor_WindowedChecks(t *testing.T) {
	cfg := metrics.DefaultConfig()
	cfg.BucketInterval = 0
	cfg.WindowSlots = 1
	c := metrics.NewCollector(cfg)
	defer c.Stop()

	for i := 0; i < 10; i++ {
		c.RecordCheck("status is 200", i == 0)
	}
	c.Tick()
	for i := 0; i < 10; i++ {
		c.RecordCheck("status is 200", true)
	}

	spec := mustParse(t, "checks", "rate>0.9")

	live := Evaluate([]Spec{spec}, CollectorSource{Collector: c, Window: true})
	assert.True(t, live[0].Passed, "failures fell out of the window")
	assert.Equal(t, 1.0, live[0].Observed)

	final := Evaluate([]Spec{spec}, CollectorSource{Collector: c})
	assert.False(t, final[0].Passed)
	assert.InDelta(t, 11.0/20.0, final[0].Observed, 1e-9)
}
