package output

import (
	"bytes"
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wesleyorama2/groomload/internal/performance/engine"
	"github.com/wesleyorama2/groomload/internal/performance/metrics"
	"github.com/wesleyorama2/groomload/internal/performance/threshold"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{500 * time.Millisecond, "500ms"},
		{1 * time.Second, "1.0s"},
		{1*time.Minute + 30*time.Second, "1m 30s"},
		{1*time.Hour + 2*time.Minute + 3*time.Second, "1h 02m 03s"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := formatDuration(tt.duration)
			if result != tt.expected {
				t.Errorf("formatDuration(%v) = %q, want %q", tt.duration, result, tt.expected)
			}
		})
	}
}

func TestFormatDurationShort(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{0, "0ms"},
		{500 * time.Microsecond, "500µs"},
		{50 * time.Millisecond, "50ms"},
		{1500 * time.Millisecond, "1.50s"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := formatDurationShort(tt.duration)
			if result != tt.expected {
				t.Errorf("formatDurationShort(%v) = %q, want %q", tt.duration, result, tt.expected)
			}
		})
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		number   int64
		expected string
	}{
		{0, "0"},
		{100, "100"},
		{1000, "1,000"},
		{12345, "12,345"},
		{1234567, "1,234,567"},
		{-4500, "-4,500"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := formatNumber(tt.number)
			if result != tt.expected {
				t.Errorf("formatNumber(%d) = %q, want %q", tt.number, result, tt.expected)
			}
		})
	}
}

func TestProgressBar(t *testing.T) {
	tests := []struct {
		progress float64
		filled   int
	}{
		{-0.5, 0},
		{0, 0},
		{0.5, 5},
		{1, 10},
		{3, 10},
	}

	for _, tt := range tests {
		bar := progressBar(tt.progress, 10)
		if got := strings.Count(bar, progressFilled); got != tt.filled {
			t.Errorf("progressBar(%v) has %d filled cells, want %d", tt.progress, got, tt.filled)
		}
		if got := strings.Count(bar, progressFilled) + strings.Count(bar, progressEmpty); got != 10 {
			t.Errorf("progressBar(%v) has width %d, want 10", tt.progress, got)
		}
	}
}

func TestConsoleCreation(t *testing.T) {
	var buf bytes.Buffer

	c := NewConsole(Config{Writer: &buf})
	if c.IsTTY() {
		t.Error("expected non-TTY when writing to buffer")
	}

	c = NewConsole(Config{Writer: &buf, ForceTTY: true, NoColor: true})
	if !c.IsTTY() {
		t.Error("expected ForceTTY to be honoured")
	}
}

func TestUpdateNonTTY(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(Config{Writer: &buf, NoColor: true})

	c.Update(engine.Progress{
		State:     engine.StateRamping,
		Elapsed:   1500 * time.Millisecond,
		Percent:   0.25,
		ActiveVUs: 3,
		TargetVUs: 5,
		Requests:  200,
		Failures:  10,
		RPS:       133.3,
		P95:       42 * time.Millisecond,
	})
	c.Update(engine.Progress{State: engine.StateDraining, Breached: true})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 status lines, got %d: %q", len(lines), buf.String())
	}

	want := "[1.5s] RAMPING 25% | VUs: 3/5 | Reqs: 200 | RPS: 133.3 | Errors: 10 (5.0%) | P95: 42ms"
	if lines[0] != want {
		t.Errorf("status line = %q, want %q", lines[0], want)
	}
	if !strings.HasSuffix(lines[1], "| THRESHOLD BREACHED") {
		t.Errorf("expected breach marker, got %q", lines[1])
	}
}

func TestUpdateTTYRedraws(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(Config{Writer: &buf, ForceTTY: true, NoColor: true})

	c.Update(engine.Progress{State: engine.StateRamping, Percent: 0.1})
	first := buf.Len()
	c.Update(engine.Progress{State: engine.StateRamping, Percent: 0.2})

	if !strings.Contains(buf.String()[first:], clearLine) {
		t.Error("expected the second update to clear the previous view")
	}
	if !strings.Contains(buf.String(), "State:    RAMPING") {
		t.Errorf("live view missing state line: %q", buf.String())
	}
}

func TestPrintHeader(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(Config{Writer: &buf, NoColor: true})

	c.PrintHeader(Header{
		Name:      "salon smoke",
		RunID:     "run-1",
		BaseURL:   "http://salon.test",
		AuthMode:  "isolated",
		Scenarios: []string{"browse", "book"},
	})

	out := buf.String()
	for _, want := range []string{"salon smoke - Running", "run-1", "http://salon.test", "isolated", "browse, book"} {
		if !strings.Contains(out, want) {
			t.Errorf("header missing %q:\n%s", want, out)
		}
	}
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(Config{Writer: &buf, NoColor: true})

	c.PrintSummary(sampleReport())

	out := buf.String()
	for _, want := range []string{
		"salon smoke - FAIL",
		"Total Reqs:    1,200",
		"Success Rate:  97.5%",
		"Peak VUs:      4",
		"Latency Distribution:",
		"list clients",
		"Checks:",
		"status is 2xx",
		"Scenarios:",
		"browse [constant-vus, requests]",
		"Thresholds:",
		"✓ http_req_duration p(95)<500 (actual: 120ms)",
		"✗ [browse] http_req_failed rate<0.01 (actual: 0.025)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestQuietMode(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(Config{Writer: &buf, Quiet: true, NoColor: true})

	c.PrintHeader(Header{Name: "quiet"})
	c.Update(engine.Progress{State: engine.StateRamping})
	c.PrintSummary(sampleReport())

	if got := strings.TrimSpace(buf.String()); got != "FAIL" {
		t.Errorf("quiet output = %q, want %q", got, "FAIL")
	}
}

type fakeProgress struct {
	calls atomic.Int32
}

func (f *fakeProgress) Progress() engine.Progress {
	if f.calls.Add(1) >= 3 {
		return engine.Progress{State: engine.StateDone}
	}
	return engine.Progress{State: engine.StateRamping}
}

func TestWatchStopsAtTerminalState(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(Config{Writer: &buf, NoColor: true})
	src := &fakeProgress{}

	done := make(chan struct{})
	go func() {
		Watch(context.Background(), src, c, 5*time.Millisecond)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after a terminal state")
	}

	if got := strings.Count(buf.String(), "RAMPING"); got != 2 {
		t.Errorf("expected 2 status lines before DONE, got %d", got)
	}
}

func TestWatchStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		Watch(ctx, &fakeProgress{}, NewConsole(Config{Writer: &bytes.Buffer{}}), time.Hour)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Watch ignored a cancelled context")
	}
}

func sampleReport() *engine.Report {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	total := engine.LabelStats{
		Count:     1200,
		Failures:  30,
		ErrorRate: 0.025,
		Bytes:     2048,
		Latency: metrics.LatencyStats{
			Min:   5 * time.Millisecond,
			P50:   40 * time.Millisecond,
			P90:   90 * time.Millisecond,
			P95:   120 * time.Millisecond,
			P99:   300 * time.Millisecond,
			Max:   800 * time.Millisecond,
			Count: 1200,
		},
	}
	label := total
	label.Label = "list clients"

	return &engine.Report{
		RunID:      "run-1",
		Name:       "salon smoke",
		BaseURL:    "http://salon.test",
		AuthMode:   "isolated",
		StartTime:  start,
		EndTime:    start.Add(90 * time.Second),
		Duration:   90 * time.Second,
		State:      engine.StateDone,
		Verdict:    engine.VerdictFail,
		Total:      total,
		Labels:     []engine.LabelStats{label},
		Checks:     []metrics.CheckStats{{Name: "status is 2xx", Passes: 1170, Fails: 30}},
		Iterations: 400,
		PeakVUs:    4,
		Scenarios: []engine.ScenarioReport{{
			Name:       "browse",
			Executor:   "constant-vus",
			Body:       "requests",
			Duration:   90 * time.Second,
			PeakVUs:    4,
			Iterations: 400,
			Total:      total,
		}},
		Thresholds: []engine.ThresholdResult{
			{Result: threshold.Result{
				Selector: "http_req_duration", Expression: "p(95)<500", Statistic: "p(95)",
				Observed: 120, Bound: 500, Unit: "ms", Passed: true,
			}},
			{Scenario: "browse", Result: threshold.Result{
				Selector: "http_req_failed", Expression: "rate<0.01", Statistic: "rate",
				Observed: 0.025, Bound: 0.01, Passed: false,
			}},
		},
		Transitions: []engine.Transition{
			{From: engine.StatePending, To: engine.StateSetup, At: start},
			{From: engine.StateSetup, To: engine.StateRamping, At: start},
			{From: engine.StateRamping, To: engine.StateDraining, At: start.Add(80 * time.Second)},
			{From: engine.StateDraining, To: engine.StateTeardown, At: start.Add(89 * time.Second)},
			{From: engine.StateTeardown, To: engine.StateDone, At: start.Add(90 * time.Second)},
		},
	}
}
