package engine

import (
	"time"

	"github.com/wesleyorama2/groomload/internal/performance/metrics"
	"github.com/wesleyorama2/groomload/internal/performance/threshold"
)

// Verdict is the outcome of a run.
type Verdict string

const (
	VerdictPass    Verdict = "PASS"
	VerdictFail    Verdict = "FAIL"
	VerdictAborted Verdict = "ABORTED"
)

// Report contains the complete results of a run.
type Report struct {
	// Run metadata
	RunID       string        `json:"runId"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	BaseURL     string        `json:"baseUrl,omitempty"`
	AuthMode    string        `json:"authMode"`
	StartTime   time.Time     `json:"startTime"`
	EndTime     time.Time     `json:"endTime"`
	Duration    time.Duration `json:"duration"`

	State   State   `json:"state"`
	Verdict Verdict `json:"verdict"`
	Error   string  `json:"error,omitempty"`

	// Aggregated request metrics
	Total           LabelStats           `json:"total"`
	Labels          []LabelStats         `json:"labels,omitempty"`
	Checks          []metrics.CheckStats `json:"checks,omitempty"`
	Iterations      int64                `json:"iterations"`
	IterationErrors int64                `json:"iterationErrors"`
	PeakVUs         int                  `json:"peakVUs"`
	Custom          []CustomMetric       `json:"custom,omitempty"`

	Scenarios []ScenarioReport `json:"scenarios"`

	// Threshold evaluation over the whole run, global specs first.
	Thresholds   []ThresholdResult `json:"thresholds,omitempty"`
	LiveBreaches []ThresholdResult `json:"liveBreaches,omitempty"`

	TimeSeries  []*metrics.TimeBucket `json:"timeSeries,omitempty"`
	Transitions []Transition          `json:"transitions"`
}

// LabelStats contains the statistics of one label.
type LabelStats struct {
	Label     string               `json:"label"`
	Count     int64                `json:"count"`
	Failures  int64                `json:"failures"`
	ErrorRate float64              `json:"errorRate"`
	Bytes     int64                `json:"bytes"`
	Latency   metrics.LatencyStats `json:"latency"`
}

// ScenarioReport contains the results of a single scenario.
type ScenarioReport struct {
	Name            string             `json:"name"`
	Executor        string             `json:"executor"`
	Body            string             `json:"body"`
	StartTime       time.Time          `json:"startTime,omitempty"`
	Duration        time.Duration      `json:"duration"`
	PeakVUs         int                `json:"peakVUs"`
	Iterations      int64              `json:"iterations"`
	IterationErrors int64              `json:"iterationErrors"`
	Total           LabelStats         `json:"total"`
	Labels          []LabelStats       `json:"labels,omitempty"`
	Thresholds      []threshold.Result `json:"thresholds,omitempty"`
}

// ThresholdResult is a threshold result tagged with its scenario. Scenario
// is empty for run-wide thresholds.
type ThresholdResult struct {
	Scenario string `json:"scenario,omitempty"`
	threshold.Result
}

// CustomMetric is the final value of a counter, rate or trend recorded by a
// scenario body.
type CustomMetric struct {
	Name  string  `json:"name"`
	Type  string  `json:"type"`
	Value float64 `json:"value"`
	Count int64   `json:"count,omitempty"`
}

// Passed reports whether the verdict is PASS.
func (r *Report) Passed() bool {
	return r.Verdict == VerdictPass
}

// ExitCode maps the verdict to a process exit status.
func (r *Report) ExitCode() int {
	switch r.Verdict {
	case VerdictPass:
		return 0
	case VerdictFail:
		return 1
	default:
		return 2
	}
}

// Violations returns every failed threshold, run-wide and scenario-scoped.
func (r *Report) Violations() []ThresholdResult {
	var out []ThresholdResult
	for _, t := range r.Thresholds {
		if !t.Passed {
			out = append(out, t)
		}
	}
	return out
}

// Scenario returns the report of the named scenario.
func (r *Report) Scenario(name string) (ScenarioReport, bool) {
	for _, s := range r.Scenarios {
		if s.Name == name {
			return s, true
		}
	}
	return ScenarioReport{}, false
}

// Label returns the stats of one label.
func (r *Report) Label(label string) (LabelStats, bool) {
	for _, l := range r.Labels {
		if l.Label == label {
			return l, true
		}
	}
	return LabelStats{}, false
}

func (e *Engine) buildReport(collector *metrics.Collector, ev *evaluation, breaches []ThresholdResult, runErr error) *Report {
	e.mu.RLock()
	state := e.state
	start := e.startTime
	transitions := make([]Transition, len(e.transitions))
	copy(transitions, e.transitions)
	e.mu.RUnlock()

	end := time.Now()
	r := &Report{
		RunID:           e.runID,
		Name:            e.config.Name,
		Description:     e.config.Description,
		BaseURL:         e.config.Settings.BaseURL,
		AuthMode:        string(e.mode),
		StartTime:       start,
		EndTime:         end,
		Duration:        end.Sub(start),
		State:           state,
		Total:           labelStats(collector.Total()),
		Labels:          collectLabels(collector),
		Checks:          collector.Checks(),
		Iterations:      collector.Iterations(),
		IterationErrors: collector.IterationErrors(),
		Custom:          customMetrics(collector),
		LiveBreaches:    breaches,
		TimeSeries:      collector.TimeSeries(),
		Transitions:     transitions,
	}
	if runErr != nil {
		r.Error = runErr.Error()
	}

	if ev != nil {
		for _, res := range ev.global {
			r.Thresholds = append(r.Thresholds, ThresholdResult{Result: res})
		}
	}

	for _, sr := range e.runners {
		scoped := collector.Scope(sr.name)
		s := ScenarioReport{
			Name:            sr.name,
			Executor:        string(sr.exec.Type()),
			Body:            sr.body,
			StartTime:       sr.started,
			Iterations:      scoped.Iterations(),
			IterationErrors: scoped.IterationErrors(),
			Total:           labelStats(scoped.Total()),
			Labels:          collectLabels(scoped),
		}
		if !sr.started.IsZero() && !sr.finished.IsZero() {
			s.Duration = sr.finished.Sub(sr.started)
		}
		if sr.scheduler != nil {
			s.PeakVUs = sr.scheduler.PeakVUs()
			r.PeakVUs += s.PeakVUs
		}
		if ev != nil {
			s.Thresholds = ev.scenarios[sr.name]
			for _, res := range s.Thresholds {
				r.Thresholds = append(r.Thresholds, ThresholdResult{Scenario: sr.name, Result: res})
			}
		}
		r.Scenarios = append(r.Scenarios, s)
	}

	r.Verdict = verdict(state, r.Thresholds, breaches)
	return r
}

// verdict is ABORTED for an aborted run, otherwise FAIL when any threshold
// failed at the end or breached while running.
func verdict(state State, results []ThresholdResult, breaches []ThresholdResult) Verdict {
	if state != StateDone {
		return VerdictAborted
	}
	if len(breaches) > 0 {
		return VerdictFail
	}
	for _, res := range results {
		if !res.Passed {
			return VerdictFail
		}
	}
	return VerdictPass
}

func labelStats(v *metrics.View) LabelStats {
	return LabelStats{
		Label:     v.Label,
		Count:     v.Count(),
		Failures:  v.Failures(),
		ErrorRate: v.Rate(),
		Bytes:     v.Bytes(),
		Latency:   v.Latency(),
	}
}

func collectLabels(c *metrics.Collector) []LabelStats {
	var out []LabelStats
	for _, label := range c.Labels() {
		if v, ok := c.Snapshot(label); ok {
			out = append(out, labelStats(v))
		}
	}
	return out
}

func customMetrics(c *metrics.Collector) []CustomMetric {
	var out []CustomMetric
	counters, rates, trends := c.CustomMetricNames()
	for _, name := range counters {
		if m, ok := c.LookupCounter(name); ok {
			out = append(out, CustomMetric{Name: name, Type: "counter", Value: float64(m.Value())})
		}
	}
	for _, name := range rates {
		if m, ok := c.LookupRate(name); ok {
			out = append(out, CustomMetric{Name: name, Type: "rate", Value: m.Value(), Count: m.Total()})
		}
	}
	for _, name := range trends {
		if m, ok := c.LookupTrend(name); ok {
			v := m.View()
			out = append(out, CustomMetric{Name: name, Type: "trend", Value: float64(v.Mean()) / float64(time.Millisecond), Count: v.Count()})
		}
	}
	return out
}
