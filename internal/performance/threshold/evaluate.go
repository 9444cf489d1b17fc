package threshold

import (
	"fmt"
	"math"
	"time"
)

// Sample is the read-only aggregate a spec is evaluated against.
type Sample interface {
	// Empty reports that nothing was recorded, as opposed to a zero
	// statistic over recorded values.
	Empty() bool
	Count() int64
	Rate() float64
	Percentile(p float64) time.Duration
	Mean() time.Duration
	Min() time.Duration
	Max() time.Duration
}

// Source resolves a metric and label to a Sample. It returns an empty
// sample when nothing was recorded for the pair.
type Source interface {
	Sample(metric, label string) Sample
}

// Result is the outcome of one spec.
type Result struct {
	Selector   string  `json:"selector"`
	Expression string  `json:"expression"`
	Statistic  string  `json:"statistic"`
	Observed   float64 `json:"observed"`
	Bound      float64 `json:"bound"`
	Unit       string  `json:"unit,omitempty"`
	Passed     bool    `json:"passed"`
	Message    string  `json:"message,omitempty"`
}

// Evaluate evaluates every spec against src. It never stops at the first
// failure.
func Evaluate(specs []Spec, src Source) []Result {
	results := make([]Result, 0, len(specs))
	for _, spec := range specs {
		results = append(results, evaluateOne(spec, src.Sample(spec.Metric, spec.Label)))
	}
	return results
}

// Violations returns the failed results, in order.
func Violations(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

// AllPassed reports whether every result passed.
func AllPassed(results []Result) bool {
	return len(Violations(results)) == 0
}

func evaluateOne(spec Spec, s Sample) Result {
	r := Result{
		Selector:   spec.Selector,
		Expression: spec.Expression,
		Statistic:  spec.StatName(),
		Bound:      spec.Bound,
	}
	if spec.Stat.IsDuration() {
		r.Unit = "ms"
	}

	r.Observed = observe(spec, s)
	r.Passed = compareValues(r.Observed, spec.Op, spec.Bound)
	if !r.Passed {
		r.Message = fmt.Sprintf("%s is %s%s, threshold: %s %s%s",
			r.Statistic, formatValue(r.Observed), r.Unit, spec.Op, formatValue(spec.Bound), r.Unit)
	}
	return r
}

func observe(spec Spec, s Sample) float64 {
	switch spec.Stat {
	case StatPercentile:
		return millis(s.Percentile(spec.Percentile))
	case StatMed:
		return millis(s.Percentile(50))
	case StatAvg:
		return millis(s.Mean())
	case StatMin:
		return millis(s.Min())
	case StatMax:
		return millis(s.Max())
	case StatRate:
		return s.Rate()
	default:
		return float64(s.Count())
	}
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func formatValue(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.4g", v)
}

// compareValues compares two values using the given operator.
func compareValues(actual float64, op string, threshold float64) bool {
	switch op {
	case "<":
		return actual < threshold
	case "<=":
		return actual <= threshold
	case ">":
		return actual > threshold
	case ">=":
		return actual >= threshold
	case "==", "=":
		return actual == threshold
	case "!=":
		return actual != threshold
	default:
		return false
	}
}
