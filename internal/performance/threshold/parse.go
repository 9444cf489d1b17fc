// Package threshold parses and evaluates pass/fail bounds over aggregated
// run metrics.
package threshold

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Built-in metric names a selector may reference. Any other name refers to
// a custom counter, rate or trend.
const (
	MetricDuration        = "http_req_duration"
	MetricFailed          = "http_req_failed"
	MetricRequests        = "http_reqs"
	MetricChecks          = "checks"
	MetricIterations      = "iterations"
	MetricIterationErrors = "iteration_errors"
)

// Statistic is the aggregate a spec compares.
type Statistic int

const (
	StatPercentile Statistic = iota
	StatAvg
	StatMin
	StatMax
	StatMed
	StatRate
	StatCount
)

// IsDuration reports whether the statistic is measured in milliseconds.
func (s Statistic) IsDuration() bool {
	switch s {
	case StatPercentile, StatAvg, StatMin, StatMax, StatMed:
		return true
	}
	return false
}

// Spec is a parsed threshold: (statistic, comparator, bound) over the
// metric and optional label named by the selector.
type Spec struct {
	Selector   string
	Metric     string
	Label      string
	Expression string

	Stat       Statistic
	Percentile float64
	Op         string
	// Bound is in milliseconds for duration statistics.
	Bound float64
}

// StatName renders the statistic the way k6 writes it, e.g. "p(95)".
func (s Spec) StatName() string {
	switch s.Stat {
	case StatPercentile:
		return "p(" + strconv.FormatFloat(s.Percentile, 'f', -1, 64) + ")"
	case StatAvg:
		return "avg"
	case StatMin:
		return "min"
	case StatMax:
		return "max"
	case StatMed:
		return "med"
	case StatRate:
		return "rate"
	default:
		return "count"
	}
}

var (
	selectorRe   = regexp.MustCompile(`^\s*([A-Za-z_][\w.-]*)\s*(?:\{\s*(.*?)\s*\})?\s*$`)
	expressionRe = regexp.MustCompile(`^\s*([A-Za-z]+(?:\(\s*[\d.]+\s*\))?|p[\d.]+)\s*(<=|>=|==|!=|<|>|=)\s*(.+?)\s*$`)
	percentileRe = regexp.MustCompile(`^p\(?\s*([\d.]+)\s*\)?$`)
)

// Parse parses one selector and one assertion expression.
//
// Expressions accept the k6 form ("p(95)<500", "rate<0.01") and the
// spaced form with units ("p95 < 500ms"). Bare duration bounds are
// milliseconds.
func Parse(selector, expression string) (Spec, error) {
	sm := selectorRe.FindStringSubmatch(selector)
	if sm == nil {
		return Spec{}, fmt.Errorf("invalid metric selector %q", selector)
	}

	spec := Spec{
		Selector:   strings.TrimSpace(selector),
		Metric:     sm[1],
		Label:      selectorLabel(sm[2]),
		Expression: strings.TrimSpace(expression),
	}

	em := expressionRe.FindStringSubmatch(expression)
	if em == nil {
		return Spec{}, fmt.Errorf("invalid threshold expression %q", expression)
	}

	stat := strings.ToLower(strings.ReplaceAll(em[1], " ", ""))
	switch stat {
	case "avg":
		spec.Stat = StatAvg
	case "min":
		spec.Stat = StatMin
	case "max":
		spec.Stat = StatMax
	case "med":
		spec.Stat = StatMed
	case "rate":
		spec.Stat = StatRate
	case "count", "value":
		spec.Stat = StatCount
	default:
		pm := percentileRe.FindStringSubmatch(stat)
		if pm == nil {
			return Spec{}, fmt.Errorf("unknown statistic %q in %q", em[1], expression)
		}
		p, err := strconv.ParseFloat(pm[1], 64)
		if err != nil || p < 0 || p > 100 {
			return Spec{}, fmt.Errorf("invalid percentile %q in %q", pm[1], expression)
		}
		spec.Stat = StatPercentile
		spec.Percentile = p
	}

	spec.Op = em[2]
	if spec.Op == "=" {
		spec.Op = "=="
	}

	bound, err := parseBound(em[3], spec.Stat)
	if err != nil {
		return Spec{}, fmt.Errorf("invalid bound in %q: %w", expression, err)
	}
	spec.Bound = bound

	if err := checkCompatible(spec); err != nil {
		return Spec{}, err
	}

	return spec, nil
}

// ParseAll parses a selector → expressions map. Specs come back ordered by
// selector, then by declaration order.
func ParseAll(thresholds map[string][]string) ([]Spec, error) {
	selectors := make([]string, 0, len(thresholds))
	for sel := range thresholds {
		selectors = append(selectors, sel)
	}
	sort.Strings(selectors)

	var specs []Spec
	for _, sel := range selectors {
		for _, expr := range thresholds[sel] {
			spec, err := Parse(sel, expr)
			if err != nil {
				return nil, err
			}
			specs = append(specs, spec)
		}
	}
	return specs, nil
}

// selectorLabel accepts "{label}", "{name:label}" and k6's "{group:::label}".
func selectorLabel(raw string) string {
	if i := strings.LastIndex(raw, ":"); i >= 0 {
		raw = raw[i+1:]
	}
	return strings.Trim(strings.TrimSpace(raw), `"'`)
}

func parseBound(raw string, stat Statistic) (float64, error) {
	raw = strings.TrimSpace(raw)

	if stat.IsDuration() {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return v, nil
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return 0, err
		}
		return float64(d) / float64(time.Millisecond), nil
	}

	if strings.HasSuffix(raw, "%") {
		v, err := strconv.ParseFloat(strings.TrimSuffix(raw, "%"), 64)
		if err != nil {
			return 0, err
		}
		return v / 100, nil
	}
	return strconv.ParseFloat(raw, 64)
}

func checkCompatible(spec Spec) error {
	switch spec.Metric {
	case MetricDuration:
		if spec.Stat == StatRate {
			return fmt.Errorf("%s does not support rate", spec.Metric)
		}
	case MetricFailed, MetricChecks, MetricRequests, MetricIterations, MetricIterationErrors:
		if spec.Stat.IsDuration() {
			return fmt.Errorf("%s only supports rate and count, got %s", spec.Metric, spec.StatName())
		}
	}
	return nil
}
