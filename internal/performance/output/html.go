package output

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/wesleyorama2/groomload/internal/performance/engine"
)

type htmlData struct {
	*engine.Report
	TimeSeriesJSON template.JS
}

// timePoint is one time-series point as exported to the page script.
type timePoint struct {
	Timestamp string  `json:"timestamp"`
	RPS       float64 `json:"rps"`
	ErrorRate float64 `json:"errorRate"`
	P50       float64 `json:"p50"`
	P95       float64 `json:"p95"`
	P99       float64 `json:"p99"`
	ActiveVUs int     `json:"activeVUs"`
}

var htmlTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"duration": formatDuration,
	"latency":  formatDurationShort,
	"number":   formatNumber,
	"bytes":    formatBytes,
	"percent":  func(f float64) string { return fmt.Sprintf("%.2f%%", f*100) },
	"observed": formatObserved,
	"verdict":  verdictClass,
}).Parse(reportHTML))

// WriteHTML renders a self-contained HTML page for the report.
func WriteHTML(w io.Writer, r *engine.Report) error {
	if r == nil {
		return fmt.Errorf("report cannot be nil")
	}

	series, err := timeSeriesJSON(r)
	if err != nil {
		return fmt.Errorf("failed to encode time series: %w", err)
	}

	return htmlTemplate.Execute(w, htmlData{Report: r, TimeSeriesJSON: series})
}

func timeSeriesJSON(r *engine.Report) (template.JS, error) {
	points := make([]timePoint, 0, len(r.TimeSeries))
	for _, b := range r.TimeSeries {
		if b == nil {
			continue
		}
		points = append(points, timePoint{
			Timestamp: b.Timestamp.Format(time.RFC3339Nano),
			RPS:       b.IntervalRPS,
			ErrorRate: b.IntervalErrorRate,
			P50:       ms(b.LatencyP50),
			P95:       ms(b.LatencyP95),
			P99:       ms(b.LatencyP99),
			ActiveVUs: b.ActiveVUs,
		})
	}
	raw, err := json.Marshal(points)
	if err != nil {
		return "", err
	}
	return template.JS(raw), nil
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func verdictClass(v engine.Verdict) string {
	switch v {
	case engine.VerdictPass:
		return "pass"
	case engine.VerdictFail:
		return "fail"
	default:
		return "aborted"
	}
}

func formatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

const reportHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Name}} - groomload report</title>
<style>
body { font-family: -apple-system, "Segoe UI", Helvetica, Arial, sans-serif; margin: 2rem; color: #222; }
h1 { margin-bottom: 0.2rem; }
.meta { color: #666; margin-bottom: 1.5rem; }
.verdict { display: inline-block; padding: 0.3rem 0.8rem; border-radius: 4px; color: #fff; font-weight: bold; }
.verdict.pass { background: #2e7d32; }
.verdict.fail { background: #c62828; }
.verdict.aborted { background: #ef6c00; }
table { border-collapse: collapse; margin-bottom: 1.5rem; min-width: 60%; }
th, td { border-bottom: 1px solid #ddd; padding: 0.35rem 0.8rem; text-align: left; }
th { background: #f5f5f5; }
td.num { text-align: right; font-variant-numeric: tabular-nums; }
tr.failed td { color: #c62828; }
.cards { display: flex; gap: 1rem; margin-bottom: 1.5rem; flex-wrap: wrap; }
.card { border: 1px solid #ddd; border-radius: 4px; padding: 0.6rem 1rem; }
.card .value { font-size: 1.4rem; font-weight: bold; }
.card .label { color: #666; font-size: 0.85rem; }
</style>
</head>
<body>
<h1>{{.Name}}</h1>
<div class="meta">
  run {{.RunID}}{{if .BaseURL}} against {{.BaseURL}}{{end}} &middot; auth {{.AuthMode}} &middot;
  {{.StartTime.Format "2006-01-02 15:04:05"}} &middot; {{duration .Duration}}
</div>
<p><span class="verdict {{verdict .Verdict}}">{{.Verdict}}</span>{{if .Error}} {{.Error}}{{end}}</p>
{{if .Description}}<p>{{.Description}}</p>{{end}}

<div class="cards">
  <div class="card"><div class="value">{{number .Total.Count}}</div><div class="label">requests</div></div>
  <div class="card"><div class="value">{{percent .Total.ErrorRate}}</div><div class="label">error rate</div></div>
  <div class="card"><div class="value">{{latency .Total.Latency.P95}}</div><div class="label">p95 latency</div></div>
  <div class="card"><div class="value">{{number .Iterations}}</div><div class="label">iterations</div></div>
  <div class="card"><div class="value">{{.PeakVUs}}</div><div class="label">peak VUs</div></div>
  <div class="card"><div class="value">{{bytes .Total.Bytes}}</div><div class="label">received</div></div>
</div>

{{if .Thresholds}}
<h2>Thresholds</h2>
<table>
  <tr><th></th><th>Scope</th><th>Selector</th><th>Expression</th><th>Observed</th></tr>
  {{range .Thresholds}}
  <tr{{if not .Passed}} class="failed"{{end}}>
    <td>{{if .Passed}}&#10003;{{else}}&#10007;{{end}}</td>
    <td>{{if .Scenario}}{{.Scenario}}{{else}}run{{end}}</td>
    <td>{{.Selector}}</td>
    <td>{{.Expression}}</td>
    <td class="num">{{observed .Observed .Unit}}</td>
  </tr>
  {{end}}
</table>
{{end}}

{{if .LiveBreaches}}
<h2>Breached while running</h2>
<table>
  <tr><th>Scope</th><th>Selector</th><th>Expression</th><th>Observed</th></tr>
  {{range .LiveBreaches}}
  <tr class="failed"><td>{{if .Scenario}}{{.Scenario}}{{else}}run{{end}}</td><td>{{.Selector}}</td><td>{{.Expression}}</td><td class="num">{{observed .Observed .Unit}}</td></tr>
  {{end}}
</table>
{{end}}

{{if .Labels}}
<h2>Requests</h2>
<table>
  <tr><th>Label</th><th>Count</th><th>Failures</th><th>Error rate</th><th>p50</th><th>p95</th><th>p99</th><th>Max</th></tr>
  {{range .Labels}}
  <tr>
    <td>{{.Label}}</td>
    <td class="num">{{number .Count}}</td>
    <td class="num">{{number .Failures}}</td>
    <td class="num">{{percent .ErrorRate}}</td>
    <td class="num">{{latency .Latency.P50}}</td>
    <td class="num">{{latency .Latency.P95}}</td>
    <td class="num">{{latency .Latency.P99}}</td>
    <td class="num">{{latency .Latency.Max}}</td>
  </tr>
  {{end}}
</table>
{{end}}

{{if .Checks}}
<h2>Checks</h2>
<table>
  <tr><th>Check</th><th>Passes</th><th>Fails</th></tr>
  {{range .Checks}}
  <tr{{if .Fails}} class="failed"{{end}}><td>{{.Name}}</td><td class="num">{{.Passes}}</td><td class="num">{{.Fails}}</td></tr>
  {{end}}
</table>
{{end}}

<h2>Scenarios</h2>
<table>
  <tr><th>Name</th><th>Executor</th><th>Body</th><th>Duration</th><th>Peak VUs</th><th>Iterations</th><th>Requests</th><th>Error rate</th></tr>
  {{range .Scenarios}}
  <tr>
    <td>{{.Name}}</td>
    <td>{{.Executor}}</td>
    <td>{{.Body}}</td>
    <td class="num">{{duration .Duration}}</td>
    <td class="num">{{.PeakVUs}}</td>
    <td class="num">{{number .Iterations}}</td>
    <td class="num">{{number .Total.Count}}</td>
    <td class="num">{{percent .Total.ErrorRate}}</td>
  </tr>
  {{end}}
</table>

{{if .Custom}}
<h2>Custom metrics</h2>
<table>
  <tr><th>Name</th><th>Type</th><th>Value</th></tr>
  {{range .Custom}}
  <tr><td>{{.Name}}</td><td>{{.Type}}</td><td class="num">{{printf "%g" .Value}}</td></tr>
  {{end}}
</table>
{{end}}

<h2>Timeline</h2>
<table>
  <tr><th>State</th><th>At</th></tr>
  {{range .Transitions}}
  <tr><td>{{.To}}</td><td>{{.At.Format "15:04:05.000"}}</td></tr>
  {{end}}
</table>

<script type="application/json" id="time-series">{{.TimeSeriesJSON}}</script>
</body>
</html>
`
