// Package output renders run progress and reports: a live console view, a
// colored end-of-run summary, and JSON, YAML, JUnit and HTML reports.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/wesleyorama2/groomload/internal/performance/engine"
)

// Cursor control for the live view.
const (
	cursorUp  = "\033[%dA"
	clearLine = "\033[2K"

	rule           = "━"
	progressFilled = "█"
	progressEmpty  = "░"
)

// Config contains configuration for Console.
type Config struct {
	Writer      io.Writer
	Quiet       bool
	NoColor     bool
	ForceColors bool
	ForceTTY    bool
}

// Console writes the live view and the final summary.
type Console struct {
	writer io.Writer
	isTTY  bool
	quiet  bool
	colors *ColorScheme

	mu          sync.Mutex
	linesOutput int // lines of the live view currently on screen
}

// NewConsole creates a console writer.
func NewConsole(cfg Config) *Console {
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}

	isTTY := cfg.ForceTTY || isTerminal(cfg.Writer)
	useColors := !cfg.NoColor && (cfg.ForceColors || (isTTY && supportsColors()))

	colors := NoColorScheme()
	if useColors {
		colors = DefaultColorScheme()
	}

	return &Console{
		writer: cfg.Writer,
		isTTY:  isTTY,
		quiet:  cfg.Quiet,
		colors: colors,
	}
}

// IsTTY returns whether the output is a terminal.
func (c *Console) IsTTY() bool {
	return c.isTTY
}

// Header describes a run about to start.
type Header struct {
	Name      string
	RunID     string
	BaseURL   string
	AuthMode  string
	Scenarios []string
}

// PrintHeader prints the run header.
func (c *Console) PrintHeader(h Header) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	line := c.colors.Rule.Sprint(strings.Repeat(rule, 56))
	c.writeln(line)
	c.writeln(fmt.Sprintf("%s - Running", c.colors.Title.Sprint(h.Name)))
	c.writeln(line)
	c.writeln(fmt.Sprintf("Run ID:     %s", c.colors.Dim.Sprint(h.RunID)))
	if h.BaseURL != "" {
		c.writeln(fmt.Sprintf("Target:     %s", c.colors.Value.Sprint(h.BaseURL)))
	}
	c.writeln(fmt.Sprintf("Auth mode:  %s", h.AuthMode))
	c.writeln(fmt.Sprintf("Scenarios:  %s", c.colors.Stage.Sprint(strings.Join(h.Scenarios, ", "))))
	c.writeln("")
}

// Update redraws the live view. On a non-terminal writer it prints one
// status line instead.
func (c *Console) Update(p engine.Progress) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isTTY {
		c.writeln(c.statusLine(p))
		return
	}

	c.clearLive()
	lines := c.renderLive(p)
	c.linesOutput = len(lines)
	for _, line := range lines {
		c.writeln(line)
	}
}

func (c *Console) statusLine(p engine.Progress) string {
	line := fmt.Sprintf("[%s] %s %.0f%% | VUs: %d/%d | Reqs: %d | RPS: %.1f | Errors: %d (%.1f%%) | P95: %s",
		formatDuration(p.Elapsed),
		p.State,
		p.Percent*100,
		p.ActiveVUs,
		p.TargetVUs,
		p.Requests,
		p.RPS,
		p.Failures,
		errorRate(p.Requests, p.Failures)*100,
		formatDurationShort(p.P95))
	if p.Breached {
		line += " | THRESHOLD BREACHED"
	}
	return line
}

func (c *Console) renderLive(p engine.Progress) []string {
	rate := errorRate(p.Requests, p.Failures)
	errColor := c.colors.ErrorRate(rate)

	lines := []string{
		fmt.Sprintf("Progress: %s %s | %s",
			c.colors.Progress.Sprint(progressBar(p.Percent, 40)),
			c.colors.Title.Sprintf("%.0f%%", p.Percent*100),
			c.colors.Dim.Sprint(formatDuration(p.Elapsed))),
		fmt.Sprintf("State:    %s", c.colors.Stage.Sprint(p.State)),
		fmt.Sprintf("VUs:      %s / %d    Iterations: %s",
			c.colors.Value.Sprint(p.ActiveVUs), p.TargetVUs, c.colors.Value.Sprint(formatNumber(p.Iterations))),
		fmt.Sprintf("Requests: %s    RPS: %s",
			c.colors.Value.Sprint(formatNumber(p.Requests)), c.colors.Pass.Sprintf("%.1f", p.RPS)),
		fmt.Sprintf("Errors:   %s (%s)    P95: %s",
			errColor.Sprint(p.Failures), errColor.Sprintf("%.1f%%", rate*100),
			c.colors.Latency.Sprint(formatDurationShort(p.P95))),
	}
	if p.Breached {
		lines = append(lines, c.colors.Fail.Sprint("Threshold breached: the run will be marked FAIL"))
	}
	return lines
}

func (c *Console) clearLive() {
	if c.linesOutput == 0 {
		return
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	for i := 0; i < c.linesOutput; i++ {
		c.write(clearLine + "\n")
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	c.linesOutput = 0
}

// PrintSummary prints the final report.
func (c *Console) PrintSummary(r *engine.Report) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.quiet {
		c.writeln(c.verdictColor(r.Verdict).Sprint(r.Verdict))
		return
	}

	if c.isTTY {
		c.clearLive()
	}

	line := c.colors.Rule.Sprint(strings.Repeat(rule, 56))
	c.writeln("")
	c.writeln(line)
	c.writeln(fmt.Sprintf("%s - %s", c.colors.Title.Sprint(r.Name), c.verdictColor(r.Verdict).Sprint(r.Verdict)))
	c.writeln(line)
	c.writeln("")

	c.writeln(fmt.Sprintf("Run ID:        %s", c.colors.Dim.Sprint(r.RunID)))
	c.writeln(fmt.Sprintf("Duration:      %s", c.colors.Value.Sprint(formatDuration(r.Duration))))
	c.writeln(fmt.Sprintf("Total Reqs:    %s", c.colors.Value.Sprint(formatNumber(r.Total.Count))))
	success := 1 - r.Total.ErrorRate
	c.writeln(fmt.Sprintf("Success Rate:  %s", c.colors.ErrorRate(r.Total.ErrorRate).Sprintf("%.1f%%", success*100)))
	c.writeln(fmt.Sprintf("Iterations:    %s (%d failed)", c.colors.Value.Sprint(formatNumber(r.Iterations)), r.IterationErrors))
	c.writeln(fmt.Sprintf("Peak VUs:      %d", r.PeakVUs))
	if r.Error != "" {
		c.writeln(fmt.Sprintf("Error:         %s", c.colors.Fail.Sprint(r.Error)))
	}
	c.writeln("")

	if r.Total.Count > 0 {
		l := r.Total.Latency
		c.writeln(c.colors.Title.Sprint("Latency Distribution:"))
		c.writeln(fmt.Sprintf("  Min:       %s", formatDurationShort(l.Min)))
		c.writeln(fmt.Sprintf("  P50:       %s", formatDurationShort(l.P50)))
		c.writeln(fmt.Sprintf("  P90:       %s", formatDurationShort(l.P90)))
		c.writeln(fmt.Sprintf("  P95:       %s", formatDurationShort(l.P95)))
		c.writeln(fmt.Sprintf("  P99:       %s", formatDurationShort(l.P99)))
		c.writeln(fmt.Sprintf("  Max:       %s", formatDurationShort(l.Max)))
		c.writeln("")
	}

	if len(r.Labels) > 0 {
		c.writeln(c.colors.Title.Sprint("Requests:"))
		c.printLabels(r.Labels)
		c.writeln("")
	}

	if len(r.Checks) > 0 {
		c.writeln(c.colors.Title.Sprint("Checks:"))
		for _, ch := range r.Checks {
			c.writeln(fmt.Sprintf("  %s %s %s",
				c.colors.PassIcon(ch.Fails == 0),
				ch.Name,
				c.colors.Dim.Sprintf("(%d/%d, %.1f%%)", ch.Passes, ch.Passes+ch.Fails, ch.PassRate()*100)))
		}
		c.writeln("")
	}

	if len(r.Scenarios) > 0 {
		c.writeln(c.colors.Title.Sprint("Scenarios:"))
		for _, s := range r.Scenarios {
			c.writeln(fmt.Sprintf("  %s %s  iterations: %d (%d failed)  peak VUs: %d  reqs: %d  errors: %.1f%%",
				c.colors.Stage.Sprint(s.Name),
				c.colors.Dim.Sprintf("[%s, %s]", s.Executor, s.Body),
				s.Iterations, s.IterationErrors, s.PeakVUs, s.Total.Count, s.Total.ErrorRate*100))
		}
		c.writeln("")
	}

	if len(r.Thresholds) > 0 {
		c.writeln(c.colors.Title.Sprint("Thresholds:"))
		for _, t := range r.Thresholds {
			c.writeln("  " + c.thresholdLine(t))
		}
		c.writeln("")
	}

	if len(r.LiveBreaches) > 0 {
		c.writeln(c.colors.Fail.Sprint("Breached while running:"))
		for _, t := range r.LiveBreaches {
			c.writeln("  " + c.thresholdLine(t))
		}
		c.writeln("")
	}
}

func (c *Console) printLabels(labels []engine.LabelStats) {
	width := len("label")
	for _, l := range labels {
		if len(l.Label) > width {
			width = len(l.Label)
		}
	}

	c.writeln(c.colors.Dim.Sprintf("  %-*s %8s %7s %9s %9s %9s %9s", width, "label", "count", "err%", "p50", "p95", "p99", "max"))
	for _, l := range labels {
		errCol := c.colors.ErrorRate(l.ErrorRate).Sprintf("%6.2f%%", l.ErrorRate*100)
		c.writeln(fmt.Sprintf("  %s %8d %s %9s %9s %9s %9s",
			c.colors.Label.Sprintf("%-*s", width, l.Label),
			l.Count,
			errCol,
			formatDurationShort(l.Latency.P50),
			formatDurationShort(l.Latency.P95),
			formatDurationShort(l.Latency.P99),
			formatDurationShort(l.Latency.Max)))
	}
}

func (c *Console) thresholdLine(t engine.ThresholdResult) string {
	scope := ""
	if t.Scenario != "" {
		scope = c.colors.Dim.Sprintf("[%s] ", t.Scenario)
	}
	line := fmt.Sprintf("%s %s%s %s (actual: %s)",
		c.colors.PassIcon(t.Passed), scope, t.Selector, t.Expression, formatObserved(t.Observed, t.Unit))
	if !t.Passed && t.Message != "" {
		line += " " + c.colors.Fail.Sprint(t.Message)
	}
	return line
}

func (c *Console) verdictColor(v engine.Verdict) *color.Color {
	switch v {
	case engine.VerdictPass:
		return c.colors.Pass
	case engine.VerdictFail:
		return c.colors.Fail
	default:
		return c.colors.Aborted
	}
}

func (c *Console) write(s string) {
	fmt.Fprint(c.writer, s)
}

func (c *Console) writeln(s string) {
	fmt.Fprintln(c.writer, s)
}

func errorRate(requests, failures int64) float64 {
	if requests == 0 {
		return 0
	}
	return float64(failures) / float64(requests)
}

func progressBar(progress float64, width int) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	filled := int(progress * float64(width))
	return "[" + strings.Repeat(progressFilled, filled) + strings.Repeat(progressEmpty, width-filled) + "]"
}

func formatObserved(v float64, unit string) string {
	if unit == "" {
		return fmt.Sprintf("%g", v)
	}
	return fmt.Sprintf("%g%s", v, unit)
}

// formatDuration formats a duration in a human-readable format.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %02ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
}

// formatDurationShort formats a latency.
func formatDurationShort(d time.Duration) string {
	if d < time.Microsecond {
		return "0ms"
	}
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}

// formatNumber formats a number with thousands separators.
func formatNumber(n int64) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	var result strings.Builder
	offset := len(str) % 3
	if offset > 0 {
		result.WriteString(str[:offset])
	}
	for i := offset; i < len(str); i += 3 {
		if result.Len() > 0 {
			result.WriteString(",")
		}
		result.WriteString(str[i : i+3])
	}
	return result.String()
}
