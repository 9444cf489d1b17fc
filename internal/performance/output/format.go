package output

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/groomload/internal/performance/engine"
)

// Format is a report file format.
type Format string

const (
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatJUnit Format = "junit"
	FormatHTML  Format = "html"
)

// ParseFormat accepts a format name ("yml" and "xml" are aliases).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "junit", "xml":
		return FormatJUnit, nil
	case "html", "htm":
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("unknown report format %q (want json, yaml, junit or html)", s)
	}
}

// FormatFromPath infers the format from a file extension, defaulting to JSON.
func FormatFromPath(path string) Format {
	f, err := ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		return FormatJSON
	}
	return f
}

// Write renders r to w in the given format.
func Write(w io.Writer, r *engine.Report, format Format) error {
	switch format {
	case FormatJSON, "":
		return WriteJSON(w, r)
	case FormatYAML:
		return WriteYAML(w, r)
	case FormatJUnit:
		return WriteJUnit(w, r)
	case FormatHTML:
		return WriteHTML(w, r)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

// WriteFile renders r into path, inferring the format from the extension.
func WriteFile(path string, r *engine.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if err := Write(f, r, FormatFromPath(path)); err != nil {
		f.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	return f.Close()
}

// WriteJSON writes the report as indented JSON.
func WriteJSON(w io.Writer, r *engine.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteYAML writes the report as YAML with the same keys as the JSON form.
func WriteYAML(w io.Writer, r *engine.Report) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

// JUnitTestSuites represents the root element containing all test suites.
type JUnitTestSuites struct {
	XMLName    xml.Name         `xml:"testsuites"`
	Name       string           `xml:"name,attr"`
	Tests      int              `xml:"tests,attr"`
	Failures   int              `xml:"failures,attr"`
	Errors     int              `xml:"errors,attr"`
	Time       float64          `xml:"time,attr"`
	TestSuites []JUnitTestSuite `xml:"testsuite"`
}

// JUnitTestSuite represents a JUnit test suite.
type JUnitTestSuite struct {
	Name      string          `xml:"name,attr"`
	Tests     int             `xml:"tests,attr"`
	Failures  int             `xml:"failures,attr"`
	Errors    int             `xml:"errors,attr"`
	Time      float64         `xml:"time,attr"`
	Timestamp string          `xml:"timestamp,attr"`
	TestCases []JUnitTestCase `xml:"testcase"`
	SystemErr string          `xml:"system-err,omitempty"`
}

// JUnitTestCase represents a JUnit test case.
type JUnitTestCase struct {
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Failure   *JUnitFailure `xml:"failure,omitempty"`
	Error     *JUnitFailure `xml:"error,omitempty"`
}

// JUnitFailure represents a JUnit test failure.
type JUnitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Content string `xml:",chardata"`
}

// WriteJUnit writes one test case per threshold so CI systems can gate on
// them. An aborted run adds an errored "run" test case.
func WriteJUnit(w io.Writer, r *engine.Report) error {
	doc := junitReport(r)
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	if _, err := w.Write(out); err != nil {
		return err
	}
	_, err = io.WriteString(w, "\n")
	return err
}

func junitReport(r *engine.Report) *JUnitTestSuites {
	timestamp := r.StartTime.Format("2006-01-02T15:04:05Z07:00")
	seconds := r.Duration.Seconds()

	thresholds := JUnitTestSuite{Name: "thresholds", Time: seconds, Timestamp: timestamp}
	for _, t := range r.Thresholds {
		class := "groomload.thresholds"
		if t.Scenario != "" {
			class += "." + t.Scenario
		}
		tc := JUnitTestCase{Name: t.Selector + " " + t.Expression, Classname: class}
		if !t.Passed {
			tc.Failure = &JUnitFailure{
				Message: fmt.Sprintf("observed %s", formatObserved(t.Observed, t.Unit)),
				Type:    "ThresholdBreach",
				Content: t.Message,
			}
			thresholds.Failures++
		}
		thresholds.TestCases = append(thresholds.TestCases, tc)
	}

	if r.Verdict == engine.VerdictAborted {
		thresholds.TestCases = append(thresholds.TestCases, JUnitTestCase{
			Name:      "run",
			Classname: "groomload.run",
			Error:     &JUnitFailure{Message: "run aborted", Type: "Aborted", Content: r.Error},
		})
		thresholds.Errors++
	}
	thresholds.Tests = len(thresholds.TestCases)

	doc := &JUnitTestSuites{
		Name:       r.Name,
		Time:       seconds,
		TestSuites: []JUnitTestSuite{thresholds},
	}
	for _, s := range doc.TestSuites {
		doc.Tests += s.Tests
		doc.Failures += s.Failures
		doc.Errors += s.Errors
	}
	return doc
}
