package output

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/groomload/internal/performance/engine"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"json", FormatJSON, false},
		{"JSON", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"yml", FormatYAML, false},
		{"junit", FormatJUnit, false},
		{"xml", FormatJUnit, false},
		{" html ", FormatHTML, false},
		{"htm", FormatHTML, false},
		{"csv", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatFromPath(t *testing.T) {
	assert.Equal(t, FormatJSON, FormatFromPath("out/report.json"))
	assert.Equal(t, FormatYAML, FormatFromPath("report.yml"))
	assert.Equal(t, FormatJUnit, FormatFromPath("junit.xml"))
	assert.Equal(t, FormatHTML, FormatFromPath("report.HTML"))
	assert.Equal(t, FormatJSON, FormatFromPath("report"))
	assert.Equal(t, FormatJSON, FormatFromPath("report.txt"))
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleReport()))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "run-1", doc["runId"])
	assert.Equal(t, "FAIL", doc["verdict"])
	assert.Equal(t, "DONE", doc["state"])

	thresholds, ok := doc["thresholds"].([]any)
	require.True(t, ok)
	require.Len(t, thresholds, 2)
	scoped := thresholds[1].(map[string]any)
	assert.Equal(t, "browse", scoped["scenario"])
	assert.Equal(t, "http_req_failed", scoped["selector"])
	assert.Equal(t, false, scoped["passed"])
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteYAML(&buf, sampleReport()))

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "run-1", doc["runId"])
	assert.Equal(t, "FAIL", doc["verdict"])
	assert.Contains(t, doc, "scenarios")
	assert.Contains(t, doc, "transitions")
}

func TestWriteJUnit(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJUnit(&buf, sampleReport()))
	assert.True(t, strings.HasPrefix(buf.String(), "<?xml"))

	var doc JUnitTestSuites
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "salon smoke", doc.Name)
	assert.Equal(t, 2, doc.Tests)
	assert.Equal(t, 1, doc.Failures)
	assert.Equal(t, 0, doc.Errors)

	require.Len(t, doc.TestSuites, 1)
	cases := doc.TestSuites[0].TestCases
	require.Len(t, cases, 2)
	assert.Equal(t, "groomload.thresholds", cases[0].Classname)
	assert.Nil(t, cases[0].Failure)
	assert.Equal(t, "groomload.thresholds.browse", cases[1].Classname)
	require.NotNil(t, cases[1].Failure)
	assert.Equal(t, "ThresholdBreach", cases[1].Failure.Type)
	assert.Equal(t, "observed 0.025", cases[1].Failure.Message)
}

func TestWriteJUnitAborted(t *testing.T) {
	r := sampleReport()
	r.Verdict = engine.VerdictAborted
	r.State = engine.StateAborted
	r.Error = "setup failed"

	var buf bytes.Buffer
	require.NoError(t, WriteJUnit(&buf, r))

	var doc JUnitTestSuites
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, 3, doc.Tests)
	assert.Equal(t, 1, doc.Errors)

	last := doc.TestSuites[0].TestCases[2]
	assert.Equal(t, "run", last.Name)
	require.NotNil(t, last.Error)
	assert.Equal(t, "setup failed", last.Error.Content)
}

func TestWriteHTML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, sampleReport()))

	out := buf.String()
	assert.Contains(t, out, "<title>salon smoke - groomload report</title>")
	assert.Contains(t, out, `class="verdict fail"`)
	assert.Contains(t, out, "list clients")
	assert.Contains(t, out, "http_req_failed")
	assert.Contains(t, out, `id="time-series"`)
	assert.Contains(t, out, "2.00 KB")
}

func TestWriteHTMLEscapes(t *testing.T) {
	r := sampleReport()
	r.Name = "<script>alert(1)</script>"

	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, r))
	assert.NotContains(t, buf.String(), "<script>alert(1)</script>")
}

func TestWriteHTMLNil(t *testing.T) {
	assert.Error(t, WriteHTML(&bytes.Buffer{}, nil))
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	r := sampleReport()

	for _, name := range []string{"report.json", "report.yaml", "junit.xml", "report.html"} {
		path := filepath.Join(dir, name)
		require.NoError(t, WriteFile(path, r), name)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.NotEmpty(t, data, name)
	}

	err := WriteFile(filepath.Join(dir, "missing", "report.json"), r)
	assert.Error(t, err)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.50 KB", formatBytes(1536))
	assert.Equal(t, "2.00 MB", formatBytes(2*1024*1024))
}
