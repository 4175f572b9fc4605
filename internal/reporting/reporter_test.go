package reporting_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/codebouncer/api/schemas"
	"github.com/xkilldash9x/codebouncer/internal/reporting"
)

const testToolVersion = "v1.0.0-test"

func TestNew_Stdout(t *testing.T) {
	for _, format := range []string{reporting.FormatSARIF, reporting.FormatJSON, reporting.FormatText} {
		t.Run(format, func(t *testing.T) {
			r, err := reporting.New(format, "stdout", testToolVersion)
			require.NoError(t, err)
			assert.NotNil(t, r)
		})
	}
}

func TestNew_File(t *testing.T) {
	tests := []struct {
		format string
		check  func(t *testing.T, raw []byte)
	}{
		{reporting.FormatSARIF, func(t *testing.T, raw []byte) {
			assert.Contains(t, string(raw), `"version": "2.1.0"`)
		}},
		{reporting.FormatJSON, func(t *testing.T, raw []byte) {
			var doc reporting.JSONReport
			require.NoError(t, json.Unmarshal(raw, &doc))
			assert.Len(t, doc.Results, 1)
		}},
		{reporting.FormatText, func(t *testing.T, raw []byte) {
			assert.Contains(t, string(raw), "Scan scan-1")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "report."+tt.format)
			r, err := reporting.New(tt.format, path, testToolVersion)
			require.NoError(t, err)
			assert.FileExists(t, path)

			require.NoError(t, r.Write(&schemas.ResultEnvelope{ScanID: "scan-1"}))
			require.NoError(t, r.Close())

			raw, err := os.ReadFile(path)
			require.NoError(t, err)
			tt.check(t, raw)
		})
	}
}

func TestNew_UnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.xml")
	r, err := reporting.New("xml", path, testToolVersion)
	require.Error(t, err)
	assert.Nil(t, r)
	assert.Contains(t, err.Error(), "unsupported output format: xml")
	assert.NoFileExists(t, path, "no file is created for an unknown format")

	w := newMockWriter()
	_, err = reporting.NewWithWriter("xml", w, testToolVersion)
	require.Error(t, err)
	assert.True(t, w.Closed, "the writer is released on failure")
}

func TestNew_FileCreationFailure(t *testing.T) {
	r, err := reporting.New(reporting.FormatJSON, t.TempDir(), testToolVersion)
	assert.Error(t, err)
	assert.Nil(t, r)
	assert.Contains(t, err.Error(), "failed to create output file")
}

func sampleEnvelope() *schemas.ResultEnvelope {
	completed := time.Date(2025, 12, 1, 10, 5, 0, 0, time.UTC)
	return &schemas.ResultEnvelope{
		ScanID:    "scan-1",
		Timestamp: time.Date(2025, 12, 1, 10, 6, 0, 0, time.UTC),
		Scan: &schemas.ScanRecord{
			ID:            "scan-1",
			RepoID:        3,
			Status:        schemas.ScanStatusCompleted,
			FilesScanned:  12,
			FindingsCount: 3,
			StartedAt:     time.Date(2025, 12, 1, 10, 0, 0, 0, time.UTC),
			CompletedAt:   &completed,
		},
		Findings: []schemas.Finding{
			{FilePath: "b.py", LineNumber: line(9), Severity: schemas.SeverityLow, VulnType: "Weak Hash", Description: "md5", Confidence: 0.4, ModelUsed: "flash"},
			{FilePath: "a.py", Severity: schemas.SeverityCritical, VulnType: "Command Injection", Description: "os.system with input", CWEID: "CWE-78", ModelUsed: "pro",
				FixSuggestion: "subprocess.run([...])\nwith shell=False", AttackVector: "query parameter",
				CommitHash: "0123456789abcdef0123456789abcdef01234567", CommitAuthor: "Alice", CommitDate: "2025-11-03"},
			{FilePath: "a.py", LineNumber: line(3), Severity: schemas.SeverityCritical, VulnType: "SQL Injection", Description: "concat", ModelUsed: "pro"},
		},
	}
}

func TestJSONReporter(t *testing.T) {
	w := newMockWriter()
	r := reporting.NewJSONReporter(w)

	require.NoError(t, r.Write(sampleEnvelope()))
	require.NoError(t, r.Write(&schemas.ResultEnvelope{ScanID: "scan-2"}))
	require.NoError(t, r.Close())
	assert.True(t, w.Closed)

	var doc reporting.JSONReport
	require.NoError(t, json.Unmarshal(w.Buffer.Bytes(), &doc))
	assert.Equal(t, reporting.ToolName, doc.Tool)
	require.Len(t, doc.Results, 2)
	assert.Equal(t, sampleEnvelope(), doc.Results[0])
	assert.Contains(t, w.Buffer.String(), `"findings": []`, "empty findings encode as an array")

	t.Run("empty report", func(t *testing.T) {
		w := newMockWriter()
		require.NoError(t, reporting.NewJSONReporter(w).Close())
		assert.Contains(t, w.Buffer.String(), `"results": []`)
	})

	t.Run("write failure", func(t *testing.T) {
		w := newMockWriter()
		w.FailWrite = true
		err := reporting.NewJSONReporter(w).Close()
		assert.ErrorContains(t, err, "failed to encode JSON output")
		assert.True(t, w.Closed)
	})
}

func TestTextReporter(t *testing.T) {
	w := newMockWriter()
	r := reporting.NewTextReporter(w)

	require.NoError(t, r.Write(sampleEnvelope()))
	require.NoError(t, r.Write(&schemas.ResultEnvelope{
		ScanID: "scan-2",
		Scan:   &schemas.ScanRecord{Status: schemas.ScanStatusFailed, ErrorMessage: "clone failed"},
	}))
	require.NoError(t, r.Close())
	assert.True(t, w.Closed)

	out := w.Buffer.String()
	assert.Contains(t, out, "Scan scan-1 [COMPLETED] files scanned: 12")
	assert.Contains(t, out, "[CRITICAL] a.py  Command Injection (CWE-78)  confidence=0.00 model=pro")
	assert.Contains(t, out, "    Attack vector: query parameter\n")
	assert.Contains(t, out, "    Fix: subprocess.run([...])\n         with shell=False\n")
	assert.Contains(t, out, "    Last changed in 0123456789ab by Alice on 2025-11-03\n")
	assert.Contains(t, out, "[LOW] b.py:9  Weak Hash  confidence=0.40 model=flash")
	assert.Contains(t, out, "Scan scan-2 [FAILED] files scanned: 0 error: clone failed")
	assert.Contains(t, out, "No findings.")
	assert.True(t, strings.HasSuffix(out, "Total: 3 finding(s)\n"))

	// Severity first, then path, then line with unnumbered findings last.
	sqli := strings.Index(out, "[CRITICAL] a.py:3")
	cmdi := strings.Index(out, "[CRITICAL] a.py  Command Injection")
	low := strings.Index(out, "[LOW] b.py:9")
	require.True(t, sqli >= 0 && cmdi >= 0 && low >= 0)
	assert.Less(t, sqli, cmdi)
	assert.Less(t, cmdi, low)
}
