package results

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/codebouncer/api/schemas"
	"github.com/xkilldash9x/codebouncer/internal/results/providers"
)

// MockScanReader mocks the ScanReader interface.
type MockScanReader struct {
	mock.Mock
}

func (m *MockScanReader) GetScan(ctx context.Context, scanID string) (*schemas.ScanRecord, error) {
	args := m.Called(ctx, scanID)
	rec, _ := args.Get(0).(*schemas.ScanRecord)
	return rec, args.Error(1)
}

func (m *MockScanReader) GetFindingsByScanID(ctx context.Context, scanID string) ([]schemas.Finding, error) {
	args := m.Called(ctx, scanID)
	findings, _ := args.Get(0).([]schemas.Finding)
	return findings, args.Error(1)
}

// MockCWEProvider mocks the CWEProvider interface.
type MockCWEProvider struct {
	mock.Mock
}

func (m *MockCWEProvider) GetCWE(id string) (*providers.CWEEntry, error) {
	args := m.Called(id)
	entry, _ := args.Get(0).(*providers.CWEEntry)
	return entry, args.Error(1)
}

func line(n int) *int { return &n }

func newFinding(path string, ln *int, sev schemas.Severity, vuln string, confidence float64) schemas.Finding {
	return schemas.Finding{
		FilePath:    path,
		LineNumber:  ln,
		Severity:    sev,
		VulnType:    vuln,
		Description: "user input reaches a sink unchecked",
		Confidence:  confidence,
	}
}

func TestNormalize(t *testing.T) {
	in := []schemas.Finding{
		{Severity: " high ", CWEID: "cwe_89", VulnType: " SQL Injection "},
		{Severity: "Low", CWEID: "79"},
		{Severity: "MEDIUM", CWEID: "not-a-cwe"},
	}
	out := Normalize(in)

	assert.Equal(t, schemas.SeverityHigh, out[0].Severity)
	assert.Equal(t, "CWE-89", out[0].CWEID)
	assert.Equal(t, "SQL Injection", out[0].VulnType)
	assert.Equal(t, schemas.SeverityLow, out[1].Severity)
	assert.Equal(t, "CWE-79", out[1].CWEID)
	assert.Equal(t, "not-a-cwe", out[2].CWEID)
}

func TestDeduplicate(t *testing.T) {
	in := []schemas.Finding{
		newFinding("a.py", line(4), schemas.SeverityMedium, "SQL Injection", 0.6),
		newFinding("b.py", nil, schemas.SeverityLow, "Weak Hash", 0.5),
		newFinding("a.py", line(4), schemas.SeverityHigh, "sql injection", 0.4),
		newFinding("a.py", line(4), schemas.SeverityHigh, "SQL Injection", 0.9),
		newFinding("a.py", line(5), schemas.SeverityLow, "SQL Injection", 0.9),
		newFinding("b.py", nil, schemas.SeverityLow, "Weak Hash", 0.3),
	}
	out := Deduplicate(in)

	require.Len(t, out, 3)
	assert.Equal(t, "a.py", out[0].FilePath, "first occurrence keeps its position")
	assert.Equal(t, schemas.SeverityHigh, out[0].Severity)
	assert.Equal(t, 0.9, out[0].Confidence, "ties on severity go to the more confident finding")
	assert.Equal(t, 0.5, out[1].Confidence)
	assert.Equal(t, 5, *out[2].LineNumber)
}

func TestPrioritize(t *testing.T) {
	findings := []schemas.Finding{
		newFinding("z.py", line(1), schemas.SeverityLow, "A", 0.9),
		newFinding("b.py", nil, schemas.SeverityCritical, "B", 0.8),
		newFinding("b.py", line(9), schemas.SeverityCritical, "C", 0.8),
		newFinding("a.py", line(2), schemas.SeverityCritical, "D", 0.8),
		newFinding("c.py", line(3), schemas.SeverityCritical, "E", 0.95),
		newFinding("m.py", line(3), "BOGUS", "F", 1.0),
	}
	Prioritize(findings)

	var order []string
	for _, f := range findings {
		order = append(order, f.VulnType)
	}
	assert.Equal(t, []string{"E", "D", "C", "B", "A", "F"}, order)
}

func TestSummarize(t *testing.T) {
	summary := Summarize([]schemas.Finding{
		{Severity: schemas.SeverityHigh},
		{Severity: schemas.SeverityHigh},
		{Severity: schemas.SeverityLow},
	})
	assert.Equal(t, map[string]int{"total": 3, "HIGH": 2, "LOW": 1}, summary)
	assert.Equal(t, map[string]int{"total": 0}, Summarize(nil))
}

func TestEnricher(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("fills gaps from the catalog", func(t *testing.T) {
		cwe := new(MockCWEProvider)
		cwe.On("GetCWE", "CWE-89").Return(&providers.CWEEntry{ID: "CWE-89", Name: "SQL Injection (catalog)", Description: "catalog description of the weakness"}, nil).Once()

		f := schemas.Finding{CWEID: "CWE-89", Description: "concat"}
		NewEnricher(cwe, logger).EnrichFinding(&f)

		assert.Equal(t, "SQL Injection (catalog)", f.VulnType)
		assert.Equal(t, "catalog description of the weakness", f.Description)
		cwe.AssertExpectations(t)
	})

	t.Run("keeps model text", func(t *testing.T) {
		cwe := new(MockCWEProvider)
		cwe.On("GetCWE", "CWE-89").Return(&providers.CWEEntry{Name: "catalog", Description: "catalog"}, nil)

		f := schemas.Finding{CWEID: "CWE-89", VulnType: "SQL Injection", Description: "login() concatenates the user name into the query"}
		NewEnricher(cwe, logger).EnrichFinding(&f)

		assert.Equal(t, "SQL Injection", f.VulnType)
		assert.Equal(t, "login() concatenates the user name into the query", f.Description)
	})

	t.Run("lookup failure leaves the finding alone", func(t *testing.T) {
		cwe := new(MockCWEProvider)
		cwe.On("GetCWE", "CWE-9999").Return(nil, providers.ErrUnknownCWE)

		f := schemas.Finding{CWEID: "CWE-9999", Description: "short"}
		NewEnricher(cwe, logger).EnrichFinding(&f)
		assert.Equal(t, "short", f.Description)
	})

	t.Run("no CWE or no provider", func(t *testing.T) {
		cwe := new(MockCWEProvider)
		f := schemas.Finding{Description: "short"}
		NewEnricher(cwe, logger).EnrichFinding(&f)
		cwe.AssertNotCalled(t, "GetCWE", mock.Anything)

		f.CWEID = "CWE-89"
		NewEnricher(nil, logger).EnrichFinding(&f)
		assert.Equal(t, "short", f.Description)
	})
}

func TestPipeline_ProcessScanResults(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	scan := &schemas.ScanRecord{ID: "scan-1", Status: schemas.ScanStatusCompleted}

	t.Run("success", func(t *testing.T) {
		reader := new(MockScanReader)
		reader.On("GetScan", ctx, "scan-1").Return(scan, nil)
		reader.On("GetFindingsByScanID", ctx, "scan-1").Return([]schemas.Finding{
			{FilePath: "util.py", LineNumber: line(1), Severity: "low", VulnType: "Weak Hash", Description: "md5 used for passwords", Confidence: 0.7},
			{FilePath: "login.py", LineNumber: line(4), Severity: "HIGH", CWEID: "89", Description: "concat", Confidence: 0.9},
			{FilePath: "login.py", LineNumber: line(4), Severity: "MEDIUM", CWEID: "CWE-89", Description: "concat", Confidence: 0.5},
		}, nil)

		report, err := NewPipeline(reader, logger).ProcessScanResults(ctx, "scan-1")
		require.NoError(t, err)
		reader.AssertExpectations(t)

		assert.Same(t, scan, report.Scan)
		require.Len(t, report.Findings, 2)
		first := report.Findings[0]
		assert.Equal(t, schemas.SeverityHigh, first.Severity)
		assert.Equal(t, "CWE-89", first.CWEID)
		assert.Contains(t, first.VulnType, "SQL Injection", "empty type is filled from the catalog")
		assert.Contains(t, first.Description, "SQL command")
		assert.Equal(t, map[string]int{"total": 2, "HIGH": 1, "LOW": 1}, report.Summary)
	})

	t.Run("scan lookup failure", func(t *testing.T) {
		reader := new(MockScanReader)
		reader.On("GetScan", ctx, "scan-1").Return(nil, errors.New("scan not found"))

		_, err := NewPipeline(reader, logger).ProcessScanResults(ctx, "scan-1")
		assert.EqualError(t, err, "scan not found")
		reader.AssertNotCalled(t, "GetFindingsByScanID", mock.Anything, mock.Anything)
	})

	t.Run("findings lookup failure", func(t *testing.T) {
		reader := new(MockScanReader)
		reader.On("GetScan", ctx, "scan-1").Return(scan, nil)
		reader.On("GetFindingsByScanID", ctx, "scan-1").Return(nil, errors.New("connection reset"))

		_, err := NewPipelineWithProvider(reader, nil, logger).ProcessScanResults(ctx, "scan-1")
		assert.EqualError(t, err, "failed to load findings: connection reset")
	})
}
