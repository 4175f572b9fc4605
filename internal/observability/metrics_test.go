package observability

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanMetrics(t *testing.T) {
	m := NewScanMetrics()

	m.FilesScanned.Add(3)
	m.Escalations.Inc()
	m.Findings.WithLabelValues("HIGH").Add(2)
	m.ObserveModelCall("fast", "ok", 150*time.Millisecond)
	m.ObserveModelCall("powerful", "timeout", 2*time.Second)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.FilesScanned))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Escalations))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Findings.WithLabelValues("HIGH")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ModelCalls.WithLabelValues("powerful", "timeout")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.ModelLatency))
}

func TestScanMetricsAreIsolated(t *testing.T) {
	a := NewScanMetrics()
	b := NewScanMetrics()
	a.FilesSkipped.Inc()

	assert.Equal(t, 0.0, testutil.ToFloat64(b.FilesSkipped))
}

func TestWriteTextfile(t *testing.T) {
	m := NewScanMetrics()
	m.RepoFailures.Inc()

	path := filepath.Join(t.TempDir(), "scan.prom")
	require.NoError(t, m.WriteTextfile(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "codebouncer_repo_failures_total 1")
}
