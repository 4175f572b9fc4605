package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "codebouncer"

// ScanMetrics tracks how scan budget is spent: which files were admitted,
// how often triage escalated, and how model calls fared per tier.
type ScanMetrics struct {
	registry *prometheus.Registry

	FilesScanned  prometheus.Counter
	FilesSkipped  prometheus.Counter
	FileErrors    prometheus.Counter
	Escalations   prometheus.Counter
	DeepFallbacks prometheus.Counter
	Findings      *prometheus.CounterVec // labels: severity
	ModelCalls    *prometheus.CounterVec // labels: tier, outcome
	ModelLatency  *prometheus.HistogramVec
	RepoFailures  prometheus.Counter
}

// NewScanMetrics registers the scan metrics on a private registry so that
// independent scans (and tests) never collide on the default one.
func NewScanMetrics() *ScanMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &ScanMetrics{
		registry: reg,
		FilesScanned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_scanned_total",
			Help:      "Files admitted by prioritization and sent to triage",
		}),
		FilesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_skipped_total",
			Help:      "Listed files dropped by skip rules or the max-files cap",
		}),
		FileErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "file_errors_total",
			Help:      "Files abandoned after a triage failure",
		}),
		Escalations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_total",
			Help:      "Files escalated to the deep-analysis tier",
		}),
		DeepFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deep_fallbacks_total",
			Help:      "Escalations that failed and kept triage results",
		}),
		Findings: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "findings_total",
			Help:      "Authoritative findings by severity",
		}, []string{"severity"}),
		ModelCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_calls_total",
			Help:      "Model calls by tier and outcome",
		}, []string{"tier", "outcome"}),
		ModelLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_call_duration_seconds",
			Help:      "Model call latency by tier",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"tier"}),
		RepoFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "repo_failures_total",
			Help:      "Repository scans aborted by a fatal error",
		}),
	}
}

// ObserveModelCall records the outcome and latency of one model call.
func (m *ScanMetrics) ObserveModelCall(tier, outcome string, elapsed time.Duration) {
	m.ModelCalls.WithLabelValues(tier, outcome).Inc()
	m.ModelLatency.WithLabelValues(tier).Observe(elapsed.Seconds())
}

// Gatherer exposes the registry for export.
func (m *ScanMetrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// WriteTextfile writes the current metric values in the node_exporter
// textfile format.
func (m *ScanMetrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
