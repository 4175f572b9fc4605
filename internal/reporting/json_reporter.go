package reporting

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/codebouncer/api/schemas"
	"github.com/xkilldash9x/codebouncer/internal/observability"
)

// JSONReport is the document written by JSONReporter.
type JSONReport struct {
	Tool    string                    `json:"tool"`
	Results []*schemas.ResultEnvelope `json:"results"`
}

// JSONReporter buffers envelopes and writes them as one JSON document on
// Close. It is thread safe.
type JSONReporter struct {
	writer io.WriteCloser
	logger *zap.Logger

	mu     sync.Mutex
	report JSONReport
}

// NewJSONReporter creates a reporter that writes JSON output.
func NewJSONReporter(writer io.WriteCloser) *JSONReporter {
	return &JSONReporter{
		writer: writer,
		logger: observability.GetLogger().Named("json_reporter"),
		report: JSONReport{Tool: ToolName, Results: []*schemas.ResultEnvelope{}},
	}
}

func (r *JSONReporter) Write(result *schemas.ResultEnvelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if result.Findings == nil {
		copied := *result
		copied.Findings = []schemas.Finding{}
		result = &copied
	}
	r.report.Results = append(r.report.Results, result)
	return nil
}

func (r *JSONReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	encodeErr := encoder.Encode(r.report)
	closeErr := r.writer.Close()

	if encodeErr != nil {
		r.logger.Error("Failed to encode JSON report", zap.Error(encodeErr))
		return fmt.Errorf("failed to encode JSON output: %w", encodeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	r.logger.Debug("Wrote JSON report", zap.Int("envelopes", len(r.report.Results)))
	return nil
}
