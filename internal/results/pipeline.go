// File: internal/results/pipeline.go
package results

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/codebouncer/api/schemas"
	"github.com/xkilldash9x/codebouncer/internal/results/providers"
)

// ScanReader is the read side of the findings store.
type ScanReader interface {
	GetScan(ctx context.Context, scanID string) (*schemas.ScanRecord, error)
	GetFindingsByScanID(ctx context.Context, scanID string) ([]schemas.Finding, error)
}

// Pipeline turns the raw findings persisted for a scan into report order.
type Pipeline struct {
	store    ScanReader
	enricher *Enricher
	logger   *zap.Logger
}

// NewPipeline creates a new results processing pipeline backed by the
// built-in CWE catalog.
func NewPipeline(store ScanReader, logger *zap.Logger) *Pipeline {
	return NewPipelineWithProvider(store, providers.NewInMemoryCWEProvider(), logger)
}

// NewPipelineWithProvider is NewPipeline with an explicit CWE provider.
func NewPipelineWithProvider(store ScanReader, cwe providers.CWEProvider, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		store:    store,
		enricher: NewEnricher(cwe, logger),
		logger:   logger.Named("results_pipeline"),
	}
}

// Report is a processed scan: its record, the findings in priority order and
// counts per severity (plus "total").
type Report struct {
	Scan     *schemas.ScanRecord
	Findings []schemas.Finding
	Summary  map[string]int
}

// ProcessScanResults retrieves, normalizes, enriches, and prioritizes findings for a scan.
func (p *Pipeline) ProcessScanResults(ctx context.Context, scanID string) (*Report, error) {
	p.logger.Info("Starting results processing", zap.String("scan_id", scanID))

	scan, err := p.store.GetScan(ctx, scanID)
	if err != nil {
		return nil, err
	}
	raw, err := p.store.GetFindingsByScanID(ctx, scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to load findings: %w", err)
	}
	p.logger.Debug("Retrieved raw findings", zap.Int("count", len(raw)))

	findings := Deduplicate(Normalize(raw))
	for i := range findings {
		p.enricher.EnrichFinding(&findings[i])
	}
	Prioritize(findings)

	p.logger.Info("Results processing complete",
		zap.Int("raw", len(raw)),
		zap.Int("reported", len(findings)),
	)
	return &Report{Scan: scan, Findings: findings, Summary: Summarize(findings)}, nil
}

// Normalize uppercases severities and canonicalizes CWE identifiers in place.
func Normalize(findings []schemas.Finding) []schemas.Finding {
	for i := range findings {
		f := &findings[i]
		f.Severity = schemas.Severity(strings.ToUpper(strings.TrimSpace(string(f.Severity))))
		if f.CWEID != "" {
			f.CWEID = providers.CanonicalID(f.CWEID)
		}
		f.VulnType = strings.TrimSpace(f.VulnType)
	}
	return findings
}

type dedupKey struct {
	path string
	line int
	vuln string
}

func keyOf(f schemas.Finding) dedupKey {
	line := -1
	if f.LineNumber != nil {
		line = *f.LineNumber
	}
	return dedupKey{path: f.FilePath, line: line, vuln: strings.ToLower(f.VulnType)}
}

// Deduplicate collapses findings that share a file, line and vulnerability
// type, keeping the most severe (then most confident) one at the position of
// the first occurrence.
func Deduplicate(findings []schemas.Finding) []schemas.Finding {
	index := make(map[dedupKey]int, len(findings))
	out := make([]schemas.Finding, 0, len(findings))
	for _, f := range findings {
		k := keyOf(f)
		i, seen := index[k]
		if !seen {
			index[k] = len(out)
			out = append(out, f)
			continue
		}
		if outranks(f, out[i]) {
			out[i] = f
		}
	}
	return out
}

func outranks(a, b schemas.Finding) bool {
	if ra, rb := a.Severity.Rank(), b.Severity.Rank(); ra != rb {
		return ra > rb
	}
	return a.Confidence > b.Confidence
}

// Prioritize sorts findings by severity, then confidence, then location.
// Findings without a line number sort after numbered ones in the same file.
func Prioritize(findings []schemas.Finding) {
	line := func(f schemas.Finding) int {
		if f.LineNumber == nil {
			return math.MaxInt
		}
		return *f.LineNumber
	}
	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if ra, rb := a.Severity.Rank(), b.Severity.Rank(); ra != rb {
			return ra > rb
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.FilePath != b.FilePath {
			return a.FilePath < b.FilePath
		}
		return line(a) < line(b)
	})
}

// Summarize counts findings per severity.
func Summarize(findings []schemas.Finding) map[string]int {
	summary := map[string]int{"total": len(findings)}
	for _, f := range findings {
		summary[string(f.Severity)]++
	}
	return summary
}
