// internal/results/enrich.go
package results

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/codebouncer/api/schemas"
	"github.com/xkilldash9x/codebouncer/internal/results/providers"
)

// Descriptions shorter than this are replaced by the catalog description.
const minDescriptionLength = 20

// Enricher is responsible for enhancing findings with additional context.
type Enricher struct {
	cweProvider providers.CWEProvider
	logger      *zap.Logger
}

// NewEnricher creates a new Enricher instance. A nil provider disables enrichment.
func NewEnricher(cweProvider providers.CWEProvider, logger *zap.Logger) *Enricher {
	return &Enricher{
		cweProvider: cweProvider,
		logger:      logger.Named("enricher"),
	}
}

// EnrichFinding fills a missing vulnerability type or a terse description
// from the CWE catalog. Model-written text is never overwritten otherwise.
func (e *Enricher) EnrichFinding(finding *schemas.Finding) {
	if finding.CWEID == "" || e.cweProvider == nil {
		return
	}

	entry, err := e.cweProvider.GetCWE(finding.CWEID)
	if err != nil {
		e.logger.Debug("Could not retrieve CWE details", zap.String("cwe_id", finding.CWEID), zap.Error(err))
		return
	}

	if finding.VulnType == "" && entry.Name != "" {
		finding.VulnType = entry.Name
	}
	if len(finding.Description) < minDescriptionLength && entry.Description != "" {
		finding.Description = entry.Description
	}
}
