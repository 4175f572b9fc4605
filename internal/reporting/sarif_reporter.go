package reporting

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/codebouncer/api/schemas"
	"github.com/xkilldash9x/codebouncer/internal/observability"
	"github.com/xkilldash9x/codebouncer/internal/reporting/sarif"
)

// Constants for tool identification in the SARIF report.
const (
	ToolName     = "CodeBouncer"
	ToolInfoURI  = "https://github.com/xkilldash9x/codebouncer"
	SARIFVersion = "2.1.0"
	SARIFSchema  = "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json"
)

// ruleIDSanitizer matches runs of characters not allowed in a rule ID. Each
// run is replaced by a single hyphen.
var ruleIDSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_.]+`)

// RuleFingerprint identifies a rule by the fields that define it.
type RuleFingerprint string

// calculateFingerprint hashes the rule-defining fields of a finding. Model
// text varies between findings of the same class, so only the vulnerability
// type and CWE take part.
func calculateFingerprint(finding schemas.Finding) RuleFingerprint {
	data := struct {
		VulnType string
		CWE      string
	}{
		VulnType: strings.ToLower(strings.TrimSpace(finding.VulnType)),
		CWE:      strings.ToUpper(strings.TrimSpace(finding.CWEID)),
	}

	h := sha1.New()
	_ = json.NewEncoder(h).Encode(data)
	return RuleFingerprint(hex.EncodeToString(h.Sum(nil)))
}

// resultFingerprint is stable across scans of the same code so that SARIF
// consumers can track a finding over time.
func resultFingerprint(finding schemas.Finding) string {
	line := 0
	if finding.LineNumber != nil {
		line = *finding.LineNumber
	}
	h := sha1.Sum([]byte(finding.FilePath + "\x00" + strconv.Itoa(line) + "\x00" + strings.ToLower(finding.VulnType)))
	return hex.EncodeToString(h[:])
}

// SARIFReporter implements the Reporter interface for the SARIF 2.1.0 format.
// It is thread safe.
type SARIFReporter struct {
	writer io.WriteCloser
	logger *zap.Logger
	log    *sarif.Log
	// mu protects the log structure and the maps.
	mu sync.Mutex
	// rulesByFingerprint maps a content fingerprint to the generated Rule ID.
	rulesByFingerprint map[RuleFingerprint]string
	// ruleIDUsage counts uses of a base Rule ID to resolve collisions.
	ruleIDUsage map[string]int
}

// NewSARIFReporter creates a new reporter that writes SARIF output.
func NewSARIFReporter(writer io.WriteCloser, toolVersion string) *SARIFReporter {
	logger := observability.GetLogger().Named("sarif_reporter")
	log := &sarif.Log{
		Version: SARIFVersion,
		Schema:  SARIFSchema,
		Runs: []*sarif.Run{
			{
				Tool: &sarif.Tool{
					Driver: &sarif.ToolComponent{
						Name:           ToolName,
						Version:        pString(toolVersion),
						InformationURI: pString(ToolInfoURI),
						// Initialize empty slices (not nil) for proper JSON marshalling
						Rules: []*sarif.ReportingDescriptor{},
					},
				},
				Results: []*sarif.Result{},
			},
		},
	}

	return &SARIFReporter{
		writer:             writer,
		logger:             logger,
		log:                log,
		rulesByFingerprint: make(map[RuleFingerprint]string),
		ruleIDUsage:        make(map[string]int),
	}
}

// Write converts a ResultEnvelope into SARIF results and adds them to the log.
func (r *SARIFReporter) Write(result *schemas.ResultEnvelope) error {
	startTime := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	run := r.log.Runs[0]
	if result.Scan != nil {
		run.Properties = &sarif.PropertyBag{
			"scanId":        result.ScanID,
			"status":        string(result.Scan.Status),
			"filesScanned":  result.Scan.FilesScanned,
			"findingsCount": result.Scan.FindingsCount,
		}
	}

	for _, finding := range result.Findings {
		ruleID := r.ensureRule(finding)

		messageText := finding.Description
		if messageText == "" {
			messageText = finding.VulnType
		}

		props := sarif.PropertyBag{
			"confidence": finding.Confidence,
			"modelUsed":  finding.ModelUsed,
		}
		if finding.AttackVector != "" {
			props["attackVector"] = finding.AttackVector
		}
		if finding.FixSuggestion != "" {
			props["fixSuggestion"] = finding.FixSuggestion
		}
		if finding.CommitHash != "" {
			props["commit"] = map[string]string{
				"hash":   finding.CommitHash,
				"author": finding.CommitAuthor,
				"date":   finding.CommitDate,
			}
		}

		run.Results = append(run.Results, &sarif.Result{
			RuleID:              ruleID,
			Message:             &sarif.Message{Text: pString(messageText)},
			Level:               sarif.Level(mapSeverityToSARIFLevel(finding.Severity)),
			Locations:           r.createLocations(finding),
			PartialFingerprints: map[string]string{"codebouncer/v1": resultFingerprint(finding)},
			Properties:          &props,
		})
	}

	if len(result.Findings) > 0 {
		r.logger.Debug("Wrote findings to SARIF buffer",
			zap.Int("findings_count", len(result.Findings)),
			zap.Duration("duration_ms", time.Since(startTime)),
		)
	}

	return nil
}

// Close finalizes the SARIF log and writes it to the output writer.
func (r *SARIFReporter) Close() error {
	startTime := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	run := r.log.Runs[0]
	r.logger.Info("Finalizing SARIF report",
		zap.Int("total_results", len(run.Results)),
		zap.Int("total_rules", len(run.Tool.Driver.Rules)),
	)

	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")

	encodeErr := encoder.Encode(r.log)
	// Always attempt to close the writer, regardless of encoding success.
	closeErr := r.writer.Close()

	if encodeErr != nil {
		r.logger.Error("Failed to encode SARIF log to JSON", zap.Error(encodeErr))
		return fmt.Errorf("failed to encode SARIF output: %w", encodeErr)
	}

	if closeErr != nil {
		r.logger.Error("Failed to close output writer", zap.Error(closeErr))
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}

	r.logger.Info("Successfully wrote SARIF report",
		zap.Duration("duration_ms", time.Since(startTime)),
	)

	return nil
}

// sanitizeRuleName creates a standardized base name for the rule ID.
func (r *SARIFReporter) sanitizeRuleName(name string) string {
	if name == "" {
		return "UNNAMED-VULNERABILITY"
	}

	sanitizedName := strings.ToUpper(name)
	sanitizedName = ruleIDSanitizer.ReplaceAllString(sanitizedName, "-")
	sanitizedName = strings.Trim(sanitizedName, "-")

	if sanitizedName == "" {
		return "UNKNOWN-VULNERABILITY"
	}
	return sanitizedName
}

// ensureRule ensures a rule definition exists for the finding and returns its ID.
// NOTE: Must be called while holding the mutex.
func (r *SARIFReporter) ensureRule(finding schemas.Finding) string {
	fingerprint := calculateFingerprint(finding)
	if ruleID, exists := r.rulesByFingerprint[fingerprint]; exists {
		return ruleID
	}

	baseRuleID := "BOUNCER-" + r.sanitizeRuleName(finding.VulnType)

	usageCount := r.ruleIDUsage[baseRuleID]
	r.ruleIDUsage[baseRuleID] = usageCount + 1

	finalRuleID := baseRuleID
	if usageCount > 0 {
		// Same vulnerability type under a different CWE.
		finalRuleID = fmt.Sprintf("%s-%d", baseRuleID, usageCount)
		r.logger.Debug("Rule ID collision detected, generated new ID with suffix",
			zap.String("base_id", baseRuleID),
			zap.String("final_id", finalRuleID),
		)
	}

	r.logger.Debug("Registering new SARIF rule definition", zap.String("rule_id", finalRuleID))

	markdownHelp := fmt.Sprintf("**Vulnerability:** %s\n\n**Description:**\n%s", finding.VulnType, finding.Description)
	if finding.CWEID != "" {
		markdownHelp += fmt.Sprintf("\n\n**CWE:** %s", finding.CWEID)
	}

	props := sarif.PropertyBag{
		"tags":      []string{"security", "codebouncer"},
		"precision": "medium",
	}
	if finding.CWEID != "" {
		props["CWE"] = []string{finding.CWEID}
	}

	driver := r.log.Runs[0].Tool.Driver
	driver.Rules = append(driver.Rules, &sarif.ReportingDescriptor{
		ID:               finalRuleID,
		Name:             pString(finding.VulnType),
		ShortDescription: &sarif.MultiformatMessageString{Text: pString(finding.VulnType)},
		FullDescription:  &sarif.MultiformatMessageString{Text: pString(finding.Description)},
		Help: &sarif.MultiformatMessageString{
			Text:     pString(finding.Description),
			Markdown: pString(markdownHelp),
		},
		Properties: &props,
	})
	r.rulesByFingerprint[fingerprint] = finalRuleID
	return finalRuleID
}

// createLocations converts finding details into SARIF location objects.
func (r *SARIFReporter) createLocations(finding schemas.Finding) []*sarif.Location {
	physical := &sarif.PhysicalLocation{
		ArtifactLocation: &sarif.ArtifactLocation{URI: pString(finding.FilePath)},
	}
	if finding.LineNumber != nil && *finding.LineNumber > 0 {
		physical.Region = &sarif.Region{StartLine: *finding.LineNumber}
		if finding.CodeSnippet != "" {
			physical.Region.Snippet = &sarif.Message{Text: pString(finding.CodeSnippet)}
		}
	}

	return []*sarif.Location{{
		PhysicalLocation: physical,
		Message:          &sarif.Message{Text: pString(fmt.Sprintf("Vulnerability found in %s", finding.FilePath))},
	}}
}

// mapSeverityToSARIFLevel converts a finding severity to the SARIF standard.
func mapSeverityToSARIFLevel(severity schemas.Severity) string {
	switch strings.ToLower(string(severity)) {
	case "critical", "high":
		return string(sarif.LevelError)
	case "medium":
		return string(sarif.LevelWarning)
	default:
		return string(sarif.LevelNote)
	}
}

// pString returns a pointer to the given string value. Helper for optional SARIF fields.
func pString(s string) *string {
	return &s
}
