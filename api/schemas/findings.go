package schemas

import (
	"strings"
	"time"
)

// -- Finding Schemas --

// Severity represents the severity level reported by a model pass. The values
// are uppercase to match the enum the response schemas constrain the model to.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// AllSeverities lists the severities in descending order of impact.
var AllSeverities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// Rank orders severities for sorting; unknown values rank below LOW.
func (s Severity) Rank() int {
	switch Severity(strings.ToUpper(string(s))) {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// IsSevere reports whether the severity alone is enough to warrant a deep pass.
func (s Severity) IsSevere() bool {
	return s.Rank() >= SeverityHigh.Rank()
}

// ModelFinding is a single issue as returned by a triage or deep model pass.
// Optional fields are pointers or omitempty strings; the deep-only fields are
// empty for triage output.
type ModelFinding struct {
	LineNumber    *int     `json:"line_number,omitempty"`
	Severity      Severity `json:"severity"`
	VulnType      string   `json:"vuln_type"`
	Description   string   `json:"description"`
	Confidence    *float64 `json:"confidence,omitempty"`
	CodeSnippet   string   `json:"code_snippet,omitempty"`
	FixSuggestion string   `json:"fix_suggestion,omitempty"`
	AttackVector  string   `json:"attack_vector,omitempty"`
	CWEID         string   `json:"cwe_id,omitempty"`
}

// ConfidenceOr returns the reported confidence, or def when the model omitted it.
func (f ModelFinding) ConfidenceOr(def float64) float64 {
	if f.Confidence == nil {
		return def
	}
	return *f.Confidence
}

// TriageResponse is the JSON shape of a triage pass.
type TriageResponse struct {
	Findings      []ModelFinding `json:"findings"`
	FileRiskScore float64        `json:"file_risk_score"`
	Summary       string         `json:"summary"`
}

// DeepResponse is the JSON shape of a deep-analysis pass.
type DeepResponse struct {
	Findings []ModelFinding `json:"findings"`
	Summary  string         `json:"summary"`
}

// BlameInfo attributes a line to the last commit that touched it.
type BlameInfo struct {
	Hash   string `json:"hash"`
	Author string `json:"author"`
	Date   string `json:"date"` // YYYY-MM-DD, UTC
}

// Finding is a formatted, persistable finding record. It maps directly to the
// `findings` table.
type Finding struct {
	ID            string    `json:"id"`
	ScanID        string    `json:"scan_id"`
	RepoID        int64     `json:"repo_id"`
	FilePath      string    `json:"file_path"`
	LineNumber    *int      `json:"line_number,omitempty"`
	Severity      Severity  `json:"severity"`
	VulnType      string    `json:"vuln_type"`
	Description   string    `json:"description"`
	FixSuggestion string    `json:"fix_suggestion"`
	CodeSnippet   string    `json:"code_snippet"`
	AttackVector  string    `json:"attack_vector,omitempty"`
	CWEID         string    `json:"cwe_id,omitempty"`
	ModelUsed     string    `json:"model_used"`
	Confidence    float64   `json:"confidence"`
	CommitHash    string    `json:"commit_hash,omitempty"`
	CommitAuthor  string    `json:"commit_author,omitempty"`
	CommitDate    string    `json:"commit_date,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
