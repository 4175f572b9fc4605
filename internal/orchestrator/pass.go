package orchestrator

import "github.com/xkilldash9x/codebouncer/api/schemas"

// PassKind tags which model pass produced a file's authoritative findings.
type PassKind int

const (
	// PassTriage means no escalation happened.
	PassTriage PassKind = iota
	// PassDeep means the deep pass succeeded and replaced triage.
	PassDeep
	// PassDeepFailed means the deep pass failed and triage results stand.
	PassDeepFailed
)

func (k PassKind) String() string {
	switch k {
	case PassTriage:
		return "triage"
	case PassDeep:
		return "deep"
	case PassDeepFailed:
		return "deep_failed"
	default:
		return "unknown"
	}
}

// PassResult is the outcome of a file's pipeline.
type PassResult struct {
	Kind PassKind

	triage      schemas.TriageResponse
	triageModel string
	deep        schemas.DeepResponse
	deepModel   string
	cause       error
}

func triageResult(resp schemas.TriageResponse, model string) PassResult {
	return PassResult{Kind: PassTriage, triage: resp, triageModel: model}
}

// withDeep replaces the triage outcome with a successful deep pass.
func (r PassResult) withDeep(resp schemas.DeepResponse, model string) PassResult {
	r.Kind = PassDeep
	r.deep = resp
	r.deepModel = model
	return r
}

// withDeepFailure keeps the triage outcome and records why the deep pass failed.
func (r PassResult) withDeepFailure(cause error) PassResult {
	r.Kind = PassDeepFailed
	r.cause = cause
	return r
}

// Findings returns the authoritative findings.
func (r PassResult) Findings() []schemas.ModelFinding {
	if r.Kind == PassDeep {
		return r.deep.Findings
	}
	return r.triage.Findings
}

// Model returns the identity of the model that produced Findings.
func (r PassResult) Model() string {
	if r.Kind == PassDeep {
		return r.deepModel
	}
	return r.triageModel
}

// Summary returns the authoritative pass's free-text summary.
func (r PassResult) Summary() string {
	if r.Kind == PassDeep {
		return r.deep.Summary
	}
	return r.triage.Summary
}

// FileRiskScore is the triage model's overall score for the file.
func (r PassResult) FileRiskScore() float64 {
	return r.triage.FileRiskScore
}

// Cause is the deep-pass error for PassDeepFailed, nil otherwise.
func (r PassResult) Cause() error {
	return r.cause
}

// confidenceWhenMissing is how an omitted confidence counts for escalation.
const confidenceWhenMissing = 1.0

// NeedsEscalation reports whether a file's triage findings warrant the deep
// pass: force is set, or any finding is below threshold confidence, or any
// finding is CRITICAL or HIGH. Callers still skip the deep pass when findings
// is empty.
func NeedsEscalation(findings []schemas.ModelFinding, force bool, threshold float64) bool {
	if force {
		return true
	}
	for _, f := range findings {
		if f.ConfidenceOr(confidenceWhenMissing) < threshold || f.Severity.IsSevere() {
			return true
		}
	}
	return false
}
