// Package findings turns raw model findings into persistable records.
package findings

import (
	"time"

	"github.com/google/uuid"

	"github.com/xkilldash9x/codebouncer/api/schemas"
)

// Column limits of the findings table.
const (
	MaxTextLength     = 4000
	MaxPathLength     = 1000
	MaxVulnTypeLength = 128
	MaxCWELength      = 32
)

// Origin identifies where a finding came from.
type Origin struct {
	ScanID   string
	RepoID   int64
	FilePath string
	Model    string
}

// FormatFinding builds a Finding with a fresh id. A nil blame leaves the
// commit attribution empty; a missing confidence is recorded as 0.
func FormatFinding(raw schemas.ModelFinding, origin Origin, blame *schemas.BlameInfo) schemas.Finding {
	f := schemas.Finding{
		ID:            uuid.NewString(),
		ScanID:        origin.ScanID,
		RepoID:        origin.RepoID,
		FilePath:      Truncate(origin.FilePath, MaxPathLength),
		LineNumber:    raw.LineNumber,
		Severity:      raw.Severity,
		VulnType:      Truncate(raw.VulnType, MaxVulnTypeLength),
		Description:   Truncate(raw.Description, MaxTextLength),
		FixSuggestion: Truncate(raw.FixSuggestion, MaxTextLength),
		CodeSnippet:   Truncate(raw.CodeSnippet, MaxTextLength),
		AttackVector:  Truncate(raw.AttackVector, MaxTextLength),
		CWEID:         Truncate(raw.CWEID, MaxCWELength),
		ModelUsed:     origin.Model,
		Confidence:    raw.ConfidenceOr(0),
		CreatedAt:     time.Now().UTC(),
	}
	if blame != nil {
		f.CommitHash = blame.Hash
		f.CommitAuthor = blame.Author
		f.CommitDate = blame.Date
	}
	return f
}

// Truncate shortens s to at most limit runes, replacing the tail with "...".
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	if limit <= 3 {
		return string(r[:limit])
	}
	return string(r[:limit-3]) + "..."
}
