package schemas

import "time"

// RepoFile is a file discovered in a working copy.
type RepoFile struct {
	Path     string `json:"path"`      // Repo-relative, forward slashes.
	FullPath string `json:"full_path"` // Absolute path on disk.
}

// FileCandidate is a file under consideration for scanning. RiskScore starts
// as a bounded 0-3 category and becomes an unbounded priority key once git
// boosts are applied.
type FileCandidate struct {
	RepoFile
	Content   string `json:"-"`
	RiskScore int    `json:"risk_score"`

	ChangeCount            int      `json:"change_count,omitempty"`
	SecurityCommitMessages []string `json:"security_commit_messages,omitempty"`
}

// SecuritySnippet is an extracted, labeled region of a file. StartLine and
// EndLine are 1-indexed and inclusive; MatchReasons is never empty.
type SecuritySnippet struct {
	Name         string   `json:"name"`
	StartLine    int      `json:"start_line"`
	EndLine      int      `json:"end_line"`
	Code         string   `json:"code"`
	MatchReasons []string `json:"match_reasons"`
}

// ScanStatus is the lifecycle state of a persisted scan record.
type ScanStatus string

const (
	ScanStatusRunning   ScanStatus = "RUNNING"
	ScanStatusCompleted ScanStatus = "COMPLETED"
	ScanStatusFailed    ScanStatus = "FAILED"
)

// ScanRecord is a row of the `scans` table.
type ScanRecord struct {
	ID            string     `json:"id"`
	RepoID        int64      `json:"repo_id"`
	Status        ScanStatus `json:"status"`
	FilesScanned  int        `json:"files_scanned"`
	FindingsCount int        `json:"findings_count"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// RepoError pairs a repository with the fatal error that aborted its scan.
type RepoError struct {
	Repo  string `json:"repo"`
	Error string `json:"error"`
}

// ScanSummary is returned for every scan run, successful or not.
type ScanSummary struct {
	ScanIDs       []string    `json:"scan_ids"`
	TotalFiles    int         `json:"total_files"`
	SkippedFiles  int         `json:"skipped_files"`
	TotalFindings int         `json:"total_findings"`
	Escalations   int         `json:"escalations"`
	FileErrors    int         `json:"file_errors"`
	Errors        []RepoError `json:"errors"`
}

// Merge folds another summary into s.
func (s *ScanSummary) Merge(other ScanSummary) {
	s.ScanIDs = append(s.ScanIDs, other.ScanIDs...)
	s.TotalFiles += other.TotalFiles
	s.SkippedFiles += other.SkippedFiles
	s.TotalFindings += other.TotalFindings
	s.Escalations += other.Escalations
	s.FileErrors += other.FileErrors
	s.Errors = append(s.Errors, other.Errors...)
}

// ResultEnvelope bundles the persisted findings of a scan for reporting.
type ResultEnvelope struct {
	ScanID    string      `json:"scan_id"`
	Scan      *ScanRecord `json:"scan,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Findings  []Finding   `json:"findings"`
}
