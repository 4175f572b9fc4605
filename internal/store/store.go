package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/codebouncer/api/schemas"
	"github.com/xkilldash9x/codebouncer/internal/findings"
)

// MaxErrorMessageLength is the width of scans.error_message.
const MaxErrorMessageLength = 500

// ErrScanNotFound is returned when a scan id has no row.
var ErrScanNotFound = errors.New("scan not found")

//go:embed schema.sql
var schemaSQL string

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Store is the PostgreSQL implementation of schemas.FindingStore.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

var _ schemas.FindingStore = (*Store)(nil)

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

const sqlEnsureRepository = `
    INSERT INTO repositories (name, url)
    VALUES ($1, $2)
    ON CONFLICT (url) DO UPDATE SET name = EXCLUDED.name
    RETURNING id;
`

// EnsureRepository returns the id of the repository registered under url,
// creating it when needed.
func (s *Store) EnsureRepository(ctx context.Context, name, url string) (int64, error) {
	var id int64
	if err := s.pool.QueryRow(ctx, sqlEnsureRepository, name, url).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to register repository %s: %w", url, err)
	}
	return id, nil
}

const sqlCreateScan = `
    INSERT INTO scans (id, repo_id, status, started_at)
    VALUES ($1, $2, $3, $4);
`

// CreateScan records a new RUNNING scan.
func (s *Store) CreateScan(ctx context.Context, scanID string, repoID int64) error {
	if _, err := s.pool.Exec(ctx, sqlCreateScan, scanID, repoID, string(schemas.ScanStatusRunning), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to create scan %s: %w", scanID, err)
	}
	return nil
}

var findingColumns = []string{
	"id", "scan_id", "repo_id", "file_path", "line_number",
	"severity", "vuln_type", "description", "fix_suggestion", "code_snippet",
	"attack_vector", "cwe_id", "model_used", "confidence",
	"commit_hash", "commit_author", "commit_date", "created_at",
}

// PersistFindings copies the findings in a single transaction and returns the
// number of rows inserted.
func (s *Store) PersistFindings(ctx context.Context, batch []schemas.Finding) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	rows := make([][]any, len(batch))
	for i, f := range batch {
		rows[i] = []any{
			f.ID, f.ScanID, f.RepoID, f.FilePath, f.LineNumber,
			string(f.Severity), f.VulnType, f.Description, f.FixSuggestion, f.CodeSnippet,
			nullIfEmpty(f.AttackVector), nullIfEmpty(f.CWEID), f.ModelUsed, f.Confidence,
			nullIfEmpty(f.CommitHash), nullIfEmpty(f.CommitAuthor), nullIfEmpty(f.CommitDate), f.CreatedAt.UTC(),
		}
	}

	copyCount, err := tx.CopyFrom(ctx, pgx.Identifier{"findings"}, findingColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("failed to copy findings: %w", err)
	}
	if int(copyCount) != len(batch) {
		return 0, fmt.Errorf("mismatch in copied findings count: expected %d, got %d", len(batch), copyCount)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return int(copyCount), nil
}

const sqlUpdateScanStatus = `
    UPDATE scans
    SET status = $1, files_scanned = $2, findings_count = $3, completed_at = $4, error_message = $5
    WHERE id = $6;
`

// UpdateScanStatus applies a status transition. Terminal states record the
// completion time; the error message is capped to the column width.
func (s *Store) UpdateScanStatus(ctx context.Context, u schemas.ScanStatusUpdate) error {
	var completedAt *time.Time
	if u.Status != schemas.ScanStatusRunning {
		now := time.Now().UTC()
		completedAt = &now
	}
	errMsg := nullIfEmpty(findings.Truncate(u.ErrorMessage, MaxErrorMessageLength))

	tag, err := s.pool.Exec(ctx, sqlUpdateScanStatus, string(u.Status), u.FilesScanned, u.FindingsCount, completedAt, errMsg, u.ScanID)
	if err != nil {
		return fmt.Errorf("failed to update scan %s: %w", u.ScanID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrScanNotFound, u.ScanID)
	}
	return nil
}

const sqlGetScan = `
    SELECT id, repo_id, status, files_scanned, findings_count, error_message, started_at, completed_at
    FROM scans
    WHERE id = $1;
`

// GetScan loads a scan record.
func (s *Store) GetScan(ctx context.Context, scanID string) (*schemas.ScanRecord, error) {
	var (
		rec    schemas.ScanRecord
		status string
		errMsg *string
	)
	err := s.pool.QueryRow(ctx, sqlGetScan, scanID).Scan(
		&rec.ID, &rec.RepoID, &status, &rec.FilesScanned, &rec.FindingsCount, &errMsg, &rec.StartedAt, &rec.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrScanNotFound, scanID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query scan: %w", err)
	}
	rec.Status = schemas.ScanStatus(status)
	rec.ErrorMessage = deref(errMsg)
	return &rec, nil
}

const sqlGetFindings = `
    SELECT id, repo_id, file_path, line_number, severity, vuln_type, description, fix_suggestion, code_snippet,
           attack_vector, cwe_id, model_used, confidence, commit_hash, commit_author, commit_date, created_at
    FROM findings
    WHERE scan_id = $1
    ORDER BY file_path ASC, line_number ASC NULLS LAST;
`

// GetFindingsByScanID returns the findings of a scan ordered by location.
func (s *Store) GetFindingsByScanID(ctx context.Context, scanID string) ([]schemas.Finding, error) {
	rows, err := s.pool.Query(ctx, sqlGetFindings, scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to query findings: %w", err)
	}
	defer rows.Close()

	var result []schemas.Finding
	for rows.Next() {
		var (
			f                                     schemas.Finding
			severity                              string
			attack, cwe, hash, author, commitDate *string
		)
		err := rows.Scan(
			&f.ID, &f.RepoID, &f.FilePath, &f.LineNumber, &severity, &f.VulnType, &f.Description, &f.FixSuggestion, &f.CodeSnippet,
			&attack, &cwe, &f.ModelUsed, &f.Confidence, &hash, &author, &commitDate, &f.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan finding row: %w", err)
		}

		f.ScanID = scanID
		f.Severity = schemas.Severity(severity)
		f.AttackVector = deref(attack)
		f.CWEID = deref(cwe)
		f.CommitHash = deref(hash)
		f.CommitAuthor = deref(author)
		f.CommitDate = deref(commitDate)
		result = append(result, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return result, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
