// File: internal/orchestrator/orchestrator.go
// Description: Manages the lifecycle of a repository scan. It is injected with
// its collaborators via interfaces, making it decoupled and testable.

package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/codebouncer/api/schemas"
	"github.com/xkilldash9x/codebouncer/internal/config"
	"github.com/xkilldash9x/codebouncer/internal/findings"
	"github.com/xkilldash9x/codebouncer/internal/gitintel"
	"github.com/xkilldash9x/codebouncer/internal/observability"
	"github.com/xkilldash9x/codebouncer/internal/risk"
	"github.com/xkilldash9x/codebouncer/internal/source"
)

// RepoDescriber adds remote metadata to a repository's context.
type RepoDescriber interface {
	Describe(ctx context.Context, repoURL string) string
}

// Dependencies are the collaborators of an Orchestrator. Source and LLM are
// required. Without a Store findings are returned but not persisted.
type Dependencies struct {
	Source    schemas.RepositorySource
	LLM       schemas.LLMClient
	Store     schemas.FindingStore
	Metrics   *observability.ScanMetrics
	Describer RepoDescriber
}

// Target is a repository to scan. A URL naming a local directory is made
// absolute before use. Name defaults to the last segment of URL.
type Target struct {
	URL  string
	Name string
}

// Result is the outcome of one or more repository scans.
type Result struct {
	Summary  schemas.ScanSummary
	Findings []schemas.Finding
}

// Orchestrator runs the prioritize, triage and escalate pipeline over repositories.
type Orchestrator struct {
	cfg      *config.Config
	logger   *zap.Logger
	source   schemas.RepositorySource
	llm      schemas.LLMClient
	store    schemas.FindingStore
	metrics  *observability.ScanMetrics
	describe RepoDescriber
	assessor *risk.Assessor
	limiter  *rate.Limiter
}

// New creates a new Orchestrator.
func New(cfg *config.Config, logger *zap.Logger, deps Dependencies) (*Orchestrator, error) {
	if cfg == nil || logger == nil || deps.Source == nil || deps.LLM == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = observability.NewScanMetrics()
	}
	logger = logger.Named("orchestrator")
	limit := rate.Inf
	if cfg.Scan.ModelCallsPerSecond > 0 {
		limit = rate.Limit(cfg.Scan.ModelCallsPerSecond)
	}

	return &Orchestrator{
		cfg:      cfg,
		logger:   logger,
		source:   deps.Source,
		llm:      deps.LLM,
		store:    deps.Store,
		metrics:  metrics,
		describe: deps.Describer,
		assessor: risk.NewAssessor(cfg.Risk, logger),
		limiter:  rate.NewLimiter(limit, 1),
	}, nil
}

// RunScans scans each target in turn and merges the results. A failed
// repository is recorded in the summary and does not stop the others.
func (o *Orchestrator) RunScans(ctx context.Context, targets []Target) Result {
	var total Result
	total.Summary.Errors = []schemas.RepoError{}
	for _, t := range targets {
		if ctx.Err() != nil {
			break
		}
		r := o.ScanRepository(ctx, t)
		total.Summary.Merge(r.Summary)
		total.Findings = append(total.Findings, r.Findings...)
	}
	return total
}

// repoScan carries the state of a single repository scan.
type repoScan struct {
	target      Target
	scanID      string
	repoID      int64
	scanCreated bool
	summary     schemas.ScanSummary
}

// ScanRepository runs the full pipeline for one repository. It never returns
// an error: repo-fatal failures mark the scan FAILED and are listed in
// Summary.Errors.
func (o *Orchestrator) ScanRepository(ctx context.Context, target Target) Result {
	target.URL = source.ResolveLocator(target.URL)
	if target.Name == "" {
		target.Name = source.RepoName(target.URL)
	}
	rs := &repoScan{
		target: target,
		scanID: uuid.NewString(),
		summary: schemas.ScanSummary{
			Errors: []schemas.RepoError{},
		},
	}
	rs.summary.ScanIDs = []string{rs.scanID}

	logger := o.logger.With(zap.String("repo", target.Name), zap.String("scan_id", rs.scanID))
	logger.Info("Starting repository scan", zap.String("url", target.URL))

	found, err := o.scan(ctx, rs, logger)
	if err != nil {
		o.fail(ctx, rs, logger, err)
		return Result{Summary: rs.summary}
	}
	return Result{Summary: rs.summary, Findings: found}
}

func (o *Orchestrator) scan(ctx context.Context, rs *repoScan, logger *zap.Logger) ([]schemas.Finding, error) {
	if o.store != nil {
		repoID, err := o.store.EnsureRepository(ctx, rs.target.Name, rs.target.URL)
		if err != nil {
			return nil, err
		}
		rs.repoID = repoID
		if err := o.store.CreateScan(ctx, rs.scanID, repoID); err != nil {
			return nil, err
		}
		rs.scanCreated = true
	}

	dir, err := o.source.Clone(ctx, rs.target.URL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := o.source.Cleanup(dir); err != nil {
			logger.Warn("Failed to clean up working copy", zap.String("dir", dir), zap.Error(err))
		}
	}()

	git := gitintel.NewExtractor(dir, o.cfg.Git, logger)
	signals := git.CollectSignals(ctx, o.cfg.Git.MaxCommits)
	repoContext := o.repoContext(ctx, git, rs.target.URL)

	files, err := o.source.ListFiles(dir)
	if err != nil {
		return nil, err
	}
	contents := make(map[string]string, len(files))
	for _, f := range files {
		content, err := o.source.ReadFile(f.FullPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", f.Path, err)
		}
		contents[f.Path] = content
	}

	candidates := o.assessor.PrioritizeFiles(files, contents, signals.HotFiles, signals.SecurityFiles)
	rs.summary.SkippedFiles = len(files) - len(candidates)
	o.metrics.FilesSkipped.Add(float64(rs.summary.SkippedFiles))
	logger.Info("Scanning prioritized files",
		zap.Int("files", len(candidates)),
		zap.Int("skipped", rs.summary.SkippedFiles),
		zap.Int("hot_files", len(signals.HotFiles)),
	)

	results := o.scanFiles(ctx, candidates, repoContext, logger)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("scan interrupted: %w", err)
	}

	var found []schemas.Finding
	for i, res := range results {
		if res.err != nil {
			rs.summary.FileErrors++
			continue
		}
		if res.pass.Kind != PassTriage {
			rs.summary.Escalations++
		}
		found = append(found, o.formatFindings(ctx, rs, git, candidates[i].Path, res.pass)...)
	}

	count := len(found)
	if o.store != nil {
		if count, err = o.store.PersistFindings(ctx, found); err != nil {
			return nil, err
		}
		err = o.store.UpdateScanStatus(ctx, schemas.ScanStatusUpdate{
			ScanID:        rs.scanID,
			Status:        schemas.ScanStatusCompleted,
			FilesScanned:  len(candidates),
			FindingsCount: count,
		})
		if err != nil {
			return nil, err
		}
	}

	rs.summary.TotalFiles = len(candidates)
	rs.summary.TotalFindings = count
	for _, f := range found {
		o.metrics.Findings.WithLabelValues(string(f.Severity)).Inc()
	}
	logger.Info("Repository scan completed",
		zap.Int("files_scanned", len(candidates)),
		zap.Int("findings", count),
		zap.Int("escalations", rs.summary.Escalations),
		zap.Int("file_errors", rs.summary.FileErrors),
	)
	return found, nil
}

func (o *Orchestrator) repoContext(ctx context.Context, git *gitintel.Extractor, url string) string {
	parts := []string{git.RepoContext()}
	if o.describe != nil {
		parts = append(parts, o.describe.Describe(ctx, url))
	}
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n")
}

type fileResult struct {
	pass PassResult
	err  error
}

// scanFiles runs the per-file pipeline with bounded parallelism. Results are
// indexed like candidates so output order follows priority order.
func (o *Orchestrator) scanFiles(ctx context.Context, candidates []schemas.FileCandidate, repoContext string, logger *zap.Logger) []fileResult {
	results := make([]fileResult, len(candidates))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(max(o.cfg.Scan.Concurrency, 1))
	for i, c := range candidates {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			o.metrics.FilesScanned.Inc()
			pass, err := o.scanFile(ctx, c, repoContext)
			if err != nil {
				o.metrics.FileErrors.Inc()
				logger.Error("Skipping file after triage failure", zap.String("file", c.Path), zap.Error(err))
			}
			mu.Lock()
			results[i] = fileResult{pass: pass, err: err}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// formatFindings turns a file's authoritative findings into records, adding
// blame attribution for findings that carry a line number.
func (o *Orchestrator) formatFindings(ctx context.Context, rs *repoScan, git *gitintel.Extractor, path string, pass PassResult) []schemas.Finding {
	origin := findings.Origin{ScanID: rs.scanID, RepoID: rs.repoID, FilePath: path, Model: pass.Model()}
	out := make([]schemas.Finding, 0, len(pass.Findings()))
	for _, raw := range pass.Findings() {
		var blame *schemas.BlameInfo
		if raw.LineNumber != nil {
			if info, ok := git.BlameLine(ctx, path, *raw.LineNumber); ok {
				blame = &info
			}
		}
		out = append(out, findings.FormatFinding(raw, origin, blame))
	}
	return out
}

// fail records a repo-fatal error. The scan row, when one was created, is
// marked FAILED even if ctx has been cancelled.
func (o *Orchestrator) fail(ctx context.Context, rs *repoScan, logger *zap.Logger, err error) {
	msg := findings.Truncate(err.Error(), o.cfg.Scan.ErrorMessageLimit)
	logger.Error("Repository scan failed", zap.Error(err))
	o.metrics.RepoFailures.Inc()

	rs.summary.Errors = append(rs.summary.Errors, schemas.RepoError{Repo: rs.target.Name, Error: msg})

	if o.store == nil || !rs.scanCreated {
		return
	}
	update := schemas.ScanStatusUpdate{ScanID: rs.scanID, Status: schemas.ScanStatusFailed, ErrorMessage: msg}
	if uerr := o.store.UpdateScanStatus(context.WithoutCancel(ctx), update); uerr != nil {
		logger.Error("Failed to record scan failure", zap.Error(uerr))
	}
}
