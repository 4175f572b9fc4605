package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/codebouncer/api/schemas"
	"github.com/xkilldash9x/codebouncer/internal/config"
	"github.com/xkilldash9x/codebouncer/internal/observability"
	"github.com/xkilldash9x/codebouncer/internal/orchestrator"
	"github.com/xkilldash9x/codebouncer/internal/reporting"
	"github.com/xkilldash9x/codebouncer/internal/source"
)

// scanOptions are the scan flags that do not map onto configuration keys.
type scanOptions struct {
	repoName   string
	output     string
	format     string
	metricsOut string
}

// newScanCmd creates and configures the `scan` command.
func newScanCmd(stores storeProvider, clients clientProvider) *cobra.Command {
	var opts scanOptions

	scanCmd := &cobra.Command{
		Use:   "scan [repository...]",
		Short: "Scan one or more repositories",
		Long: `Clones each repository (or uses a local checkout in place), ranks its files
by risk, and runs the triage and escalation passes over the highest-ranked ones.
Findings are persisted when a database is configured.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if opts.repoName != "" && len(args) > 1 {
				return errors.New("--repo-name can only be used with a single repository")
			}

			targets := make([]orchestrator.Target, len(args))
			for i, a := range args {
				targets[i] = orchestrator.Target{URL: a, Name: opts.repoName}
			}
			return runScan(ctx, observability.GetLogger(), cfg, targets, opts, stores, clients, cmd.ErrOrStderr())
		},
	}

	scanCmd.Flags().Bool("deep", false, "Escalate every file with findings to the powerful model. (Overrides config/env)")
	scanCmd.Flags().Float64("threshold", 0, "Confidence below which findings are escalated. (Overrides config/env)")
	scanCmd.Flags().IntP("concurrency", "j", 0, "Number of files analyzed in parallel. (Overrides config/env)")
	scanCmd.Flags().Float64("rate", 0, "Maximum model calls per second. (Overrides config/env)")
	scanCmd.Flags().Int("max-files", 0, "Maximum number of files sent to triage per repository. (Overrides config/env)")
	scanCmd.Flags().String("work-dir", "", "Directory for temporary clones. (Overrides config/env)")

	scanCmd.Flags().StringVar(&opts.repoName, "repo-name", "", "Display name for the repository (single repository only)")
	scanCmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output file path for the report (default stdout)")
	scanCmd.Flags().StringVarP(&opts.format, "format", "f", reporting.FormatText, "Report format: text, json or sarif")
	scanCmd.Flags().StringVar(&opts.metricsOut, "metrics-out", "", "Write Prometheus metrics in textfile format to this path")

	return scanCmd
}

// runScan wires the collaborators, runs every target and writes the report.
// It fails when any repository failed.
func runScan(
	ctx context.Context,
	logger *zap.Logger,
	cfg *config.Config,
	targets []orchestrator.Target,
	opts scanOptions,
	stores storeProvider,
	clients clientProvider,
	summaryOut io.Writer,
) error {
	llm, err := clients(ctx, cfg.Agent.LLM, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize model clients: %w", err)
	}
	defer func() {
		if err := llm.Close(); err != nil {
			logger.Warn("Failed to close model clients", zap.Error(err))
		}
	}()

	deps := orchestrator.Dependencies{
		Source:  source.NewGitSource(cfg.Source, cfg.Git, cfg.Scan, logger),
		LLM:     llm,
		Metrics: observability.NewScanMetrics(),
	}
	if cfg.Source.GitHubToken != "" {
		deps.Describer = source.NewGitHubDescriber(cfg.Source.GitHubToken, logger)
	}

	st, cleanup, err := stores.Create(ctx, cfg)
	switch {
	case errors.Is(err, errNoDatabase):
		logger.Warn("Database not configured; findings will not be persisted")
	case err != nil:
		return fmt.Errorf("failed to initialize store: %w", err)
	default:
		deps.Store = st
		if cleanup != nil {
			defer cleanup()
		}
	}

	orch, err := orchestrator.New(cfg, logger, deps)
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	reporter, err := reporting.New(opts.format, opts.output, Version)
	if err != nil {
		return fmt.Errorf("failed to initialize reporter: %w", err)
	}

	logger.Info("Starting scan",
		zap.Int("repositories", len(targets)),
		zap.Int("concurrency", cfg.Scan.Concurrency),
		zap.Bool("force_deep", cfg.Scan.ForceDeep),
		zap.String("fast_model", cfg.Agent.LLM.DefaultFastModel),
		zap.String("powerful_model", cfg.Agent.LLM.DefaultPowerfulModel),
	)
	result := orch.RunScans(ctx, targets)

	if opts.metricsOut != "" {
		if err := deps.Metrics.WriteTextfile(opts.metricsOut); err != nil {
			logger.Warn("Failed to write metrics", zap.String("path", opts.metricsOut), zap.Error(err))
		}
	}

	if err := writeScanReport(reporter, result); err != nil {
		return err
	}
	printSummary(summaryOut, result.Summary)

	if err := ctx.Err(); err != nil {
		return err
	}
	if n := len(result.Summary.Errors); n > 0 {
		return fmt.Errorf("%d of %d repositories failed", n, len(targets))
	}
	return nil
}

// writeScanReport writes one envelope per scan id, in scan order.
func writeScanReport(reporter reporting.Reporter, result orchestrator.Result) error {
	byScan := make(map[string][]schemas.Finding, len(result.Summary.ScanIDs))
	for _, f := range result.Findings {
		byScan[f.ScanID] = append(byScan[f.ScanID], f)
	}

	now := time.Now().UTC()
	var writeErr error
	for _, id := range result.Summary.ScanIDs {
		writeErr = reporter.Write(&schemas.ResultEnvelope{ScanID: id, Timestamp: now, Findings: byScan[id]})
		if writeErr != nil {
			break
		}
	}
	closeErr := reporter.Close()

	if writeErr != nil {
		return fmt.Errorf("failed to write report: %w", writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to finalize report: %w", closeErr)
	}
	return nil
}

func printSummary(w io.Writer, s schemas.ScanSummary) {
	fmt.Fprintf(w, "\nScan complete: %d file(s) scanned, %d skipped, %d finding(s), %d escalation(s), %d file error(s)\n",
		s.TotalFiles, s.SkippedFiles, s.TotalFindings, s.Escalations, s.FileErrors)
	for _, id := range s.ScanIDs {
		fmt.Fprintf(w, "  scan id: %s\n", id)
	}
	for _, e := range s.Errors {
		fmt.Fprintf(w, "  FAILED %s: %s\n", e.Repo, e.Error)
	}
}
