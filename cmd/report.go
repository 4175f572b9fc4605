package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/codebouncer/api/schemas"
	"github.com/xkilldash9x/codebouncer/internal/config"
	"github.com/xkilldash9x/codebouncer/internal/observability"
	"github.com/xkilldash9x/codebouncer/internal/reporting"
	"github.com/xkilldash9x/codebouncer/internal/results"
	"github.com/xkilldash9x/codebouncer/internal/store"
)

// newReportCmd creates and configures the `report` command.
func newReportCmd(provider storeProvider) *cobra.Command {
	var scanID string
	var outputPath string
	var format string

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Generate a report for a persisted scan",
		Long: `Loads a scan and its findings from the database, normalizes and
deduplicates them, fills gaps from the CWE catalog, and renders them in
priority order as JSON, SARIF or plain text.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			return runReport(ctx, logger, cfg, scanID, outputPath, format, provider)
		},
	}

	reportCmd.Flags().StringVar(&scanID, "scan-id", "", "The ID of the scan to generate a report for (required)")
	_ = reportCmd.MarkFlagRequired("scan-id")
	reportCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path. If unset, the report is printed to stdout.")
	reportCmd.Flags().StringVarP(&format, "format", "f", reporting.FormatJSON, "Format for the output report ('json', 'sarif' or 'text').")

	return reportCmd
}

// runReport contains the core, testable logic for generating a report.
func runReport(
	ctx context.Context,
	logger *zap.Logger,
	cfg *config.Config,
	scanID, outputPath, format string,
	provider storeProvider,
) error {
	logger.Info("Starting report generation", zap.String("scan_id", scanID))

	storeService, cleanup, err := provider.Create(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}

	report, err := results.NewPipeline(storeService, logger).ProcessScanResults(ctx, scanID)
	if err != nil {
		if errors.Is(err, store.ErrScanNotFound) {
			return fmt.Errorf("scan %s not found", scanID)
		}
		logger.Error("Failed to process results", zap.Error(err), zap.String("scan_id", scanID))
		return fmt.Errorf("failed to process scan results: %w", err)
	}
	logger.Info("Findings by severity", zap.Any("summary", report.Summary))

	envelope := &schemas.ResultEnvelope{
		ScanID:    scanID,
		Scan:      report.Scan,
		Timestamp: time.Now().UTC(),
		Findings:  report.Findings,
	}
	return writeReport(logger, envelope, outputPath, format)
}

// writeReport renders a single envelope to outputPath, or stdout when empty.
func writeReport(logger *zap.Logger, envelope *schemas.ResultEnvelope, outputPath, format string) error {
	reporter, err := reporting.New(format, outputPath, Version)
	if err != nil {
		return fmt.Errorf("failed to initialize reporter: %w", err)
	}

	if err := reporter.Write(envelope); err != nil {
		_ = reporter.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := reporter.Close(); err != nil {
		return fmt.Errorf("failed to finalize report: %w", err)
	}

	if outputPath != "" {
		logger.Info("Report successfully written to file", zap.String("path", outputPath))
	}
	return nil
}
