package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/codebouncer/api/schemas"
	"github.com/xkilldash9x/codebouncer/internal/extractor"
	"github.com/xkilldash9x/codebouncer/internal/llmclient"
	"github.com/xkilldash9x/codebouncer/internal/llmutil"
	"github.com/xkilldash9x/codebouncer/internal/prompts"
)

// payloadFor returns the focused snippet view of a file, or its full text
// when no region was flagged.
func payloadFor(c schemas.FileCandidate) (string, int) {
	snippets := extractor.ExtractSecuritySnippets(c.Content, c.Path)
	if focused := extractor.BuildFocusedContent(snippets, c.Path); focused != "" {
		return focused, len(snippets)
	}
	return c.Content, 0
}

// scanFile runs the triage pass and, when warranted, the deep pass for one
// file. Only a triage failure is returned as an error.
func (o *Orchestrator) scanFile(ctx context.Context, c schemas.FileCandidate, repoContext string) (PassResult, error) {
	logger := o.logger.With(zap.String("file", c.Path))
	payload, snippetCount := payloadFor(c)
	fc := prompts.NewFileContext(c, repoContext)

	logger.Debug("Triaging file",
		zap.Int("risk_score", c.RiskScore),
		zap.Int("snippets", snippetCount),
		zap.Int("payload_bytes", len(payload)),
	)

	raw, err := o.callModel(ctx, schemas.GenerationRequest{
		SystemPrompt:   prompts.TriageSystemPrompt,
		UserPrompt:     prompts.TriagePrompt(payload, fc),
		Tier:           schemas.TierFast,
		Options:        schemas.GenerationOptions{ForceJSONFormat: true},
		ResponseSchema: prompts.TriageSchema(),
	})
	if err != nil {
		return PassResult{}, fmt.Errorf("triage failed: %w", err)
	}
	triage, err := llmutil.ParseJSONResponse[schemas.TriageResponse](raw)
	if err != nil {
		return PassResult{}, fmt.Errorf("triage returned an unusable response: %w", err)
	}

	result := triageResult(*triage, o.cfg.Agent.LLM.DefaultFastModel)
	if len(triage.Findings) == 0 || !NeedsEscalation(triage.Findings, o.cfg.Scan.ForceDeep, o.cfg.Scan.DeepScanThreshold) {
		return result, nil
	}

	o.metrics.Escalations.Inc()
	logger.Info("Escalating to deep analysis", zap.Int("triage_findings", len(triage.Findings)))

	deep, err := o.deepPass(ctx, payload, fc, triage.Findings)
	if err != nil {
		o.metrics.DeepFallbacks.Inc()
		logger.Warn("Deep analysis failed, falling back to triage results",
			zap.String("model", result.Model()),
			zap.Error(err),
		)
		return result.withDeepFailure(err), nil
	}
	return result.withDeep(*deep, o.cfg.Agent.LLM.DefaultPowerfulModel), nil
}

func (o *Orchestrator) deepPass(ctx context.Context, payload string, fc prompts.FileContext, prior []schemas.ModelFinding) (*schemas.DeepResponse, error) {
	prompt, err := prompts.DeepPrompt(payload, fc, prior)
	if err != nil {
		return nil, err
	}
	raw, err := o.callModel(ctx, schemas.GenerationRequest{
		SystemPrompt:   prompts.DeepSystemPrompt,
		UserPrompt:     prompt,
		Tier:           schemas.TierPowerful,
		Options:        schemas.GenerationOptions{ForceJSONFormat: true},
		ResponseSchema: prompts.DeepSchema(),
	})
	if err != nil {
		return nil, err
	}
	return llmutil.ParseJSONResponse[schemas.DeepResponse](raw)
}

// callModel paces the request on the shared limiter and records its outcome.
func (o *Orchestrator) callModel(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("waiting for model call slot: %w", err)
	}

	start := time.Now()
	text, err := o.llm.Generate(ctx, req)

	outcome := "success"
	switch {
	case errors.Is(err, llmclient.ErrTimeout):
		outcome = "timeout"
	case err != nil:
		outcome = "error"
	}
	o.metrics.ObserveModelCall(string(req.Tier), outcome, time.Since(start))
	return text, err
}
