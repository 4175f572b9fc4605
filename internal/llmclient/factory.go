// internal/llmclient/factory.go
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/codebouncer/api/schemas"
	"github.com/xkilldash9x/codebouncer/internal/config"
)

// NewClient creates the provider client for a single model.
func NewClient(ctx context.Context, cfg config.LLMModelConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiClient(ctx, cfg, logger)
	case config.ProviderOpenAI, config.ProviderOllama:
		return NewOpenAIClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s, %s, %s]",
			cfg.Provider, config.ProviderGemini, config.ProviderOpenAI, config.ProviderOllama)
	}
}

// NewRouterFromConfig builds the fast and powerful tier clients from the
// router configuration and wraps them in an LLMRouter.
func NewRouterFromConfig(ctx context.Context, cfg config.LLMRouterConfig, logger *zap.Logger) (*LLMRouter, error) {
	if cfg.DefaultFastModel == "" || cfg.DefaultPowerfulModel == "" {
		return nil, fmt.Errorf("both default_fast_model and default_powerful_model must be configured")
	}

	fast, err := NewClient(ctx, cfg.ModelConfig(cfg.DefaultFastModel), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize fast tier client (%s): %w", cfg.DefaultFastModel, err)
	}
	powerful, err := NewClient(ctx, cfg.ModelConfig(cfg.DefaultPowerfulModel), logger)
	if err != nil {
		_ = fast.Close()
		return nil, fmt.Errorf("failed to initialize powerful tier client (%s): %w", cfg.DefaultPowerfulModel, err)
	}

	return NewLLMRouter(logger, fast, powerful)
}
