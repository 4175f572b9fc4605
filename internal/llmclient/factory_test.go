package llmclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/codebouncer/internal/config"
)

func TestNewClient(t *testing.T) {
	logger, _ := setupTestLogger(t)
	ctx := context.Background()

	t.Run("gemini", func(t *testing.T) {
		client, err := NewClient(ctx, getValidLLMConfig(config.ProviderGemini), logger)
		require.NoError(t, err)
		assert.IsType(t, &GeminiClient{}, client)
	})

	t.Run("openai", func(t *testing.T) {
		client, err := NewClient(ctx, getValidLLMConfig(config.ProviderOpenAI), logger)
		require.NoError(t, err)
		assert.IsType(t, &OpenAIClient{}, client)
	})

	t.Run("ollama", func(t *testing.T) {
		client, err := NewClient(ctx, getValidLLMConfig(config.ProviderOllama), logger)
		require.NoError(t, err)
		assert.IsType(t, &OpenAIClient{}, client)
	})

	t.Run("unsupported provider", func(t *testing.T) {
		client, err := NewClient(ctx, getValidLLMConfig("anthropic-v0"), logger)
		assert.Nil(t, client)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown or unsupported LLM provider configured: 'anthropic-v0'")
	})
}

func TestNewRouterFromConfig(t *testing.T) {
	logger, _ := setupTestLogger(t)
	ctx := context.Background()

	base := config.LLMRouterConfig{
		DefaultFastModel:     "gemini-2.5-flash",
		DefaultPowerfulModel: "gemini-2.5-pro",
		Provider:             config.ProviderGemini,
		APIKey:               "key",
		MaxRetries:           3,
	}

	t.Run("builds both tiers", func(t *testing.T) {
		router, err := NewRouterFromConfig(ctx, base, logger)
		require.NoError(t, err)
		require.NotNil(t, router)
		assert.NoError(t, router.Close())
	})

	t.Run("requires both models", func(t *testing.T) {
		cfg := base
		cfg.DefaultPowerfulModel = ""
		router, err := NewRouterFromConfig(ctx, cfg, logger)
		assert.Nil(t, router)
		assert.Error(t, err)
	})

	t.Run("propagates client errors", func(t *testing.T) {
		cfg := base
		cfg.APIKey = ""
		router, err := NewRouterFromConfig(ctx, cfg, logger)
		assert.Nil(t, router)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to initialize fast tier client (gemini-2.5-flash)")
	})
}
