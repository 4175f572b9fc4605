package llmclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/xkilldash9x/codebouncer/api/schemas"
	"github.com/xkilldash9x/codebouncer/internal/config"
)

const (
	defaultOllamaEndpoint = "http://localhost:11434/v1"
	responseSchemaName    = "scan_result"
)

// OpenAIClient implements schemas.LLMClient for OpenAI and for
// OpenAI-compatible servers such as Ollama.
type OpenAIClient struct {
	client *openai.Client
	config config.LLMModelConfig
	logger *zap.Logger
}

// NewOpenAIClient initializes the client. An API key is required unless the
// provider is Ollama.
func NewOpenAIClient(cfg config.LLMModelConfig, logger *zap.Logger) (*OpenAIClient, error) {
	apiKey := cfg.APIKey
	endpoint := cfg.Endpoint

	switch cfg.Provider {
	case config.ProviderOllama:
		if endpoint == "" {
			endpoint = defaultOllamaEndpoint
		}
		if apiKey == "" {
			apiKey = "ollama"
		}
	default:
		if apiKey == "" {
			return nil, fmt.Errorf("openai API key is required")
		}
	}

	oc := openai.DefaultConfig(apiKey)
	if endpoint != "" {
		oc.BaseURL = endpoint
	}
	// Attempts are bounded by context, not by the transport.
	oc.HTTPClient = &http.Client{}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(oc),
		config: cfg,
		logger: logger.Named("llm_client." + string(cfg.Provider)),
	}, nil
}

// Generate sends a chat completion and returns the first choice's content.
func (c *OpenAIClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	chatReq := c.buildRequest(req)

	return callWithRetry(ctx, c.config, c.logger, func(ctx context.Context) (string, error) {
		start := time.Now()
		resp, err := c.client.CreateChatCompletion(ctx, chatReq)
		if err != nil {
			return "", c.classifyError(err)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("%s API returned no choices", c.config.Provider)
		}
		text := resp.Choices[0].Message.Content
		if text == "" {
			return "", fmt.Errorf("%s API returned empty content (Reason: %s)", c.config.Provider, resp.Choices[0].FinishReason)
		}

		c.logger.Debug("LLM generation complete",
			zap.String("model", c.config.Model),
			zap.Duration("duration", time.Since(start)),
			zap.Int("prompt_tokens", resp.Usage.PromptTokens),
			zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			zap.Int("total_tokens", resp.Usage.TotalTokens),
		)
		return text, nil
	})
}

func (c *OpenAIClient) buildRequest(req schemas.GenerationRequest) openai.ChatCompletionRequest {
	var messages []openai.ChatCompletionMessage
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.UserPrompt})

	chatReq := openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Messages:    messages,
		Temperature: firstNonZero(req.Options.Temperature, c.config.Temperature),
		TopP:        firstNonZero(req.Options.TopP, c.config.TopP),
		MaxTokens:   c.config.MaxTokens,
	}

	switch {
	case req.ResponseSchema != nil:
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   responseSchemaName,
				Schema: req.ResponseSchema,
			},
		}
	case req.Options.ForceJSONFormat:
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	return chatReq
}

func (c *OpenAIClient) classifyError(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	default:
		return err
	}

	c.logger.Error("API returned error status", zap.Int("status", status), zap.Error(err))
	if !retryableStatus(status) {
		return backoff.Permanent(err)
	}
	return err
}

// Close releases resources. The underlying client holds none.
func (c *OpenAIClient) Close() error {
	return nil
}
