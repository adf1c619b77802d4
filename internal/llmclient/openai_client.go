// internal/llmclient/openai_client.go
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/xkilldash9x/codedoc/api/schemas"
	"github.com/xkilldash9x/codedoc/internal/config"
)

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint. The
// local llama.cpp server, Ollama and the hosted OpenAI API all speak this
// protocol, so one client covers the three providers.
type OpenAIClient struct {
	client         *openai.Client
	config         config.LLMModelConfig
	logger         *zap.Logger
	backoffFactory func() backoff.BackOff
}

// NewOpenAIClient initializes the client from a model configuration.
func NewOpenAIClient(cfg config.LLMModelConfig, retryMaxElapsed time.Duration, logger *zap.Logger) (*OpenAIClient, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		if cfg.Provider == config.ProviderOpenAI {
			return nil, fmt.Errorf("OpenAI API Key is required")
		}
		// Local servers ignore the key but the header must be present.
		apiKey = "sk-no-key-required"
	}

	oaCfg := openai.DefaultConfig(apiKey)
	if cfg.Endpoint != "" {
		oaCfg.BaseURL = cfg.Endpoint
	}
	if cfg.APITimeout > 0 {
		oaCfg.HTTPClient = &http.Client{Timeout: cfg.APITimeout}
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(oaCfg),
		config: cfg,
		logger: logger.Named("llm_client.openai").With(zap.String("model", cfg.Model)),
		backoffFactory: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			b.MaxElapsedTime = retryMaxElapsed
			return b
		},
	}, nil
}

// Generate sends the prompts as a chat completion and returns the first choice.
// Transient failures (network errors, 429 and 5xx) are retried with
// exponential backoff until the request's timeout expires.
func (c *OpenAIClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	if req.Options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Options.Timeout)
		defer cancel()
	}

	chatReq := c.buildRequest(req)
	var content string

	operation := func() error {
		start := time.Now()
		resp, err := c.client.CreateChatCompletion(ctx, chatReq)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			if isTransient(err) {
				c.logger.Warn("Transient error during LLM request, retrying...", zap.Error(err))
				return err
			}
			return backoff.Permanent(err)
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("backend returned no choices"))
		}

		c.logger.Debug("LLM generation complete",
			zap.Duration("duration", time.Since(start)),
			zap.String("finish_reason", string(resp.Choices[0].FinishReason)),
			zap.Int("prompt_tokens", resp.Usage.PromptTokens),
			zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		)
		content = resp.Choices[0].Message.Content
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(c.backoffFactory(), ctx)); err != nil {
		return "", classify(ctx, string(c.config.Provider), c.config.Model, err)
	}
	return content, nil
}

// ListModels returns the model identifiers advertised by the endpoint.
func (c *OpenAIClient) ListModels(ctx context.Context) ([]string, error) {
	list, err := c.client.ListModels(ctx)
	if err != nil {
		return nil, classify(ctx, string(c.config.Provider), c.config.Model, err)
	}
	ids := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// Close is a no-op; the underlying HTTP client holds no resources.
func (c *OpenAIClient) Close() error { return nil }

func (c *OpenAIClient) buildRequest(req schemas.GenerationRequest) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.UserPrompt})

	chatReq := openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Messages:    messages,
		TopP:        c.config.TopP,
		MaxTokens:   c.config.MaxTokens,
		Stop:        req.Options.StopSequences,
	}
	// Per-request options override the model defaults.
	temperature := c.config.Temperature
	if req.Options.Temperature != nil {
		temperature = float32(*req.Options.Temperature)
	}
	if temperature == 0 {
		// go-openai omits a zero temperature, which hands the choice to the
		// server. This is the library's marker for an explicit zero.
		temperature = math.SmallestNonzeroFloat32
	}
	chatReq.Temperature = temperature
	if req.Options.TopP > 0 {
		chatReq.TopP = float32(req.Options.TopP)
	}
	if req.Options.MaxTokens > 0 {
		chatReq.MaxTokens = req.Options.MaxTokens
	}
	if req.Options.ForceJSONFormat {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	return chatReq
}

// isTransient reports whether a failed call is worth retrying.
func isTransient(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
