// internal/llmclient/factory.go
package llmclient

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/codedoc/api/schemas"
	"github.com/xkilldash9x/codedoc/internal/config"
)

// NewClient is a factory function that creates an LLMClient based on the model configuration.
func NewClient(ctx context.Context, cfg config.LLMModelConfig, retryMaxElapsed time.Duration, logger *zap.Logger) (schemas.LLMClient, error) {
	switch cfg.Provider {
	case config.ProviderLlamaCPP, config.ProviderOllama, config.ProviderOpenAI:
		return NewOpenAIClient(cfg, retryMaxElapsed, logger)
	case config.ProviderGemini:
		return NewGeminiClient(ctx, cfg, retryMaxElapsed, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s, %s, %s, %s]",
			cfg.Provider, config.ProviderLlamaCPP, config.ProviderOllama, config.ProviderOpenAI, config.ProviderGemini)
	}
}

// NewRouterFromConfig builds one client per distinct model referenced by the
// routing defaults and wraps them in an LLMRouter.
func NewRouterFromConfig(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (*LLMRouter, error) {
	built := make(map[string]schemas.LLMClient)
	resolve := func(name string) (schemas.LLMClient, error) {
		if c, ok := built[name]; ok {
			return c, nil
		}
		modelCfg, ok := cfg.Models[name]
		if !ok {
			return nil, fmt.Errorf("model %q is not defined in llm.models", name)
		}
		c, err := NewClient(ctx, modelCfg, cfg.RetryMaxElapsed, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create client for model %q: %w", name, err)
		}
		built[name] = c
		return c, nil
	}

	fast, err := resolve(cfg.DefaultFastModel)
	if err != nil {
		return nil, err
	}
	powerful, err := resolve(cfg.DefaultPowerfulModel)
	if err != nil {
		return nil, err
	}

	var opts []RouterOption
	if cfg.RequestsPerSecond > 0 {
		opts = append(opts, WithRateLimit(cfg.RequestsPerSecond, cfg.Burst))
	}
	return NewLLMRouter(logger, fast, powerful, opts...)
}
