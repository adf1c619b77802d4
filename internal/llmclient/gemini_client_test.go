package llmclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/codedoc/api/schemas"
	"github.com/xkilldash9x/codedoc/internal/config"
)

func geminiConfig() config.LLMModelConfig {
	cfg := getValidLLMConfig()
	cfg.Provider = config.ProviderGemini
	cfg.Endpoint = ""
	cfg.APIKey = "test-api-key"
	cfg.Model = "gemini-2.5-flash"
	return cfg
}

func TestNewGeminiClient(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		client, err := NewGeminiClient(context.Background(), geminiConfig(), time.Second, setupTestLogger(t))
		require.NoError(t, err)
		require.NotNil(t, client)
		assert.NotNil(t, client.backoffFactory)
		assert.NoError(t, client.Close())
	})

	t.Run("missing api key", func(t *testing.T) {
		cfg := geminiConfig()
		cfg.APIKey = ""
		client, err := NewGeminiClient(context.Background(), cfg, time.Second, setupTestLogger(t))
		assert.Nil(t, client)
		assert.ErrorContains(t, err, "Gemini API Key is required")
	})
}

func TestGeminiClient_BuildConfig(t *testing.T) {
	client, err := NewGeminiClient(context.Background(), geminiConfig(), time.Second, setupTestLogger(t))
	require.NoError(t, err)

	t.Run("request options win", func(t *testing.T) {
		gc := client.buildConfig(createTestRequest())
		require.NotNil(t, gc.Temperature)
		assert.InDelta(t, 0.4, *gc.Temperature, 1e-6)
		assert.Equal(t, int32(256), gc.MaxOutputTokens)
		assert.Equal(t, []string{"<END>"}, gc.StopSequences)
		require.NotNil(t, gc.SystemInstruction)
		require.Len(t, gc.SystemInstruction.Parts, 1)
		assert.Equal(t, "You repair code.", gc.SystemInstruction.Parts[0].Text)
		assert.Empty(t, gc.ResponseMIMEType)
	})

	t.Run("model defaults and json mode", func(t *testing.T) {
		gc := client.buildConfig(schemas.GenerationRequest{UserPrompt: "u", Options: schemas.GenerationOptions{ForceJSONFormat: true}})
		assert.InDelta(t, 0.2, *gc.Temperature, 1e-6)
		assert.Equal(t, int32(512), gc.MaxOutputTokens)
		assert.Nil(t, gc.SystemInstruction)
		assert.Equal(t, "application/json", gc.ResponseMIMEType)
	})
	t.Run("explicit zero temperature is kept", func(t *testing.T) {
		req := createTestRequest()
		req.Options.Temperature = schemas.Ptr(0.0)
		gc := client.buildConfig(req)
		require.NotNil(t, gc.Temperature)
		assert.Zero(t, *gc.Temperature)
	})
}
