package schemas

import (
	"context"
	"time"
)

// -- Session Archive Interface --

// SessionStore persists terminal repair outcomes so they can be audited after
// the process that produced them has exited.
type SessionStore interface {
	// SaveResult archives the Result of a finished session.
	SaveResult(ctx context.Context, rec SessionRecord) error
	// GetResult loads a single archived session by its ID.
	GetResult(ctx context.Context, sessionID string) (*SessionRecord, error)
	// ListResults returns the most recent archived sessions, newest first.
	ListResults(ctx context.Context, limit int) ([]SessionSummary, error)
	// Close releases the underlying connection pool.
	Close() error
}

// -- LLM Interfaces --

// ModelTier defines the tier of the language model to be used for a
// generation request. The fast tier is used for cheap auxiliary prompts, the
// powerful tier for the repair itself.
type ModelTier string

const (
	TierFast     ModelTier = "fast"
	TierPowerful ModelTier = "powerful"
)

// GenerationOptions bounds a single generation call.
type GenerationOptions struct {
	MaxTokens       int           `json:"max_tokens"`        // Upper bound on generated tokens. Zero means backend default.
	Temperature     *float64      `json:"temperature"`       // Sampling randomness. Nil means model default, 0 is deterministic.
	TopP            float64       `json:"top_p"`             // Nucleus sampling parameter.
	StopSequences   []string      `json:"stop_sequences"`    // Substrings that end generation early.
	Timeout         time.Duration `json:"timeout"`           // Wall-clock bound for the call. Zero means no extra bound.
	ForceJSONFormat bool          `json:"force_json_format"` // If true, asks the backend for a JSON object.
}

// GenerationRequest encapsulates a complete request to the LLM, including the
// system and user prompts, the desired model tier, and generation options.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"`
	UserPrompt   string            `json:"user_prompt"`
	Tier         ModelTier         `json:"tier"`
	Options      GenerationOptions `json:"options"`
}

// LLMClient defines a standard interface for interacting with a text
// generation backend, abstracting the specifics of the provider.
type LLMClient interface {
	// Generate produces a text completion based on the provided request.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	// Close cleans up any resources held by the client.
	Close() error
}

// Ptr returns a pointer to v, for optional option fields.
func Ptr[T any](v T) *T {
	return &v
}
