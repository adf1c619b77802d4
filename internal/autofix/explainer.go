// internal/autofix/explainer.go
package autofix

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/codedoc/api/schemas"
	"github.com/xkilldash9x/codedoc/internal/llmutil"
)

// Explanation is the structured reply the explainer asks the model for.
type Explanation struct {
	Summary string   `json:"summary"`
	Changes []string `json:"changes"`
}

// Explainer asks the fast model tier to describe an accepted diff in prose.
type Explainer struct {
	logger  *zap.Logger
	llm     schemas.LLMClient
	timeout time.Duration
}

// NewExplainer creates an explainer. A zero timeout leaves the call bounded
// only by the caller's context.
func NewExplainer(logger *zap.Logger, llm schemas.LLMClient, timeout time.Duration) *Explainer {
	return &Explainer{
		logger:  logger.Named("explainer"),
		llm:     llm,
		timeout: timeout,
	}
}

const explainerSystemPrompt = `You are a senior engineer writing a short change note for a code review. Describe what the diff changes and why, in plain language. Reply with a JSON object only.`

// Explain returns a short prose account of d.
func (e *Explainer) Explain(ctx context.Context, unit SourceUnit, d *schemas.Diff, findings []schemas.Finding) (string, error) {
	req := schemas.GenerationRequest{
		SystemPrompt: explainerSystemPrompt,
		UserPrompt:   e.buildPrompt(unit, d, findings),
		Tier:         schemas.TierFast,
		Options: schemas.GenerationOptions{
			ForceJSONFormat: true,
			Temperature:     schemas.Ptr(0.1),
			MaxTokens:       512,
			Timeout:         e.timeout,
		},
	}

	response, err := e.llm.Generate(ctx, req)
	if err != nil {
		return "", fmt.Errorf("explanation generation failed: %w", err)
	}

	parsed, err := llmutil.ParseJSONResponse[Explanation](response)
	if err != nil {
		e.logger.Debug("Failed to parse explanation response.", zap.Error(err), zap.String("raw_response", llmutil.Truncate(response, 512)))
		return "", err
	}
	if strings.TrimSpace(parsed.Summary) == "" {
		return "", fmt.Errorf("explanation response is missing the summary field")
	}

	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(parsed.Summary))
	for _, c := range parsed.Changes {
		if c = strings.TrimSpace(c); c != "" {
			sb.WriteString("\n- ")
			sb.WriteString(c)
		}
	}
	return sb.String(), nil
}

func (e *Explainer) buildPrompt(unit SourceUnit, d *schemas.Diff, findings []schemas.Finding) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "The following change to `%s` was accepted because the test suite passed.\n\n", unit.Path)
	if len(findings) > 0 {
		sb.WriteString("Static analysis findings on the original:\n")
		for _, f := range findings {
			fmt.Fprintf(&sb, "- line %d: [%s] %s\n", f.Location.Line, f.Rule, f.Message)
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Diff:\n```diff\n%s```\n\n", llmutil.Truncate(d.Unified, maxDiffBytes))
	sb.WriteString(`Response format (strict JSON):
{
  "summary": "One or two sentences describing the fix.",
  "changes": ["One entry per notable change."]
}
`)
	return sb.String()
}
