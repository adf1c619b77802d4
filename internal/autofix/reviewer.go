// internal/autofix/reviewer.go
package autofix

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/codedoc/api/schemas"
	"github.com/xkilldash9x/codedoc/internal/llmutil"
)

// ErrEmptyReview means the model answered with nothing to show.
var ErrEmptyReview = errors.New("model returned an empty review")

// maxReviewSourceBytes bounds the file content pasted into a review prompt.
const maxReviewSourceBytes = 32 * 1024

const reviewerSystemPrompt = `You are a senior software engineer reviewing a single source file. Be concrete and brief. Refer to line numbers where it helps. Reply in Markdown.`

// Reviewer asks the fast model tier for a Markdown review of a source file,
// seeded with the static analysis findings.
type Reviewer struct {
	logger  *zap.Logger
	llm     schemas.LLMClient
	timeout time.Duration
}

// NewReviewer creates a reviewer. A zero timeout leaves the call bounded only
// by the caller's context.
func NewReviewer(logger *zap.Logger, llm schemas.LLMClient, timeout time.Duration) *Reviewer {
	return &Reviewer{
		logger:  logger.Named("reviewer"),
		llm:     llm,
		timeout: timeout,
	}
}

// Review returns the model's Markdown review of unit.
func (r *Reviewer) Review(ctx context.Context, unit SourceUnit, findings []schemas.Finding) (string, error) {
	req := schemas.GenerationRequest{
		SystemPrompt: reviewerSystemPrompt,
		UserPrompt:   r.buildPrompt(unit, findings),
		Tier:         schemas.TierFast,
		Options: schemas.GenerationOptions{
			Temperature: schemas.Ptr(0.2),
			MaxTokens:   1024,
			Timeout:     r.timeout,
		},
	}

	response, err := r.llm.Generate(ctx, req)
	if err != nil {
		return "", fmt.Errorf("review generation failed: %w", err)
	}
	review := unwrapMarkdown(response)
	if review == "" {
		r.logger.Debug("Review response was empty.", zap.String("path", unit.Path), zap.String("raw_response", llmutil.Truncate(response, 512)))
		return "", ErrEmptyReview
	}
	return review, nil
}

func (r *Reviewer) buildPrompt(unit SourceUnit, findings []schemas.Finding) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Review the file `%s`.\n\n", unit.Path)
	if len(findings) == 0 {
		sb.WriteString("Static analysis reported no findings.\n\n")
	} else {
		sb.WriteString("Static analysis findings:\n")
		for _, f := range findings {
			fmt.Fprintf(&sb, "- line %d: [%s] %s (%s)\n", f.Location.Line, f.Rule, f.Message, f.Severity)
		}
		sb.WriteString("\n")
	}

	content := llmutil.Truncate(unit.Content, maxReviewSourceBytes)
	fmt.Fprintf(&sb, "Code:\n```%s\n%s", fenceTag(unit), content)
	if !strings.HasSuffix(content, "\n") {
		sb.WriteString("\n")
	}
	sb.WriteString("```\n\n")
	sb.WriteString(`Provide these sections:
## Summary
What the code does, in a few sentences.
## Potential bugs and security risks
Confirm or dismiss the findings above and add anything they missed.
## Suggestions
Improvements to style, structure or performance.
`)
	return sb.String()
}

// unwrapMarkdown trims reply and drops a fence that wraps the whole of it.
func unwrapMarkdown(reply string) string {
	reply = strings.TrimSpace(reply)
	first, rest, ok := strings.Cut(reply, "\n")
	if !ok || !strings.HasPrefix(first, "```") || !strings.HasSuffix(rest, "```") {
		return reply
	}
	switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(first, "```"))) {
	case "", "markdown", "md":
		return strings.TrimSpace(strings.TrimSuffix(rest, "```"))
	}
	return reply
}
