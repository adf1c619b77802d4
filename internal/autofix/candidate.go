// internal/autofix/candidate.go
package autofix

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/codedoc/internal/detector"
	"github.com/xkilldash9x/codedoc/internal/diffcomposer"
	"github.com/xkilldash9x/codedoc/internal/llmutil"
)

var (
	// ErrEmptyGeneration means the model returned no usable text.
	ErrEmptyGeneration = errors.New("model returned no code")
	// ErrInvalidCandidate means the extracted code failed the syntax check
	// or a returned patch did not apply.
	ErrInvalidCandidate = errors.New("candidate is not valid")
	// ErrEmptyPatch means the model answered with a diff that adds and
	// removes nothing.
	ErrEmptyPatch = errors.New("patch changes no lines")
)

// parseCandidate turns raw model output into the full candidate text. The
// model may answer with the whole file or with a unified diff against the
// working content.
func (o *Orchestrator) parseCandidate(ctx context.Context, unit SourceUnit, working, raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", ErrEmptyGeneration
	}

	var aliases []string
	if lang, err := detector.ResolveLanguage(unit.Language, unit.Path); err == nil {
		aliases = lang.Aliases()
	}
	code, _ := llmutil.ExtractCode(raw, aliases...)
	if strings.TrimSpace(code) == "" {
		return "", ErrEmptyGeneration
	}

	candidate := code
	if looksLikePatch(code) {
		if !strings.HasSuffix(code, "\n") {
			code += "\n"
		}
		fd, err := diffcomposer.ParseUnified(code)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidCandidate, err)
		}
		added, removed := diffcomposer.LineStat(fd)
		if added == 0 && removed == 0 {
			return "", fmt.Errorf("%w: %w", ErrInvalidCandidate, ErrEmptyPatch)
		}
		o.logger.Debug("Model answered with a patch.", zap.String("path", unit.Path), zap.Int("added", added), zap.Int("removed", removed))
		patched, err := o.composer.ApplyUnified(working, code)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidCandidate, err)
		}
		candidate = patched
	}
	candidate = matchTrailingNewline(working, candidate)

	if o.syntax != nil {
		err := o.syntax.CheckSyntax(ctx, unit.Language, candidate)
		switch {
		case err == nil, errors.Is(err, detector.ErrUnsupportedLanguage):
		case ctx.Err() != nil:
			return "", ctx.Err()
		default:
			return "", fmt.Errorf("%w: syntax error at %v", ErrInvalidCandidate, err)
		}
	}
	return candidate, nil
}

func looksLikePatch(s string) bool {
	s = strings.TrimLeft(s, "\n")
	return strings.HasPrefix(s, "--- ") && strings.Contains(s, "\n+++ ") && strings.Contains(s, "\n@@ ")
}

// matchTrailingNewline gives candidate the same final-newline convention as
// the original so the diff does not report a spurious last-line change.
func matchTrailingNewline(original, candidate string) string {
	hasNL := strings.HasSuffix(original, "\n")
	switch {
	case hasNL && !strings.HasSuffix(candidate, "\n"):
		return candidate + "\n"
	case !hasNL && strings.HasSuffix(candidate, "\n"):
		return strings.TrimRight(candidate, "\n")
	default:
		return candidate
	}
}
