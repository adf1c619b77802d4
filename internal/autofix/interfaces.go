// internal/autofix/interfaces.go
package autofix

import (
	"context"

	"github.com/xkilldash9x/codedoc/api/schemas"
	"github.com/xkilldash9x/codedoc/internal/diffcomposer"
	"github.com/xkilldash9x/codedoc/internal/oracle"
)

// IssueDetector produces position-ordered findings for a source unit.
type IssueDetector interface {
	Detect(ctx context.Context, path, language, content string) ([]schemas.Finding, error)
}

// SyntaxChecker rejects candidates that do not parse. A nil checker accepts
// everything.
type SyntaxChecker interface {
	CheckSyntax(ctx context.Context, language, content string) error
}

// TestOracle runs the project's tests against a working tree.
type TestOracle interface {
	Run(ctx context.Context, tree oracle.Tree) (schemas.TestVerdict, error)
}

// DiffComposer diffs, patches and summarizes source text.
type DiffComposer interface {
	Compose(path, original, candidate string) *schemas.Diff
	ApplyUnified(original, patch string) (string, error)
	Summarize(d *schemas.Diff, findings []schemas.Finding) diffcomposer.Summary
}
