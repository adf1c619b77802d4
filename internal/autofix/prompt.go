// internal/autofix/prompt.go
package autofix

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xkilldash9x/codedoc/api/schemas"
	"github.com/xkilldash9x/codedoc/internal/autofix/coroner"
	"github.com/xkilldash9x/codedoc/internal/config"
	"github.com/xkilldash9x/codedoc/internal/llmutil"
)

// Feedback modes.
const (
	FeedbackFull = "full"
	FeedbackTail = "tail"
	FeedbackNone = "none"
)

// maxDiffBytes bounds the diff pasted into an explanation prompt.
const maxDiffBytes = 16 * 1024

const defaultSystemPrompt = `You are an expert software engineer repairing a single source file. Fix the reported issues and any failing tests with the smallest correct change. Preserve the public interface, formatting and comments of code you do not need to touch. Reply with the complete corrected file in one fenced code block, or with a unified diff against the current content. Do not add explanations outside the code block.`

// PromptBuilder renders repair prompts. Retry prompts carry the outcome of
// the previous attempt according to the feedback policy.
type PromptBuilder struct {
	systemPrompt string
	feedback     config.FeedbackConfig
	coroner      *coroner.Parser
}

// NewPromptBuilder creates a builder. An empty systemPrompt selects the
// built-in instructions.
func NewPromptBuilder(systemPrompt string, feedback config.FeedbackConfig) *PromptBuilder {
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}
	if feedback.Mode == "" {
		feedback.Mode = FeedbackFull
	}
	return &PromptBuilder{
		systemPrompt: systemPrompt,
		feedback:     feedback,
		coroner:      coroner.NewParser(),
	}
}

// SystemPrompt returns the instructions sent with every attempt.
func (b *PromptBuilder) SystemPrompt() string {
	return b.systemPrompt
}

// Build renders the user prompt for the next attempt. prev is the previous
// attempt, or nil for the first one.
func (b *PromptBuilder) Build(unit SourceUnit, fence, working string, findings []schemas.Finding, prev *schemas.Attempt) string {
	var sb strings.Builder

	lang := unit.Language
	if lang == "" {
		lang = "source"
	}
	fmt.Fprintf(&sb, "Repair the %s file `%s`.\n\n", lang, unit.Path)

	if len(findings) == 0 {
		sb.WriteString("Static analysis reported no findings.\n\n")
	} else {
		sb.WriteString("Static analysis findings:\n")
		for _, f := range findings {
			fmt.Fprintf(&sb, "- line %d: [%s] %s (%s, %s)\n", f.Location.Line, f.Rule, f.Message, f.Kind, f.Severity)
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "Current content:\n```%s\n%s", fence, working)
	if !strings.HasSuffix(working, "\n") {
		sb.WriteString("\n")
	}
	sb.WriteString("```\n")

	if prev != nil {
		sb.WriteString("\n")
		b.writeFeedback(&sb, unit, working, prev)
	}
	return sb.String()
}

func (b *PromptBuilder) writeFeedback(sb *strings.Builder, unit SourceUnit, working string, prev *schemas.Attempt) {
	switch prev.Status {
	case schemas.AttemptGenerationFailed:
		fmt.Fprintf(sb, "Attempt %d did not produce a response. Try again.\n", prev.Ordinal)
		return
	case schemas.AttemptParseFailed:
		fmt.Fprintf(sb, "Attempt %d could not be used: %s. Reply with the complete file in one fenced code block.\n", prev.Ordinal, prev.Error)
		return
	}

	v := prev.Verdict
	if v == nil {
		fmt.Fprintf(sb, "Attempt %d was rejected: %s.\n", prev.Ordinal, prev.Error)
		return
	}
	if v.TimedOut {
		fmt.Fprintf(sb, "Attempt %d was rejected: the test suite timed out after %s.\n", prev.Ordinal, v.Duration.Round(time.Millisecond))
	} else {
		fmt.Fprintf(sb, "Attempt %d was rejected: the test suite failed with exit code %d.\n", prev.Ordinal, v.ExitCode)
	}

	output := v.Output()
	switch b.feedback.Mode {
	case FeedbackNone:
	case FeedbackTail:
		b.writeBlock(sb, "Last lines of the test output:", tailLines(output, b.feedback.TailLines))
	default:
		b.writeBlock(sb, "Test output:", output)
	}

	if !b.feedback.Excerpt {
		return
	}
	loc := coroner.Primary(b.coroner.Locate(output), projectRelative(unit))
	if loc == nil {
		return
	}
	excerpt := codeExcerpt(working, loc.Line, b.feedback.ExcerptLines)
	if excerpt == "" {
		return
	}
	header := fmt.Sprintf("The failure points at line %d of `%s`", loc.Line, unit.Path)
	if loc.Message != "" {
		header += " (" + loc.Message + ")"
	}
	b.writeBlock(sb, header+":", excerpt)
}

// projectRelative is the unit's path as test runners inside the sandbox
// print it.
func projectRelative(unit SourceUnit) string {
	if unit.ProjectRoot == "" {
		return filepath.Base(unit.Path)
	}
	rel, err := filepath.Rel(unit.ProjectRoot, unit.Path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return unit.Path
	}
	return rel
}

// writeBlock pastes body as a fenced block, cut to feedback.max_bytes.
func (b *PromptBuilder) writeBlock(sb *strings.Builder, title, body string) {
	if b.feedback.MaxBytes > 0 {
		body = llmutil.Truncate(body, b.feedback.MaxBytes)
	}
	body = strings.TrimRight(body, "\n")
	if body == "" {
		return
	}
	fmt.Fprintf(sb, "%s\n```\n%s\n```\n", title, body)
}

func tailLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if n <= 0 || len(lines) <= n {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}

// codeExcerpt returns a numbered window of about size lines around lineNum,
// with the target line marked "->". It returns "" for lines outside source.
func codeExcerpt(source string, lineNum, size int) string {
	lines := strings.Split(source, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if lineNum <= 0 || lineNum > len(lines) {
		return ""
	}
	if size < 1 {
		size = 1
	}

	start := lineNum - size/2 - 1
	if start < 0 {
		start = 0
	}
	end := start + size
	if end > len(lines) {
		end = len(lines)
		start = end - size
		if start < 0 {
			start = 0
		}
	}

	width := len(strconv.Itoa(end))
	out := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		prefix := "  "
		if i+1 == lineNum {
			prefix = "->"
		}
		out = append(out, fmt.Sprintf("%s %*d | %s", prefix, width, i+1, lines[i]))
	}
	return strings.Join(out, "\n")
}
