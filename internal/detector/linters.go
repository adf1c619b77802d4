package detector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/codedoc/api/schemas"
)

const defaultLinterTimeout = 5 * time.Second

// LinterStatus summarizes a linter run.
type LinterStatus string

const (
	LinterOK      LinterStatus = "ok"
	LinterIssue   LinterStatus = "issue"
	LinterMissing LinterStatus = "missing"
	LinterFailed  LinterStatus = "error"
)

// Linter describes an external tool invoked on a single file.
type Linter struct {
	Name      string
	Languages []Language
	Command   string
	Args      []string // The file path is appended.
	// Parse converts "path:line:col: CODE message" output lines into findings.
	Parse bool
}

func (l Linter) supports(lang Language) bool {
	for _, candidate := range l.Languages {
		if candidate == lang {
			return true
		}
	}
	return false
}

// LinterResult is the outcome of running one linter.
type LinterResult struct {
	Tool     string            `json:"tool" yaml:"tool"`
	Status   LinterStatus      `json:"status" yaml:"status"`
	Output   string            `json:"output,omitempty" yaml:"output,omitempty"`
	Findings []schemas.Finding `json:"findings,omitempty" yaml:"findings,omitempty"`
	Err      error             `json:"-" yaml:"-"`
}

var builtinLinters = map[string]Linter{
	"ruff":   {Name: "ruff", Languages: []Language{LangPython}, Command: "ruff", Args: []string{"check", "--output-format=concise"}, Parse: true},
	"black":  {Name: "black", Languages: []Language{LangPython}, Command: "black", Args: []string{"--check", "--diff"}},
	"flake8": {Name: "flake8", Languages: []Language{LangPython}, Command: "flake8", Parse: true},
	"govet":  {Name: "govet", Languages: []Language{LangGo}, Command: "go", Args: []string{"vet"}, Parse: true},
}

// lintLineRegex matches "path:line[:col]: message" with an optional "vet: " prefix.
var lintLineRegex = regexp.MustCompile(`^(?:vet: )?(.+?):(\d+):(?:(\d+):)?\s*(.+)$`)

// lintCodeRegex splits a leading rule code such as F401 off the message.
var lintCodeRegex = regexp.MustCompile(`^([A-Z]+[0-9]+)\s+(.*)$`)

// runLinters writes content to a scratch file and runs every linter that
// supports lang against it.
func (d *Detector) runLinters(ctx context.Context, lang Language, path, content string) []LinterResult {
	var applicable []Linter
	for _, l := range d.linters {
		if l.supports(lang) {
			applicable = append(applicable, l)
		}
	}
	if len(applicable) == 0 {
		return nil
	}

	dir, err := os.MkdirTemp("", "codedoc-lint-*")
	if err != nil {
		d.logger.Warn("Could not create linter scratch directory", zap.Error(err))
		return nil
	}
	defer os.RemoveAll(dir)

	name := filepath.Base(path)
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = "source" + lang.Extension()
	}
	scratch := filepath.Join(dir, name)
	if err := os.WriteFile(scratch, []byte(content), 0o600); err != nil {
		d.logger.Warn("Could not write linter scratch file", zap.Error(err))
		return nil
	}

	results := make([]LinterResult, 0, len(applicable))
	for _, l := range applicable {
		res := d.runLinter(ctx, l, dir, scratch, path)
		if res.Err != nil {
			d.logger.Debug("Linter did not complete", zap.String("linter", l.Name), zap.Error(res.Err))
		}
		results = append(results, res)
	}
	return results
}

func (d *Detector) runLinter(ctx context.Context, l Linter, dir, scratch, displayPath string) LinterResult {
	res := LinterResult{Tool: l.Name}
	if _, err := exec.LookPath(l.Command); err != nil {
		res.Status = LinterMissing
		res.Output = fmt.Sprintf("%s not installed", l.Command)
		return res
	}

	runCtx, cancel := context.WithTimeout(ctx, d.linterWait)
	defer cancel()

	args := append(append([]string(nil), l.Args...), scratch)
	cmd := exec.CommandContext(runCtx, l.Command, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	res.Output = strings.ReplaceAll(string(out), scratch, displayPath)

	var exitErr *exec.ExitError
	switch {
	case runCtx.Err() != nil:
		res.Status = LinterFailed
		res.Err = &LinterError{Tool: l.Name, Err: runCtx.Err()}
	case err == nil:
		res.Status = LinterOK
	case errors.As(err, &exitErr):
		res.Status = LinterIssue
	default:
		res.Status = LinterFailed
		res.Err = &LinterError{Tool: l.Name, Err: err}
	}

	if l.Parse && res.Status == LinterIssue {
		res.Findings = parseLintOutput(l.Name, string(out), filepath.Base(scratch))
	}
	return res
}

// parseLintOutput extracts findings from lines that reference file.
func parseLintOutput(tool, output, file string) []schemas.Finding {
	var findings []schemas.Finding
	for _, line := range strings.Split(output, "\n") {
		m := lintLineRegex.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil || filepath.Base(m[1]) != file {
			continue
		}
		lineNo, _ := strconv.Atoi(m[2])
		col := 1
		if m[3] != "" {
			col, _ = strconv.Atoi(m[3])
		}
		rule, msg := strings.ToUpper(tool), m[4]
		if cm := lintCodeRegex.FindStringSubmatch(msg); cm != nil {
			rule, msg = cm[1], cm[2]
		}
		findings = append(findings, schemas.Finding{
			Kind:     schemas.KindStyle,
			Rule:     rule,
			Location: schemas.Location{Line: lineNo, Column: col},
			Message:  msg,
			Severity: schemas.SeverityWarn,
			Source:   tool,
		})
	}
	return findings
}
