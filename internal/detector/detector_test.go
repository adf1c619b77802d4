package detector

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/codedoc/api/schemas"
	"github.com/xkilldash9x/codedoc/internal/config"
)

// -- Test Helpers --

func newTestDetector(t *testing.T, opts ...Option) *Detector {
	t.Helper()
	cfg := config.DetectorConfig{
		Timeout:          5 * time.Second,
		MaxComplexity:    10,
		MaxArgs:          6,
		MaxFunctionLines: 60,
		LinterTimeout:    2 * time.Second,
	}
	return NewDetector(cfg, zaptest.NewLogger(t), opts...)
}

func rules(findings []schemas.Finding) []string {
	out := make([]string, 0, len(findings))
	for _, f := range findings {
		out = append(out, f.Rule)
	}
	return out
}

func analyze(t *testing.T, d *Detector, path, src string) *Report {
	t.Helper()
	report, err := d.Analyze(context.Background(), path, "", src)
	require.NoError(t, err)
	return report
}

// -- Contract --

func TestDetect_Contract(t *testing.T) {
	d := newTestDetector(t)
	ctx := context.Background()

	t.Run("empty content", func(t *testing.T) {
		_, err := d.Detect(ctx, "a.py", "python", "")
		assert.ErrorIs(t, err, ErrEmptySource)
	})

	t.Run("unknown extension", func(t *testing.T) {
		_, err := d.Detect(ctx, "a.rb", "", "puts 1")
		assert.ErrorIs(t, err, ErrUnsupportedLanguage)
	})

	t.Run("unknown tag", func(t *testing.T) {
		_, err := d.Detect(ctx, "a.py", "cobol", "x = 1")
		assert.ErrorIs(t, err, ErrUnsupportedLanguage)
	})

	t.Run("cancelled context makes the backend unavailable", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := d.Detect(cctx, "a.py", "", "x = 1\n")
		assert.ErrorIs(t, err, ErrDetectorUnavailable)
	})

	t.Run("clean source has no findings", func(t *testing.T) {
		findings, err := d.Detect(ctx, "a.py", "", "def add(a, b):\n    \"\"\"Add two numbers.\"\"\"\n    return a + b\n")
		require.NoError(t, err)
		assert.Empty(t, findings)
	})
}

func TestResolveLanguage(t *testing.T) {
	tests := []struct {
		tag, path string
		want      Language
	}{
		{"", "pkg/x.go", LangGo},
		{"", "app.MJS", LangJavaScript},
		{"", "tool.py", LangPython},
		{"golang", "whatever.txt", LangGo},
		{" PY ", "", LangPython},
		{"node", "", LangJavaScript},
	}
	for _, tt := range tests {
		got, err := ResolveLanguage(tt.tag, tt.path)
		require.NoError(t, err, "%q %q", tt.tag, tt.path)
		assert.Equal(t, tt.want, got)
	}
	assert.Equal(t, ".py", LangPython.Extension())
	assert.Contains(t, LangGo.Aliases(), "golang")
}

// -- Python Rules --

func TestPythonRules(t *testing.T) {
	d := newTestDetector(t)

	tests := []struct {
		name      string
		src       string
		wantRules []string
		wantLines []int
	}{
		{
			name:      "missing docstring on multi-statement function",
			src:       "def compute(x):\n    y = x * 2\n    return y\n",
			wantRules: []string{"NO_DOC"},
			wantLines: []int{1},
		},
		{
			name:      "single statement function needs no docstring",
			src:       "def one(x):\n    return x\n",
			wantRules: []string{},
		},
		{
			name:      "class without docstring",
			src:       "class Widget:\n    pass\n",
			wantRules: []string{"NO_DOC"},
			wantLines: []int{1},
		},
		{
			name:      "print call",
			src:       "print(\"hi\")\n",
			wantRules: []string{"PRINT_STMT"},
			wantLines: []int{1},
		},
		{
			name:      "too many arguments",
			src:       "def many(a, b, c, d, e, f, g):\n    return a\n",
			wantRules: []string{"ARGS"},
			wantLines: []int{1},
		},
		{
			name:      "syntax error suppresses other rules",
			src:       "import os\ndef broken(:\n    print(1)\n",
			wantRules: []string{"SYNTAX_ERR"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := analyze(t, d, "mod.py", tt.src)
			assert.Equal(t, tt.wantRules, rules(report.Findings))
			for i, line := range tt.wantLines {
				assert.Equal(t, line, report.Findings[i].Location.Line)
			}
		})
	}
}

func TestPythonRules_BroadExcept(t *testing.T) {
	d := newTestDetector(t)
	src := `def f():
    """Doc."""
    try:
        return 1
    except:
        return 2

def g():
    """Doc."""
    try:
        return 1
    except Exception as e:
        return 2
`
	report := analyze(t, d, "mod.py", src)
	require.Len(t, report.Findings, 2)

	assert.Equal(t, "BROAD_EXCEPT", report.Findings[0].Rule)
	assert.Equal(t, schemas.SeverityError, report.Findings[0].Severity)
	assert.Equal(t, 5, report.Findings[0].Location.Line)

	assert.Equal(t, "BROAD_EXCEPT", report.Findings[1].Rule)
	assert.Equal(t, schemas.SeverityWarn, report.Findings[1].Severity)
	assert.Equal(t, 12, report.Findings[1].Location.Line)
	assert.Equal(t, schemas.KindCorrectnessRisk, report.Findings[1].Kind)

	require.Len(t, report.Metrics, 2)
	assert.Equal(t, 2, report.Metrics[0].Complexity, "one handler adds one")
}

func TestPythonRules_UnusedImports(t *testing.T) {
	d := newTestDetector(t)
	src := `from __future__ import annotations
import os
import sys as system
from typing import List, Dict

def f(x: List[int]):
    return system.argv
`
	report := analyze(t, d, "mod.py", src)

	var messages []string
	for _, f := range report.Findings {
		require.Equal(t, "UNUSED_IMPORT", f.Rule)
		assert.Equal(t, schemas.KindUnusedSymbol, f.Kind)
		messages = append(messages, f.Message)
	}
	assert.Equal(t, []string{"'os' imported but unused.", "'Dict' imported but unused."}, messages)
}

func TestPythonRules_ComplexityAndScore(t *testing.T) {
	d := newTestDetector(t)

	var b strings.Builder
	b.WriteString("def branchy(x):\n    \"\"\"Many branches.\"\"\"\n")
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&b, "    if x == %d:\n        return %d\n", i, i)
	}
	b.WriteString("    return -1\n")

	report := analyze(t, d, "mod.py", b.String())
	require.Len(t, report.Metrics, 1)
	assert.Equal(t, 11, report.Metrics[0].Complexity)
	assert.Equal(t, []string{"COMPLEXITY"}, rules(report.Findings))
	assert.Equal(t, schemas.SeverityWarn, report.Findings[0].Severity)
	// 100 - 5 (warn) - (11-10)*2
	assert.Equal(t, 93, report.Score)
}

func TestPythonRules_NestedFunctionsExcluded(t *testing.T) {
	d := newTestDetector(t)
	src := `def outer():
    """Doc."""
    def inner(y):
        if y:
            return 1
        return 0
    return inner
`
	report := analyze(t, d, "mod.py", src)
	require.Len(t, report.Metrics, 2)
	assert.Equal(t, FunctionMetric{Name: "outer", Line: 1, Complexity: 1, Length: 6, Args: 0}, report.Metrics[0])
	assert.Equal(t, "inner", report.Metrics[1].Name)
	assert.Equal(t, 2, report.Metrics[1].Complexity)
	assert.Equal(t, 1, report.Metrics[1].Args)
}

func TestPythonRules_Length(t *testing.T) {
	d := newTestDetector(t)

	var b strings.Builder
	b.WriteString("def long_one():\n    \"\"\"Doc.\"\"\"\n")
	for i := 0; i < 62; i++ {
		fmt.Fprintf(&b, "    x%d = %d\n", i, i)
	}

	report := analyze(t, d, "mod.py", b.String())
	assert.Equal(t, []string{"LENGTH"}, rules(report.Findings))
	assert.Equal(t, 63, report.Metrics[0].Length)
	// 100 - 2 (info) - 2 (length > 50)
	assert.Equal(t, 96, report.Score)
}

// -- Go Rules --

func TestGoRules(t *testing.T) {
	d := newTestDetector(t)

	t.Run("exported function without doc and a print", func(t *testing.T) {
		src := "package main\n\nimport \"fmt\"\n\nfunc Exported(a, b int) int {\n\tx := a + b\n\tfmt.Println(x)\n\treturn x\n}\n"
		report := analyze(t, d, "main.go", src)
		assert.Equal(t, []string{"NO_DOC", "PRINT_STMT"}, rules(report.Findings))
		assert.Equal(t, 5, report.Findings[0].Location.Line)
		assert.Equal(t, 7, report.Findings[1].Location.Line)
		require.Len(t, report.Metrics, 1)
		assert.Equal(t, 2, report.Metrics[0].Args)
	})

	t.Run("documented and unexported functions are fine", func(t *testing.T) {
		src := "package main\n\n// Exported adds.\nfunc Exported(a, b int) int {\n\tx := a + b\n\treturn x\n}\n\nfunc helper() int {\n\ty := 1\n\treturn y\n}\n"
		report := analyze(t, d, "main.go", src)
		assert.Empty(t, report.Findings)
		assert.Equal(t, 100, report.Score)
	})

	t.Run("discarded recover", func(t *testing.T) {
		src := "package main\n\nfunc safe() {\n\tdefer func() {\n\t\trecover()\n\t}()\n}\n"
		report := analyze(t, d, "main.go", src)
		require.Equal(t, []string{"BROAD_EXCEPT"}, rules(report.Findings))
		assert.Equal(t, 5, report.Findings[0].Location.Line)
		assert.Equal(t, schemas.SeverityWarn, report.Findings[0].Severity)
	})

	t.Run("switch cases add complexity", func(t *testing.T) {
		src := "package main\n\nfunc classify(n int) string {\n\tswitch {\n\tcase n < 0:\n\t\treturn \"neg\"\n\tcase n == 0:\n\t\treturn \"zero\"\n\tdefault:\n\t\treturn \"pos\"\n\t}\n}\n"
		report := analyze(t, d, "main.go", src)
		require.Len(t, report.Metrics, 1)
		assert.Equal(t, 3, report.Metrics[0].Complexity)
	})

	t.Run("exported type without doc", func(t *testing.T) {
		report := analyze(t, d, "main.go", "package main\n\ntype Config struct{}\n")
		require.Equal(t, []string{"NO_DOC"}, rules(report.Findings))
		assert.Contains(t, report.Findings[0].Message, "Type 'Config'")
	})
}

// -- JavaScript Rules --

func TestJavaScriptRules(t *testing.T) {
	d := newTestDetector(t)

	t.Run("undocumented function with console.log", func(t *testing.T) {
		src := "function greet(name) {\n  const msg = \"hi \" + name;\n  console.log(msg);\n  return msg;\n}\n"
		report := analyze(t, d, "app.js", src)
		assert.Equal(t, []string{"NO_DOC", "PRINT_STMT"}, rules(report.Findings))
		assert.Equal(t, 3, report.Findings[1].Location.Line)
	})

	t.Run("jsdoc counts as documentation", func(t *testing.T) {
		src := "/** Greets. */\nfunction greet(name) {\n  const msg = \"hi \" + name;\n  return msg;\n}\n"
		report := analyze(t, d, "app.js", src)
		assert.Empty(t, report.Findings)
	})

	t.Run("arrow functions are measured but need no doc", func(t *testing.T) {
		report := analyze(t, d, "app.js", "const pick = (a, b) => a ? b : a;\n")
		assert.Empty(t, report.Findings)
		require.Len(t, report.Metrics, 1)
		assert.Equal(t, FunctionMetric{Name: "pick", Line: 1, Complexity: 2, Length: 0, Args: 2}, report.Metrics[0])
	})

	t.Run("class without doc", func(t *testing.T) {
		report := analyze(t, d, "app.js", "class Foo {}\n")
		require.Equal(t, []string{"NO_DOC"}, rules(report.Findings))
		assert.Contains(t, report.Findings[0].Message, "Class 'Foo'")
	})
}

// -- Ordering and Syntax --

func TestDetect_OrderedByPosition(t *testing.T) {
	d := newTestDetector(t)
	src := "import os\n\nclass A:\n    pass\n\nprint(1)\n"
	findings, err := d.Detect(context.Background(), "m.py", "", src)
	require.NoError(t, err)
	require.Len(t, findings, 3)
	for i := 1; i < len(findings); i++ {
		assert.False(t, findings[i].Location.Less(findings[i-1].Location), "findings must be sorted")
	}
	assert.Equal(t, []string{"UNUSED_IMPORT", "NO_DOC", "PRINT_STMT"}, rules(findings))
}

func TestCheckSyntax(t *testing.T) {
	d := newTestDetector(t)
	ctx := context.Background()

	assert.NoError(t, d.CheckSyntax(ctx, "python", "x = 1\n"))
	assert.NoError(t, d.CheckSyntax(ctx, "go", "package main\n\nfunc main() {}\n"))

	err := d.CheckSyntax(ctx, "python", "def broken(:\n    pass\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Syntax Error")

	assert.ErrorIs(t, d.CheckSyntax(ctx, "fortran", "x"), ErrUnsupportedLanguage)
}

func TestScore(t *testing.T) {
	findings := []schemas.Finding{
		{Severity: schemas.SeverityError},
		{Severity: schemas.SeverityWarn},
		{Severity: schemas.SeverityInfo},
	}
	metrics := []FunctionMetric{{Complexity: 14, Length: 55, Args: 6}}
	// 100 - 17 - 8 - 2 - 3
	assert.Equal(t, 70, Score(findings, metrics))

	many := make([]schemas.Finding, 20)
	for i := range many {
		many[i].Severity = schemas.SeverityError
	}
	assert.Equal(t, 0, Score(many, nil), "score is floored at zero")
}
