package detector

import (
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/xkilldash9x/codedoc/api/schemas"
)

// Thresholds bound the per-function metrics before a rule fires.
type Thresholds struct {
	MaxComplexity    int
	MaxArgs          int
	MaxFunctionLines int
}

// DefaultThresholds are the limits used when none are configured.
var DefaultThresholds = Thresholds{MaxComplexity: 10, MaxArgs: 6, MaxFunctionLines: 60}

// FunctionMetric is the per-function measurement behind the complexity rules.
type FunctionMetric struct {
	Name       string `json:"name" yaml:"name"`
	Line       int    `json:"line" yaml:"line"`
	Complexity int    `json:"complexity" yaml:"complexity"`
	Length     int    `json:"length" yaml:"length"`
	Args       int    `json:"args" yaml:"args"`
}

// function is what a rule set extracts from a function-like node.
type function struct {
	node       *sitter.Node
	name       string
	args       int
	statements int
	documented bool
	complexity int
	// needsDoc is false where the language does not expect documentation,
	// e.g. unexported Go functions or anonymous JavaScript functions.
	needsDoc bool
}

// inspection accumulates findings and metrics for one parsed source.
type inspection struct {
	src      []byte
	root     *sitter.Node
	limits   Thresholds
	findings []schemas.Finding
	metrics  []FunctionMetric
}

func (in *inspection) text(n *sitter.Node) string {
	return n.Content(in.src)
}

func (in *inspection) report(rule string, kind schemas.FindingKind, sev schemas.Severity, n *sitter.Node, msg string) {
	in.findings = append(in.findings, schemas.Finding{
		Kind:     kind,
		Rule:     rule,
		Location: locationOf(n),
		Message:  msg,
		Severity: sev,
	})
}

// checkFunction records the metric for fn and applies the shared function rules.
func (in *inspection) checkFunction(fn function) {
	length := int(fn.node.EndPoint().Row - fn.node.StartPoint().Row)
	in.metrics = append(in.metrics, FunctionMetric{
		Name:       fn.name,
		Line:       int(fn.node.StartPoint().Row) + 1,
		Complexity: fn.complexity,
		Length:     length,
		Args:       fn.args,
	})

	if fn.complexity > in.limits.MaxComplexity {
		in.report("COMPLEXITY", schemas.KindComplexity, schemas.SeverityWarn, fn.node,
			fmt.Sprintf("Function '%s' is too complex (Cyclomatic: %d). Refactor logic.", fn.name, fn.complexity))
	}
	if fn.needsDoc && !fn.documented && fn.statements > 1 {
		in.report("NO_DOC", schemas.KindStyle, schemas.SeverityInfo, fn.node,
			fmt.Sprintf("Function '%s' is missing a docstring.", fn.name))
	}
	if fn.args > in.limits.MaxArgs {
		in.report("ARGS", schemas.KindComplexity, schemas.SeverityInfo, fn.node,
			fmt.Sprintf("Function '%s' has %d arguments (max recommended: %d).", fn.name, fn.args, in.limits.MaxArgs))
	}
	if length > in.limits.MaxFunctionLines {
		in.report("LENGTH", schemas.KindComplexity, schemas.SeverityInfo, fn.node,
			fmt.Sprintf("Function '%s' is too long (%d lines).", fn.name, length))
	}
}

func (in *inspection) checkTypeDoc(n *sitter.Node, what, name string, documented bool) {
	if documented {
		return
	}
	in.report("NO_DOC", schemas.KindStyle, schemas.SeverityInfo, n,
		fmt.Sprintf("%s '%s' is missing a docstring.", what, name))
}

// checkSyntax reports the first ERROR or MISSING node. It returns true when
// the tree is broken, in which case no other rule is meaningful.
func (in *inspection) checkSyntax() bool {
	if !in.root.HasError() {
		return false
	}
	bad := firstErrorNode(in.root)
	if bad == nil {
		bad = in.root
	}
	msg := "Syntax Error: invalid syntax"
	if bad.IsMissing() {
		msg = fmt.Sprintf("Syntax Error: missing %q", bad.Type())
	} else if snippet := strings.TrimSpace(in.text(bad)); snippet != "" {
		msg = fmt.Sprintf("Syntax Error: unexpected %q", firstLine(snippet))
	}
	in.report("SYNTAX_ERR", schemas.KindCorrectnessRisk, schemas.SeverityError, bad, msg)
	return true
}

func firstErrorNode(n *sitter.Node) *sitter.Node {
	if isNil(n) {
		return nil
	}
	if n.Type() == "ERROR" || n.IsMissing() {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if isNil(child) || (!child.HasError() && !child.IsMissing()) {
			continue
		}
		if found := firstErrorNode(child); found != nil {
			return found
		}
	}
	return nil
}

// -- Tree helpers --

func isNil(n *sitter.Node) bool {
	return n == nil || n.IsNull()
}

// walk visits n and its descendants depth-first. Returning false from visit
// skips the node's children.
func walk(n *sitter.Node, visit func(*sitter.Node) bool) {
	if isNil(n) {
		return
	}
	if !visit(n) {
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		walk(n.NamedChild(i), visit)
	}
}

// namedChildren returns the named children of n, skipping comments.
func namedChildren(n *sitter.Node) []*sitter.Node {
	if isNil(n) {
		return nil
	}
	out := make([]*sitter.Node, 0, n.NamedChildCount())
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if isNil(child) || child.Type() == "comment" {
			continue
		}
		out = append(out, child)
	}
	return out
}

// precedingComment returns the comment ending on the line right above n.
func precedingComment(n *sitter.Node) *sitter.Node {
	prev := n.PrevNamedSibling()
	if isNil(prev) || prev.Type() != "comment" {
		return nil
	}
	if prev.EndPoint().Row+1 != n.StartPoint().Row {
		return nil
	}
	return prev
}

func locationOf(n *sitter.Node) schemas.Location {
	start, end := n.StartPoint(), n.EndPoint()
	return schemas.Location{
		Line:      int(start.Row) + 1,
		Column:    int(start.Column) + 1,
		EndLine:   int(end.Row) + 1,
		EndColumn: int(end.Column) + 1,
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
