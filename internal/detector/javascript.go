package detector

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/xkilldash9x/codedoc/api/schemas"
)

// jsRules implements the rule set for JavaScript sources. Only JSDoc blocks
// (/** ... */) count as documentation.
type jsRules struct{}

func (jsRules) Language() Language { return LangJavaScript }

func (r jsRules) Inspect(in *inspection) {
	walk(in.root, func(n *sitter.Node) bool {
		switch n.Type() {
		case "function_declaration", "generator_function_declaration", "method_definition":
			in.checkFunction(r.function(in, n, true))
		case "function", "function_expression", "arrow_function", "generator_function":
			in.checkFunction(r.function(in, n, false))
		case "class_declaration":
			name := in.text(n.ChildByFieldName("name"))
			in.checkTypeDoc(n, "Class", name, jsHasDoc(in, n))
		case "call_expression":
			fn := n.ChildByFieldName("function")
			if !isNil(fn) && fn.Type() == "member_expression" {
				object := fn.ChildByFieldName("object")
				property := fn.ChildByFieldName("property")
				if !isNil(object) && !isNil(property) && in.text(object) == "console" && in.text(property) == "log" {
					in.report("PRINT_STMT", schemas.KindStyle, schemas.SeverityInfo, n,
						"Found 'console.log()' statement. Use a logger instead?")
				}
			}
		}
		return true
	})
}

func (jsRules) function(in *inspection, n *sitter.Node, named bool) function {
	name := "<anonymous>"
	if nameNode := n.ChildByFieldName("name"); !isNil(nameNode) {
		name = in.text(nameNode)
	} else if parent := n.Parent(); !isNil(parent) && parent.Type() == "variable_declarator" {
		name = in.text(parent.ChildByFieldName("name"))
	}

	args := 0
	if params := n.ChildByFieldName("parameters"); !isNil(params) {
		args = len(namedChildren(params))
	} else if param := n.ChildByFieldName("parameter"); !isNil(param) {
		args = 1
	}

	statements := 0
	body := n.ChildByFieldName("body")
	if !isNil(body) && body.Type() == "statement_block" {
		statements = len(namedChildren(body))
	}

	return function{
		node:       n,
		name:       name,
		args:       args,
		statements: statements,
		documented: jsHasDoc(in, n),
		complexity: jsComplexity(body),
		needsDoc:   named,
	}
}

// jsHasDoc looks for a JSDoc block above n, or above the export wrapping it.
func jsHasDoc(in *inspection, n *sitter.Node) bool {
	target := n
	if parent := n.Parent(); !isNil(parent) && parent.Type() == "export_statement" {
		target = parent
	}
	c := precedingComment(target)
	return c != nil && strings.HasPrefix(in.text(c), "/**")
}

func jsComplexity(body *sitter.Node) int {
	complexity := 1
	walk(body, func(n *sitter.Node) bool {
		switch n.Type() {
		case "function", "function_expression", "arrow_function", "generator_function",
			"function_declaration", "generator_function_declaration", "class_declaration":
			return false
		case "if_statement", "for_statement", "for_in_statement", "while_statement",
			"do_statement", "ternary_expression", "switch_case", "catch_clause":
			complexity++
		}
		return true
	})
	return complexity
}
