package detector

import (
	"unicode"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/xkilldash9x/codedoc/api/schemas"
)

// goRules implements the rule set for Go sources. Documentation is only
// expected on exported identifiers, following godoc convention.
type goRules struct{}

func (goRules) Language() Language { return LangGo }

func (r goRules) Inspect(in *inspection) {
	walk(in.root, func(n *sitter.Node) bool {
		switch n.Type() {
		case "function_declaration", "method_declaration":
			in.checkFunction(r.function(in, n))
		case "type_declaration":
			for _, spec := range namedChildren(n) {
				if spec.Type() != "type_spec" {
					continue
				}
				name := in.text(spec.ChildByFieldName("name"))
				if isExported(name) {
					in.checkTypeDoc(n, "Type", name, precedingComment(n) != nil)
				}
			}
		case "call_expression":
			r.checkCall(in, n)
		}
		return true
	})
}

func (goRules) function(in *inspection, n *sitter.Node) function {
	name := in.text(n.ChildByFieldName("name"))
	body := n.ChildByFieldName("body")
	return function{
		node:       n,
		name:       name,
		args:       goParamCount(n.ChildByFieldName("parameters")),
		statements: len(goStatements(body)),
		documented: precedingComment(n) != nil,
		complexity: goComplexity(body),
		needsDoc:   isExported(name),
	}
}

func goParamCount(params *sitter.Node) int {
	count := 0
	for _, p := range namedChildren(params) {
		switch p.Type() {
		case "parameter_declaration":
			names := 0
			for _, c := range namedChildren(p) {
				if c.Type() == "identifier" {
					names++
				}
			}
			if names == 0 {
				names = 1
			}
			count += names
		case "variadic_parameter_declaration":
			count++
		}
	}
	return count
}

// goStatements lists the statements of a block. Newer grammars wrap them in
// a statement_list node.
func goStatements(block *sitter.Node) []*sitter.Node {
	stmts := namedChildren(block)
	if len(stmts) == 1 && stmts[0].Type() == "statement_list" {
		return namedChildren(stmts[0])
	}
	return stmts
}

func goComplexity(body *sitter.Node) int {
	complexity := 1
	walk(body, func(n *sitter.Node) bool {
		switch n.Type() {
		case "func_literal":
			return false
		case "if_statement", "for_statement", "expression_case", "type_case", "communication_case":
			complexity++
		}
		return true
	})
	return complexity
}

func (goRules) checkCall(in *inspection, n *sitter.Node) {
	fn := n.ChildByFieldName("function")
	if isNil(fn) {
		return
	}
	switch fn.Type() {
	case "identifier":
		switch in.text(fn) {
		case "print", "println":
			in.report("PRINT_STMT", schemas.KindStyle, schemas.SeverityInfo, n,
				"Found '"+in.text(fn)+"()' statement. Use logging instead?")
		case "recover":
			parent := n.Parent()
			if !isNil(parent) && parent.Type() == "expression_statement" {
				in.report("BROAD_EXCEPT", schemas.KindCorrectnessRisk, schemas.SeverityWarn, n,
					"recover() result is discarded; the panic is silently swallowed.")
			}
		}
	case "selector_expression":
		operand := fn.ChildByFieldName("operand")
		field := fn.ChildByFieldName("field")
		if isNil(operand) || isNil(field) || in.text(operand) != "fmt" {
			return
		}
		switch in.text(field) {
		case "Print", "Println", "Printf":
			in.report("PRINT_STMT", schemas.KindStyle, schemas.SeverityInfo, n,
				"Found 'fmt."+in.text(field)+"()' statement. Use logging instead?")
		}
	}
}

func isExported(name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	return unicode.IsUpper(r)
}
