package detector

import (
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/xkilldash9x/codedoc/api/schemas"
)

// pythonRules implements the rule set for Python sources.
type pythonRules struct{}

func (pythonRules) Language() Language { return LangPython }

func (r pythonRules) Inspect(in *inspection) {
	walk(in.root, func(n *sitter.Node) bool {
		switch n.Type() {
		case "function_definition":
			in.checkFunction(r.function(in, n))
		case "class_definition":
			name := in.text(n.ChildByFieldName("name"))
			in.checkTypeDoc(n, "Class", name, pyHasDocstring(n.ChildByFieldName("body")))
		case "except_clause":
			r.checkExcept(in, n)
		case "call":
			fn := n.ChildByFieldName("function")
			if !isNil(fn) && fn.Type() == "identifier" && in.text(fn) == "print" {
				in.report("PRINT_STMT", schemas.KindStyle, schemas.SeverityInfo, n,
					"Found 'print()' statement. Use logging instead?")
			}
		}
		return true
	})
	r.checkUnusedImports(in)
}

func (pythonRules) function(in *inspection, n *sitter.Node) function {
	body := n.ChildByFieldName("body")
	args := 0
	for _, p := range namedChildren(n.ChildByFieldName("parameters")) {
		switch p.Type() {
		case "identifier", "typed_parameter", "default_parameter", "typed_default_parameter":
			args++
		}
	}
	return function{
		node:       n,
		name:       in.text(n.ChildByFieldName("name")),
		args:       args,
		statements: len(namedChildren(body)),
		documented: pyHasDocstring(body),
		complexity: pyComplexity(body),
		needsDoc:   true,
	}
}

// pyHasDocstring reports whether the block opens with a string literal.
func pyHasDocstring(body *sitter.Node) bool {
	stmts := namedChildren(body)
	if len(stmts) == 0 || stmts[0].Type() != "expression_statement" {
		return false
	}
	expr := stmts[0].NamedChild(0)
	return !isNil(expr) && (expr.Type() == "string" || expr.Type() == "concatenated_string")
}

// pyComplexity is McCabe complexity over the body, not counting nested functions.
func pyComplexity(body *sitter.Node) int {
	complexity := 1
	walk(body, func(n *sitter.Node) bool {
		switch n.Type() {
		case "function_definition":
			return false
		case "if_statement", "elif_clause", "for_statement", "while_statement":
			complexity++
		case "try_statement":
			for _, c := range namedChildren(n) {
				if c.Type() == "except_clause" || c.Type() == "except_group_clause" {
					complexity++
				}
			}
		}
		return true
	})
	return complexity
}

func (pythonRules) checkExcept(in *inspection, n *sitter.Node) {
	var caught *sitter.Node
	for _, c := range namedChildren(n) {
		if c.Type() != "block" {
			caught = c
			break
		}
	}
	if caught == nil {
		in.report("BROAD_EXCEPT", schemas.KindCorrectnessRisk, schemas.SeverityError, n,
			"Avoid bare 'except:'. Catch specific errors.")
		return
	}
	if caught.Type() == "as_pattern" {
		caught = caught.NamedChild(0)
	}
	if !isNil(caught) && caught.Type() == "identifier" && in.text(caught) == "Exception" {
		in.report("BROAD_EXCEPT", schemas.KindCorrectnessRisk, schemas.SeverityWarn, n,
			"Catching generic 'Exception' can hide bugs.")
	}
}

type pyImport struct {
	node  *sitter.Node
	bound string
}

// checkUnusedImports flags imported names that never appear outside import statements.
func (pythonRules) checkUnusedImports(in *inspection) {
	var imports []pyImport
	used := make(map[string]bool)

	walk(in.root, func(n *sitter.Node) bool {
		switch n.Type() {
		case "import_statement":
			for _, c := range namedChildren(n) {
				imports = append(imports, pyImport{node: n, bound: pyBoundName(in, c, true)})
			}
			return false
		case "import_from_statement":
			module := n.ChildByFieldName("module_name")
			if !isNil(module) && in.text(module) == "__future__" {
				return false
			}
			for _, c := range namedChildren(n) {
				if (!isNil(module) && c.StartByte() == module.StartByte()) || c.Type() == "wildcard_import" {
					continue
				}
				imports = append(imports, pyImport{node: n, bound: pyBoundName(in, c, false)})
			}
			return false
		case "identifier":
			used[in.text(n)] = true
		}
		return true
	})

	for _, imp := range imports {
		if imp.bound == "" || used[imp.bound] {
			continue
		}
		in.report("UNUSED_IMPORT", schemas.KindUnusedSymbol, schemas.SeverityWarn, imp.node,
			fmt.Sprintf("'%s' imported but unused.", imp.bound))
	}
}

// pyBoundName returns the local name an import binds. A plain "import a.b"
// binds "a"; "from m import a.b" is not valid, so there the last part is used.
func pyBoundName(in *inspection, n *sitter.Node, plainImport bool) string {
	switch n.Type() {
	case "aliased_import":
		return in.text(n.ChildByFieldName("alias"))
	case "dotted_name":
		parts := strings.Split(in.text(n), ".")
		if plainImport {
			return strings.TrimSpace(parts[0])
		}
		return strings.TrimSpace(parts[len(parts)-1])
	default:
		return ""
	}
}
