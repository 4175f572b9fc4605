package extractor

import (
	"context"
	"errors"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/python"
)

var errSyntax = errors.New("source contains syntax errors")

// grammar describes which tree-sitter nodes delimit a region and how to
// label them. Nodes listed in rejected parse cleanly in tree-sitter but are
// not valid in the current language version, so they count as syntax errors.
type grammar struct {
	language *sitter.Language
	label    func(n *sitter.Node, src []byte) (string, bool)
	rejected map[string]struct{}
}

var grammarByExt = map[string]*grammar{
	".py": {
		language: python.GetLanguage(),
		label:    pythonLabel,
		// Python 2 statements.
		rejected: map[string]struct{}{"print_statement": {}, "exec_statement": {}},
	},
	".go": {language: golang.GetLanguage(), label: goLabel},
}

func pythonLabel(n *sitter.Node, src []byte) (string, bool) {
	switch n.Type() {
	case "class_definition":
		return "ClassDef: " + nodeName(n, src), true
	case "function_definition":
		kind := "FunctionDef"
		for i := 0; i < int(n.ChildCount()); i++ {
			if n.Child(i).Type() == "async" {
				kind = "AsyncFunctionDef"
				break
			}
		}
		return kind + ": " + nodeName(n, src), true
	}
	return "", false
}

func goLabel(n *sitter.Node, src []byte) (string, bool) {
	switch n.Type() {
	case "function_declaration":
		return "FuncDecl: " + nodeName(n, src), true
	case "method_declaration":
		return "MethodDecl: " + nodeName(n, src), true
	case "type_spec":
		return "TypeSpec: " + nodeName(n, src), true
	}
	return "", false
}

func nodeName(n *sitter.Node, src []byte) string {
	if name := n.ChildByFieldName("name"); name != nil {
		return name.Content(src)
	}
	return "<anonymous>"
}

// syntaxStrategy yields every function, method and class node of a parsed
// file, nested ones included, in breadth-first order.
type syntaxStrategy struct {
	grammar *grammar
}

func (s *syntaxStrategy) Regions(content []byte, _ []string) ([]Region, error) {
	// A parser per call keeps the strategy safe for concurrent use.
	parser := sitter.NewParser()
	parser.SetLanguage(s.grammar.language)

	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return nil, errors.New("tree-sitter returned nil root node")
	}
	if root.HasError() {
		return nil, errSyntax
	}

	var regions []Region
	queue := []*sitter.Node{root}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]

		if _, bad := s.grammar.rejected[n.Type()]; bad {
			return nil, errSyntax
		}
		if name, ok := s.grammar.label(n, content); ok {
			regions = append(regions, Region{
				Name:      name,
				StartLine: int(n.StartPoint().Row) + 1,
				EndLine:   endLine(n),
			})
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			queue = append(queue, n.NamedChild(i))
		}
	}
	return regions, nil
}

// endLine is the 1-indexed last line a node occupies. A node ending at
// column 0 stops before that row's first byte.
func endLine(n *sitter.Node) int {
	start, end := n.StartPoint(), n.EndPoint()
	if end.Column == 0 && end.Row > start.Row {
		return int(end.Row)
	}
	return int(end.Row) + 1
}
