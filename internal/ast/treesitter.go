//go:build cgo

package ast

import (
	"context"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/ricesearch/rice-chunk/internal/pkg/errors"
)

// grammar describes which raw tree-sitter nodes become semantic nodes.
type grammar struct {
	language string
	lang     *sitter.Language
	targets  map[string]string // raw node type -> semantic type tag
	docs     func(n *sitter.Node, content []byte) string
	names    map[string]func(n *sitter.Node, content []byte) string
}

func grammars() []grammar {
	return []grammar{
		{
			language: LangPython,
			lang:     python.GetLanguage(),
			targets: map[string]string{
				"function_definition": "function",
				"class_definition":    "class",
			},
			docs: pythonDocstring,
		},
		{
			language: LangGo,
			lang:     golang.GetLanguage(),
			targets: map[string]string{
				"function_declaration": "function",
				"method_declaration":   "method",
				"type_declaration":     "type",
			},
			docs: precedingComments,
			names: map[string]func(*sitter.Node, []byte) string{
				"type_declaration": goTypeName,
			},
		},
		{
			language: LangJava,
			lang:     java.GetLanguage(),
			targets: map[string]string{
				"class_declaration":     "class",
				"interface_declaration": "interface",
				"enum_declaration":      "enum",
				"method_declaration":    "method",
			},
			docs: precedingComments,
		},
		{
			language: LangRust,
			lang:     rust.GetLanguage(),
			targets: map[string]string{
				"function_item": "function",
				"struct_item":   "struct",
				"enum_item":     "enum",
				"trait_item":    "trait",
				"impl_item":     "impl",
				"mod_item":      "module",
			},
			docs: precedingComments,
			names: map[string]func(*sitter.Node, []byte) string{
				"impl_item": fieldName("type"),
			},
		},
		{
			language: LangTypeScript,
			lang:     typescript.GetLanguage(),
			targets: map[string]string{
				"function_declaration":  "function",
				"class_declaration":     "class",
				"method_definition":     "method",
				"interface_declaration": "interface",
			},
			docs: precedingComments,
		},
		{
			language: LangJavaScript,
			lang:     javascript.GetLanguage(),
			targets: map[string]string{
				"function_declaration": "function",
				"class_declaration":    "class",
				"method_definition":    "method",
			},
			docs: precedingComments,
		},
	}
}

func treeSitterParsers() []Parser {
	gs := grammars()
	parsers := make([]Parser, 0, len(gs))
	for _, g := range gs {
		parsers = append(parsers, newTreeSitterParser(g))
	}
	return parsers
}

type treeSitterParser struct {
	grammar grammar
	parser  *sitter.Parser
	mu      sync.Mutex
}

func newTreeSitterParser(g grammar) *treeSitterParser {
	parser := sitter.NewParser()
	parser.SetLanguage(g.lang)
	return &treeSitterParser{grammar: g, parser: parser}
}

func (p *treeSitterParser) Language() string {
	return p.grammar.language
}

func (p *treeSitterParser) Parse(ctx context.Context, content []byte) ([]SemanticNode, error) {
	p.mu.Lock()
	tree, err := p.parser.ParseCtx(ctx, nil, content)
	p.mu.Unlock()
	if err != nil {
		return nil, errors.ParseError("tree-sitter parse failed", err).WithDetail("language", p.grammar.language)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return nil, errors.ParseError("tree-sitter returned no root", nil).WithDetail("language", p.grammar.language)
	}

	return p.collect(root, content), nil
}

type frame struct {
	node   *sitter.Node
	parent string
}

// collect walks the tree depth-first with an explicit stack so deeply
// nested input cannot exhaust the goroutine stack. Children are pushed in
// reverse to keep pre-order.
func (p *treeSitterParser) collect(root *sitter.Node, content []byte) []SemanticNode {
	var nodes []SemanticNode
	stack := []frame{{node: root}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := f.node
		parent := f.parent

		if tag, ok := p.grammar.targets[n.Type()]; ok {
			name := p.nodeName(n, content)
			node := SemanticNode{
				Name:       name,
				Type:       tag,
				StartLine:  int(n.StartPoint().Row),
				EndLine:    int(n.EndPoint().Row),
				StartByte:  int(n.StartByte()),
				EndByte:    int(n.EndByte()),
				Source:     string(content[n.StartByte():n.EndByte()]),
				ParentName: f.parent,
			}
			if p.grammar.docs != nil {
				node.Doc = p.grammar.docs(n, content)
			}
			nodes = append(nodes, node)
			parent = name
		}

		for i := int(n.ChildCount()) - 1; i >= 0; i-- {
			if child := n.Child(i); child != nil {
				stack = append(stack, frame{node: child, parent: parent})
			}
		}
	}

	return nodes
}

func (p *treeSitterParser) nodeName(n *sitter.Node, content []byte) string {
	if fn, ok := p.grammar.names[n.Type()]; ok {
		return fn(n, content)
	}
	return fieldName("name")(n, content)
}

func fieldName(field string) func(*sitter.Node, []byte) string {
	return func(n *sitter.Node, content []byte) string {
		if child := n.ChildByFieldName(field); child != nil {
			return child.Content(content)
		}
		return "unknown"
	}
}

// goTypeName reads the name of the first type_spec in a type declaration.
func goTypeName(n *sitter.Node, content []byte) string {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child == nil {
			continue
		}
		if child.Type() == "type_spec" || child.Type() == "type_alias" {
			return fieldName("name")(child, content)
		}
	}
	return "unknown"
}

// pythonDocstring returns the leading string literal of a function or class body.
func pythonDocstring(n *sitter.Node, content []byte) string {
	body := n.ChildByFieldName("body")
	if body == nil || body.NamedChildCount() == 0 {
		return ""
	}
	first := body.NamedChild(0)
	if first == nil || first.Type() != "expression_statement" || first.NamedChildCount() == 0 {
		return ""
	}
	if lit := first.NamedChild(0); lit != nil && lit.Type() == "string" {
		return first.Content(content)
	}
	return ""
}

// precedingComments returns the comment block directly above n, if any.
func precedingComments(n *sitter.Node, content []byte) string {
	var parts []string
	line := int(n.StartPoint().Row)

	for prev := n.PrevSibling(); prev != nil; prev = prev.PrevSibling() {
		if !strings.HasSuffix(prev.Type(), "comment") {
			break
		}
		if int(prev.EndPoint().Row) < line-1 {
			break
		}
		parts = append(parts, prev.Content(content))
		line = int(prev.StartPoint().Row)
	}

	if len(parts) == 0 {
		return ""
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "\n")
}
