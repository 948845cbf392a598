// Package ast turns source text into ordered semantic nodes.
//
// Parsers are selected by language tag through a Registry. Tree-sitter
// grammars are available when built with cgo; the markdown parser is pure Go
// and always registered.
package ast

import (
	"context"
	"sort"
	"sync"
)

// SemanticNode is a parsed construct with an identity and a byte range.
type SemanticNode struct {
	Name       string `json:"name" yaml:"name"`
	Type       string `json:"type" yaml:"type"`
	StartLine  int    `json:"start_line" yaml:"start_line"` // 0-based
	EndLine    int    `json:"end_line" yaml:"end_line"`
	StartByte  int    `json:"start_byte" yaml:"start_byte"`
	EndByte    int    `json:"end_byte" yaml:"end_byte"`
	Source     string `json:"source" yaml:"source"`
	Doc        string `json:"doc,omitempty" yaml:"doc,omitempty"`
	ParentName string `json:"parent_name,omitempty" yaml:"parent_name,omitempty"` // empty for top-level
}

// FullName returns "parent.name" for nested nodes and the bare name otherwise.
func (n SemanticNode) FullName() string {
	if n.ParentName != "" {
		return n.ParentName + "." + n.Name
	}
	return n.Name
}

// IsTopLevel reports whether the node has no enclosing semantic node.
func (n SemanticNode) IsTopLevel() bool {
	return n.ParentName == ""
}

// TopLevel returns the nodes without a parent, preserving order.
func TopLevel(nodes []SemanticNode) []SemanticNode {
	out := make([]SemanticNode, 0, len(nodes))
	for _, n := range nodes {
		if n.IsTopLevel() {
			out = append(out, n)
		}
	}
	return out
}

// Parser extracts semantic nodes from source code of one language.
type Parser interface {
	// Language returns the tag this parser handles.
	Language() string

	// Parse returns the semantic nodes in pre-order (parents before children,
	// siblings by position).
	Parse(ctx context.Context, content []byte) ([]SemanticNode, error)
}

// Registry maps language tags to parsers.
type Registry struct {
	mu      sync.RWMutex
	parsers map[string]Parser
}

// NewRegistry creates a registry holding the given parsers.
func NewRegistry(parsers ...Parser) *Registry {
	r := &Registry{parsers: make(map[string]Parser)}
	for _, p := range parsers {
		r.Register(p)
	}
	return r
}

// DefaultRegistry returns a registry with every parser this build supports.
func DefaultRegistry() *Registry {
	parsers := append(treeSitterParsers(), NewMarkdownParser())
	return NewRegistry(parsers...)
}

// Register adds or replaces the parser for p.Language().
func (r *Registry) Register(p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parsers[p.Language()] = p
}

// Get returns the parser for a language tag.
func (r *Registry) Get(language string) (Parser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.parsers[language]
	return p, ok
}

// Languages returns the registered tags in sorted order.
func (r *Registry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	langs := make([]string, 0, len(r.parsers))
	for lang := range r.parsers {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}
