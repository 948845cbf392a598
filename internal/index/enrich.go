package index

import (
	"context"
	"strings"

	"github.com/ricesearch/rice-chunk/internal/ast"
)

// Enricher rewrites a file's source before chunking, for example to add
// documentation. The result is accepted only if re-parsing it yields the
// same structure as the original.
type Enricher interface {
	Enrich(ctx context.Context, doc *Document, nodes []ast.SemanticNode) (string, error)
}

// EnricherFunc adapts a function to Enricher.
type EnricherFunc func(ctx context.Context, doc *Document, nodes []ast.SemanticNode) (string, error)

func (f EnricherFunc) Enrich(ctx context.Context, doc *Document, nodes []ast.SemanticNode) (string, error) {
	return f(ctx, doc, nodes)
}

// NormalizeWhitespace converts CRLF line endings to LF and strips trailing
// spaces and tabs from every line.
var NormalizeWhitespace Enricher = EnricherFunc(func(ctx context.Context, doc *Document, _ []ast.SemanticNode) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	src := strings.ReplaceAll(doc.Content, "\r\n", "\n")
	lines := strings.Split(src, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n"), nil
})
