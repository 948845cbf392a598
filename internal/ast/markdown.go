package ast

import (
	"bytes"
	"context"
	"strings"

	"github.com/yuin/goldmark"
	gast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownParser turns heading sections into semantic nodes of type
// "section". A section runs from its heading line to the next heading of the
// same or a higher level, so sections nest by heading level.
type MarkdownParser struct {
	md goldmark.Markdown
}

// NewMarkdownParser creates a markdown parser backed by goldmark.
func NewMarkdownParser() *MarkdownParser {
	return &MarkdownParser{md: goldmark.New()}
}

func (p *MarkdownParser) Language() string {
	return LangMarkdown
}

type heading struct {
	level int
	start int
	name  string
}

func (p *MarkdownParser) Parse(ctx context.Context, content []byte) ([]SemanticNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc := p.md.Parser().Parse(text.NewReader(content))

	var headings []heading
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*gast.Heading)
		if !ok || h.Lines().Len() == 0 {
			continue
		}
		seg := h.Lines().At(0)
		start := bytes.LastIndexByte(content[:seg.Start], '\n') + 1
		name := strings.TrimSpace(string(h.Text(content)))
		if name == "" {
			name = "unknown"
		}
		headings = append(headings, heading{level: h.Level, start: start, name: name})
	}

	nodes := make([]SemanticNode, 0, len(headings))
	var open []heading // enclosing sections, outermost first

	for i, h := range headings {
		end := len(content)
		for _, next := range headings[i+1:] {
			if next.level <= h.level {
				end = next.start
				break
			}
		}

		for len(open) > 0 && open[len(open)-1].level >= h.level {
			open = open[:len(open)-1]
		}
		parent := ""
		if len(open) > 0 {
			parent = open[len(open)-1].name
		}

		nodes = append(nodes, SemanticNode{
			Name:       h.name,
			Type:       "section",
			StartLine:  bytes.Count(content[:h.start], []byte{'\n'}),
			EndLine:    lastLine(content, h.start, end),
			StartByte:  h.start,
			EndByte:    end,
			Source:     string(content[h.start:end]),
			ParentName: parent,
		})
		open = append(open, h)
	}

	return nodes, nil
}

// lastLine returns the 0-based line holding the last byte of [start, end).
func lastLine(content []byte, start, end int) int {
	if end <= start {
		return bytes.Count(content[:start], []byte{'\n'})
	}
	return bytes.Count(content[:end-1], []byte{'\n'})
}
