package chunk

import (
	"errors"
	"strings"

	"github.com/ricesearch/rice-chunk/internal/ast"
)

// byteTokenizer treats every byte as one token.
type byteTokenizer struct{}

func (byteTokenizer) Count(text string) (int, error) { return len(text), nil }

func (byteTokenizer) Encode(text string) ([]int, error) {
	ids := make([]int, len(text))
	for i := 0; i < len(text); i++ {
		ids[i] = int(text[i])
	}
	return ids, nil
}

func (byteTokenizer) Decode(ids []int) (string, error) {
	b := make([]byte, len(ids))
	for i, id := range ids {
		b[i] = byte(id)
	}
	return string(b), nil
}

var errRefused = errors.New("refused")

// failingTokenizer refuses any text containing bad.
type failingTokenizer struct {
	byteTokenizer
	bad string
}

func (f failingTokenizer) Count(text string) (int, error) {
	if strings.Contains(text, f.bad) {
		return 0, errRefused
	}
	return len(text), nil
}

func (f failingTokenizer) Encode(text string) ([]int, error) {
	if strings.Contains(text, f.bad) {
		return nil, errRefused
	}
	return f.byteTokenizer.Encode(text)
}

// nodeFor locates text in source and builds a node covering it.
func nodeFor(source, text, name, typ string) ast.SemanticNode {
	start := strings.Index(source, text)
	if start < 0 {
		panic("text not in source: " + text)
	}
	end := start + len(text)
	return ast.SemanticNode{
		Name:      name,
		Type:      typ,
		StartByte: start,
		EndByte:   end,
		StartLine: strings.Count(source[:start], "\n"),
		EndLine:   strings.Count(source[:end-1], "\n"),
		Source:    text,
	}
}

func nodeSeg(name, typ string, tokens int) CodeSegment {
	return CodeSegment{
		Content:    strings.Repeat("n", tokens),
		Kind:       KindNode,
		TokenCount: tokens,
		Meta:       SegmentMeta{NodeName: name, NodeType: typ},
	}
}

func glueSeg(tokens int) CodeSegment {
	return CodeSegment{
		Content:    strings.Repeat("g", tokens),
		Kind:       KindGlue,
		TokenCount: tokens,
	}
}
