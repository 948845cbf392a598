package chunk

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/ricesearch/rice-chunk/internal/ast"
	"github.com/ricesearch/rice-chunk/internal/pkg/errors"
	"github.com/ricesearch/rice-chunk/internal/tokenizer"
)

// Linearizer turns a source file and its top-level nodes into a gapless,
// ordered run of segments.
type Linearizer struct {
	Tokenizer          tokenizer.Tokenizer
	Sink               Sink
	LargeGlueThreshold int
}

// Linearize walks nodes in source order. Text between the cursor and a node
// is attached to that node's segment; text after the last node becomes one
// trailing glue segment. Nodes must not nest. A node that ends at or before
// the cursor is skipped and one starting before it is clamped, so source
// bytes are never emitted twice.
//
// When language is non-empty each node's text is wrapped in a marker header,
// so Content concatenates back to the source only for an empty language.
// StartByte and EndByte always tile [0, len(source)).
func (l *Linearizer) Linearize(source string, nodes []ast.SemanticNode, language string) ([]CodeSegment, error) {
	if source == "" {
		return nil, nil
	}

	lines := newLineIndex(source)

	if len(nodes) == 0 {
		seg, err := l.glue(source, 0, lines)
		if err != nil {
			return nil, err
		}
		if l.isLargeGlue(seg.TokenCount) {
			emit(l.Sink, DiagLargeGlue, slog.LevelWarn, "no semantic nodes found, entire file treated as glue", map[string]any{
				"tokens": seg.TokenCount,
			})
		}
		return []CodeSegment{seg}, nil
	}

	sorted := make([]ast.SemanticNode, len(nodes))
	copy(sorted, nodes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartByte < sorted[j].StartByte
	})

	segments := make([]CodeSegment, 0, len(sorted)+1)
	cursor := 0

	for _, node := range sorted {
		start := clamp(node.StartByte, 0, len(source))
		end := clamp(node.EndByte, 0, len(source))

		if end < start || (end <= cursor && !(start == cursor && end == cursor)) {
			emit(l.Sink, DiagSkippedNode, slog.LevelWarn, "node lies before the cursor, skipped", map[string]any{
				"node":       node.FullName(),
				"start_byte": node.StartByte,
				"end_byte":   node.EndByte,
				"cursor":     cursor,
			})
			continue
		}

		startLine := node.StartLine
		if start < cursor {
			emit(l.Sink, DiagSkippedNode, slog.LevelWarn, "node overlaps previous node, start clamped", map[string]any{
				"node":       node.FullName(),
				"start_byte": node.StartByte,
				"cursor":     cursor,
			})
			start = cursor
			startLine = lines.lineOf(start)
		}

		gap := source[cursor:start]
		text := source[start:end]

		glueTokens, err := l.count(gap, node)
		if err != nil {
			return nil, err
		}
		nodeTokens, err := l.count(text, node)
		if err != nil {
			return nil, err
		}

		if l.isLargeGlue(glueTokens) {
			emit(l.Sink, DiagLargeGlue, slog.LevelWarn, "large glue block attached to node", map[string]any{
				"node":   node.FullName(),
				"tokens": glueTokens,
			})
		}

		if gap != "" {
			startLine = lines.lineOf(cursor)
		}

		segments = append(segments, CodeSegment{
			Content:    gap + formatNode(text, language),
			Kind:       KindNode,
			StartLine:  startLine,
			EndLine:    node.EndLine,
			StartByte:  cursor,
			EndByte:    end,
			TokenCount: glueTokens + nodeTokens,
			Meta: SegmentMeta{
				NodeName:   node.Name,
				NodeType:   node.Type,
				ParentName: node.ParentName,
			},
		})
		cursor = end
	}

	if cursor < len(source) {
		seg, err := l.glue(source, cursor, lines)
		if err != nil {
			return nil, err
		}
		if l.isLargeGlue(seg.TokenCount) {
			emit(l.Sink, DiagLargeGlue, slog.LevelWarn, "large trailing glue block", map[string]any{
				"tokens": seg.TokenCount,
			})
		}
		segments = append(segments, seg)
	}

	return segments, nil
}

// glue builds the glue segment covering source[from:].
func (l *Linearizer) glue(source string, from int, lines lineIndex) (CodeSegment, error) {
	text := source[from:]
	n, err := l.Tokenizer.Count(text)
	if err != nil {
		return CodeSegment{}, errors.TokenizerError("count glue tokens", err)
	}
	start := lines.lineOf(from)
	return CodeSegment{
		Content:    text,
		Kind:       KindGlue,
		StartLine:  start,
		EndLine:    start + strings.Count(text, "\n"),
		StartByte:  from,
		EndByte:    len(source),
		TokenCount: n,
	}, nil
}

func (l *Linearizer) count(text string, node ast.SemanticNode) (int, error) {
	if text == "" {
		return 0, nil
	}
	n, err := l.Tokenizer.Count(text)
	if err != nil {
		return 0, errors.TokenizerError("count tokens", err).WithDetail("node", node.FullName())
	}
	return n, nil
}

func (l *Linearizer) isLargeGlue(tokens int) bool {
	return l.LargeGlueThreshold > 0 && tokens > l.LargeGlueThreshold
}

// formatNode wraps node text in the marker header. Token counts are taken
// from the raw text, not the header.
func formatNode(text, language string) string {
	if language == "" {
		return text
	}
	return "```" + language + "\n#node segment:\n" + text + "\n"
}

// lineIndex maps byte offsets to 0-based line numbers.
type lineIndex []int

func newLineIndex(source string) lineIndex {
	var idx lineIndex
	for i := 0; i < len(source); i++ {
		if source[i] == '\n' {
			idx = append(idx, i)
		}
	}
	return idx
}

// lineOf returns the number of newlines before offset.
func (idx lineIndex) lineOf(offset int) int {
	return sort.SearchInts(idx, offset)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
