package chunk

import (
	"strings"
	"testing"

	"github.com/ricesearch/rice-chunk/internal/ast"
	"github.com/ricesearch/rice-chunk/internal/pkg/errors"
)

const pySource = `import os

def foo():
    return 1


class Bar:
    pass
# trailing
`

func pyNodes() []ast.SemanticNode {
	return []ast.SemanticNode{
		nodeFor(pySource, "def foo():\n    return 1", "foo", "function"),
		nodeFor(pySource, "class Bar:\n    pass", "Bar", "class"),
	}
}

func TestLinearize_EmptySource(t *testing.T) {
	l := Linearizer{Tokenizer: byteTokenizer{}}
	segs, err := l.Linearize("", pyNodes(), "")
	if err != nil {
		t.Fatalf("Linearize() error = %v", err)
	}
	if len(segs) != 0 {
		t.Errorf("len(segments) = %d, want 0", len(segs))
	}
}

func TestLinearize_NoNodes(t *testing.T) {
	rec := &Recorder{}
	l := Linearizer{Tokenizer: byteTokenizer{}, Sink: rec, LargeGlueThreshold: 10}

	segs, err := l.Linearize(pySource, nil, "python")
	if err != nil {
		t.Fatalf("Linearize() error = %v", err)
	}
	if len(segs) != 1 {
		t.Fatalf("len(segments) = %d, want 1", len(segs))
	}

	seg := segs[0]
	if seg.Kind != KindGlue {
		t.Errorf("Kind = %s, want glue", seg.Kind)
	}
	if seg.Content != pySource {
		t.Errorf("Content = %q, want whole source", seg.Content)
	}
	if seg.StartLine != 0 || seg.EndLine != strings.Count(pySource, "\n") {
		t.Errorf("lines = %d-%d, want 0-%d", seg.StartLine, seg.EndLine, strings.Count(pySource, "\n"))
	}
	if seg.TokenCount != len(pySource) {
		t.Errorf("TokenCount = %d, want %d", seg.TokenCount, len(pySource))
	}
	if rec.Count(DiagLargeGlue) != 1 {
		t.Errorf("large glue diagnostics = %d, want 1", rec.Count(DiagLargeGlue))
	}
}

func TestLinearize_Segments(t *testing.T) {
	l := Linearizer{Tokenizer: byteTokenizer{}}
	segs, err := l.Linearize(pySource, pyNodes(), "")
	if err != nil {
		t.Fatalf("Linearize() error = %v", err)
	}
	if len(segs) != 3 {
		t.Fatalf("len(segments) = %d, want 3", len(segs))
	}

	tests := []struct {
		kind      SegmentKind
		name      string
		prefix    string
		startLine int
		endLine   int
	}{
		{KindNode, "foo", "import os\n\ndef foo", 0, 3},
		{KindNode, "Bar", "\n\n\nclass Bar", 3, 7},
		{KindGlue, "", "\n# trailing", 7, 9},
	}

	for i, tt := range tests {
		seg := segs[i]
		if seg.Kind != tt.kind {
			t.Errorf("segments[%d].Kind = %s, want %s", i, seg.Kind, tt.kind)
		}
		if seg.Meta.NodeName != tt.name {
			t.Errorf("segments[%d].NodeName = %q, want %q", i, seg.Meta.NodeName, tt.name)
		}
		if !strings.HasPrefix(seg.Content, tt.prefix) {
			t.Errorf("segments[%d].Content = %q, want prefix %q", i, seg.Content, tt.prefix)
		}
		if seg.StartLine != tt.startLine || seg.EndLine != tt.endLine {
			t.Errorf("segments[%d] lines = %d-%d, want %d-%d", i, seg.StartLine, seg.EndLine, tt.startLine, tt.endLine)
		}
		if seg.TokenCount != len(seg.Content) {
			t.Errorf("segments[%d].TokenCount = %d, want %d", i, seg.TokenCount, len(seg.Content))
		}
	}
}

func TestLinearize_Coverage(t *testing.T) {
	l := Linearizer{Tokenizer: byteTokenizer{}}
	segs, err := l.Linearize(pySource, pyNodes(), "")
	if err != nil {
		t.Fatalf("Linearize() error = %v", err)
	}

	var b strings.Builder
	next := 0
	for i, seg := range segs {
		if seg.StartByte != next {
			t.Errorf("segments[%d].StartByte = %d, want %d", i, seg.StartByte, next)
		}
		next = seg.EndByte
		b.WriteString(seg.Content)
	}
	if next != len(pySource) {
		t.Errorf("last EndByte = %d, want %d", next, len(pySource))
	}
	if b.String() != pySource {
		t.Errorf("concatenated content differs from source:\n%q\n%q", b.String(), pySource)
	}
}

func TestLinearize_MarkerHeader(t *testing.T) {
	l := Linearizer{Tokenizer: byteTokenizer{}}
	segs, err := l.Linearize(pySource, pyNodes(), "python")
	if err != nil {
		t.Fatalf("Linearize() error = %v", err)
	}

	want := "import os\n\n```python\n#node segment:\ndef foo():\n    return 1\n"
	if segs[0].Content != want {
		t.Errorf("Content = %q, want %q", segs[0].Content, want)
	}
	// Header bytes are not counted.
	if segs[0].TokenCount != len("import os\n\ndef foo():\n    return 1") {
		t.Errorf("TokenCount = %d, want raw text length", segs[0].TokenCount)
	}
}

func TestLinearize_UnsortedAndOverlapping(t *testing.T) {
	nodes := pyNodes()
	overlap := nodes[1]
	overlap.Name = "Dup"
	overlap.StartByte = nodes[0].StartByte + 3
	overlap.EndByte = nodes[0].EndByte

	rec := &Recorder{}
	l := Linearizer{Tokenizer: byteTokenizer{}, Sink: rec}
	segs, err := l.Linearize(pySource, []ast.SemanticNode{nodes[1], overlap, nodes[0]}, "")
	if err != nil {
		t.Fatalf("Linearize() error = %v", err)
	}

	var names []string
	var b strings.Builder
	for _, s := range segs {
		if s.Kind == KindNode {
			names = append(names, s.Meta.NodeName)
		}
		b.WriteString(s.Content)
	}
	if strings.Join(names, ",") != "foo,Bar" {
		t.Errorf("node order = %v, want [foo Bar]", names)
	}
	if b.String() != pySource {
		t.Error("overlapping node duplicated or dropped source bytes")
	}
	if rec.Count(DiagSkippedNode) != 1 {
		t.Errorf("skipped node diagnostics = %d, want 1", rec.Count(DiagSkippedNode))
	}
}

func TestLinearize_ClampsOutOfRange(t *testing.T) {
	source := "x = 1\ndef f(): pass"
	node := nodeFor(source, "def f(): pass", "f", "function")
	node.EndByte = len(source) + 100

	l := Linearizer{Tokenizer: byteTokenizer{}}
	segs, err := l.Linearize(source, []ast.SemanticNode{node}, "")
	if err != nil {
		t.Fatalf("Linearize() error = %v", err)
	}
	if len(segs) != 1 || segs[0].EndByte != len(source) || segs[0].Content != source {
		t.Errorf("segments = %+v, want one segment covering the source", segs)
	}
}

func TestLinearize_TokenizerError(t *testing.T) {
	l := Linearizer{Tokenizer: failingTokenizer{bad: "class"}}
	_, err := l.Linearize(pySource, pyNodes(), "")
	if err == nil {
		t.Fatal("Linearize() expected error")
	}
	if !errors.IsTokenizer(err) {
		t.Errorf("error = %v, want tokenizer error", err)
	}
}

func TestLineIndex(t *testing.T) {
	idx := newLineIndex("a\nbc\n\nd")
	tests := []struct {
		offset int
		want   int
	}{
		{0, 0}, {1, 0}, {2, 1}, {4, 1}, {5, 2}, {6, 3}, {7, 3},
	}
	for _, tt := range tests {
		if got := idx.lineOf(tt.offset); got != tt.want {
			t.Errorf("lineOf(%d) = %d, want %d", tt.offset, got, tt.want)
		}
	}
}
