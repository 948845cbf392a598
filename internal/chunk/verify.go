package chunk

import (
	"fmt"
	"log/slog"

	"github.com/ricesearch/rice-chunk/internal/ast"
)

// Mismatch describes the first structural difference between two node lists.
type Mismatch struct {
	// Index is the position of the differing node, or -1 for a count mismatch.
	Index  int
	Field  string
	First  string
	Second string
}

func (m *Mismatch) String() string {
	if m.Index < 0 {
		return fmt.Sprintf("node count differs: %s vs %s", m.First, m.Second)
	}
	return fmt.Sprintf("node %d %s differs: %q vs %q", m.Index, m.Field, m.First, m.Second)
}

// CompareStructure compares two node lists by count, then position-wise by
// name, type and parent name. Line ranges, bytes and docs are ignored.
// Returns nil when the structures match.
func CompareStructure(first, second []ast.SemanticNode) *Mismatch {
	if len(first) != len(second) {
		return &Mismatch{
			Index:  -1,
			Field:  "count",
			First:  fmt.Sprint(len(first)),
			Second: fmt.Sprint(len(second)),
		}
	}

	for i := range first {
		a, b := first[i], second[i]
		switch {
		case a.Name != b.Name:
			return &Mismatch{Index: i, Field: "name", First: a.Name, Second: b.Name}
		case a.Type != b.Type:
			return &Mismatch{Index: i, Field: "type", First: a.Type, Second: b.Type}
		case a.ParentName != b.ParentName:
			return &Mismatch{Index: i, Field: "parent_name", First: a.ParentName, Second: b.ParentName}
		}
	}
	return nil
}

// VerifyEquivalence reports whether two parses of the same file agree in
// structure, emitting a diagnostic either way.
func VerifyEquivalence(first, second []ast.SemanticNode, sink Sink) bool {
	m := CompareStructure(first, second)
	if m != nil {
		emit(sink, DiagStructureMismatch, slog.LevelError, "structure mismatch", map[string]any{
			"index":  m.Index,
			"field":  m.Field,
			"first":  m.First,
			"second": m.Second,
		})
		return false
	}

	emit(sink, DiagStructureVerified, slog.LevelInfo, "structure verified", map[string]any{
		"nodes": len(first),
	})
	return true
}
