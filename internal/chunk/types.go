// Package chunk packs source files into token-bounded chunks along semantic
// boundaries.
//
// A file flows through three stages: Linearize merges the parser's top-level
// nodes with the text around them into a gapless run of segments, Pack groups
// segments greedily under the token budget, and ForceSplit cuts oversized
// unprotected segments into overlapping token windows. Protected node types
// are never split, even when that breaks the budget.
package chunk

import (
	"fmt"
	"strings"

	"github.com/ricesearch/rice-chunk/internal/pkg/errors"
)

// GlobalContext is the primary node name of a chunk holding no semantic node.
const GlobalContext = "global_context"

// SegmentKind tells node segments from glue segments.
type SegmentKind string

const (
	KindNode SegmentKind = "node"
	KindGlue SegmentKind = "glue"
)

// SegmentMeta describes the node a segment carries. Empty for glue.
type SegmentMeta struct {
	NodeName   string `json:"node_name,omitempty" yaml:"node_name,omitempty"`
	NodeType   string `json:"node_type,omitempty" yaml:"node_type,omitempty"`
	ParentName string `json:"parent_name,omitempty" yaml:"parent_name,omitempty"`
}

// CodeSegment is one unit of linearizer output.
//
// StartByte and EndByte delimit the source bytes the segment accounts for;
// Content is those bytes with the node part formatted.
type CodeSegment struct {
	Content    string      `json:"content" yaml:"content"`
	Kind       SegmentKind `json:"kind" yaml:"kind"`
	StartLine  int         `json:"start_line" yaml:"start_line"`
	EndLine    int         `json:"end_line" yaml:"end_line"`
	StartByte  int         `json:"start_byte" yaml:"start_byte"`
	EndByte    int         `json:"end_byte" yaml:"end_byte"`
	TokenCount int         `json:"token_count" yaml:"token_count"`
	Meta       SegmentMeta `json:"meta" yaml:"meta"`
}

// NodeLabel returns "type:name" for node segments and "" for glue.
func (s CodeSegment) NodeLabel() string {
	if s.Kind != KindNode {
		return ""
	}
	return s.Meta.NodeType + ":" + s.Meta.NodeName
}

// Chunk is one packed output unit.
type Chunk struct {
	Text           string   `json:"text" yaml:"text"`
	StartLine      int      `json:"start_line" yaml:"start_line"`
	EndLine        int      `json:"end_line" yaml:"end_line"`
	TokenCount     int      `json:"token_count" yaml:"token_count"`
	ContainedNodes []string `json:"contained_nodes" yaml:"contained_nodes"`
	PrimaryNode    string   `json:"primary_node" yaml:"primary_node"`
	Oversized      bool     `json:"is_oversized" yaml:"is_oversized"`
	ForcedSplit    bool     `json:"is_forced_split,omitempty" yaml:"is_forced_split,omitempty"`
	SplitOffset    int      `json:"split_index" yaml:"split_index"`
}

// LineCount returns EndLine - StartLine.
func (c Chunk) LineCount() int {
	return c.EndLine - c.StartLine
}

// ContainedNodesString joins the contained nodes with ", ".
func (c Chunk) ContainedNodesString() string {
	return strings.Join(c.ContainedNodes, ", ")
}

// Defaults.
const (
	DefaultMaxTokens          = 3000
	DefaultOverlap            = 50
	DefaultLargeGlueThreshold = 1000
)

// DefaultProtectedTypes are the node type tags never split.
var DefaultProtectedTypes = []string{
	"function", "method", "class", "interface", "struct", "trait",
	"impl", "type", "module", "package",
}

// Config holds chunking parameters.
type Config struct {
	// MaxTokens is the token budget of one chunk and the force-split window.
	MaxTokens int

	// Overlap is the number of tokens shared by adjacent force-split windows.
	Overlap int

	// LargeGlueThreshold only controls when a large-glue diagnostic is
	// emitted. Zero disables it.
	LargeGlueThreshold int

	// ProtectedTypes lists node type tags that are never split.
	ProtectedTypes []string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxTokens:          DefaultMaxTokens,
		Overlap:            DefaultOverlap,
		LargeGlueThreshold: DefaultLargeGlueThreshold,
		ProtectedTypes:     append([]string(nil), DefaultProtectedTypes...),
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	var errs []string

	if c.MaxTokens <= 0 {
		errs = append(errs, "max_tokens must be positive")
	}
	if c.Overlap <= 0 {
		errs = append(errs, "overlap must be positive")
	}
	if c.MaxTokens > 0 && c.Overlap >= c.MaxTokens {
		errs = append(errs, fmt.Sprintf("overlap (%d) must be less than max_tokens (%d)", c.Overlap, c.MaxTokens))
	}
	if c.LargeGlueThreshold < 0 {
		errs = append(errs, "large_glue_threshold must not be negative")
	}
	if len(protectedSet(c.ProtectedTypes)) == 0 {
		errs = append(errs, "protected_types must name at least one node type")
	}

	if len(errs) > 0 {
		return errors.ValidationError(fmt.Sprintf("chunk config:\n  - %s", strings.Join(errs, "\n  - ")))
	}
	return nil
}

func protectedSet(types []string) map[string]bool {
	set := make(map[string]bool, len(types))
	for _, t := range types {
		if t = strings.TrimSpace(t); t != "" {
			set[t] = true
		}
	}
	return set
}
