package chunk

import (
	"log/slog"
	"strings"

	"github.com/ricesearch/rice-chunk/internal/tokenizer"
)

// Packer groups segments into chunks under a token budget.
type Packer struct {
	MaxTokens int
	Overlap   int
	Protected map[string]bool
	Tokenizer tokenizer.Tokenizer
	Sink      Sink
}

// Pack consumes segments in order. A segment joins the open batch while the
// batch stays within budget. On overflow the batch is committed first, then
// the segment is emitted alone if protected, force-split if it alone exceeds
// the budget, or starts a new batch.
func (p *Packer) Pack(segments []CodeSegment) ([]Chunk, error) {
	var (
		chunks []Chunk
		batch  []CodeSegment
		total  int
	)

	for _, seg := range segments {
		if total+seg.TokenCount <= p.MaxTokens {
			batch = append(batch, seg)
			total += seg.TokenCount
			continue
		}

		if len(batch) > 0 {
			chunks = append(chunks, p.commit(batch))
			batch, total = nil, 0
		}

		switch {
		case p.isProtected(seg):
			emit(p.Sink, DiagProtectionOverride, slog.LevelWarn, "protected node committed alone", map[string]any{
				"node":       seg.NodeLabel(),
				"tokens":     seg.TokenCount,
				"max_tokens": p.MaxTokens,
				"oversized":  seg.TokenCount > p.MaxTokens,
			})
			chunks = append(chunks, p.commit([]CodeSegment{seg}))

		case seg.TokenCount > p.MaxTokens:
			emit(p.Sink, DiagForcedSplit, slog.LevelInfo, "segment exceeds token budget, force splitting", map[string]any{
				"node":       seg.NodeLabel(),
				"tokens":     seg.TokenCount,
				"max_tokens": p.MaxTokens,
			})
			parts, err := ForceSplit(seg, p.MaxTokens, p.Overlap, p.Tokenizer)
			if err != nil {
				return nil, err
			}
			chunks = append(chunks, parts...)

		default:
			batch = append(batch, seg)
			total = seg.TokenCount
		}
	}

	if len(batch) > 0 {
		chunks = append(chunks, p.commit(batch))
	}
	return chunks, nil
}

func (p *Packer) isProtected(seg CodeSegment) bool {
	return seg.Kind == KindNode && p.Protected[seg.Meta.NodeType]
}

// commit merges a non-empty batch into one chunk.
func (p *Packer) commit(batch []CodeSegment) Chunk {
	var (
		b         strings.Builder
		tokens    int
		contained []string
		primary   = GlobalContext
		found     bool
	)

	for _, seg := range batch {
		b.WriteString(seg.Content)
		tokens += seg.TokenCount
		if seg.Kind == KindNode {
			contained = append(contained, seg.NodeLabel())
			if !found {
				primary, found = seg.Meta.NodeName, true
			}
		}
	}

	return Chunk{
		Text:           b.String(),
		StartLine:      batch[0].StartLine,
		EndLine:        batch[len(batch)-1].EndLine,
		TokenCount:     tokens,
		ContainedNodes: contained,
		PrimaryNode:    primary,
		Oversized:      tokens > p.MaxTokens,
	}
}
