package chunk

import (
	"fmt"

	"github.com/ricesearch/rice-chunk/internal/pkg/errors"
	"github.com/ricesearch/rice-chunk/internal/tokenizer"
)

// ForceSplit cuts a segment into windows of at most window tokens, each
// starting window-overlap tokens after the previous one. Every window keeps
// the segment's line range; SplitOffset records where it starts in the
// segment's token sequence.
func ForceSplit(seg CodeSegment, window, overlap int, tok tokenizer.Tokenizer) ([]Chunk, error) {
	stride := window - overlap
	if window <= 0 || overlap < 0 || stride <= 0 {
		return nil, errors.ValidationError(fmt.Sprintf("invalid split window %d with overlap %d", window, overlap))
	}

	ids, err := tok.Encode(seg.Content)
	if err != nil {
		return nil, errors.TokenizerError("encode segment for split", err).WithDetail("node", seg.NodeLabel())
	}

	var contained []string
	primary := GlobalContext
	if seg.Kind == KindNode {
		contained = []string{seg.NodeLabel()}
		primary = seg.Meta.NodeName
	}

	if len(ids) == 0 {
		return []Chunk{{
			Text:           seg.Content,
			StartLine:      seg.StartLine,
			EndLine:        seg.EndLine,
			TokenCount:     seg.TokenCount,
			ContainedNodes: contained,
			PrimaryNode:    primary,
			Oversized:      seg.TokenCount > window,
		}}, nil
	}

	chunks := make([]Chunk, 0, (len(ids)+stride-1)/stride)
	for offset := 0; offset < len(ids); offset += stride {
		end := min(offset+window, len(ids))

		text, err := tok.Decode(ids[offset:end])
		if err != nil {
			return nil, errors.TokenizerError("decode split window", err).
				WithDetail("node", seg.NodeLabel()).
				WithDetail("offset", fmt.Sprint(offset))
		}

		chunks = append(chunks, Chunk{
			Text:           text,
			StartLine:      seg.StartLine,
			EndLine:        seg.EndLine,
			TokenCount:     end - offset,
			ContainedNodes: append([]string(nil), contained...),
			PrimaryNode:    primary,
			ForcedSplit:    true,
			SplitOffset:    offset,
		})
	}
	return chunks, nil
}
