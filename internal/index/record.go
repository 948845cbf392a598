package index

import (
	"github.com/ricesearch/rice-chunk/internal/chunk"
	"github.com/ricesearch/rice-chunk/internal/pkg/hash"
)

// Record is a chunk merged with the metadata of the file it came from.
type Record struct {
	ID             string   `json:"id" yaml:"id"`
	Repo           string   `json:"repo" yaml:"repo"`
	Path           string   `json:"path" yaml:"path"`
	FileName       string   `json:"file_name" yaml:"file_name"`
	Language       string   `json:"language" yaml:"language"`
	ChunkIndex     int      `json:"chunk_id" yaml:"chunk_id"`
	Text           string   `json:"text" yaml:"text"`
	StartLine      int      `json:"chunk_start_line" yaml:"chunk_start_line"`
	EndLine        int      `json:"chunk_end_line" yaml:"chunk_end_line"`
	LineCount      int      `json:"line_count" yaml:"line_count"`
	TokenCount     int      `json:"token_count" yaml:"token_count"`
	ContainedNodes []string `json:"contained_nodes" yaml:"contained_nodes"`
	PrimaryNode    string   `json:"primary_node_name" yaml:"primary_node_name"`
	Oversized      bool     `json:"is_oversized" yaml:"is_oversized"`
	ForcedSplit    bool     `json:"is_forced_split,omitempty" yaml:"is_forced_split,omitempty"`
	SplitOffset    *int     `json:"split_index,omitempty" yaml:"split_index,omitempty"` // set on forced splits only
	Hash           string   `json:"hash" yaml:"hash"`
}

// NewRecords merges file metadata into a file's chunks, numbering them in
// order.
func NewRecords(repo string, doc *Document, chunks []chunk.Chunk) []Record {
	records := make([]Record, len(chunks))
	for i, c := range chunks {
		records[i] = Record{
			ID:             hash.ChunkID(repo, doc.Path, i),
			Repo:           repo,
			Path:           doc.Path,
			FileName:       doc.FileName(),
			Language:       doc.Language,
			ChunkIndex:     i,
			Text:           c.Text,
			StartLine:      c.StartLine,
			EndLine:        c.EndLine,
			LineCount:      c.LineCount(),
			TokenCount:     c.TokenCount,
			ContainedNodes: c.ContainedNodes,
			PrimaryNode:    c.PrimaryNode,
			Oversized:      c.Oversized,
			ForcedSplit:    c.ForcedSplit,
			Hash:           hash.SHA256String(c.Text),
		}
		if c.ForcedSplit {
			offset := c.SplitOffset
			records[i].SplitOffset = &offset
		}
	}
	return records
}
