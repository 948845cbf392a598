package main

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/ricesearch/rice-chunk/internal/bus"
	"github.com/ricesearch/rice-chunk/internal/chunk"
	"github.com/ricesearch/rice-chunk/internal/index"
)

// Output formats.
const (
	formatJSONL = "jsonl"
	formatYAML  = "yaml"
	formatText  = "text"
)

// writer streams values to stdout in the selected format: one JSON object
// per line, one YAML document per value, or a short human-readable line.
type writer struct {
	out    io.Writer
	format string
	json   *json.Encoder
	yaml   *yaml.Encoder
}

func newWriter(out io.Writer, format string) *writer {
	w := &writer{out: out, format: format}
	switch format {
	case formatJSONL:
		w.json = json.NewEncoder(out)
		w.json.SetEscapeHTML(false)
	case formatYAML:
		w.yaml = yaml.NewEncoder(out)
		w.yaml.SetIndent(2)
	}
	return w
}

func (w *writer) write(v any) error {
	switch w.format {
	case formatJSONL:
		return w.json.Encode(v)
	case formatYAML:
		return w.yaml.Encode(v)
	default:
		return w.writeText(v)
	}
}

func (w *writer) writeText(v any) error {
	var err error
	switch v := v.(type) {
	case index.Record:
		_, err = fmt.Fprintf(w.out, "%s#%d\tlines %d-%d\t%d tokens\t%s%s\n",
			v.Path, v.ChunkIndex, v.StartLine, v.EndLine, v.TokenCount, v.PrimaryNode, flags(v.Oversized, v.ForcedSplit))
	case chunk.CodeSegment:
		label := v.NodeLabel()
		if label == "" {
			label = string(v.Kind)
		}
		_, err = fmt.Fprintf(w.out, "%-40s\tlines %d-%d\tbytes %d-%d\t%d tokens\n",
			label, v.StartLine, v.EndLine, v.StartByte, v.EndByte, v.TokenCount)
	case *index.IndexResult:
		_, err = fmt.Fprintf(w.out, "%s: %d indexed, %d skipped, %d failed, %d chunks in %s\n",
			v.Repo, v.Indexed, v.Skipped, v.Failed, v.ChunksTotal, v.Duration)
		for _, path := range v.Removed {
			if err == nil {
				_, err = fmt.Fprintf(w.out, "  removed %s\n", path)
			}
		}
		for _, e := range v.Errors {
			if err == nil {
				_, err = fmt.Fprintf(w.out, "  %s: %s\n", e.Path, e.Message)
			}
		}
	case bus.Delivery:
		_, err = fmt.Fprintf(w.out, "%s\t%s\t%s\n", v.Topic, v.Event.Type, v.Event.ID)
	case verifyResult:
		if v.Equivalent {
			_, err = fmt.Fprintf(w.out, "equivalent: %d nodes\n", v.Nodes)
		} else {
			_, err = fmt.Fprintf(w.out, "mismatch: %s\n", v.Mismatch)
		}
	default:
		_, err = fmt.Fprintf(w.out, "%v\n", v)
	}
	return err
}

// Close flushes the YAML stream.
func (w *writer) Close() error {
	if w.yaml != nil {
		return w.yaml.Close()
	}
	return nil
}

func flags(oversized, forced bool) string {
	switch {
	case oversized:
		return " [oversized]"
	case forced:
		return " [split]"
	}
	return ""
}
