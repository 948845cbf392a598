package chunk

import (
	"github.com/ricesearch/rice-chunk/internal/ast"
	"github.com/ricesearch/rice-chunk/internal/pkg/errors"
	"github.com/ricesearch/rice-chunk/internal/tokenizer"
)

// Chunker runs linearization and packing for whole files.
type Chunker struct {
	cfg       Config
	tok       tokenizer.Tokenizer
	sink      Sink
	protected map[string]bool
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithSink sets the diagnostics sink. Defaults to Discard.
func WithSink(s Sink) Option {
	return func(c *Chunker) {
		if s != nil {
			c.sink = s
		}
	}
}

// New creates a Chunker after validating cfg.
func New(cfg Config, tok tokenizer.Tokenizer, opts ...Option) (*Chunker, error) {
	if tok == nil {
		return nil, errors.ValidationError("tokenizer is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Chunker{
		cfg:       cfg,
		tok:       tok,
		sink:      Discard,
		protected: protectedSet(cfg.ProtectedTypes),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Config returns the chunker's configuration.
func (c *Chunker) Config() Config {
	return c.cfg
}

// Tokenizer returns the tokenizer used for counting and splitting.
func (c *Chunker) Tokenizer() tokenizer.Tokenizer {
	return c.tok
}

// With returns a copy of the chunker reporting to sink.
func (c *Chunker) With(sink Sink) *Chunker {
	cp := *c
	if sink != nil {
		cp.sink = sink
	}
	return &cp
}

// Segments linearizes the top-level nodes of a file.
func (c *Chunker) Segments(source string, nodes []ast.SemanticNode, language string) ([]CodeSegment, error) {
	lin := Linearizer{
		Tokenizer:          c.tok,
		Sink:               c.sink,
		LargeGlueThreshold: c.cfg.LargeGlueThreshold,
	}
	return lin.Linearize(source, ast.TopLevel(nodes), language)
}

// ChunkFile linearizes and packs a file. An empty source yields no chunks.
func (c *Chunker) ChunkFile(source string, nodes []ast.SemanticNode, language string) ([]Chunk, error) {
	segments, err := c.Segments(source, nodes, language)
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, nil
	}

	p := Packer{
		MaxTokens: c.cfg.MaxTokens,
		Overlap:   c.cfg.Overlap,
		Protected: c.protected,
		Tokenizer: c.tok,
		Sink:      c.sink,
	}
	return p.Pack(segments)
}
