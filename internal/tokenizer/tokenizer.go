// Package tokenizer counts, encodes and decodes text for a target vocabulary.
package tokenizer

import (
	"fmt"
	"strings"

	"github.com/ricesearch/rice-chunk/internal/pkg/errors"
)

// Tokenizer is the capability the chunking core consumes.
//
// Decode(Encode(x)) need not reproduce x byte for byte, but Encode and Decode
// must be deterministic for windowed splitting to be repeatable.
type Tokenizer interface {
	Count(text string) (int, error)
	Encode(text string) ([]int, error)
	Decode(ids []int) (string, error)
}

// Tokenizer types.
const (
	TypeTiktoken = "tiktoken"
	TypeEstimate = "estimate"
)

// DefaultEncoding is the BPE vocabulary used when none is configured.
const DefaultEncoding = "cl100k_base"

// Config selects and configures a tokenizer.
type Config struct {
	Type     string
	Encoding string
}

// New creates a tokenizer from configuration.
func New(cfg Config) (Tokenizer, error) {
	switch strings.ToLower(cfg.Type) {
	case TypeTiktoken, "":
		encoding := cfg.Encoding
		if encoding == "" {
			encoding = DefaultEncoding
		}
		return NewTiktoken(encoding)
	case TypeEstimate:
		return NewEstimator(), nil
	default:
		return nil, errors.ValidationError(fmt.Sprintf("unknown tokenizer type: %s", cfg.Type))
	}
}
