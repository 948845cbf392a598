package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/ricesearch/rice-chunk/internal/pkg/errors"
)

// Tiktoken wraps a BPE encoding from tiktoken-go. A loaded encoding is only
// read afterwards, so one instance is shared across workers.
type Tiktoken struct {
	name string
	enc  *tiktoken.Tiktoken
}

// NewTiktoken loads the named encoding (for example "cl100k_base").
func NewTiktoken(encoding string) (*Tiktoken, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, errors.TokenizerError("load encoding", err).WithDetail("encoding", encoding)
	}
	return &Tiktoken{name: encoding, enc: enc}, nil
}

// Name returns the encoding name.
func (t *Tiktoken) Name() string {
	return t.name
}

// Count returns the number of tokens in text.
func (t *Tiktoken) Count(text string) (int, error) {
	ids, err := t.Encode(text)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Encode tokenizes text. Special-token markers in source files are encoded
// as ordinary text.
func (t *Tiktoken) Encode(text string) (ids []int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.TokenizerError("encode", fmt.Errorf("%v", r)).WithDetail("encoding", t.name)
		}
	}()
	return t.enc.Encode(text, nil, nil), nil
}

// Decode converts token IDs back to text.
func (t *Tiktoken) Decode(ids []int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.TokenizerError("decode", fmt.Errorf("%v", r)).WithDetail("encoding", t.name)
		}
	}()
	return t.enc.Decode(ids), nil
}
