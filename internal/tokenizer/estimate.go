package tokenizer

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/ricesearch/rice-chunk/internal/pkg/errors"
)

// RunesPerToken is the heuristic width of one estimated token.
const RunesPerToken = 4

// Packed token IDs carry the piece bytes themselves: length in bits 56-58,
// bytes in the low 56 bits.
const (
	packedBase     = uint64(1) << 56
	maxPackedBytes = 7
)

// Estimator approximates a BPE vocabulary with fixed windows of runes.
// It needs no model files, which makes it the offline choice.
//
// Pieces of up to seven bytes, which covers all ASCII text, are packed into
// the token ID on 64-bit platforms. Longer pieces are interned, so the
// table grows only with distinct multi-byte pieces and never shrinks;
// scope an Estimator to one run when chunking large non-ASCII corpora.
type Estimator struct {
	mu     sync.Mutex
	ids    map[string]int
	pieces []string
}

// NewEstimator creates an empty estimator.
func NewEstimator() *Estimator {
	return &Estimator{ids: make(map[string]int)}
}

// Count returns ceil(runes / RunesPerToken).
func (e *Estimator) Count(text string) (int, error) {
	runes := utf8.RuneCountInString(text)
	return (runes + RunesPerToken - 1) / RunesPerToken, nil
}

// Encode splits text into RunesPerToken-rune pieces and returns their IDs.
func (e *Estimator) Encode(text string) ([]int, error) {
	ids := make([]int, 0, len(text)/RunesPerToken+1)

	e.mu.Lock()
	defer e.mu.Unlock()

	for len(text) > 0 {
		end, n := 0, 0
		for end < len(text) && n < RunesPerToken {
			_, size := utf8.DecodeRuneInString(text[end:])
			end += size
			n++
		}
		ids = append(ids, e.id(text[:end]))
		text = text[end:]
	}
	return ids, nil
}

// Decode joins the pieces behind ids.
func (e *Estimator) Decode(ids []int) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var b strings.Builder
	for _, id := range ids {
		if id >= 0 && uint64(id) >= packedBase {
			b.WriteString(unpack(uint64(id)))
			continue
		}
		if id < 0 || id >= len(e.pieces) {
			return "", errors.TokenizerError("decode", fmt.Errorf("unknown token id %d", id))
		}
		b.WriteString(e.pieces[id])
	}
	return b.String(), nil
}

// Interned returns the number of pieces held in the intern table.
func (e *Estimator) Interned() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pieces)
}

// id must be called with e.mu held.
func (e *Estimator) id(piece string) int {
	if strconv.IntSize == 64 && len(piece) <= maxPackedBytes {
		return int(pack(piece))
	}
	return e.intern(piece)
}

func pack(piece string) uint64 {
	v := uint64(len(piece)) * packedBase
	for i := 0; i < len(piece); i++ {
		v |= uint64(piece[i]) << (8 * (maxPackedBytes - 1 - i))
	}
	return v
}

func unpack(v uint64) string {
	n := int(v / packedBase)
	if n > maxPackedBytes {
		n = maxPackedBytes
	}
	buf := make([]byte, n)
	for i := 0; i < n; i++ {
		buf[i] = byte(v >> (8 * (maxPackedBytes - 1 - i)))
	}
	return string(buf)
}

// intern must be called with e.mu held.
func (e *Estimator) intern(piece string) int {
	if id, ok := e.ids[piece]; ok {
		return id
	}
	id := len(e.pieces)
	e.pieces = append(e.pieces, piece)
	e.ids[piece] = id
	return id
}
