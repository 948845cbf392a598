package tokenizer

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ricesearch/rice-chunk/internal/pkg/errors"
)

func TestEstimator_Count(t *testing.T) {
	e := NewEstimator()

	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"héllo wörld", 3},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := e.Count(tt.text)
			if err != nil {
				t.Fatalf("Count() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Count(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestEstimator_RoundTrip(t *testing.T) {
	e := NewEstimator()
	text := "def héllo():\n    return '日本語'\n"

	ids, err := e.Encode(text)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	count, _ := e.Count(text)
	if len(ids) != count {
		t.Errorf("len(Encode()) = %d, Count() = %d; must agree", len(ids), count)
	}

	got, err := e.Decode(ids)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got != text {
		t.Errorf("Decode(Encode(x)) = %q, want %q", got, text)
	}

	// Windows decode independently and concatenate back to the input.
	first, _ := e.Decode(ids[:3])
	rest, _ := e.Decode(ids[3:])
	if first+rest != text {
		t.Error("split decode does not reassemble the input")
	}
}

func TestEstimator_Deterministic(t *testing.T) {
	e := NewEstimator()
	a, _ := e.Encode("abcdabcd")
	b, _ := e.Encode("abcdabcd")

	if len(a) != 2 || a[0] != a[1] {
		t.Errorf("Encode(abcdabcd) = %v, want two equal ids", a)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("Encode not deterministic: %v vs %v", a, b)
		}
	}
}

func TestEstimator_InternTable(t *testing.T) {
	if strconv.IntSize != 64 {
		t.Skip("packed token ids need 64-bit ints")
	}

	e := NewEstimator()
	var b strings.Builder
	for i := 0; i < 5000; i++ {
		fmt.Fprintf(&b, "func f%d() int { return %d }\n", i, i*7)
	}
	ascii := b.String()

	ids, err := e.Encode(ascii)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if n := e.Interned(); n != 0 {
		t.Errorf("Interned() after ASCII input = %d, want 0", n)
	}
	if got, _ := e.Decode(ids); got != ascii {
		t.Error("Decode(Encode(ascii)) does not restore the input")
	}

	wide := "日本語日本語日本語"
	if _, err := e.Encode(wide); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	first := e.Interned()
	if first == 0 {
		t.Fatal("multi-byte pieces should be interned")
	}
	if _, err := e.Encode(wide); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if again := e.Interned(); again != first {
		t.Errorf("Interned() grew from %d to %d on repeated input", first, again)
	}
}

func TestEstimator_DecodeUnknownID(t *testing.T) {
	_, err := NewEstimator().Decode([]int{42})
	if !errors.IsTokenizer(err) {
		t.Errorf("Decode(unknown) error = %v, want tokenizer error", err)
	}
}

func TestNew(t *testing.T) {
	tok, err := New(Config{Type: TypeEstimate})
	if err != nil {
		t.Fatalf("New(estimate) error = %v", err)
	}
	if _, ok := tok.(*Estimator); !ok {
		t.Errorf("New(estimate) = %T, want *Estimator", tok)
	}

	if _, err := New(Config{Type: "sentencepiece"}); !errors.IsValidation(err) {
		t.Errorf("New(unknown) error = %v, want validation error", err)
	}
}

func TestTiktoken(t *testing.T) {
	tok, err := NewTiktoken(DefaultEncoding)
	if err != nil {
		t.Skip("tiktoken encoding not available:", err)
	}

	text := "func main() {\n\tfmt.Println(\"hello\")\n}\n"
	ids, err := tok.Encode(text)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	count, err := tok.Count(text)
	if err != nil || count != len(ids) {
		t.Errorf("Count() = %d, %v; want %d", count, err, len(ids))
	}

	got, err := tok.Decode(ids)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got != text {
		t.Errorf("Decode(Encode(x)) = %q, want %q", got, text)
	}

	// Special-token markers inside source are ordinary text.
	if _, err := tok.Encode("x = '<|endoftext|>'"); err != nil {
		t.Errorf("Encode(special marker) error = %v", err)
	}
}

type countingTokenizer struct {
	*Estimator
	calls int
}

func (c *countingTokenizer) Count(text string) (int, error) {
	c.calls++
	return c.Estimator.Count(text)
}

func TestCached_Count(t *testing.T) {
	inner := &countingTokenizer{Estimator: NewEstimator()}
	cache, err := NewMemoryCache(16)
	if err != nil {
		t.Fatalf("NewMemoryCache() error = %v", err)
	}
	tok := NewCached(inner, cache, "estimate")

	text := strings.Repeat("x", 40)
	for i := 0; i < 3; i++ {
		n, err := tok.Count(text)
		if err != nil || n != 10 {
			t.Fatalf("Count() = %d, %v; want 10", n, err)
		}
	}

	if inner.calls != 1 {
		t.Errorf("inner Count called %d times, want 1", inner.calls)
	}
	stats := tok.Stats()
	if stats.Hits != 2 || stats.Misses != 1 {
		t.Errorf("Stats() = %+v, want 2 hits 1 miss", stats)
	}
	if cache.Len() != 1 {
		t.Errorf("cache.Len() = %d, want 1", cache.Len())
	}

	// Encode still reaches the wrapped tokenizer.
	ids, _ := tok.Encode(text)
	if len(ids) != 10 {
		t.Errorf("Encode() = %d ids, want 10", len(ids))
	}
}

func TestMemoryCache_Evicts(t *testing.T) {
	cache, _ := NewMemoryCache(2)
	cache.Set("a", 1)
	cache.Set("b", 2)
	cache.Set("c", 3)

	if _, ok := cache.Get("a"); ok {
		t.Error("oldest entry should be evicted")
	}
	if n, ok := cache.Get("c"); !ok || n != 3 {
		t.Errorf("Get(c) = %d, %v; want 3", n, ok)
	}
}

func TestNewCache(t *testing.T) {
	c, err := NewCache(CacheConfig{Type: "none"})
	if err != nil || c != nil {
		t.Errorf("NewCache(none) = %v, %v; want nil, nil", c, err)
	}

	c, err = NewCache(CacheConfig{Type: "memory", Size: 8})
	if err != nil {
		t.Fatalf("NewCache(memory) error = %v", err)
	}
	if _, ok := c.(*MemoryCache); !ok {
		t.Errorf("NewCache(memory) = %T", c)
	}

	if _, err := NewCache(CacheConfig{Type: "memcached"}); !errors.IsValidation(err) {
		t.Errorf("NewCache(unknown) error = %v, want validation error", err)
	}
}

func TestNewRedisCache_InvalidURL(t *testing.T) {
	if _, err := NewRedisCache("invalid://url", 0); err == nil {
		t.Fatal("expected error for invalid URL")
	}
}

func TestRedisCache_SetGet(t *testing.T) {
	url := os.Getenv("RICE_TEST_REDIS_URL")
	if url == "" {
		url = "redis://localhost:6379/15"
	}
	cache, err := NewRedisCache(url, time.Minute)
	if err != nil {
		t.Skip("Redis not available:", err)
	}
	defer cache.Close()

	key := "tok:test:" + time.Now().Format(time.RFC3339Nano)
	if _, ok := cache.Get(key); ok {
		t.Fatal("fresh key should miss")
	}
	cache.Set(key, 42)
	if n, ok := cache.Get(key); !ok || n != 42 {
		t.Errorf("Get() = %d, %v; want 42", n, ok)
	}
}
