package metrics

import (
	"time"

	"github.com/ricesearch/rice-chunk/internal/chunk"
	"github.com/ricesearch/rice-chunk/internal/tokenizer"
)

// Metrics holds the metrics of one or more chunking runs.
type Metrics struct {
	Files         *CounterVec // labels: status
	Chunks        *Counter
	ForcedSplits  *Counter
	Oversized     *Counter
	ChunkTokens   *Histogram
	FileLatency   *Histogram
	Diagnostics   *CounterVec // labels: kind
	PublishErrors *Counter

	CacheHits   *Gauge
	CacheMisses *Gauge
}

// New creates a metrics set with every metric registered.
func New() *Metrics {
	return &Metrics{
		Files: NewCounterVec(
			"rice_chunk_files_total",
			"Files processed, by outcome",
			[]string{"status"},
		),
		Chunks: NewCounter(
			"rice_chunk_chunks_total",
			"Chunks produced",
			nil,
		),
		ForcedSplits: NewCounter(
			"rice_chunk_forced_split_chunks_total",
			"Chunks produced by token window splitting",
			nil,
		),
		Oversized: NewCounter(
			"rice_chunk_oversized_chunks_total",
			"Chunks over the token budget because a protected node could not be split",
			nil,
		),
		ChunkTokens: NewHistogram(
			"rice_chunk_chunk_tokens",
			"Tokens per chunk",
			[]float64{64, 128, 256, 512, 1024, 2048, 3000, 4096, 8192},
		),
		FileLatency: NewHistogram(
			"rice_chunk_file_latency_ms",
			"Time to chunk one file in milliseconds",
			[]float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		),
		Diagnostics: NewCounterVec(
			"rice_chunk_diagnostics_total",
			"Chunking diagnostics, by kind",
			[]string{"kind"},
		),
		PublishErrors: NewCounter(
			"rice_chunk_publish_errors_total",
			"Chunk records that failed to publish to the event bus",
			nil,
		),
		CacheHits: NewGauge(
			"rice_chunk_token_cache_hits",
			"Token count cache hits",
		),
		CacheMisses: NewGauge(
			"rice_chunk_token_cache_misses",
			"Token count cache misses",
		),
	}
}

// RecordFile records the outcome of one file and the chunks it produced.
func (m *Metrics) RecordFile(status string, chunks []chunk.Chunk, latency time.Duration, publishErrors int) {
	m.Files.WithLabels(status).Inc()
	m.FileLatency.Observe(float64(latency.Milliseconds()))
	m.PublishErrors.Add(int64(publishErrors))

	m.Chunks.Add(int64(len(chunks)))
	for _, c := range chunks {
		m.ChunkTokens.Observe(float64(c.TokenCount))
		if c.ForcedSplit {
			m.ForcedSplits.Inc()
		}
		if c.Oversized {
			m.Oversized.Inc()
		}
	}
}

// Sink returns a diagnostic sink that counts diagnostics by kind.
func (m *Metrics) Sink() chunk.Sink {
	return chunk.SinkFunc(func(d chunk.Diagnostic) {
		m.Diagnostics.WithLabels(string(d.Kind)).Inc()
	})
}

// RecordCache copies token cache statistics into the cache gauges.
func (m *Metrics) RecordCache(stats tokenizer.CacheStats) {
	m.CacheHits.Set(stats.Hits)
	m.CacheMisses.Set(stats.Misses)
}
