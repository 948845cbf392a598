package index

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ricesearch/rice-chunk/internal/ast"
	"github.com/ricesearch/rice-chunk/internal/bus"
	"github.com/ricesearch/rice-chunk/internal/chunk"
	"github.com/ricesearch/rice-chunk/internal/metrics"
	"github.com/ricesearch/rice-chunk/internal/pkg/hash"
	"github.com/ricesearch/rice-chunk/internal/pkg/logger"
)

// PipelineConfig configures the chunking pipeline.
type PipelineConfig struct {
	// Workers is the number of files chunked in parallel.
	Workers int

	// Extensions whitelists file extensions during a walk.
	Extensions []string

	// Ignore holds extra gitignore-style patterns.
	Ignore []string

	// MaxFileSize rejects larger files.
	MaxFileSize int64

	// MarkNodes wraps node text in a language header.
	MarkNodes bool

	// VerifyEnrichment rejects enriched sources whose structure differs
	// from the original.
	VerifyEnrichment bool

	// SkipUnchanged skips files whose hash matches the tracker.
	SkipUnchanged bool
}

// DefaultPipelineConfig returns sensible defaults.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Workers:          4,
		Extensions:       ast.Extensions(),
		MaxFileSize:      MaxDocumentSize,
		MarkNodes:        true,
		VerifyEnrichment: true,
	}
}

// Pipeline orchestrates the per-file flow:
// parse → (enrich → re-parse → verify) → linearize → pack → records → bus
type Pipeline struct {
	cfg      PipelineConfig
	parsers  *ast.Registry
	chunker  *chunk.Chunker
	enricher Enricher
	bus      bus.Bus
	tracker  *Tracker
	progress *ProgressTracker
	metrics  *metrics.Metrics
	log      *logger.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithEnricher enables the enrichment step.
func WithEnricher(e Enricher) Option {
	return func(p *Pipeline) { p.enricher = e }
}

// WithBus publishes records and diagnostics. A nil bus disables publishing.
func WithBus(b bus.Bus) Option {
	return func(p *Pipeline) { p.bus = b }
}

// WithTracker records file hashes, and skips unchanged files when
// SkipUnchanged is set.
func WithTracker(t *Tracker) Option {
	return func(p *Pipeline) { p.tracker = t }
}

// WithProgress reports per-file progress.
func WithProgress(cb ProgressCallback) Option {
	return func(p *Pipeline) { p.progress = NewProgressTracker(cb) }
}

// WithMetrics records per-file metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// NewPipeline creates a new chunking pipeline.
func NewPipeline(cfg PipelineConfig, parsers *ast.Registry, chunker *chunk.Chunker, log *logger.Logger, opts ...Option) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if parsers == nil {
		parsers = ast.DefaultRegistry()
	}
	if log == nil {
		log = logger.Default()
	}

	p := &Pipeline{
		cfg:     cfg,
		parsers: parsers,
		chunker: chunker,
		log:     log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// File statuses.
const (
	StatusIndexed = "indexed"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// IndexResult represents the result of a pipeline run.
type IndexResult struct {
	Repo          string        `json:"repo"`
	Indexed       int           `json:"indexed"`
	Skipped       int           `json:"skipped"`
	Failed        int           `json:"failed"`
	ChunksTotal   int           `json:"chunks_total"`
	PublishErrors int           `json:"publish_errors,omitempty"`
	Removed       []string      `json:"removed,omitempty"`
	Duration      time.Duration `json:"duration"`
	Errors        []IndexError  `json:"errors,omitempty"`
	Files         []FileResult  `json:"files,omitempty"`
	Records       []Record      `json:"-"`
}

// IndexError represents a per-file failure.
type IndexError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// FileResult describes what happened to one file.
type FileResult struct {
	Path          string `json:"path"`
	Language      string `json:"language"`
	Hash          string `json:"hash,omitempty"`
	ChunkCount    int    `json:"chunk_count"`
	Status        string `json:"status"`
	Enriched      bool   `json:"enriched,omitempty"`
	Diagnostics   int    `json:"diagnostics,omitempty"`
	PublishErrors int    `json:"publish_errors,omitempty"`
}

type job struct {
	path string
	load func() (*Document, error)
}

type outcome struct {
	file    FileResult
	records []Record
	err     error
}

// Run walks root and chunks every matching file.
func (p *Pipeline) Run(ctx context.Context, root string) (*IndexResult, error) {
	paths, err := Walk(root, WalkConfig{Extensions: p.cfg.Extensions, Ignore: p.cfg.Ignore})
	if err != nil {
		return nil, err
	}

	jobs := make([]job, len(paths))
	for i, rel := range paths {
		rel := rel
		jobs[i] = job{
			path: rel,
			load: func() (*Document, error) { return ReadDocument(root, rel, p.cfg.MaxFileSize) },
		}
	}

	repo := RepoName(root)
	result, err := p.run(ctx, repo, jobs)
	if err != nil {
		return nil, err
	}

	if p.tracker != nil {
		result.Removed = p.forget(ctx, repo, paths)
	}
	return result, nil
}

// RemovedEvent is published when a tracked file is no longer in the tree.
// Consumers drop every record they hold for Path.
type RemovedEvent struct {
	Repo string `json:"repo"`
	Path string `json:"path"`
}

// forget drops tracked paths missing from the current walk and announces
// each one on the bus.
func (p *Pipeline) forget(ctx context.Context, repo string, current []string) []string {
	removed := p.tracker.Removed(repo, current)
	for _, path := range removed {
		p.tracker.RemovePath(repo, path)

		if p.bus != nil {
			event := bus.NewEvent(hash.ChunkID(repo, path+"#removed", 0), bus.TypeChunkRemoved, "index", RemovedEvent{Repo: repo, Path: path})
			if err := p.bus.Publish(ctx, bus.TopicChunks, event); err != nil {
				p.log.Warn("Failed to publish removal", "repo", repo, "path", path, "error", err)
			}
		}
	}

	if len(removed) > 0 {
		p.log.Info("Forgot removed files", "repo", repo, "count", len(removed))
	}
	return removed
}

// IndexDocuments chunks in-memory documents. Results are ordered by path.
func (p *Pipeline) IndexDocuments(ctx context.Context, repo string, docs []*Document) (*IndexResult, error) {
	sorted := make([]*Document, len(docs))
	copy(sorted, docs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	jobs := make([]job, len(sorted))
	for i, doc := range sorted {
		doc := doc
		jobs[i] = job{
			path: doc.Path,
			load: func() (*Document, error) { return doc, nil },
		}
	}

	return p.run(ctx, repo, jobs)
}

func (p *Pipeline) run(ctx context.Context, repo string, jobs []job) (*IndexResult, error) {
	start := time.Now()
	outcomes := make([]outcome, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)

	for i, j := range jobs {
		i, j := i, j
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			doc, err := j.load()
			if err != nil {
				outcomes[i] = outcome{
					file: FileResult{Path: j.path, Language: ast.DetectLanguage(j.path), Status: StatusFailed},
					err:  err,
				}
			} else {
				records, file, err := p.ChunkDocument(gctx, repo, doc)
				outcomes[i] = outcome{file: file, records: records, err: err}
			}

			p.progress.FileDone(len(jobs), j.path)
			return nil
		})
	}

	// Per-file failures are isolated; only cancellation stops the run.
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &IndexResult{
		Repo:  repo,
		Files: make([]FileResult, 0, len(jobs)),
	}
	for _, o := range outcomes {
		result.Files = append(result.Files, o.file)
		result.PublishErrors += o.file.PublishErrors

		switch o.file.Status {
		case StatusIndexed:
			result.Indexed++
			result.ChunksTotal += len(o.records)
			result.Records = append(result.Records, o.records...)
		case StatusSkipped:
			result.Skipped++
		default:
			result.Failed++
			msg := "unknown error"
			if o.err != nil {
				msg = o.err.Error()
			}
			result.Errors = append(result.Errors, IndexError{Path: o.file.Path, Message: msg})
		}
	}
	result.Duration = time.Since(start)

	p.progress.Complete(result.Indexed, result.Skipped, result.Failed)

	p.log.Info("Chunking complete",
		"repo", repo,
		"indexed", result.Indexed,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"chunks", result.ChunksTotal,
		"duration", result.Duration,
	)

	return result, nil
}

// ChunkDocument runs the per-file flow for one document. Parser failures
// degrade to whole-file glue; tokenizer failures fail the file.
func (p *Pipeline) ChunkDocument(ctx context.Context, repo string, doc *Document) ([]Record, FileResult, error) {
	start := time.Now()
	records, chunks, res, err := p.chunkDocument(ctx, repo, doc)
	if p.metrics != nil {
		p.metrics.RecordFile(res.Status, chunks, time.Since(start), res.PublishErrors)
	}
	return records, res, err
}

func (p *Pipeline) chunkDocument(ctx context.Context, repo string, doc *Document) ([]Record, []chunk.Chunk, FileResult, error) {
	res := FileResult{Path: doc.Path, Language: doc.Language, Hash: doc.Hash}
	log := p.log.WithRepo(repo).WithFile(doc.Path, doc.Language)

	if err := ValidateDocument(doc, p.cfg.MaxFileSize); err != nil {
		log.Warn("Skipping invalid file", "error", err)
		res.Status = StatusFailed
		return nil, nil, res, err
	}

	if p.tracker != nil && p.cfg.SkipUnchanged && p.tracker.HasHash(repo, doc.Path, doc.Hash) {
		res.Status = StatusSkipped
		return nil, nil, res, nil
	}

	rec := &chunk.Recorder{}
	sink := chunk.Tee(rec, chunk.NewLogSink(log.Logger), p.diagnosticSink(ctx, repo, doc.Path), p.metricsSink())

	source := doc.Content
	nodes := p.parse(ctx, log, doc.Language, source)

	if p.enricher != nil {
		source, nodes, res.Enriched = p.enrich(ctx, log, doc, nodes, sink)
	}

	tag := ""
	if p.cfg.MarkNodes && doc.Language != ast.LangUnknown {
		tag = doc.Language
	}

	chunks, err := p.chunker.With(sink).ChunkFile(source, nodes, tag)
	res.Diagnostics = len(rec.Diagnostics())
	if err != nil {
		log.Error("Chunking failed", "error", err)
		res.Status = StatusFailed
		return nil, nil, res, err
	}

	records := NewRecords(repo, doc, chunks)
	res.ChunkCount = len(records)
	res.Status = StatusIndexed
	res.PublishErrors = p.publishRecords(ctx, log, records)

	if p.tracker != nil {
		p.tracker.SetHash(repo, doc.Path, doc.Hash)
	}

	return records, chunks, res, nil
}

func (p *Pipeline) metricsSink() chunk.Sink {
	if p.metrics == nil {
		return chunk.Discard
	}
	return p.metrics.Sink()
}

func (p *Pipeline) parse(ctx context.Context, log *logger.Logger, language, source string) []ast.SemanticNode {
	parser, ok := p.parsers.Get(language)
	if !ok {
		log.Debug("No parser for language, chunking as glue")
		return nil
	}

	nodes, err := parser.Parse(ctx, []byte(source))
	if err != nil {
		log.Warn("Parse failed, chunking as glue", "error", err)
		return nil
	}
	return nodes
}

// enrich applies the enricher and gates the result on structural
// equivalence. Any failure keeps the original source and nodes.
func (p *Pipeline) enrich(ctx context.Context, log *logger.Logger, doc *Document, nodes []ast.SemanticNode, sink chunk.Sink) (string, []ast.SemanticNode, bool) {
	enriched, err := p.enricher.Enrich(ctx, doc, nodes)
	if err != nil {
		log.Warn("Enrichment failed, using original source", "error", err)
		return doc.Content, nodes, false
	}
	if enriched == doc.Content {
		return doc.Content, nodes, false
	}

	reparsed := p.parse(ctx, log, doc.Language, enriched)
	if p.cfg.VerifyEnrichment && !chunk.VerifyEquivalence(nodes, reparsed, sink) {
		log.Warn("Enrichment changed file structure, using original source")
		return doc.Content, nodes, false
	}
	return enriched, reparsed, true
}

// DiagnosticEvent is the payload published for each chunking diagnostic.
type DiagnosticEvent struct {
	Repo       string           `json:"repo"`
	Path       string           `json:"path"`
	Diagnostic chunk.Diagnostic `json:"diagnostic"`
}

func (p *Pipeline) diagnosticSink(ctx context.Context, repo, path string) chunk.Sink {
	if p.bus == nil {
		return chunk.Discard
	}

	var seq int
	return chunk.SinkFunc(func(d chunk.Diagnostic) {
		id := hash.ChunkID(repo, path+"#diag", seq)
		seq++

		event := bus.NewEvent(id, bus.TypeDiagnostic, "index", DiagnosticEvent{Repo: repo, Path: path, Diagnostic: d})
		if err := p.bus.Publish(ctx, bus.TopicDiagnostics, event); err != nil {
			p.log.Debug("Failed to publish diagnostic", "path", path, "error", err)
		}
	})
}

// publishRecords publishes one event per record and returns the number of
// failed publishes.
func (p *Pipeline) publishRecords(ctx context.Context, log *logger.Logger, records []Record) int {
	if p.bus == nil {
		return 0
	}

	failed := 0
	for _, r := range records {
		event := bus.NewEvent(r.ID, bus.TypeChunkRecord, "index", r)
		if err := p.bus.Publish(ctx, bus.TopicChunks, event); err != nil {
			failed++
			log.Warn("Failed to publish chunk record", "chunk_id", r.ID, "error", err)
		}
	}
	return failed
}
