package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ricesearch/rice-chunk/internal/ast"
	"github.com/ricesearch/rice-chunk/internal/bus"
	"github.com/ricesearch/rice-chunk/internal/chunk"
	"github.com/ricesearch/rice-chunk/internal/config"
	"github.com/ricesearch/rice-chunk/internal/index"
	"github.com/ricesearch/rice-chunk/internal/metrics"
	"github.com/ricesearch/rice-chunk/internal/tokenizer"
)

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

func chunkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chunk [path]",
		Short: "Chunk a repository or a single file",
		Long: `Chunk every supported file below path (default: the current
directory) and print one record per chunk. Records are also published to
the configured event bus.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runChunk,
	}

	cmd.Flags().IntP("workers", "w", 0, "parallel workers (default from config)")
	cmd.Flags().String("state", "", "directory holding file hashes; unchanged files are skipped")
	cmd.Flags().Bool("progress", false, "log per-file progress")
	cmd.Flags().Bool("normalize", false, "normalize whitespace before chunking")
	cmd.Flags().Bool("summary", false, "print the run summary instead of records")
	cmd.Flags().String("metrics-file", "", "write Prometheus metrics to this file when done")

	return cmd
}

func runChunk(cmd *cobra.Command, args []string) error {
	path := "."
	if len(args) > 0 {
		path = args[0]
	}

	workers, _ := cmd.Flags().GetInt("workers")
	stateDir, _ := cmd.Flags().GetString("state")
	showProgress, _ := cmd.Flags().GetBool("progress")
	normalize, _ := cmd.Flags().GetBool("normalize")
	summary, _ := cmd.Flags().GetBool("summary")
	metricsFile, _ := cmd.Flags().GetString("metrics-file")

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.initChunker(); err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	if err := requireSharedBus(a.cfg.Bus.Type); err != nil {
		return err
	}
	b, err := bus.NewBus(a.cfg.Bus, a.log)
	if err != nil {
		return fmt.Errorf("failed to create event bus: %w", err)
	}
	if b != nil {
		defer b.Close()
	}

	pcfg := pipelineConfig(a.cfg)
	if workers > 0 {
		pcfg.Workers = workers
	}

	opts := []index.Option{index.WithBus(b)}
	if normalize || a.cfg.Index.Normalize {
		opts = append(opts, index.WithEnricher(index.NormalizeWhitespace))
	}

	var tracker *index.Tracker
	if stateDir != "" {
		tracker = index.NewTracker()
		if err := tracker.Load(stateDir); err != nil {
			return fmt.Errorf("failed to load state: %w", err)
		}
		pcfg.SkipUnchanged = true
		opts = append(opts, index.WithTracker(tracker))
	}

	if showProgress {
		opts = append(opts, index.WithProgress(func(p index.Progress) {
			a.log.Info("Progress",
				"stage", p.Stage,
				"current", p.Current,
				"total", p.Total,
				"percent", fmt.Sprintf("%.1f", p.Percent),
				"file", p.CurrentFile,
			)
		}))
	}

	var m *metrics.Metrics
	if metricsFile != "" {
		m = metrics.New()
		opts = append(opts, index.WithMetrics(m))
	}

	pipeline := index.NewPipeline(pcfg, a.parsers, a.chunker, a.log, opts...)

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	var result *index.IndexResult
	if info.IsDir() {
		result, err = pipeline.Run(ctx, path)
	} else {
		dir := filepath.Dir(path)
		var doc *index.Document
		doc, err = index.ReadDocument(dir, filepath.Base(path), pcfg.MaxFileSize)
		if err != nil {
			return err
		}
		result, err = pipeline.IndexDocuments(ctx, index.RepoName(dir), []*index.Document{doc})
	}
	if err != nil {
		return err
	}

	w := newWriter(cmd.OutOrStdout(), a.format)
	if summary {
		if err := w.write(result); err != nil {
			return err
		}
	} else {
		for _, r := range result.Records {
			if err := w.write(r); err != nil {
				return err
			}
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	if m != nil {
		if cached, ok := a.tok.(*tokenizer.Cached); ok {
			m.RecordCache(cached.Stats())
		}
		if err := m.WriteTextfile(metricsFile); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}

	if tracker != nil {
		if err := tracker.Save(stateDir); err != nil {
			return fmt.Errorf("failed to save state: %w", err)
		}
	}

	if result.Failed > 0 {
		return fmt.Errorf("%d of %d files failed", result.Failed, len(result.Files))
	}
	return nil
}

func segmentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "segments <file>",
		Short: "Print the linearized segments of a file",
		Args:  cobra.ExactArgs(1),
		RunE:  runSegments,
	}
	cmd.Flags().String("language", "", "language tag (default: detected from the file name)")
	return cmd
}

func runSegments(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.initChunker(); err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	language, _ := cmd.Flags().GetString("language")
	source, nodes, language, err := a.parseFile(ctx, args[0], language)
	if err != nil {
		return err
	}

	tag := ""
	if a.cfg.Chunk.MarkNodes && language != ast.LangUnknown {
		tag = language
	}

	segments, err := a.chunker.Segments(source, nodes, tag)
	if err != nil {
		return err
	}

	w := newWriter(cmd.OutOrStdout(), a.format)
	for _, s := range segments {
		if err := w.write(s); err != nil {
			return err
		}
	}
	return w.Close()
}

// verifyResult reports a structural comparison.
type verifyResult struct {
	Equivalent bool            `json:"equivalent" yaml:"equivalent"`
	Nodes      int             `json:"nodes" yaml:"nodes"`
	Mismatch   *chunk.Mismatch `json:"mismatch,omitempty" yaml:"mismatch,omitempty"`
}

func verifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <original> <enriched>",
		Short: "Check that two versions of a file have the same structure",
		Long: `Parse both files and compare their semantic nodes by name, type and
parent. Positions are ignored, so added comments or docstrings pass while
renamed, added or removed definitions fail.`,
		Args: cobra.ExactArgs(2),
		RunE: runVerify,
	}
	cmd.Flags().String("language", "", "language tag (default: detected from the original file name)")
	return cmd
}

func runVerify(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext(cmd)
	defer stop()

	language, _ := cmd.Flags().GetString("language")
	_, first, language, err := a.parseFile(ctx, args[0], language)
	if err != nil {
		return err
	}
	_, second, _, err := a.parseFile(ctx, args[1], language)
	if err != nil {
		return err
	}

	mismatch := chunk.CompareStructure(first, second)
	chunk.VerifyEquivalence(first, second, chunk.NewLogSink(a.log.Logger))

	w := newWriter(cmd.OutOrStdout(), a.format)
	if err := w.write(verifyResult{Equivalent: mismatch == nil, Nodes: len(first), Mismatch: mismatch}); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	if mismatch != nil {
		return fmt.Errorf("structure mismatch: %s", mismatch)
	}
	return nil
}

// parseFile reads and parses path. An empty language is detected from the
// file name; a missing parser yields no nodes.
func (a *app) parseFile(ctx context.Context, path, language string) (string, []ast.SemanticNode, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, "", fmt.Errorf("failed to read %s: %w", path, err)
	}

	if language == "" {
		language = ast.DetectLanguage(path)
	}

	parser, ok := a.parsers.Get(language)
	if !ok {
		a.log.Debug("No parser for language", "file", path, "language", language)
		return string(data), nil, language, nil
	}

	nodes, err := parser.Parse(ctx, data)
	if err != nil {
		return "", nil, language, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return string(data), nodes, language, nil
}

func replayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <event-log>",
		Short: "Publish a recorded event log to the configured bus",
		Args:  cobra.ExactArgs(1),
		RunE:  runReplay,
	}
	cmd.Flags().Duration("since", 0, "only replay events newer than this (e.g. 1h)")
	cmd.Flags().Int("limit", 0, "maximum number of events (0 = all)")
	cmd.Flags().String("bus", "", "bus type (memory, kafka), overrides config")
	return cmd
}

func runReplay(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	since, _ := cmd.Flags().GetDuration("since")
	limit, _ := cmd.Flags().GetInt("limit")
	busType, _ := cmd.Flags().GetString("bus")

	busCfg := a.cfg.Bus
	busCfg.EventLog = "" // never re-record what is being replayed
	if busType != "" {
		busCfg.Type = busType
	}
	if err := requireSharedBus(busCfg.Type); err != nil {
		return err
	}

	b, err := bus.NewBus(busCfg, a.log)
	if err != nil {
		return fmt.Errorf("failed to create event bus: %w", err)
	}
	if b == nil {
		return fmt.Errorf("no event bus configured, set RICE_BUS_TYPE or --bus")
	}
	defer b.Close()

	var from time.Time
	if since > 0 {
		from = time.Now().Add(-since)
	}

	events, err := bus.ReadEvents(args[0], from, limit)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	n, err := bus.Replay(ctx, b, events)
	a.log.Info("Replay complete", "events", n, "total", len(events))
	return err
}

// requireSharedBus rejects the memory bus where no subscriber lives in the
// same process.
func requireSharedBus(busType string) error {
	if strings.EqualFold(busType, "memory") {
		return fmt.Errorf("the memory bus only delivers within one process; use kafka, or tail --from to read an event log")
	}
	return nil
}

func tailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print events from the configured bus",
		Long: `Subscribe to the chunk and diagnostic topics and print every event.

With --from, the event log is replayed through an in-process bus instead
and tail exits once every matching event is printed. Events from an
in-process bus may arrive out of order.`,
		Args: cobra.NoArgs,
		RunE: runTail,
	}
	cmd.Flags().String("from", "", "replay this event log instead of reading the configured bus")
	cmd.Flags().Duration("since", 0, "with --from, only events newer than this (e.g. 1h)")
	cmd.Flags().Int("limit", 0, "stop after this many events (0 = no limit)")
	cmd.Flags().StringSlice("topic", []string{bus.TopicChunks, bus.TopicDiagnostics}, "topics to subscribe to")
	cmd.Flags().String("bus", "", "bus type (kafka), overrides config")
	return cmd
}

func runTail(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	from, _ := cmd.Flags().GetString("from")
	since, _ := cmd.Flags().GetDuration("since")
	limit, _ := cmd.Flags().GetInt("limit")
	topics, _ := cmd.Flags().GetStringSlice("topic")
	busType, _ := cmd.Flags().GetString("bus")

	busCfg := a.cfg.Bus
	busCfg.EventLog = ""
	if busType != "" {
		busCfg.Type = busType
	}

	var events []bus.LoggedEvent
	if from != "" {
		busCfg = config.BusConfig{Type: "memory"}

		var after time.Time
		if since > 0 {
			after = time.Now().Add(-since)
		}
		logged, err := bus.ReadEvents(from, after, 0)
		if err != nil {
			return err
		}
		for _, e := range logged {
			if slices.Contains(topics, e.Topic) {
				events = append(events, e)
			}
		}
		if limit > 0 && len(events) > limit {
			events = events[:limit]
		}
		limit = len(events)
		if limit == 0 {
			return nil
		}
	} else if err := requireSharedBus(busCfg.Type); err != nil {
		return err
	}

	b, err := bus.NewBus(busCfg, a.log)
	if err != nil {
		return fmt.Errorf("failed to create event bus: %w", err)
	}
	if b == nil {
		return fmt.Errorf("no event bus configured, set RICE_BUS_TYPE, --bus or --from")
	}
	defer b.Close()

	ctx, stop := signalContext(cmd)
	defer stop()

	consumer, err := bus.NewConsumer(ctx, b, topics...)
	if err != nil {
		return err
	}
	defer consumer.Close()

	if len(events) > 0 {
		if _, err := bus.Replay(ctx, b, events); err != nil {
			return err
		}
	}

	w := newWriter(cmd.OutOrStdout(), a.format)
	for n := 0; limit == 0 || n < limit; n++ {
		d, err := consumer.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return err
		}
		if err := w.write(d); err != nil {
			return err
		}
	}
	return w.Close()
}
