package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ricesearch/rice-chunk/internal/ast"
	"github.com/ricesearch/rice-chunk/internal/chunk"
	"github.com/ricesearch/rice-chunk/internal/config"
	"github.com/ricesearch/rice-chunk/internal/index"
	"github.com/ricesearch/rice-chunk/internal/pkg/logger"
	"github.com/ricesearch/rice-chunk/internal/tokenizer"
)

// app holds the components shared by every command.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	format  string
	parsers *ast.Registry
	tok     tokenizer.Tokenizer
	chunker *chunk.Chunker
	closers []func() error
}

func newApp(cmd *cobra.Command) (*app, error) {
	configPath, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")
	format, _ := cmd.Flags().GetString("format")
	tokType, _ := cmd.Flags().GetString("tokenizer")

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if tokType != "" {
		cfg.Tokenizer.Type = tokType
	}

	format = strings.ToLower(format)
	switch format {
	case formatJSONL, formatYAML, formatText:
	default:
		return nil, fmt.Errorf("unknown output format: %s", format)
	}

	logLevel := cfg.Log.Level
	if verbose {
		logLevel = "debug"
	}
	log := logger.New(logLevel, cfg.Log.Format)

	return &app{
		cfg:     cfg,
		log:     log,
		format:  format,
		parsers: ast.DefaultRegistry(),
	}, nil
}

// initChunker creates the tokenizer and chunker. Commands that only parse
// skip it.
func (a *app) initChunker() error {
	if err := a.initTokenizer(); err != nil {
		return err
	}

	c, err := chunk.New(chunkConfig(a.cfg.Chunk), a.tok, chunk.WithSink(chunk.NewLogSink(a.log.Logger)))
	if err != nil {
		return err
	}
	a.chunker = c
	return nil
}

func (a *app) initTokenizer() error {
	base, err := tokenizer.New(tokenizer.Config{
		Type:     a.cfg.Tokenizer.Type,
		Encoding: a.cfg.Tokenizer.Encoding,
	})
	if err != nil {
		return fmt.Errorf("failed to create tokenizer: %w", err)
	}

	cache, err := tokenizer.NewCache(cacheConfig(a.cfg.Cache))
	if err != nil {
		a.log.Warn("Token count cache unavailable, counting without cache", "type", a.cfg.Cache.Type, "error", err)
		cache = nil
	}

	if cache == nil {
		a.tok = base
		return nil
	}

	if c, ok := cache.(interface{ Close() error }); ok {
		a.closers = append(a.closers, c.Close)
	}
	a.tok = tokenizer.NewCached(base, cache, a.cfg.Tokenizer.Type+":"+a.cfg.Tokenizer.Encoding)
	return nil
}

// Close releases every resource the app opened.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("Close failed", "error", err)
		}
	}
	a.closers = nil
}

func chunkConfig(c config.ChunkConfig) chunk.Config {
	return chunk.Config{
		MaxTokens:          c.MaxTokens,
		Overlap:            c.Overlap,
		LargeGlueThreshold: c.LargeGlueThreshold,
		ProtectedTypes:     c.ProtectedTypes,
	}
}

func cacheConfig(c config.CacheConfig) tokenizer.CacheConfig {
	return tokenizer.CacheConfig{
		Type:     c.Type,
		Size:     c.Size,
		TTL:      time.Duration(c.TTL) * time.Second,
		RedisURL: c.RedisURL,
	}
}

func pipelineConfig(cfg *config.Config) index.PipelineConfig {
	return index.PipelineConfig{
		Workers:          cfg.Index.Workers,
		Extensions:       cfg.Index.Extensions,
		MaxFileSize:      cfg.Index.MaxFileSize,
		MarkNodes:        cfg.Chunk.MarkNodes,
		VerifyEnrichment: cfg.Index.VerifyEnrichment,
	}
}
