// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// Chunking parameters
	Chunk ChunkConfig `yaml:"chunk"`

	// Tokenizer selection
	Tokenizer TokenizerConfig `yaml:"tokenizer"`

	// Token count cache
	Cache CacheConfig `yaml:"cache"`

	// Event bus for downstream consumers
	Bus BusConfig `yaml:"bus"`

	// Repository indexing
	Index IndexConfig `yaml:"index"`

	// Logging configuration
	Log LogConfig `yaml:"log"`
}

// ChunkConfig holds chunking parameters.
type ChunkConfig struct {
	MaxTokens          int      `envconfig:"RICE_CHUNK_MAX_TOKENS" yaml:"max_tokens"`
	Overlap            int      `envconfig:"RICE_CHUNK_OVERLAP" yaml:"overlap"`
	LargeGlueThreshold int      `envconfig:"RICE_CHUNK_LARGE_GLUE" yaml:"large_glue_threshold"`
	ProtectedTypes     []string `envconfig:"RICE_CHUNK_PROTECTED" yaml:"protected_types"`
	MarkNodes          bool     `envconfig:"RICE_CHUNK_MARK_NODES" yaml:"mark_nodes"` // wrap nodes in a language header
}

// TokenizerConfig selects the tokenizer.
type TokenizerConfig struct {
	Type     string `envconfig:"RICE_TOKENIZER" yaml:"type"`
	Encoding string `envconfig:"RICE_TOKENIZER_ENCODING" yaml:"encoding"`
}

// CacheConfig holds token count cache settings.
type CacheConfig struct {
	Type     string `envconfig:"RICE_CACHE_TYPE" yaml:"type"`
	Size     int    `envconfig:"RICE_CACHE_SIZE" yaml:"size"`
	TTL      int    `envconfig:"RICE_CACHE_TTL" yaml:"ttl"` // seconds, 0 = no expiry
	RedisURL string `envconfig:"RICE_REDIS_URL" yaml:"redis_url"`
}

// BusConfig holds event bus settings.
type BusConfig struct {
	Type         string `envconfig:"RICE_BUS_TYPE" yaml:"type"`
	KafkaBrokers string `envconfig:"RICE_KAFKA_BROKERS" yaml:"kafka_brokers"`
	KafkaGroup   string `envconfig:"RICE_KAFKA_GROUP" yaml:"kafka_group"`
	EventLog     string `envconfig:"RICE_BUS_EVENT_LOG" yaml:"event_log"` // JSONL file, empty = off
}

// IndexConfig holds repository indexing settings.
type IndexConfig struct {
	Workers          int      `envconfig:"RICE_INDEX_WORKERS" yaml:"workers"`
	Extensions       []string `envconfig:"RICE_INDEX_EXTENSIONS" yaml:"extensions"`
	MaxFileSize      int64    `envconfig:"RICE_INDEX_MAX_FILE_SIZE" yaml:"max_file_size"`
	VerifyEnrichment bool     `envconfig:"RICE_INDEX_VERIFY" yaml:"verify_enrichment"`
	Normalize        bool     `envconfig:"RICE_INDEX_NORMALIZE" yaml:"normalize"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"RICE_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"RICE_LOG_FORMAT" yaml:"format"`
}

// DefaultProtectedTypes mirrors the chunker's default protected node types.
var DefaultProtectedTypes = []string{
	"function", "method", "class", "interface", "struct", "trait",
	"impl", "type", "module", "package",
}

// DefaultExtensions are the file extensions indexed when none are configured.
var DefaultExtensions = []string{
	".py", ".go", ".java", ".rs", ".ts", ".tsx", ".js", ".jsx", ".mjs",
	".md", ".markdown", ".v", ".sv",
}

// Load loads configuration from defaults, an optional YAML file, a .env file
// in the working directory and the environment, in increasing priority.
func Load(configPath string) (*Config, error) {
	return LoadFiles(configPath, ".env")
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return LoadFiles("", "")
}

// LoadFiles is Load with an explicit .env path. Missing .env files are
// ignored; variables already set in the environment are never overwritten.
func LoadFiles(configPath, envFile string) (*Config, error) {
	cfg := &Config{}

	setDefaults(cfg)

	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading env file: %w", err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// Default returns the default configuration.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

func setDefaults(cfg *Config) {
	cfg.Chunk = ChunkConfig{
		MaxTokens:          3000,
		Overlap:            50,
		LargeGlueThreshold: 1000,
		ProtectedTypes:     append([]string(nil), DefaultProtectedTypes...),
		MarkNodes:          true,
	}

	cfg.Tokenizer = TokenizerConfig{
		Type:     "tiktoken",
		Encoding: "cl100k_base",
	}

	cfg.Cache = CacheConfig{
		Type:     "memory",
		Size:     10000,
		TTL:      0,
		RedisURL: "redis://localhost:6379",
	}

	cfg.Bus = BusConfig{
		Type:       "none",
		KafkaGroup: "rice-chunk",
	}

	cfg.Index = IndexConfig{
		Workers:          4,
		Extensions:       append([]string(nil), DefaultExtensions...),
		MaxFileSize:      10 * 1024 * 1024,
		VerifyEnrichment: true,
	}

	cfg.Log = LogConfig{
		Level:  "info",
		Format: "text",
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	// Chunk validation
	if c.Chunk.MaxTokens < 1 {
		errs = append(errs, "chunk.max_tokens must be positive")
	}
	if c.Chunk.Overlap < 1 {
		errs = append(errs, "chunk.overlap must be positive")
	}
	if c.Chunk.Overlap >= c.Chunk.MaxTokens {
		errs = append(errs, "chunk.overlap must be less than chunk.max_tokens")
	}
	if c.Chunk.LargeGlueThreshold < 0 {
		errs = append(errs, "chunk.large_glue_threshold must not be negative")
	}
	if len(nonBlank(c.Chunk.ProtectedTypes)) == 0 {
		errs = append(errs, "chunk.protected_types must not be empty")
	}

	// Tokenizer validation
	validTokenizers := map[string]bool{"tiktoken": true, "estimate": true}
	if !validTokenizers[c.Tokenizer.Type] {
		errs = append(errs, fmt.Sprintf("invalid tokenizer: %s (must be tiktoken or estimate)", c.Tokenizer.Type))
	}

	// Cache validation
	validCacheTypes := map[string]bool{"none": true, "memory": true, "redis": true}
	if !validCacheTypes[c.Cache.Type] {
		errs = append(errs, fmt.Sprintf("invalid cache type: %s (must be none, memory, or redis)", c.Cache.Type))
	}
	if c.Cache.Type == "memory" && c.Cache.Size < 1 {
		errs = append(errs, "cache.size must be positive")
	}
	if c.Cache.TTL < 0 {
		errs = append(errs, "cache.ttl must not be negative")
	}

	// Bus validation
	validBusTypes := map[string]bool{"none": true, "memory": true, "kafka": true}
	if !validBusTypes[c.Bus.Type] {
		errs = append(errs, fmt.Sprintf("invalid bus type: %s (must be none, memory, or kafka)", c.Bus.Type))
	}
	if c.Bus.Type == "kafka" && strings.TrimSpace(c.Bus.KafkaBrokers) == "" {
		errs = append(errs, "bus.kafka_brokers is required for the kafka bus")
	}

	// Index validation
	if c.Index.Workers < 1 {
		errs = append(errs, "index.workers must be positive")
	}
	if c.Index.MaxFileSize < 1 {
		errs = append(errs, "index.max_file_size must be positive")
	}
	for _, ext := range c.Index.Extensions {
		if !strings.HasPrefix(ext, ".") {
			errs = append(errs, fmt.Sprintf("invalid extension: %q (must start with a dot)", ext))
		}
	}

	// Log validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text or json)", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Log.Level == "debug"
}

func nonBlank(items []string) []string {
	var out []string
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
