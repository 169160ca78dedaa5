package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"`
	Storage     StorageConfig   `toml:"storage"`
	Queue       QueueConfig     `toml:"queue"`
	Ingest      IngestConfig    `toml:"ingest"`
	Embedding   EmbeddingConfig `toml:"embedding"`
	VectorIndex VectorConfig    `toml:"vector_index"`
	Rerank      RerankConfig    `toml:"rerank"`
	LLM         LLMConfig       `toml:"llm"`
	Query       QueryConfig     `toml:"query"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Logging     LoggingConfig   `toml:"logging"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
	// RawDir holds raw document payloads so refresh jobs can re-read them.
	RawDir string `toml:"raw_dir"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"`
	ResetOnStartup bool   `toml:"reset_on_startup"`
}

type QueueConfig struct {
	Name              string `toml:"name"`
	PollInterval      string `toml:"poll_interval"`
	Concurrency       int    `toml:"concurrency" validate:"min=1"`
	VisibilityTimeout string `toml:"visibility_timeout"`
	MaxReceive        int    `toml:"max_receive" validate:"min=1"`
}

type IngestConfig struct {
	MinTextLength int `toml:"min_text_length" validate:"min=1"`
	ChunkSize     int `toml:"chunk_size" validate:"min=1"`
	ChunkOverlap  int `toml:"chunk_overlap" validate:"min=0"`
}

type EmbeddingConfig struct {
	BaseURL         string  `toml:"base_url" validate:"required,url"`
	APIKey          string  `toml:"api_key"`
	Model           string  `toml:"model"`
	Dimension       int     `toml:"dimension" validate:"min=1"`
	BatchSize       int     `toml:"batch_size" validate:"min=1"`
	MaxRetries      int     `toml:"max_retries" validate:"min=0"`
	Timeout         string  `toml:"timeout"`
	RequestsPerMin  float64 `toml:"requests_per_min"`
	BackoffInterval string  `toml:"backoff_interval"`
}

type VectorConfig struct {
	BaseURL    string `toml:"base_url" validate:"required,url"`
	APIKey     string `toml:"api_key"`
	Collection string `toml:"collection" validate:"required"`
	Timeout    string `toml:"timeout"`
}

type RerankConfig struct {
	BaseURL string `toml:"base_url" validate:"required,url"`
	APIKey  string `toml:"api_key"`
	Model   string `toml:"model"`
	Timeout string `toml:"timeout"`
}

// LLMConfig selects and configures the generation provider.
type LLMConfig struct {
	Provider     string  `toml:"provider" validate:"oneof=claude gemini"`
	APIKey       string  `toml:"api_key"`
	Model        string  `toml:"model"`
	MaxTokens    int     `toml:"max_tokens" validate:"min=1"`
	Temperature  float32 `toml:"temperature"`
	Timeout      string  `toml:"timeout"`
	SystemPrompt string  `toml:"system_prompt"`
}

type QueryConfig struct {
	TopK         int    `toml:"top_k" validate:"min=1"`
	RerankTopN   int    `toml:"rerank_top_n" validate:"min=1"`
	TokenBudget  int    `toml:"token_budget" validate:"min=1"`
	HistoryTurns int    `toml:"history_turns" validate:"min=0"`
	CacheTTL     string `toml:"cache_ttl"`
}

type SchedulerConfig struct {
	Enabled         bool   `toml:"enabled"`
	RefreshSchedule string `toml:"refresh_schedule"`
}

type LoggingConfig struct {
	Level  string   `toml:"level"`
	Output []string `toml:"output"`
}

// DefaultConfig returns configuration defaults applied before any file or env override.
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Storage: StorageConfig{
			Badger: BadgerConfig{Path: "./data/lexa"},
			RawDir: "./data/raw",
		},
		Queue: QueueConfig{
			Name:              "ingest",
			PollInterval:      "1s",
			Concurrency:       1,
			VisibilityTimeout: "5m",
			MaxReceive:        3,
		},
		Ingest: IngestConfig{
			MinTextLength: 100,
			ChunkSize:     1500,
			ChunkOverlap:  200,
		},
		Embedding: EmbeddingConfig{
			BaseURL:         "https://api.openai.com",
			Model:           "text-embedding-3-small",
			Dimension:       1536,
			BatchSize:       64,
			MaxRetries:      5,
			Timeout:         "15s",
			RequestsPerMin:  120,
			BackoffInterval: "1s",
		},
		VectorIndex: VectorConfig{
			BaseURL:    "http://localhost:6333",
			Collection: "lexa_chunks",
			Timeout:    "15s",
		},
		Rerank: RerankConfig{
			BaseURL: "https://api.cohere.com/v2",
			Model:   "rerank-v3.5",
			Timeout: "15s",
		},
		LLM: LLMConfig{
			Provider:    "claude",
			MaxTokens:   2048,
			Temperature: 0.2,
			Timeout:     "60s",
		},
		Query: QueryConfig{
			TopK:         20,
			RerankTopN:   8,
			TokenBudget:  3000,
			HistoryTurns: 5,
			CacheTTL:     "1h",
		},
		Scheduler: SchedulerConfig{
			Enabled:         true,
			RefreshSchedule: "0 3 * * *",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
	}
}

// LoadFromFiles loads configuration from defaults, then each file in order,
// then environment variables. Later sources override earlier ones.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := DefaultConfig()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the configuration for fatal misconfiguration. Validation
// failures are startup errors, never per-request errors.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("invalid configuration: chunk_overlap (%d) must be less than chunk_size (%d)",
			c.Ingest.ChunkOverlap, c.Ingest.ChunkSize)
	}

	for name, value := range map[string]string{
		"queue.poll_interval":      c.Queue.PollInterval,
		"queue.visibility_timeout": c.Queue.VisibilityTimeout,
		"embedding.timeout":        c.Embedding.Timeout,
		"embedding.backoff":        c.Embedding.BackoffInterval,
		"vector_index.timeout":     c.VectorIndex.Timeout,
		"rerank.timeout":           c.Rerank.Timeout,
		"llm.timeout":              c.LLM.Timeout,
		"query.cache_ttl":          c.Query.CacheTTL,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid configuration: %s %q: %w", name, value, err)
		}
	}

	return nil
}

// applyEnvOverrides applies LEXA_* environment variables over file values.
func applyEnvOverrides(c *Config) {
	if v := os.Getenv("LEXA_BADGER_PATH"); v != "" {
		c.Storage.Badger.Path = v
	}
	if v := os.Getenv("LEXA_RAW_DIR"); v != "" {
		c.Storage.RawDir = v
	}
	if v := os.Getenv("LEXA_EMBEDDING_BASE_URL"); v != "" {
		c.Embedding.BaseURL = v
	}
	if v := os.Getenv("LEXA_EMBEDDING_API_KEY"); v != "" {
		c.Embedding.APIKey = v
	}
	if v := os.Getenv("LEXA_VECTOR_BASE_URL"); v != "" {
		c.VectorIndex.BaseURL = v
	}
	if v := os.Getenv("LEXA_VECTOR_API_KEY"); v != "" {
		c.VectorIndex.APIKey = v
	}
	if v := os.Getenv("LEXA_RERANK_BASE_URL"); v != "" {
		c.Rerank.BaseURL = v
	}
	if v := os.Getenv("LEXA_RERANK_API_KEY"); v != "" {
		c.Rerank.APIKey = v
	}
	if v := os.Getenv("LEXA_LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" && c.LLM.Provider == "claude" && c.LLM.APIKey == "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" && c.LLM.Provider == "gemini" && c.LLM.APIKey == "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("LEXA_LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("LEXA_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LEXA_QUEUE_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Queue.Concurrency = n
		}
	}
}

// MustDuration parses a duration string, falling back when it is empty
// or malformed. Config validation catches malformed values at startup;
// the fallback covers components constructed with partial configs.
func MustDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
