// Package file loads pipeline configuration from a TOML file.
package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds every tunable of the pipeline. Values not present in the
// config file keep their defaults.
type Config struct {
	// DataDir is the root directory for persistent state (corpus index,
	// audit log). Empty means ~/.mortar/data.
	DataDir string `toml:"data_dir"`

	Chunking   ChunkingConfig   `toml:"chunking"`
	Retrieval  RetrievalConfig  `toml:"retrieval"`
	Prompt     PromptConfig     `toml:"prompt"`
	Grounding  GroundingConfig  `toml:"grounding"`
	Limits     LimitsConfig     `toml:"limits"`
	Generation GenerationConfig `toml:"generation"`
	Embedding  EmbeddingConfig  `toml:"embedding"`
}

// ChunkingConfig controls document chunking.
type ChunkingConfig struct {
	MaxTokens     int `toml:"max_tokens"`
	OverlapTokens int `toml:"overlap_tokens"`
}

// RetrievalConfig controls hybrid retrieval.
type RetrievalConfig struct {
	// TopK is the number of chunks returned after fusion.
	TopK int `toml:"top_k"`

	// Alpha is the dense weight in the combined score; the lexical weight
	// is 1 - Alpha.
	Alpha float64 `toml:"alpha"`

	// MinScore is the combined-score floor below which retrieval is
	// flagged low confidence.
	MinScore float64 `toml:"min_score"`
}

// PromptConfig controls prompt assembly.
type PromptConfig struct {
	// ContextBudget is the maximum number of characters of retrieved
	// context included in the prompt.
	ContextBudget int `toml:"context_budget"`

	// TemplateDir overrides the prompt template directory.
	TemplateDir string `toml:"template_dir"`
}

// GroundingConfig controls citation enforcement.
type GroundingConfig struct {
	CitationsRequired bool `toml:"citations_required"`
}

// LimitsConfig bounds user input.
type LimitsConfig struct {
	MaxQuestionChars int `toml:"max_question_chars"`
	MaxHistoryTurns  int `toml:"max_history_turns"`
}

// GenerationConfig controls the answer model.
type GenerationConfig struct {
	Model           string  `toml:"model"`
	Temperature     float64 `toml:"temperature"`
	MaxOutputTokens int     `toml:"max_output_tokens"`
	TimeoutSeconds  int     `toml:"timeout_seconds"`
	MaxRetries      int     `toml:"max_retries"`
	RetryBackoffMS  int     `toml:"retry_backoff_ms"`
}

// Timeout returns the per-call generation timeout.
func (c GenerationConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RetryBackoff returns the base backoff between generation retries.
func (c GenerationConfig) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMS) * time.Millisecond
}

// EmbeddingConfig controls the embedding model.
type EmbeddingConfig struct {
	Model             string  `toml:"model"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Chunking: ChunkingConfig{
			MaxTokens:     200,
			OverlapTokens: 30,
		},
		Retrieval: RetrievalConfig{
			TopK:     5,
			Alpha:    0.7,
			MinScore: 0.25,
		},
		Prompt: PromptConfig{
			ContextBudget: 8000,
		},
		Grounding: GroundingConfig{
			CitationsRequired: true,
		},
		Limits: LimitsConfig{
			MaxQuestionChars: 1000,
			MaxHistoryTurns:  6,
		},
		Generation: GenerationConfig{
			Model:           "gpt-4o-mini",
			Temperature:     0.1,
			MaxOutputTokens: 800,
			TimeoutSeconds:  60,
			MaxRetries:      2,
			RetryBackoffMS:  500,
		},
		Embedding: EmbeddingConfig{
			Model:             "text-embedding-3-small",
			RequestsPerSecond: 3,
			Burst:             5,
		},
	}
}

// Load reads the config file at path, applying defaults for missing values.
// If path is empty, ~/.mortar/config.toml is used; a missing file is not an
// error and yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return cfg, fmt.Errorf("get home directory: %w", err)
		}
		path = filepath.Join(home, ".mortar", "config.toml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config file: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	var errs []error

	if c.Chunking.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("chunking.max_tokens must be positive, got %d", c.Chunking.MaxTokens))
	}
	if c.Chunking.OverlapTokens < 0 {
		errs = append(errs, fmt.Errorf("chunking.overlap_tokens must not be negative, got %d", c.Chunking.OverlapTokens))
	}
	if c.Retrieval.TopK <= 0 {
		errs = append(errs, fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK))
	}
	if c.Retrieval.Alpha < 0 || c.Retrieval.Alpha > 1 {
		errs = append(errs, fmt.Errorf("retrieval.alpha must be in [0, 1], got %g", c.Retrieval.Alpha))
	}
	if c.Retrieval.MinScore < 0 || c.Retrieval.MinScore > 1 {
		errs = append(errs, fmt.Errorf("retrieval.min_score must be in [0, 1], got %g", c.Retrieval.MinScore))
	}
	if c.Prompt.ContextBudget <= 0 {
		errs = append(errs, fmt.Errorf("prompt.context_budget must be positive, got %d", c.Prompt.ContextBudget))
	}
	if c.Limits.MaxQuestionChars <= 0 {
		errs = append(errs, fmt.Errorf("limits.max_question_chars must be positive, got %d", c.Limits.MaxQuestionChars))
	}
	if c.Limits.MaxHistoryTurns < 0 {
		errs = append(errs, fmt.Errorf("limits.max_history_turns must not be negative, got %d", c.Limits.MaxHistoryTurns))
	}
	if c.Generation.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("generation.max_retries must not be negative, got %d", c.Generation.MaxRetries))
	}
	if c.Generation.TimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("generation.timeout_seconds must be positive, got %d", c.Generation.TimeoutSeconds))
	}
	if c.Embedding.RequestsPerSecond <= 0 {
		errs = append(errs, fmt.Errorf("embedding.requests_per_second must be positive, got %g", c.Embedding.RequestsPerSecond))
	}

	return errors.Join(errs...)
}
