// Package embeddings provides embedding generation via multiple providers.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for embedding operations.
var (
	// ErrEmptyInput indicates a text that is empty after normalization.
	ErrEmptyInput = errors.New("empty input text")

	// ErrEmbeddingFailed indicates the provider could not produce a vector.
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrInvalidConfig indicates invalid provider configuration.
	ErrInvalidConfig = errors.New("invalid embeddings configuration")
)

// Provider turns text into dense vectors.
//
// All implementations are deterministic for a given model: the same text
// yields the same vector, so re-ingesting produces identical index state.
type Provider interface {
	// EmbedDocuments embeds a batch of chunk texts.
	// Returns one vector per input, in input order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery embeds a single query string.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the embedding dimension for the current model.
	Dimension() int

	// Close releases resources held by the provider.
	Close() error
}

// ProviderConfig holds configuration for creating an embedding provider.
type ProviderConfig struct {
	// Provider is the provider type: "fastembed" (default) or "openai".
	Provider string `koanf:"provider"`

	// Model is the embedding model name.
	Model string `koanf:"model"`

	// BaseURL overrides the API endpoint (openai provider only).
	BaseURL string `koanf:"base_url"`

	// APIKey is the API token (openai provider only).
	APIKey string `koanf:"api_key"`

	// CacheDir is the model cache directory (fastembed provider only).
	// Default: ~/.cache/notebookd/models
	CacheDir string `koanf:"cache_dir"`
}

// ApplyDefaults sets default values for unset fields.
func (c *ProviderConfig) ApplyDefaults() {
	if c.Provider == "" {
		c.Provider = "fastembed"
	}
	if c.Model == "" {
		switch c.Provider {
		case "openai":
			c.Model = "text-embedding-3-small"
		default:
			c.Model = "BAAI/bge-small-en-v1.5"
		}
	}
	if c.CacheDir == "" {
		c.CacheDir = "~/.cache/notebookd/models"
	}
}

// NewProvider creates the embedding provider named by cfg.Provider.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	cfg.ApplyDefaults()

	switch cfg.Provider {
	case "fastembed":
		return NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		})
	case "openai":
		return NewOpenAIProvider(OpenAIConfig{
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
		})
	default:
		return nil, fmt.Errorf("%w: unsupported provider %q (supported: fastembed, openai)", ErrInvalidConfig, cfg.Provider)
	}
}

// normalizeTexts trims whitespace and rejects batches containing texts
// that are empty after trimming. Embedding whitespace wastes index slots
// and produces meaningless neighbors.
func normalizeTexts(texts []string) ([]string, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	normalized := make([]string, len(texts))
	for i, t := range texts {
		t = strings.TrimSpace(t)
		if t == "" {
			return nil, fmt.Errorf("%w: text at index %d", ErrEmptyInput, i)
		}
		normalized[i] = t
	}
	return normalized, nil
}
