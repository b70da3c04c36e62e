// Package answer orchestrates grounded answer generation.
package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// ErrGeneration indicates the language model failed to produce an answer.
var ErrGeneration = errors.New("answer generation failed")

// Generator produces an answer from a query, its retrieved context and
// recalled conversation history.
type Generator interface {
	Generate(ctx context.Context, query, contextBlock, recall string) (string, error)
}

// GeneratorConfig holds configuration for the OpenAI-compatible generator.
type GeneratorConfig struct {
	// Model is the chat model name.
	// Default: "gpt-4o-mini"
	Model string `koanf:"model"`

	// BaseURL overrides the API endpoint for compatible servers.
	BaseURL string `koanf:"base_url"`

	// APIKey is the API token. Falls back to OPENAI_API_KEY.
	APIKey string `koanf:"api_key"`

	// Temperature controls sampling. Low keeps answers close to the
	// provided context.
	// Default: 0.2
	Temperature float64 `koanf:"temperature"`

	// MaxTokens bounds the generated answer length.
	// Default: 1024
	MaxTokens int `koanf:"max_tokens"`
}

// ApplyDefaults sets default values for unset fields.
func (c *GeneratorConfig) ApplyDefaults() {
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.Temperature == 0 {
		c.Temperature = 0.2
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 1024
	}
}

// OpenAIGenerator generates answers via an OpenAI-compatible chat API.
type OpenAIGenerator struct {
	llm    *openai.LLM
	config GeneratorConfig
}

// NewOpenAIGenerator creates a generator backed by an OpenAI-compatible
// endpoint.
func NewOpenAIGenerator(cfg GeneratorConfig) (*OpenAIGenerator, error) {
	cfg.ApplyDefaults()

	opts := []openai.Option{
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, openai.WithToken(cfg.APIKey))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}

	return &OpenAIGenerator{llm: llm, config: cfg}, nil
}

// Generate prompts the model with the numbered context and recalled
// history, instructing it to ground statements with [n] markers.
func (g *OpenAIGenerator) Generate(ctx context.Context, query, contextBlock, recall string) (string, error) {
	prompt := buildPrompt(query, contextBlock, recall)

	completion, err := llms.GenerateFromSinglePrompt(ctx, g.llm, prompt,
		llms.WithTemperature(g.config.Temperature),
		llms.WithMaxTokens(g.config.MaxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	completion = strings.TrimSpace(completion)
	if completion == "" {
		return "", fmt.Errorf("%w: model returned empty completion", ErrGeneration)
	}
	return completion, nil
}

// buildPrompt assembles the grounded-answer prompt.
func buildPrompt(query, contextBlock, recall string) string {
	var b strings.Builder
	b.WriteString("You are a research assistant. Answer the question using ONLY the numbered source excerpts below. ")
	b.WriteString("Cite every claim with the excerpt number in square brackets, e.g. [1]. ")
	b.WriteString("Use only numbers that appear in the excerpts. ")
	b.WriteString("If the excerpts do not contain the answer, say so.\n\n")

	if recall != "" {
		b.WriteString("Conversation so far:\n")
		b.WriteString(recall)
		b.WriteString("\n\n")
	}

	b.WriteString("Source excerpts:\n")
	b.WriteString(contextBlock)
	b.WriteString("\n\nQuestion: ")
	b.WriteString(query)
	b.WriteString("\nAnswer:")
	return b.String()
}

var _ Generator = (*OpenAIGenerator)(nil)
