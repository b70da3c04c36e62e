package embeddings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderConfigDefaults(t *testing.T) {
	cfg := ProviderConfig{}
	cfg.ApplyDefaults()

	assert.Equal(t, "fastembed", cfg.Provider)
	assert.Equal(t, "BAAI/bge-small-en-v1.5", cfg.Model)
	assert.Equal(t, "~/.cache/notebookd/models", cfg.CacheDir)

	cfg = ProviderConfig{Provider: "openai"}
	cfg.ApplyDefaults()
	assert.Equal(t, "text-embedding-3-small", cfg.Model)
}

func TestNewProviderUnsupported(t *testing.T) {
	_, err := NewProvider(ProviderConfig{Provider: "cohere"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "cohere")
}

func TestNormalizeTexts(t *testing.T) {
	tests := []struct {
		name    string
		texts   []string
		want    []string
		wantErr bool
	}{
		{
			name:  "trims whitespace",
			texts: []string{"  hello  ", "world\n"},
			want:  []string{"hello", "world"},
		},
		{
			name:    "empty batch",
			texts:   nil,
			wantErr: true,
		},
		{
			name:    "whitespace only entry",
			texts:   []string{"ok", "   "},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizeTexts(tt.texts)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrEmptyInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpenAIDimensions(t *testing.T) {
	assert.Equal(t, 1536, openaiDimensions["text-embedding-3-small"])
	assert.Equal(t, 3072, openaiDimensions["text-embedding-3-large"])
	assert.Equal(t, 768, openaiDimensions["nomic-embed-text"])
}
