package vectorstore

import (
	"fmt"

	"go.uber.org/zap"
)

// Config selects and configures an index backend.
type Config struct {
	// Provider selects the backend: "chromem" (default) or "qdrant".
	Provider string `koanf:"provider"`

	// Chromem configures the embedded backend.
	Chromem ChromemConfig `koanf:"chromem"`

	// Qdrant configures the external gRPC backend.
	Qdrant QdrantConfig `koanf:"qdrant"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Provider == "" {
		c.Provider = "chromem"
	}
	c.Chromem.ApplyDefaults()
	c.Qdrant.ApplyDefaults()
}

// Validate validates the selected provider's configuration.
func (c Config) Validate() error {
	switch c.Provider {
	case "chromem", "":
		return c.Chromem.Validate()
	case "qdrant":
		return c.Qdrant.Validate()
	default:
		return fmt.Errorf("%w: unsupported provider %q (supported: chromem, qdrant)", ErrInvalidConfig, c.Provider)
	}
}

// New creates the Index named by cfg.Provider.
//
// The chromem provider is embedded and needs no external service; qdrant
// requires a reachable server. Both take owner scope from the request
// context and wrap with operation metrics.
func New(cfg Config, logger *zap.Logger) (Index, error) {
	cfg.ApplyDefaults()

	var (
		index Index
		err   error
	)
	switch cfg.Provider {
	case "chromem", "":
		index, err = NewChromemIndex(cfg.Chromem, logger)
	case "qdrant":
		index, err = NewQdrantIndex(cfg.Qdrant, logger)
	default:
		return nil, fmt.Errorf("%w: unsupported provider %q (supported: chromem, qdrant)", ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	return newInstrumentedIndex(index, cfg.Provider), nil
}
