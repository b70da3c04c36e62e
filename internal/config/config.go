// Package config provides configuration loading for notebookd.
package config

import (
	"fmt"
	"time"

	"github.com/apexneural-ramya/notebook-lm-clone/internal/answer"
	"github.com/apexneural-ramya/notebook-lm-clone/internal/chunker"
	"github.com/apexneural-ramya/notebook-lm-clone/internal/embeddings"
	"github.com/apexneural-ramya/notebook-lm-clone/internal/ingest"
	"github.com/apexneural-ramya/notebook-lm-clone/internal/logging"
	"github.com/apexneural-ramya/notebook-lm-clone/internal/memory"
	"github.com/apexneural-ramya/notebook-lm-clone/internal/retriever"
	"github.com/apexneural-ramya/notebook-lm-clone/internal/vectorstore"
)

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	// Default: "127.0.0.1"
	Host string `koanf:"host"`

	// Port is the HTTP port.
	// Default: 8470
	Port int `koanf:"port"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 10s
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// ApplyDefaults sets default values for unset fields.
func (c *ServerConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = 8470
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

// Validate validates the configuration.
func (c ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	return nil
}

// Config is the full notebookd configuration.
type Config struct {
	Server      ServerConfig              `koanf:"server"`
	Logging     logging.Config            `koanf:"logging"`
	Chunker     chunker.Config            `koanf:"chunker"`
	Embeddings  embeddings.ProviderConfig `koanf:"embeddings"`
	VectorStore vectorstore.Config        `koanf:"vectorstore"`
	Ingest      ingest.Config             `koanf:"ingest"`
	Retriever   retriever.Config          `koanf:"retriever"`
	Memory      memory.StoreConfig        `koanf:"memory"`
	Answer      answer.Config             `koanf:"answer"`
	Generator   answer.GeneratorConfig    `koanf:"generator"`
}

// ApplyDefaults sets default values across all sections.
func (c *Config) ApplyDefaults() {
	c.Server.ApplyDefaults()
	c.Logging.ApplyDefaults()
	c.Chunker.ApplyDefaults()
	c.Embeddings.ApplyDefaults()
	c.VectorStore.ApplyDefaults()
	c.Ingest.ApplyDefaults()
	c.Retriever.ApplyDefaults()
	c.Memory.ApplyDefaults()
	c.Answer.ApplyDefaults()
	c.Generator.ApplyDefaults()
}

// Validate validates all sections.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Chunker.Validate(); err != nil {
		return fmt.Errorf("chunker: %w", err)
	}
	if err := c.VectorStore.Validate(); err != nil {
		return fmt.Errorf("vectorstore: %w", err)
	}
	if err := c.Retriever.Validate(); err != nil {
		return fmt.Errorf("retriever: %w", err)
	}
	return nil
}
