// Package config provides configuration loading for rowindex.
//
// Configuration is resolved once at process start from defaults, an optional
// YAML or TOML file, and ROWINDEX_* environment variables, then handed to the
// components that need it. Nothing below the command layer reads the
// environment directly.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// ErrInvalidConfig indicates invalid configuration.
var ErrInvalidConfig = errors.New("invalid configuration")

// collectionNamePattern mirrors the vector store naming rules.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// Config holds the complete rowindex configuration.
type Config struct {
	Source      SourceConfig      `koanf:"source"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Logging     LoggingConfig     `koanf:"logging"`
	Metrics     MetricsConfig     `koanf:"metrics"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
}

// SourceConfig describes the relational table the index is rebuilt from.
type SourceConfig struct {
	// Driver is one of "sqlserver", "postgres" or "sqlite".
	Driver string `koanf:"driver"`

	// DSN is a complete driver connection string. When set it takes
	// precedence over Host, Port, Database, User, Password and Params.
	DSN Secret `koanf:"dsn"`

	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Database string `koanf:"database"`
	User     string `koanf:"user"`
	Password Secret `koanf:"password"`

	// Params are extra driver parameters (e.g. TrustServerCertificate=true).
	Params map[string]string `koanf:"params"`

	// Query must project the identifier column first and the timestamp
	// column second.
	Query string `koanf:"query"`
}

// EmbeddingsConfig selects the embedding model.
type EmbeddingsConfig struct {
	// Provider is one of "fastembed", "tei" or "openai".
	Provider  string `koanf:"provider"`
	Model     string `koanf:"model"`
	BaseURL   string `koanf:"base_url"`
	APIKey    Secret `koanf:"api_key"`
	CacheDir  string `koanf:"cache_dir"`
	MaxLength int    `koanf:"max_length"`

	// Dimension overrides the dimension inferred from the model name for
	// remote providers.
	Dimension int `koanf:"dimension"`
}

// VectorStoreConfig selects the destination store and collection.
type VectorStoreConfig struct {
	// Provider is "chromem" (embedded, default) or "qdrant".
	Provider   string        `koanf:"provider"`
	Collection string        `koanf:"collection"`
	BatchSize  int           `koanf:"batch_size"`
	Chromem    ChromemConfig `koanf:"chromem"`
	Qdrant     QdrantConfig  `koanf:"qdrant"`
}

// ChromemConfig configures the embedded chromem-go store.
type ChromemConfig struct {
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

// QdrantConfig configures the Qdrant gRPC store.
type QdrantConfig struct {
	Host         string `koanf:"host"`
	Port         int    `koanf:"port"`
	APIKey       Secret `koanf:"api_key"`
	UseTLS       bool   `koanf:"use_tls"`
	MaxBatchSize int    `koanf:"max_batch_size"`
}

// LoggingConfig holds the subset of logging settings exposed to users.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// MetricsConfig controls the end-of-run metrics export.
type MetricsConfig struct {
	// Textfile, when set, receives the run metrics in Prometheus text format
	// (for the node_exporter textfile collector).
	Textfile string `koanf:"textfile"`
}

// TelemetryConfig controls OpenTelemetry trace and metric export over OTLP.
type TelemetryConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Endpoint string `koanf:"endpoint"`

	// Protocol is "grpc" or "http/protobuf".
	Protocol string `koanf:"protocol"`
	Insecure bool   `koanf:"insecure"`

	// SampleRate of 0 is treated as unset and becomes 1.
	SampleRate float64 `koanf:"sample_rate"`

	// Metrics also exports OTLP metrics every Interval.
	Metrics  bool     `koanf:"metrics"`
	Interval Duration `koanf:"export_interval"`
}

// Default values.
const (
	DefaultSourceDriver      = "sqlserver"
	DefaultSourceQuery       = "SELECT subReferenceID, datetime FROM ALMTable"
	DefaultEmbeddingProvider = "fastembed"
	DefaultEmbeddingModel    = "sentence-transformers/all-MiniLM-L6-v2"
	DefaultStoreProvider     = "chromem"
	DefaultCollection        = "powerbi"
	DefaultBatchSize         = 5000
	DefaultChromemPath       = "./chroma_store"
)

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Source.Driver == "" {
		cfg.Source.Driver = DefaultSourceDriver
	}
	if cfg.Source.Port == 0 {
		switch cfg.Source.Driver {
		case "sqlserver":
			cfg.Source.Port = 1433
		case "postgres":
			cfg.Source.Port = 5432
		}
	}
	if cfg.Source.Query == "" {
		cfg.Source.Query = DefaultSourceQuery
	}

	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = DefaultEmbeddingProvider
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = DefaultEmbeddingModel
	}
	if cfg.Embeddings.BaseURL == "" {
		switch cfg.Embeddings.Provider {
		case "tei":
			cfg.Embeddings.BaseURL = "http://localhost:8080"
		case "openai":
			cfg.Embeddings.BaseURL = "https://api.openai.com/v1"
		}
	}
	if cfg.Embeddings.CacheDir == "" {
		cfg.Embeddings.CacheDir = "~/.cache/rowindex/models"
	}
	if cfg.Embeddings.MaxLength == 0 {
		cfg.Embeddings.MaxLength = 512
	}

	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = DefaultStoreProvider
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = DefaultCollection
	}
	if cfg.VectorStore.BatchSize == 0 {
		cfg.VectorStore.BatchSize = DefaultBatchSize
	}
	if cfg.VectorStore.Chromem.Path == "" {
		cfg.VectorStore.Chromem.Path = DefaultChromemPath
	}
	if cfg.VectorStore.Qdrant.Host == "" {
		cfg.VectorStore.Qdrant.Host = "localhost"
	}
	if cfg.VectorStore.Qdrant.Port == 0 {
		cfg.VectorStore.Qdrant.Port = 6334
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1
	}
	if cfg.Telemetry.Interval == 0 {
		cfg.Telemetry.Interval = Duration(15 * time.Second)
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if err := c.Source.Validate(); err != nil {
		return err
	}

	switch c.Embeddings.Provider {
	case "fastembed", "tei", "openai":
	default:
		return fmt.Errorf("%w: embeddings.provider must be fastembed, tei or openai, got %q", ErrInvalidConfig, c.Embeddings.Provider)
	}
	if c.Embeddings.Model == "" {
		return fmt.Errorf("%w: embeddings.model required", ErrInvalidConfig)
	}
	if c.Embeddings.Dimension < 0 {
		return fmt.Errorf("%w: embeddings.dimension cannot be negative", ErrInvalidConfig)
	}

	switch c.VectorStore.Provider {
	case "chromem", "qdrant":
	default:
		return fmt.Errorf("%w: vectorstore.provider must be chromem or qdrant, got %q", ErrInvalidConfig, c.VectorStore.Provider)
	}
	if !collectionNamePattern.MatchString(c.VectorStore.Collection) {
		return fmt.Errorf("%w: vectorstore.collection must match ^[a-z0-9_]{1,64}$, got %q", ErrInvalidConfig, c.VectorStore.Collection)
	}
	if c.VectorStore.BatchSize <= 0 {
		return fmt.Errorf("%w: vectorstore.batch_size must be positive, got %d", ErrInvalidConfig, c.VectorStore.BatchSize)
	}
	if c.VectorStore.Qdrant.Port <= 0 || c.VectorStore.Qdrant.Port > 65535 {
		return fmt.Errorf("%w: invalid vectorstore.qdrant.port: %d", ErrInvalidConfig, c.VectorStore.Qdrant.Port)
	}
	if c.VectorStore.Qdrant.MaxBatchSize < 0 {
		return fmt.Errorf("%w: vectorstore.qdrant.max_batch_size cannot be negative", ErrInvalidConfig)
	}

	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("%w: logging.format must be 'json' or 'console', got %q", ErrInvalidConfig, c.Logging.Format)
	}

	switch c.Telemetry.Protocol {
	case "grpc", "http/protobuf":
	default:
		return fmt.Errorf("%w: telemetry.protocol must be grpc or http/protobuf, got %q", ErrInvalidConfig, c.Telemetry.Protocol)
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("%w: telemetry.sample_rate must be between 0 and 1, got %v", ErrInvalidConfig, c.Telemetry.SampleRate)
	}

	return nil
}

// Validate checks the source settings.
func (s *SourceConfig) Validate() error {
	switch s.Driver {
	case "sqlserver", "postgres", "sqlite":
	default:
		return fmt.Errorf("%w: source.driver must be sqlserver, postgres or sqlite, got %q", ErrInvalidConfig, s.Driver)
	}
	if s.Query == "" {
		return fmt.Errorf("%w: source.query required", ErrInvalidConfig)
	}
	if s.DSN.IsSet() {
		return nil
	}
	if s.Database == "" {
		return fmt.Errorf("%w: source.database (or source.dsn) required", ErrInvalidConfig)
	}
	if s.Driver != "sqlite" && s.Host == "" {
		return fmt.Errorf("%w: source.host (or source.dsn) required", ErrInvalidConfig)
	}
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("%w: invalid source.port: %d", ErrInvalidConfig, s.Port)
	}
	return nil
}
