package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

var (
	// ErrEmptyInput indicates empty or nil input texts
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Provider generates embeddings for documents.
type Provider interface {
	// EmbedDocuments returns one vector per text, in input order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension returns the embedding dimension for the current model.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}

// ProviderConfig holds configuration for creating an embedding provider.
type ProviderConfig struct {
	// Provider is "fastembed", "tei" or "openai".
	Provider string
	Model    string

	// BaseURL is the TEI or OpenAI-compatible endpoint.
	BaseURL string
	APIKey  string

	// CacheDir and MaxLength only apply to FastEmbed.
	CacheDir  string
	MaxLength int

	// Dimension overrides the dimension inferred from the model name.
	Dimension int

	// RequestBatchSize caps texts per remote request. Zero uses the
	// provider default.
	RequestBatchSize int

	Logger *zap.Logger
}

// knownDimensions lists output sizes of models commonly used with rowindex.
var knownDimensions = map[string]int{
	"sentence-transformers/all-MiniLM-L6-v2": 384,
	"sentence-transformers/all-mpnet-base-v2": 768,
	"BAAI/bge-small-en-v1.5":                 384,
	"BAAI/bge-small-en":                      384,
	"BAAI/bge-base-en-v1.5":                  768,
	"BAAI/bge-base-en":                       768,
	"BAAI/bge-large-en-v1.5":                 1024,
	"BAAI/bge-small-zh-v1.5":                 512,
	"text-embedding-3-small":                 1536,
	"text-embedding-3-large":                 3072,
	"text-embedding-ada-002":                 1536,
}

// detectDimensionFromModel returns the embedding dimension for a model name.
// Unknown names fall back to size hints in the name, then 384.
func detectDimensionFromModel(model string) int {
	if dim, ok := knownDimensions[model]; ok {
		return dim
	}
	if dim, ok := fastEmbedModelDimension(model); ok {
		return dim
	}
	name := strings.ToLower(model)
	switch {
	case strings.Contains(name, "large"):
		return 1024
	case strings.Contains(name, "base"):
		return 768
	default:
		return 384
	}
}

// NewProvider creates an embedding provider based on the configuration.
func NewProvider(ctx context.Context, cfg ProviderConfig) (Provider, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model required", ErrInvalidConfig)
	}

	dim := cfg.Dimension
	if dim == 0 {
		dim = detectDimensionFromModel(cfg.Model)
	}

	var (
		p   Provider
		err error
	)
	switch cfg.Provider {
	case "fastembed", "":
		if _, err := EnsureONNXRuntime(ctx, cfg.Logger); err != nil {
			return nil, err
		}
		p, err = NewFastEmbedProvider(FastEmbedConfig{
			Model:     cfg.Model,
			CacheDir:  cfg.CacheDir,
			MaxLength: cfg.MaxLength,
		})
	case "tei":
		p, err = NewTEIProvider(TEIConfig{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			APIKey:    cfg.APIKey,
			BatchSize: cfg.RequestBatchSize,
			Dimension: dim,
		})
	case "openai":
		p, err = NewOpenAIProvider(OpenAIConfig{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			APIKey:    cfg.APIKey,
			BatchSize: cfg.RequestBatchSize,
			Dimension: dim,
		})
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	cfg.Logger.Info("embedding provider ready",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.Int("dimension", p.Dimension()),
	)

	return Instrument(p, cfg.Model, NewMetrics(cfg.Logger)), nil
}
