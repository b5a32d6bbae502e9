//go:build !cgo

package embeddings

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// ErrFastEmbedNotAvailable is returned when FastEmbed is not available (requires CGO).
var ErrFastEmbedNotAvailable = errors.New("fastembed: not available (binary built without CGO support, use the tei or openai provider instead)")

// FastEmbedConfig holds configuration for the FastEmbed provider.
type FastEmbedConfig struct {
	Model     string
	CacheDir  string
	MaxLength int
}

// FastEmbedProvider is a stub for non-CGO builds.
type FastEmbedProvider struct{}

// NewFastEmbedProvider returns an error when CGO is not available.
func NewFastEmbedProvider(_ FastEmbedConfig) (*FastEmbedProvider, error) {
	return nil, ErrFastEmbedNotAvailable
}

// EnsureONNXRuntime returns an error when CGO is not available.
func EnsureONNXRuntime(_ context.Context, _ *zap.Logger) (string, error) {
	return "", ErrFastEmbedNotAvailable
}

func (p *FastEmbedProvider) EmbedDocuments(_ context.Context, _ []string) ([][]float32, error) {
	return nil, ErrFastEmbedNotAvailable
}

func (p *FastEmbedProvider) Dimension() int { return 0 }

func (p *FastEmbedProvider) Close() error { return nil }

// fastEmbedModelDimension reports dimensions for the models FastEmbed would
// load, so dimension detection behaves the same in both builds.
func fastEmbedModelDimension(model string) (int, bool) {
	dims := map[string]int{
		"fast-all-MiniLM-L6-v2":  384,
		"fast-bge-small-en-v1.5": 384,
		"fast-bge-small-en":      384,
		"fast-bge-base-en-v1.5":  768,
		"fast-bge-base-en":       768,
		"fast-bge-small-zh-v1.5": 512,
	}
	dim, ok := dims[model]
	return dim, ok
}
