//go:build cgo

package embeddings

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	fastembed "github.com/anush008/fastembed-go"
)

// fastEmbedBatchSize is the number of texts per ONNX inference call.
const fastEmbedBatchSize = 256

// FastEmbedConfig holds configuration for the FastEmbed provider.
type FastEmbedConfig struct {
	// Model is the embedding model to use, e.g.
	// sentence-transformers/all-MiniLM-L6-v2 or BAAI/bge-base-en-v1.5.
	Model string

	// CacheDir is the directory to cache model files. A leading "~" is
	// expanded to the home directory.
	CacheDir string

	// MaxLength is the maximum input sequence length.
	// Defaults to 512.
	MaxLength int
}

// FastEmbedProvider provides embedding generation using local ONNX models.
type FastEmbedProvider struct {
	model     *fastembed.FlagEmbedding
	modelName string
	dimension int
	passage   bool
	mu        sync.Mutex
}

// modelMapping maps friendly model names to fastembed model constants.
var modelMapping = map[string]fastembed.EmbeddingModel{
	"sentence-transformers/all-MiniLM-L6-v2": fastembed.AllMiniLML6V2,
	"BAAI/bge-small-en-v1.5":                 fastembed.BGESmallENV15,
	"BAAI/bge-small-en":                      fastembed.BGESmallEN,
	"BAAI/bge-base-en-v1.5":                  fastembed.BGEBaseENV15,
	"BAAI/bge-base-en":                       fastembed.BGEBaseEN,
	"BAAI/bge-small-zh-v1.5":                 fastembed.BGESmallZH,
}

// modelDimensions maps fastembed models to their embedding dimensions.
var modelDimensions = map[fastembed.EmbeddingModel]int{
	fastembed.AllMiniLML6V2: 384,
	fastembed.BGESmallENV15: 384,
	fastembed.BGESmallEN:    384,
	fastembed.BGEBaseENV15:  768,
	fastembed.BGEBaseEN:     768,
	fastembed.BGESmallZH:    512,
}

func resolveFastEmbedModel(name string) (fastembed.EmbeddingModel, bool) {
	if m, ok := modelMapping[name]; ok {
		return m, true
	}
	m := fastembed.EmbeddingModel(name)
	_, ok := modelDimensions[m]
	return m, ok
}

// fastEmbedModelDimension returns dimensions for models FastEmbed can load.
func fastEmbedModelDimension(model string) (int, bool) {
	m, ok := resolveFastEmbedModel(model)
	if !ok {
		return 0, false
	}
	return modelDimensions[m], true
}

// NewFastEmbedProvider creates a new FastEmbed embedding provider.
func NewFastEmbedProvider(cfg FastEmbedConfig) (*FastEmbedProvider, error) {
	model, ok := resolveFastEmbedModel(cfg.Model)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported fastembed model %q (supported: sentence-transformers/all-MiniLM-L6-v2, BAAI/bge-small-en-v1.5, BAAI/bge-base-en-v1.5)", ErrInvalidConfig, cfg.Model)
	}

	cacheDir := expandHome(cfg.CacheDir)
	if cacheDir == "" {
		cacheDir = filepath.Join(".", "local_cache")
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating model cache dir: %w", err)
	}

	maxLength := cfg.MaxLength
	if maxLength == 0 {
		maxLength = 512
	}

	showProgress := false
	flagEmbed, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                model,
		CacheDir:             cacheDir,
		MaxLength:            maxLength,
		ShowDownloadProgress: &showProgress,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing FastEmbed: %w", err)
	}

	return &FastEmbedProvider{
		model:     flagEmbed,
		modelName: cfg.Model,
		dimension: modelDimensions[model],
		passage:   strings.Contains(strings.ToLower(string(model)), "bge"),
	}, nil
}

// EmbedDocuments generates embeddings for multiple texts.
// BGE models get the "passage: " prefix they were trained with; other
// models embed the raw text.
func (p *FastEmbedProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var (
		vectors [][]float32
		err     error
	)
	if p.passage {
		vectors, err = p.model.PassageEmbed(texts, fastEmbedBatchSize)
	} else {
		vectors, err = p.model.Embed(texts, fastEmbedBatchSize)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	return vectors, nil
}

// Dimension returns the embedding dimension for the current model.
func (p *FastEmbedProvider) Dimension() int {
	return p.dimension
}

// Close releases resources held by the FastEmbed provider.
func (p *FastEmbedProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.model == nil {
		return nil
	}
	err := p.model.Destroy()
	p.model = nil
	return err
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
