package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fyrsmithlabs/rowindex/internal/batch"
)

// defaultTEIBatchSize matches TEI's default --max-client-batch-size.
const defaultTEIBatchSize = 32

// TEIConfig configures a Text Embeddings Inference client.
type TEIConfig struct {
	BaseURL string
	Model   string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// BatchSize caps the texts sent per /embed request.
	BatchSize int

	// Dimension is reported by Dimension; the server decides the real size.
	Dimension int

	// Client overrides the HTTP client.
	Client *http.Client
}

// TEIProvider calls the /embed endpoint of a TEI server.
type TEIProvider struct {
	config TEIConfig
	client *http.Client
}

// teiRequest is the request body for the TEI embed endpoint.
type teiRequest struct {
	Inputs   []string `json:"inputs"`
	Truncate bool     `json:"truncate"`
}

// NewTEIProvider validates cfg and returns a TEI client.
func NewTEIProvider(cfg TEIConfig) (*TEIProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = defaultTEIBatchSize
	}
	if err := batch.Validate(cfg.BatchSize); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	return &TEIProvider{config: cfg, client: client}, nil
}

// EmbedDocuments embeds texts in request-sized chunks, preserving order.
func (p *TEIProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}

	chunks, err := batch.Slice(texts, p.config.BatchSize)
	if err != nil {
		return nil, err
	}

	out := make([][]float32, 0, len(texts))
	for chunk := range chunks {
		vectors, err := p.embed(ctx, chunk)
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(chunk) {
			return nil, fmt.Errorf("%w: server returned %d vectors for %d texts", ErrEmbeddingFailed, len(vectors), len(chunk))
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (p *TEIProvider) embed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(teiRequest{Inputs: texts, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d: %s", ErrEmbeddingFailed, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrEmbeddingFailed, err)
	}
	return vectors, nil
}

// Dimension returns the configured embedding dimension.
func (p *TEIProvider) Dimension() int {
	return p.config.Dimension
}

// Close is a no-op for TEI since it uses HTTP.
func (p *TEIProvider) Close() error {
	return nil
}
