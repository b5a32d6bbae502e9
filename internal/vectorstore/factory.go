package vectorstore

import (
	"fmt"

	"github.com/fyrsmithlabs/rowindex/internal/config"
	"go.uber.org/zap"
)

// NewStore creates a Store based on the configuration.
//
// The Provider field selects the implementation:
//   - "chromem" (default): embedded ChromemStore persisted under Chromem.Path
//   - "qdrant": QdrantStore, requires a reachable Qdrant server
//
// The caller owns the returned store and must Close it.
func NewStore(cfg config.VectorStoreConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Provider {
	case "chromem", "":
		return NewChromemStore(ChromemConfig{
			Path:     cfg.Chromem.Path,
			Compress: cfg.Chromem.Compress,
		}, logger.Named("chromem"))

	case "qdrant":
		return NewQdrantStore(QdrantConfig{
			Host:         cfg.Qdrant.Host,
			Port:         cfg.Qdrant.Port,
			APIKey:       cfg.Qdrant.APIKey.Value(),
			UseTLS:       cfg.Qdrant.UseTLS,
			MaxBatchSize: cfg.Qdrant.MaxBatchSize,
		}, logger.Named("qdrant"))

	default:
		return nil, fmt.Errorf("%w: unsupported vectorstore provider: %s (supported: chromem, qdrant)", ErrInvalidConfig, cfg.Provider)
	}
}
