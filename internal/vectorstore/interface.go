package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for vector store operations.
var (
	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyDocuments indicates empty or nil documents.
	ErrEmptyDocuments = errors.New("empty or nil documents")

	// ErrBatchTooLarge is returned by Add when a batch exceeds MaxBatchSize.
	ErrBatchTooLarge = errors.New("batch exceeds store maximum")

	// ErrDimensionMismatch indicates an embedding whose length differs from
	// the collection dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrConnectionFailed indicates the store could not be reached.
	ErrConnectionFailed = errors.New("failed to connect to vector store")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")
)

// Document is one entry written to a collection.
type Document struct {
	// ID is unique within the collection.
	ID string

	// Content is the text the embedding was computed from.
	Content string

	// Metadata holds scalar values (string, integer, float, bool).
	Metadata map[string]any

	// Embedding is precomputed; stores never embed on their own.
	Embedding []float32
}

// Record is a document read back from a collection. Metadata values may come
// back as strings for stores that only persist string metadata.
type Record struct {
	ID       string
	Content  string
	Metadata map[string]any
}

// Store manages named collections.
//
// Implementations: ChromemStore (embedded, persistent) and QdrantStore (gRPC).
type Store interface {
	// DeleteCollection removes a collection and all its documents.
	// Returns ErrCollectionNotFound if it does not exist.
	DeleteCollection(ctx context.Context, name string) error

	// GetOrCreateCollection returns the named collection, creating it empty
	// with vectors of size dim when missing.
	GetOrCreateCollection(ctx context.Context, name string, dim int) (Collection, error)

	// GetCollection returns an existing collection or ErrCollectionNotFound.
	GetCollection(ctx context.Context, name string) (Collection, error)

	// MaxBatchSize is the largest number of documents a single Add accepts.
	MaxBatchSize() int

	// Close releases connections and flushes state.
	Close() error
}

// Collection is a named container of documents.
type Collection interface {
	Name() string

	// Add writes docs in one operation. Fails with ErrBatchTooLarge when
	// len(docs) > MaxBatchSize of the owning store.
	Add(ctx context.Context, docs []Document) error

	// Count returns the number of stored documents.
	Count(ctx context.Context) (int, error)

	// Get returns up to limit documents in a stable order.
	Get(ctx context.Context, limit int) ([]Record, error)
}
