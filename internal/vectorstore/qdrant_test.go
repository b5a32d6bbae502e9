package vectorstore_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/fyrsmithlabs/rowindex/internal/vectorstore"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestValidateCollectionName(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantError bool
	}{
		{name: "default collection", input: "powerbi", wantError: false},
		{name: "underscores and digits", input: "alm_rows_2024", wantError: false},
		{name: "empty name", input: "", wantError: true},
		{name: "uppercase letters", input: "PowerBI", wantError: true},
		{name: "special characters", input: "power-bi", wantError: true},
		{name: "spaces", input: "power bi", wantError: true},
		{
			name:      "too long",
			input:     "a123456789012345678901234567890123456789012345678901234567890123456789",
			wantError: true,
		},
		{name: "path traversal attempt", input: "../powerbi", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := vectorstore.ValidateCollectionName(tt.input)
			if tt.wantError {
				assert.ErrorIs(t, err, vectorstore.ErrInvalidCollectionName)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestQdrantConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		config    vectorstore.QdrantConfig
		wantError bool
	}{
		{
			name:   "valid config",
			config: vectorstore.QdrantConfig{Host: "localhost", Port: 6334},
		},
		{
			name:      "missing host",
			config:    vectorstore.QdrantConfig{Port: 6334},
			wantError: true,
		},
		{
			name:      "port out of range",
			config:    vectorstore.QdrantConfig{Host: "localhost", Port: 70000},
			wantError: true,
		},
		{
			name:      "negative batch size",
			config:    vectorstore.QdrantConfig{Host: "localhost", Port: 6334, MaxBatchSize: -1},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantError {
				assert.ErrorIs(t, err, vectorstore.ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestQdrantConfig_ApplyDefaults(t *testing.T) {
	var cfg vectorstore.QdrantConfig
	cfg.ApplyDefaults()

	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 6334, cfg.Port)
	assert.Equal(t, vectorstore.QdrantDefaultMaxBatchSize, cfg.MaxBatchSize)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.RetryBackoff)
	assert.Equal(t, 50*1024*1024, cfg.MaxMessageSize)
	assert.Equal(t, 5, cfg.CircuitBreakerThreshold)
	assert.Equal(t, qdrant.Distance_Cosine, cfg.Distance)
}

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		name          string
		code          codes.Code
		wantTransient bool
	}{
		{name: "unavailable is transient", code: codes.Unavailable, wantTransient: true},
		{name: "deadline exceeded is transient", code: codes.DeadlineExceeded, wantTransient: true},
		{name: "aborted is transient", code: codes.Aborted, wantTransient: true},
		{name: "resource exhausted is transient", code: codes.ResourceExhausted, wantTransient: true},
		{name: "invalid argument is not transient", code: codes.InvalidArgument},
		{name: "not found is not transient", code: codes.NotFound},
		{name: "permission denied is not transient", code: codes.PermissionDenied},
		{name: "unauthenticated is not transient", code: codes.Unauthenticated},
		{name: "unknown code defaults to not transient", code: codes.Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := status.Error(tt.code, "test error")
			assert.Equal(t, tt.wantTransient, vectorstore.IsTransientError(err))
		})
	}

	t.Run("wrapped grpc error", func(t *testing.T) {
		err := fmt.Errorf("upsert: %w", status.Error(codes.Unavailable, "down"))
		assert.True(t, vectorstore.IsTransientError(err))
	})

	t.Run("non-grpc error is not transient", func(t *testing.T) {
		assert.False(t, vectorstore.IsTransientError(errors.New("regular error")))
	})

	t.Run("nil error is not transient", func(t *testing.T) {
		assert.False(t, vectorstore.IsTransientError(nil))
	})
}

func TestNewQdrantStore_InvalidConfig(t *testing.T) {
	_, err := vectorstore.NewQdrantStore(vectorstore.QdrantConfig{Port: 99999}, nil)
	assert.ErrorIs(t, err, vectorstore.ErrInvalidConfig)
}

// TestQdrantStore_Integration requires Qdrant on localhost:6334.
func TestQdrantStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	store, err := vectorstore.NewQdrantStore(vectorstore.QdrantConfig{
		Host:       "localhost",
		Port:       6334,
		MaxRetries: 1,
	}, nil)
	if err != nil {
		t.Skipf("Qdrant not available: %v", err)
	}
	defer store.Close()

	name := "rowindex_test_lifecycle"
	_ = store.DeleteCollection(ctx, name)

	err = store.DeleteCollection(ctx, name)
	require.ErrorIs(t, err, vectorstore.ErrCollectionNotFound)

	col, err := store.GetOrCreateCollection(ctx, name, 4)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.DeleteCollection(context.Background(), name) })

	docs := makeDocs(3)
	for i := range docs {
		docs[i].ID = uuid.NewString()
	}
	require.NoError(t, col.Add(ctx, docs))

	n, err := col.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	records, err := col.Get(ctx, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, rec := range records {
		assert.NotEmpty(t, rec.ID)
		assert.Contains(t, rec.Content, "Reference ID:")
		assert.Contains(t, rec.Metadata, "Reference ID")
		assert.NotContains(t, rec.Metadata, "document")
	}

	require.NoError(t, store.DeleteCollection(ctx, name))
	_, err = store.GetCollection(ctx, name)
	assert.ErrorIs(t, err, vectorstore.ErrCollectionNotFound)
}
