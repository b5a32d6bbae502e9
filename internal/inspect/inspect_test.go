package inspect

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/fyrsmithlabs/rowindex/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededStore(t *testing.T, n int) *vectorstore.ChromemStore {
	t.Helper()
	ctx := context.Background()

	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{Path: t.TempDir()}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	col, err := store.GetOrCreateCollection(ctx, "powerbi", 2)
	require.NoError(t, err)
	if n == 0 {
		return store
	}

	docs := make([]vectorstore.Document, n)
	for i := range docs {
		docs[i] = vectorstore.Document{
			ID:        fmt.Sprintf("id_%d", i),
			Content:   fmt.Sprintf("Reference ID: %d, Datetime: 2024-01-15T10:30:00", i),
			Metadata:  map[string]any{"Reference ID": i, "Datetime": "2024-01-15T10:30:00"},
			Embedding: []float32{1, float32(i)},
		}
	}
	require.NoError(t, col.Add(ctx, docs))
	return store
}

func TestRun(t *testing.T) {
	store := seededStore(t, 5)

	var out bytes.Buffer
	require.NoError(t, Run(context.Background(), store, "powerbi", DefaultLimit, &out))

	want := "Total documents in collection: 5\n" +
		"\n--- Document 1 ---\nID: id_0\nMetadata: {Datetime: 2024-01-15T10:30:00, Reference ID: 0}\n" +
		"Document: Reference ID: 0, Datetime: 2024-01-15T10:30:00\n" +
		"\n--- Document 2 ---\nID: id_1\nMetadata: {Datetime: 2024-01-15T10:30:00, Reference ID: 1}\n" +
		"Document: Reference ID: 1, Datetime: 2024-01-15T10:30:00\n" +
		"\n--- Document 3 ---\nID: id_2\nMetadata: {Datetime: 2024-01-15T10:30:00, Reference ID: 2}\n" +
		"Document: Reference ID: 2, Datetime: 2024-01-15T10:30:00\n"
	assert.Equal(t, want, out.String())
}

func TestRun_FewerThanLimit(t *testing.T) {
	store := seededStore(t, 2)

	var out bytes.Buffer
	require.NoError(t, Run(context.Background(), store, "powerbi", 10, &out))

	assert.Contains(t, out.String(), "Total documents in collection: 2\n")
	assert.Contains(t, out.String(), "--- Document 2 ---")
	assert.NotContains(t, out.String(), "--- Document 3 ---")
}

func TestRun_EmptyCollection(t *testing.T) {
	store := seededStore(t, 0)

	var out bytes.Buffer
	require.NoError(t, Run(context.Background(), store, "powerbi", DefaultLimit, &out))
	assert.Equal(t, "Total documents in collection: 0\n", out.String())
}

func TestRun_ZeroLimit(t *testing.T) {
	store := seededStore(t, 4)

	var out bytes.Buffer
	require.NoError(t, Run(context.Background(), store, "powerbi", 0, &out))
	assert.Equal(t, "Total documents in collection: 4\n", out.String())
}

func TestRun_MissingCollection(t *testing.T) {
	store := seededStore(t, 0)

	var out bytes.Buffer
	err := Run(context.Background(), store, "absent", DefaultLimit, &out)
	assert.ErrorIs(t, err, vectorstore.ErrCollectionNotFound)
	assert.Empty(t, out.String())
}

func TestRun_NegativeLimit(t *testing.T) {
	store := seededStore(t, 1)
	assert.Error(t, Run(context.Background(), store, "powerbi", -1, &bytes.Buffer{}))
}
