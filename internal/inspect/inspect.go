// Package inspect prints a summary of a stored collection: its document
// count and a small sample of documents.
package inspect

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/rowindex/internal/vectorstore"
)

// DefaultLimit is the number of sample documents printed.
const DefaultLimit = 3

// Run writes the document count of the named collection followed by up to
// limit sample documents:
//
//	Total documents in collection: 12000
//
//	--- Document 1 ---
//	ID: 5f0c...
//	Metadata: {Datetime: 2024-01-15T10:30:00, Reference ID: 1001}
//	Document: Reference ID: 1001, Datetime: 2024-01-15T10:30:00
//
// A missing collection is reported as vectorstore.ErrCollectionNotFound.
func Run(ctx context.Context, store vectorstore.Store, name string, limit int, w io.Writer) error {
	if limit < 0 {
		return fmt.Errorf("limit must not be negative, got %d", limit)
	}

	col, err := store.GetCollection(ctx, name)
	if err != nil {
		return fmt.Errorf("opening collection %s: %w", name, err)
	}

	count, err := col.Count(ctx)
	if err != nil {
		return fmt.Errorf("counting documents in %s: %w", name, err)
	}
	if _, err := fmt.Fprintf(w, "Total documents in collection: %d\n", count); err != nil {
		return err
	}

	if limit == 0 || count == 0 {
		return nil
	}

	records, err := col.Get(ctx, limit)
	if err != nil {
		return fmt.Errorf("reading sample from %s: %w", name, err)
	}

	for i, rec := range records {
		_, err := fmt.Fprintf(w, "\n--- Document %d ---\nID: %s\nMetadata: %s\nDocument: %s\n",
			i+1, rec.ID, formatMetadata(rec.Metadata), rec.Content)
		if err != nil {
			return err
		}
	}
	return nil
}

// formatMetadata renders metadata with sorted keys so output is stable.
func formatMetadata(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %v", k, m[k])
	}
	b.WriteByte('}')
	return b.String()
}
