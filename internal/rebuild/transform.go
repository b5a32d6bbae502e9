package rebuild

import (
	"fmt"

	"github.com/fyrsmithlabs/rowindex/internal/source"
)

// Metadata keys written with every document.
const (
	MetaReferenceID = "Reference ID"
	MetaDatetime    = "Datetime"
)

// Transform renders a record as document text and metadata.
//
// The text is "Reference ID: <id>, Datetime: <ts>". Integer identifiers stay
// integers in metadata; timestamps are normalized by source.Value.String, so a
// null timestamp becomes "".
func Transform(rec source.Record) (string, map[string]any) {
	ts := rec.Timestamp.String()
	text := fmt.Sprintf("Reference ID: %s, Datetime: %s", rec.ID.String(), ts)
	metadata := map[string]any{
		MetaReferenceID: rec.ID.Any(),
		MetaDatetime:    ts,
	}
	return text, metadata
}

// TransformAll applies Transform to every record, preserving order.
func TransformAll(records []source.Record) ([]string, []map[string]any) {
	texts := make([]string, len(records))
	metadatas := make([]map[string]any, len(records))
	for i, rec := range records {
		texts[i], metadatas[i] = Transform(rec)
	}
	return texts, metadatas
}
