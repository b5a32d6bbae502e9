package source

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/golang-sql/civil"
	mssql "github.com/microsoft/go-mssqldb"
)

// columnNormalizer rewrites a scanned value using the column's database type
// before it becomes part of a Record.
type columnNormalizer func(v any) (any, error)

// normalizersFor returns one normalizer per column. A nil ColumnType, or a
// driver that reports no type name, passes values through unchanged.
func normalizersFor(types []*sql.ColumnType) []columnNormalizer {
	out := make([]columnNormalizer, len(types))
	for i, ct := range types {
		var name string
		if ct != nil {
			name = ct.DatabaseTypeName()
		}
		out[i] = normalizerFor(name)
	}
	return out
}

func normalizerFor(dbType string) columnNormalizer {
	switch strings.ToUpper(dbType) {
	case "UNIQUEIDENTIFIER":
		return uniqueIdentifier
	case "DATE":
		return dateOnly
	default:
		return passThrough
	}
}

func passThrough(v any) (any, error) { return v, nil }

// uniqueIdentifier renders SQL Server GUIDs, which the driver returns as 16
// bytes in mixed-endian wire order, in their canonical text form.
func uniqueIdentifier(v any) (any, error) {
	b, ok := v.([]byte)
	if !ok {
		return v, nil
	}
	var u mssql.UniqueIdentifier
	if err := u.Scan(b); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	return u.String(), nil
}

// dateOnly keeps DATE columns from rendering a midnight time component.
func dateOnly(v any) (any, error) {
	t, ok := v.(time.Time)
	if !ok {
		return v, nil
	}
	return civil.DateOf(t), nil
}
