// Package source reads the rows a collection is rebuilt from.
//
// Rows are mapped to Record at the boundary: the identifier is validated
// once here, and the timestamp is kept as a Value so formatting rules live
// in one place.
package source

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/golang-sql/civil"
)

var (
	// ErrConnection indicates the source database could not be reached.
	ErrConnection = errors.New("source connection failed")

	// ErrQuery indicates the bulk read failed.
	ErrQuery = errors.New("source query failed")

	// ErrInvalidRecord indicates a row that cannot be mapped to a Record.
	ErrInvalidRecord = errors.New("invalid source record")
)

// Provider yields every source row in one bulk read.
type Provider interface {
	FetchAll(ctx context.Context) ([]Record, error)
	Close() error
}

// Record is one source row. It is never mutated after construction.
type Record struct {
	ID        Identifier
	Timestamp Value
}

// NewRecord maps raw column values to a Record.
func NewRecord(id, timestamp any) (Record, error) {
	ident, err := NewIdentifier(id)
	if err != nil {
		return Record{}, err
	}
	ts, err := NewValue(timestamp)
	if err != nil {
		return Record{}, err
	}
	return Record{ID: ident, Timestamp: ts}, nil
}

// Identifier is a row identifier: either an integer or a string.
type Identifier struct {
	str   string
	num   int64
	isInt bool
}

// IntID returns an integer identifier.
func IntID(n int64) Identifier {
	return Identifier{num: n, isInt: true}
}

// StringID returns a string identifier.
func StringID(s string) Identifier {
	return Identifier{str: s}
}

// NewIdentifier converts a scanned column value. Integers of any width and
// strings (including driver byte slices holding UTF-8 text) are accepted;
// anything else, including NULL, is ErrInvalidRecord.
func NewIdentifier(v any) (Identifier, error) {
	switch id := v.(type) {
	case int64:
		return IntID(id), nil
	case int:
		return IntID(int64(id)), nil
	case int32:
		return IntID(int64(id)), nil
	case int16:
		return IntID(int64(id)), nil
	case int8:
		return IntID(int64(id)), nil
	case uint8:
		return IntID(int64(id)), nil
	case uint16:
		return IntID(int64(id)), nil
	case uint32:
		return IntID(int64(id)), nil
	case string:
		return StringID(id), nil
	case []byte:
		if !utf8.Valid(id) {
			return Identifier{}, fmt.Errorf("%w: identifier is %d bytes of binary data", ErrInvalidRecord, len(id))
		}
		return StringID(string(id)), nil
	case nil:
		return Identifier{}, fmt.Errorf("%w: identifier is NULL", ErrInvalidRecord)
	default:
		return Identifier{}, fmt.Errorf("%w: unsupported identifier type %T", ErrInvalidRecord, v)
	}
}

// IsInt reports whether the identifier is an integer.
func (i Identifier) IsInt() bool { return i.isInt }

// Int returns the integer identifier, or 0 for string identifiers.
func (i Identifier) Int() int64 { return i.num }

// String returns the identifier in its textual form.
func (i Identifier) String() string {
	if i.isInt {
		return strconv.FormatInt(i.num, 10)
	}
	return i.str
}

// Any returns the identifier as int64 or string.
func (i Identifier) Any() any {
	if i.isInt {
		return i.num
	}
	return i.str
}

// Value is a scanned column value of arbitrary type.
type Value struct {
	v any
}

// NewValue wraps a scanned column value. Driver byte slices become strings
// and must be valid UTF-8.
func NewValue(v any) (Value, error) {
	if b, ok := v.([]byte); ok {
		if !utf8.Valid(b) {
			return Value{}, fmt.Errorf("%w: timestamp is %d bytes of binary data", ErrInvalidRecord, len(b))
		}
		return Value{v: string(b)}, nil
	}
	return Value{v: v}, nil
}

// IsNull reports whether the column was NULL.
func (v Value) IsNull() bool { return v.v == nil }

// Raw returns the underlying value.
func (v Value) Raw() any { return v.v }

// String renders the value for indexing. Date-times use ISO-8601 with
// microsecond precision when present and the UTC offset when non-zero:
//
//	2024-01-15T10:30:00
//	2024-01-15T10:30:00.250000
//	2024-01-15T10:30:00+05:30
//
// Columns typed DATE arrive as civil.Date and render date-only (2024-01-15).
// NULL renders as the empty string rather than a placeholder such as "None",
// so a missing timestamp never reads as a value. Everything else uses its
// default form.
func (v Value) String() string {
	switch t := v.v.(type) {
	case nil:
		return ""
	case time.Time:
		return FormatTime(t)
	case civil.Date:
		return t.String()
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// FormatTime renders t as ISO-8601 without a zone suffix for zero offsets.
func FormatTime(t time.Time) string {
	layout := "2006-01-02T15:04:05"
	if t.Nanosecond()/int(time.Microsecond) != 0 {
		layout += ".000000"
	}
	if _, offset := t.Zone(); offset != 0 {
		layout += "-07:00"
	}
	return t.Format(layout)
}
