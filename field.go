package tsdb

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FieldKind identifies the storage type of a field.
type FieldKind int

const (
	// KindUndefined is the zero FieldKind.
	KindUndefined FieldKind = iota
	// KindTimestamp is a 64-bit signed integer, milliseconds since
	// 1970-01-01T00:00:00 UTC.
	KindTimestamp
	// KindDate is a 32-bit signed integer, whole days since 1970-01-01 UTC.
	KindDate
	// KindInt32 is a 32-bit signed integer.
	KindInt32
	// KindInt8 is an 8-bit signed integer.
	KindInt8
	// KindDouble is an IEEE-754 64-bit floating point number.
	KindDouble
	// KindChar is a single byte interpreted as a character.
	KindChar
	// KindRecordID is a 64-bit unsigned record index.
	KindRecordID
	// KindString is a fixed-size zero-padded byte string.
	KindString
)

// String returns the kind's canonical type name. For KindString the size is
// not known at the kind level, so the bare word "String" is returned; use
// Field.TypeString for the full canonical form.
func (k FieldKind) String() string {
	switch k {
	case KindTimestamp:
		return "Timestamp"
	case KindDate:
		return "Date"
	case KindInt32:
		return "Int32"
	case KindInt8:
		return "Int8"
	case KindDouble:
		return "Double"
	case KindChar:
		return "Char"
	case KindRecordID:
		return "Record"
	case KindString:
		return "String"
	}
	return "Undefined"
}

// Field declares one cell of a record: a name, a kind, and a byte size.
// The size is fixed by the kind except for strings, which carry their
// declared length.
type Field struct {
	name string
	kind FieldKind
	size int
}

// NewTimestampField declares a millisecond-timestamp field.
func NewTimestampField(name string) Field {
	return Field{name: name, kind: KindTimestamp, size: 8}
}

// NewDateField declares a day-count date field.
func NewDateField(name string) Field {
	return Field{name: name, kind: KindDate, size: 4}
}

// NewInt32Field declares a 32-bit integer field.
func NewInt32Field(name string) Field {
	return Field{name: name, kind: KindInt32, size: 4}
}

// NewInt8Field declares an 8-bit integer field.
func NewInt8Field(name string) Field {
	return Field{name: name, kind: KindInt8, size: 1}
}

// NewDoubleField declares a 64-bit floating point field.
func NewDoubleField(name string) Field {
	return Field{name: name, kind: KindDouble, size: 8}
}

// NewCharField declares a one-byte character field.
func NewCharField(name string) Field {
	return Field{name: name, kind: KindChar, size: 1}
}

// NewRecordIDField declares a 64-bit record-id field.
func NewRecordIDField(name string) Field {
	return Field{name: name, kind: KindRecordID, size: 8}
}

// NewStringField declares a fixed-size string field of n bytes.
// n must be at least 1.
func NewStringField(name string, n int) (Field, error) {
	if n < 1 {
		return Field{}, fmt.Errorf("%w: String size %d", ErrFieldSpecInvalid, n)
	}
	return Field{name: name, kind: KindString, size: n}, nil
}

// Name returns the field name.
func (f Field) Name() string {
	return f.name
}

// Kind returns the field kind.
func (f Field) Kind() FieldKind {
	return f.kind
}

// Size returns the field size in bytes.
func (f Field) Size() int {
	return f.size
}

// TypeString returns the canonical type string used when serializing the
// field into table attributes, e.g. "Timestamp" or "String(13)".
func (f Field) TypeString() string {
	if f.kind == KindString {
		return fmt.Sprintf("String(%d)", f.size)
	}
	return f.kind.String()
}

// ParseFieldType parses a canonical type string into a Field with the given
// name. The accepted grammar is exactly
// Timestamp | Date | Int32 | Int8 | Char | Double | Record | String(<n>)
// with n >= 1. Anything else fails with ErrFieldSpecInvalid.
func ParseFieldType(name, typeString string) (Field, error) {
	switch typeString {
	case "Timestamp":
		return NewTimestampField(name), nil
	case "Date":
		return NewDateField(name), nil
	case "Int32":
		return NewInt32Field(name), nil
	case "Int8":
		return NewInt8Field(name), nil
	case "Char":
		return NewCharField(name), nil
	case "Double":
		return NewDoubleField(name), nil
	case "Record":
		return NewRecordIDField(name), nil
	}
	if inner, ok := strings.CutPrefix(typeString, "String("); ok {
		digits, ok := strings.CutSuffix(inner, ")")
		if !ok {
			return Field{}, fmt.Errorf("%w: %q", ErrFieldSpecInvalid, typeString)
		}
		n, err := strconv.Atoi(digits)
		if err != nil {
			return Field{}, fmt.Errorf("%w: %q", ErrFieldSpecInvalid, typeString)
		}
		return NewStringField(name, n)
	}
	return Field{}, fmt.Errorf("%w: %q", ErrFieldSpecInvalid, typeString)
}

// millisPerDay converts day-count dates to millisecond timestamps.
const millisPerDay = 86_400_000

// FormatTimestamp renders a millisecond timestamp as
// YYYY-MM-DDTHH:MM:SS.mmm in UTC, exactly 23 characters.
func FormatTimestamp(ts int64) string {
	return time.UnixMilli(ts).UTC().Format("2006-01-02T15:04:05.000")
}

// FormatDate renders a day-count date as YYYY-MM-DD, exactly 10 characters.
func FormatDate(days int32) string {
	return time.Unix(int64(days)*86_400, 0).UTC().Format("2006-01-02")
}

// formatFloat renders a double in its shortest round-trip representation.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
