package tsdb

import (
	"fmt"
	"strings"
)

// DefaultAlign is the byte alignment used when laying out record fields.
// An alignment of 1 packs fields tightly.
const DefaultAlign = 4

// Structure is the frozen layout of a record: an ordered list of fields,
// their byte offsets, and the total record size. A Structure is immutable
// after creation and may be shared by any number of Records, RecordSets and
// Tables.
type Structure struct {
	fields  []Field
	offsets []int
	size    int
}

// NewStructure lays out fields sequentially, rounding each next offset up to
// a multiple of align. align must be at least 1; an alignment of 1 packs the
// fields tightly.
func NewStructure(fields []Field, align int) *Structure {
	if align < 1 {
		align = 1
	}
	offsets := make([]int, len(fields))
	offset := 0
	for i, f := range fields {
		offsets[i] = offset
		offset += f.Size()
		if rem := offset % align; rem != 0 {
			offset += align - rem
		}
	}
	return &Structure{fields: append([]Field(nil), fields...), offsets: offsets, size: offset}
}

// NewStructureWithOffsets builds a Structure from caller-supplied offsets and
// total size, as when reconstructing a layout from storage.
func NewStructureWithOffsets(fields []Field, offsets []int, size int) (*Structure, error) {
	if len(fields) != len(offsets) {
		return nil, fmt.Errorf("%w: %d fields but %d offsets", ErrFieldSpecInvalid, len(fields), len(offsets))
	}
	return &Structure{
		fields:  append([]Field(nil), fields...),
		offsets: append([]int(nil), offsets...),
		size:    size,
	}, nil
}

// NumFields returns the number of fields.
func (s *Structure) NumFields() int {
	return len(s.fields)
}

// Field returns the field at index i.
func (s *Structure) Field(i int) Field {
	return s.fields[i]
}

// Offset returns the byte offset of field i within a record.
func (s *Structure) Offset(i int) int {
	return s.offsets[i]
}

// Size returns the total record size in bytes.
func (s *Structure) Size() int {
	return s.size
}

// FieldIndexByName returns the index of the named field. Names are
// case-sensitive. Fails with ErrFieldMissing when absent.
func (s *Structure) FieldIndexByName(name string) (int, error) {
	for i, f := range s.fields {
		if f.Name() == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrFieldMissing, name)
}

// SameLayout reports whether two Structures agree on field count, kinds,
// sizes and offsets. Names are metadata for lookup only and are not compared.
func (s *Structure) SameLayout(other *Structure) bool {
	if other == nil || len(s.fields) != len(other.fields) || s.size != other.size {
		return false
	}
	for i := range s.fields {
		if s.fields[i].Kind() != other.fields[i].Kind() ||
			s.fields[i].Size() != other.fields[i].Size() ||
			s.offsets[i] != other.offsets[i] {
			return false
		}
	}
	return true
}

// StructsToString renders nrecords records starting at data, joining fields
// with fieldDelim and records with recordDelim. Cells are rendered with
// their default formatting.
func (s *Structure) StructsToString(data []byte, nrecords int, fieldDelim, recordDelim string) string {
	var b strings.Builder
	for i := 0; i < nrecords; i++ {
		if i > 0 {
			b.WriteString(recordDelim)
		}
		rec := data[i*s.size:]
		for j := range s.fields {
			if j > 0 {
				b.WriteString(fieldDelim)
			}
			b.WriteString(formatCell(s.fields[j], rec[s.offsets[j]:s.offsets[j]+s.fields[j].Size()]))
		}
	}
	return b.String()
}
