package tsdb

import "fmt"

// Record is a typed view over one record's bytes. Indexing a Record yields
// a Cell over the corresponding field.
type Record struct {
	ref       BlockRef
	structure *Structure
}

// NewRecord allocates a fresh record for the given Structure.
func NewRecord(structure *Structure) Record {
	block := NewMemoryBlock(structure.Size())
	return Record{ref: NewBlockRef(block, 0), structure: structure}
}

// RecordAt wraps an existing block reference as a record of the given
// Structure.
func RecordAt(ref BlockRef, structure *Structure) Record {
	return Record{ref: ref, structure: structure}
}

// Cell returns a typed cell over field i.
func (r Record) Cell(i int) Cell {
	f := r.structure.Field(i)
	return NewCell(r.ref.At(r.structure.Offset(i)), f.Kind(), f.Size())
}

// CellByName returns a typed cell over the named field.
func (r Record) CellByName(name string) (Cell, error) {
	i, err := r.structure.FieldIndexByName(name)
	if err != nil {
		return Cell{}, err
	}
	return r.Cell(i), nil
}

// Structure returns the record's Structure.
func (r Record) Structure() *Structure {
	return r.structure
}

// Bytes returns the record's raw bytes.
func (r Record) Bytes() []byte {
	return r.ref.Slice(r.structure.Size())
}

// Timestamp reads the record's first field as a timestamp. It is a
// convenience for series records, whose first field is always the
// timestamp.
func (r Record) Timestamp() (int64, error) {
	return r.Cell(0).Timestamp()
}

// CopyValuesFrom copies the other record's bytes into this one. The two
// records must share the same Structure value, not merely an equivalent
// layout; otherwise it fails with ErrStructureMismatch.
func (r Record) CopyValuesFrom(other Record) error {
	if r.structure != other.structure {
		return ErrStructureMismatch
	}
	r.ref.CopyFrom(other.Bytes())
	return nil
}

// String renders the record's cells joined by commas.
func (r Record) String() string {
	return r.structure.StructsToString(r.Bytes(), 1, ",", "\n")
}

// RecordSet is a contiguous run of records sharing one Structure, laid out
// row-major in a single memory block.
type RecordSet struct {
	ref       BlockRef
	n         int
	structure *Structure
}

// NewRecordSet allocates a zeroed set of n records.
func NewRecordSet(n int, structure *Structure) RecordSet {
	block := NewMemoryBlock(n * structure.Size())
	return RecordSet{ref: NewBlockRef(block, 0), n: n, structure: structure}
}

// RecordSetAt wraps an existing block reference as a set of n records.
func RecordSetAt(ref BlockRef, n int, structure *Structure) RecordSet {
	return RecordSet{ref: ref, n: n, structure: structure}
}

// Len returns the number of records in the set.
func (rs RecordSet) Len() int {
	return rs.n
}

// Structure returns the set's Structure.
func (rs RecordSet) Structure() *Structure {
	return rs.structure
}

// Record returns a view over record i. Out-of-range indexes fail with
// ErrIndexOutOfRange.
func (rs RecordSet) Record(i int) (Record, error) {
	if i < 0 || i >= rs.n {
		return Record{}, fmt.Errorf("%w: record %d of %d", ErrIndexOutOfRange, i, rs.n)
	}
	return Record{ref: rs.ref.At(i * rs.structure.Size()), structure: rs.structure}, nil
}

// Slice returns a view over n records starting at record i.
func (rs RecordSet) Slice(i, n int) (RecordSet, error) {
	if i < 0 || n < 0 || i+n > rs.n {
		return RecordSet{}, fmt.Errorf("%w: records [%d,%d) of %d", ErrIndexOutOfRange, i, i+n, rs.n)
	}
	return RecordSet{ref: rs.ref.At(i * rs.structure.Size()), n: n, structure: rs.structure}, nil
}

// Bytes returns the raw bytes of all records in the set.
func (rs RecordSet) Bytes() []byte {
	if rs.n == 0 {
		return nil
	}
	return rs.ref.Slice(rs.n * rs.structure.Size())
}

// String renders the set with commas between fields and newlines between
// records.
func (rs RecordSet) String() string {
	if rs.n == 0 {
		return ""
	}
	return rs.structure.StructsToString(rs.Bytes(), rs.n, ",", "\n")
}
