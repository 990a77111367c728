package tsdb

import "fmt"

// AppendBufferSize is the default capacity of a Table's in-memory append
// buffer, in records.
const AppendBufferSize = 1000

// Attribute keys used to persist table metadata.
const (
	attrTitle     = "TITLE"
	attrFieldType = "FIELD_%d_TYPE"
	attrFieldName = "FIELD_%d_NAME"
)

// Table binds a Structure to a persistent container table. It owns a
// bounded append buffer that is flushed on overflow, on explicit flush, and
// on Close.
type Table struct {
	ct        ContainerTable
	structure *Structure
	name      string
	title     string

	appendBuf  []byte
	nbuf       int
	bufRecords int
}

// CreateTable creates a persistent table under group with the given record
// structure. The structure is serialized into FIELD_i_TYPE and FIELD_i_NAME
// attributes; the title is stored as a TITLE attribute. Fails with
// ErrTableExists if the name is taken.
func CreateTable(group Group, name, title string, structure *Structure) (*Table, error) {
	exists, err := group.TableExists(name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %q", ErrTableExists, name)
	}

	spec := TableSpec{RecordSize: structure.Size(), ChunkSize: defaultChunkSize}
	for i := 0; i < structure.NumFields(); i++ {
		f := structure.Field(i)
		spec.Columns = append(spec.Columns, ColumnSpec{
			Name:   f.Name(),
			Offset: structure.Offset(i),
			Size:   f.Size(),
			Type:   wireTypeOf(f.Kind()),
		})
	}

	ct, err := group.CreateTable(name, spec)
	if err != nil {
		return nil, err
	}
	if err := ct.SetAttribute(attrTitle, title); err != nil {
		return nil, err
	}
	for i := 0; i < structure.NumFields(); i++ {
		f := structure.Field(i)
		if err := ct.SetAttribute(fmt.Sprintf(attrFieldType, i), f.TypeString()); err != nil {
			return nil, err
		}
		if err := ct.SetAttribute(fmt.Sprintf(attrFieldName, i), f.Name()); err != nil {
			return nil, err
		}
	}

	return &Table{ct: ct, structure: structure, name: name, title: title, bufRecords: AppendBufferSize}, nil
}

// OpenTable opens an existing table and rebuilds its Structure from the
// FIELD_i_* attributes and stored column offsets. Fails with ErrTableMissing
// when absent, ErrFieldSpecInvalid on a String size below 1, and
// ErrTableCorrupt when the TITLE or a FIELD_i_TYPE attribute is missing or a
// type string does not parse. A missing FIELD_i_NAME falls back to the
// stored column name.
func OpenTable(group Group, name string) (*Table, error) {
	ct, err := group.OpenTable(name)
	if err != nil {
		return nil, err
	}

	cols, err := ct.Columns()
	if err != nil {
		return nil, err
	}

	title, ok, err := ct.Attribute(attrTitle)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: table %q has no TITLE attribute", ErrTableCorrupt, name)
	}

	fields := make([]Field, len(cols))
	offsets := make([]int, len(cols))
	for i, col := range cols {
		typeString, ok, err := ct.Attribute(fmt.Sprintf(attrFieldType, i))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: table %q is missing FIELD_%d_TYPE", ErrTableCorrupt, name, i)
		}
		fieldName, ok, err := ct.Attribute(fmt.Sprintf(attrFieldName, i))
		if err != nil {
			return nil, err
		}
		if !ok {
			fieldName = col.Name
		}

		f, err := ParseFieldType(fieldName, typeString)
		if err != nil {
			if isSmallStringSpec(typeString) {
				return nil, fmt.Errorf("%w: field %d of table %q", ErrFieldSpecInvalid, i, name)
			}
			return nil, fmt.Errorf("%w: field %d of table %q has type %q", ErrTableCorrupt, i, name, typeString)
		}
		fields[i] = f
		offsets[i] = col.Offset
	}

	structure, err := NewStructureWithOffsets(fields, offsets, ct.RecordSize())
	if err != nil {
		return nil, err
	}

	return &Table{ct: ct, structure: structure, name: name, title: title, bufRecords: AppendBufferSize}, nil
}

// isSmallStringSpec reports whether s is a String(...) spec whose size
// parses but is below 1, which is invalid rather than corrupt.
func isSmallStringSpec(s string) bool {
	var n int
	if _, err := fmt.Sscanf(s, "String(%d)", &n); err != nil {
		return false
	}
	return n < 1
}

// Structure returns the table's record layout.
func (t *Table) Structure() *Structure {
	return t.structure
}

// Name returns the table's name within its group.
func (t *Table) Name() string {
	return t.name
}

// Title returns the table's TITLE attribute.
func (t *Table) Title() string {
	return t.title
}

// Size returns the number of persisted records. Buffered records are not
// counted until flushed.
func (t *Table) Size() (uint64, error) {
	return t.ct.NumRecords()
}

// ReadRecords reads the inclusive record range [first, last] into a fresh
// RecordSet. Fails with ErrIndexOutOfRange when either bound is past the end
// and ErrBadRange when last precedes first.
func (t *Table) ReadRecords(first, last uint64) (RecordSet, error) {
	n, err := t.ct.NumRecords()
	if err != nil {
		return RecordSet{}, err
	}
	if first >= n || last >= n {
		return RecordSet{}, fmt.Errorf("%w: records [%d,%d] of %d", ErrIndexOutOfRange, first, last, n)
	}
	if last < first {
		return RecordSet{}, fmt.Errorf("%w: last record %d before first %d", ErrBadRange, last, first)
	}

	count := int(last - first + 1)
	rs := NewRecordSet(count, t.structure)
	if err := t.ct.ReadAt(first, uint64(count), rs.Bytes()); err != nil {
		return RecordSet{}, err
	}
	return rs, nil
}

// LastRecord returns the last persisted record. The second result is false
// when the table is empty.
func (t *Table) LastRecord() (Record, bool, error) {
	n, err := t.ct.NumRecords()
	if err != nil {
		return Record{}, false, err
	}
	if n == 0 {
		return Record{}, false, nil
	}
	rec := NewRecord(t.structure)
	if err := t.ct.ReadAt(n-1, 1, rec.Bytes()); err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

// AppendRecords appends a whole batch, bypassing the append buffer. Any
// buffered single records are flushed first so the on-disk order matches
// append order.
func (t *Table) AppendRecords(rs RecordSet) error {
	if rs.Len() == 0 {
		return nil
	}
	if rs.Structure() != t.structure && !rs.Structure().SameLayout(t.structure) {
		return ErrStructureMismatch
	}
	if err := t.FlushAppendBuffer(); err != nil {
		return err
	}
	return t.ct.Append(rs.Bytes())
}

// appendBytes appends raw record bytes, bypassing the append buffer.
func (t *Table) appendBytes(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if err := t.FlushAppendBuffer(); err != nil {
		return err
	}
	return t.ct.Append(b)
}

// AppendRecord copies one record into the append buffer, flushing when the
// buffer fills. The record must use this table's Structure.
func (t *Table) AppendRecord(rec Record) error {
	if rec.Structure() != t.structure {
		return ErrStructureMismatch
	}
	if t.appendBuf == nil {
		t.appendBuf = make([]byte, t.bufRecords*t.structure.Size())
	}
	copy(t.appendBuf[t.nbuf*t.structure.Size():], rec.Bytes())
	t.nbuf++
	if t.nbuf == t.bufRecords {
		return t.FlushAppendBuffer()
	}
	return nil
}

// FlushAppendBuffer writes any buffered records to storage. A no-op when
// the buffer is empty.
func (t *Table) FlushAppendBuffer() error {
	if t.nbuf == 0 {
		return nil
	}
	n := t.nbuf
	if err := t.ct.Append(t.appendBuf[:n*t.structure.Size()]); err != nil {
		return err
	}
	t.nbuf = 0
	return nil
}

// AppendBufferLen returns the number of records waiting in the append
// buffer.
func (t *Table) AppendBufferLen() int {
	return t.nbuf
}

// Close flushes the append buffer. The table remains usable; Close exists
// so callers can observe the final flush error.
func (t *Table) Close() error {
	return t.FlushAppendBuffer()
}
