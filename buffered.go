package tsdb

import "fmt"

// WindowSize is the number of records a BufferedRecordSet materializes per
// window load.
const WindowSize = 65000

// BufferedRecordSet is a windowed lazy view over a backing Table across an
// inclusive record range [first, last]. Indexing loads a window on demand
// when the requested record falls outside the current one. Returned Records
// are copies; later window loads do not invalidate them.
type BufferedRecordSet struct {
	table *Table
	first uint64
	last  uint64

	window     RecordSet
	winFirst   uint64
	winLen     uint64
	windowSize uint64
	empty      bool
	reverse    bool
}

// NewBufferedRecordSet creates a view over table records [first, last].
func NewBufferedRecordSet(table *Table, first, last uint64) *BufferedRecordSet {
	return &BufferedRecordSet{
		table:      table,
		first:      first,
		last:       last,
		windowSize: WindowSize,
	}
}

// EmptyBufferedRecordSet returns a set with no records.
func EmptyBufferedRecordSet() *BufferedRecordSet {
	return &BufferedRecordSet{empty: true, windowSize: WindowSize}
}

// Len returns the number of records in the set.
func (b *BufferedRecordSet) Len() uint64 {
	if b.empty {
		return 0
	}
	return b.last - b.first + 1
}

// FirstRecordID returns the table record id of index 0.
func (b *BufferedRecordSet) FirstRecordID() uint64 {
	return b.first
}

// SetReverse selects reverse window loading: each demand-loaded window ends
// at the requested index instead of starting there. Callers streaming
// backwards avoid reloading a window per record.
func (b *BufferedRecordSet) SetReverse(reverse bool) {
	b.reverse = reverse
}

// Record returns a copy of the record at index i, relative to the start of
// the set. Fails with ErrIndexOutOfRange past the end.
func (b *BufferedRecordSet) Record(i uint64) (Record, error) {
	if b.empty {
		return Record{}, fmt.Errorf("%w: empty buffered record set", ErrIndexOutOfRange)
	}
	if i > b.last-b.first {
		return Record{}, fmt.Errorf("%w: record %d of %d", ErrIndexOutOfRange, i, b.last-b.first+1)
	}

	if b.window.Len() == 0 || i < b.winFirst || i > b.winFirst+b.winLen-1 {
		if err := b.loadWindow(i); err != nil {
			return Record{}, err
		}
	}

	src, err := b.window.Record(int(i - b.winFirst))
	if err != nil {
		return Record{}, err
	}
	out := NewRecord(b.table.Structure())
	if err := out.CopyValuesFrom(src); err != nil {
		return Record{}, err
	}
	return out, nil
}

// loadWindow materializes a window containing index i. Forward windows
// start at i; reverse windows end at i.
func (b *BufferedRecordSet) loadWindow(i uint64) error {
	n := b.windowSize
	if b.reverse {
		if i < n-1 {
			n = i + 1
		}
		winFirst := i - (n - 1)
		rs, err := b.table.ReadRecords(b.first+winFirst, b.first+i)
		if err != nil {
			return err
		}
		b.window = rs
		b.winFirst = winFirst
		b.winLen = n
		return nil
	}

	if b.first+i+n-1 > b.last {
		n = b.last - (b.first + i) + 1
	}
	rs, err := b.table.ReadRecords(b.first+i, b.first+i+n-1)
	if err != nil {
		return err
	}
	b.window = rs
	b.winFirst = i
	b.winLen = n
	return nil
}
