package tsdb

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

const (
	// DefaultSplitIndexGT is the data-table size above which a sparse index
	// is built.
	DefaultSplitIndexGT = 262144

	// DefaultIndexStep is the spacing, in records, between sparse index
	// points.
	DefaultIndexStep = 65536
)

// Reserved names inside a timeseries group.
const (
	dataTableName      = "_TSDB_data"
	indexGroupName     = "_TSDB_index"
	timestampFieldName = "_TSDB_timestamp"
	indexTitle         = "TSDB: Index"
)

// Timeseries is a group holding an append-ordered data table whose first
// field is a millisecond timestamp, plus, once the table grows large
// enough, a child Timeseries indexing selected timestamps to record ids.
// The child is itself a Timeseries, so deep series carry an index of the
// index.
type Timeseries struct {
	group     Group
	name      string
	title     string
	structure *Structure
	data      *Table
	index     *Timeseries

	splitIndexGT uint64
	indexStep    uint64

	// bufferLastTS is the timestamp watermark for buffered single-record
	// appends. It resets when the append buffer drains.
	bufferLastTS int64
}

// CreateTimeseries creates a new series under parent. A timestamp field
// named _TSDB_timestamp is prepended to fields automatically. Field offsets
// are laid out with the given alignment (1 packs tightly).
func CreateTimeseries(parent Group, name, title string, fields []Field, align int) (*Timeseries, error) {
	withTimestamp := append([]Field{NewTimestampField(timestampFieldName)}, fields...)
	return CreateTimeseriesWithStructure(parent, name, title, NewStructure(withTimestamp, align))
}

// CreateTimeseriesWithStructure creates a new series with a caller-built
// Structure, whose first field must be a Timestamp named _TSDB_timestamp.
func CreateTimeseriesWithStructure(parent Group, name, title string, structure *Structure) (*Timeseries, error) {
	if structure.NumFields() == 0 ||
		structure.Field(0).Kind() != KindTimestamp ||
		structure.Field(0).Name() != timestampFieldName {
		return nil, fmt.Errorf("%w: first field must be a Timestamp named %s", ErrFieldSpecInvalid, timestampFieldName)
	}

	exists, err := TimeseriesExists(parent, name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %q", ErrSeriesExists, name)
	}

	group, err := parent.CreateGroup(name)
	if err != nil {
		return nil, err
	}
	data, err := CreateTable(group, dataTableName, title, structure)
	if err != nil {
		return nil, err
	}

	return &Timeseries{
		group:        group,
		name:         name,
		title:        title,
		structure:    structure,
		data:         data,
		splitIndexGT: DefaultSplitIndexGT,
		indexStep:    DefaultIndexStep,
		bufferLastTS: math.MinInt64,
	}, nil
}

// OpenTimeseries opens an existing series under parent, rebuilding its
// Structure from the data table and attaching the child index if one was
// built.
func OpenTimeseries(parent Group, name string) (*Timeseries, error) {
	group, err := parent.OpenGroup(name)
	if err != nil {
		return nil, err
	}
	data, err := OpenTable(group, dataTableName)
	if err != nil {
		return nil, err
	}

	ts := &Timeseries{
		group:        group,
		name:         name,
		title:        data.Title(),
		structure:    data.Structure(),
		data:         data,
		splitIndexGT: DefaultSplitIndexGT,
		indexStep:    DefaultIndexStep,
		bufferLastTS: math.MinInt64,
	}

	hasIndex, err := TimeseriesExists(group, indexGroupName)
	if err != nil {
		return nil, err
	}
	if hasIndex {
		ts.index, err = OpenTimeseries(group, indexGroupName)
		if err != nil {
			return nil, err
		}
	}
	return ts, nil
}

// TimeseriesExists reports whether a valid series (a group with a
// _TSDB_data table) exists under parent.
func TimeseriesExists(parent Group, name string) (bool, error) {
	ok, err := parent.GroupExists(name)
	if err != nil || !ok {
		return false, err
	}
	group, err := parent.OpenGroup(name)
	if err != nil {
		return false, err
	}
	return group.TableExists(dataTableName)
}

// SetIndexStep overrides the index point spacing. The child index, if
// created later, inherits the override.
func (ts *Timeseries) SetIndexStep(step uint64) {
	ts.indexStep = step
}

// SetSplitIndexGT overrides the table size beyond which an index is built.
func (ts *Timeseries) SetSplitIndexGT(limit uint64) {
	ts.splitIndexGT = limit
}

// Name returns the series name.
func (ts *Timeseries) Name() string {
	return ts.name
}

// Title returns the series title.
func (ts *Timeseries) Title() string {
	return ts.title
}

// Structure returns the record layout, including the prepended
// _TSDB_timestamp field.
func (ts *Timeseries) Structure() *Structure {
	return ts.structure
}

// DataTable returns the underlying data table.
func (ts *Timeseries) DataTable() *Table {
	return ts.data
}

// Count returns the number of persisted records.
func (ts *Timeseries) Count() (uint64, error) {
	return ts.data.Size()
}

// LastRecord returns the last persisted record. The second result is false
// when the series is empty.
func (ts *Timeseries) LastRecord() (Record, bool, error) {
	return ts.data.LastRecord()
}

// RecordSetByID reads the inclusive record id range [first, last].
func (ts *Timeseries) RecordSetByID(first, last uint64) (RecordSet, error) {
	return ts.data.ReadRecords(first, last)
}

// BufferedRecordSetByID returns a windowed view over record ids
// [first, last].
func (ts *Timeseries) BufferedRecordSetByID(first, last uint64) *BufferedRecordSet {
	return NewBufferedRecordSet(ts.data, first, last)
}

// AppendRecordSet appends a batch of records. A batch that is not sorted by
// timestamp is sorted in place first (the relative order of equal
// timestamps is not preserved). If the batch begins before the series'
// last timestamp, the overlapping prefix is discarded when discardOverlap
// is set, and the whole append fails with ErrTimestampOverlap otherwise.
// Returns the number of records discarded.
func (ts *Timeseries) AppendRecordSet(rs RecordSet, discardOverlap bool) (int, error) {
	n := rs.Len()
	if n == 0 {
		return 0, nil
	}

	// Drain any buffered single-record appends so the overlap check sees
	// the true last timestamp.
	if err := ts.FlushAppendBuffer(); err != nil {
		return 0, err
	}

	recordSize := ts.structure.Size()
	tsOffset := ts.structure.Offset(0)
	data := rs.Bytes()
	at := func(i int) int64 {
		return int64(binary.LittleEndian.Uint64(data[i*recordSize+tsOffset:]))
	}

	if n > 1 {
		sorted := true
		for i := 1; i < n; i++ {
			if at(i-1) > at(i) {
				sorted = false
				break
			}
		}
		if !sorted {
			sortRecords(data, recordSize, tsOffset)
		}
	}

	last, ok, err := ts.data.LastRecord()
	if err != nil {
		return 0, err
	}
	if ok {
		lastTS, err := last.Timestamp()
		if err != nil {
			return 0, err
		}
		if lastTS > at(0) {
			if !discardOverlap {
				return 0, fmt.Errorf("%w: batch starts at %d but series ends at %d",
					ErrTimestampOverlap, at(0), lastTS)
			}
			// Discard the overlapping prefix.
			for k := 0; k < n; k++ {
				if at(k) >= lastTS {
					if err := ts.data.appendBytes(data[k*recordSize:]); err != nil {
						return 0, err
					}
					if err := ts.indexTail(); err != nil {
						return 0, err
					}
					return k, nil
				}
			}
			return n, nil
		}
	}

	if err := ts.data.appendBytes(data); err != nil {
		return 0, err
	}
	if err := ts.indexTail(); err != nil {
		return 0, err
	}
	return 0, nil
}

// AppendRecord appends one record through the table's append buffer. The
// record's timestamp must not precede any timestamp already accepted into
// the buffer or flushed from it since the last drain.
func (ts *Timeseries) AppendRecord(rec Record) error {
	t, err := rec.Timestamp()
	if err != nil {
		return err
	}
	if t < ts.bufferLastTS {
		return fmt.Errorf("%w: record at %d behind buffered watermark %d", ErrTimestampOverlap, t, ts.bufferLastTS)
	}
	if err := ts.data.AppendRecord(rec); err != nil {
		return err
	}
	ts.bufferLastTS = t
	if ts.data.AppendBufferLen() == 0 {
		// Buffer just flushed to storage.
		ts.bufferLastTS = math.MinInt64
		return ts.indexTail()
	}
	return nil
}

// FlushAppendBuffer flushes buffered records and extends the index over
// them.
func (ts *Timeseries) FlushAppendBuffer() error {
	flushed := ts.data.AppendBufferLen() > 0
	if err := ts.data.FlushAppendBuffer(); err != nil {
		return err
	}
	ts.bufferLastTS = math.MinInt64
	if flushed {
		return ts.indexTail()
	}
	return nil
}

// Close flushes the series and its index chain.
func (ts *Timeseries) Close() error {
	if err := ts.FlushAppendBuffer(); err != nil {
		return err
	}
	if ts.index != nil {
		return ts.index.Close()
	}
	return nil
}

// indexStructure returns the (Timestamp, RecordId) layout of index entries.
func indexStructure() *Structure {
	return NewStructure([]Field{
		NewTimestampField(timestampFieldName),
		NewRecordIDField("record_id"),
	}, DefaultAlign)
}

// createIndexIfNecessary builds the sparse index when the data table has
// grown past splitIndexGT. It returns true when no tail indexing remains to
// be done: either the table is still too small, or the index was just built
// over all current data. It returns false when the index already existed.
func (ts *Timeseries) createIndexIfNecessary() (bool, error) {
	if ts.index != nil {
		return false, nil
	}

	n, err := ts.data.Size()
	if err != nil {
		return false, err
	}
	if n <= ts.splitIndexGT {
		return true, nil
	}

	index, err := CreateTimeseriesWithStructure(ts.group, indexGroupName, indexTitle, indexStructure())
	if err != nil {
		return false, err
	}
	index.splitIndexGT = ts.splitIndexGT
	index.indexStep = ts.indexStep
	ts.index = index

	if err := ts.indexRange(ts.indexStep - 1); err != nil {
		return false, err
	}
	return true, nil
}

// indexTail extends the index over records appended since the last index
// point, building the index first if the table just crossed the split
// threshold.
func (ts *Timeseries) indexTail() error {
	done, err := ts.createIndexIfNecessary()
	if err != nil || done {
		return err
	}

	last, ok, err := ts.index.data.LastRecord()
	if err != nil {
		return err
	}
	if !ok {
		// An index exists but holds no points yet; restart the walk from
		// the first candidate.
		return ts.indexRange(ts.indexStep - 1)
	}
	rid, err := last.Cell(1).RecordID()
	if err != nil {
		return err
	}
	return ts.indexRange(rid + ts.indexStep)
}

// indexRange walks candidate record ids from candidate in steps of
// indexStep and appends an index point at the first record of each new
// timestamp group. A candidate inside a repeated-timestamp run is advanced
// over the run, scanning at most indexStep-1 records forward; if the run
// extends past the end of available data no point is inserted there.
func (ts *Timeseries) indexRange(candidate uint64) error {
	n, err := ts.data.Size()
	if err != nil {
		return err
	}
	if candidate == 0 {
		candidate = 1
	}

	recordSize := ts.structure.Size()
	tsOffset := ts.structure.Offset(0)
	indexStruct := ts.index.structure

	var points []indexPoint
	for candidate < n {
		pair, err := ts.data.ReadRecords(candidate-1, candidate)
		if err != nil {
			return err
		}
		raw := pair.Bytes()
		prevTS := int64(binary.LittleEndian.Uint64(raw[tsOffset:]))
		curTS := int64(binary.LittleEndian.Uint64(raw[recordSize+tsOffset:]))

		if prevTS < curTS {
			points = append(points, indexPoint{ts: curTS, rid: candidate})
			candidate += ts.indexStep
			continue
		}

		// The candidate repeats the previous timestamp. Scan forward for
		// the start of the next group.
		end := candidate + ts.indexStep - 1
		if end > n-1 {
			end = n - 1
		}
		found := false
		if end > candidate {
			blk, err := ts.data.ReadRecords(candidate+1, end)
			if err != nil {
				return err
			}
			blkRaw := blk.Bytes()
			for j := 0; j < blk.Len(); j++ {
				t := int64(binary.LittleEndian.Uint64(blkRaw[j*recordSize+tsOffset:]))
				if t != curTS {
					rid := candidate + 1 + uint64(j)
					points = append(points, indexPoint{ts: t, rid: rid})
					candidate = rid + ts.indexStep
					found = true
					break
				}
			}
		}
		if !found {
			candidate += ts.indexStep
		}
	}

	if len(points) == 0 {
		return nil
	}

	batch := NewRecordSet(len(points), indexStruct)
	for i, p := range points {
		rec, err := batch.Record(i)
		if err != nil {
			return err
		}
		if err := rec.Cell(0).SetInt64(p.ts); err != nil {
			return err
		}
		if err := rec.Cell(1).SetRecordID(p.rid); err != nil {
			return err
		}
	}
	_, err = ts.index.AppendRecordSet(batch, true)
	return err
}

type indexPoint struct {
	ts  int64
	rid uint64
}

// sortRecords sorts fixed-width records in place by their timestamp field.
func sortRecords(data []byte, recordSize, tsOffset int) {
	sort.Sort(&recordSorter{
		data:     data,
		size:     recordSize,
		tsOffset: tsOffset,
		tmp:      make([]byte, recordSize),
	})
}

type recordSorter struct {
	data     []byte
	size     int
	tsOffset int
	tmp      []byte
}

func (r *recordSorter) Len() int {
	return len(r.data) / r.size
}

func (r *recordSorter) Less(i, j int) bool {
	a := int64(binary.LittleEndian.Uint64(r.data[i*r.size+r.tsOffset:]))
	b := int64(binary.LittleEndian.Uint64(r.data[j*r.size+r.tsOffset:]))
	return a < b
}

func (r *recordSorter) Swap(i, j int) {
	a := r.data[i*r.size : (i+1)*r.size]
	b := r.data[j*r.size : (j+1)*r.size]
	copy(r.tmp, a)
	copy(a, b)
	copy(b, r.tmp)
}
