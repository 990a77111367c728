package tsdb

import (
	"encoding/binary"
	"fmt"
	"math"
)

// RecordIDLE returns the highest record id whose timestamp is less than or
// equal to t. When several records share that timestamp, the lowest record
// id of the group is returned. The second result is false when every record
// has a timestamp greater than t.
func (ts *Timeseries) RecordIDLE(t int64) (uint64, bool, error) {
	lo, hi, exact, rid, err := ts.bracket(t)
	if err != nil {
		return 0, false, err
	}
	if exact {
		return rid, true, nil
	}
	if hi < lo {
		return 0, false, nil
	}

	rs, err := ts.data.ReadRecords(lo, hi)
	if err != nil {
		return 0, false, err
	}
	raw := rs.Bytes()
	recordSize := ts.structure.Size()
	tsOffset := ts.structure.Offset(0)
	at := func(i int64) int64 {
		return int64(binary.LittleEndian.Uint64(raw[i*int64(recordSize)+int64(tsOffset):]))
	}

	// Scan backward for the rightmost record at or before t, then walk to
	// the front of its timestamp group.
	for i := int64(hi - lo); i >= 0; i-- {
		if at(i) <= t {
			matchTS := at(i)
			for ; i >= 0; i-- {
				if at(i) < matchTS {
					return lo + uint64(i) + 1, true, nil
				}
			}
			return lo, true, nil
		}
	}
	return 0, false, nil
}

// RecordIDGE returns the lowest record id whose timestamp is greater than
// or equal to t. Because index points always sit at the first record of a
// timestamp group, a forward scan can return the first match directly. The
// second result is false when every record has a timestamp less than t.
func (ts *Timeseries) RecordIDGE(t int64) (uint64, bool, error) {
	lo, hi, exact, rid, err := ts.bracket(t)
	if err != nil {
		return 0, false, err
	}
	if exact {
		return rid, true, nil
	}
	if hi < lo {
		return 0, false, nil
	}

	rs, err := ts.data.ReadRecords(lo, hi)
	if err != nil {
		return 0, false, err
	}
	raw := rs.Bytes()
	recordSize := ts.structure.Size()
	tsOffset := ts.structure.Offset(0)

	for i := uint64(0); i <= hi-lo; i++ {
		cur := int64(binary.LittleEndian.Uint64(raw[i*uint64(recordSize)+uint64(tsOffset):]))
		if cur >= t {
			return lo + i, true, nil
		}
	}
	return 0, false, nil
}

// bracket narrows the data-table range that can contain timestamp t. With a
// child index it descends recursively; the bracket is [LE entry's record,
// GE entry's record]. When the LE index entry matches t exactly its record
// id is returned directly (exact=true), since index points are always the
// first record of their group. Without an index the bracket is the whole
// table. hi < lo signals an empty table.
func (ts *Timeseries) bracket(t int64) (lo, hi uint64, exact bool, rid uint64, err error) {
	n, err := ts.data.Size()
	if err != nil {
		return 0, 0, false, 0, err
	}
	if n == 0 {
		return 1, 0, false, 0, nil
	}

	lo, hi = 0, n-1
	if ts.index == nil {
		return lo, hi, false, 0, nil
	}

	leID, ok, err := ts.index.RecordIDLE(t)
	if err != nil {
		return 0, 0, false, 0, err
	}
	if ok {
		entryTS, entryRid, err := ts.index.entry(leID)
		if err != nil {
			return 0, 0, false, 0, err
		}
		if entryTS == t {
			return 0, 0, true, entryRid, nil
		}
		lo = entryRid
	}

	geID, ok, err := ts.index.RecordIDGE(t)
	if err != nil {
		return 0, 0, false, 0, err
	}
	if ok {
		_, entryRid, err := ts.index.entry(geID)
		if err != nil {
			return 0, 0, false, 0, err
		}
		hi = entryRid
	}
	return lo, hi, false, 0, nil
}

// entry reads index record i as a (timestamp, record id) pair.
func (ts *Timeseries) entry(i uint64) (int64, uint64, error) {
	rs, err := ts.data.ReadRecords(i, i)
	if err != nil {
		return 0, 0, err
	}
	rec, err := rs.Record(0)
	if err != nil {
		return 0, 0, err
	}
	entryTS, err := rec.Cell(0).Timestamp()
	if err != nil {
		return 0, 0, err
	}
	rid, err := rec.Cell(1).RecordID()
	if err != nil {
		return 0, 0, err
	}
	return entryTS, rid, nil
}

// timeRange resolves the inclusive timestamp range [start, end] to record
// ids. found is false when the range holds no records.
func (ts *Timeseries) timeRange(start, end int64) (startID, endID uint64, found bool, err error) {
	startID, ok, err := ts.RecordIDGE(start)
	if err != nil || !ok {
		return 0, 0, false, err
	}
	endID, ok, err = ts.RecordIDLE(end)
	if err != nil || !ok {
		return 0, 0, false, err
	}

	// Refine the end id to the last record at or before end, covering
	// groups that repeat the end timestamp.
	if end == math.MaxInt64 {
		n, err := ts.data.Size()
		if err != nil {
			return 0, 0, false, err
		}
		endID = n - 1
	} else if gtID, ok, err := ts.RecordIDGE(end + 1); err != nil {
		return 0, 0, false, err
	} else if ok {
		endID = gtID - 1
	} else {
		n, err := ts.data.Size()
		if err != nil {
			return 0, 0, false, err
		}
		endID = n - 1
	}

	if endID < startID {
		return 0, 0, false, nil
	}
	return startID, endID, true, nil
}

// RecordSetByTime reads all records with timestamps in the inclusive range
// [start, end]. Fails with ErrBadRange when start exceeds end and
// ErrNoRecords when the range lies entirely outside the stored data. A
// range that brackets no records yields an empty RecordSet.
func (ts *Timeseries) RecordSetByTime(start, end int64) (RecordSet, error) {
	if start > end {
		return RecordSet{}, fmt.Errorf("%w: start %d after end %d", ErrBadRange, start, end)
	}

	if _, ok, err := ts.RecordIDGE(start); err != nil {
		return RecordSet{}, err
	} else if !ok {
		return RecordSet{}, fmt.Errorf("%w: no records at or after %d", ErrNoRecords, start)
	}
	if _, ok, err := ts.RecordIDLE(end); err != nil {
		return RecordSet{}, err
	} else if !ok {
		return RecordSet{}, fmt.Errorf("%w: no records at or before %d", ErrNoRecords, end)
	}

	startID, endID, found, err := ts.timeRange(start, end)
	if err != nil {
		return RecordSet{}, err
	}
	if !found {
		return RecordSetAt(BlockRef{}, 0, ts.structure), nil
	}
	return ts.data.ReadRecords(startID, endID)
}

// BufferedRecordSetByTime returns a windowed view over the records in the
// inclusive timestamp range [start, end]. Ranges outside the stored data
// yield an empty set.
func (ts *Timeseries) BufferedRecordSetByTime(start, end int64) (*BufferedRecordSet, error) {
	if start > end {
		return EmptyBufferedRecordSet(), nil
	}
	startID, endID, found, err := ts.timeRange(start, end)
	if err != nil {
		return nil, err
	}
	if !found {
		return EmptyBufferedRecordSet(), nil
	}
	return NewBufferedRecordSet(ts.data, startID, endID), nil
}

// CountByTime returns how many records fall in the inclusive timestamp
// range [start, end]. Ranges outside the stored data count zero.
func (ts *Timeseries) CountByTime(start, end int64) (uint64, error) {
	if start > end {
		return 0, nil
	}
	startID, endID, found, err := ts.timeRange(start, end)
	if err != nil || !found {
		return 0, err
	}
	return endID - startID + 1, nil
}

// FirstTimestamp returns the timestamp of record 0. The second result is
// false when the series is empty.
func (ts *Timeseries) FirstTimestamp() (int64, bool, error) {
	n, err := ts.data.Size()
	if err != nil || n == 0 {
		return 0, false, err
	}
	entryTS, err := ts.timestampAt(0)
	if err != nil {
		return 0, false, err
	}
	return entryTS, true, nil
}

// LastTimestamp returns the timestamp of the last record. The second result
// is false when the series is empty.
func (ts *Timeseries) LastTimestamp() (int64, bool, error) {
	rec, ok, err := ts.data.LastRecord()
	if err != nil || !ok {
		return 0, false, err
	}
	t, err := rec.Timestamp()
	if err != nil {
		return 0, false, err
	}
	return t, true, nil
}

func (ts *Timeseries) timestampAt(i uint64) (int64, error) {
	rs, err := ts.data.ReadRecords(i, i)
	if err != nil {
		return 0, err
	}
	rec, err := rs.Record(0)
	if err != nil {
		return 0, err
	}
	return rec.Timestamp()
}
