package tsdb

import (
	"errors"
	"testing"
)

// searchSeries builds a series with timestamps 10,10,20,20,20,30,40.
func searchSeries(t *testing.T) *Timeseries {
	t.Helper()
	ts := newTickSeries(t)
	batch := tickBatch(t, ts.Structure(), [][3]float64{
		{10, 0, 0}, {10, 1, 0}, {20, 2, 0}, {20, 3, 0}, {20, 4, 0}, {30, 5, 0}, {40, 6, 0},
	})
	if _, err := ts.AppendRecordSet(batch, false); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return ts
}

func TestRecordIDLE(t *testing.T) {
	ts := searchSeries(t)
	cases := []struct {
		t     int64
		want  uint64
		found bool
	}{
		{5, 0, false},
		{10, 0, true},
		{15, 0, true},
		{20, 2, true}, // lowest id of the 20-group
		{25, 2, true},
		{30, 5, true},
		{40, 6, true},
		{99, 6, true},
	}
	for _, tc := range cases {
		id, ok, err := ts.RecordIDLE(tc.t)
		if err != nil {
			t.Fatalf("RecordIDLE(%d): %v", tc.t, err)
		}
		if ok != tc.found || (ok && id != tc.want) {
			t.Fatalf("RecordIDLE(%d) = %d,%v, want %d,%v", tc.t, id, ok, tc.want, tc.found)
		}
	}
}

func TestRecordIDGE(t *testing.T) {
	ts := searchSeries(t)
	cases := []struct {
		t     int64
		want  uint64
		found bool
	}{
		{5, 0, true},
		{10, 0, true},
		{15, 2, true},
		{20, 2, true},
		{25, 5, true},
		{40, 6, true},
		{41, 0, false},
	}
	for _, tc := range cases {
		id, ok, err := ts.RecordIDGE(tc.t)
		if err != nil {
			t.Fatalf("RecordIDGE(%d): %v", tc.t, err)
		}
		if ok != tc.found || (ok && id != tc.want) {
			t.Fatalf("RecordIDGE(%d) = %d,%v, want %d,%v", tc.t, id, ok, tc.want, tc.found)
		}
	}
}

func TestSearchEmptySeries(t *testing.T) {
	ts := newTickSeries(t)
	if _, ok, err := ts.RecordIDLE(10); err != nil || ok {
		t.Fatalf("LE on empty: ok=%v err=%v", ok, err)
	}
	if _, ok, err := ts.RecordIDGE(10); err != nil || ok {
		t.Fatalf("GE on empty: ok=%v err=%v", ok, err)
	}
}

func TestSearchTieBreaksWithIndex(t *testing.T) {
	ts := newTickSeries(t)
	ts.SetSplitIndexGT(4)
	ts.SetIndexStep(2)
	batch := tickBatch(t, ts.Structure(), [][3]float64{
		{10, 0, 0}, {10, 1, 0}, {20, 2, 0}, {20, 3, 0}, {20, 4, 0}, {30, 5, 0}, {40, 6, 0},
	})
	if _, err := ts.AppendRecordSet(batch, false); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if ts.index == nil {
		t.Fatalf("expected an index")
	}

	// Ties still break to the lowest record id of the matching group.
	id, ok, err := ts.RecordIDLE(20)
	if err != nil || !ok || id != 2 {
		t.Fatalf("RecordIDLE(20) = %d,%v,%v, want 2", id, ok, err)
	}
	id, ok, err = ts.RecordIDGE(20)
	if err != nil || !ok || id != 2 {
		t.Fatalf("RecordIDGE(20) = %d,%v,%v, want 2", id, ok, err)
	}
	id, ok, err = ts.RecordIDLE(25)
	if err != nil || !ok || id != 2 {
		t.Fatalf("RecordIDLE(25) = %d,%v,%v, want 2", id, ok, err)
	}
}

func TestRecordSetByTimeErrors(t *testing.T) {
	ts := searchSeries(t)

	if _, err := ts.RecordSetByTime(30, 20); !errors.Is(err, ErrBadRange) {
		t.Fatalf("expected ErrBadRange, got %v", err)
	}
	if _, err := ts.RecordSetByTime(50, 60); !errors.Is(err, ErrNoRecords) {
		t.Fatalf("expected ErrNoRecords past the end, got %v", err)
	}
	if _, err := ts.RecordSetByTime(1, 5); !errors.Is(err, ErrNoRecords) {
		t.Fatalf("expected ErrNoRecords before the start, got %v", err)
	}

	// A range between two timestamp groups brackets nothing.
	rs, err := ts.RecordSetByTime(31, 39)
	if err != nil {
		t.Fatalf("gap range: %v", err)
	}
	if rs.Len() != 0 {
		t.Fatalf("gap range yields %d records, want 0", rs.Len())
	}
}

func TestRecordSetByTimeInclusive(t *testing.T) {
	ts := searchSeries(t)
	rs, err := ts.RecordSetByTime(20, 30)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if rs.Len() != 4 {
		t.Fatalf("range yields %d records, want 4", rs.Len())
	}

	// Whole series.
	rs, err = ts.RecordSetByTime(10, 40)
	if err != nil {
		t.Fatalf("full range: %v", err)
	}
	if rs.Len() != 7 {
		t.Fatalf("full range yields %d records, want 7", rs.Len())
	}
}

func TestRangeIdempotence(t *testing.T) {
	ts := searchSeries(t)
	a, err := ts.RecordSetByTime(10, 30)
	if err != nil {
		t.Fatalf("first read: %v", err)
	}
	b, err := ts.RecordSetByTime(10, 30)
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	ab, bb := a.Bytes(), b.Bytes()
	if len(ab) != len(bb) {
		t.Fatalf("lengths differ: %d vs %d", len(ab), len(bb))
	}
	for i := range ab {
		if ab[i] != bb[i] {
			t.Fatalf("byte %d differs", i)
		}
	}
}

func TestCountByTime(t *testing.T) {
	ts := searchSeries(t)
	cases := []struct {
		start, end int64
		want       uint64
	}{
		{10, 40, 7},
		{20, 20, 3},
		{11, 19, 0},
		{50, 60, 0},
		{0, 5, 0},
		{30, 20, 0},
	}
	for _, tc := range cases {
		n, err := ts.CountByTime(tc.start, tc.end)
		if err != nil {
			t.Fatalf("CountByTime(%d,%d): %v", tc.start, tc.end, err)
		}
		if n != tc.want {
			t.Fatalf("CountByTime(%d,%d) = %d, want %d", tc.start, tc.end, n, tc.want)
		}
	}
}

func TestBufferedRecordSetByTime(t *testing.T) {
	ts := searchSeries(t)
	brs, err := ts.BufferedRecordSetByTime(20, 30)
	if err != nil {
		t.Fatalf("buffered range: %v", err)
	}
	if brs.Len() != 4 {
		t.Fatalf("buffered range len = %d, want 4", brs.Len())
	}
	rec, err := brs.Record(0)
	if err != nil {
		t.Fatalf("record 0: %v", err)
	}
	if tsv, _ := rec.Timestamp(); tsv != 20 {
		t.Fatalf("first buffered ts = %d, want 20", tsv)
	}

	empty, err := ts.BufferedRecordSetByTime(50, 60)
	if err != nil {
		t.Fatalf("empty range: %v", err)
	}
	if empty.Len() != 0 {
		t.Fatalf("empty range len = %d", empty.Len())
	}
}
