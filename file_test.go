package tsdb

import (
	"errors"
	"path/filepath"
	"testing"
)

func tempFile(t *testing.T, opts Options) (*File, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "quotes.tsdb")
	f, err := CreateFile(path, false, opts)
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	return f, path
}

func createTickSeries(t *testing.T, f *File, name string) {
	t.Helper()
	err := f.CreateSeries(name, "tick data", []FieldSpec{
		{Name: "price", Type: "Double"},
		{Name: "side", Type: "Int8"},
	})
	if err != nil {
		t.Fatalf("create series: %v", err)
	}
}

func appendTicks(t *testing.T, f *File, name string, ticks [][3]float64) {
	t.Helper()
	series, err := f.Series(name)
	if err != nil {
		t.Fatalf("series: %v", err)
	}
	if _, err := f.Append(name, tickBatch(t, series.Structure(), ticks), false); err != nil {
		t.Fatalf("append: %v", err)
	}
}

func TestFileCreateOpenErrors(t *testing.T) {
	f, path := tempFile(t, DefaultOptions())
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, err := CreateFile(path, false, DefaultOptions()); !errors.Is(err, ErrFileExists) {
		t.Fatalf("expected ErrFileExists, got %v", err)
	}
	if _, err := OpenFile(filepath.Join(t.TempDir(), "nope.tsdb"), ModeRead, DefaultOptions()); !errors.Is(err, ErrFileMissing) {
		t.Fatalf("expected ErrFileMissing, got %v", err)
	}
}

func TestFileSeriesLifecycle(t *testing.T) {
	f, _ := tempFile(t, DefaultOptions())
	defer f.Close()

	createTickSeries(t, f, "usdjpy")
	if err := f.CreateSeries("usdjpy", "", nil); !errors.Is(err, ErrSeriesExists) {
		t.Fatalf("expected ErrSeriesExists, got %v", err)
	}
	if err := f.CreateSeries("bad", "", []FieldSpec{{Name: "x", Type: "Float32"}}); !errors.Is(err, ErrFieldSpecInvalid) {
		t.Fatalf("expected ErrFieldSpecInvalid, got %v", err)
	}

	createTickSeries(t, f, "eurusd")
	names, err := f.ListSeries()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(names) != 2 || names[0] != "eurusd" || names[1] != "usdjpy" {
		t.Fatalf("series = %v", names)
	}

	if _, err := f.Series("missing"); !errors.Is(err, ErrSeriesMissing) {
		t.Fatalf("expected ErrSeriesMissing, got %v", err)
	}
}

func TestFileSeriesProperties(t *testing.T) {
	f, _ := tempFile(t, DefaultOptions())
	defer f.Close()

	createTickSeries(t, f, "usdjpy")
	props, err := f.SeriesProperties("usdjpy")
	if err != nil {
		t.Fatalf("properties: %v", err)
	}
	if props.Count != 0 || props.FirstTimestamp != "" || props.LastTimestamp != "" {
		t.Fatalf("empty series properties = %+v", props)
	}

	appendTicks(t, f, "usdjpy", [][3]float64{{10_000, 1.5, 1}, {10_050, 1.6, 0}, {10_100, 1.7, 1}})
	props, err = f.SeriesProperties("usdjpy")
	if err != nil {
		t.Fatalf("properties: %v", err)
	}
	if props.Count != 3 {
		t.Fatalf("count = %d, want 3", props.Count)
	}
	if props.FirstTimestamp != "1970-01-01T00:00:10.000" {
		t.Fatalf("first = %q", props.FirstTimestamp)
	}
	if props.LastTimestamp != "1970-01-01T00:00:10.100" {
		t.Fatalf("last = %q", props.LastTimestamp)
	}

	wantFields := []FieldSpec{
		{Name: "_TSDB_timestamp", Type: "Timestamp"},
		{Name: "price", Type: "Double"},
		{Name: "side", Type: "Int8"},
	}
	if len(props.Fields) != len(wantFields) {
		t.Fatalf("fields = %v", props.Fields)
	}
	for i := range wantFields {
		if props.Fields[i] != wantFields[i] {
			t.Fatalf("field %d = %v, want %v", i, props.Fields[i], wantFields[i])
		}
	}
}

func TestFileGetRecords(t *testing.T) {
	f, _ := tempFile(t, DefaultOptions())
	defer f.Close()

	createTickSeries(t, f, "usdjpy")
	appendTicks(t, f, "usdjpy", [][3]float64{{10_000, 1.5, 1}, {10_050, 1.6, 0}, {10_100, 1.7, 1}})

	cols, err := f.GetRecords("usdjpy", 10_050, 10_100, nil)
	if err != nil {
		t.Fatalf("get records: %v", err)
	}
	if len(cols) != 3 {
		t.Fatalf("column count = %d, want 3", len(cols))
	}

	timestamps, ok := cols[0].Values.([]int64)
	if !ok || len(timestamps) != 2 || timestamps[0] != 10_050 || timestamps[1] != 10_100 {
		t.Fatalf("timestamp column = %#v", cols[0].Values)
	}
	prices, ok := cols[1].Values.([]float64)
	if !ok || prices[0] != 1.6 || prices[1] != 1.7 {
		t.Fatalf("price column = %#v", cols[1].Values)
	}
	sides, ok := cols[2].Values.([]int8)
	if !ok || sides[0] != 0 || sides[1] != 1 {
		t.Fatalf("side column = %#v", cols[2].Values)
	}

	// Field selection.
	cols, err = f.GetRecords("usdjpy", 10_000, 10_100, []string{"price"})
	if err != nil {
		t.Fatalf("get records subset: %v", err)
	}
	if len(cols) != 1 || cols[0].Name != "price" {
		t.Fatalf("subset columns = %v", cols)
	}
	if _, err := f.GetRecords("usdjpy", 10_000, 10_100, []string{"nope"}); !errors.Is(err, ErrFieldMissing) {
		t.Fatalf("expected ErrFieldMissing, got %v", err)
	}
}

func TestFileAppendOverlap(t *testing.T) {
	f, _ := tempFile(t, DefaultOptions())
	defer f.Close()

	createTickSeries(t, f, "usdjpy")
	appendTicks(t, f, "usdjpy", [][3]float64{{10_000, 1.5, 1}, {10_100, 1.7, 1}})

	series, _ := f.Series("usdjpy")
	batch := tickBatch(t, series.Structure(), [][3]float64{{9_000, 1, 0}, {10_200, 2, 0}})
	discarded, err := f.Append("usdjpy", batch, true)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if discarded != 1 {
		t.Fatalf("discarded = %d, want 1", discarded)
	}
	props, _ := f.SeriesProperties("usdjpy")
	if props.Count != 3 {
		t.Fatalf("count = %d, want 3", props.Count)
	}
}

func TestFileReopen(t *testing.T) {
	opts := DefaultOptions()
	opts.SplitIndexGT = 7
	opts.IndexStep = 3

	f, path := tempFile(t, opts)
	createTickSeries(t, f, "usdjpy")

	var ticks [][3]float64
	for i := 1; i <= 16; i++ {
		ticks = append(ticks, [3]float64{float64(i), float64(i), 0})
	}
	appendTicks(t, f, "usdjpy", ticks)
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	re, err := OpenFile(path, ModeReadWrite, opts)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer re.Close()

	props, err := re.SeriesProperties("usdjpy")
	if err != nil {
		t.Fatalf("properties: %v", err)
	}
	if props.Count != 16 {
		t.Fatalf("count = %d, want 16", props.Count)
	}
	if props.FirstTimestamp != "1970-01-01T00:00:00.001" {
		t.Fatalf("first = %q", props.FirstTimestamp)
	}
	if props.LastTimestamp != "1970-01-01T00:00:00.016" {
		t.Fatalf("last = %q", props.LastTimestamp)
	}

	// The reopened series still has its index and searches through it.
	series, err := re.Series("usdjpy")
	if err != nil {
		t.Fatalf("series: %v", err)
	}
	if series.index == nil {
		t.Fatalf("index lost on reopen")
	}
	entries := indexEntries(t, series)
	want := [][2]uint64{{3, 2}, {6, 5}, {9, 8}, {12, 11}, {15, 14}}
	if len(entries) != len(want) {
		t.Fatalf("index entries = %v, want %v", entries, want)
	}
	id, ok, err := series.RecordIDGE(7)
	if err != nil || !ok || id != 6 {
		t.Fatalf("RecordIDGE(7) = %d,%v,%v, want 6", id, ok, err)
	}
}

func TestFileReopenBytesIdentical(t *testing.T) {
	f, path := tempFile(t, DefaultOptions())
	createTickSeries(t, f, "usdjpy")
	appendTicks(t, f, "usdjpy", [][3]float64{{1, 1.5, 1}, {2, 1.625, 0}})

	series, _ := f.Series("usdjpy")
	before, err := series.RecordSetByID(0, 1)
	if err != nil {
		t.Fatalf("read before: %v", err)
	}
	beforeBytes := append([]byte(nil), before.Bytes()...)
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	re, err := OpenFile(path, ModeRead, DefaultOptions())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer re.Close()

	series, err = re.Series("usdjpy")
	if err != nil {
		t.Fatalf("series: %v", err)
	}
	after, err := series.RecordSetByID(0, 1)
	if err != nil {
		t.Fatalf("read after: %v", err)
	}
	afterBytes := after.Bytes()
	if len(beforeBytes) != len(afterBytes) {
		t.Fatalf("lengths differ: %d vs %d", len(beforeBytes), len(afterBytes))
	}
	for i := range beforeBytes {
		if beforeBytes[i] != afterBytes[i] {
			t.Fatalf("byte %d differs after reopen", i)
		}
	}
}

func TestFileClosedHandle(t *testing.T) {
	f, _ := tempFile(t, DefaultOptions())
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("double close: %v", err)
	}
	if _, err := f.ListSeries(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := f.CreateSeries("x", "", nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
