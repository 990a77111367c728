package tsdb

import (
	"fmt"
	"log/slog"
)

// Mode selects how a file is opened.
type Mode int

const (
	// ModeRead opens a file for reading only.
	ModeRead Mode = iota
	// ModeReadWrite opens a file for reading and writing.
	ModeReadWrite
)

// FieldSpec names a field and its canonical type string, as accepted by
// CreateSeries and reported by SeriesProperties.
type FieldSpec struct {
	Name string
	Type string
}

// SeriesProperties summarizes a series.
type SeriesProperties struct {
	Count          uint64
	FirstTimestamp string
	LastTimestamp  string
	Fields         []FieldSpec
}

// Column is one field of a columnar query result. Values holds a typed
// slice: []int64 for timestamps, []int32 for dates and 32-bit integers,
// []int8, []float64, []byte for chars, []uint64 for record ids, and
// []string for string fields.
type Column struct {
	Name   string
	Type   string
	Values any
}

// File is an open engine file: a container of named series. A File and
// everything reached through it must be used from one goroutine at a time.
type File struct {
	container Container
	root      Group
	opts      Options
	series    map[string]*Timeseries
	closed    bool
}

// CreateFile creates a new engine file. Fails with ErrFileExists when the
// path is taken and overwriteOK is false.
func CreateFile(path string, overwriteOK bool, opts Options) (*File, error) {
	opts.normalize()
	container, err := CreateSQLiteContainer(path, overwriteOK, opts.SQLite)
	if err != nil {
		return nil, err
	}
	return NewFile(container, opts)
}

// OpenFile opens an existing engine file. Fails with ErrFileMissing when
// the path does not exist.
func OpenFile(path string, mode Mode, opts Options) (*File, error) {
	opts.normalize()
	container, err := OpenSQLiteContainer(path, mode == ModeRead, opts.SQLite)
	if err != nil {
		return nil, err
	}
	return NewFile(container, opts)
}

// NewFile wraps an already open container as an engine file. Tests use this
// with a MemoryContainer.
func NewFile(container Container, opts Options) (*File, error) {
	opts.normalize()
	root, err := container.Root()
	if err != nil {
		return nil, err
	}
	return &File{
		container: container,
		root:      root,
		opts:      opts,
		series:    make(map[string]*Timeseries),
	}, nil
}

// Close flushes every open series and closes the container. The first
// flush error is returned; flushing continues past failures so every series
// gets its chance, with later errors logged.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true

	var firstErr error
	for name, series := range f.series {
		if err := series.Close(); err != nil {
			if firstErr == nil {
				firstErr = err
			} else {
				slog.Error("flush series on close", "series", name, "error", err)
			}
		}
	}
	if err := f.container.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Flush flushes the append buffers of every open series.
func (f *File) Flush() error {
	if f.closed {
		return ErrClosed
	}
	for _, series := range f.series {
		if err := series.FlushAppendBuffer(); err != nil {
			return err
		}
	}
	return nil
}

// ListSeries returns the names of all series in the file, sorted.
func (f *File) ListSeries() ([]string, error) {
	if f.closed {
		return nil, ErrClosed
	}
	return f.root.List()
}

// CreateSeries creates a new series. A timestamp field named
// _TSDB_timestamp is prepended to the declared fields automatically. Fails
// with ErrSeriesExists when the name is taken and ErrFieldSpecInvalid on a
// bad type string.
func (f *File) CreateSeries(name, description string, fields []FieldSpec) error {
	if f.closed {
		return ErrClosed
	}
	parsed := make([]Field, len(fields))
	for i, spec := range fields {
		field, err := ParseFieldType(spec.Name, spec.Type)
		if err != nil {
			return err
		}
		parsed[i] = field
	}

	series, err := CreateTimeseries(f.root, name, description, parsed, f.opts.Align)
	if err != nil {
		return err
	}
	f.applyOptions(series)
	f.series[name] = series
	return nil
}

// Series returns an open handle to the named series. Handles are cached on
// the File, so repeated calls share append buffers and index state.
func (f *File) Series(name string) (*Timeseries, error) {
	if f.closed {
		return nil, ErrClosed
	}
	if series, ok := f.series[name]; ok {
		return series, nil
	}
	series, err := OpenTimeseries(f.root, name)
	if err != nil {
		return nil, err
	}
	f.applyOptions(series)
	f.series[name] = series
	return series, nil
}

func (f *File) applyOptions(series *Timeseries) {
	series.SetSplitIndexGT(f.opts.SplitIndexGT)
	series.SetIndexStep(f.opts.IndexStep)
	if series.index != nil {
		f.applyOptions(series.index)
	}
}

// SeriesProperties reports a series' record count, first and last
// timestamps, and declared fields.
func (f *File) SeriesProperties(name string) (SeriesProperties, error) {
	series, err := f.Series(name)
	if err != nil {
		return SeriesProperties{}, err
	}

	props := SeriesProperties{}
	props.Count, err = series.Count()
	if err != nil {
		return SeriesProperties{}, err
	}
	if first, ok, err := series.FirstTimestamp(); err != nil {
		return SeriesProperties{}, err
	} else if ok {
		props.FirstTimestamp = FormatTimestamp(first)
	}
	if last, ok, err := series.LastTimestamp(); err != nil {
		return SeriesProperties{}, err
	} else if ok {
		props.LastTimestamp = FormatTimestamp(last)
	}

	structure := series.Structure()
	for i := 0; i < structure.NumFields(); i++ {
		field := structure.Field(i)
		props.Fields = append(props.Fields, FieldSpec{Name: field.Name(), Type: field.TypeString()})
	}
	return props, nil
}

// GetRecords reads the records with timestamps in [start, end] and returns
// them column by column. wanted selects a subset of fields by name; nil
// selects all fields.
func (f *File) GetRecords(name string, start, end int64, wanted []string) ([]Column, error) {
	series, err := f.Series(name)
	if err != nil {
		return nil, err
	}

	structure := series.Structure()
	fieldIdx := make([]int, 0, structure.NumFields())
	if wanted == nil {
		for i := 0; i < structure.NumFields(); i++ {
			fieldIdx = append(fieldIdx, i)
		}
	} else {
		for _, fieldName := range wanted {
			i, err := structure.FieldIndexByName(fieldName)
			if err != nil {
				return nil, err
			}
			fieldIdx = append(fieldIdx, i)
		}
	}

	rs, err := series.RecordSetByTime(start, end)
	if err != nil {
		return nil, err
	}

	cols := make([]Column, len(fieldIdx))
	for c, i := range fieldIdx {
		field := structure.Field(i)
		cols[c] = Column{Name: field.Name(), Type: field.TypeString(), Values: newColumnSlice(field.Kind(), rs.Len())}
	}
	for r := 0; r < rs.Len(); r++ {
		rec, err := rs.Record(r)
		if err != nil {
			return nil, err
		}
		for c, i := range fieldIdx {
			if err := appendCellValue(&cols[c], rec.Cell(i), r); err != nil {
				return nil, err
			}
		}
	}
	return cols, nil
}

func newColumnSlice(kind FieldKind, n int) any {
	switch kind {
	case KindTimestamp:
		return make([]int64, n)
	case KindDate, KindInt32:
		return make([]int32, n)
	case KindInt8:
		return make([]int8, n)
	case KindDouble:
		return make([]float64, n)
	case KindChar:
		return make([]byte, n)
	case KindRecordID:
		return make([]uint64, n)
	case KindString:
		return make([]string, n)
	}
	return nil
}

func appendCellValue(col *Column, cell Cell, i int) error {
	switch values := col.Values.(type) {
	case []int64:
		v, err := cell.Timestamp()
		if err != nil {
			return err
		}
		values[i] = v
	case []int32:
		v, err := cell.Int32()
		if err != nil {
			return err
		}
		values[i] = v
	case []int8:
		v, err := cell.Int8()
		if err != nil {
			return err
		}
		values[i] = v
	case []float64:
		v, err := cell.Float64()
		if err != nil {
			return err
		}
		values[i] = v
	case []byte:
		v, err := cell.Char()
		if err != nil {
			return err
		}
		values[i] = v
	case []uint64:
		v, err := cell.RecordID()
		if err != nil {
			return err
		}
		values[i] = v
	case []string:
		values[i] = cell.String()
	default:
		return fmt.Errorf("%w: unsupported column type", ErrTypeConversion)
	}
	return nil
}

// Append appends a batch of records to the named series, returning how many
// overlapping records were discarded. See Timeseries.AppendRecordSet for
// the overlap semantics.
func (f *File) Append(name string, rs RecordSet, discardOverlap bool) (int, error) {
	series, err := f.Series(name)
	if err != nil {
		return 0, err
	}
	return series.AppendRecordSet(rs, discardOverlap)
}
