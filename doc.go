// Package tsdb provides an embedded, file-backed time-series storage engine.
//
// A file holds one or more named series. Each series is an append-ordered
// table of fixed-width records whose first field is a 64-bit millisecond
// timestamp; the remaining fields are declared when the series is created.
// Large series are searched through a self-similar sparse index, so range
// queries by timestamp stay sublinear in series size.
//
// # Basic Usage
//
// Create a file and a series:
//
//	f, err := tsdb.CreateFile("quotes.tsdb", false, tsdb.DefaultOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer f.Close()
//
//	err = f.CreateSeries("usdjpy", "USD/JPY ticks", []tsdb.FieldSpec{
//	    {Name: "price", Type: "Double"},
//	    {Name: "side", Type: "Int8"},
//	})
//
// Append records and query a timestamp range:
//
//	discarded, err := f.Append("usdjpy", batch, true)
//	cols, err := f.GetRecords("usdjpy", start, end, nil)
//
// The lower-level Timeseries, Table, RecordSet and Cell types are exported
// for callers that need record-level access, for example the import and view
// command-line tools under cmd/.
//
// A file handle is single-threaded: callers must serialize operations on an
// open File and everything reached through it.
package tsdb
