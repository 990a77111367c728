// Command tsdbview streams a timestamp range of a series to stdout.
//
// Usage:
//
//	tsdbview <filename> <series> <start_date> <end_date>
//
// Dates use the ISO basic format YYYYMMDDThhmmss with optional fractional
// seconds, e.g. 20080201T010000. Records print comma-separated, one per
// line, with a leading record-id column every 100 records.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/afiedler/tsdb"
)

// readBlock is how many records to load from the table at a time.
const readBlock = 10000

func main() {
	flag.Usage = usage
	flag.Parse()
	args := flag.Args()

	if len(args) != 4 {
		fmt.Fprintln(os.Stderr, "Error: Not enough arguments.")
		usage()
		os.Exit(1)
	}

	if err := run(args[0], args[1], args[2], args[3]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: tsdbview <filename> <series> <start_date> <end_date>")
	fmt.Fprintln(os.Stderr, "Date format is YYYYMMDDThhmmss. Fractional seconds optional; for example, 20080201T010000")
}

func run(filename, series, startArg, endArg string) error {
	start, err := parseISOBasic(startArg)
	if err != nil {
		return err
	}
	end, err := parseISOBasic(endArg)
	if err != nil {
		return err
	}

	f, err := tsdb.OpenFile(filename, tsdb.ModeRead, tsdb.DefaultOptions())
	if err != nil {
		return err
	}
	defer f.Close()

	ts, err := f.Series(series)
	if err != nil {
		return err
	}

	startID, endID, ok, err := resolveRange(ts, start, end)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	structure := ts.Structure()
	for i := startID; i <= endID; i += readBlock {
		j := i + readBlock - 1
		if j > endID {
			j = endID
		}
		rs, err := ts.RecordSetByID(i, j)
		if err != nil {
			return err
		}
		raw := rs.Bytes()
		for k := 0; k < rs.Len(); k += 100 {
			n := rs.Len() - k
			if n > 100 {
				n = 100
			}
			out.WriteString(strconv.FormatUint(i+uint64(k), 10))
			out.WriteString(structure.StructsToString(raw[k*structure.Size():], n, ",", "\n"))
			out.WriteByte('\n')
		}
	}
	return nil
}

func resolveRange(ts *tsdb.Timeseries, start, end int64) (uint64, uint64, bool, error) {
	if start > end {
		return 0, 0, false, fmt.Errorf("start timestamp cannot be greater than end timestamp")
	}
	startID, ok, err := ts.RecordIDGE(start)
	if err != nil {
		return 0, 0, false, err
	}
	if !ok {
		return 0, 0, false, fmt.Errorf("the start timestamp is greater than the last record in the timeseries")
	}
	if _, ok, err = ts.RecordIDLE(end); err != nil {
		return 0, 0, false, err
	} else if !ok {
		return 0, 0, false, fmt.Errorf("the end timestamp was less than the first record in the timeseries")
	}

	endID, ok, err := ts.RecordIDGE(end + 1)
	if err != nil {
		return 0, 0, false, err
	}
	if ok {
		endID--
	} else {
		n, err := ts.Count()
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

// parseISOBasic parses YYYYMMDDThhmmss with optional fractional seconds
// into a millisecond timestamp.
func parseISOBasic(s string) (int64, error) {
	for _, layout := range []string{"20060102T150405.999", "20060102T150405"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("invalid date %q", s)
}
