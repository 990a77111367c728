// Command tsdbcreate creates a new TSDB file and series, or a new series in
// an existing file.
//
// Usage:
//
//	tsdbcreate [-config options.yaml] <filename> <series> (<field type> <field name>)...
//
// Field types are timestamp, date, int32, int8, double, char, record and
// string(n), case-insensitive. A timestamp field named _TSDB_timestamp is
// prepended to the field list automatically.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/afiedler/tsdb"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML options file")
	flag.Usage = usage
	flag.Parse()
	args := flag.Args()

	if len(args) < 4 {
		fmt.Fprintln(os.Stderr, "One or more fields required.")
		usage()
		os.Exit(1)
	}
	if (len(args)-2)%2 != 0 {
		fmt.Fprintln(os.Stderr, "Each field must have a type and name.")
		usage()
		os.Exit(1)
	}

	if err := run(*configPath, args[0], args[1], args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: tsdbcreate [-config options.yaml] <filename> <series> (<field type> <field name>)...")
}

func run(configPath, filename, series string, fieldArgs []string) error {
	opts := tsdb.DefaultOptions()
	if configPath != "" {
		var err error
		opts, err = tsdb.LoadOptions(configPath)
		if err != nil {
			return err
		}
	}
	// Pack fields tightly for better space utilization.
	opts.Align = 1

	fields := make([]tsdb.FieldSpec, 0, len(fieldArgs)/2)
	for i := 0; i+1 < len(fieldArgs); i += 2 {
		typeString, err := canonicalType(fieldArgs[i])
		if err != nil {
			return err
		}
		fields = append(fields, tsdb.FieldSpec{Name: fieldArgs[i+1], Type: typeString})
	}

	var (
		f   *tsdb.File
		err error
	)
	if _, statErr := os.Stat(filename); statErr == nil {
		f, err = tsdb.OpenFile(filename, tsdb.ModeReadWrite, opts)
	} else {
		f, err = tsdb.CreateFile(filename, false, opts)
	}
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.CreateSeries(series, "", fields); err != nil {
		return err
	}
	return f.Close()
}

// canonicalType maps a case-insensitive command-line type word to the
// canonical type string.
func canonicalType(word string) (string, error) {
	switch strings.ToUpper(word) {
	case "TIMESTAMP":
		return "Timestamp", nil
	case "DATE":
		return "Date", nil
	case "INT32":
		return "Int32", nil
	case "INT8":
		return "Int8", nil
	case "DOUBLE":
		return "Double", nil
	case "CHAR":
		return "Char", nil
	case "RECORD":
		return "Record", nil
	}
	if inner, ok := strings.CutPrefix(strings.ToUpper(word), "STRING("); ok {
		if digits, ok := strings.CutSuffix(inner, ")"); ok {
			return "String(" + digits + ")", nil
		}
	}
	return "", fmt.Errorf("incorrect field type %q", word)
}
