// Command tsdbimport reads a delimited data file and appends its rows onto
// an existing series.
//
// Usage:
//
//	tsdbimport [-config options.yaml] <parse instructions> <in file> <out file> <out series>
//
// The parse instructions are an XML file defining token filters and field
// parsers; its format is described at the top of parser_xml.go in package
// tsdb, and it is loaded with LoadRecordParserXML. Rows
// whose timestamps overlap existing records are discarded with a warning.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/afiedler/tsdb"
)

// batchSize is how many parsed records to accumulate per append.
const batchSize = 10000

func main() {
	configPath := flag.String("config", "", "path to a YAML options file")
	flag.Usage = usage
	flag.Parse()
	args := flag.Args()

	if len(args) != 4 {
		usage()
		os.Exit(1)
	}

	if err := run(*configPath, args[0], args[1], args[2], args[3]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: tsdbimport [-config options.yaml] <parse instructions> <in file> <out file> <out series>")
}

func run(configPath, parserPath, inPath, outPath, seriesName string) error {
	opts := tsdb.DefaultOptions()
	if configPath != "" {
		var err error
		opts, err = tsdb.LoadOptions(configPath)
		if err != nil {
			return err
		}
	}

	f, err := tsdb.OpenFile(outPath, tsdb.ModeReadWrite, opts)
	if err != nil {
		return err
	}
	defer f.Close()

	series, err := f.Series(seriesName)
	if err != nil {
		return err
	}

	parser, err := tsdb.LoadRecordParserXML(parserPath, series.Structure())
	if err != nil {
		return err
	}

	in, err := os.Open(inPath)
	if err != nil {
		return err
	}
	defer in.Close()

	var (
		scanner   = bufio.NewScanner(in)
		batch     = tsdb.NewRecordSet(batchSize, series.Structure())
		filled    = 0
		imported  = 0
		discarded = 0
		filtered  = 0
		lineNo    = 0
	)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	flush := func() error {
		if filled == 0 {
			return nil
		}
		part, err := batch.Slice(0, filled)
		if err != nil {
			return err
		}
		n, err := series.AppendRecordSet(part, true)
		if err != nil {
			return err
		}
		if n > 0 {
			slog.Warn("discarded overlapping records", "count", n)
			discarded += n
		}
		imported += filled - n
		filled = 0
		return nil
	}

	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}
		rec, err := batch.Record(filled)
		if err != nil {
			return err
		}
		ok, err := parser.ParseLine(line, rec)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		if !ok {
			filtered++
			continue
		}
		filled++
		if filled == batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if err := flush(); err != nil {
		return err
	}

	fmt.Printf("Imported %d records (%d filtered, %d discarded as overlapping).\n", imported, filtered, discarded)
	return f.Close()
}
