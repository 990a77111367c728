package tsdb

import (
	"errors"
	"testing"
)

const importSpec = `<?xml version="1.0" encoding="UTF-8" ?>
<dataimport>
<delimparser field_delim=",">
    <tokenfilter tokens="2" comparison="NE" value="USD/JPY" />
    <fieldparser name="_TSDB_timestamp" type="timestamp" tokens="0,1" format_string="%Y/%m/%d %H:%M:%S%F" />
    <fieldparser name="price" type="double" tokens="3" />
    <fieldparser name="side" type="int8" tokens="4" />
</delimparser>
</dataimport>`

func importStructure() *Structure {
	return NewStructure([]Field{
		NewTimestampField("_TSDB_timestamp"),
		NewDoubleField("price"),
		NewInt8Field("side"),
	}, DefaultAlign)
}

func TestParseRecordParserXML(t *testing.T) {
	s := importStructure()
	parser, err := ParseRecordParserXML([]byte(importSpec), s)
	if err != nil {
		t.Fatalf("parse spec: %v", err)
	}

	rec := NewRecord(s)
	ok, err := parser.ParseLine("2010/01/01,01:01:01.100,USD/JPY,87.56,1", rec)
	if err != nil {
		t.Fatalf("parse line: %v", err)
	}
	if !ok {
		t.Fatalf("line should pass the token filter")
	}

	ts, _ := rec.Timestamp()
	if FormatTimestamp(ts) != "2010-01-01T01:01:01.100" {
		t.Fatalf("timestamp = %q", FormatTimestamp(ts))
	}
	if v, _ := rec.Cell(1).Float64(); v != 87.56 {
		t.Fatalf("price = %v", v)
	}
	if v, _ := rec.Cell(2).Int8(); v != 1 {
		t.Fatalf("side = %v", v)
	}
}

func TestTokenFilterDropsLines(t *testing.T) {
	s := importStructure()
	parser, err := ParseRecordParserXML([]byte(importSpec), s)
	if err != nil {
		t.Fatalf("parse spec: %v", err)
	}

	rec := NewRecord(s)
	ok, err := parser.ParseLine("2010/01/01,01:01:01.100,EUR/USD,1.56,0", rec)
	if err != nil {
		t.Fatalf("parse line: %v", err)
	}
	if ok {
		t.Fatalf("EUR/USD line should be filtered out")
	}
}

func TestTimestampParserWithoutFraction(t *testing.T) {
	fp, err := NewTimestampFieldParser([]int{0}, "%Y-%m-%d %H:%M:%S%F", "_TSDB_timestamp")
	if err != nil {
		t.Fatalf("new parser: %v", err)
	}
	s := importStructure()
	if err := fp.bind(s); err != nil {
		t.Fatalf("bind: %v", err)
	}

	rec := NewRecord(s)
	if err := fp.Parse([]string{"2010-01-01 01:01:01"}, rec); err != nil {
		t.Fatalf("parse: %v", err)
	}
	ts, _ := rec.Timestamp()
	if FormatTimestamp(ts) != "2010-01-01T01:01:01.000" {
		t.Fatalf("timestamp = %q", FormatTimestamp(ts))
	}
}

func TestStrptimeLayoutRejectsUnknownDirectives(t *testing.T) {
	if _, err := NewTimestampFieldParser([]int{0}, "%Q", "x"); err == nil {
		t.Fatalf("expected an error for %%Q")
	}
}

func TestRecordParserQuotedTokens(t *testing.T) {
	s := NewStructure([]Field{
		NewTimestampField("_TSDB_timestamp"),
		mustStringField(t, "name", 16),
	}, DefaultAlign)

	parser := NewRecordParser(s)
	tsParser, err := NewTimestampFieldParser([]int{0}, "%Y-%m-%d", "_TSDB_timestamp")
	if err != nil {
		t.Fatalf("timestamp parser: %v", err)
	}
	if err := parser.AddFieldParser(tsParser); err != nil {
		t.Fatalf("add timestamp parser: %v", err)
	}
	if err := parser.AddFieldParser(NewStringFieldParser([]int{1}, "name")); err != nil {
		t.Fatalf("add string parser: %v", err)
	}

	rec := NewRecord(s)
	ok, err := parser.ParseLine(`1970-01-02,"a,quoted"`, rec)
	if err != nil || !ok {
		t.Fatalf("parse: ok=%v err=%v", ok, err)
	}
	if got := rec.Cell(1).String(); got != "a,quoted" {
		t.Fatalf("quoted token = %q", got)
	}
}

func TestRecordParserUnknownField(t *testing.T) {
	parser := NewRecordParser(importStructure())
	if err := parser.AddFieldParser(NewDoubleFieldParser(0, "missing")); !errors.Is(err, ErrFieldMissing) {
		t.Fatalf("expected ErrFieldMissing, got %v", err)
	}
}

func TestParseRecordParserXMLBadType(t *testing.T) {
	bad := `<dataimport><delimparser field_delim=","><fieldparser name="price" type="decimal" tokens="0"/></delimparser></dataimport>`
	if _, err := ParseRecordParserXML([]byte(bad), importStructure()); !errors.Is(err, ErrFieldSpecInvalid) {
		t.Fatalf("expected ErrFieldSpecInvalid, got %v", err)
	}
}
