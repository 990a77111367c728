package tsdb

import (
	"errors"
	"testing"
)

func TestParseFieldType(t *testing.T) {
	cases := []struct {
		in   string
		kind FieldKind
		size int
	}{
		{"Timestamp", KindTimestamp, 8},
		{"Date", KindDate, 4},
		{"Int32", KindInt32, 4},
		{"Int8", KindInt8, 1},
		{"Char", KindChar, 1},
		{"Double", KindDouble, 8},
		{"Record", KindRecordID, 8},
		{"String(13)", KindString, 13},
		{"String(1)", KindString, 1},
	}
	for _, tc := range cases {
		f, err := ParseFieldType("x", tc.in)
		if err != nil {
			t.Fatalf("ParseFieldType(%q): %v", tc.in, err)
		}
		if f.Kind() != tc.kind || f.Size() != tc.size {
			t.Fatalf("ParseFieldType(%q) = kind %v size %d, want kind %v size %d",
				tc.in, f.Kind(), f.Size(), tc.kind, tc.size)
		}
		if f.TypeString() != tc.in {
			t.Fatalf("TypeString round trip: got %q, want %q", f.TypeString(), tc.in)
		}
	}
}

func TestParseFieldTypeInvalid(t *testing.T) {
	for _, in := range []string{"", "int32", "TIMESTAMP", "String", "String()", "String(0)", "String(-1)", "String(x)", "Float", "String(3", "Double "} {
		if _, err := ParseFieldType("x", in); !errors.Is(err, ErrFieldSpecInvalid) {
			t.Fatalf("ParseFieldType(%q): expected ErrFieldSpecInvalid, got %v", in, err)
		}
	}
}

func TestFormatTimestamp(t *testing.T) {
	cases := []struct {
		ts   int64
		want string
	}{
		{0, "1970-01-01T00:00:00.000"},
		{1, "1970-01-01T00:00:00.001"},
		{10_000, "1970-01-01T00:00:10.000"},
		{1_262_307_661_100, "2010-01-01T01:01:01.100"},
	}
	for _, tc := range cases {
		got := FormatTimestamp(tc.ts)
		if got != tc.want {
			t.Fatalf("FormatTimestamp(%d) = %q, want %q", tc.ts, got, tc.want)
		}
		if len(got) != 23 {
			t.Fatalf("FormatTimestamp(%d) has %d characters, want 23", tc.ts, len(got))
		}
	}
}

func TestFormatDate(t *testing.T) {
	cases := []struct {
		days int32
		want string
	}{
		{0, "1970-01-01"},
		{1, "1970-01-02"},
		{14_610, "2010-01-01"},
	}
	for _, tc := range cases {
		if got := FormatDate(tc.days); got != tc.want {
			t.Fatalf("FormatDate(%d) = %q, want %q", tc.days, got, tc.want)
		}
	}
}
