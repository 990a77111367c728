package tsdb

import (
	"encoding/xml"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// The import tool describes its parser in an XML file:
//
//	<?xml version="1.0" encoding="UTF-8" ?>
//	<dataimport>
//	<delimparser field_delim=",">
//	    <tokenfilter tokens="2" comparison="NE" value="USD/JPY" />
//	    <fieldparser name="_TSDB_timestamp" type="timestamp" tokens="0,1" format_string="%Y/%m/%d %H:%M:%S%F" />
//	    <fieldparser name="price" type="double" tokens="3" />
//	</delimparser>
//	</dataimport>
//
// Token indexes count from zero. Filters run in file order; a filter that
// evaluates true drops the line.

type xmlDataImport struct {
	XMLName     xml.Name       `xml:"dataimport"`
	DelimParser xmlDelimParser `xml:"delimparser"`
}

type xmlDelimParser struct {
	FieldDelim   string           `xml:"field_delim,attr"`
	SimpleParse  bool             `xml:"simple_parse,attr"`
	TokenFilters []xmlTokenFilter `xml:"tokenfilter"`
	FieldParsers []xmlFieldParser `xml:"fieldparser"`
}

type xmlTokenFilter struct {
	Tokens     string `xml:"tokens,attr"`
	Comparison string `xml:"comparison,attr"`
	Value      string `xml:"value,attr"`
}

type xmlFieldParser struct {
	Name         string `xml:"name,attr"`
	Type         string `xml:"type,attr"`
	Tokens       string `xml:"tokens,attr"`
	FormatString string `xml:"format_string,attr"`
}

// LoadRecordParserXML builds a RecordParser for structure from an XML
// parser definition file.
func LoadRecordParserXML(path string, structure *Structure) (*RecordParser, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseRecordParserXML(raw, structure)
}

// ParseRecordParserXML builds a RecordParser for structure from raw XML.
func ParseRecordParserXML(raw []byte, structure *Structure) (*RecordParser, error) {
	var doc xmlDataImport
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse import definition: %w", err)
	}

	parser := NewRecordParser(structure)
	if doc.DelimParser.FieldDelim != "" {
		parser.SetDelimiter(doc.DelimParser.FieldDelim)
	}
	parser.SetSimpleParse(doc.DelimParser.SimpleParse)

	for _, tf := range doc.DelimParser.TokenFilters {
		tokens, err := parseTokenList(tf.Tokens)
		if err != nil {
			return nil, err
		}
		filter, err := NewTokenFilter(tokens, tf.Comparison, tf.Value)
		if err != nil {
			return nil, err
		}
		parser.AddTokenFilter(filter)
	}

	for _, fp := range doc.DelimParser.FieldParsers {
		tokens, err := parseTokenList(fp.Tokens)
		if err != nil {
			return nil, err
		}
		if len(tokens) == 0 {
			return nil, fmt.Errorf("field parser %q has no tokens", fp.Name)
		}

		var built FieldParser
		switch strings.ToLower(fp.Type) {
		case "timestamp":
			built, err = NewTimestampFieldParser(tokens, fp.FormatString, fp.Name)
			if err != nil {
				return nil, err
			}
		case "double":
			built = NewDoubleFieldParser(tokens[0], fp.Name)
		case "int32":
			built = NewInt32FieldParser(tokens[0], fp.Name)
		case "int8":
			built = NewInt8FieldParser(tokens[0], fp.Name)
		case "char":
			built = NewCharFieldParser(tokens[0], fp.Name)
		case "string":
			built = NewStringFieldParser(tokens, fp.Name)
		default:
			return nil, fmt.Errorf("%w: field parser type %q", ErrFieldSpecInvalid, fp.Type)
		}
		if err := parser.AddFieldParser(built); err != nil {
			return nil, err
		}
	}

	return parser, nil
}

func parseTokenList(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	tokens := make([]int, len(parts))
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid token index %q", part)
		}
		tokens[i] = n
	}
	return tokens, nil
}
