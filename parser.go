package tsdb

import (
	"fmt"
	"strings"
	"time"
)

// FieldParser parses one or more delimited tokens into a single record
// field.
type FieldParser interface {
	// FieldName returns the destination field.
	FieldName() string

	// Parse writes the parsed token value into the bound field of rec.
	Parse(tokens []string, rec Record) error

	// bind resolves the destination field index against a Structure.
	bind(structure *Structure) error
}

// TokenFilter drops delimited lines before any field parsing. The selected
// tokens are joined with spaces and compared against a constant; a filter
// that evaluates true drops the line.
type TokenFilter struct {
	tokens    []int
	notEqual  bool
	compareTo string
}

// NewTokenFilter creates a filter over the given token indexes. comparison
// is "EQ" or "NE".
func NewTokenFilter(tokens []int, comparison, compareTo string) (*TokenFilter, error) {
	switch comparison {
	case "EQ", "NE":
	default:
		return nil, fmt.Errorf("unknown token filter comparison %q", comparison)
	}
	return &TokenFilter{tokens: tokens, notEqual: comparison == "NE", compareTo: compareTo}, nil
}

// Evaluate reports whether the line should be dropped.
func (f *TokenFilter) Evaluate(tokens []string) bool {
	joined := joinTokens(tokens, f.tokens)
	if f.notEqual {
		return joined != f.compareTo
	}
	return joined == f.compareTo
}

func joinTokens(tokens []string, idx []int) string {
	parts := make([]string, 0, len(idx))
	for _, i := range idx {
		if i < len(tokens) {
			parts = append(parts, tokens[i])
		}
	}
	return strings.Join(parts, " ")
}

// RecordParser turns delimited text lines into records of a Structure.
// Token filters run first, in order; field parsers then write each bound
// field. Lines are split into tokens before the filters run; filtered lines
// skip all field parsing.
type RecordParser struct {
	structure    *Structure
	fieldParsers []FieldParser
	tokenFilters []*TokenFilter

	delim       string
	escape      byte
	quote       byte
	simpleParse bool
	tokenBuf    []string
}

// NewRecordParser creates a parser producing records of structure.
func NewRecordParser(structure *Structure) *RecordParser {
	return &RecordParser{
		structure: structure,
		delim:     ",",
		escape:    '\\',
		quote:     '"',
	}
}

// Structure returns the parser's record layout.
func (p *RecordParser) Structure() *Structure {
	return p.structure
}

// SetDelimiter sets the token delimiter. Default ",".
func (p *RecordParser) SetDelimiter(delim string) {
	p.delim = delim
}

// SetSimpleParse disables quote and escape handling; lines are split on
// the raw delimiter. Faster for files known not to quote fields.
func (p *RecordParser) SetSimpleParse(simple bool) {
	p.simpleParse = simple
}

// AddFieldParser binds a field parser to the record structure.
func (p *RecordParser) AddFieldParser(fp FieldParser) error {
	if err := fp.bind(p.structure); err != nil {
		return err
	}
	p.fieldParsers = append(p.fieldParsers, fp)
	return nil
}

// AddTokenFilter appends a token filter.
func (p *RecordParser) AddTokenFilter(f *TokenFilter) {
	p.tokenFilters = append(p.tokenFilters, f)
}

// ParseLine parses one line into rec. It returns false when a token filter
// dropped the line; rec is unchanged in that case.
func (p *RecordParser) ParseLine(line string, rec Record) (bool, error) {
	tokens := p.tokenize(line)
	for _, f := range p.tokenFilters {
		if f.Evaluate(tokens) {
			return false, nil
		}
	}
	for _, fp := range p.fieldParsers {
		if err := fp.Parse(tokens, rec); err != nil {
			return false, err
		}
	}
	return true, nil
}

// tokenize splits a line into tokens, honoring quote and escape characters
// unless simple parsing is on.
func (p *RecordParser) tokenize(line string) []string {
	if p.simpleParse {
		return strings.Split(line, p.delim)
	}

	p.tokenBuf = p.tokenBuf[:0]
	var (
		b        strings.Builder
		inQuote  bool
		delimLen = len(p.delim)
	)
	for i := 0; i < len(line); i++ {
		ch := line[i]
		switch {
		case ch == p.escape && i+1 < len(line):
			i++
			b.WriteByte(line[i])
		case ch == p.quote:
			inQuote = !inQuote
		case !inQuote && delimLen > 0 && strings.HasPrefix(line[i:], p.delim):
			p.tokenBuf = append(p.tokenBuf, b.String())
			b.Reset()
			i += delimLen - 1
		default:
			b.WriteByte(ch)
		}
	}
	p.tokenBuf = append(p.tokenBuf, b.String())
	return p.tokenBuf
}

// boundField resolves and caches a destination field index.
type boundField struct {
	name  string
	index int
}

func (b *boundField) FieldName() string {
	return b.name
}

func (b *boundField) bind(structure *Structure) error {
	i, err := structure.FieldIndexByName(b.name)
	if err != nil {
		return err
	}
	b.index = i
	return nil
}

// TimestampFieldParser parses one or more tokens, joined with spaces, as a
// formatted timestamp. The format uses strptime-style directives
// (%Y %m %d %H %M %S %F for optional fractional seconds); times are read
// as UTC.
type TimestampFieldParser struct {
	boundField
	tokens []int
	layout string
}

// NewTimestampFieldParser creates a timestamp parser over the given token
// indexes.
func NewTimestampFieldParser(tokens []int, format, fieldName string) (*TimestampFieldParser, error) {
	layout, err := strptimeLayout(format)
	if err != nil {
		return nil, err
	}
	return &TimestampFieldParser{boundField: boundField{name: fieldName}, tokens: tokens, layout: layout}, nil
}

// Parse implements FieldParser.
func (fp *TimestampFieldParser) Parse(tokens []string, rec Record) error {
	joined := joinTokens(tokens, fp.tokens)
	t, err := time.ParseInLocation(fp.layout, joined, time.UTC)
	if err != nil {
		return fmt.Errorf("parse timestamp %q: %w", joined, err)
	}
	return rec.Cell(fp.index).SetInt64(t.UnixMilli())
}

// strptimeLayout converts strptime-style directives to a Go time layout.
func strptimeLayout(format string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		if format[i] != '%' {
			b.WriteByte(format[i])
			continue
		}
		i++
		if i >= len(format) {
			return "", fmt.Errorf("trailing %% in timestamp format %q", format)
		}
		switch format[i] {
		case 'Y':
			b.WriteString("2006")
		case 'y':
			b.WriteString("06")
		case 'm':
			b.WriteString("01")
		case 'd':
			b.WriteString("02")
		case 'H':
			b.WriteString("15")
		case 'M':
			b.WriteString("04")
		case 'S':
			b.WriteString("05")
		case 'F':
			// Optional fractional seconds, dot included.
			b.WriteString(".999")
		case '%':
			b.WriteByte('%')
		default:
			return "", fmt.Errorf("unsupported timestamp directive %%%c", format[i])
		}
	}
	return b.String(), nil
}

// scalarFieldParser parses a single token with Cell.SetString, covering
// double, int32, int8 and char fields.
type scalarFieldParser struct {
	boundField
	token int
}

// Parse implements FieldParser.
func (fp *scalarFieldParser) Parse(tokens []string, rec Record) error {
	var value string
	if fp.token < len(tokens) {
		value = tokens[fp.token]
	}
	return rec.Cell(fp.index).SetString(value)
}

// NewDoubleFieldParser parses a token as a 64-bit float.
func NewDoubleFieldParser(token int, fieldName string) FieldParser {
	return &scalarFieldParser{boundField: boundField{name: fieldName}, token: token}
}

// NewInt32FieldParser parses a token as a 32-bit integer.
func NewInt32FieldParser(token int, fieldName string) FieldParser {
	return &scalarFieldParser{boundField: boundField{name: fieldName}, token: token}
}

// NewInt8FieldParser parses a token as an 8-bit integer.
func NewInt8FieldParser(token int, fieldName string) FieldParser {
	return &scalarFieldParser{boundField: boundField{name: fieldName}, token: token}
}

// NewCharFieldParser parses a token's first byte as a char.
func NewCharFieldParser(token int, fieldName string) FieldParser {
	return &scalarFieldParser{boundField: boundField{name: fieldName}, token: token}
}

// StringFieldParser joins one or more tokens with spaces into a fixed-size
// string field.
type StringFieldParser struct {
	boundField
	tokens []int
}

// NewStringFieldParser creates a string parser over the given token
// indexes.
func NewStringFieldParser(tokens []int, fieldName string) *StringFieldParser {
	return &StringFieldParser{boundField: boundField{name: fieldName}, tokens: tokens}
}

// Parse implements FieldParser.
func (fp *StringFieldParser) Parse(tokens []string, rec Record) error {
	return rec.Cell(fp.index).SetString(joinTokens(tokens, fp.tokens))
}
