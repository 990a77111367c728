package tsdb

import (
	"bytes"
	"encoding/binary"
	"math"
	"strconv"
)

// Cell is a typed view over one field of a record. It reads and writes the
// field through the conversions supported by the field's kind; anything
// outside the supported matrix fails with ErrTypeConversion.
type Cell struct {
	ref  BlockRef
	kind FieldKind
	size int
}

// NewCell creates a cell over ref with the given kind and size.
func NewCell(ref BlockRef, kind FieldKind, size int) Cell {
	return Cell{ref: ref, kind: kind, size: size}
}

// Kind returns the cell's field kind.
func (c Cell) Kind() FieldKind {
	return c.kind
}

func (c Cell) bytes() []byte {
	return c.ref.Slice(c.size)
}

func (c Cell) readInt8() int8 {
	return int8(c.bytes()[0])
}

func (c Cell) readInt32() int32 {
	return int32(binary.LittleEndian.Uint32(c.bytes()))
}

func (c Cell) readInt64() int64 {
	return int64(binary.LittleEndian.Uint64(c.bytes()))
}

func (c Cell) readUint64() uint64 {
	return binary.LittleEndian.Uint64(c.bytes())
}

func (c Cell) readFloat64() float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(c.bytes()))
}

func (c Cell) writeInt8(v int8) {
	c.bytes()[0] = byte(v)
}

func (c Cell) writeInt32(v int32) {
	binary.LittleEndian.PutUint32(c.bytes(), uint32(v))
}

func (c Cell) writeInt64(v int64) {
	binary.LittleEndian.PutUint64(c.bytes(), uint64(v))
}

func (c Cell) writeUint64(v uint64) {
	binary.LittleEndian.PutUint64(c.bytes(), v)
}

func (c Cell) writeFloat64(v float64) {
	binary.LittleEndian.PutUint64(c.bytes(), math.Float64bits(v))
}

// Float64 reads the cell as a double. Double, Int32, Int8, Timestamp and
// Date cells widen to float64.
func (c Cell) Float64() (float64, error) {
	switch c.kind {
	case KindDouble:
		return c.readFloat64(), nil
	case KindInt32:
		return float64(c.readInt32()), nil
	case KindInt8:
		return float64(c.readInt8()), nil
	case KindTimestamp:
		return float64(c.readInt64()), nil
	case KindDate:
		return float64(c.readInt32()), nil
	}
	return 0, newConversionError(c.kind.String(), KindDouble, "")
}

// Int32 reads the cell as a 32-bit integer. Int32, Int8 and Date cells
// convert.
func (c Cell) Int32() (int32, error) {
	switch c.kind {
	case KindInt32, KindDate:
		return c.readInt32(), nil
	case KindInt8:
		return int32(c.readInt8()), nil
	}
	return 0, newConversionError(c.kind.String(), KindInt32, "")
}

// Int8 reads the cell as an 8-bit integer. Only Int8 cells convert.
func (c Cell) Int8() (int8, error) {
	if c.kind != KindInt8 {
		return 0, newConversionError(c.kind.String(), KindInt8, "")
	}
	return c.readInt8(), nil
}

// Char reads the cell as a byte. Only Char cells convert.
func (c Cell) Char() (byte, error) {
	if c.kind != KindChar {
		return 0, newConversionError(c.kind.String(), KindChar, "")
	}
	return c.bytes()[0], nil
}

// Timestamp reads the cell as a millisecond timestamp. Timestamp cells read
// directly; Date cells convert to the timestamp at 00:00 on that day.
func (c Cell) Timestamp() (int64, error) {
	switch c.kind {
	case KindTimestamp:
		return c.readInt64(), nil
	case KindDate:
		return int64(c.readInt32()) * millisPerDay, nil
	}
	return 0, newConversionError(c.kind.String(), KindTimestamp, "")
}

// Date reads the cell as a day count. Only Date cells convert.
func (c Cell) Date() (int32, error) {
	if c.kind != KindDate {
		return 0, newConversionError(c.kind.String(), KindDate, "")
	}
	return c.readInt32(), nil
}

// RecordID reads the cell as a record id. Only RecordID cells convert.
func (c Cell) RecordID() (uint64, error) {
	if c.kind != KindRecordID {
		return 0, newConversionError(c.kind.String(), KindRecordID, "")
	}
	return c.readUint64(), nil
}

// String renders the cell's value with its default formatting: timestamps
// and dates as ISO strings, integers and record ids as decimals, doubles in
// shortest round-trip form, strings trimmed at the first NUL.
func (c Cell) String() string {
	if !c.ref.valid() {
		return "Undef"
	}
	switch c.kind {
	case KindTimestamp:
		return FormatTimestamp(c.readInt64())
	case KindDate:
		return FormatDate(c.readInt32())
	case KindDouble:
		return formatFloat(c.readFloat64())
	case KindInt32:
		return strconv.FormatInt(int64(c.readInt32()), 10)
	case KindInt8:
		return strconv.FormatInt(int64(c.readInt8()), 10)
	case KindChar:
		return string(c.bytes()[:1])
	case KindRecordID:
		return strconv.FormatUint(c.readUint64(), 10)
	case KindString:
		return trimAtNul(c.bytes())
	}
	return "Undef"
}

// SetFloat64 assigns a double to the cell. Double cells store it directly.
// Int32 and Int8 cells drop the fractional part and reject values outside
// their representable range.
func (c Cell) SetFloat64(v float64) error {
	switch c.kind {
	case KindDouble:
		c.writeFloat64(v)
		return nil
	case KindInt32:
		if v > 2147483647.0 || v < -2147483647.0 {
			return newConversionError("Double", KindInt32, "value out of bounds")
		}
		c.writeInt32(int32(v))
		return nil
	case KindInt8:
		if v > 127.0 || v < -127.0 {
			return newConversionError("Double", KindInt8, "value out of bounds")
		}
		c.writeInt8(int8(v))
		return nil
	}
	return newConversionError("Double", c.kind, "")
}

// SetInt64 assigns a signed 64-bit integer. Only Timestamp cells accept it.
func (c Cell) SetInt64(v int64) error {
	if c.kind != KindTimestamp {
		return newConversionError("Int64", c.kind, "")
	}
	c.writeInt64(v)
	return nil
}

// SetInt32 assigns a 32-bit integer. Int32, Date and Double cells store the
// value; Int8 cells reject values outside [-127, 127]; Timestamp cells treat
// the value as a day count and store the timestamp at 00:00 on that day.
func (c Cell) SetInt32(v int32) error {
	switch c.kind {
	case KindInt32, KindDate:
		c.writeInt32(v)
		return nil
	case KindInt8:
		if v > 127 || v < -127 {
			return newConversionError("Int32", KindInt8, "value out of bounds")
		}
		c.writeInt8(int8(v))
		return nil
	case KindTimestamp:
		c.writeInt64(int64(v) * millisPerDay)
		return nil
	case KindDouble:
		c.writeFloat64(float64(v))
		return nil
	}
	return newConversionError("Int32", c.kind, "")
}

// SetInt8 assigns an 8-bit integer. Int8, Int32, Double and Char cells
// accept it; for Char the bit pattern is stored as the character.
func (c Cell) SetInt8(v int8) error {
	switch c.kind {
	case KindInt8:
		c.writeInt8(v)
		return nil
	case KindInt32:
		c.writeInt32(int32(v))
		return nil
	case KindDouble:
		c.writeFloat64(float64(v))
		return nil
	case KindChar:
		c.bytes()[0] = byte(v)
		return nil
	}
	return newConversionError("Int8", c.kind, "")
}

// SetChar assigns a byte. Only Char cells accept it.
func (c Cell) SetChar(b byte) error {
	if c.kind != KindChar {
		return newConversionError("Char", c.kind, "")
	}
	c.bytes()[0] = b
	return nil
}

// SetTimestamp assigns a millisecond timestamp. Timestamp cells store it
// directly; Double cells widen it.
func (c Cell) SetTimestamp(ts int64) error {
	switch c.kind {
	case KindTimestamp:
		c.writeInt64(ts)
		return nil
	case KindDouble:
		c.writeFloat64(float64(ts))
		return nil
	}
	return newConversionError("Timestamp", c.kind, "")
}

// SetDate assigns a day count. Date and Int32 cells store the count,
// Timestamp cells store the timestamp at 00:00 on that day, and Double
// cells widen it.
func (c Cell) SetDate(days int32) error {
	switch c.kind {
	case KindDate, KindInt32:
		c.writeInt32(days)
		return nil
	case KindTimestamp:
		c.writeInt64(int64(days) * millisPerDay)
		return nil
	case KindDouble:
		c.writeFloat64(float64(days))
		return nil
	}
	return newConversionError("Date", c.kind, "")
}

// SetRecordID assigns a record id. Only RecordID cells accept it.
func (c Cell) SetRecordID(v uint64) error {
	if c.kind != KindRecordID {
		return newConversionError("Record", c.kind, "")
	}
	c.writeUint64(v)
	return nil
}

// SetString parses s and assigns it. Char cells take the first byte (NUL
// when s is empty); Double, Int32 and Int8 cells parse a number; String
// cells store s truncated or zero-padded to the field size. Parse failures
// and out-of-range numbers fail with ErrTypeConversion.
func (c Cell) SetString(s string) error {
	switch c.kind {
	case KindChar:
		if len(s) > 0 {
			c.bytes()[0] = s[0]
		} else {
			c.bytes()[0] = 0
		}
		return nil
	case KindDouble:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return newConversionError("String", KindDouble, "not a number")
		}
		c.writeFloat64(v)
		return nil
	case KindInt32:
		v, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return newConversionError("String", KindInt32, "not a 32-bit integer")
		}
		c.writeInt32(int32(v))
		return nil
	case KindInt8:
		v, err := strconv.ParseInt(s, 10, 8)
		if err != nil {
			return newConversionError("String", KindInt8, "not an 8-bit integer")
		}
		c.writeInt8(int8(v))
		return nil
	case KindString:
		b := c.bytes()
		for i := range b {
			b[i] = 0
		}
		copy(b, s)
		return nil
	}
	return newConversionError("String", c.kind, "")
}

// formatCell renders raw field bytes with the field's default formatting.
func formatCell(f Field, b []byte) string {
	switch f.Kind() {
	case KindTimestamp:
		return FormatTimestamp(int64(binary.LittleEndian.Uint64(b)))
	case KindDate:
		return FormatDate(int32(binary.LittleEndian.Uint32(b)))
	case KindDouble:
		return formatFloat(math.Float64frombits(binary.LittleEndian.Uint64(b)))
	case KindInt32:
		return strconv.FormatInt(int64(int32(binary.LittleEndian.Uint32(b))), 10)
	case KindInt8:
		return strconv.FormatInt(int64(int8(b[0])), 10)
	case KindChar:
		return string(b[:1])
	case KindRecordID:
		return strconv.FormatUint(binary.LittleEndian.Uint64(b), 10)
	case KindString:
		return trimAtNul(b)
	}
	return "Undef"
}

func trimAtNul(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
