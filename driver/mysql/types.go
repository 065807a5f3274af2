package mysql

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sqlmodel/sqlmodel/sqlval"
)

// MySQL column type codes this module distinguishes. Anything
// unrecognised decodes as text, the same fallback the Postgres driver
// uses.
const (
	typeDecimal   = 0x00
	typeTiny      = 0x01
	typeShort     = 0x02
	typeLong      = 0x03
	typeFloat     = 0x04
	typeDouble    = 0x05
	typeNull      = 0x06
	typeTimestamp = 0x07
	typeLongLong  = 0x08
	typeInt24     = 0x09
	typeDate      = 0x0a
	typeTime      = 0x0b
	typeDatetime  = 0x0c
	typeYear      = 0x0d
	typeNewDate   = 0x0e
	typeVarchar   = 0x0f
	typeBit       = 0x10
	typeJSON      = 0xf5
	typeNewDecimal = 0xf6
	typeEnum      = 0xf7
	typeSet       = 0xf8
	typeTinyBlob  = 0xf9
	typeMediumBlob = 0xfa
	typeLongBlob  = 0xfb
	typeBlob      = 0xfc
	typeVarString = 0xfd
	typeString    = 0xfe
	typeGeometry  = 0xff
)

const flagUnsigned = 0x0020
const flagBinary = 0x0080

type columnDef struct {
	name        string
	columnType  byte
	flags       uint16
	decimals    byte
}

// parseColumnDef41 decodes a ColumnDefinition41 packet, per the
// protocol's column metadata layout used by both the text and binary
// result-set protocols.
func parseColumnDef41(pkt []byte) (columnDef, error) {
	r := newByteReader(pkt)
	if _, err := r.readLenEncString(); err != nil { // catalog
		return columnDef{}, err
	}
	if _, err := r.readLenEncString(); err != nil { // schema
		return columnDef{}, err
	}
	if _, err := r.readLenEncString(); err != nil { // table
		return columnDef{}, err
	}
	if _, err := r.readLenEncString(); err != nil { // org_table
		return columnDef{}, err
	}
	name, err := r.readLenEncString()
	if err != nil {
		return columnDef{}, err
	}
	if _, err := r.readLenEncString(); err != nil { // org_name
		return columnDef{}, err
	}
	if _, err := r.readLenEncInt(); err != nil { // length of fixed fields (0x0c)
		return columnDef{}, err
	}
	if _, err := r.readUint16LE(); err != nil { // charset
		return columnDef{}, err
	}
	if _, err := r.readUint32LE(); err != nil { // column length
		return columnDef{}, err
	}
	colType, err := r.readByte()
	if err != nil {
		return columnDef{}, err
	}
	flags, err := r.readUint16LE()
	if err != nil {
		return columnDef{}, err
	}
	decimals, err := r.readByte()
	if err != nil {
		return columnDef{}, err
	}
	return columnDef{name: name, columnType: colType, flags: flags, decimals: decimals}, nil
}

// decodeTextValue converts a text-protocol result column (itself a
// length-encoded string, or NULL) into a Value given its column type.
func decodeTextValue(col columnDef, raw string, isNull bool) (sqlval.Value, error) {
	if isNull {
		return sqlval.Null(), nil
	}
	switch col.columnType {
	case typeTiny, typeShort, typeLong, typeInt24, typeLongLong, typeYear:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return sqlval.Value{}, fmt.Errorf("mysql: decode int %q: %w", raw, err)
		}
		return intValueForType(col.columnType, n), nil
	case typeFloat:
		f, err := strconv.ParseFloat(raw, 32)
		if err != nil {
			return sqlval.Value{}, fmt.Errorf("mysql: decode float %q: %w", raw, err)
		}
		return sqlval.Float(float32(f)), nil
	case typeDouble:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return sqlval.Value{}, fmt.Errorf("mysql: decode double %q: %w", raw, err)
		}
		return sqlval.Double(f), nil
	case typeDecimal, typeNewDecimal:
		return sqlval.Decimal(raw), nil
	case typeDate:
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return sqlval.Value{}, fmt.Errorf("mysql: decode date %q: %w", raw, err)
		}
		v, _ := sqlval.FromTime(t, sqlval.KindDate)
		return v, nil
	case typeTime:
		t, err := parseMySQLTime(raw)
		if err != nil {
			return sqlval.Value{}, err
		}
		v, _ := sqlval.FromTime(t, sqlval.KindTime)
		return v, nil
	case typeTimestamp, typeDatetime:
		t, err := parseMySQLDatetime(raw)
		if err != nil {
			return sqlval.Value{}, err
		}
		kind := sqlval.KindTimestamp
		if col.columnType == typeTimestamp {
			kind = sqlval.KindTimestampTz
		}
		v, _ := sqlval.FromTime(t, kind)
		return v, nil
	case typeTinyBlob, typeMediumBlob, typeLongBlob, typeBlob:
		return sqlval.Bytes([]byte(raw)), nil
	case typeVarString, typeString, typeVarchar:
		if col.flags&flagBinary != 0 {
			return sqlval.Bytes([]byte(raw)), nil
		}
		return sqlval.Text(raw), nil
	case typeJSON:
		return sqlval.RawJson([]byte(raw)), nil
	default:
		return sqlval.Text(raw), nil
	}
}

func intValueForType(columnType byte, n int64) sqlval.Value {
	switch columnType {
	case typeTiny:
		return sqlval.TinyInt(int8(n))
	case typeShort, typeYear:
		return sqlval.SmallInt(int16(n))
	case typeLong, typeInt24:
		return sqlval.Int(int32(n))
	default:
		return sqlval.BigInt(n)
	}
}

func parseMySQLTime(s string) (time.Time, error) {
	layouts := []string{"-15:04:05.999999", "-15:04:05", "15:04:05.999999", "15:04:05"}
	var lastErr error
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, fmt.Errorf("mysql: parse time %q: %w", s, lastErr)
}

func parseMySQLDatetime(s string) (time.Time, error) {
	layouts := []string{"2006-01-02 15:04:05.999999", "2006-01-02 15:04:05", "2006-01-02"}
	var lastErr error
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, fmt.Errorf("mysql: parse datetime %q: %w", s, lastErr)
}

// decodeBinaryValue decodes one column of a binary-protocol
// (COM_STMT_EXECUTE result) row, advancing r past the value.
func decodeBinaryValue(col columnDef, r *byteReader) (sqlval.Value, error) {
	switch col.columnType {
	case typeTiny:
		b, err := r.readByte()
		if err != nil {
			return sqlval.Value{}, err
		}
		if col.flags&flagUnsigned != 0 {
			return sqlval.SmallInt(int16(b)), nil
		}
		return sqlval.TinyInt(int8(b)), nil
	case typeShort, typeYear:
		v, err := r.readUint16LE()
		if err != nil {
			return sqlval.Value{}, err
		}
		return sqlval.SmallInt(int16(v)), nil
	case typeLong, typeInt24:
		v, err := r.readUint32LE()
		if err != nil {
			return sqlval.Value{}, err
		}
		if col.flags&flagUnsigned != 0 {
			return sqlval.BigInt(int64(v)), nil
		}
		return sqlval.Int(int32(v)), nil
	case typeLongLong:
		v, err := r.readUint64LE()
		if err != nil {
			return sqlval.Value{}, err
		}
		return sqlval.BigInt(int64(v)), nil
	case typeFloat:
		b, err := r.readN(4)
		if err != nil {
			return sqlval.Value{}, err
		}
		return sqlval.Float(math.Float32frombits(binary.LittleEndian.Uint32(b))), nil
	case typeDouble:
		b, err := r.readN(8)
		if err != nil {
			return sqlval.Value{}, err
		}
		return sqlval.Double(math.Float64frombits(binary.LittleEndian.Uint64(b))), nil
	case typeDecimal, typeNewDecimal:
		s, err := r.readLenEncString()
		if err != nil {
			return sqlval.Value{}, err
		}
		return sqlval.Decimal(s), nil
	case typeDate, typeDatetime, typeTimestamp:
		return decodeBinaryTemporal(col, r)
	case typeTime:
		return decodeBinaryDuration(r)
	case typeTinyBlob, typeMediumBlob, typeLongBlob, typeBlob:
		s, err := r.readLenEncString()
		if err != nil {
			return sqlval.Value{}, err
		}
		return sqlval.Bytes([]byte(s)), nil
	case typeJSON:
		s, err := r.readLenEncString()
		if err != nil {
			return sqlval.Value{}, err
		}
		return sqlval.RawJson([]byte(s)), nil
	default:
		s, err := r.readLenEncString()
		if err != nil {
			return sqlval.Value{}, err
		}
		if col.flags&flagBinary != 0 {
			return sqlval.Bytes([]byte(s)), nil
		}
		return sqlval.Text(s), nil
	}
}

// decodeBinaryTemporal decodes MYSQL_TIME's variable-length binary
// encoding (0/4/7/11 bytes) for DATE/DATETIME/TIMESTAMP columns.
func decodeBinaryTemporal(col columnDef, r *byteReader) (sqlval.Value, error) {
	n, err := r.readByte()
	if err != nil {
		return sqlval.Value{}, err
	}
	if n == 0 {
		t := time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
		return fromTimeForColumn(col, t)
	}
	year, _ := r.readUint16LE()
	month, _ := r.readByte()
	day, _ := r.readByte()
	hour, minute, second := byte(0), byte(0), byte(0)
	var micros uint32
	if n >= 4 {
		hour, _ = r.readByte()
		minute, _ = r.readByte()
		second, _ = r.readByte()
	}
	if n >= 11 {
		micros, _ = r.readUint32LE()
	}
	t := time.Date(int(year), time.Month(month), int(day), int(hour), int(minute), int(second), int(micros)*1000, time.UTC)
	return fromTimeForColumn(col, t)
}

func fromTimeForColumn(col columnDef, t time.Time) (sqlval.Value, error) {
	switch col.columnType {
	case typeDate:
		return sqlval.FromTime(t, sqlval.KindDate)
	case typeTimestamp:
		return sqlval.FromTime(t, sqlval.KindTimestampTz)
	default:
		return sqlval.FromTime(t, sqlval.KindTimestamp)
	}
}

// decodeBinaryDuration decodes MYSQL_TIME's binary encoding for TIME
// columns (an interval, not a time-of-day, but this module narrows it
// to microseconds-since-midnight the way the text protocol already does).
func decodeBinaryDuration(r *byteReader) (sqlval.Value, error) {
	n, err := r.readByte()
	if err != nil {
		return sqlval.Value{}, err
	}
	if n == 0 {
		return sqlval.Time(0), nil
	}
	isNeg, _ := r.readByte()
	days, _ := r.readUint32LE()
	hour, _ := r.readByte()
	minute, _ := r.readByte()
	second, _ := r.readByte()
	var micros uint32
	if n >= 9 {
		micros, _ = r.readUint32LE()
	}
	total := int64(days)*24*3600*1_000_000 + int64(hour)*3600*1_000_000 + int64(minute)*60*1_000_000 + int64(second)*1_000_000 + int64(micros)
	if isNeg != 0 {
		total = -total
	}
	return sqlval.Time(total), nil
}

// encodeBinaryParam renders a bind parameter for COM_STMT_EXECUTE's
// binary parameter block, returning the column-type byte for the
// per-param type array and the value's binary encoding (empty for
// NULL, which is instead marked in the NULL bitmap by the caller).
func encodeBinaryParam(v sqlval.Value) (typeByte byte, payload []byte, err error) {
	switch v.Kind() {
	case sqlval.KindNull, sqlval.KindDefault:
		return typeNull, nil, nil
	case sqlval.KindBool:
		b, _ := v.AsBool()
		if b {
			return typeTiny, []byte{1}, nil
		}
		return typeTiny, []byte{0}, nil
	case sqlval.KindTinyInt:
		n, _ := v.AsInt64()
		return typeTiny, []byte{byte(int8(n))}, nil
	case sqlval.KindSmallInt:
		n, _ := v.AsInt64()
		return typeShort, le16(uint16(int16(n))), nil
	case sqlval.KindInt:
		n, _ := v.AsInt64()
		return typeLong, le32(uint32(int32(n))), nil
	case sqlval.KindBigInt:
		n, _ := v.AsInt64()
		return typeLongLong, le64(uint64(n)), nil
	case sqlval.KindFloat:
		f, _ := v.AsFloat64()
		return typeFloat, le32(math.Float32bits(float32(f))), nil
	case sqlval.KindDouble:
		f, _ := v.AsFloat64()
		return typeDouble, le64(math.Float64bits(f)), nil
	case sqlval.KindDecimal:
		s, _ := v.AsString()
		return typeNewDecimal, lenEncBytes(s), nil
	case sqlval.KindText:
		s, _ := v.AsString()
		return typeVarString, lenEncBytes(s), nil
	case sqlval.KindBytes:
		b, _ := v.AsBytes()
		return typeBlob, lenEncBytes(string(b)), nil
	case sqlval.KindJson:
		b, _ := v.AsBytes()
		return typeVarString, lenEncBytes(string(b)), nil
	case sqlval.KindUuid:
		u, _ := v.AsUuid()
		return typeVarString, lenEncBytes(u.String()), nil
	case sqlval.KindDate:
		t, _ := v.AsTime()
		return typeVarString, lenEncBytes(t.Format("2006-01-02")), nil
	case sqlval.KindTime:
		t, _ := v.AsTime()
		return typeVarString, lenEncBytes(t.Format("15:04:05.999999")), nil
	case sqlval.KindTimestamp, sqlval.KindTimestampTz:
		t, _ := v.AsTime()
		return typeVarString, lenEncBytes(t.UTC().Format("2006-01-02 15:04:05.999999")), nil
	case sqlval.KindArray:
		arr, _ := v.AsArray()
		parts := make([]string, len(arr))
		for i, e := range arr {
			parts[i] = e.String()
		}
		return typeVarString, lenEncBytes(strings.Join(parts, ",")), nil
	default:
		return 0, nil, fmt.Errorf("mysql: cannot encode value of kind %s", v.Kind())
	}
}

func le16(v uint16) []byte { return []byte{byte(v), byte(v >> 8)} }
func le32(v uint32) []byte { return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)} }
func le64(v uint64) []byte {
	out := make([]byte, 8)
	for i := 0; i < 8; i++ {
		out[i] = byte(v >> (8 * i))
	}
	return out
}

func lenEncBytes(s string) []byte {
	b := make([]byte, 0, len(s)+9)
	switch {
	case len(s) < 0xfb:
		b = append(b, byte(len(s)))
	case len(s) <= 0xffff:
		b = append(b, 0xfc, byte(len(s)), byte(len(s)>>8))
	case len(s) <= 0xffffff:
		b = append(b, 0xfd, byte(len(s)), byte(len(s)>>8), byte(len(s)>>16))
	default:
		b = append(b, 0xfe)
		for i := 0; i < 8; i++ {
			b = append(b, byte(uint64(len(s))>>(8*i)))
		}
	}
	return append(b, s...)
}
