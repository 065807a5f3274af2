package postgres

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sqlmodel/sqlmodel/sqlval"
)

// Well-known PostgreSQL OIDs this driver decodes. Unknown OIDs decode
// as text.
const (
	oidBool        = 16
	oidBytea       = 17
	oidInt8        = 20
	oidInt2        = 21
	oidInt4        = 23
	oidText        = 25
	oidJson        = 114
	oidFloat4      = 700
	oidFloat8      = 701
	oidUnknown     = 705
	oidVarchar     = 1043
	oidDate        = 1082
	oidTime        = 1083
	oidTimestamp   = 1114
	oidTimestampTz = 1184
	oidNumeric     = 1700
	oidUuid        = 2950
	oidJsonb       = 3802
)

// typeInfo names a registered OID; arrayability is not separately
// tracked since the builder handles array literals at a higher layer.
type typeInfo struct {
	oid  uint32
	name string
}

var typeRegistry = map[uint32]typeInfo{
	oidBool:        {oidBool, "bool"},
	oidBytea:       {oidBytea, "bytea"},
	oidInt8:        {oidInt8, "int8"},
	oidInt2:        {oidInt2, "int2"},
	oidInt4:        {oidInt4, "int4"},
	oidText:        {oidText, "text"},
	oidJson:        {oidJson, "json"},
	oidFloat4:      {oidFloat4, "float4"},
	oidFloat8:      {oidFloat8, "float8"},
	oidVarchar:     {oidVarchar, "varchar"},
	oidDate:        {oidDate, "date"},
	oidTime:        {oidTime, "time"},
	oidTimestamp:   {oidTimestamp, "timestamp"},
	oidTimestampTz: {oidTimestampTz, "timestamptz"},
	oidNumeric:     {oidNumeric, "numeric"},
	oidUuid:        {oidUuid, "uuid"},
	oidJsonb:       {oidJsonb, "jsonb"},
}

// supportsBinary reports whether the extended query protocol should
// request binary-format decoding for this OID; everything else falls
// back to text.
func supportsBinary(oid uint32) bool {
	switch oid {
	case oidBool, oidInt2, oidInt4, oidInt8, oidFloat4, oidFloat8, oidUuid:
		return true
	default:
		return false
	}
}

// decodeText converts a PostgreSQL text-format column value into a
// Value, given its reported OID.
func decodeText(oid uint32, raw []byte, isNull bool) (sqlval.Value, error) {
	if isNull {
		return sqlval.Null(), nil
	}
	s := string(raw)
	switch oid {
	case oidBool:
		return sqlval.Bool(s == "t"), nil
	case oidInt2:
		n, err := strconv.ParseInt(s, 10, 16)
		return sqlval.SmallInt(int16(n)), wrapConv(err, "int2", s)
	case oidInt4:
		n, err := strconv.ParseInt(s, 10, 32)
		return sqlval.Int(int32(n)), wrapConv(err, "int4", s)
	case oidInt8:
		n, err := strconv.ParseInt(s, 10, 64)
		return sqlval.BigInt(n), wrapConv(err, "int8", s)
	case oidFloat4:
		f, err := strconv.ParseFloat(s, 32)
		return sqlval.Float(float32(f)), wrapConv(err, "float4", s)
	case oidFloat8:
		f, err := strconv.ParseFloat(s, 64)
		return sqlval.Double(f), wrapConv(err, "float8", s)
	case oidNumeric:
		return sqlval.Decimal(s), nil
	case oidBytea:
		return sqlval.Bytes(decodeByteaHex(s)), nil
	case oidJson, oidJsonb:
		return sqlval.RawJson(raw), nil
	case oidUuid:
		u, err := uuid.Parse(s)
		return sqlval.Uuid(u), wrapConv(err, "uuid", s)
	case oidDate:
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return sqlval.Value{}, wrapConv(err, "date", s)
		}
		v, _ := sqlval.FromTime(t, sqlval.KindDate)
		return v, nil
	case oidTime:
		t, err := parsePGTime(s)
		if err != nil {
			return sqlval.Value{}, err
		}
		v, _ := sqlval.FromTime(t, sqlval.KindTime)
		return v, nil
	case oidTimestamp:
		t, err := parsePGTimestamp(s, false)
		if err != nil {
			return sqlval.Value{}, err
		}
		v, _ := sqlval.FromTime(t, sqlval.KindTimestamp)
		return v, nil
	case oidTimestampTz:
		t, err := parsePGTimestamp(s, true)
		if err != nil {
			return sqlval.Value{}, err
		}
		v, _ := sqlval.FromTime(t, sqlval.KindTimestampTz)
		return v, nil
	default:
		return sqlval.Text(s), nil
	}
}

func wrapConv(err error, typ, raw string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("postgres: decode %s %q: %w", typ, raw, err)
}

func decodeByteaHex(s string) []byte {
	if !strings.HasPrefix(s, "\\x") {
		return []byte(s)
	}
	hexPart := s[2:]
	out := make([]byte, len(hexPart)/2)
	for i := range out {
		hi := hexDigit(hexPart[i*2])
		lo := hexDigit(hexPart[i*2+1])
		out[i] = hi<<4 | lo
	}
	return out
}

func hexDigit(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	default:
		return 0
	}
}

func parsePGTime(s string) (time.Time, error) {
	layouts := []string{"15:04:05.999999", "15:04:05"}
	var lastErr error
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, fmt.Errorf("postgres: parse time %q: %w", s, lastErr)
}

func parsePGTimestamp(s string, tz bool) (time.Time, error) {
	layouts := []string{
		"2006-01-02 15:04:05.999999Z07:00",
		"2006-01-02 15:04:05.999999",
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04:05",
	}
	var lastErr error
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			if tz {
				return t.UTC(), nil
			}
			return t, nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, fmt.Errorf("postgres: parse timestamp %q: %w", s, lastErr)
}

// decodeBinary decodes a subset of binary-format values for the OIDs
// supportsBinary allows the extended protocol to request; anything
// else is never asked for in binary and arrives as text instead.
func decodeBinary(oid uint32, raw []byte, isNull bool) (sqlval.Value, error) {
	if isNull {
		return sqlval.Null(), nil
	}
	switch oid {
	case oidBool:
		return sqlval.Bool(len(raw) > 0 && raw[0] != 0), nil
	case oidInt2:
		return sqlval.SmallInt(int16(binary.BigEndian.Uint16(raw))), nil
	case oidInt4:
		return sqlval.Int(int32(binary.BigEndian.Uint32(raw))), nil
	case oidInt8:
		return sqlval.BigInt(int64(binary.BigEndian.Uint64(raw))), nil
	case oidFloat4:
		return sqlval.Float(math.Float32frombits(binary.BigEndian.Uint32(raw))), nil
	case oidFloat8:
		return sqlval.Double(math.Float64frombits(binary.BigEndian.Uint64(raw))), nil
	case oidUuid:
		var u uuid.UUID
		copy(u[:], raw)
		return sqlval.Uuid(u), nil
	default:
		return decodeText(oid, raw, false)
	}
}
