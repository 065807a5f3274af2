// Package sqlval defines the dynamically-typed value and row representations
// shared by every dialect-specific driver in this module.
package sqlval

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the tag of a Value's tagged union.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindTinyInt
	KindSmallInt
	KindInt
	KindBigInt
	KindFloat
	KindDouble
	KindDecimal
	KindText
	KindBytes
	KindDate
	KindTime
	KindTimestamp
	KindTimestampTz
	KindUuid
	KindJson
	KindArray
	// KindDefault marks "use column default" at INSERT time; it never
	// appears as data read back from a driver.
	KindDefault
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "Null"
	case KindBool:
		return "Bool"
	case KindTinyInt:
		return "TinyInt"
	case KindSmallInt:
		return "SmallInt"
	case KindInt:
		return "Int"
	case KindBigInt:
		return "BigInt"
	case KindFloat:
		return "Float"
	case KindDouble:
		return "Double"
	case KindDecimal:
		return "Decimal"
	case KindText:
		return "Text"
	case KindBytes:
		return "Bytes"
	case KindDate:
		return "Date"
	case KindTime:
		return "Time"
	case KindTimestamp:
		return "Timestamp"
	case KindTimestampTz:
		return "TimestampTz"
	case KindUuid:
		return "Uuid"
	case KindJson:
		return "Json"
	case KindArray:
		return "Array"
	case KindDefault:
		return "Default"
	default:
		return "Unknown"
	}
}

// Value is a tagged union over the SQL value space this module speaks.
// The zero Value is Null.
//
// Temporal values carry Gregorian-proleptic meaning: Date is days since
// 1970-01-01, Time is microseconds since midnight, Timestamp is
// microseconds since the Unix epoch, and TimestampTz is normalised to
// UTC before storage.
type Value struct {
	kind  Kind
	b     bool
	i     int64
	f     float64
	s     string // Text, Decimal (canonical string), Custom type name carrier
	bytes []byte
	u     uuid.UUID
	arr   []Value
}

func Null() Value                    { return Value{kind: KindNull} }
func Default() Value                 { return Value{kind: KindDefault} }
func Bool(v bool) Value              { return Value{kind: KindBool, b: v} }
func TinyInt(v int8) Value           { return Value{kind: KindTinyInt, i: int64(v)} }
func SmallInt(v int16) Value         { return Value{kind: KindSmallInt, i: int64(v)} }
func Int(v int32) Value              { return Value{kind: KindInt, i: int64(v)} }
func BigInt(v int64) Value           { return Value{kind: KindBigInt, i: v} }
func Float(v float32) Value          { return Value{kind: KindFloat, f: float64(v)} }
func Double(v float64) Value         { return Value{kind: KindDouble, f: v} }
func Text(v string) Value            { return Value{kind: KindText, s: v} }
func Bytes(v []byte) Value           { return Value{kind: KindBytes, bytes: append([]byte(nil), v...)} }

// Decimal stores a canonical decimal string; the module never performs
// floating-point arithmetic on it.
func Decimal(canonical string) Value { return Value{kind: KindDecimal, s: canonical} }

// Date stores days since 1970-01-01.
func Date(days int32) Value { return Value{kind: KindDate, i: int64(days)} }

// Time stores microseconds since midnight.
func Time(microsSinceMidnight int64) Value { return Value{kind: KindTime, i: microsSinceMidnight} }

// Timestamp stores microseconds since the Unix epoch, naive (no zone).
func Timestamp(microsSinceEpoch int64) Value { return Value{kind: KindTimestamp, i: microsSinceEpoch} }

// TimestampTz stores microseconds since the Unix epoch, UTC-normalised.
func TimestampTz(microsSinceEpoch int64) Value { return Value{kind: KindTimestampTz, i: microsSinceEpoch} }

func Uuid(u uuid.UUID) Value { return Value{kind: KindUuid, u: u} }

// Json stores a parsed JSON document serialised to its canonical bytes.
func Json(doc any) (Value, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return Value{}, fmt.Errorf("sqlval: marshal json value: %w", err)
	}
	return Value{kind: KindJson, bytes: raw}, nil
}

// RawJson wraps already-encoded JSON bytes without re-marshalling.
func RawJson(raw []byte) Value { return Value{kind: KindJson, bytes: append([]byte(nil), raw...)} }

func Array(values []Value) Value { return Value{kind: KindArray, arr: values} }

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

func (v Value) AsInt64() (int64, bool) {
	switch v.kind {
	case KindTinyInt, KindSmallInt, KindInt, KindBigInt:
		return v.i, true
	default:
		return 0, false
	}
}

func (v Value) AsFloat64() (float64, bool) {
	switch v.kind {
	case KindFloat, KindDouble:
		return v.f, true
	default:
		return 0, false
	}
}

func (v Value) AsString() (string, bool) {
	switch v.kind {
	case KindText, KindDecimal:
		return v.s, true
	default:
		return "", false
	}
}

func (v Value) AsBytes() ([]byte, bool) {
	switch v.kind {
	case KindBytes, KindJson:
		return v.bytes, true
	default:
		return nil, false
	}
}

func (v Value) AsUuid() (uuid.UUID, bool) {
	if v.kind != KindUuid {
		return uuid.UUID{}, false
	}
	return v.u, true
}

func (v Value) AsArray() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	return v.arr, true
}

// AsTime renders a Date/Time/Timestamp/TimestampTz Value as a time.Time,
// interpreting Timestamp as UTC (the module never assumes a local zone).
func (v Value) AsTime() (time.Time, bool) {
	switch v.kind {
	case KindDate:
		epoch := time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
		return epoch.AddDate(0, 0, int(v.i)), true
	case KindTime:
		epoch := time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
		return epoch.Add(time.Duration(v.i) * time.Microsecond), true
	case KindTimestamp, KindTimestampTz:
		return time.UnixMicro(v.i).UTC(), true
	default:
		return time.Time{}, false
	}
}

// FromTime widens a time.Time into a Value of the requested Kind.
func FromTime(t time.Time, k Kind) (Value, error) {
	switch k {
	case KindDate:
		epoch := time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
		days := int32(t.UTC().Truncate(24 * time.Hour).Sub(epoch).Hours() / 24)
		return Date(days), nil
	case KindTime:
		midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
		return Time(t.Sub(midnight).Microseconds()), nil
	case KindTimestamp:
		return Timestamp(t.UnixMicro()), nil
	case KindTimestampTz:
		return TimestampTz(t.UTC().UnixMicro()), nil
	default:
		return Value{}, fmt.Errorf("sqlval: %s is not a temporal kind", k)
	}
}

// Equal is structural equality: same tag, same contents. Two Decimal values with different-but-equivalent strings
// (e.g. "1.50" vs "1.5") are NOT equal; canonicalisation is the
// caller's responsibility, matching the "canonical decimal string"
// contract.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull, KindDefault:
		return true
	case KindBool:
		return v.b == other.b
	case KindTinyInt, KindSmallInt, KindInt, KindBigInt, KindDate, KindTime, KindTimestamp, KindTimestampTz:
		return v.i == other.i
	case KindFloat, KindDouble:
		return v.f == other.f
	case KindText, KindDecimal:
		return v.s == other.s
	case KindBytes, KindJson:
		if len(v.bytes) != len(other.bytes) {
			return false
		}
		for i := range v.bytes {
			if v.bytes[i] != other.bytes[i] {
				return false
			}
		}
		return true
	case KindUuid:
		return v.u == other.u
	case KindArray:
		if len(v.arr) != len(other.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(other.arr[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Hash encodes the tag followed by the contents, so that two values of
// different kinds never collide even when their bit patterns would
// otherwise match (e.g. Int(0) vs Bool(false)). Used by the session's
// identity map to key on primary-key value tuples.
func (v Value) Hash() uint64 {
	h := fnvOffset
	h = fnvMix(h, uint64(v.kind))
	switch v.kind {
	case KindBool:
		if v.b {
			h = fnvMix(h, 1)
		} else {
			h = fnvMix(h, 0)
		}
	case KindTinyInt, KindSmallInt, KindInt, KindBigInt, KindDate, KindTime, KindTimestamp, KindTimestampTz:
		h = fnvMix(h, uint64(v.i))
	case KindFloat, KindDouble:
		h = fnvMixBytes(h, []byte(fmt.Sprintf("%g", v.f)))
	case KindText, KindDecimal:
		h = fnvMixBytes(h, []byte(v.s))
	case KindBytes, KindJson:
		h = fnvMixBytes(h, v.bytes)
	case KindUuid:
		h = fnvMixBytes(h, v.u[:])
	case KindArray:
		for _, e := range v.arr {
			h = fnvMix(h, e.Hash())
		}
	}
	return h
}

const (
	fnvOffset = uint64(14695981039346656037)
	fnvPrime  = uint64(1099511628211)
)

func fnvMix(h, x uint64) uint64 {
	h ^= x
	h *= fnvPrime
	return h
}

func fnvMixBytes(h uint64, b []byte) uint64 {
	for _, c := range b {
		h ^= uint64(c)
		h *= fnvPrime
	}
	return h
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "NULL"
	case KindDefault:
		return "DEFAULT"
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindTinyInt, KindSmallInt, KindInt, KindBigInt:
		return fmt.Sprintf("%d", v.i)
	case KindFloat, KindDouble:
		return fmt.Sprintf("%g", v.f)
	case KindText, KindDecimal:
		return v.s
	case KindBytes:
		return fmt.Sprintf("0x%x", v.bytes)
	case KindJson:
		return string(v.bytes)
	case KindUuid:
		return v.u.String()
	case KindArray:
		return fmt.Sprintf("%v", v.arr)
	default:
		return v.kind.String()
	}
}
