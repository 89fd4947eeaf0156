// Package value implements the tagged-union Value type stored against every
// key in the B-tree, its byte-exact codec, and its arithmetic operations.
package value

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/calderadb/caldera/common"
)

// Kind tags the active variant of a Value.
type Kind byte

const (
	KindNull Kind = iota
	KindInteger
	KindFloat
	KindString
	KindBoolean
)

// Wire tag bytes, fixed by the spec's byte layout.
const (
	tagNull    byte = 0x00
	tagInteger byte = 0x01
	tagFloat   byte = 0x02
	tagString  byte = 0x03
	tagBoolean byte = 0x04
)

// Value is a small closed sum type: Null, Integer, Float, String, Boolean.
// Exactly one field is meaningful for a given Kind.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
	b    bool
}

func Null() Value                { return Value{kind: KindNull} }
func Integer(i int64) Value      { return Value{kind: KindInteger, i: i} }
func Float(f float64) Value      { return Value{kind: KindFloat, f: f} }
func String(s string) Value      { return Value{kind: KindString, s: s} }
func Boolean(b bool) Value       { return Value{kind: KindBoolean, b: b} }

func (v Value) Kind() Kind     { return v.kind }
func (v Value) IsNull() bool   { return v.kind == KindNull }
func (v Value) AsInt() int64   { return v.i }
func (v Value) AsFloat() float64 { return v.f }
func (v Value) AsString() string { return v.s }
func (v Value) AsBool() bool   { return v.b }

// ToString renders a Value the way the expression evaluator and STRLEN/SUBSTR
// need: the textual form of whatever is stored, not a debug dump.
func (v Value) ToString() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindInteger:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	case KindString:
		return v.s
	case KindBoolean:
		if v.b {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

// Serialize encodes v in the byte-exact layout pinned by the spec:
//
//	Null:    0x00
//	Integer: 0x01 + 8 bytes LE two's complement
//	Float:   0x02 + 8 bytes LE IEEE-754
//	String:  0x03 + 4 bytes LE length + UTF-8 bytes
//	Boolean: 0x04 + 1 byte
func (v Value) Serialize() []byte {
	switch v.kind {
	case KindNull:
		return []byte{tagNull}
	case KindInteger:
		buf := make([]byte, 9)
		buf[0] = tagInteger
		binary.LittleEndian.PutUint64(buf[1:], uint64(v.i))
		return buf
	case KindFloat:
		buf := make([]byte, 9)
		buf[0] = tagFloat
		binary.LittleEndian.PutUint64(buf[1:], math.Float64bits(v.f))
		return buf
	case KindString:
		s := []byte(v.s)
		buf := make([]byte, 5+len(s))
		buf[0] = tagString
		binary.LittleEndian.PutUint32(buf[1:5], uint32(len(s)))
		copy(buf[5:], s)
		return buf
	case KindBoolean:
		b := byte(0x00)
		if v.b {
			b = 0x01
		}
		return []byte{tagBoolean, b}
	default:
		return []byte{tagNull}
	}
}

// Deserialize decodes a Value from the front of buf and returns it along
// with the number of bytes consumed. It never reads past the declared
// length; a truncated buffer or unknown tag yields ErrInvalidData.
func Deserialize(buf []byte) (Value, int, error) {
	if len(buf) < 1 {
		return Value{}, 0, &common.ErrInvalidData{Msg: "empty buffer"}
	}

	switch buf[0] {
	case tagNull:
		return Null(), 1, nil
	case tagInteger:
		if len(buf) < 9 {
			return Value{}, 0, &common.ErrInvalidData{Msg: "truncated integer"}
		}
		return Integer(int64(binary.LittleEndian.Uint64(buf[1:9]))), 9, nil
	case tagFloat:
		if len(buf) < 9 {
			return Value{}, 0, &common.ErrInvalidData{Msg: "truncated float"}
		}
		return Float(math.Float64frombits(binary.LittleEndian.Uint64(buf[1:9]))), 9, nil
	case tagString:
		if len(buf) < 5 {
			return Value{}, 0, &common.ErrInvalidData{Msg: "truncated string length"}
		}
		n := binary.LittleEndian.Uint32(buf[1:5])
		end := 5 + int(n)
		if len(buf) < end {
			return Value{}, 0, &common.ErrInvalidData{Msg: "truncated string body"}
		}
		return String(string(buf[5:end])), end, nil
	case tagBoolean:
		if len(buf) < 2 {
			return Value{}, 0, &common.ErrInvalidData{Msg: "truncated boolean"}
		}
		return Boolean(buf[1] != 0), 2, nil
	default:
		return Value{}, 0, &common.ErrInvalidData{Msg: fmt.Sprintf("unknown value tag 0x%02x", buf[0])}
	}
}
