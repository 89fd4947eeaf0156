package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/calderadb/caldera/common"
	"github.com/calderadb/caldera/value"
)

// KV is one key/value pair as carried by a Range response.
type KV struct {
	Key int32
	Val value.Value
}

// ResponseKind tags which variant a Response holds.
type ResponseKind byte

const (
	RespOk    ResponseKind = 0x00
	RespValue ResponseKind = 0x01
	RespRange ResponseKind = 0x02
	RespError ResponseKind = 0x03
	RespPong  ResponseKind = 0x04
	RespSize  ResponseKind = 0x05
)

// Response is the tagged union of everything a command can answer with.
// Exactly one field beyond Kind is meaningful for a given Kind: Value may
// be nil for a Value response representing "no such key" (spec's
// Value(Option<Value>)).
type Response struct {
	Kind  ResponseKind
	Value *value.Value
	Range []KV
	Err   string
	Size  int64
}

func Ok() Response                  { return Response{Kind: RespOk} }
func Pong() Response                { return Response{Kind: RespPong} }
func ValueResp(v *value.Value) Response { return Response{Kind: RespValue, Value: v} }
func RangeResp(kvs []KV) Response   { return Response{Kind: RespRange, Range: kvs} }
func ErrorResp(msg string) Response { return Response{Kind: RespError, Err: msg} }
func SizeResp(n int64) Response     { return Response{Kind: RespSize, Size: n} }

// EncodeBinary renders r as a tagged payload for a FrameBinaryCommand-mode
// response frame: 1-byte kind tag, then the kind's fields.
func (r Response) EncodeBinary() []byte {
	switch r.Kind {
	case RespOk, RespPong:
		return []byte{byte(r.Kind)}

	case RespValue:
		if r.Value == nil {
			return []byte{byte(r.Kind), 0}
		}
		buf := r.Value.Serialize()
		out := make([]byte, 2+len(buf))
		out[0] = byte(r.Kind)
		out[1] = 1
		copy(out[2:], buf)
		return out

	case RespRange:
		out := []byte{byte(r.Kind)}
		countBuf := make([]byte, 4)
		binary.LittleEndian.PutUint32(countBuf, uint32(len(r.Range)))
		out = append(out, countBuf...)
		for _, kv := range r.Range {
			keyBuf := make([]byte, 4)
			binary.LittleEndian.PutUint32(keyBuf, uint32(kv.Key))
			out = append(out, keyBuf...)
			out = append(out, kv.Val.Serialize()...)
		}
		return out

	case RespError:
		out := []byte{byte(r.Kind)}
		lenBuf := make([]byte, 4)
		binary.LittleEndian.PutUint32(lenBuf, uint32(len(r.Err)))
		out = append(out, lenBuf...)
		return append(out, []byte(r.Err)...)

	case RespSize:
		out := make([]byte, 9)
		out[0] = byte(r.Kind)
		binary.LittleEndian.PutUint64(out[1:], uint64(r.Size))
		return out

	default:
		return []byte{byte(RespError)}
	}
}

// DecodeResponse parses a binary-mode response payload produced by
// EncodeBinary.
func DecodeResponse(buf []byte) (Response, error) {
	if len(buf) < 1 {
		return Response{}, &common.ErrInvalidData{Msg: "empty response payload"}
	}
	kind := ResponseKind(buf[0])
	rest := buf[1:]

	switch kind {
	case RespOk:
		return Ok(), nil
	case RespPong:
		return Pong(), nil

	case RespValue:
		if len(rest) < 1 {
			return Response{}, &common.ErrInvalidData{Msg: "truncated value response"}
		}
		if rest[0] == 0 {
			return ValueResp(nil), nil
		}
		v, _, err := value.Deserialize(rest[1:])
		if err != nil {
			return Response{}, err
		}
		return ValueResp(&v), nil

	case RespRange:
		if len(rest) < 4 {
			return Response{}, &common.ErrInvalidData{Msg: "truncated range response"}
		}
		count := binary.LittleEndian.Uint32(rest[0:4])
		off := 4
		kvs := make([]KV, 0, count)
		for i := uint32(0); i < count; i++ {
			if off+4 > len(rest) {
				return Response{}, &common.ErrInvalidData{Msg: "truncated range entry"}
			}
			key := int32(binary.LittleEndian.Uint32(rest[off : off+4]))
			off += 4
			v, consumed, err := value.Deserialize(rest[off:])
			if err != nil {
				return Response{}, err
			}
			off += consumed
			kvs = append(kvs, KV{Key: key, Val: v})
		}
		return RangeResp(kvs), nil

	case RespError:
		if len(rest) < 4 {
			return Response{}, &common.ErrInvalidData{Msg: "truncated error response"}
		}
		n := binary.LittleEndian.Uint32(rest[0:4])
		if uint32(len(rest)-4) < n {
			return Response{}, &common.ErrInvalidData{Msg: "truncated error message"}
		}
		return ErrorResp(string(rest[4 : 4+n])), nil

	case RespSize:
		if len(rest) < 8 {
			return Response{}, &common.ErrInvalidData{Msg: "truncated size response"}
		}
		return SizeResp(int64(binary.LittleEndian.Uint64(rest))), nil

	default:
		return Response{}, &common.ErrInvalidData{Msg: "unknown response kind"}
	}
}

// Text renders r the way raw-mode and the REPL client display it: plain,
// line-oriented, no framing.
func (r Response) Text() string {
	switch r.Kind {
	case RespOk:
		return "OK"
	case RespPong:
		return "PONG"
	case RespValue:
		if r.Value == nil {
			return "(nil)"
		}
		return r.Value.ToString()
	case RespRange:
		s := ""
		for _, kv := range r.Range {
			s += fmt.Sprintf("%d: %s\n", kv.Key, kv.Val.ToString())
		}
		return s
	case RespError:
		return "ERR " + r.Err
	case RespSize:
		return fmt.Sprintf("%d", r.Size)
	default:
		return "ERR unknown response"
	}
}
