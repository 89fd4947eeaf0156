// Package protocol implements the wire format: frames, the textual command
// grammar, and responses.
package protocol

import (
	"encoding/binary"
	"io"

	"github.com/calderadb/caldera/common"
)

// Frame type tags. BinaryCommand wraps a tagged Command/Response union;
// Command and Response wrap raw textual payloads.
const (
	FrameBinaryCommand byte = 0x01
	FrameCommand       byte = 0x02
	FrameResponse      byte = 0x03
)

// MaxPayload bounds a single frame's payload. A length beyond this is
// rejected as ErrInvalidFrame before any allocation happens.
const MaxPayload = 1 << 20 // 1 MiB

// Frame is one length-prefixed unit on the wire: a 1-byte type, a 4-byte
// LE length, then that many payload bytes.
type Frame struct {
	Type    byte
	Payload []byte
}

// ReadFrame reads one frame from r.
func ReadFrame(r io.Reader) (*Frame, error) {
	var header [5]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	typ := header[0]
	if typ != FrameBinaryCommand && typ != FrameCommand && typ != FrameResponse {
		return nil, common.ErrInvalidFrame
	}

	length := binary.LittleEndian.Uint32(header[1:5])
	if length > MaxPayload {
		return nil, common.ErrInvalidFrame
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return &Frame{Type: typ, Payload: payload}, nil
}

// WriteFrame writes f to w.
func WriteFrame(w io.Writer, f *Frame) error {
	if len(f.Payload) > MaxPayload {
		return common.ErrInvalidFrame
	}

	header := make([]byte, 5)
	header[0] = f.Type
	binary.LittleEndian.PutUint32(header[1:5], uint32(len(f.Payload)))

	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(f.Payload)
	return err
}
