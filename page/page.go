// Package page implements the fixed-size disk page and the slotted-record
// layout used to pack variable-length entries inside one.
package page

import (
	"encoding/binary"

	"github.com/calderadb/caldera/common"
)

// Size is the fixed on-disk page size. Every page, dirty or not, serializes
// to exactly this many bytes.
const Size = 4096

// HeaderSize is the length of the fixed page header: a page id followed by
// a record count, both little-endian uint32.
const HeaderSize = 8

// Page is one fixed-size slot of the heap file: an id, a record count used
// by callers that pack multiple records per page, and a payload buffer.
// Page does not know how its payload is structured; that is the job of the
// B-tree node codec or SlottedPage.
type Page struct {
	id          uint32
	recordCount uint32
	data        [Size - HeaderSize]byte

	dirty   bool
	pins    int
}

// New allocates a zeroed page with the given id.
func New(id uint32) *Page {
	return &Page{id: id}
}

func (p *Page) ID() uint32          { return p.id }
func (p *Page) RecordCount() uint32 { return p.recordCount }
func (p *Page) SetRecordCount(n uint32) { p.recordCount = n; p.dirty = true }
func (p *Page) IsDirty() bool       { return p.dirty }
func (p *Page) MarkDirty()          { p.dirty = true }
func (p *Page) ClearDirty()         { p.dirty = false }

// Payload returns the mutable region after the header. Callers that write
// through this slice must call MarkDirty themselves.
func (p *Page) Payload() []byte { return p.data[:] }

// Pin/Unpin are advisory reference counts used by the buffer pool to avoid
// evicting (in a pool that did evict) a page mid-use. Unpinning an unpinned
// page is a caller bug, not a recoverable condition.
func (p *Page) Pin() { p.pins++ }

func (p *Page) Unpin() error {
	if p.pins == 0 {
		return &common.ErrInvalidOperation{Msg: "unpin of unpinned page"}
	}
	p.pins--
	return nil
}

func (p *Page) IsPinned() bool { return p.pins > 0 }

// Serialize renders the page as exactly Size bytes: 4-byte id, 4-byte
// record count, then the raw payload.
func (p *Page) Serialize() []byte {
	buf := make([]byte, Size)
	binary.LittleEndian.PutUint32(buf[0:4], p.id)
	binary.LittleEndian.PutUint32(buf[4:8], p.recordCount)
	copy(buf[HeaderSize:], p.data[:])
	return buf
}

// Deserialize decodes a page from exactly Size bytes.
func Deserialize(buf []byte) (*Page, error) {
	if len(buf) != Size {
		return nil, &common.ErrInvalidData{Msg: "page buffer is not exactly 4096 bytes"}
	}
	p := &Page{
		id:          binary.LittleEndian.Uint32(buf[0:4]),
		recordCount: binary.LittleEndian.Uint32(buf[4:8]),
	}
	copy(p.data[:], buf[HeaderSize:])
	return p, nil
}
