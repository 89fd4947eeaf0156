package page

import (
	"encoding/binary"

	"github.com/calderadb/caldera/common"
)

// slotSize is the width of one directory entry: a 2-byte record offset and
// a 2-byte record length, both little-endian.
const slotSize = 4

// slottedHeaderSize holds the slot count (2 bytes) and the free-space
// pointer (2 bytes): the offset of the first byte not yet claimed by a
// record at the tail of the payload.
const slottedHeaderSize = 4

// SlottedPage packs variable-length records into a Page's payload. The slot
// directory grows forward from just after the 4-byte slotted header at
// offset 0; records are appended backward from
// the tail of the payload. A slot with length 0 marks a deleted record: the
// slot id stays valid (so other records keep their ids) but GetRecord on it
// fails with ErrDeletedRecord.
type SlottedPage struct {
	buf []byte // the underlying Page's payload, shared, not copied
}

// Wrap adapts an existing page payload (Page.Payload()) as a SlottedPage.
// A freshly zeroed payload is a valid empty SlottedPage: slot count 0, free
// pointer at the end of the buffer.
func Wrap(payload []byte) *SlottedPage {
	sp := &SlottedPage{buf: payload}
	if sp.freePtr() == 0 {
		sp.setFreePtr(uint16(len(payload)))
	}
	return sp
}

func (sp *SlottedPage) numSlots() uint16 {
	return binary.LittleEndian.Uint16(sp.buf[0:2])
}

func (sp *SlottedPage) setNumSlots(n uint16) {
	binary.LittleEndian.PutUint16(sp.buf[0:2], n)
}

func (sp *SlottedPage) freePtr() uint16 {
	return binary.LittleEndian.Uint16(sp.buf[2:4])
}

func (sp *SlottedPage) setFreePtr(p uint16) {
	binary.LittleEndian.PutUint16(sp.buf[2:4], p)
}

func (sp *SlottedPage) slotOffset(id int) int {
	return slottedHeaderSize + id*slotSize
}

func (sp *SlottedPage) readSlot(id int) (offset, length uint16) {
	o := sp.slotOffset(id)
	return binary.LittleEndian.Uint16(sp.buf[o : o+2]), binary.LittleEndian.Uint16(sp.buf[o+2 : o+4])
}

func (sp *SlottedPage) writeSlot(id int, offset, length uint16) {
	o := sp.slotOffset(id)
	binary.LittleEndian.PutUint16(sp.buf[o:o+2], offset)
	binary.LittleEndian.PutUint16(sp.buf[o+2:o+4], length)
}

// NumSlots returns the number of slot directory entries, including deleted
// ones.
func (sp *SlottedPage) NumSlots() int { return int(sp.numSlots()) }

// InsertRecord appends a new record and returns its slot id. It fails with
// ErrPageFull if the directory and the record would collide.
func (sp *SlottedPage) InsertRecord(data []byte) (int, error) {
	n := sp.numSlots()
	dirEnd := sp.slotOffset(int(n)) + slotSize
	newFree := int(sp.freePtr()) - len(data)
	if newFree < dirEnd {
		return 0, common.ErrPageFull
	}
	copy(sp.buf[newFree:], data)
	sp.writeSlot(int(n), uint16(newFree), uint16(len(data)))
	sp.setFreePtr(uint16(newFree))
	sp.setNumSlots(n + 1)
	return int(n), nil
}

// GetRecord returns the bytes stored at slotID.
func (sp *SlottedPage) GetRecord(slotID int) ([]byte, error) {
	if slotID < 0 || slotID >= int(sp.numSlots()) {
		return nil, common.ErrInvalidSlot
	}
	offset, length := sp.readSlot(slotID)
	if length == 0 {
		return nil, common.ErrDeletedRecord
	}
	out := make([]byte, length)
	copy(out, sp.buf[offset:int(offset)+int(length)])
	return out, nil
}

// DeleteRecord marks a slot deleted by zeroing its length. The slot id
// remains reserved: later slot ids are never renumbered.
func (sp *SlottedPage) DeleteRecord(slotID int) error {
	if slotID < 0 || slotID >= int(sp.numSlots()) {
		return common.ErrInvalidSlot
	}
	offset, length := sp.readSlot(slotID)
	if length == 0 {
		return common.ErrDeletedRecord
	}
	sp.writeSlot(slotID, offset, 0)
	return nil
}

// FreeSpace reports the number of bytes available for a new record right
// now, after reserving the directory entry the new record would also need.
func (sp *SlottedPage) FreeSpace() int {
	return int(sp.freePtr()) - (sp.slotOffset(int(sp.numSlots())) + slotSize)
}
