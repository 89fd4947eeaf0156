package wal

import (
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"
	"sync"

	"github.com/calderadb/caldera/common"
)

// Log is the append-only transaction log backing one heap file. Every Log
// call writes one framed record and fsyncs before returning, so a record a
// caller has seen succeed is durable.
type Log struct {
	mu       sync.Mutex
	file     *os.File
	sequence uint64
}

// Open creates or reopens the log file at path, continuing its sequence
// counter from whatever records are already on disk.
func Open(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, &common.ErrIO{Cause: err}
	}

	l := &Log{file: f}

	records, err := readAll(f)
	if err != nil {
		return nil, err
	}
	if n := len(records); n > 0 {
		l.sequence = records[n-1].Sequence
	}

	// Resume appending right after the last valid record, so a reopen
	// never overwrites earlier records and a torn tail is written over.
	var end int64
	for _, rec := range records {
		end += int64(len(encode(rec)))
	}
	if _, err := f.Seek(end, io.SeekStart); err != nil {
		return nil, &common.ErrIO{Cause: err}
	}
	return l, nil
}

// Log appends rec, assigning it the next sequence number, and fsyncs the
// file before returning.
func (l *Log) Log(rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sequence++
	rec.Sequence = l.sequence

	buf := encode(rec)
	if _, err := l.file.Write(buf); err != nil {
		return &common.ErrIO{Cause: err}
	}
	if err := l.file.Sync(); err != nil {
		return &common.ErrIO{Cause: err}
	}
	return nil
}

// ReadAll returns every record in the log, in sequence order. It exists for
// integrity checks; no CLI or server command calls it, and the engine
// façade never calls it to recover state.
func (l *Log) ReadAll() ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return readAll(l.file)
}

// Sync flushes the log file to stable storage.
func (l *Log) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.file.Sync(); err != nil {
		return &common.ErrIO{Cause: err}
	}
	return nil
}

// Close releases the underlying file handle.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.file.Close(); err != nil {
		return &common.ErrIO{Cause: err}
	}
	return nil
}

// encode frames rec as sequence(8) + type(1) + payload + crc32(4), the
// crc32 covering everything before it.
func encode(rec Record) []byte {
	payload := encodePayload(rec)

	buf := make([]byte, 8+1+len(payload)+4)
	binary.LittleEndian.PutUint64(buf[0:8], rec.Sequence)
	buf[8] = byte(rec.Type)
	copy(buf[9:], payload)

	sum := crc32.ChecksumIEEE(buf[:9+len(payload)])
	binary.LittleEndian.PutUint32(buf[9+len(payload):], sum)
	return buf
}

func encodePayload(rec Record) []byte {
	switch rec.Type {
	case RecordBegin, RecordCommit, RecordRollback:
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, uint64(rec.TxnID))
		return buf
	case RecordWrite:
		buf := make([]byte, 8+4+2+4+len(rec.Data))
		binary.LittleEndian.PutUint64(buf[0:8], uint64(rec.TxnID))
		binary.LittleEndian.PutUint32(buf[8:12], rec.PageID)
		binary.LittleEndian.PutUint16(buf[12:14], rec.Offset)
		binary.LittleEndian.PutUint32(buf[14:18], uint32(len(rec.Data)))
		copy(buf[18:], rec.Data)
		return buf
	default:
		return nil
	}
}

// readAll parses every complete, checksum-valid record from the start of f.
// A truncated trailing record (a partial write torn by a crash) is not an
// error: it is simply the log's current end.
func readAll(f *os.File) ([]Record, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, &common.ErrIO{Cause: err}
	}

	buf := make([]byte, info.Size())
	if _, err := f.ReadAt(buf, 0); err != nil && len(buf) > 0 {
		return nil, &common.ErrIO{Cause: err}
	}

	var records []Record
	off := 0
	for off < len(buf) {
		rec, consumed, ok := decodeOne(buf[off:])
		if !ok {
			break
		}
		records = append(records, rec)
		off += consumed
	}
	return records, nil
}

// decodeOne decodes one record from the front of buf, returning the record,
// how many bytes it consumed, and whether decoding succeeded. A false ok
// means buf holds a torn or corrupt trailing record.
func decodeOne(buf []byte) (Record, int, bool) {
	if len(buf) < 9 {
		return Record{}, 0, false
	}

	seq := binary.LittleEndian.Uint64(buf[0:8])
	typ := RecordType(buf[8])
	if !validType(typ) {
		return Record{}, 0, false
	}

	payloadLen, ok := payloadLen(typ, buf[9:])
	if !ok {
		return Record{}, 0, false
	}

	total := 9 + payloadLen + 4
	if len(buf) < total {
		return Record{}, 0, false
	}

	sum := crc32.ChecksumIEEE(buf[:9+payloadLen])
	if binary.LittleEndian.Uint32(buf[9+payloadLen:total]) != sum {
		return Record{}, 0, false
	}

	rec := Record{Sequence: seq, Type: typ}
	payload := buf[9 : 9+payloadLen]
	switch typ {
	case RecordBegin, RecordCommit, RecordRollback:
		rec.TxnID = int64(binary.LittleEndian.Uint64(payload))
	case RecordWrite:
		rec.TxnID = int64(binary.LittleEndian.Uint64(payload[0:8]))
		rec.PageID = binary.LittleEndian.Uint32(payload[8:12])
		rec.Offset = binary.LittleEndian.Uint16(payload[12:14])
		dataLen := binary.LittleEndian.Uint32(payload[14:18])
		rec.Data = append([]byte(nil), payload[18:18+dataLen]...)
	}
	return rec, total, true
}

// payloadLen reports how many payload bytes typ's record occupies at the
// front of buf, without yet validating the checksum.
func payloadLen(typ RecordType, buf []byte) (int, bool) {
	switch typ {
	case RecordBegin, RecordCommit, RecordRollback:
		return 8, true
	case RecordWrite:
		if len(buf) < 18 {
			return 0, false
		}
		dataLen := binary.LittleEndian.Uint32(buf[14:18])
		return 18 + int(dataLen), true
	default:
		return 0, false
	}
}
