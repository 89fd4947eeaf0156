// Package diskmgr is the page-aligned disk I/O layer: it allocates page ids
// and reads/writes fixed-size pages to a single heap file. It does no
// caching; that is bufpool's job.
package diskmgr

import (
	"encoding/binary"
	"os"
	"sync"

	"github.com/calderadb/caldera/common"
	"github.com/calderadb/caldera/page"
)

// metaPageID is reserved for the allocator's own bookkeeping and never
// handed out to callers.
const metaPageID uint32 = 0

// metaMagic tags a freshly formatted heap file so Open can tell a zero-length
// file from one whose metadata page was never written.
const metaMagic uint32 = 0x43414c44 // "CALD"

// Manager owns the heap file. The next page id is persisted in the
// metadata page so a restart cannot hand out an id already on disk — the
// teacher's equivalent in-memory-only counter loses this guarantee across a
// process restart.
type Manager struct {
	mu   sync.Mutex
	file *os.File

	nextPageID uint32
	rootPageID uint32
}

// Open creates or reopens a heap file at path. A new file is formatted with
// a metadata page reserving page id 0 and starting allocation at 1.
func Open(path string) (*Manager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, &common.ErrIO{Cause: err}
	}

	m := &Manager{file: f}

	info, err := f.Stat()
	if err != nil {
		return nil, &common.ErrIO{Cause: err}
	}

	if info.Size() == 0 {
		m.nextPageID = 1
		m.rootPageID = 0 // no root yet; btree.Open allocates one on first use
		if err := m.writeMeta(); err != nil {
			return nil, err
		}
		return m, nil
	}

	if err := m.readMeta(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) readMeta() error {
	buf := make([]byte, page.Size)
	if _, err := m.file.ReadAt(buf, 0); err != nil {
		return &common.ErrIO{Cause: err}
	}
	p, err := page.Deserialize(buf)
	if err != nil {
		return err
	}
	payload := p.Payload()
	if binary.LittleEndian.Uint32(payload[0:4]) != metaMagic {
		return &common.ErrInvalidData{Msg: "heap file missing metadata magic"}
	}
	m.nextPageID = binary.LittleEndian.Uint32(payload[4:8])
	m.rootPageID = binary.LittleEndian.Uint32(payload[8:12])
	return nil
}

func (m *Manager) writeMeta() error {
	p := page.New(metaPageID)
	payload := p.Payload()
	binary.LittleEndian.PutUint32(payload[0:4], metaMagic)
	binary.LittleEndian.PutUint32(payload[4:8], m.nextPageID)
	binary.LittleEndian.PutUint32(payload[8:12], m.rootPageID)
	_, err := m.file.WriteAt(p.Serialize(), 0)
	if err != nil {
		return &common.ErrIO{Cause: err}
	}
	return nil
}

// RootPageID returns the persisted root page id, or 0 if the tree has no
// root yet.
func (m *Manager) RootPageID() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rootPageID
}

// SetRootPageID persists a new root page id.
func (m *Manager) SetRootPageID(id uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rootPageID = id
	return m.writeMeta()
}

// AllocatePage reserves and returns the next page id, persisting the
// updated high-water mark before returning it so a crash right after never
// reissues an id already handed out, and writes a zeroed block at the new
// id's offset.
func (m *Manager) AllocatePage() (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextPageID
	m.nextPageID++
	if err := m.writeMeta(); err != nil {
		m.nextPageID--
		return 0, err
	}
	if _, err := m.file.WriteAt(make([]byte, page.Size), int64(id)*page.Size); err != nil {
		return 0, &common.ErrIO{Cause: err}
	}
	return id, nil
}

// FreePage zero-fills the block for id and flushes it to disk. It does not
// recycle the id; AllocatePage never hands out a freed id again. id must be
// one already handed out by AllocatePage, else ErrInvalidPage.
func (m *Manager) FreePage(id uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id == metaPageID || id >= m.nextPageID {
		return common.ErrInvalidPage
	}

	zero := make([]byte, page.Size)
	off := int64(id) * page.Size
	if _, err := m.file.WriteAt(zero, off); err != nil {
		return &common.ErrIO{Cause: err}
	}
	if err := m.file.Sync(); err != nil {
		return &common.ErrIO{Cause: err}
	}
	return nil
}

// ReadPage reads the page with the given id from the heap file.
func (m *Manager) ReadPage(id uint32) (*page.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id == metaPageID {
		return nil, &common.ErrInvalidData{Msg: "page 0 is reserved for metadata"}
	}

	buf := make([]byte, page.Size)
	off := int64(id) * page.Size
	if _, err := m.file.ReadAt(buf, off); err != nil {
		return nil, &common.ErrPageNotFound{PageID: id}
	}
	return page.Deserialize(buf)
}

// WritePage writes p to its slot in the heap file, growing the file if
// necessary.
func (m *Manager) WritePage(p *page.Page) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.ID() == metaPageID {
		return &common.ErrInvalidData{Msg: "page 0 is reserved for metadata"}
	}

	off := int64(p.ID()) * page.Size
	if _, err := m.file.WriteAt(p.Serialize(), off); err != nil {
		return &common.ErrIO{Cause: err}
	}
	return nil
}

// Sync flushes the heap file to stable storage.
func (m *Manager) Sync() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.file.Sync(); err != nil {
		return &common.ErrIO{Cause: err}
	}
	return nil
}

// Close releases the underlying file handle.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.file.Close(); err != nil {
		return &common.ErrIO{Cause: err}
	}
	return nil
}
