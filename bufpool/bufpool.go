// Package bufpool is a bounded, write-through page cache. Unlike the usual
// buffer pool design, it never evicts: once it holds capacity pages, any
// further miss fails with ErrBufferPoolFull until the caller frees one.
package bufpool

import (
	"sync"

	"github.com/calderadb/caldera/common"
	"github.com/calderadb/caldera/diskmgr"
	"github.com/calderadb/caldera/page"
)

// Pool caches pages read from a diskmgr.Manager up to a fixed capacity.
// Every write goes through to disk immediately (write-through); the cache
// only saves on reads.
type Pool struct {
	mu       sync.Mutex
	disk     *diskmgr.Manager
	capacity int
	pages    map[uint32]*page.Page

	stats common.Stats
}

// New creates a pool backed by disk with room for at most capacity pages.
func New(disk *diskmgr.Manager, capacity int) *Pool {
	return &Pool{
		disk:     disk,
		capacity: capacity,
		pages:    make(map[uint32]*page.Page, capacity),
	}
}

// GetPage returns the page for id, reading through to disk on a cache miss.
// A miss against a full pool fails with ErrBufferPoolFull rather than
// evicting something to make room.
func (p *Pool) GetPage(id uint32) (*page.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if pg, ok := p.pages[id]; ok {
		p.stats.CacheHits++
		p.stats.ReadCount++
		return pg, nil
	}

	if len(p.pages) >= p.capacity {
		return nil, common.ErrBufferPoolFull
	}

	pg, err := p.disk.ReadPage(id)
	if err != nil {
		return nil, err
	}
	p.pages[id] = pg
	p.stats.PageReads++
	p.stats.ReadCount++
	return pg, nil
}

// NewPage allocates a fresh page on disk and admits it to the pool. It
// fails with ErrBufferPoolFull if the pool has no room for it, without ever
// touching disk allocation.
func (p *Pool) NewPage() (*page.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.pages) >= p.capacity {
		return nil, common.ErrBufferPoolFull
	}

	id, err := p.disk.AllocatePage()
	if err != nil {
		return nil, err
	}
	pg := page.New(id)
	p.pages[id] = pg
	p.stats.PageWrites++
	return pg, nil
}

// WritePage persists pg to disk immediately and keeps it cached.
func (p *Pool) WritePage(pg *page.Page) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.disk.WritePage(pg); err != nil {
		return err
	}
	pg.ClearDirty()
	p.pages[pg.ID()] = pg
	p.stats.PageWrites++
	p.stats.WriteCount++
	return nil
}

// FreePage evicts id from the pool and zero-fills its block on disk, making
// room for a future GetPage/NewPage miss. It does not reclaim the page id;
// diskmgr never reuses ids.
func (p *Pool) FreePage(id uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.disk.FreePage(id); err != nil {
		return err
	}
	delete(p.pages, id)
	return nil
}

// Flush writes every dirty cached page to disk.
func (p *Pool) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, pg := range p.pages {
		if !pg.IsDirty() {
			continue
		}
		if err := p.disk.WritePage(pg); err != nil {
			return err
		}
		pg.ClearDirty()
	}
	return p.disk.Sync()
}

// Stats returns a snapshot of the pool's counters.
func (p *Pool) Stats() common.Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.NumPages = len(p.pages)
	return s
}

// Len reports how many pages are currently cached.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pages)
}

// Capacity reports the pool's fixed page capacity.
func (p *Pool) Capacity() int { return p.capacity }

// RootPageID and SetRootPageID pass through to the underlying disk manager
// so the btree package can persist its root pointer without reaching past
// the pool into diskmgr directly.
func (p *Pool) RootPageID() uint32 { return p.disk.RootPageID() }

func (p *Pool) SetRootPageID(id uint32) error { return p.disk.SetRootPageID(id) }
