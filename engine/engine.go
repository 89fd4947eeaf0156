// Package engine is the storage façade: it combines the buffer pool, the
// B-tree, the write-ahead log, and the transaction manager behind a single
// mutex and exposes the key-value operations the wire protocol dispatches
// against.
package engine

import (
	"sync"

	"github.com/calderadb/caldera/btree"
	"github.com/calderadb/caldera/bufpool"
	"github.com/calderadb/caldera/common"
	"github.com/calderadb/caldera/diskmgr"
	"github.com/calderadb/caldera/txn"
	"github.com/calderadb/caldera/value"
	"github.com/calderadb/caldera/wal"
)

// DefaultCacheCapacity is the buffer pool's page capacity when a caller
// does not override it.
const DefaultCacheCapacity = 1000

// Engine owns the whole on-disk store rooted at one heap file path, plus
// the WAL at path+".wal". Every exported method takes mu for its entire
// duration; the B-tree's own RWMutex below this one guards only the root
// page id, not node contents.
type Engine struct {
	mu   sync.Mutex
	disk *diskmgr.Manager
	pool *bufpool.Pool
	tree *btree.BTree
	log  *wal.Log
	txns *txn.Manager
}

// Open opens (or creates) the heap file at path and its WAL at
// path+".wal", with a buffer pool sized to cacheCapacity pages.
func Open(path string, cacheCapacity int) (*Engine, error) {
	if cacheCapacity <= 0 {
		cacheCapacity = DefaultCacheCapacity
	}

	disk, err := diskmgr.Open(path)
	if err != nil {
		return nil, err
	}

	log, err := wal.Open(path + ".wal")
	if err != nil {
		return nil, err
	}

	pool := bufpool.New(disk, cacheCapacity)
	tree, err := btree.Open(pool)
	if err != nil {
		return nil, err
	}

	return &Engine{
		disk: disk,
		pool: pool,
		tree: tree,
		log:  log,
		txns: txn.NewManager(log),
	}, nil
}

// writeRecord logs a Write record for the given transaction summarizing
// the logical mutation: the B-tree's current root page id and the new
// value's serialized bytes (empty for a delete).
func (e *Engine) writeRecord(txnID int64, data []byte) error {
	return e.log.Log(wal.Write(txnID, e.pool.RootPageID(), 0, data))
}

// Insert adds key/val, overwriting any existing value for key.
func (e *Engine) Insert(key int32, val value.Value) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, err := e.txns.Begin()
	if err != nil {
		return err
	}
	if err := e.tree.Insert(key, val); err != nil {
		_ = t.Rollback()
		return err
	}
	if err := e.writeRecord(t.ID(), val.Serialize()); err != nil {
		_ = t.Rollback()
		return err
	}
	return t.Commit()
}

// Delete removes key. A missing key is not an error, matching the
// B-tree's own Delete semantics.
func (e *Engine) Delete(key int32) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, err := e.txns.Begin()
	if err != nil {
		return err
	}
	if err := e.tree.Delete(key); err != nil {
		_ = t.Rollback()
		return err
	}
	if err := e.writeRecord(t.ID(), nil); err != nil {
		_ = t.Rollback()
		return err
	}
	return t.Commit()
}

// Get returns the value stored for key, or ErrKeyNotFound.
func (e *Engine) Get(key int32) (value.Value, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tree.Get(key)
}

// Update overwrites the value for an existing key, failing with
// ErrKeyNotFound if key is absent.
func (e *Engine) Update(key int32, val value.Value) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, err := e.txns.Begin()
	if err != nil {
		return err
	}
	if err := e.tree.Update(key, val); err != nil {
		_ = t.Rollback()
		return err
	}
	if err := e.writeRecord(t.ID(), val.Serialize()); err != nil {
		_ = t.Rollback()
		return err
	}
	return t.Commit()
}

// All returns every key/value pair in the store, sorted by key.
func (e *Engine) All() ([]btree.KV, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tree.All()
}

// Strlen returns the length in bytes of key's string rendering, or
// ErrKeyNotFound if key is absent.
func (e *Engine) Strlen(key int32) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.tree.Get(key)
	if err != nil {
		return 0, err
	}
	return int64(len(v.ToString())), nil
}

// Strcat reads key's current value, concatenates other via Value.Add, and
// writes the result back. Fails with ErrKeyNotFound if key is absent, or
// with ErrInvalidOperation if the stored value is not concatenable with
// other (Value.Add's own type-mismatch rule).
func (e *Engine) Strcat(key int32, other value.Value) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur, err := e.tree.Get(key)
	if err != nil {
		return err
	}
	next, err := cur.Add(other)
	if err != nil {
		return err
	}

	t, err := e.txns.Begin()
	if err != nil {
		return err
	}
	if err := e.tree.Update(key, next); err != nil {
		_ = t.Rollback()
		return err
	}
	if err := e.writeRecord(t.ID(), next.Serialize()); err != nil {
		_ = t.Rollback()
		return err
	}
	return t.Commit()
}

// Substr reads key's current value, slices its string rendering by byte
// offset [start, start+length), and writes the slice back as a String.
// An out-of-range slice silently yields an empty string rather than an
// error. Fails with ErrKeyNotFound if key is absent.
func (e *Engine) Substr(key int32, start, length int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur, err := e.tree.Get(key)
	if err != nil {
		return err
	}

	s := cur.ToString()
	sliced := sliceBytes(s, start, length)
	next := value.String(sliced)

	t, err := e.txns.Begin()
	if err != nil {
		return err
	}
	if err := e.tree.Update(key, next); err != nil {
		_ = t.Rollback()
		return err
	}
	if err := e.writeRecord(t.ID(), next.Serialize()); err != nil {
		_ = t.Rollback()
		return err
	}
	return t.Commit()
}

func sliceBytes(s string, start, length int) string {
	if start < 0 || length < 0 || start > len(s) {
		return ""
	}
	end := start + length
	if end > len(s) {
		end = len(s)
	}
	return s[start:end]
}

// Flush writes every dirty cached page to disk and fsyncs the heap file.
func (e *Engine) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pool.Flush()
}

// Stats returns a snapshot of the buffer pool's counters.
func (e *Engine) Stats() common.Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pool.Stats()
}

// Close flushes pending pages and releases the heap file and WAL handles.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.pool.Flush(); err != nil {
		return err
	}
	if err := e.disk.Close(); err != nil {
		return err
	}
	return e.log.Close()
}
