package btree

import (
	"sync"

	"github.com/calderadb/caldera/bufpool"
	"github.com/calderadb/caldera/common"
	"github.com/calderadb/caldera/value"
)

// BTree is a classical order-4 B-tree index over int32 keys and value.Value
// payloads. It owns no transaction or WAL semantics of its own; the engine
// façade brackets mutating calls. mu guards only the root page id: node
// contents are protected by the façade's single-writer lock above this
// package.
type BTree struct {
	mu      sync.RWMutex
	pool    *bufpool.Pool
	root    uint32
	latches *LatchManager
}

// Open attaches a BTree to pool, creating an empty root leaf if the pool's
// backing store has never held one.
func Open(pool *bufpool.Pool) (*BTree, error) {
	b := &BTree{pool: pool, latches: NewLatchManager()}

	root := pool.RootPageID()
	if root == 0 {
		pg, err := pool.NewPage()
		if err != nil {
			return nil, err
		}
		n := &node{pageID: pg.ID(), isLeaf: true}
		if err := n.encodeInto(pg.Payload()); err != nil {
			return nil, err
		}
		pg.MarkDirty()
		if err := pool.WritePage(pg); err != nil {
			return nil, err
		}
		if err := pool.SetRootPageID(pg.ID()); err != nil {
			return nil, err
		}
		root = pg.ID()
	}

	b.root = root
	return b, nil
}

func (b *BTree) loadNode(id uint32) (*node, error) {
	pg, err := b.pool.GetPage(id)
	if err != nil {
		return nil, err
	}
	return decodeNode(id, pg.Payload())
}

func (b *BTree) storeNode(n *node) error {
	pg, err := b.pool.GetPage(n.pageID)
	if err != nil {
		return err
	}
	if err := n.encodeInto(pg.Payload()); err != nil {
		return err
	}
	pg.MarkDirty()
	return b.pool.WritePage(pg)
}

// Get descends from the root and resolves key at whichever node holds it,
// internal or leaf: a key promoted into an internal node by a split lives
// only there. Search is read-only and never mutates the tree.
func (b *BTree) Get(key int32) (value.Value, error) {
	b.mu.RLock()
	id := b.root
	b.mu.RUnlock()

	for {
		n, err := b.loadNode(id)
		if err != nil {
			return value.Value{}, err
		}
		if idx, found := n.find(key); found {
			return n.entries[idx].val, nil
		}
		if n.isLeaf {
			return value.Value{}, &common.ErrKeyNotFound{Key: key}
		}
		id = n.children[n.childIndex(key)]
	}
}

// Insert adds key/val, or overwrites val if key already exists anywhere in
// the tree (leaf or internal). Splits happen preemptively on the way down:
// a full node is split before Insert ever descends into it.
func (b *BTree) Insert(key int32, val value.Value) error {
	b.mu.Lock()
	root, err := b.loadNode(b.root)
	if err != nil {
		b.mu.Unlock()
		return err
	}

	if root.isFull() {
		pg, err := b.pool.NewPage()
		if err != nil {
			b.mu.Unlock()
			return err
		}
		newRoot := &node{pageID: pg.ID(), isLeaf: false, children: []uint32{root.pageID}}
		if err := b.splitChild(newRoot, 0); err != nil {
			b.mu.Unlock()
			return err
		}
		if err := b.pool.SetRootPageID(newRoot.pageID); err != nil {
			b.mu.Unlock()
			return err
		}
		b.root = newRoot.pageID
	}
	rootID := b.root
	b.mu.Unlock()

	return b.insertNonFull(rootID, key, val)
}

// Update overwrites the value for an existing key, failing with
// ErrKeyNotFound if the key is absent. Unlike Insert, Update never creates
// a new entry; per spec it is implemented as a lookup followed by Insert.
func (b *BTree) Update(key int32, val value.Value) error {
	if _, err := b.Get(key); err != nil {
		return err
	}
	return b.Insert(key, val)
}

func (b *BTree) insertNonFull(id uint32, key int32, val value.Value) error {
	n, err := b.loadNode(id)
	if err != nil {
		return err
	}

	idx, found := n.find(key)
	if found {
		n.entries[idx].val = val
		return b.storeNode(n)
	}

	if n.isLeaf {
		n.entries = append(n.entries, entry{})
		copy(n.entries[idx+1:], n.entries[idx:])
		n.entries[idx] = entry{key: key, val: val}
		return b.storeNode(n)
	}

	childID := n.children[idx]
	child, err := b.loadNode(childID)
	if err != nil {
		return err
	}

	if child.isFull() {
		if err := b.splitChild(n, idx); err != nil {
			return err
		}
		switch {
		case key == n.entries[idx].key:
			n.entries[idx].val = val
			return b.storeNode(n)
		case key > n.entries[idx].key:
			childID = n.children[idx+1]
		default:
			childID = n.children[idx]
		}
	}

	return b.insertNonFull(childID, key, val)
}

// Delete removes key from the tree. A missing key is not an error: per
// spec, a delete that reaches a leaf without finding its target succeeds
// silently. Pre-descent rebalancing tops up each child before the descent
// continues through it. A key held by an internal node is overwritten there
// by its in-order predecessor, which is then deleted from the left subtree.
func (b *BTree) Delete(key int32) error {
	b.mu.RLock()
	root := b.root
	b.mu.RUnlock()

	if err := b.deleteAt(root, key); err != nil {
		return err
	}
	return b.collapseRootIfNeeded()
}

func (b *BTree) deleteAt(id uint32, key int32) error {
	n, err := b.loadNode(id)
	if err != nil {
		return err
	}

	if n.isLeaf {
		idx, found := n.find(key)
		if !found {
			return nil
		}
		n.entries = append(n.entries[:idx], n.entries[idx+1:]...)
		return b.storeNode(n)
	}

	idx := n.childIndex(key)
	if i, found := n.find(key); found {
		pred, err := b.loadNode(n.children[i])
		for err == nil && !pred.isLeaf {
			pred, err = b.loadNode(pred.children[len(pred.children)-1])
		}
		if err != nil {
			return err
		}
		n.entries[i] = pred.entries[len(pred.entries)-1]
		if err := b.storeNode(n); err != nil {
			return err
		}
		idx, key = i, n.entries[i].key
	}
	child, err := b.loadNode(n.children[idx])
	if err != nil {
		return err
	}

	if child.needsRebalance() {
		newIdx, err := b.ensureMinKeys(n, idx)
		if err != nil {
			return err
		}
		idx = newIdx
	}

	return b.deleteAt(n.children[idx], key)
}

func (b *BTree) collapseRootIfNeeded() error {
	b.mu.RLock()
	rootID := b.root
	b.mu.RUnlock()

	root, err := b.loadNode(rootID)
	if err != nil {
		return err
	}
	if root.isLeaf || len(root.entries) > 0 {
		return nil
	}

	newRootID := root.children[0]
	b.mu.Lock()
	b.root = newRootID
	b.mu.Unlock()
	return b.pool.SetRootPageID(newRootID)
}

// Close flushes every dirty page to disk.
func (b *BTree) Close() error {
	return b.pool.Flush()
}
