package btree

import (
	"sync"

	"github.com/calderadb/caldera/common"
	"github.com/calderadb/caldera/value"
)

// LatchMode selects shared or exclusive access to a PageLatch.
type LatchMode int

const (
	LatchRead  LatchMode = iota // shared: multiple concurrent readers
	LatchWrite                  // exclusive: single writer
)

// PageLatch is a per-page read-write lock. BTree's own mu only protects the
// root page id; ConcurrentGet latches each page it visits. Insert, Delete,
// splitChild and the merge helpers never take page latches, so these
// latches order readers among themselves and do not exclude a concurrent
// structural change.
type PageLatch struct {
	mu sync.RWMutex
}

// Lock acquires the latch in the given mode.
func (l *PageLatch) Lock(mode LatchMode) {
	if mode == LatchRead {
		l.mu.RLock()
	} else {
		l.mu.Lock()
	}
}

// Unlock releases the latch in the given mode.
func (l *PageLatch) Unlock(mode LatchMode) {
	if mode == LatchRead {
		l.mu.RUnlock()
	} else {
		l.mu.Unlock()
	}
}

// LatchManager hands out per-page latches, creating them lazily. One
// manager is shared across every concurrent traversal of a BTree.
type LatchManager struct {
	mu      sync.Mutex
	latches map[uint32]*PageLatch
}

// NewLatchManager creates an empty latch manager.
func NewLatchManager() *LatchManager {
	return &LatchManager{latches: make(map[uint32]*PageLatch)}
}

// GetLatch returns the latch for pageID, creating it on first use.
func (lm *LatchManager) GetLatch(pageID uint32) *PageLatch {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	latch, ok := lm.latches[pageID]
	if !ok {
		latch = &PageLatch{}
		lm.latches[pageID] = latch
	}
	return latch
}

// ConcurrentGet looks up many keys at once, fanning each lookup out across a
// small worker pool and latch-coupling every page visited along the way:
// a child's latch is acquired before its parent's is released. Mutating
// operations take no page latches, so this does not shield a lookup from a
// concurrent Insert or Delete.
func (b *BTree) ConcurrentGet(keys []int32) ([]value.Value, []error) {
	vals := make([]value.Value, len(keys))
	errs := make([]error, len(keys))

	const workers = 4
	jobs := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				vals[i], errs[i] = b.latchedGet(keys[i])
			}
		}()
	}

	for i := range keys {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return vals, errs
}

// latchedGet mirrors Get's descent under latch coupling rather than relying
// on a caller-held lock above the package.
func (b *BTree) latchedGet(key int32) (value.Value, error) {
	lm := b.latches

	b.mu.RLock()
	id := b.root
	b.mu.RUnlock()

	latch := lm.GetLatch(id)
	latch.Lock(LatchRead)

	for {
		n, err := b.loadNode(id)
		if err != nil {
			latch.Unlock(LatchRead)
			return value.Value{}, err
		}

		if idx, found := n.find(key); found {
			latch.Unlock(LatchRead)
			return n.entries[idx].val, nil
		}
		if n.isLeaf {
			latch.Unlock(LatchRead)
			return value.Value{}, &common.ErrKeyNotFound{Key: key}
		}

		childID := n.children[n.childIndex(key)]
		childLatch := lm.GetLatch(childID)
		childLatch.Lock(LatchRead)

		latch.Unlock(LatchRead)
		latch = childLatch
		id = childID
	}
}
