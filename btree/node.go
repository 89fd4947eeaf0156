// Package btree implements the order-4 B-tree index: int32 keys mapping to
// value.Value payloads, backed by pages pulled through a bufpool.Pool.
//
// This is a classical B-tree, not a B+tree: internal nodes hold the same
// key/value entries as leaves, and a key promoted out of a child during a
// split lives only in the parent from then on. A lookup therefore resolves
// at whichever node holds the key, and delete replaces an internal node's
// key by its in-order predecessor.
package btree

import (
	"encoding/binary"

	"github.com/calderadb/caldera/common"
	"github.com/calderadb/caldera/value"
)

// Order-4 B-tree invariants: at most 3 keys per node, at least 1 (except
// the root).
const (
	MaxKeys = 3
	MinKeys = 1
)

const (
	nodeInternal = 0x00
	nodeLeaf     = 0x01
)

// entry is one key/value pair, living in a leaf or an internal node alike.
type entry struct {
	key int32
	val value.Value
}

// node is a B-tree node materialized from a page's payload. It is a
// transient in-memory view: callers decode it, mutate it, then re-encode it
// back into the page before handing the page back to the pool.
type node struct {
	pageID   uint32
	isLeaf   bool
	entries  []entry  // sorted by key; present on every node, leaf or not
	children []uint32 // internal only: len(children) == len(entries)+1
}

// decodeNode reads a node out of a page's payload: 4-byte page id, 1-byte
// leaf flag, 2-byte LE entry count, then entries, then (if internal) child
// page ids.
func decodeNode(pageID uint32, payload []byte) (*node, error) {
	if len(payload) < 7 {
		return nil, &common.ErrInvalidData{Msg: "node payload too short for header"}
	}

	storedID := binary.LittleEndian.Uint32(payload[0:4])
	if storedID != pageID {
		return nil, &common.ErrInvalidData{Msg: "node page id does not match its page"}
	}

	n := &node{pageID: pageID}
	switch payload[4] {
	case nodeLeaf:
		n.isLeaf = true
	case nodeInternal:
		n.isLeaf = false
	default:
		return nil, &common.ErrInvalidData{Msg: "unknown node tag"}
	}

	count := binary.LittleEndian.Uint16(payload[5:7])
	off := 7
	for i := uint16(0); i < count; i++ {
		if off+4 > len(payload) {
			return nil, &common.ErrInvalidData{Msg: "truncated entry key"}
		}
		key := int32(binary.LittleEndian.Uint32(payload[off : off+4]))
		off += 4
		v, consumed, err := value.Deserialize(payload[off:])
		if err != nil {
			return nil, err
		}
		off += consumed
		n.entries = append(n.entries, entry{key: key, val: v})
	}

	if !n.isLeaf {
		for i := uint16(0); i <= count; i++ {
			if off+4 > len(payload) {
				return nil, &common.ErrInvalidData{Msg: "truncated child pointer"}
			}
			n.children = append(n.children, binary.LittleEndian.Uint32(payload[off:off+4]))
			off += 4
		}
	}

	return n, nil
}

// encodeInto writes n back into a page's payload. The caller is responsible
// for marking the page dirty.
func (n *node) encodeInto(payload []byte) error {
	if len(payload) < 7 {
		return &common.ErrInvalidData{Msg: "payload too small for node header"}
	}

	binary.LittleEndian.PutUint32(payload[0:4], n.pageID)
	if n.isLeaf {
		payload[4] = nodeLeaf
	} else {
		payload[4] = nodeInternal
	}
	binary.LittleEndian.PutUint16(payload[5:7], uint16(len(n.entries)))

	off := 7
	for _, e := range n.entries {
		if off+4 > len(payload) {
			return common.ErrPageFull
		}
		binary.LittleEndian.PutUint32(payload[off:off+4], uint32(e.key))
		off += 4
		buf := e.val.Serialize()
		if off+len(buf) > len(payload) {
			return common.ErrPageFull
		}
		copy(payload[off:], buf)
		off += len(buf)
	}

	if !n.isLeaf {
		for _, c := range n.children {
			if off+4 > len(payload) {
				return common.ErrPageFull
			}
			binary.LittleEndian.PutUint32(payload[off:off+4], c)
			off += 4
		}
	}

	for i := off; i < len(payload); i++ {
		payload[i] = 0
	}
	return nil
}

// find does a binary search for key among n.entries. When found is true,
// idx is the matching entry's position: this applies uniformly to leaf and
// internal nodes, since an internal node's entry may itself be the
// previously promoted copy of key. When found is false, idx is the count of
// entries strictly less than key.
func (n *node) find(key int32) (idx int, found bool) {
	lo, hi := 0, len(n.entries)
	for lo < hi {
		mid := (lo + hi) / 2
		if n.entries[mid].key < key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(n.entries) && n.entries[lo].key == key {
		return lo, true
	}
	return lo, false
}

// childIndex returns the count of entries with key <= target: the index of
// the child to descend into once target is known not to be held by n
// itself.
func (n *node) childIndex(key int32) int {
	lo, hi := 0, len(n.entries)
	for lo < hi {
		mid := (lo + hi) / 2
		if n.entries[mid].key <= key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

func (n *node) isFull() bool {
	return len(n.entries) >= MaxKeys
}

// needsRebalance reports whether n must be topped up before a key is
// removed from its subtree. The threshold is len <= MinKeys, not
// len < MinKeys: a node sitting at exactly MinKeys keys is one delete away
// from underflow, so it needs rebalancing now, before descending into it.
// (spec.md Open Question 3: the naive "len >= MinKeys is already safe"
// check used by the original implementation is off by one.)
func (n *node) needsRebalance() bool {
	return len(n.entries) <= MinKeys
}
