package btree

import "github.com/calderadb/caldera/value"

// KV is one key/value pair yielded by a full-tree scan.
type KV struct {
	Key int32
	Val value.Value
}

// All performs the in-order traversal described by spec.md: for an
// internal node, visit child, then entry, repeated; for a leaf, entries in
// order. The result is the whole tree's contents, sorted by key.
func (b *BTree) All() ([]KV, error) {
	b.mu.RLock()
	root := b.root
	b.mu.RUnlock()

	var out []KV
	if err := b.collect(root, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *BTree) collect(id uint32, out *[]KV) error {
	n, err := b.loadNode(id)
	if err != nil {
		return err
	}

	if n.isLeaf {
		for _, e := range n.entries {
			*out = append(*out, KV{Key: e.key, Val: e.val})
		}
		return nil
	}

	for i, e := range n.entries {
		if err := b.collect(n.children[i], out); err != nil {
			return err
		}
		*out = append(*out, KV{Key: e.key, Val: e.val})
	}
	return b.collect(n.children[len(n.entries)], out)
}

// Iterator is a pull-based cursor over an All() scan, matching the shape
// callers of a lazily-paged iterator expect (Next/Key/Value/Error/Close),
// even though the underlying scan is collected eagerly: the traversal is
// always a full scan per spec, so there is no partial-tree cursor state to
// maintain across calls.
type Iterator struct {
	items []KV
	pos   int
	err   error
}

// NewIterator returns an Iterator over the whole tree's contents.
func (b *BTree) NewIterator() (*Iterator, error) {
	items, err := b.All()
	if err != nil {
		return nil, err
	}
	return &Iterator{items: items, pos: -1}, nil
}

// Next advances the cursor and reports whether a valid item is available.
func (it *Iterator) Next() bool {
	if it.err != nil {
		return false
	}
	it.pos++
	return it.pos < len(it.items)
}

// Key returns the current item's key.
func (it *Iterator) Key() int32 { return it.items[it.pos].Key }

// Value returns the current item's value.
func (it *Iterator) Value() value.Value { return it.items[it.pos].Val }

// Error returns any error encountered building the iterator.
func (it *Iterator) Error() error { return it.err }

// Close releases the iterator's state.
func (it *Iterator) Close() error {
	it.items = nil
	return nil
}
