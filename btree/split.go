package btree

// splitChild splits parent.children[i], which must already hold exactly
// MaxKeys entries, into two nodes: the left half keeps entries[:mid], the
// right half gets entries[mid+1:], and entries[mid] is promoted into the
// parent at index i. mid = (ORDER-1)/2 = 1 for this order-4 tree.
//
// Unlike the implementation this is grounded on, nothing is discarded after
// the move: the left child ends with exactly mid entries and the promoted
// entry is inserted into the parent, not dropped. (spec.md Open Question 2.)
func (b *BTree) splitChild(parent *node, i int) error {
	const mid = (4 - 1) / 2 // ORDER = 4

	child, err := b.loadNode(parent.children[i])
	if err != nil {
		return err
	}

	promoted := child.entries[mid]

	pg, err := b.pool.NewPage()
	if err != nil {
		return err
	}
	right := &node{pageID: pg.ID(), isLeaf: child.isLeaf}
	right.entries = append(right.entries, child.entries[mid+1:]...)
	if !child.isLeaf {
		right.children = append(right.children, child.children[mid+1:]...)
	}

	child.entries = child.entries[:mid]
	if !child.isLeaf {
		child.children = child.children[:mid+1]
	}

	parent.entries = append(parent.entries, entry{})
	copy(parent.entries[i+1:], parent.entries[i:])
	parent.entries[i] = promoted

	parent.children = append(parent.children, 0)
	copy(parent.children[i+2:], parent.children[i+1:])
	parent.children[i+1] = right.pageID

	if err := b.storeNode(child); err != nil {
		return err
	}
	if err := b.storeNode(right); err != nil {
		return err
	}
	return b.storeNode(parent)
}
