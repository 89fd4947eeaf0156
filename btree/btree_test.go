package btree

import (
	"fmt"
	"os"
	"testing"

	"github.com/calderadb/caldera/bufpool"
	"github.com/calderadb/caldera/diskmgr"
	"github.com/calderadb/caldera/value"
)

func setupTestBTree(t *testing.T) (*BTree, func()) {
	t.Helper()
	path := fmt.Sprintf("/tmp/caldera-btree-test-%d-%d.db", os.Getpid(), t.Name()[0])
	os.Remove(path)

	disk, err := diskmgr.Open(path)
	if err != nil {
		t.Fatalf("diskmgr.Open: %v", err)
	}
	pool := bufpool.New(disk, 1000)

	tree, err := Open(pool)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	cleanup := func() {
		tree.Close()
		os.Remove(path)
	}
	return tree, cleanup
}

func TestBasicOperations(t *testing.T) {
	tree, cleanup := setupTestBTree(t)
	defer cleanup()

	if err := tree.Insert(1, value.Integer(100)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := tree.Get(1)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if i := got.AsInt(); i != 100 {
		t.Fatalf("expected 100, got %d", i)
	}

	if _, err := tree.Get(999); err == nil {
		t.Fatalf("expected ErrKeyNotFound for absent key")
	}
}

func TestInsertOverwritesExistingKey(t *testing.T) {
	tree, cleanup := setupTestBTree(t)
	defer cleanup()

	if err := tree.Insert(5, value.Integer(1)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := tree.Insert(5, value.Integer(2)); err != nil {
		t.Fatalf("Insert overwrite: %v", err)
	}

	got, err := tree.Get(5)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if i := got.AsInt(); i != 2 {
		t.Fatalf("expected overwritten value 2, got %d", i)
	}
}

func TestUpdate(t *testing.T) {
	tree, cleanup := setupTestBTree(t)
	defer cleanup()

	if err := tree.Update(1, value.Integer(1)); err == nil {
		t.Fatalf("expected ErrKeyNotFound updating an absent key")
	}

	if err := tree.Insert(1, value.Integer(1)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := tree.Update(1, value.Integer(42)); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := tree.Get(1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if i := got.AsInt(); i != 42 {
		t.Fatalf("expected 42, got %d", i)
	}
}

func TestDeleteMissingKeyIsNotAnError(t *testing.T) {
	tree, cleanup := setupTestBTree(t)
	defer cleanup()

	if err := tree.Insert(1, value.Integer(1)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := tree.Delete(999); err != nil {
		t.Fatalf("Delete of missing key should succeed silently, got: %v", err)
	}
}

func TestInsertTriggersRootSplit(t *testing.T) {
	tree, cleanup := setupTestBTree(t)
	defer cleanup()

	// MaxKeys is 3: a 4th insert into the root leaf must split it and grow
	// the tree's height.
	for i := int32(1); i <= 4; i++ {
		if err := tree.Insert(i, value.Integer(int64(i))); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	for i := int32(1); i <= 4; i++ {
		got, err := tree.Get(i)
		if err != nil {
			t.Fatalf("Get(%d): %v", i, err)
		}
		if n := got.AsInt(); n != int64(i) {
			t.Fatalf("Get(%d) = %d, want %d", i, n, i)
		}
	}
}

func TestDeleteOfPromotedSeparatorKeyReadsAsAbsent(t *testing.T) {
	tree, cleanup := setupTestBTree(t)
	defer cleanup()

	// Inserting 1,2,3,4 splits the root and promotes key 2 into it as a
	// separator. Deleting 2 must remove it from that internal node, so Get
	// reports it absent afterwards.
	for i := int32(1); i <= 4; i++ {
		if err := tree.Insert(i, value.Integer(int64(i))); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	if err := tree.Delete(2); err != nil {
		t.Fatalf("Delete(2): %v", err)
	}

	if _, err := tree.Get(2); err == nil {
		t.Fatalf("Get(2) after Delete(2) succeeded, want ErrKeyNotFound")
	}
}

func TestLargeRoundTrip(t *testing.T) {
	tree, cleanup := setupTestBTree(t)
	defer cleanup()

	const n = 1000
	for i := int32(0); i < n; i++ {
		if err := tree.Insert(i, value.Integer(int64(i)*2)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	for i := int32(0); i < n; i++ {
		got, err := tree.Get(i)
		if err != nil {
			t.Fatalf("Get(%d): %v", i, err)
		}
		if v := got.AsInt(); v != int64(i)*2 {
			t.Fatalf("Get(%d) = %d, want %d", i, v, int64(i)*2)
		}
	}

	all, err := tree.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != n {
		t.Fatalf("All returned %d entries, want %d", len(all), n)
	}
	for i, kv := range all {
		if kv.Key != int32(i) {
			t.Fatalf("All out of order at %d: got key %d", i, kv.Key)
		}
	}
}

func TestDeleteThenMissing(t *testing.T) {
	tree, cleanup := setupTestBTree(t)
	defer cleanup()

	const n = 50
	for i := int32(0); i < n; i++ {
		if err := tree.Insert(i, value.Integer(int64(i))); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	// Delete every even key, whether it sits in a leaf or was promoted into
	// an internal node.
	for i := int32(0); i < n; i += 2 {
		if err := tree.Delete(i); err != nil {
			t.Fatalf("Delete(%d): %v", i, err)
		}
	}

	for i := int32(0); i < n; i++ {
		_, err := tree.Get(i)
		if i%2 == 0 {
			if err == nil {
				t.Fatalf("expected key %d to be gone", i)
			}
		} else if err != nil {
			t.Fatalf("expected key %d to survive, got err: %v", i, err)
		}
	}
}

func TestReopenPersistsRootAndContents(t *testing.T) {
	path := fmt.Sprintf("/tmp/caldera-btree-reopen-%d.db", os.Getpid())
	os.Remove(path)
	defer os.Remove(path)

	disk, err := diskmgr.Open(path)
	if err != nil {
		t.Fatalf("diskmgr.Open: %v", err)
	}
	pool := bufpool.New(disk, 1000)
	tree, err := Open(pool)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	for i := int32(0); i < 20; i++ {
		if err := tree.Insert(i, value.Integer(int64(i))); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	if err := tree.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	disk2, err := diskmgr.Open(path)
	if err != nil {
		t.Fatalf("reopen diskmgr.Open: %v", err)
	}
	pool2 := bufpool.New(disk2, 1000)
	tree2, err := Open(pool2)
	if err != nil {
		t.Fatalf("reopen Open: %v", err)
	}
	defer tree2.Close()

	for i := int32(0); i < 20; i++ {
		got, err := tree2.Get(i)
		if err != nil {
			t.Fatalf("Get(%d) after reopen: %v", i, err)
		}
		if v := got.AsInt(); v != int64(i) {
			t.Fatalf("Get(%d) after reopen = %d, want %d", i, v, i)
		}
	}
}
