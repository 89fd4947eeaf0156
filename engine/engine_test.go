package engine

import (
	"path/filepath"
	"testing"

	"github.com/calderadb/caldera/value"
)

func setupTestEngine(t *testing.T) *Engine {
	t.Helper()
	dir := t.TempDir()
	e, err := Open(filepath.Join(dir, "t.db"), 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

// Scenario 1: open; insert(1, 100); get(1) -> Some(100); delete(1); get(1) -> None.
func TestScenarioInsertGetDelete(t *testing.T) {
	e := setupTestEngine(t)

	if err := e.Insert(1, value.Integer(100)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, err := e.Get(1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.AsInt() != 100 {
		t.Fatalf("Get(1) = %v, want 100", got.AsInt())
	}

	if err := e.Delete(1); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := e.Get(1); err == nil {
		t.Fatalf("expected Get(1) to fail after Delete")
	}
}

// Scenario 2: insert(5,50), insert(3,false), insert(7,"Test"); search(3) -> Some(false).
func TestScenarioMixedKindsInsert(t *testing.T) {
	e := setupTestEngine(t)

	if err := e.Insert(5, value.Integer(50)); err != nil {
		t.Fatalf("Insert(5): %v", err)
	}
	if err := e.Insert(3, value.Boolean(false)); err != nil {
		t.Fatalf("Insert(3): %v", err)
	}
	if err := e.Insert(7, value.String("Test")); err != nil {
		t.Fatalf("Insert(7): %v", err)
	}

	got, err := e.Get(3)
	if err != nil {
		t.Fatalf("Get(3): %v", err)
	}
	if got.Kind() != value.Boolean(false).Kind() || got.AsBool() != false {
		t.Fatalf("Get(3) = %v, want false", got)
	}
}

// Scenario 3: insert 0..999 with Integer(i); every i round-trips; then
// delete 0..999; get(0) -> None.
func TestScenarioThousandKeyRoundTripAndDrain(t *testing.T) {
	e := setupTestEngine(t)

	for i := int32(0); i < 1000; i++ {
		if err := e.Insert(i, value.Integer(int64(i))); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	for i := int32(0); i < 1000; i++ {
		got, err := e.Get(i)
		if err != nil {
			t.Fatalf("Get(%d): %v", i, err)
		}
		if got.AsInt() != int64(i) {
			t.Fatalf("Get(%d) = %d, want %d", i, got.AsInt(), i)
		}
	}

	for i := int32(0); i < 1000; i++ {
		if err := e.Delete(i); err != nil {
			t.Fatalf("Delete(%d): %v", i, err)
		}
	}
	if _, err := e.Get(0); err == nil {
		t.Fatalf("expected Get(0) to fail after draining the tree")
	}
}

// Scenario 4: insert(5,"five"); delete(5); insert(5,"FIVE"); get(5) -> Some("FIVE").
func TestScenarioReinsertAfterDelete(t *testing.T) {
	e := setupTestEngine(t)

	if err := e.Insert(5, value.String("five")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := e.Delete(5); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := e.Insert(5, value.String("FIVE")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, err := e.Get(5)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.AsString() != "FIVE" {
		t.Fatalf("Get(5) = %q, want FIVE", got.AsString())
	}
}

func TestUpdateFailsOnMissingKey(t *testing.T) {
	e := setupTestEngine(t)
	if err := e.Update(1, value.Integer(1)); err == nil {
		t.Fatalf("expected Update on a missing key to fail")
	}
}

func TestAllReturnsKeysInOrder(t *testing.T) {
	e := setupTestEngine(t)
	for _, k := range []int32{5, 1, 3, 2, 4} {
		if err := e.Insert(k, value.Integer(int64(k))); err != nil {
			t.Fatalf("Insert(%d): %v", k, err)
		}
	}
	all, err := e.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("len(All()) = %d, want 5", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].Key > all[i].Key {
			t.Fatalf("All() not sorted at index %d: %d > %d", i, all[i-1].Key, all[i].Key)
		}
	}
}

func TestStrlenOnMissingKeyFails(t *testing.T) {
	e := setupTestEngine(t)
	if _, err := e.Strlen(1); err == nil {
		t.Fatalf("expected Strlen on a missing key to fail")
	}
}

func TestStrlenReturnsStringByteLength(t *testing.T) {
	e := setupTestEngine(t)
	if err := e.Insert(1, value.String("hello")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	n, err := e.Strlen(1)
	if err != nil {
		t.Fatalf("Strlen: %v", err)
	}
	if n != 5 {
		t.Fatalf("Strlen = %d, want 5", n)
	}
}

func TestStrcatConcatenatesStrings(t *testing.T) {
	e := setupTestEngine(t)
	if err := e.Insert(1, value.String("hello ")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := e.Strcat(1, value.String("world")); err != nil {
		t.Fatalf("Strcat: %v", err)
	}
	got, err := e.Get(1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.AsString() != "hello world" {
		t.Fatalf("Get(1) = %q, want %q", got.AsString(), "hello world")
	}
}

func TestStrcatFailsOnTypeMismatch(t *testing.T) {
	e := setupTestEngine(t)
	if err := e.Insert(1, value.Integer(5)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := e.Strcat(1, value.String("x")); err == nil {
		t.Fatalf("expected Strcat to fail combining an integer with a string")
	}
}

func TestSubstrSlicesAndWritesBack(t *testing.T) {
	e := setupTestEngine(t)
	if err := e.Insert(1, value.String("hello world")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := e.Substr(1, 6, 5); err != nil {
		t.Fatalf("Substr: %v", err)
	}
	got, err := e.Get(1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.AsString() != "world" {
		t.Fatalf("Get(1) = %q, want %q", got.AsString(), "world")
	}
}

func TestSubstrOutOfRangeYieldsEmptyString(t *testing.T) {
	e := setupTestEngine(t)
	if err := e.Insert(1, value.String("hi")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := e.Substr(1, 10, 5); err != nil {
		t.Fatalf("Substr: %v", err)
	}
	got, err := e.Get(1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.AsString() != "" {
		t.Fatalf("Get(1) = %q, want empty string", got.AsString())
	}
}

func TestReopenPersistsData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.db")

	e, err := Open(path, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := e.Insert(42, value.Integer(9)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	e2, err := Open(path, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer e2.Close()

	got, err := e2.Get(42)
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if got.AsInt() != 9 {
		t.Fatalf("Get(42) after reopen = %d, want 9", got.AsInt())
	}
}

func TestEngineSatisfiesExprStore(t *testing.T) {
	e := setupTestEngine(t)
	var _ interface {
		Get(key int32) (value.Value, error)
	} = e

	if err := e.Insert(1, value.Integer(3)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	v, err := e.Get(1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v.AsInt() != 3 {
		t.Fatalf("Get(1) = %d, want 3", v.AsInt())
	}
}

func TestStatsReportsCounters(t *testing.T) {
	e := setupTestEngine(t)
	if err := e.Insert(1, value.Integer(1)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	s := e.Stats()
	if s.NumPages == 0 {
		t.Fatalf("expected Stats().NumPages > 0")
	}
}
