package bufpool

import (
	"path/filepath"
	"testing"

	"github.com/calderadb/caldera/common"
	"github.com/calderadb/caldera/diskmgr"
)

func newPool(t *testing.T, capacity int) *Pool {
	t.Helper()
	disk, err := diskmgr.Open(filepath.Join(t.TempDir(), "heap.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { disk.Close() })
	return New(disk, capacity)
}

func TestNewPageAndGetPage(t *testing.T) {
	p := newPool(t, 4)

	pg, err := p.NewPage()
	if err != nil {
		t.Fatal(err)
	}
	copy(pg.Payload(), []byte("abc"))
	if err := p.WritePage(pg); err != nil {
		t.Fatal(err)
	}

	got, err := p.GetPage(pg.ID())
	if err != nil {
		t.Fatal(err)
	}
	if string(got.Payload()[:3]) != "abc" {
		t.Fatalf("payload = %q, want abc", got.Payload()[:3])
	}
}

func TestBufferPoolFullNoEviction(t *testing.T) {
	p := newPool(t, 2)

	if _, err := p.NewPage(); err != nil {
		t.Fatal(err)
	}
	if _, err := p.NewPage(); err != nil {
		t.Fatal(err)
	}
	if _, err := p.NewPage(); err != common.ErrBufferPoolFull {
		t.Fatalf("third NewPage = %v, want ErrBufferPoolFull", err)
	}
}

func TestFreePageMakesRoom(t *testing.T) {
	p := newPool(t, 1)

	pg, err := p.NewPage()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.NewPage(); err != common.ErrBufferPoolFull {
		t.Fatalf("expected full, got %v", err)
	}

	if err := p.FreePage(pg.ID()); err != nil {
		t.Fatalf("FreePage: %v", err)
	}
	if _, err := p.NewPage(); err != nil {
		t.Fatalf("expected room after FreePage, got %v", err)
	}
}

func TestFreePageRejectsUnallocatedID(t *testing.T) {
	p := newPool(t, 4)
	if err := p.FreePage(999); err != common.ErrInvalidPage {
		t.Fatalf("FreePage(999) = %v, want ErrInvalidPage", err)
	}
}

func TestFlushPersistsDirtyPages(t *testing.T) {
	p := newPool(t, 4)

	pg, err := p.NewPage()
	if err != nil {
		t.Fatal(err)
	}
	copy(pg.Payload(), []byte("xyz"))
	pg.MarkDirty()

	if err := p.Flush(); err != nil {
		t.Fatal(err)
	}
	if pg.IsDirty() {
		t.Fatal("expected page clean after Flush")
	}
}

func TestStatsTracksCounters(t *testing.T) {
	p := newPool(t, 4)

	pg, err := p.NewPage()
	if err != nil {
		t.Fatal(err)
	}
	if err := p.WritePage(pg); err != nil {
		t.Fatal(err)
	}
	if _, err := p.GetPage(pg.ID()); err != nil {
		t.Fatal(err)
	}

	stats := p.Stats()
	if stats.CacheHits == 0 {
		t.Fatal("expected at least one cache hit")
	}
	if stats.NumPages != 1 {
		t.Fatalf("NumPages = %d, want 1", stats.NumPages)
	}
}
