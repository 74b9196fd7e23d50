package hash_test

import (
	"sync"
	"testing"

	"pagestore/pkg/buffer"
	"pagestore/pkg/config"
	"pagestore/pkg/hash"
	"pagestore/pkg/scheduler"
)

type fakeDisk struct {
	mu    sync.Mutex
	pages map[int64][]byte
	next  int64
}

func newFakeDisk() *fakeDisk {
	return &fakeDisk{pages: make(map[int64][]byte)}
}

func (f *fakeDisk) AllocatePage() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	return id
}

func (f *fakeDisk) DeallocatePage(id int64) {}

func (f *fakeDisk) ReadPage(id int64, buf []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if data, ok := f.pages[id]; ok {
		copy(buf, data)
	}
	return nil
}

func (f *fakeDisk) WritePage(id int64, buf []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data := make([]byte, len(buf))
	copy(data, buf)
	f.pages[id] = data
	return nil
}

func newTestTable(t *testing.T, dirMaxDepth, bucketMaxSize int) *hash.HashTable {
	t.Helper()
	disk := newFakeDisk()
	sched, err := scheduler.New(disk, "")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { sched.Stop() })
	pool := buffer.New(config.DefaultPoolSize, config.DefaultReplacerK, sched, disk)
	tbl, err := hash.New(pool, 0, dirMaxDepth, bucketMaxSize)
	if err != nil {
		t.Fatal(err)
	}
	return tbl
}

func mustGet(t *testing.T, tbl *hash.HashTable, key int64) int64 {
	t.Helper()
	v, ok, err := tbl.GetValue(nil, key)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatalf("expected key %d to be present", key)
	}
	return v
}

func mustMiss(t *testing.T, tbl *hash.HashTable, key int64) {
	t.Helper()
	_, ok, err := tbl.GetValue(nil, key)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatalf("expected key %d to be absent", key)
	}
}

// Scenario 3: a bucket size of 2 forces a split on the third insert; all
// three keys remain retrievable afterward.
func TestInsertForcesSplit(t *testing.T) {
	tbl := newTestTable(t, 3, 2)

	for _, kv := range [][2]int64{{1, 1}, {2, 2}, {3, 3}} {
		ok, err := tbl.Insert(nil, kv[0], kv[1])
		if err != nil {
			t.Fatalf("insert(%d,%d): %v", kv[0], kv[1], err)
		}
		if !ok {
			t.Fatalf("insert(%d,%d): expected success", kv[0], kv[1])
		}
	}

	if got := mustGet(t, tbl, 1); got != 1 {
		t.Fatalf("got %d, want 1", got)
	}
	if got := mustGet(t, tbl, 2); got != 2 {
		t.Fatalf("got %d, want 2", got)
	}
	if got := mustGet(t, tbl, 3); got != 3 {
		t.Fatalf("got %d, want 3", got)
	}
}

func TestInsertRejectsDuplicateKey(t *testing.T) {
	tbl := newTestTable(t, 3, 2)
	ok, err := tbl.Insert(nil, 5, 50)
	if err != nil || !ok {
		t.Fatalf("first insert failed: ok=%v err=%v", ok, err)
	}
	ok, err = tbl.Insert(nil, 5, 99)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected duplicate insert to be rejected")
	}
	if got := mustGet(t, tbl, 5); got != 50 {
		t.Fatalf("got %d, want the original value 50 to survive", got)
	}
}

// Scenario 4: removing keys back down merges the split buckets and shrinks
// the directory. The table exposes no depth accessor, so this checks the
// outcome through lookups: the remaining key still resolves and removed
// keys stop resolving.
func TestRemoveMergesAndShrinks(t *testing.T) {
	tbl := newTestTable(t, 3, 2)
	for _, kv := range [][2]int64{{1, 1}, {2, 2}, {3, 3}} {
		if ok, err := tbl.Insert(nil, kv[0], kv[1]); err != nil || !ok {
			t.Fatalf("insert(%d,%d): ok=%v err=%v", kv[0], kv[1], ok, err)
		}
	}

	ok, err := tbl.Remove(nil, 3)
	if err != nil || !ok {
		t.Fatalf("remove(3): ok=%v err=%v", ok, err)
	}
	ok, err = tbl.Remove(nil, 2)
	if err != nil || !ok {
		t.Fatalf("remove(2): ok=%v err=%v", ok, err)
	}

	if got := mustGet(t, tbl, 1); got != 1 {
		t.Fatalf("got %d, want 1", got)
	}
	mustMiss(t, tbl, 2)
	mustMiss(t, tbl, 3)
}

func TestRemoveIsNotIdempotent(t *testing.T) {
	tbl := newTestTable(t, 3, 2)
	if ok, err := tbl.Insert(nil, 7, 70); err != nil || !ok {
		t.Fatalf("insert: ok=%v err=%v", ok, err)
	}
	ok, err := tbl.Remove(nil, 7)
	if err != nil || !ok {
		t.Fatalf("first remove: ok=%v err=%v", ok, err)
	}
	ok, err = tbl.Remove(nil, 7)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected second remove of the same key to report false")
	}
}

func TestRemoveUnknownKeyFails(t *testing.T) {
	tbl := newTestTable(t, 3, 2)
	ok, err := tbl.Remove(nil, 42)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected removing an absent key to report false")
	}
}

// With a directory that cannot grow (max depth 0) and a bucket that holds
// only one entry, a second key landing in the same lone bucket must fail
// cleanly instead of looping or corrupting state.
func TestTableExhaustsAtMaxDepth(t *testing.T) {
	tbl := newTestTable(t, 0, 1)

	ok, err := tbl.Insert(nil, 1, 10)
	if err != nil || !ok {
		t.Fatalf("first insert: ok=%v err=%v", ok, err)
	}

	ok, err = tbl.Insert(nil, 2, 20)
	if err == nil {
		t.Fatal("expected the second insert to fail: directory cannot grow past max depth 0")
	}
	if ok {
		t.Fatal("expected ok=false alongside the error")
	}

	if got := mustGet(t, tbl, 1); got != 10 {
		t.Fatalf("got %d, want the first key to survive the failed second insert", got)
	}
}

func TestHasherOptionIsRespected(t *testing.T) {
	disk := newFakeDisk()
	sched, err := scheduler.New(disk, "")
	if err != nil {
		t.Fatal(err)
	}
	defer sched.Stop()
	pool := buffer.New(config.DefaultPoolSize, config.DefaultReplacerK, sched, disk)
	tbl, err := hash.New(pool, 0, 3, 4, hash.WithHasher(hash.MurmurHasher))
	if err != nil {
		t.Fatal(err)
	}
	if ok, err := tbl.Insert(nil, 11, 110); err != nil || !ok {
		t.Fatalf("insert: ok=%v err=%v", ok, err)
	}
	if got := mustGet(t, tbl, 11); got != 110 {
		t.Fatalf("got %d, want 110", got)
	}
}
