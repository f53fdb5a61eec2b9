package cceh

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
)

func TestInsertGetRoundTrip(t *testing.T) {
	tbl := Init(16)
	if err := tbl.Insert(4000, 0xABCD); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	v, ok := tbl.Get(4000)
	if !ok || v != 0xABCD {
		t.Errorf("Get(4000) = (%x,%v), want (abcd,true)", v, ok)
	}
}

func TestGetMissingKey(t *testing.T) {
	tbl := Init(16)
	if _, ok := tbl.Get(0xDEADBEEF); ok {
		t.Errorf("Get of never-inserted key reported found")
	}
}

func TestInsertOverwrite(t *testing.T) {
	tbl := Init(16)
	tbl.Insert(1, 100)
	tbl.Insert(1, 200)
	v, ok := tbl.Get(1)
	if !ok || v != 200 {
		t.Errorf("Get(1) = (%d,%v), want (200,true)", v, ok)
	}
}

// TestSplitAndDirectoryGrowth forces many more keys than fit in the
// initial segment layout, exercising segment split and directory
// doubling, then verifies every key is still retrievable.
func TestSplitAndDirectoryGrowth(t *testing.T) {
	tbl := Init(1)
	const n = 5000
	for i := uint64(0); i < n; i++ {
		if err := tbl.Insert(i, i*7+1); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	for i := uint64(0); i < n; i++ {
		v, ok := tbl.Get(i)
		if !ok || v != i*7+1 {
			t.Fatalf("Get(%d) = (%d,%v), want (%d,true)", i, v, ok, i*7+1)
		}
	}
}

func TestConcurrentInsertGet(t *testing.T) {
	tbl := Init(16)
	const perGoroutine = 256
	const goroutines = 4

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(base uint64) {
			defer wg.Done()
			for i := uint64(0); i < perGoroutine; i++ {
				key := base + i
				tbl.Insert(key, key)
			}
		}(uint64(g) * perGoroutine)
	}
	wg.Wait()

	mismatches := 0
	for g := 0; g < goroutines; g++ {
		base := uint64(g) * perGoroutine
		for i := uint64(0); i < perGoroutine; i++ {
			key := base + i
			v, ok := tbl.Get(key)
			if !ok || v != key {
				mismatches++
			}
		}
	}
	if mismatches != 0 {
		t.Errorf("%d/%d keys mismatched", mismatches, goroutines*perGoroutine)
	}
}

func TestOpenReplaysAfterRestart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index")

	tbl, err := Open(path, 16)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := uint64(0); i < 1024; i++ {
		if err := tbl.Insert(i, i*3); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	tbl.Close()

	reopened, err := Open(path, 16)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	for i := uint64(0); i < 1024; i++ {
		v, ok := reopened.Get(i)
		if !ok || v != i*3 {
			t.Fatalf("Get(%d) after reopen = (%d,%v), want (%d,true)", i, v, ok, i*3)
		}
	}
}

func TestMaxValueTracksRestart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index")

	tbl, err := Open(path, 16)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := tbl.MaxValue(); got != 0 {
		t.Fatalf("MaxValue on empty table = %d, want 0", got)
	}
	for _, v := range []uint64{4096, 20480, 12288} {
		if err := tbl.Insert(v/4096, v); err != nil {
			t.Fatalf("Insert(%d): %v", v, err)
		}
	}
	if got := tbl.MaxValue(); got != 20480 {
		t.Fatalf("MaxValue = %d, want 20480", got)
	}
	tbl.Close()

	reopened, err := Open(path, 16)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if got := reopened.MaxValue(); got != 20480 {
		t.Fatalf("MaxValue after reopen = %d, want 20480 (replay must restore it)", got)
	}
}

func TestHash64Distribution(t *testing.T) {
	seen := map[uint64]bool{}
	for i := uint64(0); i < 1000; i++ {
		h := hash64(i)
		if seen[h] {
			t.Fatalf("hash64(%d) collided with a prior value: %s", i, fmt.Sprintf("0x%x", h))
		}
		seen[h] = true
	}
}
