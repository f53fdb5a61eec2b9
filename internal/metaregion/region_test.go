package metaregion

import (
	"testing"

	"github.com/siisee11/pmdfc-go/internal/wire"
)

func TestSetKeyRoundTrip(t *testing.T) {
	r := New()
	r.SetKey(3, 7, 0, 0xABCDEF)
	if got := r.Key(3, 7, 0); got != 0xABCDEF {
		t.Errorf("Key(3,7,0) = %x, want abcdef", got)
	}
}

func TestKeysForDistinctPidsDoNotOverlap(t *testing.T) {
	r := New()
	r.SetKey(0, 0, 0, 111)
	r.SetKey(0, 1, 0, 222)
	if got := r.Key(0, 0, 0); got != 111 {
		t.Errorf("pid 0 key clobbered: got %d, want 111", got)
	}
	if got := r.Key(0, 1, 0); got != 222 {
		t.Errorf("pid 1 key clobbered: got %d, want 222", got)
	}
}

func TestKeysForDistinctNodesDoNotOverlap(t *testing.T) {
	r := New()
	r.SetKey(0, 0, 0, 1)
	r.SetKey(1, 0, 0, 2)
	if got := r.Key(0, 0, 0); got != 1 {
		t.Errorf("node 0 key clobbered: got %d, want 1", got)
	}
	if got := r.Key(1, 0, 0); got != 2 {
		t.Errorf("node 1 key clobbered: got %d, want 2", got)
	}
}

func TestWriteStagingAddrDoesNotClobberKeys(t *testing.T) {
	r := New()
	r.SetKey(2, 5, 0, 999)
	r.WriteStagingAddr(2, 5, 0xFEED)
	if got := r.Key(2, 5, 0); got != 999 {
		t.Errorf("key clobbered by staging addr write: got %d, want 999", got)
	}
}

func TestStagingAddrOffsetIsRelativeToNodeSlice(t *testing.T) {
	// Formula is pid-relative; nodeID must not shift it.
	want := 4*wire.NumEntry*wire.MetadataSize + 8
	if got := StagingAddrOffset(4); got != want {
		t.Fatalf("StagingAddrOffset(4) = %d, want %d", got, want)
	}
}
