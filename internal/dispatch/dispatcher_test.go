package dispatch

import (
	"path/filepath"
	"testing"

	"github.com/siisee11/pmdfc-go/internal/cceh"
	"github.com/siisee11/pmdfc-go/internal/metaregion"
	"github.com/siisee11/pmdfc-go/internal/perrors"
	"github.com/siisee11/pmdfc-go/internal/pmemlog"
	"github.com/siisee11/pmdfc-go/internal/rdma/softrdma"
	"github.com/siisee11/pmdfc-go/internal/reqqueue"
	"github.com/siisee11/pmdfc-go/internal/staging"
	"github.com/siisee11/pmdfc-go/internal/wire"
)

type harness struct {
	t        *testing.T
	queue    *reqqueue.Queue
	staging  *staging.Table
	region   *metaregion.Region
	log      *pmemlog.Log
	index    *cceh.Table
	provider *softrdma.Provider
	disp     *Dispatcher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()

	log, err := pmemlog.Open(filepath.Join(dir, "log"), 1<<20, nil)
	if err != nil {
		t.Fatalf("pmemlog.Open: %v", err)
	}
	t.Cleanup(func() { log.Close() })

	index, err := cceh.Open(filepath.Join(dir, "index"), 16)
	if err != nil {
		t.Fatalf("cceh.Open: %v", err)
	}
	t.Cleanup(func() { index.Close() })

	region := metaregion.New()
	provider := softrdma.New()
	provider.RegisterPeer(0, region.NodeSlice(0))

	q := reqqueue.New()
	st := staging.New()
	disp := New(q, st, region, log, index, provider, nil)

	return &harness{t: t, queue: q, staging: st, region: region, log: log, index: index, provider: provider, disp: disp}
}

// TestWriteRequestThenWriteCommitsPage grounds scenario S1: a single
// page write request followed by a commit is readable back afterward.
func TestWriteRequestThenWriteCommitsPage(t *testing.T) {
	h := newHarness(t)

	const nodeID, pid, key = uint8(0), uint8(1), uint64(4000)
	h.region.SetKey(nodeID, pid, 0, key)

	if err := h.disp.handle(reqqueue.Record{Type: wire.MsgWriteRequest, NodeID: nodeID, Pid: pid, Num: 1}); err != nil {
		t.Fatalf("WRITE_REQUEST: %v", err)
	}
	entry := h.staging.Get(nodeID, pid)
	if entry == nil {
		t.Fatal("expected staging entry allocated after WRITE_REQUEST")
	}
	copy(entry.Buf, []byte("hi, dicl"))

	if err := h.disp.handle(reqqueue.Record{Type: wire.MsgWrite, NodeID: nodeID, Pid: pid, Num: 1}); err != nil {
		t.Fatalf("WRITE: %v", err)
	}
	if h.staging.Get(nodeID, pid) != nil {
		t.Error("staging entry not freed after WRITE commit")
	}

	addr, ok := h.index.Get(key)
	if !ok {
		t.Fatal("key not present in index after commit")
	}
	page, err := h.log.Read(pmemlogAddress(addr), wire.PageSize)
	if err != nil {
		t.Fatalf("log.Read: %v", err)
	}
	if string(page[:8]) != "hi, dicl" {
		t.Errorf("page contents = %q, want %q", page[:8], "hi, dicl")
	}
}

// TestReadRequestMissingKeyAborts grounds scenario S2: a read of a
// never-written key aborts without allocating staging.
func TestReadRequestMissingKeyAborts(t *testing.T) {
	h := newHarness(t)
	const nodeID, pid = uint8(0), uint8(2)
	h.region.SetKey(nodeID, pid, 0, 0xDEADBEEF)

	if err := h.disp.handle(reqqueue.Record{Type: wire.MsgReadRequest, NodeID: nodeID, Pid: pid, Num: 1}); err != nil {
		t.Fatalf("READ_REQUEST: %v", err)
	}
	if h.staging.Get(nodeID, pid) != nil {
		t.Error("staging entry allocated despite missing key (should abort)")
	}
}

// TestReadRequestMultiPageCopiesEachPageIndividually grounds the
// mandated fix to the original's single-memcpy-from-values[0] bug: a
// num=3 read must reflect each page's own distinct contents.
func TestReadRequestMultiPageCopiesEachPageIndividually(t *testing.T) {
	h := newHarness(t)
	const nodeID, pid = uint8(0), uint8(3)

	keys := []uint64{100, 200, 300}
	contents := [][]byte{
		bytesOf('A'), bytesOf('B'), bytesOf('C'),
	}
	for i, key := range keys {
		h.region.SetKey(nodeID, pid, i, key)
		addr, err := h.log.AllocAndPersist(contents[i])
		if err != nil {
			t.Fatalf("AllocAndPersist(%d): %v", i, err)
		}
		if err := h.index.Insert(key, uint64(addr)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	if err := h.disp.handle(reqqueue.Record{Type: wire.MsgReadRequest, NodeID: nodeID, Pid: pid, Num: 3}); err != nil {
		t.Fatalf("READ_REQUEST: %v", err)
	}

	entry := h.staging.Get(nodeID, pid)
	if entry == nil {
		t.Fatal("expected staging entry after successful multi-page READ_REQUEST")
	}
	for i := 0; i < 3; i++ {
		page := entry.Buf[i*wire.PageSize : (i+1)*wire.PageSize]
		if page[0] != contents[i][0] {
			t.Errorf("page %d first byte = %q, want %q", i, page[0], contents[i][0])
		}
	}
}

// TestWriteAllocationFatalAbortsAndFreesStaging grounds spec.md §7's
// allocation-fatal policy: a WRITE that can't be persisted (log full)
// must still reply (Abort, not silence) and must not leak the staging
// entry.
func TestWriteAllocationFatalAbortsAndFreesStaging(t *testing.T) {
	dir := t.TempDir()
	log, err := pmemlog.Open(filepath.Join(dir, "log"), wire.PageSize, nil)
	if err != nil {
		t.Fatalf("pmemlog.Open: %v", err)
	}
	t.Cleanup(func() { log.Close() })
	index, err := cceh.Open(filepath.Join(dir, "index"), 16)
	if err != nil {
		t.Fatalf("cceh.Open: %v", err)
	}
	t.Cleanup(func() { index.Close() })

	region := metaregion.New()
	provider := softrdma.New()
	provider.RegisterPeer(0, region.NodeSlice(0))
	q := reqqueue.New()
	st := staging.New()
	disp := New(q, st, region, log, index, provider, nil)

	const nodeID, pid = uint8(0), uint8(4)
	region.SetKey(nodeID, pid, 0, 9000)
	region.SetKey(nodeID, pid, 1, 9001)

	if err := disp.handle(reqqueue.Record{Type: wire.MsgWriteRequest, NodeID: nodeID, Pid: pid, Num: 2}); err != nil {
		t.Fatalf("WRITE_REQUEST: %v", err)
	}
	// Pool only holds one page; the second page's AllocAndPersist fails.
	err = disp.handle(reqqueue.Record{Type: wire.MsgWrite, NodeID: nodeID, Pid: pid, Num: 2})
	if err == nil {
		t.Fatal("expected allocation-fatal error from WRITE, got nil")
	}
	if !perrors.IsCode(err, perrors.CodeAllocationFatal) {
		t.Errorf("error code = %v, want CodeAllocationFatal", err)
	}
	if st.Get(nodeID, pid) != nil {
		t.Error("staging entry not freed after allocation-fatal abort")
	}
}

func bytesOf(b byte) []byte {
	buf := make([]byte, wire.PageSize)
	buf[0] = b
	return buf
}

func pmemlogAddress(v uint64) pmemlog.Address { return pmemlog.Address(v) }
