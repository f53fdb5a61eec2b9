// Package staging implements the staging table (C8): a flat, volatile
// 2D mapping from (node_id, pid) to a scratch buffer holding pages
// in flight between a *_REQUEST and its commit/reply.
//
// Ownership is split per spec.md §4.8: the dispatcher is the only
// writer, and frees entries itself on WRITE commit; the completion
// poller frees entries on READ_REPLY. The two free paths never race
// for the same (node,pid) because the client protocol serializes
// REQUEST -> commit/READ_REPLY per (node,pid) (spec.md §5 ordering
// guarantee) — so no lock is required for correctness. Entries are
// still held behind atomic.Pointer, matching the teacher's pattern of
// atomic loads/stores for state shared across goroutines without a
// mutex (internal/queue/runner.go's tag-descriptor reads), so a racy
// Get from a debugging/metrics goroutine never observes a torn
// pointer.
package staging

import (
	"sync/atomic"

	"github.com/siisee11/pmdfc-go/internal/wire"
)

// Entry is a staging buffer owned exclusively by the dispatcher (or,
// for reads, briefly co-owned by the poller until it frees the slot
// on READ_REPLY).
type Entry struct {
	Buf []byte // num * PageSize bytes
	Num uint8
}

// Table is the per-(node,pid) staging slot array.
type Table struct {
	slots [wire.MaxNode * wire.MaxProcess]atomic.Pointer[Entry]
}

// New creates an empty staging table.
func New() *Table {
	return &Table{}
}

func index(nodeID, pid uint8) int {
	return int(nodeID)*wire.MaxProcess + int(pid)
}

// Put allocates a fresh num*PageSize buffer, stores it as the entry
// for (nodeID, pid), and returns it. Invariant 1 (spec.md §3) requires
// the caller to only call Put when the slot is currently empty; Put
// does not check this itself, since the dispatcher is the slot's sole
// writer and already enforces ordering.
func (t *Table) Put(nodeID, pid uint8, num uint8) *Entry {
	e := &Entry{Buf: make([]byte, int(num)*wire.PageSize), Num: num}
	t.slots[index(nodeID, pid)].Store(e)
	return e
}

// Get returns the current entry for (nodeID, pid), or nil if empty.
func (t *Table) Get(nodeID, pid uint8) *Entry {
	return t.slots[index(nodeID, pid)].Load()
}

// Free clears the entry for (nodeID, pid). Safe to call from either
// the dispatcher (on WRITE commit) or the poller (on READ_REPLY); the
// two never race for the same slot, see package doc.
func (t *Table) Free(nodeID, pid uint8) {
	t.slots[index(nodeID, pid)].Store(nil)
}
