// Package metaregion implements the client-facing metadata region
// (C9): the server-side window the client RDMA-writes keys into and
// RDMA-reads staging addresses out of.
package metaregion

import (
	"encoding/binary"

	"github.com/siisee11/pmdfc-go/internal/wire"
)

// Region is the server's LOCAL_META_REGION_SIZE-byte window,
// partitioned into MaxNode per-node slices, each further partitioned
// into MaxProcess per-pid sub-slices of NumEntry*MetadataSize bytes.
//
// A real deployment registers this as a single implicit on-demand MR
// covering the process's entire address space; here it is a plain
// byte slice, which the software RDMA provider (internal/rdma/softrdma)
// treats as the target of simulated RDMA writes/reads. The layout and
// offset arithmetic are identical either way.
type Region struct {
	buf []byte
}

// New allocates a zeroed metadata region of the standard size.
func New() *Region {
	return &Region{buf: make([]byte, wire.LocalMetaRegionSize)}
}

// Bytes exposes the backing buffer, e.g. for a software RDMA provider
// to read/write directly as if performing one-sided RDMA.
func (r *Region) Bytes() []byte { return r.buf }

// NodeSlice returns nodeID's PerNodeMetaRegionSize-byte sub-slice,
// the window bootstrap advertises to that peer as NodeInfo.MM and
// that rdma.Provider.RegisterPeer registers as the target of
// PostMetaRequest writes.
func (r *Region) NodeSlice(nodeID uint8) []byte {
	start := int(nodeID) * wire.PerNodeMetaRegionSize
	return r.buf[start : start+wire.PerNodeMetaRegionSize]
}

// sliceOffset returns the byte offset of (nodeID, pid)'s sub-slice
// within the region.
func sliceOffset(nodeID, pid uint8) int {
	return int(nodeID)*wire.PerNodeMetaRegionSize + int(pid)*wire.NumEntry*wire.MetadataSize
}

// KeyOffset returns the offset, relative to the region base, of the
// i'th key slot (0-indexed) within (nodeID, pid)'s sub-slice. This is
// the offset post_meta_request's replies target for the staging
// address, shifted by 8 bytes to land on the reserved slot: see
// StagingAddrOffset.
func KeyOffset(nodeID, pid uint8, i int) int {
	return sliceOffset(nodeID, pid) + i*wire.MetadataSize
}

// StagingAddrOffset returns the offset of the 8-byte staging-address
// slot reserved immediately after key 0, i.e.
// NUM_ENTRY*METADATA_SIZE*pid + 8 within the node's slice, matching
// spec.md's post_meta_request offset formula.
func StagingAddrOffset(pid uint8) int {
	return int(pid)*wire.NumEntry*wire.MetadataSize + 8
}

// Key returns the i'th key (0-indexed) written by the client for
// (nodeID, pid).
func (r *Region) Key(nodeID, pid uint8, i int) uint64 {
	off := KeyOffset(nodeID, pid, i)
	return binary.LittleEndian.Uint64(r.buf[off : off+8])
}

// SetKey is used by tests (standing in for the client's RDMA write of
// keys into the region).
func (r *Region) SetKey(nodeID, pid uint8, i int, key uint64) {
	off := KeyOffset(nodeID, pid, i)
	binary.LittleEndian.PutUint64(r.buf[off:off+8], key)
}

// WriteStagingAddr publishes a server-allocated staging address into
// the reserved 8-byte slot of (nodeID, pid)'s sub-slice. Per spec.md
// §4.9 and the resolved Open Question in SPEC_FULL.md §4, this copy is
// best-effort/debugging only: the authoritative copy is the one
// carried in the RDMA-write-with-immediate reply payload
// (post_meta_request's dma_addr argument), because invariant 3 in
// spec.md §3 guarantees the server never reads this copy back after
// commit, and nothing requires the client to either.
func (r *Region) WriteStagingAddr(nodeID, pid uint8, addr uint64) {
	off := sliceOffset(nodeID, pid) + 8
	binary.LittleEndian.PutUint64(r.buf[off:off+8], addr)
}
