// Package dispatch implements the dispatcher (C7): the single-threaded
// consumer of the request queue that runs the write and read staging
// protocols against the persistent log and index.
package dispatch

import (
	"context"
	"encoding/binary"

	"github.com/siisee11/pmdfc-go/internal/cceh"
	"github.com/siisee11/pmdfc-go/internal/logging"
	"github.com/siisee11/pmdfc-go/internal/metaregion"
	"github.com/siisee11/pmdfc-go/internal/perrors"
	"github.com/siisee11/pmdfc-go/internal/pmemlog"
	"github.com/siisee11/pmdfc-go/internal/pmetrics"
	"github.com/siisee11/pmdfc-go/internal/rdma"
	"github.com/siisee11/pmdfc-go/internal/reqqueue"
	"github.com/siisee11/pmdfc-go/internal/staging"
	"github.com/siisee11/pmdfc-go/internal/wire"
)

// Dispatcher is the sole consumer of the request queue and the sole
// mutator of the log, index, and staging table. Per spec.md §5, the
// send CQ is shared across peers and post_meta_request polls it
// inline, so only one dispatcher goroutine may ever run at a time —
// a second one would need a mutex around post+poll, which is not
// provided here because spec.md's concurrency model calls for exactly
// one.
type Dispatcher struct {
	queue    *reqqueue.Queue
	staging  *staging.Table
	region   *metaregion.Region
	log      *pmemlog.Log
	index    *cceh.Table
	provider rdma.Provider
	metrics  pmetrics.Observer
	logger   *logging.Logger
}

// New builds a Dispatcher wired to its collaborators. metrics may be
// nil, in which case events are discarded.
func New(queue *reqqueue.Queue, stagingTable *staging.Table, region *metaregion.Region, log *pmemlog.Log, index *cceh.Table, provider rdma.Provider, metrics pmetrics.Observer) *Dispatcher {
	if metrics == nil {
		metrics = pmetrics.NoOpObserver{}
	}
	return &Dispatcher{
		queue:    queue,
		staging:  stagingTable,
		region:   region,
		log:      log,
		index:    index,
		provider: provider,
		metrics:  metrics,
		logger:   logging.Default(),
	}
}

// Run consumes records until ctx is cancelled or the queue is closed.
//
// spec.md §7 distinguishes three error policies, which this loop
// implements as a switch on the failing perrors.Code: a provider-fatal
// error (CQ poll, non-SUCCESS completion, QP/MR setup) means the
// transport itself can no longer be trusted, so Run stops and returns
// the error, which (*Server).run's (*errs).record cancels the rest of
// the server with; an allocation-fatal error (log full, index insert
// failure) is recoverable at the protocol level and handleWrite has
// already replied Abort to the client and freed its staging entry, so
// Run just logs and keeps dequeuing; a protocol-fatal error (bad
// record ordering, no staging entry) is a single misbehaving peer, not
// a transport or allocator problem, so it's logged and dropped too.
func (d *Dispatcher) Run(ctx context.Context) error {
	// Close the queue on cancellation so a Dequeue blocked on an empty
	// queue returns instead of waiting for a record that never comes.
	stop := context.AfterFunc(ctx, d.queue.Close)
	defer stop()
	for {
		if ctx.Err() != nil {
			return nil
		}
		rec, ok := d.queue.Dequeue()
		if !ok {
			return nil
		}
		if err := d.handle(rec); err != nil {
			if perrors.IsCode(err, perrors.CodeProviderFatal) {
				d.logger.Error("provider fatal error, aborting dispatcher", "type", rec.Type.String(), "node", rec.NodeID, "pid", rec.Pid, "error", err)
				return err
			}
			d.metrics.ObserveProtocolError()
			d.logger.Error("dispatch failed", "type", rec.Type.String(), "node", rec.NodeID, "pid", rec.Pid, "error", err)
		}
	}
}

func (d *Dispatcher) handle(rec reqqueue.Record) error {
	switch rec.Type {
	case wire.MsgWriteRequest:
		return d.handleWriteRequest(rec)
	case wire.MsgWrite:
		return d.handleWrite(rec)
	case wire.MsgReadRequest:
		return d.handleReadRequest(rec)
	default:
		return perrors.New("DISPATCH", rec.NodeID, rec.Pid, perrors.CodeProtocolFatal, "unexpected record type in queue: "+rec.Type.String())
	}
}

// handleWriteRequest implements spec.md §4.7's WRITE_REQUEST: allocate
// a staging buffer, publish its address, reply WRITE_REQUEST_REPLY /
// TX_WRITE_READY.
func (d *Dispatcher) handleWriteRequest(rec reqqueue.Record) error {
	entry := d.staging.Put(rec.NodeID, rec.Pid, rec.Num)
	d.metrics.ObserveWriteRequest(int64(len(entry.Buf)))

	// Best-effort/debugging copy only; the authoritative copy is the
	// immediate-reply payload below (see metaregion.WriteStagingAddr).
	stagingAddr := stagingAddrToken(rec.NodeID, rec.Pid)
	d.region.WriteStagingAddr(rec.NodeID, rec.Pid, stagingAddr)

	return d.replyMeta(rec.NodeID, rec.Pid, wire.MsgWriteRequestReply, wire.TxWriteReady, rec.Num, stagingAddr)
}

// handleWrite implements spec.md §4.7's WRITE: persist each staged
// page into the log, insert into the index key-by-key (no rollback on
// partial crash, per spec.md's documented batch semantics), reply
// WRITE_REPLY / TX_WRITE_COMMITTED, free staging.
func (d *Dispatcher) handleWrite(rec reqqueue.Record) error {
	entry := d.staging.Get(rec.NodeID, rec.Pid)
	if entry == nil {
		return perrors.New("WRITE", rec.NodeID, rec.Pid, perrors.CodeProtocolFatal, "WRITE with no staging entry (protocol violation)")
	}

	var bytesWritten uint64
	for i := 0; i < int(rec.Num); i++ {
		key := d.region.Key(rec.NodeID, rec.Pid, i)
		page := entry.Buf[i*wire.PageSize : (i+1)*wire.PageSize]

		addr, err := d.log.AllocAndPersist(page)
		if err != nil {
			return d.abortWrite(rec, perrors.Wrap("WRITE", rec.NodeID, rec.Pid, perrors.CodeAllocationFatal, err))
		}
		if err := d.index.Insert(key, uint64(addr)); err != nil {
			return d.abortWrite(rec, perrors.Wrap("WRITE", rec.NodeID, rec.Pid, perrors.CodeAllocationFatal, err))
		}
		bytesWritten += wire.PageSize
	}

	stagingBytes := int64(len(entry.Buf))
	d.staging.Free(rec.NodeID, rec.Pid)
	d.metrics.ObserveWriteCommit(bytesWritten, stagingBytes)

	return d.replyMeta(rec.NodeID, rec.Pid, wire.MsgWriteReply, wire.TxWriteCommitted, rec.Num, 0)
}

// abortWrite implements spec.md §7's allocation-fatal policy for the
// WRITE path: free the staging entry so it doesn't leak (invariant 1:
// non-null only between REQUEST and commit/reply) and reply
// WRITE_REPLY / TX_WRITE_ABORTED so the client isn't left waiting on a
// commit that will never come. cause is the allocation-fatal error
// that triggered the abort; if the abort reply itself fails to post,
// that's provider-fatal and takes priority, since a failed reply means
// the transport can no longer be trusted to deliver anything.
func (d *Dispatcher) abortWrite(rec reqqueue.Record, cause error) error {
	d.staging.Free(rec.NodeID, rec.Pid)
	if err := d.replyMeta(rec.NodeID, rec.Pid, wire.MsgWriteReply, wire.TxWriteAborted, rec.Num, 0); err != nil {
		return err
	}
	return cause
}

// handleReadRequest implements spec.md §4.7's READ_REQUEST: resolve
// every key via the index (all-or-nothing), copy each resolved page
// individually into a staging buffer — fixing the original's
// single-memcpy-from-values[0] bug for num>1 — and reply
// READ_REQUEST_REPLY with TX_READ_READY, or TX_READ_ABORTED with no
// staging allocation if any key is missing.
func (d *Dispatcher) handleReadRequest(rec reqqueue.Record) error {
	addrs := make([]pmemlog.Address, rec.Num)
	for i := 0; i < int(rec.Num); i++ {
		key := d.region.Key(rec.NodeID, rec.Pid, i)
		addr, ok := d.index.Get(key)
		if !ok {
			d.metrics.ObserveReadAbort()
			return d.replyMeta(rec.NodeID, rec.Pid, wire.MsgReadRequestReply, wire.TxReadAborted, rec.Num, 0)
		}
		addrs[i] = pmemlog.Address(addr)
	}

	entry := d.staging.Put(rec.NodeID, rec.Pid, rec.Num)
	var bytesRead uint64
	for i, addr := range addrs {
		page, err := d.log.Read(addr, wire.PageSize)
		if err != nil {
			cause := perrors.Wrap("READ_REQUEST", rec.NodeID, rec.Pid, perrors.CodeAllocationFatal, err)
			d.staging.Free(rec.NodeID, rec.Pid)
			if err := d.replyMeta(rec.NodeID, rec.Pid, wire.MsgReadRequestReply, wire.TxReadAborted, rec.Num, 0); err != nil {
				return err
			}
			return cause
		}
		copy(entry.Buf[i*wire.PageSize:(i+1)*wire.PageSize], page)
		bytesRead += wire.PageSize
	}
	d.metrics.ObserveReadRequest(bytesRead, int64(len(entry.Buf)))

	stagingAddr := stagingAddrToken(rec.NodeID, rec.Pid)
	d.region.WriteStagingAddr(rec.NodeID, rec.Pid, stagingAddr)

	return d.replyMeta(rec.NodeID, rec.Pid, wire.MsgReadRequestReply, wire.TxReadReady, rec.Num, stagingAddr)
}

// replyMeta posts a metadata reply per spec.md §4.7: a single signaled
// RDMA-WRITE-WITH-IMM targeting NUM_ENTRY*METADATA_SIZE*pid+8 in the
// peer's metadata window, carrying the encoded immediate and up to 8
// bytes of payload. A non-success send completion is fatal.
func (d *Dispatcher) replyMeta(nodeID, pid uint8, msgType wire.MsgType, txState wire.TxState, num uint8, addr uint64) error {
	imm := wire.Pack(nodeID, pid, msgType, txState, num)
	payload := make([]byte, 8)
	if addr != 0 {
		binary.BigEndian.PutUint64(payload, addr)
	}
	off := metaregion.StagingAddrOffset(pid)
	if err := d.provider.PostMetaRequest(nodeID, off, imm, payload); err != nil {
		return perrors.Wrap("POST_META_REQUEST", nodeID, pid, perrors.CodeProviderFatal, err)
	}
	return nil
}

// stagingAddrToken derives a stable, opaque 64-bit handle for the
// staging entry currently held at (nodeID, pid). The value only needs
// to round-trip back to this (nodeID, pid)'s staging slot when the
// client later performs its one-sided RDMA read/write against staging
// and is never interpreted by the server as a real pointer beyond that
// — the staging table itself, not this token, is the source of truth.
func stagingAddrToken(nodeID, pid uint8) uint64 {
	return uint64(nodeID)<<8 | uint64(pid) | 1<<32
}
