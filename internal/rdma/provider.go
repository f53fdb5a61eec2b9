// Package rdma defines the one-sided RDMA transport abstraction (C6's
// transport half) and the completion poller that decodes immediates
// into request records for the dispatcher.
//
// No ibverbs/rdma-core binding is available to build against, so
// Provider follows the same shape the teacher uses for io_uring in
// internal/uring: an interface plus exactly one concrete
// implementation, internal/rdma/softrdma, backed by an in-process
// completion-queue simulator rather than real hardware. This is a
// documented substitution, not a disguised fake — it exercises the
// real control flow (post-recv, decode, repost, reply) end to end.
//
// Per spec.md §5, exactly one completion poller goroutine drains a
// single receive CQ shared across every bootstrapped peer QP; the
// node a completion belongs to is recovered from the immediate itself
// (wire.Unpack's node_id field), so Provider multiplexes peers behind
// one PollRecvCQ rather than exposing one CQ per peer.
package rdma

import (
	"context"
	"errors"
)

// ErrClosed is returned by Provider methods once the provider has been
// closed.
var ErrClosed = errors.New("rdma: provider closed")

// ErrUnknownPeer is returned when a method references a node_id that
// was never registered via RegisterPeer.
var ErrUnknownPeer = errors.New("rdma: unknown peer node")

// Completion is a decoded receive-queue completion: the 32-bit
// immediate value carried by a peer's RDMA-WRITE-WITH-IMM.
type Completion struct {
	Immediate uint32
}

// Provider is the one-sided RDMA transport shared by every
// bootstrapped queue pair.
type Provider interface {
	// Close releases the provider and unblocks any pending PollRecvCQ.
	Close() error

	// RegisterPeer attaches a new peer QP, identified by nodeID, whose
	// client-visible metadata window is peerRegion. Called by the
	// bootstrap listener once a peer's QP reaches RTS.
	RegisterPeer(nodeID uint8, peerRegion []byte) error

	// PostRecv posts one receive work request for nodeID's QP.
	// Invariant 4 (spec.md §3) requires at least one outstanding recv
	// before the peer is told it may send; the poller calls this
	// immediately after draining each completion to maintain that
	// invariant.
	PostRecv(nodeID uint8) error

	// PollRecvCQ blocks until a receive completion is available on the
	// shared CQ, or ctx is cancelled.
	PollRecvCQ(ctx context.Context) (Completion, error)

	// PostMetaRequest performs a single signaled RDMA-WRITE-WITH-IMM
	// into nodeID's metadata window at byteOffset, carrying imm as the
	// immediate and payload (at most 8 bytes) as the write data. The
	// call is synchronous: it polls the send CQ inline for its own
	// completion before returning, per spec.md §4.7. A non-success
	// send completion is returned as an error and is fatal to the
	// caller's request.
	PostMetaRequest(nodeID uint8, byteOffset int, imm uint32, payload []byte) error

	// OutstandingRecv reports the number of currently posted, not yet
	// completed, receive work requests for nodeID's QP. Used by tests
	// to verify invariant 4 (spec.md §8 scenario S6).
	OutstandingRecv(nodeID uint8) int
}
