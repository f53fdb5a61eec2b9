// Package softrdma is the concrete, software-simulated implementation
// of rdma.Provider: an in-process completion-queue simulator standing
// in for real ibverbs queue pairs sharing one receive CQ. It exercises
// the exact control flow (post-recv, poll, decode, repost, reply) real
// hardware would, without requiring an RDMA-capable NIC.
package softrdma

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/siisee11/pmdfc-go/internal/rdma"
)

type peer struct {
	region        []byte
	outstanding   atomic.Int32
	lastImmediate atomic.Uint32
}

// Provider is a simulated transport multiplexing peer QPs over one
// shared receive CQ, matching the single-poller concurrency model
// spec.md §5 describes.
type Provider struct {
	mu      sync.Mutex
	closed  bool
	recvCh  chan rdma.Completion
	closeCh chan struct{}
	peers   map[uint8]*peer
}

// New creates an empty provider with no registered peers.
func New() *Provider {
	return &Provider{
		recvCh:  make(chan rdma.Completion, 256),
		closeCh: make(chan struct{}),
		peers:   make(map[uint8]*peer),
	}
}

// Close unblocks any pending PollRecvCQ.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.closeCh)
	return nil
}

// RegisterPeer attaches nodeID's metadata window.
func (p *Provider) RegisterPeer(nodeID uint8, peerRegion []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return rdma.ErrClosed
	}
	p.peers[nodeID] = &peer{region: peerRegion}
	return nil
}

func (p *Provider) getPeer(nodeID uint8) (*peer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, rdma.ErrClosed
	}
	pr, ok := p.peers[nodeID]
	if !ok {
		return nil, rdma.ErrUnknownPeer
	}
	return pr, nil
}

// PostRecv posts one receive work request for nodeID's QP.
func (p *Provider) PostRecv(nodeID uint8) error {
	pr, err := p.getPeer(nodeID)
	if err != nil {
		return err
	}
	pr.outstanding.Add(1)
	return nil
}

// OutstandingRecv reports posted-but-not-yet-completed receive WRs for
// nodeID.
func (p *Provider) OutstandingRecv(nodeID uint8) int {
	pr, err := p.getPeer(nodeID)
	if err != nil {
		return 0
	}
	return int(pr.outstanding.Load())
}

// PollRecvCQ blocks until a completion is delivered (via Deliver) on
// the shared CQ, or ctx is cancelled, or the provider is closed.
func (p *Provider) PollRecvCQ(ctx context.Context) (rdma.Completion, error) {
	select {
	case c, ok := <-p.recvCh:
		if !ok {
			return rdma.Completion{}, rdma.ErrClosed
		}
		return c, nil
	case <-p.closeCh:
		return rdma.Completion{}, rdma.ErrClosed
	case <-ctx.Done():
		return rdma.Completion{}, ctx.Err()
	}
}

// PostMetaRequest simulates a signaled RDMA-WRITE-WITH-IMM targeting
// nodeID's registered metadata window, returning once "sent" —
// mirroring the real provider's inline send-CQ poll.
func (p *Provider) PostMetaRequest(nodeID uint8, byteOffset int, imm uint32, payload []byte) error {
	pr, err := p.getPeer(nodeID)
	if err != nil {
		return err
	}
	if byteOffset < 0 || byteOffset+len(payload) > len(pr.region) {
		return fmt.Errorf("softrdma: write [%d,%d) outside node %d's %d-byte region", byteOffset, byteOffset+len(payload), nodeID, len(pr.region))
	}
	copy(pr.region[byteOffset:byteOffset+len(payload)], payload)
	pr.lastImmediate.Store(imm)
	return nil
}

// Deliver simulates nodeID's peer sending an RDMA-WRITE-WITH-IMM that
// lands in the shared receive queue; it decrements that peer's
// outstanding-recv count the way a real completion would, standing in
// for the kernel client in tests. The caller is responsible for
// encoding nodeID into imm's top byte, matching real wire behavior.
func (p *Provider) Deliver(nodeID uint8, imm uint32) error {
	pr, err := p.getPeer(nodeID)
	if err != nil {
		return err
	}
	select {
	case p.recvCh <- rdma.Completion{Immediate: imm}:
		pr.outstanding.Add(-1)
		return nil
	case <-p.closeCh:
		return rdma.ErrClosed
	}
}

// LastImmediate returns the immediate carried by nodeID's most recent
// PostMetaRequest call, for test assertions.
func (p *Provider) LastImmediate(nodeID uint8) uint32 {
	pr, err := p.getPeer(nodeID)
	if err != nil {
		return 0
	}
	return pr.lastImmediate.Load()
}
