package rdma

import (
	"context"
	"errors"

	"github.com/siisee11/pmdfc-go/internal/logging"
	"github.com/siisee11/pmdfc-go/internal/reqqueue"
	"github.com/siisee11/pmdfc-go/internal/staging"
	"github.com/siisee11/pmdfc-go/internal/wire"
)

// Poller is the completion poller (C6): a single loop draining the
// shared receive CQ, decoding immediates, and either enqueuing a
// RequestRecord for the dispatcher or freeing a staging entry on
// READ_REPLY.
type Poller struct {
	provider Provider
	queue    *reqqueue.Queue
	staging  *staging.Table
	logger   *logging.Logger
}

// NewPoller builds a completion poller over provider, feeding decoded
// requests into queue and freeing staging entries directly.
func NewPoller(provider Provider, queue *reqqueue.Queue, stagingTable *staging.Table) *Poller {
	return &Poller{
		provider: provider,
		queue:    queue,
		staging:  stagingTable,
		logger:   logging.Default(),
	}
}

// Run drains completions until ctx is cancelled or the provider is
// closed. It is meant to run as the sole completion-poller goroutine.
func (p *Poller) Run(ctx context.Context) error {
	for {
		c, err := p.provider.PollRecvCQ(ctx)
		if err != nil {
			if errors.Is(err, ErrClosed) || ctx.Err() != nil {
				return nil
			}
			p.logger.Error("recv CQ poll failed, fatal per design", "error", err)
			return err
		}
		p.handleCompletion(c)
	}
}

func (p *Poller) handleCompletion(c Completion) {
	nodeID, pid, msgType, _, num := wire.Unpack(c.Immediate)

	// Invariant 4 (spec.md §3): keep at least one recv outstanding
	// before the peer can be told it may send again.
	if err := p.provider.PostRecv(nodeID); err != nil {
		p.logger.Error("repost recv failed", "node", nodeID, "error", err)
		return
	}

	switch msgType {
	case wire.MsgWriteRequest, wire.MsgWrite, wire.MsgReadRequest:
		p.queue.Enqueue(reqqueue.Record{
			Type:   msgType,
			NodeID: nodeID,
			Pid:    pid,
			Num:    num,
		})
	case wire.MsgReadReply:
		p.staging.Free(nodeID, pid)
	default:
		p.logger.Debug("ignoring informational completion", "type", msgType.String(), "node", nodeID)
	}
}
