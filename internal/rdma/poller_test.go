package rdma_test

import (
	"context"
	"testing"
	"time"

	"github.com/siisee11/pmdfc-go/internal/rdma"
	"github.com/siisee11/pmdfc-go/internal/rdma/softrdma"
	"github.com/siisee11/pmdfc-go/internal/reqqueue"
	"github.com/siisee11/pmdfc-go/internal/staging"
	"github.com/siisee11/pmdfc-go/internal/wire"
)

func TestPollerEnqueuesWriteRequest(t *testing.T) {
	provider := softrdma.New()
	provider.RegisterPeer(1, make([]byte, 64))
	provider.PostRecv(1)

	queue := reqqueue.New()
	stagingTable := staging.New()
	poller := rdma.NewPoller(provider, queue, stagingTable)

	ctx, cancel := context.WithCancel(context.Background())
	go poller.Run(ctx)
	defer cancel()

	imm := wire.Pack(1, 2, wire.MsgWriteRequest, wire.TxNone, 3)
	if err := provider.Deliver(1, imm); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	rec, ok := waitDequeue(t, queue)
	if !ok {
		t.Fatal("expected a record to be enqueued")
	}
	if rec.Type != wire.MsgWriteRequest || rec.NodeID != 1 || rec.Pid != 2 || rec.Num != 3 {
		t.Errorf("got %+v, want {WRITE_REQUEST node=1 pid=2 num=3}", rec)
	}
}

func TestPollerRepostsRecvImmediately(t *testing.T) {
	provider := softrdma.New()
	provider.RegisterPeer(1, make([]byte, 64))
	provider.PostRecv(1)

	queue := reqqueue.New()
	poller := rdma.NewPoller(provider, queue, staging.New())

	ctx, cancel := context.WithCancel(context.Background())
	go poller.Run(ctx)
	defer cancel()

	imm := wire.Pack(1, 0, wire.MsgWrite, wire.TxNone, 1)
	provider.Deliver(1, imm)
	waitDequeue(t, queue)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if provider.OutstandingRecv(1) == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("OutstandingRecv(1) = %d, want 1 after repost", provider.OutstandingRecv(1))
}

func TestPollerFreesStagingOnReadReply(t *testing.T) {
	provider := softrdma.New()
	provider.RegisterPeer(5, make([]byte, 64))
	provider.PostRecv(5)

	queue := reqqueue.New()
	stagingTable := staging.New()
	stagingTable.Put(5, 9, 2)

	poller := rdma.NewPoller(provider, queue, stagingTable)
	ctx, cancel := context.WithCancel(context.Background())
	go poller.Run(ctx)
	defer cancel()

	imm := wire.Pack(5, 9, wire.MsgReadReply, wire.TxNone, 2)
	provider.Deliver(5, imm)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if stagingTable.Get(5, 9) == nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("staging entry for (5,9) was not freed after READ_REPLY")
}

func waitDequeue(t *testing.T, q *reqqueue.Queue) (reqqueue.Record, bool) {
	t.Helper()
	done := make(chan struct {
		rec reqqueue.Record
		ok  bool
	}, 1)
	go func() {
		rec, ok := q.Dequeue()
		done <- struct {
			rec reqqueue.Record
			ok  bool
		}{rec, ok}
	}()
	select {
	case r := <-done:
		return r.rec, r.ok
	case <-time.After(time.Second):
		t.Fatal("Dequeue timed out")
		return reqqueue.Record{}, false
	}
}
