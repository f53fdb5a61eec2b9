// Package reqqueue implements the request queue (C4): an unbounded,
// multi-producer single-consumer FIFO between the completion poller
// and the dispatcher.
package reqqueue

import (
	"container/list"
	"sync"

	"github.com/siisee11/pmdfc-go/internal/wire"
)

// Record is a decoded request handed from the poller to the
// dispatcher.
type Record struct {
	Type   wire.MsgType
	NodeID uint8
	Pid    uint8
	Num    uint8
}

// Queue is a thread-safe, blocking FIFO. Enqueue never blocks; Dequeue
// blocks the caller while the queue is empty.
type Queue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	items    *list.List
	closed   bool
}

// New creates an empty request queue.
func New() *Queue {
	q := &Queue{items: list.New()}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends rec to the tail of the queue and wakes one blocked
// Dequeue caller, if any. Never blocks.
func (q *Queue) Enqueue(rec Record) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items.PushBack(rec)
	q.notEmpty.Signal()
}

// Dequeue removes and returns the head of the queue, blocking while
// the queue is empty. Dequeue returns ok=false only once the queue
// has been closed and drained.
func (q *Queue) Dequeue() (rec Record, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.items.Len() == 0 {
		if q.closed {
			return Record{}, false
		}
		q.notEmpty.Wait()
	}
	front := q.items.Front()
	q.items.Remove(front)
	return front.Value.(Record), true
}

// Close unblocks any pending Dequeue and causes future Dequeue calls
// on an empty queue to return immediately with ok=false. Used to
// shut the dispatcher down on cancellation.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.notEmpty.Broadcast()
}

// Len returns the current number of queued records.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}
