// Copyright (c) Sony Research Inc. All rights reserved.

// Package queue implements the hand-off structure between the hardware
// callback goroutine and the processing goroutine.
package queue

import (
	"sync"
	"time"

	"github.com/SonyResearch/metavision-driver/pkg/driver/event"
)

// TransferQueue is an unbounded-depth FIFO between one producer (the sensor
// callback) and one consumer (the processing loop). It never rejects or
// drops a batch; back-pressure shows up as queue depth, which the caller is
// expected to surface through statistics.
type TransferQueue struct {
	mu    sync.Mutex
	items []event.Batch
	wake  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func New() *TransferQueue {
	return &TransferQueue{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Enqueue copies the batch into queue-owned storage and wakes the consumer.
// The copy happens before the critical section so the lock is held only for
// the append and the caller (the sensor callback) is never blocked behind
// consumer processing. Empty batches are ignored.
func (q *TransferQueue) Enqueue(b event.Batch) {
	if len(b) == 0 {
		return
	}
	owned := b.Clone()

	q.mu.Lock()
	q.items = append(q.items, owned)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Dequeue pops exactly one batch in arrival order. While the queue is empty
// it waits for a wake-up, re-checking keepRunning and the shutdown signal at
// least every timeout so an external stop request is never missed. The
// second return value is the queue depth observed at the moment of the pop
// (including the popped element). ok is false when the wait ended without an
// element.
func (q *TransferQueue) Dequeue(timeout time.Duration, keepRunning func() bool) (b event.Batch, depth int, ok bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			depth = len(q.items)
			b = q.items[0]
			q.items[0] = nil // release the reference held by the backing array
			q.items = q.items[1:]
			q.mu.Unlock()
			return b, depth, true
		}
		q.mu.Unlock()

		if !keepRunning() {
			return nil, 0, false
		}
		select {
		case <-q.wake:
		case <-q.done:
			return nil, 0, false
		case <-time.After(timeout):
		}
	}
}

// Len returns the current queue depth.
func (q *TransferQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Shutdown wakes every waiter permanently. Queued batches stay in place; the
// consumer may keep draining after shutdown if it chooses to.
func (q *TransferQueue) Shutdown() {
	q.once.Do(func() { close(q.done) })
}
