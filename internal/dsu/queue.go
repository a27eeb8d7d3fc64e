package dsu

import (
	"net"
	"sync"
)

type datagram struct {
	to   net.Addr
	data []byte
}

// sendQueue is a bounded FIFO that drops its oldest entry when full.
// Any number of producers, one consumer.
type sendQueue struct {
	mu      sync.Mutex
	items   []datagram
	size    int
	dropped uint64
	ready   chan struct{}
}

func newSendQueue(size int) *sendQueue {
	return &sendQueue{size: max(size, 1), ready: make(chan struct{}, 1)}
}

func (q *sendQueue) push(d datagram) {
	q.mu.Lock()
	if len(q.items) >= q.size {
		q.items = q.items[1:]
		q.dropped++
	}
	q.items = append(q.items, d)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// drain returns everything queued so far.
func (q *sendQueue) drain() []datagram {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

func (q *sendQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
