package client

import (
	"sync"

	"github.com/jeffrom/fluentlog/protocol"
)

// entry is a pending record. The queue owns it until it is popped, after
// which the sender goroutine owns the callback.
type entry struct {
	record *protocol.Record
	data   []byte
	cb     func(error)
}

func (e *entry) complete(err error) {
	if e.cb != nil {
		e.cb(err)
	}
}

// queue is a FIFO of pending entries. It is unbounded unless max is set.
// Pushes come from any goroutine; pops only from the sender goroutine.
type queue struct {
	mu      sync.Mutex
	entries []*entry
	head    int
	max     int
	closed  bool
}

func newQueue(max int) *queue {
	return &queue{
		entries: make([]*entry, 0, 64),
		max:     max,
	}
}

func (q *queue) push(e *entry) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return q.lenLocked(), ErrClosed
	}
	if q.max > 0 && q.lenLocked() >= q.max {
		return q.lenLocked(), ErrQueueFull
	}
	q.entries = append(q.entries, e)
	return q.lenLocked(), nil
}

func (q *queue) pop() *entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.lenLocked() == 0 {
		return nil
	}
	e := q.entries[q.head]
	q.entries[q.head] = nil
	q.head++

	if q.head == len(q.entries) {
		q.entries = q.entries[:0]
		q.head = 0
	} else if q.head >= 64 && q.head*2 >= len(q.entries) {
		n := copy(q.entries, q.entries[q.head:])
		for i := n; i < len(q.entries); i++ {
			q.entries[i] = nil
		}
		q.entries = q.entries[:n]
		q.head = 0
	}
	return e
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lenLocked()
}

func (q *queue) lenLocked() int {
	return len(q.entries) - q.head
}

// close rejects further pushes and returns the entries still pending.
func (q *queue) close() []*entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	rest := make([]*entry, q.lenLocked())
	copy(rest, q.entries[q.head:])
	q.entries = nil
	q.head = 0
	return rest
}
