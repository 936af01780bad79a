// Package queue provides the per-subscriber mailboxes used by the in-process
// exchange. A Queue never blocks the sender; what happens when it fills up is
// an explicit Policy choice.
package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Policy decides what Send does with a full queue.
type Policy int

const (
	// Grow doubles capacity once the queue reaches 70% full.
	Grow Policy = iota
	// Drop rejects the item and counts it.
	Drop
)

func (p Policy) String() string {
	switch p {
	case Grow:
		return "grow"
	case Drop:
		return "drop"
	default:
		return "unknown"
	}
}

// ParsePolicy accepts "grow" or "drop".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "grow":
		return Grow, nil
	case "drop":
		return Drop, nil
	default:
		return 0, fmt.Errorf("unknown queue policy %q", s)
	}
}

// Queue is a thread-safe FIFO ring buffer.
type Queue[T any] struct {
	mu       sync.Mutex
	buf      []T
	head     int // read position
	tail     int // write position
	count    int
	capacity int
	policy   Policy
	closed   bool
	ready    chan struct{}

	totalReceived int64
	totalSent     int64
	dropped       int64
	resizeCount   int
}

// New creates a queue with the given initial capacity and overflow policy.
func New[T any](capacity int, policy Policy) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{
		buf:      make([]T, capacity),
		capacity: capacity,
		policy:   policy,
		ready:    make(chan struct{}, 1),
	}
}

// Send appends item. It returns false if the queue is closed or the item was
// dropped under the Drop policy.
func (q *Queue[T]) Send(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	switch q.policy {
	case Drop:
		if q.count == q.capacity {
			q.dropped++
			return false
		}
	default:
		threshold := (q.capacity * 70) / 100
		if threshold < 1 {
			threshold = 1
		}
		if q.count+1 >= threshold {
			q.grow()
		}
	}

	q.buf[q.tail] = item
	q.tail = (q.tail + 1) % q.capacity
	q.count++
	q.totalReceived++
	q.signal()
	return true
}

// TryReceive removes the oldest item without blocking.
func (q *Queue[T]) TryReceive() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pop()
}

// Receive blocks until an item is available, the queue is closed and empty,
// or ctx is done.
func (q *Queue[T]) Receive(ctx context.Context) (T, error) {
	for {
		q.mu.Lock()
		item, ok := q.pop()
		closed := q.closed
		q.mu.Unlock()

		if ok {
			return item, nil
		}
		if closed {
			var zero T
			return zero, ErrClosed
		}

		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-q.ready:
		}
	}
}

// Drain removes up to max items (all of them when max <= 0).
func (q *Queue[T]) Drain(max int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.count
	if max > 0 && max < n {
		n = max
	}
	if n == 0 {
		return nil
	}

	out := make([]T, 0, n)
	for i := 0; i < n; i++ {
		item, _ := q.pop()
		out = append(out, item)
	}
	return out
}

// Close stops further sends. Buffered items can still be received.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.signal()
}

// Len returns the number of buffered items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Stats contains queue counters.
type Stats struct {
	Count         int
	Capacity      int
	TotalReceived int64
	TotalSent     int64
	Dropped       int64
	ResizeCount   int
}

// Stats returns queue counters.
func (q *Queue[T]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Count:         q.count,
		Capacity:      q.capacity,
		TotalReceived: q.totalReceived,
		TotalSent:     q.totalSent,
		Dropped:       q.dropped,
		ResizeCount:   q.resizeCount,
	}
}

// pop must be called with the lock held.
func (q *Queue[T]) pop() (T, bool) {
	var zero T
	if q.count == 0 {
		return zero, false
	}

	item := q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) % q.capacity
	q.count--
	q.totalSent++
	if q.count > 0 {
		q.signal()
	}
	return item, true
}

// signal wakes one waiting receiver. Must be called with the lock held.
func (q *Queue[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// grow doubles capacity. Must be called with the lock held.
func (q *Queue[T]) grow() {
	newCapacity := q.capacity * 2
	newBuf := make([]T, newCapacity)

	if q.count > 0 {
		if q.head < q.tail {
			copy(newBuf, q.buf[q.head:q.tail])
		} else {
			n := copy(newBuf, q.buf[q.head:])
			copy(newBuf[n:], q.buf[:q.tail])
		}
	}

	q.buf = newBuf
	q.head = 0
	q.tail = q.count
	q.capacity = newCapacity
	q.resizeCount++
}
