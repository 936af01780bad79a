// Package stream pushes completed trades to websocket clients.
package stream

import (
	"sync"
	"sync/atomic"
)

// Subscription receives broadcast values on C until it is unsubscribed.
type Subscription[T any] struct {
	C <-chan T
	c chan T
}

// Hub fans values out to subscribers without blocking the sender. A
// subscriber whose buffer is full misses the value.
type Hub[T any] struct {
	mu      sync.RWMutex
	subs    map[*Subscription[T]]struct{}
	dropped atomic.Int64
}

// NewHub creates an empty hub.
func NewHub[T any]() *Hub[T] {
	return &Hub[T]{subs: make(map[*Subscription[T]]struct{})}
}

func (h *Hub[T]) Subscribe(buffer int) *Subscription[T] {
	c := make(chan T, buffer)
	sub := &Subscription[T]{C: c, c: c}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *Hub[T]) Unsubscribe(sub *Subscription[T]) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.c)
}

func (h *Hub[T]) Broadcast(value T) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		select {
		case sub.c <- value:
		default:
			h.dropped.Add(1)
		}
	}
}

// Len returns the number of subscribers.
func (h *Hub[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped because a buffer was full.
func (h *Hub[T]) Dropped() int64 {
	return h.dropped.Load()
}
