// Package barrier implements an N-of-N rendezvous without a long-held lock.
package barrier

import (
	"sync"
	"sync/atomic"
)

// Rendezvous counts arrivals against a growing set of registered parties.
// The arrival that brings the count up to the registered total runs the
// critical section; every other arrival returns immediately. Nothing times
// out: a registered party that never arrives stalls everyone.
type Rendezvous struct {
	registered atomic.Int64
	arrived    atomic.Int64
	fired      atomic.Int64

	// mu serialises critical sections so a fast next round cannot overlap
	// the previous one.
	mu sync.Mutex
}

// Register adds a party and returns its 1-based index.
func (r *Rendezvous) Register() int64 {
	return r.registered.Add(1)
}

// Registered returns the number of registered parties.
func (r *Rendezvous) Registered() int64 {
	return r.registered.Load()
}

// Arrived returns the number of arrivals in the current round.
func (r *Rendezvous) Arrived() int64 {
	return r.arrived.Load()
}

// Rounds returns how many times the critical section has run.
func (r *Rendezvous) Rounds() int64 {
	return r.fired.Load()
}

// Arrive records one arrival. If it completes the round, the counter is
// reset and fn runs before Arrive returns true. Arrivals are counted, not
// identified: the same caller arriving twice counts twice.
func (r *Rendezvous) Arrive(fn func()) bool {
	n := r.arrived.Add(1)
	for {
		total := r.registered.Load()
		if total == 0 || n < total {
			return false
		}
		// Arrivals past the total carry over into the next round. A failed
		// CAS means another arrival moved the count; re-read and retry.
		if r.arrived.CompareAndSwap(n, n-total) {
			break
		}
		n = r.arrived.Load()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	fn()
	r.fired.Add(1)
	return true
}
