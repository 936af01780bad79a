// Package clock provides the shared simulation clock.
//
// A Clock walks a fixed, strictly increasing axis of time points. It is the
// single source of "now" for a run: the exchange that owns it is the only
// component allowed to advance it, everyone else reads it through Reader.
package clock

import (
	"errors"
	"fmt"
	"iter"
)

// Time is an opaque epoch value. Only ordering and equality are meaningful.
type Time int64

var (
	// ErrEmpty is returned when a clock is built without time points.
	ErrEmpty = errors.New("clock requires at least one time point")

	// ErrNotIncreasing is returned when time points are not strictly increasing.
	ErrNotIncreasing = errors.New("clock time points must be strictly increasing")
)

// Reader is the read-only view of a clock.
type Reader interface {
	Now() Time
	HasMore() bool
}

// Clock is a cursor over a finite sequence of time points.
// It is not safe for concurrent use; owners guard it themselves.
type Clock struct {
	times []Time
	pos   int
}

// New builds a clock positioned at the first of times.
func New(times []Time) (*Clock, error) {
	if len(times) == 0 {
		return nil, ErrEmpty
	}
	for i := 1; i < len(times); i++ {
		if times[i] <= times[i-1] {
			return nil, fmt.Errorf("%w: %d follows %d", ErrNotIncreasing, times[i], times[i-1])
		}
	}

	owned := make([]Time, len(times))
	copy(owned, times)
	return &Clock{times: owned}, nil
}

// FromRange builds a clock over [start, end] in increments of step.
func FromRange(start, end Time, step int64) (*Clock, error) {
	if step <= 0 {
		return nil, fmt.Errorf("step must be greater than 0, got %d", step)
	}
	if end < start {
		return nil, ErrEmpty
	}

	times := make([]Time, 0, int64(end-start)/step+1)
	for t := start; t <= end; t += Time(step) {
		times = append(times, t)
	}
	return &Clock{times: times}, nil
}

// Now returns the current time point.
func (c *Clock) Now() Time {
	return c.times[c.pos]
}

// Peek yields every time point on the axis from the first, regardless of the
// current position. The sequence may be ranged over any number of times.
func (c *Clock) Peek() iter.Seq[Time] {
	return func(yield func(Time) bool) {
		for _, t := range c.times {
			if !yield(t) {
				return
			}
		}
	}
}

// HasMore reports whether Advance may be called.
func (c *Clock) HasMore() bool {
	return c.pos < len(c.times)-1
}

// Advance moves the clock forward by one step. Advancing past the final time
// point means the caller is driving the simulation incorrectly, so it panics.
func (c *Clock) Advance() {
	if !c.HasMore() {
		panic(fmt.Sprintf("clock: advance past final time point %d", c.times[len(c.times)-1]))
	}
	c.pos++
}

// Len returns the number of time points on the axis.
func (c *Clock) Len() int {
	return len(c.times)
}

// Position returns the zero-based index of the current time point.
func (c *Clock) Position() int {
	return c.pos
}
