// Package exchange wraps the clock, a quote source and an order book into the
// three exchange flavours used by backtests: a single-subscriber exchange, an
// in-process multi-subscriber exchange driven by one coordinator, and a
// barrier-synchronised exchange for remote subscribers.
//
// All three share one rule: an order submitted while the clock reads T is
// buffered and only reaches the book after the clock has moved past T, so it
// can never execute against prices dated T.
package exchange

import (
	"fmt"
	"slices"

	"github.com/ismaiel54/backtest-exchange/internal/clock"
	"github.com/ismaiel54/backtest-exchange/internal/orderbook"
	"github.com/ismaiel54/backtest-exchange/internal/quote"
)

// Exchange serves a single subscriber. It is not safe for concurrent use.
type Exchange struct {
	clock  *clock.Clock
	source quote.Source
	book   *orderbook.Book

	// pending holds orders inserted since the last Check, in insertion order.
	pending []orderbook.Order
}

// New creates an exchange that owns clk and reads quotes from source.
func New(clk *clock.Clock, source quote.Source) *Exchange {
	if clk == nil || source == nil {
		panic("exchange: clock and quote source are required")
	}
	return &Exchange{
		clock:  clk,
		source: source,
		book:   orderbook.New(),
	}
}

// Insert buffers o and returns the id it will rest under. The order is not
// visible to matching until the next Check. A malformed order panics.
func (e *Exchange) Insert(o orderbook.Order) orderbook.OrderID {
	if err := o.Validate(); err != nil {
		panic(fmt.Sprintf("exchange: malformed order: %v", err))
	}
	o.ID = e.book.NewID()
	e.pending = append(e.pending, o)
	return o.ID
}

// Delete cancels an order whether it is still buffered or already resting.
// It reports whether anything was removed.
func (e *Exchange) Delete(id orderbook.OrderID) bool {
	for i, o := range e.pending {
		if o.ID == id {
			e.pending = append(e.pending[:i], e.pending[i+1:]...)
			return true
		}
	}
	return e.book.Delete(id)
}

// ClearSymbol cancels every buffered and resting order for symbol.
func (e *Exchange) ClearSymbol(symbol string) []orderbook.OrderID {
	var removed []orderbook.OrderID
	kept := e.pending[:0]
	for _, o := range e.pending {
		if o.Symbol == symbol {
			removed = append(removed, o.ID)
			continue
		}
		kept = append(kept, o)
	}
	e.pending = kept
	return append(e.book.ClearBySymbol(symbol), removed...)
}

// ClearSymbolFor cancels the buffered and resting orders for symbol that
// belong to sub, in ascending id order.
func (e *Exchange) ClearSymbolFor(symbol string, sub orderbook.SubscriberID) []orderbook.OrderID {
	var ids []orderbook.OrderID
	for _, o := range e.pending {
		if o.Symbol == symbol && o.SubscriberID == sub {
			ids = append(ids, o.ID)
		}
	}
	for _, o := range e.book.Orders() {
		if o.Symbol == symbol && o.SubscriberID == sub {
			ids = append(ids, o.ID)
		}
	}
	slices.Sort(ids)
	for _, id := range ids {
		e.Delete(id)
	}
	return ids
}

// Lookup returns a buffered or resting order by id.
func (e *Exchange) Lookup(id orderbook.OrderID) (orderbook.Order, bool) {
	for _, o := range e.pending {
		if o.ID == id {
			return o, true
		}
	}
	return e.book.Get(id)
}

// Check advances the clock one step, commits buffered orders to the book and
// matches the book at the new time.
func (e *Exchange) Check() []orderbook.Trade {
	e.clock.Advance()
	return e.settle()
}

// settle commits pending orders and runs a match pass at the current time.
func (e *Exchange) settle() []orderbook.Trade {
	for _, o := range e.pending {
		e.book.Place(o)
	}
	e.pending = e.pending[:0]
	return e.book.MatchPass(e.clock.Now(), e.source)
}

// Now returns the current simulation time.
func (e *Exchange) Now() clock.Time {
	return e.clock.Now()
}

// HasMore reports whether Check may be called again.
func (e *Exchange) HasMore() bool {
	return e.clock.HasMore()
}

// Clock returns a read-only view of the exchange clock.
func (e *Exchange) Clock() clock.Reader {
	return e.clock
}

// Quotes returns the quotes at the current time.
func (e *Exchange) Quotes() []quote.Quote {
	qs, _ := e.source.GetQuotes(e.clock.Now())
	return qs
}

// Resting returns the orders currently in the book, excluding buffered ones.
func (e *Exchange) Resting() []orderbook.Order {
	return e.book.Orders()
}

// Pending returns the number of buffered orders.
func (e *Exchange) Pending() int {
	return len(e.pending)
}
