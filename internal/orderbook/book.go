package orderbook

import (
	"fmt"
	"sort"

	"github.com/ismaiel54/backtest-exchange/internal/clock"
	"github.com/ismaiel54/backtest-exchange/internal/quote"
)

// Book holds resting orders keyed by id. It borrows the quote source only for
// the duration of a match pass. Book is not safe for concurrent use.
type Book struct {
	orders map[OrderID]Order
	lastID OrderID
}

// New creates an empty book. The first id handed out is 1.
func New() *Book {
	return &Book{orders: make(map[OrderID]Order)}
}

// NewID reserves the next order id without storing anything.
func (b *Book) NewID() OrderID {
	b.lastID++
	return b.lastID
}

// Insert assigns a fresh id to o, stores it and returns the id. Callers must
// validate o first; a malformed order panics.
func (b *Book) Insert(o Order) OrderID {
	mustValid(o)
	o.ID = b.NewID()
	b.orders[o.ID] = o
	return o.ID
}

// Place stores an order whose id was reserved with NewID.
func (b *Book) Place(o Order) {
	if o.ID == 0 || o.ID > b.lastID {
		panic(fmt.Sprintf("orderbook: place with unreserved id %d", o.ID))
	}
	mustValid(o)
	b.orders[o.ID] = o
}

func mustValid(o Order) {
	if err := o.Validate(); err != nil {
		panic(fmt.Sprintf("orderbook: malformed order: %v", err))
	}
}

// Delete removes the order if it is still resting. Unknown ids are ignored
// because the order may already have matched.
func (b *Book) Delete(id OrderID) bool {
	if _, ok := b.orders[id]; !ok {
		return false
	}
	delete(b.orders, id)
	return true
}

// ClearBySymbol removes every resting order for symbol and returns their ids
// in ascending order.
func (b *Book) ClearBySymbol(symbol string) []OrderID {
	var removed []OrderID
	for id, o := range b.orders {
		if o.Symbol == symbol {
			removed = append(removed, id)
		}
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i] < removed[j] })
	for _, id := range removed {
		delete(b.orders, id)
	}
	return removed
}

// Get returns the resting order with id.
func (b *Book) Get(id OrderID) (Order, bool) {
	o, ok := b.orders[id]
	return o, ok
}

// Len returns the number of resting orders.
func (b *Book) Len() int {
	return len(b.orders)
}

// Orders returns the resting orders in ascending id order.
func (b *Book) Orders() []Order {
	out := make([]Order, 0, len(b.orders))
	for _, o := range b.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Equivalent returns ids of resting orders equal to o under Order.Equal.
func (b *Book) Equivalent(o Order) []OrderID {
	var ids []OrderID
	for _, rest := range b.Orders() {
		if rest.Equal(o) {
			ids = append(ids, rest.ID)
		}
	}
	return ids
}

// MatchPass tries every resting order against the quote for its symbol at t.
// Matched orders are removed and returned as trades; orders without a quote
// keep resting. Sells are evaluated before buys, then by ascending id, so the
// result is deterministic for a fixed book.
func (b *Book) MatchPass(t clock.Time, source quote.Source) []Trade {
	if source == nil {
		panic("orderbook: match pass without a quote source")
	}

	pending := b.Orders()
	sort.SliceStable(pending, func(i, j int) bool {
		return sellFirst(pending[i]) < sellFirst(pending[j])
	})

	var trades []Trade
	for _, o := range pending {
		q, ok := source.GetQuote(t, o.Symbol)
		if !ok {
			continue
		}
		price, fired := execute(o, q)
		if !fired {
			continue
		}

		delete(b.orders, o.ID)
		trades = append(trades, Trade{
			OrderID:      o.ID,
			SubscriberID: o.SubscriberID,
			Symbol:       o.Symbol,
			Value:        price * o.Quantity,
			Quantity:     o.Quantity,
			Time:         t,
			Direction:    o.Kind.Direction(),
		})
	}
	return trades
}

func sellFirst(o Order) int {
	if o.Kind.Direction() == Sell {
		return 0
	}
	return 1
}

// execute applies the matching rule for o against q. Bid is the price a
// counterparty pays for our sell, ask is what we pay to buy.
func execute(o Order, q quote.Quote) (float64, bool) {
	var limit float64
	if o.Kind.NeedsPrice() {
		limit = *o.Price
	}

	switch o.Kind {
	case MarketBuy:
		return q.Ask, true
	case MarketSell:
		return q.Bid, true
	case LimitBuy:
		return q.Ask, limit >= q.Ask
	case LimitSell:
		return q.Bid, limit <= q.Bid
	case StopBuy:
		return q.Ask, limit <= q.Ask
	case StopSell:
		return q.Bid, limit >= q.Bid
	default:
		panic(fmt.Sprintf("orderbook: unknown order kind %d for order %d", int(o.Kind), o.ID))
	}
}
