package orderbook

import (
	"testing"

	"github.com/ismaiel54/backtest-exchange/internal/clock"
	"github.com/ismaiel54/backtest-exchange/internal/quote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testQuotes() *quote.Memory {
	mem := quote.NewMemory()
	mem.Add(quote.Quote{Bid: 101, Ask: 102, Time: 100, Symbol: "ABC"})
	mem.Add(quote.Quote{Bid: 102, Ask: 103, Time: 101, Symbol: "ABC"})
	return mem
}

func TestInsert_AssignsIncreasingIDs(t *testing.T) {
	b := New()
	first := b.Insert(Market(1, "ABC", MarketBuy, 10))
	second := b.Insert(Market(1, "ABC", MarketBuy, 10))
	assert.Equal(t, OrderID(1), first)
	assert.Equal(t, OrderID(2), second)

	b.Delete(second)
	third := b.Insert(Market(1, "ABC", MarketBuy, 10))
	assert.Equal(t, OrderID(3), third, "ids are never reused")

	o, ok := b.Get(first)
	require.True(t, ok)
	assert.Equal(t, first, o.ID)
}

func TestPlace_RequiresReservedID(t *testing.T) {
	b := New()
	id := b.NewID()
	o := Market(1, "ABC", MarketBuy, 1)
	o.ID = id
	b.Place(o)
	assert.Equal(t, 1, b.Len())

	o.ID = id + 5
	assert.Panics(t, func() { b.Place(o) })
}

func TestDelete_AbsentIsNoop(t *testing.T) {
	b := New()
	keep := b.Insert(Market(1, "ABC", MarketBuy, 1))
	gone := b.Insert(Market(1, "ABC", MarketSell, 1))

	assert.True(t, b.Delete(gone))
	assert.False(t, b.Delete(gone))
	assert.False(t, b.Delete(999))

	_, ok := b.Get(keep)
	assert.True(t, ok)
	assert.Equal(t, 1, b.Len())
}

func TestClearBySymbol_IsolatesSymbols(t *testing.T) {
	b := New()
	x1 := b.Insert(Market(1, "X", MarketBuy, 1))
	y1 := b.Insert(Market(1, "Y", MarketBuy, 1))
	x2 := b.Insert(Priced(2, "X", LimitSell, 1, 50))

	assert.Equal(t, []OrderID{x1, x2}, b.ClearBySymbol("X"))
	assert.Empty(t, b.ClearBySymbol("X"))
	assert.Empty(t, b.ClearBySymbol("NONE"))

	_, ok := b.Get(y1)
	assert.True(t, ok)
	assert.Equal(t, 1, b.Len())
}

func TestMatchPass_MarketOrders(t *testing.T) {
	mem := testQuotes()
	b := New()
	buy := b.Insert(Market(1, "ABC", MarketBuy, 100))
	sell := b.Insert(Market(2, "ABC", MarketSell, 100))

	trades := b.MatchPass(101, mem)
	require.Len(t, trades, 2)

	// Sells are evaluated ahead of buys.
	assert.Equal(t, sell, trades[0].OrderID)
	assert.Equal(t, Sell, trades[0].Direction)
	assert.InDelta(t, 102.0, trades[0].Price(), 1e-9)

	assert.Equal(t, buy, trades[1].OrderID)
	assert.Equal(t, Buy, trades[1].Direction)
	assert.InDelta(t, 103.0, trades[1].Price(), 1e-9)
	assert.InDelta(t, 10300.0, trades[1].Value, 1e-9)
	assert.Equal(t, clock.Time(101), trades[1].Time)
	assert.Equal(t, SubscriberID(1), trades[1].SubscriberID)

	assert.Equal(t, 0, b.Len())
}

func TestMatchPass_LimitTieBreak(t *testing.T) {
	mem := testQuotes()
	b := New()
	low := b.Insert(Priced(1, "ABC", LimitBuy, 100, 95))
	high := b.Insert(Priced(1, "ABC", LimitBuy, 100, 105))

	trades := b.MatchPass(100, mem)
	require.Len(t, trades, 1)
	assert.Equal(t, high, trades[0].OrderID)
	assert.InDelta(t, 102.0, trades[0].Price(), 1e-9)

	_, ok := b.Get(low)
	assert.True(t, ok, "95 limit keeps resting")
}

func TestMatchPass_RuleTable(t *testing.T) {
	// bid=101 ask=102
	tests := []struct {
		name  string
		order Order
		fires bool
		price float64
	}{
		{"market buy", Market(1, "ABC", MarketBuy, 1), true, 102},
		{"market sell", Market(1, "ABC", MarketSell, 1), true, 101},
		{"limit buy at ask", Priced(1, "ABC", LimitBuy, 1, 102), true, 102},
		{"limit buy below ask", Priced(1, "ABC", LimitBuy, 1, 101.99), false, 0},
		{"limit sell at bid", Priced(1, "ABC", LimitSell, 1, 101), true, 101},
		{"limit sell above bid", Priced(1, "ABC", LimitSell, 1, 101.5), false, 0},
		{"stop buy triggered", Priced(1, "ABC", StopBuy, 1, 100), true, 102},
		{"stop buy waiting", Priced(1, "ABC", StopBuy, 1, 110), false, 0},
		{"stop sell triggered", Priced(1, "ABC", StopSell, 1, 105), true, 101},
		{"stop sell waiting", Priced(1, "ABC", StopSell, 1, 90), false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New()
			id := b.Insert(tt.order)
			trades := b.MatchPass(100, testQuotes())
			if !tt.fires {
				assert.Empty(t, trades)
				_, ok := b.Get(id)
				assert.True(t, ok)
				return
			}
			require.Len(t, trades, 1)
			assert.InDelta(t, tt.price, trades[0].Price(), 1e-9)
			assert.Equal(t, tt.order.Kind.Direction(), trades[0].Direction)
		})
	}
}

func TestMatchPass_MissingQuoteKeepsResting(t *testing.T) {
	mem := quote.NewMemory()
	b := New()
	id := b.Insert(Market(1, "LATE", MarketBuy, 5))

	assert.Empty(t, b.MatchPass(100, mem))
	assert.Empty(t, b.MatchPass(101, mem))
	_, ok := b.Get(id)
	require.True(t, ok)

	mem.Add(quote.Quote{Bid: 9, Ask: 10, Time: 102, Symbol: "LATE"})
	trades := b.MatchPass(102, mem)
	require.Len(t, trades, 1)
	assert.Equal(t, id, trades[0].OrderID)
	assert.Empty(t, b.MatchPass(102, mem), "an order matches at most once")
}

func TestMatchPass_SellsThenAscendingID(t *testing.T) {
	b := New()
	buy1 := b.Insert(Market(1, "ABC", MarketBuy, 1))
	sell2 := b.Insert(Market(2, "ABC", MarketSell, 1))
	buy3 := b.Insert(Priced(3, "ABC", LimitBuy, 1, 110))
	sell4 := b.Insert(Priced(1, "ABC", StopSell, 1, 105))

	trades := b.MatchPass(100, testQuotes())
	got := make([]OrderID, 0, len(trades))
	for _, tr := range trades {
		got = append(got, tr.OrderID)
	}
	assert.Equal(t, []OrderID{sell2, sell4, buy1, buy3}, got)
}

func TestInsert_RejectsMalformedOrders(t *testing.T) {
	tests := []struct {
		name  string
		order Order
	}{
		{"unknown kind", Order{SubscriberID: 1, Symbol: "ABC", Kind: Kind(42), Quantity: 1}},
		{"stop buy without price", Order{SubscriberID: 1, Symbol: "ABC", Kind: StopBuy, Quantity: 1}},
		{"market with price", Priced(1, "ABC", MarketSell, 1, 10)},
		{"zero quantity", Market(1, "ABC", MarketBuy, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New()
			assert.Panics(t, func() { b.Insert(tt.order) })

			o := tt.order
			o.ID = b.NewID()
			assert.Panics(t, func() { b.Place(o) })
			assert.Equal(t, 0, b.Len())
		})
	}
}

func TestEquivalent(t *testing.T) {
	b := New()
	a := b.Insert(Priced(1, "ABC", LimitBuy, 10, 95))
	b.Insert(Priced(1, "ABC", LimitBuy, 11, 95))
	c := b.Insert(Priced(2, "ABC", LimitBuy, 10, 99))

	probe := Priced(3, "ABC", LimitBuy, 10, 1)
	assert.Equal(t, []OrderID{a, c}, b.Equivalent(probe))
}
