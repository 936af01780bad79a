package strategy

import (
	"context"
	"testing"

	"github.com/ismaiel54/backtest-exchange/internal/clock"
	"github.com/ismaiel54/backtest-exchange/internal/config"
	"github.com/ismaiel54/backtest-exchange/internal/cost"
	"github.com/ismaiel54/backtest-exchange/internal/exchange"
	"github.com/ismaiel54/backtest-exchange/internal/orderbook"
	"github.com/ismaiel54/backtest-exchange/internal/quote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func q(sym string, t clock.Time, bid, ask float64) quote.Quote {
	return quote.Quote{Symbol: sym, Time: t, Bid: bid, Ask: ask}
}

func TestNew(t *testing.T) {
	s, err := New(config.StrategyConfig{Name: "b", Type: "buy_and_hold", Budget: 1}, cost.None())
	require.NoError(t, err)
	assert.Equal(t, "b", s.Name())

	_, err = New(config.StrategyConfig{Type: "martingale"}, cost.None())
	assert.Error(t, err)
}

func TestBuyAndHold(t *testing.T) {
	s := NewBuyAndHold("bh", []string{"AAA", "BBB"}, 1000, cost.Flat(10))

	d := s.Decide(View{Quotes: []quote.Quote{q("AAA", 1, 9, 10), q("ZZZ", 1, 1, 2)}})
	require.Len(t, d.Orders, 1)
	assert.Equal(t, orderbook.MarketBuy, d.Orders[0].Kind)
	assert.Equal(t, "AAA", d.Orders[0].Symbol)
	// Half the budget less the flat fee at ask 10.
	assert.Equal(t, 49.0, d.Orders[0].Quantity)

	// Still open, so nothing new.
	d = s.Decide(View{Quotes: []quote.Quote{q("AAA", 2, 9, 10)}, Open: map[string]int{"AAA": 1}})
	assert.Empty(t, d.Orders)

	// Filled: never buys AAA again.
	d = s.Decide(View{Quotes: []quote.Quote{q("AAA", 3, 9, 10)}, Positions: map[string]float64{"AAA": 49}})
	assert.Empty(t, d.Orders)
	d = s.Decide(View{Quotes: []quote.Quote{q("AAA", 4, 9, 10)}})
	assert.Empty(t, d.Orders)
}

func TestMeanRevert(t *testing.T) {
	s := NewMeanRevert("mr", nil, 1000, 3, 0.05, 0.1, cost.None())

	for i, mid := range []float64{100, 100} {
		d := s.Decide(View{Quotes: []quote.Quote{q("AAA", clock.Time(i), mid-1, mid+1)}})
		assert.Empty(t, d.Orders)
	}

	// Mid 80 against a mean of ~93.3 is a dip.
	d := s.Decide(View{Quotes: []quote.Quote{q("AAA", 2, 79, 81)}})
	require.Len(t, d.Orders, 1)
	buy := d.Orders[0]
	assert.Equal(t, orderbook.LimitBuy, buy.Kind)
	require.NotNil(t, buy.Price)
	assert.Equal(t, 81.0, *buy.Price)
	assert.Equal(t, 12.0, buy.Quantity)

	// Holding: a stop goes in once.
	held := map[string]float64{"AAA": 12}
	d = s.Decide(View{Quotes: []quote.Quote{q("AAA", 3, 79, 81)}, Positions: held})
	require.Len(t, d.Orders, 1)
	assert.Equal(t, orderbook.StopSell, d.Orders[0].Kind)
	assert.InDelta(t, 72.0, *d.Orders[0].Price, 1e-9)
	d = s.Decide(View{Quotes: []quote.Quote{q("AAA", 4, 79, 81)}, Positions: held})
	assert.Empty(t, d.Orders)

	// Recovery well above the mean: clear the stop and sell at market.
	d = s.Decide(View{Quotes: []quote.Quote{q("AAA", 5, 119, 121)}, Positions: held})
	assert.Equal(t, []string{"AAA"}, d.Clear)
	require.Len(t, d.Orders, 1)
	assert.Equal(t, orderbook.MarketSell, d.Orders[0].Kind)
	assert.Equal(t, 12.0, d.Orders[0].Quantity)
}

// scripted sends the same limit order on every step.
type scripted struct{ order orderbook.Order }

func (s scripted) Name() string { return "scripted" }

func (s scripted) Decide(View) Decision {
	return Decision{Orders: []orderbook.Order{s.order}}
}

func TestRunner_DedupAndFills(t *testing.T) {
	clk, err := clock.New([]clock.Time{1, 2, 3, 4})
	require.NoError(t, err)
	mem := quote.NewMemory()
	for _, tm := range []clock.Time{1, 2, 3} {
		mem.Add(q("AAA", tm, 99, 101))
	}
	mem.Add(q("AAA", 4, 89, 90))

	ex := exchange.NewConcurrent(clk, mem)
	ctx := context.Background()

	// Resting limit buy at 95 only fills once the ask drops to 90.
	r := NewRunner(ex.Subscribe(), scripted{orderbook.Priced(0, "AAA", orderbook.LimitBuy, 10, 95)}, 1000, nil)
	for ex.HasMore() {
		require.NoError(t, r.Step(ctx))
		_, err := ex.Check(ctx)
		require.NoError(t, err)
	}
	r.Settle()

	sum := r.Summary()
	assert.Equal(t, 1, sum.Fills)
	assert.Equal(t, 2, sum.Skipped)
	assert.Equal(t, 0, sum.Open)
	assert.Equal(t, 10.0, sum.Positions["AAA"])
	assert.InDelta(t, 100.0, sum.Cash, 1e-9)
	assert.Len(t, ex.Trades(), 1)
}

func TestRunner_ClosedSubscriber(t *testing.T) {
	clk, err := clock.New([]clock.Time{1, 2})
	require.NoError(t, err)
	ex := exchange.NewConcurrent(clk, quote.NewMemory())
	r := NewRunner(ex.Subscribe(), scripted{}, 0, nil)

	require.NoError(t, r.Step(context.Background()))
	ex.Close()
	assert.Error(t, r.Step(context.Background()))
}
