// Package strategy holds the demo strategies the backtest binary runs and the
// runner that connects a strategy to an in-process exchange subscriber.
package strategy

import (
	"fmt"
	"slices"

	"github.com/ismaiel54/backtest-exchange/internal/clock"
	"github.com/ismaiel54/backtest-exchange/internal/config"
	"github.com/ismaiel54/backtest-exchange/internal/cost"
	"github.com/ismaiel54/backtest-exchange/internal/orderbook"
	"github.com/ismaiel54/backtest-exchange/internal/quote"
)

// View is what a strategy sees when it decides.
type View struct {
	Time      clock.Time
	Quotes    []quote.Quote
	Positions map[string]float64
	// Open counts this strategy's unfilled orders per symbol.
	Open map[string]int
	Cash float64
}

// Decision is a strategy's response to one quote set. Clear is applied
// before Orders.
type Decision struct {
	Clear  []string
	Orders []orderbook.Order
}

// Strategy turns quotes into orders.
type Strategy interface {
	Name() string
	Decide(v View) Decision
}

// New builds the strategy named by cfg.Type.
func New(cfg config.StrategyConfig, costs cost.Func) (Strategy, error) {
	switch cfg.Type {
	case "buy_and_hold":
		return NewBuyAndHold(cfg.Name, cfg.Symbols, cfg.Budget, costs), nil
	case "mean_revert":
		return NewMeanRevert(cfg.Name, cfg.Symbols, cfg.Budget, cfg.Window, cfg.Threshold, cfg.StopLossPct, costs), nil
	default:
		return nil, fmt.Errorf("unknown strategy type %q", cfg.Type)
	}
}

// universe filters quotes down to symbols. An empty list allows everything.
type universe []string

func (u universe) allows(symbol string) bool {
	return len(u) == 0 || slices.Contains(u, symbol)
}

// share splits budget evenly across the universe, or across the quotes seen
// when the universe is open.
func (u universe) share(budget float64, quotes []quote.Quote) float64 {
	n := len(u)
	if n == 0 {
		n = len(quotes)
	}
	if n == 0 {
		return 0
	}
	return budget / float64(n)
}

// BuyAndHold buys each symbol once with an equal share of its budget and
// never sells.
type BuyAndHold struct {
	name    string
	symbols universe
	budget  float64
	costs   cost.Func
	bought  map[string]bool
}

func NewBuyAndHold(name string, symbols []string, budget float64, costs cost.Func) *BuyAndHold {
	return &BuyAndHold{
		name:    name,
		symbols: symbols,
		budget:  budget,
		costs:   costs,
		bought:  make(map[string]bool),
	}
}

func (s *BuyAndHold) Name() string { return s.name }

func (s *BuyAndHold) Decide(v View) Decision {
	var d Decision
	for _, q := range v.Quotes {
		if !s.symbols.allows(q.Symbol) || s.bought[q.Symbol] {
			continue
		}
		if v.Positions[q.Symbol] > 0 {
			s.bought[q.Symbol] = true
			continue
		}
		if v.Open[q.Symbol] > 0 {
			continue
		}
		qty := cost.Quantity(s.symbols.share(s.budget, v.Quotes), q.Ask, true, s.costs)
		if qty <= 0 {
			continue
		}
		d.Orders = append(d.Orders, orderbook.Market(0, q.Symbol, orderbook.MarketBuy, qty))
	}
	return d
}

// MeanRevert buys with a limit order when the mid drops threshold below its
// moving average, protects the position with a stop, and sells at market once
// the mid rises threshold above the average.
type MeanRevert struct {
	name      string
	symbols   universe
	budget    float64
	window    int
	threshold float64
	stopLoss  float64
	costs     cost.Func

	mids       map[string][]float64
	stopPlaced map[string]bool
}

func NewMeanRevert(name string, symbols []string, budget float64, window int, threshold, stopLoss float64, costs cost.Func) *MeanRevert {
	return &MeanRevert{
		name:       name,
		symbols:    symbols,
		budget:     budget,
		window:     window,
		threshold:  threshold,
		stopLoss:   stopLoss,
		costs:      costs,
		mids:       make(map[string][]float64),
		stopPlaced: make(map[string]bool),
	}
}

func (s *MeanRevert) Name() string { return s.name }

func (s *MeanRevert) Decide(v View) Decision {
	var d Decision
	for _, q := range v.Quotes {
		if !s.symbols.allows(q.Symbol) {
			continue
		}
		mid := (q.Bid + q.Ask) / 2
		mean, full := s.push(q.Symbol, mid)

		pos := v.Positions[q.Symbol]
		if pos <= 0 {
			s.stopPlaced[q.Symbol] = false
			if full && v.Open[q.Symbol] == 0 && mid < mean*(1-s.threshold) {
				qty := cost.Quantity(s.symbols.share(s.budget, v.Quotes), q.Ask, true, s.costs)
				if qty > 0 {
					d.Orders = append(d.Orders, orderbook.Priced(0, q.Symbol, orderbook.LimitBuy, qty, q.Ask))
				}
			}
			continue
		}

		if full && mid > mean*(1+s.threshold) {
			d.Clear = append(d.Clear, q.Symbol)
			d.Orders = append(d.Orders, orderbook.Market(0, q.Symbol, orderbook.MarketSell, pos))
			s.stopPlaced[q.Symbol] = false
			continue
		}
		if !s.stopPlaced[q.Symbol] {
			stop := mid * (1 - s.stopLoss)
			d.Orders = append(d.Orders, orderbook.Priced(0, q.Symbol, orderbook.StopSell, pos, stop))
			s.stopPlaced[q.Symbol] = true
		}
	}
	return d
}

// push records mid and returns the mean of the window and whether the window
// is full.
func (s *MeanRevert) push(symbol string, mid float64) (float64, bool) {
	w := append(s.mids[symbol], mid)
	if len(w) > s.window {
		w = w[len(w)-s.window:]
	}
	s.mids[symbol] = w

	var sum float64
	for _, m := range w {
		sum += m
	}
	return sum / float64(len(w)), len(w) == s.window
}
