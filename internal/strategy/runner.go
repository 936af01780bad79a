package strategy

import (
	"context"
	"fmt"
	"maps"

	"github.com/ismaiel54/backtest-exchange/internal/clock"
	"github.com/ismaiel54/backtest-exchange/internal/exchange"
	"github.com/ismaiel54/backtest-exchange/internal/orderbook"
	"github.com/ismaiel54/backtest-exchange/internal/quote"
	"go.uber.org/zap"
)

// Runner drives one strategy through a Concurrent exchange subscriber.
//
// It mirrors the strategy's unfilled orders in a private book so that an
// order equivalent to one already open is not sent twice. Exchange ids are
// learnt from OrderBooked notifications, which arrive in send order.
type Runner struct {
	sub      *exchange.Subscriber
	strategy Strategy
	logger   *zap.Logger

	open     *orderbook.Book
	awaiting []orderbook.OrderID
	byRemote map[orderbook.OrderID]orderbook.OrderID

	positions map[string]float64
	cash      float64
	now       clock.Time
	fills     int
	skipped   int
}

// NewRunner creates a runner starting with budget in cash.
func NewRunner(sub *exchange.Subscriber, s Strategy, budget float64, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		sub:       sub,
		strategy:  s,
		logger:    logger.With(zap.String("strategy", s.Name()), zap.Uint64("subscriber_id", uint64(sub.ID()))),
		open:      orderbook.New(),
		byRemote:  make(map[orderbook.OrderID]orderbook.OrderID),
		positions: make(map[string]float64),
		cash:      budget,
	}
}

// Step waits for the next quote set and lets the strategy act on it.
// Notifications received before the quotes are applied first.
func (r *Runner) Step(ctx context.Context) error {
	quotes, err := r.sub.NextQuotes(ctx)
	if err != nil {
		return fmt.Errorf("failed to receive quotes: %w", err)
	}
	r.Settle()
	if len(quotes) > 0 {
		r.now = quotes[0].Time
	}

	d := r.strategy.Decide(r.view(quotes))

	for _, symbol := range d.Clear {
		if err := r.sub.ClearSymbol(symbol); err != nil {
			return fmt.Errorf("failed to clear %s: %w", symbol, err)
		}
		r.open.ClearBySymbol(symbol)
	}
	for _, o := range d.Orders {
		if err := o.Validate(); err != nil {
			r.logger.Debug("strategy produced invalid order", zap.Error(err))
			continue
		}
		if len(r.open.Equivalent(o)) > 0 {
			r.skipped++
			continue
		}
		if err := r.sub.SendOrder(o); err != nil {
			return fmt.Errorf("failed to send order: %w", err)
		}
		r.awaiting = append(r.awaiting, r.open.Insert(o))
	}
	return nil
}

// Settle applies every notification received so far.
func (r *Runner) Settle() {
	for _, n := range r.sub.Notifications() {
		switch n.Kind {
		case exchange.OrderBooked:
			if len(r.awaiting) == 0 {
				r.logger.Warn("booked notification without a sent order", zap.Uint64("order_id", uint64(n.OrderID)))
				continue
			}
			r.byRemote[n.OrderID] = r.awaiting[0]
			r.awaiting = r.awaiting[1:]
		case exchange.OrderDeleted:
			r.forget(n.OrderID)
		case exchange.TradeCompleted:
			r.forget(n.OrderID)
			r.apply(*n.Trade)
		}
	}
}

func (r *Runner) forget(remote orderbook.OrderID) {
	if local, ok := r.byRemote[remote]; ok {
		r.open.Delete(local)
		delete(r.byRemote, remote)
	}
}

func (r *Runner) apply(t orderbook.Trade) {
	r.fills++
	if t.Direction == orderbook.Buy {
		r.positions[t.Symbol] += t.Quantity
		r.cash -= t.Value
	} else {
		r.positions[t.Symbol] -= t.Quantity
		r.cash += t.Value
	}
	r.logger.Debug("fill",
		zap.Uint64("order_id", uint64(t.OrderID)),
		zap.String("symbol", t.Symbol),
		zap.String("direction", t.Direction.String()),
		zap.Float64("quantity", t.Quantity),
		zap.Float64("price", t.Price()),
		zap.Int64("time", int64(t.Time)),
	)
}

func (r *Runner) view(quotes []quote.Quote) View {
	open := make(map[string]int)
	for _, o := range r.open.Orders() {
		open[o.Symbol]++
	}
	return View{
		Time:      r.now,
		Quotes:    quotes,
		Positions: maps.Clone(r.positions),
		Open:      open,
		Cash:      r.cash,
	}
}

// Summary is a runner's final state.
type Summary struct {
	Name      string
	Fills     int
	Skipped   int
	Open      int
	Cash      float64
	Positions map[string]float64
}

func (r *Runner) Summary() Summary {
	return Summary{
		Name:      r.strategy.Name(),
		Fills:     r.fills,
		Skipped:   r.skipped,
		Open:      r.open.Len(),
		Cash:      r.cash,
		Positions: maps.Clone(r.positions),
	}
}
