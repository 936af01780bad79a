package exchange

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ismaiel54/backtest-exchange/internal/barrier"
	"github.com/ismaiel54/backtest-exchange/internal/clock"
	"github.com/ismaiel54/backtest-exchange/internal/orderbook"
	"github.com/ismaiel54/backtest-exchange/internal/quote"
	"go.uber.org/zap"
)

var (
	// ErrUnknownSubscriber is returned for ids that were never registered.
	ErrUnknownSubscriber = errors.New("unknown subscriber")

	// ErrFinished is returned by Tick once the clock has no more steps.
	ErrFinished = errors.New("backtest finished")
)

// TickResult describes what a Tick call observed.
type TickResult struct {
	// Triggered is true for the one call per round that advanced the exchange.
	Triggered bool
	// Now is the time after the round for the triggering call, and the
	// period the caller ticked for every other call.
	Now clock.Time
}

// Remote is the exchange behind the network service. Each registered
// subscriber drives its own cadence and calls Tick once per period; the call
// that completes the round advances the clock and matches the book.
//
// Book, clock and trade log sit behind separate locks held only for the
// critical section that needs them. A round holds all three, taken in the
// order book, clock, trades, so readers see either the whole round or none
// of it.
type Remote struct {
	ex *Exchange
	rv barrier.Rendezvous

	bookMu   sync.Mutex
	clockMu  sync.RWMutex
	tradesMu sync.RWMutex
	trades   []orderbook.Trade

	opts   options
	logger *zap.Logger
}

// NewRemote creates a barrier-synchronised exchange.
func NewRemote(clk *clock.Clock, source quote.Source, opts ...Option) *Remote {
	o := buildOptions(opts)
	return &Remote{
		ex:     New(clk, source),
		opts:   o,
		logger: o.logger.With(zap.String("backtest_id", o.backtestID)),
	}
}

// ID returns the backtest id the exchange was built with.
func (r *Remote) ID() string {
	return r.opts.backtestID
}

// Register adds a subscriber to the barrier and returns its id.
func (r *Remote) Register() orderbook.SubscriberID {
	id := orderbook.SubscriberID(r.rv.Register())
	r.logger.Info("subscriber registered",
		zap.Uint64("subscriber_id", uint64(id)),
		zap.Int64("registered", r.rv.Registered()),
	)
	return id
}

// Registered returns the number of registered subscribers.
func (r *Remote) Registered() int64 {
	return r.rv.Registered()
}

func (r *Remote) checkSubscriber(id orderbook.SubscriberID) error {
	if id == 0 || int64(id) > r.rv.Registered() {
		return fmt.Errorf("%w: %d", ErrUnknownSubscriber, id)
	}
	return nil
}

// SendOrder books o for subscriber sub. It becomes eligible to match after
// the next completed round.
func (r *Remote) SendOrder(sub orderbook.SubscriberID, o orderbook.Order) (orderbook.OrderID, error) {
	if err := r.checkSubscriber(sub); err != nil {
		return 0, err
	}
	o.SubscriberID = sub
	if err := o.Validate(); err != nil {
		return 0, fmt.Errorf("invalid order: %w", err)
	}

	r.bookMu.Lock()
	id := r.ex.Insert(o)
	r.bookMu.Unlock()

	r.logger.Debug("order booked",
		zap.Uint64("subscriber_id", uint64(sub)),
		zap.Uint64("order_id", uint64(id)),
		zap.String("symbol", o.Symbol),
		zap.String("kind", o.Kind.String()),
		zap.Float64("quantity", o.Quantity),
	)
	return id, nil
}

// DeleteOrder cancels id if it has not matched yet. Deleting an unknown or
// already matched id is a no-op.
func (r *Remote) DeleteOrder(id orderbook.OrderID) bool {
	r.bookMu.Lock()
	defer r.bookMu.Unlock()
	return r.ex.Delete(id)
}

// Quotes returns the current time and the quotes at that time.
func (r *Remote) Quotes() (clock.Time, []quote.Quote) {
	r.clockMu.RLock()
	defer r.clockMu.RUnlock()
	return r.ex.Now(), r.ex.Quotes()
}

// Now returns the current simulation time.
func (r *Remote) Now() clock.Time {
	r.clockMu.RLock()
	defer r.clockMu.RUnlock()
	return r.ex.Now()
}

// Trades returns the trades of the most recently completed round only.
func (r *Remote) Trades() []orderbook.Trade {
	r.tradesMu.RLock()
	defer r.tradesMu.RUnlock()

	out := make([]orderbook.Trade, len(r.trades))
	copy(out, r.trades)
	return out
}

// Tick records that sub is done with the current period. Calls that do not
// complete the round return at once with Triggered false. A subscriber that
// never ticks stalls every other subscriber of this exchange.
func (r *Remote) Tick(ctx context.Context, sub orderbook.SubscriberID) (TickResult, error) {
	if err := r.checkSubscriber(sub); err != nil {
		return TickResult{}, err
	}

	r.clockMu.RLock()
	more := r.ex.HasMore()
	ticked := r.ex.Now()
	r.clockMu.RUnlock()
	if !more {
		return TickResult{Now: ticked}, ErrFinished
	}

	var stepErr error
	triggered := r.rv.Arrive(func() {
		stepErr = r.step(ctx)
	})
	if !triggered {
		// The round may already have completed; report the period this
		// call closed so a waiting caller does not skip past it.
		return TickResult{Now: ticked}, nil
	}
	return TickResult{Triggered: true, Now: r.Now()}, stepErr
}

// step runs inside the barrier's critical section.
func (r *Remote) step(ctx context.Context) error {
	r.bookMu.Lock()
	r.clockMu.Lock()
	if !r.ex.HasMore() {
		r.clockMu.Unlock()
		r.bookMu.Unlock()
		return ErrFinished
	}
	r.ex.clock.Advance()
	now := r.ex.Now()
	trades := r.ex.settle()

	r.tradesMu.Lock()
	r.trades = trades
	r.tradesMu.Unlock()
	r.clockMu.Unlock()
	r.bookMu.Unlock()

	r.logger.Debug("round completed",
		zap.Int64("time", int64(now)),
		zap.Int("trades", len(trades)),
		zap.Int64("registered", r.rv.Registered()),
	)

	if r.opts.sink == nil || len(trades) == 0 {
		return nil
	}
	batch := Batch{BacktestID: r.opts.backtestID, Time: now, Trades: trades}
	if err := r.opts.sink.Publish(ctx, batch); err != nil {
		// The round has been applied; publishing is best effort.
		r.logger.Warn("failed to publish trades", zap.Int64("time", int64(now)), zap.Error(err))
	}
	return nil
}
