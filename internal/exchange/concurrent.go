package exchange

import (
	"context"
	"fmt"
	"sync"

	"github.com/ismaiel54/backtest-exchange/internal/clock"
	"github.com/ismaiel54/backtest-exchange/internal/orderbook"
	"github.com/ismaiel54/backtest-exchange/internal/quote"
	"go.uber.org/zap"
)

// Concurrent lets several subscribers trade against one book and clock.
// A single coordinator drives Check; subscribers only talk to their mailboxes.
type Concurrent struct {
	mu     sync.Mutex
	ex     *Exchange
	subs   []*Subscriber
	trades []orderbook.Trade
	opts   options
	logger *zap.Logger
}

// NewConcurrent creates a multi-subscriber exchange.
func NewConcurrent(clk *clock.Clock, source quote.Source, opts ...Option) *Concurrent {
	o := buildOptions(opts)
	return &Concurrent{
		ex:     New(clk, source),
		opts:   o,
		logger: o.logger.With(zap.String("backtest_id", o.backtestID)),
	}
}

// Subscribe registers a subscriber with the next sequential id and publishes
// the current quotes to it straight away.
func (c *Concurrent) Subscribe() *Subscriber {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub := newSubscriber(orderbook.SubscriberID(len(c.subs)+1), c.opts)
	c.subs = append(c.subs, sub)
	c.publish(sub, c.ex.Quotes())

	c.logger.Debug("subscriber registered",
		zap.Uint64("subscriber_id", uint64(sub.id)),
		zap.Int64("time", int64(c.ex.Now())),
	)
	return sub
}

// Check runs one pass: advance the clock, broadcast the new quotes, apply
// queued order commands, match, and notify owners of their trades. Commands
// sent after the broadcast wait for the next pass. The returned error only
// reports sink failures; the pass itself has already been applied.
func (c *Concurrent) Check(ctx context.Context) ([]orderbook.Trade, error) {
	c.mu.Lock()

	// Only commands queued before subscribers could see the new quotes take
	// part in this pass.
	counts := make([]int, len(c.subs))
	for i, sub := range c.subs {
		counts[i] = sub.commands.Len()
	}

	c.ex.clock.Advance()
	now := c.ex.Now()

	quotes := c.ex.Quotes()
	for _, sub := range c.subs {
		c.publish(sub, quotes)
	}

	for i, sub := range c.subs {
		for _, cmd := range sub.commands.Drain(counts[i]) {
			c.apply(sub, cmd, now)
		}
	}

	trades := c.ex.settle()
	for i := range trades {
		tr := trades[i]
		owner := c.subscriber(tr.SubscriberID)
		if owner == nil {
			continue
		}
		c.notify(owner, Notification{Kind: TradeCompleted, Time: now, OrderID: tr.OrderID, Trade: &tr})
	}
	c.trades = append(c.trades, trades...)
	c.mu.Unlock()

	if len(trades) > 0 {
		c.logger.Debug("pass matched trades",
			zap.Int64("time", int64(now)),
			zap.Int("trades", len(trades)),
		)
	}

	if c.opts.sink != nil && len(trades) > 0 {
		batch := Batch{BacktestID: c.opts.backtestID, Time: now, Trades: trades}
		if err := c.opts.sink.Publish(ctx, batch); err != nil {
			return trades, fmt.Errorf("failed to publish trades: %w", err)
		}
	}
	return trades, nil
}

func (c *Concurrent) apply(sub *Subscriber, cmd command, now clock.Time) {
	switch cmd.kind {
	case cmdCreate:
		o := cmd.order
		o.ID = c.ex.Insert(o)
		c.notify(sub, Notification{Kind: OrderBooked, Time: now, OrderID: o.ID, Order: &o})
	case cmdDelete:
		o, ok := c.ex.Lookup(cmd.id)
		if !ok || o.SubscriberID != sub.id {
			return
		}
		if c.ex.Delete(cmd.id) {
			c.notify(sub, Notification{Kind: OrderDeleted, Time: now, OrderID: cmd.id})
		}
	case cmdClear:
		for _, id := range c.ex.ClearSymbolFor(cmd.symbol, sub.id) {
			c.notify(sub, Notification{Kind: OrderDeleted, Time: now, OrderID: id})
		}
	}
}

func (c *Concurrent) publish(sub *Subscriber, quotes []quote.Quote) {
	if !sub.quotes.Send(quotes) {
		c.logger.Warn("quote mailbox full, dropping quotes",
			zap.Uint64("subscriber_id", uint64(sub.id)),
			zap.Int64("time", int64(c.ex.Now())),
		)
	}
}

func (c *Concurrent) notify(sub *Subscriber, n Notification) {
	if !sub.notifications.Send(n) {
		c.logger.Warn("notification mailbox full, dropping notification",
			zap.Uint64("subscriber_id", uint64(sub.id)),
			zap.String("kind", n.Kind.String()),
			zap.Uint64("order_id", uint64(n.OrderID)),
		)
	}
}

// subscriber must be called with the lock held.
func (c *Concurrent) subscriber(id orderbook.SubscriberID) *Subscriber {
	idx := int(id) - 1
	if idx < 0 || idx >= len(c.subs) {
		return nil
	}
	return c.subs[idx]
}

// Trades returns a copy of the append-only trade log.
func (c *Concurrent) Trades() []orderbook.Trade {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]orderbook.Trade, len(c.trades))
	copy(out, c.trades)
	return out
}

// Now returns the current simulation time.
func (c *Concurrent) Now() clock.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ex.Now()
}

// HasMore reports whether Check may be called again.
func (c *Concurrent) HasMore() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ex.HasMore()
}

// Resting returns the orders resting in the book.
func (c *Concurrent) Resting() []orderbook.Order {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ex.Resting()
}

// Close closes every subscriber mailbox.
func (c *Concurrent) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sub := range c.subs {
		sub.close()
	}
}
