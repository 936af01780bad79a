package exchange

import (
	"context"
	"errors"

	"github.com/ismaiel54/backtest-exchange/internal/clock"
	"github.com/ismaiel54/backtest-exchange/internal/orderbook"
)

// Batch is the set of trades produced by one tick of one backtest.
type Batch struct {
	BacktestID string
	Time       clock.Time
	Trades     []orderbook.Trade
}

// Sink receives completed tick batches in time order. Exchanges call it
// without holding the book lock; implementations may block on I/O.
type Sink interface {
	Publish(ctx context.Context, batch Batch) error
}

// MultiSink fans a batch out to several sinks and joins their errors.
type MultiSink []Sink

// Publish implements Sink.
func (m MultiSink) Publish(ctx context.Context, batch Batch) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, batch); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
