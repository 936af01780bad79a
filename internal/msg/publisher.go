package msg

import (
	"context"
	"fmt"

	"github.com/ismaiel54/backtest-exchange/internal/exchange"
	"go.uber.org/zap"
)

// JSONProducer is the part of Producer the trade publisher needs.
type JSONProducer interface {
	ProduceJSON(ctx context.Context, topic string, key string, v any) error
}

// TradePublisher publishes completed tick batches to Kafka, one record per
// trade keyed by backtest id.
type TradePublisher struct {
	producer JSONProducer
	topic    string
	logger   *zap.Logger
}

var _ exchange.Sink = (*TradePublisher)(nil)

// NewTradePublisher creates a publisher writing to topic.
func NewTradePublisher(producer JSONProducer, topic string, logger *zap.Logger) *TradePublisher {
	if topic == "" {
		topic = TopicTrades
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TradePublisher{producer: producer, topic: topic, logger: logger}
}

// Publish implements exchange.Sink. It stops at the first failed record.
func (p *TradePublisher) Publish(ctx context.Context, batch exchange.Batch) error {
	for _, t := range batch.Trades {
		m := NewTradeMsg(batch.BacktestID, t)
		if err := p.producer.ProduceJSON(ctx, p.topic, m.Key(), m); err != nil {
			return fmt.Errorf("failed to publish trade %s: %w", m.OrderKey(), err)
		}
	}
	p.logger.Debug("trades published",
		zap.String("backtest_id", batch.BacktestID),
		zap.Int64("time", int64(batch.Time)),
		zap.Int("trades", len(batch.Trades)),
		zap.String("topic", p.topic),
	)
	return nil
}
