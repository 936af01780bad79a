package exchange

import (
	"github.com/ismaiel54/backtest-exchange/internal/queue"
	"go.uber.org/zap"
)

// Defaults for subscriber mailboxes.
const (
	DefaultQueueCapacity = 1024
	DefaultQueuePolicy   = queue.Grow
)

type options struct {
	backtestID string
	logger     *zap.Logger
	sink       Sink
	capacity   int
	policy     queue.Policy
}

// Option configures Concurrent and Remote exchanges.
type Option func(*options)

// WithBacktestID labels published batches and log entries.
func WithBacktestID(id string) Option {
	return func(o *options) { o.backtestID = id }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithSink publishes every completed tick to sink.
func WithSink(sink Sink) Option {
	return func(o *options) { o.sink = sink }
}

// WithQueue sets the initial capacity and overflow policy of subscriber mailboxes.
func WithQueue(capacity int, policy queue.Policy) Option {
	return func(o *options) {
		o.capacity = capacity
		o.policy = policy
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger:   zap.NewNop(),
		capacity: DefaultQueueCapacity,
		policy:   DefaultQueuePolicy,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
