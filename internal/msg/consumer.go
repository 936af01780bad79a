package msg

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// Consumer wraps a Kafka consumer
type Consumer struct {
	client     *kgo.Client
	logger     *zap.Logger
	topics     []string
	group      string
	running    atomic.Bool
	processed  atomic.Int64
	errorCount atomic.Int64
	done       chan struct{}
}

// NewConsumer creates a new Kafka consumer. With fromStart set a new group
// reads each topic from its earliest offset.
func NewConsumer(cfg Config, group string, topics []string, fromStart bool, logger *zap.Logger) (*Consumer, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(topics...),
		kgo.DisableAutoCommit(), // Manual commit after handler success
	}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}
	if fromStart {
		opts = append(opts, kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	c := &Consumer{
		client: client,
		logger: logger,
		topics: topics,
		group:  group,
		done:   make(chan struct{}),
	}

	logger.Info("consumer initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("group", group),
		zap.Strings("topics", topics),
	)

	go c.logStats()

	return c, nil
}

// Run consumes records and calls handler for each one until ctx is done.
// Offsets are committed only after the handler succeeds.
func (c *Consumer) Run(ctx context.Context, handler func(context.Context, Record) error) error {
	c.logger.Info("starting consumer",
		zap.String("group", c.group),
		zap.Strings("topics", c.topics),
	)

	c.running.Store(true)
	defer c.running.Store(false)

	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return errors.New("kafka client closed")
		}
		if err := ctx.Err(); err != nil {
			c.logger.Info("consumer stopping", zap.String("group", c.group))
			return err
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.Warn("fetch error",
				zap.String("topic", topic),
				zap.Int32("partition", partition),
				zap.Error(err),
			)
		})

		iter := fetches.RecordIter()
		for !iter.Done() {
			record := iter.Next()
			rec := fromKgo(record)

			if err := c.handleWithRetry(ctx, rec, handler); err != nil {
				c.logger.Error("handler failed after retries",
					zap.String("topic", rec.Topic),
					zap.String("key", rec.Key),
					zap.Error(err),
				)
				c.errorCount.Add(1)
				continue
			}

			if err := c.client.CommitRecords(ctx, record); err != nil {
				c.logger.Warn("failed to commit offset",
					zap.String("topic", rec.Topic),
					zap.Int64("offset", rec.Offset),
					zap.Error(err),
				)
			}
			c.processed.Add(1)
		}
	}
}

// handleWithRetry calls handler with bounded retries
func (c *Consumer) handleWithRetry(ctx context.Context, rec Record, handler func(context.Context, Record) error) error {
	const maxRetries = 3
	backoff := 100 * time.Millisecond

	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err = handler(ctx, rec); err == nil {
			return nil
		}

		if attempt < maxRetries-1 {
			c.logger.Warn("handler failed, retrying",
				zap.String("topic", rec.Topic),
				zap.String("key", rec.Key),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}

	return fmt.Errorf("handler failed after %d attempts: %w", maxRetries, err)
}

// Close closes the consumer
func (c *Consumer) Close() {
	if c.client != nil {
		close(c.done)
		c.client.Close()
	}
}

// IsRunning returns whether the consumer is running
func (c *Consumer) IsRunning() bool {
	return c.running.Load()
}

// logStats logs consumer statistics periodically
func (c *Consumer) logStats() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.logger.Info("consumer stats",
				zap.String("group", c.group),
				zap.Int64("processed", c.processed.Load()),
				zap.Int64("errors", c.errorCount.Load()),
			)
		}
	}
}
