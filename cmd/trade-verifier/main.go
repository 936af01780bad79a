package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ismaiel54/backtest-exchange/internal/logging"
	"github.com/ismaiel54/backtest-exchange/internal/msg"
	"go.uber.org/zap"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <duration_seconds> [brokers] [topic]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Example: %s 30 127.0.0.1:9092 %s\n", os.Args[0], msg.TopicTrades)
		os.Exit(1)
	}

	var durationSeconds int
	if _, err := fmt.Sscanf(os.Args[1], "%d", &durationSeconds); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid duration: %v\n", err)
		os.Exit(1)
	}

	brokers := "127.0.0.1:9092"
	if len(os.Args) >= 3 {
		brokers = os.Args[2]
	}
	topic := msg.TopicTrades
	if len(os.Args) >= 4 {
		topic = os.Args[3]
	}

	logger, err := logging.NewLogger("trade-verifier", "info")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	brokerList := msg.ParseBrokers(brokers)
	logger.Info("starting trade verifier",
		zap.Int("duration_seconds", durationSeconds),
		zap.Strings("brokers", brokerList),
		zap.String("topic", topic),
	)

	// A fresh group per run so every run reads the topic from the start
	group := fmt.Sprintf("trade-verifier-%d", time.Now().UnixNano())
	consumer, err := msg.NewConsumer(msg.Config{Brokers: brokerList, ClientID: "trade-verifier"}, group, []string{topic}, true, logger)
	if err != nil {
		logger.Fatal("failed to create consumer", zap.Error(err))
	}
	defer consumer.Close()

	verifier := msg.NewVerifier()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(durationSeconds)*time.Second)
	defer cancel()

	err = consumer.Run(ctx, func(ctx context.Context, rec msg.Record) error {
		trade, err := msg.DecodeTrade(rec)
		if err != nil {
			logger.Warn("skipping malformed trade", zap.Error(err))
			return nil
		}
		verifier.Observe(trade)

		logger.Debug("consumed trade",
			zap.String("backtest_id", trade.BacktestID),
			zap.Uint64("order_id", trade.OrderID),
			zap.String("event_id", trade.EventID),
			zap.Int64("time", trade.Time),
			zap.Int32("partition", rec.Partition),
			zap.Int64("offset", rec.Offset),
		)
		return nil
	})
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Error("consumer error", zap.Error(err))
	}

	report := verifier.Report()

	fmt.Println("\n=== Verification Results ===")
	fmt.Printf("Total trades consumed: %d\n", report.Total)
	fmt.Printf("Backtests seen: %d\n", report.Backtests)
	fmt.Printf("Unique orders filled: %d\n", report.Orders)
	fmt.Printf("Orders filled more than once: %d\n", len(report.Duplicates))
	fmt.Printf("Trade time regressions: %d\n", len(report.Regressions))

	if len(report.Duplicates) > 0 {
		fmt.Println("\nDuplicate fills:")
		for _, key := range report.DuplicateKeys() {
			fmt.Printf("  Order: %s, Count: %d, First Event ID: %s\n", key, report.Duplicates[key], report.FirstEvent[key])
		}
	}
	for _, r := range report.Regressions {
		fmt.Printf("  %s\n", r)
	}

	if !report.OK() {
		fmt.Println("\nVERIFICATION FAILED")
		os.Exit(1)
	}
	fmt.Println("\nVERIFICATION PASSED")
}
