package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ismaiel54/backtest-exchange/internal/config"
	"github.com/ismaiel54/backtest-exchange/internal/logging"
	"github.com/ismaiel54/backtest-exchange/internal/orderbook"
	"github.com/ismaiel54/backtest-exchange/internal/quote"
	"github.com/ismaiel54/backtest-exchange/internal/rpc/exchangerpc"
	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadConfig("broker-client")

	var (
		addr       = flag.String("addr", cfg.ExchangeAddr, "Exchange gRPC address")
		dataset    = flag.String("dataset", "", "Dataset to start a backtest on (default: first listed)")
		backtestID = flag.String("backtest", "", "Join an existing backtest instead of starting one")
		symbol     = flag.String("symbol", "", "Symbol to trade (default: first quoted)")
		qty        = flag.Float64("qty", 10, "Order quantity")
		steps      = flag.Int("steps", 0, "Stop after this many rounds (0 runs to the end)")
		poll       = flag.Duration("poll", exchangerpc.DefaultPollInterval, "Round completion poll interval")
	)
	flag.Parse()

	logger, err := logging.NewLogger(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	client, err := exchangerpc.Dial(dialCtx, *addr, logger)
	cancel()
	if err != nil {
		logger.Fatal("failed to dial exchange", zap.Error(err))
	}
	defer client.Close()

	bt := *backtestID
	if bt == "" {
		bt, err = startBacktest(ctx, client, *dataset)
		if err != nil {
			logger.Fatal("failed to start backtest", zap.Error(err))
		}
	}

	sub, err := client.Register(ctx, bt)
	if err != nil {
		logger.Fatal("failed to register", zap.Error(err))
	}
	logger.Info("registered",
		zap.String("backtest_id", bt),
		zap.Uint64("subscriber_id", sub),
	)

	var (
		position float64
		fills    int
		rounds   int
	)
	for *steps == 0 || rounds < *steps {
		quotes, err := client.FetchQuotes(ctx, bt)
		if err != nil {
			logger.Fatal("failed to fetch quotes", zap.Error(err))
		}
		if sym := pickSymbol(*symbol, quotes.Quotes); sym != "" {
			// Flip between flat and long each round the last order filled.
			kind := orderbook.MarketBuy
			if position > 0 {
				kind = orderbook.MarketSell
			}
			order := exchangerpc.Order{Symbol: sym, Kind: kind.String(), Quantity: *qty}
			if _, err := client.SendOrder(ctx, bt, sub, order); err != nil {
				logger.Fatal("failed to send order", zap.Error(err))
			}
		}

		now, err := client.TickAndWait(ctx, bt, sub, *poll)
		if exchangerpc.IsFinished(err) {
			logger.Info("backtest finished", zap.Int64("time", int64(quotes.Time)))
			break
		}
		if err != nil {
			logger.Fatal("tick failed", zap.Error(err))
		}
		rounds++

		trades, err := client.FetchTrades(ctx, bt)
		if err != nil {
			logger.Fatal("failed to fetch trades", zap.Error(err))
		}
		for _, t := range trades {
			if t.SubscriberID != sub {
				continue
			}
			fills++
			if t.Direction == orderbook.Buy.String() {
				position += t.Quantity
			} else {
				position -= t.Quantity
			}
			logger.Debug("fill",
				zap.Uint64("order_id", t.OrderID),
				zap.String("symbol", t.Symbol),
				zap.String("direction", t.Direction),
				zap.Float64("price", t.Price),
				zap.Int64("time", int64(now)),
			)
		}
	}

	fmt.Println("\n=== Broker Results ===")
	fmt.Printf("Backtest: %s, subscriber: %d\n", bt, sub)
	fmt.Printf("Rounds: %d, fills: %d, position: %.0f\n", rounds, fills, position)
}

func startBacktest(ctx context.Context, client *exchangerpc.Client, dataset string) (string, error) {
	if dataset == "" {
		datasets, err := client.ListDatasets(ctx)
		if err != nil {
			return "", err
		}
		if len(datasets) == 0 {
			return "", fmt.Errorf("exchange has no datasets")
		}
		dataset = datasets[0].Name
	}
	resp, err := client.Init(ctx, dataset)
	if err != nil {
		return "", err
	}
	return resp.BacktestID, nil
}

func pickSymbol(want string, quotes []quote.Quote) string {
	for _, q := range quotes {
		if want == "" || q.Symbol == want {
			return q.Symbol
		}
	}
	return ""
}
