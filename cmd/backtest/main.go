package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"sort"
	"syscall"

	"github.com/google/uuid"
	"github.com/ismaiel54/backtest-exchange/internal/clock"
	"github.com/ismaiel54/backtest-exchange/internal/config"
	"github.com/ismaiel54/backtest-exchange/internal/cost"
	"github.com/ismaiel54/backtest-exchange/internal/exchange"
	"github.com/ismaiel54/backtest-exchange/internal/logging"
	"github.com/ismaiel54/backtest-exchange/internal/msg"
	"github.com/ismaiel54/backtest-exchange/internal/orderbook"
	"github.com/ismaiel54/backtest-exchange/internal/queue"
	"github.com/ismaiel54/backtest-exchange/internal/quote"
	"github.com/ismaiel54/backtest-exchange/internal/strategy"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	var (
		runPath = flag.String("run", "", "Path to the YAML run file")
		export  = flag.String("export", "", "Save the run's quotes to this sqlite dataset")
	)
	flag.Parse()

	if *runPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -run <run.yaml> [-export quotes.db]\n", os.Args[0])
		os.Exit(1)
	}

	cfg := config.LoadConfig("backtest")

	logger, err := logging.NewLogger(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	run, err := config.LoadRun(*runPath)
	if err != nil {
		logger.Fatal("failed to load run file", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mem, times, err := loadQuotes(ctx, run.Data)
	if err != nil {
		logger.Fatal("failed to load quotes", zap.Error(err))
	}
	if *export != "" {
		if err := exportQuotes(ctx, *export, mem); err != nil {
			logger.Fatal("failed to export quotes", zap.Error(err))
		}
		logger.Info("quotes exported", zap.String("path", *export))
	}

	costs, err := cost.Parse(run.Cost)
	if err != nil {
		logger.Fatal("invalid cost model", zap.Error(err))
	}
	policy, err := queue.ParsePolicy(run.Exchange.QueuePolicy)
	if err != nil {
		logger.Fatal("invalid queue policy", zap.Error(err))
	}

	clk, err := clock.New(times)
	if err != nil {
		logger.Fatal("invalid time axis", zap.Error(err))
	}

	backtestID := uuid.NewString()
	opts := []exchange.Option{
		exchange.WithBacktestID(backtestID),
		exchange.WithLogger(logger),
		exchange.WithQueue(run.Exchange.QueueCapacity, policy),
	}
	if brokers := msg.ParseBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		producer, err := msg.NewProducer(msg.Config{Brokers: brokers, ClientID: cfg.ServiceName}, logger)
		if err != nil {
			logger.Fatal("failed to create kafka producer", zap.Error(err))
		}
		defer producer.Close()
		opts = append(opts, exchange.WithSink(msg.NewTradePublisher(producer, cfg.KafkaTradesTopic, logger)))
	}
	ex := exchange.NewConcurrent(clk, mem, opts...)
	defer ex.Close()

	runners := make([]*strategy.Runner, 0, len(run.Strategies))
	for _, sc := range run.Strategies {
		s, err := strategy.New(sc, costs)
		if err != nil {
			logger.Fatal("failed to build strategy", zap.Error(err))
		}
		runners = append(runners, strategy.NewRunner(ex.Subscribe(), s, sc.Budget, logger))
	}

	logger.Info("starting backtest",
		zap.String("backtest_id", backtestID),
		zap.String("name", run.Name),
		zap.Int("steps", clk.Len()),
		zap.Int("strategies", len(runners)),
	)

	// Lockstep: every strategy reacts to the current quotes, then the
	// exchange advances one step.
	for ex.HasMore() {
		g, gctx := errgroup.WithContext(ctx)
		for _, r := range runners {
			g.Go(func() error { return r.Step(gctx) })
		}
		if err := g.Wait(); err != nil {
			logger.Fatal("strategy step failed", zap.Error(err))
		}
		if _, err := ex.Check(ctx); err != nil {
			logger.Warn("failed to publish trades", zap.Error(err))
		}
	}
	for _, r := range runners {
		r.Settle()
	}

	printSummary(run, backtestID, clk, mem, ex.Trades(), runners)
}

func loadQuotes(ctx context.Context, data config.DataConfig) (*quote.Memory, []clock.Time, error) {
	if data.Dataset != "" {
		store, err := quote.Open(data.Dataset)
		if err != nil {
			return nil, nil, err
		}
		defer store.Close()
		return store.Load(ctx)
	}

	syn := data.Synthetic
	end := clock.Time(syn.Start + int64(syn.Steps-1)*syn.Step)
	clk, err := clock.FromRange(clock.Time(syn.Start), end, syn.Step)
	if err != nil {
		return nil, nil, err
	}
	mem, err := quote.Synthetic(quote.SyntheticConfig{
		Symbols:    syn.Symbols,
		StartPrice: syn.StartPrice,
		Volatility: syn.Volatility,
		Spread:     syn.Spread,
		MissingPct: syn.MissingPct,
		Seed:       syn.Seed,
	}, clk.Peek())
	if err != nil {
		return nil, nil, err
	}
	return mem, slices.Collect(clk.Peek()), nil
}

func exportQuotes(ctx context.Context, path string, mem *quote.Memory) error {
	store, err := quote.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Save(ctx, mem.All())
}

func printSummary(run *config.Run, backtestID string, clk *clock.Clock, mem *quote.Memory, trades []orderbook.Trade, runners []*strategy.Runner) {
	last := clk.Now()

	fmt.Println("\n=== Backtest Results ===")
	fmt.Printf("Run: %s (%s)\n", run.Name, backtestID)
	fmt.Printf("Steps: %d, final time: %d\n", clk.Len(), last)
	fmt.Printf("Trades: %d\n", len(trades))

	for _, r := range runners {
		sum := r.Summary()
		equity := sum.Cash
		symbols := make([]string, 0, len(sum.Positions))
		for sym := range sum.Positions {
			symbols = append(symbols, sym)
		}
		sort.Strings(symbols)

		fmt.Printf("\n[%s] fills=%d skipped=%d open=%d cash=%.2f\n", sum.Name, sum.Fills, sum.Skipped, sum.Open, sum.Cash)
		for _, sym := range symbols {
			qty := sum.Positions[sym]
			mark := "n/a"
			if q, ok := mem.GetQuote(last, sym); ok {
				equity += qty * q.Bid
				mark = fmt.Sprintf("%.2f", q.Bid)
			}
			fmt.Printf("  %-8s qty=%-10.0f mark=%s\n", sym, qty, mark)
		}
		fmt.Printf("  equity=%.2f\n", equity)
	}
}
