package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/ismaiel54/backtest-exchange/internal/chaos"
	"github.com/ismaiel54/backtest-exchange/internal/clock"
	"github.com/ismaiel54/backtest-exchange/internal/config"
	"github.com/ismaiel54/backtest-exchange/internal/exchange"
	"github.com/ismaiel54/backtest-exchange/internal/logging"
	"github.com/ismaiel54/backtest-exchange/internal/msg"
	"github.com/ismaiel54/backtest-exchange/internal/observability"
	"github.com/ismaiel54/backtest-exchange/internal/quote"
	"github.com/ismaiel54/backtest-exchange/internal/rpc/exchangerpc"
	"github.com/ismaiel54/backtest-exchange/internal/stream"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

const syntheticStep = 60

func main() {
	// Load configuration
	cfg := config.LoadConfig("exchange-server")

	// Initialize logger
	logger, err := logging.NewLogger(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting exchange-server",
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.Int("http_port", cfg.HTTPPort),
		zap.String("kafka_brokers", cfg.KafkaBrokers),
	)

	healthChecker := observability.NewHealthChecker(logger)

	// Trade sinks: the websocket stream always, Kafka when brokers are set
	trades := stream.NewTradeStream(logger)
	sinks := exchange.MultiSink{trades}

	if brokers := msg.ParseBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		producer, err := msg.NewProducer(msg.Config{Brokers: brokers, ClientID: cfg.ServiceName}, logger)
		if err != nil {
			logger.Fatal("failed to create kafka producer", zap.Error(err))
		}
		defer producer.Close()

		sinks = append(sinks, msg.NewTradePublisher(producer, cfg.KafkaTradesTopic, logger))
		healthChecker.AddCheck("kafka", producer.Ping)
	}

	server := exchangerpc.NewServer(logger, exchange.WithSink(sinks))
	if err := loadDatasets(cfg, server, logger); err != nil {
		logger.Fatal("failed to load datasets", zap.Error(err))
	}
	healthChecker.AddCheck("datasets", func(context.Context) error {
		if server.Datasets() == 0 {
			return fmt.Errorf("no datasets loaded")
		}
		return nil
	})

	// Create gRPC server
	chaosInjector, err := chaos.New(chaos.LoadConfig(), logger)
	if err != nil {
		logger.Fatal("invalid chaos config", zap.Error(err))
	}
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(chaosInjector.UnaryServerInterceptor()))
	healthChecker.RegisterGRPC(grpcServer)
	exchangerpc.RegisterExchangeServer(grpcServer, server)

	grpcListener, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		logger.Fatal("failed to listen on gRPC port", zap.Error(err))
	}

	grpcErrCh := make(chan error, 1)
	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr()))
		if err := grpcServer.Serve(grpcListener); err != nil {
			grpcErrCh <- err
		}
	}()

	// HTTP: health, readiness and the live trade stream
	mux := http.NewServeMux()
	mux.Handle(stream.Path, trades)

	httpErrCh := make(chan error, 1)
	go func() {
		if err := healthChecker.StartHTTPServer(cfg.HTTPAddr(), mux); err != nil {
			httpErrCh <- err
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-grpcErrCh:
		logger.Error("gRPC server error", zap.Error(err))
	case err := <-httpErrCh:
		logger.Error("HTTP server error", zap.Error(err))
	}

	logger.Info("shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := healthChecker.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down health checker", zap.Error(err))
	}

	grpcServer.GracefulStop()

	logger.Info("exchange-server stopped")
}

// loadDatasets registers every configured sqlite dataset, or a synthetic one
// when none is configured.
func loadDatasets(cfg *config.Config, server *exchangerpc.Server, logger *zap.Logger) error {
	paths, err := cfg.DatasetPaths()
	if err != nil {
		return err
	}

	if len(paths) == 0 {
		clk, err := clock.FromRange(0, clock.Time((cfg.SyntheticSteps-1)*syntheticStep), syntheticStep)
		if err != nil {
			return fmt.Errorf("synthetic clock: %w", err)
		}
		times := slices.Collect(clk.Peek())
		mem, err := quote.Synthetic(quote.SyntheticConfig{
			Symbols:    cfg.Symbols(),
			StartPrice: 100,
			Volatility: 0.01,
			Spread:     0.002,
			Seed:       uint64(cfg.SyntheticSeed),
		}, clk.Peek())
		if err != nil {
			return err
		}
		logger.Info("serving synthetic dataset",
			zap.Strings("symbols", cfg.Symbols()),
			zap.Int("steps", len(times)),
		)
		return server.AddDataset("synthetic", exchangerpc.DatasetSource{Source: mem, Times: times}, mem.Symbols())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	for name, path := range paths {
		store, err := quote.Open(path)
		if err != nil {
			return fmt.Errorf("dataset %s: %w", name, err)
		}
		mem, times, err := store.Load(ctx)
		store.Close()
		if err != nil {
			return fmt.Errorf("dataset %s: %w", name, err)
		}
		if err := server.AddDataset(name, exchangerpc.DatasetSource{Source: mem, Times: times}, mem.Symbols()); err != nil {
			return err
		}
		logger.Info("dataset loaded",
			zap.String("dataset", name),
			zap.String("path", path),
			zap.Int("steps", len(times)),
		)
	}
	return nil
}
