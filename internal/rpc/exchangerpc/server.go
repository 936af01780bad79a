package exchangerpc

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/ismaiel54/backtest-exchange/internal/clock"
	"github.com/ismaiel54/backtest-exchange/internal/exchange"
	"github.com/ismaiel54/backtest-exchange/internal/orderbook"
	"github.com/ismaiel54/backtest-exchange/internal/quote"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
)

// DatasetSource is a read-only quote dataset. Backtests started on the same
// dataset share its Source.
type DatasetSource struct {
	Source quote.Source
	Times  []clock.Time
}

// Server hosts any number of remote backtests, each with its own clock and
// book.
type Server struct {
	logger  *zap.Logger
	options []exchange.Option

	datasets map[string]DatasetSource
	symbols  map[string][]string

	mu        sync.RWMutex
	backtests map[string]*exchange.Remote
}

// NewServer creates a server. options are applied to every backtest it
// starts, after the backtest id and logger.
func NewServer(logger *zap.Logger, options ...exchange.Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		logger:    logger,
		options:   options,
		datasets:  make(map[string]DatasetSource),
		symbols:   make(map[string][]string),
		backtests: make(map[string]*exchange.Remote),
	}
}

// AddDataset makes a dataset available to Init. It must be called before the
// server starts serving.
func (s *Server) AddDataset(name string, ds DatasetSource, symbols []string) error {
	if len(ds.Times) == 0 {
		return fmt.Errorf("dataset %q has no time points", name)
	}
	if _, err := clock.New(ds.Times); err != nil {
		return fmt.Errorf("dataset %q: %w", name, err)
	}
	s.datasets[name] = ds
	s.symbols[name] = symbols
	return nil
}

// Datasets returns the number of datasets loaded.
func (s *Server) Datasets() int {
	return len(s.datasets)
}

// Backtest returns a running backtest by id.
func (s *Server) Backtest(id string) (*exchange.Remote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.backtests[id]
	return r, ok
}

func (s *Server) ListDatasets(ctx context.Context, _ *emptypb.Empty) (*ListDatasetsResponse, error) {
	resp := &ListDatasetsResponse{}
	for name, ds := range s.datasets {
		resp.Datasets = append(resp.Datasets, Dataset{
			Name:    name,
			Symbols: s.symbols[name],
			Start:   ds.Times[0],
			End:     ds.Times[len(ds.Times)-1],
			Steps:   len(ds.Times),
		})
	}
	slices.SortFunc(resp.Datasets, func(a, b Dataset) int {
		return strings.Compare(a.Name, b.Name)
	})
	return resp, nil
}

func (s *Server) Init(ctx context.Context, req *InitRequest) (*InitResponse, error) {
	ds, ok := s.datasets[req.Dataset]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "unknown dataset %q", req.Dataset)
	}
	clk, err := clock.New(ds.Times)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "dataset %q: %v", req.Dataset, err)
	}

	id := uuid.NewString()
	opts := append([]exchange.Option{
		exchange.WithBacktestID(id),
		exchange.WithLogger(s.logger),
	}, s.options...)
	remote := exchange.NewRemote(clk, ds.Source, opts...)

	s.mu.Lock()
	s.backtests[id] = remote
	s.mu.Unlock()

	s.logger.Info("backtest started",
		zap.String("backtest_id", id),
		zap.String("dataset", req.Dataset),
		zap.Int("steps", len(ds.Times)),
	)
	return &InitResponse{BacktestID: id, Start: clk.Now()}, nil
}

func (s *Server) RegisterSource(ctx context.Context, req *RegisterSourceRequest) (*RegisterSourceResponse, error) {
	remote, err := s.backtest(req.BacktestID)
	if err != nil {
		return nil, err
	}
	return &RegisterSourceResponse{SubscriberID: uint64(remote.Register())}, nil
}

func (s *Server) SendOrder(ctx context.Context, req *SendOrderRequest) (*SendOrderResponse, error) {
	remote, err := s.backtest(req.BacktestID)
	if err != nil {
		return nil, err
	}
	sub := orderbook.SubscriberID(req.SubscriberID)
	order, err := req.Order.ToOrderbook(sub)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	id, err := remote.SendOrder(sub, order)
	if err != nil {
		return nil, toStatus(err)
	}
	return &SendOrderResponse{OrderID: uint64(id)}, nil
}

func (s *Server) DeleteOrder(ctx context.Context, req *DeleteOrderRequest) (*DeleteOrderResponse, error) {
	remote, err := s.backtest(req.BacktestID)
	if err != nil {
		return nil, err
	}
	deleted := remote.DeleteOrder(orderbook.OrderID(req.OrderID))
	return &DeleteOrderResponse{OrderID: req.OrderID, Deleted: deleted}, nil
}

func (s *Server) FetchQuotes(ctx context.Context, req *FetchQuotesRequest) (*FetchQuotesResponse, error) {
	remote, err := s.backtest(req.BacktestID)
	if err != nil {
		return nil, err
	}
	now, quotes := remote.Quotes()
	return &FetchQuotesResponse{Time: now, Quotes: quotes}, nil
}

func (s *Server) FetchTrades(ctx context.Context, req *FetchTradesRequest) (*FetchTradesResponse, error) {
	remote, err := s.backtest(req.BacktestID)
	if err != nil {
		return nil, err
	}
	trades := remote.Trades()
	resp := &FetchTradesResponse{Trades: make([]Trade, 0, len(trades))}
	for _, t := range trades {
		resp.Trades = append(resp.Trades, tradeFromOrderbook(t))
	}
	return resp, nil
}

func (s *Server) Tick(ctx context.Context, req *TickRequest) (*TickResponse, error) {
	remote, err := s.backtest(req.BacktestID)
	if err != nil {
		return nil, err
	}
	res, err := remote.Tick(ctx, orderbook.SubscriberID(req.SubscriberID))
	if err != nil {
		return nil, toStatus(err)
	}
	return &TickResponse{Triggered: res.Triggered, Time: res.Now}, nil
}

func (s *Server) backtest(id string) (*exchange.Remote, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "malformed backtest id %q", id)
	}
	remote, ok := s.Backtest(id)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "unknown backtest %q", id)
	}
	return remote, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, exchange.ErrUnknownSubscriber):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, exchange.ErrFinished):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.InvalidArgument, err.Error())
	}
}
