package exchangerpc

import (
	"context"
	"fmt"
	"time"

	"github.com/ismaiel54/backtest-exchange/internal/clock"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
)

// DefaultPollInterval is how often TickAndWait checks whether a round completed.
const DefaultPollInterval = 20 * time.Millisecond

// Client is a gRPC client for the exchange service.
type Client struct {
	cc     *grpc.ClientConn
	logger *zap.Logger
}

// Dial creates a new client connection. Extra dial options are appended,
// which lets tests dial over bufconn.
func Dial(ctx context.Context, addr string, logger *zap.Logger, extra ...grpc.DialOption) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	unaryInterceptor := func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		start := time.Now()
		err := invoker(ctx, method, req, reply, cc, opts...)
		logger.Debug("gRPC call",
			zap.String("method", method),
			zap.Duration("duration", time.Since(start)),
			zap.String("status_code", status.Code(err).String()),
		)
		return err
	}

	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(unaryInterceptor),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	}, extra...)

	conn, err := grpc.DialContext(ctx, addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial exchange: %w", err)
	}
	return &Client{cc: conn, logger: logger}, nil
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	return c.cc.Invoke(ctx, fullMethod(method), req, resp)
}

// ListDatasets returns the datasets the server can start backtests on.
func (c *Client) ListDatasets(ctx context.Context) ([]Dataset, error) {
	resp := &ListDatasetsResponse{}
	if err := c.invoke(ctx, "ListDatasets", &emptypb.Empty{}, resp); err != nil {
		return nil, err
	}
	return resp.Datasets, nil
}

// Init starts a backtest on dataset and returns its id.
func (c *Client) Init(ctx context.Context, dataset string) (*InitResponse, error) {
	resp := &InitResponse{}
	if err := c.invoke(ctx, "Init", &InitRequest{Dataset: dataset}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Register registers a subscriber on a backtest.
func (c *Client) Register(ctx context.Context, backtestID string) (uint64, error) {
	resp := &RegisterSourceResponse{}
	if err := c.invoke(ctx, "RegisterSource", &RegisterSourceRequest{BacktestID: backtestID}, resp); err != nil {
		return 0, err
	}
	return resp.SubscriberID, nil
}

// SendOrder books an order and returns its id.
func (c *Client) SendOrder(ctx context.Context, backtestID string, subscriberID uint64, order Order) (uint64, error) {
	req := &SendOrderRequest{BacktestID: backtestID, SubscriberID: subscriberID, Order: order}
	resp := &SendOrderResponse{}
	if err := c.invoke(ctx, "SendOrder", req, resp); err != nil {
		return 0, err
	}
	return resp.OrderID, nil
}

// DeleteOrder cancels an order. Deleting an unknown id is not an error.
func (c *Client) DeleteOrder(ctx context.Context, backtestID string, orderID uint64) (bool, error) {
	resp := &DeleteOrderResponse{}
	if err := c.invoke(ctx, "DeleteOrder", &DeleteOrderRequest{BacktestID: backtestID, OrderID: orderID}, resp); err != nil {
		return false, err
	}
	return resp.Deleted, nil
}

// FetchQuotes returns the quotes at the backtest's current time.
func (c *Client) FetchQuotes(ctx context.Context, backtestID string) (*FetchQuotesResponse, error) {
	resp := &FetchQuotesResponse{}
	if err := c.invoke(ctx, "FetchQuotes", &FetchQuotesRequest{BacktestID: backtestID}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// FetchTrades returns the trades of the most recent round.
func (c *Client) FetchTrades(ctx context.Context, backtestID string) ([]Trade, error) {
	resp := &FetchTradesResponse{}
	if err := c.invoke(ctx, "FetchTrades", &FetchTradesRequest{BacktestID: backtestID}, resp); err != nil {
		return nil, err
	}
	return resp.Trades, nil
}

// Tick marks the subscriber done with the current period.
func (c *Client) Tick(ctx context.Context, backtestID string, subscriberID uint64) (*TickResponse, error) {
	resp := &TickResponse{}
	if err := c.invoke(ctx, "Tick", &TickRequest{BacktestID: backtestID, SubscriberID: subscriberID}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// TickAndWait ticks and then polls until the round completes, returning the
// new time.
func (c *Client) TickAndWait(ctx context.Context, backtestID string, subscriberID uint64, poll time.Duration) (clock.Time, error) {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	resp, err := c.Tick(ctx, backtestID, subscriberID)
	if err != nil {
		return 0, err
	}
	if resp.Triggered {
		return resp.Time, nil
	}
	c.logger.Debug("waiting for round",
		zap.String("backtest_id", backtestID),
		zap.Uint64("subscriber_id", subscriberID),
		zap.Int64("time", int64(resp.Time)),
	)

	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
		}
		q, err := c.FetchQuotes(ctx, backtestID)
		if err != nil {
			return 0, err
		}
		if q.Time > resp.Time {
			return q.Time, nil
		}
	}
}

// IsFinished reports whether err means the backtest has no more steps.
func IsFinished(err error) bool {
	return status.Code(err) == codes.FailedPrecondition
}

// Close closes the client connection
func (c *Client) Close() error {
	if c.cc != nil {
		return c.cc.Close()
	}
	return nil
}
