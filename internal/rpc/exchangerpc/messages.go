package exchangerpc

import (
	"fmt"

	"github.com/ismaiel54/backtest-exchange/internal/clock"
	"github.com/ismaiel54/backtest-exchange/internal/orderbook"
	"github.com/ismaiel54/backtest-exchange/internal/quote"
)

// Dataset describes a quote dataset the server can start backtests on.
type Dataset struct {
	Name    string     `json:"name"`
	Symbols []string   `json:"symbols"`
	Start   clock.Time `json:"start"`
	End     clock.Time `json:"end"`
	Steps   int        `json:"steps"`
}

type ListDatasetsResponse struct {
	Datasets []Dataset `json:"datasets"`
}

type InitRequest struct {
	Dataset string `json:"dataset"`
}

type InitResponse struct {
	BacktestID string     `json:"backtest_id"`
	Start      clock.Time `json:"start"`
}

type RegisterSourceRequest struct {
	BacktestID string `json:"backtest_id"`
}

type RegisterSourceResponse struct {
	SubscriberID uint64 `json:"subscriber_id"`
}

// Order is the wire form of an order. Kind uses the names accepted by
// orderbook.ParseKind.
type Order struct {
	Symbol   string   `json:"symbol"`
	Kind     string   `json:"kind"`
	Quantity float64  `json:"quantity"`
	Price    *float64 `json:"price,omitempty"`
}

// ToOrderbook converts o, rejecting unknown kinds.
func (o Order) ToOrderbook(sub orderbook.SubscriberID) (orderbook.Order, error) {
	kind, err := orderbook.ParseKind(o.Kind)
	if err != nil {
		return orderbook.Order{}, err
	}
	out := orderbook.Order{
		SubscriberID: sub,
		Symbol:       o.Symbol,
		Kind:         kind,
		Quantity:     o.Quantity,
	}
	if o.Price != nil {
		p := *o.Price
		out.Price = &p
	}
	if err := out.Validate(); err != nil {
		return orderbook.Order{}, fmt.Errorf("invalid order: %w", err)
	}
	return out, nil
}

type SendOrderRequest struct {
	BacktestID   string `json:"backtest_id"`
	SubscriberID uint64 `json:"subscriber_id"`
	Order        Order  `json:"order"`
}

type SendOrderResponse struct {
	OrderID uint64 `json:"order_id"`
}

type DeleteOrderRequest struct {
	BacktestID string `json:"backtest_id"`
	OrderID    uint64 `json:"order_id"`
}

type DeleteOrderResponse struct {
	OrderID uint64 `json:"order_id"`
	Deleted bool   `json:"deleted"`
}

type FetchQuotesRequest struct {
	BacktestID string `json:"backtest_id"`
}

type FetchQuotesResponse struct {
	Time   clock.Time    `json:"time"`
	Quotes []quote.Quote `json:"quotes"`
}

type FetchTradesRequest struct {
	BacktestID string `json:"backtest_id"`
}

// Trade is the wire form of a completed trade.
type Trade struct {
	OrderID      uint64     `json:"order_id"`
	SubscriberID uint64     `json:"subscriber_id"`
	Symbol       string     `json:"symbol"`
	Direction    string     `json:"direction"`
	Quantity     float64    `json:"quantity"`
	Value        float64    `json:"value"`
	Price        float64    `json:"price"`
	Time         clock.Time `json:"time"`
}

func tradeFromOrderbook(t orderbook.Trade) Trade {
	return Trade{
		OrderID:      uint64(t.OrderID),
		SubscriberID: uint64(t.SubscriberID),
		Symbol:       t.Symbol,
		Direction:    t.Direction.String(),
		Quantity:     t.Quantity,
		Value:        t.Value,
		Price:        t.Price(),
		Time:         t.Time,
	}
}

type FetchTradesResponse struct {
	Trades []Trade `json:"trades"`
}

type TickRequest struct {
	BacktestID   string `json:"backtest_id"`
	SubscriberID uint64 `json:"subscriber_id"`
}

type TickResponse struct {
	Triggered bool       `json:"triggered"`
	Time      clock.Time `json:"time"`
}
