// Package orderbook implements the matching engine of the simulated exchange.
//
// Orders never match against each other. Each resting order is compared with
// the quote for its symbol at the time of a match pass and either fires in
// full at the quote price or keeps resting. There are no partial fills.
package orderbook

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ismaiel54/backtest-exchange/internal/clock"
)

// OrderID identifies an order within one book. IDs are never reused.
type OrderID uint64

// SubscriberID identifies the subscriber that owns an order.
type SubscriberID uint64

// Direction is the side of a completed trade.
type Direction int

const (
	Buy Direction = iota
	Sell
)

func (d Direction) String() string {
	switch d {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Kind is the execution style of an order.
type Kind int

const (
	MarketBuy Kind = iota
	MarketSell
	LimitBuy
	LimitSell
	StopBuy
	StopSell
)

func (k Kind) String() string {
	switch k {
	case MarketBuy:
		return "MARKET_BUY"
	case MarketSell:
		return "MARKET_SELL"
	case LimitBuy:
		return "LIMIT_BUY"
	case LimitSell:
		return "LIMIT_SELL"
	case StopBuy:
		return "STOP_BUY"
	case StopSell:
		return "STOP_SELL"
	default:
		return fmt.Sprintf("KIND(%d)", int(k))
	}
}

// Valid reports whether k is one of the six known kinds.
func (k Kind) Valid() bool {
	return k >= MarketBuy && k <= StopSell
}

// Direction returns the trade direction an order of this kind produces.
func (k Kind) Direction() Direction {
	switch k {
	case MarketBuy, LimitBuy, StopBuy:
		return Buy
	case MarketSell, LimitSell, StopSell:
		return Sell
	default:
		panic(fmt.Sprintf("orderbook: unknown order kind %d", int(k)))
	}
}

// NeedsPrice reports whether orders of this kind carry a trigger price.
func (k Kind) NeedsPrice() bool {
	return k == LimitBuy || k == LimitSell || k == StopBuy || k == StopSell
}

// ParseKind accepts the String form of a kind, case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "MARKET_BUY":
		return MarketBuy, nil
	case "MARKET_SELL":
		return MarketSell, nil
	case "LIMIT_BUY":
		return LimitBuy, nil
	case "LIMIT_SELL":
		return LimitSell, nil
	case "STOP_BUY":
		return StopBuy, nil
	case "STOP_SELL":
		return StopSell, nil
	default:
		return 0, fmt.Errorf("unknown order kind %q", s)
	}
}

// Order is a request to trade. ID is assigned by the book.
type Order struct {
	ID           OrderID      `json:"id"`
	SubscriberID SubscriberID `json:"subscriber_id"`
	Symbol       string       `json:"symbol"`
	Kind         Kind         `json:"kind"`
	Quantity     float64      `json:"quantity"`
	Price        *float64     `json:"price,omitempty"`
}

// Market builds a market order.
func Market(sub SubscriberID, symbol string, kind Kind, qty float64) Order {
	return Order{SubscriberID: sub, Symbol: symbol, Kind: kind, Quantity: qty}
}

// Priced builds a limit or stop order.
func Priced(sub SubscriberID, symbol string, kind Kind, qty, price float64) Order {
	return Order{SubscriberID: sub, Symbol: symbol, Kind: kind, Quantity: qty, Price: &price}
}

var (
	errEmptySymbol = errors.New("symbol cannot be empty")
	errQuantity    = errors.New("quantity must be greater than 0")
)

// Validate checks the order fields a subscriber controls.
func (o Order) Validate() error {
	if o.Symbol == "" {
		return errEmptySymbol
	}
	if !o.Kind.Valid() {
		return fmt.Errorf("unknown order kind %d", int(o.Kind))
	}
	if !(o.Quantity > 0) {
		return errQuantity
	}
	if o.Kind.NeedsPrice() && o.Price == nil {
		return fmt.Errorf("%s order requires a price", o.Kind)
	}
	if !o.Kind.NeedsPrice() && o.Price != nil {
		return fmt.Errorf("%s order must not carry a price", o.Kind)
	}
	return nil
}

// Equal compares symbol, kind and quantity only. ID and price are ignored,
// so two same-size orders of the same kind are treated as interchangeable.
// TODO: confirm with product whether price should take part in equality.
func (o Order) Equal(other Order) bool {
	return o.Symbol == other.Symbol && o.Kind == other.Kind && o.Quantity == other.Quantity
}

// Trade is the single execution of a matched order.
type Trade struct {
	OrderID      OrderID      `json:"order_id"`
	SubscriberID SubscriberID `json:"subscriber_id"`
	Symbol       string       `json:"symbol"`
	Value        float64      `json:"value"`
	Quantity     float64      `json:"quantity"`
	Time         clock.Time   `json:"time"`
	Direction    Direction    `json:"direction"`
}

// Price returns the per-unit execution price.
func (t Trade) Price() float64 {
	return t.Value / t.Quantity
}
