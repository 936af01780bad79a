package msg

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/ismaiel54/backtest-exchange/internal/orderbook"
)

// TradeMsg is one completed trade as published on TopicTrades
type TradeMsg struct {
	EventID      string  `json:"event_id"`
	BacktestID   string  `json:"backtest_id"`
	OrderID      uint64  `json:"order_id"`
	SubscriberID uint64  `json:"subscriber_id"`
	Symbol       string  `json:"symbol"`
	Direction    string  `json:"direction"` // "BUY" or "SELL"
	Quantity     float64 `json:"quantity"`
	Value        float64 `json:"value"`
	Price        float64 `json:"price"`
	Time         int64   `json:"time"` // simulation time
	TsUnixMillis int64   `json:"ts_unix_millis"`
}

// NewTradeMsg builds the message for t with a fresh event id.
func NewTradeMsg(backtestID string, t orderbook.Trade) TradeMsg {
	return TradeMsg{
		EventID:      uuid.NewString(),
		BacktestID:   backtestID,
		OrderID:      uint64(t.OrderID),
		SubscriberID: uint64(t.SubscriberID),
		Symbol:       t.Symbol,
		Direction:    t.Direction.String(),
		Quantity:     t.Quantity,
		Value:        t.Value,
		Price:        t.Price(),
		Time:         int64(t.Time),
		TsUnixMillis: time.Now().UnixMilli(),
	}
}

// Key partitions trades by backtest so one backtest's trades stay ordered.
func (m TradeMsg) Key() string {
	return m.BacktestID
}

// OrderKey identifies the order a trade filled across backtests.
func (m TradeMsg) OrderKey() string {
	return m.BacktestID + "/" + strconv.FormatUint(m.OrderID, 10)
}

// DecodeTrade parses a consumed record.
func DecodeTrade(rec Record) (TradeMsg, error) {
	var m TradeMsg
	if err := json.Unmarshal(rec.Value, &m); err != nil {
		return TradeMsg{}, fmt.Errorf("failed to unmarshal trade at %s/%d/%d: %w", rec.Topic, rec.Partition, rec.Offset, err)
	}
	return m, nil
}
