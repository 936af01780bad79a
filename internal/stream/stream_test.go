package stream

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ismaiel54/backtest-exchange/internal/exchange"
	"github.com/ismaiel54/backtest-exchange/internal/orderbook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_DropsWhenFull(t *testing.T) {
	h := NewHub[int]()
	sub := h.Subscribe(1)

	h.Broadcast(1)
	h.Broadcast(2)
	assert.Equal(t, 1, <-sub.C)
	assert.Equal(t, int64(1), h.Dropped())

	h.Unsubscribe(sub)
	h.Unsubscribe(sub)
	_, ok := <-sub.C
	assert.False(t, ok)
	assert.Equal(t, 0, h.Len())
}

func TestTradeStream(t *testing.T) {
	ts := NewTradeStream(nil)
	srv := httptest.NewServer(ts)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + Path + "?backtest_id=wanted"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return ts.Clients() == 1 }, time.Second, 5*time.Millisecond)

	trade := orderbook.Trade{OrderID: 4, SubscriberID: 1, Symbol: "ABC", Value: 206, Quantity: 2, Time: 101, Direction: orderbook.Sell}
	ctx := context.Background()
	require.NoError(t, ts.Publish(ctx, exchange.Batch{BacktestID: "other", Time: 101, Trades: []orderbook.Trade{trade}}))
	require.NoError(t, ts.Publish(ctx, exchange.Batch{BacktestID: "wanted", Time: 101, Trades: []orderbook.Trade{trade}}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got outboundMessage
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "trade", got.Type)
	assert.Equal(t, "wanted", got.Data.BacktestID)
	assert.Equal(t, uint64(4), got.Data.OrderID)
	assert.Equal(t, "SELL", got.Data.Direction)
	assert.InDelta(t, 103.0, got.Data.Price, 1e-9)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return ts.Clients() == 0 }, time.Second, 5*time.Millisecond)
}
