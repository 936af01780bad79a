package msg

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ismaiel54/backtest-exchange/internal/clock"
	"github.com/ismaiel54/backtest-exchange/internal/exchange"
	"github.com/ismaiel54/backtest-exchange/internal/orderbook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
)

type fakeProducer struct {
	topics []string
	keys   []string
	values []any
	err    error
}

func (f *fakeProducer) ProduceJSON(_ context.Context, topic string, key string, v any) error {
	if f.err != nil {
		return f.err
	}
	f.topics = append(f.topics, topic)
	f.keys = append(f.keys, key)
	f.values = append(f.values, v)
	return nil
}

func sampleTrade(id orderbook.OrderID, at int64) orderbook.Trade {
	return orderbook.Trade{
		OrderID:      id,
		SubscriberID: 2,
		Symbol:       "ABC",
		Value:        1030,
		Quantity:     10,
		Time:         clock.Time(at),
		Direction:    orderbook.Buy,
	}
}

func TestParseBrokers(t *testing.T) {
	assert.Nil(t, ParseBrokers(""))
	assert.Equal(t, []string{"a:9092", "b:9092"}, ParseBrokers(" a:9092, ,b:9092 "))
}

func TestNewTradeMsg(t *testing.T) {
	m := NewTradeMsg("bt", sampleTrade(7, 101))
	assert.NotEmpty(t, m.EventID)
	assert.Equal(t, "bt", m.Key())
	assert.Equal(t, "bt/7", m.OrderKey())
	assert.Equal(t, "BUY", m.Direction)
	assert.InDelta(t, 103.0, m.Price, 1e-9)
	assert.Equal(t, int64(101), m.Time)
}

func TestDecodeTrade(t *testing.T) {
	want := NewTradeMsg("bt", sampleTrade(3, 5))
	data, err := json.Marshal(want)
	require.NoError(t, err)

	got, err := DecodeTrade(Record{Value: data})
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = DecodeTrade(Record{Topic: TopicTrades, Value: []byte("{")})
	assert.ErrorContains(t, err, TopicTrades)
}

func TestFromKgo(t *testing.T) {
	ts := time.UnixMilli(1700000000000)
	rec := fromKgo(&kgo.Record{Topic: "t", Key: []byte("k"), Value: []byte("v"), Partition: 2, Offset: 9, Timestamp: ts})
	assert.Equal(t, Record{Topic: "t", Key: "k", Value: []byte("v"), Partition: 2, Offset: 9, Timestamp: ts.UnixMilli()}, rec)
}

func TestTradePublisher(t *testing.T) {
	fp := &fakeProducer{}
	p := NewTradePublisher(fp, "", nil)

	err := p.Publish(context.Background(), exchange.Batch{
		BacktestID: "bt",
		Time:       101,
		Trades:     []orderbook.Trade{sampleTrade(1, 101), sampleTrade(2, 101)},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{TopicTrades, TopicTrades}, fp.topics)
	assert.Equal(t, []string{"bt", "bt"}, fp.keys)
	require.Len(t, fp.values, 2)
	assert.Equal(t, uint64(2), fp.values[1].(TradeMsg).OrderID)
}

func TestTradePublisher_Error(t *testing.T) {
	fp := &fakeProducer{err: errors.New("no brokers")}
	p := NewTradePublisher(fp, "custom", nil)

	err := p.Publish(context.Background(), exchange.Batch{BacktestID: "bt", Trades: []orderbook.Trade{sampleTrade(1, 1)}})
	assert.ErrorContains(t, err, "bt/1")
}

func TestVerifier(t *testing.T) {
	v := NewVerifier()
	v.Observe(NewTradeMsg("a", sampleTrade(1, 10)))
	v.Observe(NewTradeMsg("a", sampleTrade(2, 11)))
	v.Observe(NewTradeMsg("b", sampleTrade(1, 3)))
	assert.True(t, v.Report().OK())

	v.Observe(NewTradeMsg("a", sampleTrade(2, 12)))
	v.Observe(NewTradeMsg("a", sampleTrade(3, 9)))

	r := v.Report()
	assert.False(t, r.OK())
	assert.Equal(t, 5, r.Total)
	assert.Equal(t, 4, r.Orders)
	assert.Equal(t, 2, r.Backtests)
	assert.Equal(t, []string{"a/2"}, r.DuplicateKeys())
	require.Len(t, r.Regressions, 1)
	assert.Contains(t, r.Regressions[0], "order 3")
}
