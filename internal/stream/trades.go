package stream

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/ismaiel54/backtest-exchange/internal/exchange"
	"github.com/ismaiel54/backtest-exchange/internal/msg"
	"go.uber.org/zap"
)

// Path is where TradeStream is usually mounted.
const Path = "/ws/trades"

const subscriberBuffer = 64

type outboundMessage struct {
	Type string       `json:"type"`
	Data msg.TradeMsg `json:"data"`
}

// TradeStream is an exchange.Sink that forwards every trade to connected
// websocket clients. Clients may pass ?backtest_id= to see one backtest only.
type TradeStream struct {
	hub      *Hub[msg.TradeMsg]
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

var _ exchange.Sink = (*TradeStream)(nil)

func NewTradeStream(logger *zap.Logger) *TradeStream {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TradeStream{
		hub:      NewHub[msg.TradeMsg](),
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		logger:   logger,
	}
}

// Publish implements exchange.Sink. It never blocks on slow clients.
func (s *TradeStream) Publish(_ context.Context, batch exchange.Batch) error {
	for _, t := range batch.Trades {
		s.hub.Broadcast(msg.NewTradeMsg(batch.BacktestID, t))
	}
	return nil
}

// Clients returns the number of connected clients.
func (s *TradeStream) Clients() int {
	return s.hub.Len()
}

func (s *TradeStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	filter := r.URL.Query().Get("backtest_id")
	sub := s.hub.Subscribe(subscriberBuffer)
	defer s.hub.Unsubscribe(sub)

	// The client only ever closes; reading surfaces that.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s.logger.Info("trade stream client connected",
		zap.String("remote_addr", r.RemoteAddr),
		zap.String("backtest_id", filter),
	)

	for {
		select {
		case <-gone:
			return
		case m, ok := <-sub.C:
			if !ok {
				return
			}
			if filter != "" && m.BacktestID != filter {
				continue
			}
			if err := conn.WriteJSON(outboundMessage{Type: "trade", Data: m}); err != nil {
				return
			}
		}
	}
}
