package exchange

import (
	"context"
	"errors"
	"fmt"

	"github.com/ismaiel54/backtest-exchange/internal/clock"
	"github.com/ismaiel54/backtest-exchange/internal/orderbook"
	"github.com/ismaiel54/backtest-exchange/internal/queue"
	"github.com/ismaiel54/backtest-exchange/internal/quote"
)

// ErrMailboxFull is returned when an order command is rejected by a full
// mailbox under the drop policy.
var ErrMailboxFull = errors.New("subscriber mailbox full")

// NotificationKind tells a subscriber what happened to one of its orders.
type NotificationKind int

const (
	OrderBooked NotificationKind = iota
	OrderDeleted
	TradeCompleted
)

func (k NotificationKind) String() string {
	switch k {
	case OrderBooked:
		return "BOOKED"
	case OrderDeleted:
		return "DELETED"
	case TradeCompleted:
		return "COMPLETED"
	default:
		return "UNKNOWN"
	}
}

// Notification is delivered on a subscriber's notification mailbox.
type Notification struct {
	Kind    NotificationKind
	Time    clock.Time
	OrderID orderbook.OrderID
	// Order is set for OrderBooked.
	Order *orderbook.Order
	// Trade is set for TradeCompleted.
	Trade *orderbook.Trade
}

type commandKind int

const (
	cmdCreate commandKind = iota
	cmdDelete
	cmdClear
)

type command struct {
	kind   commandKind
	order  orderbook.Order
	id     orderbook.OrderID
	symbol string
}

// Subscriber is one broker's handle on a Concurrent exchange. It never sees
// the book or the clock, only its three mailboxes.
type Subscriber struct {
	id            orderbook.SubscriberID
	quotes        *queue.Queue[[]quote.Quote]
	notifications *queue.Queue[Notification]
	commands      *queue.Queue[command]
}

func newSubscriber(id orderbook.SubscriberID, o options) *Subscriber {
	return &Subscriber{
		id:            id,
		quotes:        queue.New[[]quote.Quote](o.capacity, o.policy),
		notifications: queue.New[Notification](o.capacity, o.policy),
		commands:      queue.New[command](o.capacity, o.policy),
	}
}

// ID returns the subscriber id assigned at registration.
func (s *Subscriber) ID() orderbook.SubscriberID {
	return s.id
}

// SendOrder queues an order for the next Check. The id arrives later in an
// OrderBooked notification.
func (s *Subscriber) SendOrder(o orderbook.Order) error {
	o.SubscriberID = s.id
	if err := o.Validate(); err != nil {
		return fmt.Errorf("invalid order: %w", err)
	}
	return s.enqueue(command{kind: cmdCreate, order: o})
}

// DeleteOrder queues a cancel. Ids owned by other subscribers are ignored.
func (s *Subscriber) DeleteOrder(id orderbook.OrderID) error {
	return s.enqueue(command{kind: cmdDelete, id: id})
}

// ClearSymbol queues a cancel of every order this subscriber has for symbol.
func (s *Subscriber) ClearSymbol(symbol string) error {
	return s.enqueue(command{kind: cmdClear, symbol: symbol})
}

func (s *Subscriber) enqueue(cmd command) error {
	if !s.commands.Send(cmd) {
		return ErrMailboxFull
	}
	return nil
}

// NextQuotes blocks until a quote set is published.
func (s *Subscriber) NextQuotes(ctx context.Context) ([]quote.Quote, error) {
	return s.quotes.Receive(ctx)
}

// TryQuotes returns the oldest unread quote set, if any.
func (s *Subscriber) TryQuotes() ([]quote.Quote, bool) {
	return s.quotes.TryReceive()
}

// LatestQuotes discards everything but the newest unread quote set.
func (s *Subscriber) LatestQuotes() ([]quote.Quote, bool) {
	sets := s.quotes.Drain(0)
	if len(sets) == 0 {
		return nil, false
	}
	return sets[len(sets)-1], true
}

// NextNotification blocks until a notification arrives.
func (s *Subscriber) NextNotification(ctx context.Context) (Notification, error) {
	return s.notifications.Receive(ctx)
}

// TryNotification returns the oldest unread notification, if any.
func (s *Subscriber) TryNotification() (Notification, bool) {
	return s.notifications.TryReceive()
}

// Notifications drains every unread notification.
func (s *Subscriber) Notifications() []Notification {
	return s.notifications.Drain(0)
}

func (s *Subscriber) close() {
	s.quotes.Close()
	s.notifications.Close()
	s.commands.Close()
}
