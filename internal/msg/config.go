package msg

import (
	"strings"
)

// Config holds Kafka configuration
type Config struct {
	Brokers  []string
	ClientID string
}

// Topic names
const (
	TopicTrades = "exchange.trades"
)

// ParseBrokers splits a comma separated broker list. An empty string yields
// no brokers, which callers treat as publishing disabled.
func ParseBrokers(s string) []string {
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
