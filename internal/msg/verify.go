package msg

import (
	"fmt"
	"sort"
)

// Verifier checks a stream of trade messages for the exchange's delivery
// guarantees: every order fills at most once and trade times never go
// backwards within a backtest.
type Verifier struct {
	orderCounts map[string]int
	firstEvent  map[string]string
	lastTime    map[string]int64
	regressions []string
	total       int
}

// NewVerifier creates an empty verifier.
func NewVerifier() *Verifier {
	return &Verifier{
		orderCounts: make(map[string]int),
		firstEvent:  make(map[string]string),
		lastTime:    make(map[string]int64),
	}
}

// Observe records one trade.
func (v *Verifier) Observe(m TradeMsg) {
	v.total++
	key := m.OrderKey()
	v.orderCounts[key]++
	if _, ok := v.firstEvent[key]; !ok {
		v.firstEvent[key] = m.EventID
	}

	last, seen := v.lastTime[m.BacktestID]
	switch {
	case !seen || m.Time > last:
		v.lastTime[m.BacktestID] = m.Time
	case m.Time < last:
		v.regressions = append(v.regressions,
			fmt.Sprintf("backtest %s: trade for order %d at %d after %d", m.BacktestID, m.OrderID, m.Time, last))
	}
}

// Report summarises what the verifier has seen.
type Report struct {
	Total       int
	Orders      int
	Backtests   int
	Duplicates  map[string]int
	FirstEvent  map[string]string
	Regressions []string
}

// OK reports whether no violation was found.
func (r Report) OK() bool {
	return len(r.Duplicates) == 0 && len(r.Regressions) == 0
}

// DuplicateKeys returns the duplicated order keys in sorted order.
func (r Report) DuplicateKeys() []string {
	keys := make([]string, 0, len(r.Duplicates))
	for k := range r.Duplicates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Report returns the current summary.
func (v *Verifier) Report() Report {
	r := Report{
		Total:       v.total,
		Orders:      len(v.orderCounts),
		Backtests:   len(v.lastTime),
		Duplicates:  make(map[string]int),
		FirstEvent:  v.firstEvent,
		Regressions: v.regressions,
	}
	for key, count := range v.orderCounts {
		if count > 1 {
			r.Duplicates[key] = count
		}
	}
	return r
}
