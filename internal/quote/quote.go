package quote

import (
	"sort"
	"sync"

	"github.com/ismaiel54/backtest-exchange/internal/clock"
)

// Quote is the top of book for one symbol at one time point.
type Quote struct {
	Bid    float64    `json:"bid"`
	Ask    float64    `json:"ask"`
	Time   clock.Time `json:"time"`
	Symbol string     `json:"symbol"`
}

// Source is the read side of a quote table.
type Source interface {
	// GetQuote returns the quote for symbol at t, if one exists.
	GetQuote(t clock.Time, symbol string) (Quote, bool)
	// GetQuotes returns every quote at t ordered by symbol, if any exist.
	GetQuotes(t clock.Time) ([]Quote, bool)
}

// Memory is an in-memory Source. Loaders fill it with Add before a run;
// after that it is only read and may be shared between backtests.
type Memory struct {
	mu      sync.RWMutex
	quotes  map[clock.Time]map[string]Quote
	symbols map[string]struct{}
}

// NewMemory creates an empty quote table.
func NewMemory() *Memory {
	return &Memory{
		quotes:  make(map[clock.Time]map[string]Quote),
		symbols: make(map[string]struct{}),
	}
}

// Add stores q, replacing any quote already held for (q.Time, q.Symbol).
func (m *Memory) Add(q Quote) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bySymbol, ok := m.quotes[q.Time]
	if !ok {
		bySymbol = make(map[string]Quote)
		m.quotes[q.Time] = bySymbol
	}
	bySymbol[q.Symbol] = q
	m.symbols[q.Symbol] = struct{}{}
}

// GetQuote implements Source.
func (m *Memory) GetQuote(t clock.Time, symbol string) (Quote, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	q, ok := m.quotes[t][symbol]
	return q, ok
}

// GetQuotes implements Source.
func (m *Memory) GetQuotes(t clock.Time) ([]Quote, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bySymbol, ok := m.quotes[t]
	if !ok || len(bySymbol) == 0 {
		return nil, false
	}

	out := make([]Quote, 0, len(bySymbol))
	for _, q := range bySymbol {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, true
}

// Symbols returns every symbol seen by Add, sorted.
func (m *Memory) Symbols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.symbols))
	for s := range m.symbols {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Times returns every time point holding at least one quote, ascending.
func (m *Memory) Times() []clock.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]clock.Time, 0, len(m.quotes))
	for t := range m.quotes {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// All returns every stored quote ordered by time then symbol.
func (m *Memory) All() []Quote {
	var out []Quote
	for _, t := range m.Times() {
		qs, _ := m.GetQuotes(t)
		out = append(out, qs...)
	}
	return out
}
