package exchange

import (
	"context"
	"sync"
	"testing"

	"github.com/ismaiel54/backtest-exchange/internal/clock"
	"github.com/ismaiel54/backtest-exchange/internal/quote"
	"github.com/stretchr/testify/require"
)

// fixture returns a clock over 100..103 and quotes for ABC at 100 and 101.
func fixture(t *testing.T) (*clock.Clock, *quote.Memory) {
	t.Helper()
	clk, err := clock.New([]clock.Time{100, 101, 102, 103})
	require.NoError(t, err)

	mem := quote.NewMemory()
	mem.Add(quote.Quote{Bid: 101, Ask: 102, Time: 100, Symbol: "ABC"})
	mem.Add(quote.Quote{Bid: 102, Ask: 103, Time: 101, Symbol: "ABC"})
	return clk, mem
}

type recordingSink struct {
	mu      sync.Mutex
	batches []Batch
	err     error
}

func (s *recordingSink) Publish(_ context.Context, b Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, b)
	return s.err
}

func (s *recordingSink) Batches() []Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Batch(nil), s.batches...)
}
