package quote

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ismaiel54/backtest-exchange/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SaveLoad(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "datasets", "test.db")
	store, err := Open(dbPath)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	err = store.Save(ctx, []Quote{
		{Bid: 102, Ask: 103, Time: 101, Symbol: "ABC"},
		{Bid: 101, Ask: 102, Time: 100, Symbol: "ABC"},
		{Bid: 10, Ask: 11, Time: 100, Symbol: "XYZ"},
	})
	require.NoError(t, err)

	// Upsert replaces the existing row.
	err = store.Save(ctx, []Quote{{Bid: 9, Ask: 10, Time: 100, Symbol: "XYZ"}})
	require.NoError(t, err)

	mem, times, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []clock.Time{100, 101}, times)

	q, ok := mem.GetQuote(100, "XYZ")
	require.True(t, ok)
	assert.Equal(t, 9.0, q.Bid)

	q, ok = mem.GetQuote(101, "ABC")
	require.True(t, ok)
	assert.Equal(t, 103.0, q.Ask)
}

func TestStore_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), []Quote{{Bid: 1, Ask: 2, Time: 5, Symbol: "A"}}))
	require.NoError(t, store.Close())

	store, err = Open(dbPath)
	require.NoError(t, err)
	defer store.Close()

	mem, times, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []clock.Time{5}, times)
	assert.Equal(t, []string{"A"}, mem.Symbols())
}
