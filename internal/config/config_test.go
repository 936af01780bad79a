package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ismaiel54/backtest-exchange/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := LoadConfig("exchange-server")
	assert.Equal(t, "exchange-server", cfg.ServiceName)
	assert.Equal(t, ":50051", cfg.GRPCAddr())
	assert.Equal(t, ":8080", cfg.HTTPAddr())
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "exchange.trades", cfg.KafkaTradesTopic)
	assert.Equal(t, []string{"AAA", "BBB", "CCC"}, cfg.Symbols())

	p, err := cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, queue.Grow, p)
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("PORT_GRPC", "6000")
	t.Setenv("PORT_HTTP", "not-a-number")
	t.Setenv("QUEUE_POLICY", "drop")
	t.Setenv("SYNTHETIC_SEED", "99")

	cfg := LoadConfig("x")
	assert.Equal(t, 6000, cfg.GRPCPort)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, int64(99), cfg.SyntheticSeed)
	p, err := cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, queue.Drop, p)
}

func TestDatasetPaths(t *testing.T) {
	cfg := &Config{DataDir: "/data", Datasets: "crypto=crypto.db, fx=/abs/fx.db"}
	paths, err := cfg.DatasetPaths()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"crypto": "/data/crypto.db", "fx": "/abs/fx.db"}, paths)

	for _, bad := range []string{"crypto", "=x.db", "a=1.db,a=2.db"} {
		_, err := (&Config{Datasets: bad}).DatasetPaths()
		assert.Error(t, err, bad)
	}

	paths, err = (&Config{}).DatasetPaths()
	require.NoError(t, err)
	assert.Empty(t, paths)
}

const sampleRun = `
name: demo
data:
  synthetic:
    symbols: [AAA, BBB]
    steps: 50
    seed: ${RUN_SEED}
cost: pct:0.1
strategies:
  - type: buy_and_hold
    budget: 5000
  - name: mr
    type: mean_revert
    symbols: [AAA]
    window: 5
`

func TestLoadRun(t *testing.T) {
	t.Setenv("RUN_SEED", "7")
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleRun), 0o644))

	run, err := LoadRun(path)
	require.NoError(t, err)
	assert.Equal(t, "demo", run.Name)
	assert.Equal(t, uint64(7), run.Data.Synthetic.Seed)
	assert.Equal(t, 50, run.Data.Synthetic.Steps)
	assert.Equal(t, int64(DefaultStep), run.Data.Synthetic.Step)
	assert.Equal(t, "grow", run.Exchange.QueuePolicy)

	require.Len(t, run.Strategies, 2)
	assert.Equal(t, "buy_and_hold-1", run.Strategies[0].Name)
	assert.Equal(t, []string{"AAA", "BBB"}, run.Strategies[0].Symbols)
	assert.Equal(t, 5000.0, run.Strategies[0].Budget)
	assert.Equal(t, 5, run.Strategies[1].Window)
	assert.Equal(t, DefaultStopLossPct, run.Strategies[1].StopLossPct)
}

func TestParseRun_Invalid(t *testing.T) {
	cases := map[string]string{
		"no name":       "data: {synthetic: {symbols: [A]}}\nstrategies: [{type: buy_and_hold}]",
		"no symbols":    "name: x\nstrategies: [{type: buy_and_hold}]",
		"bad policy":    "name: x\ndata: {synthetic: {symbols: [A]}}\nexchange: {queue_policy: block}\nstrategies: [{type: buy_and_hold}]",
		"bad cost":      "name: x\ndata: {synthetic: {symbols: [A]}}\ncost: bribe:1\nstrategies: [{type: buy_and_hold}]",
		"no strategies": "name: x\ndata: {synthetic: {symbols: [A]}}",
		"bad type":      "name: x\ndata: {synthetic: {symbols: [A]}}\nstrategies: [{type: yolo}]",
		"bad yaml":      "name: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRun([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestParseRun_DatasetSkipsSynthetic(t *testing.T) {
	run, err := ParseRun([]byte("name: x\ndata: {dataset: quotes.db}\nstrategies: [{type: buy_and_hold}]"))
	require.NoError(t, err)
	assert.Equal(t, "quotes.db", run.Data.Dataset)
	assert.Empty(t, run.Strategies[0].Symbols)
}
