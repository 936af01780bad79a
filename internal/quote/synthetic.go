package quote

import (
	"fmt"
	"iter"
	"math"
	"math/rand/v2"

	"github.com/ismaiel54/backtest-exchange/internal/clock"
)

// SyntheticConfig controls the random-walk quote generator.
type SyntheticConfig struct {
	Symbols    []string
	StartPrice float64
	// Volatility is the standard deviation of each step's relative move.
	Volatility float64
	// Spread is the ask-bid distance as a fraction of mid.
	Spread float64
	// MissingPct is the chance (0-100) that a symbol has no quote at a time point.
	MissingPct int
	Seed       uint64
}

// Synthetic generates a deterministic random walk per symbol over times.
func Synthetic(cfg SyntheticConfig, times iter.Seq[clock.Time]) (*Memory, error) {
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("synthetic quotes need at least one symbol")
	}
	if cfg.StartPrice <= 0 {
		return nil, fmt.Errorf("start price must be greater than 0")
	}
	if cfg.MissingPct < 0 || cfg.MissingPct > 100 {
		return nil, fmt.Errorf("missing pct must be within 0-100, got %d", cfg.MissingPct)
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	mids := make(map[string]float64, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		mids[s] = cfg.StartPrice
	}

	mem := NewMemory()
	for t := range times {
		for _, s := range cfg.Symbols {
			mid := mids[s] * math.Exp(rng.NormFloat64()*cfg.Volatility)
			mids[s] = mid

			if cfg.MissingPct > 0 && rng.IntN(100) < cfg.MissingPct {
				continue
			}

			half := mid * cfg.Spread / 2
			mem.Add(Quote{
				Bid:    round2(mid - half),
				Ask:    round2(mid + half),
				Time:   t,
				Symbol: s,
			})
		}
	}
	return mem, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
