package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/ismaiel54/backtest-exchange/internal/cost"
	"github.com/ismaiel54/backtest-exchange/internal/queue"
	"gopkg.in/yaml.v3"
)

// Default values for optional run file fields.
const (
	DefaultSteps       = 500
	DefaultStep        = 60
	DefaultStartPrice  = 100.0
	DefaultVolatility  = 0.01
	DefaultSpread      = 0.02
	DefaultSeed        = 1
	DefaultBudget      = 10_000.0
	DefaultCost        = "none"
	DefaultWindow      = 20
	DefaultThreshold   = 0.01
	DefaultStopLossPct = 0.05
)

// Run describes one in-process backtest.
type Run struct {
	Name       string           `yaml:"name"`
	Data       DataConfig       `yaml:"data"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Cost       string           `yaml:"cost"`
	Strategies []StrategyConfig `yaml:"strategies"`
}

// DataConfig selects the quotes. Dataset, when set, names a sqlite quote
// store and Synthetic is ignored.
type DataConfig struct {
	Dataset   string          `yaml:"dataset"`
	Synthetic SyntheticConfig `yaml:"synthetic"`
}

type SyntheticConfig struct {
	Symbols    []string `yaml:"symbols"`
	Start      int64    `yaml:"start"`
	Steps      int      `yaml:"steps"`
	Step       int64    `yaml:"step"`
	StartPrice float64  `yaml:"start_price"`
	Volatility float64  `yaml:"volatility"`
	Spread     float64  `yaml:"spread"`
	MissingPct int      `yaml:"missing_pct"` // 0-100
	Seed       uint64   `yaml:"seed"`
}

type ExchangeConfig struct {
	QueuePolicy   string `yaml:"queue_policy"`
	QueueCapacity int    `yaml:"queue_capacity"`
}

// StrategyConfig configures one subscriber. Type is one of buy_and_hold or
// mean_revert. An empty Symbols list trades every symbol quoted.
type StrategyConfig struct {
	Name        string   `yaml:"name"`
	Type        string   `yaml:"type"`
	Symbols     []string `yaml:"symbols"`
	Budget      float64  `yaml:"budget"`
	Window      int      `yaml:"window"`
	Threshold   float64  `yaml:"threshold"`
	StopLossPct float64  `yaml:"stop_loss_pct"`
}

// LoadRun reads a YAML run file, expands ${VAR} references, applies defaults
// and validates the result.
func LoadRun(path string) (*Run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run file: %w", err)
	}
	return ParseRun(data)
}

// ParseRun is LoadRun for bytes already in memory.
func ParseRun(data []byte) (*Run, error) {
	expanded := os.ExpandEnv(string(data))

	var run Run
	if err := yaml.Unmarshal([]byte(expanded), &run); err != nil {
		return nil, fmt.Errorf("parse run yaml: %w", err)
	}
	run.applyDefaults()
	if err := run.Validate(); err != nil {
		return nil, fmt.Errorf("validate run: %w", err)
	}
	return &run, nil
}

func (r *Run) applyDefaults() {
	syn := &r.Data.Synthetic
	if syn.Steps == 0 {
		syn.Steps = DefaultSteps
	}
	if syn.Step == 0 {
		syn.Step = DefaultStep
	}
	if syn.StartPrice == 0 {
		syn.StartPrice = DefaultStartPrice
	}
	if syn.Volatility == 0 {
		syn.Volatility = DefaultVolatility
	}
	if syn.Spread == 0 {
		syn.Spread = DefaultSpread
	}
	if syn.Seed == 0 {
		syn.Seed = DefaultSeed
	}

	if r.Exchange.QueuePolicy == "" {
		r.Exchange.QueuePolicy = queue.Grow.String()
	}
	if r.Exchange.QueueCapacity == 0 {
		r.Exchange.QueueCapacity = 1024
	}
	if r.Cost == "" {
		r.Cost = DefaultCost
	}

	for i := range r.Strategies {
		s := &r.Strategies[i]
		if s.Budget == 0 {
			s.Budget = DefaultBudget
		}
		if s.Window == 0 {
			s.Window = DefaultWindow
		}
		if s.Threshold == 0 {
			s.Threshold = DefaultThreshold
		}
		if s.StopLossPct == 0 {
			s.StopLossPct = DefaultStopLossPct
		}
		if len(s.Symbols) == 0 {
			s.Symbols = r.Data.Synthetic.Symbols
		}
		if s.Name == "" {
			s.Name = fmt.Sprintf("%s-%d", s.Type, i+1)
		}
	}
}

// Validate checks that all required fields are set and values are valid.
func (r *Run) Validate() error {
	if r.Name == "" {
		return errors.New("name is required")
	}
	if r.Data.Dataset == "" {
		syn := r.Data.Synthetic
		if len(syn.Symbols) == 0 {
			return errors.New("data.synthetic.symbols is required without data.dataset")
		}
		if syn.Steps < 2 {
			return fmt.Errorf("data.synthetic.steps must be >= 2, got %d", syn.Steps)
		}
		if syn.Step < 1 {
			return errors.New("data.synthetic.step must be >= 1")
		}
		if syn.MissingPct < 0 || syn.MissingPct >= 100 {
			return fmt.Errorf("data.synthetic.missing_pct must be in [0, 100), got %d", syn.MissingPct)
		}
	}
	if _, err := queue.ParsePolicy(r.Exchange.QueuePolicy); err != nil {
		return fmt.Errorf("exchange.queue_policy: %w", err)
	}
	if r.Exchange.QueueCapacity < 1 {
		return errors.New("exchange.queue_capacity must be >= 1")
	}
	if _, err := cost.Parse(r.Cost); err != nil {
		return fmt.Errorf("cost: %w", err)
	}
	if len(r.Strategies) == 0 {
		return errors.New("at least one strategy is required")
	}
	for i, s := range r.Strategies {
		prefix := fmt.Sprintf("strategies[%d]", i)
		switch s.Type {
		case "buy_and_hold", "mean_revert":
		default:
			return fmt.Errorf("%s.type %q is not one of buy_and_hold, mean_revert", prefix, s.Type)
		}
		if s.Budget <= 0 {
			return fmt.Errorf("%s.budget must be > 0", prefix)
		}
		if s.Window < 2 {
			return fmt.Errorf("%s.window must be >= 2", prefix)
		}
		if s.StopLossPct <= 0 || s.StopLossPct >= 1 {
			return fmt.Errorf("%s.stop_loss_pct must be in (0, 1)", prefix)
		}
	}
	return nil
}
