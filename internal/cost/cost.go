// Package cost holds transaction cost models used by brokers when sizing
// orders. Models are pure functions and never touch exchange state.
package cost

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Func maps a gross budget and price to what is actually spendable and the
// effective per-unit price once costs are applied.
type Func func(grossBudget, grossPrice float64, isBuy bool) (netBudget, netPrice float64)

// None applies no costs.
func None() Func {
	return func(budget, price float64, _ bool) (float64, float64) {
		return budget, price
	}
}

// Flat charges a fixed fee per order, taken out of the budget.
func Flat(fee float64) Func {
	return func(budget, price float64, _ bool) (float64, float64) {
		return math.Max(budget-fee, 0), price
	}
}

// PerShare shifts the effective price against the trader by fee per unit.
func PerShare(fee float64) Func {
	return func(budget, price float64, isBuy bool) (float64, float64) {
		if isBuy {
			return budget, price + fee
		}
		return budget, math.Max(price-fee, 0)
	}
}

// PctOfValue shifts the effective price against the trader by pct percent.
func PctOfValue(pct float64) Func {
	return func(budget, price float64, isBuy bool) (float64, float64) {
		if isBuy {
			return budget, price * (1 + pct/100)
		}
		return budget, price * (1 - pct/100)
	}
}

// Parse builds a model from "none", "flat:<fee>", "per_share:<fee>" or "pct:<pct>".
func Parse(model string) (Func, error) {
	name, arg, hasArg := strings.Cut(strings.TrimSpace(model), ":")
	name = strings.ToLower(name)
	if name == "" || name == "none" {
		return None(), nil
	}
	if !hasArg {
		return nil, fmt.Errorf("cost model %q needs a value", name)
	}

	v, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid cost value %q: %w", arg, err)
	}
	if v < 0 {
		return nil, fmt.Errorf("cost value must not be negative, got %v", v)
	}

	switch name {
	case "flat":
		return Flat(v), nil
	case "per_share":
		return PerShare(v), nil
	case "pct":
		return PctOfValue(v), nil
	default:
		return nil, fmt.Errorf("unknown cost model %q", name)
	}
}

// Quantity returns the whole number of units budget can buy (or must sell to
// raise budget) at price once f is applied.
func Quantity(budget, price float64, isBuy bool, f Func) float64 {
	netBudget, netPrice := f(budget, price, isBuy)
	if netPrice <= 0 || netBudget <= 0 {
		return 0
	}
	return math.Floor(netBudget / netPrice)
}
