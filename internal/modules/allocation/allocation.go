// Package allocation sizes optimised weights against a cash mandate.
package allocation

import (
	"fmt"
	"math"

	"github.com/Rhymond/go-money"
	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is the mandate's currency.
const DefaultCurrency = money.USD

// DefaultMandate is the $100 million being allocated.
var DefaultMandate = decimal.NewFromInt(100_000_000)

// Position is the cash amount for one asset.
type Position struct {
	Asset   string          `json:"asset"`
	Weight  float64         `json:"weight"`
	Amount  decimal.Decimal `json:"amount"`
	Display string          `json:"display"`
}

// Allocation splits Total across the positions. The position amounts add up
// to Total exactly.
type Allocation struct {
	Currency  string          `json:"currency"`
	Total     decimal.Decimal `json:"total"`
	Display   string          `json:"display"`
	Positions []Position      `json:"positions"`
}

// Allocate converts weights to amounts rounded to the currency's minor unit.
// Weights are normalised by their sum first; the rounding residual goes to
// the largest position.
func Allocate(weights optimization.Weights, total decimal.Decimal, currency string) (*Allocation, error) {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return nil, fmt.Errorf("unknown currency %q", currency)
	}
	if !total.IsPositive() {
		return nil, fmt.Errorf("total must be positive, got %s", total)
	}
	if len(weights) == 0 {
		return nil, fmt.Errorf("no weights to allocate")
	}

	sum := decimal.Zero
	largest := 0
	for i, w := range weights {
		if math.IsNaN(w.Weight) || math.IsInf(w.Weight, 0) {
			return nil, fmt.Errorf("weight for %s is not finite", w.Asset)
		}
		sum = sum.Add(decimal.NewFromFloat(w.Weight))
		if w.Weight > weights[largest].Weight {
			largest = i
		}
	}
	if !sum.IsPositive() {
		return nil, fmt.Errorf("weights sum to %s", sum)
	}

	places := int32(cur.Fraction)
	alloc := &Allocation{
		Currency:  cur.Code,
		Total:     total,
		Display:   Format(total, currency),
		Positions: make([]Position, len(weights)),
	}

	allocated := decimal.Zero
	for i, w := range weights {
		amount := total.Mul(decimal.NewFromFloat(w.Weight)).Div(sum).Round(places)
		allocated = allocated.Add(amount)
		alloc.Positions[i] = Position{Asset: w.Asset, Weight: w.Weight, Amount: amount}
	}

	residual := total.Sub(allocated)
	alloc.Positions[largest].Amount = alloc.Positions[largest].Amount.Add(residual)

	for i := range alloc.Positions {
		alloc.Positions[i].Display = Format(alloc.Positions[i].Amount, currency)
	}
	return alloc, nil
}

// Format renders an amount with the currency's symbol and grouping.
func Format(amount decimal.Decimal, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return amount.StringFixed(2) + " " + currency
	}
	minor := amount.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(minor, currency).Display()
}
