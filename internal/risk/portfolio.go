// Package risk computes portfolio Value at Risk and expected shortfall from
// historical, parametric and Monte Carlo loss distributions.
package risk

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Position is a linear holding in a single underlying. Money amounts are
// decimal at this boundary; the simulation kernel works in float64.
type Position struct {
	Symbol   string          `json:"symbol"`
	Quantity decimal.Decimal `json:"quantity"`
	Spot     decimal.Decimal `json:"spot"`
	Sigma    float64         `json:"sigma"`
	Mu       float64         `json:"mu"`
}

// MarketValue returns quantity * spot.
func (p Position) MarketValue() decimal.Decimal {
	return p.Quantity.Mul(p.Spot)
}

// Portfolio is a set of positions with an optional cross-asset correlation
// matrix. A nil matrix means independent assets.
type Portfolio struct {
	Positions   []Position  `json:"positions"`
	Correlation [][]float64 `json:"correlation,omitempty"`
}

// Validate checks positions and the correlation matrix shape. Positive
// definiteness is checked later at factorization time.
func (p *Portfolio) Validate() error {
	if len(p.Positions) == 0 {
		return fmt.Errorf("risk: portfolio has no positions")
	}
	for i, pos := range p.Positions {
		if pos.Symbol == "" {
			return fmt.Errorf("risk: position %d has empty symbol", i)
		}
		if pos.Spot.Sign() <= 0 {
			return fmt.Errorf("risk: position %s has non-positive spot", pos.Symbol)
		}
		if pos.Sigma < 0 {
			return fmt.Errorf("risk: position %s has negative volatility", pos.Symbol)
		}
	}
	if p.Correlation != nil && len(p.Correlation) != len(p.Positions) {
		return fmt.Errorf("risk: correlation matrix dimension %d does not match %d positions",
			len(p.Correlation), len(p.Positions))
	}
	return nil
}

// TotalValue returns the summed market value of all positions.
func (p *Portfolio) TotalValue() decimal.Decimal {
	total := decimal.Zero
	for _, pos := range p.Positions {
		total = total.Add(pos.MarketValue())
	}
	return total
}
