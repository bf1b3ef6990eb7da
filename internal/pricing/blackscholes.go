// Package pricing prices vanilla options three ways: closed-form
// Black-Scholes, Cox-Ross-Rubinstein binomial trees and Monte Carlo
// simulation over geometric Brownian motion.
package pricing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// OptionType distinguishes calls from puts.
type OptionType string

const (
	Call OptionType = "call"
	Put  OptionType = "put"
)

// ExerciseStyle distinguishes European from American exercise.
type ExerciseStyle string

const (
	European ExerciseStyle = "european"
	American ExerciseStyle = "american"
)

var stdNormal = distuv.Normal{Mu: 0, Sigma: 1}

func validateContract(typ OptionType, s0, strike, sigma, t float64) error {
	if typ != Call && typ != Put {
		return fmt.Errorf("pricing: unknown option type %q", typ)
	}
	if s0 <= 0 {
		return fmt.Errorf("pricing: spot must be positive, got %v", s0)
	}
	if strike <= 0 {
		return fmt.Errorf("pricing: strike must be positive, got %v", strike)
	}
	if sigma < 0 {
		return fmt.Errorf("pricing: volatility must be non-negative, got %v", sigma)
	}
	if t < 0 {
		return fmt.Errorf("pricing: maturity must be non-negative, got %v", t)
	}
	return nil
}

func payoff(typ OptionType, s, strike float64) float64 {
	if typ == Call {
		return math.Max(s-strike, 0)
	}
	return math.Max(strike-s, 0)
}

// BlackScholes returns the closed-form European option price under constant
// rate and volatility. Degenerate inputs (zero maturity or volatility)
// collapse to discounted intrinsic value on the forward.
func BlackScholes(typ OptionType, s0, strike, rate, sigma, t float64) (float64, error) {
	if err := validateContract(typ, s0, strike, sigma, t); err != nil {
		return 0, err
	}
	if t == 0 {
		return payoff(typ, s0, strike), nil
	}
	if sigma == 0 {
		forward := s0 * math.Exp(rate*t)
		return math.Exp(-rate*t) * payoff(typ, forward, strike), nil
	}

	sqrtT := math.Sqrt(t)
	d1 := (math.Log(s0/strike) + (rate+0.5*sigma*sigma)*t) / (sigma * sqrtT)
	d2 := d1 - sigma*sqrtT

	if typ == Call {
		return s0*stdNormal.CDF(d1) - strike*math.Exp(-rate*t)*stdNormal.CDF(d2), nil
	}
	return strike*math.Exp(-rate*t)*stdNormal.CDF(-d2) - s0*stdNormal.CDF(-d1), nil
}
