package pricing

import (
	"fmt"
	"math"
)

// Binomial prices an option on a Cox-Ross-Rubinstein lattice with the given
// number of steps. American exercise is handled by comparing continuation
// value against immediate exercise during backward induction.
func Binomial(typ OptionType, style ExerciseStyle, s0, strike, rate, sigma, t float64, steps int) (float64, error) {
	if err := validateContract(typ, s0, strike, sigma, t); err != nil {
		return 0, err
	}
	if style != European && style != American {
		return 0, fmt.Errorf("pricing: unknown exercise style %q", style)
	}
	if steps < 1 {
		return 0, fmt.Errorf("pricing: binomial tree needs at least 1 step, got %d", steps)
	}
	if t == 0 {
		return payoff(typ, s0, strike), nil
	}
	if sigma == 0 {
		// Degenerate lattice: the underlying grows deterministically.
		forward := s0 * math.Exp(rate*t)
		price := math.Exp(-rate*t) * payoff(typ, forward, strike)
		if style == American {
			price = math.Max(price, payoff(typ, s0, strike))
		}
		return price, nil
	}

	dt := t / float64(steps)
	u := math.Exp(sigma * math.Sqrt(dt))
	d := 1 / u
	disc := math.Exp(-rate * dt)
	p := (math.Exp(rate*dt) - d) / (u - d)
	if p < 0 || p > 1 {
		return 0, fmt.Errorf("pricing: risk-neutral probability %v outside [0,1]; increase steps", p)
	}

	// Terminal layer: j up-moves out of steps.
	values := make([]float64, steps+1)
	for j := 0; j <= steps; j++ {
		s := s0 * math.Pow(u, float64(j)) * math.Pow(d, float64(steps-j))
		values[j] = payoff(typ, s, strike)
	}

	for i := steps - 1; i >= 0; i-- {
		for j := 0; j <= i; j++ {
			cont := disc * (p*values[j+1] + (1-p)*values[j])
			if style == American {
				s := s0 * math.Pow(u, float64(j)) * math.Pow(d, float64(i-j))
				values[j] = math.Max(cont, payoff(typ, s, strike))
			} else {
				values[j] = cont
			}
		}
	}

	return values[0], nil
}
