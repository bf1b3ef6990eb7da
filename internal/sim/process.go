package sim

import (
	"fmt"
	"math"
)

// Process is a one-dimensional stochastic process advanced step by step from
// standard normal draws.
type Process interface {
	// Validate checks the model parameters.
	Validate() error
	// X0 returns the initial state.
	X0() float64
	// Step advances the state x over a step of length dt given a standard
	// normal draw z.
	Step(x, dt, z float64) float64
}

// GBM is geometric Brownian motion dS = mu*S dt + sigma*S dW, advanced with
// the exact log-Euler scheme.
type GBM struct {
	S0    float64
	Mu    float64
	Sigma float64
}

func (g GBM) Validate() error {
	if g.S0 <= 0 {
		return fmt.Errorf("gbm: initial price must be positive, got %v", g.S0)
	}
	if g.Sigma < 0 {
		return fmt.Errorf("gbm: volatility must be non-negative, got %v", g.Sigma)
	}
	return nil
}

func (g GBM) X0() float64 { return g.S0 }

// Step advances the price with the exact discretization
// S' = S * exp((mu - sigma^2/2) dt + sigma sqrt(dt) z).
func (g GBM) Step(s, dt, z float64) float64 {
	return s * math.Exp((g.Mu-0.5*g.Sigma*g.Sigma)*dt+g.Sigma*math.Sqrt(dt)*z)
}

// Terminal samples S(t) in a single draw. The scheme is exact, so a terminal
// draw and a full path of any step count have the same distribution.
func (g GBM) Terminal(t, z float64) float64 {
	return g.S0 * math.Exp((g.Mu-0.5*g.Sigma*g.Sigma)*t+g.Sigma*math.Sqrt(t)*z)
}

// Vasicek is the mean-reverting short-rate model
// dr = a(b - r) dt + sigma dW, advanced with the exact transition density.
// Rates may go negative; that is a property of the model.
type Vasicek struct {
	R0    float64
	Speed float64 // a: mean-reversion speed
	Mean  float64 // b: long-run level
	Sigma float64
}

func (v Vasicek) Validate() error {
	if v.Speed <= 0 {
		return fmt.Errorf("vasicek: mean-reversion speed must be positive, got %v", v.Speed)
	}
	if v.Sigma < 0 {
		return fmt.Errorf("vasicek: volatility must be non-negative, got %v", v.Sigma)
	}
	return nil
}

func (v Vasicek) X0() float64 { return v.R0 }

// Step uses the exact Ornstein-Uhlenbeck transition:
// r' = b + (r - b) e^{-a dt} + sigma sqrt((1 - e^{-2 a dt}) / (2a)) z.
func (v Vasicek) Step(r, dt, z float64) float64 {
	decay := math.Exp(-v.Speed * dt)
	stdev := v.Sigma * math.Sqrt((1-decay*decay)/(2*v.Speed))
	return v.Mean + (r-v.Mean)*decay + stdev*z
}

// CIR is the Cox-Ingersoll-Ross short-rate model
// dr = a(b - r) dt + sigma sqrt(r) dW, advanced with a full-truncation Euler
// scheme: the rate entering the drift and diffusion is floored at zero, which
// keeps the discretized process non-negative.
type CIR struct {
	R0    float64
	Speed float64
	Mean  float64
	Sigma float64
}

func (c CIR) Validate() error {
	if c.R0 < 0 {
		return fmt.Errorf("cir: initial rate must be non-negative, got %v", c.R0)
	}
	if c.Speed <= 0 {
		return fmt.Errorf("cir: mean-reversion speed must be positive, got %v", c.Speed)
	}
	if c.Mean < 0 {
		return fmt.Errorf("cir: long-run level must be non-negative, got %v", c.Mean)
	}
	if c.Sigma < 0 {
		return fmt.Errorf("cir: volatility must be non-negative, got %v", c.Sigma)
	}
	return nil
}

func (c CIR) X0() float64 { return c.R0 }

func (c CIR) Step(r, dt, z float64) float64 {
	rPlus := math.Max(r, 0)
	next := r + c.Speed*(c.Mean-rPlus)*dt + c.Sigma*math.Sqrt(rPlus*dt)*z
	return math.Max(next, 0)
}

// Path simulates a full path of p on an even grid of step dt, filling buf.
// buf[i] holds the state at (i+1)*dt.
func Path(p Process, buf []float64, dt float64, src *NormalSource) {
	x := p.X0()
	for i := range buf {
		x = p.Step(x, dt, src.Norm())
		buf[i] = x
	}
}
