package pricing

import (
	"fmt"
	"math"
	"time"

	"github.com/stochastix/riskd/internal/sim"
)

// VarianceReduction selects the estimator used by the Monte Carlo pricer.
type VarianceReduction string

const (
	VRNone       VarianceReduction = "none"
	VRAntithetic VarianceReduction = "antithetic"
	VRControl    VarianceReduction = "control"
)

// MCOption describes a European option priced by simulation.
type MCOption struct {
	Type      OptionType
	Spot      float64
	Strike    float64
	Rate      float64
	Sigma     float64
	Maturity  float64
	Paths     int
	Seed      uint64
	Reduction VarianceReduction
}

// MCResult is a Monte Carlo price with its sampling error.
type MCResult struct {
	Price    float64       `json:"price"`
	Estimate sim.Estimate  `json:"estimate"`
	Paths    int           `json:"paths"`
	Elapsed  time.Duration `json:"elapsed"`
}

// MonteCarlo prices a European option from GBM terminal draws under the
// risk-neutral measure. The GBM log scheme is exact, so a single terminal
// draw per path suffices.
func MonteCarlo(opt MCOption) (MCResult, error) {
	if err := validateContract(opt.Type, opt.Spot, opt.Strike, opt.Sigma, opt.Maturity); err != nil {
		return MCResult{}, err
	}
	if opt.Maturity == 0 {
		return MCResult{}, fmt.Errorf("pricing: monte carlo needs positive maturity")
	}
	if opt.Paths < 2 {
		return MCResult{}, fmt.Errorf("pricing: monte carlo needs at least 2 paths, got %d", opt.Paths)
	}
	switch opt.Reduction {
	case VRNone, VRAntithetic, VRControl, "":
	default:
		return MCResult{}, fmt.Errorf("pricing: unknown variance reduction %q", opt.Reduction)
	}

	start := time.Now()
	gbm := sim.GBM{S0: opt.Spot, Mu: opt.Rate, Sigma: opt.Sigma}
	disc := math.Exp(-opt.Rate * opt.Maturity)

	var est sim.Estimate

	switch opt.Reduction {
	case VRAntithetic:
		// Each antithetic pair collapses to one sample so the standard
		// error reflects the pair correlation.
		src := sim.NewNormalSource(opt.Seed, 0)
		pairs := opt.Paths / 2
		var acc sim.Accumulator
		for i := 0; i < pairs; i++ {
			z := src.Norm()
			p1 := payoff(opt.Type, gbm.Terminal(opt.Maturity, z), opt.Strike)
			p2 := payoff(opt.Type, gbm.Terminal(opt.Maturity, -z), opt.Strike)
			acc.Add(disc * 0.5 * (p1 + p2))
		}
		est = acc.Estimate()

	case VRControl:
		// Control variable: the terminal asset price, whose expectation
		// under the risk-neutral measure is S0 e^{rT}.
		src := sim.NewNormalSource(opt.Seed, 0)
		samples := make([]float64, opt.Paths)
		controls := make([]float64, opt.Paths)
		for i := 0; i < opt.Paths; i++ {
			st := gbm.Terminal(opt.Maturity, src.Norm())
			samples[i] = disc * payoff(opt.Type, st, opt.Strike)
			controls[i] = st
		}
		var err error
		est, err = sim.ControlVariate(samples, controls, opt.Spot*math.Exp(opt.Rate*opt.Maturity))
		if err != nil {
			return MCResult{}, err
		}

	default:
		src := sim.NewNormalSource(opt.Seed, 0)
		var acc sim.Accumulator
		for i := 0; i < opt.Paths; i++ {
			st := gbm.Terminal(opt.Maturity, src.Norm())
			acc.Add(disc * payoff(opt.Type, st, opt.Strike))
		}
		est = acc.Estimate()
	}

	return MCResult{
		Price:    est.Mean,
		Estimate: est,
		Paths:    opt.Paths,
		Elapsed:  time.Since(start),
	}, nil
}
