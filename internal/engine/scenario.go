// Package engine runs Monte Carlo scenarios concurrently: it compiles a
// scenario definition into a path sampler, fans path batches out across a
// worker pool, and folds batch results into a distribution summary.
package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/stochastix/riskd/internal/config"
	"github.com/stochastix/riskd/internal/sim"
)

// ProcessKind identifies the stochastic model a scenario simulates.
type ProcessKind string

const (
	ProcessGBM      ProcessKind = "gbm"
	ProcessVasicek  ProcessKind = "vasicek"
	ProcessCIR      ProcessKind = "cir"
	ProcessMultiGBM ProcessKind = "multi_gbm"
)

// AssetSpec describes one GBM-driven underlying. Weight is the holding used
// to aggregate multi-asset scenarios; zero means 1.
type AssetSpec struct {
	Symbol string  `json:"symbol"`
	Spot   float64 `json:"spot"`
	Mu     float64 `json:"mu"`
	Sigma  float64 `json:"sigma"`
	Weight float64 `json:"weight,omitempty"`
}

// RateSpec describes a mean-reverting short-rate model.
type RateSpec struct {
	R0    float64 `json:"r0"`
	Speed float64 `json:"speed"`
	Mean  float64 `json:"mean"`
	Sigma float64 `json:"sigma"`
}

// Scenario is a complete simulation request. The zero Confidence defaults to
// 0.95 when computing the distribution VaR.
type Scenario struct {
	ID          uuid.UUID   `json:"id"`
	Name        string      `json:"name"`
	Process     ProcessKind `json:"process"`
	Asset       *AssetSpec  `json:"asset,omitempty"`
	Rate        *RateSpec   `json:"rate,omitempty"`
	Assets      []AssetSpec `json:"assets,omitempty"`
	Correlation [][]float64 `json:"correlation,omitempty"`
	Horizon     float64     `json:"horizon"`
	Steps       int         `json:"steps,omitempty"`
	Paths       int         `json:"paths"`
	Seed        uint64      `json:"seed"`
	Antithetic  bool        `json:"antithetic,omitempty"`
	Confidence  float64     `json:"confidence,omitempty"`
}

// Validate checks the scenario against engine limits.
func (s *Scenario) Validate(lim config.EngineConfig) error {
	if s.Horizon <= 0 {
		return fmt.Errorf("engine: horizon must be positive, got %v", s.Horizon)
	}
	if s.Paths < 2 {
		return fmt.Errorf("engine: paths must be at least 2, got %d", s.Paths)
	}
	if s.Paths > lim.MaxPaths {
		return fmt.Errorf("engine: paths %d exceeds limit %d", s.Paths, lim.MaxPaths)
	}
	if s.Steps < 0 {
		return fmt.Errorf("engine: steps must be non-negative, got %d", s.Steps)
	}
	if s.Steps > lim.MaxSteps {
		return fmt.Errorf("engine: steps %d exceeds limit %d", s.Steps, lim.MaxSteps)
	}
	if s.Confidence < 0 || s.Confidence >= 1 {
		return fmt.Errorf("engine: confidence must be in [0,1), got %v", s.Confidence)
	}

	switch s.Process {
	case ProcessGBM:
		if s.Asset == nil {
			return fmt.Errorf("engine: gbm scenario requires an asset")
		}
		return s.gbmProcess(*s.Asset).Validate()

	case ProcessVasicek:
		if s.Rate == nil {
			return fmt.Errorf("engine: vasicek scenario requires rate parameters")
		}
		return sim.Vasicek{R0: s.Rate.R0, Speed: s.Rate.Speed, Mean: s.Rate.Mean, Sigma: s.Rate.Sigma}.Validate()

	case ProcessCIR:
		if s.Rate == nil {
			return fmt.Errorf("engine: cir scenario requires rate parameters")
		}
		return sim.CIR{R0: s.Rate.R0, Speed: s.Rate.Speed, Mean: s.Rate.Mean, Sigma: s.Rate.Sigma}.Validate()

	case ProcessMultiGBM:
		if len(s.Assets) == 0 {
			return fmt.Errorf("engine: multi_gbm scenario requires assets")
		}
		if len(s.Assets) > lim.MaxAssets {
			return fmt.Errorf("engine: %d assets exceeds limit %d", len(s.Assets), lim.MaxAssets)
		}
		for i, a := range s.Assets {
			if err := (s.gbmProcess(a)).Validate(); err != nil {
				return fmt.Errorf("engine: asset %d (%s): %w", i, a.Symbol, err)
			}
		}
		if s.Correlation != nil && len(s.Correlation) != len(s.Assets) {
			return fmt.Errorf("engine: correlation dimension %d does not match %d assets",
				len(s.Correlation), len(s.Assets))
		}
		return nil

	default:
		return fmt.Errorf("engine: unknown process kind %q", s.Process)
	}
}

func (s *Scenario) gbmProcess(a AssetSpec) sim.GBM {
	return sim.GBM{S0: a.Spot, Mu: a.Mu, Sigma: a.Sigma}
}

// Hash returns the content hash of the scenario definition, identity fields
// excluded, so equal definitions share cache entries.
func (s *Scenario) Hash() string {
	shadow := *s
	shadow.ID = uuid.Nil
	shadow.Name = ""
	raw, _ := json.Marshal(&shadow)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Baseline returns the initial value the simulated distribution is compared
// against when deriving P&L (spot, initial rate, or weighted spot sum).
func (s *Scenario) Baseline() float64 {
	switch s.Process {
	case ProcessGBM:
		return s.Asset.Spot
	case ProcessVasicek, ProcessCIR:
		return s.Rate.R0
	case ProcessMultiGBM:
		total := 0.0
		for _, a := range s.Assets {
			total += assetWeight(a) * a.Spot
		}
		return total
	}
	return 0
}

func assetWeight(a AssetSpec) float64 {
	if a.Weight == 0 {
		return 1
	}
	return a.Weight
}

// evaluator turns a vector of independent standard normals into one sample of
// the scenario's terminal quantity. draws is the number of normals consumed
// per sample. eval must depend only on its input so antithetic pairs are
// exact mirrors.
type evaluator struct {
	draws int
	eval  func(z []float64) float64
}

// compile builds a factory of evaluators. Each call to the factory returns an
// evaluator with private scratch buffers, so every worker gets its own.
func (s *Scenario) compile() (func() evaluator, error) {
	switch s.Process {
	case ProcessGBM:
		g := s.gbmProcess(*s.Asset)
		if s.Steps <= 1 {
			// Exact scheme: single terminal draw.
			horizon := s.Horizon
			return func() evaluator {
				return evaluator{
					draws: 1,
					eval:  func(z []float64) float64 { return g.Terminal(horizon, z[0]) },
				}
			}, nil
		}
		return s.pathFactory(g), nil

	case ProcessVasicek:
		p := sim.Vasicek{R0: s.Rate.R0, Speed: s.Rate.Speed, Mean: s.Rate.Mean, Sigma: s.Rate.Sigma}
		return s.pathFactory(p), nil

	case ProcessCIR:
		p := sim.CIR{R0: s.Rate.R0, Speed: s.Rate.Speed, Mean: s.Rate.Mean, Sigma: s.Rate.Sigma}
		return s.pathFactory(p), nil

	case ProcessMultiGBM:
		n := len(s.Assets)
		var corr *sim.Correlator
		if s.Correlation != nil {
			var err error
			corr, err = sim.NewCorrelator(s.Correlation)
			if err != nil {
				return nil, err
			}
		}
		gbms := make([]sim.GBM, n)
		weights := make([]float64, n)
		for i, a := range s.Assets {
			gbms[i] = s.gbmProcess(a)
			weights[i] = assetWeight(a)
		}
		horizon := s.Horizon
		return func() evaluator {
			x := make([]float64, n)
			return evaluator{
				draws: n,
				eval: func(z []float64) float64 {
					if corr != nil {
						corr.Apply(x, z)
					} else {
						copy(x, z)
					}
					total := 0.0
					for i := 0; i < n; i++ {
						total += weights[i] * gbms[i].Terminal(horizon, x[i])
					}
					return total
				},
			}
		}, nil

	default:
		return nil, fmt.Errorf("engine: unknown process kind %q", s.Process)
	}
}

func (s *Scenario) pathFactory(p sim.Process) func() evaluator {
	steps := s.Steps
	if steps < 1 {
		steps = defaultPathSteps
	}
	dt := s.Horizon / float64(steps)
	return func() evaluator {
		return evaluator{
			draws: steps,
			eval: func(z []float64) float64 {
				x := p.X0()
				for i := 0; i < steps; i++ {
					x = p.Step(x, dt, z[i])
				}
				return x
			},
		}
	}
}

const defaultPathSteps = 100
