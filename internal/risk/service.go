package risk

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/stochastix/riskd/internal/sim"
	"github.com/stochastix/riskd/pkg/metrics"
)

// VaRMethod selects how the loss distribution is obtained.
type VaRMethod string

const (
	HistoricalVaR VaRMethod = "historical"
	ParametricVaR VaRMethod = "parametric"
	MonteCarloVaR VaRMethod = "montecarlo"
)

// Severity grades risk signals emitted on limit breaches.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	}
	return "unknown"
}

// Params controls a VaR calculation.
type Params struct {
	Method     VaRMethod
	Confidence float64
	Horizon    float64 // years
	Paths      int
	Seed       uint64
}

// Result is a VaR figure with its companion expected shortfall. Both are
// positive loss amounts in portfolio currency.
type Result struct {
	Method            VaRMethod `json:"method"`
	Confidence        float64   `json:"confidence"`
	Horizon           float64   `json:"horizon"`
	VaR               float64   `json:"var"`
	ExpectedShortfall float64   `json:"expected_shortfall"`
	PortfolioValue    float64   `json:"portfolio_value"`
	Paths             int       `json:"paths,omitempty"`
	Elapsed           string    `json:"elapsed,omitempty"`
}

// Signal records a limit breach.
type Signal struct {
	Timestamp time.Time `json:"timestamp"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Value     float64   `json:"value"`
	Limit     float64   `json:"limit"`
}

// Service computes portfolio risk measures and tracks limit breaches.
type Service struct {
	logger  *zap.Logger
	varLim  float64
	mu      sync.Mutex
	signals []Signal
}

// NewService creates a risk service. maxVaR of zero disables limit checks.
func NewService(logger *zap.Logger, maxVaR float64) *Service {
	return &Service{logger: logger, varLim: maxVaR}
}

func validateParams(p Params) error {
	if p.Confidence <= 0 || p.Confidence >= 1 {
		return fmt.Errorf("risk: confidence must be in (0,1), got %v", p.Confidence)
	}
	if p.Horizon <= 0 {
		return fmt.Errorf("risk: horizon must be positive, got %v", p.Horizon)
	}
	return nil
}

// Historical computes VaR/ES from an empirical P&L sample (one observation
// per period, portfolio currency, profits positive).
func (s *Service) Historical(pnl []float64, confidence float64) (Result, error) {
	if len(pnl) < 2 {
		return Result{}, fmt.Errorf("risk: historical VaR needs at least 2 observations, got %d", len(pnl))
	}
	if confidence <= 0 || confidence >= 1 {
		return Result{}, fmt.Errorf("risk: confidence must be in (0,1), got %v", confidence)
	}

	sorted := sim.SortedCopy(pnl)
	cut := sim.Quantile(sorted, 1-confidence)
	res := Result{
		Method:            HistoricalVaR,
		Confidence:        confidence,
		VaR:               math.Max(-cut, 0),
		ExpectedShortfall: expectedShortfall(sorted, cut),
	}
	s.check(res)
	return res, nil
}

// Parametric computes VaR/ES of a normal P&L with the given per-period mean
// and standard deviation, scaled to the horizon by sqrt-time.
func (s *Service) Parametric(value, mean, stdev float64, p Params) (Result, error) {
	if err := validateParams(p); err != nil {
		return Result{}, err
	}
	if stdev < 0 {
		return Result{}, fmt.Errorf("risk: negative standard deviation %v", stdev)
	}

	norm := distuv.Normal{Mu: 0, Sigma: 1}
	z := norm.Quantile(1 - p.Confidence)
	scale := math.Sqrt(p.Horizon)
	cut := value * (mean*p.Horizon + stdev*scale*z)

	// ES of a normal: mu - sigma * phi(z) / (1 - c).
	es := value * (mean*p.Horizon - stdev*scale*norm.Prob(z)/(1-p.Confidence))

	res := Result{
		Method:            ParametricVaR,
		Confidence:        p.Confidence,
		Horizon:           p.Horizon,
		VaR:               math.Max(-cut, 0),
		ExpectedShortfall: math.Max(-es, 0),
		PortfolioValue:    value,
	}
	s.check(res)
	return res, nil
}

// MonteCarlo computes VaR/ES by revaluing the portfolio over the horizon with
// correlated GBM terminal draws.
func (s *Service) MonteCarlo(ctx context.Context, pf Portfolio, p Params) (Result, error) {
	if err := pf.Validate(); err != nil {
		return Result{}, err
	}
	if err := validateParams(p); err != nil {
		return Result{}, err
	}
	if p.Paths < 2 {
		return Result{}, fmt.Errorf("risk: monte carlo VaR needs at least 2 paths, got %d", p.Paths)
	}

	start := time.Now()
	n := len(pf.Positions)

	var corr *sim.Correlator
	if pf.Correlation != nil {
		var err error
		corr, err = sim.NewCorrelator(pf.Correlation)
		if err != nil {
			return Result{}, err
		}
	}

	gbms := make([]sim.GBM, n)
	qty := make([]float64, n)
	spot := make([]float64, n)
	for i, pos := range pf.Positions {
		spot[i] = pos.Spot.InexactFloat64()
		qty[i] = pos.Quantity.InexactFloat64()
		gbms[i] = sim.GBM{S0: spot[i], Mu: pos.Mu, Sigma: pos.Sigma}
		if err := gbms[i].Validate(); err != nil {
			return Result{}, fmt.Errorf("risk: position %s: %w", pos.Symbol, err)
		}
	}

	src := sim.NewNormalSource(p.Seed, 0)
	z := make([]float64, n)
	x := make([]float64, n)
	pnl := make([]float64, 0, p.Paths)

	for i := 0; i < p.Paths; i++ {
		if i%4096 == 0 {
			select {
			case <-ctx.Done():
				return Result{}, ctx.Err()
			default:
			}
		}

		src.Fill(z)
		if corr != nil {
			corr.Apply(x, z)
		} else {
			copy(x, z)
		}

		var pathPnL float64
		for j := 0; j < n; j++ {
			st := gbms[j].Terminal(p.Horizon, x[j])
			pathPnL += qty[j] * (st - spot[j])
		}
		pnl = append(pnl, pathPnL)
	}

	sorted := sim.SortedCopy(pnl)
	cut := sim.Quantile(sorted, 1-p.Confidence)

	res := Result{
		Method:            MonteCarloVaR,
		Confidence:        p.Confidence,
		Horizon:           p.Horizon,
		VaR:               math.Max(-cut, 0),
		ExpectedShortfall: expectedShortfall(sorted, cut),
		PortfolioValue:    pf.TotalValue().InexactFloat64(),
		Paths:             p.Paths,
		Elapsed:           time.Since(start).String(),
	}
	s.check(res)
	return res, nil
}

// expectedShortfall averages losses at or beyond the VaR cut. sorted is the
// ascending P&L sample.
func expectedShortfall(sorted []float64, cut float64) float64 {
	var sum float64
	var n int
	for _, x := range sorted {
		if x > cut {
			break
		}
		sum += x
		n++
	}
	if n == 0 {
		return math.Max(-cut, 0)
	}
	return math.Max(-sum/float64(n), 0)
}

func (s *Service) check(res Result) {
	if s.varLim <= 0 || res.VaR <= s.varLim {
		return
	}

	sig := Signal{
		Timestamp: time.Now(),
		Severity:  SeverityHigh,
		Message:   "portfolio VaR limit exceeded",
		Value:     res.VaR,
		Limit:     s.varLim,
	}
	s.mu.Lock()
	s.signals = append(s.signals, sig)
	if len(s.signals) > 1000 {
		s.signals = s.signals[len(s.signals)-1000:]
	}
	s.mu.Unlock()

	metrics.VarBreaches.WithLabelValues(string(res.Method)).Inc()
	s.logger.Warn("VaR limit breached",
		zap.String("method", string(res.Method)),
		zap.Float64("var", res.VaR),
		zap.Float64("limit", s.varLim))
}

// Signals returns recorded breach signals at or above the given severity.
func (s *Service) Signals(min Severity) []Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Signal
	for _, sig := range s.signals {
		if sig.Severity >= min {
			out = append(out, sig)
		}
	}
	return out
}
